package platform

// Unknown marks identity fields the target did not report. Platform
// facts are informational and never fail a scan.
const Unknown = "unknown"

type Debian struct {
	Suite      string `json:"suite"`
	PrettyName string `json:"pretty_name"`
	VersionID  string `json:"version_id"`
	Codename   string `json:"codename"`
}

type Info struct {
	Hostname    string   `json:"hostname"`
	FQDN        string   `json:"fqdn"`
	IP          string   `json:"ip"`
	IPAddresses []string `json:"ip_addresses"`
	Debian      Debian   `json:"debian"`
	Error       string   `json:"error,omitempty"`
}
