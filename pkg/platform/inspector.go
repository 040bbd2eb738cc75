package platform

import (
	"context"
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Runner executes one command on the scan target.
type Runner interface {
	Run(ctx context.Context, cmd string) (string, error)
}

// identityScript gathers host identity facts in one round trip. Every
// value degrades to empty rather than failing the whole snippet.
const identityScript = `sh -c '
HN="$(hostname 2>/dev/null || echo unknown)"
FQDN="$(hostname -f 2>/dev/null || echo "$HN")"
IPS="$(hostname -I 2>/dev/null || true)"
if [ -z "$IPS" ]; then
  IPS="$(ip -4 -o addr show scope global 2>/dev/null | awk "{print \$4}" | cut -d/ -f1 | tr "\n" " " || true)"
fi

PRETTY=""
VID=""
VCODE=""
if [ -r /etc/os-release ]; then
  . /etc/os-release
  PRETTY="${PRETTY_NAME:-}"
  VID="${VERSION_ID:-}"
  VCODE="${VERSION_CODENAME:-${UBUNTU_CODENAME:-}}"
fi

echo "HOSTNAME=$HN"
echo "FQDN=$FQDN"
echo "IPS=$IPS"
echo "DEBIAN_PRETTY=$PRETTY"
echo "DEBIAN_VERSION_ID=$VID"
echo "DEBIAN_CODENAME=$VCODE"
'`

var ipv4Regex = regexp.MustCompile(`^\d{1,3}(\.\d{1,3}){3}$`)

// Inspect collects identity facts over the session. It never returns an
// error: on failure the Info carries unknown markers plus the failure
// text, and the scan goes on.
func Inspect(ctx context.Context, r Runner, suite string) *Info {
	out, err := r.Run(ctx, identityScript)
	if err != nil {
		log.Warnf("platform inspection failed: %v", err)
		return unknownInfo(suite, err.Error())
	}

	return parseIdentity(out, suite)
}

func unknownInfo(suite, errText string) *Info {
	return &Info{
		Hostname:    Unknown,
		FQDN:        Unknown,
		IP:          Unknown,
		IPAddresses: []string{},
		Debian: Debian{
			Suite:      suite,
			PrettyName: Unknown,
			VersionID:  Unknown,
			Codename:   Unknown,
		},
		Error: errText,
	}
}

func parseIdentity(out, suite string) *Info {
	kv := make(map[string]string)
	for _, line := range strings.Split(out, "\n") {
		if idx := strings.Index(line, "="); idx > -1 {
			kv[strings.TrimSpace(line[:idx])] = strings.TrimSpace(line[idx+1:])
		}
	}

	ips := strings.Fields(kv["IPS"])
	primary := ""
	for _, ip := range ips {
		if ipv4Regex.MatchString(ip) {
			primary = ip
			break
		}
	}
	if primary == "" && len(ips) > 0 {
		primary = ips[0]
	}

	info := &Info{
		Hostname:    orUnknown(kv["HOSTNAME"]),
		FQDN:        orUnknown(kv["FQDN"]),
		IP:          orUnknown(primary),
		IPAddresses: ips,
		Debian: Debian{
			Suite:      suite,
			PrettyName: orUnknown(kv["DEBIAN_PRETTY"]),
			VersionID:  orUnknown(kv["DEBIAN_VERSION_ID"]),
			Codename:   orUnknown(kv["DEBIAN_CODENAME"]),
		},
	}
	if info.IPAddresses == nil {
		info.IPAddresses = []string{}
	}

	return info
}

func orUnknown(v string) string {
	if v == "" {
		return Unknown
	}
	return v
}
