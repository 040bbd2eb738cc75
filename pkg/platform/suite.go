package platform

import (
	version2 "github.com/hashicorp/go-version"
)

// Debian release lines by major version. Codenames stay stable once a
// release ships, so a static table is enough.
var suitesByMajor = map[int]string{
	10: "buster",
	11: "bullseye",
	12: "bookworm",
	13: "trixie",
	14: "forky",
}

// DetectSuite maps the os-release VERSION_ID of a Debian host to its
// suite codename. Returns false for non-Debian or unparseable versions.
func DetectSuite(versionID string) (string, bool) {
	if versionID == "" || versionID == Unknown {
		return "", false
	}

	v, err := version2.NewVersion(versionID)
	if err != nil {
		return "", false
	}

	segments := v.Segments()
	if len(segments) == 0 {
		return "", false
	}

	suite, ok := suitesByMajor[segments[0]]
	return suite, ok
}

// SuiteMismatch reports whether the inspected host looks like a
// different Debian release than the one the scan was asked for. Purely
// informational; debsecan still runs with the requested suite.
func (i *Info) SuiteMismatch() (string, bool) {
	if i.Debian.Codename != "" && i.Debian.Codename != Unknown {
		if i.Debian.Codename != i.Debian.Suite {
			return i.Debian.Codename, true
		}
		return "", false
	}

	detected, ok := DetectSuite(i.Debian.VersionID)
	if ok && detected != i.Debian.Suite {
		return detected, true
	}
	return "", false
}
