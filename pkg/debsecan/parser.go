package debsecan

import (
	"regexp"
	"sort"
	"strings"
)

var (
	headerRegex    = regexp.MustCompile(`^(CVE-\d{4}-\d+)(?:\s+\(([^)]+)\))?\s*$`)
	installedRegex = regexp.MustCompile(`^\s*installed:\s*(.+?)\s*$`)
	contPkgRegex   = regexp.MustCompile(`^\s{10,}(\S+)\s+(.+?)\s*$`)
	pkgNameRegex   = regexp.MustCompile(`^[a-z0-9][a-z0-9+.-]+$`)
)

// tableWords end the package continuation block; they belong to the
// fixed-version table that follows the installed list.
var tableWords = map[string]bool{
	"fixed":   true,
	"fix":     true,
	"package": true,
	"branch":  true,
}

// ParseDetail parses debsecan --format detail output. Repeated headers
// for the same CVE merge into one finding with a unioned package list,
// so identifiers are unique in the result. Malformed candidate lines
// are skipped and counted, never fatal.
func ParseDetail(out string) *Result {
	res := &Result{}

	findings := make(map[string]*Finding)
	lines := strings.Split(out, "\n")

	var current *Finding

	i := 0
	for i < len(lines) {
		line := lines[i]
		trimmed := strings.TrimSpace(line)

		if m := headerRegex.FindStringSubmatch(trimmed); m != nil {
			cve := m[1]
			f, ok := findings[cve]
			if !ok {
				f = &Finding{CVEID: cve, Status: "unknown"}
				findings[cve] = f
			}
			if status := strings.TrimSpace(m[2]); status != "" {
				f.Status = status
			}
			current = f
			i++
			continue
		}

		if strings.HasPrefix(trimmed, "CVE-") {
			// Header-shaped line that did not parse.
			res.ParseErrors++
			i++
			continue
		}

		if current != nil {
			if mi := installedRegex.FindStringSubmatch(line); mi != nil {
				parts := strings.Fields(mi[1])
				if len(parts) >= 2 {
					current.Packages = append(current.Packages, Package{
						Name:             parts[0],
						InstalledVersion: strings.Join(parts[1:], " "),
					})
				} else {
					res.ParseErrors++
				}

				i++
				j := i
				for j < len(lines) {
					nxt := lines[j]
					if strings.HasPrefix(strings.TrimSpace(nxt), "(") {
						j++
						continue
					}
					mc := contPkgRegex.FindStringSubmatch(nxt)
					if mc == nil {
						break
					}
					pkg := mc[1]
					if tableWords[strings.ToLower(pkg)] || !pkgNameRegex.MatchString(pkg) {
						break
					}
					current.Packages = append(current.Packages, Package{
						Name:             pkg,
						InstalledVersion: strings.TrimSpace(mc[2]),
					})
					j++
				}
				i = j
				continue
			}
		}

		i++
	}

	for _, f := range findings {
		f.Packages = dedupePackages(f.Packages)
		res.Findings = append(res.Findings, *f)
	}

	sort.Slice(res.Findings, func(a, b int) bool {
		return res.Findings[a].CVEID < res.Findings[b].CVEID
	})

	return res
}

func dedupePackages(pkgs []Package) []Package {
	if pkgs == nil {
		return []Package{}
	}

	seen := make(map[Package]bool, len(pkgs))
	uniq := make([]Package, 0, len(pkgs))
	for _, p := range pkgs {
		if seen[p] {
			continue
		}
		seen[p] = true
		uniq = append(uniq, p)
	}
	return uniq
}
