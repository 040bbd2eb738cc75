package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/vulnwatch/cvescan/config"
	"github.com/vulnwatch/cvescan/internal/scan"
)

// renderReport prints the scan result as a table plus summary counters.
func renderReport(r *scan.Result) {
	critical, high, medium, low := 0, 0, 0, 0

	for _, v := range r.Vulnerabilities {
		switch strings.ToLower(v.Severity) {
		case "critical":
			critical += 1
		case "high":
			high += 1
		case "medium":
			medium += 1
		case "low":
			low += 1
		default:
			// ignore
		}
	}

	fmt.Printf("\nHost %s (%s) | suite %s\n", r.Platform.Hostname, r.Platform.IP, r.Platform.Debian.Suite)
	fmt.Printf("Detected %s vulnerabilities | "+
		"Critical: %s High: %s Medium: %s Low: %s\n\n",
		config.Yellow(len(r.Vulnerabilities)),
		config.Red(critical),
		config.Pink(high),
		config.Yellow(medium),
		config.Green(low))

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "CVE", "Status", "Packages", "Score", "Severity", "Version"})
	table.SetRowLine(true)

	for i, v := range r.Vulnerabilities {
		score := "-"
		if v.BaseScore != nil {
			score = fmt.Sprintf("%.1f", *v.BaseScore)
		}

		scheme := v.ScoreVersion
		if scheme == "" {
			scheme = "-"
		}

		pkgs := make([]string, 0, len(v.AffectedPackages))
		for _, p := range v.AffectedPackages {
			pkgs = append(pkgs, fmt.Sprintf("%s %s", p.Name, p.InstalledVersion))
		}

		table.Append([]string{
			strconv.Itoa(i + 1), v.CVEID, v.DebsecanStatus,
			strings.Join(pkgs, "\n"), score, judgeSeverity(v.Severity), scheme,
		})
	}

	table.Render()

	fmt.Printf("\nCVEs seen: %d | matched >= %.1f: %d | no metrics: %d | parse errors: %d\n",
		r.Summary.TotalCVEsSeen, r.Summary.ThresholdCVSS, r.Summary.Matched,
		r.Summary.NoCVSSMetrics, r.Summary.ParseErrors)
}

func judgeSeverity(severity string) string {
	switch strings.ToLower(severity) {
	case "critical":
		return config.Red("critical")
	case "high":
		return config.Pink("high")
	case "medium":
		return config.Yellow("medium")
	case "low":
		return config.Green("low")
	default:
		// ignore
	}
	return severity
}
