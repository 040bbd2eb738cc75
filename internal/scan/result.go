package scan

import (
	"sort"

	"github.com/vulnwatch/cvescan/pkg/debsecan"
	"github.com/vulnwatch/cvescan/pkg/nvd"
	"github.com/vulnwatch/cvescan/pkg/platform"
)

// Record is one vulnerability in the response. Score fields are nil or
// "N/A" when no scheme version resolved for the identifier.
type Record struct {
	CVEID            string             `json:"cve_id"`
	DebsecanStatus   string             `json:"debsecan_status"`
	AffectedPackages []debsecan.Package `json:"affected_packages"`
	BaseScore        *float64           `json:"base_score"`
	Severity         string             `json:"severity"`
	Vector           string             `json:"vector"`
	Exploitability   *float64           `json:"exploitability,omitempty"`
	Impact           *float64           `json:"impact,omitempty"`
	ScoreVersion     string             `json:"score_version,omitempty"`
	Error            string             `json:"error,omitempty"`
}

type Summary struct {
	ThresholdCVSS      float64        `json:"threshold_cvss"`
	Matched            int            `json:"matched_cvss_ge_threshold"`
	CVSSVersionsUsed   map[string]int `json:"cvss_versions_used"`
	NoCVSSMetrics      int            `json:"no_cvss_metrics"`
	ParseErrors        int            `json:"parse_errors"`
	TotalCVEsSeen      int            `json:"total_cves_seen"`
	TotalRecordsOutput int            `json:"total_records_output"`
}

type Result struct {
	Platform        *platform.Info `json:"platform"`
	Vulnerabilities []Record       `json:"vulnerabilities"`
	Summary         Summary        `json:"summary"`
}

// summaryKey maps a resolver scheme label to its summary counter key.
func summaryKey(scheme string) string {
	switch scheme {
	case nvd.SchemeV40:
		return "v4.0"
	case nvd.SchemeV31:
		return "v3.1"
	case nvd.SchemeV2:
		return "v2"
	}
	return scheme
}

type resolution struct {
	score *nvd.Score
	err   error
}

// assemble merges resolutions onto findings, applies the threshold and
// show_unscored policy, orders the output and builds the summary.
func assemble(findings []debsecan.Finding, resolutions map[string]resolution, parseErrors int, req Request) ([]Record, Summary) {
	summary := Summary{
		ThresholdCVSS:    req.MinScore,
		CVSSVersionsUsed: make(map[string]int),
		ParseErrors:      parseErrors,
		TotalCVEsSeen:    len(findings),
	}

	records := make([]Record, 0, len(findings))

	for _, f := range findings {
		rec := Record{
			CVEID:            f.CVEID,
			DebsecanStatus:   f.Status,
			AffectedPackages: f.Packages,
			Severity:         "N/A",
			Vector:           "N/A",
		}

		res := resolutions[f.CVEID]

		if res.err != nil || res.score == nil {
			summary.NoCVSSMetrics++
			if !req.ShowUnscored {
				continue
			}
			if res.err != nil {
				rec.Error = res.err.Error()
			}
			records = append(records, rec)
			continue
		}

		score := res.score
		if score.BaseScore < req.MinScore {
			continue
		}

		base := score.BaseScore
		rec.BaseScore = &base
		rec.Severity = score.Severity
		rec.Vector = score.Vector
		rec.Exploitability = score.Exploitability
		rec.Impact = score.Impact
		rec.ScoreVersion = score.ScoreVersion

		summary.Matched++
		summary.CVSSVersionsUsed[summaryKey(score.ScoreVersion)]++

		records = append(records, rec)
	}

	sortRecords(records)
	summary.TotalRecordsOutput = len(records)

	return records, summary
}

// sortRecords orders for presentation: numeric score descending,
// unscored after all scored, identifier as the tiebreak. Deterministic
// for identical inputs.
func sortRecords(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i].BaseScore, records[j].BaseScore
		switch {
		case a != nil && b != nil:
			if *a != *b {
				return *a > *b
			}
		case a != nil:
			return true
		case b != nil:
			return false
		}
		return records[i].CVEID < records[j].CVEID
	})
}
