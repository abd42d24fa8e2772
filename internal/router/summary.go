package router

import (
	"fmt"
	"strings"

	"finhealth/internal/redflag"
)

const (
	maxSummaryRisks     = 10
	maxSummaryPositives = 5
)

// buildSummary assembles the analyst-facing workflow summary from module
// results. It is presentation only and never feeds back into scoring.
func buildSummary(res *Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Financial Analysis Summary: %s\n\n", res.Company)
	fmt.Fprintf(&b, "## Overview\n")
	fmt.Fprintf(&b, "- Modules analyzed: %d\n", len(res.ModulesCompleted))
	fmt.Fprintf(&b, "- Overall score: %d/100\n", res.OverallScore)

	risks := collectFindings(res, redflag.SeverityRed, maxSummaryRisks)
	positives := collectFindings(res, redflag.SeverityGreen, maxSummaryPositives)

	if len(risks) > 0 {
		fmt.Fprintf(&b, "- Status: attention required\n")
	} else {
		fmt.Fprintf(&b, "- Status: healthy\n")
	}

	if res.Aggregation != nil {
		fmt.Fprintf(&b, "- Red flag index: %d/100\n", res.Aggregation.RedFlagIndex)
		for _, name := range redflag.ScenarioNames {
			if res.Aggregation.Scenarios[name] {
				fmt.Fprintf(&b, "- Detected scenario: %s\n", name)
			}
		}
	}

	if len(risks) > 0 {
		fmt.Fprintf(&b, "\n## Risk Flags (%d)\n", len(risks))
		for _, r := range risks {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}
	if len(positives) > 0 {
		fmt.Fprintf(&b, "\n## Positive Indicators\n")
		for _, p := range positives {
			fmt.Fprintf(&b, "- %s\n", p)
		}
	}
	if len(res.ModulesFailed) > 0 {
		fmt.Fprintf(&b, "\n## Analysis Warnings\n")
		fmt.Fprintf(&b, "- Failed modules: %s\n", strings.Join(res.ModulesFailed, ", "))
	}
	return b.String()
}

// collectFindings pulls rule findings of one severity across completed
// modules, in run order, capped for readability.
func collectFindings(res *Result, severity redflag.Severity, limit int) []string {
	var out []string
	for _, id := range res.ModulesCompleted {
		for _, rule := range res.ModuleResults[id].Rules {
			if rule.Severity != severity || rule.Reason == "" {
				continue
			}
			out = append(out, fmt.Sprintf("[%s] %s: %s", strings.ToUpper(id), rule.RuleName, rule.Reason))
			if len(out) >= limit {
				return out
			}
		}
	}
	return out
}
