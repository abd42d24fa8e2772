package engine

import (
	"fmt"

	"finhealth/internal/redflag"
)

// EvalRules applies every compiled rule to a metric set. Evaluation order is
// fixed: RED first, then YELLOW, then GREEN as the fallback even when no
// explicit GREEN condition is declared. A rule whose target metric is absent
// emits no result at all; missing data never fabricates a finding.
func EvalRules(rules []compiledRule, metrics MetricSet) []RuleResult {
	results := make([]RuleResult, 0, len(rules))
	for _, r := range rules {
		value, ok := metrics.Get(r.spec.Metric)
		if !ok {
			continue
		}
		results = append(results, evalRule(r, value))
	}
	return results
}

func evalRule(r compiledRule, value float64) RuleResult {
	result := RuleResult{
		RuleID:   r.spec.ID,
		RuleName: r.spec.Name,
		Metric:   r.spec.Metric,
		Value:    value,
	}

	switch {
	case r.red.Matches(value):
		result.Severity = redflag.SeverityRed
		result.Threshold = thresholdText(r.red)
		applyInsight(&result, r.spec, "red", "is in critical zone")
	case r.yellow.Matches(value):
		result.Severity = redflag.SeverityYellow
		result.Threshold = thresholdText(r.yellow)
		applyInsight(&result, r.spec, "yellow", "needs attention")
	default:
		result.Severity = redflag.SeverityGreen
		result.Threshold = thresholdText(r.green)
		applyInsight(&result, r.spec, "green", "is healthy")
	}
	return result
}

func thresholdText(c Condition) string {
	if c.NA {
		return "N/A"
	}
	return c.Raw
}

func applyInsight(result *RuleResult, spec RuleSpec, level, fallback string) {
	insight, ok := spec.Insights[level]
	if !ok || insight.Summary == "" {
		result.Reason = fmt.Sprintf("%s %s", spec.Name, fallback)
	} else {
		result.Reason = insight.Summary
	}
	result.Implication = insight.Implication
	result.Action = insight.Action
	result.RiskLevel = insight.RiskLevel
}
