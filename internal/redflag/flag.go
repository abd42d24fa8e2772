package redflag

import "fmt"

// Severity classifies how serious a red flag is. CRITICAL is reserved for
// structural failure (fraud, insolvency, non-linear risk) and must never be
// used for an ordinary threshold breach.
type Severity string

const (
	SeverityGreen    Severity = "GREEN"
	SeverityYellow   Severity = "YELLOW"
	SeverityRed      Severity = "RED"
	SeverityCritical Severity = "CRITICAL"
)

// ParseSeverity converts a raw string into a Severity.
func ParseSeverity(s string) (Severity, error) {
	switch Severity(s) {
	case SeverityGreen, SeverityYellow, SeverityRed, SeverityCritical:
		return Severity(s), nil
	}
	return "", &UnknownSeverityError{Severity: s}
}

// RiskCategory is one of the six canonical buckets every red flag must declare.
// Emitting modules set it explicitly; the aggregator never infers it.
type RiskCategory string

const (
	CategoryLiquidity        RiskCategory = "liquidity"
	CategoryLeverage         RiskCategory = "leverage"
	CategoryEarningsQuality  RiskCategory = "earnings_quality"
	CategoryWorkingCapital   RiskCategory = "working_capital"
	CategoryGovernanceFraud  RiskCategory = "governance_fraud"
	CategoryAssetUtilization RiskCategory = "asset_utilization"
)

// Categories lists all canonical risk categories in declaration order.
var Categories = []RiskCategory{
	CategoryLiquidity,
	CategoryLeverage,
	CategoryEarningsQuality,
	CategoryWorkingCapital,
	CategoryGovernanceFraud,
	CategoryAssetUtilization,
}

// CategoryDisplayNames maps canonical categories to analyst-facing labels.
var CategoryDisplayNames = map[RiskCategory]string{
	CategoryLiquidity:        "Liquidity Stress",
	CategoryLeverage:         "Leverage & Debt Risk",
	CategoryEarningsQuality:  "Earnings Quality Risk",
	CategoryWorkingCapital:   "Working Capital Stress",
	CategoryGovernanceFraud:  "Corporate Governance / Fraud Indicators",
	CategoryAssetUtilization: "Growth / Asset Utilization Risk",
}

// ParseRiskCategory converts a raw string into a RiskCategory.
func ParseRiskCategory(s string) (RiskCategory, error) {
	for _, c := range Categories {
		if RiskCategory(s) == c {
			return c, nil
		}
	}
	return "", &UnknownCategoryError{Category: s}
}

// RedFlag is the standardized risk signal emitted by an analysis module for
// cross-module aggregation. Module, Severity, Title, Detail and RiskCategory
// are mandatory; the rest is optional context.
type RedFlag struct {
	Module       string       `json:"module" yaml:"module"`
	Severity     Severity     `json:"severity" yaml:"severity"`
	Title        string       `json:"title" yaml:"title"`
	Detail       string       `json:"detail" yaml:"detail"`
	RiskCategory RiskCategory `json:"risk_category" yaml:"risk_category"`
	Metric       string       `json:"metric,omitempty" yaml:"metric,omitempty"`
	Value        *float64     `json:"value,omitempty" yaml:"value,omitempty"`
	Threshold    string       `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	Period       string       `json:"period,omitempty" yaml:"period,omitempty"`
}

// RiskLevel grades aggregate pressure within a single risk category.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskVeryHigh RiskLevel = "VERY_HIGH"
)

// SeverityCounts tallies flags per severity across one aggregation batch.
type SeverityCounts struct {
	Critical int `json:"critical"`
	Red      int `json:"red"`
	Yellow   int `json:"yellow"`
	Green    int `json:"green"`
}

// CountSeverities tallies severities across a flattened flag list.
func CountSeverities(flags []RedFlag) SeverityCounts {
	var c SeverityCounts
	for _, f := range flags {
		switch f.Severity {
		case SeverityCritical:
			c.Critical++
		case SeverityRed:
			c.Red++
		case SeverityYellow:
			c.Yellow++
		case SeverityGreen:
			c.Green++
		}
	}
	return c
}

func (f RedFlag) String() string {
	return fmt.Sprintf("[%s/%s] %s: %s", f.Module, f.Severity, f.RiskCategory, f.Title)
}
