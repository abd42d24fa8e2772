package engine

import (
	"fmt"

	"finhealth/internal/redflag"
)

// Fields maps raw per-period financial field names to reported values.
type Fields map[string]float64

// MetricSet maps derived metric names to computed values. A missing key
// means the metric could not be computed, which is deliberately distinct
// from zero so downstream rules can tell "unhealthy" from "unknown".
// A MetricSet is created fresh per module run and never mutated after the
// run that produced it returns.
type MetricSet map[string]float64

// Get returns a metric value and whether it was computable.
func (m MetricSet) Get(name string) (float64, bool) {
	v, ok := m[name]
	return v, ok
}

// RuleResult is one rule's classification for one analysis run.
type RuleResult struct {
	RuleID    string           `json:"rule_id"`
	RuleName  string           `json:"rule_name"`
	Metric    string           `json:"metric"`
	Value     float64          `json:"value"`
	Severity  redflag.Severity `json:"severity"`
	Threshold string           `json:"threshold"`
	Reason    string           `json:"reason"`

	Implication string `json:"implication,omitempty"`
	Action      string `json:"investor_action,omitempty"`
	RiskLevel   string `json:"risk_level,omitempty"`
}

// TrendShape labels the qualitative pattern of a period-over-period growth
// sequence.
type TrendShape string

const (
	ShapeAccelerating          TrendShape = "accelerating"
	ShapeDecelerating          TrendShape = "decelerating"
	ShapeConsistentlyGrowing   TrendShape = "consistently_growing"
	ShapeConsistentlyDeclining TrendShape = "consistently_declining"
	ShapeRecovering            TrendShape = "recovering"
	ShapeDeteriorating         TrendShape = "deteriorating"
	ShapeVolatile              TrendShape = "volatile"
	ShapeInsufficientData      TrendShape = "insufficient_data"
)

// TrendResult is one multi-period growth computation. Rate is a fraction
// (0.21 means 21% CAGR) and is only meaningful when Computable is true.
type TrendResult struct {
	Name       string     `json:"name"`
	Rate       float64    `json:"rate"`
	Computable bool       `json:"computable"`
	Shape      TrendShape `json:"shape"`
}

// ModuleOutput is the complete result of one module's analysis. It is
// immutable after construction; the aggregator and presentation layers only
// read it.
type ModuleOutput struct {
	Module         string            `json:"module"`
	Period         string            `json:"period,omitempty"`
	Metrics        MetricSet         `json:"key_metrics"`
	Rules          []RuleResult      `json:"rules"`
	Trends         []TrendResult     `json:"trends"`
	Score          int               `json:"score"`
	Interpretation string            `json:"score_interpretation"`
	Flags          []redflag.RedFlag `json:"red_flags"`
}

// ConfigError is a fatal configuration defect: a rule referencing an
// undeclared metric, malformed condition syntax, or a duplicate rule id.
type ConfigError struct {
	Module string
	Detail string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("module %q configuration error: %s", e.Module, e.Detail)
}

// UnknownModuleError is returned when analysis is requested for a module id
// that is not present in the active configuration snapshot.
type UnknownModuleError struct {
	Module string
}

func (e *UnknownModuleError) Error() string {
	return fmt.Sprintf("unknown module %q", e.Module)
}
