package redflag

import (
	"fmt"
	"strings"
)

// MissingFieldError reports a red flag that omitted a required field.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("red flag missing required field: %s", e.Field)
}

// UnknownCategoryError reports a risk_category outside the canonical six.
type UnknownCategoryError struct {
	Category string
}

func (e *UnknownCategoryError) Error() string {
	valid := make([]string, len(Categories))
	for i, c := range Categories {
		valid[i] = string(c)
	}
	return fmt.Sprintf("unknown risk_category %q, must be one of: %s",
		e.Category, strings.Join(valid, ", "))
}

// UnknownSeverityError reports a severity outside GREEN/YELLOW/RED/CRITICAL.
type UnknownSeverityError struct {
	Severity string
}

func (e *UnknownSeverityError) Error() string {
	return fmt.Sprintf("unknown severity %q, must be one of: GREEN, YELLOW, RED, CRITICAL", e.Severity)
}

// Violation ties a rejected flag to the contract error that rejected it.
type Violation struct {
	Module string  `json:"module"`
	Title  string  `json:"title"`
	Reason string  `json:"reason"`
	Flag   RedFlag `json:"-"`
}

// ValidationError is raised when a batch contains contract-violating flags.
// It enumerates every offending flag rather than stopping at the first.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = fmt.Sprintf("%s/%s: %s", v.Module, v.Title, v.Reason)
	}
	return fmt.Sprintf("%d invalid red flag(s): %s", len(e.Violations), strings.Join(parts, "; "))
}

// scenarioMarkerMetrics are metric names that explicitly signal a named
// fraud/structural scenario. A CRITICAL flag on any other metric needs an
// explicit scenario signal to be admissible.
var scenarioMarkerMetrics = map[string]bool{
	"related_party":   true,
	"rpt":             true,
	"rpt_fraud":       true,
	"evergreening":    true,
	"asset_stripping": true,
	"window_dressing": true,
}

// Validate enforces the red-flag contract on a single candidate. It returns
// the first contract error found: a MissingFieldError, UnknownSeverityError
// or UnknownCategoryError. Validation is total; a flag failing here must
// never be counted.
func Validate(f RedFlag) error {
	switch {
	case f.Module == "":
		return &MissingFieldError{Field: "module"}
	case f.Severity == "":
		return &MissingFieldError{Field: "severity"}
	case f.Title == "":
		return &MissingFieldError{Field: "title"}
	case f.Detail == "":
		return &MissingFieldError{Field: "detail"}
	case f.RiskCategory == "":
		return &MissingFieldError{Field: "risk_category"}
	}
	if _, err := ParseSeverity(string(f.Severity)); err != nil {
		return err
	}
	if _, err := ParseRiskCategory(string(f.RiskCategory)); err != nil {
		return err
	}
	return nil
}

// checkCriticalDoctrine rejects CRITICAL flags attached to routine threshold
// metrics. CRITICAL is reserved for structural failure: the flag must either
// carry a scenario-marker metric, carry no metric at all (pure structural
// finding), or be covered by an explicit scenario signal from the caller.
func checkCriticalDoctrine(f RedFlag, explicitSignals map[string]bool) error {
	if f.Severity != SeverityCritical || f.Metric == "" {
		return nil
	}
	if scenarioMarkerMetrics[strings.ToLower(f.Metric)] {
		return nil
	}
	for _, on := range explicitSignals {
		if on {
			return nil
		}
	}
	return fmt.Errorf("CRITICAL severity on routine threshold metric %q without scenario justification", f.Metric)
}
