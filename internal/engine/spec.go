package engine

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"

	"finhealth/internal/redflag"
)

// ConditionNA is the sentinel for a threshold condition that does not apply.
// A rule severity configured with this sentinel never matches any value.
const ConditionNA = "-"

// FormulaSpec declares one derived metric as an arithmetic expression over
// raw field names. Fields missing from the input are treated as zero unless
// listed in Requires, in which case the metric is absent when the field is
// missing or zero.
type FormulaSpec struct {
	Name        string   `yaml:"name"`
	Expr        string   `yaml:"expr"`
	Requires    []string `yaml:"requires,omitempty"`
	Description string   `yaml:"description,omitempty"`
}

// InsightSpec is the analyst-facing text bundle attached to one severity
// level of a rule.
type InsightSpec struct {
	Summary     string `yaml:"summary"`
	Implication string `yaml:"implication,omitempty"`
	Action      string `yaml:"action,omitempty"`
	RiskLevel   string `yaml:"risk_level,omitempty"`
}

// RuleSpec declares one threshold test. The three conditions are checked in
// RED, YELLOW, GREEN order; GREEN is the fallback when neither RED nor
// YELLOW matches. RuleSpecs are immutable once loaded and shared read-only
// across analyses.
type RuleSpec struct {
	ID           string               `yaml:"id"`
	Name         string               `yaml:"name"`
	Metric       string               `yaml:"metric"`
	Red          string               `yaml:"red"`
	Yellow       string               `yaml:"yellow"`
	Green        string               `yaml:"green"`
	RiskCategory redflag.RiskCategory `yaml:"risk_category,omitempty"`

	// Insights keys are "red", "yellow", "green".
	Insights map[string]InsightSpec `yaml:"insights,omitempty"`
}

// TrendSpec binds a trend metric name to the underlying raw field whose
// historical series it is computed from.
type TrendSpec struct {
	Name  string `yaml:"name"`
	Field string `yaml:"field"`
}

// ModuleSpec is the declarative definition of one analysis module. Module
// behavior is data, not code: adding a module means adding a spec, not a new
// code path.
type ModuleSpec struct {
	ID          string             `yaml:"id"`
	Name        string             `yaml:"name"`
	Enabled     bool               `yaml:"enabled"`
	Description string             `yaml:"description,omitempty"`
	Benchmarks  map[string]float64 `yaml:"benchmarks,omitempty"`
	Formulas    []FormulaSpec      `yaml:"metrics"`
	Trends      []TrendSpec        `yaml:"trends,omitempty"`

	// TrendFormulas are evaluated after trend metrics are merged into the
	// metric set, so they may combine trend metrics (e.g. a CAGR gap).
	// Unlike Formulas, a referenced name missing from the metric set makes
	// the result absent rather than zero.
	TrendFormulas []FormulaSpec `yaml:"trend_metrics,omitempty"`

	Rules []RuleSpec `yaml:"rules,omitempty"`
}

// Condition is one parsed threshold comparison.
type Condition struct {
	Op        string
	Threshold float64
	NA        bool
	Raw       string
}

// Matches reports whether a metric value satisfies the condition. An N/A
// condition never matches.
func (c Condition) Matches(value float64) bool {
	if c.NA {
		return false
	}
	switch c.Op {
	case ">":
		return value > c.Threshold
	case ">=":
		return value >= c.Threshold
	case "<":
		return value < c.Threshold
	case "<=":
		return value <= c.Threshold
	}
	return false
}

// ParseCondition parses a condition string such as "> 3.0" or "<= 0.15".
// The sentinel "-" (or an empty string) yields a never-matching condition.
func ParseCondition(raw string) (Condition, error) {
	s := strings.TrimSpace(raw)
	if s == "" || s == ConditionNA {
		return Condition{NA: true, Raw: raw}, nil
	}
	for _, op := range []string{">=", "<=", ">", "<"} {
		if strings.HasPrefix(s, op) {
			num := strings.TrimSpace(strings.TrimPrefix(s, op))
			threshold, err := strconv.ParseFloat(num, 64)
			if err != nil {
				return Condition{}, fmt.Errorf("malformed condition %q: %w", raw, err)
			}
			return Condition{Op: op, Threshold: threshold, Raw: raw}, nil
		}
	}
	return Condition{}, fmt.Errorf("malformed condition %q: expected one of >, >=, <, <=", raw)
}

type compiledFormula struct {
	spec    FormulaSpec
	program *vm.Program
	fields  []string
}

type compiledRule struct {
	spec   RuleSpec
	red    Condition
	yellow Condition
	green  Condition
}

// Module is a compiled, immutable ModuleSpec ready for evaluation.
type Module struct {
	spec          ModuleSpec
	formulas      []compiledFormula
	trendFormulas []compiledFormula
	rules         []compiledRule
}

// ID returns the module identifier.
func (m *Module) ID() string { return m.spec.ID }

// Spec returns the declarative definition this module was compiled from.
func (m *Module) Spec() ModuleSpec { return m.spec }

// CompileModule validates a ModuleSpec and compiles its formulas and rule
// conditions. It fails fast with a *ConfigError on duplicate rule ids,
// malformed conditions or formulas, and rules or trend formulas referencing
// a metric no formula or trend ever defines.
func CompileModule(spec ModuleSpec) (*Module, error) {
	m := &Module{spec: spec}

	defined := make(map[string]bool)
	for _, f := range spec.Formulas {
		cf, err := compileFormula(f)
		if err != nil {
			return nil, &ConfigError{Module: spec.ID, Detail: err.Error()}
		}
		m.formulas = append(m.formulas, cf)
		defined[f.Name] = true
	}
	for _, t := range spec.Trends {
		defined[t.Name] = true
	}
	for _, f := range spec.TrendFormulas {
		cf, err := compileFormula(f)
		if err != nil {
			return nil, &ConfigError{Module: spec.ID, Detail: err.Error()}
		}
		for _, ref := range cf.fields {
			if !defined[ref] {
				return nil, &ConfigError{Module: spec.ID,
					Detail: fmt.Sprintf("trend metric %q references undefined metric %q", f.Name, ref)}
			}
		}
		m.trendFormulas = append(m.trendFormulas, cf)
		defined[f.Name] = true
	}

	seen := make(map[string]bool)
	for _, r := range spec.Rules {
		if seen[r.ID] {
			return nil, &ConfigError{Module: spec.ID, Detail: fmt.Sprintf("duplicate rule id %q", r.ID)}
		}
		seen[r.ID] = true
		if !defined[r.Metric] {
			return nil, &ConfigError{Module: spec.ID,
				Detail: fmt.Sprintf("rule %q references undefined metric %q", r.ID, r.Metric)}
		}
		cr := compiledRule{spec: r}
		var err error
		if cr.red, err = ParseCondition(r.Red); err != nil {
			return nil, &ConfigError{Module: spec.ID, Detail: fmt.Sprintf("rule %q: %v", r.ID, err)}
		}
		if cr.yellow, err = ParseCondition(r.Yellow); err != nil {
			return nil, &ConfigError{Module: spec.ID, Detail: fmt.Sprintf("rule %q: %v", r.ID, err)}
		}
		if cr.green, err = ParseCondition(r.Green); err != nil {
			return nil, &ConfigError{Module: spec.ID, Detail: fmt.Sprintf("rule %q: %v", r.ID, err)}
		}
		m.rules = append(m.rules, cr)
	}

	return m, nil
}

func compileFormula(spec FormulaSpec) (compiledFormula, error) {
	if spec.Name == "" {
		return compiledFormula{}, fmt.Errorf("formula with empty name")
	}
	program, err := expr.Compile(spec.Expr)
	if err != nil {
		return compiledFormula{}, fmt.Errorf("formula %q: %w", spec.Name, err)
	}
	fields, err := referencedIdentifiers(spec.Expr)
	if err != nil {
		return compiledFormula{}, fmt.Errorf("formula %q: %w", spec.Name, err)
	}
	return compiledFormula{spec: spec, program: program, fields: fields}, nil
}

// identCollector walks an expression AST collecting identifier names.
type identCollector struct {
	names map[string]bool
}

func (c *identCollector) Visit(node *ast.Node) {
	if n, ok := (*node).(*ast.IdentifierNode); ok {
		c.names[n.Value] = true
	}
}

func referencedIdentifiers(code string) ([]string, error) {
	tree, err := parser.Parse(code)
	if err != nil {
		return nil, err
	}
	collector := &identCollector{names: make(map[string]bool)}
	ast.Walk(&tree.Node, collector)
	names := make([]string, 0, len(collector.names))
	for name := range collector.names {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
