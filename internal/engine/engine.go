package engine

import (
	"github.com/rs/zerolog/log"

	"finhealth/internal/redflag"
)

// Engine orchestrates one module's full analysis: metric computation, trend
// evaluation, rule classification and scoring. One Engine serves every
// configured module; per-module behavior is entirely data-driven.
type Engine struct {
	modules map[string]*Module
	scoring ScoringConfig
}

// NewEngine builds an engine over compiled modules and scoring weights.
func NewEngine(modules []*Module, scoring ScoringConfig) *Engine {
	byID := make(map[string]*Module, len(modules))
	for _, m := range modules {
		byID[m.ID()] = m
	}
	return &Engine{modules: byID, scoring: scoring}
}

// Modules returns the ids of all configured modules in no particular order;
// callers needing a stable run order should keep their own list.
func (e *Engine) Modules() []string {
	ids := make([]string, 0, len(e.modules))
	for id := range e.modules {
		ids = append(ids, id)
	}
	return ids
}

// Analyze runs one module against the current period's fields and an
// optional oldest-first historical series. A rule whose metric could not be
// computed is skipped; a module with zero evaluable rules still returns a
// valid output with the base score. Returns *UnknownModuleError for an
// unconfigured module id.
func (e *Engine) Analyze(moduleID string, current Fields, historical []Fields, period string) (*ModuleOutput, error) {
	m, ok := e.modules[moduleID]
	if !ok {
		return nil, &UnknownModuleError{Module: moduleID}
	}

	metrics := EvalFormulas(m.formulas, current)

	// Merge trend-derived metrics before rule evaluation so rules may
	// reference them alongside per-period metrics.
	var trends []TrendResult
	if len(historical) > 0 {
		trends = EvalTrends(m.spec.Trends, historical)
		for _, t := range trends {
			if t.Computable {
				metrics[t.Name] = t.Rate
			}
		}
		for name, v := range evalTrendFormulas(m.trendFormulas, metrics) {
			metrics[name] = v
		}
	}

	rules := EvalRules(m.rules, metrics)
	score, interpretation := Score(rules, e.scoring)

	out := &ModuleOutput{
		Module:         moduleID,
		Period:         period,
		Metrics:        metrics,
		Rules:          rules,
		Trends:         trends,
		Score:          score,
		Interpretation: interpretation,
		Flags:          emitFlags(m, rules, period),
	}

	log.Debug().Str("module", moduleID).
		Int("metrics", len(metrics)).
		Int("rules_evaluated", len(rules)).
		Int("score", score).
		Msg("module analysis complete")
	return out, nil
}

// emitFlags converts RED rule findings into standardized red flags for
// cross-module aggregation. Only rules that declare a canonical risk
// category emit; the category is never inferred from the module id.
func emitFlags(m *Module, results []RuleResult, period string) []redflag.RedFlag {
	var flags []redflag.RedFlag
	for _, r := range results {
		if r.Severity != redflag.SeverityRed {
			continue
		}
		spec, ok := m.ruleSpec(r.RuleID)
		if !ok || spec.RiskCategory == "" {
			continue
		}
		value := r.Value
		flags = append(flags, redflag.RedFlag{
			Module:       m.spec.ID,
			Severity:     redflag.SeverityRed,
			Title:        r.RuleName,
			Detail:       r.Reason,
			RiskCategory: spec.RiskCategory,
			Metric:       r.Metric,
			Value:        &value,
			Threshold:    r.Threshold,
			Period:       period,
		})
	}
	return flags
}

func (m *Module) ruleSpec(id string) (RuleSpec, bool) {
	for _, r := range m.rules {
		if r.spec.ID == id {
			return r.spec, true
		}
	}
	return RuleSpec{}, false
}
