package redflag

import (
	"context"
	"sort"

	"github.com/rs/zerolog/log"
)

// Narrator turns a finished aggregation into free text. It is best-effort
// enrichment: failures never affect the numeric outputs.
type Narrator interface {
	Narrate(ctx context.Context, result *AggregationResult) (string, error)
}

// CriticalIssue is one entry in the ranked CRITICAL list.
type CriticalIssue struct {
	Module   string       `json:"module"`
	Category RiskCategory `json:"category"`
	Title    string       `json:"title"`
	Detail   string       `json:"detail"`
	Period   string       `json:"period,omitempty"`
}

// AggregationInput carries one batch of per-module flags into the aggregator.
// ScenarioSignals are explicit, authoritative markers from upstream modules;
// a present key takes precedence over heuristic detection.
type AggregationInput struct {
	CompanyID       string               `json:"company_id"`
	ModuleFlags     map[string][]RedFlag `json:"module_red_flags"`
	ScenarioSignals map[string]bool      `json:"scenario_signals,omitempty"`
}

// AggregationResult is the read-only output of one aggregation call.
type AggregationResult struct {
	CompanyID         string                     `json:"company_id"`
	SeverityScore     int                        `json:"severity_score"`
	RedFlagIndex      int                        `json:"red_flag_index"`
	Counts            SeverityCounts             `json:"counts"`
	CategoryRisks     map[RiskCategory]RiskLevel `json:"category_risks"`
	Scenarios         map[string]bool            `json:"scenarios"`
	ScoreCap          *int                       `json:"score_cap"`
	TopCriticalIssues []CriticalIssue            `json:"top_critical_issues"`
	Flags             []RedFlag                  `json:"flags"`
	Skipped           []Violation                `json:"skipped,omitempty"`
	Narrative         string                     `json:"narrative,omitempty"`
}

// Aggregator combines red flags from all modules into a normalized risk
// index. The pipeline is deterministic: identical inputs always produce
// identical numeric outputs regardless of module submission order.
type Aggregator struct {
	cfg      AggregatorConfig
	narrator Narrator
}

// NewAggregator creates an aggregator. A nil narrator disables step 13.
func NewAggregator(cfg AggregatorConfig, narrator Narrator) *Aggregator {
	return &Aggregator{cfg: cfg.WithDefaults(), narrator: narrator}
}

// Aggregate runs the full pipeline over one batch. In Strict mode any
// contract violation rejects the whole batch with a *ValidationError; in
// Lenient mode invalid flags are skipped and reported in the result.
// Input flags are never mutated.
func (a *Aggregator) Aggregate(ctx context.Context, input AggregationInput) (*AggregationResult, error) {
	// Steps 1-2: validate every flag, then flatten in stable module order.
	flags, skipped, err := a.validateAndFlatten(input)
	if err != nil {
		return nil, err
	}

	// Step 3: severity counts.
	counts := CountSeverities(flags)

	// Step 4: baseline penalty from configured severity weights.
	penalty := counts.Critical*a.cfg.SeverityWeights[SeverityCritical] +
		counts.Red*a.cfg.SeverityWeights[SeverityRed] +
		counts.Yellow*a.cfg.SeverityWeights[SeverityYellow] +
		counts.Green*a.cfg.SeverityWeights[SeverityGreen]

	// Step 5: group by canonical category.
	grouped := groupByCategory(flags)

	// Step 6: per-category pattern detection.
	categoryRisks := a.applyPatternRules(grouped)

	// Steps 7-8: scenario detection and overrides.
	scenarios := a.detectScenarios(grouped, counts, penalty, categoryRisks, input.ScenarioSignals)
	penalty = a.applyScenarioOverrides(penalty, scenarios)

	// Step 9: severity capping.
	severityScore := penalty
	if severityScore > a.cfg.MaxSeverityScore {
		severityScore = a.cfg.MaxSeverityScore
	}
	if severityScore < 0 {
		severityScore = 0
	}

	// Step 10: the capped penalty is already on the 0-100 index scale.
	redFlagIndex := severityScore

	// Step 11: scenario score caps (lowest wins).
	scoreCap := a.determineScoreCap(scenarios)

	// Step 12: ranked CRITICAL extraction.
	critical := a.extractCriticalIssues(flags)

	result := &AggregationResult{
		CompanyID:         input.CompanyID,
		SeverityScore:     severityScore,
		RedFlagIndex:      redFlagIndex,
		Counts:            counts,
		CategoryRisks:     categoryRisks,
		Scenarios:         scenarios,
		ScoreCap:          scoreCap,
		TopCriticalIssues: critical,
		Flags:             flags,
		Skipped:           skipped,
	}

	// Step 13: optional narrative, never authoritative.
	if a.narrator != nil {
		narrative, nerr := a.narrator.Narrate(ctx, result)
		if nerr != nil {
			log.Warn().Err(nerr).Str("company", input.CompanyID).
				Msg("narrative generation failed, returning numeric result only")
		} else {
			result.Narrative = narrative
		}
	}

	// Step 14: assembled result.
	log.Debug().Str("company", input.CompanyID).
		Int("flags", len(flags)).
		Int("severity_score", severityScore).
		Int("index", redFlagIndex).
		Msg("red flag aggregation complete")
	return result, nil
}

// validateAndFlatten runs steps 1 and 2: every flag passes the contract
// check before it is counted, and module lists are merged into one sequence
// ordered by module key so numeric totals are submission-order independent.
func (a *Aggregator) validateAndFlatten(input AggregationInput) ([]RedFlag, []Violation, error) {
	moduleKeys := make([]string, 0, len(input.ModuleFlags))
	for k := range input.ModuleFlags {
		moduleKeys = append(moduleKeys, k)
	}
	sort.Strings(moduleKeys)

	var flags []RedFlag
	var violations []Violation
	for _, module := range moduleKeys {
		for _, f := range input.ModuleFlags[module] {
			if f.Module == "" {
				f.Module = module
			}
			err := Validate(f)
			if err == nil && a.cfg.EnforceCriticalDoctrine {
				err = checkCriticalDoctrine(f, input.ScenarioSignals)
			}
			if err != nil {
				violations = append(violations, Violation{
					Module: module,
					Title:  f.Title,
					Reason: err.Error(),
					Flag:   f,
				})
				continue
			}
			flags = append(flags, f)
		}
	}

	if len(violations) > 0 && a.cfg.Strictness == Strict {
		return nil, nil, &ValidationError{Violations: violations}
	}
	return flags, violations, nil
}

func groupByCategory(flags []RedFlag) map[RiskCategory][]RedFlag {
	grouped := make(map[RiskCategory][]RedFlag)
	for _, f := range flags {
		grouped[f.RiskCategory] = append(grouped[f.RiskCategory], f)
	}
	return grouped
}

// applyPatternRules grades every canonical category, defaulting to LOW so
// the output taxonomy is always complete.
func (a *Aggregator) applyPatternRules(grouped map[RiskCategory][]RedFlag) map[RiskCategory]RiskLevel {
	out := make(map[RiskCategory]RiskLevel, len(Categories))
	for _, cat := range Categories {
		out[cat] = RiskLow
	}
	for cat, catFlags := range grouped {
		if rule, ok := a.cfg.PatternRules[cat]; ok {
			out[cat] = rule(catFlags)
		}
	}
	return out
}

// detectScenarios scans the batch for named non-linear risk patterns.
// Explicit signals are authoritative: a key present in explicit wins over
// any heuristic for that scenario.
func (a *Aggregator) detectScenarios(
	grouped map[RiskCategory][]RedFlag,
	counts SeverityCounts,
	penalty int,
	categoryRisks map[RiskCategory]RiskLevel,
	explicit map[string]bool,
) map[string]bool {
	scenarios := make(map[string]bool, len(ScenarioNames))
	for _, name := range ScenarioNames {
		scenarios[name] = false
	}
	for name, on := range explicit {
		if _, known := scenarios[name]; known {
			scenarios[name] = on
		}
	}
	overridden := func(name string) bool {
		_, ok := explicit[name]
		return ok
	}

	// Explicit marker metrics on flags raise fraud-type scenarios. Fraud is
	// never inferred from governance severity alone.
	for _, catFlags := range grouped {
		for _, f := range catFlags {
			switch f.Metric {
			case "related_party", "rpt", "rpt_fraud":
				if !overridden(ScenarioRPTFraud) {
					scenarios[ScenarioRPTFraud] = true
				}
			case "evergreening":
				if !overridden(ScenarioEvergreening) {
					scenarios[ScenarioEvergreening] = true
				}
			case "asset_stripping":
				if !overridden(ScenarioAssetStripping) {
					scenarios[ScenarioAssetStripping] = true
				}
			case "window_dressing":
				if !overridden(ScenarioWindowDressing) {
					scenarios[ScenarioWindowDressing] = true
				}
			}
		}
	}

	// Zombie: sustained penalty plus high liquidity or earnings stress.
	high := func(l RiskLevel) bool { return l == RiskHigh || l == RiskVeryHigh }
	if !overridden(ScenarioZombie) &&
		penalty >= a.cfg.ZombiePenaltyFloor &&
		(high(categoryRisks[CategoryLiquidity]) || high(categoryRisks[CategoryEarningsQuality])) {
		scenarios[ScenarioZombie] = true
	}

	// Asset stripping: severe governance findings alongside high asset
	// utilization risk.
	if !overridden(ScenarioAssetStripping) && high(categoryRisks[CategoryAssetUtilization]) {
		for _, f := range grouped[CategoryGovernanceFraud] {
			if f.Severity == SeverityCritical {
				scenarios[ScenarioAssetStripping] = true
				break
			}
		}
	}

	// Window dressing: many early-warning yellows with no red or critical.
	if !overridden(ScenarioWindowDressing) &&
		counts.Yellow >= a.cfg.WindowDressingYellows &&
		counts.Red == 0 && counts.Critical == 0 {
		scenarios[ScenarioWindowDressing] = true
	}

	return scenarios
}

// applyScenarioOverrides raises the penalty to each detected scenario's
// floor, then applies additive overrides on top.
func (a *Aggregator) applyScenarioOverrides(penalty int, scenarios map[string]bool) int {
	for name, floor := range a.cfg.ScenarioFloors {
		if scenarios[name] && penalty < floor {
			penalty = floor
		}
	}
	for name, add := range a.cfg.ScenarioAdditions {
		if scenarios[name] {
			penalty += add
		}
	}
	return penalty
}

// determineScoreCap returns the strictest applicable downstream score
// ceiling, or nil when no capping scenario was detected.
func (a *Aggregator) determineScoreCap(scenarios map[string]bool) *int {
	var lowest *int
	for name, c := range a.cfg.ScenarioScoreCaps {
		if !scenarios[name] {
			continue
		}
		if lowest == nil || c < *lowest {
			v := c
			lowest = &v
		}
	}
	return lowest
}

// extractCriticalIssues ranks CRITICAL flags by category priority, then by
// period (most recent label first), then by module name.
func (a *Aggregator) extractCriticalIssues(flags []RedFlag) []CriticalIssue {
	priority := make(map[RiskCategory]int, len(a.cfg.CategoryPriority))
	for i, cat := range a.cfg.CategoryPriority {
		priority[cat] = i
	}
	rank := func(f RedFlag) int {
		if p, ok := priority[f.RiskCategory]; ok {
			return p
		}
		return len(a.cfg.CategoryPriority)
	}

	var critical []RedFlag
	for _, f := range flags {
		if f.Severity == SeverityCritical {
			critical = append(critical, f)
		}
	}
	sort.SliceStable(critical, func(i, j int) bool {
		if rank(critical[i]) != rank(critical[j]) {
			return rank(critical[i]) < rank(critical[j])
		}
		if critical[i].Period != critical[j].Period {
			return critical[i].Period > critical[j].Period
		}
		return critical[i].Module < critical[j].Module
	})

	limit := a.cfg.MaxCriticalIssues
	if limit <= 0 || limit > len(critical) {
		limit = len(critical)
	}
	out := make([]CriticalIssue, 0, limit)
	for _, f := range critical[:limit] {
		out = append(out, CriticalIssue{
			Module:   f.Module,
			Category: f.RiskCategory,
			Title:    f.Title,
			Detail:   f.Detail,
			Period:   f.Period,
		})
	}
	return out
}
