package redflag

// Strictness controls how the aggregator treats contract-violating flags.
type Strictness string

const (
	// Strict rejects the whole batch with a ValidationError enumerating
	// every offending flag.
	Strict Strictness = "strict"
	// Lenient skips invalid flags and reports them in the result.
	Lenient Strictness = "lenient"
)

// Scenario names recognized by the aggregator. Scenarios are cross-category,
// non-linear risk patterns detected from flag co-occurrence.
const (
	ScenarioZombie         = "zombie"
	ScenarioRPTFraud       = "rpt_fraud"
	ScenarioEvergreening   = "evergreening"
	ScenarioAssetStripping = "asset_stripping"
	ScenarioWindowDressing = "window_dressing"
)

// ScenarioNames lists all recognized scenarios.
var ScenarioNames = []string{
	ScenarioZombie,
	ScenarioRPTFraud,
	ScenarioEvergreening,
	ScenarioAssetStripping,
	ScenarioWindowDressing,
}

// PatternRule grades one category's aggregate pressure from its flags.
type PatternRule func(flags []RedFlag) RiskLevel

// AggregatorConfig tunes the aggregation pipeline. Severity meaning is fixed
// doctrine; the weights attached to each severity are tunable.
type AggregatorConfig struct {
	Strictness       Strictness       `yaml:"strictness"`
	SeverityWeights  map[Severity]int `yaml:"severity_weights"`
	MaxSeverityScore int              `yaml:"max_severity_score"`

	// Scenario overrides: max-based overrides raise the penalty to at least
	// the given floor, additive overrides add on top, score caps bound any
	// downstream composite score (lowest cap wins).
	ScenarioFloors    map[string]int `yaml:"scenario_floors"`
	ScenarioAdditions map[string]int `yaml:"scenario_additions"`
	ScenarioScoreCaps map[string]int `yaml:"scenario_score_caps"`

	// Zombie detection threshold on the baseline penalty.
	ZombiePenaltyFloor int `yaml:"zombie_penalty_floor"`
	// Window-dressing heuristic: many yellows, zero red/critical.
	WindowDressingYellows int `yaml:"window_dressing_yellows"`

	// CategoryPriority orders critical issues for analysts (highest first).
	CategoryPriority  []RiskCategory `yaml:"category_priority"`
	MaxCriticalIssues int            `yaml:"max_critical_issues"`

	// EnforceCriticalDoctrine rejects CRITICAL flags on routine threshold
	// metrics that lack a scenario justification.
	EnforceCriticalDoctrine bool `yaml:"enforce_critical_doctrine"`

	// PatternRules grade per-category risk; categories without a rule
	// default to LOW. Not serializable, installed in code.
	PatternRules map[RiskCategory]PatternRule `yaml:"-"`
}

// DefaultAggregatorConfig returns the production aggregation settings.
func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{
		Strictness: Strict,
		SeverityWeights: map[Severity]int{
			SeverityGreen:    0,
			SeverityYellow:   5,
			SeverityRed:      10,
			SeverityCritical: 20,
		},
		MaxSeverityScore: 100,
		ScenarioFloors: map[string]int{
			ScenarioZombie:   60,
			ScenarioRPTFraud: 70,
		},
		ScenarioAdditions: map[string]int{
			ScenarioEvergreening:   15,
			ScenarioAssetStripping: 20,
		},
		ScenarioScoreCaps: map[string]int{
			ScenarioRPTFraud:     30,
			ScenarioZombie:       40,
			ScenarioEvergreening: 50,
		},
		ZombiePenaltyFloor:    60,
		WindowDressingYellows: 5,
		CategoryPriority: []RiskCategory{
			CategoryGovernanceFraud,
			CategoryLeverage,
			CategoryWorkingCapital,
			CategoryEarningsQuality,
			CategoryAssetUtilization,
			CategoryLiquidity,
		},
		MaxCriticalIssues:       10,
		EnforceCriticalDoctrine: true,
		PatternRules:            DefaultPatternRules(),
	}
}

// WithDefaults fills unset fields from DefaultAggregatorConfig. Fields the
// caller did set are kept, so a partial config never reverts other settings.
func (c AggregatorConfig) WithDefaults() AggregatorConfig {
	defaults := DefaultAggregatorConfig()
	if c.Strictness == "" {
		c.Strictness = defaults.Strictness
	}
	if c.SeverityWeights == nil {
		c.SeverityWeights = defaults.SeverityWeights
	}
	if c.MaxSeverityScore == 0 {
		c.MaxSeverityScore = defaults.MaxSeverityScore
	}
	if c.ScenarioFloors == nil {
		c.ScenarioFloors = defaults.ScenarioFloors
	}
	if c.ScenarioAdditions == nil {
		c.ScenarioAdditions = defaults.ScenarioAdditions
	}
	if c.ScenarioScoreCaps == nil {
		c.ScenarioScoreCaps = defaults.ScenarioScoreCaps
	}
	if c.ZombiePenaltyFloor == 0 {
		c.ZombiePenaltyFloor = defaults.ZombiePenaltyFloor
	}
	if c.WindowDressingYellows == 0 {
		c.WindowDressingYellows = defaults.WindowDressingYellows
	}
	if c.CategoryPriority == nil {
		c.CategoryPriority = defaults.CategoryPriority
	}
	if c.MaxCriticalIssues == 0 {
		c.MaxCriticalIssues = defaults.MaxCriticalIssues
	}
	if c.PatternRules == nil {
		c.PatternRules = defaults.PatternRules
	}
	return c
}

// DefaultPatternRules returns the per-category structural co-occurrence rules.
// Each rule sees only its own category's flags.
func DefaultPatternRules() map[RiskCategory]PatternRule {
	return map[RiskCategory]PatternRule{
		CategoryGovernanceFraud: func(flags []RedFlag) RiskLevel {
			c := CountSeverities(flags)
			if c.Critical >= 1 {
				return RiskVeryHigh
			}
			if c.Red >= 2 {
				return RiskHigh
			}
			return RiskLow
		},
		CategoryLeverage: func(flags []RedFlag) RiskLevel {
			c := CountSeverities(flags)
			if c.Critical >= 1 || c.Red >= 2 {
				return RiskVeryHigh
			}
			if c.Red == 1 {
				return RiskHigh
			}
			return RiskLow
		},
		CategoryLiquidity: func(flags []RedFlag) RiskLevel {
			c := CountSeverities(flags)
			if c.Critical >= 1 {
				return RiskVeryHigh
			}
			if c.Red >= 3 {
				return RiskHigh
			}
			if c.Red >= 1 {
				return RiskMedium
			}
			return RiskLow
		},
		CategoryEarningsQuality: func(flags []RedFlag) RiskLevel {
			c := CountSeverities(flags)
			if c.Critical >= 1 || c.Red >= 2 {
				return RiskHigh
			}
			if c.Red >= 1 {
				return RiskMedium
			}
			return RiskLow
		},
		CategoryWorkingCapital: func(flags []RedFlag) RiskLevel {
			c := CountSeverities(flags)
			if c.Red >= 3 {
				return RiskHigh
			}
			if c.Yellow >= 4 {
				return RiskMedium
			}
			return RiskLow
		},
		CategoryAssetUtilization: func(flags []RedFlag) RiskLevel {
			c := CountSeverities(flags)
			if c.Red >= 2 {
				return RiskHigh
			}
			return RiskLow
		},
	}
}
