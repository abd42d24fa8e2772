package engine

import (
	"fmt"
	"sort"

	"finhealth/internal/redflag"
)

// ScoreBand maps a minimum score to a qualitative interpretation.
type ScoreBand struct {
	Min   int    `yaml:"min"`
	Label string `yaml:"label"`
}

// ScoringConfig holds the weights folding rule classifications into one
// bounded module score, plus the interpretation bands.
type ScoringConfig struct {
	BaseScore     int `yaml:"base_score"`
	RedPenalty    int `yaml:"red_penalty"`
	YellowPenalty int `yaml:"yellow_penalty"`
	GreenBonus    int `yaml:"green_bonus"`
	MinScore      int `yaml:"min_score"`
	MaxScore      int `yaml:"max_score"`

	// Bands must be monotonic and non-overlapping, highest minimum first.
	Bands []ScoreBand `yaml:"bands"`
}

// DefaultScoringConfig returns the shipped scoring weights and bands.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		BaseScore:     70,
		RedPenalty:    10,
		YellowPenalty: 5,
		GreenBonus:    1,
		MinScore:      0,
		MaxScore:      100,
		Bands: []ScoreBand{
			{Min: 80, Label: "Excellent"},
			{Min: 65, Label: "Good"},
			{Min: 50, Label: "Fair"},
			{Min: 35, Label: "Poor"},
			{Min: 0, Label: "Critical"},
		},
	}
}

// Validate checks that the bands are strictly decreasing and cover zero.
func (c ScoringConfig) Validate() error {
	if len(c.Bands) == 0 {
		return fmt.Errorf("scoring config has no interpretation bands")
	}
	if !sort.SliceIsSorted(c.Bands, func(i, j int) bool { return c.Bands[i].Min > c.Bands[j].Min }) {
		return fmt.Errorf("interpretation bands must be ordered by descending minimum")
	}
	for i := 1; i < len(c.Bands); i++ {
		if c.Bands[i].Min == c.Bands[i-1].Min {
			return fmt.Errorf("overlapping interpretation bands at minimum %d", c.Bands[i].Min)
		}
	}
	if c.Bands[len(c.Bands)-1].Min > c.MinScore {
		return fmt.Errorf("lowest interpretation band must cover the minimum score")
	}
	return nil
}

// Score folds a module's rule classifications into a single bounded score
// and its interpretation. Deterministic: identical rule results always
// produce identical scores.
func Score(results []RuleResult, cfg ScoringConfig) (int, string) {
	score := cfg.BaseScore
	for _, r := range results {
		switch r.Severity {
		case redflag.SeverityRed:
			score -= cfg.RedPenalty
		case redflag.SeverityYellow:
			score -= cfg.YellowPenalty
		case redflag.SeverityGreen:
			score += cfg.GreenBonus
		}
	}
	if score < cfg.MinScore {
		score = cfg.MinScore
	}
	if score > cfg.MaxScore {
		score = cfg.MaxScore
	}
	return score, interpret(score, cfg.Bands)
}

func interpret(score int, bands []ScoreBand) string {
	for _, b := range bands {
		if score >= b.Min {
			return b.Label
		}
	}
	if len(bands) > 0 {
		return bands[len(bands)-1].Label
	}
	return ""
}
