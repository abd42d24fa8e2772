// Package narrative turns aggregation results into analyst-readable text.
// Narrative is best-effort enrichment: the deterministic numeric outputs are
// computed before any narrator runs and never depend on one succeeding.
package narrative

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"finhealth/internal/redflag"
)

// Generator is an external free-text generator (typically an LLM service).
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Reporter is the deterministic fallback narrator. It builds a plain
// summary from the aggregation result without any external call.
type Reporter struct{}

// NewReporter creates the deterministic narrator.
func NewReporter() *Reporter { return &Reporter{} }

// Narrate renders a fixed-template narrative from the numeric results.
func (r *Reporter) Narrate(_ context.Context, result *redflag.AggregationResult) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Red flag review for %s: %d flag(s) across %d severity tier(s), red flag index %d/100.",
		result.CompanyID, len(result.Flags), countTiers(result.Counts), result.RedFlagIndex)

	for _, cat := range redflag.Categories {
		level := result.CategoryRisks[cat]
		if level == redflag.RiskLow {
			continue
		}
		fmt.Fprintf(&b, " %s: %s.", redflag.CategoryDisplayNames[cat], level)
	}
	for _, name := range redflag.ScenarioNames {
		if result.Scenarios[name] {
			fmt.Fprintf(&b, " Scenario detected: %s.", name)
		}
	}
	if result.ScoreCap != nil {
		fmt.Fprintf(&b, " Composite score capped at %d.", *result.ScoreCap)
	}
	if len(result.TopCriticalIssues) > 0 {
		fmt.Fprintf(&b, " Top critical issue: %s (%s).",
			result.TopCriticalIssues[0].Title, result.TopCriticalIssues[0].Module)
	}
	return b.String(), nil
}

func countTiers(c redflag.SeverityCounts) int {
	tiers := 0
	for _, n := range []int{c.Critical, c.Red, c.Yellow, c.Green} {
		if n > 0 {
			tiers++
		}
	}
	return tiers
}

// BreakerConfig tunes the circuit breaker guarding the external generator.
type BreakerConfig struct {
	MaxRequests         uint32        `yaml:"max_requests"`
	Interval            time.Duration `yaml:"interval"`
	Timeout             time.Duration `yaml:"timeout"`
	ConsecutiveFailures uint32        `yaml:"consecutive_failures"`
	CallTimeout         time.Duration `yaml:"call_timeout"`
}

// DefaultBreakerConfig returns production breaker settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:         1,
		Interval:            60 * time.Second,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 3,
		CallTimeout:         10 * time.Second,
	}
}

// BreakerNarrator wraps an external Generator behind a circuit breaker and
// falls back to the deterministic Reporter when the generator is slow, down
// or tripped. It never returns an error for a generator failure.
type BreakerNarrator struct {
	generator Generator
	fallback  *Reporter
	breaker   *gobreaker.CircuitBreaker
	timeout   time.Duration
}

// NewBreakerNarrator wraps generator with breaker protection.
func NewBreakerNarrator(generator Generator, cfg BreakerConfig) *BreakerNarrator {
	settings := gobreaker.Settings{
		Name:        "narrative-generator",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("narrative breaker state change")
		},
	}
	return &BreakerNarrator{
		generator: generator,
		fallback:  NewReporter(),
		breaker:   gobreaker.NewCircuitBreaker(settings),
		timeout:   cfg.CallTimeout,
	}
}

// Narrate asks the external generator for a narrative; on breaker-open,
// timeout or generator error it falls back to the deterministic report.
func (n *BreakerNarrator) Narrate(ctx context.Context, result *redflag.AggregationResult) (string, error) {
	prompt := buildPrompt(result)
	out, err := n.breaker.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, n.timeout)
		defer cancel()
		return n.generator.Generate(callCtx, prompt)
	})
	if err != nil {
		log.Warn().Err(err).Str("company", result.CompanyID).
			Msg("external narrative unavailable, using deterministic report")
		return n.fallback.Narrate(ctx, result)
	}
	text, _ := out.(string)
	if strings.TrimSpace(text) == "" {
		return n.fallback.Narrate(ctx, result)
	}
	return text, nil
}

// buildPrompt summarizes the numeric results for the external generator.
func buildPrompt(result *redflag.AggregationResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a concise financial risk narrative for %s.\n", result.CompanyID)
	fmt.Fprintf(&b, "Red flag index: %d/100. Counts: %d critical, %d red, %d yellow.\n",
		result.RedFlagIndex, result.Counts.Critical, result.Counts.Red, result.Counts.Yellow)
	for _, cat := range redflag.Categories {
		fmt.Fprintf(&b, "%s: %s\n", cat, result.CategoryRisks[cat])
	}
	for _, name := range redflag.ScenarioNames {
		if result.Scenarios[name] {
			fmt.Fprintf(&b, "Detected scenario: %s\n", name)
		}
	}
	return b.String()
}
