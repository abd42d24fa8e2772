package narrative

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"finhealth/internal/redflag"
)

func sampleResult() *redflag.AggregationResult {
	capVal := 40
	return &redflag.AggregationResult{
		CompanyID:     "ACME",
		SeverityScore: 65,
		RedFlagIndex:  65,
		Counts:        redflag.SeverityCounts{Critical: 1, Red: 2, Yellow: 1},
		CategoryRisks: map[redflag.RiskCategory]redflag.RiskLevel{
			redflag.CategoryLiquidity:        redflag.RiskHigh,
			redflag.CategoryLeverage:         redflag.RiskVeryHigh,
			redflag.CategoryEarningsQuality:  redflag.RiskLow,
			redflag.CategoryWorkingCapital:   redflag.RiskLow,
			redflag.CategoryGovernanceFraud:  redflag.RiskLow,
			redflag.CategoryAssetUtilization: redflag.RiskLow,
		},
		Scenarios: map[string]bool{redflag.ScenarioZombie: true},
		ScoreCap:  &capVal,
		TopCriticalIssues: []redflag.CriticalIssue{
			{Module: "borrowings", Title: "Covenant breach", Category: redflag.CategoryLeverage},
		},
		Flags: []redflag.RedFlag{{}, {}, {}, {}},
	}
}

func TestReporterNarrate(t *testing.T) {
	text, err := NewReporter().Narrate(context.Background(), sampleResult())
	require.NoError(t, err)

	require.Contains(t, text, "Red flag review for ACME")
	require.Contains(t, text, "4 flag(s)")
	require.Contains(t, text, "3 severity tier(s)")
	require.Contains(t, text, "red flag index 65/100")
	require.Contains(t, text, "Liquidity Stress: HIGH")
	require.Contains(t, text, "Leverage & Debt Risk: VERY_HIGH")
	require.NotContains(t, text, "Earnings Quality Risk", "LOW categories stay out of the narrative")
	require.Contains(t, text, "Scenario detected: zombie")
	require.Contains(t, text, "capped at 40")
	require.Contains(t, text, "Covenant breach (borrowings)")
}

func TestReporterDeterministic(t *testing.T) {
	r := NewReporter()
	first, err := r.Narrate(context.Background(), sampleResult())
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		again, err := r.Narrate(context.Background(), sampleResult())
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

type fakeGenerator struct {
	text  string
	err   error
	calls int
	slow  bool
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.calls++
	if g.slow {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return g.text, g.err
}

func testBreakerConfig() BreakerConfig {
	cfg := DefaultBreakerConfig()
	cfg.CallTimeout = 50 * time.Millisecond
	cfg.ConsecutiveFailures = 2
	return cfg
}

func TestBreakerNarratorUsesGenerator(t *testing.T) {
	gen := &fakeGenerator{text: "external narrative"}
	n := NewBreakerNarrator(gen, testBreakerConfig())

	text, err := n.Narrate(context.Background(), sampleResult())
	require.NoError(t, err)
	require.Equal(t, "external narrative", text)
	require.Equal(t, 1, gen.calls)
}

func TestBreakerNarratorFallsBackOnError(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("service unavailable")}
	n := NewBreakerNarrator(gen, testBreakerConfig())

	text, err := n.Narrate(context.Background(), sampleResult())
	require.NoError(t, err, "generator failure must never surface as an error")
	require.Contains(t, text, "Red flag review for ACME")
}

func TestBreakerNarratorFallsBackOnEmptyOutput(t *testing.T) {
	gen := &fakeGenerator{text: "   \n"}
	n := NewBreakerNarrator(gen, testBreakerConfig())

	text, err := n.Narrate(context.Background(), sampleResult())
	require.NoError(t, err)
	require.Contains(t, text, "Red flag review for ACME")
}

func TestBreakerNarratorFallsBackOnTimeout(t *testing.T) {
	gen := &fakeGenerator{text: "too late", slow: true}
	n := NewBreakerNarrator(gen, testBreakerConfig())

	text, err := n.Narrate(context.Background(), sampleResult())
	require.NoError(t, err)
	require.Contains(t, text, "Red flag review for ACME")
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("down")}
	n := NewBreakerNarrator(gen, testBreakerConfig())

	for i := 0; i < 5; i++ {
		text, err := n.Narrate(context.Background(), sampleResult())
		require.NoError(t, err)
		require.Contains(t, text, "Red flag review for ACME")
	}
	// After two consecutive failures the breaker is open and stops calling
	// the generator.
	require.Equal(t, 2, gen.calls)
}

func TestBuildPromptContent(t *testing.T) {
	prompt := buildPrompt(sampleResult())
	require.True(t, strings.HasPrefix(prompt, "Write a concise financial risk narrative for ACME."))
	require.Contains(t, prompt, "Red flag index: 65/100")
	require.Contains(t, prompt, "1 critical, 2 red, 1 yellow")
	require.Contains(t, prompt, "leverage: VERY_HIGH")
	require.Contains(t, prompt, "Detected scenario: zombie")
}
