package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"finhealth/internal/config"
	"finhealth/internal/engine"
	"finhealth/internal/narrative"
	"finhealth/internal/router"
	"finhealth/internal/telemetry"
)

// analyzeInput is the on-disk shape accepted by `finhealth analyze --input`.
// Historical periods are listed oldest first.
type analyzeInput struct {
	Company         string          `json:"company"`
	Period          string          `json:"period"`
	Current         engine.Fields   `json:"current_data"`
	Historical      []engine.Fields `json:"historical_data,omitempty"`
	ScenarioSignals map[string]bool `json:"scenario_signals,omitempty"`
}

func newAnalyzeCmd() *cobra.Command {
	var (
		inputPath string
		modules   []string
		summary   bool
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run the scoring pipeline for one company and print the result",
		Long: `Reads a JSON file with the company's current and historical field values,
runs every requested analysis module, aggregates red flags and prints the
full result as JSON (or a markdown summary with --summary).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			return runAnalyze(cmd.Context(), configPath, inputPath, modules, summary, timeout)
		},
	}

	cmd.Flags().StringVar(&inputPath, "input", "", "Path to JSON input file (required)")
	cmd.Flags().StringSliceVar(&modules, "modules", nil, "Modules to run (default: all enabled)")
	cmd.Flags().BoolVar(&summary, "summary", false, "Print the markdown summary instead of JSON")
	cmd.Flags().DurationVar(&timeout, "timeout", 60*time.Second, "Analysis timeout")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func runAnalyze(ctx context.Context, configPath, inputPath string, modules []string, summary bool, timeout time.Duration) error {
	store, err := config.NewStore(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	snap := store.Snapshot()

	raw, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	var in analyzeInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return fmt.Errorf("parse input: %w", err)
	}
	if in.Company == "" {
		return fmt.Errorf("input is missing company")
	}
	if len(in.Current) == 0 {
		return fmt.Errorf("input is missing current_data")
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	metrics := telemetry.New()
	narrator := narrative.NewReporter()
	rt := router.New(narrator, metrics)

	start := time.Now()
	result := rt.Run(ctx, snap, router.Request{
		Company:         in.Company,
		Period:          in.Period,
		Current:         in.Current,
		Historical:      in.Historical,
		Modules:         modules,
		ScenarioSignals: in.ScenarioSignals,
	})

	log.Info().
		Str("company", in.Company).
		Str("status", result.Status).
		Int("modules_completed", len(result.ModulesCompleted)).
		Int("modules_failed", len(result.ModulesFailed)).
		Dur("elapsed", time.Since(start)).
		Msg("analysis finished")

	if summary {
		fmt.Println(result.Summary)
		return nil
	}
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
