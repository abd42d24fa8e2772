package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	appName = "finhealth"
	version = "v1.2.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Financial health scoring from multi-year accounting data",
		Version: version,
		Long: `finhealth computes a bounded health score per analysis module (borrowings,
liquidity, working capital, equity funding mix, quality of earnings, asset
quality) and aggregates cross-module red flags into a normalized risk index
with scenario detection and score caps.`,
	}

	rootCmd.PersistentFlags().String("config", "config/modules.yaml", "Path to module configuration")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (trace|debug|info|warn|error)")

	rootCmd.AddCommand(newAnalyzeCmd())
	rootCmd.AddCommand(newServeCmd())

	cobra.OnInitialize(func() {
		levelName, _ := rootCmd.PersistentFlags().GetString("log-level")
		level, err := zerolog.ParseLevel(levelName)
		if err != nil {
			level = zerolog.InfoLevel
		}
		zerolog.SetGlobalLevel(level)
	})

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
