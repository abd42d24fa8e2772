// Package persistence defines the storage contracts for analysis history.
// Storage is optional: the scoring pipeline runs fully in memory and repos
// only record finished results.
package persistence

import (
	"context"
	"encoding/json"
	"time"
)

// AnalysisRun is one stored workflow outcome.
type AnalysisRun struct {
	RunID        string          `db:"run_id" json:"run_id"`
	Company      string          `db:"company" json:"company"`
	Period       string          `db:"period" json:"period"`
	Status       string          `db:"status" json:"status"`
	OverallScore int             `db:"overall_score" json:"overall_score"`
	RedFlagIndex int             `db:"red_flag_index" json:"red_flag_index"`
	ScoreCap     *int            `db:"score_cap" json:"score_cap,omitempty"`
	Result       json.RawMessage `db:"result" json:"result"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// AnalysisRepo stores and retrieves analysis runs.
type AnalysisRepo interface {
	// SaveRun inserts one finished run.
	SaveRun(ctx context.Context, run AnalysisRun) error
	// LatestRun returns the most recent run for a company, or nil when the
	// company has no history.
	LatestRun(ctx context.Context, company string) (*AnalysisRun, error)
	// RunsByCompany returns up to limit recent runs, newest first.
	RunsByCompany(ctx context.Context, company string, limit int) ([]AnalysisRun, error)
}
