package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"finhealth/internal/persistence"
)

// analysisRepo implements AnalysisRepo for PostgreSQL.
type analysisRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewAnalysisRepo creates a PostgreSQL analysis repository.
func NewAnalysisRepo(db *sqlx.DB, timeout time.Duration) persistence.AnalysisRepo {
	return &analysisRepo{db: db, timeout: timeout}
}

// SaveRun inserts one finished analysis run.
func (r *analysisRepo) SaveRun(ctx context.Context, run persistence.AnalysisRun) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO analysis_runs
		(run_id, company, period, status, overall_score, red_flag_index, score_cap, result, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, query,
		run.RunID, run.Company, run.Period, run.Status,
		run.OverallScore, run.RedFlagIndex, run.ScoreCap, run.Result, createdAt)
	if err != nil {
		return fmt.Errorf("failed to save analysis run %s: %w", run.RunID, err)
	}
	return nil
}

// LatestRun returns the newest run for a company, or nil without error when
// none exists.
func (r *analysisRepo) LatestRun(ctx context.Context, company string) (*persistence.AnalysisRun, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT run_id, company, period, status, overall_score, red_flag_index, score_cap, result, created_at
		FROM analysis_runs
		WHERE company = $1
		ORDER BY created_at DESC
		LIMIT 1`

	var run persistence.AnalysisRun
	err := r.db.GetContext(ctx, &run, query, company)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest run for %s: %w", company, err)
	}
	return &run, nil
}

// RunsByCompany returns up to limit recent runs, newest first.
func (r *analysisRepo) RunsByCompany(ctx context.Context, company string, limit int) ([]persistence.AnalysisRun, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT run_id, company, period, status, overall_score, red_flag_index, score_cap, result, created_at
		FROM analysis_runs
		WHERE company = $1
		ORDER BY created_at DESC
		LIMIT $2`

	var runs []persistence.AnalysisRun
	if err := r.db.SelectContext(ctx, &runs, query, company, limit); err != nil {
		return nil, fmt.Errorf("failed to load runs for %s: %w", company, err)
	}
	return runs, nil
}
