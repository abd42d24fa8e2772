package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"finhealth/internal/persistence"
)

func newMockRepo(t *testing.T) (persistence.AnalysisRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewAnalysisRepo(sqlx.NewDb(db, "postgres"), time.Second), mock
}

func sampleRun() persistence.AnalysisRun {
	capVal := 40
	return persistence.AnalysisRun{
		RunID:        "run-1",
		Company:      "ACME",
		Period:       "FY2025",
		Status:       "completed",
		OverallScore: 52,
		RedFlagIndex: 65,
		ScoreCap:     &capVal,
		Result:       json.RawMessage(`{"run_id":"run-1"}`),
		CreatedAt:    time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}
}

func runColumns() []string {
	return []string{
		"run_id", "company", "period", "status",
		"overall_score", "red_flag_index", "score_cap", "result", "created_at",
	}
}

func TestSaveRun(t *testing.T) {
	repo, mock := newMockRepo(t)
	run := sampleRun()

	mock.ExpectExec("INSERT INTO analysis_runs").
		WithArgs(run.RunID, run.Company, run.Period, run.Status,
			run.OverallScore, run.RedFlagIndex, run.ScoreCap, []byte(run.Result), run.CreatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.SaveRun(context.Background(), run))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRunFillsCreatedAt(t *testing.T) {
	repo, mock := newMockRepo(t)
	run := sampleRun()
	run.CreatedAt = time.Time{}

	mock.ExpectExec("INSERT INTO analysis_runs").
		WithArgs(run.RunID, run.Company, run.Period, run.Status,
			run.OverallScore, run.RedFlagIndex, run.ScoreCap, []byte(run.Result), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.SaveRun(context.Background(), run))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRunError(t *testing.T) {
	repo, mock := newMockRepo(t)
	run := sampleRun()

	mock.ExpectExec("INSERT INTO analysis_runs").
		WillReturnError(context.DeadlineExceeded)

	err := repo.SaveRun(context.Background(), run)
	require.Error(t, err)
	require.Contains(t, err.Error(), "run-1")
}

func TestLatestRun(t *testing.T) {
	repo, mock := newMockRepo(t)
	run := sampleRun()

	rows := sqlmock.NewRows(runColumns()).
		AddRow(run.RunID, run.Company, run.Period, run.Status,
			run.OverallScore, run.RedFlagIndex, run.ScoreCap, []byte(run.Result), run.CreatedAt)
	mock.ExpectQuery("FROM analysis_runs").
		WithArgs("ACME").
		WillReturnRows(rows)

	got, err := repo.LatestRun(context.Background(), "ACME")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, run.RunID, got.RunID)
	require.Equal(t, run.OverallScore, got.OverallScore)
	require.NotNil(t, got.ScoreCap)
	require.Equal(t, 40, *got.ScoreCap)
}

func TestLatestRunNoHistory(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("FROM analysis_runs").
		WithArgs("UNKNOWN").
		WillReturnRows(sqlmock.NewRows(runColumns()))

	got, err := repo.LatestRun(context.Background(), "UNKNOWN")
	require.NoError(t, err, "no history must not be an error")
	require.Nil(t, got)
}

func TestRunsByCompany(t *testing.T) {
	repo, mock := newMockRepo(t)
	run := sampleRun()

	rows := sqlmock.NewRows(runColumns()).
		AddRow("run-2", run.Company, "FY2025", run.Status, 48, 70, nil, []byte(`{}`), run.CreatedAt.Add(time.Hour)).
		AddRow("run-1", run.Company, "FY2024", run.Status, 52, 65, nil, []byte(`{}`), run.CreatedAt)
	mock.ExpectQuery("FROM analysis_runs").
		WithArgs("ACME", 5).
		WillReturnRows(rows)

	got, err := repo.RunsByCompany(context.Background(), "ACME", 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "run-2", got[0].RunID)
}

func TestRunsByCompanyDefaultLimit(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("FROM analysis_runs").
		WithArgs("ACME", 20).
		WillReturnRows(sqlmock.NewRows(runColumns()))

	got, err := repo.RunsByCompany(context.Background(), "ACME", 0)
	require.NoError(t, err)
	require.Empty(t, got)
}
