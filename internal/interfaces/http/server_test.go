package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"finhealth/internal/config"
	"finhealth/internal/persistence"
	"finhealth/internal/router"
	"finhealth/internal/telemetry"
)

const serverTestConfig = `
modules:
  - id: borrowings
    name: Borrowings
    enabled: true
    metrics:
      - name: de_ratio
        expr: total_debt / total_equity
        requires: [total_equity]
    rules:
      - id: B1
        name: Debt-to-equity ratio
        metric: de_ratio
        red: "> 3.0"
        yellow: "> 2.0"
        green: "<= 2.0"
        risk_category: leverage
`

func newTestServer(t *testing.T, repo persistence.AnalysisRepo) (*Server, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "modules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(serverTestConfig), 0o644))

	store, err := config.NewStore(path)
	require.NoError(t, err)

	metrics := telemetry.New()
	rt := router.New(nil, metrics)
	return NewServer(DefaultServerConfig(), store, rt, nil, repo, metrics), path
}

func doRequest(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := doRequest(t, s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ok", body["status"])
	require.Equal(t, float64(1), body["config_version"])
}

func TestAnalyzeEndpoint(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := doRequest(t, s, http.MethodPost, "/analyze", map[string]interface{}{
		"company": "ACME",
		"period":  "FY2025",
		"current_data": map[string]float64{
			"total_debt":   800,
			"total_equity": 100,
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result router.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Equal(t, router.StatusCompleted, result.Status)
	require.Equal(t, []string{"borrowings"}, result.ModulesCompleted)
	require.Equal(t, 60, result.OverallScore)
	require.NotNil(t, result.Aggregation)
	require.Equal(t, 10, result.Aggregation.RedFlagIndex)
}

func TestAnalyzeValidation(t *testing.T) {
	s, _ := newTestServer(t, nil)

	tests := []struct {
		name string
		body interface{}
		want string
	}{
		{"missing company", map[string]interface{}{
			"current_data": map[string]float64{"x": 1},
		}, "company is required"},
		{"missing data", map[string]interface{}{
			"company": "ACME",
		}, "current_data is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, s, http.MethodPost, "/analyze", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Contains(t, rec.Body.String(), tt.want)
		})
	}
}

func TestAnalyzeMalformedBody(t *testing.T) {
	s, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeModuleFailureIsNotHTTPError(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := doRequest(t, s, http.MethodPost, "/analyze", map[string]interface{}{
		"company":      "ACME",
		"modules":      []string{"ghost"},
		"current_data": map[string]float64{"x": 1},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result router.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Equal(t, router.StatusFailed, result.Status)
	require.Equal(t, []string{"ghost"}, result.ModulesFailed)
}

func TestReloadConfig(t *testing.T) {
	s, path := newTestServer(t, nil)

	rec := doRequest(t, s, http.MethodPost, "/config/reload", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"config_version":2`)

	// A broken file rejects the reload with 422 and keeps serving.
	require.NoError(t, os.WriteFile(path, []byte("modules: [}"), 0o644))
	rec = doRequest(t, s, http.MethodPost, "/config/reload", nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"config_version":2`)
}

type memRepo struct {
	runs []persistence.AnalysisRun
	err  error
}

func (m *memRepo) SaveRun(_ context.Context, run persistence.AnalysisRun) error {
	m.runs = append(m.runs, run)
	return m.err
}

func (m *memRepo) LatestRun(_ context.Context, company string) (*persistence.AnalysisRun, error) {
	if m.err != nil {
		return nil, m.err
	}
	for i := len(m.runs) - 1; i >= 0; i-- {
		if m.runs[i].Company == company {
			return &m.runs[i], nil
		}
	}
	return nil, nil
}

func (m *memRepo) RunsByCompany(_ context.Context, company string, limit int) ([]persistence.AnalysisRun, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []persistence.AnalysisRun
	for _, r := range m.runs {
		if r.Company == company {
			out = append(out, r)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func TestAnalyzePersistsCompletedRuns(t *testing.T) {
	repo := &memRepo{}
	s, _ := newTestServer(t, repo)

	rec := doRequest(t, s, http.MethodPost, "/analyze", map[string]interface{}{
		"company":      "ACME",
		"period":       "FY2025",
		"current_data": map[string]float64{"total_debt": 100, "total_equity": 400},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, repo.runs, 1)
	require.Equal(t, "ACME", repo.runs[0].Company)
	require.Equal(t, "FY2025", repo.runs[0].Period)
	require.Equal(t, "completed", repo.runs[0].Status)
	require.NotEmpty(t, repo.runs[0].Result)
}

func TestRunsEndpoint(t *testing.T) {
	repo := &memRepo{runs: []persistence.AnalysisRun{
		{RunID: "run-1", Company: "ACME", Status: "completed"},
	}}
	s, _ := newTestServer(t, repo)

	rec := doRequest(t, s, http.MethodGet, "/companies/ACME/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "run-1")
}

func TestRunsEndpointWithoutRepo(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := doRequest(t, s, http.MethodGet, "/companies/ACME/runs", nil)
	require.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestLatestRunEndpoint(t *testing.T) {
	repo := &memRepo{runs: []persistence.AnalysisRun{
		{RunID: "run-1", Company: "ACME", Status: "completed"},
	}}
	s, _ := newTestServer(t, repo)

	rec := doRequest(t, s, http.MethodGet, "/companies/ACME/latest", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "run-1")

	rec = doRequest(t, s, http.MethodGet, "/companies/UNKNOWN/latest", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNotFoundIsJSON(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := doRequest(t, s, http.MethodGet, "/nope", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), `"error"`)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, nil)

	// Run one analysis so counters have samples.
	doRequest(t, s, http.MethodPost, "/analyze", map[string]interface{}{
		"company":      "ACME",
		"current_data": map[string]float64{"total_debt": 100, "total_equity": 400},
	})

	rec := doRequest(t, s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "finhealth_analyses_total")
}

func TestRequestIDHeader(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := doRequest(t, s, http.MethodGet, "/health", nil)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
