package router

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"finhealth/internal/config"
	"finhealth/internal/engine"
	"finhealth/internal/redflag"
	"finhealth/internal/telemetry"
)

// State is one node of the workflow sequence.
type State string

const (
	StateInitialize      State = "initialize"
	StateRoute           State = "route"
	StateRunModule       State = "run_module"
	StateCalculateScore  State = "calculate_score"
	StateGenerateSummary State = "generate_summary"
	StateDone            State = "done"
)

// Workflow status values. Completed-with-failures is a valid terminal
// outcome distinct from failed (no module could run at all).
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Request describes one analysis workflow run.
type Request struct {
	Company         string          `json:"company"`
	Period          string          `json:"period,omitempty"`
	Current         engine.Fields   `json:"current_data"`
	Historical      []engine.Fields `json:"historical_data,omitempty"`
	Modules         []string        `json:"modules,omitempty"`
	ScenarioSignals map[string]bool `json:"scenario_signals,omitempty"`
}

// Result is the structured outcome of one workflow run. Module failures and
// validation problems surface here as fields, not as raised errors.
type Result struct {
	RunID            string                          `json:"run_id"`
	Company          string                          `json:"company"`
	Period           string                          `json:"period,omitempty"`
	Status           string                          `json:"workflow_status"`
	ModuleResults    map[string]*engine.ModuleOutput `json:"module_results"`
	ModulesCompleted []string                        `json:"modules_completed"`
	ModulesFailed    []string                        `json:"modules_failed"`
	Errors           []string                        `json:"errors,omitempty"`
	OverallScore     int                             `json:"overall_score"`
	Aggregation      *redflag.AggregationResult      `json:"red_flag_aggregation,omitempty"`
	Summary          string                          `json:"final_summary,omitempty"`
}

// Router sequences module runs and feeds their red flags into the
// aggregator. Modules run strictly one at a time; a module failure is
// recorded and routing continues with the next module.
type Router struct {
	narrator redflag.Narrator
	metrics  *telemetry.Metrics
}

// New creates a router. Both collaborators are optional: a nil narrator
// disables aggregation narrative, nil metrics disables instrumentation.
func New(narrator redflag.Narrator, metrics *telemetry.Metrics) *Router {
	return &Router{narrator: narrator, metrics: metrics}
}

// workflowState is the accumulator threaded through each step of the run.
type workflowState struct {
	result  *Result
	pending []string
	next    string
	flags   map[string][]redflag.RedFlag
}

// Run executes the full workflow against one configuration snapshot:
// INITIALIZE, then ROUTE/RUN_MODULE until no module remains, then
// CALCULATE_SCORE, GENERATE_SUMMARY and DONE. DONE is reached exactly once.
func (r *Router) Run(ctx context.Context, snap *config.Snapshot, req Request) *Result {
	started := time.Now()
	ws := &workflowState{}

	state := StateInitialize
	for state != StateDone {
		switch state {
		case StateInitialize:
			ws = r.initialize(snap, req)
			state = StateRoute

		case StateRoute:
			if len(ws.pending) == 0 {
				state = StateCalculateScore
				break
			}
			ws.next, ws.pending = ws.pending[0], ws.pending[1:]
			state = StateRunModule

		case StateRunModule:
			r.runModule(snap, req, ws)
			state = StateRoute

		case StateCalculateScore:
			r.calculateScore(ctx, snap, req, ws)
			state = StateGenerateSummary

		case StateGenerateSummary:
			ws.result.Summary = buildSummary(ws.result)
			state = StateDone
		}
	}

	if r.metrics != nil {
		r.metrics.AnalysesTotal.Inc()
		r.metrics.AnalysisDuration.Observe(time.Since(started).Seconds())
	}
	log.Info().Str("run_id", ws.result.RunID).
		Str("company", req.Company).
		Str("status", ws.result.Status).
		Int("completed", len(ws.result.ModulesCompleted)).
		Int("failed", len(ws.result.ModulesFailed)).
		Int("overall_score", ws.result.OverallScore).
		Msg("analysis workflow finished")
	return ws.result
}

func (r *Router) initialize(snap *config.Snapshot, req Request) *workflowState {
	modules := req.Modules
	if len(modules) == 0 {
		modules = snap.ModuleOrder
	}
	return &workflowState{
		result: &Result{
			RunID:         uuid.NewString(),
			Company:       req.Company,
			Period:        req.Period,
			ModuleResults: make(map[string]*engine.ModuleOutput, len(modules)),
		},
		pending: modules,
		flags:   make(map[string][]redflag.RedFlag),
	}
}

// runModule executes one module, converting any error or panic into a
// recorded failure so the sequence continues.
func (r *Router) runModule(snap *config.Snapshot, req Request, ws *workflowState) {
	moduleID := ws.next
	out, err := r.safeAnalyze(snap, moduleID, req)
	if err != nil {
		ws.result.ModulesFailed = append(ws.result.ModulesFailed, moduleID)
		ws.result.Errors = append(ws.result.Errors, fmt.Sprintf("module %s failed: %v", moduleID, err))
		if r.metrics != nil {
			r.metrics.ModuleRuns.WithLabelValues(moduleID, "error").Inc()
		}
		log.Warn().Err(err).Str("module", moduleID).Msg("module run failed, continuing")
		return
	}

	ws.result.ModuleResults[moduleID] = out
	ws.result.ModulesCompleted = append(ws.result.ModulesCompleted, moduleID)
	if len(out.Flags) > 0 {
		ws.flags[moduleID] = out.Flags
	}
	if r.metrics != nil {
		r.metrics.ModuleRuns.WithLabelValues(moduleID, "ok").Inc()
		r.metrics.ModuleScore.WithLabelValues(moduleID).Observe(float64(out.Score))
		for _, f := range out.Flags {
			r.metrics.RedFlags.WithLabelValues(string(f.Severity)).Inc()
		}
	}
}

func (r *Router) safeAnalyze(snap *config.Snapshot, moduleID string, req Request) (out *engine.ModuleOutput, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out, err = nil, fmt.Errorf("panic: %v", rec)
		}
	}()
	return snap.Engine.Analyze(moduleID, req.Current, req.Historical, req.Period)
}

// calculateScore folds module scores into the overall score (mean, rounded
// half to even), runs red-flag aggregation and applies any scenario score
// cap as a hard ceiling on the overall score.
func (r *Router) calculateScore(ctx context.Context, snap *config.Snapshot, req Request, ws *workflowState) {
	res := ws.result
	if len(res.ModulesCompleted) == 0 {
		res.Status = StatusFailed
		return
	}
	res.Status = StatusCompleted

	var sum float64
	for _, id := range res.ModulesCompleted {
		sum += float64(res.ModuleResults[id].Score)
	}
	res.OverallScore = int(math.RoundToEven(sum / float64(len(res.ModulesCompleted))))

	agg, err := redflag.NewAggregator(snap.Aggregator, r.narrator).Aggregate(ctx, redflag.AggregationInput{
		CompanyID:       req.Company,
		ModuleFlags:     ws.flags,
		ScenarioSignals: req.ScenarioSignals,
	})
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("red flag aggregation failed: %v", err))
		return
	}
	res.Aggregation = agg
	if agg.ScoreCap != nil && res.OverallScore > *agg.ScoreCap {
		res.OverallScore = *agg.ScoreCap
	}
	if r.metrics != nil {
		r.metrics.RedFlagIndex.Observe(float64(agg.RedFlagIndex))
	}
}
