/*
PURPOSE:
  High-level runner that sequences N identical generation calls, records
  every outcome and computes consistency metrics over the successes.

REQUIREMENTS:
  User-specified:
  - Refuse to start without an API key or a prompt.
  - Prepare attached media once, before any call.
  - Run iterations strictly one after another; one failure never stops
    the run.
  - Cooperative cancellation checked only between iterations.
  - Optional fixed delay between iterations.

  Implementation-discovered:
  - Needs to report rows/progress to the CLI and stream results to the
    CSV/JSONL writers as they happen.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine/session.go
  - Uses: internal/engine/orchestrator.go, internal/analysis, internal/output

ERROR HANDLING:
  - Validation and media failures abort the run with *ValidationError.
  - A cancelled context returns the partial report, with metrics computed
    over what was recorded, plus ctx.Err().
  - Call failures become failed RunResults; the loop continues (resilience).
  - Recorder write failures are logged, not fatal.

IMPLEMENTATION RULES:
  - No goroutines here: iteration i+1 starts only after iteration i resolved.

USAGE:
  r := engine.NewRunner(orchestrator)
  report, err := r.Run(ctx, plan, token, reporter)

RELATED FILES:
  - internal/engine/orchestrator.go
  - internal/engine/session.go
*/

package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/daryltucker/consistency-runner/internal/analysis"
	"github.com/daryltucker/consistency-runner/internal/model"
	"github.com/daryltucker/consistency-runner/internal/observability"
	"github.com/daryltucker/consistency-runner/internal/output"
)

// ValidationError is a human-actionable reason a run could not start.
type ValidationError struct {
	Msg string
	Err error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Caller performs one resilient generation call.
type Caller interface {
	Call(ctx context.Context, req model.GenerationRequest, sink StatusSink) (Generation, error)
}

// MediaSource prepares the attached parts for a run.
type MediaSource interface {
	Parts(ctx context.Context) ([]model.MediaPart, error)
}

// RowStatus tags a reported row.
type RowStatus string

const (
	RowOK        RowStatus = "ok"
	RowError     RowStatus = "error"
	RowCancelled RowStatus = "cancelled"
)

// Row is the live-display view of one iteration.
type Row struct {
	Index     int
	Status    RowStatus
	LatencyMs *int64
	Text      string
}

// Reporter receives live updates during a run.
type Reporter interface {
	StatusSink
	Row(row Row)
	Progress(done, total int)
}

// Recorder persists committed results as they are produced.
type Recorder interface {
	Write(r model.RunResult) error
}

// CancelToken is a cooperative cancellation flag checked between iterations.
type CancelToken struct {
	cancelled atomic.Bool
}

// Cancel requests that the run stop before its next iteration.
func (t *CancelToken) Cancel() {
	t.cancelled.Store(true)
}

// Cancelled reports whether Cancel was called. A nil token is never cancelled.
func (t *CancelToken) Cancelled() bool {
	return t != nil && t.cancelled.Load()
}

// RunPlan is everything one run needs.
type RunPlan struct {
	// APIKey is only checked for presence; strategies carry their own copy.
	APIKey      string
	Model       string
	Prompt      string
	Media       MediaSource
	Runs        int
	Temperature float64
	TopP        float64
	Timeout     time.Duration
	Delay       time.Duration
}

// Report is the outcome of a run, completed or cancelled.
type Report struct {
	Results     []model.RunResult
	Metrics     model.ConsistencyMetrics
	Cancelled   bool
	CancelledAt int
	Started     time.Time
	Finished    time.Time
}

// SuccessTexts returns the texts of successful results in order.
func (r *Report) SuccessTexts() []string {
	texts := make([]string, 0, len(r.Results))
	for _, res := range r.Results {
		if res.OK {
			texts = append(texts, res.Text)
		}
	}
	return texts
}

// Runner is the run controller.
type Runner struct {
	Caller    Caller
	Recorders []Recorder
	Metrics   *observability.Metrics
	Sleep     func(ctx context.Context, d time.Duration) error
	Now       func() time.Time
}

// NewRunner creates a Runner around a Caller.
func NewRunner(caller Caller) *Runner {
	return &Runner{
		Caller: caller,
		Sleep:  sleepContext,
		Now:    time.Now,
	}
}

// Run executes plan.Runs iterations and returns the report.
func (r *Runner) Run(ctx context.Context, plan RunPlan, token *CancelToken, rep Reporter) (*Report, error) {
	if strings.TrimSpace(plan.APIKey) == "" {
		return nil, &ValidationError{Msg: "Please enter your Gemini API key (--api-key, GEMINI_API_KEY or `key set`)."}
	}
	prompt := strings.TrimSpace(plan.Prompt)
	if prompt == "" {
		return nil, &ValidationError{Msg: "Please enter a prompt (--prompt, --prompt-file or --template)."}
	}
	if plan.Runs <= 0 {
		return nil, &ValidationError{Msg: fmt.Sprintf("Number of runs must be positive, got %d.", plan.Runs)}
	}
	if rep == nil {
		rep = nopReporter{}
	}
	now := r.Now
	if now == nil {
		now = time.Now
	}
	sleep := r.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	rep.SetStatus("Preparing media...")
	var parts []model.MediaPart
	if plan.Media != nil {
		var err error
		parts, err = plan.Media.Parts(ctx)
		if err != nil {
			return nil, &ValidationError{Msg: "Failed to read attachments", Err: err}
		}
	}

	report := &Report{Started: now()}
	rep.SetStatus("Running...")
	output.Logger.Info("Starting run", "model", plan.Model, "runs", plan.Runs, "parts", len(parts))

	for i := 1; i <= plan.Runs; i++ {
		if token.Cancelled() {
			report.Cancelled = true
			report.CancelledAt = i
			rep.Row(Row{Index: i, Status: RowCancelled})
			r.Metrics.RecordIteration(string(RowCancelled))
			output.Logger.Info("Run cancelled", "next_iteration", i)
			break
		}
		if err := ctx.Err(); err != nil {
			r.finish(report, now())
			return report, err
		}

		req := model.GenerationRequest{
			Model:       plan.Model,
			Prompt:      prompt,
			Parts:       parts,
			Temperature: plan.Temperature,
			TopP:        plan.TopP,
			Timeout:     plan.Timeout,
		}

		result := model.RunResult{Index: i, Timestamp: now()}
		gen, err := r.Caller.Call(ctx, req, rep)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				r.finish(report, now())
				return report, err
			}
			output.Logger.Error("Iteration failed", "iteration", i, "error", err)
			result.CallOutcome = model.Failure(KindOf(err), err.Error())
			rep.Row(Row{Index: i, Status: RowError, Text: err.Error()})
			r.Metrics.RecordIteration(string(RowError))
		} else {
			result.CallOutcome = model.Success(gen.Text, gen.Latency)
			rep.Row(Row{Index: i, Status: RowOK, LatencyMs: result.LatencyMs, Text: gen.Text})
			r.Metrics.RecordIteration(string(RowOK))
		}
		report.Results = append(report.Results, result)
		r.record(result)
		rep.Progress(i, plan.Runs)

		if i < plan.Runs && plan.Delay > 0 {
			if err := sleep(ctx, plan.Delay); err != nil {
				r.finish(report, now())
				return report, err
			}
		}
	}

	r.finish(report, now())
	return report, nil
}

func (r *Runner) record(res model.RunResult) {
	for _, rec := range r.Recorders {
		if err := rec.Write(res); err != nil {
			output.Logger.Error("Failed to record result", "iteration", res.Index, "error", err)
		}
	}
}

func (r *Runner) finish(report *Report, at time.Time) {
	report.Finished = at
	report.Metrics = analysis.Analyze(report.SuccessTexts())
	report.Metrics.TotalCount = len(report.Results)
	r.Metrics.RecordConsistency(report.Metrics.ExactAgreementRate, report.Metrics.AverageSimilarity)

	output.Logger.Info("Run finished",
		"success", report.Metrics.SuccessCount,
		"total", report.Metrics.TotalCount,
		"exact_agreement", fmt.Sprintf("%.1f%%", report.Metrics.ExactAgreementRate*100),
		"avg_similarity", fmt.Sprintf("%.1f%%", report.Metrics.AverageSimilarity*100),
		"cancelled", report.Cancelled,
	)
}

type nopReporter struct{}

func (nopReporter) Status() string { return "" }

func (nopReporter) SetStatus(string) {}

func (nopReporter) Row(Row) {}

func (nopReporter) Progress(int, int) {}
