package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/daryltucker/consistency-runner/internal/model"
)

// callerFunc adapts a function to the Caller interface.
type callerFunc func(ctx context.Context, req model.GenerationRequest, sink StatusSink) (Generation, error)

func (f callerFunc) Call(ctx context.Context, req model.GenerationRequest, sink StatusSink) (Generation, error) {
	return f(ctx, req, sink)
}

type mediaFunc func(ctx context.Context) ([]model.MediaPart, error)

func (f mediaFunc) Parts(ctx context.Context) ([]model.MediaPart, error) {
	return f(ctx)
}

type memoryRecorder struct {
	results []model.RunResult
}

func (m *memoryRecorder) Write(r model.RunResult) error {
	m.results = append(m.results, r)
	return nil
}

func testPlan(runs int) RunPlan {
	return RunPlan{
		APIKey:      "key",
		Model:       "gemini-2.5-flash",
		Prompt:      "What is the capital of France?",
		Runs:        runs,
		Temperature: 1,
		Timeout:     time.Second,
	}
}

func newTestRunner(c Caller, sleep *recordingSleep) *Runner {
	r := NewRunner(c)
	r.Sleep = sleep.Sleep
	return r
}

func TestRunValidation(t *testing.T) {
	t.Parallel()

	calls := 0
	r := newTestRunner(callerFunc(func(context.Context, model.GenerationRequest, StatusSink) (Generation, error) {
		calls++
		return Generation{}, nil
	}), &recordingSleep{})

	plan := testPlan(3)
	plan.APIKey = "  "
	_, err := r.Run(context.Background(), plan, nil, nil)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Contains(t, verr.Msg, "API key")

	plan = testPlan(3)
	plan.Prompt = "\n\t"
	_, err = r.Run(context.Background(), plan, nil, nil)
	require.True(t, errors.As(err, &verr))
	require.Contains(t, verr.Msg, "prompt")

	plan = testPlan(0)
	_, err = r.Run(context.Background(), plan, nil, nil)
	require.True(t, errors.As(err, &verr))

	require.Zero(t, calls)
}

func TestRunMediaFailureAbortsBeforeCalls(t *testing.T) {
	t.Parallel()

	calls := 0
	r := newTestRunner(callerFunc(func(context.Context, model.GenerationRequest, StatusSink) (Generation, error) {
		calls++
		return Generation{}, nil
	}), &recordingSleep{})

	plan := testPlan(3)
	plan.Media = mediaFunc(func(context.Context) ([]model.MediaPart, error) {
		return nil, errors.New("permission denied")
	})

	report, err := r.Run(context.Background(), plan, nil, nil)
	require.Nil(t, report)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Contains(t, err.Error(), "permission denied")
	require.Zero(t, calls)
}

func TestRunEndToEndAgreement(t *testing.T) {
	t.Parallel()

	outputs := []string{"paris", " Paris ", "PARIS"}
	var seen []model.GenerationRequest
	caller := callerFunc(func(_ context.Context, req model.GenerationRequest, _ StatusSink) (Generation, error) {
		seen = append(seen, req)
		return Generation{Text: outputs[len(seen)-1], Latency: 100 * time.Millisecond}, nil
	})

	parts := []model.MediaPart{model.InlinePart("image/png", "aGk=")}
	mediaCalls := 0
	plan := testPlan(3)
	plan.TopP = 0.95
	plan.Media = mediaFunc(func(context.Context) ([]model.MediaPart, error) {
		mediaCalls++
		return parts, nil
	})

	rec := &memoryRecorder{}
	rep := &statusRecorder{}
	r := newTestRunner(caller, &recordingSleep{})
	r.Recorders = []Recorder{rec}

	report, err := r.Run(context.Background(), plan, &CancelToken{}, rep)
	require.NoError(t, err)

	require.Equal(t, 1, mediaCalls)
	require.Len(t, seen, 3)
	for _, req := range seen {
		require.Equal(t, "gemini-2.5-flash", req.Model)
		require.Equal(t, parts, req.Parts)
		require.Equal(t, 0.95, req.TopP)
		require.Equal(t, time.Second, req.Timeout)
	}

	require.Len(t, report.Results, 3)
	for i, res := range report.Results {
		require.Equal(t, i+1, res.Index)
		require.True(t, res.OK)
		require.Equal(t, int64(100), *res.LatencyMs)
	}
	require.Equal(t, report.Results, rec.results)

	require.Equal(t, 1.0, report.Metrics.ExactAgreementRate)
	require.Equal(t, 1.0, report.Metrics.AverageSimilarity)
	require.Equal(t, "paris", report.Metrics.MajorityNormalizedText)
	require.Equal(t, 3, report.Metrics.SuccessCount)
	require.Equal(t, 3, report.Metrics.TotalCount)
	require.False(t, report.Cancelled)

	require.Len(t, rep.rows, 3)
	require.Equal(t, RowOK, rep.rows[0].Status)
	require.Equal(t, [][2]int{{1, 3}, {2, 3}, {3, 3}}, rep.progress)
}

func TestRunRecordsFailuresAndContinues(t *testing.T) {
	t.Parallel()

	n := 0
	caller := callerFunc(func(context.Context, model.GenerationRequest, StatusSink) (Generation, error) {
		n++
		if n == 2 {
			return Generation{}, &TransportError{Transport: "rest", Kind: model.ErrServerUnavailable, Status: 503}
		}
		return Generation{Text: "Paris"}, nil
	})

	rep := &statusRecorder{}
	report, err := newTestRunner(caller, &recordingSleep{}).Run(context.Background(), testPlan(3), nil, rep)
	require.NoError(t, err)
	require.Len(t, report.Results, 3)

	failed := report.Results[1]
	require.False(t, failed.OK)
	require.Equal(t, model.ErrServerUnavailable, failed.ErrorKind)
	require.Equal(t, "rest: HTTP 503", failed.Error)
	require.Nil(t, failed.LatencyMs)

	require.Equal(t, RowError, rep.rows[1].Status)
	require.Equal(t, 2, report.Metrics.SuccessCount)
	require.Equal(t, 3, report.Metrics.TotalCount)
	require.Equal(t, 1.0, report.Metrics.ExactAgreementRate)
}

func TestRunCancellationAtIterationBoundary(t *testing.T) {
	t.Parallel()

	token := &CancelToken{}
	n := 0
	caller := callerFunc(func(context.Context, model.GenerationRequest, StatusSink) (Generation, error) {
		n++
		if n == 2 {
			// cancelling mid-call must not interrupt this iteration
			token.Cancel()
		}
		return Generation{Text: "Paris"}, nil
	})

	rep := &statusRecorder{}
	report, err := newTestRunner(caller, &recordingSleep{}).Run(context.Background(), testPlan(5), token, rep)
	require.NoError(t, err)

	require.Equal(t, 2, n)
	require.Len(t, report.Results, 2)
	require.True(t, report.Cancelled)
	require.Equal(t, 3, report.CancelledAt)

	require.Len(t, rep.rows, 3)
	require.Equal(t, Row{Index: 3, Status: RowCancelled}, rep.rows[2])
	require.Equal(t, 2, report.Metrics.SuccessCount)
	require.Equal(t, 2, report.Metrics.TotalCount)
	require.Equal(t, 1.0, report.Metrics.ExactAgreementRate)
}

func TestRunDelayBetweenIterations(t *testing.T) {
	t.Parallel()

	sleep := &recordingSleep{}
	caller := callerFunc(func(context.Context, model.GenerationRequest, StatusSink) (Generation, error) {
		return Generation{Text: "x"}, nil
	})

	plan := testPlan(3)
	plan.Delay = 250 * time.Millisecond
	_, err := newTestRunner(caller, sleep).Run(context.Background(), plan, nil, nil)
	require.NoError(t, err)
	require.Equal(t, []time.Duration{250 * time.Millisecond, 250 * time.Millisecond}, sleep.delays)
}

func TestRunHardAbortStopsRun(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	n := 0
	caller := callerFunc(func(ctx context.Context, _ model.GenerationRequest, _ StatusSink) (Generation, error) {
		n++
		cancel()
		return Generation{}, ctx.Err()
	})

	report, err := newTestRunner(caller, &recordingSleep{}).Run(ctx, testPlan(3), nil, nil)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, n)
	require.Empty(t, report.Results)
	require.False(t, report.Finished.IsZero())
}

func TestRunHardAbortKeepsPartialMetrics(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	caller := callerFunc(func(context.Context, model.GenerationRequest, StatusSink) (Generation, error) {
		return Generation{Text: "Paris", Latency: time.Millisecond}, nil
	})
	r := NewRunner(caller)
	sleeps := 0
	r.Sleep = func(ctx context.Context, _ time.Duration) error {
		sleeps++
		if sleeps == 2 {
			cancel()
		}
		return ctx.Err()
	}

	plan := testPlan(5)
	plan.Delay = time.Second
	report, err := r.Run(ctx, plan, nil, nil)
	require.ErrorIs(t, err, context.Canceled)

	require.Len(t, report.Results, 2)
	require.Equal(t, len(report.Results), report.Metrics.SuccessCount)
	require.Equal(t, 2, report.Metrics.TotalCount)
	require.Equal(t, 1.0, report.Metrics.ExactAgreementRate)
	require.Equal(t, "paris", report.Metrics.MajorityNormalizedText)
	require.False(t, report.Finished.IsZero())
}

func TestRunPassesReporterAsStatusSink(t *testing.T) {
	t.Parallel()

	caller := callerFunc(func(_ context.Context, _ model.GenerationRequest, sink StatusSink) (Generation, error) {
		sink.SetStatus("Request failed (x), retrying 1/2...")
		return Generation{Text: "x"}, nil
	})

	rep := &statusRecorder{}
	_, err := newTestRunner(caller, &recordingSleep{}).Run(context.Background(), testPlan(1), nil, rep)
	require.NoError(t, err)

	joined := strings.Join(rep.history, "|")
	require.Contains(t, joined, "Preparing media...|Running...|Request failed")
}
