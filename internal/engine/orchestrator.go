/*
PURPOSE:
  Drives one logical generation call across an ordered list of transports
  with a per-call timeout, a bounded number of attempts and linear backoff.

REQUIREMENTS:
  User-specified:
  - Every attempt tries the SDK path first and falls back to REST.
  - Each transport races a timer of the request timeout.
  - Up to 3 attempts; sleep RetryDelay * attempt between them (1s, 2s).
  - Only the last error is surfaced; a retry notice is shown meanwhile.

  Implementation-discovered:
  - The state machine is transport-agnostic: strategies are a slice.
  - The loser of the timeout race is abandoned and its context cancelled.
  - Retrying is unconditional by default; RetryRetryable stops early on
    errors classified as permanent.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine/runner.go
  - Uses: internal/engine/transport.go, internal/observability

ERROR HANDLING:
  - Strategy failures are logged and swallowed until attempts run out.
  - A cancelled parent context aborts immediately with ctx.Err().

USAGE:
  o := engine.NewOrchestrator(sdk, rest)
  gen, err := o.Call(ctx, req, reporter)

RELATED FILES:
  - internal/engine/transport.go
*/

package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/daryltucker/consistency-runner/internal/model"
	"github.com/daryltucker/consistency-runner/internal/observability"
	"github.com/daryltucker/consistency-runner/internal/output"
)

const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = time.Second
)

// RetryPolicy selects which failures are retried.
type RetryPolicy string

const (
	// RetryAll retries every failure regardless of classification.
	RetryAll RetryPolicy = "all"
	// RetryRetryable stops on failures that are not transient.
	RetryRetryable RetryPolicy = "retryable"
)

// StatusSink receives human-readable status while a call is retrying.
type StatusSink interface {
	Status() string
	SetStatus(msg string)
}

// Orchestrator is the resilient call state machine.
type Orchestrator struct {
	Strategies  []Strategy
	MaxAttempts int
	RetryDelay  time.Duration
	Policy      RetryPolicy
	Metrics     *observability.Metrics

	// Sleep waits between attempts; it must return early when ctx is done.
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator creates an orchestrator with default attempts and delay.
func NewOrchestrator(strategies ...Strategy) *Orchestrator {
	return &Orchestrator{
		Strategies:  strategies,
		MaxAttempts: DefaultMaxAttempts,
		RetryDelay:  DefaultRetryDelay,
		Policy:      RetryAll,
		Sleep:       sleepContext,
	}
}

// Call returns the first successful generation, or the last error once all
// attempts are exhausted.
func (o *Orchestrator) Call(ctx context.Context, req model.GenerationRequest, sink StatusSink) (Generation, error) {
	if len(o.Strategies) == 0 {
		return Generation{}, errors.New("no transport strategies configured")
	}
	maxAttempts := o.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	sleep := o.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		for _, s := range o.Strategies {
			gen, err := o.try(ctx, s, req)
			if err == nil {
				return gen, nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Generation{}, ctxErr
			}
			lastErr = err
			output.Logger.Warn("Transport failed", "transport", s.Name(), "attempt", attempt+1, "error", err)
		}

		if attempt == maxAttempts-1 {
			break
		}
		if o.Policy == RetryRetryable && !isRetryable(lastErr) {
			output.Logger.Info("Not retrying permanent failure", "error", lastErr)
			break
		}

		o.Metrics.RecordRetry()
		delay := o.RetryDelay * time.Duration(attempt+1)
		msg := fmt.Sprintf("Request failed (%v), retrying %d/%d...", lastErr, attempt+1, maxAttempts-1)
		output.Logger.Info("Retrying generation...", "attempt", attempt+2, "delay", delay)

		var previous string
		if sink != nil {
			previous = sink.Status()
			sink.SetStatus(msg)
		}
		err := sleep(ctx, delay)
		if sink != nil {
			sink.SetStatus(previous)
		}
		if err != nil {
			return Generation{}, err
		}
	}

	if lastErr == nil {
		lastErr = errors.New("request failed after multiple retries")
	}
	return Generation{}, lastErr
}

// try runs one strategy against a timer of req.Timeout. If the timer wins
// the strategy goroutine is abandoned; its context is cancelled and its
// result discarded.
func (o *Orchestrator) try(ctx context.Context, s Strategy, req model.GenerationRequest) (Generation, error) {
	var (
		callCtx context.Context
		cancel  context.CancelFunc
	)
	if req.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, req.Timeout)
	} else {
		callCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	type result struct {
		gen Generation
		err error
	}
	done := make(chan result, 1)
	go func() {
		gen, err := s.Generate(callCtx, req)
		done <- result{gen: gen, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			te := wrapError(s.Name(), r.err)
			if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
				te.Kind = model.ErrTimeout
			}
			o.Metrics.RecordAttempt(s.Name(), string(te.Kind), 0)
			return Generation{}, te
		}
		o.Metrics.RecordAttempt(s.Name(), "ok", r.gen.Latency)
		return r.gen, nil
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return Generation{}, ctx.Err()
		}
		o.Metrics.RecordAttempt(s.Name(), string(model.ErrTimeout), 0)
		return Generation{}, &TransportError{Transport: s.Name(), Kind: model.ErrTimeout, Err: callCtx.Err()}
	}
}

func isRetryable(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable()
	}
	return true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
