/*
PURPOSE:
  Owns the lifetime of a run: at most one in flight, its cancel token, and
  the last report for export.

REQUIREMENTS:
  User-specified:
  - A new run discards the previous results.
  - Cancel asks the current run to stop at the next iteration boundary.
  - Export the last run on request.

  Implementation-discovered:
  - Export carries a session ID so exports from one invocation correlate.

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli/run.go
  - Uses: internal/engine/runner.go, internal/output/export.go

ERROR HANDLING:
  - A second concurrent Run returns ErrRunInFlight.

USAGE:
  s := engine.NewSession(runner)
  report, err := s.Run(ctx, plan, reporter)
  exp, ok := s.Export(time.Now())

RELATED FILES:
  - internal/engine/runner.go
*/

package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/daryltucker/consistency-runner/internal/output"
)

// ErrRunInFlight is returned when a session is asked to start a second run.
var ErrRunInFlight = errors.New("a run is already in progress")

// Session owns at most one in-flight run, its cancellation token and the
// results of the last run. It lives for the whole process.
type Session struct {
	ID     string
	runner *Runner

	mu      sync.Mutex
	running bool
	token   *CancelToken
	plan    RunPlan
	last    *Report
}

// NewSession creates a session around a runner.
func NewSession(r *Runner) *Session {
	return &Session{
		ID:     uuid.NewString(),
		runner: r,
	}
}

// Run resets the session and executes plan. The previous results are
// discarded as soon as the new run starts.
func (s *Session) Run(ctx context.Context, plan RunPlan, rep Reporter) (*Report, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, ErrRunInFlight
	}
	s.running = true
	s.token = &CancelToken{}
	s.plan = plan
	s.last = nil
	token := s.token
	s.mu.Unlock()

	report, err := s.runner.Run(ctx, plan, token, rep)

	s.mu.Lock()
	s.running = false
	s.last = report
	s.mu.Unlock()

	return report, err
}

// Cancel asks the in-flight run to stop at the next iteration boundary.
// It reports whether a run was in flight.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.token == nil {
		return false
	}
	s.token.Cancel()
	return true
}

// Last returns the report of the most recent run, if any.
func (s *Session) Last() *Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Export projects the last run into the export document.
func (s *Session) Export(at time.Time) (output.Export, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil || len(s.last.Results) == 0 {
		return output.Export{}, false
	}
	return output.Export{
		Meta: output.ExportMeta{
			Session:   s.ID,
			Model:     s.plan.Model,
			Runs:      s.plan.Runs,
			Timestamp: at.UTC(),
			Cancelled: s.last.Cancelled,
		},
		Prompt:  s.plan.Prompt,
		Metrics: s.last.Metrics,
		Results: s.last.Results,
	}, true
}
