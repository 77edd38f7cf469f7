package engine

import (
	"context"
	"sync"
	"time"

	"github.com/daryltucker/consistency-runner/internal/model"
)

// fakeStrategy is a test double implementing Strategy.
type fakeStrategy struct {
	name       string
	GenerateFn func(ctx context.Context, req model.GenerationRequest) (Generation, error)

	mu    sync.Mutex
	calls int
}

func (f *fakeStrategy) Name() string {
	if f.name != "" {
		return f.name
	}
	return "fake"
}

func (f *fakeStrategy) Generate(ctx context.Context, req model.GenerationRequest) (Generation, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.GenerateFn != nil {
		return f.GenerateFn(ctx, req)
	}
	return Generation{Text: "fake", Latency: time.Millisecond}, nil
}

func (f *fakeStrategy) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func failing(name string, kind model.ErrorKind) *fakeStrategy {
	return &fakeStrategy{
		name: name,
		GenerateFn: func(context.Context, model.GenerationRequest) (Generation, error) {
			return Generation{}, &TransportError{Kind: kind, Status: statusFor(kind)}
		},
	}
}

func statusFor(kind model.ErrorKind) int {
	switch kind {
	case model.ErrRateLimited:
		return 429
	case model.ErrServerUnavailable:
		return 503
	case model.ErrClientError:
		return 400
	default:
		return 0
	}
}

// recordingSleep captures requested delays without waiting.
type recordingSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleep) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *recordingSleep) Total() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total time.Duration
	for _, d := range r.delays {
		total += d
	}
	return total
}

// statusRecorder implements StatusSink and Reporter.
type statusRecorder struct {
	mu       sync.Mutex
	status   string
	history  []string
	rows     []Row
	progress [][2]int
}

func (s *statusRecorder) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *statusRecorder) SetStatus(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = msg
	s.history = append(s.history, msg)
}

func (s *statusRecorder) Row(row Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, row)
}

func (s *statusRecorder) Progress(done, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = append(s.progress, [2]int{done, total})
}
