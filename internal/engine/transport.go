/*
PURPOSE:
  Shared contract for the interchangeable ways of reaching the generation
  endpoint, plus the transport error taxonomy.

REQUIREMENTS:
  User-specified:
  - Two transports (vendor SDK, direct REST) producing text + latency.
  - Classify failures as timeout, rate limited, server unavailable,
    client error or unknown.

  Implementation-discovered:
  - The orchestrator must not care which transport it is driving, so the
    contract is a one-method interface plus a name for logs/metrics.
  - Both transports send the same four safety categories at BLOCK_NONE.

ARCHITECTURE INTEGRATION:
  - Implemented by: rest.go, sdk.go
  - Consumed by: orchestrator.go

ERROR HANDLING:
  - Every failure leaving a Strategy is a *TransportError.

RELATED FILES:
  - internal/engine/orchestrator.go
*/

package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/daryltucker/consistency-runner/internal/model"
)

// Generation is a successful strategy result.
type Generation struct {
	Text    string
	Latency time.Duration
}

// Strategy is one way of invoking the generation endpoint.
// Implementations perform exactly one outbound call per Generate and keep no
// state between calls.
type Strategy interface {
	Name() string
	Generate(ctx context.Context, req model.GenerationRequest) (Generation, error)
}

// TransportError is the classified failure of a single strategy call.
type TransportError struct {
	Transport string
	Kind      model.ErrorKind
	Status    int
	Body      string
	Err       error
}

func (e *TransportError) Error() string {
	var msg string
	switch {
	case e.Kind == model.ErrTimeout:
		msg = "Timeout"
	case e.Kind == model.ErrClientError && e.Status != 0:
		msg = fmt.Sprintf("HTTP %d %s - %s", e.Status, http.StatusText(e.Status), e.Body)
	case e.Status != 0:
		msg = fmt.Sprintf("HTTP %d", e.Status)
	case e.Err != nil:
		msg = e.Err.Error()
	default:
		msg = string(e.Kind)
	}
	if e.Transport == "" {
		return msg
	}
	return e.Transport + ": " + msg
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is transient by classification.
func (e *TransportError) Retryable() bool {
	switch e.Kind {
	case model.ErrTimeout, model.ErrRateLimited, model.ErrServerUnavailable:
		return true
	default:
		return false
	}
}

// KindOf extracts the error kind from err, defaulting to unknown.
func KindOf(err error) model.ErrorKind {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return model.ErrTimeout
	}
	return model.ErrUnknown
}

// statusError classifies a non-2xx HTTP response.
func statusError(transport string, status int, body string) *TransportError {
	te := &TransportError{Transport: transport, Status: status}
	switch status {
	case http.StatusTooManyRequests:
		te.Kind = model.ErrRateLimited
	case http.StatusServiceUnavailable:
		te.Kind = model.ErrServerUnavailable
	default:
		te.Kind = model.ErrClientError
		te.Body = body
	}
	return te
}

// wrapError turns an arbitrary call failure into a *TransportError, mapping
// deadline and network timeouts to the timeout kind.
func wrapError(transport string, err error) *TransportError {
	var te *TransportError
	if errors.As(err, &te) {
		if te.Transport == "" {
			te.Transport = transport
		}
		return te
	}

	kind := model.ErrUnknown
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = model.ErrTimeout
	}
	return &TransportError{Transport: transport, Kind: kind, Err: err}
}

// safetyCategories are sent with BLOCK_NONE on both transports.
var safetyCategories = []string{
	"HARM_CATEGORY_HARASSMENT",
	"HARM_CATEGORY_HATE_SPEECH",
	"HARM_CATEGORY_SEXUALLY_EXPLICIT",
	"HARM_CATEGORY_DANGEROUS_CONTENT",
}

const blockNone = "BLOCK_NONE"
