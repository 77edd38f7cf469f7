/*
PURPOSE:
  Defines the core data structures used throughout Consistency Runner.
  These models represent generation requests, per-iteration outcomes and
  the consistency metrics derived from them.

REQUIREMENTS:
  User-specified:
  - Record latency and text (or error) for every iteration.
  - Track model, prompt and generation parameters.

  Implementation-discovered:
  - Need JSON tags for the export document and the JSON Lines stream.
  - Media parts have two wire encodings (REST snake_case, SDK struct); the
    logical part stays encoding-agnostic here.

ARCHITECTURE INTEGRATION:
  - Used by: internal/engine, internal/analysis, internal/output, internal/media
  - Shared across boundaries.

ERROR HANDLING:
  - None (pure data structs).

IMPLEMENTATION RULES:
  - Keep structs simple and public.
  - Use time.Duration for timeouts; latency is exported in milliseconds.

RELATED FILES:
  - internal/output/csv.go
  - internal/output/json.go
  - internal/output/export.go
*/

package model

import (
	"time"
)

// PartKind tags the MediaPart union.
type PartKind string

const (
	PartText   PartKind = "text"
	PartInline PartKind = "inline"
)

// MediaPart is one unit of prompt content: plain text or inline binary data.
type MediaPart struct {
	Kind     PartKind `json:"kind"`
	Text     string   `json:"text,omitempty"`
	MIMEType string   `json:"mime_type,omitempty"`
	Data     string   `json:"data,omitempty"` // base64, standard encoding
}

// TextPart builds a text MediaPart.
func TextPart(s string) MediaPart {
	return MediaPart{Kind: PartText, Text: s}
}

// InlinePart builds an inline binary MediaPart from already base64-encoded data.
func InlinePart(mimeType, b64 string) MediaPart {
	return MediaPart{Kind: PartInline, MIMEType: mimeType, Data: b64}
}

// GenerationRequest is the input for one orchestrated call.
// It is built once per iteration and never modified afterwards.
type GenerationRequest struct {
	Model       string
	Prompt      string
	Parts       []MediaPart
	Temperature float64
	TopP        float64 // 0 means unset
	Timeout     time.Duration
}

// HasTopP reports whether nucleus sampling should be sent.
func (r GenerationRequest) HasTopP() bool {
	return r.TopP > 0
}

// ErrorKind classifies transport failures.
type ErrorKind string

const (
	ErrTimeout           ErrorKind = "timeout"
	ErrRateLimited       ErrorKind = "rate_limited"
	ErrServerUnavailable ErrorKind = "server_unavailable"
	ErrClientError       ErrorKind = "client_error"
	ErrUnknown           ErrorKind = "unknown"
)

// CallOutcome is the committed result of one iteration.
type CallOutcome struct {
	OK        bool      `json:"ok"`
	Text      string    `json:"text,omitempty"`
	LatencyMs *int64    `json:"latency,omitempty"`
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Success builds a successful outcome.
func Success(text string, latency time.Duration) CallOutcome {
	ms := latency.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	return CallOutcome{OK: true, Text: text, LatencyMs: &ms}
}

// Failure builds a failed outcome.
func Failure(kind ErrorKind, message string) CallOutcome {
	return CallOutcome{OK: false, ErrorKind: kind, Error: message}
}

// RunResult pairs an iteration index (1-based) with its outcome.
type RunResult struct {
	Index int `json:"index"`
	CallOutcome
	Timestamp time.Time `json:"timestamp"`
}

// ConsistencyMetrics summarises agreement across successful outputs.
type ConsistencyMetrics struct {
	ExactAgreementRate     float64 `json:"exact_agreement_rate"`
	AverageSimilarity      float64 `json:"average_similarity"`
	MajorityNormalizedText string  `json:"majority_normalized_text"`
	SuccessCount           int     `json:"success_count"`
	TotalCount             int     `json:"total_count"`
}

// Template is a named prompt loaded from the templates file.
type Template struct {
	Name   string `yaml:"name" json:"name"`
	Prompt string `yaml:"prompt" json:"prompt"`
}
