/*
PURPOSE:
  Gen AI SDK transport for the Gemini generateContent call.

REQUIREMENTS:
  User-specified:
  - Same contents, safety settings and generation options as the REST path.
  - topP is sent only when set; the response MIME type is text/plain.

  Implementation-discovered:
  - The genai client is built on first use so an empty key surfaces as a
    run validation error instead of a construction failure.
  - Inline parts arrive base64-encoded and must be decoded for genai.Blob.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine/orchestrator.go
  - Dependencies: google.golang.org/genai

ERROR HANDLING:
  - genai.APIError is classified by HTTP code like the REST path.
  - An empty candidate text is an unknown failure (falls through to REST).

IMPLEMENTATION RULES:
  - One SDK call per Generate.

USAGE:
  s := engine.NewSDKStrategy(cfg.BaseURL, apiKey)
  gen, err := s.Generate(ctx, req)

RELATED FILES:
  - internal/engine/transport.go
  - internal/engine/rest.go
*/

package engine

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"github.com/daryltucker/consistency-runner/internal/model"
)

type generateFunc func(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

// SDKStrategy calls generateContent through the official Gen AI Go SDK.
// The client is created on first use so a missing key surfaces as a run
// validation error rather than at construction.
type SDKStrategy struct {
	APIKey  string
	BaseURL string

	mu       sync.Mutex
	generate generateFunc
}

// NewSDKStrategy creates an SDK strategy. An empty baseURL uses the SDK default.
func NewSDKStrategy(baseURL, apiKey string) *SDKStrategy {
	return &SDKStrategy{BaseURL: baseURL, APIKey: apiKey}
}

// Name returns the transport identifier.
func (s *SDKStrategy) Name() string {
	return "sdk"
}

// Generate runs one generateContent call through the SDK.
func (s *SDKStrategy) Generate(ctx context.Context, req model.GenerationRequest) (Generation, error) {
	start := time.Now()

	generate, err := s.generator(ctx)
	if err != nil {
		return Generation{}, wrapError(s.Name(), err)
	}

	contents, err := buildSDKContents(req)
	if err != nil {
		return Generation{}, wrapError(s.Name(), err)
	}

	resp, err := generate(ctx, req.Model, contents, buildSDKConfig(req))
	if err != nil {
		return Generation{}, classifySDKError(s.Name(), err)
	}

	text := sdkText(resp)
	latency := time.Since(start)
	if text == "" {
		return Generation{}, &TransportError{Transport: s.Name(), Kind: model.ErrUnknown, Err: errors.New("empty SDK response")}
	}
	return Generation{Text: text, Latency: latency}, nil
}

func (s *SDKStrategy) generator(ctx context.Context) (generateFunc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generate != nil {
		return s.generate, nil
	}

	cc := &genai.ClientConfig{
		APIKey:  s.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if s.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: strings.TrimRight(s.BaseURL, "/") + "/"}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	s.generate = client.Models.GenerateContent
	return s.generate, nil
}

func buildSDKContents(req model.GenerationRequest) ([]*genai.Content, error) {
	parts := make([]*genai.Part, 0, len(req.Parts)+1)
	parts = append(parts, &genai.Part{Text: req.Prompt})

	for i, p := range req.Parts {
		if p.Kind != model.PartInline {
			parts = append(parts, &genai.Part{Text: p.Text})
			continue
		}
		data, err := base64.StdEncoding.DecodeString(p.Data)
		if err != nil {
			return nil, fmt.Errorf("decode inline part %d: %w", i, err)
		}
		mime := p.MIMEType
		if mime == "" {
			mime = "application/octet-stream"
		}
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: mime, Data: data}})
	}

	return []*genai.Content{{Role: "user", Parts: parts}}, nil
}

func buildSDKConfig(req model.GenerationRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(float32(req.Temperature)),
		ResponseMIMEType: "text/plain",
	}
	if req.HasTopP() {
		cfg.TopP = genai.Ptr(float32(req.TopP))
	}
	for _, c := range safetyCategories {
		cfg.SafetySettings = append(cfg.SafetySettings, &genai.SafetySetting{
			Category:  genai.HarmCategory(c),
			Threshold: genai.HarmBlockThreshold(blockNone),
		})
	}
	return cfg
}

// sdkText concatenates the text parts of the first candidate.
func sdkText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

func classifySDKError(transport string, err error) *TransportError {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		te := statusError(transport, apiErr.Code, apiErr.Message)
		te.Err = err
		return te
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		te := statusError(transport, apiErrPtr.Code, apiErrPtr.Message)
		te.Err = err
		return te
	}
	return wrapError(transport, err)
}
