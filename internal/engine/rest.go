/*
PURPOSE:
  Direct HTTP transport for the Gemini generateContent endpoint, and model
  discovery for the list-models command.

REQUIREMENTS:
  User-specified:
  - POST {base}/v1beta/models/{model}:generateContent?key={apiKey}.
  - Same contents/safety/generation shape as the SDK path, with an explicit
    thinking budget of zero.
  - 429 and 503 are transient; every other non-2xx is a client error.

  Implementation-discovered:
  - Timeouts come from the request context (the orchestrator sets the
    deadline), so the http.Client itself has no overall Timeout.
  - Responses of an unexpected shape fall back to the raw body text.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine/orchestrator.go, internal/cli/list_models.go
  - Uses: internal/model

ERROR HANDLING:
  - Returns *TransportError for every failure.

IMPLEMENTATION RULES:
  - Use net/http.
  - One outbound request per Generate call.

USAGE:
  s := engine.NewRESTStrategy(cfg.BaseURL, apiKey)
  gen, err := s.Generate(ctx, req)

SELF-HEALING INSTRUCTIONS:
  - If the API changes, update endpoints (/v1beta/models, :generateContent).

RELATED FILES:
  - internal/engine/transport.go
  - internal/engine/sdk.go
*/

package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/daryltucker/consistency-runner/internal/model"
	"github.com/daryltucker/consistency-runner/internal/output"
)

// DefaultBaseURL is the public Gemini API host.
const DefaultBaseURL = "https://generativelanguage.googleapis.com"

// maxErrorBody caps how much of an error response is kept in messages.
const maxErrorBody = 4096

// RESTStrategy calls generateContent over plain HTTP.
type RESTStrategy struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewRESTStrategy creates a REST strategy with its own transport.
func NewRESTStrategy(baseURL, apiKey string) *RESTStrategy {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()

	return &RESTStrategy{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Client:  &http.Client{Transport: transport},
	}
}

// Name returns the transport identifier.
func (s *RESTStrategy) Name() string {
	return "rest"
}

// Generate runs one generateContent request.
func (s *RESTStrategy) Generate(ctx context.Context, req model.GenerationRequest) (Generation, error) {
	payload, err := json.Marshal(buildRESTRequest(req))
	if err != nil {
		return Generation{}, wrapError(s.Name(), fmt.Errorf("marshal request: %w", err))
	}
	output.Logger.Debug("REST request body", "model", req.Model, "bytes", len(payload))

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		s.BaseURL, url.PathEscape(req.Model), url.QueryEscape(s.APIKey))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return Generation{}, wrapError(s.Name(), fmt.Errorf("build request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.Client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return Generation{}, wrapError(s.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return Generation{}, statusError(s.Name(), resp.StatusCode, strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Generation{}, wrapError(s.Name(), fmt.Errorf("read response body: %w", err))
	}

	text, err := extractRESTText(body)
	if err != nil {
		return Generation{}, wrapError(s.Name(), err)
	}
	return Generation{Text: text, Latency: latency}, nil
}

// ModelInfo describes one model returned by the models listing.
type ModelInfo struct {
	Name        string
	DisplayName string
}

// ListModels returns the models that support generateContent.
func (s *RESTStrategy) ListModels(ctx context.Context) ([]ModelInfo, error) {
	var models []ModelInfo
	pageToken := ""

	for {
		endpoint := fmt.Sprintf("%s/v1beta/models?key=%s&pageSize=1000", s.BaseURL, url.QueryEscape(s.APIKey))
		if pageToken != "" {
			endpoint += "&pageToken=" + url.QueryEscape(pageToken)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		resp, err := s.Client.Do(req)
		if err != nil {
			return nil, wrapError(s.Name(), err)
		}

		var payload struct {
			Models []struct {
				Name                       string   `json:"name"`
				DisplayName                string   `json:"displayName"`
				SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
			} `json:"models"`
			NextPageToken string `json:"nextPageToken"`
		}

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			resp.Body.Close()
			return nil, statusError(s.Name(), resp.StatusCode, strings.TrimSpace(string(body)))
		}
		err = json.NewDecoder(resp.Body).Decode(&payload)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("decode models: %w", err)
		}

		for _, m := range payload.Models {
			for _, method := range m.SupportedGenerationMethods {
				if method == "generateContent" {
					models = append(models, ModelInfo{
						Name:        strings.TrimPrefix(m.Name, "models/"),
						DisplayName: m.DisplayName,
					})
					break
				}
			}
		}

		if payload.NextPageToken == "" {
			return models, nil
		}
		pageToken = payload.NextPageToken
	}
}

type restRequest struct {
	Contents         []restContent       `json:"contents"`
	SafetySettings   []restSafetySetting `json:"safetySettings"`
	GenerationConfig restGenConfig       `json:"generationConfig"`
}

type restContent struct {
	Role  string     `json:"role"`
	Parts []restPart `json:"parts"`
}

type restPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *restInline `json:"inline_data,omitempty"`
}

type restInline struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type restSafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type restGenConfig struct {
	Temperature      float64            `json:"temperature"`
	TopP             *float64           `json:"topP,omitempty"`
	ResponseMIMEType string             `json:"response_mime_type"`
	ThinkingConfig   restThinkingConfig `json:"thinkingConfig"`
}

type restThinkingConfig struct {
	ThinkingBudget int `json:"thinkingBudget"`
}

type restResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func buildRESTRequest(req model.GenerationRequest) restRequest {
	parts := make([]restPart, 0, len(req.Parts)+1)
	parts = append(parts, restPart{Text: req.Prompt})
	for _, p := range req.Parts {
		parts = append(parts, toRESTPart(p))
	}

	safety := make([]restSafetySetting, 0, len(safetyCategories))
	for _, c := range safetyCategories {
		safety = append(safety, restSafetySetting{Category: c, Threshold: blockNone})
	}

	cfg := restGenConfig{
		Temperature:      req.Temperature,
		ResponseMIMEType: "text/plain",
	}
	if req.HasTopP() {
		topP := req.TopP
		cfg.TopP = &topP
	}

	return restRequest{
		Contents:         []restContent{{Role: "user", Parts: parts}},
		SafetySettings:   safety,
		GenerationConfig: cfg,
	}
}

func toRESTPart(p model.MediaPart) restPart {
	if p.Kind == model.PartInline {
		mime := p.MIMEType
		if mime == "" {
			mime = "application/octet-stream"
		}
		return restPart{InlineData: &restInline{MIMEType: mime, Data: p.Data}}
	}
	return restPart{Text: p.Text}
}

// extractRESTText joins the text parts of the first candidate. A body of an
// unexpected shape (or with no text) is returned verbatim.
func extractRESTText(body []byte) (string, error) {
	var resp restResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("invalid JSON response: %w", err)
	}

	var sb strings.Builder
	if len(resp.Candidates) > 0 {
		for _, p := range resp.Candidates[0].Content.Parts {
			sb.WriteString(p.Text)
		}
	}
	if sb.Len() > 0 {
		return sb.String(), nil
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, body); err != nil {
		return string(body), nil
	}
	return compact.String(), nil
}
