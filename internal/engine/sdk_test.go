package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/daryltucker/consistency-runner/internal/model"
)

func sdkWith(fn generateFunc) *SDKStrategy {
	s := NewSDKStrategy("", "key")
	s.generate = fn
	return s
}

func textResponse(parts ...string) *genai.GenerateContentResponse {
	content := &genai.Content{Role: "model"}
	for _, p := range parts {
		content.Parts = append(content.Parts, &genai.Part{Text: p})
	}
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: content}}}
}

func TestSDKGenerateBuildsRequest(t *testing.T) {
	t.Parallel()

	s := sdkWith(func(ctx context.Context, modelName string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		require.Equal(t, "gemini-2.5-flash", modelName)
		require.Len(t, contents, 1)
		require.Equal(t, "user", contents[0].Role)
		require.Len(t, contents[0].Parts, 3)
		require.Equal(t, "Describe", contents[0].Parts[0].Text)
		require.Equal(t, "image/jpeg", contents[0].Parts[1].InlineData.MIMEType)
		require.Equal(t, []byte("hello"), contents[0].Parts[1].InlineData.Data)
		require.Equal(t, "extra", contents[0].Parts[2].Text)

		require.NotNil(t, cfg.Temperature)
		require.InDelta(t, 0.5, float64(*cfg.Temperature), 1e-6)
		require.NotNil(t, cfg.TopP)
		require.InDelta(t, 0.8, float64(*cfg.TopP), 1e-6)
		require.Equal(t, "text/plain", cfg.ResponseMIMEType)
		require.Len(t, cfg.SafetySettings, 4)
		for _, ss := range cfg.SafetySettings {
			require.Equal(t, genai.HarmBlockThresholdBlockNone, ss.Threshold)
		}
		require.Equal(t, genai.HarmCategoryHarassment, cfg.SafetySettings[0].Category)

		return textResponse("It is ", "a cat"), nil
	})

	gen, err := s.Generate(context.Background(), model.GenerationRequest{
		Model:       "gemini-2.5-flash",
		Prompt:      "Describe",
		Parts:       []model.MediaPart{model.InlinePart("image/jpeg", "aGVsbG8="), model.TextPart("extra")},
		Temperature: 0.5,
		TopP:        0.8,
	})
	require.NoError(t, err)
	require.Equal(t, "It is a cat", gen.Text)
}

func TestSDKGenerateOmitsUnsetTopP(t *testing.T) {
	t.Parallel()

	s := sdkWith(func(_ context.Context, _ string, _ []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		require.Nil(t, cfg.TopP)
		return textResponse("x"), nil
	})

	_, err := s.Generate(context.Background(), model.GenerationRequest{Model: "m", Prompt: "p"})
	require.NoError(t, err)
}

func TestSDKGenerateEmptyResponseFails(t *testing.T) {
	t.Parallel()

	s := sdkWith(func(context.Context, string, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		return &genai.GenerateContentResponse{}, nil
	})

	_, err := s.Generate(context.Background(), model.GenerationRequest{Model: "m", Prompt: "p"})
	require.Error(t, err)
	require.Equal(t, model.ErrUnknown, KindOf(err))
	require.Equal(t, "sdk: empty SDK response", err.Error())
}

func TestSDKGenerateClassifiesAPIError(t *testing.T) {
	t.Parallel()

	s := sdkWith(func(context.Context, string, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		return nil, genai.APIError{Code: 429, Message: "quota", Status: "RESOURCE_EXHAUSTED"}
	})

	_, err := s.Generate(context.Background(), model.GenerationRequest{Model: "m", Prompt: "p"})
	require.Error(t, err)
	require.Equal(t, model.ErrRateLimited, KindOf(err))
}

func TestSDKGenerateWrapsOtherErrors(t *testing.T) {
	t.Parallel()

	s := sdkWith(func(context.Context, string, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		return nil, errors.New("boom")
	})

	_, err := s.Generate(context.Background(), model.GenerationRequest{Model: "m", Prompt: "p"})
	require.Error(t, err)
	require.Equal(t, model.ErrUnknown, KindOf(err))
	require.Equal(t, "sdk: boom", err.Error())
}

func TestSDKGenerateRejectsBadBase64(t *testing.T) {
	t.Parallel()

	called := false
	s := sdkWith(func(context.Context, string, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		called = true
		return textResponse("x"), nil
	})

	_, err := s.Generate(context.Background(), model.GenerationRequest{
		Model:  "m",
		Prompt: "p",
		Parts:  []model.MediaPart{model.InlinePart("image/png", "not base64!")},
	})
	require.Error(t, err)
	require.False(t, called)
}
