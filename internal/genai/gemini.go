package genai

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const defaultGeminiModel = "gemini-1.5-flash-latest"

// geminiBackend implements Backend using the Google Gemini API.
type geminiBackend struct {
	client *genai.Client
	model  string
}

// NewGeminiBackend creates a Gemini backend authenticated with an API key.
func NewGeminiBackend(ctx context.Context, apiKey, model string, logger *zap.Logger) (Backend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("cannot create Gemini client: API key is missing")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	if model == "" {
		model = defaultGeminiModel
		logger.Info("Gemini model not specified, using default", zap.String("model", model))
	}

	return &geminiBackend{client: client, model: model}, nil
}

// Close cleans up the underlying Gemini client.
func (b *geminiBackend) Close() error {
	if b.client != nil {
		return b.client.Close()
	}
	return nil
}

// Complete sends prompt as a single user turn.
func (b *geminiBackend) Complete(ctx context.Context, prompt string, p SamplingParams) (string, error) {
	if b.client == nil {
		return "", fmt.Errorf("gemini client not initialized")
	}

	model := b.client.GenerativeModel(b.model)
	model.SetTemperature(p.Temperature)
	model.SetMaxOutputTokens(p.MaxOutputTokens)
	model.SetCandidateCount(1)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		if st, ok := status.FromError(err); ok && (st.Code() == codes.Unauthenticated || st.Code() == codes.PermissionDenied) {
			return "", &BackendError{Provider: "gemini", Err: fmt.Errorf("invalid Gemini API key or insufficient permissions: %w", err)}
		}
		return "", fmt.Errorf("Gemini API call failed: %w", err)
	}
	return responseText(resp)
}

// responseText joins the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		finishReason := "unknown"
		safetyRatings := "none"
		if resp != nil && len(resp.Candidates) > 0 {
			finishReason = resp.Candidates[0].FinishReason.String()
			if resp.Candidates[0].SafetyRatings != nil {
				safetyRatings = fmt.Sprintf("%v", resp.Candidates[0].SafetyRatings)
			}
		}
		return "", &BackendError{
			Provider: "gemini",
			Err:      fmt.Errorf("empty or incomplete response. FinishReason: %s, SafetyRatings: %s", finishReason, safetyRatings),
		}
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String(), nil
}
