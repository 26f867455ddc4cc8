package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com"
	defaultOpenAIModel   = "gpt-4"
)

type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// openAIBackend calls an OpenAI-compatible chat completions endpoint.
type openAIBackend struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func NewOpenAIBackend(cfg OpenAIConfig) (Backend, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultOpenAIModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &openAIBackend{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(cfg.APIKey),
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
	MaxTokens   int32         `json:"max_tokens"`
}

func (b *openAIBackend) Complete(ctx context.Context, prompt string, p SamplingParams) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       b.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: p.Temperature,
		MaxTokens:   p.MaxOutputTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request chat completion: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &BackendError{Provider: "openai", Retryable: true, Err: fmt.Errorf("read chat response body: %w", err)}
	}
	if resp.StatusCode >= 400 {
		msg := gjson.GetBytes(raw, "error.message").String()
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return "", &BackendError{
			Provider:   "openai",
			StatusCode: resp.StatusCode,
			Retryable:  retryableHTTPStatus(resp.StatusCode),
			Err:        fmt.Errorf("chat completion failed: %s", msg),
		}
	}

	if !gjson.ValidBytes(raw) {
		return "", &BackendError{Provider: "openai", Err: fmt.Errorf("decode chat completion response: invalid JSON")}
	}
	content := gjson.GetBytes(raw, "choices.0.message.content")
	if !content.Exists() {
		return "", &BackendError{Provider: "openai", Err: fmt.Errorf("empty chat completion choices")}
	}
	return content.String(), nil
}
