package genai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	apperrors "github.com/GoogleCloudPlatform/db-nl-query/internal/errors"
)

func TestOpenAIBackendComplete(t *testing.T) {
	var seen []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		seen, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"SELECT TOP 5 Name FROM Production.Product"}}]}`))
	}))
	defer srv.Close()

	b, err := NewOpenAIBackend(OpenAIConfig{BaseURL: srv.URL + "/", APIKey: "test-key"})
	require.NoError(t, err)

	got, err := b.Complete(context.Background(), "the prompt", SamplingParams{Temperature: 0, MaxOutputTokens: 512})
	require.NoError(t, err)
	assert.Equal(t, "SELECT TOP 5 Name FROM Production.Product", got)

	assert.Equal(t, "gpt-4", gjson.GetBytes(seen, "model").String())
	assert.Equal(t, "user", gjson.GetBytes(seen, "messages.0.role").String())
	assert.Equal(t, "the prompt", gjson.GetBytes(seen, "messages.0.content").String())
	assert.Equal(t, float64(0), gjson.GetBytes(seen, "temperature").Float())
	assert.Equal(t, int64(512), gjson.GetBytes(seen, "max_tokens").Int())
}

func TestOpenAIBackendErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		retryable bool
		contains  string
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"Rate limit reached"}}`, true, "Rate limit reached"},
		{"server error", http.StatusBadGateway, `upstream failure`, true, "upstream failure"},
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"Incorrect API key provided"}}`, false, "Incorrect API key"},
		{"no choices", http.StatusOK, `{"choices":[]}`, false, "empty chat completion choices"},
		{"invalid json", http.StatusOK, `not json`, false, "invalid JSON"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			b, err := NewOpenAIBackend(OpenAIConfig{BaseURL: srv.URL, APIKey: "k"})
			require.NoError(t, err)

			_, err = b.Complete(context.Background(), "p", DefaultSamplingParams)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
			assert.Equal(t, tt.retryable, IsTransient(err))
		})
	}
}

func TestOpenAIBackendRetriedByClient(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": "SELECT 1"}}},
		})
	}))
	defer srv.Close()

	b, err := NewOpenAIBackend(OpenAIConfig{BaseURL: srv.URL, APIKey: "k"})
	require.NoError(t, err)

	c := NewClient(b, Options{Flavor: sqlServer, Retry: fastRetry}, nil)
	got, err := c.Generate(context.Background(), "schema", "request")
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", got)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestOpenAIBackendUnauthorizedIsGenerationFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	b, err := NewOpenAIBackend(OpenAIConfig{BaseURL: srv.URL, APIKey: "k"})
	require.NoError(t, err)

	_, err = NewClient(b, Options{Retry: fastRetry}, nil).Generate(context.Background(), "s", "r")
	assert.Equal(t, apperrors.GenerationFailed, apperrors.KindOf(err))
}

func TestNewOpenAIBackendRequiresKey(t *testing.T) {
	_, err := NewOpenAIBackend(OpenAIConfig{})
	assert.Error(t, err)
}
