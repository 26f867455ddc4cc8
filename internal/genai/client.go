/*
 * Copyright 2025 Google LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *    https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package genai turns a schema and a natural-language request into raw SQL
// text by calling a text-generation backend.
package genai

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/db-nl-query/internal/config"
	"github.com/GoogleCloudPlatform/db-nl-query/internal/database"
	apperrors "github.com/GoogleCloudPlatform/db-nl-query/internal/errors"
)

// Backend is one text-generation service.
type Backend interface {
	// Complete returns the model's raw text for prompt.
	Complete(ctx context.Context, prompt string, p SamplingParams) (string, error)
}

// SamplingParams are applied to every backend call.
type SamplingParams struct {
	Temperature     float32
	MaxOutputTokens int32
}

// DefaultSamplingParams is deterministic sampling with a bounded output.
var DefaultSamplingParams = SamplingParams{Temperature: 0, MaxOutputTokens: 512}

type Options struct {
	Flavor   database.SQLFlavor
	Sampling SamplingParams
	Retry    RetryOptions
	// Timeout bounds a single backend attempt. Zero means no per-attempt limit.
	Timeout time.Duration
}

// Client builds prompts and calls its backend with bounded retries.
type Client struct {
	backend Backend
	opts    Options
	logger  *zap.Logger
}

func NewClient(backend Backend, opts Options, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Sampling.MaxOutputTokens <= 0 {
		opts.Sampling.MaxOutputTokens = DefaultSamplingParams.MaxOutputTokens
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = DefaultRetryOptions
	}
	return &Client{backend: backend, opts: opts, logger: logger}
}

// NewBackend creates the backend named by cfg.Provider.
func NewBackend(ctx context.Context, cfg config.GenerationConfig, logger *zap.Logger) (Backend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Provider {
	case "", "gemini":
		return NewGeminiBackend(ctx, cfg.APIKey, cfg.Model, logger)
	case "openai":
		return NewOpenAIBackend(OpenAIConfig{BaseURL: cfg.BaseURL, APIKey: cfg.APIKey, Model: cfg.Model, Timeout: cfg.Timeout})
	default:
		return nil, apperrors.New(apperrors.Configuration, fmt.Sprintf("unsupported generation provider %q", cfg.Provider))
	}
}

// OptionsFromConfig maps the generation section of the configuration onto client options.
func OptionsFromConfig(cfg config.GenerationConfig, flavor database.SQLFlavor) Options {
	return Options{
		Flavor: flavor,
		Sampling: SamplingParams{
			Temperature:     cfg.Temperature,
			MaxOutputTokens: cfg.MaxOutputTokens,
		},
		Retry: RetryOptions{
			MaxAttempts:       cfg.MaxAttempts,
			InitialBackoff:    cfg.InitialBackoff,
			MaxBackoff:        cfg.MaxBackoff,
			BackoffMultiplier: DefaultRetryOptions.BackoffMultiplier,
		},
		Timeout: cfg.Timeout,
	}
}

// BuildPrompt renders the prompt for the client's SQL flavor.
func (c *Client) BuildPrompt(schemaText, request string) string {
	return BuildPrompt(c.opts.Flavor, schemaText, request)
}

// Complete calls the backend with prompt. Transient failures are retried;
// anything else, and an empty answer, is reported as GenerationFailed.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	text, err := withRetry(ctx, c.opts.Retry, c.logger, func(ctx context.Context) (string, error) {
		if c.opts.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
			defer cancel()
		}
		return c.backend.Complete(ctx, prompt, c.opts.Sampling)
	})
	if err != nil {
		return "", apperrors.Wrap(apperrors.GenerationFailed, "text generation failed", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", apperrors.New(apperrors.GenerationFailed, "backend returned empty output")
	}
	return text, nil
}

// Generate builds the prompt for schemaText and request and returns the raw
// generated text.
func (c *Client) Generate(ctx context.Context, schemaText, request string) (string, error) {
	return c.Complete(ctx, c.BuildPrompt(schemaText, request))
}

// Close releases backend resources when the backend holds any.
func (c *Client) Close() error {
	if closer, ok := c.backend.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
