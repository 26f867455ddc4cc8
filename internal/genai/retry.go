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
package genai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/url"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/GoogleCloudPlatform/db-nl-query/internal/metrics"
)

// RetryOptions configures the retry behavior
type RetryOptions struct {
	MaxAttempts       int           // Maximum number of attempts, including the first
	InitialBackoff    time.Duration // Initial backoff duration
	MaxBackoff        time.Duration // Maximum backoff duration
	BackoffMultiplier float64       // Multiplier for exponential backoff
}

// DefaultRetryOptions provides sensible default retry settings
var DefaultRetryOptions = RetryOptions{
	MaxAttempts:       3,
	InitialBackoff:    200 * time.Millisecond,
	MaxBackoff:        2 * time.Second,
	BackoffMultiplier: 2.0,
}

// BackendError is returned by backends for failed calls whose retryability is
// known from the response, such as an HTTP status.
type BackendError struct {
	Provider   string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *BackendError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s backend returned status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s backend: %v", e.Provider, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

func retryableHTTPStatus(code int) bool {
	return code == 408 || code == 429 || code >= 500
}

// IsTransient reports whether err is a backend condition worth retrying:
// rate limiting, server-side failures, timeouts and connection errors.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var be *BackendError
	if errors.As(err, &be) {
		return be.Retryable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return retryableHTTPStatus(gerr.Code)
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Aborted, codes.Internal:
			return true
		}
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// backoffFor returns the wait before the attempt following attempt (zero-based).
func backoffFor(opts RetryOptions, attempt int) time.Duration {
	mult := opts.BackoffMultiplier
	if mult < 1 {
		mult = 1
	}
	backoff := time.Duration(float64(opts.InitialBackoff) * math.Pow(mult, float64(attempt)))
	if opts.MaxBackoff > 0 && backoff > opts.MaxBackoff {
		backoff = opts.MaxBackoff
	}
	return backoff
}

// withRetry executes op until it succeeds, fails with a non-transient error,
// exhausts opts.MaxAttempts or ctx is done.
func withRetry[T any](ctx context.Context, opts RetryOptions, logger *zap.Logger, op func(context.Context) (T, error)) (T, error) {
	var lastErr error
	var result T

	attempts := opts.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			return result, lastErr
		}

		result, lastErr = op(ctx)
		if lastErr == nil {
			return result, nil
		}
		if !IsTransient(lastErr) || attempt == attempts-1 {
			return result, lastErr
		}

		backoff := backoffFor(opts, attempt)
		logger.Warn("generation attempt failed, retrying",
			zap.Int("attempt", attempt+1), zap.Duration("backoff", backoff), zap.Error(lastErr))
		metrics.IncGenerationRetry()

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return result, errors.Join(lastErr, ctx.Err())
		case <-timer.C:
		}
	}

	return result, lastErr
}
