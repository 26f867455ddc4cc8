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

// Package errors defines the failure taxonomy of the natural-language query
// pipeline. Every component boundary reports failures as an *E carrying a
// machine-readable Kind and the originating collaborator's message, so the
// transport layer can return a structured error to the caller.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind is a machine-readable failure category.
type Kind string

const (
	// SchemaUnavailable indicates the metadata query failed.
	SchemaUnavailable Kind = "schema_unavailable"
	// GenerationFailed indicates the text-generation backend was unreachable or errored.
	GenerationFailed Kind = "generation_failed"
	// NoStatementFound indicates the generated text held no read-only statement.
	NoStatementFound Kind = "no_statement_found"
	// AmbiguousOutput indicates the generated text held several candidate statements
	// and the extractor was configured to reject rather than pick the first.
	AmbiguousOutput Kind = "ambiguous_output"
	// UnsafeStatement indicates a data or schema modification keyword was found.
	UnsafeStatement Kind = "unsafe_statement"
	// ExecutionFailed indicates the database rejected or failed the statement.
	ExecutionFailed Kind = "execution_failed"
	// InvalidRequest indicates the caller supplied unusable input.
	InvalidRequest Kind = "invalid_request"
	// Configuration indicates the process is misconfigured.
	Configuration Kind = "configuration"
)

// E wraps an error with a kind and a human-friendly message.
type E struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *E) Unwrap() error { return e.Err }

// Is reports whether target is an *E of the same kind, so that
// errors.Is(err, errors.New(kind, "")) matches on kind alone.
func (e *E) Is(target error) bool {
	t, ok := target.(*E)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func Wrap(kind Kind, msg string, err error) *E { return &E{Kind: kind, Message: msg, Err: err} }
func New(kind Kind, msg string) *E             { return &E{Kind: kind, Message: msg} }

// KindOf returns the kind of the first *E in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *E
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
