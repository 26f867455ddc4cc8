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

// Package extract isolates a single read-only SQL statement from free-form
// model output.
//
// The extractor is an allow-list filter, not a parser. It accepts exactly one
// statement that opens with SELECT or WITH and contains none of the forbidden
// keywords once comments, string literals and quoted identifiers are removed.
package extract

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	apperrors "github.com/GoogleCloudPlatform/db-nl-query/internal/errors"
)

// Policy decides what happens when the output holds more than one statement.
type Policy string

const (
	// PolicyFirst keeps the first statement and discards the rest.
	PolicyFirst Policy = "first"
	// PolicyReject fails with AmbiguousOutput.
	PolicyReject Policy = "reject"
)

// ParsePolicy maps a configuration value to a Policy. Empty means PolicyFirst.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyFirst:
		return PolicyFirst, nil
	case PolicyReject:
		return PolicyReject, nil
	default:
		return "", apperrors.New(apperrors.Configuration, fmt.Sprintf("unknown multi-statement policy %q", s))
	}
}

// Extractor vets raw model output down to one read-only statement.
type Extractor struct {
	policy Policy
	logger *zap.Logger
}

// New returns an Extractor applying policy; an empty policy means PolicyFirst.
func New(policy Policy, logger *zap.Logger) *Extractor {
	if policy == "" {
		policy = PolicyFirst
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{policy: policy, logger: logger}
}

// candidate is one statement found in a region, plus how many further
// statements followed it in the same region.
type candidate struct {
	stmt  string
	extra int
}

// Extract returns the vetted statement, trimmed and without a trailing
// semicolon. It fails with NoStatementFound, AmbiguousOutput or
// UnsafeStatement.
func (e *Extractor) Extract(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	regions, fenced := fencedBodies(text)
	if !fenced {
		regions = []string{text}
	}

	for _, region := range regions {
		if verb, found := statementVerb(region, mask(region, true)); found {
			return "", apperrors.New(apperrors.UnsafeStatement, fmt.Sprintf("output contains a %s statement", strings.ToUpper(verb)))
		}
	}

	var candidates []candidate
	for _, region := range regions {
		if c, ok := findStatement(region, !fenced); ok {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return "", apperrors.New(apperrors.NoStatementFound, "no SELECT or WITH statement found in generated text")
	}

	total := 0
	for _, c := range candidates {
		total += 1 + c.extra
	}
	if total > 1 {
		if e.policy == PolicyReject {
			return "", apperrors.New(apperrors.AmbiguousOutput, fmt.Sprintf("generated text contains %d statements", total))
		}
		e.logger.Warn("discarding additional generated statements", zap.Int("statements", total))
	}

	stmt := candidates[0].stmt
	if kw, found := forbiddenToken(stmt); found {
		return "", apperrors.New(apperrors.UnsafeStatement, fmt.Sprintf("statement contains forbidden keyword %s", strings.ToUpper(kw)))
	}
	return stmt, nil
}

func findStatement(region string, trimProse bool) (candidate, bool) {
	pos := locate(region, mask(region, true))
	if pos < 0 {
		return candidate{}, false
	}
	body := region[pos:]
	if trimProse {
		body = cutProse(body)
	}

	pieces := splitTopLevel(body)
	c := candidate{stmt: strings.TrimSpace(pieces[0])}
	for _, p := range pieces[1:] {
		if statementStarter[firstWord(mask(p, false))] {
			c.extra++
		}
	}
	return c, true
}

// fencedBodies returns the bodies of markdown code fences in text. The language
// tag on the opening fence is dropped; an unterminated fence runs to the end.
func fencedBodies(text string) ([]string, bool) {
	const fence = "```"
	if !strings.Contains(text, fence) {
		return nil, false
	}
	var bodies []string
	rest := text
	for {
		open := strings.Index(rest, fence)
		if open < 0 {
			break
		}
		rest = rest[open+len(fence):]
		end := strings.Index(rest, fence)
		nl := strings.IndexByte(rest, '\n')
		if end >= 0 && (nl < 0 || end < nl) {
			// Inline fence: ```sql SELECT 1```
			bodies = append(bodies, dropLanguageTag(rest[:end]))
			rest = rest[end+len(fence):]
			continue
		}
		if nl < 0 {
			break
		}
		rest = rest[nl+1:]
		end = strings.Index(rest, fence)
		if end < 0 {
			bodies = append(bodies, rest)
			break
		}
		bodies = append(bodies, rest[:end])
		rest = rest[end+len(fence):]
	}
	return bodies, true
}

var languageTags = map[string]bool{"sql": true, "tsql": true, "t-sql": true, "mysql": true, "postgresql": true, "postgres": true, "psql": true, "sqlite": true, "plsql": true}

func dropLanguageTag(s string) string {
	trimmed := strings.TrimLeft(s, " \t")
	if i := strings.IndexAny(trimmed, " \t"); i > 0 && languageTags[strings.ToLower(trimmed[:i])] {
		return trimmed[i:]
	}
	return s
}
