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

// Package nlquery answers natural-language questions against a database by
// chaining schema retrieval, SQL generation, statement vetting and execution.
package nlquery

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/db-nl-query/internal/database"
	apperrors "github.com/GoogleCloudPlatform/db-nl-query/internal/errors"
	"github.com/GoogleCloudPlatform/db-nl-query/internal/metrics"
)

const DefaultRequestTimeout = 60 * time.Second

// SchemaSource supplies the schema text used to ground generation.
type SchemaSource interface {
	FetchSchema(ctx context.Context) (string, error)
}

// Generator turns a grounded prompt into raw, untrusted model output.
type Generator interface {
	BuildPrompt(schemaText, request string) string
	Complete(ctx context.Context, prompt string) (string, error)
}

// StatementExtractor vets raw model output down to one read-only statement.
type StatementExtractor interface {
	Extract(raw string) (string, error)
}

type Executor interface {
	Execute(ctx context.Context, query string) (*database.ResultSet, error)
}

type Deps struct {
	Schema    SchemaSource
	Generator Generator
	Extractor StatementExtractor
	Executor  Executor
	Logger    *zap.Logger
}

type Options struct {
	// RequestTimeout bounds one whole request; zero means DefaultRequestTimeout.
	RequestTimeout time.Duration
}

type QueryRequest struct {
	Text string
}

// Stage names a step of the answer pipeline. Stages are used as log fields
// and as the label of the stage duration histogram.
type Stage string

const (
	StageStart         Stage = "start"
	StageSchemaFetched Stage = "schema_fetched"
	StagePromptBuilt   Stage = "prompt_built"
	StageGenerated     Stage = "generated"
	StageExtracted     Stage = "extracted"
	StageExecuted      Stage = "executed"
	StageDone          Stage = "done"
)

const (
	operationNLQuery   = "nl_query"
	operationQueryData = "query_data"
)

type Service struct {
	schema    SchemaSource
	generator Generator
	extractor StatementExtractor
	executor  Executor
	timeout   time.Duration
	logger    *zap.Logger
}

func NewService(deps Deps, opts Options) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Service{
		schema:    deps.Schema,
		generator: deps.Generator,
		extractor: deps.Extractor,
		executor:  deps.Executor,
		timeout:   timeout,
		logger:    logger,
	}
}

// Answer runs the full pipeline for one natural-language request. The first
// failing stage ends the request; its error carries the failure kind and the
// collaborator's message. The vetted statement is executed exactly once.
func (s *Service) Answer(ctx context.Context, req QueryRequest) (result *database.ResultSet, err error) {
	logger := s.logger.With(zap.String("request_id", uuid.NewString()))
	defer func() { observe(operationNLQuery, err) }()

	text := strings.TrimSpace(req.Text)
	if text == "" {
		err = apperrors.New(apperrors.InvalidRequest, "request text is empty")
		logger.Warn("rejected request", zap.Error(err))
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	logger.Info("answering request", zap.String("stage", string(StageStart)), zap.Int("request_chars", len(text)))
	started := time.Now()

	var schemaText string
	err = s.stage(logger, StageSchemaFetched, apperrors.SchemaUnavailable, func() (err error) {
		schemaText, err = s.schema.FetchSchema(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	var prompt string
	_ = s.stage(logger, StagePromptBuilt, "", func() error {
		prompt = s.generator.BuildPrompt(schemaText, text)
		return nil
	})

	var raw string
	err = s.stage(logger, StageGenerated, apperrors.GenerationFailed, func() (err error) {
		raw, err = s.generator.Complete(ctx, prompt)
		return err
	})
	if err != nil {
		return nil, err
	}

	var statement string
	err = s.stage(logger, StageExtracted, apperrors.NoStatementFound, func() (err error) {
		statement, err = s.extractor.Extract(raw)
		return err
	})
	if err != nil {
		logger.Debug("rejected generated output", zap.String("output", raw))
		return nil, err
	}
	logger.Debug("vetted statement", zap.String("sql", statement))

	err = s.stage(logger, StageExecuted, apperrors.ExecutionFailed, func() (err error) {
		result, err = s.executor.Execute(ctx, statement)
		return err
	})
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(started)
	metrics.ObserveStage(string(StageDone), elapsed)
	logger.Info("request answered",
		zap.String("stage", string(StageDone)),
		zap.Int("rows", len(result.Rows)),
		zap.Duration("elapsed", elapsed))
	return result, nil
}

// QueryData executes sql as given, without vetting. Failures are reported
// exactly as the executor returns them.
func (s *Service) QueryData(ctx context.Context, sql string) (result *database.ResultSet, err error) {
	defer func() { observe(operationQueryData, err) }()

	if strings.TrimSpace(sql) == "" {
		return nil, apperrors.New(apperrors.InvalidRequest, "sql is empty")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err = s.executor.Execute(ctx, sql)
	if err != nil {
		s.logger.Warn("query_data failed", zap.Error(err))
		return nil, ensureKind(err, apperrors.ExecutionFailed)
	}
	return result, nil
}

// stage times fn, logs its outcome and gives untyped failures the stage's
// default kind.
func (s *Service) stage(logger *zap.Logger, stage Stage, kind apperrors.Kind, fn func() error) error {
	start := time.Now()
	err := fn()
	d := time.Since(start)
	metrics.ObserveStage(string(stage), d)

	if err != nil {
		err = ensureKind(err, kind)
		logger.Warn("request failed",
			zap.String("stage", string(stage)),
			zap.String("kind", string(apperrors.KindOf(err))),
			zap.Duration("elapsed", d),
			zap.Error(err))
		return err
	}
	logger.Debug("stage completed", zap.String("stage", string(stage)), zap.Duration("elapsed", d))
	return nil
}

func ensureKind(err error, kind apperrors.Kind) error {
	if apperrors.KindOf(err) != "" {
		return err
	}
	return apperrors.Wrap(kind, "request failed", err)
}

func observe(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(apperrors.KindOf(err))
	}
	metrics.ObserveRequest(operation, outcome)
}
