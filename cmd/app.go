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
package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/db-nl-query/internal/config"
	"github.com/GoogleCloudPlatform/db-nl-query/internal/database"
	"github.com/GoogleCloudPlatform/db-nl-query/internal/extract"
	"github.com/GoogleCloudPlatform/db-nl-query/internal/genai"
	"github.com/GoogleCloudPlatform/db-nl-query/internal/logging"
	"github.com/GoogleCloudPlatform/db-nl-query/internal/nlquery"
	"github.com/GoogleCloudPlatform/db-nl-query/internal/schema"
)

// app holds the process-lifetime collaborators shared by the subcommands.
type app struct {
	db      *database.DB
	catalog *schema.Catalog
	client  *genai.Client
	service *nlquery.Service
}

func setupDatabase(ctx context.Context, c *config.Config) (*database.DB, error) {
	db, err := database.New(ctx, c.Database)
	if err != nil {
		logger.Error("failed to connect to database",
			zap.String("dialect", c.Database.Dialect),
			zap.String("database", c.Database.DBName),
			zap.Error(err))
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	logger.Info("connected to database",
		zap.String("dialect", c.Database.Dialect),
		zap.String("database", c.Database.DBName))
	return db, nil
}

// newApp connects to the database and, when withGeneration is set, builds the
// generation client and the full answer pipeline. Without generation the
// service can still serve QueryData.
func newApp(ctx context.Context, c *config.Config, withGeneration bool) (*app, error) {
	if withGeneration {
		if err := c.RequireGeneration(); err != nil {
			return nil, err
		}
	}
	policy, err := extract.ParsePolicy(c.Pipeline.MultiStatementPolicy)
	if err != nil {
		return nil, err
	}

	db, err := setupDatabase(ctx, c)
	if err != nil {
		return nil, err
	}

	a := &app{db: db}
	a.catalog = schema.NewCatalog(db, schema.Options{
		CacheTTL:  c.Schema.CacheTTL,
		CacheSize: c.Schema.CacheSize,
		Identity:  c.Database.DatabaseIdentity(),
	}, logging.Component(logger, "schema"))

	deps := nlquery.Deps{
		Schema:    a.catalog,
		Extractor: extract.New(policy, logging.Component(logger, "extract")),
		Executor:  db,
		Logger:    logging.Component(logger, "nlquery"),
	}
	if withGeneration {
		backend, err := genai.NewBackend(ctx, c.Generation, logging.Component(logger, "genai"))
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		a.client = genai.NewClient(backend, genai.OptionsFromConfig(c.Generation, db.Flavor()), logging.Component(logger, "genai"))
		deps.Generator = a.client
	}
	a.service = nlquery.NewService(deps, nlquery.Options{RequestTimeout: c.Pipeline.RequestTimeout})
	return a, nil
}

func (a *app) Close() {
	if a.client != nil {
		if err := a.client.Close(); err != nil {
			logger.Warn("failed to close generation client", zap.Error(err))
		}
	}
	if err := a.db.Close(); err != nil {
		logger.Warn("failed to close database", zap.Error(err))
	}
}
