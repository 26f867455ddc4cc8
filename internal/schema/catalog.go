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

// Package schema turns database metadata into the plain-text schema description
// that grounds SQL generation.
package schema

import (
	"context"
	"strings"
	"time"

	"github.com/coocood/freecache"
	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/db-nl-query/internal/database"
	apperrors "github.com/GoogleCloudPlatform/db-nl-query/internal/errors"
	"github.com/GoogleCloudPlatform/db-nl-query/internal/metrics"
)

// ColumnLister is the metadata access the catalog needs.
type ColumnLister interface {
	ListSchemaColumns(ctx context.Context) ([]database.ColumnDescriptor, error)
}

// Options configures the optional schema text cache. A zero CacheTTL disables it.
type Options struct {
	CacheTTL  time.Duration
	CacheSize int
	// Identity keys the cached entry, normally config.DatabaseConfig.DatabaseIdentity().
	Identity string
}

// Catalog produces the schema text of one database.
type Catalog struct {
	db     ColumnLister
	cache  *freecache.Cache
	ttl    time.Duration
	key    []byte
	logger *zap.Logger
}

func NewCatalog(db ColumnLister, opts Options, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Catalog{db: db, logger: logger}
	if opts.CacheTTL > 0 {
		size := opts.CacheSize
		if size <= 0 {
			size = 4 * 1024 * 1024
		}
		c.cache = freecache.NewCache(size)
		c.ttl = opts.CacheTTL
		c.key = []byte("schema|" + opts.Identity)
	}
	return c
}

// FetchSchema returns the current schema text. Failures are reported as
// SchemaUnavailable; there is no degraded mode.
func (c *Catalog) FetchSchema(ctx context.Context) (string, error) {
	if c.cache != nil {
		if b, err := c.cache.Get(c.key); err == nil {
			metrics.ObserveSchemaCache(true)
			return string(b), nil
		}
		metrics.ObserveSchemaCache(false)
	}

	columns, err := c.db.ListSchemaColumns(ctx)
	if err != nil {
		c.logger.Error("schema metadata query failed", zap.Error(err))
		return "", apperrors.Wrap(apperrors.SchemaUnavailable, "failed to read schema metadata", err)
	}
	text := Render(columns)

	if c.cache != nil {
		if err := c.cache.Set(c.key, []byte(text), expireSeconds(c.ttl)); err != nil {
			// Oversized entries are served uncached.
			c.logger.Warn("schema text not cached", zap.Int("bytes", len(text)), zap.Error(err))
		}
	}
	c.logger.Debug("schema fetched", zap.Int("columns", len(columns)), zap.Int("bytes", len(text)))
	return text, nil
}

// Invalidate drops the cached schema text so the next fetch reads metadata again.
func (c *Catalog) Invalidate() {
	if c.cache != nil {
		c.cache.Del(c.key)
	}
}

func expireSeconds(ttl time.Duration) int {
	s := int(ttl / time.Second)
	if s < 1 {
		return 1
	}
	return s
}

// Render serializes columns, already ordered by schema, table and ordinal
// position, into one CREATE TABLE block per table. The blocks are never closed;
// the text is written for a language model, not a SQL parser.
func Render(columns []database.ColumnDescriptor) string {
	var b strings.Builder
	var lastSchema, lastTable string
	for i, col := range columns {
		if i == 0 || col.SchemaName != lastSchema || col.TableName != lastTable {
			qualified := col.SchemaName + "." + col.TableName
			b.WriteString("\n-- ")
			b.WriteString(qualified)
			b.WriteString("\nCREATE TABLE ")
			b.WriteString(qualified)
			b.WriteString(" (\n")
			lastSchema, lastTable = col.SchemaName, col.TableName
		}
		b.WriteString("    ")
		b.WriteString(col.ColumnName)
		b.WriteByte(' ')
		b.WriteString(col.DataTypeName)
		b.WriteString(",\n")
	}
	return b.String()
}
