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
package database

import (
	"context"

	apperrors "github.com/GoogleCloudPlatform/db-nl-query/internal/errors"
)

// Execute runs query verbatim on a pooled connection and returns its rows.
// It performs no SQL validation; callers that need a read-only guarantee must
// vet the statement first. Every failure is reported as ExecutionFailed with
// the driver's message and is not retried.
func (db *DB) Execute(ctx context.Context, query string) (*ResultSet, error) {
	if db.Pool == nil {
		return nil, apperrors.New(apperrors.ExecutionFailed, "database connection pool is not initialized")
	}

	rows, err := db.Pool.QueryContext(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ExecutionFailed, "query failed", err)
	}
	defer rows.Close()

	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ExecutionFailed, "failed to read result columns", err)
	}
	columns := make([]string, len(colTypes))
	typeNames := make([]string, len(colTypes))
	for i, ct := range colTypes {
		columns[i] = ct.Name()
		typeNames[i] = ct.DatabaseTypeName()
	}

	normalizer, _ := db.Handler.(ValueNormalizer)

	result := &ResultSet{Columns: columns, Rows: []Row{}}
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, apperrors.Wrap(apperrors.ExecutionFailed, "failed to scan row", err)
		}
		for i, v := range values {
			if normalizer != nil {
				if nv, ok := normalizer.NormalizeValue(typeNames[i], v); ok {
					values[i] = nv
					continue
				}
			}
			values[i] = normalizeValue(typeNames[i], v)
		}
		result.Rows = append(result.Rows, NewRow(columns, values))
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ExecutionFailed, "failed while iterating rows", err)
	}
	return result, nil
}
