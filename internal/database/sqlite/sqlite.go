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
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/GoogleCloudPlatform/db-nl-query/internal/config"
	"github.com/GoogleCloudPlatform/db-nl-query/internal/database"
)

// SQLite has a single user schema per connection, reported as "main".
const schemaColumnsQuery = `
SELECT 'main' AS table_schema, m.name AS table_name, p.name AS column_name, p.type AS data_type
FROM sqlite_master AS m
JOIN pragma_table_info(m.name) AS p
WHERE m.type = 'table'
  AND m.name NOT LIKE 'sqlite\_%' ESCAPE '\'
ORDER BY m.name, p.cid`

type sqliteHandler struct{}

var _ database.DialectHandler = (*sqliteHandler)(nil)

// DSN returns the go-sqlite3 data source name for a database file or URI.
func DSN(name string) string {
	sep := "?"
	if strings.Contains(name, "?") {
		sep = "&"
	}
	return name + sep + "_foreign_keys=on"
}

func (h sqliteHandler) CreateCloudSQLPool(cfg config.DatabaseConfig) (*sql.DB, error) {
	return nil, fmt.Errorf("cloud SQL is not available for sqlite databases")
}

func (h sqliteHandler) CreateStandardPool(cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.DBName == "" {
		return nil, fmt.Errorf("sqlite database path is required")
	}
	db, err := sql.Open("sqlite3", DSN(cfg.DBName))
	if err != nil {
		return nil, fmt.Errorf("sql.Open (sqlite3): %w", err)
	}
	return db, nil
}

func (h sqliteHandler) Kind() string { return "sqlite" }

func (h sqliteHandler) Flavor() database.SQLFlavor {
	return database.SQLFlavor{Product: "SQLite", Language: "SQLite"}
}

func (h sqliteHandler) SchemaColumnsQuery() string { return schemaColumnsQuery }

func init() {
	database.RegisterDialectHandler("sqlite", sqliteHandler{})
}
