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
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strings"

	"cloud.google.com/go/cloudsqlconn"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"

	"github.com/GoogleCloudPlatform/db-nl-query/internal/config"
	"github.com/GoogleCloudPlatform/db-nl-query/internal/database"
)

const schemaColumnsQuery = `
SELECT t.table_schema, t.table_name, c.column_name, c.data_type
FROM information_schema.tables AS t
JOIN information_schema.columns AS c
  ON t.table_schema = c.table_schema
 AND t.table_name = c.table_name
WHERE t.table_type = 'BASE TABLE'
  AND t.table_schema NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
ORDER BY t.table_schema, t.table_name, c.ordinal_position`

// postgresHandler struct implements database.DialectHandler for PostgreSQL.
type postgresHandler struct{}

var _ database.DialectHandler = (*postgresHandler)(nil)

// keywordValueDSN renders a libpq keyword/value connection string, quoting
// values so that spaces and quotes in passwords survive.
func keywordValueDSN(pairs ...string) string {
	var parts []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			continue
		}
		v := strings.ReplaceAll(pairs[i+1], `\`, `\\`)
		v = strings.ReplaceAll(v, `'`, `\'`)
		parts = append(parts, fmt.Sprintf("%s='%s'", pairs[i], v))
	}
	return strings.Join(parts, " ")
}

// CreateCloudSQLPool for PostgreSQL
func (h postgresHandler) CreateCloudSQLPool(cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.CloudSQLInstanceConnectionName == "" {
		return nil, fmt.Errorf("cloud SQL instance connection name is required for dialect %s", cfg.Dialect)
	}

	dsn := keywordValueDSN("user", cfg.User, "password", cfg.Password, "database", cfg.DBName)
	pgxConfig, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	var opts []cloudsqlconn.Option
	if cfg.UsePrivateIP {
		opts = append(opts, cloudsqlconn.WithDefaultDialOptions(cloudsqlconn.WithPrivateIP()))
	}
	d, err := cloudsqlconn.NewDialer(context.Background(), opts...)
	if err != nil {
		return nil, err
	}
	instance := cfg.CloudSQLInstanceConnectionName
	pgxConfig.DialFunc = func(ctx context.Context, network, addr string) (net.Conn, error) {
		return d.Dial(ctx, instance)
	}
	dbURI := stdlib.RegisterConnConfig(pgxConfig)
	dbPool, err := sql.Open("pgx", dbURI)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}

	return dbPool, nil
}

// CreateStandardPool creates a standard PostgreSQL connection pool
func (h postgresHandler) CreateStandardPool(cfg config.DatabaseConfig) (*sql.DB, error) {
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	connStr := keywordValueDSN(
		"host", cfg.Host,
		"port", fmt.Sprint(port),
		"user", cfg.User,
		"password", cfg.Password,
		"dbname", cfg.DBName,
		"sslmode", cfg.SSLMode,
	)

	dbPool, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	return dbPool, nil
}

func (h postgresHandler) Kind() string { return "postgres" }

func (h postgresHandler) Flavor() database.SQLFlavor {
	return database.SQLFlavor{Product: "PostgreSQL", Language: "PostgreSQL"}
}

func (h postgresHandler) SchemaColumnsQuery() string { return schemaColumnsQuery }

func init() {
	database.RegisterDialectHandler("postgres", postgresHandler{})
	database.RegisterDialectHandler("cloudsqlpostgres", postgresHandler{})
}
