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
package sqlserver

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"cloud.google.com/go/cloudsqlconn"
	mssql "github.com/denisenkom/go-mssqldb"

	"github.com/GoogleCloudPlatform/db-nl-query/internal/config"
	"github.com/GoogleCloudPlatform/db-nl-query/internal/database"
)

const defaultPort = 1433

// schemaColumnsQuery lists base-table columns of the current catalog. The join
// matches on schema as well as table name so same-named tables in different
// schemas keep their own column lists.
const schemaColumnsQuery = `
SELECT t.TABLE_SCHEMA, t.TABLE_NAME, c.COLUMN_NAME, c.DATA_TYPE
FROM INFORMATION_SCHEMA.TABLES AS t
JOIN INFORMATION_SCHEMA.COLUMNS AS c
  ON t.TABLE_CATALOG = c.TABLE_CATALOG
 AND t.TABLE_SCHEMA = c.TABLE_SCHEMA
 AND t.TABLE_NAME = c.TABLE_NAME
WHERE t.TABLE_TYPE = 'BASE TABLE'
  AND t.TABLE_CATALOG = DB_NAME()
  AND t.TABLE_SCHEMA NOT IN ('sys', 'INFORMATION_SCHEMA')
ORDER BY t.TABLE_SCHEMA, t.TABLE_NAME, c.ORDINAL_POSITION`

// sqlServerHandler struct implements database.DialectHandler for SQL Server.
type sqlServerHandler struct{}

var (
	_ database.DialectHandler  = (*sqlServerHandler)(nil)
	_ database.ValueNormalizer = (*sqlServerHandler)(nil)
)

type csqlDialer struct {
	dialer     *cloudsqlconn.Dialer
	connName   string
	usePrivate bool
}

// DialContext adheres to the mssql.Dialer interface.
func (c *csqlDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	var opts []cloudsqlconn.DialOption
	if c.usePrivate {
		opts = append(opts, cloudsqlconn.WithPrivateIP())
	}
	return c.dialer.Dial(ctx, c.connName, opts...)
}

// connectionURL builds a sqlserver:// URL with escaped credentials.
func connectionURL(cfg config.DatabaseConfig, host string, port int) string {
	query := url.Values{}
	query.Set("database", cfg.DBName)
	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(host, strconv.Itoa(port)),
		RawQuery: query.Encode(),
	}
	return u.String()
}

// CreateCloudSQLPool for SQL Server
func (h sqlServerHandler) CreateCloudSQLPool(cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.CloudSQLInstanceConnectionName == "" {
		return nil, fmt.Errorf("cloud SQL instance connection name is required for dialect %s", cfg.Dialect)
	}

	// WithLazyRefresh() Option is used to perform refresh
	// when needed, rather than on a scheduled interval.
	// This is recommended for serverless environments to
	// avoid background refreshes from throttling CPU.
	dialer, err := cloudsqlconn.NewDialer(context.Background(), cloudsqlconn.WithLazyRefresh())
	if err != nil {
		return nil, fmt.Errorf("cloudsqlconn.NewDialer: %w", err)
	}
	connector, err := mssql.NewConnector(connectionURL(cfg, "localhost", defaultPort))
	if err != nil {
		dialer.Close()
		return nil, fmt.Errorf("mssql.NewConnector: %w", err)
	}
	connector.Dialer = &csqlDialer{
		dialer:     dialer,
		connName:   cfg.CloudSQLInstanceConnectionName,
		usePrivate: cfg.UsePrivateIP,
	}

	return sql.OpenDB(connector), nil
}

// CreateStandardPool creates a standard SQL Server connection pool
func (h sqlServerHandler) CreateStandardPool(cfg config.DatabaseConfig) (*sql.DB, error) {
	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}

	dbPool, err := sql.Open("sqlserver", connectionURL(cfg, cfg.Host, port))
	if err != nil {
		return nil, fmt.Errorf("sql.Open (standard sqlserver): %w", err)
	}
	return dbPool, nil
}

func (h sqlServerHandler) Kind() string { return "sqlserver" }

func (h sqlServerHandler) Flavor() database.SQLFlavor {
	return database.SQLFlavor{Product: "SQL Server", Language: "T-SQL"}
}

func (h sqlServerHandler) SchemaColumnsQuery() string { return schemaColumnsQuery }

// NormalizeValue renders UNIQUEIDENTIFIER columns in their canonical text form.
// The driver hands them back as 16 bytes in SQL Server's mixed-endian layout.
func (h sqlServerHandler) NormalizeValue(databaseTypeName string, value any) (any, bool) {
	if !strings.EqualFold(databaseTypeName, "UNIQUEIDENTIFIER") {
		return nil, false
	}
	b, ok := value.([]byte)
	if !ok {
		return nil, false
	}
	var id mssql.UniqueIdentifier
	if err := id.Scan(b); err != nil {
		return nil, false
	}
	return id.String(), true
}

func init() {
	database.RegisterDialectHandler("sqlserver", sqlServerHandler{})
	database.RegisterDialectHandler("cloudsqlsqlserver", sqlServerHandler{})
}
