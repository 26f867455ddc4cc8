package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/db-nl-query/internal/config"
)

// DBAdapter defines the database operations needed by the query pipeline.
type DBAdapter interface {
	ListSchemaColumns(ctx context.Context) ([]ColumnDescriptor, error)
	Execute(ctx context.Context, query string) (*ResultSet, error)
	Kind() string
	Flavor() SQLFlavor
	Ping(ctx context.Context) error
	Close() error
	GetConfig() config.DatabaseConfig
}

var _ DBAdapter = (*DB)(nil)

// DB holds the database connection pool and dialect handler.
type DB struct {
	Pool    *sql.DB
	Handler DialectHandler
	Config  config.DatabaseConfig
}

// ColumnDescriptor is one column as reported by the database's metadata views.
type ColumnDescriptor struct {
	SchemaName   string
	TableName    string
	ColumnName   string
	DataTypeName string
}

// SQLFlavor names the database product and SQL language used when prompting for queries.
type SQLFlavor struct {
	Product  string // e.g. "SQL Server"
	Language string // e.g. "T-SQL"
}

// DialectHandler is implemented by each supported database dialect.
type DialectHandler interface {
	CreateCloudSQLPool(cfg config.DatabaseConfig) (*sql.DB, error)
	CreateStandardPool(cfg config.DatabaseConfig) (*sql.DB, error)
	// Kind is the database kind used in the schema resource URI (schema://<kind>).
	Kind() string
	Flavor() SQLFlavor
	// SchemaColumnsQuery lists base-table columns as (schema, table, column, data type),
	// ordered by schema name, table name and ordinal position.
	SchemaColumnsQuery() string
}

// ValueNormalizer is optionally implemented by dialects whose driver returns
// values that need a dialect-specific conversion (e.g. SQL Server GUIDs).
type ValueNormalizer interface {
	NormalizeValue(databaseTypeName string, value any) (any, bool)
}

var (
	dialectHandlers = make(map[string]DialectHandler)
	mu              sync.RWMutex
)

func RegisterDialectHandler(dialect string, handler DialectHandler) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := dialectHandlers[dialect]; exists {
		zap.L().Warn("dialect handler is being overwritten", zap.String("dialect", dialect))
	}
	dialectHandlers[dialect] = handler
}

func GetDialectHandler(dialect string) (DialectHandler, error) {
	mu.RLock()
	defer mu.RUnlock()
	handler, ok := dialectHandlers[dialect]
	if !ok {
		return nil, fmt.Errorf("unsupported database dialect: %s", dialect)
	}
	return handler, nil
}

// New opens a pooled connection for cfg.Dialect and verifies it with a ping.
func New(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	handler, err := GetDialectHandler(cfg.Dialect)
	if err != nil {
		return nil, err
	}

	var pool *sql.DB
	if strings.HasPrefix(cfg.Dialect, "cloudsql") {
		pool, err = handler.CreateCloudSQLPool(cfg)
	} else {
		pool, err = handler.CreateStandardPool(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool for dialect %s: %w", cfg.Dialect, err)
	}

	if cfg.MaxOpenConns > 0 {
		pool.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	pool.SetMaxIdleConns(cfg.MaxIdleConns)
	if cfg.ConnMaxLifetime > 0 {
		pool.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database (ping failed) for dialect %s: %w", cfg.Dialect, err)
	}

	return &DB{
		Pool:    pool,
		Handler: handler,
		Config:  cfg,
	}, nil
}

func (db *DB) GetConfig() config.DatabaseConfig {
	return db.Config
}

func (db *DB) Ping(ctx context.Context) error {
	if db.Pool == nil {
		return fmt.Errorf("database connection pool is not initialized")
	}
	return db.Pool.PingContext(ctx)
}

func (db *DB) Close() error {
	if db.Pool != nil {
		return db.Pool.Close()
	}
	zap.L().Warn("attempted to close a nil database connection pool")
	return nil
}

func (db *DB) Kind() string {
	if db.Handler == nil {
		return ""
	}
	return db.Handler.Kind()
}

func (db *DB) Flavor() SQLFlavor {
	if db.Handler == nil {
		return SQLFlavor{Product: "SQL", Language: "SQL"}
	}
	return db.Handler.Flavor()
}

// ListSchemaColumns returns every base-table column in metadata order.
func (db *DB) ListSchemaColumns(ctx context.Context) ([]ColumnDescriptor, error) {
	if db.Handler == nil {
		return nil, fmt.Errorf("dialect handler not initialized")
	}
	if db.Pool == nil {
		return nil, fmt.Errorf("database connection pool is not initialized")
	}

	rows, err := db.Pool.QueryContext(ctx, db.Handler.SchemaColumnsQuery())
	if err != nil {
		return nil, fmt.Errorf("error querying schema columns: %w", err)
	}
	defer rows.Close()

	var columns []ColumnDescriptor
	for rows.Next() {
		var cd ColumnDescriptor
		if err := rows.Scan(&cd.SchemaName, &cd.TableName, &cd.ColumnName, &cd.DataTypeName); err != nil {
			return nil, fmt.Errorf("error scanning schema column: %w", err)
		}
		columns = append(columns, cd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schema column rows: %w", err)
	}
	return columns, nil
}
