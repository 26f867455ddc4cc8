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
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	apperrors "github.com/GoogleCloudPlatform/db-nl-query/internal/errors"
)

// Config holds all configuration for the application
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	Generation GenerationConfig `mapstructure:"generation"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Schema     SchemaConfig     `mapstructure:"schema"`
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Dialect                        string        `mapstructure:"dialect" validate:"required,oneof=sqlserver cloudsqlsqlserver postgres cloudsqlpostgres mysql cloudsqlmysql sqlite"`
	Host                           string        `mapstructure:"host"`
	Port                           int           `mapstructure:"port" validate:"min=0,max=65535"`
	User                           string        `mapstructure:"user"`
	Password                       string        `mapstructure:"password"`
	DBName                         string        `mapstructure:"name" validate:"required"`
	SSLMode                        string        `mapstructure:"sslmode"`
	CloudSQLInstanceConnectionName string        `mapstructure:"cloudsql_instance_connection_name"`
	UsePrivateIP                   bool          `mapstructure:"cloudsql_use_private_ip"`
	MaxOpenConns                   int           `mapstructure:"max_open_conns" validate:"min=1"`
	MaxIdleConns                   int           `mapstructure:"max_idle_conns" validate:"min=0"`
	ConnMaxLifetime                time.Duration `mapstructure:"conn_max_lifetime"`
}

// GenerationConfig holds settings for the text-generation backend.
type GenerationConfig struct {
	Provider        string        `mapstructure:"provider" validate:"oneof=gemini openai"`
	APIKey          string        `mapstructure:"api_key"`
	Model           string        `mapstructure:"model"`
	BaseURL         string        `mapstructure:"base_url"`
	Temperature     float32       `mapstructure:"temperature" validate:"min=0,max=2"`
	MaxOutputTokens int32         `mapstructure:"max_output_tokens" validate:"gt=0"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxAttempts     int           `mapstructure:"max_attempts" validate:"min=1,max=10"`
	InitialBackoff  time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff      time.Duration `mapstructure:"max_backoff"`
}

// PipelineConfig holds per-request behaviour of the natural-language query pipeline.
type PipelineConfig struct {
	RequestTimeout       time.Duration `mapstructure:"request_timeout"`
	MultiStatementPolicy string        `mapstructure:"multi_statement_policy" validate:"oneof=first reject"`
}

// SchemaConfig controls the optional schema text cache. A zero CacheTTL disables it.
type SchemaConfig struct {
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
	CacheSize int           `mapstructure:"cache_size" validate:"min=0"`
}

// ServerConfig holds the MCP server listener settings.
type ServerConfig struct {
	Name string `mapstructure:"name" validate:"required"`
	Addr string `mapstructure:"addr" validate:"required"`
	Path string `mapstructure:"path" validate:"required,startswith=/"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

var validate = validator.New()

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.dialect", "sqlserver")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 0)
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.cloudsql_instance_connection_name", "")
	v.SetDefault("database.cloudsql_use_private_ip", false)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("generation.provider", "gemini")
	v.SetDefault("generation.api_key", "")
	v.SetDefault("generation.model", "")
	v.SetDefault("generation.base_url", "")
	v.SetDefault("generation.temperature", 0)
	v.SetDefault("generation.max_output_tokens", 512)
	v.SetDefault("generation.timeout", 30*time.Second)
	v.SetDefault("generation.max_attempts", 3)
	v.SetDefault("generation.initial_backoff", 200*time.Millisecond)
	v.SetDefault("generation.max_backoff", 2*time.Second)

	v.SetDefault("pipeline.request_timeout", 60*time.Second)
	v.SetDefault("pipeline.multi_statement_policy", "first")

	v.SetDefault("schema.cache_ttl", 0)
	v.SetDefault("schema.cache_size", 4*1024*1024)

	v.SetDefault("server.name", "db-nl-query")
	v.SetDefault("server.addr", "0.0.0.0:8000")
	v.SetDefault("server.path", "/mcp")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// BindEnv maps configuration keys to environment variables. Every key can be set
// through DBNLQ_<SECTION>_<KEY>; the connection variables of the legacy .env
// layout (SQL_DRIVER, SQL_SERVER, ...) are honoured as fallbacks.
func BindEnv(v *viper.Viper) error {
	v.SetEnvPrefix("DBNLQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	legacy := map[string]string{
		"database.dialect":  "SQL_DRIVER",
		"database.host":     "SQL_SERVER",
		"database.name":     "SQL_DATABASE",
		"database.user":     "SQL_USERNAME",
		"database.password": "SQL_PASSWORD",
	}
	for key, name := range legacy {
		envName := "DBNLQ_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envName, name); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	return nil
}

// LoadDotEnv reads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set.
func LoadDotEnv(path string) error {
	ev := viper.New()
	ev.SetConfigFile(path)
	ev.SetConfigType("env")
	if err := ev.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read env file %s: %w", path, err)
	}
	for _, key := range ev.AllKeys() {
		name := strings.ToUpper(key)
		if _, ok := os.LookupEnv(name); ok {
			continue
		}
		if err := os.Setenv(name, ev.GetString(key)); err != nil {
			return fmt.Errorf("failed to set %s: %w", name, err)
		}
	}
	return nil
}

// Load decodes v into a Config, normalizes connection values and validates the result.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperrors.Wrap(apperrors.Configuration, "failed to decode configuration", err)
	}

	cfg.Database.Dialect = NormalizeDialect(cfg.Database.Dialect)
	if host, port, ok := splitHostPort(cfg.Database.Host); ok {
		cfg.Database.Host = host
		if cfg.Database.Port == 0 {
			cfg.Database.Port = port
		}
	}
	cfg.Generation.Provider = strings.ToLower(strings.TrimSpace(cfg.Generation.Provider))
	if cfg.Generation.APIKey == "" {
		cfg.Generation.APIKey = providerAPIKey(cfg.Generation.Provider)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct constraints and the cross-field rules of the database section.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return apperrors.Wrap(apperrors.Configuration, "invalid configuration", err)
	}
	db := c.Database
	switch {
	case strings.HasPrefix(db.Dialect, "cloudsql"):
		if db.CloudSQLInstanceConnectionName == "" {
			return apperrors.New(apperrors.Configuration, "cloudsql_instance_connection_name is required for Cloud SQL dialects")
		}
	case db.Dialect == "sqlite":
	default:
		if db.Host == "" {
			return apperrors.New(apperrors.Configuration, "database host is required")
		}
	}
	if db.MaxIdleConns > db.MaxOpenConns {
		return apperrors.New(apperrors.Configuration, "max_idle_conns cannot exceed max_open_conns")
	}
	return nil
}

// RequireGeneration reports a configuration error when no backend credential is available.
func (c *Config) RequireGeneration() error {
	if c.Generation.APIKey == "" {
		return apperrors.New(apperrors.Configuration,
			fmt.Sprintf("missing API key for generation provider %q (set --api-key or %s)", c.Generation.Provider, providerAPIKeyEnv(c.Generation.Provider)))
	}
	return nil
}

// DatabaseIdentity identifies the configured database; used as the schema cache key.
func (d DatabaseConfig) DatabaseIdentity() string {
	if strings.HasPrefix(d.Dialect, "cloudsql") {
		return fmt.Sprintf("%s|%s|%s", d.Dialect, d.CloudSQLInstanceConnectionName, d.DBName)
	}
	return fmt.Sprintf("%s|%s|%d|%s", d.Dialect, d.Host, d.Port, d.DBName)
}

// NormalizeDialect maps free-form driver names, such as the ODBC driver names
// used in SQL_DRIVER, onto a supported dialect.
func NormalizeDialect(dialect string) string {
	d := strings.ToLower(strings.Trim(strings.TrimSpace(dialect), "{}"))
	switch {
	case d == "":
		return ""
	case strings.Contains(d, "sql server") || d == "mssql":
		return "sqlserver"
	case d == "postgresql" || d == "pgx":
		return "postgres"
	case d == "sqlite3":
		return "sqlite"
	}
	return d
}

// splitHostPort accepts both "host,port" (SQL Server style) and "host:port".
func splitHostPort(hostport string) (string, int, bool) {
	sep := strings.LastIndexAny(hostport, ",:")
	if sep <= 0 || strings.Count(hostport, ":") > 1 {
		return "", 0, false
	}
	port, err := strconv.Atoi(strings.TrimSpace(hostport[sep+1:]))
	if err != nil {
		return "", 0, false
	}
	return strings.TrimSpace(hostport[:sep]), port, true
}

func providerAPIKeyEnv(provider string) string {
	if provider == "openai" {
		return "OPENAI_API_KEY"
	}
	return "GEMINI_API_KEY"
}

func providerAPIKey(provider string) string {
	return os.Getenv(providerAPIKeyEnv(provider))
}
