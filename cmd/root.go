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
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/db-nl-query/internal/config"
	_ "github.com/GoogleCloudPlatform/db-nl-query/internal/database/mysql"
	_ "github.com/GoogleCloudPlatform/db-nl-query/internal/database/postgres"
	_ "github.com/GoogleCloudPlatform/db-nl-query/internal/database/sqlite"
	_ "github.com/GoogleCloudPlatform/db-nl-query/internal/database/sqlserver"
	"github.com/GoogleCloudPlatform/db-nl-query/internal/logging"
)

// version is overridden at build time with -ldflags "-X .../cmd.version=...".
var version = "dev"

var (
	v       = viper.New()
	envFile string

	cfg    *config.Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "db-nl-query",
	Short: "Answer natural-language questions about a SQL database",
	Long: `db-nl-query exposes a relational database to MCP clients. It serves the
database schema as a resource and two tools: query_data, which runs SQL as
given, and nl_query, which turns a plain-language question into a single
read-only SELECT statement, vets it and returns the resulting rows.`,
	SilenceUsage:      true,
	PersistentPreRunE: initFlagsAndConfig,
}

// initFlagsAndConfig loads the env file, resolves configuration from flags,
// environment and defaults, and builds the process logger.
func initFlagsAndConfig(cmd *cobra.Command, args []string) error {
	if err := loadEnvFile(); err != nil {
		return err
	}
	if err := config.BindEnv(v); err != nil {
		return err
	}

	loaded, err := config.Load(v)
	if err != nil {
		return err
	}
	cfg = loaded

	return initLogger(cfg.Log)
}

// loadEnvFile reads --env-file, or ./.env when the flag is not set and the file exists.
func loadEnvFile() error {
	path := envFile
	if path == "" {
		if _, err := os.Stat(".env"); errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		path = ".env"
	}
	return config.LoadDotEnv(path)
}

func initLogger(lc config.LogConfig) error {
	l, err := logging.New(lc)
	if err != nil {
		return err
	}
	logger = l
	zap.ReplaceGlobals(logger)
	return nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	defer func() { _ = logger.Sync() }()
	return rootCmd.Execute()
}

func bindFlag(key, flag string) {
	if err := v.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", flag, err))
	}
}

func init() {
	config.SetDefaults(v)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&envFile, "env-file", "", "Path to a KEY=VALUE env file (default ./.env when present)")

	// Database connection flags
	flags.String("dialect", "", "Database dialect (sqlserver, postgres, mysql, sqlite, cloudsqlsqlserver, cloudsqlpostgres, cloudsqlmysql); env SQL_DRIVER")
	flags.String("host", "", "Database host, optionally host,port or host:port; env SQL_SERVER")
	flags.Int("port", 0, "Database port")
	flags.String("username", "", "Database username; env SQL_USERNAME")
	flags.String("password", "", "Database password; env SQL_PASSWORD")
	flags.String("database", "", "Database name, or file path for sqlite; env SQL_DATABASE")
	flags.String("cloudsql-instance-connection-name", "", "Cloud SQL instance connection name (for Cloud SQL dialects)")
	flags.Bool("cloudsql-use-private-ip", false, "Use private IP for Cloud SQL connection (Cloud SQL)")

	// Generation flags
	flags.String("provider", "", "Text-generation provider (gemini or openai)")
	flags.String("api-key", "", "Generation API key (defaults to GEMINI_API_KEY or OPENAI_API_KEY)")
	flags.String("model", "", "Generation model name")
	flags.String("base-url", "", "Base URL of an OpenAI-compatible endpoint")
	flags.String("multi-statement-policy", "", "What to do when the model returns several statements (first or reject)")

	// Logging flags
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.String("log-format", "", "Log format (json or console)")

	bindFlag("database.dialect", "dialect")
	bindFlag("database.host", "host")
	bindFlag("database.port", "port")
	bindFlag("database.user", "username")
	bindFlag("database.password", "password")
	bindFlag("database.name", "database")
	bindFlag("database.cloudsql_instance_connection_name", "cloudsql-instance-connection-name")
	bindFlag("database.cloudsql_use_private_ip", "cloudsql-use-private-ip")
	bindFlag("generation.provider", "provider")
	bindFlag("generation.api_key", "api-key")
	bindFlag("generation.model", "model")
	bindFlag("generation.base_url", "base-url")
	bindFlag("pipeline.multi_statement_policy", "multi-statement-policy")
	bindFlag("log.level", "log-level")
	bindFlag("log.format", "log-format")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(callCmd)
}
