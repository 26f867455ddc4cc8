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
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/GoogleCloudPlatform/db-nl-query/internal/logging"
	"github.com/GoogleCloudPlatform/db-nl-query/internal/nlquery"
	"github.com/GoogleCloudPlatform/db-nl-query/internal/server"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Serve the schema resource and query tools over MCP",
	Long:    `Starts an MCP streamable-HTTP server exposing schema://<kind>, query_data and nl_query. /metrics and /healthz are served on the same listener.`,
	Example: `./db-nl-query serve --dialect sqlserver --host "db.internal,1433" --username sa --password "$SA_PASSWORD" --database AdventureWorks2022`,
	RunE:    runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	registry := server.NewMCPRegistry(cfg.Server.Name, version, logging.Component(logger, "mcp"))
	nlquery.Register(registry, a.service, a.catalog, a.db.Kind())

	srv := server.New(cfg.Server, registry, a.db, logging.Component(logger, "server"))
	return srv.Run(ctx)
}

func init() {
	flags := serveCmd.Flags()
	flags.String("addr", "", "Listen address (default 0.0.0.0:8000)")
	flags.String("path", "", "MCP endpoint path (default /mcp)")
	flags.String("name", "", "Server name reported to MCP clients (default db-nl-query)")
	flags.Duration("schema-cache-ttl", 0, "Cache the schema text for this long; 0 disables the cache")

	for key, flag := range map[string]string{
		"server.addr":      "addr",
		"server.path":      "path",
		"server.name":      "name",
		"schema.cache_ttl": "schema-cache-ttl",
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}
}
