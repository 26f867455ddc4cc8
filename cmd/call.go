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
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/db-nl-query/internal/config"
)

var (
	callURL      string
	callTool     string
	callResource string
	callTimeout  time.Duration
)

// toolArgument names the single argument of each built-in tool.
var toolArgument = map[string]string{
	"nl_query":   "request",
	"query_data": "sql",
}

var callCmd = &cobra.Command{
	Use:   "call [argument]",
	Short: "Call a tool or read a resource on a running server",
	Example: `./db-nl-query call "List the top 5 products by list price"
./db-nl-query call --tool query_data "SELECT COUNT(*) FROM Production.Product"
./db-nl-query call --resource schema://sqlserver`,
	// The client needs no database settings, only a logger.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadEnvFile(); err != nil {
			return err
		}
		return initLogger(config.LogConfig{Level: v.GetString("log.level"), Format: v.GetString("log.format")})
	},
	RunE: runCall,
}

func runCall(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), callTimeout)
	defer cancel()

	c, err := client.NewStreamableHttpClient(callURL)
	if err != nil {
		return fmt.Errorf("failed to create MCP client: %w", err)
	}
	defer c.Close()

	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("failed to start MCP client: %w", err)
	}
	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "db-nl-query-cli", Version: version}
	info, err := c.Initialize(ctx, initReq)
	if err != nil {
		return fmt.Errorf("failed to initialize MCP session with %s: %w", callURL, err)
	}
	logger.Debug("connected to MCP server",
		zap.String("server", info.ServerInfo.Name),
		zap.String("version", info.ServerInfo.Version))

	out := cmd.OutOrStdout()
	if callResource != "" {
		return readResource(ctx, c, out, callResource)
	}

	argName, ok := toolArgument[callTool]
	if !ok {
		return fmt.Errorf("unknown tool %q (want nl_query or query_data)", callTool)
	}
	argument := strings.TrimSpace(strings.Join(args, " "))
	if argument == "" {
		return fmt.Errorf("%s requires a %s argument", callTool, argName)
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = callTool
	req.Params.Arguments = map[string]any{argName: argument}
	res, err := c.CallTool(ctx, req)
	if err != nil {
		return fmt.Errorf("tool call failed: %w", err)
	}

	text := toolText(res)
	if res.IsError {
		return errors.New(text)
	}
	return printRows(out, text)
}

func readResource(ctx context.Context, c *client.Client, out io.Writer, uri string) error {
	req := mcp.ReadResourceRequest{}
	req.Params.URI = uri
	res, err := c.ReadResource(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", uri, err)
	}
	for _, content := range res.Contents {
		if text, ok := content.(mcp.TextResourceContents); ok {
			fmt.Fprint(out, text.Text)
		}
	}
	return nil
}

func toolText(res *mcp.CallToolResult) string {
	var parts []string
	for _, content := range res.Content {
		if text, ok := mcp.AsTextContent(content); ok {
			parts = append(parts, text.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// printRows prints one JSON object per line, or the raw text when it is not a
// JSON array of rows.
func printRows(out io.Writer, text string) error {
	rows := gjson.Parse(text)
	if !rows.IsArray() {
		_, err := fmt.Fprintln(out, text)
		return err
	}
	var err error
	rows.ForEach(func(_, row gjson.Result) bool {
		_, err = fmt.Fprintln(out, row.Raw)
		return err == nil
	})
	return err
}

func init() {
	flags := callCmd.Flags()
	flags.StringVar(&callURL, "url", "http://localhost:8000/mcp", "MCP endpoint of a running server")
	flags.StringVar(&callTool, "tool", "nl_query", "Tool to call (nl_query or query_data)")
	flags.StringVar(&callResource, "resource", "", "Read this resource (e.g. schema://sqlserver) instead of calling a tool")
	flags.DurationVar(&callTimeout, "timeout", 2*time.Minute, "Overall deadline for the call")
}
