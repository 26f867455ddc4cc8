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
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	apperrors "github.com/GoogleCloudPlatform/db-nl-query/internal/errors"
	"github.com/GoogleCloudPlatform/db-nl-query/internal/nlquery"
)

// MCPRegistry exposes nlquery resources and operations through an MCP server.
type MCPRegistry struct {
	mcp    *mcpserver.MCPServer
	logger *zap.Logger
}

var _ nlquery.Registry = (*MCPRegistry)(nil)

func NewMCPRegistry(name, version string, logger *zap.Logger) *MCPRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := mcpserver.NewMCPServer(name, version,
		mcpserver.WithResourceCapabilities(false, false),
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithRecovery(),
	)
	return &MCPRegistry{mcp: s, logger: logger}
}

// MCPServer returns the underlying server.
func (r *MCPRegistry) MCPServer() *mcpserver.MCPServer { return r.mcp }

func (r *MCPRegistry) RegisterResource(res nlquery.Resource) {
	resource := mcp.NewResource(res.URI, res.Name,
		mcp.WithResourceDescription(res.Description),
		mcp.WithMIMEType(res.MIMEType),
	)
	r.mcp.AddResource(resource, r.resourceHandler(res))
	r.logger.Debug("registered resource", zap.String("uri", res.URI))
}

func (r *MCPRegistry) RegisterOperation(op nlquery.Operation) {
	opts := []mcp.ToolOption{mcp.WithDescription(op.Description)}
	for _, p := range op.Params {
		opts = append(opts, mcp.WithString(p.Name, mcp.Required(), mcp.Description(p.Description)))
	}
	r.mcp.AddTool(mcp.NewTool(op.Name, opts...), r.toolHandler(op))
	r.logger.Debug("registered tool", zap.String("tool", op.Name))
}

func (r *MCPRegistry) resourceHandler(res nlquery.Resource) mcpserver.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		text, err := res.Read(ctx)
		if err != nil {
			r.logger.Error("resource read failed", zap.String("uri", res.URI), zap.Error(err))
			return nil, errors.New(errorText(err))
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: res.URI, MIMEType: res.MIMEType, Text: text},
		}, nil
	}
}

// toolHandler reports operation failures as tool error results so the caller
// sees the failure kind; only protocol-level problems become JSON-RPC errors.
func (r *MCPRegistry) toolHandler(op nlquery.Operation) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := make(map[string]string, len(op.Params))
		for _, p := range op.Params {
			v, err := req.RequireString(p.Name)
			if err != nil {
				return mcp.NewToolResultError(errorText(apperrors.Wrap(apperrors.InvalidRequest, "invalid arguments", err))), nil
			}
			args[p.Name] = v
		}

		rs, err := op.Call(ctx, args)
		if err != nil {
			r.logger.Info("tool call failed",
				zap.String("tool", op.Name),
				zap.String("kind", string(apperrors.KindOf(err))),
				zap.Error(err))
			return mcp.NewToolResultError(errorText(err)), nil
		}

		body, err := json.Marshal(rs)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s result: %w", op.Name, err)
		}
		return mcp.NewToolResultText(string(body)), nil
	}
}

// errorText renders err as "<kind>: <message>".
func errorText(err error) string {
	if apperrors.KindOf(err) == "" {
		return fmt.Sprintf("%s: %v", apperrors.ExecutionFailed, err)
	}
	return err.Error()
}
