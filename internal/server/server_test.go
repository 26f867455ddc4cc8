package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/GoogleCloudPlatform/db-nl-query/internal/config"
	"github.com/GoogleCloudPlatform/db-nl-query/internal/database"
	apperrors "github.com/GoogleCloudPlatform/db-nl-query/internal/errors"
	"github.com/GoogleCloudPlatform/db-nl-query/internal/extract"
	"github.com/GoogleCloudPlatform/db-nl-query/internal/nlquery"
)

const productSchema = "\n-- Production.Product\nCREATE TABLE Production.Product (\n    Name nvarchar,\n    ListPrice money,\n"

type staticSchema struct{ err error }

func (s staticSchema) FetchSchema(context.Context) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return productSchema, nil
}

type staticGenerator struct{ out string }

func (g staticGenerator) BuildPrompt(schemaText, request string) string { return request }
func (g staticGenerator) Complete(context.Context, string) (string, error) {
	return g.out, nil
}

// tableExecutor answers every statement with two product rows, or fails
// statements listed in failures.
type tableExecutor struct {
	failures map[string]error
	executed []string
}

func (e *tableExecutor) Execute(_ context.Context, query string) (*database.ResultSet, error) {
	e.executed = append(e.executed, query)
	if err, ok := e.failures[query]; ok {
		return nil, err
	}
	cols := []string{"Name", "ListPrice"}
	return &database.ResultSet{Columns: cols, Rows: []database.Row{
		database.NewRow(cols, []any{"Road-150 Red, 62", 3578.27}),
		database.NewRow(cols, []any{"Mountain-100 Silver, 38", 3399.99}),
	}}, nil
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func newTestServer(t *testing.T, generated string, exec *tableExecutor, db Pinger) *Server {
	t.Helper()
	svc := nlquery.NewService(nlquery.Deps{
		Schema:    staticSchema{},
		Generator: staticGenerator{out: generated},
		Extractor: extract.New(extract.PolicyFirst, nil),
		Executor:  exec,
	}, nlquery.Options{})

	reg := NewMCPRegistry("db-nl-query", "test", nil)
	nlquery.Register(reg, svc, staticSchema{}, "sqlserver")
	return New(config.ServerConfig{Name: "db-nl-query", Addr: "127.0.0.1:0", Path: "/mcp"}, reg, db, nil)
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	text, ok := mcp.AsTextContent(res.Content[0])
	require.True(t, ok)
	return text.Text
}

func TestToolHandler(t *testing.T) {
	ctx := context.Background()
	op := func(call func(context.Context, map[string]string) (*database.ResultSet, error)) nlquery.Operation {
		return nlquery.Operation{Name: "query_data", Params: []nlquery.Param{{Name: "sql"}}, Call: call}
	}
	reg := NewMCPRegistry("t", "0", nil)

	t.Run("rows are returned as a JSON array", func(t *testing.T) {
		h := reg.toolHandler(op(func(_ context.Context, args map[string]string) (*database.ResultSet, error) {
			assert.Equal(t, "SELECT 1 AS n", args["sql"])
			return &database.ResultSet{Columns: []string{"n"}, Rows: []database.Row{database.NewRow([]string{"n"}, []any{int64(1)})}}, nil
		}))
		res, err := h(ctx, callRequest("query_data", map[string]any{"sql": "SELECT 1 AS n"}))
		require.NoError(t, err)
		assert.False(t, res.IsError)
		assert.JSONEq(t, `[{"n":1}]`, resultText(t, res))
	})

	t.Run("failures carry the kind", func(t *testing.T) {
		h := reg.toolHandler(op(func(context.Context, map[string]string) (*database.ResultSet, error) {
			return nil, apperrors.Wrap(apperrors.ExecutionFailed, "query failed", errors.New("Invalid object name 'dbo.Nope'."))
		}))
		res, err := h(ctx, callRequest("query_data", map[string]any{"sql": "SELECT * FROM dbo.Nope"}))
		require.NoError(t, err)
		assert.True(t, res.IsError)
		assert.Equal(t, "execution_failed: query failed: Invalid object name 'dbo.Nope'.", resultText(t, res))
	})

	t.Run("missing argument is an invalid request", func(t *testing.T) {
		called := false
		h := reg.toolHandler(op(func(context.Context, map[string]string) (*database.ResultSet, error) {
			called = true
			return nil, nil
		}))
		res, err := h(ctx, callRequest("query_data", map[string]any{}))
		require.NoError(t, err)
		assert.True(t, res.IsError)
		assert.Contains(t, resultText(t, res), "invalid_request")
		assert.False(t, called)
	})
}

func TestResourceHandler(t *testing.T) {
	reg := NewMCPRegistry("t", "0", nil)
	res := nlquery.Resource{URI: "schema://sqlserver", MIMEType: "text/plain", Read: staticSchema{}.FetchSchema}

	contents, err := reg.resourceHandler(res)(context.Background(), mcp.ReadResourceRequest{})
	require.NoError(t, err)
	require.Len(t, contents, 1)
	text, ok := contents[0].(mcp.TextResourceContents)
	require.True(t, ok)
	assert.Equal(t, productSchema, text.Text)
	assert.Equal(t, "text/plain", text.MIMEType)

	failing := nlquery.Resource{URI: "schema://sqlserver", Read: staticSchema{
		err: apperrors.Wrap(apperrors.SchemaUnavailable, "failed to read schema metadata", errors.New("login timeout")),
	}.FetchSchema}
	_, err = reg.resourceHandler(failing)(context.Background(), mcp.ReadResourceRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema_unavailable")
}

func TestHealthz(t *testing.T) {
	tests := []struct {
		name string
		ping error
		code int
		want string
	}{
		{"database reachable", nil, http.StatusOK, "ok"},
		{"database down", errors.New("connection refused"), http.StatusServiceUnavailable, "unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, "SELECT 1", &tableExecutor{}, fakePinger{err: tt.ping})
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.want, gjson.Get(rec.Body.String(), "status").String())
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, "SELECT 1", &tableExecutor{}, fakePinger{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestMCPRoundTrip(t *testing.T) {
	ctx := context.Background()
	exec := &tableExecutor{failures: map[string]error{
		"SELECT * FROM Missing": apperrors.Wrap(apperrors.ExecutionFailed, "query failed", errors.New("Invalid object name 'Missing'.")),
	}}
	s := newTestServer(t, "```sql\nSELECT TOP 2 Name, ListPrice FROM Production.Product ORDER BY ListPrice DESC;\n```", exec, fakePinger{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	c, err := client.NewStreamableHttpClient(srv.URL + "/mcp")
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Start(ctx))

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "server-test", Version: "0"}
	info, err := c.Initialize(ctx, initReq)
	require.NoError(t, err)
	assert.Equal(t, "db-nl-query", info.ServerInfo.Name)

	tools, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	require.NoError(t, err)
	var names []string
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"query_data", "nl_query"}, names)

	readReq := mcp.ReadResourceRequest{}
	readReq.Params.URI = "schema://sqlserver"
	read, err := c.ReadResource(ctx, readReq)
	require.NoError(t, err)
	require.Len(t, read.Contents, 1)
	schemaText, ok := read.Contents[0].(mcp.TextResourceContents)
	require.True(t, ok)
	assert.Equal(t, productSchema, schemaText.Text)

	res, err := c.CallTool(ctx, callRequest("nl_query", map[string]any{"request": "two most expensive products"}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	text := resultText(t, res)
	assert.Equal(t, int64(2), gjson.Get(text, "#").Int())
	assert.Equal(t, "Road-150 Red, 62", gjson.Get(text, "0.Name").String())
	assert.Equal(t, "SELECT TOP 2 Name, ListPrice FROM Production.Product ORDER BY ListPrice DESC", exec.executed[0])

	res, err = c.CallTool(ctx, callRequest("query_data", map[string]any{"sql": "SELECT * FROM Missing"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, "execution_failed: query failed: Invalid object name 'Missing'.", resultText(t, res))
}
