package nlquery

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/GoogleCloudPlatform/db-nl-query/internal/config"
	"github.com/GoogleCloudPlatform/db-nl-query/internal/database"
	_ "github.com/GoogleCloudPlatform/db-nl-query/internal/database/sqlite"
	_ "github.com/GoogleCloudPlatform/db-nl-query/internal/database/sqlserver"
	apperrors "github.com/GoogleCloudPlatform/db-nl-query/internal/errors"
	"github.com/GoogleCloudPlatform/db-nl-query/internal/extract"
	"github.com/GoogleCloudPlatform/db-nl-query/internal/genai"
	"github.com/GoogleCloudPlatform/db-nl-query/internal/schema"
)

// scriptedBackend answers every prompt with a fixed completion and records
// the prompts it was given.
type scriptedBackend struct {
	mu      sync.Mutex
	answer  func(prompt string) string
	err     error
	prompts []string
}

func (b *scriptedBackend) Complete(_ context.Context, prompt string, _ genai.SamplingParams) (string, error) {
	b.mu.Lock()
	b.prompts = append(b.prompts, prompt)
	b.mu.Unlock()
	if b.err != nil {
		return "", b.err
	}
	return b.answer(prompt), nil
}

func (b *scriptedBackend) calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.prompts)
}

func fixed(text string) func(string) string {
	return func(string) string { return text }
}

var quickRetry = genai.RetryOptions{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffMultiplier: 2}

func pipeline(t *testing.T, db *database.DB, backend genai.Backend) *Service {
	t.Helper()
	logger := zaptest.NewLogger(t)
	return NewService(Deps{
		Schema:    schema.NewCatalog(db, schema.Options{}, logger),
		Generator: genai.NewClient(backend, genai.Options{Flavor: db.Flavor(), Retry: quickRetry}, logger),
		Extractor: extract.New(extract.PolicyFirst, logger),
		Executor:  db,
		Logger:    logger,
	}, Options{RequestTimeout: 10 * time.Second})
}

const topFiveSQL = "SELECT TOP 5 Name, ListPrice FROM Production.Product ORDER BY ListPrice DESC"

func TestAnswerTopProductsSQLServer(t *testing.T) {
	mockDb, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDb.Close()

	handler, err := database.GetDialectHandler("sqlserver")
	require.NoError(t, err)
	db := &database.DB{Pool: mockDb, Handler: handler}

	mock.ExpectQuery("INFORMATION_SCHEMA").WillReturnRows(
		sqlmock.NewRows([]string{"TABLE_SCHEMA", "TABLE_NAME", "COLUMN_NAME", "DATA_TYPE"}).
			AddRow("Production", "Product", "ProductID", "int").
			AddRow("Production", "Product", "Name", "nvarchar").
			AddRow("Production", "Product", "ListPrice", "money"))
	mock.ExpectQuery(regexp.QuoteMeta(topFiveSQL)).WillReturnRows(
		sqlmock.NewRows([]string{"Name", "ListPrice"}).
			AddRow("Road-150 Red, 62", "3578.27").
			AddRow("Road-150 Red, 44", "3578.27").
			AddRow("Road-150 Red, 48", "3578.27").
			AddRow("Road-150 Red, 52", "3578.27").
			AddRow("Road-150 Red, 56", "3578.27"))

	backend := &scriptedBackend{answer: fixed("```sql\n" + topFiveSQL + ";\n```")}
	svc := pipeline(t, db, backend)

	rs, err := svc.Answer(context.Background(), QueryRequest{Text: "List the top 5 products by list price"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Name", "ListPrice"}, rs.Columns)
	assert.Len(t, rs.Rows, 5)
	assert.NoError(t, mock.ExpectationsWereMet())

	require.Equal(t, 1, backend.calls())
	prompt := backend.prompts[0]
	assert.Contains(t, prompt, "You are given this SQL Server schema:")
	assert.Contains(t, prompt, "CREATE TABLE Production.Product (\n    ProductID int,\n    Name nvarchar,\n    ListPrice money,\n")
	assert.Contains(t, prompt, "Generate a single T-SQL SELECT statement that answers:\n“List the top 5 products by list price”")
}

func TestAnswerUnsafeGenerationSQLServer(t *testing.T) {
	mockDb, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDb.Close()

	handler, err := database.GetDialectHandler("sqlserver")
	require.NoError(t, err)
	db := &database.DB{Pool: mockDb, Handler: handler}

	mock.ExpectQuery("INFORMATION_SCHEMA").WillReturnRows(
		sqlmock.NewRows([]string{"TABLE_SCHEMA", "TABLE_NAME", "COLUMN_NAME", "DATA_TYPE"}).
			AddRow("Production", "Product", "ProductID", "int"))

	svc := pipeline(t, db, &scriptedBackend{answer: fixed("DELETE FROM Production.Product")})
	_, err = svc.Answer(context.Background(), QueryRequest{Text: "remove all products"})
	assert.Equal(t, apperrors.UnsafeStatement, apperrors.KindOf(err))
	// Only the metadata query ran.
	assert.NoError(t, mock.ExpectationsWereMet())
}

type product struct {
	name  string
	price float64
}

var catalogue = []product{
	{"Mountain-100 Silver, 38", 3399.99},
	{"Road-150 Red, 62", 3578.27},
	{"Touring-1000 Blue, 46", 2384.07},
	{"HL Road Frame - Black, 58", 1431.50},
	{"Sport-100 Helmet, Red", 34.99},
	{"Mountain-200 Black, 38", 2294.99},
	{"Road-250 Red, 44", 2443.35},
}

// sqliteFixture creates a product table in a fresh on-disk database.
func sqliteFixture(t *testing.T, products []product) *database.DB {
	t.Helper()
	ctx := context.Background()
	db, err := database.New(ctx, config.DatabaseConfig{
		Dialect:      "sqlite",
		DBName:       filepath.Join(t.TempDir(), "fixture.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 4,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Pool.ExecContext(ctx, `CREATE TABLE Product (ProductID INTEGER PRIMARY KEY, Name TEXT NOT NULL, ListPrice REAL NOT NULL)`)
	require.NoError(t, err)
	for i, p := range products {
		_, err = db.Pool.ExecContext(ctx, `INSERT INTO Product (ProductID, Name, ListPrice) VALUES (?, ?, ?)`, i+1, p.name, p.price)
		require.NoError(t, err)
	}
	return db
}

const topFiveSQLite = "SELECT Name, ListPrice FROM Product ORDER BY ListPrice DESC LIMIT 5"

func TestAnswerTopProductsSQLite(t *testing.T) {
	db := sqliteFixture(t, catalogue)
	backend := &scriptedBackend{answer: fixed("Here is the query:\n\n" + topFiveSQLite + ";")}
	svc := pipeline(t, db, backend)

	rs, err := svc.Answer(context.Background(), QueryRequest{Text: "List the top 5 products by list price"})
	require.NoError(t, err)
	require.Len(t, rs.Rows, 5)

	var prices []float64
	for _, row := range rs.Rows {
		v, ok := row.Get("ListPrice")
		require.True(t, ok)
		prices = append(prices, v.(float64))
	}
	assert.Equal(t, []float64{3578.27, 3399.99, 2443.35, 2384.07, 2294.99}, prices)

	name, _ := rs.Rows[0].Get("Name")
	assert.Equal(t, "Road-150 Red, 62", name)
	assert.Contains(t, backend.prompts[0], "CREATE TABLE main.Product (\n    ProductID INTEGER,\n    Name TEXT,\n    ListPrice REAL,\n")
}

func TestAnswerGenerationFailureSkipsExecution(t *testing.T) {
	db := sqliteFixture(t, catalogue)
	backend := &scriptedBackend{err: &genai.BackendError{Provider: "openai", StatusCode: 401, Err: fmt.Errorf("invalid api key")}}
	svc := pipeline(t, db, backend)

	_, err := svc.Answer(context.Background(), QueryRequest{Text: "List the top 5 products by list price"})
	assert.Equal(t, apperrors.GenerationFailed, apperrors.KindOf(err))
	assert.Equal(t, 1, backend.calls())

	var count int
	require.NoError(t, db.Pool.QueryRow(`SELECT COUNT(*) FROM Product`).Scan(&count))
	assert.Equal(t, len(catalogue), count)
}

func TestQueryDataIsRepeatable(t *testing.T) {
	db := sqliteFixture(t, catalogue)
	svc := pipeline(t, db, &scriptedBackend{answer: fixed("")})

	first, err := svc.QueryData(context.Background(), topFiveSQLite)
	require.NoError(t, err)
	second, err := svc.QueryData(context.Background(), topFiveSQLite)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestConcurrentAnswersStayIsolated(t *testing.T) {
	const n = 8
	services := make([]*Service, n)
	for i := range services {
		// Each database holds a single product whose name identifies it.
		db := sqliteFixture(t, []product{{name: fmt.Sprintf("product-%d", i), price: float64(i)}})
		services[i] = pipeline(t, db, &scriptedBackend{answer: fixed("SELECT Name FROM Product")})
	}

	var wg sync.WaitGroup
	names := make([]any, n)
	errs := make([]error, n)
	for i := range services {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rs, err := services[i].Answer(context.Background(), QueryRequest{Text: "name of the product"})
			if err != nil {
				errs[i] = err
				return
			}
			if len(rs.Rows) == 1 {
				names[i], _ = rs.Rows[0].Get("Name")
			}
		}(i)
	}
	wg.Wait()

	for i := range services {
		require.NoError(t, errs[i])
		assert.Equal(t, fmt.Sprintf("product-%d", i), names[i])
	}
}

type recordingRegistry struct {
	resources  []Resource
	operations map[string]Operation
}

func (r *recordingRegistry) RegisterResource(res Resource) { r.resources = append(r.resources, res) }
func (r *recordingRegistry) RegisterOperation(op Operation) {
	if r.operations == nil {
		r.operations = map[string]Operation{}
	}
	r.operations[op.Name] = op
}

func TestRegister(t *testing.T) {
	db := sqliteFixture(t, catalogue)
	svc := pipeline(t, db, &scriptedBackend{answer: fixed(topFiveSQLite)})
	catalog := schema.NewCatalog(db, schema.Options{}, nil)

	reg := &recordingRegistry{}
	Register(reg, svc, catalog, db.Kind())

	require.Len(t, reg.resources, 1)
	assert.Equal(t, "schema://sqlite", reg.resources[0].URI)
	assert.Equal(t, "text/plain", reg.resources[0].MIMEType)
	text, err := reg.resources[0].Read(context.Background())
	require.NoError(t, err)
	assert.Contains(t, text, "\n-- main.Product\nCREATE TABLE main.Product (\n")

	require.Contains(t, reg.operations, "query_data")
	require.Contains(t, reg.operations, "nl_query")
	assert.Equal(t, "sql", reg.operations["query_data"].Params[0].Name)
	assert.Equal(t, "request", reg.operations["nl_query"].Params[0].Name)

	rs, err := reg.operations["query_data"].Call(context.Background(), map[string]string{"sql": "SELECT COUNT(*) AS n FROM Product"})
	require.NoError(t, err)
	n, _ := rs.Rows[0].Get("n")
	assert.Equal(t, int64(len(catalogue)), n)

	rs, err = reg.operations["nl_query"].Call(context.Background(), map[string]string{"request": "top five by price"})
	require.NoError(t, err)
	assert.Len(t, rs.Rows, 5)
}
