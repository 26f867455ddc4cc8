package cmd

import (
	"bytes"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/GoogleCloudPlatform/db-nl-query/internal/database"
)

func TestPrintResult(t *testing.T) {
	cols := []string{"Name", "ListPrice"}
	rs := &database.ResultSet{Columns: cols, Rows: []database.Row{
		database.NewRow(cols, []any{"Road-150 Red, 62", 3578.27}),
		database.NewRow(cols, []any{nil, 34.99}),
	}}

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, printResult(&buf, rs, "json"))
		assert.JSONEq(t, `[{"Name":"Road-150 Red, 62","ListPrice":3578.27},{"Name":null,"ListPrice":34.99}]`, buf.String())
	})

	t.Run("table", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, printResult(&buf, rs, "table"))
		out := buf.String()
		assert.Contains(t, out, "Road-150 Red, 62")
		assert.Contains(t, out, "NULL")
		assert.Contains(t, out, "(2 rows)")
	})

	t.Run("unknown format", func(t *testing.T) {
		assert.Error(t, printResult(&bytes.Buffer{}, rs, "xml"))
	})
}

func TestPrintRows(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printRows(&buf, `[{"n":1},{"n":2}]`))
	assert.Equal(t, "{\"n\":1}\n{\"n\":2}\n", buf.String())

	buf.Reset()
	require.NoError(t, printRows(&buf, "no rows"))
	assert.Equal(t, "no rows\n", buf.String())
}

func TestQueryAndSchemaCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shop.db")
	raw, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = raw.Exec(`CREATE TABLE Product (ProductID INTEGER PRIMARY KEY, Name TEXT, ListPrice REAL);
INSERT INTO Product VALUES (1, 'Road-150 Red, 62', 3578.27), (2, 'Sport-100 Helmet, Red', 34.99);`)
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	t.Setenv("GEMINI_API_KEY", "")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	defer rootCmd.SetOut(nil)

	rootCmd.SetArgs([]string{"query", "--dialect", "sqlite", "--database", path, "--log-level", "error",
		"--sql", "SELECT Name FROM Product ORDER BY ListPrice DESC", "--format", "json"})
	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "Road-150 Red, 62", gjson.Get(out.String(), "0.Name").String())
	assert.Equal(t, int64(2), gjson.Get(out.String(), "#").Int())

	out.Reset()
	rootCmd.SetArgs([]string{"schema", "--dialect", "sqlite", "--database", path, "--log-level", "error"})
	require.NoError(t, rootCmd.Execute())
	assert.True(t, strings.HasPrefix(out.String(), "\n-- main.Product\nCREATE TABLE main.Product (\n    ProductID INTEGER,\n"))

	// ask needs a generation credential.
	rootCmd.SetArgs([]string{"ask", "--dialect", "sqlite", "--database", path, "--log-level", "error", "how many products?"})
	err = rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration")
}
