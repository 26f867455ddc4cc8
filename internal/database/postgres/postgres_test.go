package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoogleCloudPlatform/db-nl-query/internal/config"
	"github.com/GoogleCloudPlatform/db-nl-query/internal/database"
)

func TestPostgresHandlerRegistered(t *testing.T) {
	for _, dialect := range []string{"postgres", "cloudsqlpostgres"} {
		h, err := database.GetDialectHandler(dialect)
		require.NoError(t, err)
		assert.Equal(t, "postgres", h.Kind())
		assert.Equal(t, "PostgreSQL", h.Flavor().Product)
	}
}

func TestPostgresListSchemaColumns(t *testing.T) {
	tests := []struct {
		name          string
		mockSetup     func(sqlmock.Sqlmock)
		expected      []database.ColumnDescriptor
		expectedError bool
	}{
		{
			name: "Success",
			mockSetup: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows([]string{"table_schema", "table_name", "column_name", "data_type"}).
					AddRow("public", "orders", "id", "integer").
					AddRow("public", "orders", "total", "numeric").
					AddRow("sales", "orders", "id", "bigint")
				mock.ExpectQuery(`FROM information_schema\.tables AS t\s+JOIN information_schema\.columns AS c\s+ON t\.table_schema = c\.table_schema\s+AND t\.table_name = c\.table_name`).
					WillReturnRows(rows)
			},
			expected: []database.ColumnDescriptor{
				{SchemaName: "public", TableName: "orders", ColumnName: "id", DataTypeName: "integer"},
				{SchemaName: "public", TableName: "orders", ColumnName: "total", DataTypeName: "numeric"},
				{SchemaName: "sales", TableName: "orders", ColumnName: "id", DataTypeName: "bigint"},
			},
		},
		{
			name: "Query error",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`FROM information_schema\.tables`).WillReturnError(errors.New("connection refused"))
			},
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockDb, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer mockDb.Close()
			tt.mockSetup(mock)

			db := &database.DB{Pool: mockDb, Handler: postgresHandler{}}
			got, err := db.ListSchemaColumns(context.Background())
			if tt.expectedError {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expected, got)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresSchemaQueryExcludesSystemSchemas(t *testing.T) {
	q := postgresHandler{}.SchemaColumnsQuery()
	assert.Contains(t, q, "'pg_catalog', 'information_schema', 'pg_toast'")
	assert.Contains(t, q, "t.table_type = 'BASE TABLE'")
}

func TestKeywordValueDSN(t *testing.T) {
	got := keywordValueDSN("host", "localhost", "user", "app", "password", `it's a secret`, "sslmode", "")
	assert.Equal(t, `host='localhost' user='app' password='it\'s a secret'`, got)
}

func TestPostgresCloudSQLPoolRequiresInstance(t *testing.T) {
	_, err := postgresHandler{}.CreateCloudSQLPool(config.DatabaseConfig{Dialect: "cloudsqlpostgres"})
	assert.Error(t, err)
}
