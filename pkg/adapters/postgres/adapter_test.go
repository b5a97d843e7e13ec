package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/A-SunsetMkt-Forks/pg/pkg/adapter"
	"github.com/A-SunsetMkt-Forks/pg/pkg/core"
)

func TestBuildPostgresDSN(t *testing.T) {
	tests := []struct {
		name     string
		config   core.AdapterConfig
		expected string
	}{
		{
			name: "basic connection",
			config: core.AdapterConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "testdb",
				Username: "user",
				Password: "pass",
			},
			expected: "host=localhost port=5432 dbname=testdb sslmode=disable user=user password=pass",
		},
		{
			name: "with custom sslmode",
			config: core.AdapterConfig{
				Host:     "prod.example.com",
				Port:     5432,
				Database: "proddb",
				Username: "admin",
				Options:  map[string]string{"sslmode": "require"},
			},
			expected: "host=prod.example.com port=5432 dbname=proddb sslmode=require user=admin",
		},
		{
			name: "defaults",
			config: core.AdapterConfig{
				Database: "mydb",
			},
			expected: "host=localhost port=5432 dbname=mydb sslmode=disable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, buildPostgresDSN(tt.config))
		})
	}
}

func TestAdapter_IntrospectSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("information_schema.columns").WithArgs("public").WillReturnRows(
		sqlmock.NewRows([]string{"table_name", "column_name", "data_type", "is_nullable", "ordinal_position"}).
			AddRow("orders", "id", "integer", "NO", 1).
			AddRow("orders", "user_id", "integer", "YES", 2).
			AddRow("users", "id", "integer", "NO", 1),
	)
	mock.ExpectQuery("PRIMARY KEY").WithArgs("public").WillReturnRows(
		sqlmock.NewRows([]string{"table_name", "column_name"}).AddRow("orders", "id").AddRow("users", "id"),
	)
	mock.ExpectQuery("referential_constraints").WithArgs("public").WillReturnRows(
		sqlmock.NewRows([]string{"from_table", "from_column", "to_table", "to_column"}).
			AddRow("orders", "user_id", "users", "id"),
	)

	adp := &Adapter{BaseSQLAdapter: adapter.BaseSQLAdapter{DB: db, Cfg: core.AdapterConfig{Schema: "public"}}}
	meta, err := adp.IntrospectSchema(context.Background())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, meta.Tables, 2)
	assert.Equal(t, "public", meta.Schema)
	require.Len(t, meta.ForeignKeys, 1)
	assert.Equal(t, "users", meta.ForeignKeys[0].ToTable)
}

func TestAdapter_Capabilities(t *testing.T) {
	caps := New(nil).Capabilities()
	assert.Equal(t, 4, caps.Parallelism())
}

func TestRegistered(t *testing.T) {
	assert.True(t, adapter.IsRegistered("postgres"))
}
