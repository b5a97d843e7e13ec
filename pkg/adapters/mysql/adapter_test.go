package mysql

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/A-SunsetMkt-Forks/pg/pkg/adapter"
	"github.com/A-SunsetMkt-Forks/pg/pkg/core"
)

func TestBuildMySQLDSN(t *testing.T) {
	tests := []struct {
		name     string
		config   core.AdapterConfig
		expected string
	}{
		{
			name:     "defaults",
			config:   core.AdapterConfig{Database: "app"},
			expected: "tcp(localhost:3306)/app?parseTime=true",
		},
		{
			name: "credentials and port",
			config: core.AdapterConfig{
				Host:     "db.internal",
				Port:     3307,
				Database: "shop",
				Username: "root",
				Password: "secret",
			},
			expected: "root:secret@tcp(db.internal:3307)/shop?parseTime=true",
		},
		{
			name: "options become params",
			config: core.AdapterConfig{
				Database: "shop",
				Options:  map[string]string{"charset": "utf8mb4"},
			},
			expected: "tcp(localhost:3306)/shop?parseTime=true&charset=utf8mb4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, buildMySQLDSN(tt.config))
		})
	}
}

func TestAdapter_IntrospectSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("INFORMATION_SCHEMA.COLUMNS").WithArgs("shop").WillReturnRows(
		sqlmock.NewRows([]string{"TABLE_NAME", "COLUMN_NAME", "DATA_TYPE", "IS_NULLABLE", "ORDINAL_POSITION"}).
			AddRow("customers", "id", "int", "NO", 1).
			AddRow("orders", "id", "int", "NO", 1).
			AddRow("orders", "customer_id", "int", "NO", 2),
	)
	mock.ExpectQuery("PRIMARY").WithArgs("shop").WillReturnRows(
		sqlmock.NewRows([]string{"TABLE_NAME", "COLUMN_NAME"}).AddRow("customers", "id").AddRow("orders", "id"),
	)
	mock.ExpectQuery("REFERENCED_TABLE_NAME").WithArgs("shop").WillReturnRows(
		sqlmock.NewRows([]string{"TABLE_NAME", "COLUMN_NAME", "REFERENCED_TABLE_NAME", "REFERENCED_COLUMN_NAME"}).
			AddRow("orders", "customer_id", "customers", "id"),
	)

	adp := &Adapter{BaseSQLAdapter: adapter.BaseSQLAdapter{DB: db, Cfg: core.AdapterConfig{Schema: "shop"}}}
	meta, err := adp.IntrospectSchema(context.Background())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, meta.Tables, 2)
	assert.True(t, meta.Tables[1].Columns[0].PrimaryKey)
	assert.False(t, meta.Tables[1].Columns[1].PrimaryKey)
	assert.Equal(t, []core.ForeignKey{{FromTable: "orders", FromColumn: "customer_id", ToTable: "customers", ToColumn: "id"}}, meta.ForeignKeys)
}
