package adapter

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestBaseSQLAdapter_Close(t *testing.T) {
	tests := []struct {
		name    string
		setupDB bool
	}{
		{name: "close with nil DB", setupDB: false},
		{name: "close with open DB", setupDB: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := &BaseSQLAdapter{}

			if tt.setupDB {
				db, mock, err := sqlmock.New()
				require.NoError(t, err)
				mock.ExpectClose()
				base.DB = db
			}

			assert.NoError(t, base.Close())
			assert.False(t, base.IsConnected())
			assert.NoError(t, base.Close(), "second close is a no-op")
		})
	}
}

func TestBaseSQLAdapter_Execute(t *testing.T) {
	tests := []struct {
		name      string
		setupDB   bool
		setupMock func(mock sqlmock.Sqlmock)
		sql       string
		maxRows   int
		wantCount int64
		wantRows  int
		truncated bool
		errMsg    string
	}{
		{
			name:    "execute without connection",
			setupDB: false,
			sql:     "SELECT 1",
			errMsg:  "database connection not established",
		},
		{
			name:    "ddl uses exec",
			setupDB: true,
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("CREATE TABLE users").WillReturnResult(sqlmock.NewResult(0, 0))
			},
			sql:     "CREATE TABLE users (id INT)",
			maxRows: 10,
		},
		{
			name:    "update reports rows affected",
			setupDB: true,
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("UPDATE users").WillReturnResult(sqlmock.NewResult(0, 3))
			},
			sql:       "UPDATE users SET name = 'x'",
			maxRows:   10,
			wantCount: 3,
		},
		{
			name:    "select counts all rows",
			setupDB: true,
			setupMock: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows([]string{"id", "name"}).
					AddRow(1, "alice").
					AddRow(2, "bob").
					AddRow(3, "carol")
				mock.ExpectQuery("SELECT").WillReturnRows(rows)
			},
			sql:       "-- list\nSELECT id, name FROM users",
			maxRows:   2,
			wantCount: 3,
			wantRows:  2,
			truncated: true,
		},
		{
			name:    "query with error",
			setupDB: true,
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT").WillReturnError(assert.AnError)
			},
			sql:     "SELECT nope",
			maxRows: 10,
			errMsg:  "failed to execute query",
		},
		{
			name:    "exec with error",
			setupDB: true,
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("INVALID").WillReturnError(assert.AnError)
			},
			sql:     "INVALID SQL",
			maxRows: 10,
			errMsg:  "failed to execute SQL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := &BaseSQLAdapter{}

			if tt.setupDB {
				db, mock, err := sqlmock.New()
				require.NoError(t, err)
				defer func() { _ = db.Close() }()
				if tt.setupMock != nil {
					tt.setupMock(mock)
				}
				base.DB = db
			}

			res, err := base.Execute(context.Background(), tt.sql, tt.maxRows)
			if tt.errMsg != "" {
				require.Error(t, err)
				assert.Nil(t, res)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCount, res.RowCount)
			assert.Len(t, res.Rows, tt.wantRows)
			assert.Equal(t, tt.truncated, res.Truncated)
		})
	}
}

func TestBaseSQLAdapter_ExecuteConvertsBytes(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("(?i)select v from t").WillReturnRows(sqlmock.NewRows([]string{"v"}).AddRow([]byte("hello")))

	base := &BaseSQLAdapter{DB: db}
	res, err := base.Execute(context.Background(), "select v from t", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"v"}, res.Columns)
	assert.Equal(t, "hello", res.Rows[0][0])
}

func TestBaseSQLAdapter_IntrospectCommon(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("columns").WithArgs("public").WillReturnRows(
		sqlmock.NewRows([]string{"table_name", "column_name", "data_type", "is_nullable", "ordinal_position"}).
			AddRow("users", "id", "integer", "NO", 1).
			AddRow("users", "email", "text", "YES", 2).
			AddRow("orders", "id", "integer", "NO", 1).
			AddRow("orders", "user_id", "integer", "YES", 2),
	)
	mock.ExpectQuery("pks").WithArgs("public").WillReturnRows(
		sqlmock.NewRows([]string{"table_name", "column_name"}).
			AddRow("users", "id").
			AddRow("orders", "id"),
	)
	mock.ExpectQuery("fks").WithArgs("public").WillReturnRows(
		sqlmock.NewRows([]string{"from_table", "from_column", "to_table", "to_column"}).
			AddRow("orders", "user_id", "users", "id"),
	)

	base := &BaseSQLAdapter{DB: db}
	base.Cfg.Schema = "public"
	meta, err := base.IntrospectCommon(context.Background(), IntrospectionQueries{
		Columns:     "select columns",
		PrimaryKeys: "select pks",
		ForeignKeys: "select fks",
	}, "public")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, meta.Tables, 2)
	assert.Equal(t, "users", meta.Tables[0].Name)
	assert.Equal(t, "orders", meta.Tables[1].Name)
	assert.True(t, meta.Tables[0].Columns[0].PrimaryKey)
	assert.False(t, meta.Tables[0].Columns[0].Nullable)
	assert.True(t, meta.Tables[0].Columns[1].Nullable)
	require.Len(t, meta.ForeignKeys, 1)
	assert.Equal(t, "users", meta.ForeignKeys[0].ToTable)
}

func TestBaseSQLAdapter_IntrospectCommonErrors(t *testing.T) {
	_, err := (&BaseSQLAdapter{}).IntrospectCommon(context.Background(), IntrospectionQueries{Columns: "x"})
	require.ErrorIs(t, err, ErrNotConnected)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	mock.ExpectQuery("columns").WillReturnError(assert.AnError)

	_, err = (&BaseSQLAdapter{DB: db}).IntrospectCommon(context.Background(), IntrospectionQueries{Columns: "columns"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to query column metadata")
}

func TestBaseSQLAdapter_CloseDuringExecute(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	base := &BaseSQLAdapter{DB: db}

	var wg sync.WaitGroup
	start := make(chan struct{})
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			res, err := base.Execute(context.Background(), "select 1", 1)
			if err == nil {
				assert.Equal(t, int64(1), res.RowCount)
			}
		}()
	}
	close(start)
	require.NoError(t, base.Close())
	wg.Wait()

	_, err = base.Execute(context.Background(), "select 1", 1)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.False(t, base.IsConnected())
}
