package source

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMySQLTables(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(tablesQuery)).
		WithArgs("wordpress").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME", "ENGINE", "TABLE_ROWS", "DATA_LENGTH", "INDEX_LENGTH", "TABLE_COLLATION", "CREATE_TIME"}).
			AddRow("wp_options", "InnoDB", 420, 1048576, 65536, "utf8mb4_unicode_ci", "2023-05-01 10:00:00").
			AddRow("wp0ptions", "MyISAM", 3, 16384, 0, "latin1_swedish_ci", nil))

	tables, err := NewMySQL(db).Tables(context.Background(), "wordpress")
	require.NoError(t, err)
	require.Len(t, tables, 2)

	assert.Equal(t, "wp_options", tables[0].Name)
	assert.Equal(t, int64(1048576+65536), tables[0].TotalBytes())
	assert.Equal(t, time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC), tables[0].CreatedAt)
	assert.True(t, tables[1].CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLRowsAppendsLimit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	sel := Selector{Name: "cron", SQL: "SELECT LENGTH(option_value) AS bytes FROM wp_options WHERE option_name = ?", Args: []any{"cron"}}
	mock.ExpectQuery(regexp.QuoteMeta(sel.SQL + " LIMIT ?")).
		WithArgs("cron", 1).
		WillReturnRows(sqlmock.NewRows([]string{"bytes"}).AddRow("6291456"))

	rows, err := NewMySQL(db).Rows(context.Background(), sel, 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(6291456), rows[0].Int("bytes"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLRowsRejectsWrites(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	for _, q := range []string{"DELETE FROM wp_options", "SELECT 1; DROP TABLE wp_users", "UPDATE wp_users SET x=1"} {
		_, err := NewMySQL(db).Rows(context.Background(), Selector{Name: "bad", SQL: q}, 10)
		assert.Error(t, err, q)
	}
}

func TestReadOnly(t *testing.T) {
	assert.True(t, ReadOnly("SELECT a FROM b"))
	assert.True(t, ReadOnly("  select\na from b"))
	assert.False(t, ReadOnly("SELECTa FROM b"))
	assert.False(t, ReadOnly("INSERT INTO b VALUES (1)"))
	assert.False(t, ReadOnly("SELECT 1;"))
}

func TestRowInt(t *testing.T) {
	r := Row{"n": "42", "bad": "x"}
	assert.Equal(t, int64(42), r.Int("n"))
	assert.Equal(t, int64(0), r.Int("bad"))
	assert.Equal(t, int64(0), r.Int("missing"))
}
