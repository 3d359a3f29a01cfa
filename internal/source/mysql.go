package source

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/go-sql-driver/mysql"
)

// DefaultRowLimit bounds selectors run without an explicit limit.
const DefaultRowLimit = 100

const tablesQuery = `SELECT TABLE_NAME, COALESCE(ENGINE, ''), COALESCE(TABLE_ROWS, 0), COALESCE(DATA_LENGTH, 0), COALESCE(INDEX_LENGTH, 0), COALESCE(TABLE_COLLATION, ''), CREATE_TIME
FROM information_schema.TABLES
WHERE TABLE_SCHEMA = ?
ORDER BY TABLE_NAME`

// MySQL implements DB over database/sql.
type MySQL struct {
	db *sql.DB
}

// NewMySQL wraps an open handle.
func NewMySQL(db *sql.DB) *MySQL { return &MySQL{db: db} }

// OpenMySQL connects with dsn and pings the server. Any failure is returned
// as is; callers treat it as fatal for the run.
func OpenMySQL(ctx context.Context, dsn string) (*MySQL, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysql connector: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to %s: %w", cfg.Addr, err)
	}
	return &MySQL{db: db}, nil
}

// Close releases the connection pool.
func (m *MySQL) Close() error { return m.db.Close() }

// Tables reads table metadata from information_schema.
func (m *MySQL) Tables(ctx context.Context, schema string) ([]TableMeta, error) {
	rows, err := m.db.QueryContext(ctx, tablesQuery, schema)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	var out []TableMeta
	for rows.Next() {
		var t TableMeta
		var created sql.NullString
		if err := rows.Scan(&t.Name, &t.Engine, &t.Rows, &t.DataBytes, &t.IndexBytes, &t.Collation, &created); err != nil {
			return nil, fmt.Errorf("scan table row: %w", err)
		}
		if created.Valid {
			t.CreatedAt = parseTime(created.String)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Rows runs a read-only selector with a LIMIT clause appended.
func (m *MySQL) Rows(ctx context.Context, sel Selector, limit int) ([]Row, error) {
	if !ReadOnly(sel.SQL) {
		return nil, fmt.Errorf("selector %s: only single SELECT statements are allowed", sel.Name)
	}
	if limit <= 0 {
		limit = DefaultRowLimit
	}
	query := strings.TrimSpace(sel.SQL) + " LIMIT ?"
	args := append(append([]any{}, sel.Args...), limit)

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("selector %s: %w", sel.Name, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("selector %s: %w", sel.Name, err)
	}
	var out []Row
	for rows.Next() {
		vals := make([]sql.NullString, len(cols))
		dest := make([]any, len(cols))
		for i := range vals {
			dest[i] = &vals[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("selector %s: scan: %w", sel.Name, err)
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			row[c] = vals[i].String
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// ReadOnly reports whether q is a single SELECT statement.
func ReadOnly(q string) bool {
	q = strings.TrimSpace(q)
	if strings.Contains(q, ";") || len(q) < 7 {
		return false
	}
	return strings.EqualFold(q[:6], "SELECT") && unicode.IsSpace(rune(q[6]))
}

func parseTime(s string) time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
