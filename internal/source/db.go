package source

import (
	"context"
	"strconv"
	"time"
)

// TableMeta describes one database table.
type TableMeta struct {
	Name       string
	Engine     string
	Rows       int64
	DataBytes  int64
	IndexBytes int64
	Collation  string
	CreatedAt  time.Time
}

// TotalBytes is data plus index size.
func (t TableMeta) TotalBytes() int64 { return t.DataBytes + t.IndexBytes }

// Selector is a named, read-only SELECT projection. The name identifies the
// query for logging and test fakes.
type Selector struct {
	Name string
	SQL  string
	Args []any
}

// Row is one result row keyed by column name. NULL reads as "".
type Row map[string]string

// Int parses column as an integer, returning 0 when absent or malformed.
func (r Row) Int(column string) int64 {
	n, err := strconv.ParseInt(r[column], 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// DB is the database side of a scan. Implementations must only run bounded
// read-only queries.
type DB interface {
	Tables(ctx context.Context, schema string) ([]TableMeta, error)
	Rows(ctx context.Context, sel Selector, limit int) ([]Row, error)
}
