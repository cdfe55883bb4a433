package datasource

import (
	"context"
	"time"

	"github.com/dbscope-io/dbscope-engine/pkg/models"
)

// Dialect names reported by executors.
const (
	DialectPostgres = "pg"
	DialectMySQL    = "mysql"
)

// Descriptor carries everything needed to build an executor for one
// registered connection. It is immutable once an executor exists; a URL
// change requires closing the executor and creating a new one.
type Descriptor struct {
	Name           string
	URL            string
	MinConns       int32
	MaxConns       int32
	CommandTimeout time.Duration
}

// ColumnInfo names one result column with the dialect's type text. The two
// families disagree on purpose: Postgres types are inferred from the first
// row's values, MySQL types are reported by the driver. Type strings must
// not be compared across dialects.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// QueryResult is a fully buffered result set. RowCount always equals
// len(Rows). Temporal values are RFC3339 strings before leaving an executor.
type QueryResult struct {
	Columns  []ColumnInfo     `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"rowCount"`
}

// Executor runs read-only work against one registered database.
type Executor interface {
	// DialectName returns "pg" or "mysql".
	DialectName() string

	// IdentifierQuote returns the dialect's identifier quote character.
	IdentifierQuote() string

	// TestConnection opens a throwaway connection, runs a probe query, and
	// closes it without touching the executor's pool.
	TestConnection(ctx context.Context) error

	// ExtractMetadata lists tables and views with their columns and, for
	// tables, row counts. A failed row count degrades to an absent count.
	ExtractMetadata(ctx context.Context) (*models.DatabaseMetadata, error)

	// ExecuteQuery runs already-validated SQL and buffers the full result.
	ExecuteQuery(ctx context.Context, sql string) (*QueryResult, error)

	// Close releases the pool if one was created. Safe to call twice.
	Close()
}
