package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dbscope-io/dbscope-engine/pkg/adapters/datasource"
)

// Executor runs queries against one MySQL database through a lazily created
// database/sql pool.
type Executor struct {
	desc   datasource.Descriptor
	dsn    string
	logger *zap.Logger

	mu     sync.Mutex
	db     *sql.DB
	closed bool
}

var _ datasource.Executor = (*Executor)(nil)

// New builds an executor for the descriptor. The URL is converted to DSN
// form eagerly so a malformed descriptor fails here; no connection is made
// until first use. The signature matches datasource.Factory.
func New(desc datasource.Descriptor, logger *zap.Logger) (datasource.Executor, error) {
	dsn, err := DSNFromURL(desc.URL)
	if err != nil {
		return nil, err
	}
	return &Executor{
		desc:   desc,
		dsn:    dsn,
		logger: logger.Named("mysql").With(zap.String("connection", desc.Name)),
	}, nil
}

func (e *Executor) DialectName() string { return datasource.DialectMySQL }

func (e *Executor) IdentifierQuote() string { return "`" }

// TestConnection opens a throwaway handle, pings, and probes. The executor's
// pool is never touched.
func (e *Executor) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, e.commandTimeout())
	defer cancel()

	db, err := sql.Open("mysql", e.dsn)
	if err != nil {
		return fmt.Errorf("failed to open connection: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	var probe int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&probe); err != nil {
		return fmt.Errorf("connection probe failed: %w", err)
	}
	return nil
}

// ExecuteQuery runs the statement and buffers every row. Column types come
// from the driver's reported type names, unlike the Postgres family's
// value inference.
func (e *Executor) ExecuteQuery(ctx context.Context, query string) (*datasource.QueryResult, error) {
	db, err := e.getDB()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.commandTimeout())
	defer cancel()

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	columnNames, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to read column types: %w", err)
	}

	columns := make([]datasource.ColumnInfo, len(columnNames))
	for i, name := range columnNames {
		columns[i] = datasource.ColumnInfo{Name: name, Type: typeName(columnTypes[i])}
	}

	resultRows := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(columnNames))
		valuePtrs := make([]any, len(columnNames))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(map[string]any, len(columnNames))
		for i, name := range columnNames {
			row[name] = normalizeValue(values[i])
		}
		resultRows = append(resultRows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	return &datasource.QueryResult{
		Columns:  columns,
		Rows:     resultRows,
		RowCount: len(resultRows),
	}, nil
}

// Close releases the pool if one was created. Safe to call twice; a closed
// executor refuses further queries.
func (e *Executor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.db != nil {
		if err := e.db.Close(); err != nil {
			e.logger.Warn("Failed to close pool", zap.Error(err))
		}
		e.db = nil
	}
	e.closed = true
}

func (e *Executor) getDB() (*sql.DB, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, fmt.Errorf("executor for %q is closed", e.desc.Name)
	}
	if e.db != nil {
		return e.db, nil
	}

	db, err := sql.Open("mysql", e.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open pool: %w", err)
	}
	if e.desc.MaxConns > 0 {
		db.SetMaxOpenConns(int(e.desc.MaxConns))
	}
	if e.desc.MinConns > 0 {
		db.SetMaxIdleConns(int(e.desc.MinConns))
	}
	db.SetConnMaxLifetime(time.Hour)

	e.db = db
	e.logger.Debug("Created connection pool",
		zap.Int32("min_conns", e.desc.MinConns),
		zap.Int32("max_conns", e.desc.MaxConns))
	return db, nil
}

func (e *Executor) commandTimeout() time.Duration {
	if e.desc.CommandTimeout > 0 {
		return e.desc.CommandTimeout
	}
	return 30 * time.Second
}
