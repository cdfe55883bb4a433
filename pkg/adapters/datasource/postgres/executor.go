package postgres

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/dbscope-io/dbscope-engine/pkg/adapters/datasource"
)

// Executor runs queries against one PostgreSQL database through a lazily
// created pgx pool.
type Executor struct {
	desc   datasource.Descriptor
	logger *zap.Logger

	mu     sync.Mutex
	pool   *pgxpool.Pool
	closed bool
}

var _ datasource.Executor = (*Executor)(nil)

// New builds an executor for the descriptor. The URL is parsed eagerly so a
// malformed descriptor fails here; no connection is made until first use.
// The signature matches datasource.Factory.
func New(desc datasource.Descriptor, logger *zap.Logger) (datasource.Executor, error) {
	if _, err := pgxpool.ParseConfig(desc.URL); err != nil {
		return nil, fmt.Errorf("failed to parse postgres URL: %w", err)
	}
	return &Executor{
		desc:   desc,
		logger: logger.Named("postgres").With(zap.String("connection", desc.Name)),
	}, nil
}

func (e *Executor) DialectName() string { return datasource.DialectPostgres }

func (e *Executor) IdentifierQuote() string { return `"` }

// TestConnection dials a single throwaway connection and probes it. The
// executor's pool is never touched, so a failed pre-test leaves no state.
func (e *Executor) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, e.commandTimeout())
	defer cancel()

	conn, err := pgx.Connect(ctx, e.desc.URL)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close(ctx)

	var probe int
	if err := conn.QueryRow(ctx, "SELECT 1").Scan(&probe); err != nil {
		return fmt.Errorf("connection probe failed: %w", err)
	}
	return nil
}

// ExecuteQuery runs the statement and buffers every row. Column types are
// inferred from the first row's values; a result with zero rows reports
// every column as unknown.
func (e *Executor) ExecuteQuery(ctx context.Context, sql string) (*datasource.QueryResult, error) {
	pool, err := e.getPool(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.commandTimeout())
	defer cancel()

	rows, err := pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]datasource.ColumnInfo, len(fields))
	for i, fd := range fields {
		columns[i] = datasource.ColumnInfo{Name: string(fd.Name), Type: "unknown"}
	}

	resultRows := []map[string]any{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}

		if len(resultRows) == 0 {
			for i := range fields {
				columns[i].Type = inferTypeName(values[i])
			}
		}

		row := make(map[string]any, len(fields))
		for i, fd := range fields {
			row[string(fd.Name)] = normalizeValue(values[i])
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
	if e.pool != nil {
		e.pool.Close()
		e.pool = nil
	}
	e.closed = true
}

// getPool creates the pool on first use. The mutex guards creation and keeps
// a concurrent Close from leaking a just-made pool.
func (e *Executor) getPool(ctx context.Context) (*pgxpool.Pool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, fmt.Errorf("executor for %q is closed", e.desc.Name)
	}
	if e.pool != nil {
		return e.pool, nil
	}

	cfg, err := pgxpool.ParseConfig(e.desc.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres URL: %w", err)
	}
	if e.desc.MinConns > 0 {
		cfg.MinConns = e.desc.MinConns
	}
	if e.desc.MaxConns > 0 {
		cfg.MaxConns = e.desc.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	e.pool = pool
	e.logger.Debug("Created connection pool",
		zap.Int32("min_conns", cfg.MinConns),
		zap.Int32("max_conns", cfg.MaxConns))
	return pool, nil
}

func (e *Executor) commandTimeout() time.Duration {
	if e.desc.CommandTimeout > 0 {
		return e.desc.CommandTimeout
	}
	return 30 * time.Second
}
