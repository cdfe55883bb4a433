package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/dbscope-io/dbscope-engine/pkg/database"
	"github.com/dbscope-io/dbscope-engine/pkg/models"
)

// DefaultHistoryKeep bounds per-connection history when no limit is configured.
const DefaultHistoryKeep = 50

// QueryHistoryRepository persists the per-connection query audit trail.
type QueryHistoryRepository interface {
	// Insert writes the entry and synchronously trims the connection's
	// history to the retention bound, oldest entries first.
	Insert(ctx context.Context, entry *models.QueryHistoryEntry) error
	// ListByConnection returns up to limit entries, newest first.
	ListByConnection(ctx context.Context, connectionName string, limit int) ([]*models.QueryHistoryEntry, error)
	DeleteByConnection(ctx context.Context, connectionName string) error
}

type queryHistoryRepository struct {
	db   *database.DB
	keep int
}

var _ QueryHistoryRepository = (*queryHistoryRepository)(nil)

// NewQueryHistoryRepository creates a QueryHistoryRepository that retains at
// most keep entries per connection.
func NewQueryHistoryRepository(db *database.DB, keep int) QueryHistoryRepository {
	if keep <= 0 {
		keep = DefaultHistoryKeep
	}
	return &queryHistoryRepository{db: db, keep: keep}
}

func (r *queryHistoryRepository) Insert(ctx context.Context, entry *models.QueryHistoryEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin history transaction: %w", err)
	}
	defer tx.Rollback()

	insert := `
		INSERT INTO query_history (id, connection_name, sql_text, executed_at, execution_time_ms, row_count, success, error_message, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	success := 0
	if entry.Success {
		success = 1
	}
	_, err = tx.ExecContext(ctx, insert,
		entry.ID.String(), entry.ConnectionName, entry.SQLText, entry.ExecutedAt.UTC(),
		nullableInt64(entry.ExecutionTimeMs), nullableInt(entry.RowCount),
		success, nullableString(entry.ErrorMessage), entry.Source)
	if err != nil {
		return fmt.Errorf("failed to insert query history: %w", err)
	}

	// Retention: keep only the newest entries for this connection, ordering
	// by executed_at with insertion order as the tiebreak.
	trim := `
		DELETE FROM query_history
		WHERE connection_name = ?
		  AND id NOT IN (
			SELECT id FROM query_history
			WHERE connection_name = ?
			ORDER BY executed_at DESC, rowid DESC
			LIMIT ?
		  )`
	if _, err := tx.ExecContext(ctx, trim, entry.ConnectionName, entry.ConnectionName, r.keep); err != nil {
		return fmt.Errorf("failed to trim query history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit history transaction: %w", err)
	}
	return nil
}

func (r *queryHistoryRepository) ListByConnection(ctx context.Context, connectionName string, limit int) ([]*models.QueryHistoryEntry, error) {
	if limit <= 0 || limit > r.keep {
		limit = r.keep
	}

	query := `
		SELECT id, connection_name, sql_text, executed_at, execution_time_ms, row_count, success, error_message, source
		FROM query_history
		WHERE connection_name = ?
		ORDER BY executed_at DESC, rowid DESC
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, connectionName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list query history: %w", err)
	}
	defer rows.Close()

	var entries []*models.QueryHistoryEntry
	for rows.Next() {
		entry, err := scanHistoryEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan query history: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate query history: %w", err)
	}
	return entries, nil
}

func (r *queryHistoryRepository) DeleteByConnection(ctx context.Context, connectionName string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM query_history WHERE connection_name = ?`, connectionName)
	if err != nil {
		return fmt.Errorf("failed to delete query history: %w", err)
	}
	return nil
}

func scanHistoryEntry(rows *sql.Rows) (*models.QueryHistoryEntry, error) {
	var (
		entry      models.QueryHistoryEntry
		id         string
		durationMs sql.NullInt64
		rowCount   sql.NullInt64
		success    int
		errMsg     sql.NullString
	)
	err := rows.Scan(&id, &entry.ConnectionName, &entry.SQLText, &entry.ExecutedAt,
		&durationMs, &rowCount, &success, &errMsg, &entry.Source)
	if err != nil {
		return nil, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid history entry id %q: %w", id, err)
	}
	entry.ID = parsed
	entry.Success = success == 1
	if durationMs.Valid {
		v := durationMs.Int64
		entry.ExecutionTimeMs = &v
	}
	if rowCount.Valid {
		v := int(rowCount.Int64)
		entry.RowCount = &v
	}
	if errMsg.Valid {
		v := errMsg.String
		entry.ErrorMessage = &v
	}
	return &entry, nil
}

func nullableInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func nullableString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}
