package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dbscope-io/dbscope-engine/pkg/apperrors"
	"github.com/dbscope-io/dbscope-engine/pkg/database"
	"github.com/dbscope-io/dbscope-engine/pkg/models"
)

// ConnectionRepository persists registered database connections.
type ConnectionRepository interface {
	// Upsert inserts the connection or, when the name is already registered,
	// replaces everything but created_at.
	Upsert(ctx context.Context, conn *models.Connection) error
	// Get returns apperrors.ErrNotFound when the name is not registered.
	Get(ctx context.Context, name string) (*models.Connection, error)
	// List returns all connections ordered by name.
	List(ctx context.Context) ([]*models.Connection, error)
	// Delete returns apperrors.ErrNotFound when the name is not registered.
	Delete(ctx context.Context, name string) error
	// UpdateStatus sets the status and, when non-nil, last_connected_at.
	UpdateStatus(ctx context.Context, name, status string, lastConnectedAt *time.Time) error
}

type connectionRepository struct {
	db *database.DB
}

var _ ConnectionRepository = (*connectionRepository)(nil)

// NewConnectionRepository creates a ConnectionRepository backed by the local store.
func NewConnectionRepository(db *database.DB) ConnectionRepository {
	return &connectionRepository{db: db}
}

func (r *connectionRepository) Upsert(ctx context.Context, conn *models.Connection) error {
	query := `
		INSERT INTO connections (name, url, db_type, description, status, created_at, updated_at, last_connected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			url = excluded.url,
			db_type = excluded.db_type,
			description = excluded.description,
			status = excluded.status,
			updated_at = excluded.updated_at,
			last_connected_at = excluded.last_connected_at`

	var lastConnected any
	if conn.LastConnectedAt != nil {
		lastConnected = conn.LastConnectedAt.UTC()
	}

	_, err := r.db.ExecContext(ctx, query,
		conn.Name, conn.URL, conn.Type, conn.Description, conn.Status,
		conn.CreatedAt.UTC(), conn.UpdatedAt.UTC(), lastConnected)
	if err != nil {
		return fmt.Errorf("failed to upsert connection: %w", err)
	}
	return nil
}

func (r *connectionRepository) Get(ctx context.Context, name string) (*models.Connection, error) {
	query := `
		SELECT name, url, db_type, description, status, created_at, updated_at, last_connected_at
		FROM connections
		WHERE name = ?`

	conn, err := scanConnection(r.db.QueryRowContext(ctx, query, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return conn, nil
}

func (r *connectionRepository) List(ctx context.Context) ([]*models.Connection, error) {
	query := `
		SELECT name, url, db_type, description, status, created_at, updated_at, last_connected_at
		FROM connections
		ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer rows.Close()

	var conns []*models.Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		conns = append(conns, conn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate connections: %w", err)
	}
	return conns, nil
}

func (r *connectionRepository) Delete(ctx context.Context, name string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM connections WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *connectionRepository) UpdateStatus(ctx context.Context, name, status string, lastConnectedAt *time.Time) error {
	var (
		result sql.Result
		err    error
	)
	if lastConnectedAt != nil {
		query := `UPDATE connections SET status = ?, last_connected_at = ?, updated_at = ? WHERE name = ?`
		result, err = r.db.ExecContext(ctx, query, status, lastConnectedAt.UTC(), time.Now().UTC(), name)
	} else {
		query := `UPDATE connections SET status = ?, updated_at = ? WHERE name = ?`
		result, err = r.db.ExecContext(ctx, query, status, time.Now().UTC(), name)
	}
	if err != nil {
		return fmt.Errorf("failed to update connection status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// scanTarget lets scanConnection work for both QueryRow and Rows.
type scanTarget interface {
	Scan(dest ...any) error
}

func scanConnection(row scanTarget) (*models.Connection, error) {
	var (
		conn          models.Connection
		lastConnected sql.NullTime
	)
	err := row.Scan(&conn.Name, &conn.URL, &conn.Type, &conn.Description,
		&conn.Status, &conn.CreatedAt, &conn.UpdatedAt, &lastConnected)
	if err != nil {
		return nil, err
	}
	if lastConnected.Valid {
		t := lastConnected.Time
		conn.LastConnectedAt = &t
	}
	return &conn, nil
}
