package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dbscope-io/dbscope-engine/pkg/apperrors"
	"github.com/dbscope-io/dbscope-engine/pkg/database"
	"github.com/dbscope-io/dbscope-engine/pkg/models"
)

// MetadataRepository persists cached schema snapshots, one per connection.
// Staleness is a service-layer rule; this repository only stores and loads.
type MetadataRepository interface {
	Upsert(ctx context.Context, snap *models.MetadataSnapshot) error
	// Get returns apperrors.ErrNotFound when no snapshot exists for the name.
	Get(ctx context.Context, connectionName string) (*models.MetadataSnapshot, error)
	Delete(ctx context.Context, connectionName string) error
}

type metadataRepository struct {
	db *database.DB
}

var _ MetadataRepository = (*metadataRepository)(nil)

// NewMetadataRepository creates a MetadataRepository backed by the local store.
func NewMetadataRepository(db *database.DB) MetadataRepository {
	return &metadataRepository{db: db}
}

func (r *metadataRepository) Upsert(ctx context.Context, snap *models.MetadataSnapshot) error {
	payload, err := json.Marshal(snap.Payload)
	if err != nil {
		return fmt.Errorf("failed to serialize metadata payload: %w", err)
	}

	query := `
		INSERT INTO metadata_snapshots (connection_name, payload, fetched_at)
		VALUES (?, ?, ?)
		ON CONFLICT(connection_name) DO UPDATE SET
			payload = excluded.payload,
			fetched_at = excluded.fetched_at`

	_, err = r.db.ExecContext(ctx, query, snap.ConnectionName, string(payload), snap.FetchedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert metadata snapshot: %w", err)
	}
	return nil
}

func (r *metadataRepository) Get(ctx context.Context, connectionName string) (*models.MetadataSnapshot, error) {
	query := `
		SELECT connection_name, payload, fetched_at
		FROM metadata_snapshots
		WHERE connection_name = ?`

	var (
		snap    models.MetadataSnapshot
		payload string
	)
	err := r.db.QueryRowContext(ctx, query, connectionName).
		Scan(&snap.ConnectionName, &payload, &snap.FetchedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get metadata snapshot: %w", err)
	}

	if err := json.Unmarshal([]byte(payload), &snap.Payload); err != nil {
		return nil, fmt.Errorf("failed to deserialize metadata payload: %w", err)
	}
	return &snap, nil
}

func (r *metadataRepository) Delete(ctx context.Context, connectionName string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM metadata_snapshots WHERE connection_name = ?`, connectionName)
	if err != nil {
		return fmt.Errorf("failed to delete metadata snapshot: %w", err)
	}
	return nil
}
