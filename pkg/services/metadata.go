package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dbscope-io/dbscope-engine/pkg/adapters/datasource"
	"github.com/dbscope-io/dbscope-engine/pkg/models"
	"github.com/dbscope-io/dbscope-engine/pkg/repositories"
)

// MetadataService serves schema snapshots with a freshness TTL. Snapshots are
// read from the local store until they age out; extraction failures propagate
// rather than silently serving a stale snapshot.
type MetadataService interface {
	// Get returns the snapshot for the connection and whether it was served
	// from cache. forceRefresh skips the cache read.
	Get(ctx context.Context, name string, forceRefresh bool) (*models.MetadataSnapshot, bool, error)

	// Refresh always extracts fresh metadata.
	Refresh(ctx context.Context, name string) (*models.MetadataSnapshot, error)
}

// PoolConfig carries the pool bounds applied to every executor the services
// create through the registry.
type PoolConfig struct {
	MinConns       int32
	MaxConns       int32
	CommandTimeout time.Duration
}

func (p PoolConfig) descriptorFor(conn *models.Connection) datasource.Descriptor {
	return datasource.Descriptor{
		Name:           conn.Name,
		URL:            conn.URL,
		MinConns:       p.MinConns,
		MaxConns:       p.MaxConns,
		CommandTimeout: p.CommandTimeout,
	}
}

type metadataService struct {
	connections ConnectionService
	repo        repositories.MetadataRepository
	registry    *datasource.Registry
	ttl         time.Duration
	poolConfig  PoolConfig
	logger      *zap.Logger
}

var _ MetadataService = (*metadataService)(nil)

// NewMetadataService creates a new metadata service with dependencies.
func NewMetadataService(
	connections ConnectionService,
	repo repositories.MetadataRepository,
	registry *datasource.Registry,
	ttl time.Duration,
	poolConfig PoolConfig,
	logger *zap.Logger,
) MetadataService {
	return &metadataService{
		connections: connections,
		repo:        repo,
		registry:    registry,
		ttl:         ttl,
		poolConfig:  poolConfig,
		logger:      logger,
	}
}

func (s *metadataService) Get(ctx context.Context, name string, forceRefresh bool) (*models.MetadataSnapshot, bool, error) {
	conn, err := s.connections.Get(ctx, name)
	if err != nil {
		return nil, false, err
	}

	if !forceRefresh {
		snap, err := s.repo.Get(ctx, name)
		if err == nil && !snap.IsStale(s.ttl) {
			return snap, true, nil
		}
	}

	snap, err := s.extract(ctx, conn)
	if err != nil {
		s.connections.MarkError(ctx, name)
		return nil, false, err
	}
	return snap, false, nil
}

func (s *metadataService) Refresh(ctx context.Context, name string) (*models.MetadataSnapshot, error) {
	snap, _, err := s.Get(ctx, name, true)
	return snap, err
}

func (s *metadataService) extract(ctx context.Context, conn *models.Connection) (*models.MetadataSnapshot, error) {
	exec, err := s.registry.GetOrCreate(conn.Type, s.poolConfig.descriptorFor(conn))
	if err != nil {
		return nil, err
	}

	payload, err := exec.ExtractMetadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to extract metadata for %q: %w", conn.Name, err)
	}

	snap := &models.MetadataSnapshot{
		ConnectionName: conn.Name,
		Payload:        payload,
		FetchedAt:      time.Now().UTC(),
	}
	if err := s.repo.Upsert(ctx, snap); err != nil {
		return nil, err
	}

	s.connections.TouchConnected(ctx, conn.Name)
	s.logger.Info("Extracted metadata",
		zap.String("connection", conn.Name),
		zap.Int("tables", len(payload.Tables)),
		zap.Int("views", len(payload.Views)))
	return snap, nil
}
