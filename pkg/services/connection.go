package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/dbscope-io/dbscope-engine/pkg/adapters/datasource"
	"github.com/dbscope-io/dbscope-engine/pkg/apperrors"
	"github.com/dbscope-io/dbscope-engine/pkg/models"
	"github.com/dbscope-io/dbscope-engine/pkg/repositories"
)

const (
	maxNameLength        = 50
	maxURLLength         = 500
	maxDescriptionLength = 200
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ConnectionService manages registered database connections. Registration is
// pre-tested: a connection that cannot be reached is never written.
type ConnectionService interface {
	// Upsert registers or replaces the named connection. dbType is optional;
	// when non-empty it must agree with the type detected from the URL.
	// Returns the stored connection and whether it was newly created.
	Upsert(ctx context.Context, name, url, description, dbType string) (*models.Connection, bool, error)

	// Get returns apperrors.ErrNotFound for unknown names.
	Get(ctx context.Context, name string) (*models.Connection, error)

	// List returns all connections ordered by name.
	List(ctx context.Context) ([]*models.Connection, error)

	// Delete removes the connection, its cached metadata snapshot, and its
	// pooled executor. Query history is kept for audit.
	Delete(ctx context.Context, name string) error

	// TouchConnected marks the connection active with a fresh
	// last-connected timestamp. Failures are logged, never returned; status
	// bookkeeping must not fail the operation that triggered it.
	TouchConnected(ctx context.Context, name string)

	// MarkError flags the connection after a connectivity failure.
	MarkError(ctx context.Context, name string)
}

type connectionService struct {
	repo           repositories.ConnectionRepository
	metaRepo       repositories.MetadataRepository
	registry       *datasource.Registry
	commandTimeout time.Duration
	logger         *zap.Logger
}

var _ ConnectionService = (*connectionService)(nil)

// NewConnectionService creates a new connection service with dependencies.
func NewConnectionService(
	repo repositories.ConnectionRepository,
	metaRepo repositories.MetadataRepository,
	registry *datasource.Registry,
	commandTimeout time.Duration,
	logger *zap.Logger,
) ConnectionService {
	return &connectionService{
		repo:           repo,
		metaRepo:       metaRepo,
		registry:       registry,
		commandTimeout: commandTimeout,
		logger:         logger,
	}
}

func (s *connectionService) Upsert(ctx context.Context, name, url, description, dbType string) (*models.Connection, bool, error) {
	if name == "" || len(name) > maxNameLength || !namePattern.MatchString(name) {
		return nil, false, fmt.Errorf("%w: name must be 1-%d characters of letters, digits, hyphens, and underscores",
			apperrors.ErrValidation, maxNameLength)
	}
	if url == "" || len(url) > maxURLLength {
		return nil, false, fmt.Errorf("%w: url must be 1-%d characters", apperrors.ErrValidation, maxURLLength)
	}
	if len(description) > maxDescriptionLength {
		return nil, false, fmt.Errorf("%w: description must be at most %d characters",
			apperrors.ErrValidation, maxDescriptionLength)
	}

	detected, err := datasource.DetectType(url)
	if err != nil {
		return nil, false, err
	}
	if dbType != "" && dbType != detected {
		return nil, false, fmt.Errorf("%w: provided type %q but URL indicates %q",
			apperrors.ErrInvalidConnectionURL, dbType, detected)
	}
	normalized, err := datasource.NormalizeURL(url)
	if err != nil {
		return nil, false, err
	}

	// Pre-test through a throwaway executor so a bad URL never lands in the
	// store and nothing is cached in the registry.
	probe, err := s.registry.NewExecutor(detected, datasource.Descriptor{
		Name:           name,
		URL:            normalized,
		CommandTimeout: s.commandTimeout,
	})
	if err != nil {
		return nil, false, err
	}
	defer probe.Close()

	if err := probe.TestConnection(ctx); err != nil {
		return nil, false, fmt.Errorf("%w: %s", apperrors.ErrConnectionFailed, err.Error())
	}

	existing, err := s.repo.Get(ctx, name)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, false, err
	}

	now := time.Now().UTC()
	conn := &models.Connection{
		Name:            name,
		URL:             normalized,
		Type:            detected,
		Description:     description,
		Status:          models.StatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
		LastConnectedAt: &now,
	}
	if err := s.repo.Upsert(ctx, conn); err != nil {
		return nil, false, err
	}

	created := existing == nil
	if existing != nil {
		// The store keeps the original creation time on conflict.
		conn.CreatedAt = existing.CreatedAt

		if existing.URL != normalized {
			// Evict the pooled executor so the next query dials the new URL.
			s.registry.Close(existing.Type, name)
		}
	}

	s.logger.Info("Registered connection",
		zap.String("connection", name),
		zap.String("type", detected),
		zap.Bool("created", created))
	return conn, created, nil
}

func (s *connectionService) Get(ctx context.Context, name string) (*models.Connection, error) {
	return s.repo.Get(ctx, name)
}

func (s *connectionService) List(ctx context.Context) ([]*models.Connection, error) {
	return s.repo.List(ctx)
}

func (s *connectionService) Delete(ctx context.Context, name string) error {
	conn, err := s.repo.Get(ctx, name)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, name); err != nil {
		return err
	}
	if err := s.metaRepo.Delete(ctx, name); err != nil {
		s.logger.Warn("Failed to delete metadata snapshot",
			zap.String("connection", name),
			zap.Error(err))
	}
	s.registry.Close(conn.Type, name)

	s.logger.Info("Deleted connection", zap.String("connection", name))
	return nil
}

func (s *connectionService) TouchConnected(ctx context.Context, name string) {
	now := time.Now().UTC()
	if err := s.repo.UpdateStatus(ctx, name, models.StatusActive, &now); err != nil {
		s.logger.Warn("Failed to update connection status",
			zap.String("connection", name),
			zap.Error(err))
	}
}

func (s *connectionService) MarkError(ctx context.Context, name string) {
	if err := s.repo.UpdateStatus(ctx, name, models.StatusError, nil); err != nil {
		s.logger.Warn("Failed to update connection status",
			zap.String("connection", name),
			zap.Error(err))
	}
}
