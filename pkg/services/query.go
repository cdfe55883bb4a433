package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dbscope-io/dbscope-engine/pkg/adapters/datasource"
	"github.com/dbscope-io/dbscope-engine/pkg/logging"
	"github.com/dbscope-io/dbscope-engine/pkg/models"
	"github.com/dbscope-io/dbscope-engine/pkg/repositories"
	"github.com/dbscope-io/dbscope-engine/pkg/sqlcheck"
)

// QueryService validates, bounds, executes, and audits ad-hoc SQL. Every
// attempt past the connection lookup leaves exactly one history entry,
// whether the statement was rejected, failed, or succeeded.
type QueryService interface {
	// Run executes one statement against the named connection. On success it
	// returns the buffered result, the SQL as executed (with any injected
	// LIMIT), and the execution time in milliseconds.
	Run(ctx context.Context, name, sql, source string) (*datasource.QueryResult, string, int64, error)

	// History returns the newest audit entries for the connection.
	History(ctx context.Context, name string, limit int) ([]*models.QueryHistoryEntry, error)
}

type queryService struct {
	connections  ConnectionService
	history      repositories.QueryHistoryRepository
	registry     *datasource.Registry
	defaultLimit int
	poolConfig   PoolConfig
	logger       *zap.Logger
}

var _ QueryService = (*queryService)(nil)

// NewQueryService creates a new query service with dependencies.
func NewQueryService(
	connections ConnectionService,
	history repositories.QueryHistoryRepository,
	registry *datasource.Registry,
	defaultLimit int,
	poolConfig PoolConfig,
	logger *zap.Logger,
) QueryService {
	return &queryService{
		connections:  connections,
		history:      history,
		registry:     registry,
		defaultLimit: defaultLimit,
		poolConfig:   poolConfig,
		logger:       logger,
	}
}

func (s *queryService) Run(ctx context.Context, name, sql, source string) (*datasource.QueryResult, string, int64, error) {
	conn, err := s.connections.Get(ctx, name)
	if err != nil {
		return nil, "", 0, err
	}

	rewritten, err := sqlcheck.ValidateAndTransform(sql, s.defaultLimit, conn.Type)
	if err != nil {
		msg := err.Error()
		s.audit(ctx, &models.QueryHistoryEntry{
			ConnectionName: name,
			SQLText:        sql,
			Success:        false,
			ErrorMessage:   &msg,
			Source:         source,
		})
		return nil, "", 0, err
	}

	// Advisory only. Parameter values that trip the signature check are
	// worth a trace, but a validated SELECT is never blocked on it.
	for _, f := range sqlcheck.ScreenLiterals(sql) {
		s.logger.Warn("Statement literal matches an injection signature",
			zap.String("connection", name),
			zap.String("fingerprint", f.Fingerprint),
			zap.String("literal", logging.TruncateSQL(f.Value, 120)))
	}

	start := time.Now()
	exec, err := s.registry.GetOrCreate(conn.Type, s.poolConfig.descriptorFor(conn))
	if err != nil {
		s.auditFailure(ctx, name, rewritten, source, start, err)
		return nil, "", 0, err
	}

	result, err := exec.ExecuteQuery(ctx, rewritten)
	if err != nil {
		s.auditFailure(ctx, name, rewritten, source, start, err)
		return nil, "", 0, err
	}
	elapsed := time.Since(start).Milliseconds()

	rows := result.RowCount
	s.audit(ctx, &models.QueryHistoryEntry{
		ConnectionName:  name,
		SQLText:         rewritten,
		ExecutionTimeMs: &elapsed,
		RowCount:        &rows,
		Success:         true,
		Source:          source,
	})
	s.connections.TouchConnected(ctx, name)

	s.logger.Info("Executed query",
		zap.String("connection", name),
		zap.String("source", source),
		zap.Int("rows", result.RowCount),
		zap.Int64("elapsed_ms", elapsed))

	return result, rewritten, elapsed, nil
}

func (s *queryService) History(ctx context.Context, name string, limit int) ([]*models.QueryHistoryEntry, error) {
	if _, err := s.connections.Get(ctx, name); err != nil {
		return nil, err
	}
	return s.history.ListByConnection(ctx, name, limit)
}

func (s *queryService) auditFailure(ctx context.Context, name, sql, source string, start time.Time, cause error) {
	elapsed := time.Since(start).Milliseconds()
	msg := cause.Error()
	s.audit(ctx, &models.QueryHistoryEntry{
		ConnectionName:  name,
		SQLText:         sql,
		ExecutionTimeMs: &elapsed,
		Success:         false,
		ErrorMessage:    &msg,
		Source:          source,
	})
	s.connections.MarkError(ctx, name)
}

// audit assigns identity and writes the entry. A failed write is logged and
// swallowed so bookkeeping never fails the query itself.
func (s *queryService) audit(ctx context.Context, entry *models.QueryHistoryEntry) {
	entry.ID = uuid.New()
	entry.ExecutedAt = time.Now().UTC()
	if err := s.history.Insert(ctx, entry); err != nil {
		s.logger.Error("Failed to record query history",
			zap.String("connection", entry.ConnectionName),
			zap.Error(err))
	}
}
