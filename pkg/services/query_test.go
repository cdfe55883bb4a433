package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dbscope-io/dbscope-engine/pkg/adapters/datasource"
	"github.com/dbscope-io/dbscope-engine/pkg/apperrors"
	"github.com/dbscope-io/dbscope-engine/pkg/models"
	"github.com/dbscope-io/dbscope-engine/pkg/sqlcheck"
)

func TestQueryServiceRunSuccess(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seed(t, "sales", models.DBTypePostgres)
	svc := h.queries(1000)

	result, rewritten, elapsed, err := svc.Run(ctx, "sales", "SELECT * FROM users", models.QuerySourceManual)
	require.NoError(t, err)
	assert.Equal(t, 2, result.RowCount)
	assert.Equal(t, "SELECT * FROM users LIMIT 1000", rewritten)
	assert.GreaterOrEqual(t, elapsed, int64(0))

	// The executor receives the bounded statement, not the input.
	assert.Equal(t, rewritten, h.exec.lastSQL)

	entries, err := h.histRepo.ListByConnection(ctx, "sales", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.True(t, entry.Success)
	assert.Equal(t, rewritten, entry.SQLText)
	assert.Equal(t, models.QuerySourceManual, entry.Source)
	require.NotNil(t, entry.RowCount)
	assert.Equal(t, 2, *entry.RowCount)
	assert.NotNil(t, entry.ExecutionTimeMs)
	assert.Nil(t, entry.ErrorMessage)

	conn, err := h.connRepo.Get(ctx, "sales")
	require.NoError(t, err)
	assert.NotNil(t, conn.LastConnectedAt)
}

func TestQueryServiceRunKeepsExistingLimit(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "sales", models.DBTypePostgres)
	svc := h.queries(1000)

	_, rewritten, _, err := svc.Run(context.Background(), "sales", "SELECT * FROM users LIMIT 5", models.QuerySourceManual)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM users LIMIT 5", rewritten)
}

func TestQueryServiceRunMySQLRewrite(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "shop", models.DBTypeMySQL)
	h.exec.dialect = datasource.DialectMySQL
	svc := h.queries(1000)

	_, rewritten, _, err := svc.Run(context.Background(), "shop", "SELECT * FROM orders", models.QuerySourceManual)
	require.NoError(t, err)
	assert.Equal(t, "select * from orders limit 1000", rewritten)
}

func TestQueryServiceRunValidationFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seed(t, "sales", models.DBTypePostgres)
	svc := h.queries(1000)

	_, _, _, err := svc.Run(ctx, "sales", "DELETE FROM users", models.QuerySourceManual)
	require.Error(t, err)
	var vErr *sqlcheck.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "Only SELECT statements are allowed", vErr.Detail)
	assert.Equal(t, 0, h.exec.queryCalls)

	// Rejected statements are audited with the original text and no timing.
	entries, err := h.histRepo.ListByConnection(ctx, "sales", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.False(t, entry.Success)
	assert.Equal(t, "DELETE FROM users", entry.SQLText)
	assert.Nil(t, entry.ExecutionTimeMs)
	assert.Nil(t, entry.RowCount)
	require.NotNil(t, entry.ErrorMessage)
	assert.Equal(t, "Only SELECT statements are allowed", *entry.ErrorMessage)

	// A rejected statement is not a connectivity problem.
	conn, err := h.connRepo.Get(ctx, "sales")
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, conn.Status)
}

func TestQueryServiceRunExecutionFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seed(t, "sales", models.DBTypePostgres)
	h.exec.queryFn = func(ctx context.Context, sql string) (*datasource.QueryResult, error) {
		return nil, errors.New(`relation "ghosts" does not exist`)
	}
	svc := h.queries(1000)

	_, _, _, err := svc.Run(ctx, "sales", "SELECT * FROM ghosts", models.QuerySourceManual)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `relation "ghosts" does not exist`)

	entries, err := h.histRepo.ListByConnection(ctx, "sales", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.False(t, entry.Success)
	assert.Equal(t, "SELECT * FROM ghosts LIMIT 1000", entry.SQLText)
	assert.NotNil(t, entry.ExecutionTimeMs)
	assert.Nil(t, entry.RowCount)
	require.NotNil(t, entry.ErrorMessage)
	assert.Contains(t, *entry.ErrorMessage, "ghosts")

	conn, err := h.connRepo.Get(ctx, "sales")
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, conn.Status)
}

func TestQueryServiceRunExecutorCreationFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seed(t, "sales", models.DBTypePostgres)
	h.registry.Register(datasource.DialectPostgres, func(desc datasource.Descriptor, logger *zap.Logger) (datasource.Executor, error) {
		return nil, errors.New("cannot parse url")
	})
	svc := h.queries(1000)

	_, _, _, err := svc.Run(ctx, "sales", "SELECT 1", models.QuerySourceManual)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot parse url")

	entries, err := h.histRepo.ListByConnection(ctx, "sales", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Success)

	conn, err := h.connRepo.Get(ctx, "sales")
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, conn.Status)
}

func TestQueryServiceRunUnknownConnection(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	svc := h.queries(1000)

	_, _, _, err := svc.Run(ctx, "ghost", "SELECT 1", models.QuerySourceManual)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	// Nothing is audited for a connection that does not exist.
	entries, err := h.histRepo.ListByConnection(ctx, "ghost", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestQueryServiceRunRecordsSource(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seed(t, "sales", models.DBTypePostgres)
	svc := h.queries(1000)

	_, _, _, err := svc.Run(ctx, "sales", "SELECT 1", models.QuerySourceNatural)
	require.NoError(t, err)

	entries, err := h.histRepo.ListByConnection(ctx, "sales", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.QuerySourceNatural, entries[0].Source)
}

func TestQueryServiceHistory(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seed(t, "sales", models.DBTypePostgres)
	svc := h.queries(1000)

	_, _, _, err := svc.Run(ctx, "sales", "SELECT * FROM users", models.QuerySourceManual)
	require.NoError(t, err)
	_, _, _, err = svc.Run(ctx, "sales", "SELECT * FROM orders", models.QuerySourceManual)
	require.NoError(t, err)

	entries, err := svc.History(ctx, "sales", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "SELECT * FROM orders LIMIT 1000", entries[0].SQLText)
	assert.Equal(t, "SELECT * FROM users LIMIT 1000", entries[1].SQLText)
}

func TestQueryServiceHistoryUnknownConnection(t *testing.T) {
	h := newHarness(t)

	_, err := h.queries(1000).History(context.Background(), "ghost", 10)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
