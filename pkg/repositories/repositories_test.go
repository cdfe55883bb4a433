package repositories

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dbscope-io/dbscope-engine/pkg/database"
)

// newTestDB opens an in-memory store with the real migrations applied.
func newTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.NewConnection(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.RunMigrations(db.DB, "../../migrations", zap.NewNop()))
	return db
}
