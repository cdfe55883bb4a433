//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dbscope-io/dbscope-engine/pkg/adapters/datasource"
	"github.com/dbscope-io/dbscope-engine/pkg/models"
	"github.com/dbscope-io/dbscope-engine/pkg/testhelpers"
)

func fixtureExecutor(t *testing.T) datasource.Executor {
	t.Helper()

	pg := testhelpers.GetPostgresDB(t)
	exec, err := New(datasource.Descriptor{
		Name:           "fixture-pg",
		URL:            pg.URL,
		MinConns:       1,
		MaxConns:       2,
		CommandTimeout: 30 * time.Second,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(exec.Close)
	return exec
}

func TestExecutor_TestConnection(t *testing.T) {
	exec := fixtureExecutor(t)
	require.NoError(t, exec.TestConnection(context.Background()))
}

func TestExecutor_ExecuteQuery(t *testing.T) {
	exec := fixtureExecutor(t)

	result, err := exec.ExecuteQuery(context.Background(),
		"SELECT id, email, name, created_at FROM users ORDER BY id")
	require.NoError(t, err)

	assert.Equal(t, 3, result.RowCount)
	assert.Len(t, result.Rows, result.RowCount)

	require.Len(t, result.Columns, 4)
	assert.Equal(t, "id", result.Columns[0].Name)
	// Types are inferred from the first row's values, not driver metadata.
	assert.Equal(t, "integer", result.Columns[0].Type)
	assert.Equal(t, "character varying", result.Columns[1].Type)
	assert.Equal(t, "timestamp", result.Columns[3].Type)

	assert.Equal(t, "ada@example.com", result.Rows[0]["email"])
	assert.Nil(t, result.Rows[2]["name"])

	// Temporal values leave the executor as RFC3339 text.
	createdAt, ok := result.Rows[0]["created_at"].(string)
	require.True(t, ok, "created_at should be a string, got %T", result.Rows[0]["created_at"])
	_, err = time.Parse(time.RFC3339Nano, createdAt)
	assert.NoError(t, err)
}

func TestExecutor_ExecuteQuery_EmptyResult(t *testing.T) {
	exec := fixtureExecutor(t)

	result, err := exec.ExecuteQuery(context.Background(),
		"SELECT id, email FROM users WHERE id < 0")
	require.NoError(t, err)

	assert.Equal(t, 0, result.RowCount)
	assert.Empty(t, result.Rows)
	// With no rows there is nothing to infer from.
	require.Len(t, result.Columns, 2)
	assert.Equal(t, "unknown", result.Columns[0].Type)
}

func TestExecutor_ExtractMetadata(t *testing.T) {
	exec := fixtureExecutor(t)

	meta, err := exec.ExtractMetadata(context.Background())
	require.NoError(t, err)

	var users *models.TableMetadata
	for i := range meta.Tables {
		if meta.Tables[i].Name == "users" {
			users = &meta.Tables[i]
		}
	}
	require.NotNil(t, users, "users table missing from metadata")
	assert.Equal(t, "public", users.Schema)
	assert.Equal(t, models.TableKindTable, users.Kind)
	require.NotNil(t, users.RowCount)
	assert.EqualValues(t, 3, *users.RowCount)

	byName := map[string]models.ColumnMetadata{}
	for _, col := range users.Columns {
		byName[col.Name] = col
	}
	assert.True(t, byName["id"].PrimaryKey)
	assert.False(t, byName["id"].Nullable)
	assert.True(t, byName["email"].Unique)
	assert.True(t, byName["name"].Nullable)

	require.Len(t, meta.Views, 1)
	view := meta.Views[0]
	assert.Equal(t, "order_totals", view.Name)
	assert.Equal(t, models.TableKindView, view.Kind)
	assert.Nil(t, view.RowCount, "views carry no row count")
	assert.NotEmpty(t, view.Columns)
}
