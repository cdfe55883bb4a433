package handlers

import (
	"context"
	"time"

	"github.com/dbscope-io/dbscope-engine/pkg/adapters/datasource"
	"github.com/dbscope-io/dbscope-engine/pkg/models"
	"github.com/dbscope-io/dbscope-engine/pkg/services"
)

// mockConnectionService is a configurable mock for all handler tests.
type mockConnectionService struct {
	conn    *models.Connection
	conns   []*models.Connection
	created bool
	err     error

	lastName        string
	lastURL         string
	lastDescription string
	lastType        string
	deleted         []string
}

func (m *mockConnectionService) Upsert(ctx context.Context, name, url, description, dbType string) (*models.Connection, bool, error) {
	m.lastName, m.lastURL, m.lastDescription, m.lastType = name, url, description, dbType
	if m.err != nil {
		return nil, false, m.err
	}
	if m.conn != nil {
		return m.conn, m.created, nil
	}
	now := time.Now().UTC()
	return &models.Connection{
		Name:      name,
		URL:       url,
		Type:      models.DBTypePostgres,
		Status:    models.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}, m.created, nil
}

func (m *mockConnectionService) Get(ctx context.Context, name string) (*models.Connection, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.conn != nil {
		return m.conn, nil
	}
	return &models.Connection{Name: name, Type: models.DBTypePostgres, Status: models.StatusActive}, nil
}

func (m *mockConnectionService) List(ctx context.Context) ([]*models.Connection, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.conns != nil {
		return m.conns, nil
	}
	return []*models.Connection{}, nil
}

func (m *mockConnectionService) Delete(ctx context.Context, name string) error {
	if m.err != nil {
		return m.err
	}
	m.deleted = append(m.deleted, name)
	return nil
}

func (m *mockConnectionService) TouchConnected(ctx context.Context, name string) {}

func (m *mockConnectionService) MarkError(ctx context.Context, name string) {}

// mockMetadataService is a configurable mock for metadata handler tests.
type mockMetadataService struct {
	snap      *models.MetadataSnapshot
	fromCache bool
	err       error

	lastForce    bool
	refreshCalls int
}

func (m *mockMetadataService) Get(ctx context.Context, name string, forceRefresh bool) (*models.MetadataSnapshot, bool, error) {
	m.lastForce = forceRefresh
	if m.err != nil {
		return nil, false, m.err
	}
	if m.snap != nil {
		return m.snap, m.fromCache, nil
	}
	return defaultSnapshot(name), m.fromCache, nil
}

func (m *mockMetadataService) Refresh(ctx context.Context, name string) (*models.MetadataSnapshot, error) {
	m.refreshCalls++
	if m.err != nil {
		return nil, m.err
	}
	if m.snap != nil {
		return m.snap, nil
	}
	return defaultSnapshot(name), nil
}

func defaultSnapshot(name string) *models.MetadataSnapshot {
	rowCount := int64(42)
	return &models.MetadataSnapshot{
		ConnectionName: name,
		Payload: &models.DatabaseMetadata{
			Tables: []models.TableMetadata{
				{
					Name:   "users",
					Schema: "public",
					Kind:   models.TableKindTable,
					Columns: []models.ColumnMetadata{
						{Name: "id", DataType: "int4", PrimaryKey: true},
					},
					RowCount: &rowCount,
				},
			},
			Views: []models.TableMetadata{},
		},
		FetchedAt: time.Now().UTC(),
	}
}

// mockQueryService is a configurable mock for query handler tests.
type mockQueryService struct {
	result      *datasource.QueryResult
	executedSQL string
	elapsedMs   int64
	err         error

	entries    []*models.QueryHistoryEntry
	historyErr error

	lastSQL    string
	lastSource string
	lastLimit  int
}

func (m *mockQueryService) Run(ctx context.Context, name, sql, source string) (*datasource.QueryResult, string, int64, error) {
	m.lastSQL, m.lastSource = sql, source
	if m.err != nil {
		return nil, "", 0, m.err
	}
	result := m.result
	if result == nil {
		result = &datasource.QueryResult{
			Columns:  []datasource.ColumnInfo{{Name: "id", Type: "int4"}},
			Rows:     []map[string]any{{"id": float64(1)}},
			RowCount: 1,
		}
	}
	executed := m.executedSQL
	if executed == "" {
		executed = sql
	}
	return result, executed, m.elapsedMs, nil
}

func (m *mockQueryService) History(ctx context.Context, name string, limit int) ([]*models.QueryHistoryEntry, error) {
	m.lastLimit = limit
	if m.historyErr != nil {
		return nil, m.historyErr
	}
	return m.entries, nil
}

// mockExportService is a configurable mock for export handler tests.
type mockExportService struct {
	links    *services.ExportLinks
	linksErr error
	file     *services.ExportFile
	err      error

	lastLinksSQL string
	lastToken    string
	lastFormat   string
}

func (m *mockExportService) BuildLinks(name, sql string) (*services.ExportLinks, error) {
	m.lastLinksSQL = sql
	if m.linksErr != nil {
		return nil, m.linksErr
	}
	if m.links != nil {
		return m.links, nil
	}
	return &services.ExportLinks{
		CSVURL:    "http://localhost:8080/api/v1/dbs/" + name + "/export/query?token=t&format=csv",
		JSONURL:   "http://localhost:8080/api/v1/dbs/" + name + "/export/query?token=t&format=json",
		ExpiresAt: time.Now().UTC().Add(5 * time.Minute),
	}, nil
}

func (m *mockExportService) Export(ctx context.Context, name, token, format string) (*services.ExportFile, error) {
	m.lastToken, m.lastFormat = token, format
	if m.err != nil {
		return nil, m.err
	}
	if m.file != nil {
		return m.file, nil
	}
	return &services.ExportFile{
		Filename:    name + "_users_20250101_000000." + format,
		ContentType: "text/csv",
		Data:        []byte("id\n1\n"),
	}, nil
}

// mockNL2SQLService is a configurable mock for natural-language handler tests.
type mockNL2SQLService struct {
	generated *services.GeneratedSQL
	err       error

	lastPrompt string
}

func (m *mockNL2SQLService) Generate(ctx context.Context, name, prompt string) (*services.GeneratedSQL, error) {
	m.lastPrompt = prompt
	if m.err != nil {
		return nil, m.err
	}
	if m.generated != nil {
		return m.generated, nil
	}
	return &services.GeneratedSQL{
		SQL:         "SELECT * FROM users LIMIT 10",
		Explanation: "Generated SQL from: " + prompt,
		Model:       "gpt-4o-mini",
	}, nil
}
