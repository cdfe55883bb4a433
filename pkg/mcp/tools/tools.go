package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/dbscope-io/dbscope-engine/pkg/adapters/datasource"
	"github.com/dbscope-io/dbscope-engine/pkg/models"
	"github.com/dbscope-io/dbscope-engine/pkg/services"
)

// Deps contains the services the tool surface calls into. Every tool is
// read-only: statements go through the same validation path as the REST API.
type Deps struct {
	Connections services.ConnectionService
	Metadata    services.MetadataService
	Queries     services.QueryService
	Logger      *zap.Logger
}

// RegisterAll registers the engine's tools on the MCP server.
func RegisterAll(s *server.MCPServer, deps *Deps) {
	registerListDatabasesTool(s, deps)
	registerGetSchemaTool(s, deps)
	registerRunQueryTool(s, deps)
}

type databaseInfo struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Status      string `json:"status"`
	Description string `json:"description,omitempty"`
}

type listDatabasesResult struct {
	Databases []databaseInfo `json:"databases"`
}

// registerListDatabasesTool - Lists registered database connections.
func registerListDatabasesTool(s *server.MCPServer, deps *Deps) {
	tool := mcp.NewTool(
		"list_databases",
		mcp.WithDescription(
			"List all registered database connections with their type and status. "+
				"Use get_schema to inspect a database's tables before querying it.",
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		conns, err := deps.Connections.List(ctx)
		if err != nil {
			deps.Logger.Warn("MCP tool failed",
				zap.String("tool", "list_databases"),
				zap.Error(err))
			return mcp.NewToolResultError(fmt.Sprintf("failed to list databases: %v", err)), nil
		}

		result := listDatabasesResult{Databases: make([]databaseInfo, len(conns))}
		for i, conn := range conns {
			result.Databases[i] = databaseInfo{
				Name:        conn.Name,
				Type:        conn.Type,
				Status:      conn.Status,
				Description: conn.Description,
			}
		}

		jsonResult, _ := json.Marshal(result)
		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}

type schemaResult struct {
	DatabaseName string                 `json:"databaseName"`
	Tables       []models.TableMetadata `json:"tables"`
	Views        []models.TableMetadata `json:"views"`
	FetchedAt    time.Time              `json:"fetchedAt"`
}

// registerGetSchemaTool - Returns the cached schema snapshot for one database.
func registerGetSchemaTool(s *server.MCPServer, deps *Deps) {
	tool := mcp.NewTool(
		"get_schema",
		mcp.WithDescription(
			"Get the schema of a registered database: tables and views with columns, "+
				"types, keys, and approximate row counts. Served from the metadata "+
				"cache; a missing or expired snapshot is re-extracted from the live "+
				"database first.",
		),
		mcp.WithString(
			"database",
			mcp.Required(),
			mcp.Description("Name of the registered database connection (from list_databases)"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		database, err := req.RequireString("database")
		if err != nil {
			return nil, err
		}

		snap, _, err := deps.Metadata.Get(ctx, database, false)
		if err != nil {
			deps.Logger.Warn("MCP tool failed",
				zap.String("tool", "get_schema"),
				zap.String("database", database),
				zap.Error(err))
			return mcp.NewToolResultError(fmt.Sprintf("failed to get schema for %q: %v", database, err)), nil
		}

		result := schemaResult{
			DatabaseName: snap.ConnectionName,
			Tables:       snap.Payload.Tables,
			Views:        snap.Payload.Views,
			FetchedAt:    snap.FetchedAt,
		}

		jsonResult, _ := json.Marshal(result)
		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}

type runQueryResult struct {
	Columns         []datasource.ColumnInfo `json:"columns"`
	Rows            []map[string]any        `json:"rows"`
	RowCount        int                     `json:"rowCount"`
	ExecutionTimeMs int64                   `json:"executionTimeMs"`
}

// registerRunQueryTool - Validates and executes a SELECT against one database.
func registerRunQueryTool(s *server.MCPServer, deps *Deps) {
	tool := mcp.NewTool(
		"run_query",
		mcp.WithDescription(
			"Execute a read-only SQL query against a registered database. "+
				"Only SELECT statements are accepted; a row limit is enforced on "+
				"unbounded queries. The query is recorded in the connection's history.",
		),
		mcp.WithString(
			"database",
			mcp.Required(),
			mcp.Description("Name of the registered database connection (from list_databases)"),
		),
		mcp.WithString(
			"sql",
			mcp.Required(),
			mcp.Description("The SELECT statement to execute"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		database, err := req.RequireString("database")
		if err != nil {
			return nil, err
		}
		sqlText, err := req.RequireString("sql")
		if err != nil {
			return nil, err
		}

		result, _, elapsedMs, err := deps.Queries.Run(ctx, database, sqlText, models.QuerySourceManual)
		if err != nil {
			deps.Logger.Warn("MCP tool failed",
				zap.String("tool", "run_query"),
				zap.String("database", database),
				zap.Error(err))
			return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
		}

		response := runQueryResult{
			Columns:         result.Columns,
			Rows:            result.Rows,
			RowCount:        result.RowCount,
			ExecutionTimeMs: elapsedMs,
		}
		if response.Columns == nil {
			response.Columns = []datasource.ColumnInfo{}
		}
		if response.Rows == nil {
			response.Rows = []map[string]any{}
		}

		jsonResult, _ := json.Marshal(response)
		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}
