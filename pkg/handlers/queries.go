package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dbscope-io/dbscope-engine/pkg/adapters/datasource"
	"github.com/dbscope-io/dbscope-engine/pkg/models"
	"github.com/dbscope-io/dbscope-engine/pkg/services"
)

// RunQueryRequest is the body of POST /api/v1/dbs/{name}/query.
type RunQueryRequest struct {
	SQL string `json:"sql"`
}

// NaturalQueryRequest is the body of POST /api/v1/dbs/{name}/query/natural.
type NaturalQueryRequest struct {
	Prompt string `json:"prompt"`
}

// QueryResponse carries an executed result set. SQL is the statement as
// executed, after any limit rewrite. The export fields are null when link
// minting failed; the result itself is still returned.
type QueryResponse struct {
	Columns         []datasource.ColumnInfo `json:"columns"`
	Rows            []map[string]any        `json:"rows"`
	RowCount        int                     `json:"rowCount"`
	ExecutionTimeMs int64                   `json:"executionTimeMs"`
	SQL             string                  `json:"sql"`
	ExportCSVURL    *string                 `json:"exportCsvUrl"`
	ExportJSONURL   *string                 `json:"exportJsonUrl"`
	ExportExpiresAt *time.Time              `json:"exportExpiresAt"`
}

// HistoryResponse lists a connection's recent queries, newest first.
type HistoryResponse struct {
	DatabaseName string                      `json:"databaseName"`
	Entries      []*models.QueryHistoryEntry `json:"entries"`
}

// NaturalQueryResponse is the generated statement for a natural-language
// prompt. The SQL is returned for review, not executed.
type NaturalQueryResponse struct {
	DatabaseName string `json:"databaseName"`
	SQL          string `json:"sql"`
	Explanation  string `json:"explanation"`
	Model        string `json:"model"`
}

// QueriesHandler serves ad-hoc query execution, history, and natural-language
// SQL generation.
type QueriesHandler struct {
	queries services.QueryService
	exports services.ExportService
	nl2sql  services.NL2SQLService
	logger  *zap.Logger
}

// NewQueriesHandler creates a new queries handler.
func NewQueriesHandler(queries services.QueryService, exports services.ExportService, nl2sql services.NL2SQLService, logger *zap.Logger) *QueriesHandler {
	return &QueriesHandler{
		queries: queries,
		exports: exports,
		nl2sql:  nl2sql,
		logger:  logger,
	}
}

// RegisterRoutes registers the query endpoints on the mux.
func (h *QueriesHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/dbs/{name}/query", h.RunQuery)
	mux.HandleFunc("GET /api/v1/dbs/{name}/history", h.History)
	mux.HandleFunc("POST /api/v1/dbs/{name}/query/natural", h.NaturalQuery)
}

// RunQuery handles POST /api/v1/dbs/{name}/query - validate and execute a
// SELECT statement.
func (h *QueriesHandler) RunQuery(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req RunQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if strings.TrimSpace(req.SQL) == "" {
		writeError(w, h.logger, http.StatusBadRequest, "missing_sql", "SQL query is required")
		return
	}

	result, executedSQL, elapsedMs, err := h.queries.Run(r.Context(), name, req.SQL, models.QuerySourceManual)
	if err != nil {
		writeServiceError(w, h.logger, name, err)
		return
	}

	resp := QueryResponse{
		Columns:         result.Columns,
		Rows:            result.Rows,
		RowCount:        result.RowCount,
		ExecutionTimeMs: elapsedMs,
		SQL:             executedSQL,
	}
	if resp.Columns == nil {
		resp.Columns = []datasource.ColumnInfo{}
	}
	if resp.Rows == nil {
		resp.Rows = []map[string]any{}
	}

	// Links are minted for the statement as submitted; a minting failure
	// degrades to null export fields rather than failing the query.
	links, err := h.exports.BuildLinks(name, req.SQL)
	if err != nil {
		h.logger.Warn("Failed to build export links",
			zap.String("connection", name),
			zap.Error(err))
	} else {
		resp.ExportCSVURL = &links.CSVURL
		resp.ExportJSONURL = &links.JSONURL
		resp.ExportExpiresAt = &links.ExpiresAt
	}

	writeJSON(w, h.logger, http.StatusOK, ApiResponse{Success: true, Data: resp})
}

// History handles GET /api/v1/dbs/{name}/history - recent queries, newest
// first. The limit parameter is clamped to the retention bound.
func (h *QueriesHandler) History(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, h.logger, http.StatusBadRequest, "invalid_limit", "Limit must be an integer")
			return
		}
		limit = parsed
	}

	entries, err := h.queries.History(r.Context(), name, limit)
	if err != nil {
		writeServiceError(w, h.logger, name, err)
		return
	}
	if entries == nil {
		entries = []*models.QueryHistoryEntry{}
	}

	writeJSON(w, h.logger, http.StatusOK, ApiResponse{
		Success: true,
		Data:    HistoryResponse{DatabaseName: name, Entries: entries},
	})
}

// NaturalQuery handles POST /api/v1/dbs/{name}/query/natural - generate SQL
// from a natural-language prompt against the cached schema.
func (h *QueriesHandler) NaturalQuery(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req NaturalQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, h.logger, http.StatusBadRequest, "missing_prompt", "Prompt is required")
		return
	}

	generated, err := h.nl2sql.Generate(r.Context(), name, req.Prompt)
	if err != nil {
		writeServiceError(w, h.logger, name, err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, ApiResponse{
		Success: true,
		Data: NaturalQueryResponse{
			DatabaseName: name,
			SQL:          generated.SQL,
			Explanation:  generated.Explanation,
			Model:        generated.Model,
		},
	})
}
