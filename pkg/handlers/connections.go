package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/dbscope-io/dbscope-engine/pkg/logging"
	"github.com/dbscope-io/dbscope-engine/pkg/models"
	"github.com/dbscope-io/dbscope-engine/pkg/services"
)

// UpsertConnectionRequest is the body of PUT /api/v1/dbs/{name}. Type is
// optional and cross-checked against the URL scheme when present.
type UpsertConnectionRequest struct {
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type,omitempty"`
}

// MetadataResponse is the schema payload returned by the metadata endpoints.
type MetadataResponse struct {
	DatabaseName string                 `json:"databaseName"`
	Tables       []models.TableMetadata `json:"tables"`
	Views        []models.TableMetadata `json:"views"`
	FetchedAt    time.Time              `json:"fetchedAt"`
	IsStale      bool                   `json:"isStale"`
}

// ConnectionsHandler serves connection registration and schema browsing.
type ConnectionsHandler struct {
	connections services.ConnectionService
	metadata    services.MetadataService
	metadataTTL time.Duration
	logger      *zap.Logger
}

// NewConnectionsHandler creates a new connections handler.
func NewConnectionsHandler(connections services.ConnectionService, metadata services.MetadataService, metadataTTL time.Duration, logger *zap.Logger) *ConnectionsHandler {
	return &ConnectionsHandler{
		connections: connections,
		metadata:    metadata,
		metadataTTL: metadataTTL,
		logger:      logger,
	}
}

// RegisterRoutes registers the connection endpoints on the mux.
func (h *ConnectionsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("PUT /api/v1/dbs/{name}", h.Upsert)
	mux.HandleFunc("GET /api/v1/dbs", h.List)
	mux.HandleFunc("GET /api/v1/dbs/{name}", h.GetMetadata)
	mux.HandleFunc("POST /api/v1/dbs/{name}/refresh", h.RefreshMetadata)
	mux.HandleFunc("DELETE /api/v1/dbs/{name}", h.Delete)
}

// Upsert handles PUT /api/v1/dbs/{name} - register or update a connection.
func (h *ConnectionsHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req UpsertConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	conn, created, err := h.connections.Upsert(r.Context(), name, req.URL, req.Description, req.Type)
	if err != nil {
		writeServiceError(w, h.logger, name, err)
		return
	}

	status := http.StatusOK
	message := fmt.Sprintf("Database connection '%s' updated", name)
	if created {
		status = http.StatusCreated
		message = fmt.Sprintf("Database connection '%s' created", name)
	}

	writeJSON(w, h.logger, status, ApiResponse{
		Success: true,
		Data:    redactConnection(conn),
		Message: message,
	})
}

// List handles GET /api/v1/dbs - list all registered connections.
func (h *ConnectionsHandler) List(w http.ResponseWriter, r *http.Request) {
	conns, err := h.connections.List(r.Context())
	if err != nil {
		h.logger.Error("Failed to list connections", zap.Error(err))
		writeError(w, h.logger, http.StatusInternalServerError, "internal_error", "Failed to list connections")
		return
	}

	data := make([]*models.Connection, 0, len(conns))
	for _, conn := range conns {
		data = append(data, redactConnection(conn))
	}

	writeJSON(w, h.logger, http.StatusOK, ApiResponse{Success: true, Data: data})
}

// GetMetadata handles GET /api/v1/dbs/{name} - cached schema metadata,
// optionally forced with ?refresh=true.
func (h *ConnectionsHandler) GetMetadata(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))

	snap, _, err := h.metadata.Get(r.Context(), name, refresh)
	if err != nil {
		writeServiceError(w, h.logger, name, err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, ApiResponse{
		Success: true,
		Data:    h.toMetadataResponse(snap),
	})
}

// RefreshMetadata handles POST /api/v1/dbs/{name}/refresh - drop the cached
// snapshot and re-extract from the live database.
func (h *ConnectionsHandler) RefreshMetadata(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	snap, err := h.metadata.Refresh(r.Context(), name)
	if err != nil {
		writeServiceError(w, h.logger, name, err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, ApiResponse{
		Success: true,
		Data:    h.toMetadataResponse(snap),
		Message: fmt.Sprintf("Metadata refreshed for database '%s'", name),
	})
}

// Delete handles DELETE /api/v1/dbs/{name} - remove a connection and its
// cached metadata.
func (h *ConnectionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	if err := h.connections.Delete(r.Context(), name); err != nil {
		writeServiceError(w, h.logger, name, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ConnectionsHandler) toMetadataResponse(snap *models.MetadataSnapshot) MetadataResponse {
	tables := snap.Payload.Tables
	if tables == nil {
		tables = []models.TableMetadata{}
	}
	views := snap.Payload.Views
	if views == nil {
		views = []models.TableMetadata{}
	}

	return MetadataResponse{
		DatabaseName: snap.ConnectionName,
		Tables:       tables,
		Views:        views,
		FetchedAt:    snap.FetchedAt,
		IsStale:      snap.IsStale(h.metadataTTL),
	}
}

// redactConnection returns a copy safe for API responses. Stored URLs keep
// their credentials for executor construction and must never leave the
// service as-is.
func redactConnection(conn *models.Connection) *models.Connection {
	redacted := *conn
	redacted.URL = logging.RedactURL(conn.URL)
	return &redacted
}
