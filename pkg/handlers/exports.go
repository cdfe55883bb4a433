package handlers

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/dbscope-io/dbscope-engine/pkg/services"
)

// ExportsHandler serves signed result downloads. Responses are raw file
// bodies, not the JSON envelope.
type ExportsHandler struct {
	exports services.ExportService
	logger  *zap.Logger
}

// NewExportsHandler creates a new exports handler.
func NewExportsHandler(exports services.ExportService, logger *zap.Logger) *ExportsHandler {
	return &ExportsHandler{exports: exports, logger: logger}
}

// RegisterRoutes registers the export endpoint on the mux.
func (h *ExportsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/dbs/{name}/export/query", h.ExportQuery)
}

// ExportQuery handles GET /api/v1/dbs/{name}/export/query - re-execute the
// tokened statement and stream the result as a file download.
func (h *ExportsHandler) ExportQuery(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	token := r.URL.Query().Get("token")
	format := r.URL.Query().Get("format")

	if format != services.FormatCSV && format != services.FormatJSON {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_format", "Format must be csv or json")
		return
	}

	file, err := h.exports.Export(r.Context(), name, token, format)
	if err != nil {
		writeServiceError(w, h.logger, name, err)
		return
	}

	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	if _, err := w.Write(file.Data); err != nil {
		h.logger.Error("Failed to write export response", zap.Error(err))
	}
}
