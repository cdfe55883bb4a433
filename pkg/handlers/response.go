package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/dbscope-io/dbscope-engine/pkg/apperrors"
	"github.com/dbscope-io/dbscope-engine/pkg/llm"
	"github.com/dbscope-io/dbscope-engine/pkg/sqlcheck"
)

// ApiResponse wraps data in the format expected by API clients.
type ApiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, statusCode int, data any) {
	if err := WriteJSON(w, statusCode, data); err != nil {
		logger.Error("Failed to write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, logger *zap.Logger, statusCode int, errorCode, message string) {
	if err := ErrorResponse(w, statusCode, errorCode, message); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}

// writeServiceError maps service errors onto HTTP statuses. Validator and
// driver text stays in the message so clients can surface it verbatim.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, name string, err error) {
	var validationErr *sqlcheck.ValidationError
	var llmErr *llm.Error

	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		writeError(w, logger, http.StatusNotFound, "not_found",
			fmt.Sprintf("Database connection '%s' not found", name))
	case errors.Is(err, apperrors.ErrMetadataNotCached):
		writeError(w, logger, http.StatusNotFound, "metadata_not_cached",
			fmt.Sprintf("Metadata not found for database '%s'. Please refresh metadata first.", name))
	case errors.As(err, &validationErr):
		writeError(w, logger, http.StatusBadRequest, "invalid_sql", validationErr.Detail)
	case errors.Is(err, apperrors.ErrValidation),
		errors.Is(err, apperrors.ErrInvalidConnectionURL),
		errors.Is(err, apperrors.ErrUnsupportedDatabaseType),
		errors.Is(err, apperrors.ErrConnectionFailed):
		writeError(w, logger, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, apperrors.ErrInvalidToken):
		writeError(w, logger, http.StatusUnauthorized, "invalid_token",
			"Export token has expired or is invalid")
	case errors.As(err, &llmErr):
		writeError(w, logger, http.StatusBadGateway, "llm_error", err.Error())
	default:
		logger.Error("Request failed",
			zap.String("connection", name),
			zap.Error(err))
		writeError(w, logger, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
