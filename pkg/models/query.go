package models

import (
	"time"

	"github.com/google/uuid"
)

// Query sources recorded with each history entry.
const (
	QuerySourceManual  = "manual"
	QuerySourceNatural = "natural-language"
)

// QueryHistoryEntry is one audit record of a query attempt. ExecutionTimeMs
// is absent when validation rejected the statement before execution;
// RowCount is absent on any failure; ErrorMessage is absent on success.
type QueryHistoryEntry struct {
	ID              uuid.UUID `json:"id"`
	ConnectionName  string    `json:"databaseName"`
	SQLText         string    `json:"sqlText"`
	ExecutedAt      time.Time `json:"executedAt"`
	ExecutionTimeMs *int64    `json:"executionTimeMs,omitempty"`
	RowCount        *int      `json:"rowCount,omitempty"`
	Success         bool      `json:"success"`
	ErrorMessage    *string   `json:"errorMessage,omitempty"`
	Source          string    `json:"querySource"`
}
