package postgres

import (
	"time"

	"github.com/google/uuid"
)

// inferTypeName maps a Go value decoded by pgx to the Postgres-flavored type
// text reported for result columns. Null and unmapped driver types report
// "unknown". This is deliberately value-based: the MySQL family reports
// driver types instead, and the two are never reconciled.
func inferTypeName(v any) string {
	switch v.(type) {
	case nil:
		return "unknown"
	case bool:
		return "boolean"
	case int, int8, int16, int32, int64, uint, uint16, uint32, uint64:
		return "integer"
	case float32, float64:
		return "double precision"
	case string:
		return "character varying"
	case time.Time:
		return "timestamp"
	default:
		return "unknown"
	}
}

// normalizeValue rewrites driver values so every row serializes cleanly:
// temporals become RFC3339 strings, uuids and raw bytes become text.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case [16]byte:
		return uuid.UUID(val).String()
	case []byte:
		return string(val)
	default:
		return v
	}
}
