package mysql

import (
	"database/sql"
	"time"
)

// typeName reports the driver's type name for a result column. The driver
// leaves the name empty for some computed expressions.
func typeName(ct *sql.ColumnType) string {
	if name := ct.DatabaseTypeName(); name != "" {
		return name
	}
	return "UNKNOWN"
}

// normalizeValue converts driver values into JSON-friendly forms. The driver
// hands back []byte for text and decimal columns, and time.Time when
// parseTime is on.
func normalizeValue(val any) any {
	switch v := val.(type) {
	case time.Time:
		return v.Format(time.RFC3339Nano)
	case []byte:
		return string(v)
	default:
		return val
	}
}
