package models

import "time"

// Table kinds within a metadata snapshot.
const (
	TableKindTable = "table"
	TableKindView  = "view"
)

// ColumnMetadata describes one column of a table or view. DataType is the
// dialect's own type text, length-suffixed when the type is bounded
// (e.g. varchar(255)).
type ColumnMetadata struct {
	Name         string  `json:"name"`
	DataType     string  `json:"dataType"`
	Nullable     bool    `json:"nullable"`
	PrimaryKey   bool    `json:"primaryKey"`
	Unique       bool    `json:"unique"`
	DefaultValue *string `json:"defaultValue,omitempty"`
}

// TableMetadata describes one table or view. RowCount is populated for
// tables only and omitted entirely when counting failed.
type TableMetadata struct {
	Name     string           `json:"name"`
	Schema   string           `json:"schemaName,omitempty"`
	Kind     string           `json:"kind"`
	Columns  []ColumnMetadata `json:"columns"`
	RowCount *int64           `json:"rowCount,omitempty"`
}

// DatabaseMetadata is the full schema picture of one registered database.
type DatabaseMetadata struct {
	Tables []TableMetadata `json:"tables"`
	Views  []TableMetadata `json:"views"`
}

// MetadataSnapshot is a cached DatabaseMetadata with its fetch time. At most
// one snapshot exists per connection.
type MetadataSnapshot struct {
	ConnectionName string            `json:"databaseName"`
	Payload        *DatabaseMetadata `json:"metadata"`
	FetchedAt      time.Time         `json:"fetchedAt"`
}

// IsStale reports whether the snapshot is older than ttl at call time.
func (s *MetadataSnapshot) IsStale(ttl time.Duration) bool {
	return time.Since(s.FetchedAt) > ttl
}
