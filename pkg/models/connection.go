package models

import "time"

// Database type identifiers stored with each connection.
const (
	DBTypePostgres = "pg"
	DBTypeMySQL    = "mysql"
)

// Connection status values.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusError    = "error"
)

// Connection is a registered database connection. Name is the unique key.
// URL is held with credentials intact for executor construction; API
// responses carry a credential-redacted copy.
type Connection struct {
	Name            string     `json:"name"`
	URL             string     `json:"url"`
	Type            string     `json:"type"`
	Description     string     `json:"description,omitempty"`
	Status          string     `json:"status"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	LastConnectedAt *time.Time `json:"lastConnectedAt,omitempty"`
}
