package models

import (
	"time"

	"github.com/google/uuid"
)

// Connection is the non-sensitive record of a user's configured data source.
// Credentials never live here: the record carries only the vault path under
// which the secret store holds them. Username may be duplicated for display.
type Connection struct {
	UserID         string         `json:"user_id"`
	ConnectionID   uuid.UUID      `json:"connection_id"`
	DataSourceType string         `json:"data_source_type"` // "mongodb", "postgresql", "mysql", ...
	Name           string         `json:"name"`
	Host           string         `json:"host"`
	Username       string         `json:"username,omitempty"`
	EncryptedURI   string         `json:"encrypted_uri,omitempty"`
	VaultPath      string         `json:"vault_path"`
	Extra          map[string]any `json:"extra,omitempty"` // remaining descriptive fields
	CreatedAt      time.Time      `json:"created_at"`
	LastUpdated    time.Time      `json:"last_updated"`

	// Credentials is populated only when a listing explicitly requests them
	// and the secret store has an entry at VaultPath. Never persisted.
	Credentials map[string]string `json:"credentials,omitempty"`
}

// Credentials is the secret half of a connection, stored only in the
// secret store.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ConnectionUpdate carries the fields a caller may change on an existing
// connection. VaultPath and ConnectionID are immutable and deliberately
// absent.
type ConnectionUpdate struct {
	Name         *string        `json:"name,omitempty"`
	Host         *string        `json:"host,omitempty"`
	Username     *string        `json:"username,omitempty"`
	EncryptedURI *string        `json:"encrypted_uri,omitempty"`
	Extra        map[string]any `json:"extra,omitempty"`
}
