// Package models provides data model definitions for the portal sync core.
package models

import (
	"encoding/json"
	"time"
)

// CacheRecord is the last-known value of a remote row, stored locally.
// At most one record exists per (Table, ID) pair; writing an existing
// pair replaces the record entirely.
type CacheRecord struct {
	ID        string          `db:"id" json:"id"`
	Table     string          `db:"table_name" json:"table"`
	Payload   json.RawMessage `db:"payload" json:"payload"`
	UpdatedAt string          `db:"updated_at" json:"updated_at"` // ISO-8601
}

// TableName returns the storage table name for CacheRecord.
func (CacheRecord) TableName() string {
	return "cache_data"
}

// Touch sets UpdatedAt to the current time in ISO-8601 form.
func (c *CacheRecord) Touch() {
	c.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
}
