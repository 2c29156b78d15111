// Package models provides data model definitions for the portal sync core.
package models

import (
	"encoding/json"
	"time"
)

// Operation is the kind of mutation an outbox record replays remotely.
type Operation string

const (
	OperationInsert Operation = "INSERT"
	OperationUpdate Operation = "UPDATE"
	OperationDelete Operation = "DELETE"
)

// Valid reports whether op is a known mutation kind.
func (op Operation) Valid() bool {
	switch op {
	case OperationInsert, OperationUpdate, OperationDelete:
		return true
	}
	return false
}

// OutboxStatus is the replay state of an outbox record.
type OutboxStatus string

const (
	OutboxStatusPending OutboxStatus = "pending"
	OutboxStatusSynced  OutboxStatus = "synced"
	OutboxStatusError   OutboxStatus = "error"
)

// OutboxRecord is a locally-applied mutation not yet confirmed by the
// remote row store. Records transition pending -> synced or pending ->
// error exactly once per flush attempt; errored records stay put until
// explicitly retried.
type OutboxRecord struct {
	ID        string          `db:"id" json:"id"`
	Table     string          `db:"table_name" json:"table"`
	Operation Operation       `db:"operation" json:"operation"`
	Payload   json.RawMessage `db:"payload" json:"payload"`
	Timestamp int64           `db:"timestamp" json:"timestamp"` // Unix nanoseconds
	Status    OutboxStatus    `db:"status" json:"status"`
	Error     string          `db:"error" json:"error,omitempty"`
}

// TableName returns the storage table name for OutboxRecord.
func (OutboxRecord) TableName() string {
	return "outbox"
}

// Time returns the creation Timestamp as time.Time.
func (o *OutboxRecord) Time() time.Time {
	return time.Unix(0, o.Timestamp)
}
