// Package models provides data model definitions for the portal sync core.
package models

import "time"

// SyncResult summarizes one outbox flush cycle. There is no global
// transaction: each entry commits or fails independently.
type SyncResult struct {
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Synced    int           `json:"synced"`
	Failed    int           `json:"failed"`
	Skipped   bool          `json:"skipped"` // offline, or a flush was already in flight
}

// OutboxStats holds per-status outbox counts for the "N pending /
// M failed" surface.
type OutboxStats struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
	Synced  int `json:"synced"`
	Errored int `json:"errored"`
}
