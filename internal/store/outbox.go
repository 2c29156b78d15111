// Package store provides the durable local store backing the offline
// cache and the outbox queue.
package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/qualivida/portalsync/internal/errors"
	"github.com/qualivida/portalsync/internal/models"
)

// Outbox is the durable, ordered log of mutations not yet confirmed by
// the remote row store. Entries transition pending -> synced or
// pending -> error; errored entries stay until explicitly retried.
// Synced entries are kept as an informational append-log and can be
// trimmed with Prune.
type Outbox struct {
	db *DB
}

// NewOutbox creates an Outbox over an open store database.
func NewOutbox(db *DB) *Outbox {
	return &Outbox{db: db}
}

// Add stamps and persists a new pending entry. The append is durable
// before Add returns, so a mutation survives an immediate reload.
// A missing ID is filled with a fresh UUID.
func (o *Outbox) Add(ctx context.Context, entry models.OutboxRecord) (*models.OutboxRecord, error) {
	if !entry.Operation.Valid() {
		return nil, apperrors.New(apperrors.ErrInvalid, "unknown outbox operation "+string(entry.Operation))
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.Timestamp = time.Now().UnixNano()
	entry.Status = models.OutboxStatusPending
	entry.Error = ""

	_, err := o.db.ExecContext(ctx,
		"INSERT INTO outbox (id, table_name, operation, payload, timestamp, status, error) VALUES (?, ?, ?, ?, ?, ?, NULL)",
		entry.ID, entry.Table, string(entry.Operation), string(entry.Payload), entry.Timestamp, string(entry.Status))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to append outbox entry", err)
	}
	return &entry, nil
}

// ListPending returns all pending entries, oldest first. The rowid
// tiebreak keeps same-tick entries in enqueue order; this ordering is
// the replay contract.
func (o *Outbox) ListPending(ctx context.Context) ([]models.OutboxRecord, error) {
	return o.list(ctx,
		"SELECT id, table_name, operation, payload, timestamp, status, COALESCE(error, '') FROM outbox WHERE status = 'pending' ORDER BY timestamp ASC, rowid ASC")
}

// ListErrored returns all errored entries, oldest first.
func (o *Outbox) ListErrored(ctx context.Context) ([]models.OutboxRecord, error) {
	return o.list(ctx,
		"SELECT id, table_name, operation, payload, timestamp, status, COALESCE(error, '') FROM outbox WHERE status = 'error' ORDER BY timestamp ASC, rowid ASC")
}

func (o *Outbox) list(ctx context.Context, query string, args ...any) ([]models.OutboxRecord, error) {
	rows, err := o.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to query outbox", err)
	}
	defer rows.Close()

	entries := []models.OutboxRecord{}
	for rows.Next() {
		var entry models.OutboxRecord
		var operation, status, payload string
		if err := rows.Scan(&entry.ID, &entry.Table, &operation, &payload, &entry.Timestamp, &status, &entry.Error); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to scan outbox entry", err)
		}
		entry.Operation = models.Operation(operation)
		entry.Status = models.OutboxStatus(status)
		entry.Payload = []byte(payload)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to iterate outbox", err)
	}
	return entries, nil
}

// MarkSynced marks an entry as confirmed by the remote store and clears
// any previous error message.
func (o *Outbox) MarkSynced(ctx context.Context, id string) error {
	return o.setStatus(ctx, id, models.OutboxStatusSynced, "")
}

// MarkError records a failed replay attempt on the entry.
func (o *Outbox) MarkError(ctx context.Context, id, message string) error {
	return o.setStatus(ctx, id, models.OutboxStatusError, message)
}

func (o *Outbox) setStatus(ctx context.Context, id string, status models.OutboxStatus, message string) error {
	var errValue any
	if message != "" {
		errValue = message
	}
	res, err := o.db.ExecContext(ctx,
		"UPDATE outbox SET status = ?, error = ? WHERE id = ?", string(status), errValue, id)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to update outbox status", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to read affected rows", err)
	}
	if affected == 0 {
		return apperrors.Wrap(apperrors.ErrNotFound, "outbox entry "+id+" not found", sql.ErrNoRows)
	}
	return nil
}

// RetryErrored resets all errored entries to pending so the next flush
// cycle picks them up again. Returns the number of entries reset.
func (o *Outbox) RetryErrored(ctx context.Context) (int, error) {
	res, err := o.db.ExecContext(ctx,
		"UPDATE outbox SET status = 'pending', error = NULL WHERE status = 'error'")
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorage, "failed to retry errored entries", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorage, "failed to read affected rows", err)
	}
	return int(affected), nil
}

// Stats returns the per-status entry counts.
func (o *Outbox) Stats(ctx context.Context) (*models.OutboxStats, error) {
	rows, err := o.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM outbox GROUP BY status")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to query outbox stats", err)
	}
	defer rows.Close()

	stats := &models.OutboxStats{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to scan outbox stats", err)
		}
		stats.Total += count
		switch models.OutboxStatus(status) {
		case models.OutboxStatusPending:
			stats.Pending = count
		case models.OutboxStatusSynced:
			stats.Synced = count
		case models.OutboxStatusError:
			stats.Errored = count
		}
	}
	return stats, rows.Err()
}

// Prune removes synced entries older than the given cutoff. Pending and
// errored entries are never pruned.
func (o *Outbox) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := o.db.ExecContext(ctx,
		"DELETE FROM outbox WHERE status = 'synced' AND timestamp < ?", olderThan.UnixNano())
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorage, "failed to prune outbox", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorage, "failed to read affected rows", err)
	}
	return int(affected), nil
}
