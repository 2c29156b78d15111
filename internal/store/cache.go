// Package store provides the durable local store backing the offline
// cache and the outbox queue.
package store

import (
	"context"
	"database/sql"
	"time"

	apperrors "github.com/qualivida/portalsync/internal/errors"
	"github.com/qualivida/portalsync/internal/models"
)

// Cache is the table-partitioned store of last-known remote rows.
// Writes are last-write-wins per (table, id); ReplaceTable is the one
// operation that requires a transaction, so concurrent readers never
// observe a half-replaced partition.
type Cache struct {
	db *DB
}

// NewCache creates a Cache over an open store database.
func NewCache(db *DB) *Cache {
	return &Cache{db: db}
}

// GetTable returns all cached records for a partition, unordered.
// An unknown partition yields an empty slice, not an error.
func (c *Cache) GetTable(ctx context.Context, table string) ([]models.CacheRecord, error) {
	rows, err := c.db.QueryContext(ctx,
		"SELECT id, table_name, payload, updated_at FROM cache_data WHERE table_name = ?", table)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to query cache partition", err)
	}
	defer rows.Close()

	records := []models.CacheRecord{}
	for rows.Next() {
		var rec models.CacheRecord
		var payload string
		if err := rows.Scan(&rec.ID, &rec.Table, &payload, &rec.UpdatedAt); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to scan cache record", err)
		}
		rec.Payload = []byte(payload)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to iterate cache partition", err)
	}
	return records, nil
}

// GetRecord returns a single cached record, or sql.ErrNoRows wrapped as
// ErrNotFound when absent.
func (c *Cache) GetRecord(ctx context.Context, table, id string) (*models.CacheRecord, error) {
	var rec models.CacheRecord
	var payload string
	err := c.db.QueryRowContext(ctx,
		"SELECT id, table_name, payload, updated_at FROM cache_data WHERE table_name = ? AND id = ?",
		table, id).Scan(&rec.ID, &rec.Table, &payload, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.Wrap(apperrors.ErrNotFound, "cache record not found", err)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to query cache record", err)
	}
	rec.Payload = []byte(payload)
	return &rec, nil
}

// ReplaceTable atomically replaces the entire partition contents with
// the given record set. Other partitions are untouched. Used after a
// full remote refresh.
func (c *Cache) ReplaceTable(ctx context.Context, table string, records []models.CacheRecord) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to begin replace transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM cache_data WHERE table_name = ?", table); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to clear cache partition", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for _, rec := range records {
		updatedAt := rec.UpdatedAt
		if updatedAt == "" {
			updatedAt = now
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT OR REPLACE INTO cache_data (id, table_name, payload, updated_at) VALUES (?, ?, ?, ?)",
			rec.ID, table, string(rec.Payload), updatedAt); err != nil {
			return apperrors.Wrap(apperrors.ErrStorage, "failed to insert cache record", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to commit partition replace", err)
	}
	return nil
}

// Upsert inserts or replaces a single record. Used for optimistic
// single-row writes on the write path.
func (c *Cache) Upsert(ctx context.Context, table string, rec models.CacheRecord) error {
	if rec.UpdatedAt == "" {
		rec.Touch()
	}
	_, err := c.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO cache_data (id, table_name, payload, updated_at) VALUES (?, ?, ?, ?)",
		rec.ID, table, string(rec.Payload), rec.UpdatedAt)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to upsert cache record", err)
	}
	return nil
}

// Delete removes a single record. Deleting an absent record is a no-op.
func (c *Cache) Delete(ctx context.Context, table, id string) error {
	_, err := c.db.ExecContext(ctx,
		"DELETE FROM cache_data WHERE table_name = ? AND id = ?", table, id)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to delete cache record", err)
	}
	return nil
}

// Tables returns the distinct partition names currently cached.
func (c *Cache) Tables(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT DISTINCT table_name FROM cache_data ORDER BY table_name")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to query cached tables", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to scan table name", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}
