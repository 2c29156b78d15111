// Package data provides the data access facade: the single read/write
// path application code uses. It hides the cache/outbox/remote
// choreography behind cache-first reads and write-through mutations.
package data

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/qualivida/portalsync/internal/errors"
	"github.com/qualivida/portalsync/internal/logging"
	"github.com/qualivida/portalsync/internal/models"
	"github.com/qualivida/portalsync/internal/remote"
	"github.com/qualivida/portalsync/internal/store"
)

// DefaultReplayTimeout bounds each remote replay so a hung call cannot
// hold the in-flight flag forever.
const DefaultReplayTimeout = 30 * time.Second

// Facade orchestrates the local cache, the outbox queue and the remote
// row store. Reads serve cache content first and refresh in the
// background; writes land in the cache and the outbox before any
// network activity is attempted.
type Facade struct {
	cache         *store.Cache
	outbox        *store.Outbox
	remote        remote.RowStore
	reachable     func() bool
	replayTimeout time.Duration

	mu       sync.Mutex
	syncing  bool
	lastSync time.Time
}

// Option configures a Facade.
type Option func(*Facade)

// WithReachable injects the reachability check consulted before any
// network activity. Defaults to always-online.
func WithReachable(fn func() bool) Option {
	return func(f *Facade) {
		f.reachable = fn
	}
}

// WithReplayTimeout overrides the per-entry replay timeout.
func WithReplayTimeout(d time.Duration) Option {
	return func(f *Facade) {
		f.replayTimeout = d
	}
}

// NewFacade creates a Facade over the given store and remote collaborator.
func NewFacade(cache *store.Cache, outbox *store.Outbox, rowStore remote.RowStore, opts ...Option) *Facade {
	f := &Facade{
		cache:         cache,
		outbox:        outbox,
		remote:        rowStore,
		reachable:     func() bool { return true },
		replayTimeout: DefaultReplayTimeout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// GetOptions controls a facade read.
type GetOptions struct {
	// Filter narrows the background remote refresh. The cached value is
	// always the full partition.
	Filter map[string]string

	// Refresh requests a background remote refresh when online.
	Refresh bool

	// OnRemoteUpdate is invoked with the fresh rows after a successful
	// background refresh, so the caller can re-render.
	OnRemoteUpdate func(rows []remote.Row)
}

// GetResult is the outcome of a facade read. Rows always come from the
// cache; Refreshing reports whether a background refresh was started.
type GetResult struct {
	Rows       []remote.Row `json:"rows"`
	FromCache  bool         `json:"from_cache"`
	Refreshing bool         `json:"refreshing"`
}

// GetData returns the cached partition immediately and, when online and
// requested, refreshes it from the remote store in the background. The
// caller is never blocked on network. A failed refresh leaves the
// returned cache value standing.
func (f *Facade) GetData(ctx context.Context, table string, opts GetOptions) (*GetResult, error) {
	records, err := f.cache.GetTable(ctx, table)
	if err != nil {
		// Degrade to a cache miss rather than failing the read.
		logging.Warn("cache read failed, serving empty partition",
			map[string]interface{}{"table": table, "error": err.Error()})
		records = nil
	}

	rows := make([]remote.Row, 0, len(records))
	for _, rec := range records {
		var row remote.Row
		if err := json.Unmarshal(rec.Payload, &row); err != nil {
			logging.Warn("skipping undecodable cache payload",
				map[string]interface{}{"table": table, "id": rec.ID})
			continue
		}
		rows = append(rows, row)
	}

	result := &GetResult{Rows: rows, FromCache: true}

	if opts.Refresh && f.reachable() {
		result.Refreshing = true
		go f.refreshTable(table, opts)
	}

	return result, nil
}

// refreshTable fetches a partition from the remote store and replaces
// the cached copy atomically. Runs detached from the caller's context.
func (f *Facade) refreshTable(table string, opts GetOptions) {
	ctx, cancel := context.WithTimeout(context.Background(), f.replayTimeout)
	defer cancel()

	rows, err := f.remote.Select(ctx, table, opts.Filter)
	if err != nil {
		logging.Debug("background refresh failed, cache value stands",
			map[string]interface{}{"table": table, "error": err.Error()})
		return
	}

	records := make([]models.CacheRecord, 0, len(rows))
	for _, row := range rows {
		id := rowID(row)
		if id == "" {
			continue
		}
		payload, err := json.Marshal(row)
		if err != nil {
			continue
		}
		rec := models.CacheRecord{ID: id, Table: table, Payload: payload}
		rec.Touch()
		records = append(records, rec)
	}

	if err := f.cache.ReplaceTable(ctx, table, records); err != nil {
		logging.ErrorWithCode("failed to store refreshed partition",
			string(apperrors.ErrStorage), err, map[string]interface{}{"table": table})
		return
	}

	if opts.OnRemoteUpdate != nil {
		opts.OnRemoteUpdate(rows)
	}
}

// Mutate applies a mutation to the local cache, appends it to the
// outbox and, when online, kicks off a best-effort background flush.
// It returns once the two local writes are durable; remote confirmation
// is asynchronous. A local persistence failure is the one error that
// propagates to the caller.
func (f *Facade) Mutate(ctx context.Context, table string, op models.Operation, payload remote.Row) (*models.OutboxRecord, error) {
	if !op.Valid() {
		return nil, apperrors.New(apperrors.ErrInvalid, "unknown operation "+string(op))
	}

	id := rowID(payload)
	if id == "" {
		if op != models.OperationInsert {
			return nil, apperrors.New(apperrors.ErrInvalid, "payload is missing an id")
		}
		// Offline inserts need a client-generated key.
		id = uuid.NewString()
		payload["id"] = id
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalid, "failed to encode payload", err)
	}

	switch op {
	case models.OperationInsert, models.OperationUpdate:
		rec := models.CacheRecord{ID: id, Table: table, Payload: raw}
		rec.Touch()
		if err := f.cache.Upsert(ctx, table, rec); err != nil {
			return nil, err
		}
	case models.OperationDelete:
		if err := f.cache.Delete(ctx, table, id); err != nil {
			return nil, err
		}
		// The outbox needs the key only.
		raw, _ = json.Marshal(remote.Row{"id": id})
	}

	entry, err := f.outbox.Add(ctx, models.OutboxRecord{
		Table:     table,
		Operation: op,
		Payload:   raw,
	})
	if err != nil {
		return nil, err
	}

	if f.reachable() {
		go func() {
			if _, err := f.SyncOutbox(context.Background()); err != nil {
				logging.Debug("post-write flush failed",
					map[string]interface{}{"error": err.Error()})
			}
		}()
	}

	return entry, nil
}

// SyncOutbox replays pending outbox entries against the remote store,
// strictly in timestamp order and one at a time, so per-row mutation
// ordering is preserved. A failed entry is marked error and replay
// continues with the next one. Offline calls and calls that find a
// flush already in flight return a skipped result.
func (f *Facade) SyncOutbox(ctx context.Context) (*models.SyncResult, error) {
	result := &models.SyncResult{StartTime: time.Now()}
	finish := func() {
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(result.StartTime)
	}

	if !f.reachable() {
		result.Skipped = true
		finish()
		return result, nil
	}

	f.mu.Lock()
	if f.syncing {
		f.mu.Unlock()
		result.Skipped = true
		finish()
		return result, nil
	}
	f.syncing = true
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.syncing = false
		f.mu.Unlock()
	}()

	pending, err := f.outbox.ListPending(ctx)
	if err != nil {
		finish()
		return result, err
	}

	for _, entry := range pending {
		select {
		case <-ctx.Done():
			// Remaining entries stay pending for the next cycle.
			finish()
			return result, ctx.Err()
		default:
		}

		replayCtx, cancel := context.WithTimeout(ctx, f.replayTimeout)
		replayErr := f.replay(replayCtx, entry)
		cancel()

		if replayErr != nil {
			result.Failed++
			if err := f.outbox.MarkError(ctx, entry.ID, replayErr.Error()); err != nil {
				logging.ErrorWithCode("failed to mark outbox entry as errored",
					string(apperrors.ErrStorage), err, map[string]interface{}{"entry_id": entry.ID})
			}
			logging.Warn("outbox replay failed",
				map[string]interface{}{
					"entry_id":  entry.ID,
					"table":     entry.Table,
					"operation": string(entry.Operation),
					"error":     replayErr.Error(),
				})
			continue
		}

		result.Synced++
		if err := f.outbox.MarkSynced(ctx, entry.ID); err != nil {
			logging.ErrorWithCode("failed to mark outbox entry as synced",
				string(apperrors.ErrStorage), err, map[string]interface{}{"entry_id": entry.ID})
		}
	}

	f.mu.Lock()
	f.lastSync = time.Now()
	f.mu.Unlock()

	if result.Synced > 0 || result.Failed > 0 {
		logging.Info("outbox flush completed",
			map[string]interface{}{"synced": result.Synced, "failed": result.Failed})
	}

	finish()
	return result, nil
}

// replay applies one outbox entry against the remote row store.
func (f *Facade) replay(ctx context.Context, entry models.OutboxRecord) error {
	var payload remote.Row
	if err := json.Unmarshal(entry.Payload, &payload); err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, "undecodable outbox payload", err)
	}

	switch entry.Operation {
	case models.OperationInsert:
		_, err := f.remote.Insert(ctx, entry.Table, payload)
		return err
	case models.OperationUpdate:
		id := rowID(payload)
		if id == "" {
			return apperrors.New(apperrors.ErrInvalid, "update payload is missing an id")
		}
		return f.remote.Update(ctx, entry.Table, id, payload)
	case models.OperationDelete:
		id := rowID(payload)
		if id == "" {
			return apperrors.New(apperrors.ErrInvalid, "delete payload is missing an id")
		}
		return f.remote.Delete(ctx, entry.Table, id)
	default:
		return apperrors.New(apperrors.ErrInvalid, "unknown operation "+string(entry.Operation))
	}
}

// RetryErrored resets errored outbox entries to pending and, when
// online, flushes immediately. Returns the number of entries re-queued.
func (f *Facade) RetryErrored(ctx context.Context) (int, *models.SyncResult, error) {
	count, err := f.outbox.RetryErrored(ctx)
	if err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, &models.SyncResult{Skipped: true}, nil
	}
	result, err := f.SyncOutbox(ctx)
	return count, result, err
}

// Status reports the sync-facing state of the local store.
type Status struct {
	Online   bool               `json:"online"`
	Syncing  bool               `json:"syncing"`
	LastSync *time.Time         `json:"last_sync,omitempty"`
	Outbox   models.OutboxStats `json:"outbox"`
}

// Status returns outbox counts plus the in-flight and last-sync state,
// enough for a UI to render "N pending / M failed".
func (f *Facade) Status(ctx context.Context) (*Status, error) {
	stats, err := f.outbox.Stats(ctx)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	status := &Status{
		Online:  f.reachable(),
		Syncing: f.syncing,
		Outbox:  *stats,
	}
	if !f.lastSync.IsZero() {
		t := f.lastSync
		status.LastSync = &t
	}
	f.mu.Unlock()

	return status, nil
}

// rowID extracts the "id" field of a row as a string. JSON decoding
// turns numeric keys into float64, so integral floats are formatted
// without an exponent.
func rowID(row remote.Row) string {
	switch v := row["id"].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
