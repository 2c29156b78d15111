// Package store provides unit tests for the outbox queue.
package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/qualivida/portalsync/internal/models"
)

func entry(table string, op models.Operation, payload string) models.OutboxRecord {
	return models.OutboxRecord{
		Table:     table,
		Operation: op,
		Payload:   json.RawMessage(payload),
	}
}

// TestOutboxAdd verifies Add stamps timestamp and pending status and
// assigns an id.
func TestOutboxAdd(t *testing.T) {
	outbox := NewOutbox(openTestDB(t))
	ctx := context.Background()

	before := time.Now().UnixNano()
	added, err := outbox.Add(ctx, entry("residents", models.OperationInsert, `{"id":"r1"}`))
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if added.ID == "" {
		t.Error("expected generated id")
	}
	if added.Status != models.OutboxStatusPending {
		t.Errorf("expected pending status, got %s", added.Status)
	}
	if added.Timestamp < before {
		t.Errorf("timestamp not stamped: %d < %d", added.Timestamp, before)
	}
}

// TestOutboxRejectsUnknownOperation checks operation validation.
func TestOutboxRejectsUnknownOperation(t *testing.T) {
	outbox := NewOutbox(openTestDB(t))

	if _, err := outbox.Add(context.Background(), entry("residents", "UPSERT", `{}`)); err == nil {
		t.Error("expected error for unknown operation")
	}
}

// TestOutboxListPendingOrder verifies the replay contract: pending
// entries come back oldest first, in enqueue order.
func TestOutboxListPendingOrder(t *testing.T) {
	outbox := NewOutbox(openTestDB(t))
	ctx := context.Background()

	first, _ := outbox.Add(ctx, entry("residents", models.OperationUpdate, `{"id":"r1","v":1}`))
	second, _ := outbox.Add(ctx, entry("residents", models.OperationUpdate, `{"id":"r1","v":2}`))
	third, _ := outbox.Add(ctx, entry("packages", models.OperationDelete, `{"id":"p9"}`))

	pending, err := outbox.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("expected 3 pending entries, got %d", len(pending))
	}

	want := []string{first.ID, second.ID, third.ID}
	for i, id := range want {
		if pending[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, pending[i].ID)
		}
	}
}

// TestOutboxMarkSyncedAndError verifies the status transitions and that
// marked entries drop out of the pending list.
func TestOutboxMarkSyncedAndError(t *testing.T) {
	outbox := NewOutbox(openTestDB(t))
	ctx := context.Background()

	a, _ := outbox.Add(ctx, entry("boletos", models.OperationInsert, `{"id":"b1"}`))
	b, _ := outbox.Add(ctx, entry("boletos", models.OperationInsert, `{"id":"b2"}`))

	if err := outbox.MarkSynced(ctx, a.ID); err != nil {
		t.Fatalf("MarkSynced failed: %v", err)
	}
	if err := outbox.MarkError(ctx, b.ID, "remote rejected the write"); err != nil {
		t.Fatalf("MarkError failed: %v", err)
	}

	pending, _ := outbox.ListPending(ctx)
	if len(pending) != 0 {
		t.Errorf("expected no pending entries, got %d", len(pending))
	}

	errored, _ := outbox.ListErrored(ctx)
	if len(errored) != 1 {
		t.Fatalf("expected 1 errored entry, got %d", len(errored))
	}
	if errored[0].Error == "" {
		t.Error("expected non-empty error message")
	}

	if err := outbox.MarkSynced(ctx, "missing-id"); err == nil {
		t.Error("expected error for unknown entry id")
	}
}

// TestOutboxRetryErrored verifies errored entries go back to pending
// with the error message cleared.
func TestOutboxRetryErrored(t *testing.T) {
	outbox := NewOutbox(openTestDB(t))
	ctx := context.Background()

	a, _ := outbox.Add(ctx, entry("notices", models.OperationDelete, `{"id":"n1"}`))
	outbox.MarkError(ctx, a.ID, "timeout")

	count, err := outbox.RetryErrored(ctx)
	if err != nil {
		t.Fatalf("RetryErrored failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 re-queued entry, got %d", count)
	}

	pending, _ := outbox.ListPending(ctx)
	if len(pending) != 1 {
		t.Fatalf("expected entry back in pending, got %d", len(pending))
	}
	if pending[0].Error != "" {
		t.Errorf("expected cleared error, got %q", pending[0].Error)
	}
}

// TestOutboxStats verifies per-status counts.
func TestOutboxStats(t *testing.T) {
	outbox := NewOutbox(openTestDB(t))
	ctx := context.Background()

	a, _ := outbox.Add(ctx, entry("users", models.OperationInsert, `{"id":"u1"}`))
	outbox.Add(ctx, entry("users", models.OperationInsert, `{"id":"u2"}`))
	c, _ := outbox.Add(ctx, entry("users", models.OperationInsert, `{"id":"u3"}`))

	outbox.MarkSynced(ctx, a.ID)
	outbox.MarkError(ctx, c.ID, "boom")

	stats, err := outbox.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Total != 3 || stats.Pending != 1 || stats.Synced != 1 || stats.Errored != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

// TestOutboxPrune verifies only old synced entries are removed.
func TestOutboxPrune(t *testing.T) {
	outbox := NewOutbox(openTestDB(t))
	ctx := context.Background()

	a, _ := outbox.Add(ctx, entry("packages", models.OperationInsert, `{"id":"p1"}`))
	b, _ := outbox.Add(ctx, entry("packages", models.OperationInsert, `{"id":"p2"}`))
	outbox.MarkSynced(ctx, a.ID)
	outbox.MarkError(ctx, b.ID, "boom")

	// Cutoff in the future: the synced entry qualifies, pending/errored
	// never do.
	n, err := outbox.Prune(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 pruned entry, got %d", n)
	}

	stats, _ := outbox.Stats(ctx)
	if stats.Total != 1 || stats.Errored != 1 {
		t.Errorf("unexpected stats after prune: %+v", stats)
	}
}

// TestOutboxSurvivesReopen verifies an appended entry is durable across
// a simulated reload.
func TestOutboxSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	added, err := NewOutbox(db).Add(ctx, entry("residents", models.OperationUpdate, `{"id":"r1"}`))
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	db.Close()

	db2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer db2.Close()

	pending, err := NewOutbox(db2).ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending after reopen failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != added.ID {
		t.Errorf("expected entry to survive reopen, got %+v", pending)
	}
	if pending[0].Status != models.OutboxStatusPending {
		t.Errorf("expected pending status after reopen, got %s", pending[0].Status)
	}
}
