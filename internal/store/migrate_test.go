// Package store provides unit tests for schema migrations.
package store

import "testing"

// TestMigrationsAppliedOnOpen verifies Open brings the schema to the
// latest version and that reopening doesn't re-apply anything.
func TestMigrationsAppliedOnOpen(t *testing.T) {
	dir := t.TempDir()

	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	migrator := NewMigrator(db.DB)
	version, err := migrator.CurrentVersion()
	if err != nil {
		t.Fatalf("CurrentVersion failed: %v", err)
	}
	if version < 1 {
		t.Errorf("expected schema version >= 1, got %d", version)
	}

	applied, err := migrator.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations failed: %v", err)
	}
	for _, mig := range applied {
		if len(mig.Checksum) != 64 {
			t.Errorf("migration V%d has malformed checksum %q", mig.Version, mig.Checksum)
		}
	}
	db.Close()

	db2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer db2.Close()

	again, err := NewMigrator(db2.DB).AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations after reopen failed: %v", err)
	}
	if len(again) != len(applied) {
		t.Errorf("migrations re-applied on reopen: %d vs %d", len(again), len(applied))
	}
}

// TestOpenUnmigratedSkipsMigrations verifies the explicit-management
// open path leaves the schema untouched until Up runs.
func TestOpenUnmigratedSkipsMigrations(t *testing.T) {
	db, err := OpenUnmigrated(t.TempDir())
	if err != nil {
		t.Fatalf("OpenUnmigrated failed: %v", err)
	}
	defer db.Close()

	migrator := NewMigrator(db.DB)
	if err := migrator.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	version, err := migrator.CurrentVersion()
	if err != nil {
		t.Fatalf("CurrentVersion failed: %v", err)
	}
	if version != 0 {
		t.Errorf("expected version 0 before Up, got %d", version)
	}

	if err := migrator.Up(); err != nil {
		t.Fatalf("Up failed: %v", err)
	}
	version, err = migrator.CurrentVersion()
	if err != nil {
		t.Fatalf("CurrentVersion after Up failed: %v", err)
	}
	if version < 1 {
		t.Errorf("expected schema version >= 1 after Up, got %d", version)
	}
}

// TestMigrationRollback verifies Down removes the latest version.
func TestMigrationRollback(t *testing.T) {
	db := openTestDB(t)
	migrator := NewMigrator(db.DB)

	before, err := migrator.CurrentVersion()
	if err != nil {
		t.Fatalf("CurrentVersion failed: %v", err)
	}

	if err := migrator.Down(); err != nil {
		t.Fatalf("Down failed: %v", err)
	}

	after, err := migrator.CurrentVersion()
	if err != nil {
		t.Fatalf("CurrentVersion after Down failed: %v", err)
	}
	if after != before-1 {
		t.Errorf("expected version %d after rollback, got %d", before-1, after)
	}
}
