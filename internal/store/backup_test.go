package store

import (
	"testing"
	"time"

	"github.com/wrenfield/starling/internal/model"
)

func TestBackupRecordLifecycle(t *testing.T) {
	db := openTestDB(t)
	bs := NewBackupStore(db)

	id, err := bs.Start("starling/backup-20260828.db")
	if err != nil {
		t.Fatalf("start backup: %v", err)
	}

	backups, err := bs.List(10)
	if err != nil {
		t.Fatalf("list backups: %v", err)
	}
	if len(backups) != 1 {
		t.Fatalf("expected 1 backup, got %d", len(backups))
	}
	if backups[0].State != model.BackupStateRunning {
		t.Errorf("state = %q, want running", backups[0].State)
	}

	if err := bs.Finish(id, 4096); err != nil {
		t.Fatalf("finish backup: %v", err)
	}
	backups, _ = bs.List(10)
	if backups[0].State != model.BackupStateDone {
		t.Errorf("state = %q, want done", backups[0].State)
	}
	if backups[0].SizeBytes != 4096 {
		t.Errorf("size = %d, want 4096", backups[0].SizeBytes)
	}
	if backups[0].DoneAt == nil {
		t.Error("done_at not set")
	}
}

func TestBackupFail(t *testing.T) {
	db := openTestDB(t)
	bs := NewBackupStore(db)

	id, err := bs.Start("starling/backup-bad.db")
	if err != nil {
		t.Fatalf("start backup: %v", err)
	}
	if err := bs.Fail(id, "upload timed out"); err != nil {
		t.Fatalf("fail backup: %v", err)
	}

	backups, _ := bs.List(10)
	if backups[0].State != model.BackupStateFailed {
		t.Errorf("state = %q, want failed", backups[0].State)
	}
	if backups[0].Error != "upload timed out" {
		t.Errorf("error = %q", backups[0].Error)
	}
}

func TestDeleteOlderThan(t *testing.T) {
	db := openTestDB(t)
	bs := NewBackupStore(db)

	id, err := bs.Start("starling/backup-old.db")
	if err != nil {
		t.Fatalf("start backup: %v", err)
	}
	if err := bs.Finish(id, 100); err != nil {
		t.Fatalf("finish backup: %v", err)
	}

	// Nothing is older than a cutoff in the past.
	keys, err := bs.DeleteOlderThan(time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("delete older than: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("expected no keys, got %v", keys)
	}

	keys, err = bs.DeleteOlderThan(time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("delete older than: %v", err)
	}
	if len(keys) != 1 || keys[0] != "starling/backup-old.db" {
		t.Errorf("keys = %v, want the old object key", keys)
	}

	backups, _ := bs.List(10)
	if len(backups) != 0 {
		t.Errorf("expected 0 backups after prune, got %d", len(backups))
	}
}
