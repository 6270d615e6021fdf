package synccache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/wrenfield/starling/internal/database"
	"github.com/wrenfield/starling/internal/ledger"
	"github.com/wrenfield/starling/internal/lifecycle"
	"github.com/wrenfield/starling/internal/model"
	"github.com/wrenfield/starling/internal/store"
)

type env struct {
	cache    *Cache
	replayer *Replayer
	ledger   *ledger.StarLedger
	tasks    *store.TaskStore
	familyID int64
	childID  int64
}

func setup(t *testing.T) *env {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	families := store.NewFamilyStore(db)
	family, err := families.CreateFamily("Test")
	if err != nil {
		t.Fatalf("create family: %v", err)
	}
	if _, err := families.CreateMember(family.ID, "Pat", model.RoleParent, "", ""); err != nil {
		t.Fatalf("create parent: %v", err)
	}
	child, err := families.CreateMember(family.ID, "Sam", model.RoleChild, "", "")
	if err != nil {
		t.Fatalf("create child: %v", err)
	}

	tasks := store.NewTaskStore(db)
	rewards := store.NewRewardStore(db)
	settings := store.NewSettingsStore(db)
	starLedger := ledger.New(db)

	cache := NewCache(families, tasks, starLedger, time.Minute, nil)
	taskLC := lifecycle.NewTaskLifecycle(db, tasks, nil, nil)
	redeemLC := lifecycle.NewRedemptionLifecycle(db, rewards, lifecycle.NewThresholdPolicy(settings), nil, nil)
	replayer := NewReplayer(store.NewSyncOpStore(db), taskLC, redeemLC, cache)

	return &env{
		cache:    cache,
		replayer: replayer,
		ledger:   starLedger,
		tasks:    tasks,
		familyID: family.ID,
		childID:  child.ID,
	}
}

func (e *env) createDailyTask(t *testing.T, title string, stars int) *model.Task {
	t.Helper()
	task, err := e.tasks.Create(&model.Task{
		FamilyID:       e.familyID,
		Title:          title,
		TaskType:       model.TaskRecurring,
		RecurrenceRule: "FREQ=DAILY",
		StarValue:      stars,
		StarType:       model.StarTypeGrowth,
		Active:         true,
		AssignedTo:     []int64{e.childID},
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func TestSnapshotContents(t *testing.T) {
	e := setup(t)
	e.createDailyTask(t, "Feed the cat", 10)
	if _, err := e.ledger.ApplyDelta(e.childID, model.StarTypeGrowth, 5, "seed:1"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	snap, err := e.cache.Snapshot(e.familyID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	if snap.Family == nil || snap.Family.ID != e.familyID {
		t.Fatal("missing family")
	}
	if len(snap.Members) != 2 {
		t.Errorf("members = %d, want 2", len(snap.Members))
	}
	balances := snap.Balances[e.childID]
	if len(balances) != 1 || balances[0].Amount != 5 {
		t.Errorf("balances = %+v, want one growth balance of 5", balances)
	}
	if len(snap.DueTasks[e.childID]) != 1 {
		t.Errorf("due tasks = %d, want 1", len(snap.DueTasks[e.childID]))
	}
}

func TestSnapshotSkipsInactiveTasks(t *testing.T) {
	e := setup(t)
	e.createDailyTask(t, "Feed the cat", 10)
	if _, err := e.tasks.Create(&model.Task{
		FamilyID:   e.familyID,
		Title:      "Old chore",
		TaskType:   model.TaskOneTime,
		StarValue:  5,
		StarType:   model.StarTypeGrowth,
		Active:     false,
		AssignedTo: []int64{e.childID},
	}); err != nil {
		t.Fatalf("create inactive task: %v", err)
	}

	snap, err := e.cache.Snapshot(e.familyID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	due := snap.DueTasks[e.childID]
	if len(due) != 1 {
		t.Fatalf("due tasks = %d, want only the active one", len(due))
	}
	if due[0].Title != "Feed the cat" {
		t.Errorf("due task = %q, want %q", due[0].Title, "Feed the cat")
	}
}

func TestSnapshotCachedUntilInvalidated(t *testing.T) {
	e := setup(t)

	first, err := e.cache.Snapshot(e.familyID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	// A write the cache has not been told about is not yet visible.
	e.createDailyTask(t, "Feed the cat", 10)

	second, err := e.cache.Snapshot(e.familyID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !second.TakenAt.Equal(first.TakenAt) {
		t.Error("expected cached snapshot within TTL")
	}

	e.cache.Invalidate(e.familyID)
	third, err := e.cache.Snapshot(e.familyID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(third.DueTasks[e.childID]) != 1 {
		t.Error("expected rebuilt snapshot to include the new task")
	}
}

func TestReplayAppliesQueue(t *testing.T) {
	e := setup(t)
	task := e.createDailyTask(t, "Feed the cat", 10)

	op := Op{
		ID:         uuid.NewString(),
		Kind:       OpCompleteTask,
		ChildID:    e.childID,
		TaskID:     task.ID,
		OccurredAt: time.Now(),
	}

	results, err := e.replayer.Replay(e.familyID, []Op{op})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	if results[0].Status != model.SyncApplied {
		t.Errorf("status = %q, want %q (%s)", results[0].Status, model.SyncApplied, results[0].Detail)
	}
}

func TestReplayIsIdempotent(t *testing.T) {
	e := setup(t)
	task := e.createDailyTask(t, "Feed the cat", 10)

	op := Op{
		ID:         uuid.NewString(),
		Kind:       OpCompleteTask,
		ChildID:    e.childID,
		TaskID:     task.ID,
		OccurredAt: time.Now(),
	}

	if _, err := e.replayer.Replay(e.familyID, []Op{op}); err != nil {
		t.Fatalf("first replay: %v", err)
	}
	results, err := e.replayer.Replay(e.familyID, []Op{op})
	if err != nil {
		t.Fatalf("second replay: %v", err)
	}
	if results[0].Status != model.SyncApplied {
		t.Errorf("replayed op status = %q, want recorded outcome %q", results[0].Status, model.SyncApplied)
	}

	// A different op id for the same occurrence reconciles, not fails.
	dup := op
	dup.ID = uuid.NewString()
	results, err = e.replayer.Replay(e.familyID, []Op{dup})
	if err != nil {
		t.Fatalf("duplicate replay: %v", err)
	}
	if results[0].Status != model.SyncAlreadyApplied {
		t.Errorf("duplicate status = %q, want %q", results[0].Status, model.SyncAlreadyApplied)
	}
}

func TestReplayRejectsMalformedIDs(t *testing.T) {
	e := setup(t)
	task := e.createDailyTask(t, "Feed the cat", 10)

	good := Op{
		ID:         uuid.NewString(),
		Kind:       OpCompleteTask,
		ChildID:    e.childID,
		TaskID:     task.ID,
		OccurredAt: time.Now(),
	}
	bad := Op{ID: "not-a-uuid", Kind: OpCompleteTask, ChildID: e.childID, TaskID: task.ID}

	results, err := e.replayer.Replay(e.familyID, []Op{bad, good})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if results[0].Status != model.SyncRejected {
		t.Errorf("bad op status = %q, want %q", results[0].Status, model.SyncRejected)
	}
	if results[1].Status != model.SyncApplied {
		t.Errorf("good op status = %q, want %q", results[1].Status, model.SyncApplied)
	}
}
