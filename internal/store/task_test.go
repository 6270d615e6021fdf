package store

import (
	"errors"
	"testing"
	"time"

	"github.com/wrenfield/starling/internal/model"
)

func newTestTask(familyID, childID int64) *model.Task {
	return &model.Task{
		FamilyID:       familyID,
		Title:          "Feed the cat",
		Category:       "pets",
		TaskType:       model.TaskRecurring,
		RecurrenceRule: "FREQ=DAILY",
		StarValue:      5,
		StarType:       model.StarTypeGrowth,
		Active:         true,
		AssignedTo:     []int64{childID},
	}
}

func TestTaskCRUD(t *testing.T) {
	db := openTestDB(t)
	familyID, _, childID := seedFamily(t, db)
	ts := NewTaskStore(db)

	task, err := ts.Create(newTestTask(familyID, childID))
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.Title != "Feed the cat" {
		t.Errorf("title = %q, want %q", task.Title, "Feed the cat")
	}
	if len(task.AssignedTo) != 1 || task.AssignedTo[0] != childID {
		t.Errorf("assigned_to = %v, want [%d]", task.AssignedTo, childID)
	}

	task.Title = "Feed the cat twice"
	task.StarValue = 8
	updated, err := ts.Update(task)
	if err != nil {
		t.Fatalf("update task: %v", err)
	}
	if updated.Title != "Feed the cat twice" {
		t.Errorf("updated title = %q", updated.Title)
	}
	if updated.StarValue != 8 {
		t.Errorf("updated star_value = %d, want 8", updated.StarValue)
	}

	if err := ts.Archive(task.ID); err != nil {
		t.Fatalf("archive task: %v", err)
	}
	got, err := ts.GetByID(task.ID)
	if err != nil {
		t.Fatalf("get archived task: %v", err)
	}
	if !got.Archived() {
		t.Error("expected task to be archived")
	}
	if got.Active {
		t.Error("archived task should be inactive")
	}

	active, err := ts.List(familyID, false)
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("expected archived task hidden, got %d tasks", len(active))
	}
	all, err := ts.List(familyID, true)
	if err != nil {
		t.Fatalf("list all tasks: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("expected 1 task including archived, got %d", len(all))
	}
}

func TestTaskCreateValidation(t *testing.T) {
	db := openTestDB(t)
	familyID, _, childID := seedFamily(t, db)
	ts := NewTaskStore(db)

	// Recurring task without a rule
	task := newTestTask(familyID, childID)
	task.RecurrenceRule = ""
	if _, err := ts.Create(task); err == nil {
		t.Error("expected error for recurring task without rule")
	}

	// One-time task with a rule
	task = newTestTask(familyID, childID)
	task.TaskType = model.TaskOneTime
	if _, err := ts.Create(task); err == nil {
		t.Error("expected error for one-time task with rule")
	}

	// Negative star value
	task = newTestTask(familyID, childID)
	task.StarValue = -1
	if _, err := ts.Create(task); err == nil {
		t.Error("expected error for negative star value")
	}
}

func TestListForChild(t *testing.T) {
	db := openTestDB(t)
	familyID, _, childID := seedFamily(t, db)
	ts := NewTaskStore(db)

	assigned, err := ts.Create(newTestTask(familyID, childID))
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	unassigned := newTestTask(familyID, childID)
	unassigned.Title = "Unassigned"
	unassigned.AssignedTo = nil
	if _, err := ts.Create(unassigned); err != nil {
		t.Fatalf("create unassigned task: %v", err)
	}

	tasks, err := ts.ListForChild(childID)
	if err != nil {
		t.Fatalf("list for child: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task for child, got %d", len(tasks))
	}
	if tasks[0].ID != assigned.ID {
		t.Errorf("task id = %d, want %d", tasks[0].ID, assigned.ID)
	}
}

func TestInsertCompletionDuplicateOccurrence(t *testing.T) {
	db := openTestDB(t)
	familyID, _, childID := seedFamily(t, db)
	ts := NewTaskStore(db)

	task, err := ts.Create(newTestTask(familyID, childID))
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	first, err := ts.InsertCompletion(nil, task.ID, childID, familyID, "2026-03-02")
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if first.Status != model.CompletionPending {
		t.Errorf("status = %q, want %q", first.Status, model.CompletionPending)
	}

	if _, err := ts.InsertCompletion(nil, task.ID, childID, familyID, "2026-03-02"); !errors.Is(err, ErrDuplicateOccurrence) {
		t.Fatalf("second insert err = %v, want ErrDuplicateOccurrence", err)
	}

	// A different date is a fresh occurrence.
	if _, err := ts.InsertCompletion(nil, task.ID, childID, familyID, "2026-03-03"); err != nil {
		t.Fatalf("insert next day: %v", err)
	}
}

func TestRejectedCompletionFreesOccurrence(t *testing.T) {
	db := openTestDB(t)
	familyID, _, childID := seedFamily(t, db)
	ts := NewTaskStore(db)

	task, err := ts.Create(newTestTask(familyID, childID))
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	c, err := ts.InsertCompletion(nil, task.ID, childID, familyID, "2026-03-02")
	if err != nil {
		t.Fatalf("insert completion: %v", err)
	}
	if err := ts.MarkRejected(nil, c.ID, time.Now()); err != nil {
		t.Fatalf("reject completion: %v", err)
	}

	live, err := ts.HasLiveCompletion(nil, task.ID, childID, "2026-03-02")
	if err != nil {
		t.Fatalf("check live: %v", err)
	}
	if live {
		t.Error("rejected completion should not count as live")
	}

	// The partial unique index ignores rejected rows, so the occurrence
	// can be claimed again.
	if _, err := ts.InsertCompletion(nil, task.ID, childID, familyID, "2026-03-02"); err != nil {
		t.Fatalf("reclaim occurrence: %v", err)
	}
}

func TestMarkApprovedFreezesStars(t *testing.T) {
	db := openTestDB(t)
	familyID, _, childID := seedFamily(t, db)
	ts := NewTaskStore(db)

	task, err := ts.Create(newTestTask(familyID, childID))
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	c, err := ts.InsertCompletion(nil, task.ID, childID, familyID, "2026-03-02")
	if err != nil {
		t.Fatalf("insert completion: %v", err)
	}

	if err := ts.MarkApproved(nil, c.ID, 5, time.Now()); err != nil {
		t.Fatalf("approve completion: %v", err)
	}

	got, err := ts.GetCompletion(nil, c.ID)
	if err != nil {
		t.Fatalf("get completion: %v", err)
	}
	if got.Status != model.CompletionApproved {
		t.Errorf("status = %q, want approved", got.Status)
	}
	if got.StarsAwarded == nil || *got.StarsAwarded != 5 {
		t.Errorf("stars_awarded = %v, want 5", got.StarsAwarded)
	}
	if got.ApprovedAt == nil {
		t.Error("approved_at not set")
	}
}

func TestListCompletionsFiltersByStatus(t *testing.T) {
	db := openTestDB(t)
	familyID, _, childID := seedFamily(t, db)
	ts := NewTaskStore(db)

	task, err := ts.Create(newTestTask(familyID, childID))
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	a, err := ts.InsertCompletion(nil, task.ID, childID, familyID, "2026-03-02")
	if err != nil {
		t.Fatalf("insert completion: %v", err)
	}
	if _, err := ts.InsertCompletion(nil, task.ID, childID, familyID, "2026-03-03"); err != nil {
		t.Fatalf("insert completion: %v", err)
	}
	if err := ts.MarkApproved(nil, a.ID, 5, time.Now()); err != nil {
		t.Fatalf("approve: %v", err)
	}

	pending, err := ts.ListCompletions(familyID, model.CompletionPending)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("expected 1 pending completion, got %d", len(pending))
	}

	all, err := ts.ListCompletions(familyID, "")
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 completions, got %d", len(all))
	}
}
