package lifecycle

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wrenfield/starling/internal/ledger"
	"github.com/wrenfield/starling/internal/model"
	"github.com/wrenfield/starling/internal/recurrence"
	"github.com/wrenfield/starling/internal/store"
)

const occurrenceFormat = "2006-01-02"

// TaskLifecycle drives a task completion from claim through approval or
// rejection. Approval credits the star ledger in the same transaction that
// freezes the completion row, keyed by a ledger entry id derived from the
// completion, so retried or concurrent approvals settle on one credit.
type TaskLifecycle struct {
	db     *sql.DB
	tasks  *store.TaskStore
	sink   Sink
	logger *slog.Logger
}

func NewTaskLifecycle(db *sql.DB, tasks *store.TaskStore, sink Sink, logger *slog.Logger) *TaskLifecycle {
	return &TaskLifecycle{db: db, tasks: tasks, sink: sink, logger: logger}
}

// approveEntryID derives the ledger entry id for a completion's approval.
func approveEntryID(completionID int64) string {
	return fmt.Sprintf("completion:%d:approve", completionID)
}

// Complete claims an occurrence for a child, creating a pending completion.
// For recurring tasks the occurrence date is validated against the rule and
// is part of the claim's identity: a second claim for the same date fails
// with ErrAlreadyCompleted unless the first was rejected.
func (l *TaskLifecycle) Complete(taskID, childID int64, occurrence time.Time) (*model.TaskCompletion, error) {
	tx, err := l.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	task, err := l.tasks.GetTx(tx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, ErrTaskNotFound
	}
	if !task.Active || task.Archived() {
		return nil, ErrTaskInactive
	}

	assigned, err := l.tasks.IsAssigned(tx, taskID, childID)
	if err != nil {
		return nil, err
	}
	if !assigned {
		return nil, ErrNotAssigned
	}

	// One-time and bucket-list tasks have a single occurrence; recurring
	// tasks claim one calendar date at a time.
	day := ""
	if task.Recurring() {
		rule, err := recurrence.Parse(task.RecurrenceRule)
		if err != nil {
			return nil, err
		}
		due, err := recurrence.IsDueOn(rule, occurrence)
		if err != nil {
			return nil, err
		}
		if !due {
			return nil, ErrNotDue
		}
		day = occurrence.Format(occurrenceFormat)
	}

	live, err := l.tasks.HasLiveCompletion(tx, taskID, childID, day)
	if err != nil {
		return nil, err
	}
	if live {
		return nil, ErrAlreadyCompleted
	}

	completion, err := l.tasks.InsertCompletion(tx, taskID, childID, task.FamilyID, day)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateOccurrence) {
			return nil, ErrAlreadyCompleted
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit completion: %w", err)
	}

	l.emit(Event{
		Kind:         EventTaskCompleted,
		FamilyID:     task.FamilyID,
		ChildID:      childID,
		TaskID:       task.ID,
		CompletionID: completion.ID,
		TaskTitle:    task.Title,
		Occurrence:   day,
		Stars:        task.StarValue,
		StarType:     task.StarType,
	})

	return completion, nil
}

// Approve freezes a pending completion as approved and credits the child's
// balance, atomically. Approving an already-approved completion is a no-op
// success that reports the balance the original approval produced.
func (l *TaskLifecycle) Approve(completionID int64) (*model.TaskCompletion, int, error) {
	tx, err := l.db.Begin()
	if err != nil {
		return nil, 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	completion, err := l.tasks.GetCompletion(tx, completionID)
	if err != nil {
		return nil, 0, err
	}
	if completion == nil {
		return nil, 0, ErrCompletionNotFound
	}

	task, err := l.tasks.GetTx(tx, completion.TaskID)
	if err != nil {
		return nil, 0, err
	}
	if task == nil {
		return nil, 0, ErrTaskNotFound
	}

	switch completion.Status {
	case model.CompletionApproved:
		// Duplicate approval, e.g. a retried request. The ledger replays
		// the entry id and hands back the original resulting balance.
		balance, err := ledger.Apply(tx, completion.ChildID, task.StarType, task.StarValue, approveEntryID(completionID))
		if err != nil {
			return nil, 0, err
		}
		return completion, balance, nil
	case model.CompletionPending:
		// Proceed.
	default:
		return nil, 0, ErrNotPending
	}

	balance, err := ledger.Apply(tx, completion.ChildID, task.StarType, task.StarValue, approveEntryID(completionID))
	if err != nil {
		return nil, 0, err
	}

	now := time.Now()
	if err := l.tasks.MarkApproved(tx, completionID, task.StarValue, now); err != nil {
		return nil, 0, err
	}

	completion, err = l.tasks.GetCompletion(tx, completionID)
	if err != nil {
		return nil, 0, err
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("commit approval: %w", err)
	}

	l.emit(Event{
		Kind:         EventTaskApproved,
		FamilyID:     completion.FamilyID,
		ChildID:      completion.ChildID,
		TaskID:       task.ID,
		CompletionID: completion.ID,
		TaskTitle:    task.Title,
		Occurrence:   completion.OccurrenceDate,
		Stars:        task.StarValue,
		StarType:     task.StarType,
		BalanceAfter: balance,
	})

	return completion, balance, nil
}

// Reject freezes a pending completion as rejected. No ledger action.
// Rejection frees the occurrence: the child may claim the same date again.
func (l *TaskLifecycle) Reject(completionID int64) (*model.TaskCompletion, error) {
	tx, err := l.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	completion, err := l.tasks.GetCompletion(tx, completionID)
	if err != nil {
		return nil, err
	}
	if completion == nil {
		return nil, ErrCompletionNotFound
	}

	switch completion.Status {
	case model.CompletionRejected:
		// Retried rejection.
		return completion, nil
	case model.CompletionPending:
		// Proceed.
	default:
		return nil, ErrNotPending
	}

	task, err := l.tasks.GetTx(tx, completion.TaskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, ErrTaskNotFound
	}

	if err := l.tasks.MarkRejected(tx, completionID, time.Now()); err != nil {
		return nil, err
	}
	completion, err = l.tasks.GetCompletion(tx, completionID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit rejection: %w", err)
	}

	l.emit(Event{
		Kind:         EventTaskRejected,
		FamilyID:     completion.FamilyID,
		ChildID:      completion.ChildID,
		TaskID:       task.ID,
		CompletionID: completion.ID,
		TaskTitle:    task.Title,
		Occurrence:   completion.OccurrenceDate,
	})

	return completion, nil
}

func (l *TaskLifecycle) emit(e Event) {
	if l.sink == nil {
		return
	}
	l.sink.Emit(e)
}
