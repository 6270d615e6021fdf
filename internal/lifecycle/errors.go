package lifecycle

import "errors"

var (
	// ErrAlreadyCompleted means a live completion already claims the
	// (task, child, occurrence date) triple.
	ErrAlreadyCompleted = errors.New("occurrence already completed")

	// ErrNotPending means the completion or request has already been
	// resolved and cannot transition again.
	ErrNotPending = errors.New("not pending")

	ErrTaskNotFound       = errors.New("task not found")
	ErrCompletionNotFound = errors.New("completion not found")
	ErrRewardNotFound     = errors.New("reward not found")
	ErrRequestNotFound    = errors.New("request not found")

	// ErrTaskInactive covers archived and deactivated tasks.
	ErrTaskInactive = errors.New("task is not active")

	// ErrNotAssigned means the child is not on the task's assignment list.
	ErrNotAssigned = errors.New("task not assigned to child")

	// ErrNotDue means the recurrence rule does not make the task due on
	// the claimed occurrence date.
	ErrNotDue = errors.New("task not due on date")
)
