package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wrenfield/starling/internal/model"
)

// ErrDuplicateOccurrence is returned when an insert collides with a live
// completion for the same (task, child, occurrence date).
var ErrDuplicateOccurrence = errors.New("occurrence already claimed")

type TaskStore struct {
	db *sql.DB
}

func NewTaskStore(db *sql.DB) *TaskStore {
	return &TaskStore{db: db}
}

// DB exposes the underlying handle for lifecycle transactions.
func (s *TaskStore) DB() *sql.DB {
	return s.db
}

const taskCols = `id, family_id, title, category, task_type, recurrence_rule, star_value, star_type, active, deadline, archived_at, created_at, updated_at`

func scanTask(s scanner) (*model.Task, error) {
	var t model.Task
	var active int
	var deadline, archivedAt sql.NullTime

	err := s.Scan(
		&t.ID, &t.FamilyID, &t.Title, &t.Category, &t.TaskType, &t.RecurrenceRule,
		&t.StarValue, &t.StarType, &active, &deadline, &archivedAt,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Active = active != 0
	if deadline.Valid {
		t.Deadline = &deadline.Time
	}
	if archivedAt.Valid {
		t.ArchivedAt = &archivedAt.Time
	}
	return &t, nil
}

func (s *TaskStore) Create(t *model.Task) (*model.Task, error) {
	if t.Recurring() == (t.RecurrenceRule == "") {
		return nil, fmt.Errorf("recurrence rule must be set exactly for recurring tasks")
	}
	if t.StarValue < 0 {
		return nil, fmt.Errorf("star value must be non-negative")
	}

	var active int
	if t.Active {
		active = 1
	}
	var deadline sql.NullTime
	if t.Deadline != nil {
		deadline = sql.NullTime{Time: *t.Deadline, Valid: true}
	}

	result, err := s.db.Exec(
		`INSERT INTO tasks (family_id, title, category, task_type, recurrence_rule, star_value, star_type, active, deadline)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.FamilyID, t.Title, t.Category, t.TaskType, t.RecurrenceRule, t.StarValue, t.StarType, active, deadline,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	if err := s.SetAssignments(id, t.AssignedTo); err != nil {
		return nil, err
	}
	return s.GetByID(id)
}

func (s *TaskStore) GetByID(id int64) (*model.Task, error) {
	t, err := getTask(s.db, id)
	if err != nil || t == nil {
		return t, err
	}
	assigned, err := s.Assignments(id)
	if err != nil {
		return nil, err
	}
	t.AssignedTo = assigned
	return t, nil
}

// getTask is the tx-composable lookup used inside lifecycle transactions;
// it does not load assignments.
func getTask(q querier, id int64) (*model.Task, error) {
	row := q.QueryRow(`SELECT `+taskCols+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// GetTx looks a task up inside a caller transaction.
func (s *TaskStore) GetTx(q querier, id int64) (*model.Task, error) {
	if q == nil {
		q = s.db
	}
	return getTask(q, id)
}

func (s *TaskStore) List(familyID int64, includeArchived bool) ([]model.Task, error) {
	query := `SELECT ` + taskCols + ` FROM tasks WHERE family_id = ?`
	if !includeArchived {
		query += ` AND archived_at IS NULL`
	}
	query += ` ORDER BY title ASC`

	rows, err := s.db.Query(query, familyID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()
	return s.collectTasks(rows)
}

// ListForChild returns unarchived tasks assigned to a child.
func (s *TaskStore) ListForChild(childID int64) ([]model.Task, error) {
	rows, err := s.db.Query(
		`SELECT `+taskCols+` FROM tasks
		 WHERE archived_at IS NULL
		   AND id IN (SELECT task_id FROM task_assignments WHERE child_id = ?)
		 ORDER BY title ASC`,
		childID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks for child: %w", err)
	}
	defer rows.Close()
	return s.collectTasks(rows)
}

func (s *TaskStore) collectTasks(rows *sql.Rows) ([]model.Task, error) {
	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range tasks {
		assigned, err := s.Assignments(tasks[i].ID)
		if err != nil {
			return nil, err
		}
		tasks[i].AssignedTo = assigned
	}
	return tasks, nil
}

func (s *TaskStore) Update(t *model.Task) (*model.Task, error) {
	if t.Recurring() == (t.RecurrenceRule == "") {
		return nil, fmt.Errorf("recurrence rule must be set exactly for recurring tasks")
	}

	var active int
	if t.Active {
		active = 1
	}
	var deadline sql.NullTime
	if t.Deadline != nil {
		deadline = sql.NullTime{Time: *t.Deadline, Valid: true}
	}

	_, err := s.db.Exec(
		`UPDATE tasks SET title = ?, category = ?, task_type = ?, recurrence_rule = ?,
		 star_value = ?, star_type = ?, active = ?, deadline = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		t.Title, t.Category, t.TaskType, t.RecurrenceRule, t.StarValue, t.StarType, active, deadline, t.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	if err := s.SetAssignments(t.ID, t.AssignedTo); err != nil {
		return nil, err
	}
	return s.GetByID(t.ID)
}

// Archive soft-deletes a task. Completions keep referencing it, so the row
// is never physically removed.
func (s *TaskStore) Archive(id int64) error {
	_, err := s.db.Exec(
		`UPDATE tasks SET archived_at = CURRENT_TIMESTAMP, active = 0, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND archived_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("archive task: %w", err)
	}
	return nil
}

// --- Assignment methods ---

func (s *TaskStore) Assignments(taskID int64) ([]int64, error) {
	rows, err := s.db.Query(
		`SELECT child_id FROM task_assignments WHERE task_id = ? ORDER BY child_id ASC`, taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *TaskStore) SetAssignments(taskID int64, childIDs []int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM task_assignments WHERE task_id = ?`, taskID); err != nil {
		return fmt.Errorf("clear assignments: %w", err)
	}
	for _, childID := range childIDs {
		if _, err := tx.Exec(
			`INSERT OR IGNORE INTO task_assignments (task_id, child_id) VALUES (?, ?)`,
			taskID, childID,
		); err != nil {
			return fmt.Errorf("insert assignment: %w", err)
		}
	}
	return tx.Commit()
}

// IsAssigned reports whether a child is assigned to a task.
func (s *TaskStore) IsAssigned(q querier, taskID, childID int64) (bool, error) {
	if q == nil {
		q = s.db
	}
	var n int
	err := q.QueryRow(
		`SELECT COUNT(*) FROM task_assignments WHERE task_id = ? AND child_id = ?`,
		taskID, childID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check assignment: %w", err)
	}
	return n > 0, nil
}

// --- Completion methods ---

const completionCols = `id, task_id, child_id, family_id, occurrence_date, status, stars_awarded, completed_at, approved_at, rejected_at`

func scanCompletion(s scanner) (*model.TaskCompletion, error) {
	var c model.TaskCompletion
	var stars sql.NullInt64
	var approvedAt, rejectedAt sql.NullTime

	err := s.Scan(
		&c.ID, &c.TaskID, &c.ChildID, &c.FamilyID, &c.OccurrenceDate,
		&c.Status, &stars, &c.CompletedAt, &approvedAt, &rejectedAt,
	)
	if err != nil {
		return nil, err
	}

	if stars.Valid {
		n := int(stars.Int64)
		c.StarsAwarded = &n
	}
	if approvedAt.Valid {
		c.ApprovedAt = &approvedAt.Time
	}
	if rejectedAt.Valid {
		c.RejectedAt = &rejectedAt.Time
	}
	return &c, nil
}

// InsertCompletion creates a pending completion inside a caller transaction.
// The partial unique index on live occurrences turns concurrent duplicate
// claims into ErrDuplicateOccurrence for every claimer but one.
func (s *TaskStore) InsertCompletion(q querier, taskID, childID, familyID int64, occurrenceDate string) (*model.TaskCompletion, error) {
	if q == nil {
		q = s.db
	}
	result, err := q.Exec(
		`INSERT INTO task_completions (task_id, child_id, family_id, occurrence_date, status)
		 VALUES (?, ?, ?, ?, ?)`,
		taskID, childID, familyID, occurrenceDate, model.CompletionPending,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, ErrDuplicateOccurrence
		}
		return nil, fmt.Errorf("insert completion: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetCompletion(q, id)
}

func (s *TaskStore) GetCompletion(q querier, id int64) (*model.TaskCompletion, error) {
	if q == nil {
		q = s.db
	}
	row := q.QueryRow(`SELECT `+completionCols+` FROM task_completions WHERE id = ?`, id)
	c, err := scanCompletion(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get completion: %w", err)
	}
	return c, nil
}

// HasLiveCompletion reports whether a non-rejected completion exists for the
// occurrence.
func (s *TaskStore) HasLiveCompletion(q querier, taskID, childID int64, occurrenceDate string) (bool, error) {
	if q == nil {
		q = s.db
	}
	var n int
	err := q.QueryRow(
		`SELECT COUNT(*) FROM task_completions
		 WHERE task_id = ? AND child_id = ? AND occurrence_date = ? AND status != ?`,
		taskID, childID, occurrenceDate, model.CompletionRejected,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check occurrence: %w", err)
	}
	return n > 0, nil
}

// MarkApproved freezes a completion as approved with its awarded stars.
func (s *TaskStore) MarkApproved(q querier, id int64, starsAwarded int, at time.Time) error {
	if q == nil {
		q = s.db
	}
	_, err := q.Exec(
		`UPDATE task_completions SET status = ?, stars_awarded = ?, approved_at = ? WHERE id = ?`,
		model.CompletionApproved, starsAwarded, at.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("approve completion: %w", err)
	}
	return nil
}

// MarkRejected freezes a completion as rejected.
func (s *TaskStore) MarkRejected(q querier, id int64, at time.Time) error {
	if q == nil {
		q = s.db
	}
	_, err := q.Exec(
		`UPDATE task_completions SET status = ?, rejected_at = ? WHERE id = ?`,
		model.CompletionRejected, at.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("reject completion: %w", err)
	}
	return nil
}

// ListCompletions returns a family's completions, optionally filtered by
// status, newest first.
func (s *TaskStore) ListCompletions(familyID int64, status string) ([]model.TaskCompletion, error) {
	query := `SELECT ` + completionCols + ` FROM task_completions WHERE family_id = ?`
	args := []any{familyID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY completed_at DESC, id DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list completions: %w", err)
	}
	defer rows.Close()

	var completions []model.TaskCompletion
	for rows.Next() {
		c, err := scanCompletion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan completion: %w", err)
		}
		completions = append(completions, *c)
	}
	return completions, rows.Err()
}

// LatestCompletion returns a child's most recent completion of a task, or
// nil if none exists.
func (s *TaskStore) LatestCompletion(taskID, childID int64) (*model.TaskCompletion, error) {
	row := s.db.QueryRow(
		`SELECT `+completionCols+` FROM task_completions
		 WHERE task_id = ? AND child_id = ? ORDER BY completed_at DESC, id DESC LIMIT 1`,
		taskID, childID,
	)
	c, err := scanCompletion(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest completion: %w", err)
	}
	return c, nil
}
