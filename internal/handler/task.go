package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/wrenfield/starling/internal/auth"
	"github.com/wrenfield/starling/internal/lifecycle"
	"github.com/wrenfield/starling/internal/model"
	"github.com/wrenfield/starling/internal/recurrence"
	"github.com/wrenfield/starling/internal/store"
)

type TaskHandler struct {
	tasks     *store.TaskStore
	lifecycle *lifecycle.TaskLifecycle
	logger    *slog.Logger
}

func NewTaskHandler(tasks *store.TaskStore, lc *lifecycle.TaskLifecycle, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{tasks: tasks, lifecycle: lc, logger: logger}
}

type taskRequest struct {
	Title          string     `json:"title"`
	Category       string     `json:"category"`
	TaskType       string     `json:"task_type"`
	RecurrenceRule string     `json:"recurrence_rule"`
	StarValue      int        `json:"star_value"`
	StarType       string     `json:"star_type"`
	AssignedTo     []int64    `json:"assigned_to"`
	Deadline       *time.Time `json:"deadline"`
}

func (req *taskRequest) validate() string {
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return "title is required"
	}
	switch req.TaskType {
	case model.TaskOneTime, model.TaskBucketList:
		if req.RecurrenceRule != "" {
			return "recurrence_rule is only valid for recurring tasks"
		}
	case model.TaskRecurring:
		if _, err := recurrence.Parse(req.RecurrenceRule); err != nil {
			return "invalid recurrence_rule"
		}
	default:
		return "task_type must be one_time, recurring, or bucket_list"
	}
	if req.StarValue < 0 {
		return "star_value must be >= 0"
	}
	if req.StarType == "" {
		req.StarType = model.StarTypeGrowth
	}
	return ""
}

// Create handles POST /api/tasks
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if msg := req.validate(); msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}

	task, err := h.tasks.Create(&model.Task{
		FamilyID:       auth.FamilyID(r.Context()),
		Title:          req.Title,
		Category:       req.Category,
		TaskType:       req.TaskType,
		RecurrenceRule: req.RecurrenceRule,
		StarValue:      req.StarValue,
		StarType:       req.StarType,
		Active:         true,
		Deadline:       req.Deadline,
		AssignedTo:     req.AssignedTo,
	})
	if err != nil {
		h.logger.Error("create task", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create task"})
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

// List handles GET /api/tasks
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	includeArchived := r.URL.Query().Get("archived") == "true"
	tasks, err := h.tasks.List(auth.FamilyID(r.Context()), includeArchived)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list tasks"})
		return
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// Get handles GET /api/tasks/{id}
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	task := h.taskInFamily(w, r)
	if task == nil {
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// Update handles PUT /api/tasks/{id}
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	task := h.taskInFamily(w, r)
	if task == nil {
		return
	}

	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if msg := req.validate(); msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}

	task.Title = req.Title
	task.Category = req.Category
	task.TaskType = req.TaskType
	task.RecurrenceRule = req.RecurrenceRule
	task.StarValue = req.StarValue
	task.StarType = req.StarType
	task.Deadline = req.Deadline
	task.AssignedTo = req.AssignedTo

	updated, err := h.tasks.Update(task)
	if err != nil {
		h.logger.Error("update task", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update task"})
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Archive handles DELETE /api/tasks/{id}. Tasks are soft-deleted so
// approved history keeps its reference.
func (h *TaskHandler) Archive(w http.ResponseWriter, r *http.Request) {
	task := h.taskInFamily(w, r)
	if task == nil {
		return
	}

	if err := h.tasks.Archive(task.ID); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to archive task"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type completeRequest struct {
	ChildID    int64  `json:"child_id"`
	OccurredOn string `json:"occurred_on"`
}

// Complete handles POST /api/tasks/{id}/complete. The optional occurred_on
// is the client's calendar date for the occurrence; it defaults to the
// server's current date.
func (h *TaskHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		req = completeRequest{}
	}

	occurrence := time.Now()
	if req.OccurredOn != "" {
		occurrence, err = time.Parse("2006-01-02", req.OccurredOn)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "occurred_on must be YYYY-MM-DD"})
			return
		}
	}

	childID := auth.MemberID(r.Context())
	if auth.IsParent(r.Context()) && req.ChildID != 0 {
		// Parents may complete on a child's behalf.
		childID = req.ChildID
	}

	completion, err := h.lifecycle.Complete(id, childID, occurrence)
	if err != nil {
		h.writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, completion)
}

// Approve handles POST /api/completions/{id}/approve
func (h *TaskHandler) Approve(w http.ResponseWriter, r *http.Request) {
	pending := h.completionInFamily(w, r)
	if pending == nil {
		return
	}

	completion, balance, err := h.lifecycle.Approve(pending.ID)
	if err != nil {
		h.writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"completion": completion,
		"balance":    balance,
	})
}

// Reject handles POST /api/completions/{id}/reject
func (h *TaskHandler) Reject(w http.ResponseWriter, r *http.Request) {
	pending := h.completionInFamily(w, r)
	if pending == nil {
		return
	}

	completion, err := h.lifecycle.Reject(pending.ID)
	if err != nil {
		h.writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, completion)
}

// ListCompletions handles GET /api/completions?status=pending_approval
func (h *TaskHandler) ListCompletions(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	completions, err := h.tasks.ListCompletions(auth.FamilyID(r.Context()), status)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list completions"})
		return
	}
	if completions == nil {
		completions = []model.TaskCompletion{}
	}
	writeJSON(w, http.StatusOK, completions)
}

func (h *TaskHandler) taskInFamily(w http.ResponseWriter, r *http.Request) *model.Task {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return nil
	}
	task, err := h.tasks.GetByID(id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get task"})
		return nil
	}
	if task == nil || task.FamilyID != auth.FamilyID(r.Context()) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
		return nil
	}
	return task
}

// completionInFamily resolves {id} to a completion owned by the caller's
// family. Cross-family ids look like missing ones.
func (h *TaskHandler) completionInFamily(w http.ResponseWriter, r *http.Request) *model.TaskCompletion {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return nil
	}
	completion, err := h.tasks.GetCompletion(nil, id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get completion"})
		return nil
	}
	if completion == nil || completion.FamilyID != auth.FamilyID(r.Context()) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "completion not found"})
		return nil
	}
	return completion
}

func (h *TaskHandler) writeLifecycleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, lifecycle.ErrTaskNotFound), errors.Is(err, lifecycle.ErrCompletionNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, lifecycle.ErrAlreadyCompleted), errors.Is(err, lifecycle.ErrNotPending):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, lifecycle.ErrTaskInactive), errors.Is(err, lifecycle.ErrNotAssigned), errors.Is(err, lifecycle.ErrNotDue):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	case errors.Is(err, recurrence.ErrInvalidRule):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	default:
		h.logger.Error("lifecycle operation", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "operation failed"})
	}
}
