package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/wrenfield/starling/internal/auth"
	"github.com/wrenfield/starling/internal/database"
	"github.com/wrenfield/starling/internal/lifecycle"
	"github.com/wrenfield/starling/internal/model"
	"github.com/wrenfield/starling/internal/store"
)

type testFamily struct {
	id       int64
	parentID int64
	childID  int64
}

func (f testFamily) parent() auth.AuthContext {
	return auth.AuthContext{MemberID: f.parentID, FamilyID: f.id, Role: model.RoleParent}
}

func (f testFamily) child() auth.AuthContext {
	return auth.AuthContext{MemberID: f.childID, FamilyID: f.id, Role: model.RoleChild}
}

type handlerEnv struct {
	tasks       *TaskHandler
	rewards     *RewardHandler
	taskStore   *store.TaskStore
	rewardStore *store.RewardStore
	taskLC      *lifecycle.TaskLifecycle
	redeemLC    *lifecycle.RedemptionLifecycle
	famA        testFamily
	famB        testFamily
}

func setupHandlers(t *testing.T) *handlerEnv {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	families := store.NewFamilyStore(db)
	newFamily := func(name, parent, child string) testFamily {
		fam, err := families.CreateFamily(name)
		if err != nil {
			t.Fatalf("create family: %v", err)
		}
		p, err := families.CreateMember(fam.ID, parent, model.RoleParent, "", "")
		if err != nil {
			t.Fatalf("create parent: %v", err)
		}
		c, err := families.CreateMember(fam.ID, child, model.RoleChild, "", "")
		if err != nil {
			t.Fatalf("create child: %v", err)
		}
		return testFamily{id: fam.ID, parentID: p.ID, childID: c.ID}
	}

	tasks := store.NewTaskStore(db)
	rewards := store.NewRewardStore(db)
	settings := store.NewSettingsStore(db)
	taskLC := lifecycle.NewTaskLifecycle(db, tasks, nil, nil)
	redeemLC := lifecycle.NewRedemptionLifecycle(db, rewards, lifecycle.NewThresholdPolicy(settings), nil, nil)
	logger := slog.Default()

	return &handlerEnv{
		tasks:       NewTaskHandler(tasks, taskLC, logger),
		rewards:     NewRewardHandler(rewards, redeemLC, logger),
		taskStore:   tasks,
		rewardStore: rewards,
		taskLC:      taskLC,
		redeemLC:    redeemLC,
		famA:        newFamily("Wren", "Pat", "Sam"),
		famB:        newFamily("Finch", "Lee", "Kim"),
	}
}

// pendingCompletion creates a task in the family and claims today's
// occurrence for the child, leaving it pending approval.
func (e *handlerEnv) pendingCompletion(t *testing.T, fam testFamily) *model.TaskCompletion {
	t.Helper()
	task, err := e.taskStore.Create(&model.Task{
		FamilyID:       fam.id,
		Title:          "Feed the cat",
		TaskType:       model.TaskRecurring,
		RecurrenceRule: "FREQ=DAILY",
		StarValue:      5,
		StarType:       model.StarTypeGrowth,
		Active:         true,
		AssignedTo:     []int64{fam.childID},
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	completion, err := e.taskLC.Complete(task.ID, fam.childID, time.Now())
	if err != nil {
		t.Fatalf("complete task: %v", err)
	}
	return completion
}

// pendingRequest creates a reward in the family and a pending redemption
// request from the child.
func (e *handlerEnv) pendingRequest(t *testing.T, fam testFamily) (*model.Reward, *model.RewardRequest) {
	t.Helper()
	reward, err := e.rewardStore.Create(fam.id, "Movie night", "", 20, model.StarTypeGrowth, true)
	if err != nil {
		t.Fatalf("create reward: %v", err)
	}
	request, err := e.redeemLC.Request(reward.ID, fam.childID)
	if err != nil {
		t.Fatalf("request redemption: %v", err)
	}
	return reward, request
}

func callWithID(h http.HandlerFunc, id int64, ac auth.AuthContext) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.SetPathValue("id", strconv.FormatInt(id, 10))
	r = r.WithContext(auth.WithAuth(r.Context(), ac))
	w := httptest.NewRecorder()
	h(w, r)
	return w
}

func TestCompleteHonorsClientDate(t *testing.T) {
	e := setupHandlers(t)
	task, err := e.taskStore.Create(&model.Task{
		FamilyID:       e.famA.id,
		Title:          "Feed the cat",
		TaskType:       model.TaskRecurring,
		RecurrenceRule: "FREQ=DAILY",
		StarValue:      5,
		StarType:       model.StarTypeGrowth,
		Active:         true,
		AssignedTo:     []int64{e.famA.childID},
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	yesterday := time.Now().AddDate(0, 0, -1).Format("2006-01-02")
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"occurred_on":"`+yesterday+`"}`))
	r.SetPathValue("id", strconv.FormatInt(task.ID, 10))
	r = r.WithContext(auth.WithAuth(r.Context(), e.famA.child()))
	w := httptest.NewRecorder()
	e.tasks.Complete(w, r)

	if w.Code != http.StatusCreated {
		t.Fatalf("complete status = %d, want %d: %s", w.Code, http.StatusCreated, w.Body.String())
	}
	var completion model.TaskCompletion
	if err := json.Unmarshal(w.Body.Bytes(), &completion); err != nil {
		t.Fatalf("decode completion: %v", err)
	}
	if completion.OccurrenceDate != yesterday {
		t.Errorf("occurrence_date = %q, want %q", completion.OccurrenceDate, yesterday)
	}

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"occurred_on":"not-a-date"}`))
	r.SetPathValue("id", strconv.FormatInt(task.ID, 10))
	r = r.WithContext(auth.WithAuth(r.Context(), e.famA.child()))
	w = httptest.NewRecorder()
	e.tasks.Complete(w, r)
	if w.Code != http.StatusBadRequest {
		t.Errorf("malformed occurred_on status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestApproveCompletionScopedToFamily(t *testing.T) {
	e := setupHandlers(t)
	completion := e.pendingCompletion(t, e.famA)

	w := callWithID(e.tasks.Approve, completion.ID, e.famB.parent())
	if w.Code != http.StatusNotFound {
		t.Fatalf("cross-family approve status = %d, want %d", w.Code, http.StatusNotFound)
	}
	got, err := e.taskStore.GetCompletion(nil, completion.ID)
	if err != nil {
		t.Fatalf("get completion: %v", err)
	}
	if got.Status != model.CompletionPending {
		t.Errorf("completion status = %q, want still %q", got.Status, model.CompletionPending)
	}

	w = callWithID(e.tasks.Approve, completion.ID, e.famA.parent())
	if w.Code != http.StatusOK {
		t.Fatalf("own-family approve status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRejectCompletionScopedToFamily(t *testing.T) {
	e := setupHandlers(t)
	completion := e.pendingCompletion(t, e.famA)

	w := callWithID(e.tasks.Reject, completion.ID, e.famB.parent())
	if w.Code != http.StatusNotFound {
		t.Fatalf("cross-family reject status = %d, want %d", w.Code, http.StatusNotFound)
	}
	got, err := e.taskStore.GetCompletion(nil, completion.ID)
	if err != nil {
		t.Fatalf("get completion: %v", err)
	}
	if got.Status != model.CompletionPending {
		t.Errorf("completion status = %q, want still %q", got.Status, model.CompletionPending)
	}
}

func TestRewardRequestResolutionScopedToFamily(t *testing.T) {
	e := setupHandlers(t)
	_, request := e.pendingRequest(t, e.famA)

	if w := callWithID(e.rewards.Approve, request.ID, e.famB.parent()); w.Code != http.StatusNotFound {
		t.Fatalf("cross-family approve status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if w := callWithID(e.rewards.Reject, request.ID, e.famB.parent()); w.Code != http.StatusNotFound {
		t.Fatalf("cross-family reject status = %d, want %d", w.Code, http.StatusNotFound)
	}

	got, err := e.rewardStore.GetRequest(nil, request.ID)
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	if got.Status != model.RequestPending {
		t.Errorf("request status = %q, want still %q", got.Status, model.RequestPending)
	}
}

func TestRedeemScopedToFamily(t *testing.T) {
	e := setupHandlers(t)
	reward, err := e.rewardStore.Create(e.famA.id, "Movie night", "", 20, model.StarTypeGrowth, true)
	if err != nil {
		t.Fatalf("create reward: %v", err)
	}

	if w := callWithID(e.rewards.Redeem, reward.ID, e.famB.child()); w.Code != http.StatusNotFound {
		t.Fatalf("cross-family redeem status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if w := callWithID(e.rewards.Redeem, reward.ID, e.famA.child()); w.Code != http.StatusCreated {
		t.Fatalf("own-family redeem status = %d, want %d", w.Code, http.StatusCreated)
	}
}
