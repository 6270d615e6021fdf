package synccache

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/wrenfield/starling/internal/ledger"
	"github.com/wrenfield/starling/internal/lifecycle"
	"github.com/wrenfield/starling/internal/model"
	"github.com/wrenfield/starling/internal/store"
)

// Op kinds a client may queue while offline.
const (
	OpCompleteTask  = "complete_task"
	OpRequestReward = "request_reward"
)

// Op is one operation queued offline, identified by a client-generated
// UUID so replaying the same queue twice cannot double-apply.
type Op struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	ChildID    int64     `json:"child_id"`
	TaskID     int64     `json:"task_id,omitempty"`
	RewardID   int64     `json:"reward_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Result is the reconciled outcome of one replayed op.
type Result struct {
	OpID   string `json:"op_id"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Replayer applies queued offline ops through the normal lifecycles.
type Replayer struct {
	ops      *store.SyncOpStore
	tasks    *lifecycle.TaskLifecycle
	redeems  *lifecycle.RedemptionLifecycle
	cache    *Cache
}

func NewReplayer(ops *store.SyncOpStore, tasks *lifecycle.TaskLifecycle, redeems *lifecycle.RedemptionLifecycle, cache *Cache) *Replayer {
	return &Replayer{ops: ops, tasks: tasks, redeems: redeems, cache: cache}
}

// Replay applies the queue in order. Ops already seen report their recorded
// outcome; duplicate occurrence claims reconcile as already applied rather
// than failing the whole queue. A malformed op id rejects only that op.
func (r *Replayer) Replay(familyID int64, queue []Op) ([]Result, error) {
	results := make([]Result, 0, len(queue))
	mutated := false

	for _, op := range queue {
		res := r.replayOne(op, &mutated)
		results = append(results, res)
	}

	if mutated && r.cache != nil {
		r.cache.Invalidate(familyID)
	}
	return results, nil
}

func (r *Replayer) replayOne(op Op, mutated *bool) Result {
	if _, err := uuid.Parse(op.ID); err != nil {
		return Result{OpID: op.ID, Status: model.SyncRejected, Detail: "malformed op id"}
	}

	if seen, err := r.ops.Get(op.ID); err != nil {
		return Result{OpID: op.ID, Status: model.SyncRejected, Detail: err.Error()}
	} else if seen != nil {
		return Result{OpID: op.ID, Status: seen.Status, Detail: seen.Detail}
	}

	status, detail := r.apply(op)
	if status == model.SyncApplied {
		*mutated = true
	}
	if err := r.ops.Record(op.ID, op.ChildID, op.Kind, status, detail); err != nil {
		return Result{OpID: op.ID, Status: model.SyncRejected, Detail: err.Error()}
	}
	return Result{OpID: op.ID, Status: status, Detail: detail}
}

func (r *Replayer) apply(op Op) (status, detail string) {
	switch op.Kind {
	case OpCompleteTask:
		occurred := op.OccurredAt
		if occurred.IsZero() {
			occurred = time.Now()
		}
		_, err := r.tasks.Complete(op.TaskID, op.ChildID, occurred)
		if errors.Is(err, lifecycle.ErrAlreadyCompleted) {
			return model.SyncAlreadyApplied, ""
		}
		if err != nil {
			return model.SyncRejected, err.Error()
		}
		return model.SyncApplied, ""
	case OpRequestReward:
		_, err := r.redeems.Request(op.RewardID, op.ChildID)
		if errors.Is(err, ledger.ErrInsufficientStars) {
			return model.SyncRejected, model.ReasonInsufficientFunds
		}
		if err != nil {
			return model.SyncRejected, err.Error()
		}
		return model.SyncApplied, ""
	default:
		return model.SyncRejected, "unknown op kind"
	}
}
