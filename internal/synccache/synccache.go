// Package synccache serves the offline-first client surface: a read-through
// snapshot of family state that stays usable while disconnected, and replay
// of operations the client queued offline.
package synccache

import (
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/wrenfield/starling/internal/ledger"
	"github.com/wrenfield/starling/internal/model"
	"github.com/wrenfield/starling/internal/recurrence"
	"github.com/wrenfield/starling/internal/store"
)

// Snapshot is everything a client caches for offline use: the family
// roster, per-child balances, and the tasks due on the snapshot date.
type Snapshot struct {
	Family   *model.Family                 `json:"family"`
	Members  []model.FamilyMember          `json:"members"`
	Balances map[int64][]model.StarBalance `json:"balances"`
	DueTasks map[int64][]model.Task        `json:"due_tasks"`
	TakenAt  time.Time                     `json:"taken_at"`
}

// Cache builds family snapshots with a short TTL. Concurrent requests for
// the same family collapse into one build.
type Cache struct {
	families *store.FamilyStore
	tasks    *store.TaskStore
	ledger   *ledger.StarLedger
	ttl      time.Duration
	logger   *slog.Logger

	group singleflight.Group

	mu    sync.RWMutex
	snaps map[int64]*Snapshot
}

func NewCache(families *store.FamilyStore, tasks *store.TaskStore, starLedger *ledger.StarLedger, ttl time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		families: families,
		tasks:    tasks,
		ledger:   starLedger,
		ttl:      ttl,
		logger:   logger.With("component", "synccache"),
		snaps:    make(map[int64]*Snapshot),
	}
}

// Snapshot returns the family's snapshot, rebuilding it when stale.
func (c *Cache) Snapshot(familyID int64) (*Snapshot, error) {
	c.mu.RLock()
	snap, ok := c.snaps[familyID]
	c.mu.RUnlock()
	if ok && time.Since(snap.TakenAt) < c.ttl {
		return snap, nil
	}

	v, err, _ := c.group.Do(strconv.FormatInt(familyID, 10), func() (any, error) {
		snap, err := c.build(familyID, time.Now())
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.snaps[familyID] = snap
		c.mu.Unlock()
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

// Invalidate drops the cached snapshot so the next read rebuilds.
func (c *Cache) Invalidate(familyID int64) {
	c.mu.Lock()
	delete(c.snaps, familyID)
	c.mu.Unlock()
}

func (c *Cache) build(familyID int64, now time.Time) (*Snapshot, error) {
	family, err := c.families.GetFamily(familyID)
	if err != nil {
		return nil, err
	}

	members, err := c.families.ListMembers(familyID)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Family:   family,
		Members:  members,
		Balances: make(map[int64][]model.StarBalance),
		DueTasks: make(map[int64][]model.Task),
		TakenAt:  now,
	}

	for _, m := range members {
		if m.IsParent() {
			continue
		}
		balances, err := c.ledger.Balances(m.ID)
		if err != nil {
			return nil, err
		}
		snap.Balances[m.ID] = balances

		due, err := c.dueTasks(m.ID, now)
		if err != nil {
			return nil, err
		}
		snap.DueTasks[m.ID] = due
	}
	return snap, nil
}

// dueTasks returns the child's tasks due on the reference date. Tasks with
// a rule that fails to parse are skipped rather than failing the snapshot.
func (c *Cache) dueTasks(childID int64, now time.Time) ([]model.Task, error) {
	tasks, err := c.tasks.ListForChild(childID)
	if err != nil {
		return nil, err
	}

	due := make([]model.Task, 0, len(tasks))
	for _, task := range tasks {
		if !task.Active {
			continue
		}
		if !task.Recurring() {
			due = append(due, task)
			continue
		}
		rule, err := recurrence.Parse(task.RecurrenceRule)
		if err != nil {
			c.logger.Warn("skip task with bad rule", "task_id", task.ID, "error", err)
			continue
		}
		ok, err := recurrence.IsDueOn(rule, now)
		if err != nil {
			continue
		}
		if ok {
			due = append(due, task)
		}
	}
	return due, nil
}
