package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wrenfield/starling/internal/model"
	"github.com/wrenfield/starling/internal/recurrence"
	"github.com/wrenfield/starling/internal/store"
)

// Scheduler sends a daily due-task reminder to each child with open tasks.
type Scheduler struct {
	mu       sync.RWMutex
	service  *Service
	push     *store.PushStore
	tasks    *store.TaskStore
	families *store.FamilyStore
	logger   *slog.Logger
	interval time.Duration
	hour     int // local hour the daily reminder fires
	cancel   context.CancelFunc
	done     chan struct{}

	sentMu sync.Mutex
	sent   map[int64]string // member id -> last reminded date
}

// NewScheduler creates a reminder scheduler. reminderHour is the local hour
// (0-23) at which the daily reminder fires.
func NewScheduler(svc *Service, pushStore *store.PushStore, taskStore *store.TaskStore, familyStore *store.FamilyStore, reminderHour int, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		service:  svc,
		push:     pushStore,
		tasks:    taskStore,
		families: familyStore,
		logger:   logger.With("component", "push_scheduler"),
		interval: 60 * time.Second,
		hour:     reminderHour,
		sent:     make(map[int64]string),
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(time.Now())
			}
		}
	}()
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (s *Scheduler) tick(now time.Time) {
	if now.Hour() != s.hour {
		return
	}

	familyIDs, err := s.families.ListFamilyIDs()
	if err != nil {
		s.logger.Error("list families", "error", err)
		return
	}
	for _, fid := range familyIDs {
		s.remindFamily(fid, now)
	}
}

func (s *Scheduler) remindFamily(familyID int64, now time.Time) {
	children, err := s.families.ListChildren(familyID)
	if err != nil {
		s.logger.Error("list children", "family_id", familyID, "error", err)
		return
	}

	day := now.Format("2006-01-02")
	for _, child := range children {
		if s.alreadySent(child.ID, day) {
			continue
		}
		due, err := s.dueCount(child.ID, now, day)
		if err != nil {
			s.logger.Error("count due tasks", "child_id", child.ID, "error", err)
			continue
		}
		if due == 0 {
			s.markSent(child.ID, day)
			continue
		}
		s.sendReminder(&child, due, day)
	}
}

// dueCount counts the child's tasks due today that have no live completion.
func (s *Scheduler) dueCount(childID int64, now time.Time, day string) (int, error) {
	tasks, err := s.tasks.ListForChild(childID)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, task := range tasks {
		if !task.Active {
			continue
		}
		occurrence := day
		if task.Recurring() {
			rule, err := recurrence.Parse(task.RecurrenceRule)
			if err != nil {
				continue
			}
			dueToday, err := recurrence.IsDueOn(rule, now)
			if err != nil || !dueToday {
				continue
			}
		} else {
			occurrence = ""
		}
		claimed, err := s.tasks.HasLiveCompletion(nil, task.ID, childID, occurrence)
		if err != nil {
			return 0, err
		}
		if !claimed {
			count++
		}
	}
	return count, nil
}

func (s *Scheduler) sendReminder(child *model.FamilyMember, due int, day string) {
	subs, err := s.push.ListByMember(child.ID)
	if err != nil {
		s.logger.Error("list subscriptions", "member_id", child.ID, "error", err)
		return
	}

	body := fmt.Sprintf("You have %d tasks to do today", due)
	if due == 1 {
		body = "You have 1 task to do today"
	}
	payload := Payload{
		Title: "Tasks due today",
		Body:  body,
		URL:   "/tasks",
		Tag:   "task-due-" + day,
	}

	for _, sub := range subs {
		enabled, err := s.push.PreferenceEnabled(child.ID, model.NotifTaskDue)
		if err != nil || !enabled {
			continue
		}
		if err := s.service.Send(&sub, payload); err != nil {
			if errors.Is(err, ErrExpired) {
				s.push.DeleteByEndpoint(sub.Endpoint)
			} else {
				s.logger.Error("send reminder", "member_id", child.ID, "error", err)
			}
		}
	}
	s.markSent(child.ID, day)
}

func (s *Scheduler) alreadySent(memberID int64, day string) bool {
	s.sentMu.Lock()
	defer s.sentMu.Unlock()
	return s.sent[memberID] == day
}

func (s *Scheduler) markSent(memberID int64, day string) {
	s.sentMu.Lock()
	defer s.sentMu.Unlock()
	s.sent[memberID] = day
}
