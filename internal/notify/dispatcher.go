// Package notify turns committed lifecycle transitions into notification
// records for the opposing party, plus best-effort real-time and web push
// delivery. Failures here are logged and never surface to the lifecycle
// caller.
package notify

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/wrenfield/starling/internal/lifecycle"
	"github.com/wrenfield/starling/internal/model"
	"github.com/wrenfield/starling/internal/push"
	"github.com/wrenfield/starling/internal/store"
	"github.com/wrenfield/starling/internal/websocket"
)

// Pusher sends a web push payload to one subscription.
type Pusher interface {
	Send(sub *model.PushSubscription, payload push.Payload) error
}

// Dispatcher implements lifecycle.Sink. Each event produces one in-app
// notification per recipient, an unread-count push over WebSocket, and a
// web push to subscriptions whose owner has the kind enabled.
type Dispatcher struct {
	notifications *store.NotificationStore
	pushes        *store.PushStore
	families      *store.FamilyStore
	pusher        Pusher // nil disables web push
	hub           *websocket.Hub
	logger        *slog.Logger
}

func NewDispatcher(notifications *store.NotificationStore, pushes *store.PushStore, families *store.FamilyStore, pusher Pusher, hub *websocket.Hub, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		notifications: notifications,
		pushes:        pushes,
		families:      families,
		pusher:        pusher,
		hub:           hub,
		logger:        logger.With("component", "dispatcher"),
	}
}

// Emit routes one committed transition. It never returns an error; the
// transition is already durable and delivery is best-effort.
func (d *Dispatcher) Emit(e lifecycle.Event) {
	recipients, err := d.recipients(e)
	if err != nil {
		d.logger.Error("resolve recipients", "kind", e.Kind, "family_id", e.FamilyID, "error", err)
		return
	}

	kind, title, message := render(e)
	if kind == "" {
		d.logger.Warn("unknown event kind", "kind", e.Kind)
		return
	}

	for _, recipientID := range recipients {
		n := &model.Notification{
			RecipientID: recipientID,
			FamilyID:    e.FamilyID,
			Kind:        kind,
			Title:       title,
			Message:     message,
		}
		if e.ChildID != 0 {
			childID := e.ChildID
			n.ChildID = &childID
		}
		if related := relatedID(e); related != 0 {
			n.RelatedID = &related
		}
		if _, err := d.notifications.Create(n); err != nil {
			d.logger.Error("create notification", "kind", kind, "recipient_id", recipientID, "error", err)
			continue
		}

		d.pushUnread(recipientID)
		d.webPush(recipientID, kind, title, message)
	}

	d.broadcast(e)
}

// recipients picks the opposing party: transitions initiated by the child
// notify the parents, parent decisions notify the child.
func (d *Dispatcher) recipients(e lifecycle.Event) ([]int64, error) {
	switch e.Kind {
	case lifecycle.EventTaskCompleted, lifecycle.EventRewardRequested:
		parents, err := d.families.ListParents(e.FamilyID)
		if err != nil {
			return nil, err
		}
		ids := make([]int64, 0, len(parents))
		for _, p := range parents {
			ids = append(ids, p.ID)
		}
		return ids, nil
	default:
		if e.ChildID == 0 {
			return nil, nil
		}
		return []int64{e.ChildID}, nil
	}
}

func render(e lifecycle.Event) (kind, title, message string) {
	switch e.Kind {
	case lifecycle.EventTaskCompleted:
		return model.NotifTaskCompleted, "Task completed",
			fmt.Sprintf("%q is waiting for approval", e.TaskTitle)
	case lifecycle.EventTaskApproved:
		return model.NotifTaskApproved, "Task approved",
			fmt.Sprintf("%q approved: you earned %d stars", e.TaskTitle, e.Stars)
	case lifecycle.EventTaskRejected:
		return model.NotifTaskRejected, "Task not approved",
			fmt.Sprintf("%q was not approved. You can try again.", e.TaskTitle)
	case lifecycle.EventRewardRequested:
		return model.NotifRewardRequested, "Reward requested",
			fmt.Sprintf("%q requested for %d stars", e.RewardTitle, e.Stars)
	case lifecycle.EventRewardApproved:
		return model.NotifRewardApproved, "Reward approved",
			fmt.Sprintf("%q approved: %d stars spent", e.RewardTitle, e.Stars)
	case lifecycle.EventRewardAutoApproved:
		return model.NotifRewardAutoApproved, "Reward redeemed",
			fmt.Sprintf("%q redeemed for %d stars", e.RewardTitle, e.Stars)
	case lifecycle.EventRewardRejected:
		if e.Reason == model.ReasonInsufficientFunds {
			return model.NotifRewardRejected, "Not enough stars",
				fmt.Sprintf("%q needs %d stars", e.RewardTitle, e.Stars)
		}
		return model.NotifRewardRejected, "Reward declined",
			fmt.Sprintf("%q was declined", e.RewardTitle)
	}
	return "", "", ""
}

func relatedID(e lifecycle.Event) int64 {
	if e.CompletionID != 0 {
		return e.CompletionID
	}
	return e.RequestID
}

// pushUnread sends the recipient's fresh unread count over WebSocket.
func (d *Dispatcher) pushUnread(recipientID int64) {
	if d.hub == nil {
		return
	}
	count, err := d.notifications.UnreadCount(recipientID)
	if err != nil {
		d.logger.Error("unread count", "recipient_id", recipientID, "error", err)
		return
	}
	d.hub.SendToMember(recipientID, websocket.UnreadMessage(count))
}

// webPush fans the notification out to the recipient's subscriptions,
// pruning any that the push service reports as gone.
func (d *Dispatcher) webPush(recipientID int64, kind, title, message string) {
	if d.pusher == nil {
		return
	}
	enabled, err := d.pushes.PreferenceEnabled(recipientID, kind)
	if err != nil {
		d.logger.Error("check preference", "recipient_id", recipientID, "error", err)
		return
	}
	if !enabled {
		return
	}

	subs, err := d.pushes.ListByMember(recipientID)
	if err != nil {
		d.logger.Error("list subscriptions", "recipient_id", recipientID, "error", err)
		return
	}

	payload := push.Payload{Title: title, Body: message, Tag: kind}
	for _, sub := range subs {
		if err := d.pusher.Send(&sub, payload); err != nil {
			if errors.Is(err, push.ErrExpired) {
				if derr := d.pushes.DeleteByEndpoint(sub.Endpoint); derr != nil {
					d.logger.Error("prune subscription", "endpoint", sub.Endpoint, "error", derr)
				}
				continue
			}
			d.logger.Error("send push", "recipient_id", recipientID, "error", err)
		}
	}
}

// broadcast tells every connected family client what changed so open
// views can refresh.
func (d *Dispatcher) broadcast(e lifecycle.Event) {
	if d.hub == nil {
		return
	}
	entity, action := "task", ""
	switch e.Kind {
	case lifecycle.EventTaskCompleted:
		action = "completed"
	case lifecycle.EventTaskApproved:
		action = "approved"
	case lifecycle.EventTaskRejected:
		action = "rejected"
	case lifecycle.EventRewardRequested:
		entity, action = "reward", "requested"
	case lifecycle.EventRewardApproved:
		entity, action = "reward", "approved"
	case lifecycle.EventRewardAutoApproved:
		entity, action = "reward", "auto_approved"
	case lifecycle.EventRewardRejected:
		entity, action = "reward", "rejected"
	default:
		return
	}
	d.hub.Broadcast(e.FamilyID, websocket.NewMessage(entity, action, relatedID(e), map[string]any{
		"child_id": e.ChildID,
	}))
}
