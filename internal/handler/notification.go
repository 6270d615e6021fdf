package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/wrenfield/starling/internal/auth"
	"github.com/wrenfield/starling/internal/model"
	"github.com/wrenfield/starling/internal/store"
)

type NotificationHandler struct {
	notifications *store.NotificationStore
	logger        *slog.Logger
}

func NewNotificationHandler(notifications *store.NotificationStore, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, logger: logger}
}

// List handles GET /api/notifications?unread=true&limit=20
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	unreadOnly := r.URL.Query().Get("unread") == "true"
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	items, err := h.notifications.ListForRecipient(auth.MemberID(r.Context()), unreadOnly, limit)
	if err != nil {
		h.logger.Error("list notifications", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list notifications"})
		return
	}
	if items == nil {
		items = []model.Notification{}
	}
	writeJSON(w, http.StatusOK, items)
}

// UnreadCount handles GET /api/notifications/unread-count
func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.notifications.UnreadCount(auth.MemberID(r.Context()))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to count notifications"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

// MarkRead handles POST /api/notifications/{id}/read. The recipient scope
// on the update means a member can only mark their own rows.
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	if err := h.notifications.MarkRead(id, auth.MemberID(r.Context())); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to mark read"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkAllRead handles POST /api/notifications/read-all
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	updated, err := h.notifications.MarkAllRead(auth.MemberID(r.Context()))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to mark all read"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": updated})
}
