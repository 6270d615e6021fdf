package handler

import (
	"log/slog"
	"net/http"

	"github.com/wrenfield/starling/internal/backup"
	"github.com/wrenfield/starling/internal/model"
	"github.com/wrenfield/starling/internal/store"
)

type BackupHandler struct {
	manager *backup.Manager
	backups *store.BackupStore
	logger  *slog.Logger
}

func NewBackupHandler(manager *backup.Manager, backups *store.BackupStore, logger *slog.Logger) *BackupHandler {
	return &BackupHandler{manager: manager, backups: backups, logger: logger}
}

// RunNow handles POST /api/backups/run
func (h *BackupHandler) RunNow(w http.ResponseWriter, r *http.Request) {
	if !h.manager.Enabled() {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "backups are not configured"})
		return
	}

	id, err := h.manager.RunNow(r.Context())
	if err != nil {
		h.logger.Error("manual backup", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "backup failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"backup_id": id})
}

// List handles GET /api/backups
func (h *BackupHandler) List(w http.ResponseWriter, r *http.Request) {
	backups, err := h.backups.List(20)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list backups"})
		return
	}
	if backups == nil {
		backups = []model.Backup{}
	}
	writeJSON(w, http.StatusOK, backups)
}
