package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/wrenfield/starling/internal/auth"
	"github.com/wrenfield/starling/internal/store"
)

type SettingsHandler struct {
	settings *store.SettingsStore
	logger   *slog.Logger
}

func NewSettingsHandler(settings *store.SettingsStore, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{settings: settings, logger: logger}
}

type autoApproveSettings struct {
	Enabled   bool `json:"enabled"`
	Threshold int  `json:"threshold"`
}

// GetAutoApprove handles GET /api/settings/auto-approve
func (h *SettingsHandler) GetAutoApprove(w http.ResponseWriter, r *http.Request) {
	familyID := auth.FamilyID(r.Context())

	enabled, err := h.settings.GetBool(familyID, store.SettingAutoApproveEnabled, false)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read settings"})
		return
	}
	threshold, err := h.settings.GetInt(familyID, store.SettingAutoApproveThreshold, 0)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read settings"})
		return
	}

	writeJSON(w, http.StatusOK, autoApproveSettings{Enabled: enabled, Threshold: threshold})
}

// UpdateAutoApprove handles PUT /api/settings/auto-approve
func (h *SettingsHandler) UpdateAutoApprove(w http.ResponseWriter, r *http.Request) {
	var req autoApproveSettings
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.Threshold < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "threshold must be >= 0"})
		return
	}

	familyID := auth.FamilyID(r.Context())
	if err := h.settings.Set(familyID, store.SettingAutoApproveEnabled, strconv.FormatBool(req.Enabled)); err != nil {
		h.logger.Error("save auto-approve setting", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to save settings"})
		return
	}
	if err := h.settings.Set(familyID, store.SettingAutoApproveThreshold, strconv.Itoa(req.Threshold)); err != nil {
		h.logger.Error("save auto-approve setting", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to save settings"})
		return
	}

	writeJSON(w, http.StatusOK, req)
}
