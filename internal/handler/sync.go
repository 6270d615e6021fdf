package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/wrenfield/starling/internal/auth"
	"github.com/wrenfield/starling/internal/synccache"
)

type SyncHandler struct {
	cache    *synccache.Cache
	replayer *synccache.Replayer
	logger   *slog.Logger
}

func NewSyncHandler(cache *synccache.Cache, replayer *synccache.Replayer, logger *slog.Logger) *SyncHandler {
	return &SyncHandler{cache: cache, replayer: replayer, logger: logger}
}

// Snapshot handles GET /api/sync/snapshot
func (h *SyncHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.cache.Snapshot(auth.FamilyID(r.Context()))
	if err != nil {
		h.logger.Error("build sync snapshot", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to build snapshot"})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type replayRequest struct {
	Ops []synccache.Op `json:"ops"`
}

// Replay handles POST /api/sync/replay. A child can only replay ops as
// themselves, so their ids are overwritten before applying.
func (h *SyncHandler) Replay(w http.ResponseWriter, r *http.Request) {
	var req replayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if len(req.Ops) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{"results": []synccache.Result{}})
		return
	}
	if len(req.Ops) > 100 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "too many ops, max 100"})
		return
	}

	ac, _ := auth.FromContext(r.Context())
	if !auth.IsParent(r.Context()) {
		for i := range req.Ops {
			req.Ops[i].ChildID = ac.MemberID
		}
	}

	results, err := h.replayer.Replay(ac.FamilyID, req.Ops)
	if err != nil {
		h.logger.Error("replay sync queue", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to replay queue"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}
