package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/wrenfield/starling/internal/auth"
	"github.com/wrenfield/starling/internal/ledger"
	"github.com/wrenfield/starling/internal/lifecycle"
	"github.com/wrenfield/starling/internal/model"
	"github.com/wrenfield/starling/internal/store"
)

type RewardHandler struct {
	rewards   *store.RewardStore
	lifecycle *lifecycle.RedemptionLifecycle
	logger    *slog.Logger
}

func NewRewardHandler(rewards *store.RewardStore, lc *lifecycle.RedemptionLifecycle, logger *slog.Logger) *RewardHandler {
	return &RewardHandler{rewards: rewards, lifecycle: lc, logger: logger}
}

type rewardRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Cost        int    `json:"cost"`
	StarType    string `json:"star_type"`
	Active      bool   `json:"active"`
}

func (req *rewardRequest) validate() string {
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return "title is required"
	}
	if req.Cost <= 0 {
		return "cost must be > 0"
	}
	if req.StarType == "" {
		req.StarType = model.StarTypeGrowth
	}
	return ""
}

// Create handles POST /api/rewards
func (h *RewardHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req rewardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if msg := req.validate(); msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}

	reward, err := h.rewards.Create(auth.FamilyID(r.Context()), req.Title, req.Description, req.Cost, req.StarType, req.Active)
	if err != nil {
		h.logger.Error("create reward", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create reward"})
		return
	}
	writeJSON(w, http.StatusCreated, reward)
}

// List handles GET /api/rewards
func (h *RewardHandler) List(w http.ResponseWriter, r *http.Request) {
	rewards, err := h.rewards.List(auth.FamilyID(r.Context()))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list rewards"})
		return
	}
	if rewards == nil {
		rewards = []model.Reward{}
	}
	writeJSON(w, http.StatusOK, rewards)
}

// Update handles PUT /api/rewards/{id}
func (h *RewardHandler) Update(w http.ResponseWriter, r *http.Request) {
	reward := h.rewardInFamily(w, r)
	if reward == nil {
		return
	}

	var req rewardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if msg := req.validate(); msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}

	updated, err := h.rewards.Update(reward.ID, req.Title, req.Description, req.Cost, req.StarType, req.Active)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update reward"})
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/rewards/{id}
func (h *RewardHandler) Delete(w http.ResponseWriter, r *http.Request) {
	reward := h.rewardInFamily(w, r)
	if reward == nil {
		return
	}

	if err := h.rewards.Delete(reward.ID); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to delete reward"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Redeem handles POST /api/rewards/{id}/redeem
func (h *RewardHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	reward := h.rewardInFamily(w, r)
	if reward == nil {
		return
	}

	request, err := h.lifecycle.Request(reward.ID, auth.MemberID(r.Context()))
	if err != nil {
		h.writeLifecycleError(w, request, err)
		return
	}
	writeJSON(w, http.StatusCreated, request)
}

// ListRequests handles GET /api/reward-requests?status=pending
func (h *RewardHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	requests, err := h.rewards.ListRequests(auth.FamilyID(r.Context()), status)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list requests"})
		return
	}
	if requests == nil {
		requests = []model.RewardRequest{}
	}
	writeJSON(w, http.StatusOK, requests)
}

// Approve handles POST /api/reward-requests/{id}/approve
func (h *RewardHandler) Approve(w http.ResponseWriter, r *http.Request) {
	pending := h.requestInFamily(w, r)
	if pending == nil {
		return
	}

	request, err := h.lifecycle.Approve(pending.ID)
	if err != nil {
		h.writeLifecycleError(w, request, err)
		return
	}
	writeJSON(w, http.StatusOK, request)
}

// Reject handles POST /api/reward-requests/{id}/reject
func (h *RewardHandler) Reject(w http.ResponseWriter, r *http.Request) {
	pending := h.requestInFamily(w, r)
	if pending == nil {
		return
	}

	request, err := h.lifecycle.Reject(pending.ID)
	if err != nil {
		h.writeLifecycleError(w, request, err)
		return
	}
	writeJSON(w, http.StatusOK, request)
}

func (h *RewardHandler) rewardInFamily(w http.ResponseWriter, r *http.Request) *model.Reward {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return nil
	}
	reward, err := h.rewards.GetByID(id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get reward"})
		return nil
	}
	if reward == nil || reward.FamilyID != auth.FamilyID(r.Context()) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "reward not found"})
		return nil
	}
	return reward
}

// requestInFamily resolves {id} to a redemption request owned by the
// caller's family. Cross-family ids look like missing ones.
func (h *RewardHandler) requestInFamily(w http.ResponseWriter, r *http.Request) *model.RewardRequest {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return nil
	}
	request, err := h.rewards.GetRequest(nil, id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get request"})
		return nil
	}
	if request == nil || request.FamilyID != auth.FamilyID(r.Context()) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "request not found"})
		return nil
	}
	return request
}

// writeLifecycleError maps redemption errors to HTTP statuses. An
// insufficient-funds rejection still carries the frozen request body.
func (h *RewardHandler) writeLifecycleError(w http.ResponseWriter, request *model.RewardRequest, err error) {
	switch {
	case errors.Is(err, ledger.ErrInsufficientStars):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":   "insufficient stars",
			"request": request,
		})
	case errors.Is(err, lifecycle.ErrRewardNotFound), errors.Is(err, lifecycle.ErrRequestNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, lifecycle.ErrNotPending):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		h.logger.Error("redemption operation", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "operation failed"})
	}
}
