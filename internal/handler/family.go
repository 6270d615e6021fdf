package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/wrenfield/starling/internal/auth"
	"github.com/wrenfield/starling/internal/ledger"
	"github.com/wrenfield/starling/internal/model"
	"github.com/wrenfield/starling/internal/store"
)

type FamilyHandler struct {
	families  *store.FamilyStore
	ledger    *ledger.StarLedger
	jwtSecret []byte
	tokenTTL  time.Duration
	logger    *slog.Logger
}

func NewFamilyHandler(families *store.FamilyStore, starLedger *ledger.StarLedger, jwtSecret []byte, tokenTTL time.Duration, logger *slog.Logger) *FamilyHandler {
	return &FamilyHandler{families: families, ledger: starLedger, jwtSecret: jwtSecret, tokenTTL: tokenTTL, logger: logger}
}

type registerRequest struct {
	FamilyName string `json:"family_name"`
	ParentName string `json:"parent_name"`
}

// Register handles POST /api/register. It creates a family with its first
// parent and returns a signed token for that parent.
func (h *FamilyHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	req.FamilyName = strings.TrimSpace(req.FamilyName)
	req.ParentName = strings.TrimSpace(req.ParentName)
	if req.FamilyName == "" || req.ParentName == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "family_name and parent_name are required"})
		return
	}

	family, err := h.families.CreateFamily(req.FamilyName)
	if err != nil {
		h.logger.Error("create family", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create family"})
		return
	}

	parent, err := h.families.CreateMember(family.ID, req.ParentName, model.RoleParent, "", "")
	if err != nil {
		h.logger.Error("create parent", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create parent"})
		return
	}

	token, err := auth.Sign(h.jwtSecret, parent.ID, family.ID, parent.Role, h.tokenTTL)
	if err != nil {
		h.logger.Error("sign token", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to issue token"})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"family": family,
		"member": parent,
		"token":  token,
	})
}

type loginRequest struct {
	MemberID int64  `json:"member_id"`
	PIN      string `json:"pin"`
}

// Login handles POST /api/login. Members with a PIN must supply it;
// members without one log in directly (device-gate model).
func (h *FamilyHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	member, err := h.families.GetMember(req.MemberID)
	if err != nil {
		h.logger.Error("get member", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get member"})
		return
	}
	if member == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "member not found"})
		return
	}

	if member.HasPIN {
		ok, err := h.families.VerifyPIN(member.ID, req.PIN)
		if err != nil {
			h.logger.Error("verify pin", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to verify PIN"})
			return
		}
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "incorrect PIN"})
			return
		}
	}

	token, err := auth.Sign(h.jwtSecret, member.ID, member.FamilyID, member.Role, h.tokenTTL)
	if err != nil {
		h.logger.Error("sign token", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to issue token"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"member": member,
		"token":  token,
	})
}

// GetFamily handles GET /api/family
func (h *FamilyHandler) GetFamily(w http.ResponseWriter, r *http.Request) {
	family, err := h.families.GetFamily(auth.FamilyID(r.Context()))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get family"})
		return
	}
	if family == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "family not found"})
		return
	}
	writeJSON(w, http.StatusOK, family)
}

// ListMembers handles GET /api/members
func (h *FamilyHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.families.ListMembers(auth.FamilyID(r.Context()))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list members"})
		return
	}
	if members == nil {
		members = []model.FamilyMember{}
	}
	writeJSON(w, http.StatusOK, members)
}

type memberRequest struct {
	Name  string `json:"name"`
	Role  string `json:"role"`
	Color string `json:"color"`
	Emoji string `json:"emoji"`
}

// CreateMember handles POST /api/members
func (h *FamilyHandler) CreateMember(w http.ResponseWriter, r *http.Request) {
	var req memberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}
	if req.Role != model.RoleParent && req.Role != model.RoleChild {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "role must be parent or child"})
		return
	}

	member, err := h.families.CreateMember(auth.FamilyID(r.Context()), req.Name, req.Role, req.Color, req.Emoji)
	if err != nil {
		h.logger.Error("create member", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create member"})
		return
	}
	writeJSON(w, http.StatusCreated, member)
}

// UpdateMember handles PUT /api/members/{id}
func (h *FamilyHandler) UpdateMember(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	member, err := h.memberInFamily(r, id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get member"})
		return
	}
	if member == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "member not found"})
		return
	}

	var req memberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	updated, err := h.families.UpdateMember(id, req.Name, req.Color, req.Emoji)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update member"})
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeleteMember handles DELETE /api/members/{id}
func (h *FamilyHandler) DeleteMember(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	member, err := h.memberInFamily(r, id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get member"})
		return
	}
	if member == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "member not found"})
		return
	}

	if err := h.families.DeleteMember(id); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to delete member"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type pinRequest struct {
	PIN string `json:"pin"`
}

// SetPIN handles POST /api/members/{id}/pin
func (h *FamilyHandler) SetPIN(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	member, err := h.memberInFamily(r, id)
	if err != nil || member == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "member not found"})
		return
	}

	var req pinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if len(req.PIN) < 4 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "PIN must be at least 4 digits"})
		return
	}

	if err := h.families.SetPIN(id, req.PIN); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to set PIN"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ClearPIN handles DELETE /api/members/{id}/pin
func (h *FamilyHandler) ClearPIN(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	member, err := h.memberInFamily(r, id)
	if err != nil || member == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "member not found"})
		return
	}

	if err := h.families.ClearPIN(id); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to clear PIN"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Balances handles GET /api/members/{id}/balances
func (h *FamilyHandler) Balances(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	member, err := h.memberInFamily(r, id)
	if err != nil || member == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "member not found"})
		return
	}

	balances, err := h.ledger.Balances(id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get balances"})
		return
	}
	if balances == nil {
		balances = []model.StarBalance{}
	}
	writeJSON(w, http.StatusOK, balances)
}

// History handles GET /api/members/{id}/ledger
func (h *FamilyHandler) History(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	member, err := h.memberInFamily(r, id)
	if err != nil || member == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "member not found"})
		return
	}

	entries, err := h.ledger.History(id, 50)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get ledger"})
		return
	}
	if entries == nil {
		entries = []model.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// memberInFamily fetches a member and hides members of other families.
func (h *FamilyHandler) memberInFamily(r *http.Request, id int64) (*model.FamilyMember, error) {
	member, err := h.families.GetMember(id)
	if err != nil {
		return nil, err
	}
	if member == nil || member.FamilyID != auth.FamilyID(r.Context()) {
		return nil, nil
	}
	return member, nil
}
