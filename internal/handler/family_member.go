package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/dukerupert/familyhealth/internal/model"
	"github.com/dukerupert/familyhealth/internal/store"
	"github.com/dukerupert/familyhealth/internal/websocket"
	"golang.org/x/crypto/bcrypt"
)

var hexColorRegexp = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

var (
	errPINRequired  = errors.New("PIN required")
	errPINIncorrect = errors.New("incorrect PIN")
)

type FamilyMemberHandler struct {
	store   *store.FamilyMemberStore
	hub     *websocket.Hub
	logger  *slog.Logger
	pinCost int
}

func NewFamilyMemberHandler(s *store.FamilyMemberStore, hub *websocket.Hub, logger *slog.Logger) *FamilyMemberHandler {
	return &FamilyMemberHandler{store: s, hub: hub, logger: logger, pinCost: bcrypt.DefaultCost}
}

func (h *FamilyMemberHandler) broadcast(action string, id int64) {
	if h.hub != nil {
		h.hub.Broadcast(websocket.NewMessage("family_member", action, id, nil))
	}
}

type memberRequest struct {
	Name        string `json:"name"`
	Color       string `json:"color"`
	AvatarEmoji string `json:"avatar_emoji"`
}

func (h *FamilyMemberHandler) List(w http.ResponseWriter, r *http.Request) {
	members, err := h.store.List(r.Context())
	if err != nil {
		h.logger.Error("list family members", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list family members")
		return
	}
	if members == nil {
		members = []model.FamilyMember{}
	}
	writeJSON(w, http.StatusOK, members)
}

func (h *FamilyMemberHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req memberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Color == "" {
		req.Color = "#4A90D9"
	}
	if !hexColorRegexp.MatchString(req.Color) {
		writeError(w, http.StatusBadRequest, "color must be a hex color (e.g. #FF0000)")
		return
	}
	if req.AvatarEmoji == "" {
		req.AvatarEmoji = "🙂"
	}

	exists, err := h.store.NameExists(r.Context(), req.Name, 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check name")
		return
	}
	if exists {
		writeError(w, http.StatusConflict, "a family member with that name already exists")
		return
	}

	member, err := h.store.Create(r.Context(), req.Name, req.Color, req.AvatarEmoji)
	if err != nil {
		h.logger.Error("create family member", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create family member")
		return
	}

	h.broadcast("created", member.ID)
	writeJSON(w, http.StatusCreated, member)
}

func (h *FamilyMemberHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	existing, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get family member")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "family member not found")
		return
	}

	var req memberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		req.Name = existing.Name
	}
	if req.Color == "" {
		req.Color = existing.Color
	}
	if !hexColorRegexp.MatchString(req.Color) {
		writeError(w, http.StatusBadRequest, "color must be a hex color (e.g. #FF0000)")
		return
	}
	if req.AvatarEmoji == "" {
		req.AvatarEmoji = existing.AvatarEmoji
	}

	exists, err := h.store.NameExists(r.Context(), req.Name, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check name")
		return
	}
	if exists {
		writeError(w, http.StatusConflict, "a family member with that name already exists")
		return
	}

	member, err := h.store.Update(r.Context(), id, req.Name, req.Color, req.AvatarEmoji)
	if err != nil {
		h.logger.Error("update family member", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update family member")
		return
	}

	h.broadcast("updated", id)
	writeJSON(w, http.StatusOK, member)
}

func (h *FamilyMemberHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	existing, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get family member")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "family member not found")
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		h.logger.Error("delete family member", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete family member")
		return
	}

	h.broadcast("deleted", id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *FamilyMemberHandler) SetPIN(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	existing, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get family member")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "family member not found")
		return
	}

	var req struct {
		PIN string `json:"pin"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.PIN) != 4 || !isDigits(req.PIN) {
		writeError(w, http.StatusBadRequest, "PIN must be exactly 4 digits")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.PIN), h.pinCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to hash PIN")
		return
	}
	if err := h.store.SetPIN(r.Context(), id, string(hash)); err != nil {
		h.logger.Error("set pin", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to set PIN")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "pin set"})
}

func (h *FamilyMemberHandler) ClearPIN(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := h.store.ClearPIN(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to clear PIN")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "pin cleared"})
}

func (h *FamilyMemberHandler) VerifyPIN(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req struct {
		PIN string `json:"pin"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	switch err := checkPIN(r.Context(), h.store, id, req.PIN); {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "verified"})
	case errors.Is(err, store.ErrMemberNotFound):
		writeError(w, http.StatusNotFound, "family member not found")
	case errors.Is(err, errPINRequired) && req.PIN == "":
		writeError(w, http.StatusBadRequest, "pin is required")
	case errors.Is(err, errPINRequired), errors.Is(err, errPINIncorrect):
		writeError(w, http.StatusUnauthorized, "incorrect PIN")
	default:
		writeError(w, http.StatusInternalServerError, "failed to get PIN")
	}
}

// checkPIN verifies pin against the member's stored hash. A member without
// a PIN always passes.
func checkPIN(ctx context.Context, s *store.FamilyMemberStore, memberID int64, pin string) error {
	hash, err := s.GetPINHash(ctx, memberID)
	if err != nil {
		return err
	}
	if hash == "" {
		return nil
	}
	if pin == "" {
		return errPINRequired
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)); err != nil {
		return errPINIncorrect
	}
	return nil
}
