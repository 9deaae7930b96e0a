package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dukerupert/familyhealth/internal/recurrence"
	"github.com/dukerupert/familyhealth/internal/reminder"
	"github.com/dukerupert/familyhealth/internal/store"
	"github.com/dukerupert/familyhealth/internal/websocket"
)

const (
	defaultUpcoming = 5
	maxUpcoming     = 100
)

type ReminderHandler struct {
	svc     *reminder.Service
	members *store.FamilyMemberStore
	hub     *websocket.Hub
	logger  *slog.Logger
	loc     *time.Location
	window  time.Duration
}

// NewReminderHandler creates the reminder API. loc is the zone for rules
// that name none; window is the default due window.
func NewReminderHandler(svc *reminder.Service, members *store.FamilyMemberStore, hub *websocket.Hub, logger *slog.Logger, loc *time.Location, window time.Duration) *ReminderHandler {
	if loc == nil {
		loc = time.Local
	}
	return &ReminderHandler{svc: svc, members: members, hub: hub, logger: logger, loc: loc, window: window}
}

func (h *ReminderHandler) broadcast(action string, r *reminder.Reminder) {
	if h.hub != nil {
		h.hub.Broadcast(websocket.ReminderMessage(action, r))
	}
}

type reminderResponse struct {
	*reminder.Reminder
	State reminder.State `json:"state"`
	Rule  ruleResponse   `json:"rule"`
}

func newReminderResponse(r *reminder.Reminder) reminderResponse {
	return reminderResponse{Reminder: r, State: r.State(), Rule: newRuleResponse(r.Rule)}
}

func newReminderList(rs []reminder.Reminder) []reminderResponse {
	out := make([]reminderResponse, 0, len(rs))
	for i := range rs {
		out = append(out, newReminderResponse(&rs[i]))
	}
	return out
}

// writeServiceError maps reminder and rule errors onto status codes.
func (h *ReminderHandler) writeServiceError(w http.ResponseWriter, err error, action string) {
	var verr *recurrence.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid rule", "fields": verr.Fields})
	case errors.Is(err, reminder.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, reminder.ErrNotFound):
		writeError(w, http.StatusNotFound, "reminder not found")
	case errors.Is(err, reminder.ErrNotDue):
		writeError(w, http.StatusConflict, "no occurrence is due")
	case errors.Is(err, reminder.ErrConflict):
		writeError(w, http.StatusConflict, "reminder was modified concurrently; reload and retry")
	default:
		h.logger.Error(action, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to "+action)
	}
}

// checkMember reports whether the member exists, writing the error response
// when it does not.
func (h *ReminderHandler) checkMember(w http.ResponseWriter, r *http.Request, id *int64) bool {
	if id == nil {
		return true
	}
	member, err := h.members.GetByID(r.Context(), *id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check family member")
		return false
	}
	if member == nil {
		writeError(w, http.StatusBadRequest, "family member not found")
		return false
	}
	return true
}

type createReminderRequest struct {
	FamilyMemberID *int64          `json:"family_member_id"`
	Type           reminder.Type   `json:"type"`
	Title          string          `json:"title"`
	Metadata       json.RawMessage `json:"metadata"`
	Rule           ruleRequest     `json:"rule"`
}

func (h *ReminderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createReminderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	rule, err := req.Rule.toRule(h.loc)
	if err != nil {
		h.writeServiceError(w, err, "create reminder")
		return
	}
	if !h.checkMember(w, r, req.FamilyMemberID) {
		return
	}

	rem, err := h.svc.Create(r.Context(), reminder.CreateInput{
		FamilyMemberID: req.FamilyMemberID,
		Type:           req.Type,
		Title:          req.Title,
		Metadata:       req.Metadata,
		Rule:           rule,
	})
	if err != nil {
		h.writeServiceError(w, err, "create reminder")
		return
	}

	h.broadcast("created", rem)
	writeJSON(w, http.StatusCreated, newReminderResponse(rem))
}

// parseInstant accepts RFC 3339 or a bare date, read in loc.
func parseInstant(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation(dateLayout, s, loc)
}

func (h *ReminderHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f reminder.Filter

	memberID, err := parseOptionalID(r, "member_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid member_id")
		return
	}
	f.FamilyMemberID = memberID

	if t := q.Get("type"); t != "" {
		f.Type = reminder.Type(t)
		if !f.Type.Valid() {
			writeError(w, http.StatusBadRequest, "invalid type")
			return
		}
	}
	if a := q.Get("active"); a != "" {
		active, err := strconv.ParseBool(a)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid active")
			return
		}
		f.Active = &active
	}
	for key, dst := range map[string]**time.Time{"from": &f.NextFrom, "to": &f.NextTo} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		t, err := parseInstant(raw, h.loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid "+key)
			return
		}
		*dst = &t
	}

	rs, err := h.svc.List(r.Context(), f)
	if err != nil {
		h.writeServiceError(w, err, "list reminders")
		return
	}
	writeJSON(w, http.StatusOK, newReminderList(rs))
}

func (h *ReminderHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	rem, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "get reminder")
		return
	}
	writeJSON(w, http.StatusOK, newReminderResponse(rem))
}

func (h *ReminderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	rem, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "delete reminder")
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		h.writeServiceError(w, err, "delete reminder")
		return
	}
	h.broadcast("deleted", rem)
	w.WriteHeader(http.StatusNoContent)
}

func (h *ReminderHandler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req ruleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	rule, err := req.toRule(h.loc)
	if err != nil {
		h.writeServiceError(w, err, "update rule")
		return
	}

	rem, err := h.svc.UpdateRule(r.Context(), id, rule)
	if err != nil {
		h.writeServiceError(w, err, "update rule")
		return
	}
	h.broadcast("updated", rem)
	writeJSON(w, http.StatusOK, newReminderResponse(rem))
}

func (h *ReminderHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req struct {
		Active *bool `json:"active"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Active == nil {
		writeError(w, http.StatusBadRequest, "active is required")
		return
	}

	rem, err := h.svc.SetActive(r.Context(), id, *req.Active)
	if err != nil {
		h.writeServiceError(w, err, "set active")
		return
	}
	h.broadcast("updated", rem)
	writeJSON(w, http.StatusOK, newReminderResponse(rem))
}

type completeRequest struct {
	Status reminder.Status `json:"status"`
	Notes  string          `json:"notes"`
	// At is when the dose or task was actually done. Defaults to now.
	At *time.Time `json:"at"`
	// Occurrence is the next_scheduled value being resolved. Clients acting
	// on a notification should send it.
	Occurrence *time.Time `json:"occurrence"`
	RecordedBy *int64     `json:"recorded_by"`
	PIN        string     `json:"pin"`
}

func (h *ReminderHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req completeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Status == "" {
		req.Status = reminder.StatusCompleted
	}

	current, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "complete reminder")
		return
	}
	if !h.checkMember(w, r, req.RecordedBy) {
		return
	}
	if current.FamilyMemberID != nil {
		switch err := checkPIN(r.Context(), h.members, *current.FamilyMemberID, req.PIN); {
		case err == nil, errors.Is(err, store.ErrMemberNotFound):
		case errors.Is(err, errPINRequired):
			writeError(w, http.StatusForbidden, "pin is required for this family member")
			return
		case errors.Is(err, errPINIncorrect):
			writeError(w, http.StatusForbidden, "incorrect PIN")
			return
		default:
			h.writeServiceError(w, err, "check PIN")
			return
		}
	}

	in := reminder.CompletionInput{
		Status:     req.Status,
		Notes:      req.Notes,
		RecordedBy: req.RecordedBy,
	}
	if req.At != nil {
		in.At = *req.At
	}
	if req.Occurrence != nil {
		in.Occurrence = *req.Occurrence
	}

	rem, rec, err := h.svc.Complete(r.Context(), id, in)
	if err != nil {
		h.writeServiceError(w, err, "complete reminder")
		return
	}
	h.broadcast("completed", rem)
	writeJSON(w, http.StatusOK, map[string]any{
		"reminder":   newReminderResponse(rem),
		"completion": rec,
	})
}

func (h *ReminderHandler) Completions(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	rem, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "list completions")
		return
	}
	history := rem.History
	if history == nil {
		history = []reminder.Completion{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"completions": history,
		"stats":       rem.Stats,
	})
}

func (h *ReminderHandler) Upcoming(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	n := defaultUpcoming
	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err = strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxUpcoming {
			writeError(w, http.StatusBadRequest, "count must be between 1 and 100")
			return
		}
	}

	times, err := h.svc.Upcoming(r.Context(), id, n)
	if err != nil {
		h.writeServiceError(w, err, "list upcoming")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"occurrences": times})
}

func (h *ReminderHandler) Due(w http.ResponseWriter, r *http.Request) {
	memberID, err := parseOptionalID(r, "member_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid member_id")
		return
	}
	window := h.window
	if raw := r.URL.Query().Get("window"); raw != "" {
		window, err = time.ParseDuration(raw)
		if err != nil || window < 0 {
			writeError(w, http.StatusBadRequest, "invalid window")
			return
		}
	}

	p, err := h.svc.Due(r.Context(), memberID, window)
	if err != nil {
		h.writeServiceError(w, err, "query due reminders")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"now":      h.svc.Now(),
		"window":   window.String(),
		"past":     newReminderList(p.Past),
		"current":  newReminderList(p.Current),
		"upcoming": newReminderList(p.Upcoming),
	})
}

func (h *ReminderHandler) Scheduled(w http.ResponseWriter, r *http.Request) {
	memberID, err := parseOptionalID(r, "member_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid member_id")
		return
	}
	q := r.URL.Query()
	if q.Get("from") == "" || q.Get("to") == "" {
		writeError(w, http.StatusBadRequest, "from and to are required")
		return
	}
	from, err := parseInstant(q.Get("from"), h.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from")
		return
	}
	to, err := parseInstant(q.Get("to"), h.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to")
		return
	}

	rs, err := h.svc.QueryDue(r.Context(), memberID, from, to)
	if err != nil {
		h.writeServiceError(w, err, "query scheduled reminders")
		return
	}
	writeJSON(w, http.StatusOK, newReminderList(rs))
}
