package server

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/familyhealth/internal/clock"
	"github.com/dukerupert/familyhealth/internal/dispatch"
	"github.com/dukerupert/familyhealth/internal/handler"
	"github.com/dukerupert/familyhealth/internal/middleware"
	"github.com/dukerupert/familyhealth/internal/reminder"
	"github.com/dukerupert/familyhealth/internal/store"
	ws "github.com/dukerupert/familyhealth/internal/websocket"
)

// writeLimit is the per-IP budget for mutating requests.
const writeLimit = 120

// Options configures the server's domain behavior.
type Options struct {
	Clock            clock.Clock
	Location         *time.Location
	DueWindow        time.Duration
	DispatchInterval time.Duration
	MissAfter        time.Duration
}

type Server struct {
	db            *sql.DB
	hub           *ws.Hub
	familyMemberH *handler.FamilyMemberHandler
	reminderH     *handler.ReminderHandler
	scheduler     *dispatch.Scheduler
	rateLimiter   *middleware.RateLimiter
	logger        *slog.Logger
}

func New(db *sql.DB, opts Options, logger *slog.Logger) *Server {
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	hub := ws.NewHub(logger.With("component", "websocket"))

	familyMemberStore := store.NewFamilyMemberStore(db)
	reminderStore := store.NewReminderStore(db)

	svc := reminder.NewService(reminderStore, opts.Clock, logger.With("component", "reminder"))
	scheduler := dispatch.NewScheduler(svc, hub, logger.With("component", "dispatch"), dispatch.Options{
		Interval:  opts.DispatchInterval,
		Window:    opts.DueWindow,
		MissAfter: opts.MissAfter,
	})

	handlerLogger := logger.With("component", "handler")
	return &Server{
		db:            db,
		hub:           hub,
		familyMemberH: handler.NewFamilyMemberHandler(familyMemberStore, hub, handlerLogger),
		reminderH:     handler.NewReminderHandler(svc, familyMemberStore, hub, handlerLogger, opts.Location, opts.DueWindow),
		scheduler:     scheduler,
		rateLimiter:   middleware.NewRateLimiter(opts.Clock),
		logger:        logger,
	}
}

// Scheduler returns the due-reminder dispatcher; the caller starts and stops it.
func (s *Server) Scheduler() *dispatch.Scheduler {
	return s.scheduler
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// Hub returns the websocket hub.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket")))

	// Family members
	mux.HandleFunc("GET /api/family-members", s.familyMemberH.List)
	mux.HandleFunc("POST /api/family-members", s.familyMemberH.Create)
	mux.HandleFunc("PUT /api/family-members/{id}", s.familyMemberH.Update)
	mux.HandleFunc("DELETE /api/family-members/{id}", s.familyMemberH.Delete)
	mux.HandleFunc("POST /api/family-members/{id}/pin", s.familyMemberH.SetPIN)
	mux.HandleFunc("DELETE /api/family-members/{id}/pin", s.familyMemberH.ClearPIN)
	mux.HandleFunc("POST /api/family-members/{id}/pin/verify", s.familyMemberH.VerifyPIN)

	// Reminders
	mux.HandleFunc("POST /api/reminders", s.reminderH.Create)
	mux.HandleFunc("GET /api/reminders", s.reminderH.List)
	mux.HandleFunc("GET /api/reminders/due", s.reminderH.Due)
	mux.HandleFunc("GET /api/reminders/scheduled", s.reminderH.Scheduled)
	mux.HandleFunc("GET /api/reminders/{id}", s.reminderH.Get)
	mux.HandleFunc("DELETE /api/reminders/{id}", s.reminderH.Delete)
	mux.HandleFunc("PUT /api/reminders/{id}/rule", s.reminderH.UpdateRule)
	mux.HandleFunc("PUT /api/reminders/{id}/active", s.reminderH.SetActive)
	mux.HandleFunc("POST /api/reminders/{id}/complete", s.reminderH.Complete)
	mux.HandleFunc("GET /api/reminders/{id}/completions", s.reminderH.Completions)
	mux.HandleFunc("GET /api/reminders/{id}/upcoming", s.reminderH.Upcoming)

	keyFunc := func(r *http.Request) string { return middleware.RealIP(r) }
	var h http.Handler = mux
	h = middleware.RateLimit(s.rateLimiter, keyFunc, writeLimit, time.Minute, false)(h)
	h = middleware.Recover(s.logger)(h)
	h = middleware.RequestLogger(s.logger.With("component", "http"))(h)
	return h
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := s.db.PingContext(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	w.Write([]byte(`{"status":"ok"}`))
}
