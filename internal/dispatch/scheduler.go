// Package dispatch runs the background loop that surfaces due reminders to a
// notifier and records long-overdue occurrences as missed.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/familyhealth/internal/reminder"
)

// Notifier delivers a due occurrence. The websocket hub is one.
type Notifier interface {
	NotifyDue(ctx context.Context, r reminder.Reminder, occurrence time.Time) error
}

// Options tunes the scheduler. Zero values take the defaults.
type Options struct {
	Interval time.Duration // tick period, default 1m
	Window   time.Duration // due window, default 15m
	// MissAfter is how overdue an occurrence must be before it is recorded
	// as missed. Zero disables the sweep.
	MissAfter time.Duration
	// MaxBackfill bounds the missed records written per reminder per tick,
	// default 50.
	MaxBackfill int
}

// Scheduler periodically partitions reminders and acts on them.
type Scheduler struct {
	mu       sync.RWMutex
	service  *reminder.Service
	notifier Notifier
	logger   *slog.Logger
	opts     Options

	// notified maps reminder ID to the occurrence last delivered, so each
	// occurrence is announced once. Only touched from tick.
	notified map[int64]time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler creates a scheduler. notifier may be nil to run only the
// miss sweep.
func NewScheduler(svc *reminder.Service, notifier Notifier, logger *slog.Logger, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.Window <= 0 {
		opts.Window = 15 * time.Minute
	}
	if opts.MaxBackfill <= 0 {
		opts.MaxBackfill = 50
	}
	return &Scheduler{
		service:  svc,
		notifier: notifier,
		logger:   logger,
		opts:     opts,
		notified: make(map[int64]time.Time),
	}
}

// Start begins the scheduler loop. The first tick runs immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.opts.Interval)
		defer ticker.Stop()

		s.tick(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

// Stop gracefully stops the scheduler and waits for the running tick.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	p, err := s.service.Due(ctx, nil, s.opts.Window)
	if err != nil {
		s.logger.Error("due query failed", "error", err)
		return
	}

	s.notifyCurrent(ctx, p.Current)
	if s.opts.MissAfter > 0 {
		for _, r := range p.Past {
			if ctx.Err() != nil {
				return
			}
			s.sweep(ctx, r)
		}
	}
}

func (s *Scheduler) notifyCurrent(ctx context.Context, current []reminder.Reminder) {
	seen := make(map[int64]time.Time, len(current))
	for _, r := range current {
		occ := *r.NextScheduled
		seen[r.ID] = occ
		if prev, ok := s.notified[r.ID]; ok && prev.Equal(occ) {
			continue
		}
		if s.notifier == nil {
			continue
		}
		if err := s.notifier.NotifyDue(ctx, r, occ); err != nil {
			s.logger.Warn("notify due", "reminder_id", r.ID, "error", err)
			delete(seen, r.ID)
			continue
		}
		s.logger.Debug("notified due", "reminder_id", r.ID, "occurrence", occ)
	}
	// Entries for reminders that left the window are dropped.
	s.notified = seen
}

// sweep resolves overdue occurrences of r as missed, oldest first, until the
// pending occurrence is recent enough or the per-tick bound is hit.
func (s *Scheduler) sweep(ctx context.Context, r reminder.Reminder) {
	next := r.NextScheduled
	for i := 0; i < s.opts.MaxBackfill; i++ {
		if next == nil || s.service.Now().Sub(*next) < s.opts.MissAfter {
			return
		}
		updated, _, err := s.service.Complete(ctx, r.ID, reminder.CompletionInput{
			Occurrence: *next,
			Status:     reminder.StatusMissed,
		})
		switch {
		case errors.Is(err, reminder.ErrConflict), errors.Is(err, reminder.ErrNotDue):
			// Someone resolved it first; the next tick sees fresh state.
			s.logger.Debug("miss sweep lost race", "reminder_id", r.ID, "occurrence", *next)
			return
		case err != nil:
			s.logger.Error("record missed", "reminder_id", r.ID, "error", err)
			return
		}
		s.logger.Info("recorded missed occurrence", "reminder_id", r.ID, "occurrence", *next)
		next = updated.NextScheduled
	}
}
