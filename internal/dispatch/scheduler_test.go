package dispatch

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/familyhealth/internal/clock"
	"github.com/dukerupert/familyhealth/internal/database"
	"github.com/dukerupert/familyhealth/internal/recurrence"
	"github.com/dukerupert/familyhealth/internal/reminder"
	"github.com/dukerupert/familyhealth/internal/store"
)

type recordingNotifier struct {
	mu    sync.Mutex
	calls []time.Time
}

func (n *recordingNotifier) NotifyDue(_ context.Context, _ reminder.Reminder, occ time.Time) error {
	n.mu.Lock()
	n.calls = append(n.calls, occ)
	n.mu.Unlock()
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

func at(month time.Month, day, hour, min int) time.Time {
	return time.Date(2026, month, day, hour, min, 0, 0, time.UTC)
}

func setup(t *testing.T, now time.Time, opts Options) (*Scheduler, *reminder.Service, *clock.Manual, *recordingNotifier) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clk := clock.NewManual(now)
	svc := reminder.NewService(store.NewReminderStore(db), clk, logger)
	n := &recordingNotifier{}
	return NewScheduler(svc, n, logger, opts), svc, clk, n
}

func create(t *testing.T, svc *reminder.Service, opts recurrence.Options) *reminder.Reminder {
	t.Helper()
	rule, err := recurrence.New(opts)
	if err != nil {
		t.Fatalf("rule: %v", err)
	}
	r, err := svc.Create(context.Background(), reminder.CreateInput{Title: "Test", Rule: rule})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return r
}

func daily() recurrence.Options {
	return recurrence.Options{
		Freq:      recurrence.Daily,
		StartDate: at(1, 1, 0, 0),
		Time:      recurrence.TimeOfDay{Hour: 9},
	}
}

func TestNotifiesOncePerOccurrence(t *testing.T) {
	s, svc, clk, n := setup(t, at(1, 5, 8, 50), Options{Window: 15 * time.Minute})
	ctx := context.Background()
	r := create(t, svc, daily())

	s.tick(ctx)
	s.tick(ctx)
	if got := n.count(); got != 1 {
		t.Fatalf("notifications = %d, want 1", got)
	}

	clk.Set(at(1, 5, 9, 2))
	if _, _, err := svc.Complete(ctx, r.ID, reminder.CompletionInput{Status: reminder.StatusCompleted}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	s.tick(ctx)
	if got := n.count(); got != 1 {
		t.Fatalf("notifications after completion = %d, want 1", got)
	}

	clk.Set(at(1, 6, 8, 55))
	s.tick(ctx)
	if got := n.count(); got != 2 {
		t.Fatalf("notifications next day = %d, want 2", got)
	}
	if !n.calls[1].Equal(at(1, 6, 9, 0)) {
		t.Errorf("second occurrence = %v", n.calls[1])
	}
}

func TestSweepBackfillsCustomInterval(t *testing.T) {
	s, svc, clk, _ := setup(t, at(1, 1, 8, 0), Options{MissAfter: 2 * time.Hour})
	ctx := context.Background()
	r := create(t, svc, recurrence.Options{
		Freq:      recurrence.Custom,
		StartDate: at(1, 1, 0, 0),
		Time:      recurrence.TimeOfDay{Hour: 9},
		Interval:  recurrence.Interval{Value: 1, Unit: recurrence.Day},
	})

	clk.Set(at(1, 5, 12, 0))
	s.tick(ctx)

	got, err := svc.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.History) != 5 {
		t.Fatalf("history = %d, want 5 missed (Jan 1-5)", len(got.History))
	}
	for i, c := range got.History {
		if c.Status != reminder.StatusMissed {
			t.Errorf("[%d] status = %s", i, c.Status)
		}
		if want := at(1, 1+i, 9, 0); !c.ScheduledTime.Equal(want) {
			t.Errorf("[%d] scheduled = %v, want %v", i, c.ScheduledTime, want)
		}
	}
	if got.Stats.TotalMissed != 5 || got.Stats.AdherenceRate != 0 {
		t.Errorf("stats = %+v", got.Stats)
	}
	if !got.NextScheduled.Equal(at(1, 6, 9, 0)) {
		t.Errorf("next = %v", got.NextScheduled)
	}
}

func TestSweepBound(t *testing.T) {
	s, svc, clk, _ := setup(t, at(1, 1, 8, 0), Options{MissAfter: time.Hour, MaxBackfill: 2})
	ctx := context.Background()
	r := create(t, svc, recurrence.Options{
		Freq:      recurrence.Custom,
		StartDate: at(1, 1, 0, 0),
		Time:      recurrence.TimeOfDay{Hour: 9},
		Interval:  recurrence.Interval{Value: 1, Unit: recurrence.Day},
	})

	clk.Set(at(1, 10, 12, 0))
	s.tick(ctx)
	got, _ := svc.Get(ctx, r.ID)
	if len(got.History) != 2 {
		t.Fatalf("history after one tick = %d, want 2", len(got.History))
	}
	s.tick(ctx)
	got, _ = svc.Get(ctx, r.ID)
	if len(got.History) != 4 {
		t.Errorf("history after two ticks = %d, want 4", len(got.History))
	}
}

func TestSweepRespectsThreshold(t *testing.T) {
	s, svc, clk, _ := setup(t, at(1, 5, 8, 0), Options{MissAfter: 2 * time.Hour})
	ctx := context.Background()
	r := create(t, svc, daily())

	// One hour late: past the window, not yet missed.
	clk.Set(at(1, 5, 10, 0))
	s.tick(ctx)
	got, _ := svc.Get(ctx, r.ID)
	if len(got.History) != 0 {
		t.Fatalf("history = %d, want 0", len(got.History))
	}

	clk.Set(at(1, 5, 11, 30))
	s.tick(ctx)
	got, _ = svc.Get(ctx, r.ID)
	if len(got.History) != 1 || got.History[0].Status != reminder.StatusMissed {
		t.Fatalf("history = %+v", got.History)
	}
	if !got.NextScheduled.Equal(at(1, 6, 9, 0)) {
		t.Errorf("next = %v", got.NextScheduled)
	}
}

func TestSweepDisabled(t *testing.T) {
	s, svc, clk, _ := setup(t, at(1, 5, 8, 0), Options{})
	ctx := context.Background()
	r := create(t, svc, daily())

	clk.Set(at(1, 8, 12, 0))
	s.tick(ctx)
	got, _ := svc.Get(ctx, r.ID)
	if len(got.History) != 0 {
		t.Errorf("history = %d, want 0 with sweep disabled", len(got.History))
	}
}

func TestStartStop(t *testing.T) {
	s, svc, _, n := setup(t, at(1, 5, 8, 55), Options{Interval: time.Hour})
	create(t, svc, daily())

	s.Start(context.Background())
	deadline := time.Now().Add(2 * time.Second)
	for n.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()

	if n.count() != 1 {
		t.Errorf("notifications = %d, want 1 from the initial tick", n.count())
	}
}
