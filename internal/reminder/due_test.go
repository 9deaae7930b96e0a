package reminder

import (
	"reflect"
	"testing"
	"time"
)

func reminderAt(id int64, next *time.Time) Reminder {
	return Reminder{ID: id, Active: true, NextScheduled: next}
}

func ids(rs []Reminder) []int64 {
	out := []int64{}
	for _, r := range rs {
		out = append(out, r.ID)
	}
	return out
}

func TestDuePartitions(t *testing.T) {
	now := at(2026, 3, 2, 12, 0)
	window := 15 * time.Minute

	reminders := []Reminder{
		reminderAt(1, ptr(at(2026, 3, 2, 11, 0))),
		reminderAt(2, ptr(at(2026, 3, 2, 11, 45))),
		reminderAt(3, ptr(at(2026, 3, 2, 12, 0))),
		reminderAt(4, ptr(at(2026, 3, 2, 12, 15))),
		reminderAt(5, ptr(at(2026, 3, 2, 12, 16))),
		reminderAt(6, nil),
	}

	p := Due(reminders, now, window)

	if got := ids(p.Past); !reflect.DeepEqual(got, []int64{1}) {
		t.Errorf("past = %v, want [1]", got)
	}
	if got := ids(p.Current); !reflect.DeepEqual(got, []int64{2, 3, 4}) {
		t.Errorf("current = %v, want [2 3 4]", got)
	}
	if got := ids(p.Upcoming); !reflect.DeepEqual(got, []int64{5}) {
		t.Errorf("upcoming = %v, want [5]", got)
	}
}

func TestDueIsIdempotent(t *testing.T) {
	now := at(2026, 3, 2, 12, 0)
	reminders := []Reminder{
		reminderAt(1, ptr(at(2026, 3, 1, 9, 0))),
		reminderAt(2, ptr(at(2026, 3, 2, 12, 5))),
		reminderAt(3, ptr(at(2026, 3, 3, 9, 0))),
	}
	snapshot := make([]Reminder, len(reminders))
	copy(snapshot, reminders)

	first := Due(reminders, now, 10*time.Minute)
	second := Due(reminders, now, 10*time.Minute)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("partitions differ:\n%+v\n%+v", first, second)
	}
	if !reflect.DeepEqual(reminders, snapshot) {
		t.Error("input mutated")
	}
}

func TestDueEmpty(t *testing.T) {
	p := Due(nil, time.Now(), time.Minute)
	if p.Past == nil || p.Current == nil || p.Upcoming == nil {
		t.Error("partitions should be empty slices, not nil")
	}
}
