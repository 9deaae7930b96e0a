package reminder

import "time"

// Partition splits reminders around now for notification and display.
type Partition struct {
	Past     []Reminder `json:"past"`
	Current  []Reminder `json:"current"`
	Upcoming []Reminder `json:"upcoming"`
}

// Due classifies reminders by next_scheduled relative to the window
// [now-window, now+window]. Reminders with nothing scheduled are left out.
// Due reads only; the input is not modified.
func Due(reminders []Reminder, now time.Time, window time.Duration) Partition {
	if window < 0 {
		window = -window
	}
	lo, hi := now.Add(-window), now.Add(window)

	p := Partition{
		Past:     []Reminder{},
		Current:  []Reminder{},
		Upcoming: []Reminder{},
	}
	for _, r := range reminders {
		if r.NextScheduled == nil {
			continue
		}
		next := *r.NextScheduled
		switch {
		case next.Before(lo):
			p.Past = append(p.Past, r)
		case next.After(hi):
			p.Upcoming = append(p.Upcoming, r)
		default:
			p.Current = append(p.Current, r)
		}
	}
	return p
}
