package recurrence

import "time"

// monthHorizon bounds the monthly search. Every day 1..31 occurs at least
// once in any 13 consecutive months, so a miss here means the rule is spent.
const monthHorizon = 13

// Next returns the earliest occurrence of r that is not before now, strictly
// after last when last is non-nil, not before the rule's first occurrence and
// not after its end date. Custom rules step from last by exactly one interval
// regardless of now. ok is false when no such occurrence exists.
//
// Next is pure and safe for concurrent use.
func Next(r Rule, last *time.Time, now time.Time) (next time.Time, ok bool) {
	loc := r.Location()
	now = now.In(loc)

	switch r.Freq {
	case Once:
		next, ok = r.nextOnce(last, now)
	case Daily:
		next, ok = r.nextDaily(last, now)
	case Weekly:
		next, ok = r.nextWeekly(last, now)
	case Monthly:
		next, ok = r.nextMonthly(last, now)
	case Custom:
		next, ok = r.nextCustom(last, now)
	}

	if !ok || !r.beforeCutoff(next) {
		return time.Time{}, false
	}
	return next, true
}

// at places the rule's time of day on the given calendar date.
func (r Rule) at(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, r.Time.Hour, r.Time.Minute, 0, 0, r.Location())
}

func (r Rule) first() time.Time {
	return r.at(r.StartDate.Date())
}

// beforeCutoff reports whether t falls on or before the end date. A Once rule
// without an end date retires one day after its single occurrence.
func (r Rule) beforeCutoff(t time.Time) bool {
	if r.EndDate != nil {
		y, m, d := r.EndDate.Date()
		return t.Before(time.Date(y, m, d+1, 0, 0, 0, 0, r.Location()))
	}
	if r.Freq == Once {
		return t.Before(r.first().AddDate(0, 0, 1))
	}
	return true
}

// accept applies the shared floor: not before now, not before the first
// occurrence, strictly after last.
func (r Rule) accept(c time.Time, last *time.Time, now time.Time) bool {
	if c.Before(now) || c.Before(r.first()) {
		return false
	}
	return last == nil || c.After(*last)
}

// searchStart is the calendar day the forward search begins on: the latest of
// today, the day of last, and the start date.
func (r Rule) searchStart(last *time.Time, now time.Time) time.Time {
	from := now
	if last != nil && last.After(from) {
		from = last.In(r.Location())
	}
	y, m, d := from.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, r.Location())
	if day.Before(r.StartDate) {
		day = r.StartDate
	}
	return day
}

func (r Rule) nextOnce(last *time.Time, now time.Time) (time.Time, bool) {
	c := r.first()
	if c.Before(now) {
		return time.Time{}, false
	}
	if last != nil && !c.After(*last) {
		return time.Time{}, false
	}
	return c, true
}

func (r Rule) nextDaily(last *time.Time, now time.Time) (time.Time, bool) {
	base := r.searchStart(last, now)
	for i := 0; i < 3; i++ {
		c := r.at(base.Year(), base.Month(), base.Day()+i)
		if r.accept(c, last, now) {
			return c, true
		}
	}
	return time.Time{}, false
}

func (r Rule) nextWeekly(last *time.Time, now time.Time) (time.Time, bool) {
	selected := make(map[time.Weekday]bool, len(r.DaysOfWeek))
	for _, d := range r.DaysOfWeek {
		selected[d] = true
	}

	base := r.searchStart(last, now)
	// Offsets 0..7 cover every weekday plus today's weekday one week on, for
	// when today's slot has already passed.
	for d := 0; d <= 7; d++ {
		day := base.AddDate(0, 0, d)
		if !selected[day.Weekday()] {
			continue
		}
		c := r.at(day.Year(), day.Month(), day.Day())
		if r.accept(c, last, now) {
			return c, true
		}
	}
	return time.Time{}, false
}

func (r Rule) nextMonthly(last *time.Time, now time.Time) (time.Time, bool) {
	base := r.searchStart(last, now)
	year, month := base.Year(), base.Month()

	for i := 0; i < monthHorizon; i++ {
		y, m := year, month+time.Month(i)
		lastDay := daysInMonth(y, m)
		for _, day := range r.DaysOfMonth {
			// Days the month does not have are skipped, not clamped.
			if day > lastDay {
				continue
			}
			c := r.at(y, m, day)
			if c.Before(base) {
				continue
			}
			if r.accept(c, last, now) {
				return c, true
			}
		}
	}
	return time.Time{}, false
}

func (r Rule) nextCustom(last *time.Time, now time.Time) (time.Time, bool) {
	if last == nil {
		c := r.first()
		if c.Before(now) {
			// A single catch-up step; overdue occurrences are left for the
			// caller to resolve.
			c = r.step(c)
		}
		return c, true
	}
	return r.step(last.In(r.Location())), true
}

// step advances t by one custom interval, keeping the rule's time of day.
// Month steps hold the start date's day of month, clamped to short months.
func (r Rule) step(t time.Time) time.Time {
	n := r.Interval.Value
	y, m, d := t.Date()
	switch r.Interval.Unit {
	case Week:
		return r.at(y, m, d+7*n)
	case Month:
		ty, tm := y, m+time.Month(n)
		// Normalize year/month overflow before clamping.
		norm := time.Date(ty, tm, 1, 0, 0, 0, 0, r.Location())
		day := r.StartDate.Day()
		if last := daysInMonth(norm.Year(), norm.Month()); day > last {
			day = last
		}
		return r.at(norm.Year(), norm.Month(), day)
	default:
		return r.at(y, m, d+n)
	}
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
