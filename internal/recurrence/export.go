package recurrence

import (
	"time"

	"github.com/teambition/rrule-go"
)

var rruleWeekdays = map[time.Weekday]rrule.Weekday{
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
	time.Sunday:    rrule.SU,
}

// ROption maps the rule onto an RFC 5545 recurrence for calendar export.
// Custom month intervals export as MONTHLY with the start day; RFC 5545
// skips short months where the rule clamps, so exports of such rules are
// approximate for days 29-31.
func (r Rule) ROption() rrule.ROption {
	opt := rrule.ROption{
		Dtstart: r.first(),
	}
	if r.EndDate != nil {
		y, m, d := r.EndDate.Date()
		opt.Until = time.Date(y, m, d, 23, 59, 59, 0, r.Location())
	}

	switch r.Freq {
	case Once:
		opt.Freq = rrule.DAILY
		opt.Count = 1
	case Daily:
		opt.Freq = rrule.DAILY
	case Weekly:
		opt.Freq = rrule.WEEKLY
		for _, d := range r.DaysOfWeek {
			opt.Byweekday = append(opt.Byweekday, rruleWeekdays[d])
		}
	case Monthly:
		opt.Freq = rrule.MONTHLY
		opt.Bymonthday = append(opt.Bymonthday, r.DaysOfMonth...)
	case Custom:
		opt.Interval = r.Interval.Value
		switch r.Interval.Unit {
		case Week:
			opt.Freq = rrule.WEEKLY
		case Month:
			opt.Freq = rrule.MONTHLY
		default:
			opt.Freq = rrule.DAILY
		}
	}
	return opt
}

// RRule renders the rule as RFC 5545 text ("DTSTART:...\nRRULE:...").
func (r Rule) RRule() string {
	rr, err := rrule.NewRRule(r.ROption())
	if err != nil {
		return ""
	}
	return rr.String()
}
