package recurrence

import (
	"errors"
	"sort"
	"strings"
	"time"
)

// ErrInvalidRule is wrapped by every *ValidationError.
var ErrInvalidRule = errors.New("recurrence: invalid rule")

// ValidationError lists the rule fields that failed validation.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return ErrInvalidRule.Error()
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(ErrInvalidRule.Error())
	for i, k := range keys {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		b.WriteString(k + " " + e.Fields[k])
	}
	return b.String()
}

func (e *ValidationError) Unwrap() error { return ErrInvalidRule }

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = msg
}

// Options is the raw, unvalidated input to New.
type Options struct {
	Freq        Freq
	StartDate   time.Time
	EndDate     *time.Time
	Time        TimeOfDay
	DaysOfWeek  []time.Weekday
	DaysOfMonth []int
	Interval    Interval

	// Location defaults to StartDate's location.
	Location *time.Location
}

// New validates opts and returns the normalized rule. Dates are truncated to
// midnight in the rule location, day sets are sorted and de-duplicated, and
// an empty weekly or monthly day set defaults to the start date's weekday or
// day of month. Fields that do not apply to the frequency must be empty.
func New(opts Options) (Rule, error) {
	verr := &ValidationError{}

	loc := opts.Location
	if loc == nil {
		loc = opts.StartDate.Location()
	}

	if _, ok := freqNames[opts.Freq]; !ok {
		verr.add("frequency", "is not supported")
	}
	if !opts.Time.valid() {
		verr.add("time_of_day", "must be between 00:00 and 23:59")
	}

	r := Rule{Freq: opts.Freq, Time: opts.Time}

	if opts.StartDate.IsZero() {
		verr.add("start_date", "is required")
	} else {
		r.StartDate = dateIn(opts.StartDate, loc)
	}

	if opts.EndDate != nil {
		end := dateIn(*opts.EndDate, loc)
		if !r.StartDate.IsZero() && end.Before(r.StartDate) {
			verr.add("end_date", "must not be before start_date")
		}
		r.EndDate = &end
	}

	if opts.Freq != Weekly && len(opts.DaysOfWeek) > 0 {
		verr.add("days_of_week", "only applies to weekly rules")
	}
	if opts.Freq != Monthly && len(opts.DaysOfMonth) > 0 {
		verr.add("days_of_month", "only applies to monthly rules")
	}
	if opts.Freq != Custom && opts.Interval != (Interval{}) {
		verr.add("interval", "only applies to custom rules")
	}

	switch opts.Freq {
	case Weekly:
		days, ok := normalizeWeekdays(opts.DaysOfWeek)
		if !ok {
			verr.add("days_of_week", "contains an invalid weekday")
		}
		if len(days) == 0 && !r.StartDate.IsZero() {
			days = []time.Weekday{r.StartDate.Weekday()}
		}
		r.DaysOfWeek = days

	case Monthly:
		days, ok := normalizeMonthDays(opts.DaysOfMonth)
		if !ok {
			verr.add("days_of_month", "values must be between 1 and 31")
		}
		if len(days) == 0 && !r.StartDate.IsZero() {
			days = []int{r.StartDate.Day()}
		}
		r.DaysOfMonth = days

	case Custom:
		if opts.Interval.Value < 1 {
			verr.add("interval", "value must be a positive integer")
		}
		if _, ok := unitNames[opts.Interval.Unit]; !ok {
			verr.add("interval", "unit must be day, week or month")
		}
		r.Interval = opts.Interval
	}

	if len(verr.Fields) > 0 {
		return Rule{}, verr
	}
	return r, nil
}

// dateIn keeps the calendar day of t as written in its own location and
// re-anchors it at midnight in loc.
func dateIn(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func normalizeWeekdays(in []time.Weekday) ([]time.Weekday, bool) {
	seen := make(map[time.Weekday]bool, len(in))
	var out []time.Weekday
	for _, d := range in {
		if d < time.Sunday || d > time.Saturday {
			return nil, false
		}
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, true
}

func normalizeMonthDays(in []int) ([]int, bool) {
	seen := make(map[int]bool, len(in))
	var out []int
	for _, d := range in {
		if d < 1 || d > 31 {
			return nil, false
		}
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	sort.Ints(out)
	return out, true
}
