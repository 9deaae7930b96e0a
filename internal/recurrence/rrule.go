package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Freq int

const (
	Once Freq = iota
	Daily
	Weekly
	Monthly
	Custom
)

var freqNames = map[Freq]string{
	Once:    "ONCE",
	Daily:   "DAILY",
	Weekly:  "WEEKLY",
	Monthly: "MONTHLY",
	Custom:  "CUSTOM",
}

var freqFromName = map[string]Freq{
	"ONCE":    Once,
	"DAILY":   Daily,
	"WEEKLY":  Weekly,
	"MONTHLY": Monthly,
	"CUSTOM":  Custom,
}

func (f Freq) String() string {
	if name, ok := freqNames[f]; ok {
		return strings.ToLower(name)
	}
	return fmt.Sprintf("freq(%d)", int(f))
}

// ParseFreq accepts a frequency name in any case ("weekly", "WEEKLY").
func ParseFreq(s string) (Freq, error) {
	f, ok := freqFromName[strings.ToUpper(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("unknown frequency: %q", s)
	}
	return f, nil
}

// Unit is the step size of a custom interval.
type Unit int

const (
	Day Unit = iota
	Week
	Month
)

var unitNames = map[Unit]string{
	Day:   "DAY",
	Week:  "WEEK",
	Month: "MONTH",
}

var unitFromName = map[string]Unit{
	"DAY":   Day,
	"WEEK":  Week,
	"MONTH": Month,
}

func (u Unit) String() string {
	if name, ok := unitNames[u]; ok {
		return strings.ToLower(name)
	}
	return fmt.Sprintf("unit(%d)", int(u))
}

// ParseUnit accepts "day", "week" or "month" in any case, singular or plural.
func ParseUnit(s string) (Unit, error) {
	name := strings.TrimSuffix(strings.ToUpper(strings.TrimSpace(s)), "S")
	u, ok := unitFromName[name]
	if !ok {
		return 0, fmt.Errorf("unknown interval unit: %q", s)
	}
	return u, nil
}

// Interval is a custom repeat step, e.g. every 2 weeks.
type Interval struct {
	Value int
	Unit  Unit
}

// TimeOfDay is a wall-clock time in the rule's location.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" (24-hour).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	h, m, ok := strings.Cut(s, ":")
	if !ok {
		return TimeOfDay{}, fmt.Errorf("invalid time of day: %q", s)
	}
	hour, err := strconv.Atoi(h)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day: %q", s)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || len(m) != 2 {
		return TimeOfDay{}, fmt.Errorf("invalid time of day: %q", s)
	}
	t := TimeOfDay{Hour: hour, Minute: minute}
	if !t.valid() {
		return TimeOfDay{}, fmt.Errorf("invalid time of day: %q", s)
	}
	return t, nil
}

func (t TimeOfDay) valid() bool {
	return t.Hour >= 0 && t.Hour < 24 && t.Minute >= 0 && t.Minute < 60
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

var dayNames = map[string]time.Weekday{
	"SU": time.Sunday,
	"MO": time.Monday,
	"TU": time.Tuesday,
	"WE": time.Wednesday,
	"TH": time.Thursday,
	"FR": time.Friday,
	"SA": time.Saturday,
}

var dayAbbrev = map[time.Weekday]string{
	time.Sunday:    "SU",
	time.Monday:    "MO",
	time.Tuesday:   "TU",
	time.Wednesday: "WE",
	time.Thursday:  "TH",
	time.Friday:    "FR",
	time.Saturday:  "SA",
}

// ParseWeekday accepts a two-letter code ("MO") or an English name ("monday", "Mon").
func ParseWeekday(s string) (time.Weekday, error) {
	up := strings.ToUpper(strings.TrimSpace(s))
	if wd, ok := dayNames[up]; ok {
		return wd, nil
	}
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		name := strings.ToUpper(wd.String())
		if up == name || (len(up) == 3 && up == name[:3]) {
			return wd, nil
		}
	}
	return 0, fmt.Errorf("unknown day: %q", s)
}

// Rule is a validated, normalized repeating schedule. Build one with New or
// Parse; the zero value is not a usable rule.
type Rule struct {
	Freq        Freq
	StartDate   time.Time  // midnight in the rule's location
	EndDate     *time.Time // inclusive; midnight in the rule's location
	Time        TimeOfDay
	DaysOfWeek  []time.Weekday // Weekly only; sorted, distinct
	DaysOfMonth []int          // Monthly only; sorted, distinct
	Interval    Interval       // Custom only
}

// Location returns the time zone the rule's dates and time of day are read in.
func (r Rule) Location() *time.Location {
	return r.StartDate.Location()
}

const dateLayout = "20060102"

// Parse decodes a rule string produced by String, e.g.
// "FREQ=WEEKLY;DTSTART=20260105;TIME=09:00;BYDAY=MO,TH;TZID=UTC".
// The result is validated exactly like New.
func Parse(rule string) (Rule, error) {
	if rule == "" {
		return Rule{}, fmt.Errorf("empty rule")
	}

	var opts Options
	var hasFreq, hasTime bool
	var start, until string
	loc := time.UTC

	parts := strings.Split(rule, ";")
	for _, part := range parts {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return Rule{}, fmt.Errorf("invalid rule part: %q", part)
		}
		key, val := strings.TrimSpace(kv[0]), strings.TrimSpace(kv[1])

		switch key {
		case "FREQ":
			f, ok := freqFromName[val]
			if !ok {
				return Rule{}, fmt.Errorf("unsupported frequency: %q", val)
			}
			opts.Freq = f
			hasFreq = true

		case "DTSTART":
			start = val

		case "UNTIL":
			until = val

		case "TIME":
			t, err := ParseTimeOfDay(val)
			if err != nil {
				return Rule{}, err
			}
			opts.Time = t
			hasTime = true

		case "TZID":
			l, err := time.LoadLocation(val)
			if err != nil {
				return Rule{}, fmt.Errorf("invalid TZID: %q", val)
			}
			loc = l

		case "BYDAY":
			for _, d := range strings.Split(val, ",") {
				wd, ok := dayNames[strings.TrimSpace(d)]
				if !ok {
					return Rule{}, fmt.Errorf("unknown day: %q", d)
				}
				opts.DaysOfWeek = append(opts.DaysOfWeek, wd)
			}

		case "BYMONTHDAY":
			for _, d := range strings.Split(val, ",") {
				n, err := strconv.Atoi(strings.TrimSpace(d))
				if err != nil {
					return Rule{}, fmt.Errorf("invalid BYMONTHDAY: %q", val)
				}
				opts.DaysOfMonth = append(opts.DaysOfMonth, n)
			}

		case "INTERVAL":
			n, err := strconv.Atoi(val)
			if err != nil {
				return Rule{}, fmt.Errorf("invalid interval: %q", val)
			}
			opts.Interval.Value = n

		case "UNIT":
			u, ok := unitFromName[val]
			if !ok {
				return Rule{}, fmt.Errorf("unknown interval unit: %q", val)
			}
			opts.Interval.Unit = u

		default:
			return Rule{}, fmt.Errorf("unsupported rule key: %q", key)
		}
	}

	if !hasFreq {
		return Rule{}, fmt.Errorf("FREQ is required")
	}
	if !hasTime {
		return Rule{}, fmt.Errorf("TIME is required")
	}
	if start == "" {
		return Rule{}, fmt.Errorf("DTSTART is required")
	}

	s, err := time.ParseInLocation(dateLayout, start, loc)
	if err != nil {
		return Rule{}, fmt.Errorf("invalid DTSTART: %q", start)
	}
	opts.StartDate = s
	if until != "" {
		u, err := time.ParseInLocation(dateLayout, until, loc)
		if err != nil {
			return Rule{}, fmt.Errorf("invalid UNTIL: %q", until)
		}
		opts.EndDate = &u
	}
	opts.Location = loc

	return New(opts)
}

// String serializes the rule so that Parse(r.String()) reproduces it.
func (r Rule) String() string {
	var parts []string
	parts = append(parts, "FREQ="+freqNames[r.Freq])
	parts = append(parts, "DTSTART="+r.StartDate.Format(dateLayout))

	if r.EndDate != nil {
		parts = append(parts, "UNTIL="+r.EndDate.Format(dateLayout))
	}

	parts = append(parts, "TIME="+r.Time.String())

	if len(r.DaysOfWeek) > 0 {
		var days []string
		for _, d := range r.DaysOfWeek {
			days = append(days, dayAbbrev[d])
		}
		parts = append(parts, "BYDAY="+strings.Join(days, ","))
	}

	if len(r.DaysOfMonth) > 0 {
		var days []string
		for _, d := range r.DaysOfMonth {
			days = append(days, strconv.Itoa(d))
		}
		parts = append(parts, "BYMONTHDAY="+strings.Join(days, ","))
	}

	if r.Freq == Custom {
		parts = append(parts, fmt.Sprintf("INTERVAL=%d", r.Interval.Value))
		parts = append(parts, "UNIT="+unitNames[r.Interval.Unit])
	}

	parts = append(parts, "TZID="+r.Location().String())

	return strings.Join(parts, ";")
}

// Describe returns a human-readable description of the rule.
func (r Rule) Describe() string {
	at := " at " + r.Time.String()
	var desc string
	switch r.Freq {
	case Once:
		return "Once on " + r.StartDate.Format("Jan 2, 2006") + at
	case Daily:
		desc = "Daily" + at
	case Weekly:
		var names []string
		for _, d := range r.DaysOfWeek {
			names = append(names, d.String()[:3])
		}
		desc = "Weekly on " + strings.Join(names, ", ") + at
	case Monthly:
		var days []string
		for _, d := range r.DaysOfMonth {
			days = append(days, strconv.Itoa(d))
		}
		label := "day"
		if len(days) > 1 {
			label = "days"
		}
		desc = "Monthly on " + label + " " + strings.Join(days, ", ") + at
	case Custom:
		unit := r.Interval.Unit.String()
		if r.Interval.Value == 1 {
			desc = "Every " + unit + at
		} else {
			desc = fmt.Sprintf("Every %d %ss", r.Interval.Value, unit) + at
		}
	default:
		return ""
	}
	if r.EndDate != nil {
		desc += " until " + r.EndDate.Format("Jan 2, 2006")
	}
	return desc
}
