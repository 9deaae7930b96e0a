package recurrence

import (
	"errors"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"
)

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func at(year int, month time.Month, day, hour, min int) time.Time {
	return time.Date(year, month, day, hour, min, 0, 0, time.UTC)
}

func mustRule(t *testing.T, opts Options) Rule {
	t.Helper()
	r, err := New(opts)
	if err != nil {
		t.Fatalf("New(%+v) error: %v", opts, err)
	}
	return r
}

func ptr(t time.Time) *time.Time { return &t }

// --- Construction ---

func TestNewNormalizesWeeklyDefault(t *testing.T) {
	// Jan 7, 2026 is a Wednesday
	r := mustRule(t, Options{Freq: Weekly, StartDate: date(2026, 1, 7), Time: TimeOfDay{9, 0}})
	if len(r.DaysOfWeek) != 1 || r.DaysOfWeek[0] != time.Wednesday {
		t.Errorf("DaysOfWeek = %v, want [Wednesday]", r.DaysOfWeek)
	}
}

func TestNewNormalizesMonthlyDefault(t *testing.T) {
	r := mustRule(t, Options{Freq: Monthly, StartDate: date(2026, 1, 17), Time: TimeOfDay{9, 0}})
	if len(r.DaysOfMonth) != 1 || r.DaysOfMonth[0] != 17 {
		t.Errorf("DaysOfMonth = %v, want [17]", r.DaysOfMonth)
	}
}

func TestNewSortsAndDedupes(t *testing.T) {
	r := mustRule(t, Options{
		Freq:       Weekly,
		StartDate:  date(2026, 1, 5),
		Time:       TimeOfDay{9, 0},
		DaysOfWeek: []time.Weekday{time.Thursday, time.Monday, time.Thursday},
	})
	want := []time.Weekday{time.Monday, time.Thursday}
	if len(r.DaysOfWeek) != len(want) {
		t.Fatalf("DaysOfWeek = %v, want %v", r.DaysOfWeek, want)
	}
	for i := range want {
		if r.DaysOfWeek[i] != want[i] {
			t.Errorf("DaysOfWeek[%d] = %v, want %v", i, r.DaysOfWeek[i], want[i])
		}
	}

	m := mustRule(t, Options{
		Freq:        Monthly,
		StartDate:   date(2026, 1, 5),
		Time:        TimeOfDay{9, 0},
		DaysOfMonth: []int{15, 1, 15},
	})
	if len(m.DaysOfMonth) != 2 || m.DaysOfMonth[0] != 1 || m.DaysOfMonth[1] != 15 {
		t.Errorf("DaysOfMonth = %v, want [1 15]", m.DaysOfMonth)
	}
}

func TestNewTruncatesDates(t *testing.T) {
	r := mustRule(t, Options{Freq: Daily, StartDate: at(2026, 2, 3, 17, 45), Time: TimeOfDay{8, 0}})
	if !r.StartDate.Equal(date(2026, 2, 3)) {
		t.Errorf("StartDate = %v, want midnight Feb 3", r.StartDate)
	}
}

func TestNewValidationErrors(t *testing.T) {
	start := date(2026, 1, 5)
	before := date(2026, 1, 1)

	tests := []struct {
		name  string
		opts  Options
		field string
	}{
		{"bad hour", Options{Freq: Daily, StartDate: start, Time: TimeOfDay{24, 0}}, "time_of_day"},
		{"bad minute", Options{Freq: Daily, StartDate: start, Time: TimeOfDay{9, 60}}, "time_of_day"},
		{"no start", Options{Freq: Daily, Time: TimeOfDay{9, 0}}, "start_date"},
		{"end before start", Options{Freq: Daily, StartDate: start, EndDate: &before, Time: TimeOfDay{9, 0}}, "end_date"},
		{"weekdays on daily", Options{Freq: Daily, StartDate: start, Time: TimeOfDay{9, 0}, DaysOfWeek: []time.Weekday{time.Monday}}, "days_of_week"},
		{"month days on weekly", Options{Freq: Weekly, StartDate: start, Time: TimeOfDay{9, 0}, DaysOfMonth: []int{1}}, "days_of_month"},
		{"month day 32", Options{Freq: Monthly, StartDate: start, Time: TimeOfDay{9, 0}, DaysOfMonth: []int{32}}, "days_of_month"},
		{"month day 0", Options{Freq: Monthly, StartDate: start, Time: TimeOfDay{9, 0}, DaysOfMonth: []int{0}}, "days_of_month"},
		{"bad weekday", Options{Freq: Weekly, StartDate: start, Time: TimeOfDay{9, 0}, DaysOfWeek: []time.Weekday{7}}, "days_of_week"},
		{"zero interval", Options{Freq: Custom, StartDate: start, Time: TimeOfDay{9, 0}, Interval: Interval{Value: 0, Unit: Week}}, "interval"},
		{"negative interval", Options{Freq: Custom, StartDate: start, Time: TimeOfDay{9, 0}, Interval: Interval{Value: -2, Unit: Day}}, "interval"},
		{"bad unit", Options{Freq: Custom, StartDate: start, Time: TimeOfDay{9, 0}, Interval: Interval{Value: 1, Unit: 9}}, "interval"},
		{"interval on daily", Options{Freq: Daily, StartDate: start, Time: TimeOfDay{9, 0}, Interval: Interval{Value: 2, Unit: Day}}, "interval"},
		{"bad freq", Options{Freq: Freq(42), StartDate: start, Time: TimeOfDay{9, 0}}, "frequency"},
	}

	for _, tt := range tests {
		_, err := New(tt.opts)
		if err == nil {
			t.Errorf("%s: expected error", tt.name)
			continue
		}
		if !errors.Is(err, ErrInvalidRule) {
			t.Errorf("%s: error %v does not wrap ErrInvalidRule", tt.name, err)
		}
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("%s: error %T is not *ValidationError", tt.name, err)
			continue
		}
		if _, ok := verr.Fields[tt.field]; !ok {
			t.Errorf("%s: fields = %v, want key %q", tt.name, verr.Fields, tt.field)
		}
	}
}

func TestParseTimeOfDay(t *testing.T) {
	good := map[string]TimeOfDay{"09:00": {9, 0}, "23:59": {23, 59}, "0:05": {0, 5}}
	for in, want := range good {
		got, err := ParseTimeOfDay(in)
		if err != nil {
			t.Errorf("ParseTimeOfDay(%q) error: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseTimeOfDay(%q) = %v, want %v", in, got, want)
		}
	}
	for _, in := range []string{"", "9", "24:00", "12:60", "ab:cd", "12:5"} {
		if _, err := ParseTimeOfDay(in); err == nil {
			t.Errorf("ParseTimeOfDay(%q) should error", in)
		}
	}
}

func TestParseWeekday(t *testing.T) {
	tests := map[string]time.Weekday{"MO": time.Monday, "th": time.Thursday, "Sunday": time.Sunday, "sat": time.Saturday}
	for in, want := range tests {
		got, err := ParseWeekday(in)
		if err != nil || got != want {
			t.Errorf("ParseWeekday(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseWeekday("XX"); err == nil {
		t.Error("ParseWeekday(XX) should error")
	}
}

// --- Encoding ---

func TestRuleString(t *testing.T) {
	r := mustRule(t, Options{
		Freq:       Weekly,
		StartDate:  date(2026, 1, 5),
		Time:       TimeOfDay{9, 0},
		DaysOfWeek: []time.Weekday{time.Monday, time.Thursday},
	})
	want := "FREQ=WEEKLY;DTSTART=20260105;TIME=09:00;BYDAY=MO,TH;TZID=UTC"
	if got := r.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestRuleStringRoundTrip(t *testing.T) {
	inputs := []string{
		"FREQ=ONCE;DTSTART=20260301;TIME=14:30;TZID=UTC",
		"FREQ=DAILY;DTSTART=20260101;TIME=08:00;TZID=UTC",
		"FREQ=DAILY;DTSTART=20260101;UNTIL=20260131;TIME=08:00;TZID=UTC",
		"FREQ=WEEKLY;DTSTART=20260105;TIME=09:00;BYDAY=MO,TH;TZID=UTC",
		"FREQ=MONTHLY;DTSTART=20260101;TIME=07:15;BYMONTHDAY=1,15;TZID=UTC",
		"FREQ=CUSTOM;DTSTART=20260105;TIME=09:00;INTERVAL=2;UNIT=WEEK;TZID=UTC",
		"FREQ=DAILY;DTSTART=20260101;TIME=08:00;TZID=America/Denver",
	}

	for _, input := range inputs {
		r, err := Parse(input)
		if err != nil {
			t.Errorf("Parse(%q) error: %v", input, err)
			continue
		}
		if got := r.String(); got != input {
			t.Errorf("roundtrip %q -> %q", input, got)
		}
	}
}

func TestParseNormalizes(t *testing.T) {
	// Jan 5, 2026 is a Monday
	r, err := Parse("FREQ=WEEKLY;DTSTART=20260105;TIME=09:00")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(r.DaysOfWeek) != 1 || r.DaysOfWeek[0] != time.Monday {
		t.Errorf("DaysOfWeek = %v, want [Monday]", r.DaysOfWeek)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []string{
		"",
		"DTSTART=20260101;TIME=09:00",     // no FREQ
		"FREQ=DAILY;TIME=09:00",           // no DTSTART
		"FREQ=DAILY;DTSTART=20260101",     // no TIME
		"FREQ=HOURLY;DTSTART=20260101;TIME=09:00",
		"FREQ=WEEKLY;DTSTART=20260101;TIME=09:00;BYDAY=XX",
		"FREQ=CUSTOM;DTSTART=20260101;TIME=09:00;INTERVAL=0;UNIT=DAY",
		"FREQ=DAILY;DTSTART=20260101;TIME=09:00;UNKNOWN=1",
		"FREQ=DAILY;DTSTART=20260110;UNTIL=20260101;TIME=09:00",
		"FREQ=DAILY;DTSTART=20260101;TIME=09:00;TZID=Not/AZone",
	}

	for _, input := range tests {
		if _, err := Parse(input); err == nil {
			t.Errorf("Parse(%q) should error", input)
		}
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		rule string
		want string
	}{
		{"FREQ=ONCE;DTSTART=20260301;TIME=14:30", "Once on Mar 1, 2026 at 14:30"},
		{"FREQ=DAILY;DTSTART=20260101;TIME=08:00", "Daily at 08:00"},
		{"FREQ=WEEKLY;DTSTART=20260105;TIME=09:00;BYDAY=MO,TH", "Weekly on Mon, Thu at 09:00"},
		{"FREQ=MONTHLY;DTSTART=20260101;TIME=07:15;BYMONTHDAY=1,15", "Monthly on days 1, 15 at 07:15"},
		{"FREQ=MONTHLY;DTSTART=20260110;TIME=07:15", "Monthly on day 10 at 07:15"},
		{"FREQ=CUSTOM;DTSTART=20260105;TIME=09:00;INTERVAL=2;UNIT=WEEK", "Every 2 weeks at 09:00"},
		{"FREQ=CUSTOM;DTSTART=20260105;TIME=09:00;INTERVAL=1;UNIT=DAY", "Every day at 09:00"},
		{"FREQ=DAILY;DTSTART=20260101;UNTIL=20260131;TIME=08:00", "Daily at 08:00 until Jan 31, 2026"},
	}

	for _, tt := range tests {
		r, err := Parse(tt.rule)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", tt.rule, err)
		}
		if got := r.Describe(); got != tt.want {
			t.Errorf("Describe(%q) = %q, want %q", tt.rule, got, tt.want)
		}
	}
}

func TestRRuleExport(t *testing.T) {
	r := mustRule(t, Options{
		Freq:       Weekly,
		StartDate:  date(2026, 1, 5),
		Time:       TimeOfDay{9, 0},
		DaysOfWeek: []time.Weekday{time.Monday, time.Thursday},
	})
	got := r.RRule()
	for _, want := range []string{"FREQ=WEEKLY", "MO", "TH"} {
		if !strings.Contains(got, want) {
			t.Errorf("RRule() = %q, missing %q", got, want)
		}
	}

	c := mustRule(t, Options{
		Freq:      Custom,
		StartDate: date(2026, 1, 5),
		Time:      TimeOfDay{9, 0},
		Interval:  Interval{Value: 2, Unit: Week},
	})
	if got := c.RRule(); !strings.Contains(got, "INTERVAL=2") {
		t.Errorf("custom RRule() = %q, missing INTERVAL=2", got)
	}
}
