package handler

import (
	"time"

	"github.com/dukerupert/familyhealth/internal/recurrence"
)

const dateLayout = "2006-01-02"

type intervalJSON struct {
	Value int    `json:"value"`
	Unit  string `json:"unit"`
}

// ruleRequest is the JSON form of a recurrence rule.
type ruleRequest struct {
	Frequency   string        `json:"frequency"`
	StartDate   string        `json:"start_date"`
	EndDate     *string       `json:"end_date"`
	TimeOfDay   string        `json:"time_of_day"`
	DaysOfWeek  []string      `json:"days_of_week"`
	DaysOfMonth []int         `json:"days_of_month"`
	Interval    *intervalJSON `json:"interval"`
	Timezone    string        `json:"timezone"`
}

// toRule converts the request into a validated rule. Rules without a
// timezone use def. All field problems are reported together.
func (req ruleRequest) toRule(def *time.Location) (recurrence.Rule, error) {
	fields := map[string]string{}
	var opts recurrence.Options

	loc := def
	if req.Timezone != "" {
		l, err := time.LoadLocation(req.Timezone)
		if err != nil {
			fields["timezone"] = "is not a known time zone"
		} else {
			loc = l
		}
	}
	opts.Location = loc

	f, err := recurrence.ParseFreq(req.Frequency)
	if err != nil {
		fields["frequency"] = "must be once, daily, weekly, monthly or custom"
	}
	opts.Freq = f

	if req.StartDate == "" {
		fields["start_date"] = "is required"
	} else if d, err := time.ParseInLocation(dateLayout, req.StartDate, loc); err != nil {
		fields["start_date"] = "must be a date (YYYY-MM-DD)"
	} else {
		opts.StartDate = d
	}

	if req.EndDate != nil && *req.EndDate != "" {
		d, err := time.ParseInLocation(dateLayout, *req.EndDate, loc)
		if err != nil {
			fields["end_date"] = "must be a date (YYYY-MM-DD)"
		} else {
			opts.EndDate = &d
		}
	}

	if t, err := recurrence.ParseTimeOfDay(req.TimeOfDay); err != nil {
		fields["time_of_day"] = "must be HH:MM"
	} else {
		opts.Time = t
	}

	for _, name := range req.DaysOfWeek {
		wd, err := recurrence.ParseWeekday(name)
		if err != nil {
			fields["days_of_week"] = "contains an unknown day"
			break
		}
		opts.DaysOfWeek = append(opts.DaysOfWeek, wd)
	}
	opts.DaysOfMonth = req.DaysOfMonth

	if req.Interval != nil {
		opts.Interval.Value = req.Interval.Value
		u, err := recurrence.ParseUnit(req.Interval.Unit)
		if err != nil {
			fields["interval"] = "unit must be day, week or month"
		}
		opts.Interval.Unit = u
	}

	if len(fields) > 0 {
		return recurrence.Rule{}, &recurrence.ValidationError{Fields: fields}
	}
	return recurrence.New(opts)
}

// ruleResponse is the JSON view of a rule.
type ruleResponse struct {
	Frequency   string        `json:"frequency"`
	StartDate   string        `json:"start_date"`
	EndDate     *string       `json:"end_date"`
	TimeOfDay   string        `json:"time_of_day"`
	DaysOfWeek  []string      `json:"days_of_week,omitempty"`
	DaysOfMonth []int         `json:"days_of_month,omitempty"`
	Interval    *intervalJSON `json:"interval,omitempty"`
	Timezone    string        `json:"timezone"`
	Describe    string        `json:"describe"`
	RRule       string        `json:"rrule"`
}

func newRuleResponse(r recurrence.Rule) ruleResponse {
	resp := ruleResponse{
		Frequency:   r.Freq.String(),
		StartDate:   r.StartDate.Format(dateLayout),
		TimeOfDay:   r.Time.String(),
		DaysOfMonth: r.DaysOfMonth,
		Timezone:    r.Location().String(),
		Describe:    r.Describe(),
		RRule:       r.RRule(),
	}
	if r.EndDate != nil {
		end := r.EndDate.Format(dateLayout)
		resp.EndDate = &end
	}
	for _, d := range r.DaysOfWeek {
		resp.DaysOfWeek = append(resp.DaysOfWeek, d.String())
	}
	if r.Freq == recurrence.Custom {
		resp.Interval = &intervalJSON{Value: r.Interval.Value, Unit: r.Interval.Unit.String()}
	}
	return resp
}
