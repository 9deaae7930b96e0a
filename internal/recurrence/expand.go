package recurrence

import "time"

// maxUpcoming caps how many occurrences Upcoming will generate.
const maxUpcoming = 366

// Upcoming returns up to n successive occurrences of r starting at from, each
// computed by Next from the previous one. A non-nil last continues the
// series after an already-resolved occurrence.
func Upcoming(r Rule, last *time.Time, from time.Time, n int) []time.Time {
	if n > maxUpcoming {
		n = maxUpcoming
	}
	var results []time.Time
	prev := last
	for len(results) < n {
		t, ok := Next(r, prev, from)
		if !ok {
			break
		}
		results = append(results, t)
		prev = &t
	}
	return results
}
