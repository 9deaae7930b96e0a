package reminder

import "math"

// Stats are adherence counters kept in step with the completion history.
// TotalScheduled always equals the number of history records.
type Stats struct {
	TotalScheduled int     `json:"total_scheduled"`
	TotalCompleted int     `json:"total_completed"`
	TotalSkipped   int     `json:"total_skipped"`
	TotalMissed    int     `json:"total_missed"`
	AdherenceRate  float64 `json:"adherence_rate"`
}

// record counts one resolved occurrence in O(1).
func (s *Stats) record(status Status) {
	s.TotalScheduled++
	switch status {
	case StatusCompleted:
		s.TotalCompleted++
	case StatusSkipped:
		s.TotalSkipped++
	case StatusMissed:
		s.TotalMissed++
	}
	s.AdherenceRate = AdherenceRate(s.TotalCompleted, s.TotalScheduled)
}

// AdherenceRate is the completed share of scheduled occurrences as a
// percentage rounded to one decimal place, or 0 when nothing was scheduled.
func AdherenceRate(completed, scheduled int) float64 {
	if scheduled <= 0 {
		return 0
	}
	return math.Round(1000*float64(completed)/float64(scheduled)) / 10
}

// StatsFromHistory recomputes stats by scanning history. Stores use it to
// verify or repair counters; the hot path is Stats.record.
func StatsFromHistory(history []Completion) Stats {
	var s Stats
	for _, c := range history {
		s.record(c.Status)
	}
	return s
}
