package analysis

import (
	"github.com/rollbook/rollbook/internal/types"
)

// StatusWeights is the canonical contribution of each status to the weighted
// attendance rate. Statuses outside the table weigh 0.
var StatusWeights = map[types.Status]float64{
	types.StatusPresent:        1.0,
	types.StatusOnline:         0.95,
	types.StatusExcused:        0.5,
	types.StatusTardy:          0.75,
	types.StatusEarlyLeave:     0.95,
	types.StatusVeryEarlyLeave: 0.7,
	types.StatusAbsent:         0.0,
	types.StatusNonService:     0.0,
}

// EarlyStatuses are the leave overlays that penalize an early departure.
var EarlyStatuses = map[types.Status]bool{
	types.StatusEarlyLeave:     true,
	types.StatusVeryEarlyLeave: true,
}

// StatusKeys returns the record's countable status keys: the base status when
// set, followed by the leave overlay when set and different from the base.
func StatusKeys(r types.Record) []types.Status {
	keys := make([]types.Status, 0, 2)
	if r.Status != "" {
		keys = append(keys, r.Status)
	}
	if r.LeaveStatus != "" && r.LeaveStatus != r.Status {
		keys = append(keys, r.LeaveStatus)
	}
	return keys
}

// Score maps one record to [0,1]: the base status weight, min-combined with
// the leave overlay weight. A leave overlay can only lower the base score.
// The second return is false for unmarked records, which must be excluded
// upstream rather than scored as 0.
func Score(r types.Record) (float64, bool) {
	keys := StatusKeys(r)
	if len(keys) == 0 {
		return 0, false
	}
	score := StatusWeights[keys[0]]
	for _, key := range keys[1:] {
		if w, ok := StatusWeights[key]; ok && w < score {
			score = w
		}
	}
	return score, true
}

// Counts tallies raw occurrences per status key. One record with a leave
// overlay increments two counters.
type Counts map[types.Status]int

// Add accumulates the record's status keys into c and reports whether the
// record contributed anything (false for unmarked records).
func (c Counts) Add(r types.Record) bool {
	keys := StatusKeys(r)
	for _, key := range keys {
		c[key]++
	}
	return len(keys) > 0
}

// Get returns the tally for a status, 0 when absent.
func (c Counts) Get(s types.Status) int { return c[s] }
