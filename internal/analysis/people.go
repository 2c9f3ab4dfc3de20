package analysis

import (
	"sort"
	"strings"

	"github.com/rollbook/rollbook/internal/types"
)

// PersonRow is one per-person aggregate for the trends view.
type PersonRow struct {
	PersonID string    `json:"personId"`
	Name     string    `json:"name"`
	Tags     []string  `json:"tags"`
	Avg      float64   `json:"avg"`
	Bucket   string    `json:"bucket"`
	Present  int       `json:"present"`
	Online   int       `json:"online"`
	Tardies  int       `json:"tardies"`
	Excused  int       `json:"excused"`
	Absent   int       `json:"absent"`
	Sessions int       `json:"sessions"`
	Spark    []float64 `json:"spark"`
	LastDate string    `json:"lastDate"`
}

// sparkLen caps the per-person sparkline at the most recent sessions.
const sparkLen = 10

type personRecord struct {
	record types.Record
	date   string
	score  float64
	weight float64
}

// PeopleRows buckets the snapshot per person: weighted average score, raw
// per-status tallies, and a sparkline of the last scores by date. Rows are
// sorted by sortKey; unknown keys fall back to avg_desc.
func (a *Aggregator) PeopleRows(thresholds types.Thresholds, sortKey string) []PersonRow {
	byPerson := make(map[string][]personRecord)
	for _, r := range a.eligible() {
		s, ok := a.sessionByID[r.SessionID]
		date := ""
		if ok {
			date = s.Date
		}
		score, _ := Score(r)
		byPerson[r.PersonID] = append(byPerson[r.PersonID], personRecord{
			record: r,
			date:   date,
			score:  score,
			weight: a.sessionWeight(r.SessionID),
		})
	}

	rows := make([]PersonRow, 0, len(byPerson))
	for pid, recs := range byPerson {
		row := PersonRow{PersonID: pid, Name: pid, Sessions: len(recs)}
		if p, ok := a.peopleByID[pid]; ok {
			row.Name = p.DisplayName
			row.Tags = p.Tags
		}
		var weightSum, scoreSum float64
		for _, pr := range recs {
			weightSum += pr.weight
			scoreSum += pr.score * pr.weight
			switch pr.record.Status {
			case types.StatusPresent:
				row.Present++
			case types.StatusOnline:
				row.Online++
			case types.StatusTardy:
				row.Tardies++
			case types.StatusExcused:
				row.Excused++
			case types.StatusAbsent:
				row.Absent++
			}
		}
		if weightSum > 0 {
			row.Avg = scoreSum / weightSum
		}
		row.Bucket = Tier(row.Avg, thresholds)

		sort.Slice(recs, func(i, j int) bool { return recs[i].date < recs[j].date })
		last := recs
		if len(last) > sparkLen {
			last = last[len(last)-sparkLen:]
		}
		row.Spark = make([]float64, len(last))
		for i, pr := range last {
			if pr.weight > 0 {
				row.Spark[i] = pr.score
			}
		}
		if len(last) > 0 {
			row.LastDate = last[len(last)-1].date
		}
		rows = append(rows, row)
	}

	sortPersonRows(rows, sortKey)
	return rows
}

func sortPersonRows(rows []PersonRow, key string) {
	less := map[string]func(a, b PersonRow) bool{
		"avg_desc":      func(a, b PersonRow) bool { return a.Avg > b.Avg },
		"avg_asc":       func(a, b PersonRow) bool { return a.Avg < b.Avg },
		"tardy_desc":    func(a, b PersonRow) bool { return a.Tardies > b.Tardies },
		"tardy_asc":     func(a, b PersonRow) bool { return a.Tardies < b.Tardies },
		"name_asc":      func(a, b PersonRow) bool { return strings.Compare(a.Name, b.Name) < 0 },
		"name_desc":     func(a, b PersonRow) bool { return strings.Compare(a.Name, b.Name) > 0 },
		"sessions_desc": func(a, b PersonRow) bool { return a.Sessions > b.Sessions },
		"sessions_asc":  func(a, b PersonRow) bool { return a.Sessions < b.Sessions },
	}[key]
	if less == nil {
		less = func(a, b PersonRow) bool { return a.Avg > b.Avg }
	}
	sort.SliceStable(rows, func(i, j int) bool { return less(rows[i], rows[j]) })
}

// Cohorts groups rows into the High/Mid/Low display buckets.
func Cohorts(rows []PersonRow) map[string][]PersonRow {
	out := map[string][]PersonRow{TierHigh: {}, TierMid: {}, TierLow: {}}
	for _, r := range rows {
		out[r.Bucket] = append(out[r.Bucket], r)
	}
	return out
}
