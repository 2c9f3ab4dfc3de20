package analysis

import (
	"sort"

	"github.com/rollbook/rollbook/internal/types"
)

// Day-level classification of a required-event weekday.
const (
	DayComplete = "complete"
	DayPartial  = "partial"
	DayBlank    = "blank"
)

// Gap types. GapBlank means zero recorded statuses for the day, whether or
// not a session document exists; GapPartial means some but not all are in.
// This is deliberately distinct from the day-level blank state above.
const (
	GapBlank   = "blank"
	GapPartial = "partial"
)

// maxGapNames caps how many missing names a gap entry carries.
const maxGapNames = 3

// Gap is one non-complete required-event weekday.
type Gap struct {
	Date    string   `json:"date"`
	Missing int      `json:"missing"`
	Total   int      `json:"total"`
	Type    string   `json:"type"`
	Names   []string `json:"names"`
}

// CoverageReport summarizes required-event tracking since the first logged
// session.
type CoverageReport struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Complete    int    `json:"complete"`
	Partial     int    `json:"partial"`
	Blank       int    `json:"blank"`
	CoveragePct int    `json:"coveragePct"`
	Gaps        []Gap  `json:"gaps"`
}

// Coverage classifies every Mon-Fri date in [from, to] for the required event
// type: complete when every scheduled active person has a non-blank status,
// blank when no session exists, partial otherwise. Days with nobody scheduled
// are skipped entirely. Any status counts as recorded, including non_service.
func Coverage(data types.RangeData, people []types.Person, requiredEventID, from, to string) CoverageReport {
	report := CoverageReport{From: from, To: to, Gaps: []Gap{}}

	sessionsByDate := make(map[string][]types.Session)
	requiredIDs := make(map[string]bool)
	for _, s := range data.Sessions {
		if s.EventTypeID != requiredEventID {
			continue
		}
		sessionsByDate[s.Date] = append(sessionsByDate[s.Date], s)
		requiredIDs[s.ID] = true
	}
	recordsBySession := make(map[string][]types.Record)
	for _, r := range data.Records {
		if !requiredIDs[r.SessionID] {
			continue
		}
		recordsBySession[r.SessionID] = append(recordsBySession[r.SessionID], r)
	}

	active := make([]types.Person, 0, len(people))
	for _, p := range people {
		if p.Active {
			active = append(active, p)
		}
	}

	for _, date := range WeekdaysBetween(from, to) {
		scheduled := make([]types.Person, 0, len(active))
		for _, p := range active {
			if ServingOn(p, date) {
				scheduled = append(scheduled, p)
			}
		}
		if len(scheduled) == 0 {
			continue
		}

		candidates := sessionsByDate[date]
		if len(candidates) == 0 {
			report.Blank++
			report.Gaps = append(report.Gaps, Gap{
				Date:    date,
				Missing: len(scheduled),
				Total:   len(scheduled),
				Type:    GapBlank,
				Names:   gapNames(scheduled),
			})
			continue
		}

		recByPerson := make(map[string]types.Record)
		for _, r := range recordsBySession[candidates[0].ID] {
			recByPerson[r.PersonID] = r
		}
		recorded := 0
		var missing []types.Person
		for _, p := range scheduled {
			if rec, ok := recByPerson[p.ID]; ok && rec.Status != "" {
				recorded++
				continue
			}
			missing = append(missing, p)
		}
		if len(missing) == 0 {
			report.Complete++
			continue
		}

		gapType := GapPartial
		if recorded == 0 {
			gapType = GapBlank
		}
		if gapType == GapBlank {
			report.Blank++
		} else {
			report.Partial++
		}
		report.Gaps = append(report.Gaps, Gap{
			Date:    date,
			Missing: len(missing),
			Total:   len(scheduled),
			Type:    gapType,
			Names:   gapNames(missing),
		})
	}

	sort.Slice(report.Gaps, func(i, j int) bool { return report.Gaps[i].Date < report.Gaps[j].Date })

	total := report.Complete + report.Partial + report.Blank
	if total > 0 {
		report.CoveragePct = int(float64(report.Complete)/float64(total)*100 + 0.5)
	}
	return report
}

func gapNames(people []types.Person) []string {
	n := len(people)
	if n > maxGapNames {
		n = maxGapNames
	}
	names := make([]string, 0, n)
	for _, p := range people[:n] {
		name := p.DisplayName
		if name == "" {
			name = "Unnamed"
		}
		names = append(names, name)
	}
	return names
}
