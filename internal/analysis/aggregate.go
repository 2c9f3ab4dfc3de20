package analysis

import (
	"sort"
	"strings"

	"github.com/rollbook/rollbook/internal/types"
)

// Query scopes one aggregation pass. From/To are inclusive ISO dates; the
// store has already filtered the snapshot to them and to EventTypeID, so the
// aggregator only applies the person filters and the weight mode.
type Query struct {
	From             string
	To               string
	EventTypeID      string
	ApplyEventWeight bool
	ActiveOnly       bool
	Tag              string
}

// Aggregator buckets one immutable {sessions, records} snapshot. All methods
// are pure computations over the fetched inputs.
type Aggregator struct {
	data        types.RangeData
	query       Query
	sessionByID map[string]types.Session
	eventWeight map[string]float64
	peopleByID  map[string]types.Person
}

// NewAggregator prepares per-session lookup tables for one snapshot.
func NewAggregator(data types.RangeData, people []types.Person, eventTypes []types.EventType, q Query) *Aggregator {
	weightByEvent := make(map[string]float64, len(eventTypes))
	for _, et := range eventTypes {
		weightByEvent[et.ID] = et.Weight
	}
	a := &Aggregator{
		data:        data,
		query:       q,
		sessionByID: make(map[string]types.Session, len(data.Sessions)),
		eventWeight: make(map[string]float64, len(data.Sessions)),
		peopleByID:  make(map[string]types.Person, len(people)),
	}
	for _, s := range data.Sessions {
		a.sessionByID[s.ID] = s
		if w, ok := weightByEvent[s.EventTypeID]; ok {
			a.eventWeight[s.ID] = w
		} else {
			a.eventWeight[s.ID] = 1
		}
	}
	for _, p := range people {
		a.peopleByID[p.ID] = p
	}
	return a
}

// sessionWeight is the multiplier applied to a record's score and to the rate
// denominator: the session's event-type weight when event weighting is on,
// 1 otherwise.
func (a *Aggregator) sessionWeight(sessionID string) float64 {
	if !a.query.ApplyEventWeight {
		return 1
	}
	if w, ok := a.eventWeight[sessionID]; ok {
		return w
	}
	return 1
}

func (a *Aggregator) includePerson(personID string) bool {
	p, ok := a.peopleByID[personID]
	if !ok {
		// Records of people no longer on the roster still count until the
		// cascade delete removes them.
		return a.query.Tag == ""
	}
	if a.query.ActiveOnly && !p.Active {
		return false
	}
	if a.query.Tag != "" {
		joined := strings.ToLower(strings.Join(p.Tags, " "))
		if !strings.Contains(joined, strings.ToLower(a.query.Tag)) {
			return false
		}
	}
	return true
}

// eligible returns the records that participate in rate aggregation: marked,
// not non_service, and passing the person filters.
func (a *Aggregator) eligible() []types.Record {
	out := make([]types.Record, 0, len(a.data.Records))
	for _, r := range a.data.Records {
		if r.Status == "" || r.Status == types.StatusNonService {
			continue
		}
		if !a.includePerson(r.PersonID) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Overview is the whole-range aggregate.
type Overview struct {
	Counts  Counts  `json:"counts"`
	Records int     `json:"records"`
	Rate    float64 `json:"rate"`
}

// Totals computes raw status counts and the weighted rate over the whole
// snapshot. Total over empty input: zero counts, rate 0.
func (a *Aggregator) Totals() Overview {
	counts := Counts{}
	var weightSum, scoreSum float64
	records := 0
	for _, r := range a.eligible() {
		counts.Add(r)
		records++
		w := a.sessionWeight(r.SessionID)
		score, _ := Score(r)
		weightSum += w
		scoreSum += score * w
	}
	rate := 0.0
	if weightSum > 0 {
		rate = scoreSum / weightSum
	}
	return Overview{Counts: counts, Records: records, Rate: rate}
}

// SeriesPoint is one date bucket of the trend series.
type SeriesPoint struct {
	Date   string  `json:"date"`
	Counts Counts  `json:"counts"`
	Total  int     `json:"total"`
	Rate   float64 `json:"rate"`
}

// Series is the gap-free weekday date series for charting.
type Series struct {
	Points   []SeriesPoint `json:"points"`
	Smoothed bool          `json:"smoothed"`
}

// DateSeries buckets records by session date over every Mon-Fri date in the
// query range, zero-activity dates included so charts have no gaps. When
// smooth is set the rate series is replaced by its 7-point trailing mean.
func (a *Aggregator) DateSeries(smooth bool) Series {
	dates := WeekdaysBetween(a.query.From, a.query.To)
	index := make(map[string]int, len(dates))
	points := make([]SeriesPoint, len(dates))
	for i, d := range dates {
		index[d] = i
		points[i] = SeriesPoint{Date: d, Counts: Counts{}}
	}
	weightSums := make([]float64, len(dates))
	scoreSums := make([]float64, len(dates))
	for _, r := range a.eligible() {
		s, ok := a.sessionByID[r.SessionID]
		if !ok {
			continue
		}
		i, ok := index[s.Date]
		if !ok {
			continue
		}
		w := a.sessionWeight(r.SessionID)
		score, _ := Score(r)
		points[i].Counts.Add(r)
		points[i].Total++
		weightSums[i] += w
		scoreSums[i] += score * w
	}
	for i := range points {
		if weightSums[i] > 0 {
			points[i].Rate = scoreSums[i] / weightSums[i]
		}
	}
	if smooth {
		rates := make([]float64, len(points))
		for i, p := range points {
			rates[i] = p.Rate
		}
		for i, v := range MovingAverage(rates, 7) {
			points[i].Rate = v
		}
	}
	return Series{Points: points, Smoothed: smooth}
}

// MovingAverage returns the trailing mean of rate over at most window points:
// out[i] = mean(rate[max(0,i-window+1)..i]).
func MovingAverage(rate []float64, window int) []float64 {
	if window <= 1 {
		return append([]float64(nil), rate...)
	}
	out := make([]float64, len(rate))
	for i := range rate {
		a := i - window + 1
		if a < 0 {
			a = 0
		}
		sum := 0.0
		for _, v := range rate[a : i+1] {
			sum += v
		}
		out[i] = sum / float64(i-a+1)
	}
	return out
}

// TrailingWeekdayRates computes per-date rates over the snapshot's own session
// dates (weekdays only, sorted), and returns the last n. Used to overlay the
// previous period onto the current series, aligned by ordinal position rather
// than by calendar date.
func (a *Aggregator) TrailingWeekdayRates(n int) []float64 {
	type acc struct{ weightSum, scoreSum float64 }
	byDate := make(map[string]*acc)
	for _, s := range a.data.Sessions {
		if _, ok := byDate[s.Date]; !ok {
			byDate[s.Date] = &acc{}
		}
	}
	for _, r := range a.eligible() {
		s, ok := a.sessionByID[r.SessionID]
		if !ok {
			continue
		}
		ent := byDate[s.Date]
		if ent == nil {
			ent = &acc{}
			byDate[s.Date] = ent
		}
		w := a.sessionWeight(r.SessionID)
		score, _ := Score(r)
		ent.weightSum += w
		ent.scoreSum += score * w
	}
	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		if wd := ISOWeekday(d); wd >= 1 && wd <= 5 {
			dates = append(dates, d)
		}
	}
	sort.Strings(dates)
	if n >= 0 && len(dates) > n {
		dates = dates[len(dates)-n:]
	}
	rates := make([]float64, len(dates))
	for i, d := range dates {
		ent := byDate[d]
		if ent.weightSum > 0 {
			rates[i] = ent.scoreSum / ent.weightSum
		}
	}
	return rates
}

// WeekdayRate is one Mon-Fri heatmap cell.
type WeekdayRate struct {
	Day  string  `json:"day"`
	DOW  int     `json:"dow"`
	Rate float64 `json:"rate"`
}

// WeekdayRates computes the weighted rate per ISO weekday, Mon-Fri only.
func (a *Aggregator) WeekdayRates() []WeekdayRate {
	scoreSum := make([]float64, 6)
	weightSum := make([]float64, 6)
	for _, r := range a.eligible() {
		s, ok := a.sessionByID[r.SessionID]
		if !ok || s.DOW < 1 || s.DOW > 5 {
			continue
		}
		w := a.sessionWeight(r.SessionID)
		score, _ := Score(r)
		scoreSum[s.DOW] += score * w
		weightSum[s.DOW] += w
	}
	out := make([]WeekdayRate, 0, 5)
	for d := 1; d <= 5; d++ {
		rate := 0.0
		if weightSum[d] > 0 {
			rate = scoreSum[d] / weightSum[d]
		}
		out = append(out, WeekdayRate{Day: DayName(d), DOW: d, Rate: rate})
	}
	return out
}
