package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollbook/rollbook/internal/types"
)

func workSession(date string) types.Session {
	return types.Session{
		ID:          types.SessionID(date, "work"),
		Date:        date,
		DOW:         ISOWeekday(date),
		EventTypeID: "work",
	}
}

func testEventTypes() []types.EventType {
	return []types.EventType{
		{ID: "work", Label: "Office", Weight: 1.0},
		{ID: "meeting", Label: "Morning Meeting", Weight: 0.25},
	}
}

func testPeople(n int) []types.Person {
	names := []string{"Alice", "Bob", "Carol", "Dave", "Eve"}
	people := make([]types.Person, n)
	for i := 0; i < n; i++ {
		people[i] = types.Person{ID: names[i], DisplayName: names[i], Active: true}
	}
	return people
}

// The worked example from the attendance model: one Monday work session with
// statuses present, present, tardy+early_leave, excused, absent.
func mondayExample() (types.RangeData, []types.Person) {
	s := workSession("2024-01-08")
	records := []types.Record{
		{ID: "r1", SessionID: s.ID, PersonID: "Alice", Status: types.StatusPresent},
		{ID: "r2", SessionID: s.ID, PersonID: "Bob", Status: types.StatusPresent},
		{ID: "r3", SessionID: s.ID, PersonID: "Carol", Status: types.StatusTardy, LeaveStatus: types.StatusEarlyLeave},
		{ID: "r4", SessionID: s.ID, PersonID: "Dave", Status: types.StatusExcused},
		{ID: "r5", SessionID: s.ID, PersonID: "Eve", Status: types.StatusAbsent},
	}
	return types.RangeData{Sessions: []types.Session{s}, Records: records}, testPeople(5)
}

func TestTotalsMondayExample(t *testing.T) {
	data, people := mondayExample()
	q := Query{From: "2024-01-08", To: "2024-01-08"}
	agg := NewAggregator(data, people, testEventTypes(), q)

	totals := agg.Totals()

	assert.Equal(t, 2, totals.Counts.Get(types.StatusPresent))
	assert.Equal(t, 1, totals.Counts.Get(types.StatusTardy))
	assert.Equal(t, 1, totals.Counts.Get(types.StatusEarlyLeave))
	assert.Equal(t, 1, totals.Counts.Get(types.StatusExcused))
	assert.Equal(t, 1, totals.Counts.Get(types.StatusAbsent))
	// (1 + 1 + min(0.75, 0.95) + 0.5 + 0) / 5
	assert.InDelta(t, 0.65, totals.Rate, 1e-9)
	assert.Equal(t, TierLow, Tier(totals.Rate, types.DefaultThresholds))
}

func TestBlankRecordsDoNotAffectAggregates(t *testing.T) {
	data, people := mondayExample()
	q := Query{From: "2024-01-08", To: "2024-01-08"}
	before := NewAggregator(data, people, testEventTypes(), q).Totals()

	data.Records = append(data.Records,
		types.Record{ID: "r6", SessionID: data.Sessions[0].ID, PersonID: "Alice"},
		types.Record{ID: "r7", SessionID: data.Sessions[0].ID, PersonID: "Bob", Status: ""},
	)
	after := NewAggregator(data, people, testEventTypes(), q).Totals()

	assert.Equal(t, before.Counts, after.Counts)
	assert.Equal(t, before.Records, after.Records)
	assert.InDelta(t, before.Rate, after.Rate, 1e-9)
}

func TestNonServiceExcludedFromRate(t *testing.T) {
	s := workSession("2024-01-08")
	data := types.RangeData{
		Sessions: []types.Session{s},
		Records: []types.Record{
			{ID: "r1", SessionID: s.ID, PersonID: "Alice", Status: types.StatusPresent},
			{ID: "r2", SessionID: s.ID, PersonID: "Bob", Status: types.StatusNonService},
		},
	}
	q := Query{From: "2024-01-08", To: "2024-01-08"}
	totals := NewAggregator(data, testPeople(2), testEventTypes(), q).Totals()

	assert.Equal(t, 1, totals.Records)
	assert.InDelta(t, 1.0, totals.Rate, 1e-9)
	assert.Equal(t, 0, totals.Counts.Get(types.StatusNonService))
}

func TestEventWeightCancelsOverUniformScores(t *testing.T) {
	// One meeting session (weight 0.25), every record tardy: the weighted rate
	// must equal the uniform score regardless of the event weight.
	s := types.Session{ID: types.SessionID("2024-01-09", "meeting"), Date: "2024-01-09", DOW: 2, EventTypeID: "meeting"}
	var records []types.Record
	for _, p := range testPeople(4) {
		records = append(records, types.Record{ID: "r_" + p.ID, SessionID: s.ID, PersonID: p.ID, Status: types.StatusTardy})
	}
	data := types.RangeData{Sessions: []types.Session{s}, Records: records}
	q := Query{From: "2024-01-09", To: "2024-01-09", ApplyEventWeight: true}

	totals := NewAggregator(data, testPeople(4), testEventTypes(), q).Totals()

	assert.InDelta(t, 0.75, totals.Rate, 1e-9)
}

func TestEventWeightShiftsMixedSessions(t *testing.T) {
	work := workSession("2024-01-08")
	meeting := types.Session{ID: types.SessionID("2024-01-08", "meeting"), Date: "2024-01-08", DOW: 1, EventTypeID: "meeting"}
	data := types.RangeData{
		Sessions: []types.Session{work, meeting},
		Records: []types.Record{
			{ID: "r1", SessionID: work.ID, PersonID: "Alice", Status: types.StatusPresent},
			{ID: "r2", SessionID: meeting.ID, PersonID: "Alice", Status: types.StatusAbsent},
		},
	}
	q := Query{From: "2024-01-08", To: "2024-01-08"}

	flat := NewAggregator(data, testPeople(1), testEventTypes(), q).Totals()
	assert.InDelta(t, 0.5, flat.Rate, 1e-9)

	q.ApplyEventWeight = true
	weighted := NewAggregator(data, testPeople(1), testEventTypes(), q).Totals()
	// (1*1 + 0*0.25) / (1 + 0.25)
	assert.InDelta(t, 0.8, weighted.Rate, 1e-9)
}

func TestTotalsEmptyInput(t *testing.T) {
	q := Query{From: "2024-01-08", To: "2024-01-12"}
	totals := NewAggregator(types.RangeData{}, nil, nil, q).Totals()

	assert.Equal(t, 0, totals.Records)
	assert.Zero(t, totals.Rate)
	assert.Empty(t, totals.Counts)
}

func TestPersonFilters(t *testing.T) {
	s := workSession("2024-01-08")
	people := []types.Person{
		{ID: "p1", DisplayName: "Alice", Active: true, Tags: []string{"core"}},
		{ID: "p2", DisplayName: "Bob", Active: false, Tags: []string{"intern"}},
	}
	data := types.RangeData{
		Sessions: []types.Session{s},
		Records: []types.Record{
			{ID: "r1", SessionID: s.ID, PersonID: "p1", Status: types.StatusPresent},
			{ID: "r2", SessionID: s.ID, PersonID: "p2", Status: types.StatusAbsent},
		},
	}

	t.Run("active only drops inactive people", func(t *testing.T) {
		q := Query{From: "2024-01-08", To: "2024-01-08", ActiveOnly: true}
		totals := NewAggregator(data, people, testEventTypes(), q).Totals()
		assert.Equal(t, 1, totals.Records)
		assert.InDelta(t, 1.0, totals.Rate, 1e-9)
	})

	t.Run("tag filter matches substring case-insensitively", func(t *testing.T) {
		q := Query{From: "2024-01-08", To: "2024-01-08", Tag: "INTERN"}
		totals := NewAggregator(data, people, testEventTypes(), q).Totals()
		assert.Equal(t, 1, totals.Records)
		assert.Zero(t, totals.Rate)
	})
}

func TestDateSeriesFillsWeekdays(t *testing.T) {
	data, people := mondayExample()
	q := Query{From: "2024-01-08", To: "2024-01-14"}
	series := NewAggregator(data, people, testEventTypes(), q).DateSeries(false)

	// Mon 2024-01-08 through Sun 2024-01-14: five weekday points, no weekend.
	require.Len(t, series.Points, 5)
	assert.Equal(t, "2024-01-08", series.Points[0].Date)
	assert.Equal(t, "2024-01-12", series.Points[4].Date)
	assert.InDelta(t, 0.65, series.Points[0].Rate, 1e-9)
	for _, p := range series.Points[1:] {
		assert.Zero(t, p.Rate)
		assert.Zero(t, p.Total)
	}
}

func TestDateSeriesSmoothing(t *testing.T) {
	data, people := mondayExample()
	q := Query{From: "2024-01-08", To: "2024-01-09"}
	series := NewAggregator(data, people, testEventTypes(), q).DateSeries(true)

	require.Len(t, series.Points, 2)
	assert.True(t, series.Smoothed)
	assert.InDelta(t, 0.65, series.Points[0].Rate, 1e-9)
	// Trailing mean over {0.65, 0}.
	assert.InDelta(t, 0.325, series.Points[1].Rate, 1e-9)
}

func TestMovingAverage(t *testing.T) {
	rates := []float64{1, 0, 1, 0, 1, 0, 1, 0}
	smoothed := MovingAverage(rates, 7)

	require.Len(t, smoothed, len(rates))
	assert.InDelta(t, 1.0, smoothed[0], 1e-9)
	assert.InDelta(t, 0.5, smoothed[1], 1e-9)
	assert.InDelta(t, 4.0/7.0, smoothed[6], 1e-9)
	assert.InDelta(t, 3.0/7.0, smoothed[7], 1e-9)
}

func TestTrailingWeekdayRatesAlignsByOrdinalPosition(t *testing.T) {
	sessions := []types.Session{
		workSession("2024-01-01"),
		workSession("2024-01-02"),
		workSession("2024-01-03"),
	}
	var records []types.Record
	statuses := []types.Status{types.StatusPresent, types.StatusTardy, types.StatusAbsent}
	for i, s := range sessions {
		records = append(records, types.Record{ID: s.ID, SessionID: s.ID, PersonID: "Alice", Status: statuses[i]})
	}
	data := types.RangeData{Sessions: sessions, Records: records}
	q := Query{From: "2024-01-01", To: "2024-01-03"}
	agg := NewAggregator(data, testPeople(1), testEventTypes(), q)

	rates := agg.TrailingWeekdayRates(2)

	require.Len(t, rates, 2)
	assert.InDelta(t, 0.75, rates[0], 1e-9)
	assert.InDelta(t, 0.0, rates[1], 1e-9)
}

func TestWeekdayRates(t *testing.T) {
	mon := workSession("2024-01-08")
	sat := workSession("2024-01-13")
	data := types.RangeData{
		Sessions: []types.Session{mon, sat},
		Records: []types.Record{
			{ID: "r1", SessionID: mon.ID, PersonID: "Alice", Status: types.StatusPresent},
			{ID: "r2", SessionID: sat.ID, PersonID: "Alice", Status: types.StatusAbsent},
		},
	}
	q := Query{From: "2024-01-08", To: "2024-01-14"}
	rates := NewAggregator(data, testPeople(1), testEventTypes(), q).WeekdayRates()

	require.Len(t, rates, 5)
	assert.Equal(t, "Mon", rates[0].Day)
	assert.InDelta(t, 1.0, rates[0].Rate, 1e-9)
	// The Saturday session never appears in the Mon-Fri heatmap.
	for _, wr := range rates[1:] {
		assert.Zero(t, wr.Rate)
	}
}
