package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollbook/rollbook/internal/types"
)

func twoPersonWeek() (types.RangeData, []types.Person) {
	dates := []string{"2024-01-08", "2024-01-09", "2024-01-10"}
	people := []types.Person{
		{ID: "p1", DisplayName: "Alice", Active: true, Tags: []string{"core"}},
		{ID: "p2", DisplayName: "Bob", Active: true},
	}
	var data types.RangeData
	aliceStatuses := []types.Status{types.StatusPresent, types.StatusPresent, types.StatusPresent}
	bobStatuses := []types.Status{types.StatusTardy, types.StatusAbsent, types.StatusTardy}
	for i, d := range dates {
		s := workSession(d)
		data.Sessions = append(data.Sessions, s)
		data.Records = append(data.Records,
			types.Record{ID: "a" + d, SessionID: s.ID, PersonID: "p1", Status: aliceStatuses[i]},
			types.Record{ID: "b" + d, SessionID: s.ID, PersonID: "p2", Status: bobStatuses[i]},
		)
	}
	return data, people
}

func TestPeopleRows(t *testing.T) {
	data, people := twoPersonWeek()
	q := Query{From: "2024-01-08", To: "2024-01-10"}
	rows := NewAggregator(data, people, testEventTypes(), q).PeopleRows(types.DefaultThresholds, "avg_desc")

	require.Len(t, rows, 2)

	alice := rows[0]
	assert.Equal(t, "Alice", alice.Name)
	assert.InDelta(t, 1.0, alice.Avg, 1e-9)
	assert.Equal(t, TierHigh, alice.Bucket)
	assert.Equal(t, 3, alice.Present)
	assert.Equal(t, 3, alice.Sessions)
	assert.Equal(t, "2024-01-10", alice.LastDate)
	assert.Equal(t, []float64{1, 1, 1}, alice.Spark)

	bob := rows[1]
	assert.Equal(t, "Bob", bob.Name)
	assert.InDelta(t, 0.5, bob.Avg, 1e-9)
	assert.Equal(t, TierLow, bob.Bucket)
	assert.Equal(t, 2, bob.Tardies)
	assert.Equal(t, 1, bob.Absent)
	assert.Equal(t, []float64{0.75, 0, 0.75}, bob.Spark)
}

func TestPeopleRowsSortKeys(t *testing.T) {
	data, people := twoPersonWeek()
	q := Query{From: "2024-01-08", To: "2024-01-10"}
	agg := NewAggregator(data, people, testEventTypes(), q)

	tests := []struct {
		key   string
		first string
	}{
		{key: "avg_desc", first: "Alice"},
		{key: "avg_asc", first: "Bob"},
		{key: "tardy_desc", first: "Bob"},
		{key: "tardy_asc", first: "Alice"},
		{key: "name_asc", first: "Alice"},
		{key: "name_desc", first: "Bob"},
		{key: "nonsense falls back to avg_desc", first: "Alice"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			rows := agg.PeopleRows(types.DefaultThresholds, tt.key)
			require.NotEmpty(t, rows)
			assert.Equal(t, tt.first, rows[0].Name)
		})
	}
}

func TestPeopleRowsSparkCappedAtTen(t *testing.T) {
	var data types.RangeData
	people := testPeople(1)
	for _, d := range DatesBetween("2024-01-01", "2024-01-14") {
		s := workSession(d)
		data.Sessions = append(data.Sessions, s)
		data.Records = append(data.Records, types.Record{
			ID: "r_" + d, SessionID: s.ID, PersonID: "Alice", Status: types.StatusPresent,
		})
	}
	q := Query{From: "2024-01-01", To: "2024-01-14"}
	rows := NewAggregator(data, people, testEventTypes(), q).PeopleRows(types.DefaultThresholds, "avg_desc")

	require.Len(t, rows, 1)
	assert.Len(t, rows[0].Spark, sparkLen)
	assert.Equal(t, "2024-01-14", rows[0].LastDate)
}

func TestCohorts(t *testing.T) {
	rows := []PersonRow{
		{Name: "Alice", Bucket: TierHigh},
		{Name: "Bob", Bucket: TierLow},
		{Name: "Carol", Bucket: TierHigh},
	}
	cohorts := Cohorts(rows)

	assert.Len(t, cohorts[TierHigh], 2)
	assert.Empty(t, cohorts[TierMid])
	assert.Len(t, cohorts[TierLow], 1)
}
