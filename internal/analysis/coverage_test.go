package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollbook/rollbook/internal/types"
)

// fullWeek builds work sessions for Mon 2024-01-08 .. Fri 2024-01-12 with a
// record per person per day.
func fullWeek(people []types.Person, status types.Status) types.RangeData {
	dates := []string{"2024-01-08", "2024-01-09", "2024-01-10", "2024-01-11", "2024-01-12"}
	var data types.RangeData
	for _, d := range dates {
		s := workSession(d)
		data.Sessions = append(data.Sessions, s)
		for _, p := range people {
			data.Records = append(data.Records, types.Record{
				ID:        "r_" + s.ID + "_" + p.ID,
				SessionID: s.ID,
				PersonID:  p.ID,
				Status:    status,
			})
		}
	}
	return data
}

func TestCoverageFullyRecordedWeek(t *testing.T) {
	people := testPeople(5)
	data := fullWeek(people, types.StatusPresent)

	report := Coverage(data, people, "work", "2024-01-08", "2024-01-12")

	assert.Equal(t, 5, report.Complete)
	assert.Zero(t, report.Partial)
	assert.Zero(t, report.Blank)
	assert.Equal(t, 100, report.CoveragePct)
	assert.Empty(t, report.Gaps)
}

func TestCoverageSessionWithZeroRecordsIsBlankGap(t *testing.T) {
	people := testPeople(3)
	s := workSession("2024-01-08")
	data := types.RangeData{Sessions: []types.Session{s}}

	report := Coverage(data, people, "work", "2024-01-08", "2024-01-08")

	assert.Zero(t, report.Complete)
	assert.Zero(t, report.Partial)
	assert.Equal(t, 1, report.Blank)
	require.Len(t, report.Gaps, 1)
	gap := report.Gaps[0]
	assert.Equal(t, GapBlank, gap.Type)
	assert.Equal(t, 3, gap.Missing)
	assert.Equal(t, 3, gap.Total)
}

func TestCoverageMissingSessionDayIsBlank(t *testing.T) {
	people := testPeople(2)

	report := Coverage(types.RangeData{}, people, "work", "2024-01-08", "2024-01-09")

	assert.Equal(t, 2, report.Blank)
	assert.Zero(t, report.CoveragePct)
	require.Len(t, report.Gaps, 2)
	assert.Equal(t, "2024-01-08", report.Gaps[0].Date)
	assert.Equal(t, GapBlank, report.Gaps[0].Type)
	assert.Equal(t, []string{"Alice", "Bob"}, report.Gaps[0].Names)
}

func TestCoveragePartialDay(t *testing.T) {
	people := testPeople(3)
	s := workSession("2024-01-08")
	data := types.RangeData{
		Sessions: []types.Session{s},
		Records: []types.Record{
			{ID: "r1", SessionID: s.ID, PersonID: "Alice", Status: types.StatusPresent},
			// Bob has a record document but no status: still missing.
			{ID: "r2", SessionID: s.ID, PersonID: "Bob"},
		},
	}

	report := Coverage(data, people, "work", "2024-01-08", "2024-01-08")

	assert.Equal(t, 1, report.Partial)
	require.Len(t, report.Gaps, 1)
	gap := report.Gaps[0]
	assert.Equal(t, GapPartial, gap.Type)
	assert.Equal(t, 2, gap.Missing)
	assert.Equal(t, 3, gap.Total)
	assert.Equal(t, []string{"Bob", "Carol"}, gap.Names)
}

func TestCoverageNonServiceCountsAsRecorded(t *testing.T) {
	people := testPeople(1)
	s := workSession("2024-01-08")
	data := types.RangeData{
		Sessions: []types.Session{s},
		Records: []types.Record{
			{ID: "r1", SessionID: s.ID, PersonID: "Alice", Status: types.StatusNonService},
		},
	}

	report := Coverage(data, people, "work", "2024-01-08", "2024-01-08")

	assert.Equal(t, 1, report.Complete)
	assert.Empty(t, report.Gaps)
}

func TestCoverageSkipsDaysWithNobodyScheduled(t *testing.T) {
	people := []types.Person{
		{ID: "p1", DisplayName: "Alice", Active: true, ServiceDays: []string{"Tue"}},
	}

	// Monday has nobody scheduled so only Tuesday counts.
	report := Coverage(types.RangeData{}, people, "work", "2024-01-08", "2024-01-09")

	assert.Equal(t, 1, report.Blank)
	require.Len(t, report.Gaps, 1)
	assert.Equal(t, "2024-01-09", report.Gaps[0].Date)
}

func TestCoverageIgnoresInactivePeople(t *testing.T) {
	people := []types.Person{
		{ID: "p1", DisplayName: "Alice", Active: true},
		{ID: "p2", DisplayName: "Bob", Active: false},
	}
	s := workSession("2024-01-08")
	data := types.RangeData{
		Sessions: []types.Session{s},
		Records: []types.Record{
			{ID: "r1", SessionID: s.ID, PersonID: "p1", Status: types.StatusPresent},
		},
	}

	report := Coverage(data, people, "work", "2024-01-08", "2024-01-08")

	assert.Equal(t, 1, report.Complete)
	assert.Empty(t, report.Gaps)
}

func TestCoverageIgnoresSupplementalSessions(t *testing.T) {
	people := testPeople(1)
	meeting := types.Session{ID: types.SessionID("2024-01-08", "meeting"), Date: "2024-01-08", DOW: 1, EventTypeID: "meeting"}
	data := types.RangeData{
		Sessions: []types.Session{meeting},
		Records: []types.Record{
			{ID: "r1", SessionID: meeting.ID, PersonID: "Alice", Status: types.StatusPresent},
		},
	}

	report := Coverage(data, people, "work", "2024-01-08", "2024-01-08")

	// A meeting session does not cover the required work slot.
	assert.Equal(t, 1, report.Blank)
}

func TestCoverageGapNamesCappedAtThree(t *testing.T) {
	people := testPeople(5)
	s := workSession("2024-01-08")
	data := types.RangeData{Sessions: []types.Session{s}}

	report := Coverage(data, people, "work", "2024-01-08", "2024-01-08")

	require.Len(t, report.Gaps, 1)
	assert.Equal(t, 5, report.Gaps[0].Missing)
	assert.Len(t, report.Gaps[0].Names, 3)
}
