package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/rollbook/rollbook/internal/types"
)

// DataSource captures the read side of the persistence collaborator. The
// analyzer never branches on which backend is behind it.
type DataSource interface {
	RecordsForRange(ctx context.Context, from, to, eventTypeID string) (types.RangeData, error)
	ListPeople(ctx context.Context) ([]types.Person, error)
	ListEventTypes(ctx context.Context) ([]types.EventType, error)
	GetSettings(ctx context.Context) (types.Settings, error)
	FirstSessionDate(ctx context.Context, eventTypeID string) (string, error)
}

// Analyzer orchestrates one aggregation pass: fetch an immutable snapshot from
// the data source, then run the pure computations over it.
type Analyzer struct {
	source DataSource
	now    func() time.Time
}

// NewAnalyzer wires a data source. A nil now defaults to time.Now.
func NewAnalyzer(source DataSource, now func() time.Time) *Analyzer {
	if now == nil {
		now = time.Now
	}
	return &Analyzer{source: source, now: now}
}

func (a *Analyzer) aggregator(ctx context.Context, q Query) (*Aggregator, types.Settings, error) {
	data, err := a.source.RecordsForRange(ctx, q.From, q.To, q.EventTypeID)
	if err != nil {
		return nil, types.Settings{}, fmt.Errorf("fetch range: %w", err)
	}
	people, err := a.source.ListPeople(ctx)
	if err != nil {
		return nil, types.Settings{}, fmt.Errorf("fetch roster: %w", err)
	}
	eventTypes, err := a.source.ListEventTypes(ctx)
	if err != nil {
		return nil, types.Settings{}, fmt.Errorf("fetch event types: %w", err)
	}
	settings, err := a.source.GetSettings(ctx)
	if err != nil {
		return nil, types.Settings{}, fmt.Errorf("fetch settings: %w", err)
	}
	return NewAggregator(data, people, eventTypes, q), settings, nil
}

// OverviewResult pairs the whole-range aggregate with its tier.
type OverviewResult struct {
	Overview
	Tier string `json:"tier"`
}

// Overview computes totals, rate, and tier for the query range.
func (a *Analyzer) Overview(ctx context.Context, q Query) (OverviewResult, error) {
	agg, settings, err := a.aggregator(ctx, q)
	if err != nil {
		return OverviewResult{}, err
	}
	totals := agg.Totals()
	return OverviewResult{
		Overview: totals,
		Tier:     Tier(totals.Rate, settings.LegendThresholds),
	}, nil
}

// SeriesResult is the trend series with an optional previous-period overlay.
type SeriesResult struct {
	Series
	PrevRate []float64 `json:"prevRate,omitempty"`
}

// Series computes the weekday date series. When compare is set, the
// immediately preceding equal-length period is aggregated with the same
// filters and aligned to the current series by ordinal weekday position.
func (a *Analyzer) Series(ctx context.Context, q Query, smooth, compare bool) (SeriesResult, error) {
	agg, _, err := a.aggregator(ctx, q)
	if err != nil {
		return SeriesResult{}, err
	}
	result := SeriesResult{Series: agg.DateSeries(smooth)}
	if !compare {
		return result, nil
	}
	prevFrom, prevTo, err := PreviousPeriod(q.From, q.To)
	if err != nil {
		return SeriesResult{}, fmt.Errorf("previous period: %w", err)
	}
	prevQuery := q
	prevQuery.From = prevFrom
	prevQuery.To = prevTo
	prevAgg, _, err := a.aggregator(ctx, prevQuery)
	if err != nil {
		return SeriesResult{}, err
	}
	result.PrevRate = prevAgg.TrailingWeekdayRates(len(result.Points))
	return result, nil
}

// Weekdays computes the Mon-Fri heatmap rates.
func (a *Analyzer) Weekdays(ctx context.Context, q Query) ([]WeekdayRate, error) {
	agg, _, err := a.aggregator(ctx, q)
	if err != nil {
		return nil, err
	}
	return agg.WeekdayRates(), nil
}

// People computes the per-person rows sorted by sortKey.
func (a *Analyzer) People(ctx context.Context, q Query, sortKey string) ([]PersonRow, error) {
	agg, settings, err := a.aggregator(ctx, q)
	if err != nil {
		return nil, err
	}
	return agg.PeopleRows(settings.LegendThresholds, sortKey), nil
}

// CoverageSinceFirst builds the gap report from the first required-event
// session through today. With no required session or no roster, the report is
// empty rather than an error.
func (a *Analyzer) CoverageSinceFirst(ctx context.Context) (CoverageReport, error) {
	people, err := a.source.ListPeople(ctx)
	if err != nil {
		return CoverageReport{}, fmt.Errorf("fetch roster: %w", err)
	}
	if len(people) == 0 {
		return CoverageReport{Gaps: []Gap{}}, nil
	}
	first, err := a.source.FirstSessionDate(ctx, types.RequiredEventID)
	if err != nil {
		return CoverageReport{}, fmt.Errorf("first session date: %w", err)
	}
	if first == "" {
		return CoverageReport{Gaps: []Gap{}}, nil
	}
	today := a.now().Format(dateLayout)
	data, err := a.source.RecordsForRange(ctx, first, today, "")
	if err != nil {
		return CoverageReport{}, fmt.Errorf("fetch range: %w", err)
	}
	return Coverage(data, people, types.RequiredEventID, first, today), nil
}
