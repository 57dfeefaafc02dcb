package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlesparmar/kenko/internal/model"
)

func fixedProcessor(now time.Time) *Processor {
	p := NewProcessor()
	p.now = func() time.Time { return now }
	return p
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func TestExtractDateRangesExplicit(t *testing.T) {
	p := fixedProcessor(day(2026, time.August, 31))

	tests := []struct {
		query string
		want  time.Time
	}{
		{"my weight on 2025-01-15", day(2025, time.January, 15)},
		{"my weight on 1/15/2025", day(2025, time.January, 15)},
		{"my weight on 15/1/2025", day(2025, time.January, 15)},
		{"my weight on 3.4.2025", day(2025, time.March, 4)},
	}
	for _, tc := range tests {
		t.Run(tc.query, func(t *testing.T) {
			ranges := p.ExtractDateRanges(tc.query)
			require.Len(t, ranges, 1)
			assert.Equal(t, model.RangeExplicit, ranges[0].Source)
			assert.Equal(t, tc.want, ranges[0].Start)
			assert.Equal(t, tc.want, ranges[0].End)
		})
	}
}

func TestExtractDateRangesRelative(t *testing.T) {
	now := time.Date(2026, time.August, 31, 15, 30, 0, 0, time.UTC)
	p := fixedProcessor(now)
	today := day(2026, time.August, 31)

	tests := []struct {
		query      string
		label      string
		start, end time.Time
	}{
		{"my weight this week", "this_week", today.AddDate(0, 0, -7), today},
		{"my weight past 7 days", "this_week", today.AddDate(0, 0, -7), today},
		{"my weight last week", "last_week", today.AddDate(0, 0, -14), today.AddDate(0, 0, -7)},
		{"my weight this month", "this_month", today.AddDate(0, 0, -30), today},
		{"my weight last month", "last_month", today.AddDate(0, 0, -60), today.AddDate(0, 0, -30)},
		{"my weight past month", "last_month", today.AddDate(0, 0, -60), today.AddDate(0, 0, -30)},
		{"my weight this year", "this_year", day(2026, time.January, 1), today},
		{"my weight last year", "last_year", day(2025, time.January, 1), day(2025, time.December, 31)},
		{"my weight yesterday", "yesterday", today.AddDate(0, 0, -1), today.AddDate(0, 0, -1)},
		{"my weight the day before", "yesterday", today.AddDate(0, 0, -1), today.AddDate(0, 0, -1)},
		{"my weight today", "today", today, today},
		{"my weight for the current day", "today", today, today},
		{"my weigh-in for the next day", "tomorrow", today.AddDate(0, 0, 1), today.AddDate(0, 0, 1)},
	}
	for _, tc := range tests {
		t.Run(tc.label, func(t *testing.T) {
			ranges := p.ExtractDateRanges(tc.query)
			require.NotEmpty(t, ranges)
			r := ranges[0]
			assert.Equal(t, model.RangeRelative, r.Source)
			assert.Equal(t, tc.label, r.Label)
			assert.Equal(t, tc.start, r.Start)
			assert.Equal(t, tc.end, r.End)
		})
	}
}

// "past year" appears in both the this_year and last_year alternations, so
// it yields two ranges.
func TestExtractDateRangesPastYearMatchesBoth(t *testing.T) {
	now := day(2026, time.August, 31)
	p := fixedProcessor(now)

	ranges := p.ExtractDateRanges("my weight over the past year")
	require.Len(t, ranges, 2)

	assert.Equal(t, "this_year", ranges[0].Label)
	assert.Equal(t, day(2026, time.January, 1), ranges[0].Start)
	assert.Equal(t, now, ranges[0].End)

	assert.Equal(t, "last_year", ranges[1].Label)
	assert.Equal(t, day(2025, time.January, 1), ranges[1].Start)
	assert.Equal(t, day(2025, time.December, 31), ranges[1].End)
}

func TestExtractDateRangesMonthEnd(t *testing.T) {
	p := fixedProcessor(day(2026, time.August, 31))

	ranges := p.ExtractDateRanges("what was my weight loss until end of june")
	require.Len(t, ranges, 1)

	r := ranges[0]
	assert.Equal(t, model.RangeMonth, r.Source)
	assert.Equal(t, "until_end_of_june", r.Label)
	assert.Equal(t, day(2026, time.January, 1), r.Start)
	assert.Equal(t, day(2026, time.June, 30), r.End)
}

// A bare month name that has not yet finished this year refers to last
// year's month.
func TestExtractDateRangesMonthAnchorsBackward(t *testing.T) {
	p := fixedProcessor(day(2026, time.June, 15))

	ranges := p.ExtractDateRanges("how much weight did i lose in june")
	require.Len(t, ranges, 1)
	assert.Equal(t, day(2025, time.June, 1), ranges[0].Start)
	assert.Equal(t, day(2025, time.June, 30), ranges[0].End)
	assert.Equal(t, "in_june", ranges[0].Label)

	// March has already passed by August, so it anchors to the current year.
	ranges = fixedProcessor(day(2026, time.August, 31)).
		ExtractDateRanges("my progress in march")
	require.Len(t, ranges, 1)
	assert.Equal(t, day(2026, time.March, 1), ranges[0].Start)
	assert.Equal(t, day(2026, time.March, 31), ranges[0].End)
}

func TestExtractDateRangesMonthSince(t *testing.T) {
	p := fixedProcessor(day(2026, time.August, 31))

	ranges := p.ExtractDateRanges("my progress since march")
	require.Len(t, ranges, 1)
	assert.Equal(t, "since_march", ranges[0].Label)
	assert.Equal(t, day(2026, time.March, 1), ranges[0].Start)
	assert.Equal(t, day(2026, time.August, 31), ranges[0].End)
}

func TestExtractDateRangesSeasonal(t *testing.T) {
	p := fixedProcessor(day(2026, time.August, 31))

	ranges := p.ExtractDateRanges("how did my weight change over the summer")
	require.Len(t, ranges, 1)
	assert.Equal(t, model.RangeSeasonal, ranges[0].Source)
	assert.Equal(t, "summer", ranges[0].Label)
	assert.Equal(t, day(2026, time.June, 1), ranges[0].Start)
	assert.Equal(t, day(2026, time.August, 31), ranges[0].End)
}

// Winter spans the year boundary; its end lands in February of the next
// year, honoring leap years.
func TestExtractDateRangesWinterWrapsYear(t *testing.T) {
	p := fixedProcessor(day(2027, time.November, 10))

	ranges := p.ExtractDateRanges("my winter measurements")
	require.Len(t, ranges, 1)
	assert.Equal(t, day(2027, time.December, 1), ranges[0].Start)
	assert.Equal(t, day(2028, time.February, 29), ranges[0].End)
}

func TestExtractDateRangesIndependentExtractors(t *testing.T) {
	p := fixedProcessor(day(2026, time.August, 31))

	ranges := p.ExtractDateRanges("compare 2026-01-10 with last week and since march")
	require.Len(t, ranges, 3)

	sources := []model.RangeSource{ranges[0].Source, ranges[1].Source, ranges[2].Source}
	assert.Equal(t, []model.RangeSource{
		model.RangeExplicit, model.RangeRelative, model.RangeMonth,
	}, sources)
}

func TestDateRangeContains(t *testing.T) {
	r := model.DateRange{Start: day(2026, time.June, 1), End: day(2026, time.June, 30)}

	assert.True(t, r.Contains(time.Date(2026, time.June, 30, 23, 59, 0, 0, time.UTC)))
	assert.True(t, r.Contains(day(2026, time.June, 1)))
	assert.False(t, r.Contains(day(2026, time.July, 1)))

	assert.False(t, model.AnyContains(nil, day(2026, time.June, 15)))
	assert.True(t, model.AnyContains([]model.DateRange{r}, day(2026, time.June, 15)))
}
