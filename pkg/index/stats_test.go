package index

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcookie777/pizza-api/pkg/measurement"
)

func rated(m measurement.Measurement, r float64) measurement.Measurement {
	m.Rating = &r
	return m
}

func TestComputeStats_SingleRow(t *testing.T) {
	rows := []measurement.Measurement{reading("extreme_pizza", baseTime, 50)}

	s, err := ComputeStats(rows, time.Time{}, time.Time{})
	require.NoError(t, err)

	assert.Equal(t, 1, s.Count)
	assert.Equal(t, 50.0, s.Mean)
	assert.Equal(t, 50, s.Min)
	assert.Equal(t, 50, s.Max)
	assert.Equal(t, TrendFlat, s.Trend)
	assert.Equal(t, rows[0], s.First)
	assert.Equal(t, rows[0], s.Last)
}

func TestComputeStats_EmptyWindow(t *testing.T) {
	rows := []measurement.Measurement{
		reading("extreme_pizza", baseTime, 50),
		reading("extreme_pizza", baseTime.Add(time.Hour), 60),
	}

	_, err := ComputeStats(rows, baseTime.Add(2*time.Hour), baseTime.Add(3*time.Hour))
	require.ErrorIs(t, err, ErrNoDataAvailable)

	_, err = ComputeStats(nil, time.Time{}, time.Time{})
	require.ErrorIs(t, err, ErrNoDataAvailable)
}

func TestComputeStats_Trend(t *testing.T) {
	tests := []struct {
		name  string
		first int
		last  int
		want  Trend
	}{
		{name: "rising", first: 20, last: 70, want: TrendRising},
		{name: "falling", first: 70, last: 20, want: TrendFalling},
		{name: "flat", first: 45, last: 45, want: TrendFlat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := []measurement.Measurement{
				reading("colony_grill", baseTime, tt.first),
				reading("colony_grill", baseTime.Add(time.Hour), 99),
				reading("colony_grill", baseTime.Add(2*time.Hour), tt.last),
			}
			s, err := ComputeStats(rows, time.Time{}, time.Time{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Trend)
		})
	}
}

func TestComputeStats_Aggregates(t *testing.T) {
	rows := []measurement.Measurement{
		reading("wise_guy", baseTime, 10),
		reading("wise_guy", baseTime.Add(15*time.Minute), 40),
		reading("wise_guy", baseTime.Add(30*time.Minute), 25),
		reading("wise_guy", baseTime.Add(45*time.Minute), 5),
	}

	start, end := baseTime, baseTime.Add(time.Hour)
	s, err := ComputeStats(rows, start, end)
	require.NoError(t, err)

	assert.Equal(t, 4, s.Count)
	assert.Equal(t, 20.0, s.Mean)
	assert.Equal(t, 5, s.Min)
	assert.Equal(t, 40, s.Max)
	assert.Equal(t, TrendFalling, s.Trend)
	assert.Equal(t, start, s.WindowStart)
	assert.Equal(t, end, s.WindowEnd)
	assert.GreaterOrEqual(t, s.P50, float64(s.Min)*(1-percentileAccuracy))
	assert.LessOrEqual(t, s.P99, float64(s.Max)*(1+percentileAccuracy))
	assert.GreaterOrEqual(t, s.P90, s.P50)
}

func TestComputeStats_TieBreaksByInputOrder(t *testing.T) {
	rows := []measurement.Measurement{
		reading("night_hawk", baseTime, 10),
		reading("night_hawk", baseTime, 20),
		reading("night_hawk", baseTime.Add(time.Hour), 30),
		reading("night_hawk", baseTime.Add(time.Hour), 40),
	}

	s, err := ComputeStats(rows, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 10, s.First.Popularity)
	assert.Equal(t, 40, s.Last.Popularity)
}

func TestComputeStats_UnorderedInput(t *testing.T) {
	rows := []measurement.Measurement{
		reading("night_hawk", baseTime.Add(time.Hour), 80),
		reading("night_hawk", baseTime, 20),
	}

	s, err := ComputeStats(rows, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 20, s.First.Popularity)
	assert.Equal(t, 80, s.Last.Popularity)
	assert.Equal(t, TrendRising, s.Trend)
}

func TestComputeStats_Ratings(t *testing.T) {
	rows := []measurement.Measurement{
		rated(reading("district_pizza", baseTime, 30), 4.0),
		reading("district_pizza", baseTime.Add(time.Minute), 40),
		rated(reading("district_pizza", baseTime.Add(2*time.Minute), 50), 4.5),
		rated(reading("district_pizza", baseTime.Add(3*time.Minute), 60), 9.9), // out of range
	}

	s, err := ComputeStats(rows, time.Time{}, time.Time{})
	require.NoError(t, err)

	assert.Equal(t, 4, s.Count, "unrated and invalid ratings still count for popularity")
	assert.Equal(t, 45.0, s.Mean)
	assert.Equal(t, 2, s.RatedCount)
	require.NotNil(t, s.RatingMean)
	assert.InDelta(t, 4.25, *s.RatingMean, 1e-9)
	require.NotNil(t, s.LatestRating)
	assert.Equal(t, 4.5, *s.LatestRating)
}

func TestComputeStats_NoRatings(t *testing.T) {
	s, err := ComputeStats([]measurement.Measurement{reading("wise_guy", baseTime, 5)}, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Zero(t, s.RatedCount)
	assert.Nil(t, s.RatingMean)
	assert.Nil(t, s.LatestRating)
	assert.Nil(t, s.LatestReviews)
}

func TestComputeStats_LatestReviews(t *testing.T) {
	withCount := func(m measurement.Measurement, n int) measurement.Measurement {
		m.RatingCount = &n
		return m
	}
	rows := []measurement.Measurement{
		withCount(reading("night_hawk", baseTime, 30), 410),
		withCount(reading("night_hawk", baseTime.Add(time.Minute), 40), 415),
		withCount(reading("night_hawk", baseTime.Add(2*time.Minute), 50), -1), // ignored
		reading("night_hawk", baseTime.Add(3*time.Minute), 60),
	}

	s, err := ComputeStats(rows, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.NotNil(t, s.LatestReviews)
	assert.Equal(t, 415, *s.LatestReviews)
}

func TestComputeStats_NegativePopularity(t *testing.T) {
	rows := []measurement.Measurement{
		reading("wise_guy", baseTime, -20),
		reading("wise_guy", baseTime.Add(time.Minute), 20),
	}

	s, err := ComputeStats(rows, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, -20, s.Min)
	assert.Equal(t, 0.0, s.Mean)
}

func TestComputeStats_ExtremePopularity(t *testing.T) {
	rows := []measurement.Measurement{
		reading("wise_guy", baseTime, math.MinInt32),
		reading("wise_guy", baseTime.Add(time.Minute), 0),
		reading("wise_guy", baseTime.Add(2*time.Minute), math.MaxInt32),
	}

	s, err := ComputeStats(rows, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, math.MaxInt32, s.Max)
	assert.InDelta(t, float64(math.MaxInt32), s.P99, float64(math.MaxInt32)*percentileAccuracy)
}

func TestComputeStats_Idempotent(t *testing.T) {
	rows := []measurement.Measurement{
		rated(reading("colony_grill", baseTime, 12), 4.1),
		reading("colony_grill", baseTime.Add(time.Minute), 77),
		reading("colony_grill", baseTime.Add(2*time.Minute), 53),
	}

	a, err := ComputeStats(rows, baseTime, baseTime.Add(time.Hour))
	require.NoError(t, err)
	b, err := ComputeStats(rows, baseTime, baseTime.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
