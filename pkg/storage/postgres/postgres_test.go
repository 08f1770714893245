package postgres

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcookie777/pizza-api/pkg/index"
	"github.com/rcookie777/pizza-api/pkg/measurement"
	"github.com/rcookie777/pizza-api/pkg/storage"
)

func TestBuildRangeQuery(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	tests := []struct {
		name     string
		req      storage.RangeRequest
		contains []string
		args     int
	}{
		{
			name:     "unfiltered",
			req:      storage.RangeRequest{},
			contains: []string{"current_popularity IS NOT NULL", "ORDER BY timestamp ASC, id ASC"},
			args:     0,
		},
		{
			name:     "window and establishment",
			req:      storage.RangeRequest{EstablishmentID: "wise_guy", Start: start, End: end},
			contains: []string{"restaurant_id = $1", "timestamp >= $2", "timestamp < $3"},
			args:     3,
		},
		{
			name:     "descending with limit",
			req:      storage.RangeRequest{Start: start, Descending: true, Limit: 5},
			contains: []string{"timestamp >= $1", "ORDER BY timestamp DESC", "LIMIT $2"},
			args:     2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args := buildRangeQuery(tt.req)
			for _, c := range tt.contains {
				assert.True(t, strings.Contains(query, c), "query missing %q:\n%s", c, query)
			}
			assert.Len(t, args, tt.args)
		})
	}
}

// TestPostgresStorage_RoundTrip runs against a real database when
// PIZZA_TEST_DATABASE_URL is set.
func TestPostgresStorage_RoundTrip(t *testing.T) {
	dsn := os.Getenv("PIZZA_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("PIZZA_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	store, err := New(ctx, Config{DSN: dsn})
	require.NoError(t, err)
	defer store.Close()

	id := "test_" + time.Now().Format("150405.000000")
	base := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, store.Write(ctx, []measurement.Measurement{
		{EstablishmentID: id, Timestamp: base, Popularity: 10},
		{EstablishmentID: id, Timestamp: base.Add(time.Minute), Popularity: 20},
	}))

	m, err := store.Latest(ctx, id, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 20, m.Popularity)

	rows, err := store.Range(ctx, storage.RangeRequest{EstablishmentID: id})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	bucket := base.Truncate(time.Hour)
	require.NoError(t, store.UpsertRollups(ctx, index.IntervalHour, []index.ChartPoint{
		{BucketStart: bucket, Value: 112, AvgPopularity: 15, SampleCount: 2},
	}))
	points, err := store.QueryRollups(ctx, index.IntervalHour, bucket, bucket.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, 2, points[0].SampleCount)
}
