package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcookie777/pizza-api/pkg/index"
	"github.com/rcookie777/pizza-api/pkg/measurement"
	"github.com/rcookie777/pizza-api/pkg/storage"
)

var base = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T, handler http.HandlerFunc) *Storage {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	store, err := New(Config{
		URL:            srv.URL,
		ServiceRoleKey: "test-key",
		HTTPClient:     srv.Client(),
		Backoff:        &BackoffConfig{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond},
	})
	require.NoError(t, err)
	return store
}

func TestNew_RequiresCredentials(t *testing.T) {
	_, err := New(Config{URL: "https://example.supabase.co"})
	assert.Error(t, err)
}

func TestLatest(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/restaurant_popular_times", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		q := r.URL.Query()
		assert.Equal(t, "eq.wise_guy", q.Get("restaurant_id"))
		assert.Equal(t, "lte.2025-06-01T10:00:00Z", q.Get("timestamp"))
		assert.Equal(t, "1", q.Get("limit"))

		_, _ = io.WriteString(w, `[{"restaurant_id":"wise_guy","timestamp":"2025-06-01T09:45:00+00:00","current_popularity":61,"rating":4.3}]`)
	})

	m, err := store.Latest(context.Background(), "wise_guy", base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 61, m.Popularity)
	assert.True(t, m.Timestamp.Equal(base.Add(45*time.Minute)))
	require.NotNil(t, m.Rating)
	assert.Equal(t, 4.3, *m.Rating)
}

func TestLatest_NotFound(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	})

	_, err := store.Latest(context.Background(), "wise_guy", base)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestRange_PagesAndDropsNullPopularity(t *testing.T) {
	var calls int32
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		q := r.URL.Query()
		assert.Equal(t, []string{"gte.2025-06-01T09:00:00Z", "lt.2025-06-02T09:00:00Z"}, q["timestamp"])

		if n == 1 {
			assert.Equal(t, "0", q.Get("offset"))
			rows := make([]row, pageSize)
			for i := range rows {
				pop := i % 100
				rows[i] = row{RestaurantID: "night_hawk", Timestamp: base.Add(time.Duration(i) * time.Second), CurrentPopularity: &pop}
			}
			rows[0].CurrentPopularity = nil
			_ = json.NewEncoder(w).Encode(rows)
			return
		}
		assert.Equal(t, "1000", q.Get("offset"))
		_, _ = io.WriteString(w, `[{"restaurant_id":"night_hawk","timestamp":"2025-06-01T12:00:00Z","current_popularity":7}]`)
	})

	rows, err := store.Range(context.Background(), storage.RangeRequest{
		Start: base,
		End:   base.Add(24 * time.Hour),
	})
	require.NoError(t, err)
	assert.Len(t, rows, pageSize)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, 7, rows[len(rows)-1].Popularity)
}

func TestWrite_RetriesServerErrors(t *testing.T) {
	var calls int32
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "return=minimal", r.Header.Get("Prefer"))

		var rows []row
		require.NoError(t, json.NewDecoder(r.Body).Decode(&rows))
		require.Len(t, rows, 1)
		assert.Equal(t, "colony_grill", rows[0].RestaurantID)
		w.WriteHeader(http.StatusCreated)
	})

	err := store.Write(context.Background(), []measurement.Measurement{
		{EstablishmentID: "colony_grill", Timestamp: base, Popularity: 30},
	})
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestWrite_ClientErrorNotRetried(t *testing.T) {
	var calls int32
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"message":"bad column"}`)
	})

	err := store.Write(context.Background(), []measurement.Measurement{
		{EstablishmentID: "colony_grill", Timestamp: base, Popularity: 30},
	})
	require.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestStats(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Prefer") == "count=exact" {
			w.Header().Set("Content-Range", "0-0/42")
			_, _ = io.WriteString(w, `[]`)
			return
		}
		if r.URL.Query().Get("order") == "timestamp.asc" {
			_, _ = io.WriteString(w, `[{"timestamp":"2025-06-01T09:00:00Z"}]`)
			return
		}
		_, _ = io.WriteString(w, `[{"timestamp":"2025-06-02T09:00:00Z"}]`)
	})

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(42), stats.TotalMeasurements)
	assert.True(t, stats.Oldest.Equal(base))
	assert.True(t, stats.Newest.Equal(base.Add(24*time.Hour)))
}

func TestParseContentRangeTotal(t *testing.T) {
	n, err := parseContentRangeTotal("*/0")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n)

	n, err = parseContentRangeTotal("0-999/12345")
	require.NoError(t, err)
	assert.Equal(t, uint64(12345), n)

	_, err = parseContentRangeTotal("")
	assert.Error(t, err)
}

func TestUpsertRollups_MergeDuplicates(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/pizza_index_aggregates", r.URL.Path)
		assert.Equal(t, "interval,timestamp", r.URL.Query().Get("on_conflict"))
		assert.Contains(t, r.Header.Get("Prefer"), "resolution=merge-duplicates")

		var rows []aggregateRow
		require.NoError(t, json.NewDecoder(r.Body).Decode(&rows))
		require.Len(t, rows, 1)
		assert.Equal(t, "hour", rows[0].Interval)
		assert.Equal(t, 2, rows[0].DataPoints)
		w.WriteHeader(http.StatusCreated)
	})

	err := store.UpsertRollups(context.Background(), index.IntervalHour, []index.ChartPoint{
		{BucketStart: base, Value: 140, AvgPopularity: 50, SampleCount: 2},
	})
	require.NoError(t, err)
}
