package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/rcookie777/pizza-api/pkg/measurement"
	"github.com/rcookie777/pizza-api/pkg/storage"
)

const (
	measurementsTable = "restaurant_popular_times"
	aggregatesTable   = "pizza_index_aggregates"

	// PostgREST caps responses at 1000 rows by default
	pageSize = 1000
)

// Storage implements storage.Storage on top of Supabase's PostgREST API
type Storage struct {
	baseURL string
	key     string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	backoff BackoffConfig
}

// Config holds Supabase connection settings
type Config struct {
	// URL of the project, e.g. https://xyz.supabase.co
	URL string

	// ServiceRoleKey is sent as both apikey and bearer token
	ServiceRoleKey string

	// HTTPClient defaults to a client with a 30s timeout
	HTTPClient *http.Client

	// Backoff defaults to DefaultBackoff
	Backoff *BackoffConfig
}

// New creates a Supabase storage backend. No request is made until first use.
func New(cfg Config) (*Storage, error) {
	if cfg.URL == "" || cfg.ServiceRoleKey == "" {
		return nil, errors.New("supabase: URL and service role key are required")
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("supabase: invalid URL: %w", err)
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	backoff := DefaultBackoff
	if cfg.Backoff != nil {
		backoff = *cfg.Backoff
	}

	return &Storage{
		baseURL: strings.TrimRight(cfg.URL, "/") + "/rest/v1/",
		key:     cfg.ServiceRoleKey,
		client:  client,
		backoff: backoff,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "supabase",
			MaxRequests: 5,
			Interval:    1 * time.Minute,
			Timeout:     2 * time.Minute,
		}),
	}, nil
}

// row is the wire shape of restaurant_popular_times
type row struct {
	RestaurantID      string    `json:"restaurant_id"`
	Timestamp         time.Time `json:"timestamp"`
	CurrentPopularity *int      `json:"current_popularity"`
	Rating            *float64  `json:"rating,omitempty"`
	RatingCount       *int      `json:"rating_count,omitempty"`
	TimeSpentMin      *int      `json:"time_spent_min,omitempty"`
	TimeSpentMax      *int      `json:"time_spent_max,omitempty"`
}

func toRow(m measurement.Measurement) row {
	pop := m.Popularity
	return row{
		RestaurantID:      m.EstablishmentID,
		Timestamp:         m.Timestamp,
		CurrentPopularity: &pop,
		Rating:            m.Rating,
		RatingCount:       m.RatingCount,
		TimeSpentMin:      m.BusyMin,
		TimeSpentMax:      m.BusyMax,
	}
}

// toMeasurements drops rows without a popularity reading
func toMeasurements(rows []row) []measurement.Measurement {
	results := make([]measurement.Measurement, 0, len(rows))
	for _, r := range rows {
		if r.CurrentPopularity == nil {
			continue
		}
		results = append(results, measurement.Measurement{
			EstablishmentID: r.RestaurantID,
			Timestamp:       r.Timestamp,
			Popularity:      *r.CurrentPopularity,
			Rating:          r.Rating,
			RatingCount:     r.RatingCount,
			BusyMin:         r.TimeSpentMin,
			BusyMax:         r.TimeSpentMax,
		})
	}
	return results
}

// Write inserts measurements
func (s *Storage) Write(ctx context.Context, rows []measurement.Measurement) error {
	if len(rows) == 0 {
		return nil
	}

	payload := make([]row, len(rows))
	for i, m := range rows {
		payload[i] = toRow(m)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode measurements: %w", err)
	}

	return s.send(ctx, http.MethodPost, measurementsTable, nil, body, "return=minimal")
}

// Latest returns the newest measurement at or before at
func (s *Storage) Latest(ctx context.Context, establishmentID string, at time.Time) (measurement.Measurement, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("restaurant_id", "eq."+establishmentID)
	q.Set("timestamp", "lte."+formatTime(at))
	q.Set("current_popularity", "not.is.null")
	q.Set("order", "timestamp.desc,created_at.desc")
	q.Set("limit", "1")

	var rows []row
	if err := s.get(ctx, measurementsTable, q, &rows); err != nil {
		return measurement.Measurement{}, err
	}

	results := toMeasurements(rows)
	if len(results) == 0 {
		return measurement.Measurement{}, storage.ErrNotFound
	}
	return results[0], nil
}

// Range retrieves measurements matching the request, paging through results
func (s *Storage) Range(ctx context.Context, req storage.RangeRequest) ([]measurement.Measurement, error) {
	q := rangeQuery(req)

	var results []measurement.Measurement
	for offset := 0; ; offset += pageSize {
		limit := pageSize
		if req.Limit > 0 && req.Limit-len(results) < limit {
			limit = req.Limit - len(results)
		}
		q.Set("limit", strconv.Itoa(limit))
		q.Set("offset", strconv.Itoa(offset))

		var page []row
		if err := s.get(ctx, measurementsTable, q, &page); err != nil {
			return nil, err
		}
		results = append(results, toMeasurements(page)...)

		if len(page) < limit || (req.Limit > 0 && len(results) >= req.Limit) {
			break
		}
	}

	return req.ApplyLimit(results), nil
}

func rangeQuery(req storage.RangeRequest) url.Values {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("current_popularity", "not.is.null")
	if req.EstablishmentID != "" {
		q.Set("restaurant_id", "eq."+req.EstablishmentID)
	}
	if !req.Start.IsZero() {
		q.Add("timestamp", "gte."+formatTime(req.Start))
	}
	if !req.End.IsZero() {
		q.Add("timestamp", "lt."+formatTime(req.End))
	}
	if req.Descending {
		q.Set("order", "timestamp.desc,created_at.asc")
	} else {
		q.Set("order", "timestamp.asc,created_at.asc")
	}
	return q
}

// Delete removes measurements older than the given time
func (s *Storage) Delete(ctx context.Context, before time.Time) error {
	q := url.Values{}
	q.Set("timestamp", "lt."+formatTime(before))
	return s.send(ctx, http.MethodDelete, measurementsTable, q, nil, "return=minimal")
}

// Close is a no-op; the HTTP client holds no state worth releasing
func (s *Storage) Close() error {
	return nil
}

// Stats returns the row count and time bounds. The REST API exposes
// neither table size nor distinct counts, so those stay zero.
func (s *Storage) Stats(ctx context.Context) (*storage.Stats, error) {
	stats := &storage.Stats{}

	total, err := s.count(ctx, measurementsTable)
	if err != nil {
		return nil, err
	}
	stats.TotalMeasurements = total

	for _, bound := range []struct {
		order string
		dst   *time.Time
	}{
		{"timestamp.asc", &stats.Oldest},
		{"timestamp.desc", &stats.Newest},
	} {
		q := url.Values{}
		q.Set("select", "timestamp")
		q.Set("order", bound.order)
		q.Set("limit", "1")

		var rows []struct {
			Timestamp time.Time `json:"timestamp"`
		}
		if err := s.get(ctx, measurementsTable, q, &rows); err != nil {
			return nil, err
		}
		if len(rows) > 0 {
			*bound.dst = rows[0].Timestamp
		}
	}

	return stats, nil
}

func (s *Storage) count(ctx context.Context, table string) (uint64, error) {
	q := url.Values{}
	q.Set("select", "restaurant_id")
	q.Set("limit", "1")

	resp, err := s.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, s.endpoint(table, q), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Prefer", "count=exact")
		return req, nil
	})
	if err != nil {
		return 0, err
	}
	drain(resp)

	return parseContentRangeTotal(resp.Header.Get("Content-Range"))
}

// parseContentRangeTotal reads N from "0-0/N" or "*/N"
func parseContentRangeTotal(header string) (uint64, error) {
	i := strings.LastIndexByte(header, '/')
	if i < 0 || i == len(header)-1 {
		return 0, fmt.Errorf("supabase: missing count in Content-Range %q", header)
	}
	total := header[i+1:]
	if total == "*" {
		return 0, nil
	}
	return strconv.ParseUint(total, 10, 64)
}

func (s *Storage) endpoint(table string, q url.Values) string {
	u := s.baseURL + table
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func (s *Storage) get(ctx context.Context, table string, q url.Values, dst any) error {
	resp, err := s.do(ctx, func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, s.endpoint(table, q), nil)
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", table, err)
	}
	return nil
}

func (s *Storage) send(ctx context.Context, method, table string, q url.Values, body []byte, prefer string) error {
	resp, err := s.do(ctx, func() (*http.Request, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequest(method, s.endpoint(table, q), reader)
		if err != nil {
			return nil, err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Prefer", prefer)
		return req, nil
	})
	if err != nil {
		return err
	}
	drain(resp)
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
