package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rcookie777/pizza-api/pkg/catalog"
	"github.com/rcookie777/pizza-api/pkg/config"
	"github.com/rcookie777/pizza-api/pkg/index"
	"github.com/rcookie777/pizza-api/pkg/ingest"
	"github.com/rcookie777/pizza-api/pkg/rollup"
	"github.com/rcookie777/pizza-api/pkg/server"
	"github.com/rcookie777/pizza-api/pkg/storage/badger"
	"github.com/rcookie777/pizza-api/pkg/storage/memory"
)

func testConfig(backend string) *config.Config {
	return &config.Config{
		Port:           config.DefaultPort,
		LogLevel:       "info",
		StoreBackend:   backend,
		Index:          index.DefaultConfig(),
		BaselineLag:    config.DefaultBaselineLag,
		RollupInterval: config.DefaultRollupInterval,
		RollupLookback: config.DefaultRollupLookback,
		CORSOrigins:    []string{"*"},
	}
}

func memoryServer(t *testing.T) *server.Server {
	t.Helper()
	backend := &server.Backend{
		Name:    config.BackendMemory,
		Store:   memory.New(),
		Rollups: rollup.NewMemoryStore(),
	}
	srv := server.New(testConfig(config.BackendMemory), backend, catalog.Default())
	t.Cleanup(func() { srv.Close() })
	return srv
}

func badgerServer(t *testing.T) *server.Server {
	t.Helper()
	store, err := badger.New(badger.Config{InMemory: true})
	if err != nil {
		t.Fatalf("Failed to create badger storage: %v", err)
	}
	backend := &server.Backend{Name: config.BackendBadger, Store: store, Rollups: store}
	srv := server.New(testConfig(config.BackendBadger), backend, catalog.Default())
	t.Cleanup(func() { srv.Close() })
	return srv
}

func ingestRows(t *testing.T, router http.Handler, rows []map[string]interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(map[string]interface{}{"measurements": rows})
	req := httptest.NewRequest("POST", "/v1/ingest", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func get(router http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
	return w
}

func sampleRows(ts time.Time) []map[string]interface{} {
	return []map[string]interface{}{
		{
			"restaurant_id":      "extreme_pizza",
			"timestamp":          ts.Format(time.RFC3339),
			"current_popularity": 40,
			"rating":             4.4,
		},
		{
			"restaurant_id":      "colony_grill",
			"timestamp":          ts.Format(time.RFC3339),
			"current_popularity": 60,
		},
	}
}

// TestE2E_IngestAndLive tests the producer write path through to the live index
func TestE2E_IngestAndLive(t *testing.T) {
	router := memoryServer(t).Router()

	w := ingestRows(t, router, sampleRows(time.Now().Add(-5*time.Minute)))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var ingestResp ingest.IngestResponse
	json.NewDecoder(w.Body).Decode(&ingestResp)
	if ingestResp.Count != 2 {
		t.Errorf("Expected 2 measurements ingested, got %d", ingestResp.Count)
	}

	w = get(router, "/pizza-index/live")
	if w.Code != http.StatusOK {
		t.Fatalf("Live index failed with status %d: %s", w.Code, w.Body.String())
	}

	var live server.LiveResponse
	if err := json.NewDecoder(w.Body).Decode(&live); err != nil {
		t.Fatalf("Failed to decode live response: %v", err)
	}

	// avg 50 -> 100 + 0.8*50
	if live.Index.Value != 140 {
		t.Errorf("Expected index value 140, got %v", live.Index.Value)
	}
	if live.Metadata.ActiveRestaurants != 2 {
		t.Errorf("Expected 2 active restaurants, got %d", live.Metadata.ActiveRestaurants)
	}
	if live.Metadata.TotalRestaurants != catalog.Default().Len() {
		t.Errorf("Expected %d total restaurants, got %d", catalog.Default().Len(), live.Metadata.TotalRestaurants)
	}
	if _, ok := live.Restaurants["extreme_pizza"]; !ok {
		t.Error("Expected extreme_pizza in live restaurants")
	}
}

// TestE2E_ChartData tests on-the-fly bucketing of ingested rows
func TestE2E_ChartData(t *testing.T) {
	router := memoryServer(t).Router()

	ts := time.Now().Add(-2 * time.Hour).Truncate(time.Hour).Add(10 * time.Minute)
	if w := ingestRows(t, router, sampleRows(ts)); w.Code != http.StatusOK {
		t.Fatalf("Ingest failed with status %d: %s", w.Code, w.Body.String())
	}

	w := get(router, "/pizza-index/chart-data?days=1&interval=hour")
	if w.Code != http.StatusOK {
		t.Fatalf("Chart data failed with status %d: %s", w.Code, w.Body.String())
	}

	var chart server.ChartResponse
	json.NewDecoder(w.Body).Decode(&chart)

	if len(chart.ChartData) != 1 {
		t.Fatalf("Expected 1 chart point, got %d", len(chart.ChartData))
	}
	// total_data_points counts raw readings, not buckets
	if chart.TotalDataPoints != 2 {
		t.Errorf("Expected 2 total data points, got %d", chart.TotalDataPoints)
	}
	point := chart.ChartData[0]
	if point.DataPoints != 2 {
		t.Errorf("Expected 2 samples in bucket, got %d", point.DataPoints)
	}
	if point.Value != 140 {
		t.Errorf("Expected bucket value 140, got %v", point.Value)
	}
	if !point.Timestamp.Equal(ts.Truncate(time.Hour)) {
		t.Errorf("Expected bucket start %v, got %v", ts.Truncate(time.Hour), point.Timestamp)
	}
}

// TestE2E_RollupsWithBadger tests ingest, rollup job and rollup reads on BadgerDB
func TestE2E_RollupsWithBadger(t *testing.T) {
	srv := badgerServer(t)
	router := srv.Router()

	if w := ingestRows(t, router, sampleRows(time.Now().Add(-10*time.Minute))); w.Code != http.StatusOK {
		t.Fatalf("Ingest failed with status %d: %s", w.Code, w.Body.String())
	}

	// Health is degraded until the first rollup succeeds
	if w := get(router, "/v1/health"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 before first rollup, got %d", w.Code)
	}

	tasks, err := srv.NewTasks(context.Background())
	if err != nil {
		t.Fatalf("Failed to create tasks: %v", err)
	}
	defer tasks.Stop()

	if err := tasks.RunRollup(context.Background()); err != nil {
		t.Fatalf("Rollup failed: %v", err)
	}

	w := get(router, "/pizza-index/rollups?days=1&interval=hour")
	if w.Code != http.StatusOK {
		t.Fatalf("Rollups failed with status %d: %s", w.Code, w.Body.String())
	}

	var chart server.ChartResponse
	json.NewDecoder(w.Body).Decode(&chart)
	if len(chart.ChartData) != 1 {
		t.Fatalf("Expected 1 rollup point, got %d: %s", len(chart.ChartData), w.Body.String())
	}
	if chart.ChartData[0].Value != 140 {
		t.Errorf("Expected rollup value 140, got %v", chart.ChartData[0].Value)
	}

	if w := get(router, "/v1/health"); w.Code != http.StatusOK {
		t.Errorf("Expected 200 after rollup, got %d: %s", w.Code, w.Body.String())
	}

	w = get(router, "/restaurant/extreme_pizza/latest")
	if w.Code != http.StatusOK {
		t.Fatalf("Latest failed with status %d: %s", w.Code, w.Body.String())
	}
}

// TestE2E_InvalidRequests tests error handling
func TestE2E_InvalidRequests(t *testing.T) {
	router := memoryServer(t).Router()

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{
			name:       "Invalid JSON",
			method:     "POST",
			path:       "/v1/ingest",
			body:       "invalid json",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Empty batch",
			method:     "POST",
			path:       "/v1/ingest",
			body:       `{"measurements":[]}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Popularity out of range",
			method:     "POST",
			path:       "/v1/ingest",
			body:       `{"measurements":[{"restaurant_id":"extreme_pizza","timestamp":"2025-06-01T12:00:00Z","current_popularity":140}]}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Unknown restaurant",
			method:     "POST",
			path:       "/v1/ingest",
			body:       `{"measurements":[{"restaurant_id":"dominos","timestamp":"2025-06-01T12:00:00Z","current_popularity":10}]}`,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "Live without data",
			method:     "GET",
			path:       "/pizza-index/live",
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "Invalid interval",
			method:     "GET",
			path:       "/pizza-index/chart-data?interval=fortnight",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Unknown restaurant data",
			method:     "GET",
			path:       "/restaurant/dominos/data",
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, bytes.NewReader([]byte(tt.body)))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
		})
	}
}
