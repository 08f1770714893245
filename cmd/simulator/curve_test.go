package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rcookie777/pizza-api/pkg/catalog"
	"github.com/rcookie777/pizza-api/pkg/ingest"
	"github.com/rcookie777/pizza-api/pkg/producer"
	"github.com/rcookie777/pizza-api/pkg/storage"
	"github.com/rcookie777/pizza-api/pkg/storage/memory"
)

func TestCurve_ReadingsWithinBounds(t *testing.T) {
	curve := NewCurve(time.UTC, 42)
	start := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	for ts := start; ts.Before(start.Add(7 * 24 * time.Hour)); ts = ts.Add(10 * time.Minute) {
		for _, id := range catalog.Default().IDs() {
			row := curve.Reading(id, ts)
			if p := *row.CurrentPopularity; p < 0 || p > 100 {
				t.Fatalf("popularity %d out of range at %v", p, ts)
			}
			if row.RestaurantID != id || !row.Timestamp.Equal(ts) {
				t.Fatalf("unexpected row %+v", row)
			}
		}
	}
}

func TestCurve_Deterministic(t *testing.T) {
	ts := time.Date(2025, 6, 2, 19, 0, 0, 0, time.UTC)
	a, b := NewCurve(time.UTC, 7), NewCurve(time.UTC, 7)

	for i := 0; i < 20; i++ {
		ra, rb := a.Reading("extreme_pizza", ts), b.Reading("extreme_pizza", ts)
		if *ra.CurrentPopularity != *rb.CurrentPopularity {
			t.Fatalf("same seed gave %d and %d", *ra.CurrentPopularity, *rb.CurrentPopularity)
		}
	}
}

func TestCurve_DinnerBusierThanDawn(t *testing.T) {
	curve := NewCurve(time.UTC, 1)
	monday := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	dinner := curve.Expected("colony_grill", monday.Add(19*time.Hour))
	dawn := curve.Expected("colony_grill", monday.Add(5*time.Hour))
	if dinner <= dawn {
		t.Errorf("dinner %.1f should exceed dawn %.1f", dinner, dawn)
	}

	friday := monday.Add(4 * 24 * time.Hour)
	if curve.Expected("colony_grill", friday.Add(19*time.Hour)) <= dinner {
		t.Error("friday dinner should be busier than monday dinner")
	}
}

func TestCurve_UsesLocation(t *testing.T) {
	eastern := time.FixedZone("EDT", -4*3600)
	utc := NewCurve(time.UTC, 1)
	edt := NewCurve(eastern, 1)

	// 23:00 UTC is 19:00 EDT
	ts := time.Date(2025, 6, 2, 23, 0, 0, 0, time.UTC)
	if edt.Expected("wise_guy", ts) == utc.Expected("wise_guy", ts) {
		t.Error("curve should be evaluated in its own location")
	}
	if got, want := edt.Expected("wise_guy", ts), hourlyProfile[19]*restaurantScale("wise_guy"); got != want {
		t.Errorf("Expected() = %v, want %v", got, want)
	}
}

func TestRestaurantScale(t *testing.T) {
	for _, id := range catalog.Default().IDs() {
		s := restaurantScale(id)
		if s < 0.7 || s >= 1.1 {
			t.Errorf("scale for %s = %v, want [0.7, 1.1)", id, s)
		}
		if s != restaurantScale(id) {
			t.Errorf("scale for %s is not stable", id)
		}
	}
}

func TestBackfill_ThroughIngest(t *testing.T) {
	store := memory.New()
	handler := ingest.NewHandler(store, catalog.Default())
	server := httptest.NewServer(http.HandlerFunc(handler.HandleIngest))
	defer server.Close()

	client, err := producer.New(producer.ClientConfig{Endpoint: server.URL, FlushEvery: time.Hour, MaxRetries: -1})
	if err != nil {
		t.Fatal(err)
	}
	if err := client.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	cat := catalog.Default()
	end := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	start := end.Add(-2 * time.Hour)
	n := backfill(client, cat, NewCurve(time.UTC, 3), start, end, 15*time.Minute)

	if err := client.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	want := 9 * cat.Len()
	if n != want {
		t.Errorf("backfill recorded %d readings, want %d", n, want)
	}

	rows, err := store.Range(context.Background(), storage.RangeRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != want {
		t.Errorf("stored %d rows, want %d", len(rows), want)
	}
}
