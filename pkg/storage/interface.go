package storage

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rcookie777/pizza-api/pkg/measurement"
)

// ErrNotFound is returned when no measurement matches a lookup.
var ErrNotFound = errors.New("no measurement found")

// Storage defines the interface for measurement storage backends.
// Implementations: memory (testing), badger (embedded), postgres, supabase (hosted REST)
type Storage interface {
	// Write appends measurements
	Write(ctx context.Context, rows []measurement.Measurement) error

	// Latest returns the newest measurement of an establishment stamped at or before at.
	// Returns ErrNotFound when there is none.
	Latest(ctx context.Context, establishmentID string, at time.Time) (measurement.Measurement, error)

	// Range returns measurements in [Start, End) ordered by timestamp
	Range(ctx context.Context, req RangeRequest) ([]measurement.Measurement, error)

	// Delete removes measurements older than the given time
	Delete(ctx context.Context, before time.Time) error

	// Close cleanly shuts down the storage
	Close() error

	// Stats returns storage statistics
	Stats(ctx context.Context) (*Stats, error)
}

// RangeRequest specifies which measurements to retrieve
type RangeRequest struct {
	// Establishment filter (empty = all establishments)
	EstablishmentID string

	// Half-open time range [Start, End). Zero values leave that side open.
	Start time.Time
	End   time.Time

	// Limit number of results (0 = no limit). Applied after ordering.
	Limit int

	// Descending returns newest first
	Descending bool
}

// Matches reports whether m satisfies the request filters.
func (r RangeRequest) Matches(m measurement.Measurement) bool {
	if r.EstablishmentID != "" && m.EstablishmentID != r.EstablishmentID {
		return false
	}
	return m.InWindow(r.Start, r.End)
}

// Stats provides storage health and usage info
type Stats struct {
	// Total measurements stored
	TotalMeasurements uint64 `json:"total_measurements"`

	// Establishments with at least one measurement
	TotalEstablishments uint64 `json:"total_establishments"`

	// Storage size in bytes (estimate for non-disk backends)
	SizeBytes uint64 `json:"size_bytes"`

	// Oldest and newest measurement timestamps
	Oldest time.Time `json:"oldest"`
	Newest time.Time `json:"newest"`
}

// SortByTime orders rows by timestamp, keeping the input order of equal timestamps.
func SortByTime(rows []measurement.Measurement, descending bool) {
	if descending {
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].Timestamp.After(rows[j].Timestamp)
		})
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Timestamp.Before(rows[j].Timestamp)
	})
}

// ApplyLimit truncates rows to the request limit.
func (r RangeRequest) ApplyLimit(rows []measurement.Measurement) []measurement.Measurement {
	if r.Limit > 0 && len(rows) > r.Limit {
		return rows[:r.Limit]
	}
	return rows
}
