package memory

import (
	"context"
	"sync"
	"time"

	"github.com/rcookie777/pizza-api/pkg/measurement"
	"github.com/rcookie777/pizza-api/pkg/storage"
)

// Storage stores measurements in memory. Data is lost on restart.
// Useful for testing and development.
type Storage struct {
	rows []measurement.Measurement
	mu   sync.RWMutex
}

// New creates an in-memory storage backend
func New() *Storage {
	return &Storage{
		rows: make([]measurement.Measurement, 0, 10000),
	}
}

// Write appends measurements in memory
func (s *Storage) Write(ctx context.Context, rows []measurement.Measurement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rows = append(s.rows, rows...)
	return nil
}

// Latest returns the newest measurement stamped at or before at.
// On equal timestamps the later write wins.
func (s *Storage) Latest(ctx context.Context, establishmentID string, at time.Time) (measurement.Measurement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		latest measurement.Measurement
		found  bool
	)
	for _, m := range s.rows {
		if m.EstablishmentID != establishmentID || m.Timestamp.After(at) {
			continue
		}
		if !found || !m.Timestamp.Before(latest.Timestamp) {
			latest = m
			found = true
		}
	}

	if !found {
		return measurement.Measurement{}, storage.ErrNotFound
	}
	return latest, nil
}

// Range retrieves measurements matching the request
func (s *Storage) Range(ctx context.Context, req storage.RangeRequest) ([]measurement.Measurement, error) {
	s.mu.RLock()
	var results []measurement.Measurement
	for _, m := range s.rows {
		if req.Matches(m) {
			results = append(results, m)
		}
	}
	s.mu.RUnlock()

	storage.SortByTime(results, req.Descending)
	return req.ApplyLimit(results), nil
}

// Delete removes measurements older than the given time
func (s *Storage) Delete(ctx context.Context, before time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	filtered := make([]measurement.Measurement, 0, len(s.rows))
	for _, m := range s.rows {
		if !m.Timestamp.Before(before) {
			filtered = append(filtered, m)
		}
	}

	s.rows = filtered
	return nil
}

// Close is a no-op for memory storage
func (s *Storage) Close() error {
	return nil
}

// Stats returns storage statistics
func (s *Storage) Stats(ctx context.Context) (*storage.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &storage.Stats{
		TotalMeasurements: uint64(len(s.rows)),
	}

	if len(s.rows) == 0 {
		return stats, nil
	}

	establishments := make(map[string]struct{})
	oldest := s.rows[0].Timestamp
	newest := s.rows[0].Timestamp

	for _, m := range s.rows {
		establishments[m.EstablishmentID] = struct{}{}

		if m.Timestamp.Before(oldest) {
			oldest = m.Timestamp
		}
		if m.Timestamp.After(newest) {
			newest = m.Timestamp
		}
	}

	stats.TotalEstablishments = uint64(len(establishments))
	stats.Oldest = oldest
	stats.Newest = newest

	// Rough size estimate (each row ~120 bytes)
	stats.SizeBytes = uint64(len(s.rows)) * 120

	return stats, nil
}
