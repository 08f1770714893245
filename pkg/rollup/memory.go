package rollup

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rcookie777/pizza-api/pkg/index"
)

// MemoryStore keeps rollups in process memory
type MemoryStore struct {
	mu     sync.RWMutex
	points map[index.Interval]map[int64]index.ChartPoint
}

// NewMemoryStore creates an empty in-memory rollup store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		points: make(map[index.Interval]map[int64]index.ChartPoint),
	}
}

// UpsertRollups stores points, replacing existing buckets
func (s *MemoryStore) UpsertRollups(ctx context.Context, unit index.Interval, points []index.ChartPoint) error {
	if err := unit.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byStart, ok := s.points[unit]
	if !ok {
		byStart = make(map[int64]index.ChartPoint)
		s.points[unit] = byStart
	}
	for _, p := range points {
		byStart[p.BucketStart.UnixNano()] = p
	}
	return nil
}

// QueryRollups returns points with bucket start in [start, end), ascending
func (s *MemoryStore) QueryRollups(ctx context.Context, unit index.Interval, start, end time.Time) ([]index.ChartPoint, error) {
	if err := unit.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	points := []index.ChartPoint{}
	for _, p := range s.points[unit] {
		if !start.IsZero() && p.BucketStart.Before(start) {
			continue
		}
		if !end.IsZero() && !p.BucketStart.Before(end) {
			continue
		}
		points = append(points, p)
	}

	sort.Slice(points, func(i, j int) bool {
		return points[i].BucketStart.Before(points[j].BucketStart)
	})
	return points, nil
}
