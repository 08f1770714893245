// Package service wires the measurement store, the catalog and the index
// computations together for the HTTP layer and background tasks.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rcookie777/pizza-api/pkg/catalog"
	"github.com/rcookie777/pizza-api/pkg/index"
	"github.com/rcookie777/pizza-api/pkg/measurement"
	"github.com/rcookie777/pizza-api/pkg/rollup"
	"github.com/rcookie777/pizza-api/pkg/storage"
)

var (
	// ErrUnknownEstablishment is returned for ids that are not in the catalog
	ErrUnknownEstablishment = errors.New("establishment not found")

	// ErrRollupsUnavailable is returned when no rollup store is configured
	ErrRollupsUnavailable = errors.New("rollups not configured")
)

// maxConcurrentLookups bounds parallel Latest calls against the store
const maxConcurrentLookups = 8

// Options configures a Service
type Options struct {
	Store   storage.Storage
	Catalog *catalog.Catalog
	Index   index.Config

	// BaselineLag is how far back the comparison snapshot is taken (0 disables it)
	BaselineLag time.Duration

	// Rollups is optional
	Rollups rollup.Store

	// Clock defaults to time.Now
	Clock func() time.Time
}

// Service answers index queries
type Service struct {
	store       storage.Storage
	catalog     *catalog.Catalog
	cfg         index.Config
	baselineLag time.Duration
	rollups     rollup.Store
	clock       func() time.Time
}

// New creates a Service
func New(opts Options) *Service {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		store:       opts.Store,
		catalog:     opts.Catalog,
		cfg:         opts.Index,
		baselineLag: opts.BaselineLag,
		rollups:     opts.Rollups,
		clock:       clock,
	}
}

// Catalog returns the establishment catalog
func (s *Service) Catalog() *catalog.Catalog {
	return s.catalog
}

// Now returns the service clock's current time
func (s *Service) Now() time.Time {
	return s.clock()
}

// LatestAll returns the newest measurement at or before at for every catalog
// establishment that has one. Lookups run concurrently.
func (s *Service) LatestAll(ctx context.Context, at time.Time) (map[string]measurement.Measurement, error) {
	var (
		mu     sync.Mutex
		latest = make(map[string]measurement.Measurement, s.catalog.Len())
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentLookups)

	for _, id := range s.catalog.IDs() {
		id := id
		g.Go(func() error {
			m, err := s.store.Latest(ctx, id, at)
			if errors.Is(err, storage.ErrNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("latest %s: %w", id, err)
			}

			mu.Lock()
			latest[id] = m
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return latest, nil
}

// LiveIndex computes the snapshot at the current time. When a baseline lag is
// configured and data existed at now-lag, the change fields compare against it.
func (s *Service) LiveIndex(ctx context.Context) (index.Snapshot, error) {
	return s.SnapshotAt(ctx, s.clock())
}

// SnapshotAt computes the snapshot as it would have been at the given time
func (s *Service) SnapshotAt(ctx context.Context, now time.Time) (index.Snapshot, error) {
	latest, err := s.LatestAll(ctx, now)
	if err != nil {
		return index.Snapshot{}, err
	}

	previous, err := s.baseline(ctx, now)
	if err != nil {
		return index.Snapshot{}, err
	}

	return index.ComputeSnapshot(latest, s.catalog, now, s.cfg, previous)
}

func (s *Service) baseline(ctx context.Context, now time.Time) (*float64, error) {
	if s.baselineLag <= 0 {
		return nil, nil
	}

	at := now.Add(-s.baselineLag)
	latest, err := s.LatestAll(ctx, at)
	if err != nil {
		return nil, err
	}

	snap, err := index.ComputeSnapshot(latest, s.catalog, at, s.cfg, nil)
	if errors.Is(err, index.ErrNoDataAvailable) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &snap.Value, nil
}

// Chart is a chart series plus the window it covers
type Chart struct {
	Interval    index.Interval     `json:"interval"`
	WindowStart time.Time          `json:"window_start"`
	WindowEnd   time.Time          `json:"window_end"`
	Points      []index.ChartPoint `json:"data"`
}

// ChartSeries buckets every measurement of the last `days` days
func (s *Service) ChartSeries(ctx context.Context, days int, unit index.Interval) (*Chart, error) {
	if err := unit.Validate(); err != nil {
		return nil, err
	}

	end := s.clock()
	start := end.AddDate(0, 0, -days)

	rows, err := s.store.Range(ctx, storage.RangeRequest{Start: start, End: end})
	if err != nil {
		return nil, fmt.Errorf("failed to query measurements: %w", err)
	}

	points, err := index.BuildChartSeries(rows, start, end, unit, s.cfg.Scale)
	if err != nil {
		return nil, err
	}

	return &Chart{Interval: unit, WindowStart: start, WindowEnd: end, Points: points}, nil
}

// RollupSeries returns precomputed points for the last `days` days
func (s *Service) RollupSeries(ctx context.Context, days int, unit index.Interval) (*Chart, error) {
	if s.rollups == nil {
		return nil, ErrRollupsUnavailable
	}
	if err := unit.Validate(); err != nil {
		return nil, err
	}

	end := s.clock()
	start := end.AddDate(0, 0, -days)

	points, err := s.rollups.QueryRollups(ctx, unit, unit.Truncate(start.UTC()), end)
	if err != nil {
		return nil, fmt.Errorf("failed to query rollups: %w", err)
	}

	return &Chart{Interval: unit, WindowStart: start, WindowEnd: end, Points: points}, nil
}

// EstablishmentData lists an establishment's measurements, newest first.
// since <= 0 means no time filter, limit <= 0 means no limit.
func (s *Service) EstablishmentData(ctx context.Context, id string, since time.Duration, limit int) ([]measurement.Measurement, error) {
	if !s.catalog.Contains(id) {
		return nil, ErrUnknownEstablishment
	}

	req := storage.RangeRequest{
		EstablishmentID: id,
		Limit:           limit,
		Descending:      true,
	}
	if since > 0 {
		req.Start = s.clock().Add(-since)
	}

	rows, err := s.store.Range(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to query measurements: %w", err)
	}
	if rows == nil {
		rows = []measurement.Measurement{}
	}
	return rows, nil
}

// EstablishmentLatest returns the newest measurement of one establishment.
// Returns storage.ErrNotFound when it has never reported.
func (s *Service) EstablishmentLatest(ctx context.Context, id string) (measurement.Measurement, error) {
	if !s.catalog.Contains(id) {
		return measurement.Measurement{}, ErrUnknownEstablishment
	}
	return s.store.Latest(ctx, id, s.clock())
}

// EstablishmentStats summarizes one establishment over the last `days` days
func (s *Service) EstablishmentStats(ctx context.Context, id string, days int) (index.StatsSummary, error) {
	if !s.catalog.Contains(id) {
		return index.StatsSummary{}, ErrUnknownEstablishment
	}

	end := s.clock()
	start := end.AddDate(0, 0, -days)

	rows, err := s.store.Range(ctx, storage.RangeRequest{EstablishmentID: id, Start: start, End: end})
	if err != nil {
		return index.StatsSummary{}, fmt.Errorf("failed to query measurements: %w", err)
	}

	return index.ComputeStats(rows, start, end)
}

// LatestEntry is one establishment with its newest measurement, if any
type LatestEntry struct {
	Establishment measurement.Establishment `json:"restaurant"`
	Latest        *measurement.Measurement  `json:"latest_data"`
}

// LatestByEstablishment returns every catalog establishment with its newest
// measurement, in catalog order
func (s *Service) LatestByEstablishment(ctx context.Context) ([]LatestEntry, error) {
	latest, err := s.LatestAll(ctx, s.clock())
	if err != nil {
		return nil, err
	}

	entries := make([]LatestEntry, 0, s.catalog.Len())
	for _, e := range s.catalog.All() {
		entry := LatestEntry{Establishment: e}
		if m, ok := latest[e.ID]; ok {
			m := m
			entry.Latest = &m
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// EstablishmentSummary is the stats of one establishment inside a Summary
type EstablishmentSummary struct {
	Establishment measurement.Establishment `json:"restaurant"`
	Stats         index.StatsSummary        `json:"stats"`
}

// Summary covers every catalog establishment that reported in the window
type Summary struct {
	WindowStart     time.Time              `json:"window_start"`
	WindowEnd       time.Time              `json:"window_end"`
	TotalDataPoints int                    `json:"total_data_points"`
	Establishments  []EstablishmentSummary `json:"restaurants"`
}

// Summary computes per establishment stats over the last `days` days with a
// single range read
func (s *Service) Summary(ctx context.Context, days int) (*Summary, error) {
	end := s.clock()
	start := end.AddDate(0, 0, -days)

	rows, err := s.store.Range(ctx, storage.RangeRequest{Start: start, End: end})
	if err != nil {
		return nil, fmt.Errorf("failed to query measurements: %w", err)
	}

	grouped := make(map[string][]measurement.Measurement)
	for _, m := range rows {
		if s.catalog.Contains(m.EstablishmentID) {
			grouped[m.EstablishmentID] = append(grouped[m.EstablishmentID], m)
		}
	}

	summary := &Summary{
		WindowStart:    start,
		WindowEnd:      end,
		Establishments: []EstablishmentSummary{},
	}

	for _, e := range s.catalog.All() {
		group, ok := grouped[e.ID]
		if !ok {
			continue
		}

		stats, err := index.ComputeStats(group, start, end)
		if errors.Is(err, index.ErrNoDataAvailable) {
			continue
		}
		if err != nil {
			return nil, err
		}

		summary.TotalDataPoints += stats.Count
		summary.Establishments = append(summary.Establishments, EstablishmentSummary{
			Establishment: e,
			Stats:         stats,
		})
	}

	return summary, nil
}
