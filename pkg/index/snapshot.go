package index

import (
	"time"

	"github.com/rcookie777/pizza-api/pkg/catalog"
	"github.com/rcookie777/pizza-api/pkg/measurement"
)

// ComputeSnapshot aggregates the latest measurement of every catalog
// establishment into one index value.
//
// Establishments missing from latest are skipped, never zero-filled. Entries in
// latest that are not in the catalog are ignored. previous is the value of an
// earlier snapshot; when nil the change fields stay zero and HasBaseline is false.
func ComputeSnapshot(
	latest map[string]measurement.Measurement,
	cat *catalog.Catalog,
	now time.Time,
	cfg Config,
	previous *float64,
) (Snapshot, error) {
	snap := Snapshot{
		Timestamp:        now,
		TotalCount:       cat.Len(),
		PerEstablishment: make(map[string]measurement.Measurement),
	}

	var total int
	for _, id := range cat.IDs() {
		m, ok := latest[id]
		if !ok {
			continue
		}

		snap.PerEstablishment[id] = m
		total += m.Popularity
		if isFresh(m.Timestamp, now, cfg.FreshnessWindow) {
			snap.ActiveCount++
		}
	}

	reporting := len(snap.PerEstablishment)
	if reporting == 0 {
		return Snapshot{}, ErrNoDataAvailable
	}

	snap.ReportingCount = reporting
	snap.TotalPopularity = total
	snap.AvgPopularity = float64(total) / float64(reporting)
	snap.Value = cfg.Scale.Apply(snap.AvgPopularity)

	if previous != nil {
		snap.HasBaseline = true
		snap.Change = snap.Value - *previous
		if *previous != 0 {
			snap.ChangePercent = snap.Change / *previous * 100
		}
	}

	return snap, nil
}

// isFresh reports whether ts is no older than window relative to now.
// Readings stamped after now count as fresh.
func isFresh(ts, now time.Time, window time.Duration) bool {
	return now.Sub(ts) <= window
}
