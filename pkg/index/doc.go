/*
Package index turns raw popularity measurements into the Pizza Index.

# Units

The package exposes three pure functions:

	ComputeSnapshot   latest measurement per establishment → one index value
	BuildChartSeries  raw rows + interval                  → one point per bucket
	ComputeStats      rows for one establishment + window  → summary statistics

None of them hold state, read the clock or touch storage. The caller passes
"now", the catalog and an immutable Config, so identical inputs always give
identical outputs and any number of requests can call them concurrently.

# Index Value

Every value shown to users goes through the same Scale:

	value = Base + Factor × avg_popularity      (defaults: 100 + 0.8 × avg)

Popularity is reported on a 0–100 scale, so the index normally moves between
100 and 180. Snapshots and chart buckets share the Scale, so a live value and a
chart point computed from the same rows are equal.

# Missing Data

Zero is a real popularity reading, so an empty input is never reported as a
zero-valued index. ComputeSnapshot and ComputeStats return ErrNoDataAvailable
instead, and BuildChartSeries omits empty buckets:

	09:00 ██████ 2 samples  → point
	10:00 ███    1 sample   → point
	11:00        0 samples  → (nothing)

# Usage Example

	cfg := index.DefaultConfig()
	snap, err := index.ComputeSnapshot(latest, catalog.Default(), time.Now(), cfg, nil)
	if errors.Is(err, index.ErrNoDataAvailable) {
	    // respond 404
	}

	points, err := index.BuildChartSeries(rows, start, end, index.IntervalHour, cfg.Scale)
*/
package index
