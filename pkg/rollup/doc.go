/*
Package rollup precomputes index chart points so long chart ranges do not
have to re-read every raw measurement.

# How It Works

A Roller reads raw measurements from a storage.Storage, buckets them with
index.BuildChartSeries at minute, hour and day width, and upserts the result
into a Store keyed by (interval, bucket start):

	Raw measurements (every few minutes per establishment)
	        ↓
	Minute points   (1 per minute with data)
	Hour points     (1 per hour with data)
	Day points      (1 per day with data)

Each run recomputes whole buckets: the window start is aligned down to the
bucket boundary, so a bucket that was partial on the previous run is
overwritten with its complete value. Running the same window twice leaves the
store unchanged.

Rollups are bucketed in UTC regardless of the offset the measurements were
recorded with.

# Stores

  - memory.go: in-process map (tests, memory backend)
  - storage/badger: separate keyspace in the same database
  - storage/postgres: pizza_index_aggregates with ON CONFLICT upsert
  - storage/supabase: pizza_index_aggregates with merge-duplicates

# Usage Example

	roller := rollup.New(store, rollupStore, index.DefaultConfig().Scale)

	// Recompute the last 48 hours at every interval
	result, err := roller.RollupRecent(ctx, time.Now(), 48*time.Hour)

	// Read hourly points back
	points, err := rollupStore.QueryRollups(ctx, index.IntervalHour, start, end)
*/
package rollup
