/*
Package storage provides the pluggable storage abstraction for popularity measurements.

# Storage Interface

Measurements are append-only. The engine reads them back in two ways: the
newest row of one establishment at a point in time (for the live index) and
all rows in a time window (for charts and stats).

Backends:
  - memory: In-memory storage for testing and ephemeral workloads
  - badger: BadgerDB (LSM tree) for embedded persistent storage
  - postgres: restaurant_popular_times table via a pgx connection pool
  - supabase: the same table through the hosted PostgREST API

All backends implement the Storage interface:

	type Storage interface {
	    Write(ctx context.Context, rows []measurement.Measurement) error
	    Latest(ctx context.Context, establishmentID string, at time.Time) (measurement.Measurement, error)
	    Range(ctx context.Context, req RangeRequest) ([]measurement.Measurement, error)
	    Delete(ctx context.Context, before time.Time) error
	    Stats(ctx context.Context) (*Stats, error)
	    Close() error
	}

# Ordering

Range returns rows ordered by timestamp. Rows with equal timestamps keep the
order they were written in, so callers that break ties by input order (first
and last readings in stats) see the same answer from every backend.

Latest returns ErrNotFound when the establishment has no row at or before the
requested time. Callers treat that as "not reporting", not as a failure.

# Usage Example

	store, err := badger.New(badger.Config{Path: "./data"})
	if err != nil {
	    log.Fatal(err)
	}
	defer store.Close()

	err = store.Write(ctx, []measurement.Measurement{
	    {EstablishmentID: "extreme_pizza", Timestamp: time.Now(), Popularity: 42},
	})

	rows, err := store.Range(ctx, storage.RangeRequest{
	    EstablishmentID: "extreme_pizza",
	    Start:           time.Now().Add(-24 * time.Hour),
	    End:             time.Now(),
	})

# Retention

Delete(ctx, before) removes every measurement stamped before the cutoff. The
retention task calls it when RETENTION is set; rollups live in a separate
keyspace or table and are never touched by Delete.

# Best Practices

1. Always call Close() when done to flush pending writes
2. Use context.WithTimeout() to prevent hung queries
3. Batch writes when possible
*/
package storage
