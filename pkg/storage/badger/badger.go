package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/rcookie777/pizza-api/pkg/measurement"
	"github.com/rcookie777/pizza-api/pkg/storage"
)

// Storage implements storage.Storage using BadgerDB (LSM tree).
// It also stores precomputed rollup points, see rollups.go.
type Storage struct {
	db  *badger.DB
	seq *badger.Sequence
}

// Config holds BadgerDB configuration
type Config struct {
	// Path to store database files
	Path string

	// InMemory mode (for testing)
	InMemory bool

	// MaxMemoryMB limits BadgerDB memory usage in MB (0 = use defaults)
	MaxMemoryMB int64
}

// sequenceBandwidth is how many write sequence numbers are leased at once.
const sequenceBandwidth = 1000

// New creates a BadgerDB storage backend
func New(cfg Config) (*Storage, error) {
	opts := badger.DefaultOptions(cfg.Path)

	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}

	// Popularity rows are small and arrive a few per minute, so the
	// defaults (64 MB memtable x 5) are far more than needed.
	memTableSize := int64(16 * 1024 * 1024)
	if cfg.MaxMemoryMB > 0 {
		memTableSize = cfg.MaxMemoryMB * 1024 * 1024 / 3
	}

	opts = opts.
		WithCompression(options.Snappy).
		WithNumVersionsToKeep(1).
		WithMemTableSize(memTableSize).
		WithNumMemtables(3).
		WithBlockCacheSize(memTableSize / 2).
		WithIndexCacheSize(memTableSize / 4).
		WithMaxLevels(4).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4).
		WithValueThreshold(1024).
		WithNumCompactors(2).
		WithValueLogMaxEntries(5000).
		WithValueLogFileSize(64 << 20).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	seq, err := db.GetSequence(sequenceKey, sequenceBandwidth)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to lease write sequence: %w", err)
	}

	return &Storage{db: db, seq: seq}, nil
}

// Write stores measurements in BadgerDB.
// Each row gets a sequence number so equal timestamps keep write order.
func (s *Storage) Write(ctx context.Context, rows []measurement.Measurement) error {
	_, err := withContext(ctx, "write", func() (struct{}, error) {
		return struct{}{}, s.db.Update(func(txn *badger.Txn) error {
			for i, m := range rows {
				if i%100 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}

				n, err := s.seq.Next()
				if err != nil {
					return fmt.Errorf("failed to get sequence: %w", err)
				}

				value, err := json.Marshal(m)
				if err != nil {
					return fmt.Errorf("failed to encode measurement: %w", err)
				}

				if err := txn.Set(measurementKey(m.EstablishmentID, m.Timestamp, n), value); err != nil {
					return fmt.Errorf("failed to write measurement: %w", err)
				}
			}
			return nil
		})
	})
	return err
}

// Latest returns the newest measurement of an establishment at or before at
func (s *Storage) Latest(ctx context.Context, establishmentID string, at time.Time) (measurement.Measurement, error) {
	return withContext(ctx, "latest", func() (measurement.Measurement, error) {
		var (
			latest measurement.Measurement
			found  bool
		)

		err := s.db.View(func(txn *badger.Txn) error {
			prefix := establishmentPrefix(establishmentID)

			opts := badger.DefaultIteratorOptions
			opts.Reverse = true
			opts.Prefix = prefix
			opts.PrefetchSize = 1

			it := txn.NewIterator(opts)
			defer it.Close()

			for it.Seek(seekAfter(prefix, at)); it.ValidForPrefix(prefix); it.Next() {
				m, err := decodeItem(it.Item())
				if err != nil {
					return err
				}
				// Hash collision with another establishment
				if m.EstablishmentID != establishmentID {
					continue
				}
				latest, found = m, true
				return nil
			}
			return nil
		})
		if err != nil {
			return measurement.Measurement{}, err
		}
		if !found {
			return measurement.Measurement{}, storage.ErrNotFound
		}
		return latest, nil
	})
}

// entry pairs a measurement with its write sequence for tie-breaking
type entry struct {
	m   measurement.Measurement
	seq uint64
}

// Range retrieves measurements matching the request
func (s *Storage) Range(ctx context.Context, req storage.RangeRequest) ([]measurement.Measurement, error) {
	return withContext(ctx, "range", func() ([]measurement.Measurement, error) {
		var entries []entry

		err := s.db.View(func(txn *badger.Txn) error {
			prefix := []byte{prefixMeasurement}
			if req.EstablishmentID != "" {
				prefix = establishmentPrefix(req.EstablishmentID)
			}

			opts := badger.DefaultIteratorOptions
			opts.Prefix = prefix
			opts.PrefetchSize = 100

			it := txn.NewIterator(opts)
			defer it.Close()

			start := prefix
			if req.EstablishmentID != "" && !req.Start.IsZero() {
				start = seekFrom(prefix, req.Start)
			}

			var iterCount int
			for it.Seek(start); it.ValidForPrefix(prefix); it.Next() {
				iterCount++
				if iterCount%1000 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}

				ts, seq := parseMeasurementKey(it.Item().Key())
				if !req.End.IsZero() && !ts.Before(req.End) {
					if req.EstablishmentID != "" {
						// Keys of one establishment are time ordered
						break
					}
					continue
				}
				if !req.Start.IsZero() && ts.Before(req.Start) {
					continue
				}

				m, err := decodeItem(it.Item())
				if err != nil {
					return err
				}
				if !req.Matches(m) {
					continue
				}
				entries = append(entries, entry{m: m, seq: seq})
			}
			return nil
		})
		if err != nil {
			return nil, err
		}

		sort.Slice(entries, func(i, j int) bool {
			a, b := entries[i], entries[j]
			if !a.m.Timestamp.Equal(b.m.Timestamp) {
				if req.Descending {
					return a.m.Timestamp.After(b.m.Timestamp)
				}
				return a.m.Timestamp.Before(b.m.Timestamp)
			}
			return a.seq < b.seq
		})

		results := make([]measurement.Measurement, len(entries))
		for i, e := range entries {
			results[i] = e.m
		}
		return req.ApplyLimit(results), nil
	})
}

// Delete removes measurements older than the given time.
// Rollup points are not affected.
func (s *Storage) Delete(ctx context.Context, before time.Time) error {
	_, err := withContext(ctx, "delete", func() (struct{}, error) {
		var keysToDelete [][]byte

		err := s.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = []byte{prefixMeasurement}
			opts.PrefetchValues = false

			it := txn.NewIterator(opts)
			defer it.Close()

			var iterCount int
			for it.Rewind(); it.Valid(); it.Next() {
				iterCount++
				if iterCount%1000 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}

				ts, _ := parseMeasurementKey(it.Item().Key())
				if ts.Before(before) {
					keysToDelete = append(keysToDelete, it.Item().KeyCopy(nil))
				}
			}
			return nil
		})
		if err != nil || len(keysToDelete) == 0 {
			return struct{}{}, err
		}

		// WriteBatch splits large deletes across transactions
		wb := s.db.NewWriteBatch()
		defer wb.Cancel()
		for _, key := range keysToDelete {
			if err := wb.Delete(key); err != nil {
				return struct{}{}, err
			}
		}
		return struct{}{}, wb.Flush()
	})
	return err
}

// Close shuts down BadgerDB cleanly
func (s *Storage) Close() error {
	if err := s.seq.Release(); err != nil {
		s.db.Close()
		return fmt.Errorf("failed to release sequence: %w", err)
	}
	return s.db.Close()
}

// RunGC runs BadgerDB's value log garbage collection
// discardRatio: run GC if this fraction of file can be discarded (0.5 = 50%)
// Returns nil if GC was not needed
func (s *Storage) RunGC(discardRatio float64) error {
	err := s.db.RunValueLogGC(discardRatio)
	if errors.Is(err, badger.ErrNoRewrite) {
		return nil
	}
	return err
}

// Stats returns storage statistics
func (s *Storage) Stats(ctx context.Context) (*storage.Stats, error) {
	return withContext(ctx, "stats", func() (*storage.Stats, error) {
		stats := &storage.Stats{}

		err := s.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = []byte{prefixMeasurement}
			opts.PrefetchValues = false

			it := txn.NewIterator(opts)
			defer it.Close()

			establishments := make(map[uint64]struct{})
			var iterCount int

			for it.Rewind(); it.Valid(); it.Next() {
				iterCount++
				if iterCount%1000 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}

				key := it.Item().Key()
				stats.TotalMeasurements++
				establishments[keyHash(key)] = struct{}{}

				ts, _ := parseMeasurementKey(key)
				if stats.Oldest.IsZero() || ts.Before(stats.Oldest) {
					stats.Oldest = ts
				}
				if stats.Newest.IsZero() || ts.After(stats.Newest) {
					stats.Newest = ts
				}
			}

			stats.TotalEstablishments = uint64(len(establishments))
			return nil
		})
		if err != nil {
			return nil, err
		}

		lsmSize, vlogSize := s.db.Size()
		stats.SizeBytes = uint64(lsmSize + vlogSize)
		return stats, nil
	})
}

// withContext runs fn in a goroutine and returns early if ctx is done first.
// Badger transactions cannot be interrupted, so fn keeps running in the
// background after a cancellation and its result is dropped.
func withContext[T any](ctx context.Context, op string, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)

	go func() {
		v, err := fn()
		done <- result{v: v, err: err}
	}()

	select {
	case res := <-done:
		return res.v, res.err
	case <-ctx.Done():
		return zero, fmt.Errorf("%s operation cancelled: %w", op, ctx.Err())
	}
}

func decodeItem(item *badger.Item) (measurement.Measurement, error) {
	var m measurement.Measurement
	err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &m)
	})
	if err != nil {
		return m, fmt.Errorf("failed to decode measurement: %w", err)
	}
	return m, nil
}
