package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/rcookie777/pizza-api/pkg/index"
)

// Rollup key layout: [prefix (1)][interval (1)][bucket start (8)]
// A bucket has exactly one key, so re-running a rollup overwrites it.
var intervalCodes = map[index.Interval]byte{
	index.IntervalMinute: 1,
	index.IntervalHour:   2,
	index.IntervalDay:    3,
}

func rollupPrefix(unit index.Interval) ([]byte, error) {
	code, ok := intervalCodes[unit]
	if !ok {
		return nil, fmt.Errorf("%w: %q", index.ErrInvalidInterval, unit)
	}
	return []byte{prefixRollup, code}, nil
}

// UpsertRollups stores chart points for one interval, replacing any
// existing point with the same bucket start.
func (s *Storage) UpsertRollups(ctx context.Context, unit index.Interval, points []index.ChartPoint) error {
	prefix, err := rollupPrefix(unit)
	if err != nil {
		return err
	}

	_, err = withContext(ctx, "rollup upsert", func() (struct{}, error) {
		return struct{}{}, s.db.Update(func(txn *badger.Txn) error {
			for _, p := range points {
				value, err := json.Marshal(p)
				if err != nil {
					return fmt.Errorf("failed to encode rollup: %w", err)
				}
				if err := txn.Set(seekFrom(prefix, p.BucketStart), value); err != nil {
					return fmt.Errorf("failed to write rollup: %w", err)
				}
			}
			return nil
		})
	})
	return err
}

// QueryRollups returns stored points for one interval with bucket start
// in [start, end), ascending.
func (s *Storage) QueryRollups(ctx context.Context, unit index.Interval, start, end time.Time) ([]index.ChartPoint, error) {
	prefix, err := rollupPrefix(unit)
	if err != nil {
		return nil, err
	}

	return withContext(ctx, "rollup query", func() ([]index.ChartPoint, error) {
		points := []index.ChartPoint{}

		err := s.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = prefix

			it := txn.NewIterator(opts)
			defer it.Close()

			seek := prefix
			if !start.IsZero() {
				seek = seekFrom(prefix, start)
			}

			for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
				ts := decodeTime(binary.BigEndian.Uint64(it.Item().Key()[2:10]))
				if !end.IsZero() && !ts.Before(end) {
					break
				}

				var p index.ChartPoint
				if err := it.Item().Value(func(val []byte) error {
					return json.Unmarshal(val, &p)
				}); err != nil {
					return fmt.Errorf("failed to decode rollup: %w", err)
				}
				points = append(points, p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return points, nil
	})
}
