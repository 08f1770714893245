package badger

import (
	"encoding/binary"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Key prefixes partition the keyspace.
const (
	prefixMeasurement byte = 0x01
	prefixRollup      byte = 0x02
)

var sequenceKey = []byte{0xff, 's', 'e', 'q'}

// Measurement key layout:
// [prefix (1)][establishment hash (8)][timestamp (8)][sequence (8)]
const measurementKeyLen = 1 + 8 + 8 + 8

func establishmentPrefix(id string) []byte {
	key := make([]byte, 9)
	key[0] = prefixMeasurement
	binary.BigEndian.PutUint64(key[1:9], xxhash.Sum64String(id))
	return key
}

func measurementKey(id string, ts time.Time, seq uint64) []byte {
	key := make([]byte, measurementKeyLen)
	copy(key, establishmentPrefix(id))
	binary.BigEndian.PutUint64(key[9:17], encodeTime(ts))
	binary.BigEndian.PutUint64(key[17:25], seq)
	return key
}

// seekFrom returns the first possible key at ts under prefix
func seekFrom(prefix []byte, ts time.Time) []byte {
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], encodeTime(ts))
	return key
}

// seekAfter returns a key greater than every key at ts under prefix,
// for reverse iteration.
func seekAfter(prefix []byte, ts time.Time) []byte {
	key := make([]byte, len(prefix)+16)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], encodeTime(ts))
	binary.BigEndian.PutUint64(key[len(prefix)+8:], ^uint64(0))
	return key
}

func parseMeasurementKey(key []byte) (time.Time, uint64) {
	ts := decodeTime(binary.BigEndian.Uint64(key[9:17]))
	seq := binary.BigEndian.Uint64(key[17:25])
	return ts, seq
}

func keyHash(key []byte) uint64 {
	return binary.BigEndian.Uint64(key[1:9])
}

// encodeTime flips the sign bit so pre-1970 timestamps still sort first
func encodeTime(ts time.Time) uint64 {
	return uint64(ts.UnixNano()) ^ (1 << 63)
}

func decodeTime(v uint64) time.Time {
	return time.Unix(0, int64(v^(1<<63)))
}
