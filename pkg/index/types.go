package index

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rcookie777/pizza-api/pkg/measurement"
)

var (
	// ErrNoDataAvailable is returned when the input holds no usable measurement.
	ErrNoDataAvailable = errors.New("no data available")

	// ErrInvalidInterval is returned for an unrecognized bucket interval.
	ErrInvalidInterval = errors.New("invalid interval")
)

// Default policy constants
const (
	DefaultScaleBase       = 100.0
	DefaultScaleFactor     = 0.8
	DefaultFreshnessWindow = 30 * time.Minute
)

// Scale maps an average popularity onto the index display scale.
type Scale struct {
	Base   float64 `json:"base"`
	Factor float64 `json:"factor"`
}

// Apply returns Base + Factor*avg. Monotone whenever Factor > 0.
func (s Scale) Apply(avg float64) float64 {
	return s.Base + s.Factor*avg
}

// Validate rejects scales that would not be strictly increasing.
func (s Scale) Validate() error {
	if !(s.Factor > 0) {
		return fmt.Errorf("scale factor must be positive, got %v", s.Factor)
	}
	return nil
}

// Config carries the policy values used by the aggregation units.
// It is passed by value and never mutated.
type Config struct {
	Scale           Scale
	FreshnessWindow time.Duration
}

// DefaultConfig returns the production policy: 100 + 0.8*avg and a 30 minute freshness window.
func DefaultConfig() Config {
	return Config{
		Scale:           Scale{Base: DefaultScaleBase, Factor: DefaultScaleFactor},
		FreshnessWindow: DefaultFreshnessWindow,
	}
}

// Snapshot is the index computed from the latest measurement of each establishment.
type Snapshot struct {
	Timestamp        time.Time                          `json:"timestamp"`
	Value            float64                            `json:"value"`
	Change           float64                            `json:"change"`
	ChangePercent    float64                            `json:"changePercent"`
	HasBaseline      bool                               `json:"has_baseline"`
	TotalPopularity  int                                `json:"total_popularity"`
	AvgPopularity    float64                            `json:"avg_popularity"`
	ActiveCount      int                                `json:"active_restaurants"`
	ReportingCount   int                                `json:"reporting_restaurants"`
	TotalCount       int                                `json:"total_restaurants"`
	PerEstablishment map[string]measurement.Measurement `json:"restaurant_data"`
}

// Interval is the width of a chart bucket.
type Interval string

const (
	IntervalMinute Interval = "minute"
	IntervalHour   Interval = "hour"
	IntervalDay    Interval = "day"
)

// Intervals lists every supported bucket width.
var Intervals = []Interval{IntervalMinute, IntervalHour, IntervalDay}

// ParseInterval converts a user supplied string into an Interval.
func ParseInterval(s string) (Interval, error) {
	i := Interval(strings.ToLower(strings.TrimSpace(s)))
	if err := i.Validate(); err != nil {
		return "", err
	}
	return i, nil
}

// Validate returns ErrInvalidInterval for unknown units.
func (i Interval) Validate() error {
	switch i {
	case IntervalMinute, IntervalHour, IntervalDay:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidInterval, string(i))
}

// Truncate rounds t down to the start of its bucket without changing its location.
// Minute and hour buckets are aligned on the offset in effect at t, so an hour
// repeated by a daylight-saving change yields two distinct buckets.
func (i Interval) Truncate(t time.Time) time.Time {
	switch i {
	case IntervalMinute:
		return truncateInZone(t, time.Minute)
	case IntervalDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	default:
		return truncateInZone(t, time.Hour)
	}
}

func truncateInZone(t time.Time, unit time.Duration) time.Time {
	_, off := t.Zone()
	shift := time.Duration(off) * time.Second
	return t.Add(shift).Truncate(unit).Add(-shift).In(t.Location())
}

// ChartPoint is the aggregate of one non-empty bucket.
type ChartPoint struct {
	BucketStart   time.Time `json:"timestamp"`
	Value         float64   `json:"value"`
	AvgPopularity float64   `json:"avg_popularity"`
	SampleCount   int       `json:"data_points"`
}

// Trend describes the direction between the first and last reading of a window.
type Trend string

const (
	TrendRising  Trend = "rising"
	TrendFalling Trend = "falling"
	TrendFlat    Trend = "flat"
)

// StatsSummary summarizes one establishment's readings over a window.
type StatsSummary struct {
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`

	Count int     `json:"data_points"`
	Mean  float64 `json:"average"`
	Min   int     `json:"min"`
	Max   int     `json:"max"`
	P50   float64 `json:"p50"`
	P90   float64 `json:"p90"`
	P99   float64 `json:"p99"`

	First measurement.Measurement `json:"first"`
	Last  measurement.Measurement `json:"last"`
	Trend Trend                   `json:"trend"`

	// Rating statistics only include readings with a rating in [0, 5].
	RatedCount   int      `json:"rated_points"`
	RatingMean   *float64 `json:"rating_average,omitempty"`
	LatestRating *float64 `json:"rating_latest,omitempty"`
	// LatestReviews is the most recent non-negative rating count in the window.
	LatestReviews *int `json:"reviews_latest,omitempty"`
}
