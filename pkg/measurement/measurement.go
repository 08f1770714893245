// Package measurement defines the typed records exchanged between the
// measurement store, the aggregation engine and the HTTP layer.
package measurement

import (
	"fmt"
	"time"
)

// Measurement is one popularity observation of one establishment.
// Optional fields are nil when the producer did not report them.
type Measurement struct {
	EstablishmentID string    `json:"restaurant_id"`
	Timestamp       time.Time `json:"timestamp"`
	Popularity      int       `json:"current_popularity"`
	Rating          *float64  `json:"rating,omitempty"`
	RatingCount     *int      `json:"rating_count,omitempty"`
	BusyMin         *int      `json:"time_spent_min,omitempty"`
	BusyMax         *int      `json:"time_spent_max,omitempty"`
}

// Establishment is the static identity of a tracked location.
type Establishment struct {
	ID      string `json:"id" yaml:"id"`
	Name    string `json:"name" yaml:"name"`
	Address string `json:"address" yaml:"address"`
}

// Rating bounds
const (
	MinRating = 0.0
	MaxRating = 5.0
)

// MaxIDLength limits establishment identifiers accepted at the store boundary.
const MaxIDLength = 128

var (
	// ErrEmptyID is returned for a measurement without an establishment id
	ErrEmptyID = fmt.Errorf("establishment id cannot be empty")

	// ErrIDTooLong is returned when the establishment id exceeds MaxIDLength
	ErrIDTooLong = fmt.Errorf("establishment id too long (max %d chars)", MaxIDLength)

	// ErrMissingTimestamp is returned for a measurement with a zero timestamp
	ErrMissingTimestamp = fmt.Errorf("timestamp is required")
)

// Validate checks the structural constraints every stored measurement must meet.
// Popularity and rating ranges are not checked here.
func Validate(m Measurement) error {
	if m.EstablishmentID == "" {
		return ErrEmptyID
	}
	if len(m.EstablishmentID) > MaxIDLength {
		return fmt.Errorf("%w: %q has %d chars", ErrIDTooLong, m.EstablishmentID, len(m.EstablishmentID))
	}
	if m.Timestamp.IsZero() {
		return fmt.Errorf("%w: establishment %q", ErrMissingTimestamp, m.EstablishmentID)
	}
	return nil
}

// ValidRating returns the rating and true when it is present and within [0, 5].
func (m Measurement) ValidRating() (float64, bool) {
	if m.Rating == nil {
		return 0, false
	}
	r := *m.Rating
	if r < MinRating || r > MaxRating || r != r {
		return 0, false
	}
	return r, true
}

// ValidRatingCount returns the rating count and true when it is present and non-negative.
func (m Measurement) ValidRatingCount() (int, bool) {
	if m.RatingCount == nil || *m.RatingCount < 0 {
		return 0, false
	}
	return *m.RatingCount, true
}

// InWindow reports whether the measurement falls in [start, end).
// A zero start or end leaves that side unbounded.
func (m Measurement) InWindow(start, end time.Time) bool {
	if !start.IsZero() && m.Timestamp.Before(start) {
		return false
	}
	if !end.IsZero() && !m.Timestamp.Before(end) {
		return false
	}
	return true
}
