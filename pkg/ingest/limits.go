package ingest

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/rcookie777/pizza-api/pkg/catalog"
	"github.com/rcookie777/pizza-api/pkg/config"
	"github.com/rcookie777/pizza-api/pkg/measurement"
)

// MaxMeasurementsPerRequest caps a single ingest batch
const MaxMeasurementsPerRequest = config.IngestMaxBatch

var (
	// ErrTooManyMeasurements is returned when an ingest request contains too many rows
	ErrTooManyMeasurements = fmt.Errorf("too many measurements in request (max %d)", MaxMeasurementsPerRequest)

	// ErrEmptyBatch is returned for a request without rows
	ErrEmptyBatch = errors.New("no measurements in request")

	// ErrUnknownEstablishment is returned for rows whose id is not in the catalog
	ErrUnknownEstablishment = errors.New("unknown establishment")

	// ErrInvalidMeasurement wraps field validation failures
	ErrInvalidMeasurement = errors.New("invalid measurement")
)

// Row is the wire shape accepted from the producer. Popularity is a pointer
// so a missing value is rejected instead of read as zero.
type Row struct {
	RestaurantID      string    `json:"restaurant_id" validate:"required,max=128"`
	Timestamp         time.Time `json:"timestamp" validate:"required"`
	CurrentPopularity *int      `json:"current_popularity" validate:"required,gte=0,lte=100"`
	Rating            *float64  `json:"rating,omitempty" validate:"omitempty,gte=0,lte=5"`
	RatingCount       *int      `json:"rating_count,omitempty" validate:"omitempty,gte=0"`
	TimeSpentMin      *int      `json:"time_spent_min,omitempty" validate:"omitempty,gte=0"`
	TimeSpentMax      *int      `json:"time_spent_max,omitempty" validate:"omitempty,gte=0"`
}

// Measurement converts a validated row
func (r Row) Measurement() measurement.Measurement {
	return measurement.Measurement{
		EstablishmentID: r.RestaurantID,
		Timestamp:       r.Timestamp,
		Popularity:      *r.CurrentPopularity,
		Rating:          r.Rating,
		RatingCount:     r.RatingCount,
		BusyMin:         r.TimeSpentMin,
		BusyMax:         r.TimeSpentMax,
	}
}

// Validator checks rows against field rules and the catalog
type Validator struct {
	validate *validator.Validate
	catalog  *catalog.Catalog
}

// NewValidator creates a validator for the given catalog
func NewValidator(cat *catalog.Catalog) *Validator {
	return &Validator{
		validate: validator.New(),
		catalog:  cat,
	}
}

// ValidateBatch checks the batch size and every row, returning the
// converted measurements
func (v *Validator) ValidateBatch(rows []Row) ([]measurement.Measurement, error) {
	if len(rows) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(rows) > MaxMeasurementsPerRequest {
		return nil, fmt.Errorf("%w: got %d", ErrTooManyMeasurements, len(rows))
	}

	out := make([]measurement.Measurement, 0, len(rows))
	for i, r := range rows {
		m, err := v.ValidateRow(r)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out = append(out, m)
	}
	return out, nil
}

// ValidateRow checks a single row
func (v *Validator) ValidateRow(r Row) (measurement.Measurement, error) {
	if err := v.validate.Struct(r); err != nil {
		return measurement.Measurement{}, fmt.Errorf("%w: %v", ErrInvalidMeasurement, err)
	}
	if r.TimeSpentMin != nil && r.TimeSpentMax != nil && *r.TimeSpentMin > *r.TimeSpentMax {
		return measurement.Measurement{}, fmt.Errorf("%w: time_spent_min exceeds time_spent_max", ErrInvalidMeasurement)
	}
	if !v.catalog.Contains(r.RestaurantID) {
		return measurement.Measurement{}, fmt.Errorf("%w: %q", ErrUnknownEstablishment, r.RestaurantID)
	}

	m := r.Measurement()
	if err := measurement.Validate(m); err != nil {
		return measurement.Measurement{}, fmt.Errorf("%w: %v", ErrInvalidMeasurement, err)
	}
	return m, nil
}
