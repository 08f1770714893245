package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/rcookie777/pizza-api/pkg/measurement"
	"github.com/rcookie777/pizza-api/pkg/storage"
)

// FormatVersion is written into JSON export metadata
const FormatVersion = "1.0"

// csvHeader lists the CSV columns in order
var csvHeader = []string{
	"restaurant_id",
	"timestamp",
	"current_popularity",
	"rating",
	"rating_count",
	"time_spent_min",
	"time_spent_max",
}

// Exporter handles exporting measurements to various formats
type Exporter struct {
	storage storage.Storage
}

// NewExporter creates a new exporter
func NewExporter(store storage.Storage) *Exporter {
	return &Exporter{storage: store}
}

// ExportOptions configures the export operation
type ExportOptions struct {
	// Time range to export, [Start, End)
	Start time.Time
	End   time.Time

	// Establishment filter ("" = all)
	EstablishmentID string

	// Format: "json" or "csv"
	Format string
}

// ExportResult contains stats about the export
type ExportResult struct {
	MeasurementsExported int       `json:"measurements_exported"`
	TimeRange            string    `json:"time_range"`
	Format               string    `json:"format"`
	ExportedAt           time.Time `json:"exported_at"`
}

// Metadata describes a JSON export
type Metadata struct {
	ExportedAt       time.Time `json:"exported_at"`
	StartTime        time.Time `json:"start_time"`
	EndTime          time.Time `json:"end_time"`
	RestaurantID     string    `json:"restaurant_id,omitempty"`
	MeasurementCount int       `json:"measurement_count"`
	Format           string    `json:"format"`
	Version          string    `json:"version"`
}

// Document is the JSON export layout
type Document struct {
	Metadata     Metadata                  `json:"metadata"`
	Measurements []measurement.Measurement `json:"measurements"`
}

func (e *Exporter) fetch(ctx context.Context, opts ExportOptions) ([]measurement.Measurement, error) {
	rows, err := e.storage.Range(ctx, storage.RangeRequest{
		EstablishmentID: opts.EstablishmentID,
		Start:           opts.Start,
		End:             opts.End,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query measurements: %w", err)
	}
	if rows == nil {
		rows = []measurement.Measurement{}
	}
	return rows, nil
}

// ExportToJSON exports measurements as JSON to the given writer
func (e *Exporter) ExportToJSON(ctx context.Context, w io.Writer, opts ExportOptions) (*ExportResult, error) {
	rows, err := e.fetch(ctx, opts)
	if err != nil {
		return nil, err
	}

	doc := Document{
		Metadata: Metadata{
			ExportedAt:       time.Now().UTC(),
			StartTime:        opts.Start,
			EndTime:          opts.End,
			RestaurantID:     opts.EstablishmentID,
			MeasurementCount: len(rows),
			Format:           "json",
			Version:          FormatVersion,
		},
		Measurements: rows,
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to encode JSON: %w", err)
	}

	return &ExportResult{
		MeasurementsExported: len(rows),
		TimeRange:            timeRange(opts.Start, opts.End),
		Format:               "json",
		ExportedAt:           doc.Metadata.ExportedAt,
	}, nil
}

// ExportToCSV exports measurements as CSV to the given writer
func (e *Exporter) ExportToCSV(ctx context.Context, w io.Writer, opts ExportOptions) (*ExportResult, error) {
	rows, err := e.fetch(ctx, opts)
	if err != nil {
		return nil, err
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, m := range rows {
		if err := writer.Write(csvRecord(m)); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush CSV: %w", err)
	}

	return &ExportResult{
		MeasurementsExported: len(rows),
		TimeRange:            timeRange(opts.Start, opts.End),
		Format:               "csv",
		ExportedAt:           time.Now().UTC(),
	}, nil
}

func csvRecord(m measurement.Measurement) []string {
	return []string{
		m.EstablishmentID,
		m.Timestamp.Format(time.RFC3339),
		strconv.Itoa(m.Popularity),
		optionalFloat(m.Rating),
		optionalInt(m.RatingCount),
		optionalInt(m.BusyMin),
		optionalInt(m.BusyMax),
	}
}

func optionalFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func optionalInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func timeRange(start, end time.Time) string {
	return fmt.Sprintf("%s to %s", start.Format(time.RFC3339), end.Format(time.RFC3339))
}
