package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rcookie777/pizza-api/pkg/catalog"
	"github.com/rcookie777/pizza-api/pkg/ingest"
	"github.com/rcookie777/pizza-api/pkg/measurement"
	"github.com/rcookie777/pizza-api/pkg/storage"
)

// MaxImportBatchSize is the maximum number of measurements to write at once
const MaxImportBatchSize = 5000

// ErrInvalidDocument is returned when the import body is not an export document
var ErrInvalidDocument = errors.New("invalid import document")

// Importer handles importing measurements from backup files
type Importer struct {
	storage   storage.Storage
	validator *ingest.Validator
}

// NewImporter creates a new importer. Rows are checked against cat.
func NewImporter(store storage.Storage, cat *catalog.Catalog) *Importer {
	return &Importer{
		storage:   store,
		validator: ingest.NewValidator(cat),
	}
}

// ImportResult contains stats about the import operation
type ImportResult struct {
	MeasurementsImported int       `json:"measurements_imported"`
	BatchesWritten       int       `json:"batches_written"`
	TimeRange            string    `json:"time_range"`
	ImportedAt           time.Time `json:"imported_at"`
	Errors               []string  `json:"errors,omitempty"`
}

// ImportData is the accepted JSON layout. It matches Document, but rows are
// decoded in their wire form so missing popularity is detected.
type ImportData struct {
	Metadata     Metadata     `json:"metadata"`
	Measurements []ingest.Row `json:"measurements"`
}

// ImportFromJSON imports measurements from a JSON backup file
func (im *Importer) ImportFromJSON(ctx context.Context, r io.Reader) (*ImportResult, error) {
	var data ImportData
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	if len(data.Measurements) == 0 {
		return &ImportResult{
			TimeRange:  "empty",
			ImportedAt: time.Now().UTC(),
		}, nil
	}

	var validationErrors []string
	valid := make([]measurement.Measurement, 0, len(data.Measurements))
	for i, row := range data.Measurements {
		m, err := im.validator.ValidateRow(row)
		if err != nil {
			validationErrors = append(validationErrors, fmt.Sprintf("measurement %d: %v", i, err))
			continue
		}
		valid = append(valid, m)
	}

	// Write in batches to avoid overwhelming storage
	batchCount := 0
	for i := 0; i < len(valid); i += MaxImportBatchSize {
		end := i + MaxImportBatchSize
		if end > len(valid) {
			end = len(valid)
		}

		if err := im.storage.Write(ctx, valid[i:end]); err != nil {
			return nil, fmt.Errorf("failed to write batch %d: %w", batchCount, err)
		}
		batchCount++
	}

	result := &ImportResult{
		MeasurementsImported: len(valid),
		BatchesWritten:       batchCount,
		TimeRange:            "empty",
		ImportedAt:           time.Now().UTC(),
		Errors:               validationErrors,
	}

	if len(valid) > 0 {
		minTime, maxTime := valid[0].Timestamp, valid[0].Timestamp
		for _, m := range valid {
			if m.Timestamp.Before(minTime) {
				minTime = m.Timestamp
			}
			if m.Timestamp.After(maxTime) {
				maxTime = m.Timestamp
			}
		}
		result.TimeRange = timeRange(minTime, maxTime)
	}

	return result, nil
}
