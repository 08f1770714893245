package export

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rcookie777/pizza-api/pkg/catalog"
	"github.com/rcookie777/pizza-api/pkg/config"
	"github.com/rcookie777/pizza-api/pkg/httpx"
	"github.com/rcookie777/pizza-api/pkg/logging"
	"github.com/rcookie777/pizza-api/pkg/storage"
)

// ErrUnknownRestaurant is returned for a restaurant filter outside the catalog
var ErrUnknownRestaurant = errors.New("restaurant not found")

// Handler handles export/import HTTP endpoints
type Handler struct {
	exporter *Exporter
	importer *Importer
	catalog  *catalog.Catalog
	now      func() time.Time
}

// NewHandler creates a new export/import handler
func NewHandler(store storage.Storage, cat *catalog.Catalog) *Handler {
	return &Handler{
		exporter: NewExporter(store),
		importer: NewImporter(store, cat),
		catalog:  cat,
		now:      time.Now,
	}
}

// HandleExport handles GET /v1/export
// Query params:
//   - format: "json" or "csv" (default: json)
//   - start: RFC3339 timestamp (default: 24h before end)
//   - end: RFC3339 timestamp (default: now)
//   - restaurant: establishment id (optional)
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.RespondErrorString(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	query := r.URL.Query()

	format := query.Get("format")
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "csv" {
		httpx.RespondErrorString(w, http.StatusBadRequest, "Invalid format. Must be 'json' or 'csv'")
		return
	}

	end, err := parseTimeParam(query.Get("end"), h.now())
	if err != nil {
		httpx.RespondErrorString(w, http.StatusBadRequest, "Invalid end: "+err.Error())
		return
	}
	start, err := parseTimeParam(query.Get("start"), end.Add(-config.DefaultExportWindow))
	if err != nil {
		httpx.RespondErrorString(w, http.StatusBadRequest, "Invalid start: "+err.Error())
		return
	}

	if !start.Before(end) {
		httpx.RespondErrorString(w, http.StatusBadRequest, "start must be before end")
		return
	}
	if end.Sub(start) > config.MaxExportWindow {
		httpx.RespondErrorString(w, http.StatusBadRequest,
			fmt.Sprintf("Time range too large. Maximum is %v", config.MaxExportWindow))
		return
	}

	opts := ExportOptions{
		Start:           start,
		End:             end,
		EstablishmentID: query.Get("restaurant"),
		Format:          format,
	}
	if opts.EstablishmentID != "" && !h.catalog.Contains(opts.EstablishmentID) {
		httpx.RespondError(w, http.StatusNotFound, ErrUnknownRestaurant)
		return
	}

	timestamp := h.now().UTC().Format("20060102-150405")
	filename := fmt.Sprintf("pizza-index-export-%s.%s", timestamp, format)
	if format == "json" {
		w.Header().Set("Content-Type", "application/json")
	} else {
		w.Header().Set("Content-Type", "text/csv")
	}
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)

	log := logging.FromContext(r.Context(), "export")

	var result *ExportResult
	if format == "json" {
		result, err = h.exporter.ExportToJSON(r.Context(), w, opts)
	} else {
		result, err = h.exporter.ExportToCSV(r.Context(), w, opts)
	}
	if err != nil {
		// Headers may already be sent; the error is still logged
		log.WithError(err).Error("export failed")
		httpx.RespondError(w, http.StatusInternalServerError, err)
		return
	}

	log.WithFields(logrus.Fields{
		"measurements": result.MeasurementsExported,
		"format":       format,
		"range":        result.TimeRange,
	}).Info("export complete")
}

// HandleImport handles POST /v1/import
func (h *Handler) HandleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.RespondErrorString(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		httpx.RespondErrorString(w, http.StatusBadRequest, "Content-Type must be application/json")
		return
	}

	log := logging.FromContext(r.Context(), "export")

	httpx.LimitBody(w, r, config.ImportMaxBodyBytes)

	result, err := h.importer.ImportFromJSON(r.Context(), r.Body)
	switch {
	case err == nil:
	case httpx.IsBodyTooLarge(err):
		httpx.RespondError(w, http.StatusRequestEntityTooLarge, err)
		return
	case errors.Is(err, ErrInvalidDocument):
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	default:
		log.WithError(err).Error("import failed")
		httpx.RespondError(w, http.StatusInternalServerError, fmt.Errorf("import failed: %w", err))
		return
	}

	if n := len(result.Errors); n > 0 {
		shown := result.Errors
		if n > 10 {
			shown = shown[:10]
		}
		log.WithField("errors", n).WithField("first", shown).Warn("import completed with validation errors")
	}

	log.WithFields(logrus.Fields{
		"measurements": result.MeasurementsImported,
		"batches":      result.BatchesWritten,
		"range":        result.TimeRange,
	}).Info("import complete")

	httpx.RespondJSON(w, http.StatusOK, result)
}

// parseTimeParam parses a time parameter or returns the default when empty
func parseTimeParam(param string, defaultTime time.Time) (time.Time, error) {
	if param == "" {
		return defaultTime, nil
	}

	if t, err := time.Parse(time.RFC3339, param); err == nil {
		return t, nil
	}

	// Simple datetime format, read as UTC
	t, err := time.Parse("2006-01-02T15:04:05", param)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected RFC3339, got %q", param)
	}
	return t, nil
}
