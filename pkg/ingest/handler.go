package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rcookie777/pizza-api/pkg/catalog"
	"github.com/rcookie777/pizza-api/pkg/config"
	"github.com/rcookie777/pizza-api/pkg/httpx"
	"github.com/rcookie777/pizza-api/pkg/logging"
	"github.com/rcookie777/pizza-api/pkg/measurement"
	"github.com/rcookie777/pizza-api/pkg/storage"
)

// Handler accepts measurement batches from the producer
type Handler struct {
	storage   storage.Storage
	validator *Validator
	onWrite   []func([]measurement.Measurement)
}

// NewHandler creates a new ingest handler
func NewHandler(store storage.Storage, cat *catalog.Catalog) *Handler {
	return &Handler{
		storage:   store,
		validator: NewValidator(cat),
	}
}

// OnWrite registers a callback run after every successful write
func (h *Handler) OnWrite(fn func([]measurement.Measurement)) {
	h.onWrite = append(h.onWrite, fn)
}

// IngestRequest represents the request payload
type IngestRequest struct {
	Measurements []Row `json:"measurements"`
}

// IngestResponse represents the response payload
type IngestResponse struct {
	Status  string `json:"status"`
	Count   int    `json:"count"`
	Message string `json:"message,omitempty"`
}

// HandleIngest handles the /v1/ingest endpoint
func (h *Handler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.RespondErrorString(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req IngestRequest
	if err := httpx.DecodeJSON(w, r, &req, config.IngestMaxBodyBytes); err != nil {
		httpx.RespondDecodeError(w, err)
		return
	}

	rows, err := h.validator.ValidateBatch(req.Measurements)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, ErrUnknownEstablishment) {
			status = http.StatusUnprocessableEntity
		}
		httpx.RespondError(w, status, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), config.IngestTimeout)
	defer cancel()

	if err := h.storage.Write(ctx, rows); err != nil {
		logging.FromContext(r.Context(), "ingest").WithError(err).Error("write failed")
		httpx.RespondError(w, http.StatusInternalServerError, fmt.Errorf("write failed: %w", err))
		return
	}

	logging.FromContext(r.Context(), "ingest").WithField("count", len(rows)).Debug("measurements ingested")

	for _, fn := range h.onWrite {
		fn(rows)
	}

	httpx.RespondJSON(w, http.StatusOK, IngestResponse{
		Status: "success",
		Count:  len(rows),
	})
}
