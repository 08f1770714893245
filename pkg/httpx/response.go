// Package httpx provides the JSON request and response helpers shared by the handlers.
package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rcookie777/pizza-api/pkg/logging"
)

// ErrBodyTooLarge is returned when a request body exceeds its limit.
var ErrBodyTooLarge = errors.New("request body too large")

// RespondJSON writes a JSON response with the given status code and data.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Component("httpx").WithError(err).Warn("failed to encode JSON response")
	}
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// RespondError writes an error response with the given status code and error message.
func RespondError(w http.ResponseWriter, status int, err error) {
	RespondErrorString(w, status, err.Error())
}

// RespondErrorString writes an error response with the given status code and message.
func RespondErrorString(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	})
}

// LimitBody caps the request body at maxBytes. Reads past the limit fail
// with an error IsBodyTooLarge recognizes.
func LimitBody(w http.ResponseWriter, r *http.Request, maxBytes int64) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
}

// IsBodyTooLarge reports whether err came from reading past a LimitBody cap.
func IsBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.Is(err, ErrBodyTooLarge) || errors.As(err, &maxErr)
}

// DecodeJSON decodes a body of at most maxBytes into v.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}, maxBytes int64) error {
	LimitBody(w, r, maxBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if IsBodyTooLarge(err) {
			return fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, maxBytes)
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// RespondDecodeError answers a DecodeJSON failure with 413 or 400.
func RespondDecodeError(w http.ResponseWriter, err error) {
	if IsBodyTooLarge(err) {
		RespondError(w, http.StatusRequestEntityTooLarge, err)
		return
	}
	RespondError(w, http.StatusBadRequest, err)
}
