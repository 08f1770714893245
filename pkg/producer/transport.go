package producer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rcookie777/pizza-api/pkg/httpx"
	"github.com/rcookie777/pizza-api/pkg/ingest"
)

const defaultTimeout = 10 * time.Second

// Transport defines the interface for sending readings
type Transport interface {
	Send(ctx context.Context, rows []ingest.Row) error
}

// StatusError is returned when the ingest endpoint answers with a non-2xx status
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.Code)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.Code, e.Message)
}

// Retryable reports whether resending the same batch could succeed
func (e *StatusError) Retryable() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

// HTTPTransport implements Transport using HTTP
type HTTPTransport struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTP creates a new HTTP transport
func NewHTTP(endpoint, apiKey string) (*HTTPTransport, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	return &HTTPTransport{
		endpoint: endpoint,
		apiKey:   apiKey,
		client: &http.Client{
			Timeout: defaultTimeout,
		},
	}, nil
}

// Send posts rows to the ingest endpoint
func (t *HTTPTransport) Send(ctx context.Context, rows []ingest.Row) error {
	if len(rows) == 0 {
		return nil
	}

	body, err := json.Marshal(ingest.IngestRequest{Measurements: rows})
	if err != nil {
		return fmt.Errorf("failed to marshal readings: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &StatusError{Code: resp.StatusCode}
		var errResp httpx.ErrorResponse
		if data, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096)); readErr == nil {
			if json.Unmarshal(data, &errResp) == nil {
				statusErr.Message = errResp.Message
			}
		}
		return statusErr
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
