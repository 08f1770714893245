package producer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rcookie777/pizza-api/pkg/ingest"
	"github.com/rcookie777/pizza-api/pkg/logging"
)

var log = logging.Component("producer")

const (
	DefaultEndpoint   = "http://localhost:8080/v1/ingest"
	DefaultFlushEvery = 5 * time.Second
	DefaultMaxRetries = 3
	DefaultBackoff    = 500 * time.Millisecond
)

// ClientConfig holds configuration for the producer client
type ClientConfig struct {
	Endpoint     string        `json:"endpoint"`
	APIKey       string        `json:"api_key"`
	FlushEvery   time.Duration `json:"flush_every"`
	MaxBatchSize int           `json:"max_batch_size"`
	MaxRetries   int           `json:"max_retries"`
	Backoff      time.Duration `json:"backoff"`
}

// Client buffers readings and ships them to the ingest endpoint
type Client struct {
	config  ClientConfig
	batcher *Batcher

	mu      sync.Mutex
	started bool
}

// New creates a client that sends over HTTP
func New(cfg ClientConfig) (*Client, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}

	trans, err := NewHTTP(cfg.Endpoint, cfg.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}
	return NewWithTransport(cfg, trans), nil
}

// NewWithTransport creates a client on top of any Transport
func NewWithTransport(cfg ClientConfig, trans Transport) *Client {
	if cfg.FlushEvery <= 0 {
		cfg.FlushEvery = DefaultFlushEvery
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}

	return &Client{
		config: cfg,
		batcher: NewBatcher(trans, BatchConfig{
			MaxBatchSize: cfg.MaxBatchSize,
			FlushEvery:   cfg.FlushEvery,
			MaxRetries:   cfg.MaxRetries,
			Backoff:      cfg.Backoff,
		}),
	}
}

// Start begins periodic flushing
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return fmt.Errorf("client already started")
	}
	c.batcher.Start(ctx)
	c.started = true
	return nil
}

// Stop flushes remaining readings and stops the client
func (c *Client) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return nil
	}
	c.started = false

	if err := c.batcher.Stop(); err != nil {
		return fmt.Errorf("failed to flush readings: %w", err)
	}
	return nil
}

// Record queues a reading. Readings recorded before Start are discarded.
func (c *Client) Record(row ingest.Row) {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()

	if !started {
		return
	}
	c.batcher.Add(row)
}

// Flush sends buffered readings immediately
func (c *Client) Flush() error {
	return c.batcher.Flush()
}

// Sent returns the number of readings the server accepted
func (c *Client) Sent() int64 {
	return c.batcher.Sent()
}

// Dropped returns the number of readings lost to send failures
func (c *Client) Dropped() int64 {
	return c.batcher.Dropped()
}

// Reading builds a row with only the required fields set
func Reading(restaurantID string, ts time.Time, popularity int) ingest.Row {
	return ingest.Row{
		RestaurantID:      restaurantID,
		Timestamp:         ts,
		CurrentPopularity: &popularity,
	}
}
