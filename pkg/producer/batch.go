package producer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rcookie777/pizza-api/pkg/ingest"
)

// BatchConfig holds configuration for the batcher
type BatchConfig struct {
	MaxBatchSize int
	FlushEvery   time.Duration
	MaxRetries   int
	Backoff      time.Duration
	SendTimeout  time.Duration
}

// Batcher buffers readings and sends them periodically
type Batcher struct {
	config    BatchConfig
	transport Transport

	rows []ingest.Row
	mu   sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// Serializes sends so batches arrive in record order
	sendMu sync.Mutex

	flushing atomic.Bool
	sent     atomic.Int64
	dropped  atomic.Int64
}

// NewBatcher creates a new batcher
func NewBatcher(transport Transport, config BatchConfig) *Batcher {
	if config.MaxBatchSize <= 0 || config.MaxBatchSize > ingest.MaxMeasurementsPerRequest {
		config.MaxBatchSize = ingest.MaxMeasurementsPerRequest
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = defaultTimeout
	}
	return &Batcher{
		config:    config,
		transport: transport,
		rows:      make([]ingest.Row, 0, config.MaxBatchSize),
		done:      make(chan struct{}),
	}
}

// Start starts the periodic flush loop
func (b *Batcher) Start(ctx context.Context) {
	b.ctx, b.cancel = context.WithCancel(ctx)
	go b.flushLoop()
}

// Add buffers a reading, flushing in the background once a batch is full
func (b *Batcher) Add(row ingest.Row) {
	b.mu.Lock()
	b.rows = append(b.rows, row)
	shouldFlush := len(b.rows) >= b.config.MaxBatchSize
	b.mu.Unlock()

	// Only one background flush at a time
	if shouldFlush && b.flushing.CompareAndSwap(false, true) {
		go func() {
			defer b.flushing.Store(false)
			_ = b.Flush()
		}()
	}
}

// Flush sends every buffered reading and returns the first send error
func (b *Batcher) Flush() error {
	b.mu.Lock()
	if len(b.rows) == 0 {
		b.mu.Unlock()
		return nil
	}
	rows := make([]ingest.Row, len(b.rows))
	copy(rows, b.rows)
	b.rows = b.rows[:0]
	b.mu.Unlock()

	b.sendMu.Lock()
	defer b.sendMu.Unlock()

	var firstErr error
	for start := 0; start < len(rows); start += b.config.MaxBatchSize {
		end := start + b.config.MaxBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]

		if err := b.send(chunk); err != nil {
			b.dropped.Add(int64(len(chunk)))
			log.WithError(err).WithField("rows", len(chunk)).Warn("dropping batch")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		b.sent.Add(int64(len(chunk)))
	}
	return firstErr
}

// Stop ends the flush loop and sends whatever is still buffered
func (b *Batcher) Stop() error {
	if b.cancel != nil {
		b.cancel()
		<-b.done
	}
	return b.Flush()
}

// Pending returns the number of buffered readings
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.rows)
}

// Sent returns the number of readings accepted by the server
func (b *Batcher) Sent() int64 {
	return b.sent.Load()
}

// Dropped returns the number of readings given up on
func (b *Batcher) Dropped() int64 {
	return b.dropped.Load()
}

func (b *Batcher) flushLoop() {
	defer close(b.done)

	ticker := time.NewTicker(b.config.FlushEvery)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			if b.flushing.CompareAndSwap(false, true) {
				_ = b.Flush()
				b.flushing.Store(false)
			}
		}
	}
}

// send delivers one chunk, retrying transient failures with exponential backoff
func (b *Batcher) send(rows []ingest.Row) error {
	// Stop must still be able to drain the buffer after cancel
	parent := context.Background()

	var err error
	for attempt := 0; attempt <= b.config.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(b.config.Backoff * time.Duration(1<<(attempt-1)))
		}

		ctx, cancel := context.WithTimeout(parent, b.config.SendTimeout)
		err = b.transport.Send(ctx, rows)
		cancel()

		if err == nil {
			return nil
		}
		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.Retryable() {
			return err
		}
		log.WithError(err).WithField("attempt", attempt+1).Debug("send failed")
	}
	return err
}
