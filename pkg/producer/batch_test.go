package producer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rcookie777/pizza-api/pkg/ingest"
)

// mockTransport records batches and fails the first `failures` sends with err
type mockTransport struct {
	mu       sync.Mutex
	batches  [][]ingest.Row
	calls    int
	failures int
	err      error
}

func (m *mockTransport) Send(ctx context.Context, rows []ingest.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.calls <= m.failures {
		return m.err
	}
	batch := make([]ingest.Row, len(rows))
	copy(batch, rows)
	m.batches = append(m.batches, batch)
	return nil
}

func (m *mockTransport) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.batches {
		n += len(b)
	}
	return n
}

func (m *mockTransport) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func testBatchConfig() BatchConfig {
	return BatchConfig{
		MaxBatchSize: 10,
		FlushEvery:   time.Hour,
		MaxRetries:   2,
		Backoff:      time.Millisecond,
	}
}

func TestNewBatcher_ClampsBatchSize(t *testing.T) {
	tests := []struct {
		name string
		size int
		want int
	}{
		{name: "zero", size: 0, want: ingest.MaxMeasurementsPerRequest},
		{name: "over server limit", size: ingest.MaxMeasurementsPerRequest + 1, want: ingest.MaxMeasurementsPerRequest},
		{name: "within limit", size: 50, want: 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBatcher(&mockTransport{}, BatchConfig{MaxBatchSize: tt.size})
			if b.config.MaxBatchSize != tt.want {
				t.Errorf("MaxBatchSize = %d, want %d", b.config.MaxBatchSize, tt.want)
			}
		})
	}
}

func TestBatcher_FlushSplitsIntoChunks(t *testing.T) {
	transport := &mockTransport{}
	b := NewBatcher(transport, testBatchConfig())

	// Bypass Add so no size-triggered flush runs
	for i := 0; i < 25; i++ {
		b.rows = append(b.rows, Reading("extreme_pizza", time.Now(), i))
	}

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	if len(transport.batches) != 3 {
		t.Fatalf("sent %d batches, want 3", len(transport.batches))
	}
	sizes := []int{10, 10, 5}
	for i, want := range sizes {
		if len(transport.batches[i]) != want {
			t.Errorf("batch %d has %d rows, want %d", i, len(transport.batches[i]), want)
		}
	}
	if *transport.batches[2][4].CurrentPopularity != 24 {
		t.Error("rows were reordered")
	}
	if b.Sent() != 25 || b.Pending() != 0 {
		t.Errorf("Sent() = %d, Pending() = %d, want 25 and 0", b.Sent(), b.Pending())
	}
}

func TestBatcher_FlushEmpty(t *testing.T) {
	transport := &mockTransport{}
	b := NewBatcher(transport, testBatchConfig())

	if err := b.Flush(); err != nil {
		t.Errorf("Flush() error = %v", err)
	}
	if transport.callCount() != 0 {
		t.Errorf("transport called %d times, want 0", transport.callCount())
	}
}

func TestBatcher_AddTriggersFlushWhenFull(t *testing.T) {
	transport := &mockTransport{}
	b := NewBatcher(transport, testBatchConfig())
	b.Start(context.Background())
	defer b.Stop()

	for i := 0; i < 10; i++ {
		b.Add(Reading("colony_grill", time.Now(), i))
	}

	deadline := time.Now().Add(2 * time.Second)
	for transport.total() < 10 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if transport.total() != 10 {
		t.Errorf("sent %d rows, want 10", transport.total())
	}
}

func TestBatcher_PeriodicFlush(t *testing.T) {
	transport := &mockTransport{}
	cfg := testBatchConfig()
	cfg.FlushEvery = 10 * time.Millisecond
	b := NewBatcher(transport, cfg)
	b.Start(context.Background())
	defer b.Stop()

	b.Add(Reading("night_hawk", time.Now(), 3))

	deadline := time.Now().Add(2 * time.Second)
	for transport.total() < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if transport.total() != 1 {
		t.Errorf("sent %d rows, want 1", transport.total())
	}
}

func TestBatcher_StopFlushesRemaining(t *testing.T) {
	transport := &mockTransport{}
	b := NewBatcher(transport, testBatchConfig())
	b.Start(context.Background())

	b.Add(Reading("wise_guy", time.Now(), 1))
	b.Add(Reading("wise_guy", time.Now(), 2))

	if err := b.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if transport.total() != 2 {
		t.Errorf("sent %d rows, want 2", transport.total())
	}
}

func TestBatcher_RetriesTransientErrors(t *testing.T) {
	transport := &mockTransport{failures: 2, err: errors.New("connection refused")}
	b := NewBatcher(transport, testBatchConfig())
	b.rows = append(b.rows, Reading("district_pizza", time.Now(), 9))

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if transport.callCount() != 3 {
		t.Errorf("transport called %d times, want 3", transport.callCount())
	}
	if b.Dropped() != 0 || b.Sent() != 1 {
		t.Errorf("Dropped() = %d, Sent() = %d, want 0 and 1", b.Dropped(), b.Sent())
	}
}

func TestBatcher_GivesUpAfterRetries(t *testing.T) {
	transport := &mockTransport{failures: 100, err: &StatusError{Code: 503}}
	b := NewBatcher(transport, testBatchConfig())
	b.rows = append(b.rows, Reading("district_pizza", time.Now(), 9))

	if err := b.Flush(); err == nil {
		t.Fatal("Flush() should fail")
	}
	if transport.callCount() != 3 {
		t.Errorf("transport called %d times, want 3", transport.callCount())
	}
	if b.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", b.Dropped())
	}
}

func TestBatcher_DoesNotRetryRejectedBatch(t *testing.T) {
	transport := &mockTransport{failures: 100, err: &StatusError{Code: 400, Message: "invalid measurement"}}
	b := NewBatcher(transport, testBatchConfig())
	b.rows = append(b.rows, Reading("district_pizza", time.Now(), 9))

	err := b.Flush()
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != 400 {
		t.Fatalf("Flush() error = %v, want 400 StatusError", err)
	}
	if transport.callCount() != 1 {
		t.Errorf("transport called %d times, want 1", transport.callCount())
	}
}
