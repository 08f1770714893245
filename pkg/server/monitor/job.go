// Package monitor tracks background job health and storage usage for the
// health endpoints.
package monitor

import (
	"sync"
	"time"
)

// DefaultMaxConsecutiveErrors marks a job unhealthy after this many failures in a row
const DefaultMaxConsecutiveErrors = 3

// JobMonitor tracks the health of a periodic job.
type JobMonitor struct {
	name      string
	maxAge    time.Duration
	maxErrors int
	now       func() time.Time

	mu                sync.RWMutex
	lastSuccess       time.Time
	lastAttempt       time.Time
	lastDuration      time.Duration
	consecutiveErrors int
	lastError         string
}

// NewJobMonitor creates a monitor for a job expected to succeed at least
// once every maxAge.
func NewJobMonitor(name string, maxAge time.Duration) *JobMonitor {
	return &JobMonitor{
		name:      name,
		maxAge:    maxAge,
		maxErrors: DefaultMaxConsecutiveErrors,
		now:       time.Now,
	}
}

// Name returns the job name
func (m *JobMonitor) Name() string {
	return m.name
}

// RecordSuccess records a successful run.
func (m *JobMonitor) RecordSuccess(took time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.lastSuccess = now
	m.lastAttempt = now
	m.lastDuration = took
	m.consecutiveErrors = 0
	m.lastError = ""
}

// RecordFailure records a failed run.
func (m *JobMonitor) RecordFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastAttempt = m.now()
	m.consecutiveErrors++
	if err != nil {
		m.lastError = err.Error()
	}
}

// ConsecutiveErrors returns the current failure streak
func (m *JobMonitor) ConsecutiveErrors() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.consecutiveErrors
}

// IsHealthy returns true if the job is working properly.
// Unhealthy conditions:
//   - Never succeeded
//   - Haven't succeeded within maxAge
//   - More than maxErrors consecutive failures
func (m *JobMonitor) IsHealthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.healthyLocked()
}

func (m *JobMonitor) healthyLocked() bool {
	if m.lastSuccess.IsZero() {
		return false
	}
	if m.maxAge > 0 && m.now().Sub(m.lastSuccess) > m.maxAge {
		return false
	}
	return m.consecutiveErrors <= m.maxErrors
}

// JobStatus is the health check view of a job.
type JobStatus struct {
	Name              string `json:"name"`
	Healthy           bool   `json:"healthy"`
	LastSuccess       string `json:"last_success,omitempty"`
	TimeSinceSuccess  string `json:"time_since_success,omitempty"`
	LastDuration      string `json:"last_duration,omitempty"`
	LastAttempt       string `json:"last_attempt,omitempty"`
	ConsecutiveErrors int    `json:"consecutive_errors,omitempty"`
	LastError         string `json:"last_error,omitempty"`
}

// Status returns current job status for health checks.
func (m *JobMonitor) Status() JobStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := JobStatus{
		Name:    m.name,
		Healthy: m.healthyLocked(),
	}

	if !m.lastSuccess.IsZero() {
		status.LastSuccess = m.lastSuccess.Format(time.RFC3339)
		status.TimeSinceSuccess = m.now().Sub(m.lastSuccess).Round(time.Second).String()
		status.LastDuration = m.lastDuration.Round(time.Millisecond).String()
	}

	if !m.lastAttempt.IsZero() {
		status.LastAttempt = m.lastAttempt.Format(time.RFC3339)
	}

	if m.consecutiveErrors > 0 {
		status.ConsecutiveErrors = m.consecutiveErrors
		status.LastError = m.lastError
	}

	return status
}
