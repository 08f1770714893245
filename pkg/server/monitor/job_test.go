package monitor

import (
	"errors"
	"testing"
	"time"
)

func TestJobMonitor_RecordSuccess(t *testing.T) {
	m := NewJobMonitor("rollup", time.Hour)
	m.RecordSuccess(250 * time.Millisecond)

	status := m.Status()
	if !status.Healthy {
		t.Error("Status should be healthy after success")
	}
	if status.Name != "rollup" {
		t.Errorf("Name = %q, want rollup", status.Name)
	}
	if status.ConsecutiveErrors != 0 {
		t.Errorf("ConsecutiveErrors = %d, want 0", status.ConsecutiveErrors)
	}
	if status.LastDuration != "250ms" {
		t.Errorf("LastDuration = %q, want 250ms", status.LastDuration)
	}
}

func TestJobMonitor_RecordFailure(t *testing.T) {
	m := NewJobMonitor("rollup", time.Hour)
	m.RecordFailure(errors.New("store unavailable"))

	status := m.Status()
	if status.ConsecutiveErrors != 1 {
		t.Errorf("ConsecutiveErrors = %d, want 1", status.ConsecutiveErrors)
	}
	if status.LastError != "store unavailable" {
		t.Errorf("LastError = %q, want %q", status.LastError, "store unavailable")
	}
	if status.LastAttempt == "" {
		t.Error("LastAttempt should be set after a failure")
	}
}

func TestJobMonitor_IsHealthy(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		setup    func(*JobMonitor)
		expected bool
	}{
		{
			name:     "never succeeded",
			setup:    func(*JobMonitor) {},
			expected: false,
		},
		{
			name:     "recent success",
			setup:    func(m *JobMonitor) { m.RecordSuccess(time.Second) },
			expected: true,
		},
		{
			name: "stale success",
			setup: func(m *JobMonitor) {
				m.now = func() time.Time { return now.Add(-2 * time.Hour) }
				m.RecordSuccess(time.Second)
				m.now = func() time.Time { return now }
			},
			expected: false,
		},
		{
			name: "few failures after success",
			setup: func(m *JobMonitor) {
				m.RecordSuccess(time.Second)
				for i := 0; i < DefaultMaxConsecutiveErrors; i++ {
					m.RecordFailure(errors.New("boom"))
				}
			},
			expected: true,
		},
		{
			name: "too many failures",
			setup: func(m *JobMonitor) {
				m.RecordSuccess(time.Second)
				for i := 0; i <= DefaultMaxConsecutiveErrors; i++ {
					m.RecordFailure(errors.New("boom"))
				}
			},
			expected: false,
		},
		{
			name: "recovered",
			setup: func(m *JobMonitor) {
				for i := 0; i < 10; i++ {
					m.RecordFailure(errors.New("boom"))
				}
				m.RecordSuccess(time.Second)
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewJobMonitor("rollup", time.Hour)
			m.now = func() time.Time { return now }
			tt.setup(m)

			if got := m.IsHealthy(); got != tt.expected {
				t.Errorf("IsHealthy() = %v, want %v", got, tt.expected)
			}
			if got := m.Status().Healthy; got != tt.expected {
				t.Errorf("Status().Healthy = %v, want %v", got, tt.expected)
			}
		})
	}
}
