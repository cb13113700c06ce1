package monitoring

import "time"

// Snapshot returns the current values tracked for the JSON API
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// AverageRequestDuration returns the mean HTTP request duration
func (m *Metrics) AverageRequestDuration() time.Duration {
	s := m.Snapshot()
	if s.RequestCount == 0 {
		return 0
	}
	return time.Duration(s.TotalDuration / float64(s.RequestCount) * float64(time.Second))
}

// UptimeSince returns the time elapsed since the collector was created
func (m *Metrics) UptimeSince() time.Duration {
	if m == nil {
		return 0
	}
	return time.Since(m.startTime)
}
