package api

import (
	"sync"
	"time"
)

// AlertType identifies the kind of anomaly detected.
type AlertType string

const (
	AlertRevealFailureSpike AlertType = "reveal_failure_spike"
	AlertAuthFailureSpike   AlertType = "auth_failure_spike"
)

// AlertEvent describes an anomaly that triggered an alert.
type AlertEvent struct {
	Type      AlertType `json:"type"`
	Message   string    `json:"message"`
	Count     int       `json:"count"`
	Threshold int       `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertFunc is the callback invoked when an anomaly is detected.
type AlertFunc func(AlertEvent)

// slidingWindow counts events inside a trailing time window.
type slidingWindow struct {
	times     []time.Time
	window    time.Duration
	threshold int
}

// add records an event at now and reports the count if the threshold was
// reached, resetting the window so one spike alerts once.
func (w *slidingWindow) add(now time.Time) (int, bool) {
	w.times = append(w.times, now)
	w.times = trimWindow(w.times, now, w.window)
	if len(w.times) < w.threshold {
		return 0, false
	}
	n := len(w.times)
	w.times = w.times[:0]
	return n, true
}

// metricsCollector tracks sliding window counters for anomaly detection.
//
// A burst of failed reveals points at corrupted rows or a wrong master
// secret after a deploy; a burst of auth failures points at token guessing.
type metricsCollector struct {
	mu sync.Mutex

	revealFailures slidingWindow
	authFailures   slidingWindow

	alertFn AlertFunc
	now     func() time.Time
}

const (
	defaultRevealFailureWindow    = 5 * time.Minute
	defaultRevealFailureThreshold = 10
	defaultAuthFailureWindow      = time.Minute
	defaultAuthFailureThreshold   = 50
)

func newMetricsCollector(alertFn AlertFunc) *metricsCollector {
	return &metricsCollector{
		revealFailures: slidingWindow{window: defaultRevealFailureWindow, threshold: defaultRevealFailureThreshold},
		authFailures:   slidingWindow{window: defaultAuthFailureWindow, threshold: defaultAuthFailureThreshold},
		alertFn:        alertFn,
		now:            time.Now,
	}
}

// recordEvent inspects an audit event and updates the relevant counters.
func (m *metricsCollector) recordEvent(event AuditEvent) {
	if m == nil || m.alertFn == nil {
		return
	}
	switch event {
	case AuditCredentialRevealFailed:
		m.record(&m.revealFailures, AlertRevealFailureSpike, "credential reveal failure rate exceeds threshold")
	case AuditAuthFailure:
		m.record(&m.authFailures, AlertAuthFailureSpike, "authentication failure rate exceeds threshold")
	}
}

func (m *metricsCollector) record(w *slidingWindow, typ AlertType, msg string) {
	m.mu.Lock()
	now := m.now()
	count, fire := w.add(now)
	threshold := w.threshold
	m.mu.Unlock()

	if fire {
		m.alertFn(AlertEvent{
			Type:      typ,
			Message:   msg,
			Count:     count,
			Threshold: threshold,
			Timestamp: now,
		})
	}
}

// trimWindow removes entries older than (now - window) from the sorted slice.
func trimWindow(times []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	start := 0
	for start < len(times) && times[start].Before(cutoff) {
		start++
	}
	return times[start:]
}
