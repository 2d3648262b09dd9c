package ctxAuth

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter.
type MetricID uint16

const (
	// MetricLoginAllowed counts logins that issued credentials from a trusted context.
	MetricLoginAllowed MetricID = iota
	// MetricLoginBypassed counts logins that skipped context checks by preference.
	MetricLoginBypassed
	// MetricLoginChallenged counts logins parked behind a login-context challenge.
	MetricLoginChallenged
	// MetricLoginDenied counts logins from blocked contexts.
	MetricLoginDenied
	// MetricLoginFailure counts logins rejected for any other reason.
	MetricLoginFailure
	// MetricChallengeIssued counts challenges persisted and delivered.
	MetricChallengeIssued
	// MetricChallengeDeliveryFailed counts challenges rolled back after a mailer failure.
	MetricChallengeDeliveryFailed
	// MetricChallengeVerified counts successful code verifications.
	MetricChallengeVerified
	// MetricChallengeFailed counts not-found, expired and mismatched verifications.
	MetricChallengeFailed
	// MetricChallengeAttemptsExceeded counts challenges destroyed by the attempt cap.
	MetricChallengeAttemptsExceeded
	// MetricContextPromoted counts pending → trusted transitions.
	MetricContextPromoted
	// MetricContextBlocked counts transitions into blocked.
	MetricContextBlocked
	// MetricContextUnblocked counts blocked → pending resets.
	MetricContextUnblocked
	// MetricContextDeleted counts deleted contexts.
	MetricContextDeleted
	// MetricEmailVerified counts completed signup verifications.
	MetricEmailVerified
	// MetricCredentialsIssued counts issued access/refresh pairs.
	MetricCredentialsIssued
	// MetricAuthenticateSuccess counts accepted access tokens.
	MetricAuthenticateSuccess
	// MetricAuthenticateFailure counts rejected access tokens.
	MetricAuthenticateFailure
	// MetricAccessRotated counts access tokens rotated inside the rolling window.
	MetricAccessRotated
	// MetricLogout counts refresh token revocations.
	MetricLogout
	// MetricAuthenticateLatency is the Authenticate latency histogram.
	MetricAuthenticateLatency
	metricIDCount
)

const cacheLineSize = 64

// latencyBounds are the inclusive upper bounds of the first seven latency
// buckets. The eighth bucket takes everything slower.
var latencyBounds = [...]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

const histBucketCount = len(latencyBounds) + 1

// counterSlot keeps each counter on its own cache line.
type counterSlot struct {
	n atomic.Uint64
	_ [cacheLineSize - 8]byte
}

// Metrics holds lock-free counters and the Authenticate latency histogram.
// A nil or disabled Metrics ignores every call.
type Metrics struct {
	enabled bool
	latency bool

	counters [metricIDCount]counterSlot
	buckets  [histBucketCount]atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of all metrics. Histograms holds
// non-cumulative bucket counts.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics creates a Metrics configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled: cfg.Enabled,
		latency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool { return m != nil && m.enabled }

// LatencyEnabled reports whether the latency histogram is recorded.
func (m *Metrics) LatencyEnabled() bool { return m != nil && m.latency }

// Inc adds one to the counter id.
func (m *Metrics) Inc(id MetricID) {
	if !m.Enabled() || id >= metricIDCount {
		return
	}
	m.counters[id].n.Add(1)
}

// Observe records d. Only [MetricAuthenticateLatency] carries a histogram;
// other ids are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if id != MetricAuthenticateLatency || !m.LatencyEnabled() {
		return
	}
	m.buckets[latencyBucket(d)].Add(1)
}

// Value returns the current value of counter id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.counters[id].n.Load()
}

// Snapshot copies every counter and, when enabled, the histogram.
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
	if !m.Enabled() {
		return s
	}
	for id := range metricIDCount {
		s.Counters[id] = m.counters[id].n.Load()
	}
	if m.latency {
		out := make([]uint64, histBucketCount)
		for i := range out {
			out[i] = m.buckets[i].Load()
		}
		s.Histograms[MetricAuthenticateLatency] = out
	}
	return s
}

func latencyBucket(d time.Duration) int {
	for i, bound := range latencyBounds {
		if d <= bound {
			return i
		}
	}
	return len(latencyBounds)
}
