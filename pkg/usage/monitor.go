// Package usage records lifecycle counters for capacity awareness and
// diagnostics. The Monitor is a passive observer: components feed it with
// explicit calls, it never reaches back into registry or controller state,
// and the hot path touches only lock-free atomics.
package usage

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/entrhq/pagepool/pkg/retry"
)

// CloseReason names why a session was closed.
type CloseReason string

const (
	ReasonExplicit CloseReason = "explicit"
	ReasonIdle     CloseReason = "idle"
	ReasonLimit    CloseReason = "limit"
	ReasonError    CloseReason = "error"
)

// CloseReasons lists every reason, in a stable order.
func CloseReasons() []CloseReason {
	return []CloseReason{ReasonExplicit, ReasonIdle, ReasonLimit, ReasonError}
}

// Record is a point-in-time snapshot of all counters.
type Record struct {
	SessionsCreated        int64                  `json:"sessions_created"`
	SessionsClosedByReason map[CloseReason]int64  `json:"sessions_closed_by_reason"`
	RequestsSucceeded      int64                  `json:"requests_succeeded"`
	RequestsFailed         int64                  `json:"requests_failed"`
	ErrorsByKind           map[retry.Kind]int64   `json:"errors_by_kind"`
	PeakConcurrentSessions int64                  `json:"peak_concurrent_sessions"`
	CumulativeEngineTimeMS int64                  `json:"cumulative_engine_time_ms"`
	ReleaseFailures        int64                  `json:"release_failures"`
	HandleRefreshes        int64                  `json:"handle_refreshes"`
	RecentResults          []OperationResult      `json:"recent_results"`
}

// SessionsClosed sums closures across reasons.
func (r Record) SessionsClosed() int64 {
	var total int64
	for _, n := range r.SessionsClosedByReason {
		total += n
	}
	return total
}

// LiveSessions derives the live count from the create/close counters.
func (r Record) LiveSessions() int64 {
	return r.SessionsCreated - r.SessionsClosed()
}

// OperationResult is one entry of the bounded recent-results buffer. The
// metadata map carries operation-specific payloads such as a screenshot
// data URI.
type OperationResult struct {
	ID        string            `json:"id"`
	SessionID string            `json:"session_id"`
	URL       string            `json:"url,omitempty"`
	Operation string            `json:"operation"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// DefaultRecentResults bounds the result ring.
const DefaultRecentResults = 50

// Monitor aggregates usage counters. All increments are atomic; the result
// ring has its own mutex that no lifecycle path ever holds.
type Monitor struct {
	sessionsCreated atomic.Int64

	closedExplicit atomic.Int64
	closedIdle     atomic.Int64
	closedLimit    atomic.Int64
	closedError    atomic.Int64

	requestsSucceeded atomic.Int64
	requestsFailed    atomic.Int64

	errNetwork  atomic.Int64
	errTimeout  atomic.Int64
	errProtocol atomic.Int64
	errQuota    atomic.Int64
	errFatal    atomic.Int64

	peakConcurrent  atomic.Int64
	engineTimeMS    atomic.Int64
	releaseFailures atomic.Int64
	handleRefreshes atomic.Int64

	resultsMu  sync.Mutex
	results    []OperationResult
	resultsCap int
}

// NewMonitor creates a monitor with the default result-ring capacity.
func NewMonitor() *Monitor {
	return &Monitor{resultsCap: DefaultRecentResults}
}

func (m *Monitor) closedCounter(reason CloseReason) *atomic.Int64 {
	switch reason {
	case ReasonIdle:
		return &m.closedIdle
	case ReasonLimit:
		return &m.closedLimit
	case ReasonError:
		return &m.closedError
	default:
		return &m.closedExplicit
	}
}

func (m *Monitor) errorCounter(kind retry.Kind) *atomic.Int64 {
	switch kind {
	case retry.KindNetwork:
		return &m.errNetwork
	case retry.KindTimeout:
		return &m.errTimeout
	case retry.KindProtocol:
		return &m.errProtocol
	case retry.KindQuota:
		return &m.errQuota
	default:
		return &m.errFatal
	}
}

// SessionCreated records a creation and folds the observed live count into
// the peak.
func (m *Monitor) SessionCreated(live int) {
	m.sessionsCreated.Add(1)
	m.ObserveLive(live)
	metricSessionsCreated.Inc()
	metricLiveSessions.Set(float64(live))
}

// SessionClosed records a closure with its reason.
func (m *Monitor) SessionClosed(reason CloseReason, live int) {
	m.closedCounter(reason).Add(1)
	metricSessionsClosed.WithLabelValues(string(reason)).Inc()
	metricLiveSessions.Set(float64(live))
}

// ObserveLive folds a live-count observation into the peak.
func (m *Monitor) ObserveLive(live int) {
	n := int64(live)
	for {
		peak := m.peakConcurrent.Load()
		if n <= peak || m.peakConcurrent.CompareAndSwap(peak, n) {
			return
		}
	}
}

// RequestSucceeded records one serialized operation completing, with its
// duration.
func (m *Monitor) RequestSucceeded(elapsed time.Duration) {
	m.requestsSucceeded.Add(1)
	metricRequests.WithLabelValues("success").Inc()
	metricRequestLatency.Observe(elapsed.Seconds())
}

// RequestFailed records one serialized operation failing with a classified
// error.
func (m *Monitor) RequestFailed(kind retry.Kind, elapsed time.Duration) {
	m.requestsFailed.Add(1)
	m.RecordError(kind)
	metricRequests.WithLabelValues("failure").Inc()
	metricRequestLatency.Observe(elapsed.Seconds())
}

// RecordError counts a classified error without tying it to a request.
func (m *Monitor) RecordError(kind retry.Kind) {
	m.errorCounter(kind).Add(1)
	metricErrors.WithLabelValues(string(kind)).Inc()
}

// AddEngineTime accumulates how long a handle was held open.
func (m *Monitor) AddEngineTime(d time.Duration) {
	m.engineTimeMS.Add(d.Milliseconds())
	metricEngineTime.Add(d.Seconds())
}

// ReleaseFailed records a best-effort release that errored or timed out.
func (m *Monitor) ReleaseFailed() {
	m.releaseFailures.Add(1)
	metricReleaseFailures.Inc()
}

// HandleRefreshed records an unhealthy handle being replaced in place.
func (m *Monitor) HandleRefreshed() {
	m.handleRefreshes.Add(1)
	metricHandleRefreshes.Inc()
}

// RecordResult appends to the bounded recent-results ring, evicting the
// oldest entry when full.
func (m *Monitor) RecordResult(res OperationResult) {
	m.resultsMu.Lock()
	defer m.resultsMu.Unlock()
	if len(m.results) >= m.resultsCap {
		copy(m.results, m.results[1:])
		m.results = m.results[:len(m.results)-1]
	}
	m.results = append(m.results, res)
}

// Snapshot returns a consistent-enough copy of all counters for pull-based
// reporting. Counters are read individually; the snapshot is not a single
// linearization point, which is acceptable for diagnostics.
func (m *Monitor) Snapshot() Record {
	rec := Record{
		SessionsCreated: m.sessionsCreated.Load(),
		SessionsClosedByReason: map[CloseReason]int64{
			ReasonExplicit: m.closedExplicit.Load(),
			ReasonIdle:     m.closedIdle.Load(),
			ReasonLimit:    m.closedLimit.Load(),
			ReasonError:    m.closedError.Load(),
		},
		RequestsSucceeded: m.requestsSucceeded.Load(),
		RequestsFailed:    m.requestsFailed.Load(),
		ErrorsByKind: map[retry.Kind]int64{
			retry.KindNetwork:  m.errNetwork.Load(),
			retry.KindTimeout:  m.errTimeout.Load(),
			retry.KindProtocol: m.errProtocol.Load(),
			retry.KindQuota:    m.errQuota.Load(),
			retry.KindFatal:    m.errFatal.Load(),
		},
		PeakConcurrentSessions: m.peakConcurrent.Load(),
		CumulativeEngineTimeMS: m.engineTimeMS.Load(),
		ReleaseFailures:        m.releaseFailures.Load(),
		HandleRefreshes:        m.handleRefreshes.Load(),
	}

	m.resultsMu.Lock()
	rec.RecentResults = make([]OperationResult, len(m.results))
	copy(rec.RecentResults, m.results)
	m.resultsMu.Unlock()

	return rec
}
