package session

import (
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"
)

var (
	connects        = metrics.NewCounter(`ddoc_session_connects_total{result="ok"}`)
	connectFailures = metrics.NewCounter(`ddoc_session_connects_total{result="error"}`)
	lazyConnects    = metrics.NewCounter(`ddoc_session_lazy_connects_total`)
	connectDuration = metrics.NewHistogram(`ddoc_session_connect_duration_seconds`)

	// number of sessions currently in the connected state
	connectedSessions atomic.Int64
	_                 = metrics.NewGauge(`ddoc_sessions_connected`, func() float64 {
		return float64(connectedSessions.Load())
	})
)

// trackState keeps the connected gauge in sync with state transitions
func trackState(from, to State) {
	switch {
	case to == StateConnected && from != StateConnected:
		connectedSessions.Add(1)
	case from == StateConnected && to != StateConnected:
		connectedSessions.Add(-1)
	}
}
