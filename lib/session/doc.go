// Package session owns the single connection between dDoc and the document store.
//
// A Session is created once at startup and passed to everything that needs the
// store; there is no package level connection. It holds at most one live
// store.IConn at any time.
//
// Lifecycle:
//
//	disconnected --connect(ok)-->   connected
//	disconnected --connect(fail)--> disconnected
//	connected    --connect(ok)-->   connected     (handle replaced, old one closed)
//	connected    --connect(fail)--> disconnected  (old handle closed)
//	connected    --close-->         closed
//	closed       --connect(ok)-->   connected
//
// The transient "connecting" state only exists while a connect attempt holds the
// session lock and is therefore never observed by Status or Handle.
//
// Lazy Connect:
//
// EnsureConnected is the gate run before every operation that needs the store.
// It connects implicitly only from the disconnected state, using the address of
// the call or the configured default. After an explicit Close the gate refuses
// with a NotConnectedError until Connect is called again.
//
// Concurrency:
//
//   - Connect and Close are serialised by a one slot semaphore. A caller whose
//     context ends while it waits gets a ConcurrentConnectError.
//   - Concurrent EnsureConnected calls are collapsed with singleflight, so two
//     racing operations open exactly one connection and observe the same result.
//   - Handle blocks while a connect is in flight and never returns a handle that
//     is about to be replaced.
//
// Metrics (VictoriaMetrics): ddoc_session_connects_total{result},
// ddoc_session_lazy_connects_total, ddoc_session_connect_duration_seconds and
// ddoc_sessions_connected.
package session
