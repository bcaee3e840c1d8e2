// Package base provides the framed transport shared by the tcp and unix transports.
// Protocol specific behaviour is injected through connectors.
//
// Every message travels in a frame:
//
//	8 bytes  request id (uint64, big endian)
//	4 bytes  payload length (uint32, big endian)
//	N bytes  payload
//
// Frames larger than 64 MiB are rejected.
//
// Key Components:
//
//   - IClientConnector/IServerConnector: Protocol specific operations (dial, listen
//     and socket tuning).
//
//   - clientTransport: Manages one or more connections per endpoint and picks them
//     round-robin. Responses are matched to waiting requests by request id, so
//     many requests can share one connection. When a connection breaks, all requests
//     waiting on it fail and the connection is dialed again once.
//
//   - serverTransport: Accepts connections and answers requests from a bounded pool
//     of workers per connection. Buffers for incoming frames come from a sync.Pool.
//     Canceling the context passed to Listen closes the listener and all connections,
//     requests already running are allowed to finish.
//
// Thread Safety:
//
//	All public methods are safe for concurrent use. Writes to a connection are
//	serialised by a mutex on both sides.
package base
