// Package unix implements the Unix domain socket transport of the dDoc RPC system.
// It is the cheapest way to reach a dDoc server running on the same machine.
//
// This package extends the base transport with Unix socket connectors and inherits
// connection pooling, request correlation and error handling from the base package.
//
// Key Components:
//
//   - clientConnector: Establishes connections using Unix domain sockets
//
//   - serverConnector: Creates Unix socket listeners, a stale socket file is removed first
//
// The default server buffer size is 64 KB.
package unix
