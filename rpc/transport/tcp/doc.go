// Package tcp implements the TCP socket transport of the dDoc RPC system. It provides
// the TCP specific connectors for the framed transport of the base package.
//
// Connection pooling, request correlation and the per-connection worker limit are
// inherited from the base package, see its documentation for details.
//
// Key Components:
//
//   - clientConnector: TCP implementation of base.IClientConnector
//
//   - serverConnector: TCP implementation of base.IServerConnector
//
// Both sides apply the socket options of common.TCPConf and common.SocketConf
// (no delay, keep-alive, linger and buffer sizes) to every connection.
//
// The default server buffer size is 512 KB, which fits typical document payloads.
package tcp
