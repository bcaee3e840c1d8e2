// Package common provides the data structures shared by the RPC server, the
// transports and the client.
//
// Key Components:
//
//   - Message: the single request/response structure of the wire protocol. A call
//     request names an operation and carries its JSON parameter bag. A success
//     response carries the result as relaxed Extended JSON plus a one line text,
//     a failure response carries the error kind and message.
//
//   - MessageType: call, list (operation catalogue), success and error.
//
//   - ServerConfig / ClientConfig: configuration of the server (transport,
//     serializer, default store address, call timeout, log level) and of the
//     client, both with a String renderer used at startup.
//
//   - Logger: logger factory for Dragonboat's logger package. Every package
//     obtains its logger with logger.GetLogger(name). Output goes to stderr.
package common
