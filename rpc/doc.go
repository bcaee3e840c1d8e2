// Package rpc provides the remote procedure call layer of dDoc. It carries calls
// from clients (MCP hosts or the dDoc command line) to the dispatcher and the
// replies back.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures and utilities used across the RPC system,
//     including the Message protocol, configuration structures, and logging.
//
//   - transport: Network communication abstractions with pluggable implementations
//     (TCP, Unix sockets, HTTP) and the MCP front end on stdio.
//
//   - serializer: Message serialization with multiple format options (Binary, JSON, GOB)
//     for converting between Message objects and byte arrays.
//
//   - server: The dispatcher, which validates parameters, connects the session lazily
//     and runs handlers, and the RPC server that feeds it from a transport.
//
//   - client: A client calling operations by name on a remote dDoc server.
package rpc
