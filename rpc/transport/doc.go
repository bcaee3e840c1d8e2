// Package transport defines the interfaces of the dDoc RPC transport layer. A transport
// moves opaque, already serialized messages between a client and the server, it knows
// nothing about operations or documents.
//
// Key Components:
//
//   - IRPCClientTransport: Client side transport. It manages its connections and
//     sends a request, waiting for the reply or the request context. Requests are
//     never retried because most dDoc operations are not idempotent.
//
//   - IRPCServerTransport: Server side transport. It receives requests and passes them
//     to the registered ServerHandleFunc until the context given to Listen is canceled.
//
//   - ServerHandleFunc: Function type for request handling callbacks.
//
// Implementations live in the sub packages: tcp and unix (framed, based on package base)
// and http. The stdio transport of the MCP front end is not byte based and is provided
// by package stdio, which talks to the dispatcher directly.
package transport
