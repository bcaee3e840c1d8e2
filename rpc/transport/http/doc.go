// Package http implements the HTTP transport of the dDoc RPC system. Serialized
// messages are posted to the /rpc endpoint of the server and the serialized reply
// is returned as the response body.
//
// Key Components:
//
//   - httpClientTransport: Implements IRPCClientTransport. It spreads requests
//     round-robin over all configured endpoints. The request context bounds every
//     call and failed requests are not retried.
//
//   - httpServerTransport: Implements IRPCServerTransport. Next to POST /rpc further
//     routes can be mounted with WithHandler, the server command uses this for
//     GET /metrics and GET /operations. The server shuts down gracefully once the
//     context passed to Listen is canceled.
//
// Thread Safety:
//
//	The client transport is safe for concurrent use after Connect returned. An
//	atomic counter selects the endpoint of each request.
//
// In debug mode every request is logged with its status code and duration.
package http
