// Package stdio implements the Model Context Protocol front end of dDoc. It serves
// JSON-RPC over stdin and stdout with the official MCP Go SDK.
//
// Every operation of the dispatcher catalogue becomes one tool. The tool input schema
// is the schema the dispatcher validates against, so clients see exactly the
// parameters an operation accepts.
//
// A successful call returns the one line summary as text content and the result as
// structured content. Values that are not objects (document lists, ids) are wrapped
// as {"result": ...}. A failed call returns an isError result with the error kind and
// message, plus the partial outcome when the store reported one.
//
// Unlike the other transports this package does not use a serializer: the SDK owns
// the encoding, and tool calls go to the dispatcher directly. Logging goes to stderr
// because stdout carries the protocol.
package stdio
