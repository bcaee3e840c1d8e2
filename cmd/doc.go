// Package cmd implements the command-line interface of dDoc. It provides a
// hierarchical command structure for running the server and for calling it as a
// client.
//
// The package is organized into several subpackages:
//
//   - serve: Starts the server, either as an MCP server on stdio or as an RPC server on http, tcp or unix
//   - docs: Document operations (insert, find, count, update, delete, distinct, aggregate, call) and the perf benchmark
//   - admin: Connection lifecycle, databases, collections, indexes and the operation catalogue
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every flag can also be set as an environment variable with the DDOC_ prefix, for
// example DDOC_MONGO_URL or DDOC_TRANSPORT_ENDPOINTS. Variables from .env and
// .env.local in the working directory are loaded as well.
//
// A typical MCP client configuration starts the server like this:
//
//	{"command": "ddoc", "args": ["serve", "--mongo-url", "mongodb://localhost:27017"]}
//
// See ddoc -help for a list of all commands.
package cmd
