// Package store defines the contract between dDoc and the document database it
// forwards calls to. The database itself is treated as an opaque remote service
// reachable through a connection handle.
//
// The package focuses on:
//   - A single handle interface (IConn) covering every operation dDoc exposes
//   - A connector abstraction (IConnector) that opens and verifies handles
//   - Request and result types shared by all implementations
//
// Key Components:
//
//   - IConnector: Opens a connection for an address and verifies it before
//     returning. The session owns the returned handle exclusively.
//
//   - IConn: The live connection handle. Every method issues exactly one logical
//     request to the store. Documents, filters and pipelines are passed as bson.D
//     and are never interpreted by dDoc itself.
//
//   - Target: A (database, collection) pair resolved against the handle on every
//     call, never cached.
//
//   - Error System: A structured error type with return codes, used by store
//     implementations to report unsupported or invalid operations.
//
// Implementations:
//
//	- Mongo Store (mongostore): The production implementation on top of the
//	  official MongoDB Go driver.
//	  Available in the "github.com/ValentinKolb/dDoc/lib/store/mongostore" package.
//
//	- Memory Store (memstore): A thin in-process fake for tests. It understands
//	  equality filters and $set only and rejects everything else.
//	  Available in the "github.com/ValentinKolb/dDoc/lib/store/memstore" package.
package store
