// Package memstore implements a thin in-process fake of store.IConn for tests.
// It is addressed with memory://<name> and all handles opened for the same name
// share their data. Data lives only as long as the process.
//
// The fake deliberately does not evaluate MongoDB queries. Code that needs real
// query semantics runs against the mongo store (see the conformance suite in
// lib/store/testing, which runs against a MongoDB container).
//
// Supported Subset:
//
//   - Filters: equality on top level fields, an empty filter matches everything.
//     Numbers compare by value regardless of their type.
//
//   - Updates: $set on top level fields, replacements (bulk replaceOne) and upserts
//     seeded from the filter.
//
//   - Find: skip and limit, results in insertion order. Distinct on top level fields.
//
//   - Metadata: collections, databases, indexes and users are tracked so the
//     admin and user operations can be exercised. Duplicate _id values are rejected.
//
// Operator filters, dotted paths, sort, projection, other update operators and
// aggregation pipelines fail with a store.Error carrying
// store.RetCUnsupportedOperation instead of producing a wrong answer.
//
// Implementation Details:
//
//   - Locking: Each instance is guarded by a single RWMutex. Reads share the lock,
//     writes (including bulk writes) hold it exclusively.
//
//   - Copy Semantics: Documents are deep copied on the way in and out. Callers can
//     never mutate stored data through a returned document.
//
// Usage Example:
//
//	conn := memstore.Open(t.Name())
//	target := store.Target{DB: "shop", Collection: "orders"}
//	id, err := conn.InsertOne(ctx, target, bson.D{{Key: "total", Value: 42}})
//	n, err := conn.CountDocuments(ctx, target, bson.D{})
package memstore
