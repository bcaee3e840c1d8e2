// Package testing provides a standardised conformance suite for implementations
// of the store.IConn interface.
//
// The suite checks real MongoDB query, update and aggregation semantics, so it is
// run against the mongo store backed by a MongoDB container. Each test creates
// its own database with a random name and drops it afterwards.
//
// Example usage:
//
//	storetesting.RunStoreTests(t, "MongoStore", func(t *testing.T) store.IConn {
//		conn, err := mongostore.NewConnector(mongostore.Options{}).Connect(ctx, uri)
//		require.NoError(t, err)
//		return conn
//	})
package testing
