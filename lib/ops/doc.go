/*
Package ops holds the operation catalogue of dDoc.

Every operation is a Descriptor: a name, a short description, a JSON Schema for
its parameter bag and an ExecFunc. The Registry compiles all schemas once when it
is built (NewDefaultRegistry) and is read concurrently afterwards.

# Handler Contract

A handler receives the validated parameters and the live store handle and issues
exactly one logical request against it. The only exception is create-database,
which creates the collection __ddoc_sentinel to materialise the database and
drops it again. Handlers never retry and never touch the session. Store failures
come back as errs.StoreOperationError naming the operation and the target
(db.collection). insert-documents and bulk-write attach the partial counts the
store reported to the error.

Lifecycle operations (connect-to-mongo, close-connection, connection-status) get
the Session instead of a handle. They are the only operations allowed to change
the connection.

# Parameters

Every parameter bag is a JSON object. Unknown parameters are rejected. All
operations accept an optional url that is used if the session has to connect
before the call. Free-form documents (filters, updates, pipelines, projections)
accept Extended JSON, e.g.

	{"db": "shop", "collection": "orders", "query": {"_id": {"$oid": "65a1..."}}}

and keep their key order.

# Results

A Result carries a structured Value and a one line Text. Result.JSON renders the
value as relaxed Extended JSON so ObjectIDs and dates survive the round trip to
the client.
*/
package ops
