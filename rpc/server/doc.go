// Package server implements the dispatch front end of dDoc and the RPC server that
// exposes it over the byte oriented transports.
//
// Every call, whatever transport it arrived on, goes through Dispatcher.Dispatch:
//
//  1. The operation is looked up. Unknown names fail with an unknown_operation
//     error and the session is never touched.
//  2. The parameters are validated against the operation schema. Violations fail
//     with an invalid_parameters error, again before the session is touched.
//  3. Unless the operation manages the session itself (connect-to-mongo,
//     close-connection, connection-status), the lazy connect gate runs and the
//     live handle is obtained. The optional url parameter is used if the session
//     has to connect.
//  4. The handler runs. Panics are recovered and reported as internal errors.
//  5. The result is rendered as relaxed Extended JSON plus a one line text, or
//     the error as a {kind, message} failure.
//
// A configured timeout bounds every call. Failures caused by the expired deadline
// are reported as timeout errors.
//
// Every call is counted and timed with VictoriaMetrics metrics
// (ddoc_rpc_calls_total, ddoc_rpc_call_duration_seconds) and traced with an
// OpenTelemetry span named after the operation.
//
// Key Components:
//
//   - Dispatcher: The single entry point of all calls. It owns the session.
//
//   - RPCServer: Decodes common.Message requests from a transport, dispatches them
//     and encodes the replies. Call requests run an operation, list requests return
//     the catalogue.
//
//   - MetricsHandler, OperationsHandler: HTTP handlers mounted next to the rpc
//     endpoint of the http transport.
//
// Usage Example:
//
//	sess := session.New(mongostore.NewConnector(mongostore.Options{}), config.MongoURL)
//	dispatcher := server.NewDispatcher(ops.NewDefaultRegistry(), sess, 30*time.Second)
//
//	s := server.NewRPCServer(
//	  config,
//	  tcp.NewTCPDefaultServerTransport(),
//	  serializer.NewBinarySerializer(),
//	  dispatcher,
//	)
//	if err := s.Serve(ctx); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// Thread Safety:
//
//	Dispatch is safe for concurrent use. Serve should be called only once.
package server
