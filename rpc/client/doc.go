// Package client implements the Go client of a dDoc server. It sends named calls
// over any of the RPC transports and returns the rendered results.
//
// Key Components:
//
//   - Client: Issues calls (Call) and fetches the operation catalogue (Operations).
//
//   - Reply: The result of a successful call as relaxed Extended JSON plus the one
//     line summary of the server.
//
//   - RemoteError: A failure reported by the server. It carries the error kind
//     (see package errs), the message and the partial outcome if the store reported
//     one. errs.KindOf works on it.
//
// Calls are never retried: a lost connection or an expired deadline is returned to
// the caller, who knows whether the operation is safe to repeat.
//
// Usage Example:
//
//	config := common.ClientConfig{
//	  TimeoutSecond: 5,
//	  Transport: common.ClientTransportConfig{
//	    Endpoints:              []string{"localhost:8080"},
//	    ConnectionsPerEndpoint: 1,
//	  },
//	}
//
//	c, err := client.NewClient(config, tcp.NewTCPClientTransport(), serializer.NewBinarySerializer())
//	if err != nil {
//	  return err
//	}
//	defer c.Close()
//
//	reply, err := c.Call(ctx, "count-documents", map[string]any{
//	  "db": "shop", "collection": "orders", "query": map[string]any{"status": "A"},
//	})
//	if errs.KindOf(err) == errs.KindNotConnected {
//	  // connect explicitly with connect-to-mongo
//	}
//	fmt.Println(reply.Text)
//
// Performance Considerations:
//
//   - Many concurrent calls can share one framed connection, responses are matched
//     by request id. More connections per endpoint help with large payloads.
//
//   - The binary serializer produces the smallest messages.
//
// Thread Safety:
//
//	A Client is safe for concurrent use by multiple goroutines.
package client
