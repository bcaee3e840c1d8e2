package ops

import (
	"context"

	"github.com/ValentinKolb/dDoc/lib/session"
	"github.com/ValentinKolb/dDoc/lib/store"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Names of the connection operations
const (
	OpConnect          = "connect-to-mongo"
	OpCloseConnection  = "close-connection"
	OpConnectionStatus = "connection-status"
	OpPing             = "ping"
)

type connectParams struct {
	Common
}

func connectionOps() []Descriptor {
	return []Descriptor{
		{
			Name:        OpConnect,
			Description: "Connect to a MongoDB server. Replaces the current connection.",
			Schema:      object([]string{"url"}, nil),
			Lifecycle:   true,
			Exec: bindSession(func(ctx context.Context, p connectParams, s *session.Session) (Result, error) {
				if err := s.Connect(ctx, p.URL); err != nil {
					return Result{}, err
				}
				return Result{Value: s.Status(), Text: "Connected to MongoDB!"}, nil
			}),
		},
		{
			Name:        OpCloseConnection,
			Description: "Close the current connection. Later operations fail until connect-to-mongo is called again.",
			Schema:      object(nil, nil),
			Lifecycle:   true,
			Exec: bindSession(func(ctx context.Context, _ Common, s *session.Session) (Result, error) {
				if err := s.Close(ctx); err != nil {
					return Result{}, err
				}
				return Result{Value: bson.D{{Key: "closed", Value: true}}, Text: "connection closed"}, nil
			}),
		},
		{
			Name:        OpConnectionStatus,
			Description: "Show the state of the connection session without connecting.",
			Schema:      object(nil, nil),
			Lifecycle:   true,
			Exec: bindSession(func(_ context.Context, _ Common, s *session.Session) (Result, error) {
				st := s.Status()
				text := "Connection is " + string(st.State)
				if st.Address != "" {
					text += " (" + st.Address + ")"
				}
				return Result{Value: st, Text: text}, nil
			}),
		},
		{
			Name:        OpPing,
			Description: "Check that the MongoDB server answers.",
			Schema:      object(nil, nil),
			Exec: bind(func(ctx context.Context, _ Common, conn store.IConn) (Result, error) {
				if err := conn.Ping(ctx); err != nil {
					return Result{}, err
				}
				return Result{Value: bson.D{{Key: "ok", Value: 1}}, Text: "pong"}, nil
			}),
		},
	}
}
