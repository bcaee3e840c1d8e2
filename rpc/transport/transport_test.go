package transport_test

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/dDoc/rpc/common"
	"github.com/ValentinKolb/dDoc/rpc/transport"
	"github.com/ValentinKolb/dDoc/rpc/transport/http"
	"github.com/ValentinKolb/dDoc/rpc/transport/tcp"
	"github.com/ValentinKolb/dDoc/rpc/transport/unix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type transportPair struct {
	server   func() transport.IRPCServerTransport
	client   func() transport.IRPCClientTransport
	endpoint func(t *testing.T) string
}

func freePort(t *testing.T) string {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

var transports = map[string]transportPair{
	"tcp": {
		server:   tcp.NewTCPDefaultServerTransport,
		client:   tcp.NewTCPClientTransport,
		endpoint: freePort,
	},
	"unix": {
		server: unix.NewUnixDefaultServerTransport,
		client: unix.NewUnixClientTransport,
		endpoint: func(t *testing.T) string {
			return filepath.Join(t.TempDir(), "ddoc.sock")
		},
	},
	"http": {
		server:   func() transport.IRPCServerTransport { return http.NewHttpServerTransport() },
		client:   http.NewHttpClientTransport,
		endpoint: freePort,
	},
}

// startServer serves handler until the test ends and returns a connected client
func startServer(t *testing.T, pair transportPair, handler transport.ServerHandleFunc) transport.IRPCClientTransport {
	endpoint := pair.endpoint(t)

	server := pair.server()
	server.RegisterHandler(handler)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- server.Listen(ctx, common.ServerConfig{
			Transport: common.ServerTransportConfig{
				Endpoint:       endpoint,
				WorkersPerConn: 4,
				TCPConf:        common.TCPConf{TCPNoDelay: true, TCPLingerSec: -1},
			},
		})
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})

	client := pair.client()
	require.Eventually(t, func() bool {
		return client.Connect(common.ClientConfig{
			TimeoutSecond: 5,
			Transport: common.ClientTransportConfig{
				Endpoints:              []string{endpoint},
				ConnectionsPerEndpoint: 2,
				TCPConf:                common.TCPConf{TCPNoDelay: true, TCPLingerSec: -1},
			},
		}) == nil
	}, 5*time.Second, 20*time.Millisecond)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func echo(_ context.Context, req []byte) []byte {
	return append([]byte("echo:"), req...)
}

func TestRoundTrip(t *testing.T) {
	for name, pair := range transports {
		t.Run(name, func(t *testing.T) {
			client := startServer(t, pair, echo)

			resp, err := client.Send(context.Background(), []byte("ping"))
			require.NoError(t, err)
			assert.Equal(t, "echo:ping", string(resp))

			resp, err = client.Send(context.Background(), nil)
			require.NoError(t, err)
			assert.Equal(t, "echo:", string(resp))
		})
	}
}

func TestConcurrentRequestsAreCorrelated(t *testing.T) {
	for name, pair := range transports {
		t.Run(name, func(t *testing.T) {
			client := startServer(t, pair, echo)

			var wg sync.WaitGroup
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					req := fmt.Sprintf("request-%d", i)
					resp, err := client.Send(context.Background(), []byte(req))
					if assert.NoError(t, err) {
						assert.Equal(t, "echo:"+req, string(resp))
					}
				}(i)
			}
			wg.Wait()
		})
	}
}

func TestSendHonoursContext(t *testing.T) {
	release := make(chan struct{})
	slow := func(ctx context.Context, req []byte) []byte {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return req
	}

	for name, pair := range transports {
		t.Run(name, func(t *testing.T) {
			client := startServer(t, pair, slow)

			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()

			start := time.Now()
			_, err := client.Send(ctx, []byte("slow"))
			require.Error(t, err)
			assert.Less(t, time.Since(start), 2*time.Second)
		})
	}
	close(release)
}

func TestListenWithoutHandler(t *testing.T) {
	for name, pair := range transports {
		t.Run(name, func(t *testing.T) {
			err := pair.server().Listen(context.Background(), common.ServerConfig{
				Transport: common.ServerTransportConfig{Endpoint: pair.endpoint(t)},
			})
			assert.Error(t, err)
		})
	}
}

func TestConnectWithoutEndpoints(t *testing.T) {
	for name, pair := range transports {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, pair.client().Connect(common.ClientConfig{}))
		})
	}
}
