package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/dDoc/lib/errs"
	"github.com/ValentinKolb/dDoc/lib/ops"
	"github.com/ValentinKolb/dDoc/lib/session"
	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/ValentinKolb/dDoc/lib/store/memstore"
	"github.com/ValentinKolb/dDoc/rpc/common"
	"github.com/ValentinKolb/dDoc/rpc/serializer"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// countingConnector opens memory stores and counts physical connects
type countingConnector struct {
	connects atomic.Int32
	delay    time.Duration

	mu        sync.Mutex
	addresses []string
}

func (c *countingConnector) Connect(ctx context.Context, address string) (store.IConn, error) {
	c.connects.Add(1)
	c.mu.Lock()
	c.addresses = append(c.addresses, address)
	c.mu.Unlock()
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	return memstore.NewConnector().Connect(ctx, address)
}

// memoryAddress returns a fresh memory:// address that is reset after the test
func memoryAddress(t *testing.T) string {
	name := uuid.NewString()
	t.Cleanup(func() { memstore.Reset(name) })
	return "memory://" + name
}

func newDispatcher(t *testing.T, timeout time.Duration, extra ...ops.Descriptor) (*Dispatcher, *countingConnector) {
	t.Helper()
	registry, err := ops.NewRegistry(append(ops.Builtin(), extra...)...)
	require.NoError(t, err)
	connector := &countingConnector{}
	return NewDispatcher(registry, session.New(connector, memoryAddress(t)), timeout), connector
}

func dispatch(d *Dispatcher, op, params string) *Reply {
	return d.Dispatch(context.Background(), op, json.RawMessage(params))
}

func TestUnknownOperationLeavesSessionUntouched(t *testing.T) {
	d, connector := newDispatcher(t, 0)

	reply := dispatch(d, "drop-everything", `{}`)

	require.False(t, reply.OK())
	assert.Equal(t, errs.KindUnknownOperation, reply.Kind())
	assert.Contains(t, reply.Err.Error(), "drop-everything")
	assert.Zero(t, connector.connects.Load())
	assert.Equal(t, session.StateDisconnected, d.Session().Status().State)
}

func TestInvalidParametersAreRejectedBeforeConnecting(t *testing.T) {
	d, connector := newDispatcher(t, 0)

	tests := []struct {
		name   string
		op     string
		params string
	}{
		{"missing document", ops.OpInsertDocument, `{"db": "shop", "collection": "orders"}`},
		{"unknown parameter", ops.OpCountDocuments, `{"db": "shop", "collection": "orders", "where": {}}`},
		{"wrong type", ops.OpFindDocuments, `{"db": "shop", "collection": "orders", "limit": "ten"}`},
		{"not an object", ops.OpPing, `[1, 2]`},
		{"url not a string", ops.OpPing, `{"url": 27017}`},
		{"empty url", ops.OpPing, `{"url": ""}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := dispatch(d, tt.op, tt.params)
			require.False(t, reply.OK())
			assert.Equal(t, errs.KindInvalidParameters, reply.Kind())
		})
	}
	assert.Zero(t, connector.connects.Load())
}

func TestGatedOperationConnectsOnce(t *testing.T) {
	d, connector := newDispatcher(t, 0)

	reply := dispatch(d, ops.OpInsertDocument, `{"db": "shop", "collection": "orders", "document": {"a": 1}}`)
	require.NoError(t, reply.Err)

	reply = dispatch(d, ops.OpCountDocuments, `{"db": "shop", "collection": "orders"}`)
	require.NoError(t, reply.Err)
	assert.JSONEq(t, `{"count": 1}`, string(reply.Result))
	assert.Equal(t, "Total documents: 1", reply.Text)

	assert.EqualValues(t, 1, connector.connects.Load())
	assert.Equal(t, session.StateConnected, d.Session().Status().State)
}

func TestConcurrentCallsShareOneConnect(t *testing.T) {
	d, connector := newDispatcher(t, 0)
	connector.delay = 50 * time.Millisecond

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reply := dispatch(d, ops.OpListDatabases, `{}`)
			assert.NoError(t, reply.Err)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, connector.connects.Load())
}

func TestCallerAddressIsUsedForLazyConnect(t *testing.T) {
	d, connector := newDispatcher(t, 0)
	address := memoryAddress(t)

	reply := dispatch(d, ops.OpPing, `{"url": "`+address+`"}`)
	require.NoError(t, reply.Err)
	assert.Equal(t, "pong", reply.Text)

	connector.mu.Lock()
	defer connector.mu.Unlock()
	assert.Equal(t, []string{address}, connector.addresses)
}

func TestCloseBlocksGatedOperations(t *testing.T) {
	d, connector := newDispatcher(t, 0)

	require.NoError(t, dispatch(d, ops.OpConnect, `{"url": "`+memoryAddress(t)+`"}`).Err)
	require.NoError(t, dispatch(d, ops.OpCloseConnection, `{}`).Err)

	reply := dispatch(d, ops.OpCountDocuments, `{"db": "shop", "collection": "orders"}`)
	require.False(t, reply.OK())
	assert.Equal(t, errs.KindNotConnected, reply.Kind())

	status := dispatch(d, ops.OpConnectionStatus, `{}`)
	require.NoError(t, status.Err)
	assert.Equal(t, "Connection is closed", status.Text)
	assert.EqualValues(t, 1, connector.connects.Load())
}

func TestFailedConnectIsReported(t *testing.T) {
	d, _ := newDispatcher(t, 0)

	reply := dispatch(d, ops.OpConnect, `{"url": "redis://localhost"}`)
	require.False(t, reply.OK())
	assert.Equal(t, errs.KindConnection, reply.Kind())
	assert.Equal(t, session.StateDisconnected, d.Session().Status().State)
}

func TestTimeout(t *testing.T) {
	slow := ops.Descriptor{
		Name:        "wait",
		Description: "waits for the deadline",
		Schema:      ops.Schema{"type": "object"},
		Exec: func(ctx context.Context, _ *ops.Call) (ops.Result, error) {
			<-ctx.Done()
			return ops.Result{}, ctx.Err()
		},
	}
	d, _ := newDispatcher(t, 20*time.Millisecond, slow)

	reply := dispatch(d, "wait", `{}`)

	require.False(t, reply.OK())
	assert.Equal(t, errs.KindTimeout, reply.Kind())
	var timeout *errs.TimeoutError
	require.True(t, errors.As(reply.Err, &timeout))
	assert.Equal(t, "wait", timeout.Operation)
	assert.Equal(t, 20*time.Millisecond, timeout.After)
}

func TestPanicsAreRecovered(t *testing.T) {
	broken := ops.Descriptor{
		Name:      "broken",
		Schema:    ops.Schema{"type": "object"},
		Lifecycle: true,
		Exec: func(context.Context, *ops.Call) (ops.Result, error) {
			panic("boom")
		},
	}
	d, _ := newDispatcher(t, 0, broken)

	reply := dispatch(d, "broken", `{}`)

	require.False(t, reply.OK())
	assert.Equal(t, errs.KindInternal, reply.Kind())
	assert.Contains(t, reply.Err.Error(), "boom")
}

func TestPartialOutcomeIsRendered(t *testing.T) {
	partial := ops.Descriptor{
		Name:      "partial",
		Schema:    ops.Schema{"type": "object"},
		Lifecycle: true,
		Exec: func(context.Context, *ops.Call) (ops.Result, error) {
			return ops.Result{}, &errs.StoreOperationError{
				Operation: "partial",
				Cause:     errors.New("duplicate key"),
				Partial:   bson.D{{Key: "insertedCount", Value: int32(1)}},
			}
		},
	}
	d, _ := newDispatcher(t, 0, partial)

	reply := dispatch(d, "partial", `{}`)

	require.False(t, reply.OK())
	assert.Equal(t, errs.KindStoreOperation, reply.Kind())
	assert.JSONEq(t, `{"insertedCount": 1}`, string(reply.Result))
}

func TestCatalogue(t *testing.T) {
	d, _ := newDispatcher(t, 0)

	catalogue := d.Catalogue()
	require.Len(t, catalogue, len(ops.Builtin()))

	byName := map[string]CatalogueEntry{}
	for _, entry := range catalogue {
		byName[entry.Name] = entry
		assert.NotEmpty(t, entry.Description, entry.Name)
		assert.Equal(t, "object", entry.InputSchema["type"], entry.Name)
	}
	assert.True(t, byName[ops.OpConnect].Lifecycle)
	assert.False(t, byName[ops.OpInsertDocument].Lifecycle)
}

func TestRPCServerHandle(t *testing.T) {
	d, _ := newDispatcher(t, 0)
	ser := serializer.NewJSONSerializer()
	s := NewRPCServer(common.ServerConfig{}, nil, ser, d)

	roundTrip := func(t *testing.T, req []byte) common.Message {
		var resp common.Message
		require.NoError(t, ser.Deserialize(s.Handle(context.Background(), req), &resp))
		return resp
	}
	encode := func(t *testing.T, msg *common.Message) []byte {
		b, err := ser.Serialize(*msg)
		require.NoError(t, err)
		return b
	}

	t.Run("call", func(t *testing.T) {
		resp := roundTrip(t, encode(t, common.NewCallRequest(ops.OpInsertDocument,
			json.RawMessage(`{"db": "shop", "collection": "orders", "document": {"_id": 7}}`))))
		assert.Equal(t, common.MsgTSuccess, resp.MsgType)
		assert.Equal(t, ops.OpInsertDocument, resp.Op)
		assert.Equal(t, "Inserted document with ID: 7", resp.Text)
	})

	t.Run("failed call", func(t *testing.T) {
		resp := roundTrip(t, encode(t, common.NewCallRequest("nope", nil)))
		assert.Equal(t, common.MsgTError, resp.MsgType)
		assert.Equal(t, string(errs.KindUnknownOperation), resp.ErrKind)
		assert.NotEmpty(t, resp.Err)
	})

	t.Run("list", func(t *testing.T) {
		resp := roundTrip(t, encode(t, common.NewListRequest()))
		require.Equal(t, common.MsgTList, resp.MsgType)
		var catalogue []CatalogueEntry
		require.NoError(t, json.Unmarshal(resp.Result, &catalogue))
		assert.Len(t, catalogue, len(ops.Builtin()))
	})

	t.Run("garbage", func(t *testing.T) {
		resp := roundTrip(t, []byte("{not json"))
		assert.Equal(t, common.MsgTError, resp.MsgType)
		assert.Equal(t, string(errs.KindInvalidParameters), resp.ErrKind)
	})

	t.Run("unsupported message type", func(t *testing.T) {
		resp := roundTrip(t, encode(t, &common.Message{MsgType: common.MsgTSuccess}))
		assert.Equal(t, common.MsgTError, resp.MsgType)
	})
}
