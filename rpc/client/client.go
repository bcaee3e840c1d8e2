package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ValentinKolb/dDoc/lib/errs"
	"github.com/ValentinKolb/dDoc/rpc/common"
	"github.com/ValentinKolb/dDoc/rpc/serializer"
	"github.com/ValentinKolb/dDoc/rpc/transport"
)

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// Reply is the outcome of a successful call
type Reply struct {
	Operation string
	// Result is the structured value as relaxed Extended JSON
	Result json.RawMessage
	// Text is the one line summary of the server
	Text string
}

// Decode unmarshals the result into v
func (r *Reply) Decode(v any) error {
	return json.Unmarshal(r.Result, v)
}

// RemoteError is a failure reported by the server. It implements errs.Kinded, so
// errs.KindOf works on the client side as well.
type RemoteError struct {
	Operation string
	ErrKind   errs.Kind
	Message   string
	// Partial is the partial outcome reported by the store, may be empty
	Partial json.RawMessage
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.ErrKind, e.Message)
}

func (e *RemoteError) Kind() errs.Kind { return e.ErrKind }

func newRemoteError(op string, resp *common.Message) *RemoteError {
	if resp.Op != "" {
		op = resp.Op
	}
	kind := errs.Kind(resp.ErrKind)
	if kind == "" {
		kind = errs.KindInternal
	}
	return &RemoteError{Operation: op, ErrKind: kind, Message: resp.Err, Partial: resp.Result}
}

// Operation describes one operation of the server catalogue
type Operation struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Lifecycle   bool            `json:"lifecycle,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// --------------------------------------------------------------------------
// Client
// --------------------------------------------------------------------------

// Client issues named calls to a dDoc server. It is safe for concurrent use.
type Client struct {
	config     common.ClientConfig
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
}

// NewClient connects transport and returns a client using it
func NewClient(
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (*Client, error) {
	if err := transport.Connect(config); err != nil {
		return nil, err
	}
	return &Client{config: config, transport: transport, serializer: serializer}, nil
}

// Call runs the named operation. params may be nil, a json.RawMessage, a JSON string
// or any value that marshals to a JSON object.
// Failures reported by the server are returned as *RemoteError.
func (c *Client) Call(ctx context.Context, op string, params any) (*Reply, error) {
	raw, err := encodeParams(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode parameters of %s: %w", op, err)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := invokeRPCRequest(ctx, common.NewCallRequest(op, raw), common.MsgTSuccess, c.transport, c.serializer)
	if err != nil {
		return nil, err
	}
	return &Reply{Operation: resp.Op, Result: resp.Result, Text: resp.Text}, nil
}

// Operations returns the catalogue of the server
func (c *Client) Operations(ctx context.Context) ([]Operation, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := invokeRPCRequest(ctx, common.NewListRequest(), common.MsgTList, c.transport, c.serializer)
	if err != nil {
		return nil, err
	}
	var catalogue []Operation
	if err := json.Unmarshal(resp.Result, &catalogue); err != nil {
		return nil, fmt.Errorf("failed to decode catalogue: %w", err)
	}
	return catalogue, nil
}

// Close closes the transport
func (c *Client) Close() error {
	return c.transport.Close()
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// withTimeout applies the configured timeout unless ctx already has a deadline
func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || c.config.TimeoutSecond <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, time.Duration(c.config.TimeoutSecond)*time.Second)
}

func encodeParams(params any) (json.RawMessage, error) {
	var raw json.RawMessage
	switch p := params.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		raw = p
	case []byte:
		raw = p
	case string:
		raw = json.RawMessage(p)
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("parameters are not valid JSON")
	}
	return raw, nil
}
