package client

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/dDoc/rpc/common"
	"github.com/ValentinKolb/dDoc/rpc/serializer"
	"github.com/ValentinKolb/dDoc/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("client")
)

// invokeRPCRequest serializes req, sends it and decodes the response.
// Error responses are returned as *RemoteError, a response of another type than
// expected is an error as well.
func invokeRPCRequest(ctx context.Context, req *common.Message, expected common.MessageType, transport transport.IRPCClientTransport, serializer serializer.IRPCSerializer) (*common.Message, error) {
	reqBytes, err := serializer.Serialize(*req)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize request: %w", err)
	}

	respBytes, err := transport.Send(ctx, reqBytes)
	if err != nil {
		return nil, err
	}

	resp := &common.Message{}
	if err := serializer.Deserialize(respBytes, resp); err != nil {
		return nil, fmt.Errorf("failed to deserialize response: %w", err)
	}

	if resp.MsgType == common.MsgTError {
		return nil, newRemoteError(req.Op, resp)
	}
	if resp.MsgType != expected {
		return nil, fmt.Errorf("unexpected message type %s, expected %s", resp.MsgType, expected)
	}
	return resp, nil
}
