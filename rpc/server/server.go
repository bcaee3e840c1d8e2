package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/ValentinKolb/dDoc/lib/errs"
	"github.com/ValentinKolb/dDoc/rpc/common"
	"github.com/ValentinKolb/dDoc/rpc/serializer"
	"github.com/ValentinKolb/dDoc/rpc/transport"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("rpc")

// NewRPCServer creates a new RPC server answering requests of transport with dispatcher.
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		http.NewHttpServerTransport(),
//		serializer.NewJSONSerializer(),
//		dispatcher,
//	)
//
//	if err := s.Serve(ctx); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
	dispatcher *Dispatcher,
) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	return &RPCServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		dispatcher: dispatcher,
	}
}

// RPCServer serves the operation catalogue over a byte oriented transport
type RPCServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	dispatcher *Dispatcher
}

// Serve registers the request handler and serves until ctx is canceled
func (s *RPCServer) Serve(ctx context.Context) error {
	Logger.Infof("Created RPC Server")
	Logger.Infof(s.config.String())

	s.transport.RegisterHandler(s.Handle)
	return s.transport.Listen(ctx, s.config)
}

// Handle decodes one request, dispatches it and encodes the reply
func (s *RPCServer) Handle(ctx context.Context, req []byte) []byte {
	var msg common.Message
	var resp *common.Message

	if err := s.serializer.Deserialize(req, &msg); err != nil {
		resp = common.NewErrorResponse("", string(errs.KindInvalidParameters),
			fmt.Errorf("failed to deserialize request: %w", err))
	} else {
		resp = s.handleMessage(ctx, &msg)
	}

	val, err := s.serializer.Serialize(*resp)
	if err != nil {
		Logger.Errorf("failed to serialize response of %s: %v", resp.Op, err)
		val, _ = s.serializer.Serialize(*common.NewErrorResponse(resp.Op, string(errs.KindInternal),
			fmt.Errorf("failed to serialize response: %w", err)))
	}
	return val
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (s *RPCServer) handleMessage(ctx context.Context, msg *common.Message) *common.Message {
	switch msg.MsgType {
	case common.MsgTCall:
		return ReplyMessage(s.dispatcher.Dispatch(ctx, msg.Op, msg.Params))
	case common.MsgTList:
		catalogue, err := json.Marshal(s.dispatcher.Catalogue())
		if err != nil {
			return common.NewErrorResponse("", string(errs.KindInternal), err)
		}
		return common.NewListResponse(catalogue)
	default:
		return common.NewErrorResponse(msg.Op, string(errs.KindInvalidParameters),
			fmt.Errorf("unsupported message type %s", msg.MsgType))
	}
}

// ReplyMessage renders a reply as a response message
func ReplyMessage(r *Reply) *common.Message {
	if r.OK() {
		return common.NewSuccessResponse(r.Operation, r.Result, r.Text)
	}
	resp := common.NewErrorResponse(r.Operation, string(r.Kind()), r.Err)
	resp.Result = r.Result
	return resp
}

// --------------------------------------------------------------------------
// HTTP Handlers
// --------------------------------------------------------------------------

// MetricsHandler serves all metrics in the Prometheus text format
func MetricsHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		metrics.WritePrometheus(w, true)
	})
}

// OperationsHandler serves the catalogue of dispatcher as JSON
func OperationsHandler(dispatcher *Dispatcher) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(dispatcher.Catalogue()); err != nil {
			Logger.Errorf("failed to write catalogue: %v", err)
		}
	})
}
