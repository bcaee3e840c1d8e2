package stdio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/dDoc/rpc/server"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var Logger = logger.GetLogger("transport/rpc")

// ServerName is reported to MCP clients during initialization
const ServerName = "ddoc"

// NewMCPServer creates an MCP server exposing every operation of dispatcher as a tool
func NewMCPServer(dispatcher *server.Dispatcher, version string) (*mcp.Server, error) {
	s := mcp.NewServer(&mcp.Implementation{Name: ServerName, Version: version}, nil)

	for _, entry := range dispatcher.Catalogue() {
		inputSchema, err := json.Marshal(entry.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("failed to render schema of %s: %w", entry.Name, err)
		}
		s.AddTool(&mcp.Tool{
			Name:        entry.Name,
			Description: entry.Description,
			InputSchema: json.RawMessage(inputSchema),
		}, toolHandler(dispatcher, entry.Name))
	}
	return s, nil
}

// Serve answers MCP requests on stdin/stdout until ctx is canceled or stdin is closed
func Serve(ctx context.Context, dispatcher *server.Dispatcher, version string) error {
	s, err := NewMCPServer(dispatcher, version)
	if err != nil {
		return err
	}

	Logger.Infof("Starting MCP server on stdio with %d tools", len(dispatcher.Catalogue()))
	if err := s.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		return err
	}
	Logger.Infof("MCP server on stdio stopped")
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func toolHandler(dispatcher *server.Dispatcher, name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args json.RawMessage
		if req.Params != nil {
			args = req.Params.Arguments
		}
		return ToolResult(dispatcher.Dispatch(ctx, name, args)), nil
	}
}

// ToolResult renders a reply as an MCP tool result. Failures are reported in the
// result (isError) so the model can see them, never as protocol errors.
func ToolResult(r *server.Reply) *mcp.CallToolResult {
	if !r.OK() {
		failure := map[string]any{
			"kind":    string(r.Kind()),
			"message": r.Err.Error(),
		}
		if len(r.Result) > 0 {
			failure["partial"] = r.Result
		}
		return &mcp.CallToolResult{
			IsError:           true,
			Content:           []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("%s error: %v", r.Kind(), r.Err)}},
			StructuredContent: failure,
		}
	}

	return &mcp.CallToolResult{
		Content:           []mcp.Content{&mcp.TextContent{Text: r.Text}},
		StructuredContent: structured(r.Result),
	}
}

// structured wraps values that are not JSON objects, structured content must be an object
func structured(result json.RawMessage) any {
	trimmed := bytes.TrimSpace(result)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return json.RawMessage(trimmed)
	}
	if len(trimmed) == 0 {
		trimmed = []byte("null")
	}
	return map[string]any{"result": json.RawMessage(trimmed)}
}
