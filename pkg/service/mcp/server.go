package mcp

import (
	"context"
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lily/pkg/model"
	"github.com/m-mizutani/lily/pkg/tool"
	"github.com/m-mizutani/lily/pkg/utils/logging"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"google.golang.org/genai"
)

// Server exposes the tool surface to MCP clients. Every call acts on behalf
// of the single address the server was created for.
type Server struct {
	surface *tool.Surface
	addr    model.Address
	server  *mcp.Server
}

func NewServer(surface *tool.Surface, addr model.Address, version string) (*Server, error) {
	if addr == "" {
		return nil, goerr.New("address is required for MCP server")
	}

	s := &Server{
		surface: surface,
		addr:    addr,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "lily",
			Version: version,
		}, nil),
	}

	schemas, err := tool.Schemas()
	if err != nil {
		return nil, err
	}
	for name, schema := range schemas {
		s.server.AddTool(&mcp.Tool{
			Name:        name,
			Description: tool.Description(name),
			InputSchema: schema,
		}, s.handler(name))
	}

	return s, nil
}

func (s *Server) handler(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx = logging.With(ctx, logging.From(ctx).With("address", s.addr))

		var args map[string]any
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				return nil, goerr.Wrap(err, "failed to parse tool arguments", goerr.V("tool", name))
			}
		}

		resp, err := s.surface.Execute(ctx, s.addr, genai.FunctionCall{Name: name, Args: args})
		if err != nil {
			logging.From(ctx).Error("tool execution failed", "tool", name, "error", err)
			return nil, err
		}

		data, err := json.Marshal(resp.Response)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to marshal tool result", goerr.V("tool", name))
		}

		_, failed := resp.Response["error"]
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
			IsError: failed,
		}, nil
	}
}

// Connect serves one session over transport and returns without waiting for it to end
func (s *Server) Connect(ctx context.Context, transport mcp.Transport) (*mcp.ServerSession, error) {
	session, err := s.server.Connect(ctx, transport, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to connect MCP session")
	}
	return session, nil
}

// Run serves over stdio until the client disconnects or ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	if err := s.server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return goerr.Wrap(err, "MCP server stopped", goerr.V("address", s.addr))
	}
	return nil
}
