package mcp

import (
	"context"
	"io"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog/log"

	"oscar/dispatcher"
)

const (
	serverName    = "oscar"
	serverVersion = "0.1.0"
)

// Server serves the mockup tools to MCP clients
type Server struct {
	mcp        *server.MCPServer
	dispatcher *dispatcher.Dispatcher
}

// NewServer registers every dispatcher tool on a new MCP server
func NewServer(d *dispatcher.Dispatcher) *Server {
	s := &Server{
		mcp: server.NewMCPServer(serverName, serverVersion,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
			server.WithInstructions("Generate and edit HTML UI mockups. Results replace the current canvas."),
		),
		dispatcher: d,
	}
	for _, tool := range d.Tools() {
		s.mcp.AddTool(tool, s.handler(tool.Name))
	}
	return s
}

func (s *Server) handler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcptypes.CallToolRequest) (*mcptypes.CallToolResult, error) {
		log.Debug().Str("tool", name).Msg("MCP tool call")
		r := s.dispatcher.Call(ctx, name, req.GetArguments())
		if r.IsError {
			return mcptypes.NewToolResultError(r.Text), nil
		}
		return mcptypes.NewToolResultText(r.Text), nil
	}
}

// Handle runs one tool call as the MCP server would
func (s *Server) Handle(ctx context.Context, name string, args map[string]any) (*mcptypes.CallToolResult, error) {
	return s.handler(name)(ctx, mcptypes.CallToolRequest{
		Params: mcptypes.CallToolParams{Name: name, Arguments: args},
	})
}

// Serve speaks MCP over in and out until ctx ends or in closes
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}
