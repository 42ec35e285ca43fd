// Package tools exposes the SSH operations as MCP tools over stdio.
package tools

import (
	"github.com/mark3labs/mcp-go/server"
)

// Server wraps the MCP server with the registered tool set.
type Server struct {
	mcpServer *server.MCPServer
	handlers  *Handlers
}

// NewServer builds the MCP server and registers every tool.
func NewServer(name, version string, h *Handlers) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(name, version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
		handlers: h,
	}
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(connectTool(), s.handlers.handleConnect)
	s.mcpServer.AddTool(executeTool(), s.handlers.handleExecute)
	s.mcpServer.AddTool(disconnectTool(), s.handlers.handleDisconnect)
	s.mcpServer.AddTool(listConnectionsTool(), s.handlers.handleListConnections)
	s.mcpServer.AddTool(executeScriptTool(), s.handlers.handleExecuteScript)
	s.mcpServer.AddTool(uploadAndExecuteTool(), s.handlers.handleUploadAndExecute)
	s.mcpServer.AddTool(uploadFileTool(), s.handlers.handleUploadFile)
	s.mcpServer.AddTool(downloadFileTool(), s.handlers.handleDownloadFile)
	s.mcpServer.AddTool(listFilesTool(), s.handlers.handleListFiles)
}

// ServeStdio blocks serving MCP requests on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
