// Package mcp exposes the search and job services as MCP tools over a
// stdio transport.
package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/jamaly87/code-reader/internal/jobs"
	"github.com/jamaly87/code-reader/internal/search"
)

const (
	serverName    = "code-reader"
	serverVersion = "1.0.0"
)

// Server is the MCP server over the job and search services
type Server struct {
	mcpServer *server.MCPServer
	jobs      *jobs.Service
	searcher  *search.Searcher
	logger    *zap.Logger
}

// NewServer creates an MCP server with the tool set registered
func NewServer(jobSvc *jobs.Service, searcher *search.Searcher, logger *zap.Logger) *Server {
	s := &Server{
		jobs:     jobSvc,
		searcher: searcher,
		logger:   logger.Named("mcp"),
	}

	mcpServer := server.NewMCPServer(serverName, serverVersion)
	for _, tool := range s.getTools() {
		mcpServer.AddTool(tool, s.createToolHandler(tool.Name))
	}
	s.mcpServer = mcpServer

	s.logger.Info("mcp server initialized",
		zap.String("name", serverName),
		zap.String("version", serverVersion),
	)
	return s
}

// createToolHandler routes a tool call to its handler by name
func (s *Server) createToolHandler(toolName string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		s.logger.Debug("handling tool call", zap.String("tool", toolName))

		var args map[string]interface{}
		if request.Params.Arguments != nil {
			var ok bool
			args, ok = request.Params.Arguments.(map[string]interface{})
			if !ok {
				return errorResult("invalid arguments format"), nil
			}
		} else {
			args = make(map[string]interface{})
		}

		switch toolName {
		case "search_code":
			return s.handleSearchCode(ctx, args)
		case "get_task_status":
			return s.handleGetTaskStatus(ctx, args)
		default:
			return errorResult(fmt.Sprintf("unknown tool: %s", toolName)), nil
		}
	}
}

// Start serves MCP over stdio until the transport closes
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("starting mcp server on stdio transport")
	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
