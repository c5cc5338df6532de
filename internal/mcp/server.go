// Package mcp exposes the store registry to AI agents as MCP tools and
// resources over stdio.
package mcp

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/zot/ui-data/internal/config"
	"github.com/zot/ui-data/internal/lua"
	"github.com/zot/ui-data/internal/quark"
	"github.com/zot/ui-data/internal/store"
)

const (
	serverName    = "ui-data"
	serverVersion = "0.1.0"
	// owner is the owner of reads and writes issued by tools.
	owner = "mcp"
)

// Executor runs fn serialized with the other operations on store id.
type Executor func(id string, fn func() error) error

// Server implements an MCP server for AI integration.
type Server struct {
	config   *config.Config
	registry *store.Registry
	quarks   *quark.Registry
	runtime  *lua.Runtime
	exec     Executor
	mcp      *server.MCPServer
}

// NewServer creates an MCP server over reg. runtime may be nil, in which
// case load_script is not offered.
func NewServer(cfg *config.Config, reg *store.Registry, quarks *quark.Registry, runtime *lua.Runtime) *Server {
	s := &Server{
		config:   cfg,
		registry: reg,
		quarks:   quarks,
		runtime:  runtime,
		exec:     func(_ string, fn func() error) error { return fn() },
		mcp: server.NewMCPServer(serverName, serverVersion,
			server.WithToolCapabilities(false),
			server.WithResourceCapabilities(false, false),
		),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// SetExecutor makes store tools run on exec, so a tool's window changes and
// its read or write are not interleaved with other callers of the same store.
// By default tools run on the calling goroutine.
func (s *Server) SetExecutor(exec Executor) {
	s.exec = exec
}

// MCP returns the underlying mcp-go server.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// ServeStdio serves MCP on stdin and stdout until the client disconnects.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// jsonResult renders v as a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
