package mcp

import (
	"testing"

	"go.uber.org/zap"
)

func TestNewServer(t *testing.T) {
	logger := zap.NewNop()
	s := NewServer("dbscope-engine", "1.0.0", logger)

	if s == nil {
		t.Fatal("expected non-nil server")
	}
	if s.mcp == nil {
		t.Fatal("expected non-nil mcp server")
	}
	if s.logger != logger {
		t.Error("expected logger to be set")
	}
}

func TestServer_MCP(t *testing.T) {
	s := NewServer("dbscope-engine", "1.0.0", zap.NewNop())

	mcpServer := s.MCP()
	if mcpServer == nil {
		t.Fatal("expected non-nil mcp server from MCP()")
	}
	if mcpServer != s.mcp {
		t.Error("expected MCP() to return the internal mcp server")
	}
}

func TestServer_NewStreamableHTTPServer(t *testing.T) {
	s := NewServer("dbscope-engine", "1.0.0", zap.NewNop())

	httpServer := s.NewStreamableHTTPServer()
	if httpServer == nil {
		t.Fatal("expected non-nil HTTP server")
	}
}
