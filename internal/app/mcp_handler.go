package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/emmett/earworm/internal/server/mcp"
)

// MCPHandler runs the MCP server over stdin/stdout
type MCPHandler struct {
	service   *Service
	version   string
	gitCommit string
	configArg string
	logger    *zap.Logger
	info      io.Writer
}

// NewMCPHandler creates a new MCP handler. configPath is repeated in the
// client configuration it prints.
func NewMCPHandler(service *Service, version, gitCommit, configPath string, logger *zap.Logger) *MCPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MCPHandler{
		service:   service,
		version:   version,
		gitCommit: gitCommit,
		configArg: configPath,
		logger:    logger,
		info:      os.Stderr,
	}
}

type mcpServerConfig struct {
	Type    string   `json:"type,omitempty"`
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

// clientConfig is the snippet MCP clients need to launch this binary
func (h *MCPHandler) clientConfig() mcpServerConfig {
	execPath, err := os.Executable()
	if err != nil {
		execPath = "./build/earworm-mcp"
	}
	var args []string
	if h.configArg != "" {
		args = append(args, "-config", h.configArg)
	}
	return mcpServerConfig{Command: execPath, Args: args}
}

// printClientConfig prints the MCP client configuration. Stdout belongs to
// the protocol, so everything goes to stderr.
func (h *MCPHandler) printClientConfig() {
	fmt.Fprintf(h.info, "Starting MCP server...\n")
	fmt.Fprintf(h.info, "Protocol: Model Context Protocol (stdio transport)\n")
	fmt.Fprintf(h.info, "Version: %s (commit: %s)\n\n", h.version, h.gitCommit)

	server := h.clientConfig()
	clientConfig := struct {
		MCPServers map[string]mcpServerConfig `json:"mcpServers"`
	}{
		MCPServers: map[string]mcpServerConfig{"earworm": server},
	}
	if data, err := json.MarshalIndent(clientConfig, "", "  "); err == nil {
		fmt.Fprintf(h.info, "MCP Client Configuration:\n%s\n\n", data)
	}

	server.Type = "stdio"
	if data, err := json.Marshal(server); err == nil {
		fmt.Fprintf(h.info, "Add to Claude Code:\n")
		fmt.Fprintf(h.info, "claude mcp add-json earworm '%s'\n\n", data)
	}
}

// Run serves MCP requests until the client disconnects or a signal arrives
func (h *MCPHandler) Run() error {
	h.printClientConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := mcp.NewServer(mcp.Config{
		ServerName:    "earworm",
		ServerVersion: h.version,
	}, h.service, h.logger.Named("mcp"))

	worker := NewRetryWorker(h.service, h.logger.Named("retry"))
	go func() {
		if err := worker.Run(ctx); err != nil {
			h.logger.Warn("retry worker stopped", zap.Error(err))
		}
	}()

	fmt.Fprintf(h.info, "MCP server ready. Listening on stdin/stdout...\n")
	fmt.Fprintf(h.info, "Press Ctrl+C to stop.\n\n")

	if err := server.Start(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("server error: %w", err)
	}
	fmt.Fprintf(h.info, "\nShutting down MCP server...\n")
	return nil
}
