// Package mcp exposes recognition and the local library as Model Context
// Protocol tools.
package mcp

import (
	"context"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/emmett/earworm/internal/recognition"
	"github.com/emmett/earworm/internal/store"
)

// Backend performs the work behind the tools
type Backend interface {
	RecognizeWAV(ctx context.Context, data []byte) (recognition.Task, error)
	Library() ([]store.LibraryEntry, error)
	Queue() ([]store.QueuedAttempt, error)
}

type Config struct {
	ServerName    string
	ServerVersion string
}

type Server struct {
	config    Config
	mcpServer *sdk.Server
	backend   Backend
	logger    *zap.Logger
}

func NewServer(cfg Config, backend Backend, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		config:  cfg,
		backend: backend,
		logger:  logger,
	}

	s.mcpServer = sdk.NewServer(&sdk.Implementation{
		Name:    cfg.ServerName,
		Version: cfg.ServerVersion,
	}, nil)

	s.registerTools()
	return s
}

// Start serves over stdin/stdout until ctx ends or the client disconnects
func (s *Server) Start(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &sdk.StdioTransport{})
}

func (s *Server) registerTools() {
	sdk.AddTool(s.mcpServer, &sdk.Tool{
		Name:        "recognize_audio",
		Description: "Identify the music in a WAV recording. Unmatched recordings may be queued for a later retry.",
	}, s.handleRecognize)

	sdk.AddTool(s.mcpServer, &sdk.Tool{
		Name:        "list_library",
		Description: "List tracks recognized so far, most recent first",
	}, s.handleListLibrary)

	sdk.AddTool(s.mcpServer, &sdk.Tool{
		Name:        "list_queue",
		Description: "List recordings waiting for another recognition try",
	}, s.handleListQueue)
}
