package grpc

import (
	"context"
	"fmt"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/emmett/earworm/internal/recognition"
)

// Backend is the part of the application exposed over gRPC
type Backend interface {
	RecognizeWAV(ctx context.Context, data []byte) (recognition.Task, error)
	StartListening(ctx context.Context) (recognition.Task, error)
	Cancel() error
	Subscribe(buffer int) (<-chan recognition.Task, func())
}

// Server wraps the gRPC server and services
type Server struct {
	grpcServer *grpc.Server
	address    string
	logger     *zap.Logger

	// ctx outlives single calls; sessions started by Listen run under it
	ctx    context.Context
	cancel context.CancelFunc
}

// Config holds server configuration
type Config struct {
	Address string
}

// NewServer creates a gRPC server exposing backend
func NewServer(cfg Config, backend Backend, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		grpcServer: grpc.NewServer(grpc.UnaryInterceptor(logCalls(logger))),
		address:    cfg.Address,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
	RegisterRecognitionServer(s.grpcServer, newRecognitionService(ctx, backend, logger))
	return s
}

// Start listens on the configured address and serves until Stop
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.address, err)
	}
	return s.Serve(lis)
}

// Serve accepts connections on lis until Stop
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("gRPC server listening", zap.String("address", lis.Addr().String()))
	return s.grpcServer.Serve(lis)
}

// Stop cancels sessions started over gRPC and gracefully stops the server
func (s *Server) Stop() {
	s.cancel()
	s.grpcServer.GracefulStop()
}

func logCalls(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		if err != nil {
			logger.Warn("gRPC call failed", zap.String("method", info.FullMethod), zap.Error(err))
		} else {
			logger.Debug("gRPC call", zap.String("method", info.FullMethod))
		}
		return resp, err
	}
}
