package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/emmett/earworm/internal/app"
	"github.com/emmett/earworm/internal/config"
	grpcserver "github.com/emmett/earworm/internal/server/grpc"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
	GitBranch = "unknown"
)

var (
	configFile   = flag.String("config", "", "Path to configuration file (default: ~/.earwormrc or /etc/earworm/config.yaml)")
	port         = flag.Int("port", 0, "gRPC server port (default: server.port from config, 50051)")
	audioDevice  = flag.String("device", "", "Audio input device name")
	strategyName = flag.String("strategy", "", "Sampling strategy preset")
	showVersion  = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("Earworm gRPC Server v%s\n", Version)
		fmt.Printf("  Commit:  %s\n", GitCommit)
		fmt.Printf("  Branch:  %s\n", GitBranch)
		fmt.Printf("  Built:   %s\n", BuildTime)
		os.Exit(0)
	}

	fmt.Printf("Earworm gRPC Server v%s (commit: %s)\n", Version, GitCommit)

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadWithFallback(*configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *audioDevice != "" {
		cfg.Audio.Device = *audioDevice
	}
	if *strategyName != "" {
		cfg.Strategy.Preset = *strategyName
		cfg.Strategy.Steps = nil
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := app.NewLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	service, closeStore, err := app.OpenService(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("failed to close store", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := grpcserver.NewServer(grpcserver.Config{Address: cfg.Address()}, service, logger.Named("grpc"))
	worker := app.NewRetryWorker(service, logger.Named("retry"))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		return worker.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		fmt.Println("\nShutting down...")
		server.Stop()
		return nil
	})
	return g.Wait()
}
