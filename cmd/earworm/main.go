package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/emmett/earworm/internal/app"
	"github.com/emmett/earworm/internal/config"
	"github.com/emmett/earworm/internal/output"
	"github.com/emmett/earworm/internal/recognition"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
	GitBranch = "unknown"
)

var (
	configFile     = flag.String("config", "", "Path to configuration file (default: ~/.earwormrc or /etc/earworm/config.yaml)")
	inputFile      = flag.String("file", "", "Recognize a WAV file and exit")
	listenOnce     = flag.Bool("listen", false, "Listen once on the microphone and exit")
	hotkeyCombo    = flag.String("hotkey", "", "Hotkey that starts and cancels a recognition (default: ctrl+shift+m)")
	audioDevice    = flag.String("device", "", "Audio input device name (use -list-devices to see available devices)")
	strategyName   = flag.String("strategy", "", "Sampling strategy preset (use -list-strategies to see them)")
	outputFormat   = flag.String("format", "console", "Output format: console, json, text")
	outputFile     = flag.String("output", "", "Output file (default: stdout)")
	listDevices    = flag.Bool("list-devices", false, "List all available audio input devices")
	listStrategies = flag.Bool("list-strategies", false, "List the built-in sampling strategies")
	showQueue      = flag.Bool("queue", false, "List recordings waiting for a retry")
	retryID        = flag.Int64("retry", 0, "Retry one queued recording by id")
	retryAll       = flag.Bool("retry-all", false, "Retry every queued recording once")
	showLibrary    = flag.Bool("library", false, "List recognized tracks")
	showVersion    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("Earworm v%s\n", Version)
		fmt.Printf("  Commit:  %s\n", GitCommit)
		fmt.Printf("  Branch:  %s\n", GitBranch)
		fmt.Printf("  Built:   %s\n", BuildTime)
		os.Exit(0)
	}

	cfg, err := config.LoadWithFallback(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to load config: %v\n", err)
		cfg = config.DefaultConfig()
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *listDevices {
		if err := app.NewDeviceManager(nil).ListDevices(); err != nil {
			os.Exit(1)
		}
		return
	}

	if *listStrategies {
		if err := app.NewCatalog(nil).ListStrategies(cfg.Strategy.Preset); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// applyFlags overrides config values with flags given on the command line
func applyFlags(cfg *config.Config) {
	flagsSet := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		flagsSet[f.Name] = true
	})

	if flagsSet["format"] || cfg.Output.Format == "" {
		cfg.Output.Format = *outputFormat
	}
	if flagsSet["output"] {
		cfg.Output.File = *outputFile
	}
	if flagsSet["device"] {
		cfg.Audio.Device = *audioDevice
	}
	if flagsSet["hotkey"] {
		cfg.Hotkey.Combo = *hotkeyCombo
	}
	if flagsSet["strategy"] {
		cfg.Strategy.Preset = *strategyName
		cfg.Strategy.Steps = nil
	}
}

func run(cfg *config.Config) error {
	logger, err := app.NewLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	console := output.DefaultConsoleOutput()
	observer, closeOutput, err := newObserver(cfg, console, logger)
	if err != nil {
		return err
	}
	defer closeOutput()

	service, closeStore, err := app.OpenService(cfg, logger, observer)
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

	catalog := app.NewCatalog(nil)
	switch {
	case *showQueue:
		entries, err := service.Queue()
		if err != nil {
			return err
		}
		return catalog.ListQueue(entries)

	case *showLibrary:
		entries, err := service.Library()
		if err != nil {
			return err
		}
		return catalog.ListLibrary(entries)

	case *retryID != 0:
		res, err := app.NewRetryWorker(service, logger.Named("retry")).Retry(ctx, *retryID)
		if err != nil {
			return err
		}
		if res.Kind == recognition.KindSuccess {
			console.Info(fmt.Sprintf("♪ %s", res.Track))
		} else {
			console.Info(fmt.Sprintf("#%d still unrecognized: %s", *retryID, res.Reason))
		}
		return nil

	case *retryAll:
		matched, err := app.NewRetryWorker(service, logger.Named("retry")).RetryAll(ctx)
		if err != nil {
			return err
		}
		console.Info(fmt.Sprintf("%d queued recording(s) recognized", matched))
		return nil

	case *inputFile != "":
		_, err := service.RecognizeFile(ctx, *inputFile)
		return err

	case *listenOnce:
		if _, err := app.NewDeviceManager(nil).SelectDevice(cfg.Audio.Device); err != nil {
			return err
		}
		_, err := service.RecognizeLive(ctx, recognition.StartOptions{})
		return err
	}

	if _, err := app.NewDeviceManager(nil).SelectDevice(cfg.Audio.Device); err != nil {
		return err
	}
	return app.NewHotkeyMode(service, cfg.Hotkey.Combo, console, logger.Named("hotkey")).Run()
}

// newObserver renders transitions on the console, or through a formatter
// for json and text output
func newObserver(cfg *config.Config, console *output.ConsoleOutput, logger *zap.Logger) (recognition.Observer, func(), error) {
	if cfg.Output.Format == "console" {
		return console, func() {}, nil
	}

	var w io.Writer = os.Stdout
	var file *os.File
	if cfg.Output.File != "" {
		f, err := os.OpenFile(cfg.Output.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open output file: %w", err)
		}
		w, file = f, f
	}

	formatter, err := output.NewFormatter(cfg.Output.Format, w)
	if err != nil {
		return nil, nil, err
	}
	return output.Observe(formatter, logger), func() {
		_ = formatter.Close()
		if file != nil {
			_ = file.Close()
		}
	}, nil
}
