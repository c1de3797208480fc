package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/emmett/earworm/internal/input"
	"github.com/emmett/earworm/internal/output"
	"github.com/emmett/earworm/internal/recognition"
)

// HotkeyMode keeps earworm running in the background; each press of the
// hotkey starts a recognition, or cancels the one in progress.
type HotkeyMode struct {
	service   *Service
	combo     string
	statusOut *output.ConsoleOutput
	logger    *zap.Logger
}

// NewHotkeyMode creates a HotkeyMode
func NewHotkeyMode(service *Service, combo string, statusOut *output.ConsoleOutput, logger *zap.Logger) *HotkeyMode {
	if statusOut == nil {
		statusOut = output.DefaultConsoleOutput()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HotkeyMode{service: service, combo: combo, statusOut: statusOut, logger: logger}
}

// Run blocks until Ctrl+C
func (h *HotkeyMode) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			h.statusOut.Info("Exiting...")
			cancel()
		case <-ctx.Done():
		}
	}()

	presses := make(chan struct{}, 10)
	trigger := input.NewTrigger(func() {
		select {
		case presses <- struct{}{}:
		default:
		}
	}, h.logger)
	if err := trigger.Start(ctx, h.combo); err != nil {
		return fmt.Errorf("failed to start hotkey listener: %w", err)
	}
	defer trigger.Stop()

	worker := NewRetryWorker(h.service, h.logger.Named("retry"))
	go func() {
		if err := worker.Run(ctx); err != nil {
			h.logger.Warn("retry worker stopped", zap.Error(err))
		}
	}()

	h.statusOut.Info(fmt.Sprintf("Press %s to recognize the music playing, again to cancel.", h.combo))
	h.statusOut.Info("Press Ctrl+C to exit.")

	for {
		select {
		case <-ctx.Done():
			if err := h.service.Cancel(); err != nil && !errors.Is(err, recognition.ErrNoActiveSession) {
				h.logger.Warn("failed to cancel session", zap.Error(err))
			}
			return nil

		case <-presses:
			started, err := h.service.Toggle(ctx)
			if err != nil {
				h.statusOut.Error(fmt.Sprintf("Failed to start recognition: %v", err))
				continue
			}
			h.logger.Debug("hotkey pressed", zap.Bool("started", started))
		}
	}
}
