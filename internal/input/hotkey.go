// Package input turns a global hotkey into recognition requests.
package input

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.design/x/hotkey"
)

// Trigger calls onPress every time the registered hotkey goes down.
// The callback decides whether a press starts or stops recognition.
type Trigger struct {
	mu      sync.Mutex
	hk      *hotkey.Hotkey
	onPress func()
	logger  *zap.Logger
	cancel  context.CancelFunc
	done    chan struct{}
	presses int
}

// NewTrigger creates a Trigger
func NewTrigger(onPress func(), logger *zap.Logger) *Trigger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trigger{
		onPress: onPress,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Start registers combo (e.g. "ctrl+shift+m") and begins listening
func (t *Trigger) Start(ctx context.Context, combo string) error {
	mods, key, err := ParseHotkey(combo)
	if err != nil {
		return fmt.Errorf("invalid hotkey: %w", err)
	}

	t.hk = hotkey.New(mods, key)
	if err := t.hk.Register(); err != nil {
		return fmt.Errorf("failed to register hotkey %q: %w", combo, err)
	}
	t.logger.Info("hotkey registered", zap.String("combo", combo))

	ctx, t.cancel = context.WithCancel(ctx)

	go func() {
		defer close(t.done)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-t.hk.Keydown():
				if !ok {
					return
				}
				t.mu.Lock()
				t.presses++
				t.mu.Unlock()

				if t.onPress != nil {
					t.onPress()
				}
			}
		}
	}()

	return nil
}

// Stop unregisters the hotkey
func (t *Trigger) Stop() {
	if t.cancel != nil {
		t.cancel()
	}
	if t.hk != nil {
		if err := t.hk.Unregister(); err != nil {
			t.logger.Debug("hotkey unregister failed", zap.Error(err))
		}
	}
	if t.cancel != nil {
		select {
		case <-t.done:
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// Presses returns how many times the hotkey was pressed
func (t *Trigger) Presses() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.presses
}
