package app

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/emmett/earworm/internal/config"
	"github.com/emmett/earworm/internal/logging"
	"github.com/emmett/earworm/internal/recognition"
	"github.com/emmett/earworm/internal/store"
)

// NewLogger builds the logger described by the log section of cfg
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(logging.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
}

// OpenService opens the store under the configured data directory and
// builds a Service on top of it. The returned function waits for matches
// still being filed and closes the store.
func OpenService(cfg *config.Config, logger *zap.Logger, observer recognition.Observer) (*Service, func() error, error) {
	dir, err := cfg.DataDir()
	if err != nil {
		return nil, nil, err
	}
	st, err := store.Open(dir, logger.Named("store"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store in %s: %w", dir, err)
	}

	service, err := NewService(Options{
		Config:   cfg,
		Logger:   logger,
		Store:    st,
		Observer: observer,
	})
	if err != nil {
		return nil, nil, errors.Join(err, st.Close())
	}
	return service, func() error {
		service.Drain()
		return st.Close()
	}, nil
}
