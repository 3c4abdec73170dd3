package backend

import (
	"context"
	"errors"
	"fmt"

	"budgetly/internal/amqp"
	"budgetly/internal/log"
	"budgetly/internal/ports"
	"budgetly/internal/storage"
	"budgetly/internal/store"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		result *BackendResult
		err    error
	)
	switch config.Type {
	case SQLiteBackend:
		result, err = f.createSQLiteBackend(config)
	case MemoryBackend:
		result, err = f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	f.attachEvents(result, config)
	return result, nil
}

// attachEvents connects the optional AMQP publisher. A broker that is down
// at startup is logged and the backend runs without events.
func (f *DefaultFactory) attachEvents(result *BackendResult, config Config) {
	if config.AMQPURL == "" {
		return
	}
	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
	if err != nil {
		f.logger.Warn("Failed to initialize AMQP client, continuing without events", log.FieldError, err.Error())
		return
	}
	f.logger.Info("Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)

	result.Events = client
	previous := result.Cleanup
	result.Cleanup = func() error {
		var errs []error
		if err := client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
		if previous != nil {
			if err := previous(); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	sqliteRepo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)

	return &BackendResult{
		Repository: sqliteRepo,
		Ping:       sqliteRepo.Ping,
		Cleanup: func() error {
			if err := sqliteRepo.Close(); err != nil {
				return fmt.Errorf("storage: %w", err)
			}
			return nil
		},
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	dataDir := config.DataDirectory
	if dataDir == "" {
		dataDir = "data" // Default directory
	}

	st, err := store.NewFromFiles(dataDir, config.DemoUser)
	if err != nil {
		f.logger.Warn("Some seed categories were skipped", log.FieldError, err.Error(), "data_directory", dataDir)
	}
	st.Subscribe(func(e store.Event) {
		f.logger.Debug("State changed", "mutation", e.Mutation, "version", e.Version)
	})

	f.logger.Info("Initialized memory backend",
		"data_directory", dataDir,
		"demo_user", config.DemoUser)

	return &BackendResult{
		Repository: st,
		Ping:       func(context.Context) error { return nil },
		Cleanup:    func() error { return nil },
	}, nil
}

var _ ports.Repository = (*storage.SQLiteRepository)(nil)
