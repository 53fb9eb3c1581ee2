package backend

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"expensetracker/internal/aggregate"
	"expensetracker/internal/amqp"
	"expensetracker/internal/cache"
	"expensetracker/internal/core"
	"expensetracker/internal/live"
	"expensetracker/internal/services"
	"expensetracker/internal/storage"
	"expensetracker/internal/storage/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend opens the configured repository and wires the store,
// cache, optional publisher, service and aggregate engine on top of it.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	repo, err := f.createRepository(config)
	if err != nil {
		return nil, err
	}

	c := cache.NewLRUCache[core.Transaction](config.CacheSize, config.CacheTTL)
	store := live.New(repo, live.WithCache(c), live.WithLogger(f.logger))

	var events services.EventPublisher
	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without change events", "error", err)
		} else {
			events = client
			f.logger.InfoContext(ctx, "Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	svc := services.NewTransactionService(store, events, config.DefaultCurrency)

	clock := config.Clock
	if clock == nil {
		loc := config.Location
		if loc == nil {
			loc = time.Local
		}
		clock = func() time.Time { return time.Now().In(loc) }
	}
	engine := aggregate.NewEngine(store, aggregate.WithClock(clock), aggregate.WithLogger(f.logger))

	f.logger.InfoContext(ctx, "Initialized backend",
		"type", config.Type.String(),
		"amqp_enabled", events != nil,
		"cache_size", config.CacheSize)

	return &BackendResult{
		Service: svc,
		Engine:  engine,
		Cache:   c,
		Cleanup: svc.Close,
	}, nil
}

func (f *DefaultFactory) createRepository(config Config) (storage.Repository, error) {
	switch config.Type {
	case SQLiteBackend:
		var opts []storage.Option
		if config.Location != nil {
			opts = append(opts, storage.WithLocation(config.Location))
		}
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite repository", "db_path", config.SQLiteDBPath)
		return repo, nil
	case MemoryBackend:
		f.logger.Info("Initialized memory repository")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}
