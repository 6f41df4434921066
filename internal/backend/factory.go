package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"custfin/internal/amqp"
	"custfin/internal/cache"
	"custfin/internal/services"
	"custfin/internal/storage"
	"custfin/internal/store"
	"custfin/internal/store/memory"
)

const (
	defaultDataDirectory = "data"
	defaultCacheTTL      = 5 * time.Minute
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

// CreateBackend opens the configured store, connects AMQP when configured
// and builds the finance service on top.
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
		result, err = f.createSQLiteBackend(ctx, config)
	case MemoryBackend:
		result, err = f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	f.wireService(result, config)
	return result, nil
}

func (f *DefaultFactory) createSQLiteBackend(ctx context.Context, config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	empty, err := repo.IsEmpty(ctx)
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("check sqlite content: %w", err)
	}
	if empty {
		if err := f.importSeed(ctx, repo, dataDirectory(config)); err != nil {
			repo.Close()
			return nil, err
		}
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath, "seeded", empty)

	return &BackendResult{
		Store:   repo,
		Ping:    repo.Ping,
		Cleanup: repo.Close,
	}, nil
}

func (f *DefaultFactory) importSeed(ctx context.Context, repo *storage.SQLiteRepository, dir string) error {
	seed, err := memory.NewFromFiles(dir)
	if err != nil {
		return fmt.Errorf("read seed data: %w", err)
	}
	snap := seed.Snapshot()
	if len(snap.Customers) == 0 && len(snap.Profiles) == 0 {
		return nil
	}
	if err := repo.Import(ctx, snap); err != nil {
		return fmt.Errorf("import seed data from %s: %w", dir, err)
	}
	return nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	dir := dataDirectory(config)
	st, err := memory.NewFromFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load memory backend: %w", err)
	}

	f.logger.Info("Initialized memory backend", "data_directory", dir)

	return &BackendResult{
		Store:   st,
		Ping:    func(context.Context) error { return nil },
		Cleanup: func() error { return nil },
	}, nil
}

// wireService connects the optional AMQP client and the look-up caches and
// builds the finance service over result.Store.
func (f *DefaultFactory) wireService(result *BackendResult, config Config) {
	ttl := config.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	names := cache.NewLRUCache[string](1000, ttl)
	distributors := cache.NewLRUCache[string](200, ttl)
	result.Caches = cache.NewManager()
	result.Caches.Register("profile_names", names)
	result.Caches.Register("distributor_names", distributors)
	result.Caches.StartCleanup(ttl)

	opts := []services.Option{
		services.WithNameCache(names),
		services.WithDistributorCache(distributors),
		services.WithLocation(config.Location),
	}

	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without events", "error", err)
		} else {
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
			result.Events = client
			opts = append(opts, services.WithPublisher(client))
		}
	}

	result.Service = services.NewFinanceService(result.Store, opts...)

	closeStore := result.Cleanup
	result.Cleanup = func() error {
		result.Caches.Stop()
		var errs []error
		if result.Events != nil {
			errs = append(errs, result.Events.Close())
		}
		if closeStore != nil {
			errs = append(errs, closeStore())
		}
		return errors.Join(errs...)
	}
}

func dataDirectory(config Config) string {
	if config.DataDirectory == "" {
		return defaultDataDirectory
	}
	return config.DataDirectory
}

var _ store.Store = (*storage.SQLiteRepository)(nil)
