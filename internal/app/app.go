// Package app wires configuration into the stores, services and adapters of cinelog.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/prn-tf/cinelog/internal/config"
	"github.com/prn-tf/cinelog/internal/domain"
	"github.com/prn-tf/cinelog/internal/events"
	"github.com/prn-tf/cinelog/internal/lock"
	"github.com/prn-tf/cinelog/internal/metrics"
	"github.com/prn-tf/cinelog/internal/pkg/crypto"
	"github.com/prn-tf/cinelog/internal/repository"
	"github.com/prn-tf/cinelog/internal/repository/postgres"
	"github.com/prn-tf/cinelog/internal/repository/sqlite"
	"github.com/prn-tf/cinelog/internal/service"
	"github.com/prn-tf/cinelog/internal/storage"
)

// App holds the opened store and the shared infrastructure of one process.
type App struct {
	Config  *config.Config
	DB      *repository.Database
	Tickets storage.Backend
	Metrics *metrics.Metrics
	Locker  lock.Locker

	redis     *redis.Client
	publisher *events.RedisPublisher
	users     *service.UserService
	logger    zerolog.Logger
	closers   []io.Closer
}

// Open connects to the configured store and applies pending migrations,
// then builds the locker, ticket storage, metrics and change publisher.
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	if err := crypto.SetPasswordCost(cfg.Auth.BcryptCost); err != nil {
		return nil, fmt.Errorf("invalid bcrypt cost: %w", err)
	}

	db, err := OpenDatabase(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config: cfg,
		DB:     db,
		logger: logger,
	}

	if cfg.Metrics.Enabled {
		a.Metrics = metrics.New()
	}

	if err := a.openRedis(ctx); err != nil {
		a.Close()
		return nil, err
	}

	tickets, err := OpenStorage(ctx, cfg.Storage, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Tickets = tickets

	policy := lock.RetryPolicy{
		TTL:        cfg.Auth.LockTTL,
		MaxRetries: cfg.Auth.LockRetries,
		RetryDelay: cfg.Auth.LockRetryDelay,
	}
	a.users = service.NewUserService(db.Repos.User, a.Locker, policy, a.Metrics, logger)

	return a, nil
}

// OpenDatabase opens and migrates the store selected by cfg.Driver.
func OpenDatabase(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*repository.Database, error) {
	switch cfg.Driver {
	case "sqlite":
		sc := sqlite.DefaultConfig(cfg.Path)
		if cfg.JournalMode != "" {
			sc.JournalMode = cfg.JournalMode
		}
		if cfg.BusyTimeout > 0 {
			sc.BusyTimeout = cfg.BusyTimeout
		}
		if cfg.CacheSize != 0 {
			sc.CacheSize = cfg.CacheSize
		}
		if cfg.SynchronousMode != "" {
			sc.SynchronousMode = cfg.SynchronousMode
		}
		return sqlite.Open(ctx, sc, logger)
	case "postgres":
		return postgres.Open(ctx, cfg, logger)
	}
	return nil, fmt.Errorf("%w: %q", repository.ErrUnsupportedDriver, cfg.Driver)
}

// OpenStorage builds the ticket image backend selected by cfg.Backend.
func OpenStorage(ctx context.Context, cfg config.StorageConfig, logger zerolog.Logger) (storage.Backend, error) {
	switch cfg.Backend {
	case "", "filesystem":
		return storage.NewFilesystemBackend(cfg.DataDir, logger)
	case "s3":
		client, err := storage.NewS3Client(ctx, storage.S3Options{
			Endpoint:        cfg.S3.Endpoint,
			Region:          cfg.S3.Region,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UsePathStyle:    cfg.S3.UsePathStyle,
		})
		if err != nil {
			return nil, err
		}
		return storage.NewS3Backend(client, cfg.S3.Bucket, cfg.S3.Prefix, logger), nil
	}
	return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
}

// openRedis connects to Redis when enabled. Redis then holds registration
// locks and carries change events; otherwise locks stay in memory.
func (a *App) openRedis(ctx context.Context) error {
	rc := a.Config.Redis
	if !rc.Enabled {
		a.Locker = lock.NewMemoryLocker()
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:        rc.Addr(),
		Password:    rc.Password,
		DB:          rc.DB,
		PoolSize:    rc.PoolSize,
		DialTimeout: rc.DialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	a.redis = client
	a.Locker = lock.NewRedisLocker(client)
	a.publisher = events.NewRedisPublisher(client, rc.Channel, a.logger)

	a.logger.Info().Str("addr", rc.Addr()).Str("channel", rc.Channel).Msg("connected to Redis")
	return nil
}

// Users returns the user directory.
func (a *App) Users() *service.UserService {
	return a.users
}

// Reviews returns a ledger over scope. Changes are published to Redis when enabled.
func (a *App) Reviews(ctx context.Context, scope domain.Scope) *service.ReviewService {
	ledger := service.NewReviewService(ctx, a.DB.Repos, service.ReviewServiceConfig{
		Scope:            scope,
		Tickets:          a.Tickets,
		Metrics:          a.Metrics,
		SeedMissingOwner: a.Config.Ledger.SeedMissingOwner,
	}, a.logger)
	if a.publisher != nil {
		ledger.AddListener(a.publisher)
	}
	return ledger
}

// Browse returns a ledger over scope for read-only use. It never seeds a
// placeholder owner, so unknown user IDs simply read as empty.
func (a *App) Browse(ctx context.Context, scope domain.Scope) *service.ReviewService {
	return service.NewReviewService(ctx, a.DB.Repos, service.ReviewServiceConfig{
		Scope:   scope,
		Tickets: a.Tickets,
		Metrics: a.Metrics,
	}, a.logger)
}

// Logger returns the process logger.
func (a *App) Logger() zerolog.Logger {
	return a.logger
}

// AddCloser registers c to be closed after the store by Close.
func (a *App) AddCloser(c io.Closer) {
	a.closers = append(a.closers, c)
}

// Ping checks the store connection.
func (a *App) Ping(ctx context.Context) error {
	return a.DB.Health.Ping(ctx)
}

// Close releases the store and the Redis client.
func (a *App) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
