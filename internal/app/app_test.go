package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/prn-tf/cinelog/internal/config"
	"github.com/prn-tf/cinelog/internal/domain"
	"github.com/prn-tf/cinelog/internal/lock"
	"github.com/prn-tf/cinelog/internal/repository"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)

	dir := t.TempDir()
	cfg.Database.Driver = "sqlite"
	cfg.Database.Path = filepath.Join(dir, "cinelog.db")
	cfg.Storage.Backend = "filesystem"
	cfg.Storage.DataDir = filepath.Join(dir, "tickets")
	cfg.Redis.Enabled = false
	cfg.Metrics.Enabled = true
	cfg.Auth.BcryptCost = bcrypt.MinCost
	return cfg
}

func TestOpen_SQLite(t *testing.T) {
	ctx := context.Background()
	a, err := Open(ctx, testConfig(t), zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.Ping(ctx))
	require.Equal(t, "sqlite", a.DB.Driver)
	require.IsType(t, &lock.MemoryLocker{}, a.Locker)
	require.NotNil(t, a.Metrics)

	john := domain.NewUser("john", "john@x.com", "password123")
	require.True(t, a.Users().Register(ctx, john))

	ledger := a.Reviews(ctx, domain.UserScope(john.ID))
	require.True(t, ledger.Add(ctx, domain.NewReview(0, "Inception", "Christopher Nolan", "Sci-Fi", 4.5, "", "12/15/2023")))
	require.Equal(t, 1, a.Reviews(ctx, domain.GlobalScope()).TotalReviews(ctx))
}

func TestOpenDatabase_UnsupportedDriver(t *testing.T) {
	_, err := OpenDatabase(context.Background(), config.DatabaseConfig{Driver: "oracle"}, zerolog.Nop())
	require.ErrorIs(t, err, repository.ErrUnsupportedDriver)
}

func TestOpenStorage_Unsupported(t *testing.T) {
	_, err := OpenStorage(context.Background(), config.StorageConfig{Backend: "tape"}, zerolog.Nop())
	require.Error(t, err)
}

func TestBrowse_DoesNotSeed(t *testing.T) {
	ctx := context.Background()
	a, err := Open(ctx, testConfig(t), zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	require.Empty(t, a.Browse(ctx, domain.UserScope(77)).All(ctx))
	require.Empty(t, a.Users().ListAll(ctx))

	a.Reviews(ctx, domain.UserScope(77))
	require.Len(t, a.Users().ListAll(ctx), 1)
}
