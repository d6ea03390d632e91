package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/cinelog/internal/domain"
	"github.com/prn-tf/cinelog/internal/lock"
	"github.com/prn-tf/cinelog/internal/metrics"
)

// =============================================================================
// Mock UserRepository
// =============================================================================

type mockUserRepository struct {
	mock.Mock
}

func (m *mockUserRepository) Create(ctx context.Context, user *domain.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *mockUserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) Update(ctx context.Context, user *domain.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *mockUserRepository) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

func (m *mockUserRepository) UpdatePassword(ctx context.Context, id int64, digest string) error {
	return m.Called(ctx, id, digest).Error(0)
}

func (m *mockUserRepository) SetActive(ctx context.Context, id int64, active bool) error {
	return m.Called(ctx, id, active).Error(0)
}

func (m *mockUserRepository) List(ctx context.Context) ([]*domain.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.User), args.Error(1)
}

func (m *mockUserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	args := m.Called(ctx, username)
	return args.Bool(0), args.Error(1)
}

func (m *mockUserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

func (m *mockUserRepository) EnsureExists(ctx context.Context, user *domain.User) (bool, error) {
	args := m.Called(ctx, user)
	return args.Bool(0), args.Error(1)
}

func (m *mockUserRepository) DeleteAll(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// =============================================================================
// Tests
// =============================================================================

func TestUserService_RegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	users := newUsers(openStore(t))

	john := domain.NewUser("john", "john@x.com", "password123")
	require.True(t, users.Register(ctx, john))
	require.Positive(t, john.ID)
	require.NotEqual(t, "password123", john.Password, "digest written back")
	require.True(t, john.HasDigest())

	got := users.Login(ctx, "john", "password123", ByUsername)
	require.NotNil(t, got)
	require.Equal(t, john.ID, got.ID)
	require.NotNil(t, got.LastLogin)

	stored := users.GetByUsername(ctx, "john")
	require.NotNil(t, stored)
	require.NotNil(t, stored.LastLogin)
	require.WithinDuration(t, *got.LastLogin, *stored.LastLogin, time.Millisecond)

	require.NotNil(t, users.Login(ctx, "JOHN@X.COM", "password123", ByEmail))
}

func TestUserService_RegisterRejects(t *testing.T) {
	ctx := context.Background()
	users := newUsers(openStore(t))
	register(t, users, "john", "john@x.com")

	tests := []struct {
		name string
		user *domain.User
	}{
		{"nil user", nil},
		{"short username", domain.NewUser("jo", "jo@x.com", "password123")},
		{"bad email", domain.NewUser("jane", "jane.x.com", "password123")},
		{"short password", domain.NewUser("jane", "jane@x.com", "12345")},
		{"taken username", domain.NewUser("john", "other@x.com", "password123")},
		{"taken username other case", domain.NewUser("John", "other@x.com", "password123")},
		{"taken email", domain.NewUser("jane", "john@x.com", "password123")},
		{"taken email other case", domain.NewUser("jane", "JOHN@x.com", "password123")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.False(t, users.Register(ctx, tt.user))
			if tt.user != nil {
				require.Zero(t, tt.user.ID)
			}
		})
	}

	require.Len(t, users.ListAll(ctx), 1)
}

func TestUserService_ConcurrentRegistration(t *testing.T) {
	ctx := context.Background()
	users := newUsers(openStore(t))

	var wg sync.WaitGroup
	var won atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u := domain.NewUser("john", fmt.Sprintf("john%d@x.com", i), "password123")
			if users.Register(ctx, u) {
				won.Add(1)
			}
		}(i)
	}
	wg.Wait()

	require.EqualValues(t, 1, won.Load())
	require.Len(t, users.ListAll(ctx), 1)
}

func TestUserService_LoginNegative(t *testing.T) {
	ctx := context.Background()
	m := metrics.New()
	db := openStore(t)
	users := NewUserService(db.Repos.User, nil, lock.RetryPolicy{}, m, zerolog.Nop())
	register(t, users, "john", "john@x.com")

	require.Nil(t, users.Login(ctx, "john", "wrong-password", ByUsername))
	require.Nil(t, users.Login(ctx, "nobody", "password123", ByUsername))
	require.Nil(t, users.Login(ctx, "", "password123", ByUsername))
	require.Nil(t, users.Login(ctx, "john", "", ByUsername))
	require.Nil(t, users.Login(ctx, "", "", ByEmail))
	require.Nil(t, users.Login(ctx, "   ", "  ", ByUsername))
	require.Nil(t, users.Login(ctx, "john", "password123", ByEmail), "username is not an email")

	stored := users.GetByUsername(ctx, "john")
	require.Nil(t, stored.LastLogin, "failed logins leave last_login alone")

	require.True(t, users.Deactivate(ctx, "john"))
	require.Nil(t, users.Login(ctx, "john", "password123", ByUsername), "inactive users cannot log in")

	count, err := testutil.GatherAndCount(m.Registry(), "cinelog_login_attempts_total")
	require.NoError(t, err)
	require.Equal(t, 2, count, "failure and rejected series")
}

func TestUserService_Exists(t *testing.T) {
	ctx := context.Background()
	users := newUsers(openStore(t))
	register(t, users, "john", "john@x.com")

	require.True(t, users.UsernameExists(ctx, "john"))
	require.True(t, users.UsernameExists(ctx, "JOHN"))
	require.False(t, users.UsernameExists(ctx, "jane"))
	require.False(t, users.UsernameExists(ctx, ""))

	require.True(t, users.EmailExists(ctx, "John@X.com"))
	require.False(t, users.EmailExists(ctx, "jane@x.com"))
	require.False(t, users.EmailExists(ctx, "  "))

	require.NotNil(t, users.GetByEmail(ctx, "john@x.com"))
	require.Nil(t, users.GetByEmail(ctx, "jane@x.com"))
	require.Nil(t, users.GetByUsername(ctx, ""))
}

func TestUserService_UpdatePassword(t *testing.T) {
	ctx := context.Background()
	users := newUsers(openStore(t))
	register(t, users, "john", "john@x.com")

	require.False(t, users.UpdatePassword(ctx, "john", "wrong", "newpassword"))
	require.False(t, users.UpdatePassword(ctx, "john", "password123", "   "))
	require.False(t, users.UpdatePassword(ctx, "nobody", "password123", "newpassword"))

	require.True(t, users.UpdatePassword(ctx, "john", "password123", "newpassword"))
	require.Nil(t, users.Login(ctx, "john", "password123", ByUsername))
	require.NotNil(t, users.Login(ctx, "john", "newpassword", ByUsername))
}

func TestUserService_Deactivate(t *testing.T) {
	ctx := context.Background()
	users := newUsers(openStore(t))
	register(t, users, "john", "john@x.com")

	require.False(t, users.Deactivate(ctx, ""))
	require.False(t, users.Deactivate(ctx, "nobody"))
	require.True(t, users.Deactivate(ctx, "john"))
	require.False(t, users.GetByUsername(ctx, "john").IsActive)
}

func TestUserService_DeactivateKeepsPassword(t *testing.T) {
	ctx := context.Background()

	stale := domain.NewUser("john", "john@x.com", "$2a$04$stale")
	stale.ID = 7

	repo := &mockUserRepository{}
	repo.On("GetByUsername", mock.Anything, "john").Return(stale, nil)
	repo.On("SetActive", mock.Anything, int64(7), false).Return(nil)

	users := NewUserService(repo, lock.NewMemoryLocker(), lock.DefaultRetryPolicy, nil, zerolog.Nop())
	require.True(t, users.Deactivate(ctx, "john"))

	repo.AssertExpectations(t)
	repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestUserService_UpdateProfile(t *testing.T) {
	ctx := context.Background()
	users := newUsers(openStore(t))
	john := register(t, users, "john", "john@x.com")
	register(t, users, "jane", "jane@x.com")

	require.False(t, users.UpdateProfile(ctx, nil))
	require.False(t, users.UpdateProfile(ctx, &domain.User{Username: "ghost", Email: "ghost@x.com"}))
	require.False(t, users.UpdateProfile(ctx, &domain.User{ID: 999, Username: "ghost", Email: "ghost@x.com"}))

	// self collision is allowed
	same := *john
	require.True(t, users.UpdateProfile(ctx, &same))

	taken := *john
	taken.Username = "JANE"
	require.False(t, users.UpdateProfile(ctx, &taken))

	taken = *john
	taken.Email = "jane@x.com"
	require.False(t, users.UpdateProfile(ctx, &taken))

	changed := *john
	changed.Username = "johnny"
	changed.Email = "johnny@x.com"
	changed.Password = "ignored"
	changed.IsActive = false
	require.True(t, users.UpdateProfile(ctx, &changed))

	stored := users.GetByUsername(ctx, "johnny")
	require.NotNil(t, stored)
	require.Equal(t, "johnny@x.com", stored.Email)
	require.True(t, stored.IsActive, "only username and email change")
	require.NotNil(t, users.Login(ctx, "johnny", "password123", ByUsername))
}

func TestUserService_ListAllAndClear(t *testing.T) {
	ctx := context.Background()
	users := newUsers(openStore(t))
	require.Empty(t, users.ListAll(ctx))
	require.NotNil(t, users.ListAll(ctx))

	register(t, users, "john", "john@x.com")
	register(t, users, "jane", "jane@x.com")
	all := users.ListAll(ctx)
	require.Len(t, all, 2)
	require.Equal(t, "john", all[0].Username)

	require.True(t, users.Clear(ctx))
	require.Empty(t, users.ListAll(ctx))
}

func TestUserService_StoreFailuresAreBenign(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection refused")

	repo := &mockUserRepository{}
	repo.On("ExistsByUsername", mock.Anything, mock.Anything).Return(false, boom)
	repo.On("ExistsByEmail", mock.Anything, mock.Anything).Return(false, boom)
	repo.On("GetByUsername", mock.Anything, mock.Anything).Return(nil, boom)
	repo.On("List", mock.Anything).Return(nil, boom)
	repo.On("DeleteAll", mock.Anything).Return(int64(0), boom)

	m := metrics.New()
	users := NewUserService(repo, lock.NewMemoryLocker(), lock.DefaultRetryPolicy, m, zerolog.Nop())

	require.False(t, users.Register(ctx, domain.NewUser("john", "john@x.com", "password123")))
	require.False(t, users.UsernameExists(ctx, "john"))
	require.False(t, users.EmailExists(ctx, "john@x.com"))
	require.Nil(t, users.GetByUsername(ctx, "john"))
	require.Nil(t, users.Login(ctx, "john", "password123", ByUsername))
	require.False(t, users.Deactivate(ctx, "john"))
	require.NotNil(t, users.ListAll(ctx))
	require.Empty(t, users.ListAll(ctx))
	require.False(t, users.Clear(ctx))

	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)

	count, err := testutil.GatherAndCount(m.Registry(), "cinelog_store_errors_total")
	require.NoError(t, err)
	require.GreaterOrEqual(t, count, 5)
}

func TestUserService_RegisterLockBusy(t *testing.T) {
	ctx := context.Background()
	locker := lock.NewMemoryLocker()
	users := NewUserService(openStore(t).Repos.User, locker,
		lock.RetryPolicy{TTL: time.Minute, MaxRetries: 1, RetryDelay: time.Millisecond}, nil, zerolog.Nop())

	ok, err := locker.Acquire(ctx, lock.Keys.Username("John"), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.False(t, users.Register(ctx, domain.NewUser("john", "john@x.com", "password123")))

	_, err = locker.Release(ctx, lock.Keys.Username("John"))
	require.NoError(t, err)
	require.True(t, users.Register(ctx, domain.NewUser("john", "john@x.com", "password123")))
}
