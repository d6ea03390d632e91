package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/cinelog/internal/domain"
	"github.com/prn-tf/cinelog/internal/lock"
	"github.com/prn-tf/cinelog/internal/metrics"
	"github.com/prn-tf/cinelog/internal/pkg/crypto"
	"github.com/prn-tf/cinelog/internal/repository"
)

// LoginBy selects the identifier a login is looked up by.
type LoginBy int

const (
	// ByUsername looks the user up by username.
	ByUsername LoginBy = iota
	// ByEmail looks the user up by email.
	ByEmail
)

func (b LoginBy) String() string {
	if b == ByEmail {
		return "email"
	}
	return "username"
}

// UserService handles registration, authentication and profile changes.
type UserService struct {
	userRepo repository.UserRepository
	locker   lock.Locker
	policy   lock.RetryPolicy
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// NewUserService creates a new UserService. A nil locker disables
// registration locking; a nil metrics disables counting.
func NewUserService(userRepo repository.UserRepository, locker lock.Locker, policy lock.RetryPolicy, m *metrics.Metrics, logger zerolog.Logger) *UserService {
	if locker == nil {
		locker = lock.NewNoOpLocker()
	}
	return &UserService{
		userRepo: userRepo,
		locker:   locker,
		policy:   policy,
		metrics:  m,
		logger:   logger.With().Str("service", "user").Logger(),
	}
}

// Register stores a new user. On success the store generated ID and the
// password digest are written back onto user.
func (s *UserService) Register(ctx context.Context, user *domain.User) bool {
	if err := s.register(ctx, user); err != nil {
		event := s.logger.Debug()
		if !errors.Is(err, ErrInvalidInput) && !errors.Is(err, domain.ErrUserAlreadyExists) {
			event = s.logger.Warn()
		}
		event.Err(err).Msg("registration rejected")
		return false
	}
	return true
}

func (s *UserService) register(ctx context.Context, user *domain.User) error {
	if user == nil {
		return fmt.Errorf("%w: nil user", ErrInvalidInput)
	}
	if err := user.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	release, ok, err := lock.AcquireAll(ctx, s.locker, s.policy,
		lock.Keys.Username(user.Username),
		lock.Keys.Email(user.Email),
	)
	if err != nil {
		s.storeError("register.lock", err)
		return err
	}
	if !ok {
		return ErrLockBusy
	}
	defer release()

	exists, err := s.userRepo.ExistsByUsername(ctx, user.Username)
	if err != nil {
		s.storeError("register.exists_username", err)
		return err
	}
	if exists {
		return fmt.Errorf("%w: username '%s'", domain.ErrUserAlreadyExists, user.Username)
	}

	exists, err = s.userRepo.ExistsByEmail(ctx, user.Email)
	if err != nil {
		s.storeError("register.exists_email", err)
		return err
	}
	if exists {
		return fmt.Errorf("%w: email '%s'", domain.ErrUserAlreadyExists, user.Email)
	}

	row := *user
	if !crypto.LooksLikeDigest(row.Password) {
		if err := row.SetPlainTextPassword(row.Password); err != nil {
			s.logger.Error().Err(err).Msg("failed to hash password")
			return err
		}
	}

	if err := s.userRepo.Create(ctx, &row); err != nil {
		if !errors.Is(err, domain.ErrUserAlreadyExists) {
			s.storeError("register.create", err)
		}
		return err
	}

	user.ID = row.ID
	user.Password = row.Password
	user.CreatedAt = row.CreatedAt

	s.logger.Info().
		Int64("user_id", user.ID).
		Str("username", user.Username).
		Msg("user registered")

	return nil
}

// Login authenticates an active user and stamps its last login time.
// Unknown users, inactive users and wrong passwords all yield nil.
func (s *UserService) Login(ctx context.Context, identifier, password string, by LoginBy) *domain.User {
	if strings.TrimSpace(identifier) == "" || strings.TrimSpace(password) == "" {
		s.metrics.ObserveLogin(metrics.LoginRejected)
		return nil
	}

	user, err := s.lookup(ctx, identifier, by)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			// Log but don't expose whether the user exists
			s.logger.Debug().Str(by.String(), identifier).Msg("user not found during authentication")
		} else {
			s.storeError("login.lookup", err)
		}
		s.metrics.ObserveLogin(metrics.LoginFailure)
		return nil
	}

	if !user.CanAuthenticate() {
		s.logger.Debug().Err(domain.ErrUserInactive).Str(by.String(), identifier).Msg("inactive user attempted authentication")
		s.metrics.ObserveLogin(metrics.LoginFailure)
		return nil
	}

	if !user.VerifyPassword(password) {
		s.logger.Debug().Err(domain.ErrInvalidCredentials).Str(by.String(), identifier).Msg("invalid password during authentication")
		s.metrics.ObserveLogin(metrics.LoginFailure)
		return nil
	}

	now := time.Now().UTC()
	if err := s.userRepo.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.storeError("login.last_login", err)
		s.metrics.ObserveLogin(metrics.LoginFailure)
		return nil
	}
	user.LastLogin = &now

	s.metrics.ObserveLogin(metrics.LoginSuccess)
	s.logger.Info().
		Int64("user_id", user.ID).
		Str("username", user.Username).
		Msg("user authenticated")

	return user
}

func (s *UserService) lookup(ctx context.Context, identifier string, by LoginBy) (*domain.User, error) {
	if by == ByEmail {
		return s.userRepo.GetByEmail(ctx, identifier)
	}
	return s.userRepo.GetByUsername(ctx, identifier)
}

// UsernameExists reports whether username is taken, ignoring case.
func (s *UserService) UsernameExists(ctx context.Context, username string) bool {
	if strings.TrimSpace(username) == "" {
		return false
	}
	exists, err := s.userRepo.ExistsByUsername(ctx, username)
	if err != nil {
		s.storeError("exists_username", err)
		return false
	}
	return exists
}

// EmailExists reports whether email is taken, ignoring case.
func (s *UserService) EmailExists(ctx context.Context, email string) bool {
	if strings.TrimSpace(email) == "" {
		return false
	}
	exists, err := s.userRepo.ExistsByEmail(ctx, email)
	if err != nil {
		s.storeError("exists_email", err)
		return false
	}
	return exists
}

// GetByUsername returns the user or nil.
func (s *UserService) GetByUsername(ctx context.Context, username string) *domain.User {
	return s.get(ctx, username, ByUsername)
}

// GetByEmail returns the user or nil.
func (s *UserService) GetByEmail(ctx context.Context, email string) *domain.User {
	return s.get(ctx, email, ByEmail)
}

func (s *UserService) get(ctx context.Context, identifier string, by LoginBy) *domain.User {
	if strings.TrimSpace(identifier) == "" {
		return nil
	}
	user, err := s.lookup(ctx, identifier, by)
	if err != nil {
		if !errors.Is(err, domain.ErrUserNotFound) {
			s.storeError("get_by_"+by.String(), err)
		}
		return nil
	}
	return user
}

// UpdatePassword re-authenticates with oldPassword and stores a digest of newPassword.
func (s *UserService) UpdatePassword(ctx context.Context, username, oldPassword, newPassword string) bool {
	if strings.TrimSpace(newPassword) == "" {
		return false
	}

	user := s.Login(ctx, username, oldPassword, ByUsername)
	if user == nil {
		return false
	}

	digest, err := crypto.HashPassword(newPassword)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to hash password")
		return false
	}

	if err := s.userRepo.UpdatePassword(ctx, user.ID, digest); err != nil {
		s.storeError("update_password", err)
		return false
	}

	s.logger.Info().Int64("user_id", user.ID).Msg("password updated")
	return true
}

// Deactivate disables logins for username.
func (s *UserService) Deactivate(ctx context.Context, username string) bool {
	user := s.GetByUsername(ctx, username)
	if user == nil {
		return false
	}

	if err := s.userRepo.SetActive(ctx, user.ID, false); err != nil {
		s.storeError("deactivate", err)
		return false
	}
	user.Deactivate()

	s.logger.Info().Int64("user_id", user.ID).Str("username", user.Username).Msg("user deactivated")
	return true
}

// UpdateProfile persists user's username and email. Other fields of the
// stored row are left alone. A username or email held by a different user
// rejects the change.
func (s *UserService) UpdateProfile(ctx context.Context, user *domain.User) bool {
	if err := s.updateProfile(ctx, user); err != nil {
		event := s.logger.Debug()
		if !errors.Is(err, ErrInvalidInput) && !errors.Is(err, domain.ErrUserAlreadyExists) {
			event = s.logger.Warn()
		}
		event.Err(err).Msg("profile update rejected")
		return false
	}
	return true
}

func (s *UserService) updateProfile(ctx context.Context, user *domain.User) error {
	if user == nil || user.ID <= 0 {
		return fmt.Errorf("%w: user without ID", ErrInvalidInput)
	}
	if !domain.ValidUsername(user.Username) {
		return fmt.Errorf("%w: %v", ErrInvalidInput, domain.ErrInvalidUsername)
	}
	if !domain.ValidEmail(user.Email) {
		return fmt.Errorf("%w: %v", ErrInvalidInput, domain.ErrInvalidEmail)
	}

	release, ok, err := lock.AcquireAll(ctx, s.locker, s.policy,
		lock.Keys.Username(user.Username),
		lock.Keys.Email(user.Email),
	)
	if err != nil {
		s.storeError("update_profile.lock", err)
		return err
	}
	if !ok {
		return ErrLockBusy
	}
	defer release()

	if err := s.checkOwner(ctx, user.ID, user.Username, ByUsername); err != nil {
		return err
	}
	if err := s.checkOwner(ctx, user.ID, user.Email, ByEmail); err != nil {
		return err
	}

	stored, err := s.userRepo.GetByID(ctx, user.ID)
	if err != nil {
		if !errors.Is(err, domain.ErrUserNotFound) {
			s.storeError("update_profile.get", err)
		}
		return err
	}

	stored.Username = user.Username
	stored.Email = user.Email
	if err := s.userRepo.Update(ctx, stored); err != nil {
		if !errors.Is(err, domain.ErrUserAlreadyExists) {
			s.storeError("update_profile.update", err)
		}
		return err
	}

	s.logger.Info().Int64("user_id", user.ID).Str("username", user.Username).Msg("profile updated")
	return nil
}

// checkOwner fails when identifier belongs to a user other than id.
func (s *UserService) checkOwner(ctx context.Context, id int64, identifier string, by LoginBy) error {
	other, err := s.lookup(ctx, identifier, by)
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		return nil
	case err != nil:
		s.storeError("update_profile.lookup", err)
		return err
	case other.ID != id:
		return fmt.Errorf("%w: %s '%s'", domain.ErrUserAlreadyExists, by, identifier)
	}
	return nil
}

// ListAll returns every user ordered by ID.
func (s *UserService) ListAll(ctx context.Context) []*domain.User {
	users, err := s.userRepo.List(ctx)
	if err != nil {
		s.storeError("list", err)
		return []*domain.User{}
	}
	if users == nil {
		users = []*domain.User{}
	}
	return users
}

// Clear deletes every user and, through the cascade, every review.
func (s *UserService) Clear(ctx context.Context) bool {
	n, err := s.userRepo.DeleteAll(ctx)
	if err != nil {
		s.storeError("clear", err)
		return false
	}
	s.logger.Warn().Int64("deleted", n).Msg("all users deleted")
	return true
}

func (s *UserService) storeError(op string, err error) {
	s.logger.Error().Err(err).Str("op", op).Msg("user store failure")
	s.metrics.ObserveStoreError("user", op)
}
