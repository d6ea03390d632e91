// Package repository defines data access interfaces for the cinelog journal.
// These interfaces abstract database operations, allowing for different implementations
// (SQLite, PostgreSQL, mocks for testing) while keeping the service layer clean.
//
// Every method is one unit of work: it acquires a pooled connection, runs its
// statements and releases the connection before returning.
package repository

import (
	"context"
	"time"

	"github.com/prn-tf/cinelog/internal/domain"
)

// =============================================================================
// User Repository
// =============================================================================

// UserRepository defines the interface for user data access.
// Username and email lookups ignore case.
type UserRepository interface {
	// Create inserts a new user and assigns its ID.
	// Returns domain.ErrUserAlreadyExists on a username or email collision.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id int64) (*domain.User, error)

	// GetByUsername retrieves a user by username.
	GetByUsername(ctx context.Context, username string) (*domain.User, error)

	// GetByEmail retrieves a user by email.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// Update persists username, email, password and active flag.
	Update(ctx context.Context, user *domain.User) error

	// UpdateLastLogin sets last_login for the user.
	UpdateLastLogin(ctx context.Context, id int64, at time.Time) error

	// UpdatePassword replaces the stored digest.
	UpdatePassword(ctx context.Context, id int64, digest string) error

	// SetActive sets only the active flag of the user.
	SetActive(ctx context.Context, id int64, active bool) error

	// List returns all users ordered by ID.
	List(ctx context.Context) ([]*domain.User, error)

	// ExistsByUsername checks if a user with the given username exists.
	ExistsByUsername(ctx context.Context, username string) (bool, error)

	// ExistsByEmail checks if a user with the given email exists.
	ExistsByEmail(ctx context.Context, email string) (bool, error)

	// EnsureExists inserts user with its preset ID unless a row with that ID exists.
	// Returns true if a row was inserted.
	EnsureExists(ctx context.Context, user *domain.User) (bool, error)

	// DeleteAll removes every user (and, by cascade, every review).
	DeleteAll(ctx context.Context) (int64, error)
}

// =============================================================================
// Review Repository
// =============================================================================

// ReviewRepository defines the interface for review data access.
// Every read and write takes a domain.Scope; a user scope restricts the
// statement to rows owned by that user.
type ReviewRepository interface {
	// Create inserts review and assigns its ID and timestamps.
	// Returns domain.ErrReviewAlreadyExists on a (user, title, director) collision
	// and domain.ErrOwnerNotFound when the owner row is missing.
	Create(ctx context.Context, review *domain.Review) error

	// GetByID retrieves one review visible in scope.
	GetByID(ctx context.Context, scope domain.Scope, id int64) (*domain.Review, error)

	// Update overwrites every column of the row addressed by key with review.
	// Returns the number of affected rows.
	Update(ctx context.Context, key domain.ReviewKey, review *domain.Review) (int64, error)

	// Delete removes the row addressed by key.
	Delete(ctx context.Context, key domain.ReviewKey) (int64, error)

	// DeleteMany removes every row addressed by keys in one statement.
	DeleteMany(ctx context.Context, keys []domain.ReviewKey) (int64, error)

	// List returns reviews visible in scope matching filter, newest created first.
	List(ctx context.Context, scope domain.Scope, filter ReviewFilter) ([]*domain.Review, error)

	// SetFavorite updates the favorite flag of the row addressed by key.
	SetFavorite(ctx context.Context, key domain.ReviewKey, favorite bool) (int64, error)

	// SetTicketImage updates the ticket image path of the row addressed by key.
	SetTicketImage(ctx context.Context, key domain.ReviewKey, path string) (int64, error)

	// Stats aggregates the reviews visible in scope.
	Stats(ctx context.Context, scope domain.Scope) (*ReviewStats, error)

	// DeleteAll removes every review regardless of owner.
	DeleteAll(ctx context.Context) (int64, error)
}

// ReviewFilter narrows ReviewRepository.List.
type ReviewFilter struct {
	// Query matches title, director or genre as a case-insensitive substring.
	// Blank matches everything.
	Query string

	// FavoritesOnly restricts the result to favorites.
	FavoritesOnly bool
}

// ReviewStats contains aggregate values over a scope.
type ReviewStats struct {
	// Total is the number of reviews.
	Total int64 `json:"total_reviews" yaml:"total_reviews"`

	// AverageRating is the mean rating, 0 when there are no reviews.
	AverageRating float64 `json:"average_rating" yaml:"average_rating"`

	// TheaterVisits counts reviews with a ticket image.
	TheaterVisits int64 `json:"theater_visits" yaml:"theater_visits"`

	// Favorites counts favorite reviews.
	Favorites int64 `json:"favorites" yaml:"favorites"`
}
