package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prn-tf/cinelog/internal/domain"
	"github.com/prn-tf/cinelog/internal/repository"
)

const reviewColumns = `id, user_id, title, director, genre, rating::float8, review, date_watched,
	ticket_image_path, is_favorite, created_at, updated_at`

// reviewRepository implements repository.ReviewRepository for PostgreSQL.
type reviewRepository struct {
	db *DB
}

// NewReviewRepository creates a new PostgreSQL review repository.
func NewReviewRepository(db *DB) repository.ReviewRepository {
	return &reviewRepository{db: db}
}

// Create inserts a review.
func (r *reviewRepository) Create(ctx context.Context, review *domain.Review) error {
	now := time.Now().UTC()
	review.CreatedAt = now
	review.UpdatedAt = now

	query := `
		INSERT INTO movie_reviews (user_id, title, director, genre, rating, review, date_watched,
			ticket_image_path, is_favorite, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`

	err := r.db.Pool.QueryRow(ctx, query,
		review.UserID,
		review.Title,
		review.Director,
		review.Genre,
		review.Rating(),
		review.Body,
		dateArg(review.DateWatched),
		nullString(review.TicketImagePath),
		review.IsFavorite,
		review.CreatedAt,
		review.UpdatedAt,
	).Scan(&review.ID)

	if err != nil {
		return reviewWriteError("create", review, err)
	}

	return nil
}

// GetByID retrieves a review visible in scope.
func (r *reviewRepository) GetByID(ctx context.Context, scope domain.Scope, id int64) (*domain.Review, error) {
	w := newWhere()
	w.add("id = ?", id)
	w.scope(scope)

	review, err := scanReview(r.db.Pool.QueryRow(ctx, `SELECT `+reviewColumns+` FROM movie_reviews`+w.String(), w.args...))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrReviewNotFound
		}
		return nil, fmt.Errorf("failed to get review: %w", err)
	}
	return review, nil
}

// Update overwrites the row addressed by key.
func (r *reviewRepository) Update(ctx context.Context, key domain.ReviewKey, review *domain.Review) (int64, error) {
	review.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE movie_reviews
		SET user_id = $3, title = $4, director = $5, genre = $6, rating = $7, review = $8, date_watched = $9,
			ticket_image_path = $10, is_favorite = $11, updated_at = $12
		WHERE id = $1 AND user_id = $2
	`

	result, err := r.db.Pool.Exec(ctx, query,
		key.ID,
		key.UserID,
		review.UserID,
		review.Title,
		review.Director,
		review.Genre,
		review.Rating(),
		review.Body,
		dateArg(review.DateWatched),
		nullString(review.TicketImagePath),
		review.IsFavorite,
		review.UpdatedAt,
	)
	if err != nil {
		return 0, reviewWriteError("update", review, err)
	}

	return result.RowsAffected(), nil
}

// Delete removes the row addressed by key.
func (r *reviewRepository) Delete(ctx context.Context, key domain.ReviewKey) (int64, error) {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM movie_reviews WHERE id = $1 AND user_id = $2`, key.ID, key.UserID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete review: %w", err)
	}
	return result.RowsAffected(), nil
}

// DeleteMany removes every addressed row in one statement.
func (r *reviewRepository) DeleteMany(ctx context.Context, keys []domain.ReviewKey) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	ids := make([]int64, len(keys))
	owners := make([]int64, len(keys))
	for i, k := range keys {
		ids[i] = k.ID
		owners[i] = k.UserID
	}

	query := `
		DELETE FROM movie_reviews m
		USING unnest($1::bigint[], $2::bigint[]) AS k(id, user_id)
		WHERE m.id = k.id AND m.user_id = k.user_id
	`
	result, err := r.db.Pool.Exec(ctx, query, ids, owners)
	if err != nil {
		return 0, fmt.Errorf("failed to delete reviews: %w", err)
	}
	return result.RowsAffected(), nil
}

// List returns reviews visible in scope matching filter, newest created first.
func (r *reviewRepository) List(ctx context.Context, scope domain.Scope, filter repository.ReviewFilter) ([]*domain.Review, error) {
	w := newWhere()
	if q := strings.TrimSpace(filter.Query); q != "" {
		pattern := repository.ContainsPattern(q)
		w.add(`(title ILIKE ? ESCAPE '\' OR director ILIKE ? ESCAPE '\' OR genre ILIKE ? ESCAPE '\')`, pattern, pattern, pattern)
	}
	if filter.FavoritesOnly {
		w.add("is_favorite")
	}
	w.scope(scope)

	query := `SELECT ` + reviewColumns + ` FROM movie_reviews` + w.String() + ` ORDER BY created_at DESC, id DESC`

	rows, err := r.db.Pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	defer rows.Close()

	reviews := []*domain.Review{}
	for rows.Next() {
		review, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, review)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reviews: %w", err)
	}

	return reviews, nil
}

// SetFavorite updates the favorite flag.
func (r *reviewRepository) SetFavorite(ctx context.Context, key domain.ReviewKey, favorite bool) (int64, error) {
	result, err := r.db.Pool.Exec(ctx,
		`UPDATE movie_reviews SET is_favorite = $3 WHERE id = $1 AND user_id = $2`,
		key.ID, key.UserID, favorite,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to set favorite: %w", err)
	}
	return result.RowsAffected(), nil
}

// SetTicketImage updates the ticket image path.
func (r *reviewRepository) SetTicketImage(ctx context.Context, key domain.ReviewKey, path string) (int64, error) {
	result, err := r.db.Pool.Exec(ctx,
		`UPDATE movie_reviews SET ticket_image_path = $3 WHERE id = $1 AND user_id = $2`,
		key.ID, key.UserID, nullString(path),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to set ticket image: %w", err)
	}
	return result.RowsAffected(), nil
}

// Stats aggregates the reviews visible in scope.
func (r *reviewRepository) Stats(ctx context.Context, scope domain.Scope) (*repository.ReviewStats, error) {
	w := newWhere()
	w.scope(scope)
	query := `
		SELECT
			COUNT(*),
			COALESCE(AVG(rating), 0)::float8,
			COUNT(*) FILTER (WHERE TRIM(COALESCE(ticket_image_path, '')) <> ''),
			COUNT(*) FILTER (WHERE is_favorite)
		FROM movie_reviews` + w.String()

	stats := &repository.ReviewStats{}
	err := r.db.Pool.QueryRow(ctx, query, w.args...).Scan(
		&stats.Total,
		&stats.AverageRating,
		&stats.TheaterVisits,
		&stats.Favorites,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate reviews: %w", err)
	}
	return stats, nil
}

// DeleteAll removes every review.
func (r *reviewRepository) DeleteAll(ctx context.Context) (int64, error) {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM movie_reviews`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete reviews: %w", err)
	}
	return result.RowsAffected(), nil
}

// where renders "?" placeholders of added conditions as numbered parameters.
type where struct {
	conds []string
	args  []any
}

func newWhere() *where {
	return &where{}
}

func (w *where) add(cond string, args ...any) {
	for _, a := range args {
		w.args = append(w.args, a)
		cond = strings.Replace(cond, "?", fmt.Sprintf("$%d", len(w.args)), 1)
	}
	w.conds = append(w.conds, cond)
}

func (w *where) scope(scope domain.Scope) {
	if userID, ok := scope.UserID(); ok {
		w.add("user_id = ?", userID)
	}
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func reviewWriteError(op string, review *domain.Review, err error) error {
	switch {
	case isUniqueViolation(err):
		return domain.NewDomainError(domain.ErrReviewAlreadyExists, review.Title+" by "+review.Director, fmt.Sprintf("user %d", review.UserID))
	case isForeignKeyViolation(err):
		return domain.NewDomainError(domain.ErrOwnerNotFound, "", fmt.Sprintf("user %d", review.UserID))
	case isCheckViolation(err):
		return fmt.Errorf("failed to %s review: rating %.1f rejected by store: %w", op, review.Rating(), err)
	}
	return fmt.Errorf("failed to %s review: %w", op, err)
}

func scanReview(s scanner) (*domain.Review, error) {
	review := &domain.Review{}
	var rating float64
	var body, ticket *string
	var dateWatched time.Time

	err := s.Scan(
		&review.ID,
		&review.UserID,
		&review.Title,
		&review.Director,
		&review.Genre,
		&rating,
		&body,
		&dateWatched,
		&ticket,
		&review.IsFavorite,
		&review.CreatedAt,
		&review.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	review.SetRating(rating)
	if body != nil {
		review.Body = *body
	}
	if ticket != nil {
		review.TicketImagePath = *ticket
	}
	// DATE values arrive as UTC midnight; keep the calendar day in local time.
	review.DateWatched = domain.DateOf(dateWatched)
	review.CreatedAt = review.CreatedAt.UTC()
	review.UpdatedAt = review.UpdatedAt.UTC()

	return review, nil
}

// dateArg keeps the calendar day of t regardless of its location.
func dateArg(t time.Time) time.Time {
	if t.IsZero() {
		t = domain.Today()
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func nullString(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

// Ensure reviewRepository implements repository.ReviewRepository.
var _ repository.ReviewRepository = (*reviewRepository)(nil)
