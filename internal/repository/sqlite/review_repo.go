package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/prn-tf/cinelog/internal/domain"
	"github.com/prn-tf/cinelog/internal/repository"
)

const reviewColumns = `id, user_id, title, director, genre, rating, review, date_watched,
	ticket_image_path, is_favorite, created_at, updated_at`

// dateLayout stores date_watched as an ISO calendar date.
const dateLayout = "2006-01-02"

// reviewRepository implements repository.ReviewRepository for SQLite.
type reviewRepository struct {
	db *DB
}

// NewReviewRepository creates a new SQLite review repository.
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		review.UserID,
		review.Title,
		review.Director,
		review.Genre,
		review.Rating(),
		review.Body,
		formatDate(review.DateWatched),
		nullString(review.TicketImagePath),
		boolToInt(review.IsFavorite),
		formatTime(review.CreatedAt),
		formatTime(review.UpdatedAt),
	)

	if err != nil {
		return reviewWriteError("create", review, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	review.ID = id

	return nil
}

// GetByID retrieves a review visible in scope.
func (r *reviewRepository) GetByID(ctx context.Context, scope domain.Scope, id int64) (*domain.Review, error) {
	where, args := scopeClause(scope, []string{"id = ?"}, []interface{}{id})
	query := `SELECT ` + reviewColumns + ` FROM movie_reviews` + where

	review, err := scanReview(r.db.QueryRowContext(ctx, query, args...))
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
		SET user_id = ?, title = ?, director = ?, genre = ?, rating = ?, review = ?, date_watched = ?,
			ticket_image_path = ?, is_favorite = ?, updated_at = ?
		WHERE id = ? AND user_id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		review.UserID,
		review.Title,
		review.Director,
		review.Genre,
		review.Rating(),
		review.Body,
		formatDate(review.DateWatched),
		nullString(review.TicketImagePath),
		boolToInt(review.IsFavorite),
		formatTime(review.UpdatedAt),
		key.ID,
		key.UserID,
	)
	if err != nil {
		return 0, reviewWriteError("update", review, err)
	}

	n, _ := result.RowsAffected()
	return n, nil
}

// Delete removes the row addressed by key.
func (r *reviewRepository) Delete(ctx context.Context, key domain.ReviewKey) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM movie_reviews WHERE id = ? AND user_id = ?`, key.ID, key.UserID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete review: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// DeleteMany removes every addressed row in one statement. The keys travel
// as a single JSON parameter so the statement stays within SQLite's bound
// variable limit for any number of keys.
func (r *reviewRepository) DeleteMany(ctx context.Context, keys []domain.ReviewKey) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	pairs := make([][2]int64, len(keys))
	for i, k := range keys {
		pairs[i] = [2]int64{k.ID, k.UserID}
	}
	payload, err := json.Marshal(pairs)
	if err != nil {
		return 0, fmt.Errorf("failed to encode review keys: %w", err)
	}

	query := `
		DELETE FROM movie_reviews
		WHERE (id, user_id) IN (
			SELECT json_extract(value, '$[0]'), json_extract(value, '$[1]') FROM json_each(?)
		)
	`
	result, err := r.db.ExecContext(ctx, query, string(payload))
	if err != nil {
		return 0, fmt.Errorf("failed to delete reviews: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// List returns reviews visible in scope matching filter, newest created first.
func (r *reviewRepository) List(ctx context.Context, scope domain.Scope, filter repository.ReviewFilter) ([]*domain.Review, error) {
	var conds []string
	var args []interface{}

	if q := strings.TrimSpace(filter.Query); q != "" {
		pattern := repository.ContainsPattern(q)
		conds = append(conds, `(fold(title) LIKE fold(?) ESCAPE '\' OR fold(director) LIKE fold(?) ESCAPE '\' OR fold(genre) LIKE fold(?) ESCAPE '\')`)
		args = append(args, pattern, pattern, pattern)
	}
	if filter.FavoritesOnly {
		conds = append(conds, "is_favorite = 1")
	}

	where, args := scopeClause(scope, conds, args)
	query := `SELECT ` + reviewColumns + ` FROM movie_reviews` + where + ` ORDER BY created_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
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
	result, err := r.db.ExecContext(ctx,
		`UPDATE movie_reviews SET is_favorite = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		boolToInt(favorite), formatTime(time.Now()), key.ID, key.UserID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to set favorite: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// SetTicketImage updates the ticket image path.
func (r *reviewRepository) SetTicketImage(ctx context.Context, key domain.ReviewKey, path string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE movie_reviews SET ticket_image_path = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		nullString(path), formatTime(time.Now()), key.ID, key.UserID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to set ticket image: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// Stats aggregates the reviews visible in scope.
func (r *reviewRepository) Stats(ctx context.Context, scope domain.Scope) (*repository.ReviewStats, error) {
	where, args := scopeClause(scope, nil, nil)
	query := `
		SELECT
			COUNT(*),
			COALESCE(AVG(rating), 0),
			COALESCE(SUM(CASE WHEN TRIM(COALESCE(ticket_image_path, '')) <> '' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(is_favorite), 0)
		FROM movie_reviews` + where

	stats := &repository.ReviewStats{}
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
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
	result, err := r.db.ExecContext(ctx, `DELETE FROM movie_reviews`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete reviews: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// scopeClause appends the owner filter of scope to conds and renders a WHERE clause.
func scopeClause(scope domain.Scope, conds []string, args []interface{}) (string, []interface{}) {
	if userID, ok := scope.UserID(); ok {
		conds = append(conds, "user_id = ?")
		args = append(args, userID)
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func reviewWriteError(op string, review *domain.Review, err error) error {
	switch classify(err) {
	case constraintUnique:
		return domain.NewDomainError(domain.ErrReviewAlreadyExists, review.Title+" by "+review.Director, fmt.Sprintf("user %d", review.UserID))
	case constraintForeignKey:
		return domain.NewDomainError(domain.ErrOwnerNotFound, "", fmt.Sprintf("user %d", review.UserID))
	case constraintCheck:
		return fmt.Errorf("failed to %s review: rating %.1f rejected by store: %w", op, review.Rating(), err)
	}
	return fmt.Errorf("failed to %s review: %w", op, err)
}

func scanReview(s scanner) (*domain.Review, error) {
	review := &domain.Review{}
	var rating float64
	var body, ticket sql.NullString
	var dateWatched, createdAt, updatedAt string
	var isFavorite int

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
		&isFavorite,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	review.SetRating(rating)
	review.Body = body.String
	review.DateWatched = parseDate(dateWatched)
	review.TicketImagePath = ticket.String
	review.IsFavorite = isFavorite != 0
	review.CreatedAt = parseTime(createdAt)
	review.UpdatedAt = parseTime(updatedAt)

	return review, nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

func parseDate(s string) time.Time {
	t, err := time.ParseInLocation(dateLayout, s, time.Local)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullString(s string) interface{} {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

// Ensure reviewRepository implements repository.ReviewRepository.
var _ repository.ReviewRepository = (*reviewRepository)(nil)
