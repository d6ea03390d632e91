package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prn-tf/cinelog/internal/domain"
	"github.com/prn-tf/cinelog/internal/events"
	"github.com/prn-tf/cinelog/internal/metrics"
	"github.com/prn-tf/cinelog/internal/pkg/crypto"
	"github.com/prn-tf/cinelog/internal/repository"
	"github.com/prn-tf/cinelog/internal/sortorder"
	"github.com/prn-tf/cinelog/internal/storage"
)

// ReviewServiceConfig configures a ReviewService.
type ReviewServiceConfig struct {
	// Scope selects the reviews the ledger reads and writes.
	Scope domain.Scope

	// Tickets stores ticket images. Nil disables AttachTicket.
	Tickets storage.Backend

	// Metrics counts store errors and ledger events. Nil disables counting.
	Metrics *metrics.Metrics

	// SeedMissingOwner inserts a placeholder user row when the scoped
	// owner does not exist yet.
	SeedMissingOwner bool
}

// ReviewService is the review ledger of one scope.
// Every write forces the scoped owner onto the review; every read filters by it.
type ReviewService struct {
	reviewRepo repository.ReviewRepository
	userRepo   repository.UserRepository
	scope      domain.Scope
	tickets    storage.Backend
	metrics    *metrics.Metrics
	bus        *events.Bus
	logger     zerolog.Logger
}

// NewReviewService creates a ledger over repos. The store schema is expected
// to be migrated already, which happens when the store is opened.
func NewReviewService(ctx context.Context, repos *repository.Repositories, cfg ReviewServiceConfig, logger zerolog.Logger) *ReviewService {
	logger = logger.With().Str("service", "review").Str("scope", cfg.Scope.String()).Logger()

	s := &ReviewService{
		reviewRepo: repos.Review,
		userRepo:   repos.User,
		scope:      cfg.Scope,
		tickets:    cfg.Tickets,
		metrics:    cfg.Metrics,
		bus:        events.NewBus(logger),
		logger:     logger,
	}

	if cfg.Metrics != nil {
		s.bus.Add(cfg.Metrics.Listener())
	}

	if cfg.SeedMissingOwner {
		if err := s.seedOwner(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("failed to seed placeholder owner")
		}
	}

	return s
}

// seedOwner inserts a placeholder row for the scoped owner when it is missing.
// The password is a digest of a random value nobody knows.
func (s *ReviewService) seedOwner(ctx context.Context) error {
	userID, ok := s.scope.UserID()
	if !ok || s.userRepo == nil {
		return nil
	}

	_, err := s.userRepo.GetByID(ctx, userID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		s.storeError("seed_owner.get", err)
		return err
	}

	digest, err := crypto.HashPassword(uuid.NewString())
	if err != nil {
		return fmt.Errorf("failed to hash placeholder password: %w", err)
	}

	name := fmt.Sprintf("user%d", userID)
	for attempt := 0; attempt < 2; attempt++ {
		placeholder := &domain.User{
			ID:       userID,
			Username: name,
			Email:    name + "@placeholder.invalid",
			Password: digest,
			IsActive: true,
		}
		inserted, err := s.userRepo.EnsureExists(ctx, placeholder)
		if err == nil {
			if inserted {
				s.logger.Info().Int64("user_id", userID).Str("username", name).Msg("seeded placeholder owner")
			}
			return nil
		}
		if !errors.Is(err, domain.ErrUserAlreadyExists) {
			s.storeError("seed_owner.insert", err)
			return err
		}
		// Somebody registered the placeholder name; use a unique one.
		name = fmt.Sprintf("user%d-%s", userID, uuid.NewString()[:8])
	}
	return fmt.Errorf("%w: placeholder name for user %d", domain.ErrUserAlreadyExists, userID)
}

// Scope returns the scope of the ledger.
func (s *ReviewService) Scope() domain.Scope {
	return s.scope
}

// AddListener registers l. Nil and already registered listeners are ignored.
func (s *ReviewService) AddListener(l events.Listener) {
	s.bus.Add(l)
}

// RemoveListener unregisters l.
func (s *ReviewService) RemoveListener(l events.Listener) {
	s.bus.Remove(l)
}

// force writes the scoped owner onto review.
func (s *ReviewService) force(review *domain.Review) {
	if userID, ok := s.scope.UserID(); ok {
		review.UserID = userID
	}
}

// keyOf addresses review inside the scope without changing it.
func (s *ReviewService) keyOf(review *domain.Review) domain.ReviewKey {
	key := review.Key()
	if userID, ok := s.scope.UserID(); ok {
		key.UserID = userID
	}
	return key
}

// Add inserts review and writes the generated ID back onto it.
// A review with the same owner, title and director is rejected.
func (s *ReviewService) Add(ctx context.Context, review *domain.Review) bool {
	if review == nil {
		return false
	}

	review.ApplyDefaults()
	s.force(review)

	if err := s.reviewRepo.Create(ctx, review); err != nil {
		switch {
		case errors.Is(err, domain.ErrReviewAlreadyExists), errors.Is(err, domain.ErrOwnerNotFound):
			s.logger.Warn().Err(err).Str("title", review.Title).Msg("review rejected")
		default:
			s.storeError("add", err)
		}
		return false
	}

	s.logger.Debug().Int64("review_id", review.ID).Int64("user_id", review.UserID).Msg("review added")
	s.bus.Added(review)
	return true
}

// Delete removes review. Reviews outside the scope are never touched.
func (s *ReviewService) Delete(ctx context.Context, review *domain.Review) bool {
	if review == nil {
		return false
	}

	n, err := s.reviewRepo.Delete(ctx, s.keyOf(review))
	if err != nil {
		s.storeError("delete", err)
		return false
	}
	if n == 0 {
		return false
	}

	s.bus.Deleted(review.ID)
	return true
}

// DeleteMany removes every review in one statement and returns how many
// rows went away. Each review is deleted under its own owner, or under the
// scoped owner when the ledger is scoped.
func (s *ReviewService) DeleteMany(ctx context.Context, reviews []*domain.Review) int {
	keys := make([]domain.ReviewKey, 0, len(reviews))
	for _, r := range reviews {
		if r != nil {
			keys = append(keys, s.keyOf(r))
		}
	}
	if len(keys) == 0 {
		return 0
	}

	n, err := s.reviewRepo.DeleteMany(ctx, keys)
	if err != nil {
		s.storeError("delete_many", err)
		return 0
	}

	count := int(n)
	if count > 0 {
		s.logger.Debug().Int("count", count).Msg("reviews deleted")
		s.bus.BulkDeleted(count)
	}
	return count
}

// Update overwrites the row of original with updated. updated takes the ID of original.
func (s *ReviewService) Update(ctx context.Context, original, updated *domain.Review) bool {
	if original == nil || updated == nil {
		return false
	}

	s.force(original)
	s.force(updated)
	updated.ID = original.ID
	updated.ApplyDefaults()

	n, err := s.reviewRepo.Update(ctx, original.Key(), updated)
	if err != nil {
		if errors.Is(err, domain.ErrReviewAlreadyExists) || errors.Is(err, domain.ErrOwnerNotFound) {
			s.logger.Warn().Err(err).Int64("review_id", original.ID).Msg("review update rejected")
		} else {
			s.storeError("update", err)
		}
		return false
	}
	if n == 0 {
		return false
	}

	s.bus.Updated(updated)
	return true
}

// Get returns the review with id inside the scope, or nil when there is none.
func (s *ReviewService) Get(ctx context.Context, id int64) *domain.Review {
	review, err := s.reviewRepo.GetByID(ctx, s.scope, id)
	if err != nil {
		if !errors.Is(err, domain.ErrReviewNotFound) {
			s.storeError("get", err)
		}
		return nil
	}
	return review
}

// All returns the reviews of the scope, newest created first.
func (s *ReviewService) All(ctx context.Context) []*domain.Review {
	return s.list(ctx, "all", repository.ReviewFilter{})
}

// Search returns reviews whose title, director or genre contains query,
// ignoring case. A blank query returns All.
func (s *ReviewService) Search(ctx context.Context, query string) []*domain.Review {
	if strings.TrimSpace(query) == "" {
		return s.All(ctx)
	}
	return s.list(ctx, "search", repository.ReviewFilter{Query: query})
}

// Sorted returns All ordered by kind.
func (s *ReviewService) Sorted(ctx context.Context, kind sortorder.Kind) []*domain.Review {
	return sortorder.Apply(kind, s.All(ctx))
}

// SortedBy returns All ordered by the sort option labelled label.
// Unknown labels sort newest watched first.
func (s *ReviewService) SortedBy(ctx context.Context, label string) []*domain.Review {
	return s.Sorted(ctx, sortorder.Parse(label))
}

// Favorites returns the favorite reviews of the scope.
func (s *ReviewService) Favorites(ctx context.Context) []*domain.Review {
	return s.list(ctx, "favorites", repository.ReviewFilter{FavoritesOnly: true})
}

func (s *ReviewService) list(ctx context.Context, op string, filter repository.ReviewFilter) []*domain.Review {
	reviews, err := s.reviewRepo.List(ctx, s.scope, filter)
	if err != nil {
		s.storeError(op, err)
		return []*domain.Review{}
	}
	if reviews == nil {
		reviews = []*domain.Review{}
	}
	return reviews
}

// SetFavorite stores the favorite flag and mirrors it onto review.
func (s *ReviewService) SetFavorite(ctx context.Context, review *domain.Review, favorite bool) bool {
	if review == nil {
		return false
	}

	s.force(review)
	n, err := s.reviewRepo.SetFavorite(ctx, review.Key(), favorite)
	if err != nil {
		s.storeError("set_favorite", err)
		return false
	}
	if n == 0 {
		return false
	}

	review.IsFavorite = favorite
	s.bus.Updated(review)
	return true
}

// AttachTicket stores the ticket image read from r and links it to review.
func (s *ReviewService) AttachTicket(ctx context.Context, review *domain.Review, r io.Reader, ext string) bool {
	if review == nil || r == nil {
		return false
	}
	if s.tickets == nil {
		s.logger.Warn().Err(ErrNoTicketStorage).Int64("review_id", review.ID).Msg("ticket not attached")
		return false
	}

	s.force(review)
	if !s.owns(ctx, "attach_ticket.get", review) {
		return false
	}

	key, err := s.tickets.Store(ctx, r, ext)
	if err != nil {
		if errors.Is(err, storage.ErrTooLarge) || errors.Is(err, storage.ErrEmptyImage) {
			s.logger.Warn().Err(err).Int64("review_id", review.ID).Msg("ticket rejected")
		} else {
			s.storeError("attach_ticket.store", err)
		}
		return false
	}

	n, err := s.reviewRepo.SetTicketImage(ctx, review.Key(), key)
	if err != nil {
		s.storeError("attach_ticket.link", err)
	}
	if err != nil || n == 0 {
		s.dropUnreferenced(ctx, key)
		return false
	}

	review.TicketImagePath = key
	s.logger.Debug().Int64("review_id", review.ID).Str("key", key).Msg("ticket attached")
	s.bus.Updated(review)
	return true
}

// owns reports whether the row addressed by review exists inside the scope.
func (s *ReviewService) owns(ctx context.Context, op string, review *domain.Review) bool {
	current, err := s.reviewRepo.GetByID(ctx, s.scope, review.ID)
	if err != nil {
		if !errors.Is(err, domain.ErrReviewNotFound) {
			s.storeError(op, err)
		}
		return false
	}
	return current.UserID == review.UserID
}

// dropUnreferenced deletes the ticket image under key unless a review links it.
// Keys are content addressed, so another review may share the blob.
func (s *ReviewService) dropUnreferenced(ctx context.Context, key string) {
	reviews, err := s.reviewRepo.List(ctx, domain.GlobalScope(), repository.ReviewFilter{})
	if err != nil {
		s.storeError("attach_ticket.cleanup", err)
		return
	}
	for _, r := range reviews {
		if r.TicketImagePath == key {
			return
		}
	}
	if err := s.tickets.Delete(ctx, key); err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.storeError("attach_ticket.cleanup", err)
	}
}

// OpenTicket returns the ticket image of review, or nil when there is none.
// The caller must close it.
func (s *ReviewService) OpenTicket(ctx context.Context, review *domain.Review) io.ReadCloser {
	if review == nil || !review.HasTicket() || s.tickets == nil {
		return nil
	}
	rc, err := s.tickets.Retrieve(ctx, review.TicketImagePath)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.storeError("open_ticket", err)
		}
		return nil
	}
	return rc
}

// Statistics aggregates the reviews of the scope. Errors yield zero values.
func (s *ReviewService) Statistics(ctx context.Context) *repository.ReviewStats {
	stats, err := s.reviewRepo.Stats(ctx, s.scope)
	if err != nil {
		s.storeError("stats", err)
		return &repository.ReviewStats{}
	}
	return stats
}

// AverageRating returns the mean rating of the scope, 0 when it is empty.
func (s *ReviewService) AverageRating(ctx context.Context) float64 {
	return s.Statistics(ctx).AverageRating
}

// TotalReviews returns the number of reviews in the scope.
func (s *ReviewService) TotalReviews(ctx context.Context) int {
	return int(s.Statistics(ctx).Total)
}

// TheaterVisitCount returns the number of reviews with a ticket image.
func (s *ReviewService) TheaterVisitCount(ctx context.Context) int {
	return int(s.Statistics(ctx).TheaterVisits)
}

// ClearAll deletes every review of every user, whatever the scope.
func (s *ReviewService) ClearAll(ctx context.Context) bool {
	n, err := s.reviewRepo.DeleteAll(ctx)
	if err != nil {
		s.storeError("clear_all", err)
		return false
	}
	s.logger.Warn().Int64("deleted", n).Msg("all reviews deleted")
	s.bus.Cleared()
	return true
}

func (s *ReviewService) storeError(op string, err error) {
	s.logger.Error().Err(err).Str("op", op).Msg("review store failure")
	s.metrics.ObserveStoreError("review", op)
}
