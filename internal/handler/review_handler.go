package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/prn-tf/cinelog/internal/domain"
	"github.com/prn-tf/cinelog/internal/repository"
	"github.com/prn-tf/cinelog/internal/service"
	"github.com/prn-tf/cinelog/internal/sortorder"
)

// LedgerProvider opens a review ledger over a scope for reading.
type LedgerProvider interface {
	Browse(ctx context.Context, scope domain.Scope) *service.ReviewService
}

// ReviewHandler serves review listings and statistics.
type ReviewHandler struct {
	ledgers LedgerProvider
	logger  zerolog.Logger
}

// NewReviewHandler creates a new ReviewHandler.
func NewReviewHandler(ledgers LedgerProvider, logger zerolog.Logger) *ReviewHandler {
	return &ReviewHandler{
		ledgers: ledgers,
		logger:  logger.With().Str("handler", "review").Logger(),
	}
}

// RegisterRoutes registers review routes.
func (h *ReviewHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/reviews", h.handleList)
		r.Get("/stats", h.handleStats)
		r.Get("/sort-options", h.handleSortOptions)
	})
}

// ReviewListResponse is the body of GET /api/reviews.
type ReviewListResponse struct {
	Scope   string           `json:"scope"`
	Sort    string           `json:"sort"`
	Count   int              `json:"count"`
	Reviews []*domain.Review `json:"reviews"`
}

// StatsResponse is the body of GET /api/stats.
type StatsResponse struct {
	Scope string `json:"scope"`
	*repository.ReviewStats
}

// handleList serves GET /api/reviews?user_id=&q=&sort=&favorites=.
// Without user_id the global scope is used.
func (h *ReviewHandler) handleList(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	ledger := h.ledgers.Browse(r.Context(), scope)

	var reviews []*domain.Review
	switch {
	case isTrue(query.Get("favorites")):
		reviews = ledger.Favorites(r.Context())
	default:
		reviews = ledger.Search(r.Context(), query.Get("q"))
	}

	kind := sortorder.Parse(query.Get("sort"))
	reviews = sortorder.Apply(kind, reviews)

	writeJSON(w, http.StatusOK, ReviewListResponse{
		Scope:   scope.String(),
		Sort:    kind.String(),
		Count:   len(reviews),
		Reviews: reviews,
	})
}

// handleStats serves GET /api/stats?user_id=.
func (h *ReviewHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}

	stats := h.ledgers.Browse(r.Context(), scope).Statistics(r.Context())
	writeJSON(w, http.StatusOK, StatsResponse{Scope: scope.String(), ReviewStats: stats})
}

// handleSortOptions lists the accepted sort labels.
func (h *ReviewHandler) handleSortOptions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"default": sortorder.Default.String(),
		"options": sortorder.Labels(),
	})
}

func (h *ReviewHandler) scope(w http.ResponseWriter, r *http.Request) (domain.Scope, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if raw == "" {
		return domain.GlobalScope(), true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		h.logger.Debug().Str("user_id", raw).Msg("invalid user_id")
		writeError(w, http.StatusBadRequest, "user_id must be a non-negative integer")
		return domain.Scope{}, false
	}
	return domain.UserScope(id), true
}

func isTrue(s string) bool {
	b, err := strconv.ParseBool(s)
	return err == nil && b
}
