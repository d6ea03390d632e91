package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/cinelog/internal/domain"
	"github.com/prn-tf/cinelog/internal/metrics"
	"github.com/prn-tf/cinelog/internal/repository"
	"github.com/prn-tf/cinelog/internal/repository/sqlite"
	"github.com/prn-tf/cinelog/internal/service"
)

type ledgers struct {
	db *repository.Database
}

func (l ledgers) Browse(ctx context.Context, scope domain.Scope) *service.ReviewService {
	return service.NewReviewService(ctx, l.db.Repos, service.ReviewServiceConfig{Scope: scope}, zerolog.Nop())
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type listBody struct {
	Scope   string `json:"scope"`
	Sort    string `json:"sort"`
	Count   int    `json:"count"`
	Reviews []struct {
		ID         int64   `json:"id"`
		UserID     int64   `json:"user_id"`
		Title      string  `json:"title"`
		Rating     float64 `json:"rating"`
		Date       string  `json:"date_watched"`
		IsFavorite bool    `json:"is_favorite"`
	} `json:"reviews"`
}

func newTestServer(t *testing.T) (*httptest.Server, *metrics.Metrics, int64) {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.Open(ctx, sqlite.DefaultConfig(filepath.Join(t.TempDir(), "api.db")), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	alice := &domain.User{Username: "alice", Email: "alice@x.com", Password: "digest", IsActive: true}
	bob := &domain.User{Username: "bobby", Email: "bob@x.com", Password: "digest", IsActive: true}
	require.NoError(t, db.Repos.User.Create(ctx, alice))
	require.NoError(t, db.Repos.User.Create(ctx, bob))

	global := service.NewReviewService(ctx, db.Repos, service.ReviewServiceConfig{Scope: domain.GlobalScope()}, zerolog.Nop())
	require.True(t, global.Add(ctx, domain.NewReview(alice.ID, "Inception", "Christopher Nolan", "Sci-Fi", 4.5, "", "12/15/2023")))
	titanic := domain.NewReview(alice.ID, "Titanic", "James Cameron", "Romance", 4.8, "", "10/05/2023")
	require.True(t, global.Add(ctx, titanic))
	require.True(t, global.SetFavorite(ctx, titanic, true))
	require.True(t, global.Add(ctx, domain.NewReview(bob.ID, "Ran", "Akira Kurosawa", "Drama", 5, "", "1/1/2020")))

	m := metrics.New()
	router := NewRouter(RouterConfig{
		ReviewHandler:  NewReviewHandler(ledgers{db: db}, zerolog.Nop()),
		Database:       db.Health,
		MetricsHandler: m.Handler(),
		Logger:         zerolog.Nop(),
	})

	srv := httptest.NewServer(router.Handler())
	t.Cleanup(srv.Close)
	return srv, m, alice.ID
}

func getJSON(t *testing.T, url string, v interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.Equal(t, "application/json", resp.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestRouter_ListReviews(t *testing.T) {
	srv, _, aliceID := newTestServer(t)

	var all listBody
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/reviews", &all))
	require.Equal(t, "global", all.Scope)
	require.Equal(t, "Date (Newest)", all.Sort)
	require.Equal(t, 3, all.Count)
	require.Equal(t, "Inception", all.Reviews[0].Title)
	require.Equal(t, "12/15/2023", all.Reviews[0].Date)

	var mine listBody
	url := srv.URL + "/api/reviews?sort=Rating+(High)&user_id=" + itoa(aliceID)
	require.Equal(t, http.StatusOK, getJSON(t, url, &mine))
	require.Equal(t, 2, mine.Count)
	require.Equal(t, "Titanic", mine.Reviews[0].Title)
	require.Equal(t, 4.8, mine.Reviews[0].Rating)
	require.Equal(t, "Inception", mine.Reviews[1].Title)

	var search listBody
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/reviews?q=nolan", &search))
	require.Equal(t, 1, search.Count)
	require.Equal(t, "Inception", search.Reviews[0].Title)

	var favs listBody
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/reviews?favorites=true", &favs))
	require.Equal(t, 1, favs.Count)
	require.True(t, favs.Reviews[0].IsFavorite)

	var nobody listBody
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/reviews?user_id=999", &nobody))
	require.Zero(t, nobody.Count)
	require.NotNil(t, nobody.Reviews)
}

func TestRouter_Stats(t *testing.T) {
	srv, _, aliceID := newTestServer(t)

	var stats struct {
		Scope   string  `json:"scope"`
		Total   int     `json:"total_reviews"`
		Average float64 `json:"average_rating"`
		Favs    int     `json:"favorites"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/stats?user_id="+itoa(aliceID), &stats))
	require.Equal(t, "user:"+itoa(aliceID), stats.Scope)
	require.Equal(t, 2, stats.Total)
	require.InDelta(t, 4.65, stats.Average, 1e-9)
	require.Equal(t, 1, stats.Favs)

	var bad errorResponse
	require.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/api/stats?user_id=abc", &bad))
	require.NotEmpty(t, bad.Error)
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	srv, m, _ := newTestServer(t)
	m.ObserveLogin(metrics.LoginSuccess)

	var health map[string]string
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/health", &health))
	require.Equal(t, "healthy", health["status"])

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `cinelog_login_attempts_total{result="success"} 1`)

	var options map[string]interface{}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/sort-options", &options))
	require.Equal(t, "Date (Newest)", options["default"])
	require.Len(t, options["options"], 6)
}

func TestRouter_Unhealthy(t *testing.T) {
	router := NewRouter(RouterConfig{Database: pinger{err: errors.New("down")}, Logger: zerolog.Nop()})

	rec := httptest.NewRecorder()
	router.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	router.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
