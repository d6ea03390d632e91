package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/cinelog/internal/domain"
)

func TestListenerCountsEvents(t *testing.T) {
	m := New()
	l := m.Listener()

	l.OnAdded(&domain.Review{})
	l.OnAdded(&domain.Review{})
	l.OnUpdated(&domain.Review{})
	l.OnDeleted(1)
	l.OnBulkDeleted(3)
	l.OnBulkDeleted(0)
	l.OnCleared()

	require.Equal(t, 2.0, testutil.ToFloat64(m.reviewEvents.WithLabelValues("added")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.reviewEvents.WithLabelValues("updated")))
	require.Equal(t, 4.0, testutil.ToFloat64(m.reviewEvents.WithLabelValues("deleted")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.reviewEvents.WithLabelValues("cleared")))
}

func TestObserveLoginAndStoreError(t *testing.T) {
	m := New()
	m.ObserveLogin(LoginSuccess)
	m.ObserveLogin(LoginFailure)
	m.ObserveLogin(LoginFailure)
	m.ObserveStoreError("review", "add")

	require.Equal(t, 1.0, testutil.ToFloat64(m.logins.WithLabelValues(LoginSuccess)))
	require.Equal(t, 2.0, testutil.ToFloat64(m.logins.WithLabelValues(LoginFailure)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.storeErrors.WithLabelValues("review", "add")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.ObserveLogin(LoginSuccess)
		m.ObserveStoreError("user", "login")
		m.Listener().OnAdded(nil)
		m.Listener().OnBulkDeleted(2)
	})
	require.Nil(t, m.Registry())
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveLogin(LoginRejected)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `cinelog_login_attempts_total{result="rejected"} 1`)
}
