package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cdr.dev/slog/v3/sloggers/slogtest"
	"github.com/coder/quartz"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/xerrors"

	"github.com/bryanwahyu/errorhub/internal/middleware"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var ok = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestSentryKey(t *testing.T) {
	t.Parallel()

	for name, tc := range map[string]struct {
		header, value, url, want string
	}{
		"XSentryAuth":   {"X-Sentry-Auth", "Sentry sentry_version=7, sentry_key=abc, sentry_client=py/1.0", "/", "abc"},
		"Authorization": {"Authorization", "Sentry sentry_key=def", "/", "def"},
		"Query":         {"", "", "/?sentry_key=ghi&sentry_version=7", "ghi"},
		"Bearer":        {"Authorization", "Bearer admin", "/", ""},
		"None":          {"", "", "/", ""},
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest(http.MethodPost, tc.url, nil)
			if tc.header != "" {
				r.Header.Set(tc.header, tc.value)
			}
			require.Equal(t, tc.want, middleware.SentryKey(r))
		})
	}
}

func TestAPIKeyAuth(t *testing.T) {
	t.Parallel()

	h := middleware.APIKeyAuth([]string{"secret"})(ok)
	for auth, want := range map[string]int{
		"":              http.StatusUnauthorized,
		"Bearer ":       http.StatusUnauthorized,
		"Bearer wrong":  http.StatusUnauthorized,
		"Bearer secret": http.StatusOK,
		"secret":        http.StatusOK,
	} {
		r := httptest.NewRequest(http.MethodGet, "/v1/scopes", nil)
		if auth != "" {
			r.Header.Set("Authorization", auth)
		}
		rw := httptest.NewRecorder()
		h.ServeHTTP(rw, r)
		require.Equal(t, want, rw.Code, auth)
	}

	// No configured keys locks the admin API.
	r := httptest.NewRequest(http.MethodGet, "/v1/scopes", nil)
	r.Header.Set("Authorization", "Bearer anything")
	rw := httptest.NewRecorder()
	middleware.APIKeyAuth(nil)(ok).ServeHTTP(rw, r)
	require.Equal(t, http.StatusUnauthorized, rw.Code)
}

type statusBody struct {
	Status string `json:"status" validate:"required,oneof=unresolved resolved ignored"`
}

func TestRead(t *testing.T) {
	t.Parallel()

	for body, want := range map[string]bool{
		`{"status":"resolved"}`: true,
		`{"status":"closed"}`:   false,
		`{}`:                    false,
		`not json`:              false,
	} {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		rw := httptest.NewRecorder()
		var v statusBody
		require.Equal(t, want, middleware.Read(rw, r, &v), body)
		if !want {
			require.Equal(t, http.StatusBadRequest, rw.Code, body)
		}
	}
}

func TestQueryInt(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/?limit=25&days=x", nil)
	n, err := middleware.QueryInt(r, "limit", 50)
	require.NoError(t, err)
	require.Equal(t, 25, n)
	n, err = middleware.QueryInt(r, "missing", 50)
	require.NoError(t, err)
	require.Equal(t, 50, n)
	_, err = middleware.QueryInt(r, "days", 14)
	require.Error(t, err)

	require.Equal(t, 50, middleware.ValidateLimit(0))
	require.Equal(t, 500, middleware.ValidateLimit(10_000))
	require.Equal(t, 7, middleware.ValidateLimit(7))
}

func TestRateLimit(t *testing.T) {
	t.Parallel()

	h := middleware.RateLimit(2, time.Minute)(ok)
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		r := httptest.NewRequest(http.MethodPost, "/api/1/envelope/", nil)
		r.RemoteAddr = "10.0.0.1:1234"
		rw := httptest.NewRecorder()
		h.ServeHTTP(rw, r)
		codes = append(codes, rw.Code)
	}
	require.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// Disabled limiter passes everything through.
	h = middleware.RateLimit(0, time.Minute)(ok)
	for i := 0; i < 5; i++ {
		rw := httptest.NewRecorder()
		h.ServeHTTP(rw, httptest.NewRequest(http.MethodPost, "/", nil))
		require.Equal(t, http.StatusOK, rw.Code)
	}
}

type checkFunc func(context.Context) error

func (f checkFunc) Check(ctx context.Context) error { return f(ctx) }

func TestHealthHandler(t *testing.T) {
	t.Parallel()

	clock := quartz.NewMock(t)
	healthy := middleware.HealthChecker(checkFunc(func(context.Context) error { return nil }))
	broken := middleware.HealthChecker(checkFunc(func(context.Context) error { return xerrors.New("down") }))

	rw := httptest.NewRecorder()
	middleware.HealthHandler(map[string]middleware.HealthChecker{"database": healthy}, clock).
		ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rw.Code)
	require.Contains(t, rw.Body.String(), `"status":"healthy"`)

	rw = httptest.NewRecorder()
	middleware.HealthHandler(map[string]middleware.HealthChecker{"database": healthy, "minio": broken}, clock).
		ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rw.Code)
	require.Contains(t, rw.Body.String(), `"message":"down"`)
}

func TestLoggerAndMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	metrics, err := middleware.NewHTTPMetrics(reg)
	require.NoError(t, err)

	mux := chi.NewRouter()
	mux.Use(middleware.Logger(slogtest.Make(t, nil)))
	mux.Use(metrics.Middleware)
	mux.Get("/v1/errors/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	for i := 0; i < 3; i++ {
		rw := httptest.NewRecorder()
		mux.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/v1/errors/"+string(rune('1'+i)), nil))
		require.Equal(t, http.StatusTeapot, rw.Code)
	}

	count, err := testutil.GatherAndCount(reg, "errorhub_http_requests_total")
	require.NoError(t, err)
	require.Equal(t, 1, count, "path parameters collapse into one route label")

	// Registering twice on the same registry fails.
	_, err = middleware.NewHTTPMetrics(reg)
	require.Error(t, err)
}
