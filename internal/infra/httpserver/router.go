// Package httpserver exposes the ingest endpoint and the operator API over
// HTTP.
package httpserver

import (
	"net/http"
	"time"

	"cdr.dev/slog/v3"
	"github.com/coder/quartz"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/xerrors"

	appgroups "github.com/bryanwahyu/errorhub/internal/application/errorgroups"
	appingest "github.com/bryanwahyu/errorhub/internal/application/ingest"
	"github.com/bryanwahyu/errorhub/internal/domain/envelope"
	"github.com/bryanwahyu/errorhub/internal/domain/errorgroups"
	"github.com/bryanwahyu/errorhub/internal/domain/scopes"
	"github.com/bryanwahyu/errorhub/internal/domain/sessions"
	"github.com/bryanwahyu/errorhub/internal/domain/transactions"
	"github.com/bryanwahyu/errorhub/internal/middleware"
)

const defaultMaxBodyBytes = 20 << 20

type Options struct {
	Ingest       *appingest.Service
	Groups       *appgroups.Service
	Scopes       scopes.Repository
	Sessions     sessions.Repository
	Transactions transactions.Repository

	Logger slog.Logger
	Clock  quartz.Clock
	// Metrics and Gatherer are optional.
	Metrics  *middleware.HTTPMetrics
	Gatherer prometheus.Gatherer
	Health   map[string]middleware.HealthChecker

	AdminKeys    []string
	CORSOrigins  []string
	RateLimit    int
	RateWindow   time.Duration
	MaxBodyBytes int64
}

type Router struct {
	ingest       *appingest.Service
	groups       *appgroups.Service
	scopes       scopes.Repository
	sessions     sessions.Repository
	transactions transactions.Repository
	logger       slog.Logger
	maxBody      int64
}

func NewRouter(opts Options) http.Handler {
	r := &Router{
		ingest:       opts.Ingest,
		groups:       opts.Groups,
		scopes:       opts.Scopes,
		sessions:     opts.Sessions,
		transactions: opts.Transactions,
		logger:       opts.Logger.Named("http"),
		maxBody:      opts.MaxBodyBytes,
	}
	if r.maxBody <= 0 {
		r.maxBody = defaultMaxBodyBytes
	}
	clock := opts.Clock
	if clock == nil {
		clock = quartz.NewReal()
	}

	mux := chi.NewRouter()
	mux.Use(chimw.RequestID)
	mux.Use(chimw.RealIP)
	mux.Use(middleware.Logger(r.logger))
	mux.Use(chimw.Recoverer)
	if opts.Metrics != nil {
		mux.Use(opts.Metrics.Middleware)
	}
	// Browser SDKs post envelopes cross-origin.
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Content-Encoding", "Authorization", "X-Sentry-Auth"},
		MaxAge:         300,
	}))

	mux.Get("/health", middleware.HealthHandler(opts.Health, clock))
	mux.Get("/readyz", middleware.ReadinessHandler)
	mux.Get("/livez", middleware.LivenessHandler)
	if opts.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	mux.Group(func(rt chi.Router) {
		rt.Use(middleware.RateLimit(opts.RateLimit, opts.RateWindow))
		for _, p := range []string{
			"/api/{scope}/envelope/",
			"/api/{scope}/envelope",
			"/ingest/{scope}/envelope",
			"/ingest/{scope}/envelope/",
			"/ingest/api/{scope}/envelope/",
			"/ingest/api/{scope}/envelope",
		} {
			rt.Post(p, r.wrap(r.handleEnvelope))
		}
	})

	mux.Group(func(rt chi.Router) {
		rt.Use(middleware.APIKeyAuth(opts.AdminKeys))
		rt.Get("/v1/scopes", r.wrap(r.handleListScopes))
		rt.Route("/v1/scopes/{scope}", func(rt chi.Router) {
			rt.Get("/errors", r.wrap(r.handleListGroups))
			rt.Get("/sessions", r.wrap(r.handleListSessions))
			rt.Get("/transactions", r.wrap(r.handleListTransactions))
		})
		rt.Route("/v1/errors/{id}", func(rt chi.Router) {
			rt.Get("/", r.wrap(r.handleGetGroup))
			rt.Get("/occurrences", r.wrap(r.handleOccurrences))
			rt.Get("/chart", r.wrap(r.handleChart))
			rt.Get("/attachments", r.wrap(r.handleAttachments))
		})
		rt.Post("/api/errors/{id}/status", r.wrap(r.handleUpdateStatus))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// errBadRequest marks malformed query or path input.
var errBadRequest = xerrors.New("bad request")

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			r.logger.Error(req.Context(), "request failed",
				slog.F("path", req.URL.Path),
				slog.Error(err),
			)
			middleware.WriteError(w, status, "internal server error")
			return
		}
		middleware.WriteError(w, status, err.Error())
	}
}

func statusFor(err error) int {
	switch {
	case xerrors.Is(err, scopes.ErrNotFound), xerrors.Is(err, errorgroups.ErrNotFound):
		return http.StatusNotFound
	case xerrors.Is(err, scopes.ErrUnauthorized):
		return http.StatusUnauthorized
	case xerrors.Is(err, envelope.ErrBodyTooLarge):
		return http.StatusRequestEntityTooLarge
	case xerrors.Is(err, errorgroups.ErrInvalidTransition):
		return http.StatusConflict
	case xerrors.Is(err, envelope.ErrEmptyEnvelope),
		xerrors.Is(err, envelope.ErrMalformedEncoding),
		xerrors.Is(err, appingest.ErrNoItemsProcessed),
		xerrors.Is(err, errorgroups.ErrInvalidStatus),
		xerrors.Is(err, errBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// nonNil keeps empty lists serialized as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
