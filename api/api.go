// Package api serves the HTTP surface the WordPress plugin talks to: job
// ingest, queue administration and manual run triggers.
package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/xraph/odoosync/circuit"
	"github.com/xraph/odoosync/engine"
	"github.com/xraph/odoosync/reconcile"
)

// API wires the HTTP handlers around an Engine.
type API struct {
	eng        *engine.Engine
	breaker    *circuit.Breaker
	reconciler *reconcile.Reconciler
	secret     []byte
	logger     *slog.Logger
}

// Option configures an API.
type Option func(*API)

// WithJWTSecret enables HS256 bearer authentication on every route but
// /v1/health. Without a secret the API is unauthenticated.
func WithJWTSecret(secret []byte) Option {
	return func(a *API) { a.secret = secret }
}

// WithBreaker reports the Odoo circuit state on /v1/health.
func WithBreaker(b *circuit.Breaker) Option {
	return func(a *API) { a.breaker = b }
}

// WithReconciler enables POST /v1/reconcile.
func WithReconciler(rc *reconcile.Reconciler) Option {
	return func(a *API) { a.reconciler = rc }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *API) { a.logger = l }
}

// New creates an API from an Engine.
func New(eng *engine.Engine, opts ...Option) *API {
	a := &API{eng: eng, logger: eng.Syncer().Logger()}
	for _, opt := range opts {
		opt(a)
	}
	if len(a.secret) == 0 {
		a.logger.Warn("api authentication disabled, no jwt secret configured")
	}
	return a
}

// Handler returns the fully assembled http.Handler with all routes.
func (a *API) Handler() http.Handler {
	r := mux.NewRouter()
	a.RegisterRoutes(r)
	return r
}

// RegisterRoutes registers all routes into r.
func (a *API) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/v1/health", a.health).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(a.authenticate)
	a.registerJobRoutes(v1)
	a.registerSyncRoutes(v1)
	a.registerStatsRoutes(v1)
}

func (a *API) registerJobRoutes(r *mux.Router) {
	r.HandleFunc("/jobs", a.enqueueJob).Methods(http.MethodPost)
	r.HandleFunc("/jobs", a.listJobs).Methods(http.MethodGet)
	r.HandleFunc("/jobs/retry", a.retryJobs).Methods(http.MethodPost)
	r.HandleFunc("/jobs/cleanup", a.cleanupJobs).Methods(http.MethodPost)
	r.HandleFunc("/jobs/{jobId:[0-9]+}", a.getJob).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{jobId:[0-9]+}", a.cancelJob).Methods(http.MethodDelete)
}

func (a *API) registerSyncRoutes(r *mux.Router) {
	r.HandleFunc("/sync/run", a.runSync).Methods(http.MethodPost)
	if a.reconciler != nil {
		r.HandleFunc("/reconcile", a.reconcile).Methods(http.MethodPost)
	}
}

func (a *API) registerStatsRoutes(r *mux.Router) {
	r.HandleFunc("/stats", a.stats).Methods(http.MethodGet)
}
