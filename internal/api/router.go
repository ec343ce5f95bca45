package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/alecgard/kyosor/internal/activity"
	"github.com/alecgard/kyosor/internal/auth"
	"github.com/alecgard/kyosor/internal/identity"
	"github.com/alecgard/kyosor/internal/ledger"
	"github.com/alecgard/kyosor/internal/metrics"
	"github.com/alecgard/kyosor/internal/mission"
	"github.com/alecgard/kyosor/internal/ratelimit"
	"github.com/alecgard/kyosor/internal/rename"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterDeps holds all dependencies for the API router.
type RouterDeps struct {
	Directory *identity.Directory
	Missions  *mission.Registry
	Ledger    *ledger.Ledger
	Renamer   *rename.Coordinator
	Journal   *activity.Log
	Collector *activity.Collector
	Metrics   *metrics.Metrics

	// AuthLimiter throttles register and login per client address;
	// MemberLimiter throttles authenticated routes per handle. Nil disables.
	AuthLimiter   *ratelimit.Limiter
	MemberLimiter *ratelimit.Limiter

	AllowedOrigins []string

	// HealthCheck probes the backing store. Nil reports it as connected.
	HealthCheck func(ctx context.Context) error
}

// NewRouter builds the chi router with all routes and middleware.
func NewRouter(deps RouterDeps) http.Handler {
	m := deps.Metrics
	if m == nil {
		m = metrics.New()
	}

	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(requestIDMiddleware)
	r.Use(slogRequestLogger)
	r.Use(metricsMiddleware(m))
	r.Use(secureHeaders)
	r.Use(corsMiddleware(deps.AllowedOrigins))

	// Handlers.
	authH := newAuthHandler(deps.Directory, deps.Collector, m)
	missions := newMissionsHandler(deps.Missions, deps.Collector, m)
	friends := newFriendsHandler(deps.Directory, deps.Collector, m)
	me := newMeHandler(deps.Directory, deps.Ledger, deps.Renamer, deps.Collector, m)
	events := newActivityHandler(deps.Journal, deps.Collector, m)

	// Health check.
	r.Get("/health", healthHandler(deps.HealthCheck))

	// Well-known manifest.
	r.Get("/.well-known/kyosor.json", WellKnownHandler)

	// Prometheus exposition.
	r.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))

	var mu sync.Mutex

	r.Route("/api/v1", func(ar chi.Router) {
		ar.Get("/metrics/summary", m.Handler())

		ar.Group(func(sr chi.Router) {
			sr.Use(serialize(&mu))

			// Public routes, throttled per client address.
			sr.Group(func(pr chi.Router) {
				pr.Use(ratelimit.Middleware(deps.AuthLimiter, ratelimit.ByClientIP, func() {
					m.IncRateLimitRejection("auth")
				}))
				pr.Post("/auth/register", authH.Register)
				pr.Post("/auth/login", authH.Login)
			})

			// Session-authed routes, throttled per handle.
			sr.Group(func(pr chi.Router) {
				pr.Use(auth.SessionMiddleware(identity.NewAuthAdapter(deps.Directory), func() {
					m.IncAuthFailure("session")
				}))
				pr.Use(ratelimit.Middleware(deps.MemberLimiter, ratelimit.ByHandle, func() {
					m.IncRateLimitRejection("member")
				}))

				pr.Get("/auth/me", authH.Me)
				pr.Post("/auth/logout", authH.Logout)

				// Missions.
				pr.Get("/missions", missions.List)
				pr.Post("/missions", missions.Create)
				pr.Get("/missions/{id}", missions.Get)
				pr.Put("/missions/{id}", missions.Edit)
				pr.Delete("/missions/{id}", missions.Delete)
				pr.Post("/missions/{id}/join", missions.Join)
				pr.Post("/missions/{id}/cancel", missions.Cancel)
				pr.Post("/missions/{id}/finish", missions.Finish)
				pr.Delete("/missions/{id}/crew/{handle}", missions.RemoveMember)

				// Friends.
				pr.Get("/friends", friends.List)
				pr.Post("/friends/requests", friends.SendRequest)
				pr.Post("/friends/requests/{handle}/accept", friends.Accept)
				pr.Post("/friends/requests/{handle}/decline", friends.Decline)
				pr.Delete("/friends/{handle}", friends.Remove)

				// Own records.
				pr.Get("/me/hours", me.Hours)
				pr.Get("/me/notifications", me.Notifications)
				pr.Get("/me/calendar", me.Calendar)
				pr.Get("/me/profile", me.Profile)
				pr.Put("/me/profile", me.UpdateProfile)
				pr.Put("/me/secret", me.ChangeSecret)
				pr.Put("/me/name", me.Rename)

				pr.Get("/activity", events.List)
			})
		})
	})

	return r
}

// healthHandler reports liveness and, when check is set, store reachability.
func healthHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				slog.Error("health check failed", "error", err)
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "degraded",
					"store":  "unreachable",
				})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
			"store":  "connected",
		})
	}
}

// slogRequestLogger is a simple structured logging middleware using slog.
func slogRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"bytes", ww.BytesWritten(),
			"request_id", RequestIDFromContext(r.Context()),
		)
	})
}
