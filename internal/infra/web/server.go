package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"docs-ingestion-service/internal/config"
	"docs-ingestion-service/internal/infra/logging"
	"docs-ingestion-service/internal/infra/metrics"
	appredis "docs-ingestion-service/internal/infra/redis"
)

// RateLimiter is satisfied by the redis-backed limiter.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type Server struct {
	jobs    JobService
	auth    *AuthManager
	token   string
	limiter RateLimiter
	apiCfg  config.APIConfig
	deps    map[string]Pinger
	log     *zerolog.Logger

	http *http.Server
}

func NewServer(
	jobs JobService,
	auth *AuthManager,
	limiter RateLimiter,
	apiCfg config.APIConfig,
	deps map[string]Pinger,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "WebServer").Logger()
	return &Server{
		jobs:    jobs,
		auth:    auth,
		token:   apiCfg.AuthToken,
		limiter: limiter,
		apiCfg:  apiCfg,
		deps:    deps,
		log:     &l,
	}
}

// Router builds the full route tree. Exposed separately from Start so tests
// can drive it with httptest.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(s.requestLogger)

	r.Get("/health", healthHandler(s.deps))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		if s.apiCfg.RateLimit.Enabled && s.limiter != nil {
			api.Use(s.rateLimitMiddleware)
		}

		// Login checks the operator credential itself, so it stays outside
		// the auth middleware; otherwise a JWT-only deployment could never
		// mint its first session.
		api.Post("/auth/login", s.loginHandler())

		api.Group(func(priv chi.Router) {
			priv.Use(s.authMiddleware)

			priv.Post("/jobs", enqueueHandler(s.jobs))
			priv.Get("/jobs/{id}", statusHandler(s.jobs))
			priv.Delete("/jobs/{id}", cancelHandler(s.jobs))
			priv.Post("/jobs/{id}/retry", retryHandler(s.jobs))
		})
	})

	return r
}

func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.apiCfg.Port),
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	s.log.Info().Str("addr", s.http.Addr).Msg("http server listening")
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// loginHandler exchanges the operator credential for a session JWT. When a
// static token is configured it must be presented as the bearer credential;
// with only a jwt_secret configured the session layer is the sole gate and
// login mints directly.
func (s *Server) loginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.auth == nil {
			http.Error(w, "Sessions not enabled", http.StatusNotFound)
			return
		}
		if s.token != "" && bearerToken(r) != s.token {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		signed, err := s.auth.Mint(w)
		if err != nil {
			http.Error(w, "Failed to mint session", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Token string `json:"token"`
		}{Token: signed})
	}
}

// authMiddleware accepts either the static bearer token or a valid session
// JWT (header or cookie). With neither secret configured the API is open.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" && s.auth == nil {
			next.ServeHTTP(w, r)
			return
		}

		if s.token != "" && bearerToken(r) == s.token {
			next.ServeHTTP(w, r)
			return
		}

		if s.auth != nil {
			if _, err := s.auth.ParseFromRequest(r); err == nil {
				next.ServeHTTP(w, r)
				return
			}
		}

		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	})
}

// bearerToken extracts the Authorization bearer credential, or "" when the
// header is absent or malformed.
func bearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return parts[1]
	}
	return ""
}

// rateLimitMiddleware throttles per client IP on a fixed one-minute window.
// Limiter backend failures fail open.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}

		allowed, err := s.limiter.Allow(r.Context(), appredis.ClientKey(host), s.apiCfg.RateLimit.RequestsPerMinute, time.Minute)
		if err != nil {
			s.log.Warn().Err(err).Msg("rate limiter unavailable, allowing request")
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			metrics.IncRateLimitTriggered()
			w.Header().Set("Retry-After", "60")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(struct {
				Error        string `json:"error"`
				RetryAfterMs int64  `json:"retryAfterMs"`
			}{Error: "rate limit exceeded", RetryAfterMs: 60000})
			return
		}

		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := logging.WithTraceID(r.Context(), uuid.NewString())
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r.WithContext(ctx))
		logging.With(ctx, s.log).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sw.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}
