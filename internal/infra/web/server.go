package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"theglocal-monetization/internal/infra/logging"
	"theglocal-monetization/internal/usecase"
)

// Server hosts the two external surfaces of the core: the webhook ingress
// that payment gateways call back into, and the JWT-guarded admin API.
// Gateway signature verification happens at the fronting proxy, not here.
type Server struct {
	payments  usecase.PaymentUseCase
	subs      usecase.SubscriptionUseCase
	conflicts usecase.ConflictUseCase
	auth      *AuthManager
	apiSecret string // exchanged for a session token at /admin/login
	log       *zerolog.Logger
}

func NewServer(
	payments usecase.PaymentUseCase,
	subs usecase.SubscriptionUseCase,
	conflicts usecase.ConflictUseCase,
	auth *AuthManager,
	apiSecret string,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "WebServer").Logger()
	return &Server{
		payments:  payments,
		subs:      subs,
		conflicts: conflicts,
		auth:      auth,
		apiSecret: apiSecret,
		log:       &l,
	}
}

// Router assembles all routes with the shared middleware chain.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(s.traceID)
	r.Use(s.recoverer)
	r.Use(s.requestLog)
	r.Use(timeoutMiddleware(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/webhook/payment", s.handlePaymentWebhook)

	r.Post("/admin/login", s.handleLogin)
	r.Route("/admin", func(r chi.Router) {
		r.Use(s.auth.Middleware)
		r.Get("/conflicts", s.handlePendingConflicts)
		r.Get("/conflicts/stats", s.handleConflictStats)
		r.Post("/conflicts/{id}/resolve", s.handleResolveConflict)
		r.Post("/conflicts/{id}/escalate", s.handleEscalateConflict)
		r.Get("/payments/stats", s.handlePaymentStats)
		r.Get("/payments/history", s.handlePaymentHistory)
		r.Get("/subscriptions/{entityID}/grace", s.handleGraceStatus)
	})
	return r
}

// ===== middleware =====

func (s *Server) traceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.WithTraceID(r.Context(), uuid.NewString())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l := logging.With(r.Context(), s.log)
		start := time.Now()
		ww := &respWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		l.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.status).
			Dur("duration", time.Since(start)).
			Msg("http_request")
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				l := logging.With(r.Context(), s.log)
				l.Error().Interface("panic", rec).Msg("panic recovered")
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	status int
}

func (w *respWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
