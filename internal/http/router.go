package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-news-api/internal/auth"
	"github.com/kjstillabower/weather-news-api/internal/observability"
)

// RouterConfig holds what NewRouter needs beyond the handler.
type RouterConfig struct {
	SecretID       string
	Tokens         TokenValidator
	LoginLimiter   *ClientLimiter
	RequestTimeout time.Duration
	InFlight       *InFlightTracker
	Logger         *zap.Logger
}

// NewRouter builds the full handler chain:
// correlation id, metrics, request log, panic recovery, admission gate, then the routes.
// The admission gate wraps the router itself so unmatched paths are gated too.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(NotFound)
	router.MethodNotAllowedHandler = http.HandlerFunc(MethodNotAllowed)

	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	router.Handle("/login", RateLimitMiddleware(cfg.LoginLimiter)(http.HandlerFunc(h.Login))).Methods(http.MethodPost)

	authenticate := AuthenticateMiddleware(cfg.Tokens)
	timeout := TimeoutMiddleware(cfg.RequestTimeout)
	authenticated := chain(authenticate, RequireRoleMiddleware(auth.RequireAuthenticated), timeout)
	admin := chain(authenticate, RequireRoleMiddleware(auth.RequireAdmin), timeout)

	router.Handle("/news", timeout(http.HandlerFunc(h.ListNews))).Methods(http.MethodGet)
	router.Handle("/news", authenticated(http.HandlerFunc(h.CreateNews))).Methods(http.MethodPost)
	router.Handle("/news/{id:[0-9]+}", timeout(http.HandlerFunc(h.GetNews))).Methods(http.MethodGet)
	router.Handle("/news/{id:[0-9]+}", authenticated(http.HandlerFunc(h.UpdateNews))).Methods(http.MethodPut)
	router.Handle("/news/{id:[0-9]+}", admin(http.HandlerFunc(h.DeleteNews))).Methods(http.MethodDelete)

	return chain(
		CorrelationIDMiddleware(logger),
		MetricsMiddleware(cfg.InFlight),
		RequestLoggingMiddleware,
		RecoverMiddleware,
		AdmissionMiddleware(cfg.SecretID),
	)(router)
}

// chain composes middleware so the first one listed runs first.
func chain(mws ...mux.MiddlewareFunc) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}
