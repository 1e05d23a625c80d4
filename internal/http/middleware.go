package http

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-news-api/internal/auth"
	"github.com/kjstillabower/weather-news-api/internal/observability"
)

// AdmissionRejectedBody is the plain-text body of every admission rejection.
const AdmissionRejectedBody = "Invalid secret id!"

// TokenValidator validates bearer tokens.
type TokenValidator interface {
	ValidateToken(token string) (auth.Principal, error)
}

// CorrelationIDMiddleware reuses X-Correlation-ID or generates one, echoes it on the
// response and stores it, together with a logger carrying it, on the request context.
func CorrelationIDMiddleware(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			corrID := r.Header.Get("X-Correlation-ID")
			if corrID == "" {
				corrID = uuid.New().String()
			}
			w.Header().Set("X-Correlation-ID", corrID)

			ctx := observability.WithCorrelationID(r.Context(), corrID)
			ctx = observability.WithLogger(ctx, logger.With(zap.String("correlation_id", corrID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// MetricsMiddleware records request count and latency and tracks in-flight requests.
func MetricsMiddleware(inFlight *InFlightTracker) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			observability.HTTPRequestsInFlight.Inc()
			defer observability.HTTPRequestsInFlight.Dec()
			if inFlight != nil {
				inFlight.Increment()
				defer inFlight.Decrement()
			}

			recorder := newStatusRecorder(w)
			next.ServeHTTP(recorder, r)

			duration := time.Since(start).Seconds()
			route := getRoute(r)
			observability.HTTPRequestsTotal.WithLabelValues(r.Method, route, statusCodeString(recorder.statusCode)).Inc()
			observability.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(duration)
		})
	}
}

// RequestLoggingMiddleware writes one Info line per request. The query string is never
// logged since it carries the secretId.
func RequestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := newStatusRecorder(w)
		next.ServeHTTP(recorder, r)
		elapsed := time.Since(start)

		observability.LoggerFromContext(r.Context()).Info(
			fmt.Sprintf("HTTP %s %s responded %d in %.4f ms", r.Method, r.URL.Path, recorder.statusCode, float64(elapsed.Microseconds())/1000),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", recorder.statusCode),
			zap.Duration("elapsed", elapsed))
	})
}

// RecoverMiddleware turns a handler panic into the generic 500 response.
func RecoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				observability.LoggerFromContext(r.Context()).Error("panic serving request",
					zap.Any("panic", rec),
					zap.String("path", r.URL.Path),
					zap.Stack("stack"))
				writeInternalError(w, r)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// AdmissionMiddleware rejects every request whose secretId query parameter differs from
// secretID with 403 and a fixed plain-text body. Downstream handlers never run for
// rejected requests.
func AdmissionMiddleware(secretID string) mux.MiddlewareFunc {
	expected := []byte(secretID)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.URL.Query().Get("secretId")
			if len(expected) == 0 || subtle.ConstantTimeCompare([]byte(got), expected) != 1 {
				observability.AdmissionRejectedTotal.Inc()
				observability.LoggerFromContext(r.Context()).Warn("request with invalid secret id",
					zap.String("secret_id", got),
					zap.String("path", r.URL.Path))
				w.Header().Set("Content-Type", "text/plain; charset=utf-8")
				w.Header().Set("X-Content-Type-Options", "nosniff")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(AdmissionRejectedBody))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AuthenticateMiddleware validates an "Authorization: Bearer" token and stores the principal
// on the context. A missing header passes through without a principal so RequireRoleMiddleware
// decides; a present but invalid token is rejected with 401 here.
func AuthenticateMiddleware(tokens TokenValidator) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			p, err := tokens.ValidateToken(raw)
			if err != nil {
				reason := tokenFailureReason(err)
				observability.AuthFailuresTotal.WithLabelValues(reason).Inc()
				observability.LoggerFromContext(r.Context()).Info("token rejected", zap.String("reason", reason))
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or expired token")
				return
			}
			ctx := auth.WithPrincipal(r.Context(), p)
			ctx = observability.WithLogger(ctx, observability.LoggerFromContext(ctx).With(zap.String("user", p.Username)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRoleMiddleware enforces req against the principal set by AuthenticateMiddleware.
func RequireRoleMiddleware(req auth.Requirement) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := auth.PrincipalFromContext(r.Context())
			switch err := auth.Authorize(p, req); {
			case err == nil:
				next.ServeHTTP(w, r)
			case errors.Is(err, auth.ErrUnauthenticated):
				observability.AuthFailuresTotal.WithLabelValues("missing").Inc()
				w.Header().Set("WWW-Authenticate", "Bearer")
				writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
			default:
				observability.AuthFailuresTotal.WithLabelValues("forbidden").Inc()
				observability.LoggerFromContext(r.Context()).Info("role requirement not met",
					zap.String("requirement", req.String()),
					zap.String("role", p.Role))
				writeError(w, r, http.StatusForbidden, "FORBIDDEN", "Insufficient permissions")
			}
		})
	}
}

// TimeoutMiddleware sets a deadline on the request context. When exceeded, downstream handlers
// receive context.DeadlineExceeded.
func TimeoutMiddleware(timeout time.Duration) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimitMiddleware returns 429 when the caller's token bucket is exhausted. Disabled when limiter is nil.
func RateLimitMiddleware(limiter *ClientLimiter) mux.MiddlewareFunc {
	if limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(clientKey(r)) {
				observability.LoggerFromContext(r.Context()).Debug("rate limit denied")
				observability.RateLimitDeniedTotal.Inc()
				writeError(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		// Non-bearer credentials count as an invalid token.
		return h, true
	}
	return strings.TrimSpace(token), true
}

func tokenFailureReason(err error) string {
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		return "expired"
	case errors.Is(err, auth.ErrTokenInvalidSignature):
		return "invalid_signature"
	default:
		return "malformed"
	}
}

func getRoute(r *http.Request) string {
	path := r.URL.Path
	switch {
	case path == "/health", path == "/metrics", path == "/login", path == "/news":
		return path
	case strings.HasPrefix(path, "/news/"):
		return "/news/{id}"
	default:
		return "unmatched"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.statusCode = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

func statusCodeString(code int) string {
	return fmt.Sprintf("%dxx", code/100)
}
