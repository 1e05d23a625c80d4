package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-news-api/internal/auth"
	"github.com/kjstillabower/weather-news-api/internal/lifecycle"
	"github.com/kjstillabower/weather-news-api/internal/models"
	"github.com/kjstillabower/weather-news-api/internal/observability"
	"github.com/kjstillabower/weather-news-api/internal/service"
	"github.com/kjstillabower/weather-news-api/internal/store"
	"github.com/kjstillabower/weather-news-api/internal/traffic"
	"github.com/kjstillabower/weather-news-api/internal/validation"
)

// maxRequestBody caps JSON request bodies.
const maxRequestBody = 1 << 20

// TokenIssuer issues tokens for a username and password.
type TokenIssuer interface {
	IssueToken(username, password string) (auth.Token, error)
}

// HealthConfig holds the inputs of the health handler. Nil fields skip their check.
type HealthConfig struct {
	// StorePing checks the record store; failure reports 503.
	StorePing func(ctx context.Context) error
	// Weather is the weather outcome tracker fed by the aggregator.
	Weather         *traffic.Tracker
	WeatherWindow   time.Duration
	WeatherErrorPct float64
	State           *lifecycle.State
	Version         string
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	news             *service.NewsService
	aggregator       *service.Aggregator
	tokens           TokenIssuer
	healthConfig     *HealthConfig
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(
	news *service.NewsService,
	aggregator *service.Aggregator,
	tokens TokenIssuer,
	healthConfig *HealthConfig,
	logger *zap.Logger,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		news:         news,
		aggregator:   aggregator,
		tokens:       tokens,
		healthConfig: healthConfig,
		logger:       logger,
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// Login handles POST /login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		observability.LoginAttemptsTotal.WithLabelValues("bad_request").Inc()
		writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "request body must be a JSON object with username and password")
		return
	}

	token, err := h.tokens.IssueToken(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			observability.LoginAttemptsTotal.WithLabelValues("invalid_credentials").Inc()
			observability.LoggerFromContext(r.Context()).Info("login failed", zap.String("user", req.Username))
			writeError(w, r, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid username or password")
			return
		}
		writeServiceError(w, r, err)
		return
	}
	observability.LoginAttemptsTotal.WithLabelValues("success").Inc()
	observability.LoggerFromContext(r.Context()).Info("login succeeded", zap.String("user", req.Username))
	writeJSON(w, http.StatusOK, loginResponse{Token: token.Value})
}

// ListNews handles GET /news: all news plus the current weather summary.
func (h *Handler) ListNews(w http.ResponseWriter, r *http.Request) {
	view, err := h.aggregator.BuildAggregatedView(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// CreateNews handles POST /news.
func (h *Handler) CreateNews(w http.ResponseWriter, r *http.Request) {
	var in models.NewsInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "request body must be a JSON object with title and content")
		return
	}
	item, err := h.news.Create(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/news/"+strconv.FormatInt(item.ID, 10))
	writeJSON(w, http.StatusCreated, item)
}

// GetNews handles GET /news/{id}.
func (h *Handler) GetNews(w http.ResponseWriter, r *http.Request) {
	id, ok := newsID(w, r)
	if !ok {
		return
	}
	item, err := h.news.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// UpdateNews handles PUT /news/{id}.
func (h *Handler) UpdateNews(w http.ResponseWriter, r *http.Request) {
	id, ok := newsID(w, r)
	if !ok {
		return
	}
	var in models.NewsInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "request body must be a JSON object with title and content")
		return
	}
	if err := h.news.Update(r.Context(), id, in); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteNews handles DELETE /news/{id}.
func (h *Handler) DeleteNews(w http.ResponseWriter, r *http.Request) {
	id, ok := newsID(w, r)
	if !ok {
		return
	}
	user := "anonymous"
	if p := auth.PrincipalFromContext(r.Context()); p != nil {
		user = p.Username
	}
	if err := h.news.Delete(r.Context(), id, user); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
	checks     map[string]string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	resp := map[string]interface{}{
		"status":    result.status,
		"service":   observability.ServiceName,
		"checks":    result.checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.healthConfig != nil {
		if h.healthConfig.Version != "" {
			resp["version"] = h.healthConfig.Version
		}
		if h.healthConfig.State != nil {
			resp["uptime"] = h.healthConfig.State.Uptime(time.Now()).Round(time.Second).String()
		}
	}
	writeJSON(w, result.statusCode, resp)
}

// computeHealthStatus evaluates, in order: shutting-down, store reachability, weather
// availability. Weather failures only degrade since GET /news tolerates them.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	checks := map[string]string{}
	cfg := h.healthConfig
	if cfg == nil {
		return healthResult{"healthy", http.StatusOK, "", checks}
	}
	if cfg.State != nil && cfg.State.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal", checks}
	}
	if cfg.StorePing != nil {
		if err := cfg.StorePing(ctx); err != nil {
			observability.LoggerFromContext(ctx).Warn("health: store ping failed", zap.Error(err))
			checks["store"] = "unhealthy"
			return healthResult{"unhealthy", http.StatusServiceUnavailable, "store_unreachable", checks}
		}
		checks["store"] = "healthy"
	}
	if cfg.Weather != nil && cfg.WeatherWindow > 0 {
		if cfg.Weather.Degraded(cfg.WeatherWindow, cfg.WeatherErrorPct) {
			checks["weatherApi"] = "degraded"
			return healthResult{"degraded", http.StatusOK, "weather_error_rate", checks}
		}
		checks["weatherApi"] = "healthy"
	}
	return healthResult{"healthy", http.StatusOK, "", checks}
}

// NotFound is the router's handler for unmatched paths.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, "NOT_FOUND", "Resource not found")
}

// MethodNotAllowed is the router's handler for a known path with the wrong method.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
}

// newsID parses the {id} route variable. Ids outside int64 cannot exist, so they are 404.
func newsID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "News item not found")
		return 0, false
	}
	return id, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(v); err != nil {
		return err
	}
	return nil
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationIDFromContext(r.Context()),
		},
	})
}

// writeInternalError writes the generic 500. Detail belongs in logs only.
func writeInternalError(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred.")
}

// writeServiceError maps service and store errors to responses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, validation.ErrInvalidNews):
		writeError(w, r, http.StatusBadRequest, "INVALID_NEWS", err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "News item not found")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid username or password")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "FORBIDDEN", "Insufficient permissions")
	default:
		observability.LoggerFromContext(r.Context()).Error("request failed", zap.Error(err))
		writeInternalError(w, r)
	}
}
