//go:build integration
// +build integration

package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-news-api/internal/auth"
	"github.com/kjstillabower/weather-news-api/internal/client"
	"github.com/kjstillabower/weather-news-api/internal/lifecycle"
	"github.com/kjstillabower/weather-news-api/internal/models"
	"github.com/kjstillabower/weather-news-api/internal/service"
	"github.com/kjstillabower/weather-news-api/internal/store"
	"github.com/kjstillabower/weather-news-api/internal/traffic"
)

// upstreamWeather is a stand-in OpenWeatherMap endpoint whose health can be toggled.
type upstreamWeather struct {
	failing atomic.Bool
	calls   atomic.Int32
}

func (u *upstreamWeather) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u.calls.Add(1)
	if u.failing.Load() {
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"name":%q,"main":{"temp":291.4,"humidity":60},"weather":[{"main":"Clouds","description":"scattered clouds"}]}`, r.URL.Query().Get("q"))
}

type liveServer struct {
	url      string
	upstream *upstreamWeather
	state    *lifecycle.State
	inFlight *InFlightTracker
}

func startLiveServer(t *testing.T) *liveServer {
	t.Helper()
	logger := zap.NewNop()

	upstream := &upstreamWeather{}
	weatherSrv := httptest.NewServer(upstream)
	t.Cleanup(weatherSrv.Close)

	records, err := store.OpenSQLite(filepath.Join(t.TempDir(), "news.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { _ = records.Close() })

	weather, err := client.NewOpenWeatherClient("integration-key-0123", weatherSrv.URL, time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	weather.SetCircuitBreaker(client.NewCircuitBreaker(client.BreakerConfig{
		FailureThreshold: 2,
		OpenTimeout:      time.Minute,
	}, logger))

	creds, err := auth.NewStaticCredentialStore(auth.DefaultCredentials(), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewStaticCredentialStore() error = %v", err)
	}
	tokens, err := auth.NewTokenService([]byte(testJWTSecret), time.Hour, creds, nil)
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}

	tracker := traffic.NewTracker(time.Minute, nil)
	state := lifecycle.NewState(time.Now())
	inFlight := NewInFlightTracker()

	handler := NewHandler(
		service.NewNewsService(records, nil),
		service.NewAggregator(records, weather, "London", time.Second, tracker),
		tokens,
		&HealthConfig{
			StorePing:       records.Ping,
			Weather:         tracker,
			WeatherWindow:   time.Minute,
			WeatherErrorPct: 50,
			State:           state,
			Version:         "integration",
		},
		logger,
	)
	srv := httptest.NewServer(NewRouter(handler, RouterConfig{
		SecretID:       testSecretID,
		Tokens:         tokens,
		LoginLimiter:   NewClientLimiter(rate.Limit(100), 100),
		RequestTimeout: 5 * time.Second,
		InFlight:       inFlight,
		Logger:         logger,
	}))
	t.Cleanup(srv.Close)

	return &liveServer{url: srv.URL, upstream: upstream, state: state, inFlight: inFlight}
}

func (s *liveServer) call(t *testing.T, method, path, body, token string) (int, []byte) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, s.url+path, rdr)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, data
}

func (s *liveServer) login(t *testing.T, username string) string {
	t.Helper()
	code, data := s.call(t, http.MethodPost, withSecret("/login"), fmt.Sprintf(`{"username":%q,"password":"password123"}`, username), "")
	if code != http.StatusOK {
		t.Fatalf("login %s: status %d body %s", username, code, data)
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	return resp.Token
}

func TestIntegration_NewsLifecycle(t *testing.T) {
	s := startLiveServer(t)
	editor := s.login(t, "editor")
	admin := s.login(t, "admin")

	code, data := s.call(t, http.MethodPost, withSecret("/news"), `{"title":"Integration headline","content":"Integration content body"}`, editor)
	if code != http.StatusCreated {
		t.Fatalf("create: status %d body %s", code, data)
	}
	var created models.NewsItem
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("decode create: %v", err)
	}
	path := fmt.Sprintf("/news/%d", created.ID)

	code, data = s.call(t, http.MethodGet, withSecret("/news"), "", "")
	if code != http.StatusOK {
		t.Fatalf("list: status %d", code)
	}
	var view models.AggregatedView
	if err := json.Unmarshal(data, &view); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(view.News) != 1 || view.News[0].Title != "Integration headline" {
		t.Errorf("news = %+v", view.News)
	}
	if want := "It's scattered clouds in London with a temperature of 291.4K."; view.WeatherSummary != want {
		t.Errorf("summary = %q, want %q", view.WeatherSummary, want)
	}

	if code, _ = s.call(t, http.MethodPut, withSecret(path), `{"title":"Revised headline","content":"Revised content body"}`, editor); code != http.StatusNoContent {
		t.Errorf("update: status %d", code)
	}
	if code, _ = s.call(t, http.MethodDelete, withSecret(path), "", editor); code != http.StatusForbidden {
		t.Errorf("editor delete: status %d, want 403", code)
	}
	if code, _ = s.call(t, http.MethodDelete, withSecret(path), "", admin); code != http.StatusNoContent {
		t.Errorf("admin delete: status %d", code)
	}
	if code, _ = s.call(t, http.MethodGet, withSecret(path), "", ""); code != http.StatusNotFound {
		t.Errorf("get after delete: status %d, want 404", code)
	}
}

func TestIntegration_WeatherOutageDegradesThenBreakerOpens(t *testing.T) {
	s := startLiveServer(t)
	s.upstream.failing.Store(true)

	for i := 0; i < 4; i++ {
		code, data := s.call(t, http.MethodGet, withSecret("/news"), "", "")
		if code != http.StatusOK {
			t.Fatalf("request %d: status %d", i, code)
		}
		var view models.AggregatedView
		_ = json.Unmarshal(data, &view)
		if view.WeatherSummary != service.UnavailableSummary {
			t.Errorf("request %d: summary = %q", i, view.WeatherSummary)
		}
	}
	if got := s.upstream.calls.Load(); got != 2 {
		t.Errorf("upstream calls = %d, want 2 (breaker should open after 2 failures)", got)
	}

	code, data := s.call(t, http.MethodGet, withSecret("/health"), "", "")
	if code != http.StatusOK || !strings.Contains(string(data), `"degraded"`) {
		t.Errorf("health: status %d body %s, want 200 degraded", code, data)
	}
}

func TestIntegration_ConcurrentCreates(t *testing.T) {
	s := startLiveServer(t)
	editor := s.login(t, "editor")

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			code, data := s.call(t, http.MethodPost, withSecret("/news"), fmt.Sprintf(`{"title":"Concurrent headline %02d","content":"Concurrent content body"}`, i), editor)
			if code != http.StatusCreated {
				errs <- fmt.Sprintf("create %d: status %d body %s", i, code, data)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Error(e)
	}

	_, data := s.call(t, http.MethodGet, withSecret("/news"), "", "")
	var view models.AggregatedView
	if err := json.Unmarshal(data, &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(view.News) != n {
		t.Fatalf("news count = %d, want %d", len(view.News), n)
	}
	seen := make(map[int64]bool, n)
	for _, item := range view.News {
		if seen[item.ID] {
			t.Errorf("duplicate id %d", item.ID)
		}
		seen[item.ID] = true
	}
	if got := s.inFlight.Count(); got != 0 {
		t.Errorf("in-flight after completion = %d, want 0", got)
	}
}

func TestIntegration_ShuttingDown(t *testing.T) {
	s := startLiveServer(t)
	s.state.SetShuttingDown(true)

	code, data := s.call(t, http.MethodGet, withSecret("/health"), "", "")
	if code != http.StatusServiceUnavailable || !strings.Contains(string(data), "shutting-down") {
		t.Errorf("health: status %d body %s", code, data)
	}
	if code, _ := s.call(t, http.MethodGet, "/health", "", ""); code != http.StatusForbidden {
		t.Errorf("health without secret: status %d, want 403", code)
	}
}
