package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/kjstillabower/weather-news-api/internal/models"
	"github.com/kjstillabower/weather-news-api/internal/observability"
)

// WeatherClient fetches current conditions for a location. Every failure wraps
// ErrWeatherUnavailable; callers need not distinguish causes.
type WeatherClient interface {
	FetchWeather(ctx context.Context, location string) (models.WeatherSnapshot, error)
}

var (
	// ErrWeatherUnavailable wraps every FetchWeather failure.
	ErrWeatherUnavailable = errors.New("weather unavailable")

	ErrInvalidAPIKey     = errors.New("invalid API key")
	ErrLocationNotFound  = errors.New("location not found")
	ErrUpstreamFailure   = errors.New("upstream failure")
	ErrRateLimited       = errors.New("rate limited")
	ErrMalformedResponse = errors.New("malformed response")
	ErrCircuitOpen       = errors.New("circuit breaker open")
)

// maxBodyBytes caps how much of an upstream response is read.
const maxBodyBytes = 1 << 20

// OpenWeatherClient calls the OpenWeatherMap current weather endpoint once per fetch, without retries.
type OpenWeatherClient struct {
	apiKey  string
	apiURL  string
	timeout time.Duration
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewOpenWeatherClient validates the key and returns a client whose calls are bounded by timeout.
func NewOpenWeatherClient(apiKey, apiURL string, timeout time.Duration) (*OpenWeatherClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if _, err := url.Parse(apiURL); err != nil || apiURL == "" {
		return nil, fmt.Errorf("invalid API URL %q", apiURL)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("weather client timeout must be positive")
	}

	return &OpenWeatherClient{
		apiKey:  apiKey,
		apiURL:  apiURL,
		timeout: timeout,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// SetCircuitBreaker routes every call through cb. Calls rejected by an open breaker
// fail with ErrCircuitOpen without touching the network.
func (c *OpenWeatherClient) SetCircuitBreaker(cb *gobreaker.CircuitBreaker) {
	c.breaker = cb
}

type openWeatherResponse struct {
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity int     `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Name string `json:"name"`
}

// FetchWeather returns current conditions for location, temperature in Kelvin.
func (c *OpenWeatherClient) FetchWeather(ctx context.Context, location string) (models.WeatherSnapshot, error) {
	var (
		snap models.WeatherSnapshot
		err  error
	)
	if c.breaker != nil {
		var res interface{}
		res, err = c.breaker.Execute(func() (interface{}, error) {
			return c.callAPI(ctx, location)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			observability.WeatherAPICallsTotal.WithLabelValues("circuit_open").Inc()
			err = fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		if err == nil {
			snap = res.(models.WeatherSnapshot)
		}
	} else {
		snap, err = c.callAPI(ctx, location)
	}
	if err != nil {
		return models.WeatherSnapshot{}, fmt.Errorf("%w: %w", ErrWeatherUnavailable, err)
	}
	return snap, nil
}

func (c *OpenWeatherClient) callAPI(ctx context.Context, location string) (models.WeatherSnapshot, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, location)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		return models.WeatherSnapshot{}, fmt.Errorf("build request: %w", err)
	}

	if corrID := observability.CorrelationIDFromContext(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		observability.WeatherAPIDuration.WithLabelValues("error").Observe(duration)

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return models.WeatherSnapshot{}, fmt.Errorf("request timeout: %w", err)
		}
		return models.WeatherSnapshot{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(status).Observe(duration)

	if err := handleErrorResponse(resp); err != nil {
		return models.WeatherSnapshot{}, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return models.WeatherSnapshot{}, fmt.Errorf("read response body: %w", err)
	}

	var apiResp openWeatherResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return models.WeatherSnapshot{}, fmt.Errorf("%w: parse response: %v", ErrMalformedResponse, err)
	}

	return mapResponse(apiResp, location)
}

func (c *OpenWeatherClient) buildRequest(ctx context.Context, location string) (*http.Request, error) {
	baseURL, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	params := baseURL.Query()
	params.Set("q", location)
	params.Set("appid", c.apiKey)
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}

func handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: HTTP 401", ErrInvalidAPIKey)
	case http.StatusNotFound:
		return fmt.Errorf("%w: HTTP 404", ErrLocationNotFound)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: HTTP 429", ErrRateLimited)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}

	return nil
}

// mapResponse requires at least one condition entry; a body without one is malformed.
func mapResponse(apiResp openWeatherResponse, location string) (models.WeatherSnapshot, error) {
	if len(apiResp.Weather) == 0 {
		return models.WeatherSnapshot{}, fmt.Errorf("%w: no weather conditions", ErrMalformedResponse)
	}
	description := apiResp.Weather[0].Description
	if description == "" {
		description = apiResp.Weather[0].Main
	}
	if description == "" {
		return models.WeatherSnapshot{}, fmt.Errorf("%w: empty condition description", ErrMalformedResponse)
	}

	name := apiResp.Name
	if name == "" {
		name = location
	}

	return models.WeatherSnapshot{
		LocationName:      name,
		TemperatureKelvin: apiResp.Main.Temp,
		HumidityPercent:   apiResp.Main.Humidity,
		Description:       description,
	}, nil
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
