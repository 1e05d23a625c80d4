package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/weather-news-api/internal/client"
	"github.com/kjstillabower/weather-news-api/internal/models"
	"github.com/kjstillabower/weather-news-api/internal/observability"
	"github.com/kjstillabower/weather-news-api/internal/store"
	"github.com/kjstillabower/weather-news-api/internal/traffic"
)

type mockWeatherClient struct {
	snap      models.WeatherSnapshot
	err       error
	locations []string
	// fetch overrides snap/err when set.
	fetch func(ctx context.Context) (models.WeatherSnapshot, error)
}

func (m *mockWeatherClient) FetchWeather(ctx context.Context, location string) (models.WeatherSnapshot, error) {
	m.locations = append(m.locations, location)
	if m.fetch != nil {
		return m.fetch(ctx)
	}
	return m.snap, m.err
}

// barrierStore blocks List until the weather fetch has started.
type barrierStore struct {
	*store.MemoryStore
	weatherStarted <-chan struct{}
}

func (b *barrierStore) List(ctx context.Context) ([]models.NewsItem, error) {
	select {
	case <-b.weatherStarted:
	case <-time.After(2 * time.Second):
		return nil, errors.New("weather fetch never started concurrently")
	}
	return b.MemoryStore.List(ctx)
}

func seededStore(t *testing.T, n int) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore()
	for i := 0; i < n; i++ {
		item := models.NewsItem{
			Title:       fmt.Sprintf("Headline number %d", i+1),
			Content:     "Some sufficiently long content",
			PublishedAt: time.Now().UTC(),
		}
		if err := s.Create(context.Background(), &item); err != nil {
			t.Fatalf("seed Create() error = %v", err)
		}
	}
	return s
}

func londonSnapshot() models.WeatherSnapshot {
	return models.WeatherSnapshot{
		LocationName:      "London",
		TemperatureKelvin: 283.15,
		HumidityPercent:   70,
		Description:       "light rain",
	}
}

func TestBuildAggregatedView_Success(t *testing.T) {
	weather := &mockWeatherClient{snap: londonSnapshot()}
	tracker := traffic.NewTracker(time.Minute, nil)
	agg := NewAggregator(seededStore(t, 2), weather, "London", time.Second, tracker)

	view, err := agg.BuildAggregatedView(context.Background())
	if err != nil {
		t.Fatalf("BuildAggregatedView() error = %v", err)
	}
	if len(view.News) != 2 || view.News[0].ID != 1 || view.News[1].ID != 2 {
		t.Errorf("News = %+v, want ids [1 2]", view.News)
	}
	want := "It's light rain in London with a temperature of 283.15K."
	if view.WeatherSummary != want {
		t.Errorf("WeatherSummary = %q, want %q", view.WeatherSummary, want)
	}
	if view.Temperature != 283.15 {
		t.Errorf("Temperature = %v, want 283.15", view.Temperature)
	}
	if len(weather.locations) != 1 || weather.locations[0] != "London" {
		t.Errorf("weather locations = %v, want [London]", weather.locations)
	}
	if errs, total := tracker.ErrorRate(time.Minute); errs != 0 || total != 1 {
		t.Errorf("tracker = (%d, %d), want (0, 1)", errs, total)
	}
}

func TestBuildAggregatedView_EmptyStore(t *testing.T) {
	agg := NewAggregator(store.NewMemoryStore(), &mockWeatherClient{snap: londonSnapshot()}, "London", time.Second, nil)
	view, err := agg.BuildAggregatedView(context.Background())
	if err != nil {
		t.Fatalf("BuildAggregatedView() error = %v", err)
	}
	if view.News == nil || len(view.News) != 0 {
		t.Errorf("News = %#v, want empty non-nil slice", view.News)
	}
}

func TestBuildAggregatedView_WeatherUnavailable(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	ctx := observability.WithLogger(context.Background(), zap.New(core))

	weather := &mockWeatherClient{err: fmt.Errorf("%w: %w", client.ErrWeatherUnavailable, client.ErrUpstreamFailure)}
	tracker := traffic.NewTracker(time.Minute, nil)
	agg := NewAggregator(seededStore(t, 1), weather, "London", time.Second, tracker)

	view, err := agg.BuildAggregatedView(ctx)
	if err != nil {
		t.Fatalf("BuildAggregatedView() error = %v, weather failure must not fail the view", err)
	}
	if view.WeatherSummary != UnavailableSummary {
		t.Errorf("WeatherSummary = %q, want %q", view.WeatherSummary, UnavailableSummary)
	}
	if view.Temperature != 0 {
		t.Errorf("Temperature = %v, want 0", view.Temperature)
	}
	if len(view.News) != 1 {
		t.Errorf("News len = %d, want 1", len(view.News))
	}
	if n := logs.FilterMessage("weather unavailable, serving placeholder").Len(); n != 1 {
		t.Errorf("warn log entries = %d, want 1", n)
	}
	if errs, total := tracker.ErrorRate(time.Minute); errs != 1 || total != 1 {
		t.Errorf("tracker = (%d, %d), want (1, 1)", errs, total)
	}
}

func TestBuildAggregatedView_StoreFailure(t *testing.T) {
	boom := errors.New("connection refused")
	agg := NewAggregator(&failingStore{err: boom}, &mockWeatherClient{snap: londonSnapshot()}, "London", time.Second, nil)

	_, err := agg.BuildAggregatedView(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("BuildAggregatedView() error = %v, want store error", err)
	}
}

func TestBuildAggregatedView_StoreAndWeatherFailure(t *testing.T) {
	boom := errors.New("connection refused")
	weather := &mockWeatherClient{err: client.ErrWeatherUnavailable}
	agg := NewAggregator(&failingStore{err: boom}, weather, "London", time.Second, nil)

	if _, err := agg.BuildAggregatedView(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("BuildAggregatedView() error = %v, want store error", err)
	}
}

// TestBuildAggregatedView_Concurrent verifies the listing waits on the weather fetch having
// started, which only succeeds when both run at the same time.
func TestBuildAggregatedView_Concurrent(t *testing.T) {
	started := make(chan struct{})
	weather := &mockWeatherClient{fetch: func(ctx context.Context) (models.WeatherSnapshot, error) {
		close(started)
		return londonSnapshot(), nil
	}}
	s := &barrierStore{MemoryStore: seededStore(t, 1), weatherStarted: started}
	agg := NewAggregator(s, weather, "London", time.Second, nil)

	view, err := agg.BuildAggregatedView(context.Background())
	if err != nil {
		t.Fatalf("BuildAggregatedView() error = %v", err)
	}
	if len(view.News) != 1 {
		t.Errorf("News len = %d, want 1", len(view.News))
	}
}

// TestBuildAggregatedView_WeatherTimeoutIgnoresCallerCancel verifies the weather fetch gets
// its own deadline and is not cut short by the caller's context.
func TestBuildAggregatedView_WeatherTimeoutIgnoresCallerCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var sawDeadline bool
	weather := &mockWeatherClient{fetch: func(wctx context.Context) (models.WeatherSnapshot, error) {
		if err := wctx.Err(); err != nil {
			return models.WeatherSnapshot{}, err
		}
		_, sawDeadline = wctx.Deadline()
		return londonSnapshot(), nil
	}}
	agg := NewAggregator(&failingStore{err: context.Canceled}, weather, "London", 500*time.Millisecond, nil)

	_, _ = agg.BuildAggregatedView(ctx)
	if !sawDeadline {
		t.Error("weather context had no deadline or was already cancelled")
	}
}

func TestFormatSummary(t *testing.T) {
	tests := []struct {
		name string
		snap models.WeatherSnapshot
		want string
	}{
		{
			name: "fractional",
			snap: models.WeatherSnapshot{LocationName: "London", TemperatureKelvin: 283.15, Description: "light rain"},
			want: "It's light rain in London with a temperature of 283.15K.",
		},
		{
			name: "whole number",
			snap: models.WeatherSnapshot{LocationName: "London", TemperatureKelvin: 290, Description: "clear sky"},
			want: "It's clear sky in London with a temperature of 290K.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatSummary(tt.snap); got != tt.want {
				t.Errorf("FormatSummary() = %q, want %q", got, tt.want)
			}
		})
	}
}
