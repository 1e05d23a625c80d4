package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kjstillabower/weather-news-api/internal/client"
	"github.com/kjstillabower/weather-news-api/internal/models"
	"github.com/kjstillabower/weather-news-api/internal/observability"
	"github.com/kjstillabower/weather-news-api/internal/store"
	"github.com/kjstillabower/weather-news-api/internal/traffic"
)

// UnavailableSummary replaces the weather line when the fetch fails.
const UnavailableSummary = "Weather data is unavailable."

// Aggregator builds the GET /news view from the record store and the weather client.
type Aggregator struct {
	store    store.RecordStore
	weather  client.WeatherClient
	location string
	timeout  time.Duration
	tracker  *traffic.Tracker
}

// NewAggregator returns an Aggregator that always reports weather for location.
// The weather fetch is bounded by timeout independently of the caller's context.
// tracker may be nil.
func NewAggregator(records store.RecordStore, weather client.WeatherClient, location string, timeout time.Duration, tracker *traffic.Tracker) *Aggregator {
	return &Aggregator{
		store:    records,
		weather:  weather,
		location: location,
		timeout:  timeout,
		tracker:  tracker,
	}
}

// BuildAggregatedView lists all news and fetches the current weather concurrently, then
// merges them. A store failure fails the whole view; a weather failure only replaces the
// summary with UnavailableSummary and the temperature with 0.
func (a *Aggregator) BuildAggregatedView(ctx context.Context) (models.AggregatedView, error) {
	start := time.Now()
	logger := observability.LoggerFromContext(ctx)

	var (
		g          errgroup.Group
		items      []models.NewsItem
		snap       models.WeatherSnapshot
		weatherErr error
	)

	g.Go(func() error {
		var err error
		items, err = a.store.List(ctx)
		observability.RecordStoreOperation("list", err)
		if err != nil {
			return fmt.Errorf("list news: %w", err)
		}
		return nil
	})

	// Weather outcome is inspected after Wait; this branch never fails the group.
	g.Go(func() error {
		wctx := context.WithoutCancel(ctx)
		if a.timeout > 0 {
			var cancel context.CancelFunc
			wctx, cancel = context.WithTimeout(wctx, a.timeout)
			defer cancel()
		}
		snap, weatherErr = a.weather.FetchWeather(wctx, a.location)
		return nil
	})

	if err := g.Wait(); err != nil {
		observability.AggregationDuration.WithLabelValues(weatherLabel(weatherErr)).Observe(time.Since(start).Seconds())
		return models.AggregatedView{}, err
	}

	if items == nil {
		items = []models.NewsItem{}
	}
	view := models.AggregatedView{News: items}

	if weatherErr != nil {
		category := client.CategorizeError(weatherErr)
		observability.WeatherUnavailableTotal.WithLabelValues(string(category)).Inc()
		if a.tracker != nil {
			a.tracker.RecordError()
		}
		logger.Warn("weather unavailable, serving placeholder",
			zap.String("location", a.location),
			zap.String("category", string(category)),
			zap.Error(weatherErr))
		view.WeatherSummary = UnavailableSummary
		view.Temperature = 0
	} else {
		if a.tracker != nil {
			a.tracker.RecordSuccess()
		}
		view.WeatherSummary = FormatSummary(snap)
		view.Temperature = snap.TemperatureKelvin
	}

	observability.AggregationDuration.WithLabelValues(weatherLabel(weatherErr)).Observe(time.Since(start).Seconds())
	logger.Debug("aggregated view built",
		zap.Int("news", len(items)),
		zap.Bool("weather", weatherErr == nil),
		zap.Duration("duration", time.Since(start)))
	return view, nil
}

// FormatSummary renders a snapshot as the summary line, e.g.
// "It's light rain in London with a temperature of 283.15K."
func FormatSummary(s models.WeatherSnapshot) string {
	return fmt.Sprintf("It's %s in %s with a temperature of %sK.",
		s.Description, s.LocationName, strconv.FormatFloat(s.TemperatureKelvin, 'f', -1, 64))
}

func weatherLabel(err error) string {
	if err != nil {
		return "unavailable"
	}
	return "available"
}
