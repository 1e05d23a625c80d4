package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-news-api/internal/models"
	"github.com/kjstillabower/weather-news-api/internal/observability"
	"github.com/kjstillabower/weather-news-api/internal/store"
	"github.com/kjstillabower/weather-news-api/internal/validation"
)

// NewsService implements news CRUD on top of a RecordStore. Payloads are validated
// before the store is touched; store errors are returned wrapped, with ErrNotFound intact.
type NewsService struct {
	store store.RecordStore
	now   func() time.Time
}

// NewNewsService returns a NewsService. A nil now uses time.Now.
func NewNewsService(records store.RecordStore, now func() time.Time) *NewsService {
	if now == nil {
		now = time.Now
	}
	return &NewsService{store: records, now: now}
}

// Create validates in and stores a new item published now (UTC, millisecond precision).
func (s *NewsService) Create(ctx context.Context, in models.NewsInput) (models.NewsItem, error) {
	if err := validation.ValidateNews(in); err != nil {
		return models.NewsItem{}, err
	}
	item := models.NewsItem{
		Title:       in.Title,
		Content:     in.Content,
		PublishedAt: s.now().UTC().Truncate(time.Millisecond),
	}
	err := s.store.Create(ctx, &item)
	observability.RecordStoreOperation("create", err)
	if err != nil {
		return models.NewsItem{}, fmt.Errorf("create news: %w", err)
	}
	observability.LoggerFromContext(ctx).Info("news created", zap.Int64("id", item.ID))
	return item, nil
}

// Get returns the item with id or store.ErrNotFound.
func (s *NewsService) Get(ctx context.Context, id int64) (models.NewsItem, error) {
	item, err := s.store.Get(ctx, id)
	observability.RecordStoreOperation("get", err)
	if err != nil {
		return models.NewsItem{}, fmt.Errorf("get news %d: %w", id, err)
	}
	return item, nil
}

// Update validates in and replaces title and content of item id. PublishedAt is unchanged.
func (s *NewsService) Update(ctx context.Context, id int64, in models.NewsInput) error {
	if err := validation.ValidateNews(in); err != nil {
		return err
	}
	err := s.store.Update(ctx, id, in.Title, in.Content)
	observability.RecordStoreOperation("update", err)
	if err != nil {
		return fmt.Errorf("update news %d: %w", id, err)
	}
	return nil
}

// Delete removes item id. The request is logged with the requesting user before the
// store is touched, so attempts on missing ids are audited too.
func (s *NewsService) Delete(ctx context.Context, id int64, requestedBy string) error {
	observability.LoggerFromContext(ctx).Info("news deletion requested",
		zap.Int64("id", id),
		zap.String("user", requestedBy))
	err := s.store.Delete(ctx, id)
	observability.RecordStoreOperation("delete", err)
	if err != nil {
		return fmt.Errorf("delete news %d: %w", id, err)
	}
	return nil
}
