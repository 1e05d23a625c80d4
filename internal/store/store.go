package store

import (
	"context"
	"errors"

	"github.com/kjstillabower/weather-news-api/internal/models"
)

// ErrNotFound is returned when no record has the requested id.
var ErrNotFound = errors.New("news item not found")

// RecordStore persists news items. Implementations must be safe for concurrent use.
type RecordStore interface {
	// List returns all items ordered by id ascending.
	List(ctx context.Context) ([]models.NewsItem, error)
	Get(ctx context.Context, id int64) (models.NewsItem, error)
	// Create assigns item.ID.
	Create(ctx context.Context, item *models.NewsItem) error
	Update(ctx context.Context, id int64, title, content string) error
	Delete(ctx context.Context, id int64) error
	Ping(ctx context.Context) error
	Close() error
}
