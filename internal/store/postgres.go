package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kjstillabower/weather-news-api/internal/models"
)

// PostgresStore implements RecordStore on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to databaseURL and applies the schema.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS news_items (
			id BIGSERIAL PRIMARY KEY,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			published_at TIMESTAMPTZ NOT NULL
		)`); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// List returns all rows ordered by id.
func (s *PostgresStore) List(ctx context.Context) ([]models.NewsItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, title, content, published_at FROM news_items ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list news: %w", err)
	}
	items, err := pgx.CollectRows(rows, scanNewsItem)
	if err != nil {
		return nil, fmt.Errorf("list news: %w", err)
	}
	if items == nil {
		items = []models.NewsItem{}
	}
	return items, nil
}

func scanNewsItem(row pgx.CollectableRow) (models.NewsItem, error) {
	var it models.NewsItem
	err := row.Scan(&it.ID, &it.Title, &it.Content, &it.PublishedAt)
	it.PublishedAt = it.PublishedAt.UTC()
	return it, err
}

// Get returns the row with id, or ErrNotFound.
func (s *PostgresStore) Get(ctx context.Context, id int64) (models.NewsItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, title, content, published_at FROM news_items WHERE id = $1`, id)
	if err != nil {
		return models.NewsItem{}, fmt.Errorf("get news %d: %w", id, err)
	}
	it, err := pgx.CollectExactlyOneRow(rows, scanNewsItem)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.NewsItem{}, ErrNotFound
		}
		return models.NewsItem{}, fmt.Errorf("get news %d: %w", id, err)
	}
	return it, nil
}

// Create inserts item and sets item.ID from RETURNING id.
func (s *PostgresStore) Create(ctx context.Context, item *models.NewsItem) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO news_items (title, content, published_at) VALUES ($1, $2, $3) RETURNING id`,
		item.Title, item.Content, item.PublishedAt).Scan(&item.ID)
	if err != nil {
		return fmt.Errorf("create news: %w", err)
	}
	return nil
}

// Update rewrites title and content; ErrNotFound when no row matched.
func (s *PostgresStore) Update(ctx context.Context, id int64, title, content string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE news_items SET title = $1, content = $2 WHERE id = $3`, title, content, id)
	if err != nil {
		return fmt.Errorf("update news %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the row with id; ErrNotFound when no row matched.
func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM news_items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete news %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping acquires a pooled connection and pings the server.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the pool. It always returns nil.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
