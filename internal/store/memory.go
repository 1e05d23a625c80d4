package store

import (
	"context"
	"sort"
	"sync"

	"github.com/kjstillabower/weather-news-api/internal/models"
)

// MemoryStore implements RecordStore in process memory. Ids start at 1 and are never reused.
type MemoryStore struct {
	mu     sync.RWMutex
	items  map[int64]models.NewsItem
	nextID int64
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[int64]models.NewsItem), nextID: 1}
}

// List returns a copy of every item, ordered by id.
func (s *MemoryStore) List(ctx context.Context) ([]models.NewsItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.NewsItem, 0, len(s.items))
	for _, it := range s.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Get returns the item with id, or ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, id int64) (models.NewsItem, error) {
	if err := ctx.Err(); err != nil {
		return models.NewsItem{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[id]
	if !ok {
		return models.NewsItem{}, ErrNotFound
	}
	return it, nil
}

// Create assigns the next id to item and stores a copy.
func (s *MemoryStore) Create(ctx context.Context, item *models.NewsItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	item.ID = s.nextID
	s.nextID++
	s.items[item.ID] = *item
	return nil
}

// Update replaces the title and content of an existing item.
func (s *MemoryStore) Update(ctx context.Context, id int64, title, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return ErrNotFound
	}
	it.Title = title
	it.Content = content
	s.items[id] = it
	return nil
}

// Delete removes the item with id, or returns ErrNotFound.
func (s *MemoryStore) Delete(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return ErrNotFound
	}
	delete(s.items, id)
	return nil
}

// Ping only reports a cancelled context.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
