package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/kjstillabower/weather-news-api/internal/models"
)

// runRecordStoreContract exercises the RecordStore behaviour every backend must share.
func runRecordStoreContract(t *testing.T, s RecordStore) {
	t.Helper()
	ctx := context.Background()

	items, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() on empty store error = %v", err)
	}
	if items == nil || len(items) != 0 {
		t.Fatalf("List() on empty store = %v, want empty non-nil slice", items)
	}

	published := time.Date(2025, 1, 2, 3, 4, 5, 6_000_000, time.UTC)
	first := &models.NewsItem{Title: "First headline", Content: "First body text", PublishedAt: published}
	second := &models.NewsItem{Title: "Second headline", Content: "Second body text", PublishedAt: published}
	if err := s.Create(ctx, first); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := s.Create(ctx, second); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if first.ID == 0 || second.ID <= first.ID {
		t.Fatalf("Create() ids = %d, %d, want increasing non-zero", first.ID, second.ID)
	}

	got, err := s.Get(ctx, first.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Title != first.Title || got.Content != first.Content {
		t.Errorf("Get() = %+v, want %+v", got, *first)
	}
	if !got.PublishedAt.Equal(published) {
		t.Errorf("Get().PublishedAt = %v, want %v", got.PublishedAt, published)
	}

	if err := s.Update(ctx, first.ID, "Updated headline", "Updated body text"); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	got, _ = s.Get(ctx, first.ID)
	if got.Title != "Updated headline" || got.Content != "Updated body text" {
		t.Errorf("after Update() Get() = %+v", got)
	}

	items, err = s.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(items) != 2 || items[0].ID != first.ID || items[1].ID != second.ID {
		t.Fatalf("List() = %+v, want [%d %d] in order", items, first.ID, second.ID)
	}

	if err := s.Delete(ctx, first.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Get(ctx, first.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after Delete() error = %v, want ErrNotFound", err)
	}

	const missing = 999999
	if _, err := s.Get(ctx, missing); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
	if err := s.Update(ctx, missing, "x", "y"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update(missing) error = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, missing); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete(missing) error = %v, want ErrNotFound", err)
	}
	if err := s.Ping(ctx); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestMemoryStore_Contract(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	runRecordStoreContract(t, s)
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.List(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("List() error = %v, want context.Canceled", err)
	}
}

func TestSQLiteStore_Contract(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "news.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	defer s.Close()
	runRecordStoreContract(t, s)
}

func TestSQLiteStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "news.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	item := &models.NewsItem{Title: "Persisted headline", Content: "Persisted body", PublishedAt: time.Now()}
	if err := s.Create(context.Background(), item); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	_ = s.Close()

	s, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() reopen error = %v", err)
	}
	defer s.Close()
	got, err := s.Get(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("Get() after reopen error = %v", err)
	}
	if got.Title != item.Title {
		t.Errorf("Get().Title = %q, want %q", got.Title, item.Title)
	}
}

func TestSQLiteStore_ConcurrentCreates(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "news.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	defer s.Close()

	const n = 200
	ctx := context.Background()
	var wg sync.WaitGroup
	errs := make(chan error, n)
	ids := make(chan int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			item := &models.NewsItem{
				Title:       fmt.Sprintf("Concurrent headline %03d", i),
				Content:     "Concurrent body text",
				PublishedAt: time.Now(),
			}
			if err := s.Create(ctx, item); err != nil {
				errs <- err
				return
			}
			ids <- item.ID
		}(i)
	}
	wg.Wait()
	close(errs)
	close(ids)

	failures := 0
	for err := range errs {
		if failures == 0 {
			t.Errorf("Create() error = %v", err)
		}
		failures++
	}
	if failures > 0 {
		t.Fatalf("%d of %d concurrent creates failed", failures, n)
	}
	seen := make(map[int64]bool, n)
	for id := range ids {
		if seen[id] {
			t.Errorf("duplicate id %d", id)
		}
		seen[id] = true
	}
	items, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(items) != n {
		t.Errorf("List() len = %d, want %d", len(items), n)
	}
}

func TestSQLiteDSN(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"news.db", "file:news.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"},
		{"file:news.db?cache=shared", "file:news.db?cache=shared&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"},
		{":memory:", "file::memory:?_pragma=busy_timeout(5000)"},
	}
	for _, tt := range tests {
		if got := sqliteDSN(tt.path); got != tt.want {
			t.Errorf("sqliteDSN(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestSQLiteStore_ClosedDBErrors(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "news.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	_ = s.Close()
	if _, err := s.List(context.Background()); err == nil {
		t.Error("List() on closed db expected error")
	}
}

// TestPostgresStore_Contract runs against TEST_DATABASE_URL; it truncates news_items.
func TestPostgresStore_Contract(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping postgres store test")
	}
	ctx := context.Background()
	s, err := OpenPostgres(ctx, url)
	if err != nil {
		t.Fatalf("OpenPostgres() error = %v", err)
	}
	defer s.Close()
	if _, err := s.pool.Exec(ctx, `TRUNCATE news_items RESTART IDENTITY`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	runRecordStoreContract(t, s)
}
