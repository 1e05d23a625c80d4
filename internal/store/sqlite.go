package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kjstillabower/weather-news-api/internal/models"
)

// sqliteBusyTimeoutMs is how long a connection waits for a competing writer's lock.
const sqliteBusyTimeoutMs = 5000

// SQLiteStore implements RecordStore on a SQLite database file.
// published_at is stored as Unix milliseconds.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies the schema.
// Pragmas go in the DSN so they apply to every pooled connection.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if path == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS news_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		published_at INTEGER NOT NULL
	);`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// sqliteDSN appends the busy timeout and, for files, WAL pragmas to path.
func sqliteDSN(path string) string {
	busy := "_pragma=busy_timeout(" + strconv.Itoa(sqliteBusyTimeoutMs) + ")"
	if path == ":memory:" {
		return "file::memory:?" + busy
	}
	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + busy + "&_pragma=journal_mode(WAL)"
}

// List returns all rows ordered by id.
func (s *SQLiteStore) List(ctx context.Context) ([]models.NewsItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, content, published_at FROM news_items ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list news: %w", err)
	}
	defer rows.Close()

	items := []models.NewsItem{}
	for rows.Next() {
		var it models.NewsItem
		var publishedMs int64
		if err := rows.Scan(&it.ID, &it.Title, &it.Content, &publishedMs); err != nil {
			return nil, fmt.Errorf("list news: scan: %w", err)
		}
		it.PublishedAt = time.UnixMilli(publishedMs).UTC()
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list news: %w", err)
	}
	return items, nil
}

// Get returns the row with id, or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, id int64) (models.NewsItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, content, published_at FROM news_items WHERE id = ?`, id)
	var it models.NewsItem
	var publishedMs int64
	if err := row.Scan(&it.ID, &it.Title, &it.Content, &publishedMs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.NewsItem{}, ErrNotFound
		}
		return models.NewsItem{}, fmt.Errorf("get news %d: %w", id, err)
	}
	it.PublishedAt = time.UnixMilli(publishedMs).UTC()
	return it, nil
}

// Create inserts item and sets item.ID to the new rowid.
func (s *SQLiteStore) Create(ctx context.Context, item *models.NewsItem) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO news_items (title, content, published_at) VALUES (?, ?, ?)`,
		item.Title, item.Content, item.PublishedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("create news: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create news: last insert id: %w", err)
	}
	item.ID = id
	return nil
}

// Update rewrites title and content; ErrNotFound when no row matched.
func (s *SQLiteStore) Update(ctx context.Context, id int64, title, content string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE news_items SET title = ?, content = ? WHERE id = ?`, title, content, id)
	if err != nil {
		return fmt.Errorf("update news %d: %w", id, err)
	}
	return requireAffected(res, id)
}

// Delete removes the row with id; ErrNotFound when no row matched.
func (s *SQLiteStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM news_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete news %d: %w", id, err)
	}
	return requireAffected(res, id)
}

func requireAffected(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("news %d: rows affected: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping checks that a connection to the database file can be obtained.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
