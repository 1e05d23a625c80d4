package models

import "time"

// NewsItem is a stored news record.
type NewsItem struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	PublishedAt time.Time `json:"publishedAt"`
}

// NewsInput is the create/update payload.
type NewsInput struct {
	Title   string `json:"title" validate:"min=10"`
	Content string `json:"content" validate:"min=10"`
}
