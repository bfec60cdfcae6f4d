// Package store contains entities and services to process and contain them.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is an error that is returned when the requested entity is not found.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned on Put when an article with the same URL is already stored.
var ErrAlreadyExists = errors.New("already exists")

// Interface defines methods for store
type Interface interface {
	Put(ctx context.Context, a Article) error
	Get(ctx context.Context, url string) (Article, error)
	List(ctx context.Context, req ListRequest) ([]Article, error)
	Delete(ctx context.Context, url string) error
}

// ListRequest defines parameters for listing articles from store.
type ListRequest struct {
	Date   string // YYYY-MM-DD, empty for any date
	Source string // outlet name, empty for any outlet
}

// Article is a struct that contains a single scraped news article.
type Article struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Subtitle    string    `json:"subtitle"`
	Body        string    `json:"body"`
	Author      string    `json:"author,omitempty"`
	AuthorEmail string    `json:"author_email,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	URL         string    `json:"url"`
	Domain      string    `json:"domain"`
	Source      string    `json:"source"`
	Bias        string    `json:"bias,omitempty"`
	ScrapedAt   time.Time `json:"scraped_at"`
}

// Date returns the publication date in YYYY-MM-DD form.
func (a Article) Date() string { return a.PublishedAt.UTC().Format("2006-01-02") }
