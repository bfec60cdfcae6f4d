package scraper

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"github.com/crdatos/hemeroteca/app/store"
	"golang.org/x/exp/slog"
)

// Source lists and parses articles of a single news outlet.
type Source interface {
	// Name returns the outlet identifier, e.g. "crhoy".
	Name() string
	// ListURLs returns article URLs published on the given YYYY-MM-DD date.
	ListURLs(ctx context.Context, date string) ([]string, error)
	// Parse extracts an article from the outlet's HTML page.
	Parse(rd io.Reader, u string) (store.Article, error)
}

// NewSource creates a source for the outlet with the given name.
func NewSource(name string, lg *slog.Logger, f *Fetcher) (Source, error) {
	switch name {
	case SourceCRHoy:
		return NewCRHoy(lg, f), nil
	case SourceDiarioExtra:
		return NewDiarioExtra(lg, f), nil
	default:
		return nil, fmt.Errorf("unknown source %q", name)
	}
}

// Supported outlet names.
const (
	SourceCRHoy       = "crhoy"
	SourceDiarioExtra = "diarioextra"
)

func domainOf(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return ""
	}
	return parsed.Host
}
