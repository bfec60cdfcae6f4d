package scraper

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/crdatos/hemeroteca/app/store"
	cache "github.com/go-pkgz/expirable-cache/v2"
	"github.com/samber/lo"
	"golang.org/x/exp/slog"
)

// diarioextra.com publishes one XML sitemap per month, entries carry
// the publication date in lastmod.
const diarioExtraSitemapURL = "https://www.diarioextra.com/sitemap-posttype-portada.%s.xml"

// DiarioExtra scrapes diarioextra.com through its monthly XML sitemaps.
type DiarioExtra struct {
	log        *slog.Logger
	fetcher    *Fetcher
	sitemapURL string
	sitemaps   cache.Cache[string, []sitemapEntry]
}

// NewDiarioExtra creates new DiarioExtra source.
func NewDiarioExtra(lg *slog.Logger, f *Fetcher) *DiarioExtra {
	return &DiarioExtra{
		log:        lg,
		fetcher:    f,
		sitemapURL: diarioExtraSitemapURL,
		sitemaps: cache.NewCache[string, []sitemapEntry]().
			WithTTL(15 * time.Minute).
			WithMaxKeys(12),
	}
}

// Name returns the outlet identifier.
func (d *DiarioExtra) Name() string { return SourceDiarioExtra }

type sitemapEntry struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod"`
}

type urlset struct {
	URLs []sitemapEntry `xml:"url"`
}

// ListURLs returns article URLs whose lastmod falls on the given date.
func (d *DiarioExtra) ListURLs(ctx context.Context, date string) ([]string, error) {
	month := strings.ReplaceAll(date[:len("2006-01")], "-", "")

	entries, ok := d.sitemaps.Get(month)
	if !ok {
		bts, err := d.fetcher.Fetch(ctx, fmt.Sprintf(d.sitemapURL, month))
		if err != nil {
			return nil, fmt.Errorf("fetch sitemap: %w", err)
		}

		var set urlset
		if err := xml.Unmarshal(bts, &set); err != nil {
			return nil, fmt.Errorf("unmarshal sitemap: %w", err)
		}

		entries = set.URLs
		d.sitemaps.Set(month, entries, 0)
	}

	urls := lo.FilterMap(entries, func(e sitemapEntry, _ int) (string, bool) {
		mod, err := parseLastMod(e.LastMod)
		if err != nil {
			d.log.Warn("failed to parse lastmod",
				slog.String("lastmod", e.LastMod), slog.String("url", e.Loc), slog.Any("err", err))
			return "", false
		}
		return e.Loc, mod.Format("2006-01-02") == date && e.Loc != ""
	})

	return lo.Uniq(urls), nil
}

func parseLastMod(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized lastmod %q", s)
}

// Parse extracts an article from a diarioextra.com page.
func (d *DiarioExtra) Parse(rd io.Reader, u string) (store.Article, error) {
	doc, err := goquery.NewDocumentFromReader(rd)
	if err != nil {
		return store.Article{}, fmt.Errorf("parse html: %w", err)
	}

	a := store.Article{
		URL:    u,
		Domain: domainOf(u),
		Source: d.Name(),
	}

	if title, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && strings.TrimSpace(title) != "" {
		a.Title = strings.TrimSpace(title)
	} else {
		a.Title = strings.TrimSpace(doc.Find("h1").First().Text())
	}

	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok && strings.TrimSpace(desc) != "" {
		a.Subtitle = strings.TrimSpace(desc)
	} else {
		a.Subtitle = strings.TrimSpace(doc.Find("h2").First().Text())
	}

	var content *goquery.Selection
	for _, sel := range []string{"div.single-layout__article", "div.entry-content", "article"} {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			content = s
			break
		}
	}
	if content != nil {
		var paras []string
		content.Find("p, blockquote").Each(func(_ int, s *goquery.Selection) {
			if txt := strings.TrimSpace(s.Text()); txt != "" {
				paras = append(paras, txt)
			}
		})
		a.Body = strings.Join(paras, "\n\n")
	}

	if author, ok := doc.Find(`meta[name="author"]`).Attr("content"); ok && strings.TrimSpace(author) != "" {
		a.Author = strings.TrimSpace(author)
	} else {
		a.Author = strings.TrimSpace(doc.Find("span.single-layout__meta-name").First().Text())
	}
	a.AuthorEmail = strings.TrimSpace(doc.Find("span.single-layout__meta-email").First().Text())

	a.PublishedAt = d.publishedAt(doc)

	return a, nil
}

func (d *DiarioExtra) publishedAt(doc *goquery.Document) time.Time {
	raw, ok := doc.Find(`meta[property="article:published_time"]`).Attr("content")
	if !ok {
		raw = strings.TrimSpace(doc.Find("span.single-layout__meta-date").First().Text())
	}
	if raw == "" {
		return time.Now().UTC()
	}

	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.UTC()
	}
	// no zone info, assume Costa Rican local time
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if ts, err := time.ParseInLocation(layout, raw, costaRica); err == nil {
			return ts.UTC()
		}
	}

	d.log.Warn("failed to parse published time", slog.String("raw", raw))
	return time.Now().UTC()
}
