package scraper

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/crdatos/hemeroteca/app/store"
	cache "github.com/go-pkgz/expirable-cache/v2"
	"github.com/samber/lo"
	"golang.org/x/exp/slog"
)

const crhoySitemapURL = "https://www.crhoy.com/site/dist/sitemap/%s.txt"

// CRHoy scrapes crhoy.com through its daily plain-text sitemaps, one
// article URL per line.
type CRHoy struct {
	log        *slog.Logger
	fetcher    *Fetcher
	sitemapURL string
	sitemaps   cache.Cache[string, []string]
}

// NewCRHoy creates new CRHoy source.
func NewCRHoy(lg *slog.Logger, f *Fetcher) *CRHoy {
	return &CRHoy{
		log:        lg,
		fetcher:    f,
		sitemapURL: crhoySitemapURL,
		// retries of a date that failed mid-articles shouldn't re-hit the sitemap
		sitemaps: cache.NewCache[string, []string]().
			WithTTL(15 * time.Minute).
			WithMaxKeys(64),
	}
}

// Name returns the outlet identifier.
func (c *CRHoy) Name() string { return SourceCRHoy }

// ListURLs returns article URLs from the sitemap of the given date.
func (c *CRHoy) ListURLs(ctx context.Context, date string) ([]string, error) {
	if urls, ok := c.sitemaps.Get(date); ok {
		c.log.DebugCtx(ctx, "sitemap cache hit", slog.Int("urls", len(urls)))
		return urls, nil
	}

	bts, err := c.fetcher.Fetch(ctx, fmt.Sprintf(c.sitemapURL, date))
	if err != nil {
		return nil, fmt.Errorf("fetch sitemap: %w", err)
	}

	lines := strings.Split(strings.TrimSpace(string(bts)), "\n")
	urls := lo.FilterMap(lines, func(l string, _ int) (string, bool) {
		l = strings.TrimSpace(l)
		return l, l != ""
	})

	c.sitemaps.Set(date, urls, 0)

	return urls, nil
}

// Parse extracts an article from a crhoy.com page.
func (c *CRHoy) Parse(rd io.Reader, u string) (store.Article, error) {
	doc, err := goquery.NewDocumentFromReader(rd)
	if err != nil {
		return store.Article{}, fmt.Errorf("parse html: %w", err)
	}

	a := store.Article{
		URL:    u,
		Domain: domainOf(u),
		Source: c.Name(),
	}

	a.Title = strings.TrimSpace(doc.Find("h1").First().Text())
	a.Subtitle = strings.TrimSpace(doc.Find("h2").First().Text())

	var paras []string
	doc.Find("#contenido p, #contenido blockquote").Each(func(_ int, s *goquery.Selection) {
		if txt := strings.TrimSpace(s.Text()); txt != "" {
			paras = append(paras, txt)
		}
	})
	a.Body = strings.Join(paras, "\n\n")

	if author, ok := doc.Find(".autor-nota a").First().Attr("title"); ok {
		a.Author = strings.TrimSpace(author)
	}
	if href, ok := doc.Find(`span.autor-nota a[href^="mailto:"]`).First().Attr("href"); ok {
		a.AuthorEmail = strings.TrimSpace(strings.TrimPrefix(href, "mailto:"))
	}

	doc.Find("div.etiquetas a").Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			a.Tags = append(a.Tags, t)
		}
	})

	raw := strings.TrimSpace(strings.ReplaceAll(doc.Find(".fecha-nota").First().Text(), "\u2003", " "))
	ts, err := parseSpanishTime(raw)
	if err != nil {
		c.log.Warn("failed to parse timestamp", slog.String("raw", raw), slog.Any("err", err))
		ts = time.Now().UTC()
	}
	a.PublishedAt = ts

	return a, nil
}

// Costa Rica observes no DST, fixed UTC-6 the year round.
var costaRica = time.FixedZone("America/Costa_Rica", -6*60*60)

var spanishMonths = map[string]time.Month{
	"enero": 1, "febrero": 2, "marzo": 3, "abril": 4,
	"mayo": 5, "junio": 6, "julio": 7, "agosto": 8,
	"septiembre": 9, "setiembre": 9, "octubre": 10,
	"noviembre": 11, "diciembre": 12,
}

var spanishTimeRe = regexp.MustCompile(`^(\p{L}+)\s+(\d{1,2}),\s+(\d{4})\s+(\d{1,2}):(\d{2})\s+([ap])\.?\s?m\.?$`)

// parseSpanishTime parses timestamps like "mayo 25, 2024 10:30 am",
// interpreting them in Costa Rican local time and returning UTC.
func parseSpanishTime(s string) (time.Time, error) {
	m := spanishTimeRe.FindStringSubmatch(strings.ToLower(strings.TrimSpace(s)))
	if m == nil {
		return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
	}

	month, ok := spanishMonths[m[1]]
	if !ok {
		return time.Time{}, fmt.Errorf("unknown month %q", m[1])
	}

	day, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	hour, _ := strconv.Atoi(m[4])
	minute, _ := strconv.Atoi(m[5])

	switch {
	case m[6] == "p" && hour != 12:
		hour += 12
	case m[6] == "a" && hour == 12:
		hour = 0
	}

	return time.Date(year, month, day, hour, minute, 0, 0, costaRica).UTC(), nil
}
