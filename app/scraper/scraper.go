// Package scraper contains the crash-resistant per-date scrape loop
// and the outlet-specific article sources.
package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/crdatos/hemeroteca/app/store"
	"github.com/crdatos/hemeroteca/pkg/logx"
	"golang.org/x/exp/slog"
)

// Job describes a single scraping session, built once from CLI
// arguments and immutable for the run's duration.
type Job struct {
	Source     string
	Dates      []string // resolved list of YYYY-MM-DD dates to process
	Limit      int      // max articles per date, 0 or less means unlimited
	MaxRetries int      // retry attempts per date before giving up
}

const dateLayout = "2006-01-02"

// ResolveDates expands a single date or an inclusive start-end range
// into the list of dates to process.
func ResolveDates(date, start, end string) ([]string, error) {
	switch {
	case date != "" && (start != "" || end != ""):
		return nil, errors.New("date is mutually exclusive with start and end dates")
	case date != "":
		if _, err := time.Parse(dateLayout, date); err != nil {
			return nil, fmt.Errorf("parse date: %w", err)
		}
		return []string{date}, nil
	case start == "" || end == "":
		return nil, errors.New("both start and end dates are required")
	}

	from, err := time.Parse(dateLayout, start)
	if err != nil {
		return nil, fmt.Errorf("parse start date: %w", err)
	}
	to, err := time.Parse(dateLayout, end)
	if err != nil {
		return nil, fmt.Errorf("parse end date: %w", err)
	}
	if to.Before(from) {
		return nil, errors.New("end date is before start date")
	}

	var dates []string
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format(dateLayout))
	}
	return dates, nil
}

// Analyzer classifies the tone of an article.
type Analyzer interface {
	Classify(ctx context.Context, a store.Article) (string, error)
}

// Service runs scraping sessions: for every requested date it lists
// the outlet's articles, fetches and extracts each one and saves it,
// retrying failed dates up to the job's retry budget.
type Service struct {
	log       *slog.Logger
	source    Source
	fetcher   *Fetcher
	extractor Extractor
	store     store.Interface
	analyzer  Analyzer // optional
	cfg       Config
	now       func() time.Time
}

// NewService creates new service.
func NewService(lg *slog.Logger, src Source, f *Fetcher, e Extractor, s store.Interface, a Analyzer, cfg Config) *Service {
	return &Service{
		log:       lg,
		source:    src,
		fetcher:   f,
		extractor: e,
		store:     s,
		analyzer:  a,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run processes every date of the job sequentially. A date that fails
// all its attempts is recorded as failed and the run moves on; Run
// only returns an error when the context is canceled.
func (s *Service) Run(ctx context.Context, job Job) (RunStats, error) {
	stats := RunStats{Source: job.Source, Started: s.now()}

	for i, date := range job.Dates {
		dctx := logx.ContextWithJob(ctx, job.Source, date)

		s.log.InfoCtx(dctx, "processing date",
			slog.Int("day", i+1), slog.Int("of", len(job.Dates)))

		res := s.scrapeDate(dctx, date, job)
		stats.Results = append(stats.Results, res)

		if ctx.Err() != nil {
			stats.Finished = s.now()
			return stats, ctx.Err()
		}

		if i < len(job.Dates)-1 {
			if err := sleepCtx(ctx, time.Duration(s.cfg.PauseBetweenDates)); err != nil {
				stats.Finished = s.now()
				return stats, err
			}
		}
	}

	stats.Finished = s.now()
	return stats, nil
}

// scrapeDate attempts the date up to 1+MaxRetries times with
// exponential backoff between attempts.
func (s *Service) scrapeDate(ctx context.Context, date string, job Job) DateResult {
	res := DateResult{Date: date}

	for attempt := 1; attempt <= job.MaxRetries+1; attempt++ {
		res.Attempts = attempt

		if attempt > 1 {
			delay := s.cfg.Retry.Backoff(attempt - 1)
			s.log.WarnCtx(ctx, "retrying date",
				slog.Int("attempt", attempt), slog.Duration("delay", delay))
			if err := sleepCtx(ctx, delay); err != nil {
				return res
			}
		}

		r, err := s.attempt(ctx, date, job.Limit)
		if err == nil {
			r.Date, r.Attempts, r.Succeeded = date, attempt, true
			return r
		}
		if ctx.Err() != nil {
			return res
		}

		s.log.ErrorCtx(ctx, "attempt failed", slog.Int("attempt", attempt), slog.Any("err", err))
	}

	s.log.ErrorCtx(ctx, "giving up on date", slog.Int("attempts", res.Attempts))
	return res
}

// attempt processes a single pass over the date: failures of individual
// articles are counted and skipped, failures of the listing itself or a
// blocking page fail the whole attempt.
func (s *Service) attempt(ctx context.Context, date string, limit int) (DateResult, error) {
	urls, err := s.source.ListURLs(ctx, date)
	if err != nil {
		return DateResult{}, fmt.Errorf("list articles for %s: %w", date, err)
	}

	res := DateResult{Found: len(urls)}

	if limit > 0 && len(urls) > limit {
		urls = urls[:limit]
	}

	for i, u := range urls {
		s.log.InfoCtx(ctx, "processing article",
			slog.Int("idx", i+1), slog.Int("of", len(urls)), slog.String("url", u))

		a, err := s.scrapeArticle(ctx, u)
		if err != nil {
			if errors.Is(err, ErrBlocked) || ctx.Err() != nil {
				return res, fmt.Errorf("scrape %s: %w", u, err)
			}
			s.log.WarnCtx(ctx, "skipping article", slog.String("url", u), slog.Any("err", err))
			res.Failed++
			continue
		}
		res.Scraped++

		switch err := s.store.Put(ctx, a); {
		case errors.Is(err, store.ErrAlreadyExists):
			s.log.DebugCtx(ctx, "skipping duplicate", slog.String("url", u))
			res.Duplicates++
		case err != nil:
			s.log.WarnCtx(ctx, "failed to save article", slog.String("url", u), slog.Any("err", err))
			res.Failed++
		default:
			res.Saved++
		}

		if s.cfg.BatchBreakEvery > 0 && (i+1)%s.cfg.BatchBreakEvery == 0 && i+1 < len(urls) {
			if err := sleepCtx(ctx, s.cfg.batchBreak()); err != nil {
				return res, err
			}
		}
	}

	return res, nil
}

func (s *Service) scrapeArticle(ctx context.Context, u string) (store.Article, error) {
	bts, err := s.fetcher.Fetch(ctx, u)
	if err != nil {
		return store.Article{}, fmt.Errorf("fetch page: %w", err)
	}

	a, err := s.source.Parse(bytes.NewReader(bts), u)
	if err != nil || a.Body == "" {
		if a, err = s.extractor.Extract(bytes.NewReader(bts), u); err != nil {
			return store.Article{}, fmt.Errorf("extract article: %w", err)
		}
		a.Source = s.source.Name()
		if a.PublishedAt.IsZero() {
			a.PublishedAt = s.now()
		}
	}
	a.ScrapedAt = s.now()

	if s.analyzer == nil {
		return a, nil
	}

	verdict, err := s.analyzer.Classify(ctx, a)
	if err != nil {
		// articles are worth saving even unclassified
		s.log.WarnCtx(ctx, "failed to classify article", slog.String("url", u), slog.Any("err", err))
		return a, nil
	}
	a.Bias = verdict

	return a, nil
}
