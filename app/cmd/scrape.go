// Package cmd contains commands for the application.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/crdatos/hemeroteca/app/analyzer"
	"github.com/crdatos/hemeroteca/app/scraper"
	"github.com/crdatos/hemeroteca/app/store"
	"golang.org/x/exp/slog"
	"golang.org/x/sync/errgroup"
)

// Scrape is a command to run a crash-resistant scraping session over a
// date or a date range.
type Scrape struct {
	Source string `long:"source" env:"SOURCE" choice:"crhoy" choice:"diarioextra" default:"crhoy" description:"news outlet to scrape"`

	Date      string `long:"date" env:"DATE" description:"single date to scrape, YYYY-MM-DD"`
	StartDate string `long:"start-date" env:"START_DATE" description:"start of date range, YYYY-MM-DD"`
	EndDate   string `long:"end-date" env:"END_DATE" description:"end of date range, YYYY-MM-DD"`

	Limit      int `long:"limit" env:"LIMIT" default:"5" description:"max articles per date, 0 or less for no limit"`
	MaxRetries int `long:"max-retries" env:"MAX_RETRIES" default:"3" description:"retry attempts per date before giving up"`

	Timeout time.Duration `long:"timeout" env:"TIMEOUT" default:"30s" description:"timeout for page requests"`
	Config  string        `long:"config" env:"CONFIG" description:"path to politeness config file"`

	OpenAI struct {
		Token   string        `long:"token" env:"TOKEN" description:"OpenAI token, enables bias classification"`
		Timeout time.Duration `long:"timeout" env:"TIMEOUT" default:"5m" description:"timeout for OpenAI calls"`
	} `group:"openai" namespace:"openai" env-namespace:"OPENAI"`

	StorePath string `long:"store-path" env:"STORE_PATH" default:"." description:"parent dir for bolt files"`
}

// Execute runs the command.
func (s Scrape) Execute(_ []string) error {
	lg := slog.Default()

	dates, err := scraper.ResolveDates(s.Date, s.StartDate, s.EndDate)
	if err != nil {
		return fmt.Errorf("resolve dates: %w", err)
	}

	if s.MaxRetries < 0 {
		return fmt.Errorf("max-retries must not be negative, got %d", s.MaxRetries)
	}

	cfg := scraper.DefaultConfig()
	if s.Config != "" {
		if cfg, err = scraper.LoadConfig(s.Config); err != nil {
			return fmt.Errorf("load politeness config: %w", err)
		}
	}

	st, err := store.NewBolt(s.StorePath)
	if err != nil {
		return fmt.Errorf("make store: %w", err)
	}

	defer func() {
		if err := st.Close(); err != nil {
			lg.Error("close bolt store", slog.Any("err", err))
		}
	}()

	fetcher := scraper.NewFetcher(lg.With(slog.String("prefix", "fetcher")), s.Timeout, cfg)

	src, err := scraper.NewSource(s.Source, lg.With(slog.String("prefix", s.Source)), fetcher)
	if err != nil {
		return fmt.Errorf("make source: %w", err)
	}

	var an scraper.Analyzer
	if s.OpenAI.Token != "" {
		an = analyzer.NewChatGPT(
			lg.With(slog.String("prefix", "chatgpt")),
			&http.Client{Timeout: s.OpenAI.Timeout},
			s.OpenAI.Token,
		)
	}

	svc := scraper.NewService(
		lg.With(slog.String("prefix", "scraper")),
		src, fetcher, scraper.NewExtractor(), st, an, cfg,
	)

	job := scraper.Job{
		Source:     s.Source,
		Dates:      dates,
		Limit:      s.Limit,
		MaxRetries: s.MaxRetries,
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	var stats scraper.RunStats

	ewg, ctx := errgroup.WithContext(ctx)
	ewg.Go(func() error {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
		select {
		case sig := <-sig:
			slog.Warn("caught signal, stopping", slog.String("signal", sig.String()))
			stop()
			return ctx.Err()
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	ewg.Go(func() error {
		defer stop()
		lg.Info("starting scraping session",
			slog.String("source", job.Source),
			slog.Int("dates", len(job.Dates)),
			slog.Int("limit", job.Limit),
			slog.Int("max_retries", job.MaxRetries),
		)
		var err error
		stats, err = svc.Run(ctx, job)
		return err
	})

	err = ewg.Wait()

	// the summary is still worth printing after an interrupted run
	fmt.Println(stats.Summary())

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}
