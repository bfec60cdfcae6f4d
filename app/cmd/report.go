package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/crdatos/hemeroteca/app/report"
	"github.com/crdatos/hemeroteca/app/scraper"
	"github.com/crdatos/hemeroteca/app/store"
	"golang.org/x/exp/slog"
)

// Report is a command to render stored articles into an HTML page.
type Report struct {
	Date      string `long:"date" env:"DATE" description:"single date, YYYY-MM-DD"`
	StartDate string `long:"start-date" env:"START_DATE" description:"start of date range, YYYY-MM-DD"`
	EndDate   string `long:"end-date" env:"END_DATE" description:"end of date range, YYYY-MM-DD"`
	Source    string `long:"source" env:"SOURCE" description:"outlet filter"`

	Out string `long:"out" env:"OUT" default:"stories.html" description:"output HTML file"`

	StorePath string `long:"store-path" env:"STORE_PATH" default:"." description:"parent dir for bolt files"`
}

// Execute runs the command.
func (r Report) Execute(_ []string) error {
	lg := slog.Default()

	dates, err := scraper.ResolveDates(r.Date, r.StartDate, r.EndDate)
	if err != nil {
		return fmt.Errorf("resolve dates: %w", err)
	}

	st, err := store.NewBolt(r.StorePath)
	if err != nil {
		return fmt.Errorf("make store: %w", err)
	}

	defer func() {
		if err := st.Close(); err != nil {
			lg.Error("close bolt store", slog.Any("err", err))
		}
	}()

	var articles []store.Article
	for _, date := range dates {
		batch, err := st.List(context.Background(), store.ListRequest{Date: date, Source: r.Source})
		if err != nil {
			return fmt.Errorf("list articles for %s: %w", date, err)
		}
		articles = append(articles, batch...)
	}

	title := fmt.Sprintf("Stories for %s", dates[0])
	if len(dates) > 1 {
		title = fmt.Sprintf("Stories for %s to %s", dates[0], dates[len(dates)-1])
	}

	f, err := os.Create(r.Out)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}

	if err := report.Render(f, report.Data{Title: title, Articles: articles}); err != nil {
		_ = f.Close()
		return fmt.Errorf("render report: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close output file: %w", err)
	}

	lg.Info("report written", slog.String("file", r.Out), slog.Int("articles", len(articles)))

	return nil
}
