package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/crdatos/hemeroteca/app/store"
	"golang.org/x/exp/slog"
)

// List is a command to print stored articles.
type List struct {
	Date   string `long:"date" env:"DATE" description:"publication date filter, YYYY-MM-DD"`
	Source string `long:"source" env:"SOURCE" description:"outlet filter"`
	JSON   bool   `long:"json" description:"print articles as JSON"`

	StorePath string `long:"store-path" env:"STORE_PATH" default:"." description:"parent dir for bolt files"`
}

// Execute runs the command.
func (l List) Execute(_ []string) error {
	st, err := store.NewBolt(l.StorePath)
	if err != nil {
		return fmt.Errorf("make store: %w", err)
	}

	defer func() {
		if err := st.Close(); err != nil {
			slog.Default().Error("close bolt store", slog.Any("err", err))
		}
	}()

	articles, err := st.List(context.Background(), store.ListRequest{Date: l.Date, Source: l.Source})
	if err != nil {
		return fmt.Errorf("list articles: %w", err)
	}

	if l.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(articles); err != nil {
			return fmt.Errorf("encode articles: %w", err)
		}
		return nil
	}

	for _, a := range articles {
		fmt.Printf("%s  %-12s  %s\n    %s\n", a.Date(), a.Source, a.Title, a.URL)
	}
	fmt.Printf("%d articles\n", len(articles))

	return nil
}
