package scraper

import (
	"strings"
	"text/template"
	"time"

	"github.com/samber/lo"
)

// DateResult holds the outcome of processing a single date.
type DateResult struct {
	Date       string
	Found      int // URLs listed in the sitemap
	Scraped    int // articles fetched and extracted
	Saved      int // articles saved to the store
	Duplicates int // articles skipped as already stored
	Failed     int // articles that failed to fetch, extract or save
	Attempts   int
	Succeeded  bool
}

// RunStats aggregates per-date results of one scraping session.
type RunStats struct {
	Source   string
	Started  time.Time
	Finished time.Time
	Results  []DateResult
}

// DatesAttempted returns the number of dates processed.
func (s RunStats) DatesAttempted() int { return len(s.Results) }

// DatesSucceeded returns the number of dates that completed a pass.
func (s RunStats) DatesSucceeded() int {
	return lo.CountBy(s.Results, func(r DateResult) bool { return r.Succeeded })
}

// DatesFailed returns the number of dates abandoned after exhausting retries.
func (s RunStats) DatesFailed() int { return s.DatesAttempted() - s.DatesSucceeded() }

// TotalFound returns the total number of listed article URLs.
func (s RunStats) TotalFound() int {
	return lo.SumBy(s.Results, func(r DateResult) int { return r.Found })
}

// TotalScraped returns the total number of extracted articles.
func (s RunStats) TotalScraped() int {
	return lo.SumBy(s.Results, func(r DateResult) int { return r.Scraped })
}

// TotalSaved returns the total number of articles saved to the store.
func (s RunStats) TotalSaved() int {
	return lo.SumBy(s.Results, func(r DateResult) int { return r.Saved })
}

// TotalDuplicates returns the total number of duplicates skipped.
func (s RunStats) TotalDuplicates() int {
	return lo.SumBy(s.Results, func(r DateResult) int { return r.Duplicates })
}

// TotalFailed returns the total number of failed articles.
func (s RunStats) TotalFailed() int {
	return lo.SumBy(s.Results, func(r DateResult) int { return r.Failed })
}

// Elapsed returns the session duration.
func (s RunStats) Elapsed() time.Duration { return s.Finished.Sub(s.Started).Round(time.Second) }

var summaryTmpl = template.Must(template.New("summary").Parse(`scraping session finished
source:       {{.Source}}
elapsed:      {{.Elapsed}}
dates:        {{.DatesSucceeded}}/{{.DatesAttempted}} succeeded
found:        {{.TotalFound}}
scraped:      {{.TotalScraped}}
saved:        {{.TotalSaved}}
duplicates:   {{.TotalDuplicates}}
failed:       {{.TotalFailed}}

per-date breakdown:
{{- range .Results}}
{{.Date}}  {{if .Succeeded}}ok    {{else}}FAILED{{end}}  found={{.Found}} scraped={{.Scraped}} saved={{.Saved}} duplicates={{.Duplicates}} failed={{.Failed}} attempts={{.Attempts}}
{{- end}}
`))

// Summary renders a human-readable report of the session.
func (s RunStats) Summary() string {
	sb := &strings.Builder{}
	// template is static, execution over plain getters cannot fail
	_ = summaryTmpl.Execute(sb, s)
	return sb.String()
}
