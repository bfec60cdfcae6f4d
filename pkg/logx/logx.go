// Package logx contains slog handler decorators used across the app.
package logx

import (
	"context"

	"golang.org/x/exp/slog"
)

type jobKey struct{}

type job struct{ source, date string }

// ContextWithJob returns a new context carrying the outlet and the date
// that is currently being scraped.
func ContextWithJob(parent context.Context, source, date string) context.Context {
	return context.WithValue(parent, jobKey{}, job{source: source, date: date})
}

// JobFromContext returns the outlet and the date from context.
func JobFromContext(ctx context.Context) (source, date string, ok bool) {
	j, ok := ctx.Value(jobKey{}).(job)
	return j.source, j.date, ok
}

// Handler is a middleware that attaches the scrape job attributes
// from the context to every record.
type Handler struct {
	slog.Handler
}

// Handle implements slog.Handler interface.
func (h Handler) Handle(ctx context.Context, rec slog.Record) error {
	if source, date, ok := JobFromContext(ctx); ok {
		rec.AddAttrs(slog.String("source", source), slog.String("date", date))
	}
	return h.Handler.Handle(ctx, rec)
}

// WithGroup returns a new Handler with the given group.
func (h Handler) WithGroup(group string) slog.Handler {
	return Handler{Handler: h.Handler.WithGroup(group)}
}

// WithAttrs returns a new Handler with the given attributes.
func (h Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return Handler{Handler: h.Handler.WithAttrs(attrs)}
}

// NoOp returns a handler that discards all records.
func NoOp() slog.Handler { return noOp{} }

type noOp struct{}

func (noOp) Enabled(context.Context, slog.Level) bool  { return false }
func (noOp) Handle(context.Context, slog.Record) error { return nil }
func (n noOp) WithAttrs([]slog.Attr) slog.Handler      { return n }
func (n noOp) WithGroup(string) slog.Handler           { return n }
