package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/crdatos/hemeroteca/pkg/logx"
	"github.com/go-pkgz/requester"
	"github.com/go-pkgz/requester/middleware"
	"github.com/samber/lo"
	"golang.org/x/exp/slog"
	"golang.org/x/time/rate"
)

// ErrBlocked is returned when the site responded with an anti-bot page
// instead of content.
var ErrBlocked = errors.New("blocked by site")

// Fetcher downloads pages politely: a single in-flight request at a
// time, rotating browser user agents, a minimum delay between requests
// and blocking-page detection.
type Fetcher struct {
	log      *slog.Logger
	cl       *http.Client
	limiter  *rate.Limiter
	jitter   time.Duration
	keywords []string
}

// NewFetcher creates new Fetcher.
func NewFetcher(lg *slog.Logger, timeout time.Duration, cfg Config) *Fetcher {
	rq := requester.New(http.Client{Timeout: timeout},
		middleware.MaxConcurrent(1),
		middleware.Header("Accept-Language", "es-ES,es;q=0.9,en;q=0.8"),
		middleware.Header("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"),
		rotateUserAgent(cfg.UserAgents),
		logx.LoggingRoundTripper(lg, logx.RoundTripperOpts{Level: slog.LevelDebug}),
	)

	jitter := time.Duration(cfg.MaxDelay) - time.Duration(cfg.MinDelay)
	if jitter < 0 {
		jitter = 0
	}

	return &Fetcher{
		log:      lg,
		cl:       rq.Client(),
		limiter:  rate.NewLimiter(rate.Every(time.Duration(cfg.MinDelay)), 1),
		jitter:   jitter,
		keywords: cfg.BlockingKeywords,
	}
}

// Fetch downloads the page at the given URL and returns its body.
func (f *Fetcher) Fetch(ctx context.Context, u string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for rate limiter: %w", err)
	}

	if f.jitter > 0 {
		if err := sleepCtx(ctx, time.Duration(rand.Int63n(int64(f.jitter)))); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := f.cl.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			f.log.WarnCtx(ctx, "failed to close response body", slog.Any("err", err))
		}
	}()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: status code %d", ErrBlocked, resp.StatusCode)
	}

	ok := resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices
	if !ok {
		return nil, fmt.Errorf("bad status code: %d", resp.StatusCode)
	}

	bts, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if kw, blocked := f.blocked(bts); blocked {
		return nil, fmt.Errorf("%w: %q found in response", ErrBlocked, kw)
	}

	return bts, nil
}

// blocked sniffs the head of the page for anti-bot markers; blocking
// pages are short, so a full-body scan would only false-positive on
// articles mentioning the keywords.
func (f *Fetcher) blocked(bts []byte) (string, bool) {
	const sniffAt = 8192
	if len(bts) > sniffAt {
		bts = bts[:sniffAt]
	}
	s := strings.ToLower(string(bts))
	return lo.Find(f.keywords, func(kw string) bool { return strings.Contains(s, kw) })
}

func rotateUserAgent(agents []string) middleware.RoundTripperHandler {
	return func(next http.RoundTripper) http.RoundTripper {
		return middleware.RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if req.Header.Get("User-Agent") == "" && len(agents) > 0 {
				req.Header.Set("User-Agent", agents[rand.Intn(len(agents))])
			}
			return next.RoundTrip(req)
		})
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
