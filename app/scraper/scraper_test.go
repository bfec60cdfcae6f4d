package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/crdatos/hemeroteca/app/store"
	"github.com/crdatos/hemeroteca/pkg/logx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

func TestResolveDates(t *testing.T) {
	tbl := []struct {
		name             string
		date, start, end string
		want             []string
		err              string
	}{
		{name: "single date", date: "2024-05-25", want: []string{"2024-05-25"}},
		{name: "two day range", start: "2024-05-10", end: "2024-05-11",
			want: []string{"2024-05-10", "2024-05-11"}},
		{name: "range over month boundary", start: "2024-05-30", end: "2024-06-02",
			want: []string{"2024-05-30", "2024-05-31", "2024-06-01", "2024-06-02"}},
		{name: "same start and end", start: "2024-05-10", end: "2024-05-10",
			want: []string{"2024-05-10"}},
		{name: "date with range", date: "2024-05-25", start: "2024-05-10",
			err: "mutually exclusive"},
		{name: "start without end", start: "2024-05-10",
			err: "both start and end dates are required"},
		{name: "end before start", start: "2024-05-11", end: "2024-05-10",
			err: "end date is before start date"},
		{name: "malformed date", date: "25-05-2024", err: "parse date"},
		{name: "nothing given", err: "both start and end dates are required"},
	}

	for _, tt := range tbl {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveDates(tt.date, tt.start, tt.end)
			if tt.err != "" {
				require.ErrorContains(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestService_Run_singleDate(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := w.Write([]byte("<html><body><p>hola</p></body></html>"))
		require.NoError(t, err)
	}))
	defer ts.Close()

	st := &memStore{}
	src := &stubSource{
		urls: func(date string) ([]string, error) {
			return []string{ts.URL + "/a1", ts.URL + "/a2", ts.URL + "/a3"}, nil
		},
	}

	svc := prepService(t, src, st)

	stats, err := svc.Run(context.Background(),
		Job{Source: "stub", Dates: []string{"2024-05-25"}, Limit: 10, MaxRetries: 3})
	require.NoError(t, err)

	require.Len(t, stats.Results, 1)
	res := stats.Results[0]
	assert.True(t, res.Succeeded)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 3, res.Found)
	assert.Equal(t, 3, res.Scraped)
	assert.Equal(t, 3, res.Saved)
	assert.Len(t, st.articles(), 3)
}

func TestService_Run_limitBoundsArticles(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := w.Write([]byte("<html><body><p>hola</p></body></html>"))
		require.NoError(t, err)
	}))
	defer ts.Close()

	st := &memStore{}
	src := &stubSource{
		urls: func(string) ([]string, error) {
			var urls []string
			for i := 0; i < 10; i++ {
				urls = append(urls, fmt.Sprintf("%s/a%d", ts.URL, i))
			}
			return urls, nil
		},
	}

	svc := prepService(t, src, st)

	stats, err := svc.Run(context.Background(),
		Job{Source: "stub", Dates: []string{"2024-05-25"}, Limit: 3})
	require.NoError(t, err)

	res := stats.Results[0]
	assert.Equal(t, 10, res.Found)
	assert.Equal(t, 3, res.Scraped)
	assert.Len(t, st.articles(), 3)
}

func TestService_Run_retriesExhausted(t *testing.T) {
	var calls int
	st := &memStore{}
	src := &stubSource{
		urls: func(string) ([]string, error) {
			calls++
			return nil, fmt.Errorf("sitemap unavailable")
		},
	}

	svc := prepService(t, src, st)

	stats, err := svc.Run(context.Background(),
		Job{Source: "stub", Dates: []string{"2024-05-25", "2024-05-26"}, Limit: 5, MaxRetries: 2})
	require.NoError(t, err)

	// 1 initial attempt + 2 retries per date
	assert.Equal(t, 6, calls)

	require.Len(t, stats.Results, 2)
	for _, res := range stats.Results {
		assert.False(t, res.Succeeded)
		assert.Equal(t, 3, res.Attempts)
	}
	assert.Equal(t, 2, stats.DatesFailed())
	assert.Empty(t, st.articles())
}

func TestService_Run_noRetriesMeansSingleAttempt(t *testing.T) {
	var calls int
	src := &stubSource{
		urls: func(string) ([]string, error) {
			calls++
			return nil, fmt.Errorf("sitemap unavailable")
		},
	}

	svc := prepService(t, src, &memStore{})

	stats, err := svc.Run(context.Background(),
		Job{Source: "stub", Dates: []string{"2024-05-25"}, Limit: 5, MaxRetries: 0})
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, stats.Results[0].Attempts)
	assert.False(t, stats.Results[0].Succeeded)
}

func TestService_Run_recoversAfterFailedAttempt(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := w.Write([]byte("<html><body><p>hola</p></body></html>"))
		require.NoError(t, err)
	}))
	defer ts.Close()

	var calls int
	st := &memStore{}
	src := &stubSource{
		urls: func(string) ([]string, error) {
			if calls++; calls < 3 {
				return nil, fmt.Errorf("sitemap unavailable")
			}
			return []string{ts.URL + "/a1"}, nil
		},
	}

	svc := prepService(t, src, st)

	stats, err := svc.Run(context.Background(),
		Job{Source: "stub", Dates: []string{"2024-05-25"}, Limit: 5, MaxRetries: 3})
	require.NoError(t, err)

	res := stats.Results[0]
	assert.True(t, res.Succeeded)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 1, res.Saved)
}

func TestService_Run_duplicatesSkipped(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := w.Write([]byte("<html><body><p>hola</p></body></html>"))
		require.NoError(t, err)
	}))
	defer ts.Close()

	st := &memStore{}
	src := &stubSource{
		urls: func(string) ([]string, error) {
			return []string{ts.URL + "/a1", ts.URL + "/a1"}, nil
		},
	}

	svc := prepService(t, src, st)

	stats, err := svc.Run(context.Background(),
		Job{Source: "stub", Dates: []string{"2024-05-25"}, Limit: 5})
	require.NoError(t, err)

	res := stats.Results[0]
	assert.Equal(t, 1, res.Saved)
	assert.Equal(t, 1, res.Duplicates)
	assert.Len(t, st.articles(), 1)
}

func TestService_Run_articleFailureDoesNotFailDate(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/broken") {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, err := w.Write([]byte("<html><body><p>hola</p></body></html>"))
		require.NoError(t, err)
	}))
	defer ts.Close()

	st := &memStore{}
	src := &stubSource{
		urls: func(string) ([]string, error) {
			return []string{ts.URL + "/broken", ts.URL + "/a1"}, nil
		},
	}

	svc := prepService(t, src, st)

	stats, err := svc.Run(context.Background(),
		Job{Source: "stub", Dates: []string{"2024-05-25"}, Limit: 5})
	require.NoError(t, err)

	res := stats.Results[0]
	assert.True(t, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Saved)
}

func TestService_Run_fallsBackToReadability(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := w.Write([]byte(`<html><head><title>some title</title></head><body>
			<article><h1>some title</h1>
			<p>La asamblea legislativa aprobó el proyecto de ley en segundo debate este martes,
			tras una discusión que se extendió por más de cuatro horas en el plenario.</p>
			<p>El expediente pasa ahora a la firma del poder ejecutivo, que cuenta con un plazo
			de diez días hábiles para sancionarlo o devolverlo con observaciones.</p>
			<p>Los diputados de la oposición anunciaron que presentarán una consulta facultativa
			de constitucionalidad ante la sala respectiva antes del vencimiento del plazo.</p>
			<p>Según los proponentes, la nueva normativa permitirá agilizar los trámites
			administrativos en las municipalidades de todo el país a partir del próximo año.</p>
			</article></body></html>`))
		require.NoError(t, err)
	}))
	defer ts.Close()

	st := &memStore{}
	src := &stubSource{
		urls: func(string) ([]string, error) { return []string{ts.URL + "/a1"}, nil },
		// selectors match nothing on this page
		parse: func(rd io.Reader, u string) (store.Article, error) {
			return store.Article{URL: u, Source: "stub"}, nil
		},
	}

	svc := prepService(t, src, st)

	_, err := svc.Run(context.Background(),
		Job{Source: "stub", Dates: []string{"2024-05-25"}, Limit: 5})
	require.NoError(t, err)

	articles := st.articles()
	require.Len(t, articles, 1)
	assert.Equal(t, "stub", articles[0].Source)
	assert.Contains(t, articles[0].Body, "segundo debate")
	assert.False(t, articles[0].PublishedAt.IsZero())
}

func TestService_Run_analyzerVerdictAttached(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := w.Write([]byte("<html><body><p>hola</p></body></html>"))
		require.NoError(t, err)
	}))
	defer ts.Close()

	st := &memStore{}
	src := &stubSource{urls: func(string) ([]string, error) { return []string{ts.URL + "/a1"}, nil }}

	svc := prepService(t, src, st)
	svc.analyzer = analyzerFunc(func(context.Context, store.Article) (string, error) {
		return "Neutral", nil
	})

	_, err := svc.Run(context.Background(),
		Job{Source: "stub", Dates: []string{"2024-05-25"}, Limit: 5})
	require.NoError(t, err)

	articles := st.articles()
	require.Len(t, articles, 1)
	assert.Equal(t, "Neutral", articles[0].Bias)
}

func TestService_Run_analyzerFailureStillSaves(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := w.Write([]byte("<html><body><p>hola</p></body></html>"))
		require.NoError(t, err)
	}))
	defer ts.Close()

	st := &memStore{}
	src := &stubSource{urls: func(string) ([]string, error) { return []string{ts.URL + "/a1"}, nil }}

	svc := prepService(t, src, st)
	svc.analyzer = analyzerFunc(func(context.Context, store.Article) (string, error) {
		return "", fmt.Errorf("openai is down")
	})

	_, err := svc.Run(context.Background(),
		Job{Source: "stub", Dates: []string{"2024-05-25"}, Limit: 5})
	require.NoError(t, err)

	articles := st.articles()
	require.Len(t, articles, 1)
	assert.Empty(t, articles[0].Bias)
}

func TestService_Run_canceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var calls int
	src := &stubSource{
		urls: func(string) ([]string, error) {
			calls++
			cancel()
			return nil, fmt.Errorf("sitemap unavailable")
		},
	}

	svc := prepService(t, src, &memStore{})

	_, err := svc.Run(ctx, Job{Source: "stub",
		Dates: []string{"2024-05-25", "2024-05-26"}, Limit: 5, MaxRetries: 5})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestRunStats_Summary(t *testing.T) {
	stats := RunStats{
		Source:  "crhoy",
		Started: time.Date(2024, 5, 25, 10, 0, 0, 0, time.UTC),
		Finished: time.Date(2024, 5, 25, 10, 5, 0, 0,
			time.UTC),
		Results: []DateResult{
			{Date: "2024-05-25", Found: 12, Scraped: 5, Saved: 4, Duplicates: 1, Attempts: 1, Succeeded: true},
			{Date: "2024-05-26", Attempts: 4},
		},
	}

	s := stats.Summary()
	assert.Contains(t, s, "dates:        1/2 succeeded")
	assert.Contains(t, s, "2024-05-25  ok")
	assert.Contains(t, s, "2024-05-26  FAILED")
	assert.Contains(t, s, "saved=4")
	assert.Contains(t, s, "attempts=4")
}

// prepService builds a service with zeroed politeness delays, so tests
// don't sleep.
func prepService(t *testing.T, src Source, st store.Interface) *Service {
	t.Helper()

	cfg := DefaultConfig()
	cfg.MinDelay, cfg.MaxDelay = 0, 0
	cfg.PauseBetweenDates = 0
	cfg.BatchBreakEvery = 0
	cfg.Retry = Retry{BaseDelay: Duration(time.Microsecond), Multiplier: 2, MaxDelay: Duration(time.Millisecond)}

	lg := slog.New(logx.NoOp())
	return NewService(lg, src, NewFetcher(lg, 5*time.Second, cfg), NewExtractor(), st, nil, cfg)
}

type stubSource struct {
	urls  func(date string) ([]string, error)
	parse func(rd io.Reader, u string) (store.Article, error)
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) ListURLs(_ context.Context, date string) ([]string, error) {
	return s.urls(date)
}

func (s *stubSource) Parse(rd io.Reader, u string) (store.Article, error) {
	if s.parse != nil {
		return s.parse(rd, u)
	}
	bts, err := io.ReadAll(rd)
	if err != nil {
		return store.Article{}, err
	}
	return store.Article{
		URL:         u,
		Source:      "stub",
		Title:       "some title",
		Body:        string(bts),
		PublishedAt: time.Date(2024, 5, 25, 12, 0, 0, 0, time.UTC),
	}, nil
}

type analyzerFunc func(ctx context.Context, a store.Article) (string, error)

func (f analyzerFunc) Classify(ctx context.Context, a store.Article) (string, error) {
	return f(ctx, a)
}

// memStore is an in-memory store.Interface for tests.
type memStore struct {
	mu   sync.Mutex
	data []store.Article
}

func (m *memStore) Put(_ context.Context, a store.Article) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, stored := range m.data {
		if stored.URL == a.URL {
			return store.ErrAlreadyExists
		}
	}
	m.data = append(m.data, a)
	return nil
}

func (m *memStore) Get(_ context.Context, url string) (store.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, stored := range m.data {
		if stored.URL == url {
			return stored, nil
		}
	}
	return store.Article{}, store.ErrNotFound
}

func (m *memStore) List(context.Context, store.ListRequest) ([]store.Article, error) {
	return m.articles(), nil
}

func (m *memStore) Delete(_ context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, stored := range m.data {
		if stored.URL == url {
			m.data = append(m.data[:i], m.data[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *memStore) articles() []store.Article {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.Article(nil), m.data...)
}
