package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pageHTML = `<html><head><title>Furniture Polishing</title>
<meta name="description" content="Polishing services."></head>
<body><h1>Furniture Polishing</h1><p>We polish furniture.</p><a href="/other">other</a></body></html>`

type testSite struct {
	server        *httptest.Server
	robotsHits    atomic.Int32
	flakyHits     atomic.Int32
	notFoundHits  atomic.Int32
	robotsContent string
}

func newTestSite(t *testing.T) *testSite {
	t.Helper()
	site := &testSite{robotsContent: "User-agent: *\nDisallow: /private\n"}
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		site.robotsHits.Add(1)
		fmt.Fprint(w, site.robotsContent)
	})
	html := func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, pageHTML)
	}
	mux.HandleFunc("/page", html)
	mux.HandleFunc("/private", html)
	mux.HandleFunc("/image", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{0x89, 0x50})
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, _ *http.Request) {
		site.notFoundHits.Add(1)
		http.NotFound(w, nil)
	})
	mux.HandleFunc("/flaky", func(w http.ResponseWriter, r *http.Request) {
		if site.flakyHits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		html(w, r)
	})
	mux.HandleFunc("/blocked", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><div id="cf-browser-verification"></div></body></html>`)
	})
	site.server = httptest.NewServer(mux)
	t.Cleanup(site.server.Close)
	return site
}

func (s *testSite) url(path string) string { return s.server.URL + path }

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RequestsPerSecond = 1000
	cfg.RetryBackoff = time.Millisecond
	cfg.Concurrency = 2
	return cfg
}

func TestFetch(t *testing.T) {
	site := newTestSite(t)
	f := New(testConfig())

	res := f.Fetch(context.Background(), site.url("/page"))
	require.NoError(t, res.Err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "Furniture Polishing", res.Page.Title)
	assert.Equal(t, "Polishing services.", res.Page.MetaDescription)
	assert.Equal(t, []string{site.url("/other")}, res.Page.InternalLinks)
	assert.Greater(t, res.LoadTime, time.Duration(0))
	assert.Greater(t, res.Page.LoadTime, 0.0)
}

func TestFetch_Errors(t *testing.T) {
	site := newTestSite(t)

	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{"robots disallow", "/private", ErrDisallowed},
		{"not html", "/image", ErrNotHTML},
		{"not found", "/missing", ErrStatus},
		{"anti-bot page", "/blocked", ErrBlocked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := New(testConfig()).Fetch(context.Background(), site.url(tt.path))
			assert.ErrorIs(t, res.Err, tt.wantErr)
		})
	}

	t.Run("invalid url", func(t *testing.T) {
		res := New(testConfig()).Fetch(context.Background(), "ftp://example.com/x")
		assert.ErrorIs(t, res.Err, ErrInvalidURL)
	})
}

func TestFetch_NotFoundIsNotRetried(t *testing.T) {
	site := newTestSite(t)
	res := New(testConfig()).Fetch(context.Background(), site.url("/missing"))
	assert.ErrorIs(t, res.Err, ErrStatus)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, int32(1), site.notFoundHits.Load())
}

func TestFetch_RetriesTransientFailure(t *testing.T) {
	site := newTestSite(t)
	res := New(testConfig()).Fetch(context.Background(), site.url("/flaky"))
	require.NoError(t, res.Err)
	assert.Equal(t, int32(2), site.flakyHits.Load())
	assert.Equal(t, "Furniture Polishing", res.Page.Title)
}

func TestFetch_IgnoresRobotsWhenDisabled(t *testing.T) {
	site := newTestSite(t)
	cfg := testConfig()
	cfg.RespectRobots = false

	res := New(cfg).Fetch(context.Background(), site.url("/private"))
	require.NoError(t, res.Err)
	assert.Equal(t, int32(0), site.robotsHits.Load())
}

func TestFetchAll(t *testing.T) {
	site := newTestSite(t)
	f := New(testConfig())
	urls := []string{site.url("/page"), site.url("/private"), site.url("/missing"), site.url("/flaky")}

	results, err := f.FetchAll(context.Background(), urls)
	require.NoError(t, err)
	require.Len(t, results, 4)
	for i, r := range results {
		assert.Equal(t, urls[i], r.URL)
	}
	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, ErrDisallowed)
	assert.ErrorIs(t, results[2].Err, ErrStatus)
	assert.NoError(t, results[3].Err)

	pages := Pages(results)
	assert.Len(t, pages, 2)
	assert.Equal(t, int32(1), site.robotsHits.Load())
}

func TestFetchAll_Cancelled(t *testing.T) {
	site := newTestSite(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := New(testConfig()).FetchAll(ctx, []string{site.url("/page")})
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, 1)
	assert.Error(t, results[0].Err)
}

func TestIsWebpageMIME(t *testing.T) {
	assert.True(t, isWebpageMIME("text/html; charset=utf-8"))
	assert.True(t, isWebpageMIME("application/xhtml+xml"))
	assert.False(t, isWebpageMIME("application/json"))
	assert.False(t, isWebpageMIME(""))
}
