// Package fetcher downloads pages over HTTP and turns them into page facts.
// Requests are paced by a shared rate limiter and checked against each
// host's robots.txt.
package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/temoto/robotstxt"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/amosWeiskopf/seowatch/internal/models"
	"github.com/amosWeiskopf/seowatch/pkg/extractor"
)

var (
	// ErrDisallowed is returned for URLs robots.txt forbids
	ErrDisallowed = errors.New("disallowed by robots.txt")
	// ErrNotHTML is returned when the response is not a web page
	ErrNotHTML = errors.New("response is not an html page")
	// ErrBlocked is returned when an anti-bot interstitial is served
	ErrBlocked = errors.New("anti-bot protection detected")
	// ErrStatus is returned for non-200 responses
	ErrStatus = errors.New("unexpected status")
	// ErrInvalidURL is returned for URLs that are not absolute http(s)
	ErrInvalidURL = errors.New("invalid url")
)

const maxBodyBytes = 10 << 20

// Config holds fetcher settings
type Config struct {
	UserAgent         string
	RequestsPerSecond float64
	Timeout           time.Duration
	RespectRobots     bool
	Concurrency       int
	MaxRetries        int
	RetryBackoff      time.Duration
}

// DefaultConfig returns the default fetcher configuration
func DefaultConfig() Config {
	return Config{
		UserAgent:         "SEOWatch/1.0",
		RequestsPerSecond: 5,
		Timeout:           15 * time.Second,
		RespectRobots:     true,
		Concurrency:       4,
		MaxRetries:        3,
		RetryBackoff:      100 * time.Millisecond,
	}
}

// Result is the outcome of fetching one URL
type Result struct {
	URL        string
	Page       models.PageFacts
	StatusCode int
	LoadTime   time.Duration
	Err        error
}

// Fetcher downloads and extracts pages
type Fetcher struct {
	config    Config
	client    *http.Client
	limiter   *rate.Limiter
	extractor *extractor.Extractor
	logger    zerolog.Logger

	robotsMu sync.Mutex
	robots   map[string]*robotsEntry
}

type robotsEntry struct {
	once sync.Once
	data *robotstxt.RobotsData
}

// Option configures a Fetcher
type Option func(*Fetcher)

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(f *Fetcher) { f.logger = logger }
}

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) { f.client = client }
}

// WithExtractor replaces the page extractor
func WithExtractor(e *extractor.Extractor) Option {
	return func(f *Fetcher) { f.extractor = e }
}

// New creates a new Fetcher
func New(config Config, opts ...Option) *Fetcher {
	def := DefaultConfig()
	if config.UserAgent == "" {
		config.UserAgent = def.UserAgent
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = def.RequestsPerSecond
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 1
	}

	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	f := &Fetcher{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
			Jar:     jar,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        50,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Concurrency),
		logger:  zerolog.Nop(),
		robots:  make(map[string]*robotsEntry),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.extractor == nil {
		f.extractor = extractor.New(extractor.WithLogger(f.logger))
	}
	return f
}

// FetchAll fetches every URL with bounded concurrency. Per-URL failures are
// reported in the matching Result and do not stop the others. Results keep
// the order of urls.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string) ([]Result, error) {
	results := make([]Result, len(urls))
	var g errgroup.Group
	g.SetLimit(f.config.Concurrency)

	for i, u := range urls {
		g.Go(func() error {
			results[i] = f.Fetch(ctx, u)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return results, err
	}
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	f.logger.Info().Int("urls", len(urls)).Int("failed", failed).Msg("fetch completed")
	return results, nil
}

// Pages returns the pages of the successful results
func Pages(results []Result) []models.PageFacts {
	pages := make([]models.PageFacts, 0, len(results))
	for _, r := range results {
		if r.Err == nil {
			pages = append(pages, r.Page)
		}
	}
	return pages
}

// Fetch downloads one URL and extracts its facts. The measured load time is
// stored on the page in milliseconds.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) Result {
	result := Result{URL: pageURL}
	u, err := url.Parse(pageURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		result.Err = fmt.Errorf("%w: %q", ErrInvalidURL, pageURL)
		return result
	}

	if f.config.RespectRobots && !f.allowed(ctx, u) {
		f.logger.Debug().Str("page", pageURL).Msg("skipped, disallowed by robots.txt")
		result.Err = ErrDisallowed
		return result
	}

	for attempt := 0; attempt < f.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := f.config.RetryBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				result.Err = ctx.Err()
				return result
			case <-time.After(backoff):
			}
		}

		var body []byte
		var retry bool
		body, result.StatusCode, result.LoadTime, retry, err = f.get(ctx, pageURL)
		if err != nil {
			result.Err = err
			if !retry || ctx.Err() != nil {
				return result
			}
			f.logger.Debug().Err(err).Str("page", pageURL).Int("attempt", attempt+1).Msg("fetch failed, retrying")
			continue
		}

		page, err := f.extractor.ExtractPageFacts(body, pageURL)
		if err != nil {
			result.Err = err
			return result
		}
		page.LoadTime = float64(result.LoadTime.Microseconds()) / 1000
		result.Page = page
		result.Err = nil
		return result
	}

	f.logger.Warn().Err(result.Err).Str("page", pageURL).Int("retries", f.config.MaxRetries).Msg("giving up")
	return result
}

// get performs one paced GET. retry reports whether the failure is transient.
func (f *Fetcher) get(ctx context.Context, pageURL string) (body []byte, status int, elapsed time.Duration, retry bool, err error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, 0, 0, false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, 0, 0, false, err
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, 0, true, err
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	elapsed = time.Since(start)
	if err != nil {
		return nil, resp.StatusCode, elapsed, true, fmt.Errorf("failed to read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		transient := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, resp.StatusCode, elapsed, transient, fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}
	if !isWebpageMIME(resp.Header.Get("Content-Type")) {
		return nil, resp.StatusCode, elapsed, false, fmt.Errorf("%w: %s", ErrNotHTML, resp.Header.Get("Content-Type"))
	}
	if bytes.Contains(body, []byte("cf-browser-verification")) {
		return nil, resp.StatusCode, elapsed, false, ErrBlocked
	}
	return body, resp.StatusCode, elapsed, false, nil
}

// allowed checks the URL against its host's robots.txt, fetched once per
// host. Hosts whose robots.txt cannot be fetched are allowed.
func (f *Fetcher) allowed(ctx context.Context, u *url.URL) bool {
	key := u.Scheme + "://" + u.Host

	f.robotsMu.Lock()
	entry, ok := f.robots[key]
	if !ok {
		entry = &robotsEntry{}
		f.robots[key] = entry
	}
	f.robotsMu.Unlock()

	entry.once.Do(func() { entry.data = f.fetchRobots(ctx, key) })
	data := entry.data
	if data == nil {
		return true
	}
	return data.TestAgent(u.RequestURI(), f.config.UserAgent)
}

func (f *Fetcher) fetchRobots(ctx context.Context, origin string) *robotstxt.RobotsData {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Debug().Err(err).Str("host", origin).Msg("robots.txt unavailable")
		return nil
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		f.logger.Debug().Err(err).Str("host", origin).Msg("robots.txt unparseable")
		return nil
	}
	return data
}

func isWebpageMIME(contentType string) bool {
	mimeType := strings.TrimSpace(strings.Split(strings.ToLower(contentType), ";")[0])
	switch mimeType {
	case "text/html", "application/xhtml+xml", "application/xhtml":
		return true
	}
	return false
}
