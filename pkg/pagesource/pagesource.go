// Package pagesource loads page facts from catalogs on disk: YAML or JSON
// files listing the pages, or directories of rendered HTML.
package pagesource

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/temoto/robotstxt"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/amosWeiskopf/seowatch/internal/models"
	"github.com/amosWeiskopf/seowatch/pkg/extractor"
	"github.com/amosWeiskopf/seowatch/pkg/utils"
)

var (
	// ErrInvalidCatalog is returned for catalogs with missing, malformed or repeated URLs
	ErrInvalidCatalog = errors.New("invalid page catalog")
	// ErrInvalidBaseURL is returned when an HTML directory's site URL is not absolute http(s)
	ErrInvalidBaseURL = errors.New("invalid base url")
)

// catalog is the document form of a page file. A bare list of pages is
// accepted as well.
type catalog struct {
	Pages []models.PageFacts `json:"pages" yaml:"pages"`
}

// LoadFile reads a .yaml, .yml or .json page catalog
func LoadFile(filename string) ([]models.PageFacts, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filename, err)
	}

	var pages []models.PageFacts
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		pages, err = decodeYAML(data)
	case ".json":
		pages, err = decodeJSON(data)
	default:
		return nil, fmt.Errorf("%w: %s", models.ErrUnsupportedFormat, filepath.Ext(filename))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", filename, err)
	}
	if err := validate(pages); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return pages, nil
}

func decodeYAML(data []byte) ([]models.PageFacts, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	if len(node.Content) == 0 {
		return []models.PageFacts{}, nil
	}
	if node.Content[0].Kind == yaml.SequenceNode {
		var pages []models.PageFacts
		err := node.Decode(&pages)
		return pages, err
	}
	var c catalog
	err := node.Decode(&c)
	return c.Pages, err
}

func decodeJSON(data []byte) ([]models.PageFacts, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var pages []models.PageFacts
		err := json.Unmarshal(trimmed, &pages)
		return pages, err
	}
	var c catalog
	err := json.Unmarshal(trimmed, &c)
	return c.Pages, err
}

func validate(pages []models.PageFacts) error {
	seen := make(map[string]int, len(pages))
	for i, p := range pages {
		if strings.TrimSpace(p.URL) == "" {
			return fmt.Errorf("%w: page %d has no url", ErrInvalidCatalog, i)
		}
		if !utils.IsValidURL(p.URL) {
			return fmt.Errorf("%w: page %d url %q is not an absolute http(s) url", ErrInvalidCatalog, i, p.URL)
		}
		key := utils.NormalizeURL(p.URL)
		if j, dup := seen[key]; dup {
			return fmt.Errorf("%w: page %d repeats url %q of page %d", ErrInvalidCatalog, i, p.URL, j)
		}
		seen[key] = i
	}
	return nil
}

type dirOptions struct {
	extractor   *extractor.Extractor
	concurrency int
}

// Option configures LoadHTMLDir
type Option func(*dirOptions)

// WithExtractor sets the extractor used for HTML files
func WithExtractor(e *extractor.Extractor) Option {
	return func(o *dirOptions) { o.extractor = e }
}

// WithConcurrency bounds the number of files parsed at once
func WithConcurrency(n int) Option {
	return func(o *dirOptions) { o.concurrency = n }
}

// LoadHTMLDir extracts page facts from every .html/.htm file under dir.
// Page URLs are baseURL joined with the file's relative path; index files
// map to their directory. Pages are returned sorted by URL.
func LoadHTMLDir(ctx context.Context, dir, baseURL string, opts ...Option) ([]models.PageFacts, error) {
	if !utils.IsValidURL(baseURL) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, baseURL)
	}
	o := dirOptions{concurrency: runtime.NumCPU()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.extractor == nil {
		o.extractor = extractor.New()
	}
	if o.concurrency <= 0 {
		o.concurrency = 1
	}

	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(p)) {
		case ".html", ".htm":
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", dir, err)
	}

	pages := make([]models.PageFacts, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for i, file := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rel, err := filepath.Rel(dir, file)
			if err != nil {
				return err
			}
			body, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", file, err)
			}
			page, err := o.extractor.ExtractPageFacts(body, PageURL(baseURL, rel))
			if err != nil {
				return fmt.Errorf("%s: %w", file, err)
			}
			pages[i] = page
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(pages, func(i, j int) bool { return pages[i].URL < pages[j].URL })
	return pages, nil
}

// PageURL maps a file path relative to the site root onto its URL
func PageURL(baseURL, rel string) string {
	p := "/" + strings.TrimPrefix(filepath.ToSlash(rel), "/")
	switch base := strings.ToLower(path.Base(p)); base {
	case "index.html", "index.htm":
		p = path.Dir(p)
		if p != "/" {
			p += "/"
		}
	}
	return strings.TrimSuffix(baseURL, "/") + p
}

// FilterAllowed keeps the pages robots.txt lets agent crawl and returns the
// URLs it excluded
func FilterAllowed(pages []models.PageFacts, robotsTxt, agent string) (allowed []models.PageFacts, excluded []string, err error) {
	data, err := robotstxt.FromString(robotsTxt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse robots.txt: %w", err)
	}
	group := data.FindGroup(agent)
	allowed = make([]models.PageFacts, 0, len(pages))
	excluded = []string{}
	for _, p := range pages {
		if group.Test(requestPath(p.URL)) {
			allowed = append(allowed, p)
		} else {
			excluded = append(excluded, p.URL)
		}
	}
	return allowed, excluded, nil
}

func requestPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.RequestURI()
}
