// Package extractor turns raw HTML into the page facts the health checker
// works on.
package extractor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/markusmobius/go-trafilatura"
	"github.com/rs/zerolog"
	"golang.org/x/net/html"

	"github.com/amosWeiskopf/seowatch/internal/models"
	"github.com/amosWeiskopf/seowatch/pkg/utils"
)

// Extractor handles content extraction from HTML
type Extractor struct {
	logger      zerolog.Logger
	mainContent bool
}

// Option configures an Extractor
type Option func(*Extractor)

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Extractor) { e.logger = logger }
}

// WithMainContent toggles counting words of the main content only. When off,
// every visible word on the page is counted.
func WithMainContent(enabled bool) Option {
	return func(e *Extractor) { e.mainContent = enabled }
}

// New creates a new Extractor instance
func New(opts ...Option) *Extractor {
	e := &Extractor{logger: zerolog.Nop(), mainContent: true}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExtractPageFacts parses an HTML document fetched from pageURL
func (e *Extractor) ExtractPageFacts(body []byte, pageURL string) (models.PageFacts, error) {
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return models.PageFacts{}, fmt.Errorf("failed to parse html: %w", err)
	}
	doc := goquery.NewDocumentFromNode(root)

	facts := models.PageFacts{
		URL:             pageURL,
		Title:           utils.CleanText(doc.Find("title").First().Text()),
		MetaDescription: metaContent(doc, "description"),
		H1Tag:           utils.CleanText(doc.Find("h1").First().Text()),
		CanonicalURL:    canonical(doc, pageURL),
		StructuredData:  e.structuredData(doc, pageURL),
	}
	facts.InternalLinks, facts.OutgoingLinks = links(doc, pageURL)

	text := ""
	if e.mainContent {
		text = e.ExtractText(body)
	}
	if strings.TrimSpace(text) == "" {
		text = visibleText(doc)
	}
	facts.WordCount = utils.CountWords(text)

	facts.SEOScore = Score(ScoreInputs{
		Title:         facts.Title,
		Description:   facts.MetaDescription,
		H1Count:       doc.Find("h1").Length(),
		WordCount:     facts.WordCount,
		InternalLinks: len(facts.InternalLinks),
		Body:          text,
	})
	return facts, nil
}

// ExtractText extracts the main content text using trafilatura. It returns
// an empty string when no main content could be identified.
func (e *Extractor) ExtractText(body []byte) string {
	result, err := trafilatura.Extract(bytes.NewReader(body), trafilatura.Options{})
	if err != nil {
		e.logger.Debug().Err(err).Msg("main content extraction failed")
		return ""
	}
	if result == nil {
		return ""
	}
	return result.ContentText
}

func metaContent(doc *goquery.Document, name string) string {
	var content string
	doc.Find("meta[name]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !strings.EqualFold(strings.TrimSpace(s.AttrOr("name", "")), name) {
			return true
		}
		content = utils.CleanText(s.AttrOr("content", ""))
		return false
	})
	return content
}

func canonical(doc *goquery.Document, pageURL string) string {
	var href string
	doc.Find("link[rel][href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		for _, rel := range strings.Fields(s.AttrOr("rel", "")) {
			if strings.EqualFold(rel, "canonical") {
				href = strings.TrimSpace(s.AttrOr("href", ""))
				return false
			}
		}
		return true
	})
	if href == "" {
		return ""
	}
	return utils.ResolveURL(pageURL, href)
}

// links splits the page anchors into same-site and other-site absolute URLs,
// deduplicated and without fragments or self references
func links(doc *goquery.Document, pageURL string) (internal, outgoing []string) {
	internal, outgoing = []string{}, []string{}
	self := utils.NormalizeURL(pageURL)
	seen := make(map[string]bool)

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		abs := utils.ResolveURL(pageURL, href)
		u, err := url.Parse(abs)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
			return
		}
		link := utils.NormalizeURL(abs)
		if link == self || seen[link] {
			return
		}
		seen[link] = true
		if utils.SameSite(link, pageURL) {
			internal = append(internal, link)
		} else {
			outgoing = append(outgoing, link)
		}
	})
	return internal, outgoing
}

// structuredData collects JSON-LD blocks. A single object is returned as is,
// several are wrapped under "@graph".
func (e *Extractor) structuredData(doc *goquery.Document, pageURL string) map[string]any {
	var items []any
	doc.Find("script[type]").Each(func(_ int, s *goquery.Selection) {
		if !strings.EqualFold(strings.TrimSpace(s.AttrOr("type", "")), "application/ld+json") {
			return
		}
		var v any
		if err := json.Unmarshal([]byte(s.Text()), &v); err != nil {
			e.logger.Debug().Err(err).Str("page", pageURL).Msg("invalid JSON-LD skipped")
			return
		}
		if list, ok := v.([]any); ok {
			items = append(items, list...)
			return
		}
		items = append(items, v)
	})

	switch len(items) {
	case 0:
		return nil
	case 1:
		if obj, ok := items[0].(map[string]any); ok {
			return obj
		}
	}
	return map[string]any{"@graph": items}
}

// visibleText returns the body text without scripts and styles. It mutates
// the document, so it runs last.
func visibleText(doc *goquery.Document) string {
	doc.Find("script, style, noscript, template").Remove()
	return utils.CleanText(doc.Find("body").Text())
}

// ScoreInputs are the signals the heuristic SEO score is computed from
type ScoreInputs struct {
	Title         string
	Description   string
	H1Count       int
	WordCount     int
	InternalLinks int
	Body          string
}

// Score weights
const (
	titleWeight   = 0.20
	metaWeight    = 0.20
	headingWeight = 0.15
	contentWeight = 0.20
	linkWeight    = 0.10
	keywordWeight = 0.15
)

// Score computes a heuristic 0-100 on-page SEO score
func Score(in ScoreInputs) float64 {
	score := titleWeight*titleScore(in.Title) +
		metaWeight*metaScore(in.Description) +
		headingWeight*headingScore(in.H1Count) +
		contentWeight*contentScore(in.WordCount) +
		linkWeight*linkScore(in.InternalLinks) +
		keywordWeight*keywordScore(in.Title, in.Body)
	return math.Round(score)
}

func titleScore(title string) float64 {
	n := len([]rune(title))
	switch {
	case n == 0:
		return 0
	case n < 30:
		return 50
	case n <= 60:
		return 100
	default:
		return 70
	}
}

func metaScore(desc string) float64 {
	n := len([]rune(desc))
	switch {
	case n == 0:
		return 0
	case n >= 120 && n <= 160:
		return 100
	default:
		return 50
	}
}

func headingScore(h1Count int) float64 {
	switch {
	case h1Count == 1:
		return 100
	case h1Count > 1:
		return 50
	default:
		return 0
	}
}

func contentScore(words int) float64 {
	if words >= 300 {
		return 100
	}
	return float64(words) * 100 / 300
}

func linkScore(internal int) float64 {
	if internal >= 3 {
		return 100
	}
	return float64(internal) * 100 / 3
}

// keywordScore rewards bodies that use the title's main keywords at a
// natural density of 0.5% to 3%
func keywordScore(title, body string) float64 {
	keywords := utils.ExtractKeywords(title, 3)
	density := utils.KeywordDensity(body, keywords)
	switch {
	case density == 0:
		return 0
	case density >= 0.5 && density <= 3:
		return 100
	default:
		return 50
	}
}
