package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/amosWeiskopf/seowatch/internal/models"
)

// Sentinel keys used in result error maps when a feature is switched off
const (
	ErrKeyAutoFix  = "auto_fix"
	ErrKeyRollback = "rollback"
)

// ErrManualFixRequired is returned by a fixer for issues it cannot remediate
var ErrManualFixRequired = errors.New("requires manual fix")

// Fixer remediates a single issue on a page in place
type Fixer interface {
	Fix(page *models.PageFacts, issue models.Issue) error
}

// AppliedFix records the outcome of one fix attempt
type AppliedFix struct {
	Issue   models.Issue `json:"issue"`
	Success bool         `json:"success"`
	Message string       `json:"message,omitempty"`
}

// FixResult is the outcome of an auto-fix run
type FixResult struct {
	Attempted int                         `json:"attempted"`
	Fixed     int                         `json:"fixed"`
	Failed    int                         `json:"failed"`
	Pages     map[string]models.PageFacts `json:"pages"`
	Applied   []AppliedFix                `json:"applied"`
	Errors    map[string]string           `json:"errors"`
}

// PageUpdate is a partial update of one page; nil fields are left unchanged
type PageUpdate struct {
	URL             string   `json:"url"`
	Title           *string  `json:"title,omitempty"`
	MetaDescription *string  `json:"metaDescription,omitempty"`
	H1Tag           *string  `json:"h1Tag,omitempty"`
	CanonicalURL    *string  `json:"canonicalUrl,omitempty"`
	WordCount       *int     `json:"wordCount,omitempty"`
	InternalLinks   []string `json:"internalLinks,omitempty"`
}

// BulkUpdateResult is the outcome of a bulk update
type BulkUpdateResult struct {
	Processed int                         `json:"processed"`
	Updated   map[string]models.PageFacts `json:"updated"`
	Errors    map[string]string           `json:"errors"`
}

// RollbackResult is the outcome of a rollback
type RollbackResult struct {
	Restored bool              `json:"restored"`
	Page     models.PageFacts  `json:"page"`
	Errors   map[string]string `json:"errors"`
}

// AutoFixIssues applies the fixer to every auto-fixable issue, page by page.
// A failure on one page is recorded and the remaining pages still run.
func (m *Monitor) AutoFixIssues(ctx context.Context, pages []models.PageFacts, issues []models.Issue) FixResult {
	result := FixResult{
		Pages:  make(map[string]models.PageFacts),
		Errors: make(map[string]string),
	}
	if !m.config.AutoFixEnabled {
		result.Errors[ErrKeyAutoFix] = "auto-fix is disabled"
		return result
	}

	byURL := indexPages(pages)
	grouped := make(map[string][]models.Issue)
	var order []string
	for _, issue := range issues {
		if !issue.AutoFixable {
			continue
		}
		if _, ok := grouped[issue.PageURL]; !ok {
			order = append(order, issue.PageURL)
		}
		grouped[issue.PageURL] = append(grouped[issue.PageURL], issue)
	}

	m.eachBatch(ctx, order, result.Errors, func(url string) {
		page, ok := byURL[url]
		if !ok {
			result.Errors[url] = "page not found"
			return
		}
		fixed := page.Clone()
		var failures []string
		changed := false
		for _, issue := range grouped[url] {
			result.Attempted++
			if err := m.fixer.Fix(&fixed, issue); err != nil {
				result.Failed++
				failures = append(failures, fmt.Sprintf("%s: %v", issue.IssueType, err))
				result.Applied = append(result.Applied, AppliedFix{Issue: issue, Message: err.Error()})
				continue
			}
			changed = true
			result.Fixed++
			result.Applied = append(result.Applied, AppliedFix{Issue: issue, Success: true})
		}
		if changed {
			m.snapshot(page)
			result.Pages[url] = fixed
		}
		if len(failures) > 0 {
			result.Errors[url] = strings.Join(failures, "; ")
		}
	})

	m.logger.Info().Int("fixed", result.Fixed).Int("failed", result.Failed).Msg("auto-fix completed")
	return result
}

// BulkUpdate applies partial updates to the given pages in batches
func (m *Monitor) BulkUpdate(ctx context.Context, pages []models.PageFacts, updates []PageUpdate) BulkUpdateResult {
	result := BulkUpdateResult{
		Updated: make(map[string]models.PageFacts),
		Errors:  make(map[string]string),
	}

	byURL := indexPages(pages)
	pending := make(map[string]PageUpdate, len(updates))
	order := make([]string, 0, len(updates))
	for _, u := range updates {
		if _, dup := pending[u.URL]; !dup {
			order = append(order, u.URL)
		}
		pending[u.URL] = u
	}

	m.eachBatch(ctx, order, result.Errors, func(url string) {
		result.Processed++
		page, ok := byURL[url]
		if !ok {
			result.Errors[url] = "page not found"
			return
		}
		updated, err := applyUpdate(page, pending[url])
		if err != nil {
			result.Errors[url] = err.Error()
			return
		}
		m.snapshot(page)
		result.Updated[url] = updated
	})

	m.logger.Info().Int("updated", len(result.Updated)).Int("errors", len(result.Errors)).Msg("bulk update completed")
	return result
}

// Rollback restores the facts a page had before its latest fix or update
func (m *Monitor) Rollback(url string) RollbackResult {
	result := RollbackResult{Errors: make(map[string]string)}
	if !m.config.RollbackEnabled {
		result.Errors[ErrKeyRollback] = "rollback is disabled"
		return result
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	stack := m.snapshots[url]
	if len(stack) == 0 {
		result.Errors[url] = "no snapshot available"
		return result
	}
	result.Page = stack[len(stack)-1]
	result.Restored = true
	if len(stack) == 1 {
		delete(m.snapshots, url)
	} else {
		m.snapshots[url] = stack[:len(stack)-1]
	}
	return result
}

// eachBatch walks urls in batches of the configured size, pacing each page
// through the limiter. Cancellation marks every unprocessed page.
func (m *Monitor) eachBatch(ctx context.Context, urls []string, errs map[string]string, fn func(url string)) {
	size := m.config.BulkUpdateBatchSize
	for start := 0; start < len(urls); start += size {
		end := min(start+size, len(urls))
		for i, url := range urls[start:end] {
			if err := m.limiter.Wait(ctx); err != nil {
				for _, rest := range urls[start+i:] {
					errs[rest] = err.Error()
				}
				return
			}
			fn(url)
		}
		m.logger.Debug().Int("batch_start", start).Int("batch_end", end).Msg("batch processed")
	}
}

func (m *Monitor) snapshot(page models.PageFacts) {
	if !m.config.RollbackEnabled {
		return
	}
	m.mu.Lock()
	m.snapshots[page.URL] = append(m.snapshots[page.URL], page.Clone())
	m.mu.Unlock()
}

func indexPages(pages []models.PageFacts) map[string]models.PageFacts {
	byURL := make(map[string]models.PageFacts, len(pages))
	for _, p := range pages {
		byURL[p.URL] = p
	}
	return byURL
}

func applyUpdate(page models.PageFacts, u PageUpdate) (models.PageFacts, error) {
	out := page.Clone()
	if u.Title != nil {
		if strings.TrimSpace(*u.Title) == "" {
			return page, errors.New("title cannot be empty")
		}
		out.Title = *u.Title
	}
	if u.MetaDescription != nil {
		out.MetaDescription = *u.MetaDescription
	}
	if u.H1Tag != nil {
		out.H1Tag = *u.H1Tag
	}
	if u.CanonicalURL != nil {
		out.CanonicalURL = *u.CanonicalURL
	}
	if u.WordCount != nil {
		if *u.WordCount < 0 {
			return page, errors.New("word count cannot be negative")
		}
		out.WordCount = *u.WordCount
	}
	if u.InternalLinks != nil {
		out.InternalLinks = append([]string(nil), u.InternalLinks...)
	}
	return out, nil
}

// DefaultFixer remediates the issues that can be derived from the page itself
type DefaultFixer struct {
	MetaMin int
	MetaMax int
}

const descriptionFiller = "Expert furniture polishing, restoration and protective care with transparent pricing, trusted craftsmen and simple online booking for homes and offices."

// Fix implements Fixer
func (f DefaultFixer) Fix(page *models.PageFacts, issue models.Issue) error {
	switch issue.IssueType {
	case models.IssueMissingH1:
		if strings.TrimSpace(page.Title) == "" {
			return fmt.Errorf("no title to derive heading from: %w", ErrManualFixRequired)
		}
		page.H1Tag = strings.TrimSpace(page.Title)
	case models.IssueMissingMeta:
		page.MetaDescription = f.fitDescription(page.Title, page.H1Tag)
	case models.IssueMissingCanonical:
		page.CanonicalURL = page.URL
	case models.IssueOrphanPage:
		return fmt.Errorf("internal linking: %w", ErrManualFixRequired)
	default:
		return fmt.Errorf("%s: %w", issue.IssueType, ErrManualFixRequired)
	}
	return nil
}

// fitDescription builds a description between MetaMin and MetaMax runes
func (f DefaultFixer) fitDescription(title, heading string) string {
	lo, hi := f.MetaMin, f.MetaMax
	if lo <= 0 || hi < lo {
		lo, hi = 150, 160
	}

	parts := []string{}
	if t := strings.TrimSpace(title); t != "" {
		parts = append(parts, t)
	}
	if h := strings.TrimSpace(heading); h != "" && !strings.EqualFold(h, strings.TrimSpace(title)) {
		parts = append(parts, h)
	}
	seed := strings.Join(parts, " - ")
	long := descriptionFiller
	if seed != "" {
		long = seed + ". " + descriptionFiller
	}
	for utf8.RuneCountInString(long) < hi {
		long += " " + descriptionFiller
	}

	runes := []rune(long)[:hi-1]
	cut := runes
	if idx := lastSpace(runes); idx >= lo-1 {
		cut = []rune(strings.TrimRightFunc(string(runes[:idx]), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}))
	}
	if len(cut) < lo-1 {
		cut = runes
	}
	return string(cut) + "."
}

func lastSpace(runes []rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == ' ' {
			return i
		}
	}
	return -1
}
