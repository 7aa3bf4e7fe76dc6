package utils

import (
	"net"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/publicsuffix"
)

// Common stop words for text processing
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "has": true, "he": true,
	"in": true, "is": true, "it": true, "its": true, "of": true, "on": true,
	"that": true, "the": true, "to": true, "was": true, "will": true, "with": true,
	"this": true, "but": true, "they": true, "have": true, "had": true,
	"were": true, "been": true, "their": true, "she": true, "which": true, "do": true,
	"or": true, "if": true, "not": true, "what": true, "there": true, "can": true,
	"out": true, "up": true, "one": true, "about": true, "more": true, "so": true,
	"said": true, "when": true, "some": true, "into": true, "them": true, "then": true,
	"two": true, "how": true, "her": true, "than": true, "first": true, "way": true,
	"even": true, "back": true, "any": true, "over": true, "where": true, "just": true,
	"our": true, "your": true, "you": true, "we": true,
}

var spaceRegex = regexp.MustCompile(`\s+`)

// CleanText collapses whitespace runs and trims the result
func CleanText(text string) string {
	return strings.TrimSpace(spaceRegex.ReplaceAllString(text, " "))
}

// CountWords counts whitespace separated words containing at least one
// letter or digit
func CountWords(text string) int {
	n := 0
	for _, w := range strings.Fields(text) {
		if strings.IndexFunc(w, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsNumber(r) }) >= 0 {
			n++
		}
	}
	return n
}

func keywordTokens(text string) []string {
	words := strings.Fields(strings.ToLower(text))
	out := make([]string, 0, len(words))
	for _, word := range words {
		word = strings.TrimFunc(word, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsNumber(r) })
		if utf8.RuneCountInString(word) > 2 && !stopWords[word] {
			out = append(out, word)
		}
	}
	return out
}

// ExtractKeywords returns the most frequent non stop words, ties broken
// alphabetically
func ExtractKeywords(text string, limit int) []string {
	counts := make(map[string]int)
	for _, w := range keywordTokens(text) {
		counts[w]++
	}
	keywords := make([]string, 0, len(counts))
	for k := range counts {
		keywords = append(keywords, k)
	}
	sort.Slice(keywords, func(i, j int) bool {
		if counts[keywords[i]] != counts[keywords[j]] {
			return counts[keywords[i]] > counts[keywords[j]]
		}
		return keywords[i] < keywords[j]
	})
	if limit >= 0 && len(keywords) > limit {
		keywords = keywords[:limit]
	}
	return keywords
}

// KeywordDensity returns the share of keyword tokens in text equal to one of
// the keywords, as a percentage
func KeywordDensity(text string, keywords []string) float64 {
	tokens := keywordTokens(text)
	if len(tokens) == 0 || len(keywords) == 0 {
		return 0
	}
	want := make(map[string]bool, len(keywords))
	for _, k := range keywords {
		want[strings.ToLower(k)] = true
	}
	hits := 0
	for _, t := range tokens {
		if want[t] {
			hits++
		}
	}
	return float64(hits) * 100 / float64(len(tokens))
}

// TruncateText truncates text to at most maxLength runes, preserving word
// boundaries, and appends "..." when it cut anything
func TruncateText(text string, maxLength int) string {
	runes := []rune(text)
	if len(runes) <= maxLength {
		return text
	}
	truncated := string(runes[:maxLength])
	if lastSpace := strings.LastIndex(truncated, " "); lastSpace > 0 {
		truncated = truncated[:lastSpace]
	}
	return truncated + "..."
}

// NormalizeURL lowercases scheme and host, drops the fragment and a trailing
// slash. Unparseable input is returned trimmed.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.TrimSuffix(raw, "/")
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	out := u.String()
	if u.RawQuery == "" {
		out = strings.TrimSuffix(out, "/")
	}
	return out
}

// IsValidURL reports whether s is an absolute http(s) URL
func IsValidURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Hostname() != ""
}

// ResolveURL resolves ref against base, returning ref unchanged when either
// does not parse
func ResolveURL(base, ref string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}

// GetDomainFromURL returns the lowercased host of a URL without its port
func GetDomainFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		if u, err = url.Parse("//" + raw); err != nil {
			return ""
		}
	}
	return strings.ToLower(u.Hostname())
}

// RootDomain returns the registrable domain (eTLD+1) of a URL, falling back to
// the host for IPs and single-label hosts
func RootDomain(raw string) string {
	host := GetDomainFromURL(raw)
	if host == "" || net.ParseIP(host) != nil {
		return host
	}
	root, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return root
}

// SameSite reports whether two URLs share a registrable domain
func SameSite(a, b string) bool {
	ra := RootDomain(a)
	return ra != "" && ra == RootDomain(b)
}
