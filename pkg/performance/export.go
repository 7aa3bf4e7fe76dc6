package performance

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/amosWeiskopf/seowatch/internal/models"
)

var csvHeader = []string{"series", "url", "timestamp", "lcp", "fid", "cls", "seo_score", "load_time", "word_count"}

// Export serializes every stored sample and alert as json or csv. The csv
// form carries samples only, one row per sample.
func (t *Tracker) Export(format string) (string, error) {
	state := t.State()
	switch strings.ToLower(format) {
	case "json":
		doc := struct {
			ExportedAt time.Time `json:"exportedAt"`
			State
		}{ExportedAt: t.now(), State: state}
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to marshal performance data: %w", err)
		}
		return string(data), nil
	case "csv":
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		rows := [][]string{csvHeader}
		for _, s := range state.CoreWebVitals {
			rows = append(rows, []string{
				"core_web_vitals", s.URL, s.Timestamp.Format(time.RFC3339),
				ftoa(s.LCP), ftoa(s.FID), ftoa(s.CLS), "", "", "",
			})
		}
		for _, s := range state.SEOPerformance {
			rows = append(rows, []string{
				"seo_performance", s.URL, s.Timestamp.Format(time.RFC3339),
				"", "", "", ftoa(s.SEOScore), ftoa(s.LoadTime), strconv.Itoa(s.WordCount),
			})
		}
		if err := w.WriteAll(rows); err != nil {
			return "", fmt.Errorf("failed to write csv: %w", err)
		}
		return buf.String(), nil
	}
	return "", fmt.Errorf("performance export %q: %w", format, models.ErrUnsupportedFormat)
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
