package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amosWeiskopf/seowatch/internal/config"
	"github.com/amosWeiskopf/seowatch/internal/models"
	"github.com/amosWeiskopf/seowatch/pkg/dashboard"
	"github.com/amosWeiskopf/seowatch/pkg/pagesource"
)

func TestWriteCatalog_RoundTrip(t *testing.T) {
	pages := []models.PageFacts{
		{URL: "https://example.com/a", Title: "A", WordCount: 320, InternalLinks: []string{"/b"}},
		{URL: "https://example.com/b", Title: "B", SEOScore: 64.5},
	}
	dir := t.TempDir()

	for _, name := range []string{"pages.yaml", "pages.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, writeCatalog(path, pages))

			loaded, err := pagesource.LoadFile(path)
			require.NoError(t, err)
			require.Len(t, loaded, 2)
			assert.Equal(t, "A", loaded[0].Title)
			assert.Equal(t, 320, loaded[0].WordCount)
			assert.Equal(t, []string{"/b"}, loaded[0].InternalLinks)
			assert.InDelta(t, 64.5, loaded[1].SEOScore, 0.001)
		})
	}

	err := writeCatalog(filepath.Join(dir, "pages.txt"), pages)
	assert.ErrorIs(t, err, models.ErrUnsupportedFormat)
	assert.NoFileExists(t, filepath.Join(dir, "pages.txt"))
}

func TestPrintAnalysis(t *testing.T) {
	d := dashboard.New(*config.Default())
	result, err := d.PerformComprehensiveAnalysis(context.Background(), []models.PageFacts{
		{URL: "https://example.com/thin", Title: "Thin page", WordCount: 40},
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	printAnalysis(&buf, result)
	out := buf.String()
	assert.Contains(t, out, "SEO analysis of 1 pages")
	assert.Contains(t, out, "Overall score:")
	assert.Contains(t, out, "Action plan")
}

func TestLoadPages_RejectsRelativeURL(t *testing.T) {
	cmd := &cobra.Command{Use: "analyze"}
	addPageFlags(cmd)
	require.NoError(t, cmd.Flags().Set("url", "example.com/services"))

	_, err := loadPages(context.Background(), cmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "absolute http(s) url")
}

func TestLoadPages_NoSources(t *testing.T) {
	cmd := &cobra.Command{Use: "analyze"}
	addPageFlags(cmd)

	_, err := loadPages(context.Background(), cmd)
	assert.ErrorIs(t, err, errNoPages)
}
