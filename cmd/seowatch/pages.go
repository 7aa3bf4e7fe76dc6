package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/amosWeiskopf/seowatch/internal/models"
	"github.com/amosWeiskopf/seowatch/pkg/fetcher"
	"github.com/amosWeiskopf/seowatch/pkg/pagesource"
	"github.com/amosWeiskopf/seowatch/pkg/utils"
)

var errNoPages = errors.New("no pages: pass --pages, --html-dir or --url")

func addPageFlags(cmd *cobra.Command) {
	cmd.Flags().StringSlice("pages", nil, "Page catalog files (.yaml, .yml, .json)")
	cmd.Flags().String("html-dir", "", "Directory of rendered HTML pages")
	cmd.Flags().String("base-url", "", "Site URL the --html-dir files are served under")
	cmd.Flags().StringSlice("url", nil, "Live page URLs to fetch")
	cmd.Flags().String("robots", "", "robots.txt file; pages it disallows are skipped")
}

// loadPages gathers pages from every source named on the command line
func loadPages(ctx context.Context, cmd *cobra.Command) ([]models.PageFacts, error) {
	var pages []models.PageFacts

	files, _ := cmd.Flags().GetStringSlice("pages")
	for _, file := range files {
		loaded, err := pagesource.LoadFile(file)
		if err != nil {
			return nil, err
		}
		pages = append(pages, loaded...)
	}

	if dir, _ := cmd.Flags().GetString("html-dir"); dir != "" {
		baseURL, _ := cmd.Flags().GetString("base-url")
		if baseURL == "" {
			return nil, fmt.Errorf("--html-dir needs --base-url")
		}
		loaded, err := pagesource.LoadHTMLDir(ctx, dir, baseURL)
		if err != nil {
			return nil, err
		}
		pages = append(pages, loaded...)
	}

	if urls, _ := cmd.Flags().GetStringSlice("url"); len(urls) > 0 {
		for _, u := range urls {
			if !utils.IsValidURL(u) {
				return nil, fmt.Errorf("invalid --url %q: need an absolute http(s) url", u)
			}
		}
		results, err := newFetcher().FetchAll(ctx, urls)
		if err != nil {
			return nil, fmt.Errorf("fetch interrupted: %w", err)
		}
		for _, r := range results {
			if r.Err != nil {
				app.logger.Warn().Err(r.Err).Str("page", r.URL).Msg("page skipped")
			}
		}
		pages = append(pages, fetcher.Pages(results)...)
	}

	if robotsFile, _ := cmd.Flags().GetString("robots"); robotsFile != "" {
		data, err := os.ReadFile(robotsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read robots.txt: %w", err)
		}
		allowed, excluded, err := pagesource.FilterAllowed(pages, string(data), app.cfg.Fetcher.UserAgent)
		if err != nil {
			return nil, err
		}
		for _, u := range excluded {
			app.logger.Info().Str("page", u).Msg("excluded by robots.txt")
		}
		pages = allowed
	}

	if len(pages) == 0 {
		return nil, errNoPages
	}
	app.logger.Debug().Int("pages", len(pages)).Msg("pages loaded")
	return pages, nil
}

type catalogFile struct {
	Pages []models.PageFacts `json:"pages" yaml:"pages"`
}

func writeYAML(w io.Writer, pages []models.PageFacts) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(catalogFile{Pages: pages}); err != nil {
		return fmt.Errorf("failed to encode pages: %w", err)
	}
	return enc.Close()
}

// writeCatalog writes pages in the format pagesource.LoadFile reads back
func writeCatalog(path string, pages []models.PageFacts) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" && ext != ".json" {
		return fmt.Errorf("%w: %s", models.ErrUnsupportedFormat, ext)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if ext == ".json" {
		err = writeJSON(f, catalogFile{Pages: pages})
	} else {
		err = writeYAML(f, pages)
	}
	if err != nil {
		return err
	}
	return f.Close()
}
