// Package pipeline drives one sequential crawl: walk the category, extract
// each book, download its assets, and write the manifest once at the end.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"tululu-library/catalog"
	"tululu-library/config"
	"tululu-library/download"
	"tululu-library/fetch"
	"tululu-library/models"
	"tululu-library/parser"
)

// State identifies the orchestrator's position in a run.
type State int

const (
	StateInit State = iota
	StateResolvingRange
	StateCrawling
	StateFinalizing
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateResolvingRange:
		return "resolving_range"
	case StateCrawling:
		return "crawling"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Pipeline crawls one page range. It is single-use: construct, Run once.
type Pipeline struct {
	cfg        *config.Config
	fetcher    *fetch.Fetcher
	walker     *catalog.Walker
	downloader *download.Downloader
	state      State
}

// New validates cfg and wires the pipeline components together.
func New(cfg *config.Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	fetcher, err := fetch.New(cfg)
	if err != nil {
		return nil, err
	}
	walker, err := catalog.NewWalker(fetcher, cfg)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		cfg:        cfg,
		fetcher:    fetcher,
		walker:     walker,
		downloader: download.New(fetcher, cfg),
		state:      StateInit,
	}, nil
}

// Fetcher exposes the underlying fetcher for the metrics registry and for
// test transport injection.
func (p *Pipeline) Fetcher() *fetch.Fetcher {
	return p.fetcher
}

// State reports the current run state.
func (p *Pipeline) State() State {
	return p.state
}

// Run executes the crawl. A single book's failure never aborts the run
// under the skip policy; a bad page range or an unwritable destination is
// fatal before any crawling begins.
func (p *Pipeline) Run(ctx context.Context) (result *models.CrawlResult, err error) {
	result = &models.CrawlResult{
		StartTime:    time.Now(),
		Descriptions: []models.Description{},
		ErrorsByType: make(map[string]int),
	}
	defer func() {
		result.EndTime = time.Now()
	}()

	p.transition(StateResolvingRange)
	first, stop, err := p.walker.ResolveRange(ctx, p.cfg.StartPage, p.cfg.EndPage)
	if err != nil {
		p.transition(StateFailed)
		return result, err
	}

	booksDir := filepath.Join(p.cfg.DestFolder, p.cfg.BooksDir)
	imagesDir := filepath.Join(p.cfg.DestFolder, p.cfg.ImagesDir)
	if !p.cfg.SkipText {
		if err := os.MkdirAll(booksDir, 0o755); err != nil {
			p.transition(StateFailed)
			return result, fmt.Errorf("create books folder: %w", err)
		}
	}
	if !p.cfg.SkipImages {
		if err := os.MkdirAll(imagesDir, 0o755); err != nil {
			p.transition(StateFailed)
			return result, fmt.Errorf("create images folder: %w", err)
		}
	}
	manifestPath, err := p.manifestPath()
	if err != nil {
		p.transition(StateFailed)
		return result, err
	}

	p.transition(StateCrawling)
	for link, linkErr := range p.walker.Links(ctx, first, stop) {
		if linkErr != nil {
			p.recordFailure(result, "", linkErr)
			if p.abortOn(linkErr) {
				p.transition(StateFailed)
				return result, linkErr
			}
			continue
		}

		result.LinkCount++
		entry, bookErr := p.processBook(ctx, link, booksDir, imagesDir)
		if bookErr != nil {
			p.recordFailure(result, link, bookErr)
			if p.abortOn(bookErr) {
				p.transition(StateFailed)
				return result, bookErr
			}
			continue
		}
		result.Descriptions = append(result.Descriptions, *entry)
		result.BookCount++
	}

	p.transition(StateFinalizing)
	if err := WriteManifest(manifestPath, result.Descriptions); err != nil {
		p.transition(StateFailed)
		return result, err
	}

	p.transition(StateDone)
	slog.Info("crawl complete",
		slog.Int("books", result.BookCount),
		slog.Int("errors", result.ErrorCount),
		slog.Duration("elapsed", time.Since(result.StartTime)),
		slog.String("manifest", manifestPath),
	)
	return result, nil
}

// processBook fetches one detail page, extracts it, and downloads the
// assets the configuration asks for. Extraction runs before any download,
// so a failed extraction writes no files for that book.
func (p *Pipeline) processBook(ctx context.Context, link, booksDir, imagesDir string) (*models.Description, error) {
	body, err := p.fetcher.FetchPage(ctx, link)
	if err != nil {
		return nil, err
	}

	book, err := parser.Extract(body, link, parser.Options{AllowMissingText: p.cfg.AllowMissingText})
	if err != nil {
		return nil, err
	}
	p.fetcher.Metrics.IncItem("book")

	entry := &models.Description{
		Title:    book.Title,
		Author:   book.Author,
		Comments: book.Comments,
		Genres:   book.Genres,
	}

	if !p.cfg.SkipText && book.TextURL != "" {
		asset, err := p.downloader.DownloadText(ctx, book.TextURL, book.Title, booksDir)
		if err != nil {
			return nil, err
		}
		entry.BookPath = asset.StoredPath
	}
	if !p.cfg.SkipImages && book.ImageURL != "" {
		asset, err := p.downloader.DownloadImage(ctx, book.ImageURL, book.ImageFilename, imagesDir)
		if err != nil {
			return nil, err
		}
		entry.ImagePath = asset.StoredPath
	}

	return entry, nil
}

// abortOn decides whether an error ends the run. Only fetch failures obey
// the propagate policy; extraction failures are always skip-and-continue.
func (p *Pipeline) abortOn(err error) bool {
	if p.cfg.OnFetchFailure != config.FailurePropagate {
		return false
	}
	var extraction *parser.ExtractionError
	return !errors.As(err, &extraction)
}

func (p *Pipeline) recordFailure(result *models.CrawlResult, link string, err error) {
	label := classify(err)
	result.ErrorCount++
	result.ErrorsByType[label]++
	if link != "" {
		result.FailedURLs = append(result.FailedURLs, link)
	}
	slog.Error("book skipped",
		slog.String("url", link),
		slog.String("kind", label),
		slog.Any("error", err),
	)
	p.fetcher.Metrics.IncError(label)
}

func classify(err error) string {
	var extraction *parser.ExtractionError
	if errors.As(err, &extraction) {
		return "extraction"
	}
	return fetch.ErrorLabel(err)
}

func (p *Pipeline) manifestPath() (string, error) {
	dir := p.cfg.DestFolder
	if p.cfg.JSONPath != "" {
		dir = p.cfg.JSONPath
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create manifest folder: %w", err)
	}
	return filepath.Join(dir, ManifestName), nil
}

func (p *Pipeline) transition(s State) {
	slog.Debug("pipeline state",
		slog.String("from", p.state.String()),
		slog.String("to", s.String()),
	)
	p.state = s
}
