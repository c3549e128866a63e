// Package render turns a crawl manifest into paginated static HTML.
package render

import (
	_ "embed"
	"fmt"
	"html/template"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"tululu-library/models"
	"tululu-library/pipeline"
)

//go:embed template.html
var defaultTemplate string

// Config holds renderer configuration.
type Config struct {
	ManifestPath string
	// TemplatePath overrides the embedded default template.
	TemplatePath string
	PagesDir     string
	BooksPerRow  int
	RowsPerPage  int
}

// DefaultConfig mirrors the layout the crawler produces by default.
func DefaultConfig() Config {
	return Config{
		ManifestPath: pipeline.ManifestName,
		PagesDir:     "pages",
		BooksPerRow:  2,
		RowsPerPage:  10,
	}
}

// Page is the data handed to the template for one output file.
type Page struct {
	Rows        [][]models.Description
	CurrentPage int
	TotalPages  int
}

// Renderer renders the manifest into one HTML file per page of books.
type Renderer struct {
	cfg  Config
	tmpl *template.Template
}

var funcs = template.FuncMap{
	"quote": escapePath,
	"seq":   pageSeq,
}

// New parses the template and prepares a renderer.
func New(cfg Config) (*Renderer, error) {
	if cfg.BooksPerRow <= 0 {
		cfg.BooksPerRow = 2
	}
	if cfg.RowsPerPage <= 0 {
		cfg.RowsPerPage = 10
	}

	var (
		tmpl *template.Template
		err  error
	)
	if cfg.TemplatePath != "" {
		tmpl, err = template.New(filepath.Base(cfg.TemplatePath)).Funcs(funcs).ParseFiles(cfg.TemplatePath)
	} else {
		tmpl, err = template.New("template.html").Funcs(funcs).Parse(defaultTemplate)
	}
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	return &Renderer{cfg: cfg, tmpl: tmpl}, nil
}

// RenderPages writes one HTML file per page chunk under PagesDir and
// returns the page count. Page files are named index<N>.html, 1-based.
func (r *Renderer) RenderPages() (int, error) {
	entries, err := pipeline.ReadManifest(r.cfg.ManifestPath)
	if err != nil {
		return 0, err
	}

	rows := Chunk(entries, r.cfg.BooksPerRow)
	pages := Chunk(rows, r.cfg.RowsPerPage)
	total := len(pages)

	if err := os.MkdirAll(r.cfg.PagesDir, 0o755); err != nil {
		return 0, fmt.Errorf("create pages folder: %w", err)
	}

	for i, pageRows := range pages {
		page := Page{Rows: pageRows, CurrentPage: i + 1, TotalPages: total}
		path := filepath.Join(r.cfg.PagesDir, fmt.Sprintf("index%d.html", i+1))
		if err := r.renderOne(path, page); err != nil {
			return 0, err
		}
	}
	return total, nil
}

func (r *Renderer) renderOne(path string, page Page) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := r.tmpl.Execute(f, page); err != nil {
		f.Close()
		return fmt.Errorf("render %s: %w", path, err)
	}
	return f.Close()
}

// RenderSite builds a fresh renderer and renders all pages. Watch mode
// calls this on every template change so edits are re-parsed.
func RenderSite(cfg Config) (int, error) {
	r, err := New(cfg)
	if err != nil {
		return 0, err
	}
	return r.RenderPages()
}

// Chunk splits items into consecutive groups of at most size elements.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 || len(items) == 0 {
		return nil
	}
	out := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}

// escapePath percent-encodes each path segment while keeping separators,
// so stored file paths can be used as hrefs.
func escapePath(p string) string {
	parts := strings.Split(filepath.ToSlash(p), "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

func pageSeq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}
