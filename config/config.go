// Package config holds run configuration for the crawler.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// FailurePolicy controls how the pipeline reacts to a fetch failure.
type FailurePolicy string

const (
	// FailureSkip logs the failed book or page and continues with the next one.
	FailureSkip FailurePolicy = "skip"
	// FailurePropagate aborts the whole run on the first fetch failure.
	FailurePropagate FailurePolicy = "propagate"
)

// Config holds crawler configuration. A Config is passed into the pipeline
// at construction so independent runs never share process-wide state.
type Config struct {
	CategoryURL string
	StartPage   int
	EndPage     int
	// IncludeEndPage makes the page range inclusive. The observed site
	// behavior is half-open: pages [StartPage, EndPage) are visited and
	// EndPage itself never is.
	IncludeEndPage bool

	DestFolder string
	BooksDir   string
	ImagesDir  string
	// JSONPath, when set, receives description.json instead of DestFolder.
	JSONPath string

	SkipImages bool
	SkipText   bool

	OnFetchFailure FailurePolicy
	// AllowMissingText keeps books that have no text-download link instead
	// of skipping them; such entries carry no book_src in the manifest.
	AllowMissingText bool
	// PlainFilenames disables the content-hash suffix on stored files.
	// Distinct downloads whose names sanitize identically then overwrite
	// each other.
	PlainFilenames bool

	MaxFilenameLength int
	PageCacheSize     int
	Timeout           time.Duration
	UserAgent         string
	MetricsAddr       string
	Verbose           bool
}

// DefaultConfig returns the defaults for the tululu.org science-fiction
// category.
func DefaultConfig() *Config {
	return &Config{
		CategoryURL:       "http://tululu.org/l55/",
		StartPage:         1,
		EndPage:           2,
		DestFolder:        ".",
		BooksDir:          "books",
		ImagesDir:         "images",
		OnFetchFailure:    FailureSkip,
		MaxFilenameLength: 50,
		PageCacheSize:     128,
		Timeout:           10 * time.Second,
		UserAgent:         "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.CategoryURL == "" {
		return fmt.Errorf("category URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.CategoryURL)
	if err != nil {
		return fmt.Errorf("invalid category URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("category URL must include a host")
	}

	if c.StartPage < 1 {
		return fmt.Errorf("start page must be positive")
	}
	if c.EndPage < 1 {
		return fmt.Errorf("end page must be positive")
	}
	if c.DestFolder == "" {
		return fmt.Errorf("destination folder cannot be empty")
	}
	if c.BooksDir == "" || c.ImagesDir == "" {
		return fmt.Errorf("books and images folder names cannot be empty")
	}
	if c.OnFetchFailure != FailureSkip && c.OnFetchFailure != FailurePropagate {
		return fmt.Errorf("fetch failure policy must be %q or %q", FailureSkip, FailurePropagate)
	}
	if c.MaxFilenameLength <= 0 {
		return fmt.Errorf("max filename length must be positive")
	}
	if c.PageCacheSize < 0 {
		return fmt.Errorf("page cache size cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}

// EnvInt reads an integer environment override for a flag default.
func EnvInt(key string) (int, bool, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return 0, false, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return value, true, nil
}

// EnvString reads a string environment override for a flag default.
func EnvString(key string) (string, bool) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return "", false
	}
	return raw, true
}
