// Package models defines data structures for the crawler.
package models

import "time"

// Book holds the fields extracted from one detail page. TextURL and
// ImageURL are absolute, resolved against the page's own URL since the
// site serves book pages from varying mirror hosts.
type Book struct {
	Title         string
	Author        string
	Genres        []string
	Comments      []string
	TextURL       string
	ImageURL      string
	ImageFilename string
	PageURL       string
}

// AssetKind names the type of a downloaded file.
type AssetKind string

const (
	AssetText  AssetKind = "text"
	AssetImage AssetKind = "image"
)

// Asset describes one stored download.
type Asset struct {
	Kind       AssetKind
	SourceURL  string
	StoredPath string
}

// Description is one manifest entry. BookPath and ImagePath are omitted
// from the JSON when the corresponding download was skipped.
type Description struct {
	Title     string   `json:"title"`
	Author    string   `json:"author"`
	Comments  []string `json:"comments"`
	Genres    []string `json:"genres"`
	BookPath  string   `json:"book_src,omitempty"`
	ImagePath string   `json:"img_src,omitempty"`
}

// CrawlResult holds the overall result of one crawl run.
type CrawlResult struct {
	Descriptions []Description
	StartTime    time.Time
	EndTime      time.Time
	LinkCount    int
	BookCount    int
	ErrorCount   int
	FailedURLs   []string
	ErrorsByType map[string]int
}

// Duration reports the elapsed wall-clock time of the run.
func (r *CrawlResult) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}
