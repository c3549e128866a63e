package download

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jarcoal/httpmock"

	"tululu-library/config"
	"tululu-library/fetch"
	"tululu-library/models"
)

func newTestDownloader(t *testing.T, mutate func(*config.Config)) (*Downloader, *httpmock.MockTransport) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.PageCacheSize = 0
	if mutate != nil {
		mutate(cfg)
	}

	fetcher, err := fetch.New(cfg)
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}
	transport := httpmock.NewMockTransport()
	fetcher.SetTransport(transport)
	return New(fetcher, cfg), transport
}

func TestDownloadTextNamesByContent(t *testing.T) {
	d, transport := newTestDownloader(t, nil)
	transport.RegisterResponder("GET", "http://books.example/txt.php?id=239",
		httpmock.NewStringResponder(200, "book text"))

	dir := t.TempDir()
	asset, err := d.DownloadText(context.Background(), "http://books.example/txt.php?id=239", "Пески Марса", dir)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if asset.Kind != models.AssetText {
		t.Fatalf("kind = %q", asset.Kind)
	}

	base := filepath.Base(asset.StoredPath)
	if !strings.HasPrefix(base, "Пески Марса_") || !strings.HasSuffix(base, ".txt") {
		t.Fatalf("filename = %q", base)
	}

	body, err := os.ReadFile(asset.StoredPath)
	if err != nil {
		t.Fatalf("read stored file: %v", err)
	}
	if string(body) != "book text" {
		t.Fatalf("stored body = %q", body)
	}
}

func TestDownloadTextIsIdempotent(t *testing.T) {
	d, transport := newTestDownloader(t, nil)
	transport.RegisterResponder("GET", "http://books.example/txt.php?id=1",
		httpmock.NewStringResponder(200, "same bytes"))

	dir := t.TempDir()
	first, err := d.DownloadText(context.Background(), "http://books.example/txt.php?id=1", "Title", dir)
	if err != nil {
		t.Fatalf("first download: %v", err)
	}
	second, err := d.DownloadText(context.Background(), "http://books.example/txt.php?id=1", "Title", dir)
	if err != nil {
		t.Fatalf("second download: %v", err)
	}
	if first.StoredPath != second.StoredPath {
		t.Fatalf("paths differ: %q vs %q", first.StoredPath, second.StoredPath)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("files = %d, want 1", len(entries))
	}
}

func TestDownloadTextDistinguishesContent(t *testing.T) {
	d, transport := newTestDownloader(t, nil)
	transport.RegisterResponder("GET", "http://books.example/txt.php?id=1",
		httpmock.NewStringResponder(200, "first body"))
	transport.RegisterResponder("GET", "http://books.example/txt.php?id=2",
		httpmock.NewStringResponder(200, "second body"))

	dir := t.TempDir()
	first, err := d.DownloadText(context.Background(), "http://books.example/txt.php?id=1", "Same Title", dir)
	if err != nil {
		t.Fatalf("first download: %v", err)
	}
	second, err := d.DownloadText(context.Background(), "http://books.example/txt.php?id=2", "Same Title", dir)
	if err != nil {
		t.Fatalf("second download: %v", err)
	}
	if first.StoredPath == second.StoredPath {
		t.Fatalf("different content collided on %q", first.StoredPath)
	}
}

func TestDownloadTextPlainNames(t *testing.T) {
	d, transport := newTestDownloader(t, func(c *config.Config) { c.PlainFilenames = true })
	transport.RegisterResponder("GET", "http://books.example/txt.php?id=1",
		httpmock.NewStringResponder(200, "body"))

	dir := t.TempDir()
	asset, err := d.DownloadText(context.Background(), "http://books.example/txt.php?id=1", "Title", dir)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if filepath.Base(asset.StoredPath) != "Title.txt" {
		t.Fatalf("filename = %q", filepath.Base(asset.StoredPath))
	}
}

func TestDownloadImageKeepsExtension(t *testing.T) {
	d, transport := newTestDownloader(t, nil)
	transport.RegisterResponder("GET", "http://books.example/shots/239.jpg",
		httpmock.NewStringResponder(200, "jpeg bytes"))

	dir := t.TempDir()
	asset, err := d.DownloadImage(context.Background(), "http://books.example/shots/239.jpg", "239.jpg", dir)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	base := filepath.Base(asset.StoredPath)
	if !strings.HasPrefix(base, "239_") || !strings.HasSuffix(base, ".jpg") {
		t.Fatalf("filename = %q", base)
	}
	if asset.Kind != models.AssetImage {
		t.Fatalf("kind = %q", asset.Kind)
	}
}

func TestDownloadWritesNothingOnFetchFailure(t *testing.T) {
	d, transport := newTestDownloader(t, nil)
	transport.RegisterResponder("GET", "http://books.example/txt.php?id=1",
		httpmock.NewStringResponder(404, ""))

	dir := t.TempDir()
	_, err := d.DownloadText(context.Background(), "http://books.example/txt.php?id=1", "Title", dir)
	var bad *fetch.BadStatusError
	if !errors.As(err, &bad) {
		t.Fatalf("error = %v, want BadStatusError", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("files = %d, want 0", len(entries))
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "clean", input: "Пески Марса", expected: "Пески Марса"},
		{name: "path separators", input: `a/b\c`, expected: "abc"},
		{name: "windows reserved", input: `ti<tle>:"|?*`, expected: "title"},
		{name: "trailing dots and spaces", input: " title. ", expected: "title"},
		{name: "control characters", input: "ti\x00tle\x1f", expected: "title"},
		{name: "nothing left", input: `///`, expected: "untitled"},
		{name: "empty", input: "", expected: "untitled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.input); got != tt.expected {
				t.Fatalf("Sanitize(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestTruncateCountsRunes(t *testing.T) {
	d, transport := newTestDownloader(t, func(c *config.Config) { c.MaxFilenameLength = 5 })
	transport.RegisterResponder("GET", "http://books.example/txt.php?id=1",
		httpmock.NewStringResponder(200, "body"))

	dir := t.TempDir()
	asset, err := d.DownloadText(context.Background(), "http://books.example/txt.php?id=1", "Пески Марса", dir)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	base := filepath.Base(asset.StoredPath)
	if !strings.HasPrefix(base, "Пески_") {
		t.Fatalf("filename = %q, want five-rune prefix", base)
	}
}
