// Package download fetches assets and persists them under sanitized,
// collision-safe file names.
package download

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"tululu-library/config"
	"tululu-library/fetch"
	"tululu-library/models"
)

var unsafeChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)

// Downloader fetches an asset and writes exactly one file per successful
// call. The default naming policy appends an md5 fingerprint of the
// downloaded bytes before the extension, so identical content lands on the
// same path (idempotent) and differing content never collides even when
// the sanitized names match. Plain naming drops the fingerprint and lets
// later downloads overwrite earlier ones.
type Downloader struct {
	fetcher *fetch.Fetcher
	maxName int
	plain   bool
}

// New builds a downloader sharing the pipeline's fetcher.
func New(fetcher *fetch.Fetcher, cfg *config.Config) *Downloader {
	return &Downloader{
		fetcher: fetcher,
		maxName: cfg.MaxFilenameLength,
		plain:   cfg.PlainFilenames,
	}
}

// DownloadText fetches url and stores it as a .txt file under folder,
// named after the sanitized suggestion. On fetch failure nothing is
// written.
func (d *Downloader) DownloadText(ctx context.Context, url, suggestedName, folder string) (models.Asset, error) {
	name := truncate(Sanitize(suggestedName), d.maxName)

	body, err := d.fetcher.Fetch(ctx, url)
	if err != nil {
		return models.Asset{}, err
	}

	filename := name + ".txt"
	if !d.plain {
		filename = fmt.Sprintf("%s_%s.txt", name, fingerprint(body))
	}
	return d.store(models.AssetText, url, filepath.Join(folder, filename), body)
}

// DownloadImage fetches url and stores it under folder, preserving the
// suggested name's extension.
func (d *Downloader) DownloadImage(ctx context.Context, url, suggestedName, folder string) (models.Asset, error) {
	ext := filepath.Ext(suggestedName)
	name := truncate(Sanitize(strings.TrimSuffix(suggestedName, ext)), d.maxName)

	body, err := d.fetcher.Fetch(ctx, url)
	if err != nil {
		return models.Asset{}, err
	}

	filename := name + ext
	if !d.plain {
		filename = fmt.Sprintf("%s_%s%s", name, fingerprint(body), ext)
	}
	return d.store(models.AssetImage, url, filepath.Join(folder, filename), body)
}

func (d *Downloader) store(kind models.AssetKind, url, path string, body []byte) (models.Asset, error) {
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return models.Asset{}, fmt.Errorf("write %s: %w", path, err)
	}
	d.fetcher.Metrics.IncItem(string(kind))
	return models.Asset{Kind: kind, SourceURL: url, StoredPath: path}, nil
}

// Sanitize strips characters that are unsafe in file names. Free-text book
// titles go through here before they ever reach the filesystem.
func Sanitize(name string) string {
	s := unsafeChars.ReplaceAllString(name, "")
	s = strings.Trim(s, " .")
	if s == "" {
		return "untitled"
	}
	return s
}

func truncate(name string, max int) string {
	if max <= 0 {
		return name
	}
	runes := []rune(name)
	if len(runes) <= max {
		return name
	}
	return string(runes[:max])
}

func fingerprint(body []byte) string {
	sum := md5.Sum(body)
	return hex.EncodeToString(sum[:])
}
