package pipeline

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"tululu-library/models"
)

// ManifestName is the manifest file name inside the destination folder.
const ManifestName = "description.json"

// WriteManifest serializes entries as a single JSON array, once, in crawl
// discovery order. HTML escaping is disabled so URLs and non-ASCII text
// stay literal in the file.
func WriteManifest(path string, entries []models.Description) error {
	if entries == nil {
		entries = []models.Description{}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create manifest: %w", err)
	}

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(entries); err != nil {
		f.Close()
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush manifest: %w", err)
	}
	return f.Close()
}

// ReadManifest loads a manifest written by WriteManifest.
func ReadManifest(path string) ([]models.Description, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var entries []models.Description
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return entries, nil
}
