// Package index maintains the persistent {ids, urls} twin-set that gives
// the corpus its exactly-once storage guarantee.
package index

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/kcorpus/crawler/internal/urlnorm"
)

const indexFileName = "_index.json"

// indexFile is the on-disk shape of the index.
type indexFile struct {
	IDs  []string `json:"ids"`
	URLs []string `json:"urls"`
}

// scannedRecord is the subset of a stored document the scan needs.
type scannedRecord struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// DocumentIndex is the persistent twin-set {ids, urls}. All operations are
// safe for concurrent use; Flush only writes when the sets changed.
type DocumentIndex struct {
	root   string
	logger *slog.Logger

	mu    sync.Mutex
	ids   map[string]struct{}
	urls  map[string]struct{}
	dirty bool
}

// Open loads (or initializes) the index under the output root, then scans
// every *.jsonl in the root and unions any id/url found in-record. The
// scan makes the index self-healing when logs were edited or the index
// file was lost.
func Open(root string, logger *slog.Logger) (*DocumentIndex, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create output root: %w", err)
	}

	idx := &DocumentIndex{
		root:   root,
		logger: logger.With("component", "index"),
		ids:    make(map[string]struct{}),
		urls:   make(map[string]struct{}),
	}

	idx.loadFile()
	if err := idx.scanLogs(); err != nil {
		return nil, err
	}
	return idx, nil
}

// loadFile reads _index.json if present. A corrupt file is treated as
// empty with a warning.
func (idx *DocumentIndex) loadFile() {
	path := filepath.Join(idx.root, indexFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			idx.logger.Warn("index file unreadable, starting empty", "path", path, "error", err)
		}
		return
	}

	var f indexFile
	if err := json.Unmarshal(data, &f); err != nil {
		idx.logger.Warn("index file corrupt, starting empty", "path", path, "error", err)
		return
	}
	for _, id := range f.IDs {
		idx.ids[id] = struct{}{}
	}
	for _, u := range f.URLs {
		idx.urls[u] = struct{}{}
	}
}

// scanLogs unions ids/urls from every *.jsonl under the root.
func (idx *DocumentIndex) scanLogs() error {
	paths, err := filepath.Glob(filepath.Join(idx.root, "*.jsonl"))
	if err != nil {
		return fmt.Errorf("glob logs: %w", err)
	}
	sort.Strings(paths)

	for _, path := range paths {
		if err := idx.scanLog(path); err != nil {
			return err
		}
	}
	return nil
}

func (idx *DocumentIndex) scanLog(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open log %s: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec scannedRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			idx.logger.Warn("skipping malformed log line", "path", path, "line", lineNo, "error", err)
			continue
		}
		idx.mu.Lock()
		if rec.ID != "" {
			if _, ok := idx.ids[rec.ID]; !ok {
				idx.ids[rec.ID] = struct{}{}
				idx.dirty = true
			}
		}
		if rec.URL != "" {
			norm := urlnorm.Normalize(rec.URL)
			if _, ok := idx.urls[norm]; !ok {
				idx.urls[norm] = struct{}{}
				idx.dirty = true
			}
		}
		idx.mu.Unlock()
	}
	if err := sc.Err(); err != nil {
		idx.logger.Warn("log scan aborted", "path", path, "error", err)
	}
	return nil
}

// Contains reports whether a document ID is already stored.
func (idx *DocumentIndex) Contains(id string) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	_, ok := idx.ids[id]
	return ok
}

// ContainsURL reports whether a URL (after normalization) is already stored.
func (idx *DocumentIndex) ContainsURL(rawURL string) bool {
	norm := urlnorm.Normalize(rawURL)
	idx.mu.Lock()
	defer idx.mu.Unlock()
	_, ok := idx.urls[norm]
	return ok
}

// Add records a stored document ID. Called exactly once per stored document.
func (idx *DocumentIndex) Add(id string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, ok := idx.ids[id]; !ok {
		idx.ids[id] = struct{}{}
		idx.dirty = true
	}
}

// AddURL records a stored document URL (normalized).
func (idx *DocumentIndex) AddURL(rawURL string) {
	norm := urlnorm.Normalize(rawURL)
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, ok := idx.urls[norm]; !ok {
		idx.urls[norm] = struct{}{}
		idx.dirty = true
	}
}

// Len returns the number of indexed IDs.
func (idx *DocumentIndex) Len() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return len(idx.ids)
}

// Flush writes the index file if anything changed since the last flush.
// The write goes to a temp file first, then renames into place.
func (idx *DocumentIndex) Flush() error {
	idx.mu.Lock()
	if !idx.dirty {
		idx.mu.Unlock()
		return nil
	}
	f := indexFile{
		IDs:  make([]string, 0, len(idx.ids)),
		URLs: make([]string, 0, len(idx.urls)),
	}
	for id := range idx.ids {
		f.IDs = append(f.IDs, id)
	}
	for u := range idx.urls {
		f.URLs = append(f.URLs, u)
	}
	idx.dirty = false
	idx.mu.Unlock()

	sort.Strings(f.IDs)
	sort.Strings(f.URLs)

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}

	tmpPath := filepath.Join(idx.root, indexFileName+".tmp")
	finalPath := filepath.Join(idx.root, indexFileName)
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("rename index: %w", err)
	}

	idx.logger.Debug("index flushed", "ids", len(f.IDs), "urls", len(f.URLs))
	return nil
}
