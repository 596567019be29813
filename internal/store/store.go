// Package store appends canonical documents to per-source JSONL logs.
package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kcorpus/crawler/internal/types"
)

// LogWriter appends documents to per-source append-only logs under one
// output root. Non-forum sources get {source}.jsonl; forum sites get
// forum_{site}.jsonl. Files are opened lazily and kept open for the run.
type LogWriter struct {
	root   string
	logger *slog.Logger

	// FileOverride, when set, routes every document into this one log
	// file instead of the per-source layout.
	FileOverride string

	mu    sync.Mutex
	files map[string]*os.File
	encs  map[string]*json.Encoder
	count map[string]int
}

// NewLogWriter creates a LogWriter rooted at the output directory.
func NewLogWriter(root string, logger *slog.Logger) (*LogWriter, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create output root: %w", err)
	}
	return &LogWriter{
		root:   root,
		logger: logger.With("component", "store"),
		files:  make(map[string]*os.File),
		encs:   make(map[string]*json.Encoder),
		count:  make(map[string]int),
	}, nil
}

// LogName returns the log file name a document of the given source and
// forum site goes to.
func LogName(source, forumSite string) string {
	if forumSite != "" {
		return "forum_" + sanitize(forumSite) + ".jsonl"
	}
	return sanitize(source) + ".jsonl"
}

// Append writes one document as a single JSON line.
func (w *LogWriter) Append(doc *types.Document) error {
	name := w.FileOverride
	if name == "" {
		site := ""
		if doc.Via.Type == types.ViaForum {
			site = doc.Via.Site
		}
		name = LogName(doc.Source, site)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	enc, ok := w.encs[name]
	if !ok {
		path := filepath.Join(w.root, name)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return &types.StorageError{Path: path, Err: err}
		}
		w.files[name] = f
		enc = json.NewEncoder(f)
		w.encs[name] = enc
	}

	if err := enc.Encode(doc); err != nil {
		return &types.StorageError{Path: filepath.Join(w.root, name), Err: err}
	}
	w.count[name]++
	return nil
}

// Counts returns documents appended per log file this run.
func (w *LogWriter) Counts() map[string]int {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]int, len(w.count))
	for k, v := range w.count {
		out[k] = v
	}
	return out
}

// Close closes all open log files.
func (w *LogWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var firstErr error
	for name, f := range w.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		w.logger.Debug("log closed", "file", name, "appended", w.count[name])
	}
	w.files = make(map[string]*os.File)
	w.encs = make(map[string]*json.Encoder)
	return firstErr
}

// sanitize keeps log names filesystem-safe.
func sanitize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, s)
}
