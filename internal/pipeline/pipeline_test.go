package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/kcorpus/crawler/internal/config"
	"github.com/kcorpus/crawler/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

const testArticleHTML = `<html><head><title>Climate piece</title></head><body>
<article>
<p>The climate is changing faster than models predicted, researchers said
on Thursday, citing a decade of temperature measurements collected by
autonomous floats across every major ocean basin worldwide.</p>
<p>The report argues that heat content is the clearest signal of the
underlying trend, because it integrates over the noisy year-to-year
variation that dominates surface records everywhere.</p>
</article>
</body></html>`

// newTestStack serves a fake news API plus the article pages it points at.
func newTestStack(t *testing.T) *httptest.Server {
	t.Helper()

	var srvURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", http.NotFound)
	mux.HandleFunc("/gdelt", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"articles":[
{"url":"%[1]s/a/1","title":"one","seendate":"20250610T080000Z"},
{"url":"%[1]s/a/2","title":"two","seendate":"20250611T090000Z"},
{"url":"%[1]s/a/1?utm_source=x","title":"dup of one","seendate":"20250610T080000Z"},
{"url":"%[1]s/robots.txt","title":"skip me","seendate":""},
{"url":"%[1]s/","title":"bare domain","seendate":""}
]}`, srvURL)
	})
	mux.HandleFunc("/a/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, testArticleHTML)
	})
	srv := httptest.NewServer(mux)
	srvURL = srv.URL
	t.Cleanup(srv.Close)
	return srv
}

func testPipeline(t *testing.T, srv *httptest.Server, root string) *Pipeline {
	t.Helper()
	cfg := testConfigFor(srv, root)
	return New(cfg, testLogger())
}

func TestRunStoresUniqueArticles(t *testing.T) {
	srv := newTestStack(t)
	root := t.TempDir()

	p := testPipeline(t, srv, root)
	stats, err := p.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Two unique articles; the UTM variant, robots.txt URL and bare
	// domain are all dropped at merge.
	if got := stats.Discovered["gdelt"]; got != 2 {
		t.Errorf("discovered = %d, want 2", got)
	}
	if stats.Stored != 2 {
		t.Errorf("stored = %d, want 2", stats.Stored)
	}
	if stats.Fetched != 2 {
		t.Errorf("fetched = %d, want 2", stats.Fetched)
	}
	if stats.RunID == "" {
		t.Error("empty run_id")
	}

	if _, err := os.Stat(filepath.Join(root, "gdelt.jsonl")); err != nil {
		t.Errorf("gdelt.jsonl missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "_index.json")); err != nil {
		t.Errorf("_index.json missing: %v", err)
	}
}

func TestRunSecondPassIsAllDuplicates(t *testing.T) {
	srv := newTestStack(t)
	root := t.TempDir()

	p := testPipeline(t, srv, root)
	if _, err := p.Run(context.Background(), Options{}); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// Fresh pipeline against the same output dir: everything known.
	p2 := testPipeline(t, srv, root)
	stats, err := p2.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if stats.Stored != 0 {
		t.Errorf("stored = %d, want 0", stats.Stored)
	}
	if stats.IndexDuplicates != 2 {
		t.Errorf("index_duplicates = %d, want 2", stats.IndexDuplicates)
	}
}

func TestRunHonorsMaxFetch(t *testing.T) {
	srv := newTestStack(t)
	root := t.TempDir()

	p := testPipeline(t, srv, root)
	stats, err := p.Run(context.Background(), Options{MaxFetch: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Fetched != 1 || stats.Stored != 1 {
		t.Errorf("fetched=%d stored=%d, want 1/1", stats.Fetched, stats.Stored)
	}
}

func TestRunIncludeSourcesFilter(t *testing.T) {
	srv := newTestStack(t)
	root := t.TempDir()

	p := testPipeline(t, srv, root)
	stats, err := p.Run(context.Background(), Options{IncludeSources: []string{"youtube"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// GDELT excluded; youtube has no API key in tests.
	if stats.Fetched != 0 || stats.Stored != 0 {
		t.Errorf("fetched=%d stored=%d, want 0/0", stats.Fetched, stats.Stored)
	}
}

func TestStoreObserverSeesEachStoredDocument(t *testing.T) {
	srv := newTestStack(t)
	root := t.TempDir()

	var observed []string
	p := testPipeline(t, srv, root)
	stats, err := p.Run(context.Background(), Options{
		Observer: func(doc *types.Document, cand *types.Candidate) {
			if cand.Source != doc.Source {
				t.Errorf("observer source mismatch: %q vs %q", cand.Source, doc.Source)
			}
			observed = append(observed, doc.ID)
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(observed) != stats.Stored {
		t.Errorf("observer called %d times, stored %d", len(observed), stats.Stored)
	}
}

func testConfigFor(srv *httptest.Server, root string) *config.Config {
	cfg := config.Default()
	cfg.Keywords = []string{"climate"}
	cfg.Lang = []string{"en"}
	cfg.Quality.MinKeywordHits = 1
	cfg.TimeWindow.StartDate = "2025-06-01"
	cfg.TimeWindow.EndDate = "2025-06-30"
	cfg.Output.Root = root
	cfg.GDELT.Endpoint = srv.URL + "/gdelt"
	cfg.GDELT.PauseBetweenRequests = 0
	cfg.YouTube.Enabled = false
	cfg.RSS.Enabled = false
	cfg.Fetch.PauseSeconds = 0
	cfg.Fetch.MaxAttempts = 1
	cfg.Limits.RequestTimeoutSec = 5
	return cfg
}
