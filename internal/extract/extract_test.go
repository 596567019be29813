package extract

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/kcorpus/crawler/internal/config"
	"github.com/kcorpus/crawler/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Keywords = []string{"climate", "ocean"}
	cfg.Lang = []string{"en"}
	cfg.Quality.MinKeywordHits = 1
	return cfg
}

const articleHTML = `<html><head><title>Climate report</title></head><body>
<article>
<h1>Climate report</h1>
<p>The climate is changing faster than models predicted, researchers said
on Thursday, citing a decade of ocean temperature measurements collected
by autonomous floats across every major basin.</p>
<p>The report argues that ocean heat content is the clearest signal of the
underlying trend, because it integrates over the noisy year-to-year
variation that dominates surface records.</p>
<p>Policy makers are expected to discuss the findings next month.</p>
</article>
</body></html>`

func fetchResult(html string) *types.FetchResult {
	return &types.FetchResult{
		URL:         "https://news.example.com/articles/42",
		FetchedFrom: types.FetchedLive,
		StatusCode:  200,
		HTML:        html,
		Encoding:    "utf-8",
		FetchedAt:   time.Date(2025, 6, 12, 10, 0, 0, 0, time.UTC),
	}
}

func TestBuildDocumentStoresArticle(t *testing.T) {
	e := New(testConfig(), testLogger())
	cand := &types.Candidate{
		URL:    "https://news.example.com/articles/42",
		Source: types.SourceGDELT,
		Via:    types.DiscoveredVia{Type: types.ViaNews, Keyword: "climate"},
	}

	doc, verdict := e.BuildDocument(context.Background(), cand, fetchResult(articleHTML), "run-1")
	if verdict != nil {
		t.Fatalf("unexpected verdict: %+v", verdict)
	}
	if doc.ID == "" || len(doc.ID) != 40 {
		t.Errorf("ID = %q, want 40-char SHA-1 hex", doc.ID)
	}
	if !strings.Contains(doc.Text, "ocean heat content") {
		t.Errorf("text missing article body: %q", doc.Text)
	}
	if doc.Lang != "eng" {
		t.Errorf("Lang = %q, want eng", doc.Lang)
	}
	if doc.Quality.KeywordHits != 2 {
		t.Errorf("KeywordHits = %d, want 2", doc.Quality.KeywordHits)
	}
	if doc.Quality.KeywordCoverage != 1.0 {
		t.Errorf("KeywordCoverage = %v, want 1.0", doc.Quality.KeywordCoverage)
	}
	if doc.Quality.Score != 0.5 {
		t.Errorf("Score = %v, want 0.5", doc.Quality.Score)
	}
	if doc.Crawl.RunID != "run-1" || doc.Crawl.FetchedFrom != types.FetchedLive {
		t.Errorf("bad crawl meta: %+v", doc.Crawl)
	}
}

func TestBuildDocumentQualityReject(t *testing.T) {
	cfg := testConfig()
	cfg.Keywords = []string{"blockchain"}
	e := New(cfg, testLogger())
	cand := &types.Candidate{
		URL:    "https://news.example.com/articles/42",
		Source: types.SourceGDELT,
		Via:    types.DiscoveredVia{Type: types.ViaNews},
	}

	doc, verdict := e.BuildDocument(context.Background(), cand, fetchResult(articleHTML), "run-1")
	if doc != nil {
		t.Fatal("document produced despite zero keyword hits")
	}
	if verdict == nil || verdict.Status != StatusQualityReject || verdict.Reason != "keyword_hits" {
		t.Fatalf("verdict = %+v", verdict)
	}
	if verdict.Quality == nil || verdict.Quality.KeywordHits != 0 {
		t.Errorf("quality = %+v", verdict.Quality)
	}
}

func TestBuildDocumentVideoExtraFlattened(t *testing.T) {
	t.Setenv("YOUTUBE_API_KEY", "")

	e := New(testConfig(), testLogger())
	cand := &types.Candidate{
		URL:    "https://www.youtube.com/watch?v=abc123",
		Source: types.SourceYouTube,
		Title:  "Climate briefing",
		Via:    types.DiscoveredVia{Type: types.ViaVideo, Keyword: "climate"},
		Extra: map[string]any{"youtube": map[string]any{
			"id":         "abc123",
			"snippet":    map[string]any{"title": "Climate briefing", "description": "ocean heat in depth"},
			"statistics": map[string]any{"viewCount": "1200"},
		}},
	}

	doc, verdict := e.BuildDocument(context.Background(), cand, fetchResult("<html><body></body></html>"), "run-1")
	if doc == nil {
		t.Fatalf("verdict = %+v", verdict)
	}
	yt, ok := doc.Extra["youtube"].(map[string]any)
	if !ok {
		t.Fatalf("extra = %#v", doc.Extra)
	}
	for _, key := range []string{"id", "snippet", "statistics", "comments"} {
		if _, ok := yt[key]; !ok {
			t.Errorf("extra.youtube missing %q: %#v", key, yt)
		}
	}
	if _, nested := yt["detail"]; nested {
		t.Error("video detail nested under extra.youtube.detail")
	}
	if !strings.Contains(doc.Text, "ocean heat in depth") {
		t.Errorf("description not composed into text: %q", doc.Text)
	}
}

func TestQualityGateMonotonic(t *testing.T) {
	// Raising min_keyword_hits never turns a reject into an accept.
	text := "climate climate climate"
	rejected := false
	for min := 0; min <= 4; min++ {
		cfg := testConfig()
		cfg.Quality.MinKeywordHits = min
		e := New(cfg, testLogger())
		_, reject := e.qualityGate(text, "eng")
		if rejected && !reject {
			t.Fatalf("min=%d accepted after a lower min rejected", min)
		}
		rejected = reject
	}
}

func TestBuildDocumentExtractFailed(t *testing.T) {
	e := New(testConfig(), testLogger())
	cand := &types.Candidate{
		URL:    "https://news.example.com/empty",
		Source: types.SourceGDELT,
		Via:    types.DiscoveredVia{Type: types.ViaNews},
	}

	doc, verdict := e.BuildDocument(context.Background(), cand, fetchResult("<html><body></body></html>"), "run-1")
	if doc != nil || verdict == nil || verdict.Status != StatusExtractFailed {
		t.Fatalf("doc=%v verdict=%+v, want extract-failed", doc, verdict)
	}
}

func TestForumSynthesisUsesOgTitle(t *testing.T) {
	t.Setenv("FORUMS_COMMENTS_ENABLED", "0")

	cfg := testConfig()
	cfg.Quality.MinKeywordHits = 0
	e := New(cfg, testLogger())

	html := `<html><head>
<meta property="og:title" content="스레드 제목">
<title>fallback title</title>
</head><body></body></html>`
	hinted := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cand := &types.Candidate{
		URL:      "https://forum.example.com/board/view/?id=b&no=1",
		Source:   "dcinside",
		Via:      types.DiscoveredVia{Type: types.ViaForum, Site: "dcinside", Board: "b"},
		HintedAt: &hinted,
	}

	doc, verdict := e.BuildDocument(context.Background(), cand, fetchResult(html), "run-1")
	if verdict != nil {
		t.Fatalf("verdict = %+v", verdict)
	}
	if doc.Title != "스레드 제목" {
		t.Errorf("Title = %q, want og:title", doc.Title)
	}
	if doc.PublishedAt != hinted.Format(time.RFC3339) {
		t.Errorf("PublishedAt = %q, want hint fallback", doc.PublishedAt)
	}
	if fe, ok := doc.Extra["forum"].(*types.ForumExtra); !ok || fe.Site != "dcinside" {
		t.Errorf("extra.forum = %+v", doc.Extra["forum"])
	}
}

func TestForumPublishedAtPrefersMetadataSelector(t *testing.T) {
	t.Setenv("FORUMS_COMMENTS_ENABLED", "0")

	cfg := testConfig()
	cfg.Quality.MinKeywordHits = 0
	e := New(cfg, testLogger())

	html := `<html><head><title>글</title></head><body>
<span class="gall_date" title="2025-06-10 09:00:00">06.10</span>
<p>본문에 다른 날짜 2025-06-12 21:00:00 이 있어도 메타데이터가 우선.</p>
</body></html>`
	cand := &types.Candidate{
		URL:    "https://forum.example.com/board/view/?id=b&no=2",
		Source: "dcinside",
		Via:    types.DiscoveredVia{Type: types.ViaForum, Site: "dcinside", Board: "b"},
	}

	doc, verdict := e.BuildDocument(context.Background(), cand, fetchResult(html), "run-1")
	if verdict != nil {
		t.Fatalf("verdict = %+v", verdict)
	}
	want := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC).Format(time.RFC3339)
	if doc.PublishedAt != want {
		t.Errorf("PublishedAt = %q, want %q (metadata selector short-circuit)", doc.PublishedAt, want)
	}
}
