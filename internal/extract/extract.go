// Package extract turns fetched HTML into canonical documents: primary
// readability extraction, per-source augmentation (video comments,
// forum comments), published-at inference, and the keyword quality gate.
package extract

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/kcorpus/crawler/internal/config"
	"github.com/kcorpus/crawler/internal/fetch"
	"github.com/kcorpus/crawler/internal/types"
	"github.com/kcorpus/crawler/internal/urlnorm"
)

// Verdict statuses for a rejected candidate.
const (
	StatusOK            = "ok"
	StatusExtractFailed = "extract-failed"
	StatusQualityReject = "quality-reject"
)

// Verdict reports why BuildDocument produced no document. Quality is
// attached on quality rejects so stats can carry the measured values.
type Verdict struct {
	Status  string
	Reason  string
	Quality *types.Quality
}

// Extractor builds documents from fetch results.
type Extractor struct {
	cfg       *config.Config
	logger    *slog.Logger
	client    *retryablehttp.Client
	userAgent string
}

// New creates an extractor. The internal client serves secondary
// requests only (video comment API); thread comment fetchers build
// their own transient sessions.
func New(cfg *config.Config, logger *slog.Logger) *Extractor {
	ua := cfg.Fetch.UserAgent
	if ua == "" {
		ua = fetch.DefaultUserAgent
	}
	return &Extractor{
		cfg:       cfg,
		logger:    logger.With("component", "extract"),
		client:    fetch.NewRetryClient(cfg.Limits.RequestTimeout(), 2, logger),
		userAgent: ua,
	}
}

// extraction is the intermediate result between stages.
type extraction struct {
	title       string
	text        string
	authors     []string
	publishedAt string
}

// BuildDocument runs the full extraction chain. Exactly one of the
// returned document and the reject verdict is non-nil.
func (e *Extractor) BuildDocument(ctx context.Context, cand *types.Candidate, res *types.FetchResult, runID string) (*types.Document, *Verdict) {
	isVideo := cand.Via.Type == types.ViaVideo
	isForum := cand.Via.Type == types.ViaForum

	ex, ok := e.primaryExtract(cand, res)
	if !ok {
		if !isVideo && !isForum {
			return nil, &Verdict{Status: StatusExtractFailed}
		}
		ex = e.synthesize(cand, res, isVideo)
	}

	extra := make(map[string]any)

	if isVideo {
		e.augmentVideo(ctx, cand, &ex, extra)
	}
	if isForum {
		e.augmentForum(ctx, cand, res, &ex, extra)
	}

	publishedAt := e.inferPublishedAt(cand, res, &ex, extra, isForum)

	lang := DetectLang(ex.text)
	quality, reject := e.qualityGate(ex.text, lang)
	if reject {
		return nil, &Verdict{Status: StatusQualityReject, Reason: "keyword_hits", Quality: &quality}
	}

	doc := &types.Document{
		ID:          urlnorm.DocID(cand.URL),
		Source:      cand.Source,
		URL:         cand.URL,
		SnapshotURL: res.SnapshotURL,
		Title:       ex.title,
		Text:        ex.text,
		Lang:        lang,
		PublishedAt: publishedAt,
		Authors:     ex.authors,
		Via:         cand.Via,
		Quality:     quality,
		Crawl: types.CrawlMeta{
			RunID:       runID,
			FetchedAt:   res.FetchedAt,
			FetchedFrom: res.FetchedFrom,
		},
	}
	if len(extra) > 0 {
		doc.Extra = extra
	}
	return doc, nil
}

// primaryExtract runs readability over the fetched HTML.
func (e *Extractor) primaryExtract(cand *types.Candidate, res *types.FetchResult) (extraction, bool) {
	pageURL, err := url.Parse(cand.URL)
	if err != nil {
		return extraction{}, false
	}
	article, err := readability.FromReader(strings.NewReader(res.HTML), pageURL)
	if err != nil {
		e.logger.Debug("readability failed", "url", cand.URL, "error", err)
		return extraction{}, false
	}

	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		return extraction{}, false
	}

	ex := extraction{
		title: strings.TrimSpace(article.Title),
		text:  text,
	}
	if article.Byline != "" {
		ex.authors = []string{strings.TrimSpace(article.Byline)}
	}
	if article.PublishedTime != nil {
		ex.publishedAt = article.PublishedTime.UTC().Format(time.RFC3339)
	}
	if ex.title == "" {
		ex.title = cand.Title
	}
	return ex, true
}

// synthesize produces the empty-text result used when primary
// extraction fails for video and forum candidates.
func (e *Extractor) synthesize(cand *types.Candidate, res *types.FetchResult, isVideo bool) extraction {
	title := cand.Title
	if !isVideo {
		if t := pageTitle(res.HTML); t != "" {
			title = t
		}
	}
	return extraction{title: title}
}

// pageTitle prefers og:title over <title>.
func pageTitle(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	if og, ok := doc.Find(`meta[property="og:title"]`).First().Attr("content"); ok && strings.TrimSpace(og) != "" {
		return strings.TrimSpace(og)
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// augmentVideo composes title, description, base text and comments.
func (e *Extractor) augmentVideo(ctx context.Context, cand *types.Candidate, ex *extraction, extra map[string]any) {
	meta := decodeVideoMeta(cand)

	var description string
	if meta != nil {
		description = meta.Snippet.Description
		if ex.title == "" {
			ex.title = meta.Snippet.Title
		}
	}

	comments := e.fetchVideoComments(ctx, videoID(cand))

	parts := make([]string, 0, 4)
	if ex.title != "" {
		parts = append(parts, ex.title)
	}
	if description != "" {
		parts = append(parts, description)
	}
	if ex.text != "" {
		parts = append(parts, ex.text)
	}
	if len(comments) > 0 {
		joined := make([]string, 0, len(comments))
		for _, c := range comments {
			joined = append(joined, c.Text)
		}
		parts = append(parts, strings.Join(joined, "\n"))
	}
	ex.text = strings.Join(parts, "\n\n")

	yt := map[string]any{}
	for k, v := range videoDetailFields(cand) {
		yt[k] = v
	}
	yt["comments"] = comments
	extra["youtube"] = yt
}

// augmentForum appends comment text and stores the structured list.
func (e *Extractor) augmentForum(ctx context.Context, cand *types.Candidate, res *types.FetchResult, ex *extraction, extra map[string]any) {
	comments := e.fetchForumComments(ctx, cand.Via.Site, cand.URL, res.HTML)

	if len(comments) > 0 {
		joined := make([]string, 0, len(comments))
		for _, c := range comments {
			joined = append(joined, c.Text)
		}
		if ex.text != "" {
			ex.text += "\n\n"
		}
		ex.text += strings.Join(joined, "\n")
	}

	extra["forum"] = &types.ForumExtra{
		Site:     cand.Via.Site,
		Board:    cand.Via.Board,
		Comments: comments,
	}
}

// dcDateSelector is the explicit per-post metadata timestamp on
// DC-style thread pages; a match short-circuits forum inference.
const dcDateSelector = `span.gall_date`

// inferPublishedAt normalizes the extractor-provided timestamp, then for
// forums scans text, raw HTML and comment timestamps, preferring tokens
// with a time-of-day and the latest within that group. Candidate hint is
// the last resort.
func (e *Extractor) inferPublishedAt(cand *types.Candidate, res *types.FetchResult, ex *extraction, extra map[string]any, isForum bool) string {
	if ex.publishedAt != "" {
		if t, _, ok := ParseLoose(ex.publishedAt); ok {
			return t.Format(time.RFC3339)
		}
	}

	if isForum {
		if cand.Via.Site == "dcinside" {
			if raw := metadataTimestamp(res.HTML, dcDateSelector); raw != "" {
				if t, _, ok := ParseLoose(raw); ok {
					return t.Format(time.RFC3339)
				}
			}
		}

		var tokens []dateToken
		tokens = append(tokens, findDateTokens(ex.text)...)
		tokens = append(tokens, findDateTokens(res.HTML)...)
		if fe, ok := extra["forum"].(*types.ForumExtra); ok {
			for _, c := range fe.Comments {
				if t, hasTime, ok := ParseLoose(c.PublishedAt); ok {
					tokens = append(tokens, dateToken{t: t, hasTime: hasTime})
				}
			}
		}
		if len(tokens) > 0 {
			return bestToken(tokens).t.Format(time.RFC3339)
		}
	}

	if cand.HintedAt != nil {
		return cand.HintedAt.UTC().Format(time.RFC3339)
	}
	return ""
}

// metadataTimestamp pulls a timestamp attribute or text via selector.
func metadataTimestamp(html, selector string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	node := doc.Find(selector).First()
	if raw, ok := node.Attr("title"); ok && strings.TrimSpace(raw) != "" {
		return strings.TrimSpace(raw)
	}
	return strings.TrimSpace(node.Text())
}

// qualityGate computes keyword hits, coverage and the score; reject is
// true when hits fall under quality.min_keyword_hits.
func (e *Extractor) qualityGate(text, lang string) (types.Quality, bool) {
	lower := strings.ToLower(text)

	hits := 0
	for _, kw := range e.cfg.Keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			hits++
		}
	}
	coverage := 0.0
	if len(e.cfg.Keywords) > 0 {
		coverage = float64(hits) / float64(len(e.cfg.Keywords))
	}

	var reasons []string
	langOK := false
	for _, allowed := range e.cfg.Lang {
		if langMatches(lang, allowed) {
			langOK = true
			break
		}
	}
	if !langOK {
		reasons = append(reasons, "lang")
	}
	hitsOK := hits >= e.cfg.Quality.MinKeywordHits
	if !hitsOK {
		reasons = append(reasons, "keyword_hits")
	}

	score := 0.0
	if langOK {
		score += 0.3
	}
	if hitsOK {
		score += 0.2
	}

	q := types.Quality{
		Score:           score,
		Reasons:         reasons,
		KeywordCoverage: coverage,
		Length:          len([]rune(text)),
		KeywordHits:     hits,
	}
	return q, !hitsOK
}

// langMatches compares a detected ISO 639-3 code against a configured
// code that may be 639-1 ("ko") or 639-3 ("kor").
func langMatches(detected, allowed string) bool {
	allowed = strings.ToLower(allowed)
	if detected == allowed {
		return true
	}
	iso1to3 := map[string]string{
		"ko": "kor", "en": "eng", "ja": "jpn", "zh": "cmn",
		"fr": "fra", "de": "deu", "es": "spa",
	}
	return iso1to3[allowed] == detected
}
