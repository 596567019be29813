package types

import (
	"time"
)

// Quality is the quality-gate verdict recorded on every stored document.
type Quality struct {
	Score           float64  `json:"score"`
	Reasons         []string `json:"reasons"`
	KeywordCoverage float64  `json:"keyword_coverage"`
	Length          int      `json:"length"`
	KeywordHits     int      `json:"keyword_hits"`
}

// CrawlMeta records provenance of the fetch that produced a document.
type CrawlMeta struct {
	RunID       string    `json:"run_id"`
	FetchedAt   time.Time `json:"fetched_at"`
	FetchedFrom string    `json:"fetched_from"`
}

// Comment is one comment attached to a forum thread or video.
type Comment struct {
	Author      string `json:"author"`
	Text        string `json:"text"`
	PublishedAt string `json:"publishedAt,omitempty"`
	ID          string `json:"id,omitempty"`
	Depth       int    `json:"depth,omitempty"`
	ReplyTo     string `json:"replyTo,omitempty"`
	LikeCount   int    `json:"likeCount,omitempty"`
}

// ForumExtra is the per-source bag stored under extra.forum.
type ForumExtra struct {
	Site     string    `json:"site"`
	Board    string    `json:"board,omitempty"`
	Comments []Comment `json:"comments"`
}

// Document is the canonical stored record. One JSON object per line in the
// per-source append-only logs.
type Document struct {
	// ID is the hex SHA-1 of the normalized URL.
	ID string `json:"id"`

	Source      string         `json:"source"`
	URL         string         `json:"url"`
	SnapshotURL string         `json:"snapshot_url,omitempty"`
	Title       string         `json:"title"`
	Text        string         `json:"text"`
	Lang        string         `json:"lang"`
	PublishedAt string         `json:"published_at,omitempty"`
	Authors     []string       `json:"authors"`
	Via         DiscoveredVia  `json:"discovered_via"`
	Quality     Quality        `json:"quality"`
	Crawl       CrawlMeta      `json:"crawl"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// ForumMeta returns the extra.forum bag if present.
func (d *Document) ForumMeta() (*ForumExtra, bool) {
	if d.Extra == nil {
		return nil, false
	}
	fe, ok := d.Extra["forum"].(*ForumExtra)
	return fe, ok
}
