package types

import (
	"time"
)

// Source identifiers for the built-in discoverers.
const (
	SourceGDELT   = "gdelt"
	SourceYouTube = "youtube"
	SourceRSS     = "rss"
)

// Discovery type tags for DiscoveredVia.
const (
	ViaNews  = "news"
	ViaVideo = "video"
	ViaForum = "forum"
	ViaRSS   = "rss"
)

// DiscoveredVia describes how a candidate was found.
// Exactly one Type is set; the remaining fields depend on it.
type DiscoveredVia struct {
	Type     string `json:"type"`
	Keyword  string `json:"keyword,omitempty"`
	Seendate string `json:"seendate,omitempty"`
	Window   string `json:"window,omitempty"`
	Site     string `json:"site,omitempty"`
	Board    string `json:"board,omitempty"`
	Page     int    `json:"page,omitempty"`
	Feed     string `json:"feed,omitempty"`
}

// Candidate is a discovery-time URL with provenance, not yet fetched.
// Two candidates with equal normalized URL are the same candidate.
type Candidate struct {
	// URL is the resource URL as discovered (not normalized).
	URL string

	// Source identifies the discoverer family: "gdelt", "youtube", "rss",
	// or a forum site key such as "dcinside".
	Source string

	// Via records how this candidate was discovered.
	Via DiscoveredVia

	// HintedAt is an optional timestamp hint used as a fallback
	// published_at when extraction yields none.
	HintedAt *time.Time

	// Title is an optional title known at discovery time.
	Title string

	// Extra is an open-ended, source-specific attribute bag.
	Extra map[string]any
}

// RobotsOverride reports whether this candidate may bypass the fetcher's
// robots.txt check (set from a site-level obey_robots:false).
func (c *Candidate) RobotsOverride() bool {
	if c.Extra == nil {
		return false
	}
	v, ok := c.Extra["robots_override"].(bool)
	return ok && v
}

// SetRobotsOverride marks the candidate as exempt from robots checks.
func (c *Candidate) SetRobotsOverride() {
	if c.Extra == nil {
		c.Extra = make(map[string]any, 1)
	}
	c.Extra["robots_override"] = true
}
