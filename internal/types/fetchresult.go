package types

import (
	"time"
)

// FetchResult is the outcome of one successful fetch. It is produced once
// per candidate and consumed once by the extractor.
type FetchResult struct {
	// URL is the URL that was fetched.
	URL string

	// FetchedFrom is the origin of the bytes. The live path is the only
	// one implemented; archival fetchers would report their own value.
	FetchedFrom string

	// StatusCode is the final HTTP status.
	StatusCode int

	// HTML is the decoded page body.
	HTML string

	// SnapshotURL is set by archival fetchers; empty for live fetches.
	SnapshotURL string

	// Encoding is the charset the body was decoded with.
	Encoding string

	// FetchedAt is the UTC instant the fetch completed.
	FetchedAt time.Time
}

// FetchedLive is the FetchedFrom value for direct fetches.
const FetchedLive = "live"
