package discover

import (
	"context"
	"log/slog"

	"github.com/mmcdole/gofeed"

	"github.com/kcorpus/crawler/internal/config"
	"github.com/kcorpus/crawler/internal/types"
)

// RSS discovers candidates from configured syndication feeds. Feeds
// outside the window are filtered by item publication time; items with
// no parsable time are kept without a hint.
type RSS struct {
	cfg    *config.Config
	parser *gofeed.Parser
	logger *slog.Logger
	window *Window
}

// NewRSS creates the feed discoverer. window may be nil for unbounded
// discovery.
func NewRSS(cfg *config.Config, window *Window, logger *slog.Logger) *RSS {
	p := gofeed.NewParser()
	if ua := cfg.Fetch.UserAgent; ua != "" {
		p.UserAgent = ua
	}
	return &RSS{
		cfg:    cfg,
		parser: p,
		logger: logger.With("component", "discover_rss"),
		window: window,
	}
}

func (r *RSS) Source() string { return types.SourceRSS }

func (r *RSS) Discover(ctx context.Context) ([]types.Candidate, error) {
	if !r.cfg.RSS.Enabled || len(r.cfg.RSS.Feeds) == 0 {
		return nil, nil
	}

	var cands []types.Candidate
	for _, feedURL := range r.cfg.RSS.Feeds {
		feed, err := r.parser.ParseURLWithContext(feedURL, ctx)
		if err != nil {
			// A broken feed never aborts the rest.
			r.logger.Warn("feed parse failed", "feed", feedURL, "error", err)
			continue
		}
		for _, item := range feed.Items {
			if item.Link == "" {
				continue
			}
			cand := types.Candidate{
				URL:    item.Link,
				Source: types.SourceRSS,
				Title:  item.Title,
				Via: types.DiscoveredVia{
					Type: types.ViaRSS,
					Feed: feedURL,
				},
			}
			if item.PublishedParsed != nil {
				utc := item.PublishedParsed.UTC()
				if r.window != nil && (utc.Before(r.window.Start) || !utc.Before(r.window.End)) {
					continue
				}
				cand.HintedAt = &utc
			}
			cands = append(cands, cand)
		}
	}
	r.logger.Info("rss discovery done", "feeds", len(r.cfg.RSS.Feeds), "candidates", len(cands))
	return cands, nil
}
