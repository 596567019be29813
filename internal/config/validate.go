package config

import (
	"fmt"
	"net/url"
	"time"
)

// Validate checks a loaded configuration for contradictions that would
// make a run meaningless.
func Validate(cfg *Config) error {
	if len(cfg.Keywords) == 0 {
		return fmt.Errorf("keywords must not be empty")
	}
	if cfg.TimeWindow.StartDate == "" {
		return fmt.Errorf("time_window.start_date is required")
	}
	start, end, err := cfg.TimeWindow.Window(time.Now())
	if err != nil {
		return err
	}
	if !start.Before(end) {
		return fmt.Errorf("time_window: start %s is not before end %s", start, end)
	}
	if cfg.Output.Root == "" {
		return fmt.Errorf("output.root is required")
	}
	if cfg.Limits.MaxCandidatesPerSource < 0 {
		return fmt.Errorf("limits.max_candidates_per_source must be >= 0")
	}
	if cfg.GDELT.ChunkDays <= 0 {
		return fmt.Errorf("gdelt.chunk_days must be > 0")
	}
	if cfg.GDELT.MaxConcurrency <= 0 {
		return fmt.Errorf("gdelt.max_concurrency must be > 0")
	}
	if cfg.AutoCrawl.YouTube.ReserveQuota > cfg.AutoCrawl.YouTube.DailyQuota {
		return fmt.Errorf("autocrawl.youtube: reserve_quota %d exceeds daily_quota %d",
			cfg.AutoCrawl.YouTube.ReserveQuota, cfg.AutoCrawl.YouTube.DailyQuota)
	}
	for site, sc := range cfg.Forums.Sites {
		if !sc.Enabled {
			continue
		}
		if len(sc.Boards) == 0 {
			return fmt.Errorf("forums.sites.%s: enabled but no boards", site)
		}
		for _, b := range sc.Boards {
			if _, err := url.ParseRequestURI(b); err != nil {
				return fmt.Errorf("forums.sites.%s: bad board URL %q: %w", site, b, err)
			}
		}
	}
	for _, f := range cfg.RSS.Feeds {
		if _, err := url.ParseRequestURI(f); err != nil {
			return fmt.Errorf("rss: bad feed URL %q: %w", f, err)
		}
	}
	return nil
}
