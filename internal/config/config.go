package config

import (
	"fmt"
	"sort"
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the declarative run specification for the acquisition engine.
type Config struct {
	Keywords   []string         `mapstructure:"keywords"    yaml:"keywords"`
	Lang       []string         `mapstructure:"lang"        yaml:"lang"`
	TimeWindow TimeWindowConfig `mapstructure:"time_window" yaml:"time_window"`
	Output     OutputConfig     `mapstructure:"output"      yaml:"output"`
	Limits     LimitsConfig     `mapstructure:"limits"      yaml:"limits"`
	Quality    QualityConfig    `mapstructure:"quality"     yaml:"quality"`
	GDELT      GDELTConfig      `mapstructure:"gdelt"       yaml:"gdelt"`
	YouTube    YouTubeConfig    `mapstructure:"youtube"     yaml:"youtube"`
	Forums     ForumsConfig     `mapstructure:"forums"      yaml:"forums"`
	RSS        RSSConfig        `mapstructure:"rss"         yaml:"rss"`
	Fetch      FetchConfig      `mapstructure:"fetch"       yaml:"fetch"`
	AutoCrawl  AutoCrawlConfig  `mapstructure:"autocrawl"   yaml:"autocrawl"`
	Logging    LoggingConfig    `mapstructure:"logging"     yaml:"logging"`
}

// TimeWindowConfig is the half-open [start, end) discovery interval, UTC.
// EndDate defaults to "now" when empty.
type TimeWindowConfig struct {
	StartDate string `mapstructure:"start_date" yaml:"start_date"`
	EndDate   string `mapstructure:"end_date"   yaml:"end_date"`
}

// Window resolves the configured window to concrete UTC instants.
func (w TimeWindowConfig) Window(now time.Time) (time.Time, time.Time, error) {
	start, err := parseDate(w.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("time_window.start_date: %w", err)
	}
	end := now.UTC()
	if w.EndDate != "" {
		end, err = parseDate(w.EndDate)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("time_window.end_date: %w", err)
		}
	}
	return start, end, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// OutputConfig controls where per-source logs and state files live.
type OutputConfig struct {
	Root     string `mapstructure:"root"      yaml:"root"`
	FileName string `mapstructure:"file_name" yaml:"file_name"`
}

// LimitsConfig caps discovery and request behavior.
type LimitsConfig struct {
	MaxCandidatesPerSource int `mapstructure:"max_candidates_per_source" yaml:"max_candidates_per_source"`
	RequestTimeoutSec      int `mapstructure:"request_timeout_sec"       yaml:"request_timeout_sec"`
}

// RequestTimeout returns the HTTP timeout as a duration.
func (l LimitsConfig) RequestTimeout() time.Duration {
	if l.RequestTimeoutSec <= 0 {
		return 20 * time.Second
	}
	return time.Duration(l.RequestTimeoutSec) * time.Second
}

// QualityConfig controls the keyword-hits quality gate.
type QualityConfig struct {
	MinKeywordHits int `mapstructure:"min_keyword_hits" yaml:"min_keyword_hits"`
}

// GDELTConfig tunes the news-API discoverer.
type GDELTConfig struct {
	Enabled              bool    `mapstructure:"enabled"                yaml:"enabled"`
	Endpoint             string  `mapstructure:"endpoint"               yaml:"endpoint"`
	ChunkDays            int     `mapstructure:"chunk_days"             yaml:"chunk_days"`
	OverlapDays          int     `mapstructure:"overlap_days"           yaml:"overlap_days"`
	MaxRecords           int     `mapstructure:"max_records"            yaml:"max_records"`
	MaxConcurrency       int     `mapstructure:"max_concurrency"        yaml:"max_concurrency"`
	MaxAttempts          int     `mapstructure:"max_attempts"           yaml:"max_attempts"`
	RateLimitBackoffSec  float64 `mapstructure:"rate_limit_backoff_sec" yaml:"rate_limit_backoff_sec"`
	PauseBetweenRequests float64 `mapstructure:"pause_between_requests" yaml:"pause_between_requests"`
}

// YouTubeConfig tunes the video-API discoverer. The API key itself comes
// from the YOUTUBE_API_KEY environment variable.
type YouTubeConfig struct {
	Enabled    bool   `mapstructure:"enabled"     yaml:"enabled"`
	Endpoint   string `mapstructure:"endpoint"    yaml:"endpoint"`
	MaxResults int    `mapstructure:"max_results" yaml:"max_results"`
}

// ForumsConfig holds per-site forum settings in configured order.
type ForumsConfig struct {
	// SiteOrder fixes the iteration order of Sites; sites absent from the
	// list come after, alphabetically.
	SiteOrder []string                   `mapstructure:"site_order" yaml:"site_order"`
	Sites     map[string]ForumSiteConfig `mapstructure:"sites"      yaml:"sites"`
}

// OrderedSites returns enabled site keys in configured order.
func (f ForumsConfig) OrderedSites() []string {
	seen := make(map[string]bool, len(f.Sites))
	var out []string
	for _, s := range f.SiteOrder {
		if site, ok := f.Sites[s]; ok && site.Enabled && !seen[s] {
			out = append(out, s)
			seen[s] = true
		}
	}
	rest := make([]string, 0, len(f.Sites))
	for s, site := range f.Sites {
		if site.Enabled && !seen[s] {
			rest = append(rest, s)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

// ForumSiteConfig tunes one forum site.
type ForumSiteConfig struct {
	Enabled       bool     `mapstructure:"enabled"         yaml:"enabled"`
	Boards        []string `mapstructure:"boards"          yaml:"boards"`
	PageParam     string   `mapstructure:"page_param"      yaml:"page_param"`
	MaxPages      int      `mapstructure:"max_pages"       yaml:"max_pages"`
	PerBoardLimit int      `mapstructure:"per_board_limit" yaml:"per_board_limit"`
	ObeyRobots    *bool    `mapstructure:"obey_robots"     yaml:"obey_robots"`
	RenderJS      bool     `mapstructure:"render_js"       yaml:"render_js"`
	PauseSec      float64  `mapstructure:"pause_sec"       yaml:"pause_sec"`
}

// RobotsObeyed reports the effective obey_robots setting (default true).
func (s ForumSiteConfig) RobotsObeyed() bool {
	return s.ObeyRobots == nil || *s.ObeyRobots
}

// RSSConfig lists feed URLs for the optional RSS discoverer.
type RSSConfig struct {
	Enabled bool     `mapstructure:"enabled" yaml:"enabled"`
	Feeds   []string `mapstructure:"feeds"   yaml:"feeds"`
}

// FetchConfig tunes the shared fetcher.
type FetchConfig struct {
	PauseSeconds    float64            `mapstructure:"pause_seconds"      yaml:"pause_seconds"`
	PerHostPauseSec map[string]float64 `mapstructure:"per_host_pause_sec" yaml:"per_host_pause_sec"`
	UserAgent       string             `mapstructure:"user_agent"         yaml:"user_agent"`
	MaxBodySize     int64              `mapstructure:"max_body_size"      yaml:"max_body_size"`
	MaxAttempts     int                `mapstructure:"max_attempts"       yaml:"max_attempts"`
}

// AutoCrawlConfig holds the planner knobs.
type AutoCrawlConfig struct {
	MonthsBack             int              `mapstructure:"months_back"               yaml:"months_back"`
	MonthlyTargetPerSource int              `mapstructure:"monthly_target_per_source" yaml:"monthly_target_per_source"`
	IncludeForums          bool             `mapstructure:"include_forums"            yaml:"include_forums"`
	YouTube                QuotaConfig      `mapstructure:"youtube"                   yaml:"youtube"`
	Round                  RoundLimitConfig `mapstructure:"round"                     yaml:"round"`
}

// QuotaConfig is the daily API budget for the video source.
type QuotaConfig struct {
	DailyQuota   int `mapstructure:"daily_quota"   yaml:"daily_quota"`
	ReserveQuota int `mapstructure:"reserve_quota" yaml:"reserve_quota"`
}

// RoundLimitConfig caps one auto-crawl round.
type RoundLimitConfig struct {
	MaxFetch           int     `mapstructure:"max_fetch"            yaml:"max_fetch"`
	MaxGDELTWindows    int     `mapstructure:"max_gdelt_windows"    yaml:"max_gdelt_windows"`
	MaxYouTubeWindows  int     `mapstructure:"max_youtube_windows"  yaml:"max_youtube_windows"`
	MaxYouTubeKeywords int     `mapstructure:"max_youtube_keywords" yaml:"max_youtube_keywords"`
	MinStoredThreshold int     `mapstructure:"min_stored_threshold" yaml:"min_stored_threshold"`
	MaxDupRatio        float64 `mapstructure:"max_dup_ratio"        yaml:"max_dup_ratio"`
	CooldownRounds     int     `mapstructure:"cooldown_rounds"      yaml:"cooldown_rounds"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Lang: []string{"ko"},
		Output: OutputConfig{
			Root: "./data",
		},
		Limits: LimitsConfig{
			MaxCandidatesPerSource: 200,
			RequestTimeoutSec:      20,
		},
		Quality: QualityConfig{
			MinKeywordHits: 1,
		},
		GDELT: GDELTConfig{
			Enabled:              true,
			Endpoint:             "https://api.gdeltproject.org/api/v2/doc/doc",
			ChunkDays:            7,
			OverlapDays:          0,
			MaxRecords:           75,
			MaxConcurrency:       3,
			MaxAttempts:          4,
			RateLimitBackoffSec:  5,
			PauseBetweenRequests: 1,
		},
		YouTube: YouTubeConfig{
			Enabled:    true,
			Endpoint:   "https://www.googleapis.com/youtube/v3",
			MaxResults: 50,
		},
		Forums: ForumsConfig{
			Sites: map[string]ForumSiteConfig{},
		},
		Fetch: FetchConfig{
			PauseSeconds: 1,
			MaxBodySize:  10 * 1024 * 1024,
			MaxAttempts:  3,
		},
		AutoCrawl: AutoCrawlConfig{
			MonthsBack:             12,
			MonthlyTargetPerSource: 100,
			IncludeForums:          true,
			YouTube: QuotaConfig{
				DailyQuota:   10000,
				ReserveQuota: 1000,
			},
			Round: RoundLimitConfig{
				MaxFetch:           300,
				MaxGDELTWindows:    2,
				MaxYouTubeWindows:  1,
				MaxYouTubeKeywords: 5,
				MinStoredThreshold: 3,
				MaxDupRatio:        0.85,
				CooldownRounds:     3,
			},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Clone returns a deep copy, used by the auto-crawler to narrow windows
// per sub-run without touching the base config.
func (c *Config) Clone() *Config {
	out := *c
	out.Keywords = append([]string(nil), c.Keywords...)
	out.Lang = append([]string(nil), c.Lang...)
	out.RSS.Feeds = append([]string(nil), c.RSS.Feeds...)
	out.Forums.SiteOrder = append([]string(nil), c.Forums.SiteOrder...)
	out.Forums.Sites = make(map[string]ForumSiteConfig, len(c.Forums.Sites))
	for k, v := range c.Forums.Sites {
		v.Boards = append([]string(nil), v.Boards...)
		if v.ObeyRobots != nil {
			b := *v.ObeyRobots
			v.ObeyRobots = &b
		}
		out.Forums.Sites[k] = v
	}
	out.Fetch.PerHostPauseSec = make(map[string]float64, len(c.Fetch.PerHostPauseSec))
	for k, v := range c.Fetch.PerHostPauseSec {
		out.Fetch.PerHostPauseSec[k] = v
	}
	return &out
}
