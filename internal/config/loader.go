package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from a params file plus the environment.
// Priority (highest to lowest): env vars > params file > defaults.
func Load(paramsPath string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, cfg)

	v.SetEnvPrefix("KCORPUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if paramsPath != "" {
		v.SetConfigFile(paramsPath)
	} else {
		v.SetConfigName("params")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && paramsPath != "" {
			return nil, fmt.Errorf("read params file: %w", err)
		}
		// A missing params file is fine unless one was named explicitly.
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal params: %w", err)
	}

	// Lower-case language codes so matching is uniform downstream.
	for i, l := range cfg.Lang {
		cfg.Lang[i] = strings.ToLower(l)
	}

	return cfg, nil
}

// setDefaults registers default values in viper.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("lang", cfg.Lang)
	v.SetDefault("output.root", cfg.Output.Root)
	v.SetDefault("limits.max_candidates_per_source", cfg.Limits.MaxCandidatesPerSource)
	v.SetDefault("limits.request_timeout_sec", cfg.Limits.RequestTimeoutSec)
	v.SetDefault("quality.min_keyword_hits", cfg.Quality.MinKeywordHits)

	v.SetDefault("gdelt.enabled", cfg.GDELT.Enabled)
	v.SetDefault("gdelt.endpoint", cfg.GDELT.Endpoint)
	v.SetDefault("gdelt.chunk_days", cfg.GDELT.ChunkDays)
	v.SetDefault("gdelt.max_records", cfg.GDELT.MaxRecords)
	v.SetDefault("gdelt.max_concurrency", cfg.GDELT.MaxConcurrency)
	v.SetDefault("gdelt.max_attempts", cfg.GDELT.MaxAttempts)
	v.SetDefault("gdelt.rate_limit_backoff_sec", cfg.GDELT.RateLimitBackoffSec)
	v.SetDefault("gdelt.pause_between_requests", cfg.GDELT.PauseBetweenRequests)

	v.SetDefault("youtube.enabled", cfg.YouTube.Enabled)
	v.SetDefault("youtube.endpoint", cfg.YouTube.Endpoint)
	v.SetDefault("youtube.max_results", cfg.YouTube.MaxResults)

	v.SetDefault("fetch.pause_seconds", cfg.Fetch.PauseSeconds)
	v.SetDefault("fetch.max_body_size", cfg.Fetch.MaxBodySize)
	v.SetDefault("fetch.max_attempts", cfg.Fetch.MaxAttempts)

	v.SetDefault("autocrawl.months_back", cfg.AutoCrawl.MonthsBack)
	v.SetDefault("autocrawl.monthly_target_per_source", cfg.AutoCrawl.MonthlyTargetPerSource)
	v.SetDefault("autocrawl.include_forums", cfg.AutoCrawl.IncludeForums)
	v.SetDefault("autocrawl.youtube.daily_quota", cfg.AutoCrawl.YouTube.DailyQuota)
	v.SetDefault("autocrawl.youtube.reserve_quota", cfg.AutoCrawl.YouTube.ReserveQuota)
	v.SetDefault("autocrawl.round.max_fetch", cfg.AutoCrawl.Round.MaxFetch)
	v.SetDefault("autocrawl.round.max_gdelt_windows", cfg.AutoCrawl.Round.MaxGDELTWindows)
	v.SetDefault("autocrawl.round.max_youtube_windows", cfg.AutoCrawl.Round.MaxYouTubeWindows)
	v.SetDefault("autocrawl.round.max_youtube_keywords", cfg.AutoCrawl.Round.MaxYouTubeKeywords)
	v.SetDefault("autocrawl.round.min_stored_threshold", cfg.AutoCrawl.Round.MinStoredThreshold)
	v.SetDefault("autocrawl.round.max_dup_ratio", cfg.AutoCrawl.Round.MaxDupRatio)
	v.SetDefault("autocrawl.round.cooldown_rounds", cfg.AutoCrawl.Round.CooldownRounds)

	v.SetDefault("logging.level", cfg.Logging.Level)
}
