package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Keywords = []string{"전기차"}
	cfg.TimeWindow.StartDate = "2025-01-01"
	return cfg
}

func TestWindowDefaultsEndToNow(t *testing.T) {
	now := time.Date(2025, 11, 20, 12, 0, 0, 0, time.UTC)
	w := TimeWindowConfig{StartDate: "2025-06-01"}
	start, end, err := w.Window(now)
	if err != nil {
		t.Fatalf("Window: %v", err)
	}
	if !start.Equal(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("start = %v", start)
	}
	if !end.Equal(now) {
		t.Errorf("end = %v, want now", end)
	}
}

func TestWindowAcceptsDatetime(t *testing.T) {
	w := TimeWindowConfig{StartDate: "2025-06-01 08:30:00", EndDate: "2025-07-01 00:00:00"}
	start, end, err := w.Window(time.Now())
	if err != nil {
		t.Fatalf("Window: %v", err)
	}
	if start.Hour() != 8 || start.Minute() != 30 {
		t.Errorf("start = %v", start)
	}
	if end.Day() != 1 || end.Month() != 7 {
		t.Errorf("end = %v", end)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(cfg *Config)
	}{
		{"no keywords", func(cfg *Config) { cfg.Keywords = nil }},
		{"no start date", func(cfg *Config) { cfg.TimeWindow.StartDate = "" }},
		{"inverted window", func(cfg *Config) {
			cfg.TimeWindow.StartDate = "2025-06-01"
			cfg.TimeWindow.EndDate = "2025-01-01"
		}},
		{"no output root", func(cfg *Config) { cfg.Output.Root = "" }},
		{"reserve over daily", func(cfg *Config) {
			cfg.AutoCrawl.YouTube.DailyQuota = 100
			cfg.AutoCrawl.YouTube.ReserveQuota = 200
		}},
		{"enabled site without boards", func(cfg *Config) {
			cfg.Forums.Sites["dcinside"] = ForumSiteConfig{Enabled: true}
		}},
		{"bad board url", func(cfg *Config) {
			cfg.Forums.Sites["dcinside"] = ForumSiteConfig{Enabled: true, Boards: []string{"not a url"}}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Error("Validate accepted a broken config")
			}
		})
	}
}

func TestValidateAcceptsDefault(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestOrderedSites(t *testing.T) {
	f := ForumsConfig{
		SiteOrder: []string{"theqoo", "dcinside", "missing"},
		Sites: map[string]ForumSiteConfig{
			"dcinside":   {Enabled: true},
			"theqoo":     {Enabled: true},
			"bobaedream": {Enabled: true},
			"ppomppu":    {Enabled: false},
		},
	}
	got := f.OrderedSites()
	want := []string{"theqoo", "dcinside", "bobaedream"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("OrderedSites = %v, want %v", got, want)
	}
}

func TestCloneIsDeep(t *testing.T) {
	cfg := validConfig()
	obey := false
	cfg.Forums.Sites["dcinside"] = ForumSiteConfig{
		Enabled:    true,
		Boards:     []string{"https://gall.dcinside.com/board/lists?id=car_new1"},
		ObeyRobots: &obey,
	}
	cfg.Fetch.PerHostPauseSec = map[string]float64{".dcinside.com": 3}

	clone := cfg.Clone()
	clone.Keywords[0] = "changed"
	site := clone.Forums.Sites["dcinside"]
	site.Boards[0] = "changed"
	*site.ObeyRobots = true
	clone.Fetch.PerHostPauseSec[".dcinside.com"] = 9

	if cfg.Keywords[0] != "전기차" {
		t.Error("keywords shared with clone")
	}
	if cfg.Forums.Sites["dcinside"].Boards[0] == "changed" {
		t.Error("boards shared with clone")
	}
	if *cfg.Forums.Sites["dcinside"].ObeyRobots {
		t.Error("obey_robots pointer shared with clone")
	}
	if cfg.Fetch.PerHostPauseSec[".dcinside.com"] != 3 {
		t.Error("per-host pauses shared with clone")
	}
}

func TestLoadParamsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "params.yaml")
	raw := `keywords: ["배터리"]
lang: ["KO", "en"]
time_window:
  start_date: "2025-03-01"
gdelt:
  chunk_days: 14
forums:
  site_order: [dcinside]
  sites:
    dcinside:
      enabled: true
      boards:
        - https://gall.dcinside.com/board/lists?id=car_new1
      max_pages: 2
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(cfg.Keywords, []string{"배터리"}) {
		t.Errorf("keywords = %v", cfg.Keywords)
	}
	if !reflect.DeepEqual(cfg.Lang, []string{"ko", "en"}) {
		t.Errorf("lang = %v, want lower-cased", cfg.Lang)
	}
	if cfg.GDELT.ChunkDays != 14 {
		t.Errorf("chunk_days = %d", cfg.GDELT.ChunkDays)
	}
	// Unset keys keep their defaults.
	if cfg.GDELT.MaxRecords != 75 || cfg.Output.Root != "./data" {
		t.Errorf("defaults lost: max_records=%d root=%q", cfg.GDELT.MaxRecords, cfg.Output.Root)
	}
	if cfg.Forums.Sites["dcinside"].MaxPages != 2 {
		t.Errorf("forum site = %+v", cfg.Forums.Sites["dcinside"])
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("Validate loaded config: %v", err)
	}
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load accepted a missing explicit params file")
	}
}
