package discover

import (
	"testing"
	"time"

	"github.com/kcorpus/crawler/internal/config"
)

func TestGDELTBackoffFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.GDELT.RateLimitBackoffSec = 2.5

	g := NewGDELT(cfg, Window{}, testLogger())
	if got := g.client.RetryWaitMin; got != 2500*time.Millisecond {
		t.Errorf("RetryWaitMin = %v, want 2.5s from rate_limit_backoff_sec", got)
	}
	if g.client.RetryWaitMax < g.client.RetryWaitMin {
		t.Errorf("RetryWaitMax %v below RetryWaitMin %v", g.client.RetryWaitMax, g.client.RetryWaitMin)
	}
}

func TestChunkWindowsCoversRange(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC)

	chunks := chunkWindows(start, end, 7, 0)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	if !chunks[0].Start.Equal(start) {
		t.Errorf("first chunk starts %v, want %v", chunks[0].Start, start)
	}
	if !chunks[len(chunks)-1].End.Equal(end) {
		t.Errorf("last chunk ends %v, want clamped to %v", chunks[len(chunks)-1].End, end)
	}
	for i := 1; i < len(chunks); i++ {
		if !chunks[i].Start.Equal(chunks[i-1].End) {
			t.Errorf("chunk %d not contiguous: %v != %v", i, chunks[i].Start, chunks[i-1].End)
		}
	}
}

func TestChunkWindowsOverlap(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)

	chunks := chunkWindows(start, end, 7, 2)
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want >= 2", len(chunks))
	}
	// Each chunk starts chunkDays-overlapDays after the previous.
	if got := chunks[1].Start.Sub(chunks[0].Start); got != 5*24*time.Hour {
		t.Errorf("step = %v, want 120h", got)
	}
	if !chunks[1].Start.Before(chunks[0].End) {
		t.Error("chunks do not overlap")
	}
}

func TestParseSeendate(t *testing.T) {
	got := parseSeendate("20250612T081530Z")
	if got == nil {
		t.Fatal("full timestamp not parsed")
	}
	want := time.Date(2025, 6, 12, 8, 15, 30, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}

	if got := parseSeendate("20250612"); got == nil || got.Day() != 12 {
		t.Errorf("bare date: got %v", got)
	}
	if got := parseSeendate(""); got != nil {
		t.Errorf("empty string: got %v, want nil", got)
	}
	if got := parseSeendate("not a date"); got != nil {
		t.Errorf("garbage: got %v, want nil", got)
	}
}

func TestParseForumTime(t *testing.T) {
	cases := []struct {
		raw  string
		want time.Time
	}{
		{"2025-06-12 08:15:30", time.Date(2025, 6, 12, 8, 15, 30, 0, time.UTC)},
		{"2025.06.12 08:15", time.Date(2025, 6, 12, 8, 15, 0, 0, time.UTC)},
		{"2025.06.12", time.Date(2025, 6, 12, 0, 0, 0, 0, time.UTC)},
		{"25.06.12", time.Date(2025, 6, 12, 0, 0, 0, 0, time.UTC)},
		{"25/06/12", time.Date(2025, 6, 12, 0, 0, 0, 0, time.UTC)},
		// digits-only fallback
		{"20250612150405", time.Date(2025, 6, 12, 15, 4, 5, 0, time.UTC)},
	}
	for _, tc := range cases {
		got := ParseForumTime(tc.raw)
		if got == nil {
			t.Errorf("ParseForumTime(%q) = nil", tc.raw)
			continue
		}
		if !got.Equal(tc.want) {
			t.Errorf("ParseForumTime(%q) = %v, want %v", tc.raw, got, tc.want)
		}
		if got.Location() != time.UTC {
			t.Errorf("ParseForumTime(%q) not UTC", tc.raw)
		}
	}

	if got := ParseForumTime("  "); got != nil {
		t.Errorf("blank input: got %v, want nil", got)
	}
	if got := ParseForumTime("새글"); got != nil {
		t.Errorf("non-date text: got %v, want nil", got)
	}
}
