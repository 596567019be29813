package extract

import (
	"testing"
	"time"
)

func TestParseLooseISO(t *testing.T) {
	got, hasTime, ok := ParseLoose("2025-06-12T08:15:30Z")
	if !ok || !hasTime {
		t.Fatalf("ok=%v hasTime=%v", ok, hasTime)
	}
	want := time.Date(2025, 6, 12, 8, 15, 30, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParseLooseBattery(t *testing.T) {
	cases := []struct {
		raw     string
		want    time.Time
		hasTime bool
	}{
		{"2025.06.12 08:15", time.Date(2025, 6, 12, 8, 15, 0, 0, time.UTC), true},
		{"2025/06/12", time.Date(2025, 6, 12, 0, 0, 0, 0, time.UTC), false},
		{"25.06.12 23:59", time.Date(2025, 6, 12, 23, 59, 0, 0, time.UTC), true},
		{"작성일 2025-06-12 14:00:01 조회", time.Date(2025, 6, 12, 14, 0, 1, 0, time.UTC), true},
	}
	for _, tc := range cases {
		got, hasTime, ok := ParseLoose(tc.raw)
		if !ok {
			t.Errorf("ParseLoose(%q) failed", tc.raw)
			continue
		}
		if !got.Equal(tc.want) || hasTime != tc.hasTime {
			t.Errorf("ParseLoose(%q) = (%v, %v), want (%v, %v)", tc.raw, got, hasTime, tc.want, tc.hasTime)
		}
	}

	if _, _, ok := ParseLoose("no dates here"); ok {
		t.Error("garbage parsed")
	}
	if _, _, ok := ParseLoose("9999-99-99"); ok {
		t.Error("out-of-range date parsed")
	}
}

func TestBestTokenPrefersTimeThenLatest(t *testing.T) {
	text := "posted 2025-06-10, edited 2025-06-12, first seen 2025-06-01 09:30"
	tokens := findDateTokens(text)
	if len(tokens) < 3 {
		t.Fatalf("found %d tokens, want 3", len(tokens))
	}
	best := bestToken(tokens)
	// The only token with a time-of-day wins over later date-only tokens.
	if !best.hasTime || best.t.Day() != 1 {
		t.Errorf("best = %+v, want the 06-01 09:30 token", best)
	}

	// Without any timed token, the latest date wins.
	tokens = findDateTokens("2025-06-10 then 2025-06-12 then 2025-06-11")
	best = bestToken(tokens)
	if best.t.Day() != 12 {
		t.Errorf("best day = %d, want 12", best.t.Day())
	}
}

func TestDetectLang(t *testing.T) {
	if got := DetectLang("이것은 한국어로 작성된 충분히 긴 문장입니다. 언어 감지가 잘 되어야 합니다."); got != "kor" {
		t.Errorf("korean text = %q, want kor", got)
	}
	if got := DetectLang("This is a sufficiently long English sentence for the detector to work with."); got != "eng" {
		t.Errorf("english text = %q, want eng", got)
	}
	if got := DetectLang("   "); got != "und" {
		t.Errorf("blank text = %q, want und", got)
	}
}
