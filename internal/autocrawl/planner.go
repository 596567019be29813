package autocrawl

import (
	"sort"
	"time"

	"github.com/kcorpus/crawler/internal/discover"
	"github.com/kcorpus/crawler/internal/types"
)

// youtubeKeywordCost approximates one keyword's API spend:
// search (100 units) plus the videos detail call (1 unit).
const youtubeKeywordCost = 101

// bucketCursorModulo bounds rotation; ten years of month buckets.
const bucketCursorModulo = 120

// planner source identifiers and their rotation offsets.
var sourceOffsets = []struct {
	source string
	offset int
}{
	{types.SourceGDELT, 0},
	{types.SourceYouTube, 1},
	{"forums", 2},
}

// PlannedWindow is one materialized month window.
type PlannedWindow struct {
	Bucket string          `json:"bucket"`
	Window discover.Window `json:"window"`
}

// RoundPlan is the ephemeral planner output for one round.
type RoundPlan struct {
	Windows         map[string][]PlannedWindow `json:"windows"`
	YouTubeKeywords []string                   `json:"youtube_keywords"`
	IncludeForums   bool                       `json:"include_forums"`
	MaxFetch        int                        `json:"max_fetch"`
}

// recentBuckets lists the last monthsBack YYYY-MM keys, most recent
// first.
func recentBuckets(now time.Time, monthsBack int) []string {
	now = now.UTC()
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	out := make([]string, 0, monthsBack)
	for i := 0; i < monthsBack; i++ {
		out = append(out, MonthBucket(first.AddDate(0, -i, 0)))
	}
	return out
}

// materialize turns a YYYY-MM key into (month start, min(next month
// start, now)).
func materialize(bucket string, now time.Time) (discover.Window, bool) {
	start, err := time.ParseInLocation("2006-01", bucket, time.UTC)
	if err != nil {
		return discover.Window{}, false
	}
	end := start.AddDate(0, 1, 0)
	if now := now.UTC(); end.After(now) {
		end = now
	}
	if !start.Before(end) {
		return discover.Window{}, false
	}
	return discover.Window{Start: start, End: end}, true
}

// plan derives the next round deterministically from the state and the
// clock: deficits score the recent buckets, the ranked list rotates by
// the bucket cursor, and each source picks its windows with a
// distinct-months first pass.
func (a *AutoCrawler) plan(now time.Time) *RoundPlan {
	cfg := a.cfg.AutoCrawl
	buckets := recentBuckets(now, cfg.MonthsBack)

	// Deficit per bucket per source, and the age-damped bucket score.
	type ranked struct {
		bucket string
		score  float64
	}
	deficits := make(map[string]map[string]int, len(buckets))
	scores := make([]ranked, 0, len(buckets))
	for age, bucket := range buckets {
		byySource := make(map[string]int, len(sourceOffsets))
		total := 0
		for _, src := range sourceOffsets {
			d := cfg.MonthlyTargetPerSource - a.state.Counts[bucket][src.source]
			if d < 0 {
				d = 0
			}
			byySource[src.source] = d
			total += d
		}
		deficits[bucket] = byySource
		scores = append(scores, ranked{bucket: bucket, score: float64(total) * (1 - 0.03*float64(age))})
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	order := make([]string, len(scores))
	for i, r := range scores {
		order[i] = r.bucket
	}
	if len(order) > 0 {
		rot := a.state.BucketCursor % len(order)
		order = append(order[rot:], order[:rot]...)
	}

	maxWindows := map[string]int{
		types.SourceGDELT:   cfg.Round.MaxGDELTWindows,
		types.SourceYouTube: cfg.Round.MaxYouTubeWindows,
		"forums":            0,
	}
	if cfg.IncludeForums {
		maxWindows["forums"] = 1
	}

	plan := &RoundPlan{
		Windows:       make(map[string][]PlannedWindow),
		IncludeForums: cfg.IncludeForums,
		MaxFetch:      cfg.Round.MaxFetch,
	}

	pickedBuckets := make(map[string]string)
	// First pass: distinct months across sources. Second pass lifts
	// the cap to fill remaining slack.
	for pass := 0; pass < 2; pass++ {
		for _, src := range sourceOffsets {
			want := maxWindows[src.source]
			for offset := 0; offset < len(order) && len(plan.Windows[src.source]) < want; offset++ {
				bucket := order[(offset+src.offset)%len(order)]
				if deficits[bucket][src.source] <= 0 {
					continue
				}
				if a.state.InCooldown(bucket, src.source) {
					continue
				}
				if alreadyPlanned(plan.Windows[src.source], bucket) {
					continue
				}
				if pass == 0 {
					if owner, taken := pickedBuckets[bucket]; taken && owner != src.source {
						continue
					}
				}
				w, ok := materialize(bucket, now)
				if !ok {
					continue
				}
				plan.Windows[src.source] = append(plan.Windows[src.source], PlannedWindow{Bucket: bucket, Window: w})
				pickedBuckets[bucket] = src.source
			}
		}
	}

	plan.YouTubeKeywords = a.planYouTubeKeywords(now, len(plan.Windows[types.SourceYouTube]) > 0)
	if len(plan.YouTubeKeywords) == 0 {
		delete(plan.Windows, types.SourceYouTube)
	}
	return plan
}

func alreadyPlanned(ws []PlannedWindow, bucket string) bool {
	for _, w := range ws {
		if w.Bucket == bucket {
			return true
		}
	}
	return false
}

// planYouTubeKeywords picks the quota-affordable keyword subset in
// round-robin order from the persistent cursor, consuming the quota
// upfront.
func (a *AutoCrawler) planYouTubeKeywords(now time.Time, haveWindows bool) []string {
	if !haveWindows || len(a.cfg.Keywords) == 0 {
		return nil
	}

	available := a.state.QuotaAvailable(now) / youtubeKeywordCost
	limit := a.cfg.AutoCrawl.Round.MaxYouTubeKeywords
	if available < limit {
		limit = available
	}
	if limit > len(a.cfg.Keywords) {
		limit = len(a.cfg.Keywords)
	}
	if limit <= 0 {
		return nil
	}

	if !a.state.ConsumeQuota(now, limit*youtubeKeywordCost) {
		return nil
	}

	out := make([]string, 0, limit)
	cursor := a.state.YouTubeCursor
	for i := 0; i < limit; i++ {
		out = append(out, a.cfg.Keywords[(cursor+i)%len(a.cfg.Keywords)])
	}
	a.state.YouTubeCursor = (cursor + limit) % len(a.cfg.Keywords)
	return out
}
