package autocrawl

import (
	"context"
	"log/slog"
	"time"

	"github.com/kcorpus/crawler/internal/config"
	"github.com/kcorpus/crawler/internal/pipeline"
	"github.com/kcorpus/crawler/internal/types"
)

// AutoCrawler owns the persistent planner state and drives deficit
// rounds of sub-pipeline runs.
type AutoCrawler struct {
	cfg    *config.Config
	state  *AutoState
	logger *slog.Logger

	// now is the clock, swappable in tests.
	now func() time.Time
}

// New loads (or initializes) state from the output root.
func New(cfg *config.Config, logger *slog.Logger) *AutoCrawler {
	return &AutoCrawler{
		cfg:    cfg,
		state:  LoadState(cfg.Output.Root, cfg.AutoCrawl.YouTube.DailyQuota, cfg.AutoCrawl.YouTube.ReserveQuota, logger),
		logger: logger.With("component", "autocrawl"),
		now:    time.Now,
	}
}

// State exposes the planner state for status reporting.
func (a *AutoCrawler) State() *AutoState { return a.state }

// Plan ticks cooldowns and returns the next round plan without
// executing it. Quota is consumed and the state is saved, matching
// what a real round would spend.
func (a *AutoCrawler) Plan() (*RoundPlan, error) {
	a.state.TickCooldowns()
	plan := a.plan(a.now())
	if err := a.state.Save(a.cfg.Output.Root); err != nil {
		return plan, err
	}
	return plan, nil
}

// RoundResult summarizes one executed round.
type RoundResult struct {
	Plan     *RoundPlan                 `json:"plan"`
	SubStats map[string]*pipeline.Stats `json:"sub_stats"`
	Stored   int                        `json:"stored"`
}

// RunRound plans and executes one round: one sub-pipeline per planned
// window per source, cooldown bookkeeping after each, cursor advances,
// then a state save.
func (a *AutoCrawler) RunRound(ctx context.Context) (*RoundResult, error) {
	now := a.now()

	a.state.TickCooldowns()
	plan := a.plan(now)
	a.logger.Info("round planned",
		"gdelt_windows", len(plan.Windows[types.SourceGDELT]),
		"youtube_windows", len(plan.Windows[types.SourceYouTube]),
		"forum_windows", len(plan.Windows["forums"]),
		"youtube_keywords", len(plan.YouTubeKeywords))

	result := &RoundResult{Plan: plan, SubStats: make(map[string]*pipeline.Stats)}

	for _, src := range []string{types.SourceGDELT, types.SourceYouTube, "forums"} {
		for _, pw := range plan.Windows[src] {
			stats, err := a.runSubPipeline(ctx, src, pw, plan, a.recordStored)
			if err != nil {
				a.logger.Warn("sub-run failed", "source", src, "bucket", pw.Bucket, "error", err)
			}
			if stats == nil {
				continue
			}
			result.SubStats[src+":"+pw.Bucket] = stats
			result.Stored += stats.Stored
			a.applyCooldown(pw.Bucket, src, stats.Stored, stats.Fetched, stats.DuplicatesSkipped)
		}
	}

	a.state.BucketCursor = (a.state.BucketCursor + 1) % bucketCursorModulo
	if err := a.state.Save(a.cfg.Output.Root); err != nil {
		return result, err
	}
	return result, nil
}

// runSubPipeline clones the base config narrowed to one window and
// runs it with only the given source enabled.
func (a *AutoCrawler) runSubPipeline(ctx context.Context, source string, pw PlannedWindow, plan *RoundPlan, observer pipeline.StoreObserver) (*pipeline.Stats, error) {
	sub := a.cfg.Clone()
	sub.TimeWindow.StartDate = pw.Window.Start.Format("2006-01-02 15:04:05")
	sub.TimeWindow.EndDate = pw.Window.End.Format("2006-01-02 15:04:05")

	opts := pipeline.Options{
		IncludeSources: []string{source},
		MaxFetch:       plan.MaxFetch,
		Observer:       observer,
	}
	if source == "forums" {
		w := pw.Window
		opts.ForumsWindow = &w
		until := pw.Window.Start
		opts.ForumsUntilDate = &until
		opts.ForumCursors = a.state.ForumCursorSnapshot()
	}
	if source == types.SourceYouTube {
		opts.YouTubeKeywords = plan.YouTubeKeywords
	}

	p := pipeline.New(sub, a.logger)
	stats, err := p.Run(ctx, opts)

	if source == "forums" && p.LastBoardPages != nil {
		a.state.AdvanceForumCursors(p.LastBoardPages)
	}
	return stats, err
}

// applyCooldown parks a bucket/source pair that yielded too little or
// duplicated too much.
func (a *AutoCrawler) applyCooldown(bucket, source string, stored, fetched, duplicates int) {
	if duplicates < 0 {
		duplicates = 0
	}
	denom := fetched + duplicates
	if denom < 1 {
		denom = 1
	}
	dupRatio := float64(duplicates) / float64(denom)

	round := a.cfg.AutoCrawl.Round
	if stored < round.MinStoredThreshold || dupRatio >= round.MaxDupRatio {
		a.state.SetCooldown(bucket, source, round.CooldownRounds)
		a.logger.Info("cooldown applied", "bucket", bucket, "source", source,
			"stored", stored, "dup_ratio", dupRatio)
	}
}

// recordStored counts one stored document toward its month bucket under
// its planning source: forum documents carry their site as Source, but
// the deficit and cooldown keys all use "forums".
func (a *AutoCrawler) recordStored(doc *types.Document, cand *types.Candidate) {
	source := doc.Source
	if doc.Via.Type == types.ViaForum {
		source = "forums"
	}
	a.state.RecordStored(a.documentBucket(doc, cand), source)
}

// documentBucket picks the month bucket a stored document counts
// toward: published_at, then the discovery hint, then now.
func (a *AutoCrawler) documentBucket(doc *types.Document, cand *types.Candidate) string {
	if doc.PublishedAt != "" {
		if t, err := time.Parse(time.RFC3339, doc.PublishedAt); err == nil {
			return MonthBucket(t)
		}
	}
	if cand.HintedAt != nil {
		return MonthBucket(*cand.HintedAt)
	}
	return MonthBucket(a.now())
}

// Reset discards planner state, preserving configured quota defaults.
func (a *AutoCrawler) Reset() error {
	a.state = newState(a.cfg.AutoCrawl.YouTube.DailyQuota, a.cfg.AutoCrawl.YouTube.ReserveQuota)
	return a.state.Save(a.cfg.Output.Root)
}
