// Package pipeline composes discovery, fetching, extraction, the
// document index and the per-source logs into a single run.
package pipeline

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kcorpus/crawler/internal/config"
	"github.com/kcorpus/crawler/internal/discover"
	"github.com/kcorpus/crawler/internal/extract"
	"github.com/kcorpus/crawler/internal/fetch"
	"github.com/kcorpus/crawler/internal/index"
	"github.com/kcorpus/crawler/internal/store"
	"github.com/kcorpus/crawler/internal/types"
	"github.com/kcorpus/crawler/internal/urlnorm"
)

// Stats summarizes one pipeline run.
type Stats struct {
	RunID             string         `json:"run_id"`
	Discovered        map[string]int `json:"discovered"`
	Fetched           int            `json:"fetched"`
	Stored            int            `json:"stored"`
	DuplicatesSkipped int            `json:"duplicates_skipped"`
	FailedFetch       int            `json:"failed_fetch"`
	QualityRejected   int            `json:"quality_rejected"`
	IndexDuplicates   int            `json:"index_duplicates"`
	ExtractionFailed  int            `json:"extraction_failed"`
}

// StoreObserver is invoked once per stored document, before the run
// returns. The auto-crawler uses it to maintain monthly counts.
type StoreObserver func(doc *types.Document, cand *types.Candidate)

// Options narrows one run. The zero value runs every enabled source
// over the configured time window.
type Options struct {
	// IncludeSources limits the run to the named source families
	// ("gdelt", "youtube", "forums", "rss"). Nil means all enabled.
	IncludeSources []string

	// MaxFetch caps the number of fetch attempts; 0 means unlimited.
	MaxFetch int

	// ForumsWindow / ForumsUntilDate / ForumCursors tune forum
	// discovery for auto-crawl sub-runs.
	ForumsWindow    *discover.Window
	ForumsUntilDate *time.Time
	ForumCursors    map[string]int

	// YouTubeKeywords overrides the keyword list for video discovery.
	YouTubeKeywords []string

	Observer StoreObserver
}

// Pipeline is a reusable run factory bound to one config.
type Pipeline struct {
	cfg    *config.Config
	logger *slog.Logger

	// LastBoardPages carries forum pagination positions out of the most
	// recent run that included forums.
	LastBoardPages map[string]int
}

func New(cfg *config.Config, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		cfg:    cfg,
		logger: logger.With("component", "pipeline"),
	}
}

func (p *Pipeline) includes(opts Options, source string) bool {
	if opts.IncludeSources == nil {
		return true
	}
	return slices.Contains(opts.IncludeSources, source)
}

// Run executes one discovery→store pass and returns its statistics.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Stats, error) {
	runID := uuid.NewString()
	logger := p.logger.With("run_id", runID)

	start, end, err := p.cfg.TimeWindow.Window(time.Now())
	if err != nil {
		return nil, err
	}
	window := discover.Window{Start: start, End: end}

	stats := &Stats{RunID: runID, Discovered: make(map[string]int)}

	ordered, err := p.discoverAll(ctx, window, opts, stats, logger)
	if err != nil {
		return stats, err
	}

	idx, err := index.Open(p.cfg.Output.Root, p.logger)
	if err != nil {
		return stats, err
	}
	writer, err := store.NewLogWriter(p.cfg.Output.Root, p.logger)
	if err != nil {
		return stats, err
	}
	writer.FileOverride = p.cfg.Output.FileName
	defer writer.Close()

	fetcher := fetch.New(p.cfg, p.logger)
	defer fetcher.Close()
	extractor := extract.New(p.cfg, p.logger)

	for i := range ordered {
		cand := &ordered[i]
		if opts.MaxFetch > 0 && stats.Fetched >= opts.MaxFetch {
			logger.Info("max_fetch reached", "max_fetch", opts.MaxFetch)
			break
		}
		select {
		case <-ctx.Done():
			return p.finish(stats, idx, writer, logger), ctx.Err()
		default:
		}

		res, err := fetcher.Fetch(ctx, cand)
		if err != nil {
			if fetch.IsRobotsBlocked(err) {
				continue
			}
			stats.Fetched++
			stats.FailedFetch++
			logger.Warn("fetch failed", "url", cand.URL, "error", err)
			continue
		}
		stats.Fetched++

		doc, verdict := extractor.BuildDocument(ctx, cand, res, runID)
		if doc == nil {
			switch verdict.Status {
			case extract.StatusQualityReject:
				stats.QualityRejected++
			default:
				stats.ExtractionFailed++
			}
			continue
		}

		if idx.Contains(doc.ID) || idx.ContainsURL(doc.URL) {
			stats.DuplicatesSkipped++
			stats.IndexDuplicates++
			continue
		}

		if err := writer.Append(doc); err != nil {
			logger.Error("append failed", "url", doc.URL, "error", err)
			continue
		}
		idx.Add(doc.ID)
		idx.AddURL(doc.URL)
		stats.Stored++
		if opts.Observer != nil {
			opts.Observer(doc, cand)
		}
	}

	return p.finish(stats, idx, writer, logger), nil
}

func (p *Pipeline) finish(stats *Stats, idx *index.DocumentIndex, writer *store.LogWriter, logger *slog.Logger) *Stats {
	if err := idx.Flush(); err != nil {
		logger.Error("index flush failed", "error", err)
	}
	logger.Info("run complete",
		"fetched", stats.Fetched,
		"stored", stats.Stored,
		"duplicates", stats.DuplicatesSkipped,
		"failed_fetch", stats.FailedFetch,
		"quality_rejected", stats.QualityRejected,
		"extraction_failed", stats.ExtractionFailed)
	return stats
}

// discoverAll runs the included discoverers concurrently and merges
// their candidates in fixed source priority: forums in configured
// order, then news, then video, then feeds.
func (p *Pipeline) discoverAll(ctx context.Context, window discover.Window, opts Options, stats *Stats, logger *slog.Logger) ([]types.Candidate, error) {
	var forums *discover.Forums

	var discoverers []discover.Discoverer
	if p.includes(opts, "forums") && len(p.cfg.Forums.OrderedSites()) > 0 {
		forums = discover.NewForums(p.cfg, p.logger)
		forums.BoardCursors = opts.ForumCursors
		forums.UntilDate = opts.ForumsUntilDate
		if opts.ForumsWindow != nil {
			forums.Window = opts.ForumsWindow
		} else {
			w := window
			forums.Window = &w
		}
		discoverers = append(discoverers, forums)
	}
	if p.includes(opts, types.SourceGDELT) && p.cfg.GDELT.Enabled {
		discoverers = append(discoverers, discover.NewGDELT(p.cfg, window, p.logger))
	}
	if p.includes(opts, types.SourceYouTube) && p.cfg.YouTube.Enabled {
		discoverers = append(discoverers, discover.NewYouTube(p.cfg, window, opts.YouTubeKeywords, p.logger))
	}
	if p.includes(opts, types.SourceRSS) && p.cfg.RSS.Enabled {
		discoverers = append(discoverers, discover.NewRSS(p.cfg, &window, p.logger))
	}

	bySource := make(map[string][]types.Candidate, len(discoverers))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, d := range discoverers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cands, err := d.Discover(ctx)
			if err != nil {
				logger.Warn("discovery failed", "source", d.Source(), "error", err)
			}
			mu.Lock()
			bySource[d.Source()] = cands
			mu.Unlock()
		}()
	}
	wg.Wait()

	if forums != nil {
		p.LastBoardPages = forums.LastBoardPages
	}

	seen := make(map[string]struct{})
	var ordered []types.Candidate
	appendCands := func(cands []types.Candidate) {
		kept := 0
		for _, c := range cands {
			if max := p.cfg.Limits.MaxCandidatesPerSource; max > 0 && kept >= max {
				break
			}
			norm := urlnorm.Normalize(c.URL)
			if strings.HasSuffix(norm, "robots.txt") || urlnorm.IsBareDomain(norm) {
				continue
			}
			if _, dup := seen[norm]; dup {
				continue
			}
			seen[norm] = struct{}{}
			ordered = append(ordered, c)
			stats.Discovered[c.Source]++
			kept++
		}
	}

	// Forum candidates arrive under the "forums" discoverer but carry
	// their site as Source; split them back into site priority order.
	forumBySite := make(map[string][]types.Candidate)
	for _, c := range bySource["forums"] {
		forumBySite[c.Source] = append(forumBySite[c.Source], c)
	}
	for _, site := range p.cfg.Forums.OrderedSites() {
		appendCands(forumBySite[site])
	}
	for _, src := range []string{types.SourceGDELT, types.SourceYouTube, types.SourceRSS} {
		appendCands(bySource[src])
	}

	logger.Info("discovery merged", "unique_candidates", len(ordered))
	return ordered, nil
}
