package discover

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/sync/errgroup"

	"github.com/kcorpus/crawler/internal/config"
	"github.com/kcorpus/crawler/internal/fetch"
	"github.com/kcorpus/crawler/internal/types"
	"github.com/kcorpus/crawler/internal/urlnorm"
)

// gdeltTimeLayout is the API's start/end datetime format.
const gdeltTimeLayout = "20060102150405"

// sourceLangs maps ISO 639-1 codes to the API's language names.
var sourceLangs = map[string]string{
	"ko": "KOREAN",
	"en": "ENGLISH",
	"ja": "JAPANESE",
	"zh": "CHINESE",
	"fr": "FRENCH",
	"de": "GERMAN",
	"es": "SPANISH",
}

// gdeltArticle is one entry of the ArtList response.
type gdeltArticle struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	Seendate string `json:"seendate"`
	Language string `json:"language"`
	Domain   string `json:"domain"`
}

type gdeltResponse struct {
	Articles []gdeltArticle `json:"articles"`
}

// GDELT discovers news article candidates by querying the doc API once
// per (keyword, window chunk) pair from a bounded worker pool.
type GDELT struct {
	cfg    *config.Config
	client *retryablehttp.Client
	logger *slog.Logger
	window Window
}

// NewGDELT creates the news-API discoverer for the given window.
// rate_limit_backoff_sec is the base of the client's exponential
// backoff (base * 2^attempt), still capped by Retry-After handling.
func NewGDELT(cfg *config.Config, window Window, logger *slog.Logger) *GDELT {
	client := fetch.NewRetryClient(cfg.Limits.RequestTimeout(), cfg.GDELT.MaxAttempts, logger)
	if b := cfg.GDELT.RateLimitBackoffSec; b > 0 {
		client.RetryWaitMin = time.Duration(b * float64(time.Second))
		if client.RetryWaitMax < client.RetryWaitMin {
			client.RetryWaitMax = client.RetryWaitMin
		}
	}
	return &GDELT{
		cfg:    cfg,
		client: client,
		logger: logger.With("component", "discover_gdelt"),
		window: window,
	}
}

func (g *GDELT) Source() string { return types.SourceGDELT }

// Discover fans (keyword, chunk) pairs across a pool of MaxConcurrency
// workers. URLs are deduplicated across all workers through a shared
// guarded set.
func (g *GDELT) Discover(ctx context.Context) ([]types.Candidate, error) {
	chunks := chunkWindows(g.window.Start, g.window.End, g.cfg.GDELT.ChunkDays, g.cfg.GDELT.OverlapDays)

	type task struct {
		keyword string
		chunk   Window
	}
	var tasks []task
	for _, kw := range g.cfg.Keywords {
		if len([]rune(kw)) < 3 {
			g.logger.Debug("keyword too short, skipped", "keyword", kw)
			continue
		}
		for _, c := range chunks {
			tasks = append(tasks, task{keyword: kw, chunk: c})
		}
	}

	var (
		mu    sync.Mutex
		seen  = make(map[string]struct{})
		cands []types.Candidate
	)

	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(g.cfg.GDELT.MaxConcurrency)

	for _, tk := range tasks {
		grp.Go(func() error {
			articles, err := g.query(gctx, tk.keyword, tk.chunk)
			if err != nil {
				// One failed (keyword, chunk) unit never aborts discovery.
				g.logger.Warn("gdelt query failed", "keyword", tk.keyword, "window", tk.chunk.String(), "error", err)
			}
			for _, art := range articles {
				if art.URL == "" {
					continue
				}
				norm := urlnorm.Normalize(art.URL)
				mu.Lock()
				if _, dup := seen[norm]; dup {
					mu.Unlock()
					continue
				}
				seen[norm] = struct{}{}
				cands = append(cands, types.Candidate{
					URL:    art.URL,
					Source: types.SourceGDELT,
					Title:  art.Title,
					Via: types.DiscoveredVia{
						Type:     types.ViaNews,
						Keyword:  tk.keyword,
						Seendate: art.Seendate,
						Window:   tk.chunk.String(),
					},
					HintedAt: parseSeendate(art.Seendate),
				})
				mu.Unlock()
			}

			// Politeness pause happens after each request, inside the worker.
			if p := g.cfg.GDELT.PauseBetweenRequests; p > 0 {
				select {
				case <-gctx.Done():
				case <-time.After(time.Duration(p * float64(time.Second))):
				}
			}
			return nil
		})
	}

	if err := grp.Wait(); err != nil {
		return cands, err
	}
	g.logger.Info("gdelt discovery done", "tasks", len(tasks), "candidates", len(cands))
	return cands, nil
}

// query issues one ArtList request for a (keyword, chunk) pair.
func (g *GDELT) query(ctx context.Context, keyword string, chunk Window) ([]gdeltArticle, error) {
	params := url.Values{}
	params.Set("query", g.buildQuery(keyword))
	params.Set("mode", "ArtList")
	params.Set("format", "json")
	params.Set("startdatetime", chunk.Start.UTC().Format(gdeltTimeLayout))
	params.Set("enddatetime", chunk.End.UTC().Format(gdeltTimeLayout))
	params.Set("maxrecords", strconv.Itoa(g.cfg.GDELT.MaxRecords))
	params.Set("sort", "datedesc")

	reqURL := g.cfg.GDELT.Endpoint + "?" + params.Encode()
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gdelt HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8*1024*1024))
	if err != nil {
		return nil, err
	}

	var out gdeltResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode gdelt response: %w", err)
	}
	return out.Articles, nil
}

// buildQuery composes the API query: quoted keyword plus a sourcelang
// clause for the first recognized configured language.
func (g *GDELT) buildQuery(keyword string) string {
	q := `"` + keyword + `"`
	for _, lang := range g.cfg.Lang {
		if name, ok := sourceLangs[strings.ToLower(lang)]; ok {
			q += " sourcelang:" + name
			break
		}
	}
	return q
}

// parseSeendate interprets the article seendate as UTC. The full
// timestamp form is preferred; a bare date is accepted.
func parseSeendate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{"20060102T150405Z", "20060102"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return &t
		}
	}
	return nil
}
