package discover

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/kcorpus/crawler/internal/config"
	"github.com/kcorpus/crawler/internal/fetch"
	"github.com/kcorpus/crawler/internal/types"
	"github.com/kcorpus/crawler/internal/urlnorm"
)

// Forums discovers thread candidates by paginating configured board
// listings through the per-site parser registry. Discovery is sequential
// per site and board; the pacing lives in per-site pause settings.
type Forums struct {
	cfg    *config.Config
	client *retryablehttp.Client
	robots *fetch.Robots
	logger *slog.Logger

	// Window limits hinted timestamps: out-of-window entries keep their
	// candidate but drop the hint, so extraction may still recover one.
	Window *Window

	// UntilDate stops a board's pagination once a whole page is older.
	UntilDate *time.Time

	// BoardCursors maps board URL to the first page to visit (default 1).
	BoardCursors map[string]int

	// LastBoardPages records the last page visited per board, for the
	// auto-crawler to advance its cursors.
	LastBoardPages map[string]int

	userAgent string
}

// NewForums creates the forum discoverer.
func NewForums(cfg *config.Config, logger *slog.Logger) *Forums {
	ua := cfg.Fetch.UserAgent
	if ua == "" {
		ua = fetch.DefaultUserAgent
	}
	return &Forums{
		cfg:            cfg,
		client:         fetch.NewRetryClient(cfg.Limits.RequestTimeout(), cfg.Fetch.MaxAttempts, logger),
		robots:         fetch.NewRobots(ua, cfg.Limits.RequestTimeout()),
		logger:         logger.With("component", "discover_forums"),
		LastBoardPages: make(map[string]int),
		userAgent:      ua,
	}
}

func (f *Forums) Source() string { return "forums" }

// Discover walks every enabled site's boards in configured order.
func (f *Forums) Discover(ctx context.Context) ([]types.Candidate, error) {
	var cands []types.Candidate
	for _, siteKey := range f.cfg.Forums.OrderedSites() {
		site := f.cfg.Forums.Sites[siteKey]
		parser, ok := SiteParser(siteKey)
		if !ok {
			f.logger.Warn("no parser for forum site, skipped", "site", siteKey)
			continue
		}
		for _, board := range site.Boards {
			select {
			case <-ctx.Done():
				return cands, ctx.Err()
			default:
			}
			cands = append(cands, f.discoverBoard(ctx, siteKey, site, parser, board)...)
		}
	}
	f.logger.Info("forum discovery done", "candidates", len(cands))
	return cands, nil
}

// discoverBoard paginates one board until max_pages, per_board_limit, or
// the until-date cutoff.
func (f *Forums) discoverBoard(ctx context.Context, siteKey string, site config.ForumSiteConfig, parser *ListingParser, board string) []types.Candidate {
	logger := f.logger.With("site", siteKey, "board", board)

	startPage := 1
	if f.BoardCursors != nil {
		if c, ok := f.BoardCursors[board]; ok && c > 0 {
			startPage = c
		}
	}
	maxPages := site.MaxPages
	if maxPages <= 0 {
		maxPages = 1
	}
	pageParam := site.PageParam
	if pageParam == "" {
		pageParam = parser.PageParam
	}

	seenNorm := make(map[string]struct{})
	var out []types.Candidate

	for page := startPage; page < startPage+maxPages; page++ {
		pageURL, err := setQueryParam(board, pageParam, page)
		if err != nil {
			logger.Warn("bad board URL", "error", err)
			return out
		}

		if site.RobotsObeyed() && !f.robots.Allowed(pageURL) {
			logger.Debug("listing page disallowed by robots", "page", page)
			continue
		}

		html, err := f.getListing(ctx, pageURL)
		if err != nil {
			logger.Warn("listing fetch failed", "page", page, "error", err)
			break
		}
		f.LastBoardPages[board] = page

		entries := parser.Parse(html, board)
		if len(entries) == 0 {
			logger.Debug("empty listing page, stopping board", "page", page)
			break
		}

		var oldest *time.Time
		for _, e := range entries {
			norm := urlnorm.Normalize(e.ThreadURL)
			if _, dup := seenNorm[norm]; dup {
				continue
			}
			seenNorm[norm] = struct{}{}

			ts := ParseForumTime(e.PublishedRaw)
			if ts != nil {
				if oldest == nil || ts.Before(*oldest) {
					oldest = ts
				}
				if f.Window != nil && (ts.Before(f.Window.Start) || !ts.Before(f.Window.End)) {
					// Keep the candidate; extraction may infer a better
					// timestamp from the thread itself.
					ts = nil
				}
			}

			cand := types.Candidate{
				URL:    e.ThreadURL,
				Source: siteKey,
				Title:  e.Title,
				Via: types.DiscoveredVia{
					Type:  types.ViaForum,
					Site:  siteKey,
					Board: board,
					Page:  page,
				},
				HintedAt: ts,
			}
			if e.Author != "" {
				cand.Extra = map[string]any{"author": e.Author}
			}
			if !site.RobotsObeyed() {
				cand.SetRobotsOverride()
			}
			out = append(out, cand)

			if site.PerBoardLimit > 0 && len(out) >= site.PerBoardLimit {
				return out
			}
		}

		if f.UntilDate != nil && oldest != nil && oldest.Before(*f.UntilDate) {
			logger.Debug("page older than until date, stopping board", "page", page, "oldest", oldest)
			break
		}

		if site.PauseSec > 0 {
			select {
			case <-ctx.Done():
				return out
			case <-time.After(time.Duration(site.PauseSec * float64(time.Second))):
			}
		}
	}
	return out
}

func (f *Forums) getListing(ctx context.Context, pageURL string) (string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &types.FetchError{URL: pageURL, StatusCode: resp.StatusCode, Err: types.ErrEmptyResponse}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8*1024*1024))
	if err != nil {
		return "", err
	}
	text, _ := fetch.DecodeHTML(body, resp.Header.Get("Content-Type"))
	return text, nil
}

// setQueryParam returns base with one query parameter set.
func setQueryParam(base, key string, value int) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(key, strconv.Itoa(value))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

var digitsRe = regexp.MustCompile(`\d+`)

// forumTimeLayouts is the parse chain for listing timestamps.
var forumTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006.01.02 15:04:05",
	"2006-01-02 15:04",
	"2006.01.02 15:04",
	"2006-01-02",
	"2006.01.02",
	"06-01-02 15:04",
	"06.01.02 15:04",
	"06-01-02",
	"06.01.02",
	"06/01/02",
}

// ParseForumTime interprets a raw listing timestamp as UTC, walking the
// layout chain and falling back to a digits-only reading.
func ParseForumTime(raw string) *time.Time {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	for _, layout := range forumTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return &t
		}
	}

	// Digits-only fallback: squeeze all digit runs together.
	digits := strings.Join(digitsRe.FindAllString(s, -1), "")
	for _, layout := range []string{"20060102150405", "200601021504", "20060102", "060102"} {
		if len(digits) != len(layout) {
			continue
		}
		if t, err := time.ParseInLocation(layout, digits, time.UTC); err == nil {
			return &t
		}
	}
	return nil
}
