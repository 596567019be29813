// Package fetch turns candidates into decoded HTML under robots, per-host
// pacing and retry constraints. It is the only package that issues
// requests to target sites' resource URLs.
package fetch

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/kcorpus/crawler/internal/config"
	"github.com/kcorpus/crawler/internal/types"
	"github.com/kcorpus/crawler/internal/urlnorm"
)

// DefaultUserAgent identifies the crawler when none is configured.
const DefaultUserAgent = "kcorpus/1.0 (+corpus research crawler)"

// hostGate serializes fetches to one host. The mutex is held across the
// pacing wait and the request so same-host fetches never interleave.
type hostGate struct {
	mu      sync.Mutex
	limiter *rate.Limiter
}

// Fetcher fetches live HTML for candidates.
type Fetcher struct {
	cfg       *config.Config
	logger    *slog.Logger
	robots    *Robots
	client    *retryablehttp.Client
	browser   *Browser
	userAgent string

	hostsMu sync.Mutex
	hosts   map[string]*hostGate
}

// New creates a Fetcher from the run configuration. The user agent is
// taken from config, overridable by CRAWLER_USER_AGENT.
func New(cfg *config.Config, logger *slog.Logger) *Fetcher {
	ua := cfg.Fetch.UserAgent
	if env := os.Getenv("CRAWLER_USER_AGENT"); env != "" {
		ua = env
	}
	if ua == "" {
		ua = DefaultUserAgent
	}

	timeout := cfg.Limits.RequestTimeout()
	client := NewRetryClient(timeout, cfg.Fetch.MaxAttempts, logger)
	client.HTTPClient.Transport = &http.Transport{
		MaxIdleConns:        64,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		// Decompression (including brotli) is handled after the read.
		DisableCompression: true,
	}

	return &Fetcher{
		cfg:       cfg,
		logger:    logger.With("component", "fetcher"),
		robots:    NewRobots(ua, timeout),
		client:    client,
		userAgent: ua,
		hosts:     make(map[string]*hostGate),
	}
}

// UserAgent returns the effective user agent string.
func (f *Fetcher) UserAgent() string { return f.userAgent }

// Fetch retrieves the candidate's URL. Returns ErrRobotsBlocked when
// robots.txt disallows the URL and the candidate carries no override.
func (f *Fetcher) Fetch(ctx context.Context, cand *types.Candidate) (*types.FetchResult, error) {
	if !cand.RobotsOverride() && !f.robots.Allowed(cand.URL) {
		return nil, types.ErrRobotsBlocked
	}

	host := urlnorm.Host(cand.URL)
	if host == "" {
		return nil, &types.FetchError{URL: cand.URL, Err: types.ErrInvalidURL}
	}

	gate := f.gate(host)
	gate.mu.Lock()
	defer gate.mu.Unlock()

	if err := gate.limiter.Wait(ctx); err != nil {
		return nil, &types.FetchError{URL: cand.URL, Err: err}
	}

	if f.renderJS(cand) {
		return f.fetchBrowser(ctx, cand)
	}
	return f.fetchHTTP(ctx, cand)
}

// fetchHTTP performs a plain GET through the retrying client.
func (f *Fetcher) fetchHTTP(ctx context.Context, cand *types.Candidate) (*types.FetchResult, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, cand.URL, nil)
	if err != nil {
		return nil, &types.FetchError{URL: cand.URL, Err: err, Retryable: false}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &types.FetchError{URL: cand.URL, Err: err, Retryable: false}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &types.FetchError{
			URL:        cand.URL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("HTTP %d", resp.StatusCode),
		}
	}

	var reader io.Reader = resp.Body
	if f.cfg.Fetch.MaxBodySize > 0 {
		reader = io.LimitReader(reader, f.cfg.Fetch.MaxBodySize)
	}
	reader, err = decompressReader(resp, reader)
	if err != nil {
		return nil, &types.FetchError{URL: cand.URL, Err: err}
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, &types.FetchError{URL: cand.URL, Err: err, Retryable: true}
	}
	if len(body) == 0 {
		return nil, &types.FetchError{URL: cand.URL, StatusCode: resp.StatusCode, Err: types.ErrEmptyResponse}
	}

	html, encName := DecodeHTML(body, resp.Header.Get("Content-Type"))

	f.logger.Debug("fetched",
		"url", cand.URL,
		"status", resp.StatusCode,
		"bytes", len(body),
		"encoding", encName,
	)

	return &types.FetchResult{
		URL:         cand.URL,
		FetchedFrom: types.FetchedLive,
		StatusCode:  resp.StatusCode,
		HTML:        html,
		Encoding:    encName,
		FetchedAt:   time.Now().UTC(),
	}, nil
}

// fetchBrowser renders the page in the shared headless browser. Used for
// sites flagged render_js whose listings and threads are script-built.
func (f *Fetcher) fetchBrowser(ctx context.Context, cand *types.Candidate) (*types.FetchResult, error) {
	if f.browser == nil {
		b, err := NewBrowser(f.userAgent, f.logger)
		if err != nil {
			f.logger.Warn("browser unavailable, falling back to plain fetch", "error", err)
			return f.fetchHTTP(ctx, cand)
		}
		f.browser = b
	}

	html, err := f.browser.FetchHTML(ctx, cand.URL, f.cfg.Limits.RequestTimeout())
	if err != nil {
		return nil, &types.FetchError{URL: cand.URL, Err: err}
	}
	return &types.FetchResult{
		URL:         cand.URL,
		FetchedFrom: types.FetchedLive,
		StatusCode:  http.StatusOK,
		HTML:        html,
		Encoding:    "utf-8",
		FetchedAt:   time.Now().UTC(),
	}, nil
}

// Close releases the HTTP client and the browser, if one was started.
func (f *Fetcher) Close() error {
	f.client.HTTPClient.CloseIdleConnections()
	if f.browser != nil {
		return f.browser.Close()
	}
	return nil
}

// renderJS reports whether the candidate's site asked for browser fetch.
func (f *Fetcher) renderJS(cand *types.Candidate) bool {
	if cand.Via.Type != types.ViaForum {
		return false
	}
	site, ok := f.cfg.Forums.Sites[cand.Via.Site]
	return ok && site.RenderJS
}

// gate returns (creating if needed) the pacing gate for a host, with its
// interval raised to any robots crawl-delay seen so far.
func (f *Fetcher) gate(host string) *hostGate {
	interval := f.hostPause(host)
	if cd := f.robots.CrawlDelay(host); cd > interval {
		interval = cd
	}

	f.hostsMu.Lock()
	defer f.hostsMu.Unlock()

	g, ok := f.hosts[host]
	if !ok {
		g = &hostGate{limiter: newIntervalLimiter(interval)}
		f.hosts[host] = g
	} else if interval > 0 {
		// A crawl-delay learned after the first fetch only ever slows
		// the gate down.
		if cur := g.limiter.Limit(); cur == rate.Inf || rate.Limit(1/interval.Seconds()) < cur {
			g.limiter.SetLimit(rate.Limit(1 / interval.Seconds()))
		}
	}
	return g
}

// hostPause resolves the minimum interval for a host:
// max(global pause_seconds, per_host_pause_sec) where the per-host table
// supports suffix matching on ".domain" keys.
func (f *Fetcher) hostPause(host string) time.Duration {
	pause := f.cfg.Fetch.PauseSeconds
	for key, sec := range f.cfg.Fetch.PerHostPauseSec {
		match := key == host ||
			(strings.HasPrefix(key, ".") && strings.HasSuffix(host, key)) ||
			strings.HasSuffix(host, "."+key)
		if match && sec > pause {
			pause = sec
		}
	}
	return time.Duration(pause * float64(time.Second))
}

func newIntervalLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// decompressReader wraps a reader with the appropriate decompressor.
// Handles gzip, deflate, and brotli (br) encodings.
func decompressReader(resp *http.Response, reader io.Reader) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(reader)
	case "deflate":
		return flate.NewReader(reader), nil
	case "br":
		return brotli.NewReader(reader), nil
	default:
		return reader, nil
	}
}

// IsRobotsBlocked reports whether an error is the silent robots skip.
func IsRobotsBlocked(err error) bool {
	return errors.Is(err, types.ErrRobotsBlocked)
}
