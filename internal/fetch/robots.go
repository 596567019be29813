package fetch

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Robots handles robots.txt fetching, parsing, and enforcement with a
// per-host cache. A missing or >=400 robots.txt means allow-all.
type Robots struct {
	userAgent string
	cache     map[string]*robotsData
	mu        sync.RWMutex
	client    *http.Client
}

// robotsData holds parsed robots.txt rules for one host. nil means the
// file could not be fetched (allow-all).
type robotsData struct {
	disallowed []string
	allowed    []string
	crawlDelay time.Duration
	fetchedAt  time.Time
}

// NewRobots creates a Robots checker matching rules against userAgent.
func NewRobots(userAgent string, timeout time.Duration) *Robots {
	return &Robots{
		userAgent: strings.ToLower(userAgent),
		cache:     make(map[string]*robotsData),
		client:    &http.Client{Timeout: timeout},
	}
}

// Allowed checks whether a URL may be fetched under its host's robots.txt.
func (r *Robots) Allowed(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}

	data := r.hostData(u.Scheme + "://" + u.Host)
	if data == nil {
		return true
	}

	path := u.Path
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}

	// Allow rules override disallow rules.
	for _, pattern := range data.allowed {
		if matchRobotsPattern(pattern, path) {
			return true
		}
	}
	for _, pattern := range data.disallowed {
		if matchRobotsPattern(pattern, path) {
			return false
		}
	}
	return true
}

// CrawlDelay returns the crawl-delay declared for a host, if any.
func (r *Robots) CrawlDelay(host string) time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for origin, data := range r.cache {
		if data != nil && strings.HasSuffix(origin, "://"+host) {
			return data.crawlDelay
		}
	}
	return 0
}

// hostData fetches and caches robots.txt for an origin.
func (r *Robots) hostData(origin string) *robotsData {
	r.mu.RLock()
	data, ok := r.cache[origin]
	r.mu.RUnlock()
	if ok {
		return data
	}

	data = r.fetchRobotsTxt(origin)

	r.mu.Lock()
	r.cache[origin] = data
	r.mu.Unlock()
	return data
}

// fetchRobotsTxt downloads and parses robots.txt for an origin.
func (r *Robots) fetchRobotsTxt(origin string) *robotsData {
	req, err := http.NewRequest(http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil
	}
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return nil
	}
	return parseRobotsTxt(string(body), r.userAgent)
}

// parseRobotsTxt parses robots.txt content, keeping the rule groups that
// apply to the given user agent (or "*").
func parseRobotsTxt(content, userAgent string) *robotsData {
	data := &robotsData{fetchedAt: time.Now()}

	inOurSection := false
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		if line == "" {
			continue
		}

		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(strings.ToLower(parts[0]))
		value := strings.TrimSpace(parts[1])

		switch key {
		case "user-agent":
			group := strings.ToLower(value)
			inOurSection = group == "*" ||
				(userAgent != "" && strings.Contains(userAgent, group))
		case "disallow":
			if inOurSection && value != "" {
				data.disallowed = append(data.disallowed, value)
			}
		case "allow":
			if inOurSection && value != "" {
				data.allowed = append(data.allowed, value)
			}
		case "crawl-delay":
			if inOurSection {
				var delay float64
				if _, err := fmt.Sscanf(value, "%f", &delay); err == nil {
					data.crawlDelay = time.Duration(delay * float64(time.Second))
				}
			}
		}
	}
	return data
}

// matchRobotsPattern checks if a URL path matches a robots.txt pattern.
// Supports * (any sequence) and $ (end of URL) wildcards.
func matchRobotsPattern(pattern, path string) bool {
	if pattern == "" {
		return false
	}

	endsWithDollar := strings.HasSuffix(pattern, "$")
	if endsWithDollar {
		pattern = pattern[:len(pattern)-1]
	}

	if strings.Contains(pattern, "*") {
		return matchWildcard(pattern, path, endsWithDollar)
	}

	if endsWithDollar {
		return path == pattern
	}
	return strings.HasPrefix(path, pattern)
}

// matchWildcard handles * wildcard matching in robots.txt patterns.
func matchWildcard(pattern, path string, mustEnd bool) bool {
	parts := strings.Split(pattern, "*")
	pos := 0

	for i, part := range parts {
		if part == "" {
			continue
		}
		idx := strings.Index(path[pos:], part)
		if idx < 0 {
			return false
		}
		if i == 0 && idx != 0 {
			return false
		}
		pos += idx + len(part)
	}

	if mustEnd {
		return pos == len(path)
	}
	return true
}
