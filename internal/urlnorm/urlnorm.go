// Package urlnorm canonicalizes URLs and derives document IDs from them.
// Exact-URL deduplication across the whole corpus hangs off this form, so
// Normalize must stay deterministic and idempotent.
package urlnorm

import (
	"crypto/sha1"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// utmParams are tracking parameters stripped during normalization.
// Exactly these keys and no others.
var utmParams = map[string]struct{}{
	"utm_source":   {},
	"utm_medium":   {},
	"utm_campaign": {},
	"utm_term":     {},
	"utm_content":  {},
}

// Normalize canonicalizes a URL:
//   - lowercases scheme and host
//   - removes default ports 80/443
//   - ensures the path starts with "/"
//   - sorts query parameters and strips utm_* tracking keys
//   - drops the fragment and any trailing "?"
//
// Unparseable input is returned unchanged.
func Normalize(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return rawURL
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.ForceQuery = false

	host := u.Hostname()
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		u.Host = host
	}

	if u.Host != "" && !strings.HasPrefix(u.Path, "/") {
		u.Path = "/" + u.Path
	}

	if u.RawQuery != "" {
		params := u.Query()
		keys := make([]string, 0, len(params))
		for k := range params {
			if _, drop := utmParams[k]; drop {
				continue
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var sorted []string
		for _, k := range keys {
			vals := params[k]
			sort.Strings(vals)
			for _, v := range vals {
				sorted = append(sorted, url.QueryEscape(k)+"="+url.QueryEscape(v))
			}
		}
		u.RawQuery = strings.Join(sorted, "&")
	}

	return u.String()
}

// DocID returns the hex SHA-1 of the normalized URL. This is the document
// ID used for exactly-once storage.
func DocID(rawURL string) string {
	h := sha1.Sum([]byte(Normalize(rawURL)))
	return hex.EncodeToString(h[:])
}

// IsBareDomain reports whether a normalized URL points at a homepage or
// bare domain rather than a specific resource. The heuristic counts
// slashes: "https://example.com/" has two.
func IsBareDomain(normalized string) bool {
	trimmed := strings.TrimSuffix(normalized, "/")
	return strings.Count(trimmed, "/") <= 2
}

// Host returns the lowercased hostname of a URL, or "" when unparseable.
func Host(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
