package extract

import (
	"context"
	"html"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/kcorpus/crawler/internal/fetch"
	"github.com/kcorpus/crawler/internal/types"
)

// commentFetcher retrieves the structured comment list for one thread.
// threadHTML is the already-fetched thread page; fetchers that need a
// secondary endpoint issue their own requests through a fresh session.
type commentFetcher func(ctx context.Context, s *session, threadURL, threadHTML string) ([]types.Comment, error)

var commentFetchers = map[string]commentFetcher{
	"dcinside":   fetchDcinsideComments,
	"bobaedream": fetchBobaedreamComments,
	"mlbpark":    fetchMlbparkComments,
	"theqoo":     fetchTheqooComments,
	"ppomppu":    fetchPpomppuComments,
}

// session is a transient cookie-carrying HTTP client: cookies acquired
// by a login live only as long as one comment fetch.
type session struct {
	client *retryablehttp.Client
	ua     string
}

func (e *Extractor) newSession() *session {
	jar, _ := cookiejar.New(nil)
	return &session{
		client: fetch.NewRetryClientWithJar(e.cfg.Limits.RequestTimeout(), 2, jar, e.logger),
		ua:     e.userAgent,
	}
}

func (s *session) do(ctx context.Context, method, reqURL string, form url.Values, hdr map[string]string) (int, string, error) {
	var body any
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("User-Agent", s.ua)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8*1024*1024))
	if err != nil {
		return resp.StatusCode, "", err
	}
	text, _ := fetch.DecodeHTML(raw, resp.Header.Get("Content-Type"))
	return resp.StatusCode, text, nil
}

func (s *session) get(ctx context.Context, reqURL string, hdr map[string]string) (int, string, error) {
	return s.do(ctx, http.MethodGet, reqURL, nil, hdr)
}

// seedCookies loads static cookies from {SITE}_COOKIES ("k=v; k2=v2")
// into the session jar for the thread's origin.
func (s *session) seedCookies(site, threadURL string) {
	raw := os.Getenv(strings.ToUpper(site) + "_COOKIES")
	if raw == "" {
		return
	}
	u, err := url.Parse(threadURL)
	if err != nil {
		return
	}
	var cookies []*http.Cookie
	for _, pair := range strings.Split(raw, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || k == "" {
			continue
		}
		cookies = append(cookies, &http.Cookie{Name: k, Value: v})
	}
	if jar := s.client.HTTPClient.Jar; jar != nil && len(cookies) > 0 {
		jar.SetCookies(&url.URL{Scheme: u.Scheme, Host: u.Host}, cookies)
	}
}

// siteCreds reads {SITE}_ID / {SITE}_PW; empty means skip login.
func siteCreds(site string) (id, pw string) {
	upper := strings.ToUpper(site)
	return os.Getenv(upper + "_ID"), os.Getenv(upper + "_PW")
}

var tagRe = regexp.MustCompile(`<[^>]*>`)

// stripHTML flattens an HTML fragment to text: <br> become newlines,
// tags drop, entities unescape.
func stripHTML(s string) string {
	s = regexp.MustCompile(`(?i)<br\s*/?>`).ReplaceAllString(s, "\n")
	s = tagRe.ReplaceAllString(s, "")
	return strings.TrimSpace(html.UnescapeString(s))
}

// origin returns scheme://host of a URL.
func origin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// fetchForumComments dispatches to the site fetcher, falling back to a
// generic selector sweep. Failures yield an empty list, never an error:
// a thread without comments is still a document.
func (e *Extractor) fetchForumComments(ctx context.Context, site, threadURL, threadHTML string) []types.Comment {
	if os.Getenv("FAST_CRAWL") == "1" {
		return nil
	}
	if v := os.Getenv("FORUMS_COMMENTS_ENABLED"); v == "0" || strings.EqualFold(v, "false") {
		return nil
	}

	var comments []types.Comment
	if fetcher, ok := commentFetchers[site]; ok {
		s := e.newSession()
		s.seedCookies(site, threadURL)
		var err error
		comments, err = fetcher(ctx, s, threadURL, threadHTML)
		if err != nil {
			e.logger.Debug("site comment fetch failed", "site", site, "url", threadURL, "error", err)
		}
	}
	if len(comments) == 0 {
		comments = genericCommentSweep(threadHTML)
	}

	max := 200
	if v := os.Getenv("FORUMS_COMMENTS_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			max = n
		}
	}
	if len(comments) > max {
		comments = comments[:max]
	}
	return comments
}

// genericCommentSweep tries a battery of common comment containers.
var genericCommentSelectors = []string{
	"ul.comment_list li",
	"div.comment_wrap .comment",
	"div.cmt_list .cmt",
	"ul.reply_list li",
	".comment-item",
	".comment_view",
}

func genericCommentSweep(threadHTML string) []types.Comment {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(threadHTML))
	if err != nil {
		return nil
	}
	seen := make(map[string]struct{})
	var out []types.Comment
	for _, sel := range genericCommentSelectors {
		doc.Find(sel).Each(func(_ int, node *goquery.Selection) {
			text := strings.TrimSpace(node.Text())
			if len([]rune(text)) < 2 {
				return
			}
			if _, dup := seen[text]; dup {
				return
			}
			seen[text] = struct{}{}
			out = append(out, types.Comment{Text: text})
		})
		if len(out) > 0 {
			break
		}
	}
	return out
}
