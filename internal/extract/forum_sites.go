package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/kcorpus/crawler/internal/types"
)

// fetchDcinsideComments POSTs the board comment endpoint with tokens
// scraped from the thread page and parses the JSON rows.
func fetchDcinsideComments(ctx context.Context, s *session, threadURL, threadHTML string) ([]types.Comment, error) {
	u, err := url.Parse(threadURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	galleryID, postNo := q.Get("id"), q.Get("no")
	if galleryID == "" || postNo == "" {
		return nil, fmt.Errorf("thread URL missing id/no params")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(threadHTML))
	if err != nil {
		return nil, err
	}
	esno, _ := doc.Find(`input[name="e_s_n_o"]`).First().Attr("value")
	if esno == "" {
		return nil, fmt.Errorf("e_s_n_o token not found")
	}
	gallType, _ := doc.Find(`input[name="_GALLTYPE_"]`).First().Attr("value")
	boardType, _ := doc.Find(`input[name="board_type"]`).First().Attr("value")
	secretKey, _ := doc.Find(`input[name="secret_article_key"]`).First().Attr("value")

	form := url.Values{}
	form.Set("id", galleryID)
	form.Set("no", postNo)
	form.Set("cmt_id", galleryID)
	form.Set("cmt_no", postNo)
	form.Set("e_s_n_o", esno)
	form.Set("comment_page", "1")
	form.Set("sort", "")
	if gallType != "" {
		form.Set("_GALLTYPE_", gallType)
	}
	if boardType != "" {
		form.Set("board_type", boardType)
	}
	if secretKey != "" {
		form.Set("secret_article_key", secretKey)
	}

	status, body, err := s.do(ctx, http.MethodPost, origin(threadURL)+"/board/comment/", form, map[string]string{
		"X-Requested-With": "XMLHttpRequest",
		"Referer":          threadURL,
	})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("comment endpoint HTTP %d", status)
	}

	var payload struct {
		Comments []struct {
			No      string `json:"no"`
			Name    string `json:"name"`
			IP      string `json:"ip"`
			Memo    string `json:"memo"`
			RegDate string `json:"reg_date"`
			Depth   int    `json:"depth"`
			Parent  string `json:"parent"`
		} `json:"comments"`
	}
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return nil, fmt.Errorf("decode comment JSON: %w", err)
	}

	var out []types.Comment
	for _, row := range payload.Comments {
		text := stripHTML(row.Memo)
		if text == "" {
			continue
		}
		author := row.Name
		if row.IP != "" {
			author = row.Name + "(" + row.IP + ")"
		}
		out = append(out, types.Comment{
			Author:      author,
			Text:        text,
			PublishedAt: row.RegDate,
			ID:          row.No,
			Depth:       row.Depth,
			ReplyTo:     row.Parent,
		})
	}
	return out, nil
}

var (
	bobaeTbRe  = regexp.MustCompile(`\btb\s*[:=]\s*['"]([^'"]+)['"]`)
	bobaeWidRe = regexp.MustCompile(`\bwid\s*[:=]\s*['"]?(\d+)`)
)

// fetchBobaedreamComments GETs comment_list.php with tokens parsed from
// the thread page and walks the dd[id^=small_cmt_] nodes.
func fetchBobaedreamComments(ctx context.Context, s *session, threadURL, threadHTML string) ([]types.Comment, error) {
	u, err := url.Parse(threadURL)
	if err != nil {
		return nil, err
	}
	code, no := u.Query().Get("code"), u.Query().Get("No")
	if no == "" {
		no = u.Query().Get("no")
	}
	if code == "" || no == "" {
		return nil, fmt.Errorf("thread URL missing code/No params")
	}

	var tb, wid string
	if m := bobaeTbRe.FindStringSubmatch(threadHTML); m != nil {
		tb = m[1]
	}
	if m := bobaeWidRe.FindStringSubmatch(threadHTML); m != nil {
		wid = m[1]
	}
	if tb == "" || wid == "" {
		return nil, fmt.Errorf("tb/wid tokens not found")
	}

	params := url.Values{}
	params.Set("code", code)
	params.Set("No", no)
	params.Set("tb", tb)
	params.Set("page", "1")
	params.Set("strLimit", "100")
	params.Set("wid", wid)

	status, body, err := s.get(ctx, origin(threadURL)+"/board/bulletin/comment_list.php?"+params.Encode(), map[string]string{
		"X-Requested-With": "XMLHttpRequest",
		"Referer":          threadURL,
	})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("comment endpoint HTTP %d", status)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	var out []types.Comment
	doc.Find(`dd[id^="small_cmt_"]`).Each(func(_ int, node *goquery.Selection) {
		id, _ := node.Attr("id")
		text := strings.TrimSpace(node.Find(".comment").First().Text())
		if text == "" {
			text = strings.TrimSpace(node.Text())
		}
		if text == "" {
			return
		}
		out = append(out, types.Comment{
			Author:      strings.TrimSpace(node.Find("span.author").First().Text()),
			Text:        text,
			PublishedAt: strings.TrimSpace(node.Find("span.date").First().Text()),
			ID:          strings.TrimPrefix(id, "small_cmt_"),
		})
	})
	return out, nil
}

// fetchMlbparkComments re-requests the thread script with m=reply and
// parses div.other_con blocks.
func fetchMlbparkComments(ctx context.Context, s *session, threadURL, threadHTML string) ([]types.Comment, error) {
	u, err := url.Parse(threadURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("m", "reply")
	u.RawQuery = q.Encode()

	status, body, err := s.get(ctx, u.String(), map[string]string{"Referer": threadURL})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("reply endpoint HTTP %d", status)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	var out []types.Comment
	doc.Find("div.other_con").Each(func(_ int, node *goquery.Selection) {
		text := strings.TrimSpace(node.Find("div.re_txt").First().Text())
		if text == "" {
			return
		}
		author := strings.TrimSpace(node.Find("span.nick").First().Text())
		if ip := strings.TrimSpace(node.Find("span.ip").First().Text()); ip != "" {
			author += "(" + ip + ")"
		}
		out = append(out, types.Comment{
			Author:      author,
			Text:        text,
			PublishedAt: strings.TrimSpace(node.Find("span.retime").First().Text()),
		})
	})
	return out, nil
}

// theqoo document URLs look like /{mid}/{document_srl}.
var theqooPathRe = regexp.MustCompile(`^/([^/]+)/(\d+)`)

var theqooCommentSelectors = []string{
	"ul.fdb_lst_ul li .xe_content",
	"div.comment_list .xe_content",
	"div.cmt_list .xe_content",
}

// fetchTheqooComments GETs the XHR comment-list action; a 400 or empty
// response triggers one login attempt and a single retry.
func fetchTheqooComments(ctx context.Context, s *session, threadURL, threadHTML string) ([]types.Comment, error) {
	u, err := url.Parse(threadURL)
	if err != nil {
		return nil, err
	}
	m := theqooPathRe.FindStringSubmatch(u.Path)
	if m == nil {
		return nil, fmt.Errorf("thread URL missing mid/document_srl path")
	}
	mid, srl := m[1], m[2]

	params := url.Values{}
	params.Set("act", "dispBoardContentCommentList")
	params.Set("mid", mid)
	params.Set("document_srl", srl)
	listURL := origin(threadURL) + "/?" + params.Encode()
	hdr := map[string]string{"X-Requested-With": "XMLHttpRequest", "Referer": threadURL}

	for attempt := 0; attempt < 2; attempt++ {
		status, body, err := s.get(ctx, listURL, hdr)
		if err != nil {
			return nil, err
		}
		if status == http.StatusOK {
			if out := parseTheqooComments(body); len(out) > 0 {
				return out, nil
			}
		}
		if attempt == 0 {
			if !theqooLogin(ctx, s, threadURL, threadHTML) {
				break
			}
			continue
		}
	}
	return nil, nil
}

func parseTheqooComments(body string) []types.Comment {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil
	}
	for _, sel := range theqooCommentSelectors {
		var out []types.Comment
		doc.Find(sel).Each(func(_ int, node *goquery.Selection) {
			text := strings.TrimSpace(node.Text())
			if text == "" {
				return
			}
			item := node.Closest("li")
			out = append(out, types.Comment{
				Author:      strings.TrimSpace(item.Find(".member, .nick_name").First().Text()),
				Text:        text,
				PublishedAt: strings.TrimSpace(item.Find(".date, .time").First().Text()),
			})
		})
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

// theqooLogin posts the member-login action using env credentials and a
// CSRF token from the thread page meta tag. Returns whether a retry is
// worthwhile.
func theqooLogin(ctx context.Context, s *session, threadURL, threadHTML string) bool {
	id, pw := siteCreds("theqoo")
	if id == "" || pw == "" {
		return false
	}
	var csrf string
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(threadHTML)); err == nil {
		csrf, _ = doc.Find(`meta[name="csrf-token"]`).First().Attr("content")
	}

	form := url.Values{}
	form.Set("act", "procMemberLogin")
	form.Set("user_id", id)
	form.Set("password", pw)
	if csrf != "" {
		form.Set("_rx_csrf_token", csrf)
	}
	status, _, err := s.do(ctx, http.MethodPost, origin(threadURL)+"/", form, map[string]string{
		"X-Requested-With": "XMLHttpRequest",
		"Referer":          threadURL,
	})
	return err == nil && status < 400
}

var ppomppuTimeRe = regexp.MustCompile(`\d{2}:\d{2}:\d{2}`)

// fetchPpomppuComments parses inline comment blocks first, then the
// comment.php endpoint, with one login retry when both come up empty.
func fetchPpomppuComments(ctx context.Context, s *session, threadURL, threadHTML string) ([]types.Comment, error) {
	if out := parsePpomppuComments(threadHTML); len(out) > 0 {
		return out, nil
	}

	u, err := url.Parse(threadURL)
	if err != nil {
		return nil, err
	}
	boardID, no := u.Query().Get("id"), u.Query().Get("no")
	if boardID == "" || no == "" {
		return nil, fmt.Errorf("thread URL missing id/no params")
	}
	params := url.Values{}
	params.Set("id", boardID)
	params.Set("no", no)
	listURL := origin(threadURL) + "/zboard/comment.php?" + params.Encode()

	for attempt := 0; attempt < 2; attempt++ {
		status, body, err := s.get(ctx, listURL, map[string]string{"Referer": threadURL})
		if err != nil {
			return nil, err
		}
		if status == http.StatusOK {
			if out := parsePpomppuComments(body); len(out) > 0 {
				return out, nil
			}
		}
		if attempt == 0 && ppomppuLogin(ctx, s, threadURL) {
			continue
		}
		break
	}
	return nil, nil
}

func parsePpomppuComments(body string) []types.Comment {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil
	}
	var out []types.Comment
	doc.Find(`div[class^="comment_line"]`).Each(func(_ int, node *goquery.Selection) {
		full := strings.TrimSpace(node.Text())
		if full == "" {
			return
		}
		text := strings.TrimSpace(node.Find(".comment_content, .han").First().Text())
		if text == "" {
			text = full
		}
		out = append(out, types.Comment{
			Author:      strings.TrimSpace(node.Find(".comment_name, .pt7").First().Text()),
			Text:        text,
			PublishedAt: ppomppuTimeRe.FindString(full),
		})
	})
	return out
}

func ppomppuLogin(ctx context.Context, s *session, threadURL string) bool {
	id, pw := siteCreds("ppomppu")
	if id == "" || pw == "" {
		return false
	}
	form := url.Values{}
	form.Set("user_id", id)
	form.Set("password", pw)
	status, _, err := s.do(ctx, http.MethodPost, origin(threadURL)+"/zboard/login_check.php", form, map[string]string{
		"Referer": threadURL,
	})
	return err == nil && status < 400
}
