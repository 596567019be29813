package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/kcorpus/crawler/internal/types"
)

// videoMeta is the discovery-time detail carried in extra.youtube,
// re-decoded here so the extractor stays independent of how discovery
// shaped the bag.
type videoMeta struct {
	ID      string `json:"id"`
	Snippet struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	} `json:"snippet"`
}

func decodeVideoMeta(cand *types.Candidate) *videoMeta {
	raw, ok := cand.Extra["youtube"]
	if !ok {
		return nil
	}
	buf, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var meta videoMeta
	if err := json.Unmarshal(buf, &meta); err != nil {
		return nil
	}
	return &meta
}

// videoDetailFields renders the discovery-time detail as plain keys
// (id, snippet, contentDetails, statistics) for the document's
// extra.youtube bag.
func videoDetailFields(cand *types.Candidate) map[string]any {
	raw, ok := cand.Extra["youtube"]
	if !ok {
		return nil
	}
	buf, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var fields map[string]any
	if err := json.Unmarshal(buf, &fields); err != nil {
		return nil
	}
	return fields
}

// videoID resolves the video ID from the watch URL's v= param, falling
// back to the discovery-time metadata.
func videoID(cand *types.Candidate) string {
	if u, err := url.Parse(cand.URL); err == nil {
		if id := u.Query().Get("v"); id != "" {
			return id
		}
	}
	if meta := decodeVideoMeta(cand); meta != nil {
		return meta.ID
	}
	return ""
}

type commentThreadsResponse struct {
	NextPageToken string `json:"nextPageToken"`
	Items         []struct {
		Snippet struct {
			TopLevelComment ytComment `json:"topLevelComment"`
		} `json:"snippet"`
		Replies struct {
			Comments []ytComment `json:"comments"`
		} `json:"replies"`
	} `json:"items"`
}

type ytComment struct {
	ID      string `json:"id"`
	Snippet struct {
		AuthorDisplayName string `json:"authorDisplayName"`
		TextDisplay       string `json:"textDisplay"`
		LikeCount         int    `json:"likeCount"`
		PublishedAt       string `json:"publishedAt"`
		ParentID          string `json:"parentId"`
	} `json:"snippet"`
}

// fetchVideoComments pages through commentThreads. Environment knobs:
// YOUTUBE_COMMENTS_PAGES, YOUTUBE_COMMENTS_INCLUDE_REPLIES,
// YOUTUBE_COMMENTS_ORDER, YOUTUBE_COMMENTS_TEXT_FORMAT.
func (e *Extractor) fetchVideoComments(ctx context.Context, id string) []types.Comment {
	apiKey := os.Getenv("YOUTUBE_API_KEY")
	if apiKey == "" || id == "" {
		return nil
	}

	pages := 1
	if v := os.Getenv("YOUTUBE_COMMENTS_PAGES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			pages = n
		}
	}
	includeReplies := os.Getenv("YOUTUBE_COMMENTS_INCLUDE_REPLIES") == "1"
	order := os.Getenv("YOUTUBE_COMMENTS_ORDER")
	if order == "" {
		order = "relevance"
	}
	textFormat := os.Getenv("YOUTUBE_COMMENTS_TEXT_FORMAT")
	if textFormat == "" {
		textFormat = "plainText"
	}

	part := "snippet"
	if includeReplies {
		part = "snippet,replies"
	}

	var out []types.Comment
	pageToken := ""
	for page := 0; page < pages; page++ {
		params := url.Values{}
		params.Set("part", part)
		params.Set("videoId", id)
		params.Set("maxResults", "100")
		params.Set("order", order)
		params.Set("textFormat", textFormat)
		params.Set("key", apiKey)
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		var resp commentThreadsResponse
		if err := e.getJSON(ctx, e.cfg.YouTube.Endpoint+"/commentThreads?"+params.Encode(), &resp); err != nil {
			e.logger.Debug("commentThreads fetch failed", "video", id, "page", page, "error", err)
			break
		}

		stripTags := strings.EqualFold(textFormat, "html")
		for _, item := range resp.Items {
			out = append(out, toComment(item.Snippet.TopLevelComment, 0, stripTags))
			if includeReplies {
				for _, reply := range item.Replies.Comments {
					out = append(out, toComment(reply, 1, stripTags))
				}
			}
		}
		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}
	return out
}

func toComment(c ytComment, depth int, stripTags bool) types.Comment {
	text := c.Snippet.TextDisplay
	if stripTags {
		text = stripHTML(text)
	}
	return types.Comment{
		Author:      c.Snippet.AuthorDisplayName,
		Text:        text,
		PublishedAt: c.Snippet.PublishedAt,
		ID:          c.ID,
		Depth:       depth,
		ReplyTo:     c.Snippet.ParentID,
		LikeCount:   c.Snippet.LikeCount,
	}
}

func (e *Extractor) getJSON(ctx context.Context, reqURL string, out any) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("youtube HTTP %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8*1024*1024))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}
