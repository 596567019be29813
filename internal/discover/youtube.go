package discover

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/kcorpus/crawler/internal/config"
	"github.com/kcorpus/crawler/internal/fetch"
	"github.com/kcorpus/crawler/internal/types"
)

// YouTube discovers video candidates: one search request per keyword,
// then one videos request enumerating the returned IDs for details.
// Without an API key it yields an empty list.
type YouTube struct {
	cfg      *config.Config
	client   *retryablehttp.Client
	logger   *slog.Logger
	window   Window
	apiKey   string
	keywords []string
}

// NewYouTube creates the video-API discoverer. keywords overrides the
// config keyword list when non-nil (the auto-crawler passes the
// quota-constrained subset).
func NewYouTube(cfg *config.Config, window Window, keywords []string, logger *slog.Logger) *YouTube {
	if keywords == nil {
		keywords = cfg.Keywords
	}
	return &YouTube{
		cfg:      cfg,
		client:   fetch.NewRetryClient(cfg.Limits.RequestTimeout(), 3, logger),
		logger:   logger.With("component", "discover_youtube"),
		window:   window,
		apiKey:   os.Getenv("YOUTUBE_API_KEY"),
		keywords: keywords,
	}
}

func (y *YouTube) Source() string { return types.SourceYouTube }

// Discover runs the two-step search→details flow per keyword.
func (y *YouTube) Discover(ctx context.Context) ([]types.Candidate, error) {
	if y.apiKey == "" {
		y.logger.Debug("no YOUTUBE_API_KEY, skipping video discovery")
		return nil, nil
	}

	var cands []types.Candidate
	for _, kw := range y.keywords {
		ids, err := y.search(ctx, kw)
		if err != nil {
			y.logger.Warn("youtube search failed", "keyword", kw, "error", err)
			continue
		}
		if len(ids) == 0 {
			continue
		}

		details, err := y.videoDetails(ctx, ids)
		if err != nil {
			y.logger.Warn("youtube details failed", "keyword", kw, "error", err)
			continue
		}

		for _, v := range details {
			cand := types.Candidate{
				URL:    "https://www.youtube.com/watch?v=" + v.ID,
				Source: types.SourceYouTube,
				Title:  v.Snippet.Title,
				Via: types.DiscoveredVia{
					Type:    types.ViaVideo,
					Keyword: kw,
					Window:  y.window.String(),
				},
				Extra: map[string]any{"youtube": v},
			}
			if t, err := time.Parse(time.RFC3339, v.Snippet.PublishedAt); err == nil {
				utc := t.UTC()
				cand.HintedAt = &utc
			}
			cands = append(cands, cand)
		}
	}

	y.logger.Info("youtube discovery done", "keywords", len(y.keywords), "candidates", len(cands))
	return cands, nil
}

// videoDetail is the subset of the videos.list item the corpus keeps.
type videoDetail struct {
	ID      string `json:"id"`
	Snippet struct {
		Title        string `json:"title"`
		Description  string `json:"description"`
		PublishedAt  string `json:"publishedAt"`
		ChannelTitle string `json:"channelTitle"`
	} `json:"snippet"`
	ContentDetails struct {
		Duration string `json:"duration"`
	} `json:"contentDetails"`
	Statistics struct {
		ViewCount    string `json:"viewCount"`
		LikeCount    string `json:"likeCount"`
		CommentCount string `json:"commentCount"`
	} `json:"statistics"`
}

// search returns video IDs for one keyword, newest first, within window.
func (y *YouTube) search(ctx context.Context, keyword string) ([]string, error) {
	params := url.Values{}
	params.Set("part", "id")
	params.Set("q", keyword)
	params.Set("type", "video")
	params.Set("order", "date")
	params.Set("maxResults", strconv.Itoa(y.cfg.YouTube.MaxResults))
	params.Set("publishedAfter", y.window.Start.UTC().Format(time.RFC3339))
	if !y.window.End.IsZero() {
		params.Set("publishedBefore", y.window.End.UTC().Format(time.RFC3339))
	}
	params.Set("key", y.apiKey)

	var out struct {
		Items []struct {
			ID struct {
				VideoID string `json:"videoId"`
			} `json:"id"`
		} `json:"items"`
	}
	if err := y.getJSON(ctx, y.cfg.YouTube.Endpoint+"/search?"+params.Encode(), &out); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(out.Items))
	for _, it := range out.Items {
		if it.ID.VideoID != "" {
			ids = append(ids, it.ID.VideoID)
		}
	}
	return ids, nil
}

// videoDetails enumerates video IDs for snippet+contentDetails+statistics.
func (y *YouTube) videoDetails(ctx context.Context, ids []string) ([]videoDetail, error) {
	params := url.Values{}
	params.Set("part", "snippet,contentDetails,statistics")
	params.Set("id", strings.Join(ids, ","))
	params.Set("key", y.apiKey)

	var out struct {
		Items []videoDetail `json:"items"`
	}
	if err := y.getJSON(ctx, y.cfg.YouTube.Endpoint+"/videos?"+params.Encode(), &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (y *YouTube) getJSON(ctx context.Context, reqURL string, out any) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	resp, err := y.client.Do(req)
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
