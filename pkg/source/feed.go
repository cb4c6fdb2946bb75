package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/elonfeng/hotradar/internal/metrics"
	"github.com/mmcdole/gofeed"
)

// DefaultFeedURL is the public per-channel uploads feed.
const DefaultFeedURL = "https://www.youtube.com/feeds/videos.xml"

// ChannelFeed reads a channel's public Atom feed. It costs no API quota,
// so it backs up the uploads-playlist lookup.
type ChannelFeed struct {
	client  *http.Client
	parser  *gofeed.Parser
	baseURL string
}

// NewChannelFeed creates a new channel feed reader. An empty baseURL uses DefaultFeedURL.
func NewChannelFeed(baseURL string) *ChannelFeed {
	if baseURL == "" {
		baseURL = DefaultFeedURL
	}
	return &ChannelFeed{
		client:  &http.Client{Timeout: 15 * time.Second},
		parser:  gofeed.NewParser(),
		baseURL: baseURL,
	}
}

// RecentUploads returns the newest limit entries of the channel's feed.
func (f *ChannelFeed) RecentUploads(ctx context.Context, channelID string, limit int) ([]Upload, error) {
	if limit <= 0 {
		limit = 5
	}

	reqURL := f.baseURL + "?" + url.Values{"channel_id": {channelID}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create feed request %s: %w", channelID, err)
	}
	req.Header.Set("User-Agent", "hotradar/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", channelID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed %s status %d", channelID, resp.StatusCode)
	}

	parsed, err := f.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", channelID, err)
	}

	var uploads []Upload
	for _, entry := range parsed.Items {
		videoID := feedVideoID(entry)
		if videoID == "" {
			continue
		}

		var published time.Time
		if entry.PublishedParsed != nil {
			published = entry.PublishedParsed.UTC()
		} else if entry.UpdatedParsed != nil {
			published = entry.UpdatedParsed.UTC()
		}

		uploads = append(uploads, Upload{
			VideoID:      videoID,
			Title:        entry.Title,
			ThumbnailURL: feedThumbnail(entry),
			PublishedAt:  published,
		})
	}

	sort.SliceStable(uploads, func(i, j int) bool {
		return uploads[i].PublishedAt.After(uploads[j].PublishedAt)
	})
	if len(uploads) > limit {
		uploads = uploads[:limit]
	}

	metrics.FeedFallbacks.Inc()
	return uploads, nil
}

// feedVideoID reads <yt:videoId>, falling back to the "yt:video:ID" guid.
func feedVideoID(entry *gofeed.Item) string {
	if ids := entry.Extensions["yt"]["videoId"]; len(ids) > 0 && ids[0].Value != "" {
		return ids[0].Value
	}
	if id, ok := strings.CutPrefix(entry.GUID, "yt:video:"); ok {
		return id
	}
	return ""
}

// feedThumbnail reads <media:group><media:thumbnail url=…>.
func feedThumbnail(entry *gofeed.Item) string {
	if entry.Image != nil && entry.Image.URL != "" {
		return entry.Image.URL
	}
	for _, group := range entry.Extensions["media"]["group"] {
		for _, thumb := range group.Children["thumbnail"] {
			if u := thumb.Attrs["url"]; u != "" {
				return u
			}
		}
	}
	return ""
}
