package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/elonfeng/hotradar/internal/metrics"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// MaxIDsPerRequest is the Data API ceiling for comma-joined id lists.
const MaxIDsPerRequest = 50

var (
	videoParts    = []string{"snippet", "contentDetails", "statistics"}
	channelParts  = []string{"snippet", "statistics", "contentDetails"}
	playlistParts = []string{"snippet", "contentDetails"}
)

// YouTubeOptions configures the Data API client.
type YouTubeOptions struct {
	Endpoint          string // override for tests; empty uses the public API
	Language          string
	ShortsQuery       string
	PageSize          int
	CallTimeout       time.Duration
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

// YouTube fetches candidates and channel data from the YouTube Data API.
// Every call goes through the key pool.
type YouTube struct {
	svc         *youtube.Service
	keys        *KeyPool
	limiter     *rate.Limiter
	language    string
	shortsQuery string
	pageSize    int
	callTimeout time.Duration
}

// NewYouTube creates a new YouTube Data API client.
func NewYouTube(ctx context.Context, keys *KeyPool, opts YouTubeOptions) (*YouTube, error) {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.PageSize <= 0 || opts.PageSize > MaxIDsPerRequest {
		opts.PageSize = MaxIDsPerRequest
	}
	if opts.ShortsQuery == "" {
		opts.ShortsQuery = "#shorts"
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 15 * time.Second
	}

	svcOpts := []option.ClientOption{option.WithHTTPClient(opts.HTTPClient)}
	if opts.Endpoint != "" {
		svcOpts = append(svcOpts, option.WithEndpoint(opts.Endpoint))
	}
	svc, err := youtube.NewService(ctx, svcOpts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	return &YouTube{
		svc:         svc,
		keys:        keys,
		limiter:     rate.NewLimiter(limit, 1),
		language:    opts.Language,
		shortsQuery: opts.ShortsQuery,
		pageSize:    opts.PageSize,
		callTimeout: opts.CallTimeout,
	}, nil
}

// call paces, times out and key-rotates a single API request.
func call[T any](ctx context.Context, y *YouTube, endpoint string, do func(ctx context.Context, key googleapi.CallOption) (T, error)) (T, error) {
	result, _, err := Execute(ctx, y.keys, func(ctx context.Context, key string) (T, error) {
		var zero T
		if err := y.limiter.Wait(ctx); err != nil {
			return zero, err
		}
		callCtx, cancel := context.WithTimeout(ctx, y.callTimeout)
		defer cancel()

		res, err := do(callCtx, googleapi.QueryParameter("key", key))
		metrics.UpstreamRequests.WithLabelValues(endpoint, outcome(err)).Inc()
		return res, err
	})
	if err != nil {
		return result, fmt.Errorf("youtube %s: %w", endpoint, err)
	}
	return result, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsQuotaExceeded(err):
		return "quota"
	default:
		return "error"
	}
}

// FetchCandidates returns raw candidate videos; duplicates per channel are kept.
// An empty upstream result is an empty list, not an error.
func (y *YouTube) FetchCandidates(ctx context.Context, ct ContentType, region string) ([]CandidateVideo, error) {
	switch ct {
	case ContentShorts:
		return y.fetchShorts(ctx, region)
	case ContentLong:
		return y.fetchMostPopular(ctx, region)
	}
	return nil, fmt.Errorf("unsupported content type %q", ct)
}

func (y *YouTube) fetchShorts(ctx context.Context, region string) ([]CandidateVideo, error) {
	resp, err := call(ctx, y, "search", func(ctx context.Context, key googleapi.CallOption) (*youtube.SearchListResponse, error) {
		req := y.svc.Search.List([]string{"snippet"}).
			Q(y.shortsQuery).
			Type("video").
			VideoDuration("short").
			Order("viewCount").
			MaxResults(int64(y.pageSize))
		if region != "" {
			req = req.RegionCode(region)
		}
		if y.language != "" {
			req = req.RelevanceLanguage(y.language)
		}
		return req.Context(ctx).Do(key)
	})
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, item := range resp.Items {
		if item.Id == nil || item.Id.VideoId == "" {
			continue
		}
		ids = append(ids, item.Id.VideoId)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return y.Videos(ctx, ids)
}

func (y *YouTube) fetchMostPopular(ctx context.Context, region string) ([]CandidateVideo, error) {
	resp, err := call(ctx, y, "videos.chart", func(ctx context.Context, key googleapi.CallOption) (*youtube.VideoListResponse, error) {
		req := y.svc.Videos.List(videoParts).
			Chart("mostPopular").
			MaxResults(int64(y.pageSize))
		if region != "" {
			req = req.RegionCode(region)
		}
		return req.Context(ctx).Do(key)
	})
	if err != nil {
		return nil, err
	}
	return toCandidates(resp.Items), nil
}

// Videos hydrates videos by id in batches of MaxIDsPerRequest.
func (y *YouTube) Videos(ctx context.Context, ids []string) ([]CandidateVideo, error) {
	var videos []CandidateVideo
	for _, batch := range Batch(ids, MaxIDsPerRequest) {
		resp, err := call(ctx, y, "videos", func(ctx context.Context, key googleapi.CallOption) (*youtube.VideoListResponse, error) {
			return y.svc.Videos.List(videoParts).Id(batch...).Context(ctx).Do(key)
		})
		if err != nil {
			return nil, err
		}
		videos = append(videos, toCandidates(resp.Items)...)
	}
	return videos, nil
}

// Channels hydrates channels by id in batches of MaxIDsPerRequest.
// Callers that want per-batch failure isolation pass one batch at a time.
func (y *YouTube) Channels(ctx context.Context, ids []string) ([]ChannelStats, error) {
	var channels []ChannelStats
	for _, batch := range Batch(ids, MaxIDsPerRequest) {
		resp, err := call(ctx, y, "channels", func(ctx context.Context, key googleapi.CallOption) (*youtube.ChannelListResponse, error) {
			return y.svc.Channels.List(channelParts).Id(batch...).Context(ctx).Do(key)
		})
		if err != nil {
			return nil, err
		}
		for _, ch := range resp.Items {
			channels = append(channels, toChannelStats(ch))
		}
	}
	return channels, nil
}

// RecentUploads lists the newest items of an uploads playlist.
func (y *YouTube) RecentUploads(ctx context.Context, playlistID string, limit int) ([]Upload, error) {
	if playlistID == "" {
		return nil, fmt.Errorf("youtube playlistItems: empty playlist id")
	}
	if limit <= 0 {
		limit = 5
	}
	resp, err := call(ctx, y, "playlistItems", func(ctx context.Context, key googleapi.CallOption) (*youtube.PlaylistItemListResponse, error) {
		return y.svc.PlaylistItems.List(playlistParts).
			PlaylistId(playlistID).
			MaxResults(int64(limit)).
			Context(ctx).
			Do(key)
	})
	if err != nil {
		return nil, err
	}

	uploads := make([]Upload, 0, len(resp.Items))
	for _, item := range resp.Items {
		var u Upload
		if item.ContentDetails != nil {
			u.VideoID = item.ContentDetails.VideoId
		}
		if item.Snippet != nil {
			u.Title = item.Snippet.Title
			u.ThumbnailURL = thumbnailURL(item.Snippet.Thumbnails)
			u.PublishedAt = parseTime(item.Snippet.PublishedAt)
			if u.VideoID == "" && item.Snippet.ResourceId != nil {
				u.VideoID = item.Snippet.ResourceId.VideoId
			}
		}
		if u.VideoID == "" {
			slog.Debug("youtube: playlist item without video id", slog.String("playlist", playlistID))
			continue
		}
		uploads = append(uploads, u)
	}
	return uploads, nil
}

// Batch splits ids into consecutive chunks of at most size.
func Batch(ids []string, size int) [][]string {
	if size <= 0 {
		size = MaxIDsPerRequest
	}
	var batches [][]string
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		batches = append(batches, ids[start:end])
	}
	return batches
}

func toCandidates(items []*youtube.Video) []CandidateVideo {
	videos := make([]CandidateVideo, 0, len(items))
	for _, v := range items {
		if v == nil || v.Id == "" {
			continue
		}
		c := CandidateVideo{ID: v.Id}
		if v.Snippet != nil {
			c.ChannelID = v.Snippet.ChannelId
			c.ChannelTitle = v.Snippet.ChannelTitle
			c.Title = v.Snippet.Title
			c.ThumbnailURL = thumbnailURL(v.Snippet.Thumbnails)
			c.PublishedAt = parseTime(v.Snippet.PublishedAt)
		}
		if v.ContentDetails != nil {
			c.Duration = v.ContentDetails.Duration
			c.DurationSeconds = ParseDuration(v.ContentDetails.Duration)
		}
		if v.Statistics != nil {
			c.ViewCount = int64(v.Statistics.ViewCount)
		}
		videos = append(videos, c)
	}
	return videos
}

func toChannelStats(ch *youtube.Channel) ChannelStats {
	stats := ChannelStats{ID: ch.Id}
	if ch.Snippet != nil {
		stats.Title = ch.Snippet.Title
		stats.ThumbnailURL = thumbnailURL(ch.Snippet.Thumbnails)
	}
	if ch.Statistics != nil {
		stats.ViewCount = int64(ch.Statistics.ViewCount)
		stats.VideoCount = int64(ch.Statistics.VideoCount)
		if !ch.Statistics.HiddenSubscriberCount {
			stats.SubscriberCount = int64(ch.Statistics.SubscriberCount)
		}
	}
	if ch.ContentDetails != nil && ch.ContentDetails.RelatedPlaylists != nil {
		stats.UploadsPlaylist = ch.ContentDetails.RelatedPlaylists.Uploads
	}
	return stats
}

// thumbnailURL prefers medium, then default, then empty.
func thumbnailURL(t *youtube.ThumbnailDetails) string {
	if t == nil {
		return ""
	}
	if t.Medium != nil && t.Medium.Url != "" {
		return t.Medium.Url
	}
	if t.Default != nil {
		return t.Default.Url
	}
	return ""
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
