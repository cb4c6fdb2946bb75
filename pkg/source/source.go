package source

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ContentType selects short-form or long-form discovery.
type ContentType string

const (
	ContentShorts ContentType = "shorts"
	ContentLong   ContentType = "long"
)

// ParseContentType accepts "shorts"/"short" and "long"/"longform".
func ParseContentType(s string) (ContentType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "shorts", "short":
		return ContentShorts, nil
	case "long", "longform", "long-form":
		return ContentLong, nil
	}
	return "", fmt.Errorf("unknown content type %q (want shorts or long)", s)
}

// AllContentTypes returns every content type a snapshot covers.
func AllContentTypes() []ContentType {
	return []ContentType{ContentShorts, ContentLong}
}

// CandidateVideo is a video returned by a search or chart query.
// Candidates are never persisted directly.
type CandidateVideo struct {
	ID              string    `json:"id"`
	ChannelID       string    `json:"channel_id"`
	ChannelTitle    string    `json:"channel_title"`
	Title           string    `json:"title"`
	ThumbnailURL    string    `json:"thumbnail_url"`
	PublishedAt     time.Time `json:"published_at"`
	Duration        string    `json:"duration"`
	DurationSeconds int       `json:"duration_seconds"`
	ViewCount       int64     `json:"view_count"`
	Padded          bool      `json:"padded,omitempty"`
}

// ChannelStats is the hydrated snippet/statistics/contentDetails of a channel.
type ChannelStats struct {
	ID              string
	Title           string
	ThumbnailURL    string
	SubscriberCount int64
	ViewCount       int64
	VideoCount      int64
	UploadsPlaylist string
}

// Upload is one recent item from a channel's uploads.
type Upload struct {
	VideoID      string
	Title        string
	ThumbnailURL string
	PublishedAt  time.Time
}

// CandidateFetcher returns raw candidates for a content type and region.
type CandidateFetcher interface {
	FetchCandidates(ctx context.Context, ct ContentType, region string) ([]CandidateVideo, error)
}

// ChannelLookup hydrates channels and lists their recent uploads.
type ChannelLookup interface {
	Channels(ctx context.Context, ids []string) ([]ChannelStats, error)
	RecentUploads(ctx context.Context, playlistID string, limit int) ([]Upload, error)
}

// UploadFeed lists recent uploads without spending API quota.
type UploadFeed interface {
	RecentUploads(ctx context.Context, channelID string, limit int) ([]Upload, error)
}
