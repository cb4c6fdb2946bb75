package alert

import (
	"context"
	"errors"
	"fmt"

	"github.com/elonfeng/hotradar/internal/store"
)

// ChannelURL returns the public page of a channel.
func ChannelURL(channelID string) string {
	return "https://www.youtube.com/channel/" + channelID
}

// VideoURL returns the watch page of a video.
func VideoURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

// Notification announces a newly discovered HOT channel.
type Notification struct {
	Title   string        `json:"title"`
	Body    string        `json:"body"`
	URL     string        `json:"url"`
	Score   float64       `json:"score"`
	Region  string        `json:"region"`
	Channel store.Channel `json:"channel"`
}

// NewNotification builds the notification for ch.
func NewNotification(ch store.Channel) *Notification {
	return &Notification{
		Title: ch.Name,
		Body: fmt.Sprintf("%s channel in %s: %d subscribers, %d avg views/video, ~%d views/day",
			ch.ContentType, ch.Region, ch.SubscriberCount, ch.AvgViewsPerVideo, ch.DailyGrowth),
		URL:     ChannelURL(ch.ChannelID),
		Score:   ch.HotScore,
		Region:  ch.Region,
		Channel: ch,
	}
}

// Notifier delivers alerts to a specific destination.
type Notifier interface {
	Name() string
	Send(ctx context.Context, n *Notification) error
}

// Manager broadcasts notifications to all registered notifiers.
type Manager struct {
	notifiers []Notifier
}

// NewManager creates a new alert manager.
func NewManager(notifiers []Notifier) *Manager {
	return &Manager{notifiers: notifiers}
}

// HasNotifiers returns true if at least one notifier is configured.
func (m *Manager) HasNotifiers() bool {
	return len(m.notifiers) > 0
}

// Broadcast sends a notification to every notifier and joins their errors.
func (m *Manager) Broadcast(ctx context.Context, n *Notification) error {
	var errs []error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", notifier.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// topVideos returns at most limit recent videos.
func topVideos(n *Notification, limit int) []store.RecentVideo {
	videos := n.Channel.RecentVideos
	if len(videos) > limit {
		videos = videos[:limit]
	}
	return videos
}
