package alert

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Discord posts one embed per channel to a Discord webhook.
type Discord struct {
	poster
}

func NewDiscord(webhookURL string) *Discord {
	return &Discord{poster: newPoster("discord", webhookURL)}
}

func (d *Discord) Send(ctx context.Context, n *Notification) error {
	var links []string
	for _, v := range topVideos(n, 5) {
		links = append(links, fmt.Sprintf("• [%s](%s)", v.Title, VideoURL(v.VideoID)))
	}

	embed := map[string]any{
		"title":       fmt.Sprintf("🔥 %s", n.Title),
		"url":         n.URL,
		"description": fmt.Sprintf("**Hot score:** %.2f\n\n%s\n\n%s", n.Score, n.Body, strings.Join(links, "\n")),
		"color":       0xFF0000,
		"timestamp":   observedAt(n).Format(time.RFC3339),
	}
	if n.Channel.ThumbnailURL != "" {
		embed["thumbnail"] = map[string]any{"url": n.Channel.ThumbnailURL}
	}

	return d.postJSON(ctx, map[string]any{"embeds": []map[string]any{embed}}, nil)
}

// observedAt is when the channel was last scored, or now if unknown.
func observedAt(n *Notification) time.Time {
	if t := n.Channel.LastUpdated; !t.IsZero() {
		return t.UTC()
	}
	return time.Now().UTC()
}
