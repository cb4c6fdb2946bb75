package alert

import (
	"context"
	"fmt"
)

// Slack posts a block message to a Slack incoming webhook.
type Slack struct {
	poster
}

func NewSlack(webhookURL string) *Slack {
	return &Slack{poster: newPoster("slack", webhookURL)}
}

func (s *Slack) Send(ctx context.Context, n *Notification) error {
	blocks := []map[string]any{
		{
			"type": "header",
			"text": map[string]any{
				"type": "plain_text",
				"text": fmt.Sprintf("🔥 %s", n.Title),
			},
		},
		{
			"type": "section",
			"text": map[string]any{
				"type": "mrkdwn",
				"text": fmt.Sprintf("*Hot score:* %.2f | <%s|Open channel>\n%s", n.Score, n.URL, n.Body),
			},
		},
	}

	if videos := topVideos(n, 5); len(videos) > 0 {
		var elements []map[string]any
		for _, v := range videos {
			elements = append(elements, map[string]any{
				"type": "mrkdwn",
				"text": fmt.Sprintf("<%s|%s>", VideoURL(v.VideoID), v.Title),
			})
		}
		blocks = append(blocks, map[string]any{
			"type":     "context",
			"elements": elements,
		})
	}

	return s.postJSON(ctx, map[string]any{"text": n.Title, "blocks": blocks}, nil)
}
