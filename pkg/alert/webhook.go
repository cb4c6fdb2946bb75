package alert

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/elonfeng/hotradar/internal/store"
)

// EventHotChannel is the event type of a discovery alert.
const EventHotChannel = "hot_channel.discovered"

// Event is the body of a generic webhook delivery.
type Event struct {
	Event      string        `json:"event"`
	DeliveryID string        `json:"delivery_id"`
	SentAt     time.Time     `json:"sent_at"`
	Summary    string        `json:"summary"`
	URL        string        `json:"url"`
	Channel    store.Channel `json:"channel"`
}

// DeliveryID identifies one observation of a channel. Re-broadcasting the
// same observation yields the same id so receivers can drop duplicates.
func DeliveryID(ch store.Channel) string {
	return fmt.Sprintf("%s:%d", ch.ChannelID, ch.LastUpdated.Unix())
}

// Webhook posts signed discovery events to a generic HTTP endpoint.
type Webhook struct {
	poster
	secret string
	now    func() time.Time
}

// NewWebhook creates a generic webhook notifier. An empty secret sends
// unsigned requests.
func NewWebhook(url, secret string) *Webhook {
	return &Webhook{poster: newPoster("webhook", url), secret: secret, now: time.Now}
}

func (w *Webhook) Send(ctx context.Context, n *Notification) error {
	ev := Event{
		Event:      EventHotChannel,
		DeliveryID: DeliveryID(n.Channel),
		SentAt:     w.now().UTC(),
		Summary:    n.Body,
		URL:        n.URL,
		Channel:    n.Channel,
	}
	return w.postJSON(ctx, ev, func(req *http.Request, body []byte) {
		req.Header.Set("X-Hotradar-Event", ev.Event)
		req.Header.Set("X-Hotradar-Delivery", ev.DeliveryID)
		if w.secret != "" {
			req.Header.Set("X-Signature-256", "sha256="+Sign(w.secret, body))
		}
	})
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
