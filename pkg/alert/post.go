package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// poster delivers JSON payloads to one destination URL.
type poster struct {
	name   string
	url    string
	client *http.Client
}

func newPoster(name, url string) poster {
	return poster{name: name, url: url, client: &http.Client{Timeout: 10 * time.Second}}
}

func (p poster) Name() string { return p.name }

// postJSON encodes payload and POSTs it. decorate, if set, sees the final
// body before the request is sent. Any non-2xx status is an error.
func (p poster) postJSON(ctx context.Context, payload any, decorate func(req *http.Request, body []byte)) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", p.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", p.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "hotradar/1.0")
	if decorate != nil {
		decorate(req, body)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("send %s: %w", p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s status %d", p.name, resp.StatusCode)
	}
	return nil
}
