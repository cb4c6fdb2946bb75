package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/elonfeng/hotradar/internal/metrics"
	"google.golang.org/api/googleapi"
)

var (
	ErrNoKeysConfigured    = errors.New("no api keys configured")
	ErrQuotaExceeded       = errors.New("api quota exceeded")
	ErrAllKeysExhausted    = errors.New("all api keys exhausted")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// quotaReasons are the googleapi error reasons that mean the key is spent.
var quotaReasons = map[string]bool{
	"quotaExceeded":         true,
	"dailyLimitExceeded":    true,
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
}

// KeyPool holds interchangeable API keys and a sticky cursor.
// Rotation is never reverted, so later calls start from the last key that was not exhausted.
type KeyPool struct {
	mu     sync.Mutex
	keys   []string
	cursor int
}

// NewKeyPool creates a pool from keys, dropping blanks and duplicates.
func NewKeyPool(keys []string) *KeyPool {
	seen := make(map[string]bool, len(keys))
	var clean []string
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		clean = append(clean, k)
	}
	return &KeyPool{keys: clean}
}

// Len returns the number of keys in the pool.
func (p *KeyPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys)
}

// Current returns the key under the cursor.
func (p *KeyPool) Current() (string, error) {
	_, key, err := p.current()
	return key, err
}

func (p *KeyPool) current() (int, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.keys) == 0 {
		return 0, "", ErrNoKeysConfigured
	}
	return p.cursor, p.keys[p.cursor], nil
}

// Rotate advances the cursor to the next key. A pool with fewer than two
// keys cannot rotate and reports false.
func (p *KeyPool) Rotate() bool {
	idx, _, err := p.current()
	if err != nil {
		return false
	}
	return p.rotateFrom(idx)
}

// rotateFrom advances the cursor only if it still points at idx, so two
// goroutines failing on the same key rotate once between them.
func (p *KeyPool) rotateFrom(idx int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.keys) < 2 {
		return false
	}
	if p.cursor == idx {
		p.cursor = (p.cursor + 1) % len(p.keys)
		metrics.KeyRotations.Inc()
	}
	return true
}

// Execute runs fn with the current key, rotating on quota errors.
// It makes at most one attempt per key. Other errors are returned at once,
// wrapped in ErrUpstreamUnavailable, without touching the cursor.
func Execute[T any](ctx context.Context, p *KeyPool, fn func(ctx context.Context, key string) (T, error)) (T, string, error) {
	var zero T

	attempts := p.Len()
	if attempts == 0 {
		return zero, "", ErrNoKeysConfigured
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, "", err
		}

		idx, key, err := p.current()
		if err != nil {
			return zero, "", err
		}

		result, err := fn(ctx, key)
		if err == nil {
			return result, key, nil
		}

		if !IsQuotaExceeded(err) {
			if ctx.Err() != nil {
				return zero, key, err
			}
			return zero, key, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
		}

		slog.Warn("api key quota exceeded",
			slog.Int("key_index", idx),
			slog.Int("attempt", attempt),
			slog.Int("pool_size", attempts),
		)

		if attempt >= attempts || !p.rotateFrom(idx) {
			metrics.KeyPoolExhausted.Inc()
			return zero, key, fmt.Errorf("%w after %d attempt(s): %w", ErrAllKeysExhausted, attempt, err)
		}
	}
}

// IsQuotaExceeded reports whether err is a quota-exhaustion signal.
func IsQuotaExceeded(err error) bool {
	if errors.Is(err, ErrQuotaExceeded) {
		return true
	}

	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	if gerr.Code == http.StatusTooManyRequests {
		return true
	}
	if gerr.Code != http.StatusForbidden {
		return false
	}
	for _, item := range gerr.Errors {
		if quotaReasons[item.Reason] {
			return true
		}
	}
	return false
}
