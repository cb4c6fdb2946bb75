package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/elonfeng/hotradar/internal/metrics"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const redisPrefix = "hotradar:snapshot:"

// Options configures a Cache.
type Options struct {
	TTL        time.Duration
	PartialTTL time.Duration // lifetime of a snapshot with a failed content type
	MinFill    int           // 0 disables padding
	MaxEntries int
	RedisURL   string // empty disables L2
	Now        func() time.Time
}

// Cache holds the newest snapshot per query key. L1 is an in-process LRU,
// L2 is Redis so snapshots survive restarts and are shared between replicas.
type Cache struct {
	l1         *lru.Cache[string, *entry]
	rdb        *redis.Client // nil if Redis unavailable
	ttl        time.Duration
	partialTTL time.Duration
	minFill    int
	now        func() time.Time
	group      singleflight.Group
}

type entry struct {
	snap      *Snapshot
	expiresAt time.Time
}

// New creates a cache. An unreachable Redis disables L2 instead of failing.
func New(opts Options) (*Cache, error) {
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	if opts.PartialTTL <= 0 {
		opts.PartialTTL = 5 * time.Minute
	}
	if opts.PartialTTL > opts.TTL {
		opts.PartialTTL = opts.TTL
	}
	if opts.MinFill < 0 {
		opts.MinFill = 0
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = 256
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	l1, err := lru.New[string, *entry](opts.MaxEntries)
	if err != nil {
		return nil, fmt.Errorf("create snapshot lru: %w", err)
	}

	c := &Cache{l1: l1, ttl: opts.TTL, partialTTL: opts.PartialTTL, minFill: opts.MinFill, now: opts.Now}
	if opts.RedisURL != "" {
		c.rdb = connectRedis(opts.RedisURL)
	}
	slog.Info("snapshot: cache initialized",
		slog.Duration("ttl", c.ttl),
		slog.Duration("partial_ttl", c.partialTTL),
		slog.Int("min_fill", c.minFill),
		slog.Bool("redis", c.rdb != nil),
	)
	return c, nil
}

func connectRedis(url string) *redis.Client {
	opts, err := redis.ParseURL(url)
	if err != nil {
		slog.Warn("snapshot: invalid redis URL, L2 disabled", slog.Any("error", err))
		return nil
	}
	rdb := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("snapshot: redis unreachable, L2 disabled", slog.Any("error", err))
		rdb.Close()
		return nil
	}
	slog.Info("snapshot: L2 redis connected", slog.String("addr", opts.Addr))
	return rdb
}

func (c *Cache) ttlFor(snap *Snapshot) time.Duration {
	if snap.IsPartial() {
		return c.partialTTL
	}
	return c.ttl
}

// Key normalizes a region into a query key.
func Key(region string) string {
	return strings.ToUpper(strings.TrimSpace(region))
}

// Get returns the snapshot for key if it is younger than its TTL. Partial
// snapshots use the shorter partial TTL.
func (c *Cache) Get(ctx context.Context, key string) (*Snapshot, bool) {
	now := c.now()
	if e, ok := c.l1.Get(key); ok {
		if now.Before(e.expiresAt) {
			metrics.SnapshotLookups.WithLabelValues("hit_l1").Inc()
			return e.snap, true
		}
		c.l1.Remove(key)
	}

	if c.rdb != nil {
		data, err := c.rdb.Get(ctx, redisPrefix+key).Bytes()
		switch {
		case err == nil:
			var snap Snapshot
			if json.Unmarshal(data, &snap) == nil {
				expiresAt := snap.CapturedAt.Add(c.ttlFor(&snap))
				if now.Before(expiresAt) {
					c.l1.Add(key, &entry{snap: &snap, expiresAt: expiresAt})
					metrics.SnapshotLookups.WithLabelValues("hit_l2").Inc()
					return &snap, true
				}
			}
		case !errors.Is(err, redis.Nil):
			slog.Debug("snapshot: L2 get failed", slog.String("key", key), slog.Any("error", err))
		}
	}

	metrics.SnapshotLookups.WithLabelValues("miss").Inc()
	return nil, false
}

// Put pads snap, stamps it and stores it under key, superseding any previous
// snapshot. The stored snapshot is returned.
func (c *Cache) Put(ctx context.Context, key string, snap *Snapshot) *Snapshot {
	snap.QueryKey = key
	if snap.CapturedAt.IsZero() {
		snap.CapturedAt = c.now()
	}
	fill(snap, c.minFill)
	ttl := c.ttlFor(snap)

	c.l1.Add(key, &entry{snap: snap, expiresAt: snap.CapturedAt.Add(ttl)})

	if c.rdb != nil {
		data, err := json.Marshal(snap)
		if err == nil {
			err = c.rdb.Set(ctx, redisPrefix+key, data, ttl).Err()
		}
		if err != nil {
			slog.Debug("snapshot: L2 set failed", slog.String("key", key), slog.Any("error", err))
		}
	}
	return snap
}

// Invalidate drops key from both tiers.
func (c *Cache) Invalidate(ctx context.Context, key string) {
	c.l1.Remove(key)
	if c.rdb != nil {
		if err := c.rdb.Del(ctx, redisPrefix+key).Err(); err != nil {
			slog.Debug("snapshot: L2 delete failed", slog.String("key", key), slog.Any("error", err))
		}
	}
}

// GetOrRefresh returns a fresh snapshot for key, running build on a miss.
// Concurrent callers for the same key share one build. The build is detached
// from the first caller's cancellation so late joiners still get a result.
// cached reports whether the snapshot came from the cache.
func (c *Cache) GetOrRefresh(ctx context.Context, key string, build func(ctx context.Context) (*Snapshot, error)) (snap *Snapshot, cached bool, err error) {
	if snap, ok := c.Get(ctx, key); ok {
		return snap, true, nil
	}
	return c.refresh(ctx, key, build, true)
}

// Refresh drops the current snapshot for key and rebuilds it, once per key at
// a time. After a failed rebuild the key stays empty.
func (c *Cache) Refresh(ctx context.Context, key string, build func(ctx context.Context) (*Snapshot, error)) (*Snapshot, error) {
	c.Invalidate(ctx, key)
	snap, _, err := c.refresh(ctx, key, build, false)
	return snap, err
}

type refreshResult struct {
	snap   *Snapshot
	cached bool
}

// refresh deduplicates builds per key. With reuse set, a snapshot stored by a
// build that finished while this caller was queued is returned instead of
// building again.
func (c *Cache) refresh(ctx context.Context, key string, build func(ctx context.Context) (*Snapshot, error), reuse bool) (*Snapshot, bool, error) {
	ch := c.group.DoChan(key, func() (any, error) {
		bctx := context.WithoutCancel(ctx)
		if reuse {
			if e, ok := c.l1.Peek(key); ok && c.now().Before(e.expiresAt) {
				return refreshResult{snap: e.snap, cached: true}, nil
			}
		}
		snap, err := build(bctx)
		if err != nil {
			metrics.SnapshotRefreshes.WithLabelValues("error").Inc()
			return nil, err
		}
		metrics.SnapshotRefreshes.WithLabelValues("ok").Inc()
		return refreshResult{snap: c.Put(bctx, key, snap)}, nil
	})

	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		r := res.Val.(refreshResult)
		return r.snap, r.cached, nil
	}
}

// Len returns the number of L1 entries, expired ones included.
func (c *Cache) Len() int {
	return c.l1.Len()
}

// Close releases the Redis connection.
func (c *Cache) Close() error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}
