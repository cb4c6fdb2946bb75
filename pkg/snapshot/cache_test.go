package snapshot

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/elonfeng/hotradar/pkg/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestCache(t *testing.T, minFill int) (*Cache, *clock) {
	t.Helper()
	clk := &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	c, err := New(Options{TTL: time.Hour, MinFill: minFill, Now: clk.Now})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, clk
}

func TestGetBeforeAndAfterTTL(t *testing.T) {
	c, clk := newTestCache(t, 0)
	ctx := context.Background()

	_, ok := c.Get(ctx, "US")
	assert.False(t, ok)

	stored := c.Put(ctx, "US", &Snapshot{ShortFormVideos: videos(2)})
	assert.Equal(t, "US", stored.QueryKey)
	assert.Equal(t, clk.Now(), stored.CapturedAt)

	clk.Advance(59 * time.Minute)
	got, ok := c.Get(ctx, "US")
	require.True(t, ok)
	assert.Same(t, stored, got)

	clk.Advance(2 * time.Minute)
	_, ok = c.Get(ctx, "US")
	assert.False(t, ok, "expired snapshot is a miss")
}

func TestPutSupersedesWholesale(t *testing.T) {
	c, _ := newTestCache(t, 0)
	ctx := context.Background()

	c.Put(ctx, "US", &Snapshot{ShortFormVideos: videos(5)})
	c.Put(ctx, "US", &Snapshot{LongFormVideos: videos(1)})

	got, ok := c.Get(ctx, "US")
	require.True(t, ok)
	assert.Empty(t, got.ShortFormVideos)
	assert.Len(t, got.LongFormVideos, 1)
	assert.Len(t, got.AllVideos, 1)
}

func TestPutPads(t *testing.T) {
	c, _ := newTestCache(t, 150)
	snap := c.Put(context.Background(), "US", &Snapshot{ShortFormVideos: videos(40), LongFormVideos: videos(150)})

	assert.Len(t, snap.ShortFormVideos, 150)
	assert.Len(t, snap.LongFormVideos, 150)
	assert.Len(t, snap.AllVideos, 300)
	assert.Equal(t, 40, snap.Genuine.Shorts)
	for i := 40; i < 150; i++ {
		assert.Equal(t, snap.ShortFormVideos[i%40].ID, snap.ShortFormVideos[i].ID)
	}
}

func TestPartialSnapshotUsesShorterTTL(t *testing.T) {
	c, clk := newTestCache(t, 0)
	ctx := context.Background()

	stored := c.Put(ctx, "US", &Snapshot{
		LongFormVideos: videos(2),
		Incomplete:     []source.ContentType{source.ContentShorts},
	})
	assert.True(t, stored.IsPartial())

	clk.Advance(4 * time.Minute)
	_, ok := c.Get(ctx, "US")
	assert.True(t, ok)

	clk.Advance(2 * time.Minute)
	_, ok = c.Get(ctx, "US")
	assert.False(t, ok, "partial snapshot expires after the partial TTL")
}

func TestPartialTTLNeverExceedsTTL(t *testing.T) {
	c, err := New(Options{TTL: time.Minute, PartialTTL: time.Hour})
	require.NoError(t, err)
	assert.Equal(t, time.Minute, c.partialTTL)
}

func TestRefreshFailureLeavesKeyEmpty(t *testing.T) {
	c, _ := newTestCache(t, 0)
	ctx := context.Background()
	c.Put(ctx, "US", &Snapshot{LongFormVideos: videos(1)})

	boom := errors.New("boom")
	_, err := c.Refresh(ctx, "US", func(ctx context.Context) (*Snapshot, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	_, ok := c.Get(ctx, "US")
	assert.False(t, ok)
}

func TestInvalidate(t *testing.T) {
	c, _ := newTestCache(t, 0)
	ctx := context.Background()

	c.Put(ctx, "US", &Snapshot{})
	c.Invalidate(ctx, "US")
	_, ok := c.Get(ctx, "US")
	assert.False(t, ok)
}

func TestGetOrRefresh(t *testing.T) {
	c, clk := newTestCache(t, 0)
	ctx := context.Background()
	var builds atomic.Int32
	build := func(ctx context.Context) (*Snapshot, error) {
		builds.Add(1)
		return &Snapshot{ShortFormVideos: videos(1)}, nil
	}

	_, cached, err := c.GetOrRefresh(ctx, "US", build)
	require.NoError(t, err)
	assert.False(t, cached)

	_, cached, err = c.GetOrRefresh(ctx, "US", build)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.EqualValues(t, 1, builds.Load())

	clk.Advance(2 * time.Hour)
	_, cached, err = c.GetOrRefresh(ctx, "US", build)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.EqualValues(t, 2, builds.Load())
}

func TestGetOrRefreshBuildError(t *testing.T) {
	c, _ := newTestCache(t, 0)
	boom := errors.New("boom")

	_, _, err := c.GetOrRefresh(context.Background(), "US", func(ctx context.Context) (*Snapshot, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())
}

func TestSingleRefreshPerKey(t *testing.T) {
	c, _ := newTestCache(t, 0)
	var builds atomic.Int32
	release := make(chan struct{})
	build := func(ctx context.Context) (*Snapshot, error) {
		builds.Add(1)
		<-release
		return &Snapshot{}, nil
	}

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := c.GetOrRefresh(context.Background(), "US", build)
			assert.NoError(t, err)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, builds.Load())
}

func TestRefreshSurvivesCallerCancel(t *testing.T) {
	c, _ := newTestCache(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		_, err := c.Refresh(ctx, "US", func(bctx context.Context) (*Snapshot, error) {
			cancel()
			time.Sleep(10 * time.Millisecond)
			if bctx.Err() != nil {
				return nil, bctx.Err()
			}
			return &Snapshot{LongFormVideos: videos(1)}, nil
		})
		assert.ErrorIs(t, err, context.Canceled)
	}()
	<-done

	require.Eventually(t, func() bool {
		_, ok := c.Get(context.Background(), "US")
		return ok
	}, time.Second, 5*time.Millisecond, "detached build still stores its result")
}

func TestKey(t *testing.T) {
	assert.Equal(t, "KR", Key(" kr "))
}
