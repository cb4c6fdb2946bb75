package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/elonfeng/hotradar/internal/store"
	"github.com/elonfeng/hotradar/pkg/alert"
	"github.com/elonfeng/hotradar/pkg/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRefresher struct {
	mu      sync.Mutex
	regions []string
	err     error
}

func (s *stubRefresher) Refresh(ctx context.Context, region string) (*snapshot.Snapshot, error) {
	s.mu.Lock()
	s.regions = append(s.regions, region)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return &snapshot.Snapshot{QueryKey: region}, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []string
}

func (r *recordingNotifier) Name() string { return "recording" }

func (r *recordingNotifier) Send(ctx context.Context, n *alert.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n.Channel.ChannelID)
	return nil
}

func newTestStore(t *testing.T) *store.SQLStore {
	t.Helper()
	s, err := store.New("sqlite", filepath.Join(t.TempDir(), "sched.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunOnceRefreshesRegionsAndAlertsOnce(t *testing.T) {
	db := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, db.UpsertChannels(ctx, []store.Channel{
		{ChannelID: "hot", HotScore: 6},
		{ChannelID: "warm", HotScore: 1.2},
	}))

	ref := &stubRefresher{}
	rec := &recordingNotifier{}
	s := New(db, ref, alert.NewManager([]alert.Notifier{rec}), []string{"US", "KR"}, time.Hour, 5)

	s.RunOnce(ctx)
	assert.Equal(t, []string{"US", "KR"}, ref.regions)
	assert.Equal(t, []string{"hot"}, rec.sent)

	ch, err := db.GetChannel(ctx, "hot")
	require.NoError(t, err)
	assert.True(t, ch.Alerted)

	// Already alerted channels are not sent again.
	s.RunOnce(ctx)
	assert.Equal(t, []string{"hot"}, rec.sent)
}

func TestRefreshErrorStillAlerts(t *testing.T) {
	db := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, db.UpsertChannels(ctx, []store.Channel{{ChannelID: "hot", HotScore: 9}}))

	rec := &recordingNotifier{}
	s := New(db, &stubRefresher{err: errors.New("quota")}, alert.NewManager([]alert.Notifier{rec}), nil, 0, 0)

	s.RunOnce(ctx)
	assert.Equal(t, []string{"hot"}, rec.sent)
}

func TestRunStopsOnCancel(t *testing.T) {
	db := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	s := New(db, &stubRefresher{}, alert.NewManager(nil), nil, time.Hour, 0)

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
