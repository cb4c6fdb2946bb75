package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/elonfeng/hotradar/internal/store"
	"github.com/elonfeng/hotradar/pkg/alert"
	"github.com/elonfeng/hotradar/pkg/snapshot"
	"github.com/elonfeng/hotradar/pkg/trend"
)

// Refresher rebuilds the snapshot for a region. *trend.Service implements it.
type Refresher interface {
	Refresh(ctx context.Context, region string) (*snapshot.Snapshot, error)
}

var _ Refresher = (*trend.Service)(nil)

// Scheduler keeps region snapshots warm and alerts on new HOT channels.
type Scheduler struct {
	store      store.Store
	refresher  Refresher
	alertMgr   *alert.Manager
	regions    []string
	refreshInt time.Duration
	minScore   float64
}

// New creates a new scheduler.
func New(
	s store.Store,
	refresher Refresher,
	alertMgr *alert.Manager,
	regions []string,
	refreshInt time.Duration,
	minScore float64,
) *Scheduler {
	if refreshInt == 0 {
		refreshInt = 55 * time.Minute
	}
	if len(regions) == 0 {
		regions = []string{"US"}
	}
	if minScore == 0 {
		minScore = trend.HotThreshold
	}
	return &Scheduler{
		store:      s,
		refresher:  refresher,
		alertMgr:   alertMgr,
		regions:    regions,
		refreshInt: refreshInt,
		minScore:   minScore,
	}
}

// Run starts the scheduler loop. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.refreshInt)
	defer ticker.Stop()

	// Run immediately on start.
	slog.Info("scheduler: initial refresh", slog.Any("regions", s.regions))
	s.refreshAndAlert(ctx)

	slog.Info("scheduler: running", slog.Duration("refresh_every", s.refreshInt))

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler: stopped")
			return ctx.Err()
		case <-ticker.C:
			s.refreshAndAlert(ctx)
		}
	}
}

// RunOnce refreshes every region and sends alerts once.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.refreshAndAlert(ctx)
}

func (s *Scheduler) refreshAndAlert(ctx context.Context) {
	for _, region := range s.regions {
		snap, err := s.refresher.Refresh(ctx, region)
		if err != nil {
			slog.Error("scheduler: refresh failed", slog.String("region", region), slog.Any("error", err))
			continue
		}
		slog.Info("scheduler: refreshed",
			slog.String("region", snap.QueryKey),
			slog.Int("long", snap.Genuine.Long),
			slog.Int("shorts", snap.Genuine.Shorts),
			slog.Int("hot_channels", len(snap.LongChannels)+len(snap.ShortChannels)),
			slog.Any("incomplete", snap.Incomplete),
		)
	}
	s.alert(ctx)
}

func (s *Scheduler) alert(ctx context.Context) {
	if s.alertMgr == nil || !s.alertMgr.HasNotifiers() {
		return
	}

	channels, err := s.store.ListChannels(ctx, store.ListOpts{
		MinScore:  s.minScore,
		Unalerted: true,
		Limit:     100,
	})
	if err != nil {
		slog.Error("scheduler: list unalerted channels", slog.Any("error", err))
		return
	}

	for _, ch := range channels {
		if err := s.alertMgr.Broadcast(ctx, alert.NewNotification(ch)); err != nil {
			slog.Warn("scheduler: alert failed", slog.String("channel_id", ch.ChannelID), slog.Any("error", err))
			continue
		}
		if err := s.store.MarkAlerted(ctx, ch.ChannelID); err != nil {
			slog.Warn("scheduler: mark alerted", slog.String("channel_id", ch.ChannelID), slog.Any("error", err))
			continue
		}
		slog.Info("scheduler: alerted", slog.String("channel", ch.Name), slog.Float64("score", ch.HotScore))
	}
}
