package trend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/elonfeng/hotradar/internal/store"
	"github.com/elonfeng/hotradar/pkg/snapshot"
	"github.com/elonfeng/hotradar/pkg/source"
	"golang.org/x/sync/errgroup"
)

// Runner runs one discovery pass. *Engine implements it.
type Runner interface {
	Run(ctx context.Context, ct source.ContentType, region string) (*Result, error)
}

// Response is what callers of Discover receive.
type Response struct {
	QueryKey    string                  `json:"query_key"`
	ContentType source.ContentType      `json:"content_type"`
	Videos      []source.CandidateVideo `json:"videos"`
	Counts      snapshot.Counts         `json:"counts"`
	Genuine     snapshot.Counts         `json:"genuine"`
	Padded      bool                    `json:"padded"`
	Incomplete  bool                    `json:"incomplete"`
	Channels    []store.Channel         `json:"channels"`
	CapturedAt  time.Time               `json:"captured_at"`
	Cached      bool                    `json:"cached"`
}

// Service serves discovery results from the snapshot cache, running the
// engine for both content types on a miss.
type Service struct {
	runner        Runner
	cache         *snapshot.Cache
	defaultRegion string
}

// NewService creates a discovery service.
func NewService(runner Runner, cache *snapshot.Cache, defaultRegion string) *Service {
	if defaultRegion == "" {
		defaultRegion = "US"
	}
	return &Service{runner: runner, cache: cache, defaultRegion: snapshot.Key(defaultRegion)}
}

// DefaultRegion returns the region used when callers pass none.
func (s *Service) DefaultRegion() string {
	return s.defaultRegion
}

// Discover returns the ct list for region, from cache while fresh. If only the
// other content type failed, ct is still served; if ct itself failed the
// response is empty and Incomplete is set.
func (s *Service) Discover(ctx context.Context, ct source.ContentType, region string) (*Response, error) {
	key := s.key(region)
	snap, cached, err := s.cache.GetOrRefresh(ctx, key, func(ctx context.Context) (*snapshot.Snapshot, error) {
		return s.build(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	return newResponse(snap, ct, cached), nil
}

// Refresh rebuilds the snapshot for region regardless of its age.
func (s *Service) Refresh(ctx context.Context, region string) (*snapshot.Snapshot, error) {
	key := s.key(region)
	return s.cache.Refresh(ctx, key, func(ctx context.Context) (*snapshot.Snapshot, error) {
		return s.build(ctx, key)
	})
}

func (s *Service) key(region string) string {
	key := snapshot.Key(region)
	if key == "" {
		key = s.defaultRegion
	}
	return key
}

// build runs both content types as independent runs. A failed type leaves
// its lists empty and marks the snapshot partial; the build fails only when
// both runs fail.
func (s *Service) build(ctx context.Context, region string) (*snapshot.Snapshot, error) {
	types := []source.ContentType{source.ContentLong, source.ContentShorts}
	results := make([]*Result, len(types))
	errs := make([]error, len(types))

	var g errgroup.Group
	for i, ct := range types {
		g.Go(func() error {
			res, err := s.runner.Run(ctx, ct, region)
			if err != nil {
				errs[i] = fmt.Errorf("%s discovery: %w", ct, err)
				return nil
			}
			results[i] = res
			return nil
		})
	}
	g.Wait()

	if errs[0] != nil && errs[1] != nil {
		return nil, errors.Join(errs...)
	}

	snap := &snapshot.Snapshot{}
	for i, ct := range types {
		if errs[i] != nil {
			slog.Warn("discovery: content type failed, snapshot is partial",
				slog.String("region", region),
				slog.String("content_type", string(ct)),
				slog.Any("error", errs[i]),
			)
			snap.Incomplete = append(snap.Incomplete, ct)
			continue
		}
		if ct == source.ContentShorts {
			snap.ShortFormVideos, snap.ShortChannels = results[i].Videos, results[i].Channels
		} else {
			snap.LongFormVideos, snap.LongChannels = results[i].Videos, results[i].Channels
		}
	}
	return snap, nil
}

func newResponse(snap *snapshot.Snapshot, ct source.ContentType, cached bool) *Response {
	videos := snap.Videos(ct)
	if videos == nil {
		videos = []source.CandidateVideo{}
	}
	channels := snap.Channels(ct)
	if channels == nil {
		channels = []store.Channel{}
	}
	return &Response{
		QueryKey:    snap.QueryKey,
		ContentType: ct,
		Videos:      videos,
		Counts:      snap.Counts(),
		Genuine:     snap.Genuine,
		Padded:      snap.Padded(),
		Incomplete:  slices.Contains(snap.Incomplete, ct),
		Channels:    channels,
		CapturedAt:  snap.CapturedAt,
		Cached:      cached,
	}
}
