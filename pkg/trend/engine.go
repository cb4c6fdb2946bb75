package trend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/elonfeng/hotradar/internal/metrics"
	"github.com/elonfeng/hotradar/internal/store"
	"github.com/elonfeng/hotradar/pkg/source"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrRunTimeout is returned when a discovery run exceeds its overall budget.
var ErrRunTimeout = errors.New("discovery run timed out")

// Options configures the discovery engine.
type Options struct {
	Workers      int
	RecentVideos int
	RunTimeout   time.Duration
	Category     string
	Score        ScoreConfig
	Filter       *source.Filter
}

// Engine turns candidate videos into scored, enriched and persisted HOT channels.
type Engine struct {
	fetcher source.CandidateFetcher
	lookup  source.ChannelLookup
	feed    source.UploadFeed // optional, nil = no feed fallback
	sink    store.Store       // optional, nil = results are not persisted
	opts    Options
	now     func() time.Time
}

// NewEngine creates a new discovery engine.
func NewEngine(fetcher source.CandidateFetcher, lookup source.ChannelLookup, feed source.UploadFeed, sink store.Store, opts Options) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = 5
	}
	if opts.RecentVideos <= 0 {
		opts.RecentVideos = 5
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = 60 * time.Second
	}
	opts.Score = opts.Score.withDefaults()
	return &Engine{
		fetcher: fetcher,
		lookup:  lookup,
		feed:    feed,
		sink:    sink,
		opts:    opts,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Result is the outcome of one discovery run.
type Result struct {
	RunID              string                  `json:"run_id"`
	ContentType        source.ContentType      `json:"content_type"`
	Region             string                  `json:"region"`
	Candidates         int                     `json:"candidates"`
	Videos             []source.CandidateVideo `json:"videos"`
	ChannelIDs         []string                `json:"channel_ids"`
	Channels           []store.Channel         `json:"channels"`
	IncompleteBatches  int                     `json:"incomplete_batches"`
	EnrichmentFailures int                     `json:"enrichment_failures"`
}

// Run executes fetch → classify → aggregate → score → enrich → persist.
// A failed statistics batch drops only its channels; the run fails only if
// every batch failed. A failed enrichment keeps the channel with no recent videos.
func (e *Engine) Run(ctx context.Context, ct source.ContentType, region string) (*Result, error) {
	start := time.Now()
	defer func() {
		metrics.RunDuration.WithLabelValues(string(ct)).Observe(time.Since(start).Seconds())
	}()

	runCtx, cancel := context.WithTimeout(ctx, e.opts.RunTimeout)
	defer cancel()

	res := &Result{
		RunID:       uuid.NewString(),
		ContentType: ct,
		Region:      strings.ToUpper(region),
	}
	log := slog.With(slog.String("run_id", res.RunID), slog.String("content_type", string(ct)), slog.String("region", res.Region))

	candidates, err := e.fetcher.FetchCandidates(runCtx, ct, res.Region)
	if err != nil {
		return nil, e.runError(ctx, runCtx, fmt.Errorf("fetch candidates: %w", err))
	}
	res.Candidates = len(candidates)

	res.Videos = FilterCandidates(candidates, ct, e.opts.Filter)
	res.ChannelIDs = UniqueChannelIDs(res.Videos)
	log.Info("discovery: candidates classified",
		slog.Int("candidates", res.Candidates),
		slog.Int("matched", len(res.Videos)),
		slog.Int("channels", len(res.ChannelIDs)),
	)
	if len(res.ChannelIDs) == 0 {
		return res, nil
	}

	stats, failed, err := e.hydrate(runCtx, log, res.ChannelIDs)
	res.IncompleteBatches = failed
	if err != nil {
		return nil, e.runError(ctx, runCtx, err)
	}

	var hot []source.ChannelStats
	for _, st := range stats {
		if HotScore(st, e.opts.Score.SubscriberFloor) >= HotThreshold {
			hot = append(hot, st)
		}
	}

	res.Channels, res.EnrichmentFailures = e.enrichAll(runCtx, log, hot, ct, res.Region)
	if err := runCtx.Err(); err != nil {
		return nil, e.runError(ctx, runCtx, err)
	}

	sort.SliceStable(res.Channels, func(i, j int) bool {
		return res.Channels[i].HotScore > res.Channels[j].HotScore
	})

	if e.sink != nil && len(res.Channels) > 0 {
		if err := e.sink.UpsertChannels(ctx, res.Channels); err != nil {
			return nil, fmt.Errorf("persist channels: %w", err)
		}
	}

	metrics.ChannelsDiscovered.WithLabelValues(string(ct)).Add(float64(len(res.Channels)))
	log.Info("discovery: run complete",
		slog.Int("hot_channels", len(res.Channels)),
		slog.Int("incomplete_batches", res.IncompleteBatches),
		slog.Int("enrichment_failures", res.EnrichmentFailures),
		slog.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

// runError maps an expired run budget to ErrRunTimeout.
func (e *Engine) runError(parent, runCtx context.Context, err error) error {
	if parent.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s: %w", ErrRunTimeout, e.opts.RunTimeout, err)
	}
	return err
}

// hydrate fetches channel statistics in batches of source.MaxIDsPerRequest on
// a bounded pool. Results keep batch order. It fails only if every batch failed.
func (e *Engine) hydrate(ctx context.Context, log *slog.Logger, ids []string) ([]source.ChannelStats, int, error) {
	batches := source.Batch(ids, source.MaxIDsPerRequest)
	results := make([][]source.ChannelStats, len(batches))
	errs := make([]error, len(batches))

	var g errgroup.Group
	g.SetLimit(e.opts.Workers)
	for i, batch := range batches {
		g.Go(func() error {
			stats, err := e.lookup.Channels(ctx, batch)
			if err != nil {
				errs[i] = fmt.Errorf("channel batch %d: %w", i, err)
				return nil
			}
			results[i] = stats
			return nil
		})
	}
	g.Wait()

	failed := 0
	var stats []source.ChannelStats
	for i := range batches {
		if errs[i] != nil {
			failed++
			metrics.IncompleteBatches.Inc()
			log.Warn("discovery: channel batch failed",
				slog.Int("batch", i),
				slog.Int("size", len(batches[i])),
				slog.Any("error", errs[i]),
			)
			continue
		}
		stats = append(stats, results[i]...)
	}

	if failed == len(batches) {
		return nil, failed, fmt.Errorf("hydrate channels: %w", errors.Join(errs...))
	}
	return stats, failed, nil
}

// enrichAll builds channels and attaches recent uploads on a bounded pool.
func (e *Engine) enrichAll(ctx context.Context, log *slog.Logger, hot []source.ChannelStats, ct source.ContentType, region string) ([]store.Channel, int) {
	channels := make([]store.Channel, len(hot))
	now := e.now()

	var (
		mu       sync.Mutex
		failures int
		g        errgroup.Group
	)
	g.SetLimit(e.opts.Workers)
	for i, st := range hot {
		channels[i] = e.buildChannel(st, ct, region, now)
		g.Go(func() error {
			recent, err := e.recentVideos(ctx, st)
			if err != nil {
				metrics.EnrichmentFailures.Inc()
				log.Warn("discovery: recent videos unavailable",
					slog.String("channel_id", st.ID),
					slog.Any("error", err),
				)
				mu.Lock()
				failures++
				mu.Unlock()
				recent = []store.RecentVideo{}
			}
			channels[i].RecentVideos = recent
			return nil
		})
	}
	g.Wait()

	return channels, failures
}

func (e *Engine) buildChannel(st source.ChannelStats, ct source.ContentType, region string, now time.Time) store.Channel {
	sc := e.opts.Score
	return store.Channel{
		ChannelID:        st.ID,
		Name:             st.Title,
		ThumbnailURL:     st.ThumbnailURL,
		SubscriberCount:  st.SubscriberCount,
		TotalViewCount:   st.ViewCount,
		VideoCount:       st.VideoCount,
		AvgViewsPerVideo: AvgViewsPerVideo(st.ViewCount, st.VideoCount),
		Category:         e.opts.Category,
		Region:           region,
		ContentType:      string(ct),
		RecentVideos:     []store.RecentVideo{},
		HotScore:         HotScore(st, sc.SubscriberFloor),
		DailyGrowth:      DailyGrowth(st.ViewCount),
		EstimatedRevenue: EstimatedRevenue(st.ViewCount, sc.RevenuePerMille, sc.RevenueDays),
		LastUpdated:      now,
	}
}

// recentVideos tries the uploads playlist, then the channel feed.
func (e *Engine) recentVideos(ctx context.Context, st source.ChannelStats) ([]store.RecentVideo, error) {
	var apiErr error
	if st.UploadsPlaylist != "" {
		uploads, err := e.lookup.RecentUploads(ctx, st.UploadsPlaylist, e.opts.RecentVideos)
		if err == nil {
			return toRecentVideos(uploads), nil
		}
		apiErr = err
	} else {
		apiErr = fmt.Errorf("channel %s has no uploads playlist", st.ID)
	}

	if e.feed == nil {
		return nil, apiErr
	}
	uploads, err := e.feed.RecentUploads(ctx, st.ID, e.opts.RecentVideos)
	if err != nil {
		return nil, errors.Join(apiErr, err)
	}
	slog.Debug("discovery: recent videos served by channel feed", slog.String("channel_id", st.ID), slog.Any("api_error", apiErr))
	return toRecentVideos(uploads), nil
}

func toRecentVideos(uploads []source.Upload) []store.RecentVideo {
	recent := make([]store.RecentVideo, 0, len(uploads))
	for _, u := range uploads {
		recent = append(recent, store.RecentVideo{
			VideoID:      u.VideoID,
			Title:        u.Title,
			ThumbnailURL: u.ThumbnailURL,
			PublishedAt:  u.PublishedAt,
		})
	}
	return recent
}

// FilterCandidates keeps candidates whose duration matches ct and whose
// title passes the keyword filter.
func FilterCandidates(candidates []source.CandidateVideo, ct source.ContentType, filter *source.Filter) []source.CandidateVideo {
	var matched []source.CandidateVideo
	for _, c := range candidates {
		if !ct.Matches(c.DurationSeconds) {
			continue
		}
		if !filter.Allows(c.Title) {
			continue
		}
		matched = append(matched, c)
	}
	return matched
}

// UniqueChannelIDs returns distinct channel ids in order of first appearance.
func UniqueChannelIDs(videos []source.CandidateVideo) []string {
	seen := make(map[string]bool, len(videos))
	var ids []string
	for _, v := range videos {
		if v.ChannelID == "" || seen[v.ChannelID] {
			continue
		}
		seen[v.ChannelID] = true
		ids = append(ids, v.ChannelID)
	}
	return ids
}
