package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/elonfeng/hotradar/internal/config"
	"github.com/elonfeng/hotradar/internal/scheduler"
	"github.com/elonfeng/hotradar/internal/store"
	"github.com/elonfeng/hotradar/pkg/alert"
	"github.com/elonfeng/hotradar/pkg/server"
	"github.com/elonfeng/hotradar/pkg/snapshot"
	"github.com/elonfeng/hotradar/pkg/source"
	"github.com/elonfeng/hotradar/pkg/trend"
)

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

// app is the wired discovery stack shared by every command.
type app struct {
	cfg   *config.Config
	db    *store.SQLStore
	cache *snapshot.Cache
	svc   *trend.Service
}

func (a *app) Close() {
	if a.cache != nil {
		a.cache.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}

func openStore(cfg *config.Config) (*store.SQLStore, error) {
	db, err := store.New(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return db, nil
}

func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	keys := source.NewKeyPool(cfg.YouTube.APIKeys)
	if keys.Len() == 0 {
		return nil, fmt.Errorf("%w: set youtube.api_keys or YOUTUBE_API_KEYS", source.ErrNoKeysConfigured)
	}

	yt, err := source.NewYouTube(ctx, keys, source.YouTubeOptions{
		Endpoint:          cfg.YouTube.Endpoint,
		Language:          cfg.YouTube.Language,
		ShortsQuery:       cfg.YouTube.ShortsQuery,
		PageSize:          cfg.YouTube.PageSize,
		CallTimeout:       cfg.YouTube.ParseCallTimeout(),
		RequestsPerSecond: cfg.YouTube.RequestsPerSecond,
	})
	if err != nil {
		return nil, err
	}

	db, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	cache, err := snapshot.New(snapshot.Options{
		TTL:        cfg.Cache.ParseTTL(),
		PartialTTL: cfg.Cache.ParsePartialTTL(),
		MinFill:    cfg.Cache.MinFill,
		MaxEntries: cfg.Cache.MaxEntries,
		RedisURL:   cfg.Cache.RedisURL,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	var feed source.UploadFeed
	if cfg.YouTube.FeedFallback {
		feed = source.NewChannelFeed(cfg.YouTube.FeedURL)
	}

	engine := trend.NewEngine(yt, yt, feed, db, trend.Options{
		Workers:      cfg.Discovery.Workers,
		RecentVideos: cfg.Discovery.RecentVideos,
		RunTimeout:   cfg.Discovery.ParseRunTimeout(),
		Category:     cfg.Discovery.Category,
		Score: trend.ScoreConfig{
			SubscriberFloor: cfg.Discovery.SubscriberFloor,
			RevenuePerMille: cfg.Discovery.RevenuePerMille,
			RevenueDays:     cfg.Discovery.RevenueDays,
		},
		Filter: source.NewFilter(cfg.Filter.ExcludeKeywords),
	})

	slog.Debug("discovery stack ready",
		slog.Int("api_keys", keys.Len()),
		slog.String("db_driver", cfg.Database.Driver),
		slog.Bool("feed_fallback", feed != nil),
	)

	return &app{
		cfg:   cfg,
		db:    db,
		cache: cache,
		svc:   trend.NewService(engine, cache, cfg.Discovery.Region),
	}, nil
}

func buildAlertManager(cfg *config.Config) *alert.Manager {
	var notifiers []alert.Notifier

	if cfg.Alerts.Slack.Enabled && cfg.Alerts.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewSlack(cfg.Alerts.Slack.WebhookURL))
	}
	if cfg.Alerts.Discord.Enabled && cfg.Alerts.Discord.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewDiscord(cfg.Alerts.Discord.WebhookURL))
	}
	if cfg.Alerts.Webhook.Enabled && cfg.Alerts.Webhook.URL != "" {
		notifiers = append(notifiers, alert.NewWebhook(cfg.Alerts.Webhook.URL, cfg.Alerts.Webhook.Secret))
	}

	return alert.NewManager(notifiers)
}

func runDiscover(ctx context.Context, contentType, region string, jsonOutput bool) error {
	ct, err := source.ParseContentType(contentType)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	resp, err := a.svc.Discover(ctx, ct, region)
	if err != nil {
		if errors.Is(err, source.ErrAllKeysExhausted) {
			return fmt.Errorf("discovery unavailable until quota resets: %w", err)
		}
		return fmt.Errorf("discover: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	fmt.Fprintf(os.Stderr, "%s %s: %d videos (%d genuine), captured %s\n",
		resp.QueryKey, ct, len(resp.Videos), genuineFor(resp, ct), resp.CapturedAt.Format(time.RFC3339))
	if resp.Incomplete {
		fmt.Fprintf(os.Stderr, "warning: %s discovery failed for this snapshot, retried after %s\n", ct, cfg.Cache.ParsePartialTTL())
	}
	return printChannels(resp.Channels, "no HOT channels in this snapshot")
}

func genuineFor(resp *trend.Response, ct source.ContentType) int {
	if ct == source.ContentShorts {
		return resp.Genuine.Shorts
	}
	return resp.Genuine.Long
}

func runChannels(ctx context.Context, jsonOutput bool, minScore float64, limit int, region string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	channels, err := db.ListChannels(ctx, store.ListOpts{
		MinScore: minScore,
		Region:   region,
		Limit:    limit,
	})
	if err != nil {
		return fmt.Errorf("list channels: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(channels)
	}
	return printChannels(channels, "no channels found (try discovering first: hotradar discover)")
}

func printChannels(channels []store.Channel, empty string) error {
	if len(channels) == 0 {
		fmt.Println(empty)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCORE\tSUBS\tAVG VIEWS\tTYPE\tREGION\tCHANNEL\tLAST UPDATED")
	for _, ch := range channels {
		fmt.Fprintf(w, "%.2f\t%d\t%d\t%s\t%s\t%s\t%s\n",
			ch.HotScore, ch.SubscriberCount, ch.AvgViewsPerVideo,
			ch.ContentType, ch.Region, ch.Name,
			ch.LastUpdated.Format(time.RFC3339))
	}
	return w.Flush()
}

func runServe(port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if port == 0 {
		port = cfg.Server.Port
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	return server.New(a.svc, a.db, port).ListenAndServe(ctx)
}

func runDaemon(port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if port == 0 {
		port = cfg.Server.Port
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	sched := scheduler.New(a.db, a.svc, buildAlertManager(cfg),
		cfg.Schedule.Regions,
		cfg.Schedule.ParseRefreshInterval(),
		cfg.Alerts.MinScore,
	)

	// Start scheduler in background.
	go func() {
		if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("scheduler error", slog.Any("error", err))
		}
	}()

	err = server.New(a.svc, a.db, port).ListenAndServe(ctx)
	slog.Info("shutting down")
	return err
}
