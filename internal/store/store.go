package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a channel does not exist.
var ErrNotFound = errors.New("channel not found")

// RecentVideo is one of a channel's newest uploads. It is owned by its
// channel and replaced wholesale on every upsert.
type RecentVideo struct {
	VideoID      string    `json:"video_id"`
	Title        string    `json:"title"`
	ThumbnailURL string    `json:"thumbnail_url"`
	PublishedAt  time.Time `json:"published_at"`
}

// Channel is a discovered HOT channel, identified by ChannelID.
type Channel struct {
	ChannelID        string        `db:"channel_id" json:"channel_id"`
	Name             string        `db:"name" json:"name"`
	ThumbnailURL     string        `db:"thumbnail_url" json:"thumbnail_url"`
	SubscriberCount  int64         `db:"subscriber_count" json:"subscriber_count"`
	TotalViewCount   int64         `db:"total_view_count" json:"total_view_count"`
	VideoCount       int64         `db:"video_count" json:"video_count"`
	AvgViewsPerVideo int64         `db:"avg_views_per_video" json:"avg_views_per_video"`
	Category         string        `db:"category" json:"category"`
	Region           string        `db:"region" json:"region"`
	ContentType      string        `db:"content_type" json:"content_type"`
	RecentVideos     []RecentVideo `db:"-" json:"recent_videos"`
	RecentVideosJSON string        `db:"recent_videos" json:"-"`
	HotScore         float64       `db:"hot_score" json:"hot_score"`
	DailyGrowth      int64         `db:"daily_growth" json:"daily_growth_estimate"`
	EstimatedRevenue int64         `db:"estimated_revenue" json:"estimated_revenue_estimate"`
	FirstSeen        time.Time     `db:"first_seen" json:"first_seen,omitzero"`
	LastUpdated      time.Time     `db:"last_updated" json:"last_updated"`
	Alerted          bool          `db:"alerted" json:"alerted"`
}

// ListOpts controls channel listing.
type ListOpts struct {
	MinScore    float64
	Region      string
	ContentType string
	Unalerted   bool
	Limit       int
}

// Store is the persistence interface.
type Store interface {
	UpsertChannel(ctx context.Context, ch *Channel) error
	UpsertChannels(ctx context.Context, chs []Channel) error
	GetChannel(ctx context.Context, channelID string) (*Channel, error)
	ListChannels(ctx context.Context, opts ListOpts) ([]Channel, error)
	CountChannels(ctx context.Context) (int, error)
	MarkAlerted(ctx context.Context, channelID string) error

	Close() error
}

// SQLStore implements Store on SQLite or PostgreSQL.
type SQLStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// New opens the database for driver ("sqlite" or "postgres") and runs migrations.
func New(driver, dsn string) (*SQLStore, error) {
	driverName, dsn, err := resolveDriver(driver, dsn)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s %s: %w", driver, dsn, err)
	}
	if driverName == "sqlite" {
		// SQLite serializes writers; one connection avoids SQLITE_BUSY under concurrent upserts.
		db.SetMaxOpenConns(1)
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	return &SQLStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func resolveDriver(driver, dsn string) (string, string, error) {
	switch strings.ToLower(driver) {
	case "", "sqlite", "sqlite3":
		if dsn == "" {
			dsn = "./hotradar.db"
		}
		if !strings.Contains(dsn, "?") {
			dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		}
		return "sqlite", dsn, nil
	case "postgres", "postgresql", "pgx":
		if dsn == "" {
			return "", "", fmt.Errorf("postgres driver requires a dsn")
		}
		return "pgx", dsn, nil
	}
	return "", "", fmt.Errorf("unsupported database driver %q", driver)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// UpsertChannel inserts ch or overwrites every field of the existing row except
// its identity and bookkeeping (first_seen, alerted). RecentVideos is replaced, never merged.
// ch itself is not modified.
func (s *SQLStore) UpsertChannel(ctx context.Context, ch *Channel) error {
	if ch.ChannelID == "" {
		return fmt.Errorf("upsert channel: empty channel id")
	}

	recent := ch.RecentVideos
	if recent == nil {
		recent = []RecentVideo{}
	}
	recentJSON, err := json.Marshal(recent)
	if err != nil {
		return fmt.Errorf("marshal recent videos %s: %w", ch.ChannelID, err)
	}

	now := s.now()
	firstSeen, lastUpdated := ch.FirstSeen, ch.LastUpdated
	if lastUpdated.IsZero() {
		lastUpdated = now
	}
	if firstSeen.IsZero() {
		firstSeen = now
	}

	_, err = s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO channels (channel_id, name, thumbnail_url, subscriber_count, total_view_count,
			video_count, avg_views_per_video, category, region, content_type, recent_videos,
			hot_score, daily_growth, estimated_revenue, first_seen, last_updated, alerted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(channel_id) DO UPDATE SET
			name = excluded.name,
			thumbnail_url = excluded.thumbnail_url,
			subscriber_count = excluded.subscriber_count,
			total_view_count = excluded.total_view_count,
			video_count = excluded.video_count,
			avg_views_per_video = excluded.avg_views_per_video,
			category = excluded.category,
			region = excluded.region,
			content_type = excluded.content_type,
			recent_videos = excluded.recent_videos,
			hot_score = excluded.hot_score,
			daily_growth = excluded.daily_growth,
			estimated_revenue = excluded.estimated_revenue,
			last_updated = excluded.last_updated
	`), ch.ChannelID, ch.Name, ch.ThumbnailURL, ch.SubscriberCount, ch.TotalViewCount,
		ch.VideoCount, ch.AvgViewsPerVideo, ch.Category, ch.Region, ch.ContentType, string(recentJSON),
		ch.HotScore, ch.DailyGrowth, ch.EstimatedRevenue, firstSeen, lastUpdated, false)
	if err != nil {
		return fmt.Errorf("upsert channel %s: %w", ch.ChannelID, err)
	}
	return nil
}

func (s *SQLStore) UpsertChannels(ctx context.Context, chs []Channel) error {
	for i := range chs {
		if err := s.UpsertChannel(ctx, &chs[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStore) GetChannel(ctx context.Context, channelID string) (*Channel, error) {
	var ch Channel
	err := s.db.GetContext(ctx, &ch, s.db.Rebind("SELECT * FROM channels WHERE channel_id = ?"), channelID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get channel %s: %w", channelID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get channel %s: %w", channelID, err)
	}
	decodeRecent(&ch)
	return &ch, nil
}

func (s *SQLStore) ListChannels(ctx context.Context, opts ListOpts) ([]Channel, error) {
	query := "SELECT * FROM channels WHERE 1=1"
	var args []any

	if opts.MinScore > 0 {
		query += " AND hot_score >= ?"
		args = append(args, opts.MinScore)
	}
	if opts.Region != "" {
		query += " AND region = ?"
		args = append(args, strings.ToUpper(opts.Region))
	}
	if opts.ContentType != "" {
		query += " AND content_type = ?"
		args = append(args, opts.ContentType)
	}
	if opts.Unalerted {
		query += " AND alerted = ?"
		args = append(args, false)
	}

	query += " ORDER BY hot_score DESC, channel_id"

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " LIMIT ?"
	args = append(args, limit)

	var channels []Channel
	if err := s.db.SelectContext(ctx, &channels, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}

	for i := range channels {
		decodeRecent(&channels[i])
	}
	return channels, nil
}

func (s *SQLStore) CountChannels(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM channels"); err != nil {
		return 0, fmt.Errorf("count channels: %w", err)
	}
	return n, nil
}

func (s *SQLStore) MarkAlerted(ctx context.Context, channelID string) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind("UPDATE channels SET alerted = ? WHERE channel_id = ?"), true, channelID)
	if err != nil {
		return fmt.Errorf("mark alerted %s: %w", channelID, err)
	}
	return nil
}

func decodeRecent(ch *Channel) {
	ch.RecentVideos = nil
	if err := json.Unmarshal([]byte(ch.RecentVideosJSON), &ch.RecentVideos); err != nil || ch.RecentVideos == nil {
		ch.RecentVideos = []RecentVideo{}
	}
}
