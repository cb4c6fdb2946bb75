package store

// schema is written in the subset of SQL shared by SQLite and PostgreSQL.
// Statements run one at a time so the pgx driver can use the extended protocol.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS channels (
    channel_id          TEXT PRIMARY KEY,
    name                TEXT NOT NULL DEFAULT '',
    thumbnail_url       TEXT NOT NULL DEFAULT '',
    subscriber_count    BIGINT NOT NULL DEFAULT 0,
    total_view_count    BIGINT NOT NULL DEFAULT 0,
    video_count         BIGINT NOT NULL DEFAULT 0,
    avg_views_per_video BIGINT NOT NULL DEFAULT 0,
    category            TEXT NOT NULL DEFAULT '',
    region              TEXT NOT NULL DEFAULT '',
    content_type        TEXT NOT NULL DEFAULT '',
    recent_videos       TEXT NOT NULL DEFAULT '[]',
    hot_score           DOUBLE PRECISION NOT NULL DEFAULT 0,
    daily_growth        BIGINT NOT NULL DEFAULT 0,
    estimated_revenue   BIGINT NOT NULL DEFAULT 0,
    first_seen          TIMESTAMP NOT NULL,
    last_updated        TIMESTAMP NOT NULL,
    alerted             BOOLEAN NOT NULL DEFAULT FALSE
)`,
	`CREATE INDEX IF NOT EXISTS idx_channels_hot_score ON channels(hot_score)`,
	`CREATE INDEX IF NOT EXISTS idx_channels_last_updated ON channels(last_updated)`,
	`CREATE INDEX IF NOT EXISTS idx_channels_region ON channels(region)`,
}
