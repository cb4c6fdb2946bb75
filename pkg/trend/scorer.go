package trend

import (
	"math"

	"github.com/elonfeng/hotradar/pkg/source"
)

// HotThreshold is the minimum hot score for a channel to be discovered.
const HotThreshold = 1.0

// ScoreConfig holds the tunable constants of scoring and estimates.
type ScoreConfig struct {
	// SubscriberFloor keeps tiny or hidden-subscriber channels from dividing by ~0.
	SubscriberFloor int64
	// RevenuePerMille is the revenue per 1000 views.
	RevenuePerMille float64
	// RevenueDays amortizes revenue into a per-day estimate.
	RevenueDays int
}

// DefaultScoreConfig returns the constants used when none are configured.
func DefaultScoreConfig() ScoreConfig {
	return ScoreConfig{
		SubscriberFloor: 1000,
		RevenuePerMille: 200,
		RevenueDays:     30,
	}
}

func (c ScoreConfig) withDefaults() ScoreConfig {
	d := DefaultScoreConfig()
	if c.SubscriberFloor <= 0 {
		c.SubscriberFloor = d.SubscriberFloor
	}
	if c.RevenuePerMille <= 0 {
		c.RevenuePerMille = d.RevenuePerMille
	}
	if c.RevenueDays <= 0 {
		c.RevenueDays = d.RevenueDays
	}
	return c
}

// HotScore measures how far an average upload outreaches the subscriber base:
//
//	hot = (totalViews / max(1, videoCount)) / max(subscribers, floor)
//
// A score of 1.0 means an average video is watched as many times as the
// channel has subscribers. Rounded to two decimals.
func HotScore(st source.ChannelStats, floor int64) float64 {
	avg := AvgViewsPerVideo(st.ViewCount, st.VideoCount)
	if avg <= 0 {
		return 0
	}
	subs := max(st.SubscriberCount, floor, 1)
	return math.Round(float64(avg)/float64(subs)*100) / 100
}

// AvgViewsPerVideo returns floor(views / max(1, videos)).
func AvgViewsPerVideo(views, videos int64) int64 {
	return views / max(videos, 1)
}

// DailyGrowth estimates daily views as a year's average.
func DailyGrowth(views int64) int64 {
	return views / 365
}

// EstimatedRevenue returns floor(views / 1000 * perMille / days).
func EstimatedRevenue(views int64, perMille float64, days int) int64 {
	if days <= 0 {
		days = 30
	}
	return int64(math.Floor(float64(views) / 1000 * perMille / float64(days)))
}
