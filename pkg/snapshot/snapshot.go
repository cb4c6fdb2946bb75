package snapshot

import (
	"time"

	"github.com/elonfeng/hotradar/internal/store"
	"github.com/elonfeng/hotradar/pkg/source"
)

// DefaultMinFill is the per-category minimum list length.
const DefaultMinFill = 150

// Counts holds list lengths per category.
type Counts struct {
	All    int `json:"all"`
	Long   int `json:"long"`
	Shorts int `json:"shorts"`
}

// Snapshot is a time-boxed discovery result for one query key. It is
// replaced as a whole and never updated in place.
type Snapshot struct {
	QueryKey        string                  `json:"query_key"`
	CapturedAt      time.Time               `json:"captured_at"`
	LongFormVideos  []source.CandidateVideo `json:"long_form_videos"`
	ShortFormVideos []source.CandidateVideo `json:"short_form_videos"`
	AllVideos       []source.CandidateVideo `json:"all_videos"`
	LongChannels    []store.Channel         `json:"long_channels"`
	ShortChannels   []store.Channel         `json:"short_channels"`
	// Genuine counts the entries before padding.
	Genuine Counts `json:"genuine"`
	// Incomplete lists the content types whose run failed. Their lists are empty.
	Incomplete []source.ContentType `json:"incomplete,omitempty"`
}

// IsPartial reports whether any content type failed to build.
func (s *Snapshot) IsPartial() bool {
	return len(s.Incomplete) > 0
}

// Videos returns the list for ct.
func (s *Snapshot) Videos(ct source.ContentType) []source.CandidateVideo {
	if ct == source.ContentShorts {
		return s.ShortFormVideos
	}
	return s.LongFormVideos
}

// Channels returns the HOT channels for ct.
func (s *Snapshot) Channels(ct source.ContentType) []store.Channel {
	if ct == source.ContentShorts {
		return s.ShortChannels
	}
	return s.LongChannels
}

// Counts returns the current (possibly padded) list lengths.
func (s *Snapshot) Counts() Counts {
	return Counts{
		All:    len(s.AllVideos),
		Long:   len(s.LongFormVideos),
		Shorts: len(s.ShortFormVideos),
	}
}

// Padded reports whether any list was filled with repeats.
func (s *Snapshot) Padded() bool {
	return s.Counts() != s.Genuine
}

// Pad fills videos up to min entries by repeating them cyclically. The
// repeats carry Padded=true. An empty list or min <= len(videos) is
// returned unchanged.
func Pad(videos []source.CandidateVideo, min int) []source.CandidateVideo {
	n := len(videos)
	if n == 0 || n >= min {
		return videos
	}
	out := make([]source.CandidateVideo, n, min)
	copy(out, videos)
	for i := n; i < min; i++ {
		v := videos[i%n]
		v.Padded = true
		out = append(out, v)
	}
	return out
}

// fill pads both categories, rebuilds AllVideos and records genuine counts.
func fill(s *Snapshot, min int) {
	s.Genuine = Counts{
		All:    len(s.LongFormVideos) + len(s.ShortFormVideos),
		Long:   len(s.LongFormVideos),
		Shorts: len(s.ShortFormVideos),
	}
	if min > 0 {
		s.LongFormVideos = Pad(s.LongFormVideos, min)
		s.ShortFormVideos = Pad(s.ShortFormVideos, min)
	}
	all := make([]source.CandidateVideo, 0, len(s.LongFormVideos)+len(s.ShortFormVideos))
	all = append(all, s.LongFormVideos...)
	all = append(all, s.ShortFormVideos...)
	s.AllVideos = all
}
