package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI serves the subset of the YouTube Data API the client uses.
type fakeAPI struct {
	mu        sync.Mutex
	exhausted map[string]bool // keys that answer with quotaExceeded
	keys      []string        // key used by each request, in order
	calls     map[string]int  // requests per path
	failPaths map[string]int  // path → status to answer with
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		exhausted: map[string]bool{},
		calls:     map[string]int{},
		failPaths: map[string]int{},
	}
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	key := r.URL.Query().Get("key")
	f.keys = append(f.keys, key)
	f.calls[r.URL.Path]++
	exhausted := f.exhausted[key]
	failStatus := f.failPaths[r.URL.Path]
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if exhausted {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"code":403,"message":"quota","errors":[{"reason":"quotaExceeded","domain":"youtube.quota"}]}}`)
		return
	}
	if failStatus != 0 {
		w.WriteHeader(failStatus)
		fmt.Fprintf(w, `{"error":{"code":%d,"message":"backend error"}}`, failStatus)
		return
	}

	switch r.URL.Path {
	case "/youtube/v3/search":
		writeBody(w, map[string]any{"items": []any{
			map[string]any{"id": map[string]any{"kind": "youtube#video", "videoId": "s1"}},
			map[string]any{"id": map[string]any{"kind": "youtube#video", "videoId": "s2"}},
			map[string]any{"id": map[string]any{"kind": "youtube#channel", "channelId": "cX"}},
		}})
	case "/youtube/v3/videos":
		if r.URL.Query().Get("chart") == "mostPopular" {
			writeBody(w, map[string]any{"items": []any{
				video("l1", "c1", "PT10M", "5000"),
				video("l2", "c2", "PT45S", "100"),
			}})
			return
		}
		var items []any
		for _, id := range queryIDs(r) {
			items = append(items, video(id, "c-"+id, "PT30S", "42"))
		}
		writeBody(w, map[string]any{"items": items})
	case "/youtube/v3/channels":
		var items []any
		for _, id := range queryIDs(r) {
			items = append(items, map[string]any{
				"id":      id,
				"snippet": map[string]any{"title": "Channel " + id, "thumbnails": map[string]any{"default": map[string]any{"url": "https://img/" + id}}},
				"statistics": map[string]any{
					"subscriberCount": "1000",
					"viewCount":       "20000",
					"videoCount":      "10",
				},
				"contentDetails": map[string]any{"relatedPlaylists": map[string]any{"uploads": "UU" + id}},
			})
		}
		writeBody(w, map[string]any{"items": items})
	case "/youtube/v3/playlistItems":
		writeBody(w, map[string]any{"items": []any{
			map[string]any{
				"snippet":        map[string]any{"title": "Upload 1", "publishedAt": "2024-05-01T10:00:00Z"},
				"contentDetails": map[string]any{"videoId": "u1"},
			},
			map[string]any{
				"snippet": map[string]any{"title": "Upload 2", "publishedAt": "2024-04-01T10:00:00Z", "resourceId": map[string]any{"videoId": "u2"}},
			},
		}})
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeAPI) usedKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.keys...)
}

func (f *fakeAPI) callCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func queryIDs(r *http.Request) []string {
	var ids []string
	for _, v := range r.URL.Query()["id"] {
		ids = append(ids, strings.Split(v, ",")...)
	}
	return ids
}

func video(id, channelID, duration, views string) map[string]any {
	return map[string]any{
		"id": id,
		"snippet": map[string]any{
			"channelId":    channelID,
			"channelTitle": "Channel " + channelID,
			"title":        "Video " + id,
			"publishedAt":  "2024-05-01T10:00:00Z",
			"thumbnails": map[string]any{
				"default": map[string]any{"url": "https://img/default/" + id},
				"medium":  map[string]any{"url": "https://img/medium/" + id},
			},
		},
		"contentDetails": map[string]any{"duration": duration},
		"statistics":     map[string]any{"viewCount": views},
	}
}

func writeBody(w http.ResponseWriter, v any) {
	json.NewEncoder(w).Encode(v)
}

func newTestYouTube(t *testing.T, api *fakeAPI, keys ...string) *YouTube {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	yt, err := NewYouTube(context.Background(), NewKeyPool(keys), YouTubeOptions{
		Endpoint:    srv.URL + "/",
		HTTPClient:  srv.Client(),
		CallTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	return yt
}

func TestFetchCandidatesShorts(t *testing.T) {
	api := newFakeAPI()
	yt := newTestYouTube(t, api, "k1")

	videos, err := yt.FetchCandidates(context.Background(), ContentShorts, "KR")
	require.NoError(t, err)
	require.Len(t, videos, 2)

	assert.Equal(t, "s1", videos[0].ID)
	assert.Equal(t, "c-s1", videos[0].ChannelID)
	assert.Equal(t, 30, videos[0].DurationSeconds)
	assert.Equal(t, "PT30S", videos[0].Duration)
	assert.Equal(t, int64(42), videos[0].ViewCount)
	assert.Equal(t, "https://img/medium/s1", videos[0].ThumbnailURL)
	assert.Equal(t, 1, api.callCount("/youtube/v3/search"))
	assert.Equal(t, 1, api.callCount("/youtube/v3/videos"))
}

func TestFetchCandidatesLongKeepsAllDurations(t *testing.T) {
	api := newFakeAPI()
	yt := newTestYouTube(t, api, "k1")

	videos, err := yt.FetchCandidates(context.Background(), ContentLong, "US")
	require.NoError(t, err)
	require.Len(t, videos, 2, "classification happens downstream")
	assert.Equal(t, 600, videos[0].DurationSeconds)
	assert.Equal(t, 45, videos[1].DurationSeconds)
}

func TestYouTubeRotatesExhaustedKey(t *testing.T) {
	api := newFakeAPI()
	api.exhausted["k1"] = true
	yt := newTestYouTube(t, api, "k1", "k2")

	videos, err := yt.FetchCandidates(context.Background(), ContentLong, "US")
	require.NoError(t, err)
	assert.Len(t, videos, 2)
	assert.Equal(t, []string{"k1", "k2"}, api.usedKeys())

	// Sticky: the next request goes straight to k2.
	_, err = yt.FetchCandidates(context.Background(), ContentLong, "US")
	require.NoError(t, err)
	assert.Equal(t, []string{"k1", "k2", "k2"}, api.usedKeys())
}

func TestYouTubeAllKeysExhausted(t *testing.T) {
	api := newFakeAPI()
	api.exhausted["k1"] = true
	api.exhausted["k2"] = true
	yt := newTestYouTube(t, api, "k1", "k2")

	_, err := yt.FetchCandidates(context.Background(), ContentLong, "US")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAllKeysExhausted), "got %v", err)
	assert.Len(t, api.usedKeys(), 2)
}

func TestYouTubeServerErrorIsUpstreamUnavailable(t *testing.T) {
	api := newFakeAPI()
	api.failPaths["/youtube/v3/channels"] = http.StatusInternalServerError
	yt := newTestYouTube(t, api, "k1", "k2")

	_, err := yt.Channels(context.Background(), []string{"c1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.Equal(t, []string{"k1"}, api.usedKeys(), "server errors must not rotate keys")
}

func TestChannelsBatchesByFifty(t *testing.T) {
	api := newFakeAPI()
	yt := newTestYouTube(t, api, "k1")

	ids := make([]string, 120)
	for i := range ids {
		ids[i] = fmt.Sprintf("c%03d", i)
	}
	stats, err := yt.Channels(context.Background(), ids)
	require.NoError(t, err)
	require.Len(t, stats, 120)
	assert.Equal(t, 3, api.callCount("/youtube/v3/channels"))

	first := stats[0]
	assert.Equal(t, "c000", first.ID)
	assert.Equal(t, int64(1000), first.SubscriberCount)
	assert.Equal(t, int64(20000), first.ViewCount)
	assert.Equal(t, int64(10), first.VideoCount)
	assert.Equal(t, "UUc000", first.UploadsPlaylist)
	assert.Equal(t, "https://img/c000", first.ThumbnailURL)
}

func TestRecentUploads(t *testing.T) {
	api := newFakeAPI()
	yt := newTestYouTube(t, api, "k1")

	uploads, err := yt.RecentUploads(context.Background(), "UUc1", 5)
	require.NoError(t, err)
	require.Len(t, uploads, 2)
	assert.Equal(t, "u1", uploads[0].VideoID)
	assert.Equal(t, "u2", uploads[1].VideoID, "falls back to snippet.resourceId")
	assert.Equal(t, 2024, uploads[0].PublishedAt.Year())

	_, err = yt.RecentUploads(context.Background(), "", 5)
	assert.Error(t, err)
}
