package updater

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	assert_ "github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/alanbriolat/loop-client"
	"github.com/alanbriolat/loop-client/internal/host"
)

const latestLinux = `version: 1.4.0
files:
  - url: loop-client-1.4.0.AppImage
    sha512: abc
    size: 1024
path: loop-client-1.4.0.AppImage
sha512: abc
releaseDate: '2024-03-01T10:00:00.000Z'
`

type feed struct {
	server   *httptest.Server
	requests atomic.Int32
	body     atomic.Value
	status   atomic.Int32
}

func newFeed(t *testing.T, body string) *feed {
	f := &feed{}
	f.body.Store(body)
	f.status.Store(http.StatusOK)
	mux := http.NewServeMux()
	mux.HandleFunc("/latest-linux.yml", func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		w.WriteHeader(int(f.status.Load()))
		_, _ = w.Write([]byte(f.body.Load().(string)))
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func newClient(t *testing.T, config Config) *Client {
	config.Platform = loop_client.PlatformLinux
	config.Logger = zaptest.NewLogger(t)
	if config.CurrentVersion == "" {
		config.CurrentVersion = "1.3.2"
	}
	client, err := New(config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestMetadataFile(t *testing.T) {
	assert := assert_.New(t)
	assert.Equal("latest.yml", MetadataFile(loop_client.PlatformWindows))
	assert.Equal("latest-mac.yml", MetadataFile(loop_client.PlatformDarwin))
	assert.Equal("latest-linux.yml", MetadataFile(loop_client.PlatformLinux))
}

func TestClient_CheckForUpdates(t *testing.T) {
	assert := assert_.New(t)

	t.Run("newer version", func(t *testing.T) {
		f := newFeed(t, latestLinux)
		client := newClient(t, Config{FeedURL: f.server.URL + "/"})
		info, err := client.CheckForUpdates(context.Background())
		require.NoError(t, err)
		require.NotNil(t, info)
		assert.Equal("1.4.0", info.Version)
		assert.Equal("loop-client-1.4.0.AppImage", info.Path)
		assert.Equal("2024-03-01T10:00:00.000Z", info.ReleaseDate)
	})

	t.Run("current version", func(t *testing.T) {
		f := newFeed(t, latestLinux)
		client := newClient(t, Config{FeedURL: f.server.URL, CurrentVersion: "v1.4.0"})
		info, err := client.CheckForUpdates(context.Background())
		assert.NoError(err)
		assert.Nil(info)
	})

	t.Run("newer than feed", func(t *testing.T) {
		f := newFeed(t, latestLinux)
		client := newClient(t, Config{FeedURL: f.server.URL, CurrentVersion: "1.10.0"})
		info, err := client.CheckForUpdates(context.Background())
		assert.NoError(err)
		assert.Nil(info)
	})

	t.Run("missing metadata", func(t *testing.T) {
		f := newFeed(t, "")
		f.status.Store(http.StatusNotFound)
		client := newClient(t, Config{FeedURL: f.server.URL})
		_, err := client.CheckForUpdates(context.Background())
		assert.ErrorIs(err, host.ErrFeedUnreachable)
	})

	t.Run("invalid metadata", func(t *testing.T) {
		for _, body := range []string{"files: [", "path: x.exe\n", "version: banana\n"} {
			f := newFeed(t, body)
			client := newClient(t, Config{FeedURL: f.server.URL})
			_, err := client.CheckForUpdates(context.Background())
			assert.ErrorIs(err, host.ErrNoUpdateMetadata, "body %q", body)
		}
	})

	t.Run("network failure", func(t *testing.T) {
		f := newFeed(t, latestLinux)
		f.server.Close()
		client := newClient(t, Config{FeedURL: f.server.URL})
		_, err := client.CheckForUpdates(context.Background())
		assert.Error(err)
		assert.NotErrorIs(err, host.ErrFeedUnreachable)
	})
}

func TestClient_CheckForUpdatesAndNotify(t *testing.T) {
	assert := assert_.New(t)
	f := newFeed(t, latestLinux)
	var notified []host.UpdateInfo
	client := newClient(t, Config{
		FeedURL: f.server.URL,
		Notify:  func(info host.UpdateInfo) { notified = append(notified, info) },
	})
	assert.NoError(client.CheckForUpdatesAndNotify(context.Background()))
	if assert.Len(notified, 1) {
		assert.Equal("1.4.0", notified[0].Version)
	}

	f.status.Store(http.StatusBadGateway)
	assert.ErrorIs(client.CheckForUpdatesAndNotify(context.Background()), host.ErrFeedUnreachable)
	assert.Len(notified, 1)
}

func TestClient_Cache(t *testing.T) {
	assert := assert_.New(t)
	f := newFeed(t, latestLinux)
	cachePath := filepath.Join(t.TempDir(), "updates.db")
	now := time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	client := newClient(t, Config{FeedURL: f.server.URL, CachePath: cachePath, MinInterval: time.Hour, Now: clock})
	assert.NoError(client.CheckForUpdatesAndNotify(context.Background()))
	assert.Equal(int32(1), f.requests.Load())
	require.NoError(t, client.Close())

	cache, err := OpenCache(cachePath)
	require.NoError(t, err)
	check, ok, err := cache.LastCheck()
	assert.NoError(err)
	assert.True(ok)
	assert.Equal("1.4.0", check.LatestVersion)
	assert.True(check.CheckedAt.Equal(now))
	require.NoError(t, cache.Close())

	// A new run within the interval skips the startup check, but not an explicit one
	client = newClient(t, Config{FeedURL: f.server.URL, CachePath: cachePath, MinInterval: time.Hour, Now: clock})
	assert.NoError(client.CheckForUpdatesAndNotify(context.Background()))
	assert.Equal(int32(1), f.requests.Load())
	_, err = client.CheckForUpdates(context.Background())
	assert.NoError(err)
	assert.Equal(int32(2), f.requests.Load())

	now = now.Add(2 * time.Hour)
	assert.NoError(client.CheckForUpdatesAndNotify(context.Background()))
	assert.Equal(int32(3), f.requests.Load())
}

func TestNew_RequiresFeed(t *testing.T) {
	_, err := New(Config{})
	assert_.Error(t, err)
}
