package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	assert_ "github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanbriolat/loop-client"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	assert := assert_.New(t)
	config, err := Load("")
	require.NoError(t, err)
	assert.Equal(loop_client.DefaultClientDir, config.Downloads.ClientDir)
	assert.Equal(loop_client.DefaultFilePrefix, config.Downloads.FilePrefix)
	assert.False(config.Downloads.AvoidDiskCollisions)
	assert.Equal(3, config.Downloads.Retries)
	assert.Equal(5, config.Downloads.Resumes)
	assert.True(config.Update.CheckOnStartup)
	assert.Equal(30*time.Second, config.Update.GetTimeout())
	assert.False(config.Lifecycle.StayResident)

	opts := config.Window.Options()
	assert.Equal(1024, opts.Width)
	assert.Equal(650, opts.Height)
	assert.Equal(960, opts.MinWidth)
	assert.True(opts.Frameless)
	assert.Equal("info", config.Logging.Level)
}

func TestLoad_File(t *testing.T) {
	assert := assert_.New(t)
	path := writeConfig(t, `
app:
  platform: win32
downloads:
  root_dir: 'C:\Users\loop\Downloads'
  avoid_disk_collisions: true
  retries: 1
  resumes: 0
update:
  feed_url: https://updates.example.com/loop
  min_interval: 6h
lifecycle:
  stay_resident: true
logging:
  level: debug
  format: json
`)
	config, err := Load(path)
	require.NoError(t, err)
	assert.Equal(loop_client.PlatformWindows, config.App.GetPlatform())
	assert.True(config.Downloads.AvoidDiskCollisions)
	assert.Equal(1, config.Downloads.Retries)
	assert.Equal(0, config.Downloads.Resumes, "resumes is independent of retries")
	assert.Equal("https://updates.example.com/loop", config.Update.FeedURL)
	assert.Equal(6*time.Hour, config.Update.GetMinInterval())
	assert.True(config.Lifecycle.StayResident)
	assert.Equal(
		`C:\Users\loop\Downloads\LoopClient\[LOOP] setup.exe`,
		config.Downloads.Resolver().Resolve(config.App.GetPlatform(), "setup.exe"),
	)
}

func TestLoad_Environment(t *testing.T) {
	assert := assert_.New(t)
	t.Setenv("LOOP_DOWNLOADS_ROOT_DIR", "/srv/downloads")
	t.Setenv("LOOP_LOGGING_LEVEL", "warn")
	config, err := Load("")
	require.NoError(t, err)
	assert.Equal("/srv/downloads", config.Downloads.RootDir)
	assert.Equal("warn", config.Logging.Level)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"platform":    "app:\n  platform: beos\n",
		"client dir":  "downloads:\n  client_dir: a/b\n",
		"resumes":     "downloads:\n  resumes: -1\n",
		"interval":    "update:\n  min_interval: sometimes\n",
		"window size": "window:\n  width: 800\n",
		"log level":   "logging:\n  level: loud\n",
		"log format":  "logging:\n  format: xml\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			assert_.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert_.Error(t, err)
}
