// Package updater checks a static release feed for a newer version of the application. The feed is a directory
// served over HTTP containing one YAML release description per platform, e.g. latest.yml on Windows.
package updater

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-yaml"
	"go.uber.org/zap"
	"golang.org/x/mod/semver"

	"github.com/alanbriolat/loop-client"
	"github.com/alanbriolat/loop-client/internal/host"
)

type Config struct {
	FeedURL        string
	CurrentVersion string
	Platform       loop_client.Platform
	// CachePath is where the last check is remembered; no cache is kept if empty.
	CachePath string
	// MinInterval suppresses startup checks made within this long of the last successful one.
	MinInterval time.Duration
	Timeout     time.Duration
	Retries     int
	// Notify is called by CheckForUpdatesAndNotify when a newer version is available.
	Notify func(info host.UpdateInfo)
	Logger *zap.Logger
	Now    func() time.Time
}

type releaseFile struct {
	URL    string `yaml:"url"`
	SHA512 string `yaml:"sha512"`
	Size   int64  `yaml:"size"`
}

type release struct {
	Version     string        `yaml:"version"`
	Files       []releaseFile `yaml:"files"`
	Path        string        `yaml:"path"`
	SHA512      string        `yaml:"sha512"`
	ReleaseDate string        `yaml:"releaseDate"`
}

// MetadataFile returns the name of the release description for a platform.
func MetadataFile(platform loop_client.Platform) string {
	switch platform {
	case loop_client.PlatformDarwin:
		return "latest-mac.yml"
	case loop_client.PlatformLinux:
		return "latest-linux.yml"
	default:
		return "latest.yml"
	}
}

type Client struct {
	config Config
	http   *resty.Client
	cache  *Cache
	log    *zap.SugaredLogger
}

var _ host.UpdateClient = &Client{}

func New(config Config) (*Client, error) {
	if config.FeedURL == "" {
		return nil, fmt.Errorf("no update feed configured")
	}
	if config.Logger == nil {
		config.Logger = zap.L()
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.Platform == "" {
		config.Platform = loop_client.CurrentPlatform()
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	c := &Client{
		config: config,
		log:    config.Logger.Named("updater").Sugar(),
	}
	c.http = resty.New().
		SetBaseURL(strings.TrimRight(config.FeedURL, "/")).
		SetTimeout(config.Timeout).
		SetRetryCount(config.Retries).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(5*time.Second).
		SetHeader("User-Agent", "loop-client/"+config.CurrentVersion)
	if config.CachePath != "" {
		cache, err := OpenCache(config.CachePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open update cache: %w", err)
		}
		c.cache = cache
	}
	return c, nil
}

func (c *Client) Close() error {
	if c.cache != nil {
		return c.cache.Close()
	}
	return nil
}

func (c *Client) CheckForUpdatesAndNotify(ctx context.Context) error {
	if c.recentlyChecked() {
		c.log.Debugf("skipping update check, last check was less than %v ago", c.config.MinInterval)
		return nil
	}
	info, err := c.CheckForUpdates(ctx)
	if err != nil {
		return err
	}
	if info == nil {
		c.log.Infof("version %s is the latest", c.config.CurrentVersion)
		return nil
	}
	c.log.Infof("version %s is available (running %s)", info.Version, c.config.CurrentVersion)
	if c.config.Notify != nil {
		c.config.Notify(*info)
	}
	return nil
}

func (c *Client) CheckForUpdates(ctx context.Context) (*host.UpdateInfo, error) {
	file := MetadataFile(c.config.Platform)
	resp, err := c.http.R().SetContext(ctx).Get("/" + file)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", file, err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("%w: %s returned %s", host.ErrFeedUnreachable, file, resp.Status())
	}

	var latest release
	if err := yaml.Unmarshal(resp.Body(), &latest); err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s: %v", host.ErrNoUpdateMetadata, file, err)
	}
	latestVersion := canonical(latest.Version)
	if latestVersion == "" {
		return nil, fmt.Errorf("%w: %s has no valid version", host.ErrNoUpdateMetadata, file)
	}
	c.record(latest.Version)

	current := canonical(c.config.CurrentVersion)
	if current != "" && semver.Compare(latestVersion, current) <= 0 {
		return nil, nil
	}
	path := latest.Path
	if path == "" && len(latest.Files) > 0 {
		path = latest.Files[0].URL
	}
	return &host.UpdateInfo{
		Version:     strings.TrimPrefix(latestVersion, "v"),
		ReleaseDate: latest.ReleaseDate,
		Path:        path,
	}, nil
}

// canonical returns the version in the "vX.Y.Z" form semver expects, or "" if it isn't valid.
func canonical(version string) string {
	version = strings.TrimSpace(version)
	if version == "" {
		return ""
	}
	if !strings.HasPrefix(version, "v") {
		version = "v" + version
	}
	if !semver.IsValid(version) {
		return ""
	}
	return version
}

func (c *Client) recentlyChecked() bool {
	if c.cache == nil || c.config.MinInterval <= 0 {
		return false
	}
	check, ok, err := c.cache.LastCheck()
	if err != nil {
		c.log.Warnf("failed to read update cache: %v", err)
		return false
	}
	return ok && c.config.Now().Sub(check.CheckedAt) < c.config.MinInterval
}

func (c *Client) record(version string) {
	if c.cache == nil {
		return
	}
	err := c.cache.RecordCheck(Check{CheckedAt: c.config.Now(), LatestVersion: version})
	if err != nil {
		c.log.Warnf("failed to write update cache: %v", err)
	}
}
