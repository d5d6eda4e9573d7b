package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/alanbriolat/loop-client"
	"github.com/alanbriolat/loop-client/internal/host"
)

// EnvPrefix is prepended to environment overrides, e.g. LOOP_DOWNLOADS_ROOT_DIR.
const EnvPrefix = "LOOP"

// Config represents the entire application configuration
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Downloads DownloadsConfig `mapstructure:"downloads"`
	Update    UpdateConfig    `mapstructure:"update"`
	Window    WindowConfig    `mapstructure:"window"`
	Lifecycle LifecycleConfig `mapstructure:"lifecycle"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type AppConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
	// Platform overrides the detected platform when resolving paths.
	Platform string `mapstructure:"platform"`
}

type DownloadsConfig struct {
	RootDir             string `mapstructure:"root_dir"`
	ClientDir           string `mapstructure:"client_dir"`
	FilePrefix          string `mapstructure:"file_prefix"`
	AvoidDiskCollisions bool   `mapstructure:"avoid_disk_collisions"`
	// Retries of each HTTP request for downloads made without a desktop host
	Retries int `mapstructure:"retries"`
	// Resumes is how many times such a download continues after an interruption before giving up
	Resumes int `mapstructure:"resumes"`
}

type UpdateConfig struct {
	FeedURL        string `mapstructure:"feed_url"`
	CheckOnStartup bool   `mapstructure:"check_on_startup"`
	CachePath      string `mapstructure:"cache_path"`
	MinInterval    string `mapstructure:"min_interval"`
	Timeout        string `mapstructure:"timeout"`
	Retries        int    `mapstructure:"retries"`
}

type WindowConfig struct {
	Title     string `mapstructure:"title"`
	Width     int    `mapstructure:"width"`
	Height    int    `mapstructure:"height"`
	MinWidth  int    `mapstructure:"min_width"`
	Frameless bool   `mapstructure:"frameless"`
	IconPath  string `mapstructure:"icon_path"`
}

type LifecycleConfig struct {
	StayResident bool `mapstructure:"stay_resident"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func defaultDownloadsRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, "Downloads")
}

func defaultCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "loop-client", "updates.db")
}

// New returns a viper instance with every default set and environment overrides enabled.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("app.name", "Loop")
	v.SetDefault("app.version", "0.0.0")
	v.SetDefault("app.platform", "")
	v.SetDefault("downloads.root_dir", defaultDownloadsRoot())
	v.SetDefault("downloads.client_dir", loop_client.DefaultClientDir)
	v.SetDefault("downloads.file_prefix", loop_client.DefaultFilePrefix)
	v.SetDefault("downloads.avoid_disk_collisions", false)
	v.SetDefault("downloads.retries", 3)
	v.SetDefault("downloads.resumes", 5)
	v.SetDefault("update.feed_url", "")
	v.SetDefault("update.check_on_startup", true)
	v.SetDefault("update.cache_path", defaultCachePath())
	v.SetDefault("update.min_interval", "0s")
	v.SetDefault("update.timeout", "30s")
	v.SetDefault("update.retries", 2)
	v.SetDefault("window.title", "Loop")
	v.SetDefault("window.width", 1024)
	v.SetDefault("window.height", 650)
	v.SetDefault("window.min_width", 960)
	v.SetDefault("window.frameless", true)
	v.SetDefault("window.icon_path", "")
	v.SetDefault("lifecycle.stay_resident", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	return v
}

// Load reads configuration from configPath, if not empty, on top of defaults and environment overrides.
func Load(configPath string) (*Config, error) {
	v := New()
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.App.Platform != "" {
		if _, err := loop_client.ParsePlatform(c.App.Platform); err != nil {
			return fmt.Errorf("invalid app.platform: %w", err)
		}
	}

	if c.Downloads.RootDir == "" {
		return errors.New("downloads.root_dir is required")
	}
	if c.Downloads.ClientDir == "" {
		return errors.New("downloads.client_dir is required")
	}
	if strings.ContainsAny(c.Downloads.ClientDir, `/\`) {
		return fmt.Errorf("downloads.client_dir must be a single directory name: %q", c.Downloads.ClientDir)
	}
	if c.Downloads.Retries < 0 {
		return errors.New("downloads.retries must not be negative")
	}
	if c.Downloads.Resumes < 0 {
		return errors.New("downloads.resumes must not be negative")
	}

	if _, err := time.ParseDuration(c.Update.MinInterval); err != nil {
		return fmt.Errorf("invalid update.min_interval: %w", err)
	}
	if _, err := time.ParseDuration(c.Update.Timeout); err != nil {
		return fmt.Errorf("invalid update.timeout: %w", err)
	}
	if c.Update.Retries < 0 {
		return errors.New("update.retries must not be negative")
	}

	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		return errors.New("window.width and window.height must be positive")
	}
	if c.Window.MinWidth > c.Window.Width {
		return fmt.Errorf("window.min_width (%d) exceeds window.width (%d)", c.Window.MinWidth, c.Window.Width)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid logging.format: %s", c.Logging.Format)
	}

	return nil
}

// GetPlatform returns the configured platform, or the one we are running on.
func (c *AppConfig) GetPlatform() loop_client.Platform {
	if platform, err := loop_client.ParsePlatform(c.Platform); err == nil {
		return platform
	}
	return loop_client.CurrentPlatform()
}

func (c *DownloadsConfig) Resolver() loop_client.Resolver {
	r := loop_client.NewResolver(c.RootDir)
	r.ClientDir = c.ClientDir
	r.FilePrefix = c.FilePrefix
	return r
}

func (c *UpdateConfig) GetMinInterval() time.Duration {
	d, _ := time.ParseDuration(c.MinInterval)
	return d
}

func (c *UpdateConfig) GetTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	if d == 0 {
		return 30 * time.Second
	}
	return d
}

func (c *WindowConfig) Options() host.WindowOptions {
	return host.WindowOptions{
		Title:     c.Title,
		Width:     c.Width,
		Height:    c.Height,
		MinWidth:  c.MinWidth,
		Frameless: c.Frameless,
		IconPath:  c.IconPath,
	}
}
