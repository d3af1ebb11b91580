package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/genricoloni/nowplaying/internal/domain"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	defaultConfigPath = "~/.config/nowplaying/config.yaml"

	minPollInterval      = 1
	maxPollInterval      = 60
	minDisplayDuration   = 10
	maxDisplayDuration   = 300
	defaultQueueCapacity = 64
)

// Config holds application configuration
type Config struct {
	PreferredSource        string `yaml:"preferred_source"`
	PollIntervalSeconds    int    `yaml:"poll_interval_seconds"`
	ScrollSpeed            int    `yaml:"scroll_speed"`
	MaxArtworkCacheEntries int    `yaml:"max_artwork_cache_entries"`
	ShowAlbumArt           bool   `yaml:"show_album_art"`
	ShowProgressBar        bool   `yaml:"show_progress_bar"`
	DisplayDurationSeconds int    `yaml:"display_duration_seconds"`
	FailureThreshold       int    `yaml:"failure_threshold"`
	ShutdownTimeoutSeconds int    `yaml:"shutdown_timeout_seconds"`

	Display DisplayConfig `yaml:"display"`
	Artwork ArtworkConfig `yaml:"artwork"`
	Spotify SpotifyConfig `yaml:"spotify"`
	Push    PushConfig    `yaml:"push"`
	YTM     YTMConfig     `yaml:"ytm"`
	MPRIS   MPRISConfig   `yaml:"mpris"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// DisplayConfig describes the LED matrix the frames are built for
type DisplayConfig struct {
	Width           int `yaml:"width"`
	Height          int `yaml:"height"`
	FrameIntervalMs int `yaml:"frame_interval_ms"`
}

type ArtworkConfig struct {
	Workers             int `yaml:"workers"`
	CooldownSeconds     int `yaml:"cooldown_seconds"`
	FetchTimeoutSeconds int `yaml:"fetch_timeout_seconds"`
}

type SpotifyConfig struct {
	APIURL         string `yaml:"api_url"`
	TokenFile      string `yaml:"token_file"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type PushConfig struct {
	// Backend is "ytm" or "mpris"
	Backend   string `yaml:"backend"`
	QueueSize int    `yaml:"queue_size"`
}

type YTMConfig struct {
	URL       string `yaml:"url"`
	TokenFile string `yaml:"token_file"`
}

type MPRISConfig struct {
	// Player restricts events to players whose bus name starts with
	// org.mpris.MediaPlayer2.<player> (e.g. "spotify")
	Player string `yaml:"player"`
}

type MetricsConfig struct {
	// Listen is the address of the /metrics listener; empty disables it
	Listen string `yaml:"listen"`
}

// Default returns the configuration used when no file is present
func Default() *Config {
	return &Config{
		PreferredSource:        "poll",
		PollIntervalSeconds:    2,
		ScrollSpeed:            2,
		MaxArtworkCacheEntries: 20,
		ShowAlbumArt:           true,
		ShowProgressBar:        true,
		DisplayDurationSeconds: 30,
		FailureThreshold:       3,
		ShutdownTimeoutSeconds: 5,
		Display: DisplayConfig{
			Width:           64,
			Height:          32,
			FrameIntervalMs: 50,
		},
		Artwork: ArtworkConfig{
			Workers:             2,
			CooldownSeconds:     300,
			FetchTimeoutSeconds: 5,
		},
		Spotify: SpotifyConfig{
			APIURL:         "https://api.spotify.com",
			TokenFile:      "~/.config/nowplaying/spotify_token.yaml",
			TimeoutSeconds: 5,
		},
		Push: PushConfig{
			Backend:   "ytm",
			QueueSize: defaultQueueCapacity,
		},
		YTM: YTMConfig{
			URL:       "ws://localhost:9863/api/v1/ws",
			TokenFile: "~/.config/nowplaying/ytm_token.yaml",
		},
	}
}

// Load reads a YAML file on top of the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(expandPath(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	return cfg, nil
}

// NewAppConfig loads the configuration file named by NOWPLAYING_CONFIG,
// applies environment overrides and validates the result
func NewAppConfig(logger *zap.Logger) (*Config, error) {
	path := os.Getenv("NOWPLAYING_CONFIG")
	if path == "" {
		path = defaultConfigPath
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	cfg.applyEnv()

	if err := cfg.Validate(logger); err != nil {
		return nil, err
	}

	logger.Info("Configuration loaded",
		zap.String("path", path),
		zap.String("preferredSource", cfg.PreferredSource),
		zap.Int("pollInterval", cfg.PollIntervalSeconds),
		zap.String("pushBackend", cfg.Push.Backend),
		zap.Int("width", cfg.Display.Width),
		zap.Int("height", cfg.Display.Height))

	return cfg, nil
}

// applyEnv overrides file values with NOWPLAYING_* environment variables
func (c *Config) applyEnv() {
	if v := os.Getenv("NOWPLAYING_PREFERRED_SOURCE"); v != "" {
		c.PreferredSource = v
	}
	if v := os.Getenv("NOWPLAYING_PUSH_BACKEND"); v != "" {
		c.Push.Backend = v
	}
	if v := os.Getenv("NOWPLAYING_METRICS_LISTEN"); v != "" {
		c.Metrics.Listen = v
	}
	if v, err := strconv.Atoi(os.Getenv("NOWPLAYING_POLL_INTERVAL")); err == nil {
		c.PollIntervalSeconds = v
	}
}

// Validate normalizes names, expands paths and clamps out-of-range values.
// Only values that cannot be interpreted are errors.
func (c *Config) Validate(logger *zap.Logger) error {
	src, err := ParseSource(c.PreferredSource)
	if err != nil {
		return err
	}
	c.PreferredSource = src.String()

	c.Push.Backend = strings.ToLower(strings.TrimSpace(c.Push.Backend))
	if c.Push.Backend != "ytm" && c.Push.Backend != "mpris" {
		return fmt.Errorf("invalid push backend %q: must be 'ytm' or 'mpris'", c.Push.Backend)
	}

	c.PollIntervalSeconds = clamp(logger, "poll_interval_seconds", c.PollIntervalSeconds, minPollInterval, maxPollInterval)
	c.DisplayDurationSeconds = clamp(logger, "display_duration_seconds", c.DisplayDurationSeconds, minDisplayDuration, maxDisplayDuration)
	c.ScrollSpeed = atLeast(logger, "scroll_speed", c.ScrollSpeed, 1)
	c.MaxArtworkCacheEntries = atLeast(logger, "max_artwork_cache_entries", c.MaxArtworkCacheEntries, 1)
	c.FailureThreshold = atLeast(logger, "failure_threshold", c.FailureThreshold, 1)
	c.ShutdownTimeoutSeconds = atLeast(logger, "shutdown_timeout_seconds", c.ShutdownTimeoutSeconds, 1)
	c.Display.Width = atLeast(logger, "display.width", c.Display.Width, 8)
	c.Display.Height = atLeast(logger, "display.height", c.Display.Height, 8)
	c.Display.FrameIntervalMs = atLeast(logger, "display.frame_interval_ms", c.Display.FrameIntervalMs, 10)
	c.Artwork.Workers = atLeast(logger, "artwork.workers", c.Artwork.Workers, 1)
	c.Artwork.CooldownSeconds = atLeast(logger, "artwork.cooldown_seconds", c.Artwork.CooldownSeconds, 0)
	c.Artwork.FetchTimeoutSeconds = atLeast(logger, "artwork.fetch_timeout_seconds", c.Artwork.FetchTimeoutSeconds, 1)
	c.Spotify.TimeoutSeconds = atLeast(logger, "spotify.timeout_seconds", c.Spotify.TimeoutSeconds, 1)
	c.Push.QueueSize = atLeast(logger, "push.queue_size", c.Push.QueueSize, 1)

	c.Spotify.TokenFile = expandPath(c.Spotify.TokenFile)
	c.YTM.TokenFile = expandPath(c.YTM.TokenFile)

	return nil
}

// Preferred returns the preferred source kind
func (c *Config) Preferred() domain.Source {
	src, _ := ParseSource(c.PreferredSource)
	return src
}

// PollInterval returns the polling interval as a duration
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// FrameInterval returns the render tick
func (c *Config) FrameInterval() time.Duration {
	return time.Duration(c.Display.FrameIntervalMs) * time.Millisecond
}

// DisplayDuration returns how long one display cycle lasts
func (c *Config) DisplayDuration() time.Duration {
	return time.Duration(c.DisplayDurationSeconds) * time.Second
}

// ShutdownTimeout bounds worker cancellation on stop
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// ParseSource accepts the source kinds and the service names used by older configs
func ParseSource(name string) (domain.Source, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "poll", "spotify":
		return domain.SourcePoll, nil
	case "push", "ytm":
		return domain.SourcePush, nil
	default:
		return domain.SourceNone, fmt.Errorf("invalid preferred source %q: must be 'poll' (spotify) or 'push' (ytm)", name)
	}
}

func clamp(logger *zap.Logger, key string, v, lo, hi int) int {
	out := v
	if out < lo {
		out = lo
	}
	if out > hi {
		out = hi
	}
	if out != v {
		logger.Warn("Configuration value out of range, clamped",
			zap.String("key", key),
			zap.Int("value", v),
			zap.Int("clamped", out))
	}
	return out
}

func atLeast(logger *zap.Logger, key string, v, lo int) int {
	if v >= lo {
		return v
	}
	logger.Warn("Configuration value too small, raised to minimum",
		zap.String("key", key),
		zap.Int("value", v),
		zap.Int("minimum", lo))
	return lo
}

// expandPath expands environment variables and a leading ~
func expandPath(p string) string {
	p = os.ExpandEnv(p)
	if len(p) > 0 && p[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			p = filepath.Join(home, p[1:])
		}
	}
	return p
}
