// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig            `yaml:"server"`
	Admin    AdminConfig             `yaml:"admin"`
	Pipeline PipelineConfig          `yaml:"pipeline"`
	Playback PlaybackConfig          `yaml:"playback"`
	Progress ProgressConfig          `yaml:"progress"`
	Resolver ResolverConfig          `yaml:"resolver"`
	Filters  map[string]FilterConfig `yaml:"filters"`
	Audit    AuditConfig             `yaml:"audit"`
	Tenants  []TenantConfig          `yaml:"tenants" validate:"dive"`
	Messages MessagesConfig          `yaml:"messages"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr        string      `yaml:"addr" default:":8080"`
	MetricsPath string      `yaml:"metrics_path" default:"/metrics" validate:"startswith=/"`
	Hooks       HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// AdminConfig represents admin-related configuration.
type AdminConfig struct {
	Token string `yaml:"token" validate:"required"`
}

// PipelineConfig represents the fetch/transcode subprocess configuration.
type PipelineConfig struct {
	Fetcher           string `yaml:"fetcher" default:"ytdl" validate:"required"`
	Transcoder        string `yaml:"transcoder" default:"ffmpeg" validate:"required"`
	SampleRate        int    `yaml:"sample_rate" default:"48000" validate:"oneof=8000 16000 24000 44100 48000"`
	StallTimeoutMs    int    `yaml:"stall_timeout_ms" default:"30000" validate:"gte=100"`
	ChunkSize         int    `yaml:"chunk_size" default:"131072" validate:"gte=1024"`
	MaxSessions       int    `yaml:"max_sessions" default:"16" validate:"gte=1"`
	FetcherOKCodes    []int  `yaml:"fetcher_ok_codes" default:"[0,1]"`
	TranscoderOKCodes []int  `yaml:"transcoder_ok_codes" default:"[0,141]"`
}

// StallTimeout returns the watchdog timeout.
func (p PipelineConfig) StallTimeout() time.Duration {
	return time.Duration(p.StallTimeoutMs) * time.Millisecond
}

// PlaybackConfig represents playback control configuration.
// A zero default volume is replaced by the built-in default.
type PlaybackConfig struct {
	FrameIntervalMs int          `yaml:"frame_interval_ms" default:"20" validate:"gte=1,lte=1000"`
	DefaultVolume   float64      `yaml:"default_volume" default:"30" validate:"gte=0,lte=100"`
	EventBuffer     int          `yaml:"event_buffer" default:"64" validate:"gte=1"`
	Output          OutputConfig `yaml:"output"`
}

// FrameInterval returns the pacing of the frame pump.
func (p PlaybackConfig) FrameInterval() time.Duration {
	return time.Duration(p.FrameIntervalMs) * time.Millisecond
}

// OutputConfig selects where delivered frames go.
type OutputConfig struct {
	Kind string `yaml:"kind" default:"discard" validate:"oneof=discard file"`
	Dir  string `yaml:"dir" validate:"required_if=Kind file"`
}

// ProgressConfig represents progress reporting configuration.
type ProgressConfig struct {
	Resolution int `yaml:"resolution" default:"200" validate:"gte=1,lte=10000"`
}

// ResolverConfig represents track metadata lookup configuration.
type ResolverConfig struct {
	CacheTTLSec int           `yaml:"cache_ttl_sec" default:"600" validate:"gte=1"`
	YouTube     YouTubeConfig `yaml:"youtube"`
	Spotify     SpotifyConfig `yaml:"spotify"`
}

// CacheTTL returns how long resolved tracks are cached.
func (r ResolverConfig) CacheTTL() time.Duration {
	return time.Duration(r.CacheTTLSec) * time.Second
}

// YouTubeConfig represents YouTube Data API configuration.
type YouTubeConfig struct {
	APIKey            string `yaml:"api_key" validate:"required"`
	RequestsPerMinute int    `yaml:"requests_per_minute" default:"60" validate:"gte=1"`
}

// SpotifyConfig represents Spotify API configuration. Spotify links are
// only resolved when both credentials are set.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id" validate:"required_with=ClientSecret"`
	ClientSecret string `yaml:"client_secret" validate:"required_with=ClientID"`
	Market       string `yaml:"market" validate:"omitempty,len=2" default:"JP"`
}

// Enabled reports whether Spotify credentials are configured.
func (s SpotifyConfig) Enabled() bool {
	return s.ClientID != "" && s.ClientSecret != ""
}

// FilterConfig represents a filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// AuditConfig represents the audit trail configuration.
type AuditConfig struct {
	Retain int `yaml:"retain" default:"500" validate:"gte=1"`
}

// TenantConfig is a tenant opened at startup.
type TenantConfig struct {
	ID      string `yaml:"id" validate:"required"`
	Channel string `yaml:"channel"`
}

// MessagesConfig represents user-facing messages.
type MessagesConfig struct {
	Success               string `yaml:"success" default:"Queued."`
	DefaultError          string `yaml:"default_error" default:"The request could not be processed."`
	TrackNotFound         string `yaml:"track_not_found" default:"No playable track was found for that link."`
	TenantNotFound        string `yaml:"tenant_not_found" default:"Nothing is playing here."`
	NotInChannel          string `yaml:"not_in_channel" default:"Join the playback channel first."`
	DuplicateTrack        string `yaml:"duplicate_track" default:"That track is already queued."`
	QueueLimitExceeded    string `yaml:"queue_limit_exceeded" default:"You have too many tracks waiting."`
	DurationLimitExceeded string `yaml:"duration_limit_exceeded" default:"That track is too long or too short."`
	InvalidVolume         string `yaml:"invalid_volume" default:"Volume must be between 0 and 100."`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse parses YAML configuration, applies environment overrides and defaults, and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("YOUTUBE_API_KEY"); v != "" {
		c.Resolver.YouTube.APIKey = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Resolver.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Resolver.Spotify.ClientSecret = v
	}
	if v := os.Getenv("ADMIN_TOKEN"); v != "" {
		c.Admin.Token = v
	}
}

// GetMessage returns the message for the given code.
func (c *Config) GetMessage(code string) string {
	switch code {
	case "success":
		return c.Messages.Success
	case "track_not_found":
		return c.Messages.TrackNotFound
	case "tenant_not_found":
		return c.Messages.TenantNotFound
	case "not_in_channel":
		return c.Messages.NotInChannel
	case "duplicate_track":
		return c.Messages.DuplicateTrack
	case "queue_limit_exceeded":
		return c.Messages.QueueLimitExceeded
	case "duration_limit_exceeded":
		return c.Messages.DurationLimitExceeded
	case "invalid_volume":
		return c.Messages.InvalidVolume
	default:
		return c.Messages.DefaultError
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if err := c.validateTenants(); err != nil {
		return err
	}
	return nil
}

// validateTenants checks that startup tenants are unique.
func (c *Config) validateTenants() error {
	seen := make(map[string]bool, len(c.Tenants))
	for _, t := range c.Tenants {
		if seen[t.ID] {
			return errors.Newf("tenant %q is configured twice", t.ID)
		}
		seen[t.ID] = true
	}
	return nil
}

// IsFilterEnabled checks if a filter is enabled.
func (c *Config) IsFilterEnabled(filterName string) bool {
	if f, ok := c.Filters[filterName]; ok {
		return f.Enabled
	}
	return false
}

// GetFilterSettings returns the settings for a filter.
func (c *Config) GetFilterSettings(filterName string) map[string]any {
	if f, ok := c.Filters[filterName]; ok && f.Settings != nil {
		return f.Settings
	}
	return map[string]any{}
}
