// Package config provides configuration loading and validation for
// cursormirrord using Viper. It supports configuration from files,
// environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cursormirror/cursormirrord/internal/quality"
)

// Default configuration values.
const (
	defaultServerPort             = 8080
	defaultStreamTimeoutMinutes   = 30
	defaultReadTimeout            = 30 * time.Second
	defaultWriteTimeout           = 30 * time.Second
	defaultShutdownTimeout        = 10 * time.Second
	defaultTokenTTLHours          = 24
	defaultCORSMaxAgeSeconds      = 300
	defaultRequestsPerMinute      = 120
	defaultAuthEndpointMultiplier = 0.2
	defaultRateLimitCleanupMins   = 5
	defaultTargetSegmentSeconds   = 4.0
	defaultRetention              = 5
	defaultIdleTimeoutSeconds     = 60
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Encoder   EncoderConfig   `mapstructure:"encoder"`
}

// ServerConfig holds HTTP server and capture-session configuration.
type ServerConfig struct {
	Host                 string        `mapstructure:"host"`
	Port                 int           `mapstructure:"port"`
	StreamTimeoutMinutes int           `mapstructure:"stream_timeout_minutes"`
	AutoStart            bool          `mapstructure:"auto_start"`
	ReadTimeout          time.Duration `mapstructure:"read_timeout"`
	WriteTimeout         time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout      time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig holds AuthManager and SessionManager configuration: the
// distilled spec keeps these as one logical access-control unit, so the
// single-viewer session policy lives here alongside credential checking.
type AuthConfig struct {
	Method             string `mapstructure:"method"` // none, basic, apikey, token, icloud
	RequireAdminAuth   bool   `mapstructure:"require_admin_auth"`
	RequireStreamAuth  bool   `mapstructure:"require_stream_auth"`
	Username           string `mapstructure:"username"`
	Password           string `mapstructure:"password"`
	APIKey             string `mapstructure:"api_key"`
	TokenTTLHours      int    `mapstructure:"token_ttl_hours"`
	SingleViewerOnly   bool   `mapstructure:"single_viewer_only"`
	IdleTimeoutSeconds int    `mapstructure:"idle_timeout_seconds"`
}

// CORSConfig holds cross-origin configuration.
type CORSConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	MaxAgeSeconds    int      `mapstructure:"max_age_seconds"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

// RateLimitConfig holds RateLimiter configuration.
type RateLimitConfig struct {
	Enabled                bool     `mapstructure:"enabled"`
	RequestsPerMinute      int      `mapstructure:"requests_per_minute"`
	ExcludedPaths          []string `mapstructure:"excluded_paths"`
	AuthEndpointMultiplier float64  `mapstructure:"auth_endpoint_multiplier"`
	CleanupIntervalMinutes int      `mapstructure:"cleanup_interval_minutes"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level           string   `mapstructure:"level"` // trace,debug,info,notice,warning,error,critical
	LogRequests     bool     `mapstructure:"log_requests"`
	LogRequestBody  bool     `mapstructure:"log_request_body"`
	LogResponseBody bool     `mapstructure:"log_response_body"`
	LogPerformance  bool     `mapstructure:"log_performance"`
	ExcludedPaths   []string `mapstructure:"excluded_paths"`
	Format          string   `mapstructure:"format"` // json, text
	AddSource       bool     `mapstructure:"add_source"`
	TimeFormat      string   `mapstructure:"time_format"`
}

// EncoderConfig holds Encoder/SegmentEngine/HLS configuration.
type EncoderConfig struct {
	Quality              []string `mapstructure:"quality"` // subset of sd,hd,fullhd
	TargetSegmentSeconds float64  `mapstructure:"target_segment_seconds"`
	Retention            int      `mapstructure:"retention"`
	BaseURL              string   `mapstructure:"base_url"`
	FFmpegBinaryPath     string   `mapstructure:"ffmpeg_binary_path"`
	// SegmentDir is the root directory the segment engine writes its
	// per-quality subdirectories under.
	SegmentDir string `mapstructure:"segment_dir"`
}

// TargetDuration returns the configured target segment duration as a Duration.
func (c *EncoderConfig) TargetDuration() time.Duration {
	return time.Duration(c.TargetSegmentSeconds * float64(time.Second))
}

// Qualities parses the configured quality list into the closed quality enum,
// failing if any entry is not in the closed set (Validate already checked
// this, so an error here indicates a programming error, not bad input).
func (c *EncoderConfig) Qualities() ([]quality.Quality, error) {
	out := make([]quality.Quality, 0, len(c.Quality))
	for _, s := range c.Quality {
		q, err := quality.Parse(s)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with CURSORMIRROR_ and use
// underscores for nesting. Example: CURSORMIRROR_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/cursormirrord")
		v.AddConfigPath("$HOME/.cursormirrord")
	}

	v.SetEnvPrefix("CURSORMIRROR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults are in place.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.stream_timeout_minutes", defaultStreamTimeoutMinutes)
	v.SetDefault("server.auto_start", false)
	v.SetDefault("server.read_timeout", defaultReadTimeout)
	v.SetDefault("server.write_timeout", defaultWriteTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)

	// Auth defaults
	v.SetDefault("auth.method", "none")
	v.SetDefault("auth.require_admin_auth", false)
	v.SetDefault("auth.require_stream_auth", false)
	v.SetDefault("auth.token_ttl_hours", defaultTokenTTLHours)
	v.SetDefault("auth.single_viewer_only", true)
	v.SetDefault("auth.idle_timeout_seconds", defaultIdleTimeoutSeconds)

	// CORS defaults
	v.SetDefault("cors.enabled", true)
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "HEAD", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"*"})
	v.SetDefault("cors.max_age_seconds", defaultCORSMaxAgeSeconds)
	v.SetDefault("cors.allow_credentials", false)

	// Rate limit defaults
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_minute", defaultRequestsPerMinute)
	v.SetDefault("rate_limit.excluded_paths", []string{"/health"})
	v.SetDefault("rate_limit.auth_endpoint_multiplier", defaultAuthEndpointMultiplier)
	v.SetDefault("rate_limit.cleanup_interval_minutes", defaultRateLimitCleanupMins)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_requests", true)
	v.SetDefault("logging.log_request_body", false)
	v.SetDefault("logging.log_response_body", false)
	v.SetDefault("logging.log_performance", false)
	v.SetDefault("logging.excluded_paths", []string{"/health"})
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Encoder/HLS defaults
	v.SetDefault("encoder.quality", []string{"hd"})
	v.SetDefault("encoder.target_segment_seconds", defaultTargetSegmentSeconds)
	v.SetDefault("encoder.retention", defaultRetention)
	v.SetDefault("encoder.base_url", "")
	v.SetDefault("encoder.ffmpeg_binary_path", "ffmpeg")
	v.SetDefault("encoder.segment_dir", filepath.Join(os.TempDir(), "cursormirrord", "segments"))
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}
	if c.Server.StreamTimeoutMinutes < 1 {
		return fmt.Errorf("server.stream_timeout_minutes must be at least 1")
	}

	validMethods := map[string]bool{"none": true, "basic": true, "apikey": true, "token": true, "icloud": true}
	if !validMethods[c.Auth.Method] {
		return fmt.Errorf("auth.method must be one of: none, basic, apikey, token, icloud")
	}

	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true, "notice": true,
		"warning": true, "error": true, "critical": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: trace, debug, info, notice, warning, error, critical")
	}

	if c.RateLimit.AuthEndpointMultiplier <= 0 || c.RateLimit.AuthEndpointMultiplier > 1 {
		return fmt.Errorf("rate_limit.auth_endpoint_multiplier must be in (0, 1]")
	}

	if len(c.Encoder.Quality) == 0 {
		return fmt.Errorf("encoder.quality must list at least one quality")
	}
	for _, q := range c.Encoder.Quality {
		switch q {
		case "sd", "hd", "fullhd":
		default:
			return fmt.Errorf("encoder.quality %q is not one of: sd, hd, fullhd", q)
		}
	}
	if c.Encoder.TargetSegmentSeconds <= 0 {
		return fmt.Errorf("encoder.target_segment_seconds must be positive")
	}
	if c.Encoder.Retention < 1 {
		return fmt.Errorf("encoder.retention must be at least 1")
	}
	if c.Encoder.SegmentDir == "" {
		return fmt.Errorf("encoder.segment_dir must not be empty")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StreamTimeout returns the configured stream timeout as a Duration.
func (c *ServerConfig) StreamTimeout() time.Duration {
	return time.Duration(c.StreamTimeoutMinutes) * time.Minute
}

// TokenTTL returns the configured auth token lifetime as a Duration.
func (c *AuthConfig) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLHours) * time.Hour
}

// IdleTimeout returns the configured stream-session idle timeout as a
// Duration.
func (c *AuthConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSeconds) * time.Second
}

// CleanupInterval returns the configured rate-limit cleanup interval as a Duration.
func (c *RateLimitConfig) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalMinutes) * time.Minute
}
