/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// TrackSource selects where theme listings and audio files come from.
type TrackSource string

const (
	SourceFilesystem TrackSource = "fs"
	SourceHTTP       TrackSource = "http"
	SourceS3         TrackSource = "s3"
	SourceManifest   TrackSource = "manifest"
)

// Config covers process level configuration read from an optional YAML file
// and BACKDROP_* environment variables. Environment values win.
type Config struct {
	Environment string `yaml:"environment"`
	HTTPBind    string `yaml:"http_bind"`
	HTTPPort    int    `yaml:"http_port"`
	MetricsBind string `yaml:"metrics_bind"`

	// Playback
	DefaultTheme  string        `yaml:"default_theme"`
	Crossfade     time.Duration `yaml:"crossfade"`
	MasterRamp    time.Duration `yaml:"master_ramp"`
	InitialVolume float64       `yaml:"initial_volume"`
	LoadTimeout   time.Duration `yaml:"load_timeout"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
	Prefetch      bool          `yaml:"prefetch"`

	// Audio output
	SampleRate    int           `yaml:"sample_rate"`
	SpeakerBuffer time.Duration `yaml:"speaker_buffer"`
	TapSize       int           `yaml:"tap_size"`

	// Track source
	TrackSource    TrackSource `yaml:"track_source"`
	MediaRoot      string      `yaml:"media_root"`
	WatchLibrary   bool        `yaml:"watch_library"`
	ListingBaseURL string      `yaml:"listing_base_url"`
	ManifestPath   string      `yaml:"manifest_path"`

	// ManifestBackend is where manifest-listed files are fetched from.
	ManifestBackend TrackSource `yaml:"manifest_backend"`

	// S3 Object Storage configuration
	S3AccessKeyID     string `yaml:"s3_access_key_id"`
	S3SecretAccessKey string `yaml:"-"`
	S3Region          string `yaml:"s3_region"`
	S3Bucket          string `yaml:"s3_bucket"`
	S3Prefix          string `yaml:"s3_prefix"`
	S3Endpoint        string `yaml:"s3_endpoint"` // For S3-compatible services (MinIO, Spaces, etc.)
	S3UsePathStyle    bool   `yaml:"s3_use_path_style"`

	// Listing cache
	CacheEnabled  bool          `yaml:"cache_enabled"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"-"`
	RedisDB       int           `yaml:"redis_db"`
	ListingTTL    time.Duration `yaml:"listing_ttl"`

	// Event fan-out
	NATSURL string `yaml:"nats_url"`

	// Tracing configuration
	TracingEnabled    bool    `yaml:"tracing_enabled"`
	OTLPEndpoint      string  `yaml:"otlp_endpoint"`
	TracingSampleRate float64 `yaml:"tracing_sample_rate"`

	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`

	// Path of the YAML file that was applied, if any.
	File string `yaml:"-"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		Environment:       "development",
		HTTPBind:          "127.0.0.1",
		HTTPPort:          8080,
		MetricsBind:       "127.0.0.1:9000",
		DefaultTheme:      "ambient",
		Crossfade:         2500 * time.Millisecond,
		MasterRamp:        50 * time.Millisecond,
		InitialVolume:     0.5,
		LoadTimeout:       30 * time.Second,
		RetryDelay:        5 * time.Second,
		Prefetch:          true,
		SampleRate:        44100,
		SpeakerBuffer:     100 * time.Millisecond,
		TapSize:           2048,
		TrackSource:       SourceFilesystem,
		MediaRoot:         "./music",
		ManifestBackend:   SourceFilesystem,
		S3Region:          "us-east-1",
		RedisAddr:         "localhost:6379",
		ListingTTL:        5 * time.Minute,
		OTLPEndpoint:      "localhost:4317",
		TracingSampleRate: 1.0,
	}
}

// Load reads configuration. A .env file in the working directory is loaded
// first without overriding variables that are already set, then the YAML
// file named by BACKDROP_CONFIG (if any) is applied, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Defaults()
	if path := getEnvAny([]string{"BACKDROP_CONFIG"}, ""); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	c.File = path
	return nil
}

func (c *Config) applyEnv() {
	c.Environment = getEnvAny([]string{"BACKDROP_ENV"}, c.Environment)
	c.HTTPBind = getEnvAny([]string{"BACKDROP_HTTP_BIND"}, c.HTTPBind)
	c.HTTPPort = getEnvIntAny([]string{"BACKDROP_HTTP_PORT"}, c.HTTPPort)
	c.MetricsBind = getEnvAny([]string{"BACKDROP_METRICS_BIND"}, c.MetricsBind)

	c.DefaultTheme = getEnvAny([]string{"BACKDROP_THEME"}, c.DefaultTheme)
	c.Crossfade = getEnvDurationAny([]string{"BACKDROP_CROSSFADE"}, c.Crossfade)
	c.MasterRamp = getEnvDurationAny([]string{"BACKDROP_MASTER_RAMP"}, c.MasterRamp)
	c.InitialVolume = getEnvFloatAny([]string{"BACKDROP_VOLUME"}, c.InitialVolume)
	c.LoadTimeout = getEnvDurationAny([]string{"BACKDROP_LOAD_TIMEOUT"}, c.LoadTimeout)
	c.RetryDelay = getEnvDurationAny([]string{"BACKDROP_RETRY_DELAY"}, c.RetryDelay)
	c.Prefetch = getEnvBoolAny([]string{"BACKDROP_PREFETCH"}, c.Prefetch)

	c.SampleRate = getEnvIntAny([]string{"BACKDROP_SAMPLE_RATE"}, c.SampleRate)
	c.SpeakerBuffer = getEnvDurationAny([]string{"BACKDROP_SPEAKER_BUFFER"}, c.SpeakerBuffer)
	c.TapSize = getEnvIntAny([]string{"BACKDROP_TAP_SIZE"}, c.TapSize)

	c.TrackSource = TrackSource(strings.ToLower(getEnvAny([]string{"BACKDROP_TRACK_SOURCE"}, string(c.TrackSource))))
	c.MediaRoot = getEnvAny([]string{"BACKDROP_MEDIA_ROOT"}, c.MediaRoot)
	c.WatchLibrary = getEnvBoolAny([]string{"BACKDROP_WATCH_LIBRARY"}, c.WatchLibrary)
	c.ListingBaseURL = strings.TrimRight(getEnvAny([]string{"BACKDROP_LISTING_BASE_URL"}, c.ListingBaseURL), "/")
	c.ManifestPath = getEnvAny([]string{"BACKDROP_MANIFEST"}, c.ManifestPath)
	c.ManifestBackend = TrackSource(strings.ToLower(getEnvAny([]string{"BACKDROP_MANIFEST_BACKEND"}, string(c.ManifestBackend))))

	// S3 accepts the standard AWS variables as fallbacks.
	c.S3AccessKeyID = getEnvAny([]string{"BACKDROP_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"}, c.S3AccessKeyID)
	c.S3SecretAccessKey = getEnvAny([]string{"BACKDROP_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"}, c.S3SecretAccessKey)
	c.S3Region = getEnvAny([]string{"BACKDROP_S3_REGION", "AWS_REGION"}, c.S3Region)
	c.S3Bucket = getEnvAny([]string{"BACKDROP_S3_BUCKET"}, c.S3Bucket)
	c.S3Prefix = strings.Trim(getEnvAny([]string{"BACKDROP_S3_PREFIX"}, c.S3Prefix), "/")
	c.S3Endpoint = getEnvAny([]string{"BACKDROP_S3_ENDPOINT"}, c.S3Endpoint)
	c.S3UsePathStyle = getEnvBoolAny([]string{"BACKDROP_S3_USE_PATH_STYLE"}, c.S3UsePathStyle)

	c.CacheEnabled = getEnvBoolAny([]string{"BACKDROP_CACHE_ENABLED"}, c.CacheEnabled)
	c.RedisAddr = getEnvAny([]string{"BACKDROP_REDIS_ADDR"}, c.RedisAddr)
	c.RedisPassword = getEnvAny([]string{"BACKDROP_REDIS_PASSWORD"}, c.RedisPassword)
	c.RedisDB = getEnvIntAny([]string{"BACKDROP_REDIS_DB"}, c.RedisDB)
	c.ListingTTL = getEnvDurationAny([]string{"BACKDROP_LISTING_TTL"}, c.ListingTTL)

	c.NATSURL = getEnvAny([]string{"BACKDROP_NATS_URL"}, c.NATSURL)

	c.TracingEnabled = getEnvBoolAny([]string{"BACKDROP_TRACING_ENABLED"}, c.TracingEnabled)
	c.OTLPEndpoint = getEnvAny([]string{"BACKDROP_OTLP_ENDPOINT"}, c.OTLPEndpoint)
	c.TracingSampleRate = getEnvFloatAny([]string{"BACKDROP_TRACING_SAMPLE_RATE"}, c.TracingSampleRate)

	c.LogLevel = getEnvAny([]string{"BACKDROP_LOG_LEVEL"}, c.LogLevel)
	c.LogFile = getEnvAny([]string{"BACKDROP_LOG_FILE"}, c.LogFile)
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	source := c.TrackSource
	if source == SourceManifest {
		if c.ManifestPath == "" {
			return fmt.Errorf("BACKDROP_MANIFEST must be provided for the manifest track source")
		}
		if c.ManifestBackend == SourceManifest {
			return fmt.Errorf("manifest backend must be fs, http or s3")
		}
		source = c.ManifestBackend
	}

	switch source {
	case SourceFilesystem:
		if c.MediaRoot == "" {
			return fmt.Errorf("BACKDROP_MEDIA_ROOT must be provided for the fs track source")
		}
	case SourceHTTP:
		if c.ListingBaseURL == "" {
			return fmt.Errorf("BACKDROP_LISTING_BASE_URL must be provided for the http track source")
		}
	case SourceS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("BACKDROP_S3_BUCKET must be provided for the s3 track source")
		}
	default:
		return fmt.Errorf("unsupported track source %q", source)
	}

	if c.Crossfade <= 0 {
		return fmt.Errorf("crossfade must be positive, got %s", c.Crossfade)
	}
	if c.MasterRamp < 0 {
		return fmt.Errorf("master ramp must not be negative, got %s", c.MasterRamp)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", c.SampleRate)
	}
	if c.InitialVolume < 0 || c.InitialVolume > 1 {
		return fmt.Errorf("initial volume must be within [0, 1], got %v", c.InitialVolume)
	}
	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
		return fmt.Errorf("tracing sample rate must be within [0, 1], got %v", c.TracingSampleRate)
	}
	return nil
}

// HTTPAddr returns the control API listen address.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPBind, c.HTTPPort)
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvDurationAny accepts Go duration strings ("2.5s") or bare milliseconds.
func getEnvDurationAny(keys []string, def time.Duration) time.Duration {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			if parsed, err := time.ParseDuration(v); err == nil {
				return parsed
			}
			if ms, err := strconv.Atoi(v); err == nil {
				return time.Duration(ms) * time.Millisecond
			}
		}
	}
	return def
}
