// Package config loads playback settings from defaults, an optional YAML
// file and PLAYBACK_* environment variables, in that order of precedence
// (later wins). Command-line flags are applied on top by cmd/playback.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zsiec/playback/internal/certs"
	"github.com/zsiec/playback/internal/codec"
	"github.com/zsiec/playback/internal/source"
	"github.com/zsiec/playback/internal/transport"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("config: invalid")

// Config is the full playback configuration.
type Config struct {
	Network string `yaml:"network"`
	Addr    string `yaml:"addr"`

	Server ServerConfig `yaml:"server"`
	Client ClientConfig `yaml:"client"`

	// SRTStreamID is sent by SRT callers and logged by SRT listeners.
	SRTStreamID string `yaml:"srt_stream_id"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // "auto", "text" or "json"
}

// ServerConfig holds the listener side settings.
type ServerConfig struct {
	Source       string        `yaml:"source"`
	SequenceFPS  float64       `yaml:"sequence_fps"`
	Quality      int           `yaml:"quality"`
	MaxWidth     int           `yaml:"max_width"`
	Realtime     bool          `yaml:"realtime"`
	CertValidity time.Duration `yaml:"cert_validity"`
}

// ClientConfig holds the viewer side settings.
type ClientConfig struct {
	// Fingerprint pins the server's QUIC certificate (hex SHA-256).
	Fingerprint string `yaml:"fingerprint"`
	// OutDir, if set, receives every decoded frame as a numbered JPEG.
	OutDir string `yaml:"out_dir"`
}

// Defaults returns a Config with default values.
func Defaults() Config {
	return Config{
		Network: transport.NetworkTCP,
		Addr:    transport.DefaultAddr,
		Server: ServerConfig{
			Source:       "testsrc:",
			SequenceFPS:  source.DefaultFPS,
			Quality:      codec.DefaultQuality,
			CertValidity: certs.DefaultValidity,
		},
		LogLevel:  "info",
		LogFormat: "auto",
	}
}

// Load reads a YAML file over Defaults. An empty path returns Defaults.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from PLAYBACK_* environment variables.
func (c *Config) ApplyEnv() {
	c.Network = envOr("PLAYBACK_NETWORK", c.Network)
	c.Addr = envOr("PLAYBACK_ADDR", c.Addr)
	c.Server.Source = envOr("PLAYBACK_SOURCE", c.Server.Source)
	c.SRTStreamID = envOr("PLAYBACK_SRT_STREAM_ID", c.SRTStreamID)
	c.Client.Fingerprint = envOr("PLAYBACK_FINGERPRINT", c.Client.Fingerprint)
	c.LogLevel = envOr("PLAYBACK_LOG_LEVEL", c.LogLevel)

	if v := os.Getenv("PLAYBACK_QUALITY"); v != "" {
		if q, err := strconv.Atoi(v); err == nil {
			c.Server.Quality = q
		}
	}
	if v := os.Getenv("PLAYBACK_REALTIME"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Server.Realtime = b
		}
	}
	if os.Getenv("DEBUG") != "" {
		c.LogLevel = "debug"
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch strings.ToLower(c.Network) {
	case "", transport.NetworkTCP, transport.NetworkQUIC, transport.NetworkSRT:
	default:
		return fmt.Errorf("%w: network %q", ErrInvalid, c.Network)
	}
	if c.Server.Quality < 1 || c.Server.Quality > 100 {
		return fmt.Errorf("%w: quality %d not in 1..100", ErrInvalid, c.Server.Quality)
	}
	if c.Server.MaxWidth < 0 {
		return fmt.Errorf("%w: max_width %d", ErrInvalid, c.Server.MaxWidth)
	}
	if c.Server.SequenceFPS <= 0 {
		return fmt.Errorf("%w: sequence_fps %v", ErrInvalid, c.Server.SequenceFPS)
	}
	if c.Server.CertValidity <= 0 {
		return fmt.Errorf("%w: cert_validity %v", ErrInvalid, c.Server.CertValidity)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	switch c.LogFormat {
	case "", "auto", "text", "json":
	default:
		return fmt.Errorf("%w: log_format %q", ErrInvalid, c.LogFormat)
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("%w: log_level %q", ErrInvalid, c.LogLevel)
	}
	return lvl, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
