package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultsAreValid(t *testing.T) {
	t.Parallel()
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Defaults().Validate(): %v", err)
	}
	if cfg.Addr != ":5000" {
		t.Errorf("Addr: got %q, want :5000", cfg.Addr)
	}
	if cfg.Network != "tcp" {
		t.Errorf("Network: got %q, want tcp", cfg.Network)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "playback.yaml")
	data := []byte(`
network: quic
addr: 127.0.0.1:6000
server:
  source: /var/media/clip
  quality: 60
  realtime: true
  cert_validity: 48h
client:
  out_dir: /tmp/frames
log_level: debug
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Network != "quic" || cfg.Addr != "127.0.0.1:6000" {
		t.Errorf("listen: got %s %s", cfg.Network, cfg.Addr)
	}
	if cfg.Server.Source != "/var/media/clip" || cfg.Server.Quality != 60 || !cfg.Server.Realtime {
		t.Errorf("server: got %+v", cfg.Server)
	}
	if cfg.Server.CertValidity != 48*time.Hour {
		t.Errorf("cert_validity: got %v, want 48h", cfg.Server.CertValidity)
	}
	if cfg.Server.SequenceFPS != 25 {
		t.Errorf("unset field lost its default: sequence_fps %v", cfg.Server.SequenceFPS)
	}
	if cfg.Client.OutDir != "/tmp/frames" {
		t.Errorf("out_dir: got %q", cfg.Client.OutDir)
	}
	if lvl, err := cfg.Level(); err != nil || lvl != slog.LevelDebug {
		t.Errorf("Level: got %v, %v", lvl, err)
	}
}

func TestLoadEmptyPath(t *testing.T) {
	t.Parallel()
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg != Defaults() {
		t.Errorf("got %+v, want defaults", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("missing file: got nil error")
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("server: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(bad); err == nil {
		t.Error("bad yaml: got nil error")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("PLAYBACK_ADDR", ":7000")
	t.Setenv("PLAYBACK_NETWORK", "srt")
	t.Setenv("PLAYBACK_SOURCE", "testsrc:?duration=3s")
	t.Setenv("PLAYBACK_QUALITY", "55")
	t.Setenv("PLAYBACK_REALTIME", "true")
	t.Setenv("DEBUG", "1")

	cfg := Defaults()
	cfg.ApplyEnv()

	if cfg.Addr != ":7000" || cfg.Network != "srt" {
		t.Errorf("listen: got %s %s", cfg.Network, cfg.Addr)
	}
	if cfg.Server.Source != "testsrc:?duration=3s" {
		t.Errorf("source: got %q", cfg.Server.Source)
	}
	if cfg.Server.Quality != 55 || !cfg.Server.Realtime {
		t.Errorf("server: got %+v", cfg.Server)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log level: got %q, want debug", cfg.LogLevel)
	}
}

func TestApplyEnvIgnoresBadNumbers(t *testing.T) {
	t.Setenv("PLAYBACK_QUALITY", "high")
	t.Setenv("PLAYBACK_REALTIME", "maybe")

	cfg := Defaults()
	cfg.ApplyEnv()
	if cfg.Server.Quality != Defaults().Server.Quality || cfg.Server.Realtime {
		t.Errorf("got %+v, want defaults kept", cfg.Server)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"network", func(c *Config) { c.Network = "udp" }},
		{"quality low", func(c *Config) { c.Server.Quality = 0 }},
		{"quality high", func(c *Config) { c.Server.Quality = 101 }},
		{"max width", func(c *Config) { c.Server.MaxWidth = -1 }},
		{"fps", func(c *Config) { c.Server.SequenceFPS = 0 }},
		{"cert validity", func(c *Config) { c.Server.CertValidity = 0 }},
		{"log level", func(c *Config) { c.LogLevel = "loud" }},
		{"log format", func(c *Config) { c.LogFormat = "xml" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := Defaults()
			tc.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("got %v, want ErrInvalid", err)
			}
		})
	}
}
