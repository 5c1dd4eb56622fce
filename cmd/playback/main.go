package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/zsiec/playback/internal/config"
)

var version = "dev"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		slog.Error("playback failed", "error", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "playback",
		Usage:   "stream a video source to remote viewers and control it with text commands",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML config file",
				EnvVars: []string{"PLAYBACK_CONFIG"},
			},
			&cli.StringFlag{Name: "network", Usage: "tcp, quic or srt"},
			&cli.StringFlag{Name: "addr", Usage: "listen or server address (default :5000)"},
			&cli.StringFlag{Name: "srt-stream-id", Usage: "SRT stream ID"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
			&cli.StringFlag{Name: "log-format", Usage: "auto, text or json"},
		},
		Commands: []*cli.Command{
			serveCommand(),
			watchCommand(),
			{
				Name:  "version",
				Usage: "print the version",
				Action: func(c *cli.Context) error {
					fmt.Fprintln(c.App.Writer, version)
					return nil
				},
			},
		},
	}
}

// loadConfig resolves defaults, file, environment and global flags, in that
// order, and installs the default logger.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cfg, err
	}
	cfg.ApplyEnv()

	if c.IsSet("network") {
		cfg.Network = c.String("network")
	}
	if c.IsSet("addr") {
		cfg.Addr = c.String("addr")
	}
	if c.IsSet("srt-stream-id") {
		cfg.SRTStreamID = c.String("srt-stream-id")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.LogFormat = c.String("log-format")
	}
	return cfg, nil
}
