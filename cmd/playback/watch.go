package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/urfave/cli/v2"

	"github.com/zsiec/playback/internal/client"
	"github.com/zsiec/playback/internal/codec"
	"github.com/zsiec/playback/internal/config"
	"github.com/zsiec/playback/internal/media"
	"github.com/zsiec/playback/internal/transport"
)

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "connect to a server, forward commands from stdin and receive frames",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "fingerprint", Usage: "pin the QUIC server certificate (hex SHA-256)"},
			&cli.StringFlag{Name: "out", Usage: "write received frames to this directory"},
			&cli.StringSliceFlag{Name: "command", Aliases: []string{"x"}, Usage: "command to send after connecting (repeatable)"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if c.IsSet("fingerprint") {
				cfg.Client.Fingerprint = c.String("fingerprint")
			}
			if c.IsSet("out") {
				cfg.Client.OutDir = c.String("out")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := setupLogging(cfg, os.Stderr); err != nil {
				return err
			}
			return watch(c.Context, cfg, c.StringSlice("command"), os.Stdin)
		},
	}
}

func watch(ctx context.Context, cfg config.Config, initial []string, commands io.Reader) error {
	if cfg.Client.OutDir != "" {
		if err := os.MkdirAll(cfg.Client.OutDir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	jpeg := codec.NewJPEG(cfg.Server.Quality, 0)
	r, err := client.Dial(ctx, client.Config{
		Network: cfg.Network,
		Addr:    cfg.Addr,
		Codec:   jpeg,
		Transport: transport.Options{
			Fingerprint: cfg.Client.Fingerprint,
			StreamID:    cfg.SRTStreamID,
		},
	})
	if err != nil {
		return err
	}
	r.OnFrame(frameWriter(cfg.Client.OutDir, jpeg))

	for _, cmd := range initial {
		if err := r.SendCommand(cmd + "\n"); err != nil {
			r.Close()
			return err
		}
	}
	go forwardCommands(r, commands)

	err = r.Run(ctx)
	st := r.Stats()
	slog.Info("stream finished",
		"frames", st.FramesReceived,
		"dropped", st.FramesDropped,
		"bytes", st.BytesReceived,
	)
	return err
}

// forwardCommands sends each non-empty input line to the server until input
// ends or the connection fails.
func forwardCommands(r *client.Receiver, in io.Reader) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if err := r.SendCommand(line + "\n"); err != nil {
			return
		}
	}
}

func frameWriter(dir string, enc media.Codec) client.FrameHandler {
	var n atomic.Int64
	return func(f *media.Frame) {
		i := n.Add(1)
		slog.Debug("frame", "n", i, "position_ms", f.PositionMs)
		if dir == "" {
			return
		}
		data, err := enc.Encode(f)
		if err != nil {
			slog.Warn("frame encode failed", "n", i, "error", err)
			return
		}
		path := filepath.Join(dir, fmt.Sprintf("frame_%06d.jpg", i))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			slog.Warn("frame write failed", "path", path, "error", err)
		}
	}
}
