package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/zsiec/playback/internal/certs"
	"github.com/zsiec/playback/internal/codec"
	"github.com/zsiec/playback/internal/config"
	"github.com/zsiec/playback/internal/server"
	"github.com/zsiec/playback/internal/source"
	"github.com/zsiec/playback/internal/transport"
)

const statsInterval = 30 * time.Second

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "listen for viewers and stream the source to each of them",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "source", Usage: "image directory or testsrc: URL"},
			&cli.Float64Flag{Name: "fps", Usage: "frame rate for image directories"},
			&cli.IntFlag{Name: "quality", Usage: "JPEG quality, 1-100"},
			&cli.IntFlag{Name: "max-width", Usage: "downscale frames wider than this"},
			&cli.BoolFlag{Name: "realtime", Usage: "pace frames by their timestamps"},
			&cli.StringSliceFlag{Name: "host", Usage: "extra host names for the QUIC certificate"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if c.IsSet("source") {
				cfg.Server.Source = c.String("source")
			}
			if c.IsSet("fps") {
				cfg.Server.SequenceFPS = c.Float64("fps")
			}
			if c.IsSet("quality") {
				cfg.Server.Quality = c.Int("quality")
			}
			if c.IsSet("max-width") {
				cfg.Server.MaxWidth = c.Int("max-width")
			}
			if c.IsSet("realtime") {
				cfg.Server.Realtime = c.Bool("realtime")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := setupLogging(cfg, os.Stderr); err != nil {
				return err
			}
			return serve(c.Context, cfg, c.StringSlice("host"))
		},
	}
}

func serve(ctx context.Context, cfg config.Config, hosts []string) error {
	opts := transport.Options{StreamID: cfg.SRTStreamID}
	if cfg.Network == transport.NetworkQUIC {
		cert, err := certs.Generate(cfg.Server.CertValidity, hosts...)
		if err != nil {
			return err
		}
		slog.Info("certificate generated",
			"fingerprint", cert.FingerprintHex(),
			"expires", cert.NotAfter.Format(time.RFC3339),
		)
		opts.Cert = cert
	}

	srv := server.New(server.Config{
		Network:    cfg.Network,
		Addr:       cfg.Addr,
		SourcePath: cfg.Server.Source,
		Opener:     source.Opener{SequenceFPS: cfg.Server.SequenceFPS},
		Codec:      codec.NewJPEG(cfg.Server.Quality, cfg.Server.MaxWidth),
		Realtime:   cfg.Server.Realtime,
		Transport:  opts,
	})

	slog.Info("playback starting",
		"version", version,
		"network", cfg.Network,
		"addr", cfg.Addr,
		"source", cfg.Server.Source,
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := srv.Start(gctx)
		if err != nil {
			slog.Error("listener failed, waiting for live sessions", "live", srv.Registry().Len())
			drain(ctx, srv)
		}
		return err
	})

	g.Go(func() error {
		ticker := time.NewTicker(statsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				for _, s := range srv.Registry().List() {
					slog.Debug("session", "id", s.ID, "state", s.State, "position_ms", s.PositionMs, "frames", s.FramesSent)
				}
				slog.Info("sessions", "live", srv.Registry().Len())
			}
		}
	})

	err := g.Wait()
	srv.Shutdown()
	srv.Wait()
	slog.Info("playback stopped")
	return err
}

// drain waits for every live session to finish, or cancels them all once
// ctx is done.
func drain(ctx context.Context, srv *server.Server) {
	done := make(chan struct{})
	go func() {
		srv.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		srv.Shutdown()
		<-done
	}
}
