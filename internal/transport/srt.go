package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	srtgo "github.com/zsiec/srtgo"
)

// srtLatencyNs is the SRT latency setting in nanoseconds (120ms).
const srtLatencyNs = 120_000_000

const defaultSRTStreamID = "playback"

// srtConfig returns the socket options both ends use. Frames are
// length-prefixed, so a dropped packet would desync the stream: file mode
// gives reliable in-order byte-stream delivery, unlike the live-mode default.
func srtConfig() srtgo.Config {
	cfg := srtgo.DefaultConfig()
	cfg.Latency = srtLatencyNs
	cfg.TransType = srtgo.TransTypeFile
	return cfg
}

// srtAcceptor is the part of the srtgo listener this package uses.
type srtAcceptor interface {
	Accept() (*srtgo.Conn, error)
	Addr() net.Addr
	Close() error
}

type srtListener struct {
	ln  srtAcceptor
	log *slog.Logger
}

func listenSRT(addr string, opts Options) (*srtListener, error) {
	ln, err := srtgo.Listen(addr, srtConfig())
	if err != nil {
		return nil, fmt.Errorf("SRT listen on %s: %w", addr, err)
	}
	ln.SetAcceptRejectFunc(func(req srtgo.ConnRequest) srtgo.RejectReason {
		if req.StreamID == "" {
			return srtgo.RejPeer
		}
		return 0
	})

	log := opts.logger().With("component", "srt")
	log.Debug("SRT listener ready", "addr", ln.Addr())
	return &srtListener{ln: ln, log: log}, nil
}

// Accept ignores ctx; callers unblock it with Close.
func (l *srtListener) Accept(_ context.Context) (Conn, error) {
	c, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	l.log.Debug("caller connected", "stream_id", c.StreamID(), "remote", c.RemoteAddr())
	return c, nil
}

func (l *srtListener) Addr() net.Addr { return l.ln.Addr() }

func (l *srtListener) Close() error { return l.ln.Close() }

func dialSRT(ctx context.Context, addr string, opts Options) (Conn, error) {
	cfg := srtConfig()
	cfg.StreamID = opts.StreamID
	if cfg.StreamID == "" {
		cfg.StreamID = defaultSRTStreamID
	}

	type dialResult struct {
		conn *srtgo.Conn
		err  error
	}
	ch := make(chan dialResult, 1)
	go func() {
		c, err := srtgo.Dial(addr, cfg)
		ch <- dialResult{c, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("SRT dial %s: %w", addr, res.err)
		}
		return res.conn, nil
	case <-ctx.Done():
		// Drain the dial result in the background and close any leaked connection.
		go func() {
			if res := <-ch; res.conn != nil {
				res.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}
