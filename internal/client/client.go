// Package client implements the viewer side of the playback protocol: it
// reads length-prefixed frames from the server, decodes them and hands them
// to a callback, and sends text commands back.
//
// Commands go out as bare text with no framing. That asymmetry is part of the
// protocol: frames are length-prefixed server to client, commands are not.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/zsiec/playback/internal/framing"
	"github.com/zsiec/playback/internal/media"
	"github.com/zsiec/playback/internal/transport"
)

// DefaultPort is the port the server listens on by default.
const DefaultPort = "5000"

// FrameHandler receives each decoded frame, in arrival order.
type FrameHandler func(*media.Frame)

// Config holds the parameters for Dial.
type Config struct {
	Network string // transport.NetworkTCP when empty
	Addr    string // host or host:port; DefaultPort is added when missing

	Codec     media.Codec
	Transport transport.Options

	// Log is the parent logger. If nil, slog.Default() is used.
	Log *slog.Logger
}

// Stats counts what a Receiver has taken off the wire.
type Stats struct {
	FramesReceived int64 `json:"framesReceived"`
	FramesDropped  int64 `json:"framesDropped"`
	BytesReceived  int64 `json:"bytesReceived"`
}

// Receiver is a connected viewer.
type Receiver struct {
	log   *slog.Logger
	conn  transport.Conn
	codec media.Codec

	handlerMu sync.RWMutex
	onFrame   FrameHandler

	writeMu   sync.Mutex
	closeOnce sync.Once

	framesReceived atomic.Int64
	framesDropped  atomic.Int64
	bytesReceived  atomic.Int64
}

// Dial connects to a server with a single attempt. Failure is returned to
// the caller; nothing is retried.
func Dial(ctx context.Context, cfg Config) (*Receiver, error) {
	if cfg.Codec == nil {
		return nil, errors.New("client: codec is required")
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	addr := withDefaultPort(cfg.Addr)
	conn, err := transport.Dial(ctx, cfg.Network, addr, cfg.Transport)
	if err != nil {
		log.Warn("connect failed", "addr", addr, "error", err)
		return nil, &framing.ConnectionError{Op: "connect", Err: err}
	}
	log.Info("connected", "addr", addr)
	return NewReceiver(conn, cfg.Codec, log), nil
}

// NewReceiver wraps an established connection.
func NewReceiver(conn transport.Conn, codec media.Codec, log *slog.Logger) *Receiver {
	if log == nil {
		log = slog.Default()
	}
	return &Receiver{
		log:   log.With("component", "receiver"),
		conn:  conn,
		codec: codec,
	}
}

func withDefaultPort(addr string) string {
	if addr == "" {
		return net.JoinHostPort("127.0.0.1", DefaultPort)
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return net.JoinHostPort(addr, DefaultPort)
	}
	return addr
}

// OnFrame registers the frame callback, replacing any previous one.
func (r *Receiver) OnFrame(fn FrameHandler) {
	r.handlerMu.Lock()
	r.onFrame = fn
	r.handlerMu.Unlock()
}

// Run reads frames until the stream ends, ctx is cancelled or the connection
// fails, then closes the connection. A server-side end of stream returns nil.
// Run is meant to be called on its own goroutine and only once.
func (r *Receiver) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { r.Close() })
	defer stop()
	defer r.Close()

	fr := framing.NewReader(r.conn, 0)
	for {
		payload, err := fr.Next()
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return nil
			case errors.Is(err, framing.ErrConnectionClosed):
				var pe *framing.ProtocolError
				if errors.As(err, &pe) {
					r.log.Warn("stream ended mid-message", "error", err)
					return err
				}
				r.log.Info("stream ended", "frames", r.framesReceived.Load())
				return nil
			default:
				r.log.Warn("receive failed", "error", err)
				return err
			}
		}
		r.bytesReceived.Add(int64(len(payload)))

		frame, err := r.codec.Decode(payload)
		if err != nil {
			r.framesDropped.Add(1)
			r.log.Warn("frame decode failed, skipping", "bytes", len(payload), "error", err)
			continue
		}
		r.framesReceived.Add(1)

		r.handlerMu.RLock()
		fn := r.onFrame
		r.handlerMu.RUnlock()
		if fn != nil {
			fn(frame)
		}
	}
}

// SendCommand writes text to the server as-is: no length prefix and no
// terminator are added.
func (r *Receiver) SendCommand(text string) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	data := []byte(text)
	for len(data) > 0 {
		n, err := r.conn.Write(data)
		if err != nil {
			r.log.Warn("send command failed", "command", text, "error", err)
			return &framing.ConnectionError{Op: "write", Err: err}
		}
		data = data[n:]
	}
	return nil
}

// Stats returns the receive counters.
func (r *Receiver) Stats() Stats {
	return Stats{
		FramesReceived: r.framesReceived.Load(),
		FramesDropped:  r.framesDropped.Load(),
		BytesReceived:  r.bytesReceived.Load(),
	}
}

// RemoteAddr returns the server address.
func (r *Receiver) RemoteAddr() net.Addr { return r.conn.RemoteAddr() }

// Close closes the connection. It is safe to call more than once.
func (r *Receiver) Close() error {
	var err error
	r.closeOnce.Do(func() {
		err = r.conn.Close()
		if err != nil {
			err = fmt.Errorf("close: %w", err)
		}
	})
	return err
}
