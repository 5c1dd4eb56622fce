// Package transport abstracts the byte-stream connection a playback session
// runs over. TCP is the default; QUIC and SRT carry the same protocol over a
// single bidirectional stream or a live-mode SRT socket.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"

	"github.com/zsiec/playback/internal/certs"
)

// Supported networks.
const (
	NetworkTCP  = "tcp"
	NetworkQUIC = "quic"
	NetworkSRT  = "srt"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":5000"

// ErrUnknownNetwork is returned for a network name other than the constants above.
var ErrUnknownNetwork = errors.New("transport: unknown network")

// Conn is one client connection.
type Conn interface {
	io.ReadWriteCloser
	RemoteAddr() net.Addr
}

// Listener accepts client connections. Close unblocks a pending Accept.
type Listener interface {
	Accept(ctx context.Context) (Conn, error)
	Addr() net.Addr
	Close() error
}

// Options configures the non-TCP networks. The zero value is valid.
type Options struct {
	// Cert is presented by QUIC listeners. A self-signed certificate is
	// generated when nil.
	Cert *certs.CertInfo

	// Fingerprint pins the QUIC server certificate (hex SHA-256). When empty
	// the client accepts any certificate.
	Fingerprint string

	// StreamID is sent by SRT callers.
	StreamID string

	Log *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Log == nil {
		return slog.Default()
	}
	return o.Log
}

// CloseWrite half-closes c if the transport supports it, signalling end of
// stream to the peer while leaving the read side open.
func CloseWrite(c Conn) error {
	if cw, ok := c.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return nil
}

// Listen opens a listener on the named network.
func Listen(network, addr string, opts Options) (Listener, error) {
	if addr == "" {
		addr = DefaultAddr
	}
	switch normalize(network) {
	case NetworkTCP:
		return listenTCP(addr)
	case NetworkQUIC:
		return listenQUIC(addr, opts)
	case NetworkSRT:
		return listenSRT(addr, opts)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownNetwork, network)
	}
}

// Dial connects to a listener on the named network. It makes exactly one
// attempt.
func Dial(ctx context.Context, network, addr string, opts Options) (Conn, error) {
	switch normalize(network) {
	case NetworkTCP:
		return dialTCP(ctx, addr)
	case NetworkQUIC:
		return dialQUIC(ctx, addr, opts)
	case NetworkSRT:
		return dialSRT(ctx, addr, opts)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownNetwork, network)
	}
}

func normalize(network string) string {
	n := strings.ToLower(strings.TrimSpace(network))
	if n == "" {
		return NetworkTCP
	}
	return n
}
