package transport

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/zsiec/playback/internal/certs"
)

// alpn is the QUIC application protocol identifier.
const alpn = "playback"

// quicKeepAlive keeps idle sessions (a paused viewer) from hitting the QUIC
// idle timeout.
const quicKeepAlive = 10 * time.Second

// quicLinger bounds how long a server-side close waits for the peer to
// drain the stream before tearing the connection down.
const quicLinger = 5 * time.Second

var quicConfig = &quic.Config{
	KeepAlivePeriod: quicKeepAlive,
}

// quicListener hands out one Conn per QUIC connection: the first
// bidirectional stream the client opens. Streams are accepted on a goroutine
// per connection so a slow client cannot stall the accept loop.
type quicListener struct {
	ln    *quic.Listener
	conns chan Conn

	ctx    context.Context
	cancel context.CancelFunc

	errOnce sync.Once
	err     error
	done    chan struct{}
}

func listenQUIC(addr string, opts Options) (*quicListener, error) {
	cert := opts.Cert
	if cert == nil {
		var err error
		if cert, err = certs.Generate(0); err != nil {
			return nil, fmt.Errorf("QUIC certificate: %w", err)
		}
		opts.logger().Info("generated self-signed QUIC certificate", "fingerprint", cert.FingerprintHex())
	}

	tlsConf := &tls.Config{
		Certificates: []tls.Certificate{cert.TLSCert},
		NextProtos:   []string{alpn},
	}
	ln, err := quic.ListenAddr(addr, tlsConf, quicConfig)
	if err != nil {
		return nil, fmt.Errorf("QUIC listen on %s: %w", addr, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &quicListener{
		ln:     ln,
		conns:  make(chan Conn),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go l.acceptLoop()
	return l, nil
}

func (l *quicListener) acceptLoop() {
	for {
		qc, err := l.ln.Accept(l.ctx)
		if err != nil {
			l.fail(err)
			return
		}
		go l.awaitStream(qc)
	}
}

func (l *quicListener) awaitStream(qc quic.Connection) {
	st, err := qc.AcceptStream(l.ctx)
	if err != nil {
		qc.CloseWithError(1, "no stream")
		return
	}
	c := &quicConn{conn: qc, stream: st, linger: quicLinger}
	select {
	case l.conns <- c:
	case <-l.ctx.Done():
		c.Close()
	}
}

func (l *quicListener) fail(err error) {
	l.errOnce.Do(func() {
		l.err = err
		close(l.done)
	})
}

func (l *quicListener) Accept(ctx context.Context) (Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.done:
		return nil, l.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *quicListener) Addr() net.Addr { return l.ln.Addr() }

func (l *quicListener) Close() error {
	l.cancel()
	err := l.ln.Close()
	l.fail(net.ErrClosed)
	return err
}

func dialQUIC(ctx context.Context, addr string, opts Options) (Conn, error) {
	tlsConf := &tls.Config{
		InsecureSkipVerify: true, // self-signed; optionally pinned below
		NextProtos:         []string{alpn},
	}
	if pin := strings.ToLower(strings.TrimSpace(opts.Fingerprint)); pin != "" {
		tlsConf.VerifyPeerCertificate = func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			if len(rawCerts) == 0 {
				return errors.New("no server certificate")
			}
			sum := sha256.Sum256(rawCerts[0])
			if hex.EncodeToString(sum[:]) != pin {
				return errors.New("server certificate fingerprint mismatch")
			}
			return nil
		}
	}

	qc, err := quic.DialAddr(ctx, addr, tlsConf, quicConfig)
	if err != nil {
		return nil, fmt.Errorf("QUIC dial %s: %w", addr, err)
	}
	st, err := qc.OpenStreamSync(ctx)
	if err != nil {
		qc.CloseWithError(1, "open stream")
		return nil, fmt.Errorf("QUIC open stream: %w", err)
	}
	return &quicConn{conn: qc, stream: st}, nil
}

// quicConn is a QUIC connection reduced to its single stream. The listener
// only sees the stream once the client has written to it, so clients must
// send a command before expecting frames.
type quicConn struct {
	conn   quic.Connection
	stream quic.Stream
	linger time.Duration
	once   sync.Once
}

func (c *quicConn) Read(p []byte) (int, error)  { return c.stream.Read(p) }
func (c *quicConn) Write(p []byte) (int, error) { return c.stream.Write(p) }
func (c *quicConn) RemoteAddr() net.Addr        { return c.conn.RemoteAddr() }

// CloseWrite finishes the send direction of the stream.
func (c *quicConn) CloseWrite() error { return c.stream.Close() }

func (c *quicConn) Close() error {
	c.once.Do(func() {
		c.stream.Close()
		c.stream.CancelRead(0)
		if c.linger <= 0 {
			c.conn.CloseWithError(0, "")
			return
		}
		// Tearing the connection down discards unacknowledged stream data,
		// so give the peer a chance to read to EOF and close first.
		go func() {
			t := time.NewTimer(c.linger)
			defer t.Stop()
			select {
			case <-c.conn.Context().Done():
			case <-t.C:
			}
			c.conn.CloseWithError(0, "")
		}()
	})
	return nil
}
