package transport

import (
	"context"
	"fmt"
	"net"
)

// tcpListener listens on IPv4 only.
type tcpListener struct {
	ln net.Listener
}

func listenTCP(addr string) (*tcpListener, error) {
	ln, err := net.Listen("tcp4", addr)
	if err != nil {
		return nil, fmt.Errorf("TCP listen on %s: %w", addr, err)
	}
	return &tcpListener{ln: ln}, nil
}

// Accept ignores ctx; callers unblock it with Close.
func (l *tcpListener) Accept(_ context.Context) (Conn, error) {
	c, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	return c.(*net.TCPConn), nil
}

func (l *tcpListener) Addr() net.Addr { return l.ln.Addr() }

func (l *tcpListener) Close() error { return l.ln.Close() }

func dialTCP(ctx context.Context, addr string) (Conn, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp4", addr)
	if err != nil {
		return nil, fmt.Errorf("TCP dial %s: %w", addr, err)
	}
	return c.(*net.TCPConn), nil
}
