// Package server accepts viewer connections and runs one playback session
// per connection.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/zsiec/playback/internal/media"
	"github.com/zsiec/playback/internal/session"
	"github.com/zsiec/playback/internal/transport"
)

// ErrStarted is returned by a second call to Start.
var ErrStarted = errors.New("server: already started")

// Config holds the parameters for creating a Server.
type Config struct {
	Network string // transport.NetworkTCP when empty
	Addr    string // transport.DefaultAddr when empty

	SourcePath string
	Opener     media.Opener
	Codec      media.Codec
	Realtime   bool

	Transport transport.Options

	// Listener, if set, is used instead of listening on Network and Addr.
	Listener transport.Listener

	// Log is the parent logger. If nil, slog.Default() is used.
	Log *slog.Logger
}

// Server is the session listener. Every accepted connection gets its own
// session; there is no limit on how many run at once.
type Server struct {
	cfg      Config
	log      *slog.Logger
	registry *Registry

	// Sessions run on their own context so a failing accept loop leaves
	// them untouched.
	sessCtx    context.Context
	sessCancel context.CancelFunc
	wg         sync.WaitGroup

	started   atomic.Bool
	mu        sync.Mutex
	addr      net.Addr
	ready     chan struct{}
	readyOnce sync.Once
}

// New creates a Server. It does not listen until Start is called.
func New(cfg Config) *Server {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	if cfg.Network == "" {
		cfg.Network = transport.NetworkTCP
	}
	if cfg.Addr == "" {
		cfg.Addr = transport.DefaultAddr
	}
	if cfg.Transport.Log == nil {
		cfg.Transport.Log = log
	}
	sessCtx, sessCancel := context.WithCancel(context.Background())
	return &Server{
		cfg:        cfg,
		log:        log.With("component", "server"),
		registry:   NewRegistry(log),
		sessCtx:    sessCtx,
		sessCancel: sessCancel,
		ready:      make(chan struct{}),
	}
}

// Registry returns the server's live-session registry.
func (s *Server) Registry() *Registry { return s.registry }

// Ready is closed once Start has bound the listener or failed to. After a
// failed listen Addr returns nil.
func (s *Server) Ready() <-chan struct{} { return s.ready }

func (s *Server) markReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

// Addr returns the bound listen address, or nil before Start has bound it.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Start listens and accepts connections until ctx is cancelled, in which
// case it returns nil. An accept failure is fatal: it is logged and returned,
// and no further connections are accepted. Sessions already running are not
// affected by either; see Wait and Shutdown. A Server is started at most
// once; later calls return ErrStarted.
func (s *Server) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrStarted
	}
	defer s.markReady()

	ln := s.cfg.Listener
	if ln == nil {
		var err error
		if ln, err = transport.Listen(s.cfg.Network, s.cfg.Addr, s.cfg.Transport); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()
	s.markReady()

	s.log.Info("listening", "network", s.cfg.Network, "addr", ln.Addr().String(), "source", s.cfg.SourcePath)

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()
	defer ln.Close()

	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Error("accept failed, no longer accepting connections", "error", err)
			return fmt.Errorf("accept: %w", err)
		}

		s.log.Info("connection accepted", "remote", conn.RemoteAddr().String())
		s.serve(conn)
	}
}

func (s *Server) serve(conn transport.Conn) {
	sess := session.New(conn, session.Config{
		ID:         uuid.NewString(),
		SourcePath: s.cfg.SourcePath,
		Opener:     s.cfg.Opener,
		Codec:      s.cfg.Codec,
		Realtime:   s.cfg.Realtime,
		Log:        s.cfg.Log,
	})
	if !s.registry.Add(sess) {
		conn.Close()
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.registry.Remove(sess.ID())
		sess.Run(s.sessCtx)
	}()
}

// Wait blocks until every session started so far has ended.
func (s *Server) Wait() {
	s.wg.Wait()
}

// Shutdown ends all live sessions and waits for them.
func (s *Server) Shutdown() {
	s.sessCancel()
	s.wg.Wait()
}
