package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/playback/internal/command"
	"github.com/zsiec/playback/internal/framing"
	"github.com/zsiec/playback/internal/media"
	"github.com/zsiec/playback/internal/transport"
)

// readChunkSize is the size of one command read from the connection.
const readChunkSize = 1024

// maxFrameDelay caps real-time pacing so a gap in source timestamps cannot
// stall the driver.
const maxFrameDelay = time.Second

// ErrStopped is returned by Handle once the session has reached Stopped.
var ErrStopped = errors.New("session: stopped")

// Config holds the parameters for creating a session.
type Config struct {
	ID         string
	SourcePath string
	Opener     media.Opener
	Codec      media.Codec

	// Realtime paces frames by their timestamps instead of sending them as
	// fast as the connection accepts.
	Realtime bool

	// Log is the parent logger. If nil, slog.Default() is used.
	Log *slog.Logger
}

// Snapshot is a point-in-time view of a session for logging and listing.
type Snapshot struct {
	ID               string    `json:"id"`
	RemoteAddr       string    `json:"remoteAddr"`
	State            string    `json:"state"`
	PositionMs       int64     `json:"positionMs"`
	DurationMs       int64     `json:"durationMs"`
	FramesSent       int64     `json:"framesSent"`
	BytesSent        int64     `json:"bytesSent"`
	CommandsRejected int64     `json:"commandsRejected"`
	StartedAt        time.Time `json:"startedAt"`
	UptimeMs         int64     `json:"uptimeMs"`
}

// Session is the playback slot of one viewer connection.
type Session struct {
	id        string
	path      string
	log       *slog.Logger
	conn      transport.Conn
	opener    media.Opener
	codec     media.Codec
	realtime  bool
	commands  *command.Channel
	startedAt time.Time

	state atomic.Int32

	// mu guards the source and position. Nothing else may be done while
	// holding it; in particular no network I/O.
	mu         sync.Mutex
	source     media.Source
	positionMs int64
	released   bool

	framesSent       atomic.Int64
	bytesSent        atomic.Int64
	commandsRejected atomic.Int64
}

// New creates an idle session over conn. The source is not opened until it
// is first needed.
func New(conn transport.Conn, cfg Config) *Session {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	remote := ""
	if addr := conn.RemoteAddr(); addr != nil {
		remote = addr.String()
	}
	return &Session{
		id:        cfg.ID,
		path:      cfg.SourcePath,
		log:       log.With("component", "session", "session", cfg.ID, "remote", remote),
		conn:      conn,
		opener:    cfg.Opener,
		codec:     cfg.Codec,
		realtime:  cfg.Realtime,
		commands:  command.NewChannel(),
		startedAt: time.Now(),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current playback state.
func (s *Session) State() State { return State(s.state.Load()) }

// PositionMs returns the offset of the next frame to be read. Seek and
// Rewind targets are reported as the source quantised them, which for
// fixed-rate sources is the frame boundary at or before the target.
func (s *Session) PositionMs() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positionMs
}

// Snapshot returns the session's current state and counters.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	pos := s.positionMs
	var dur int64
	if s.source != nil {
		dur = s.source.DurationMs()
	}
	s.mu.Unlock()

	remote := ""
	if addr := s.conn.RemoteAddr(); addr != nil {
		remote = addr.String()
	}
	return Snapshot{
		ID:               s.id,
		RemoteAddr:       remote,
		State:            s.State().String(),
		PositionMs:       pos,
		DurationMs:       dur,
		FramesSent:       s.framesSent.Load(),
		BytesSent:        s.bytesSent.Load(),
		CommandsRejected: s.commandsRejected.Load(),
		StartedAt:        s.startedAt,
		UptimeMs:         time.Since(s.startedAt).Milliseconds(),
	}
}

// Run starts the command reader and the playback driver and blocks until
// both have returned. When either ends, for a Stop, end of source, a peer
// close, a network error or ctx cancellation, the connection is closed so the
// other ends too. On return the source is released and the state is Stopped.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Closing the connection is what unblocks a reader parked in Read.
	stopClose := context.AfterFunc(ctx, func() { s.conn.Close() })
	defer stopClose()

	s.log.Info("session started")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return s.readCommands(gctx)
	})
	g.Go(func() error {
		defer cancel()
		return s.drive(gctx)
	})
	err := g.Wait()

	s.commands.Close()
	s.release()
	s.setState(Stopped)
	s.conn.Close()

	snap := s.Snapshot()
	attrs := []any{
		"frames", snap.FramesSent, "bytes", snap.BytesSent,
		"position_ms", snap.PositionMs, "rejected", snap.CommandsRejected,
		"uptime_ms", snap.UptimeMs,
	}
	if err != nil {
		s.log.Warn("session ended with error", append(attrs, "error", err)...)
	} else {
		s.log.Info("session closed", attrs...)
	}
	return err
}

// Handle applies one parsed command. Seek and Rewind take effect
// immediately under the session lock and report rejections to the caller;
// Play, Pause and Stop are queued for the playback driver.
func (s *Session) Handle(cmd command.Command) error {
	if s.State() == Stopped {
		return ErrStopped
	}
	switch cmd.Kind {
	case command.Seek:
		return s.seek(cmd)
	case command.Rewind:
		return s.rewind(cmd)
	case command.Play, command.Pause, command.Stop:
		if !s.commands.Push(cmd) {
			return ErrStopped
		}
		return nil
	default:
		return &command.Error{Text: cmd.String(), Err: command.ErrUnknown}
	}
}

func (s *Session) readCommands(ctx context.Context) error {
	buf := make([]byte, readChunkSize)
	var lines command.Splitter
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			for _, text := range lines.Feed(buf[:n]) {
				if done := s.handleText(text); done {
					return nil
				}
			}
		}
		if err != nil {
			if ctx.Err() != nil || peerClosed(err) {
				return nil
			}
			return &framing.ConnectionError{Op: "read", Err: err}
		}
	}
}

// handleText parses and applies one command, reporting whether the reader
// should stop.
func (s *Session) handleText(text string) bool {
	if s.State() == Stopped {
		return true
	}

	cmd, err := command.Parse(text)
	if err != nil {
		s.commandsRejected.Add(1)
		s.log.Warn("rejected command", "text", text, "error", err)
		return false
	}
	s.log.Debug("command", "command", cmd.String())

	if err := s.Handle(cmd); err != nil {
		if errors.Is(err, ErrStopped) {
			return true
		}
		s.commandsRejected.Add(1)
		s.log.Warn("rejected command", "command", cmd.String(), "error", err)
		return false
	}
	return cmd.Kind == command.Stop
}

func (s *Session) drive(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		switch s.State() {
		case Stopped:
			return nil

		case Playing:
			// Commands pre-empt the next frame.
			if cmd, ok := s.commands.TryPop(); ok {
				if s.apply(cmd) {
					return nil
				}
				continue
			}

			frame, next, err := s.readFrame()
			if errors.Is(err, io.EOF) {
				s.log.Info("end of source", "position_ms", next)
				s.finish()
				return nil
			}
			if err != nil {
				s.log.Error("source read failed", "error", err)
				s.finish()
				return err
			}

			payload, err := s.codec.Encode(frame)
			if err != nil {
				s.log.Warn("frame encode failed, skipping", "position_ms", frame.PositionMs, "error", err)
				continue
			}
			if err := framing.Send(s.conn, payload); err != nil {
				if ctx.Err() != nil || peerClosed(err) {
					s.log.Debug("viewer went away", "error", err)
					return nil
				}
				return err
			}
			s.framesSent.Add(1)
			s.bytesSent.Add(int64(len(payload)))

			if s.realtime {
				s.pace(ctx, next-frame.PositionMs)
			}

		default:
			// Idle or Paused: the only suspension point is waiting for
			// the next command.
			cmd, err := s.commands.Pop(ctx)
			if err != nil {
				return nil
			}
			if s.apply(cmd) {
				return nil
			}
		}
	}
}

// apply performs a queued state transition and reports whether the driver
// should exit.
func (s *Session) apply(cmd command.Command) bool {
	switch cmd.Kind {
	case command.Play:
		if s.State() == Playing {
			return false
		}
		s.mu.Lock()
		err := s.openLocked()
		pos := s.positionMs
		s.mu.Unlock()
		if err != nil {
			s.log.Error("play failed", "state", s.State().String(), "error", err)
			return false
		}
		if s.setState(Playing) {
			s.log.Info("playing", "position_ms", pos)
		}
	case command.Pause:
		if s.setState(Paused) {
			s.log.Info("paused", "position_ms", s.PositionMs())
		}
	case command.Stop:
		s.setState(Stopped)
		s.release()
		s.log.Info("stopped")
		return true
	}
	return false
}

// finish ends playback from the driver side: the viewer sees end of stream
// while the session winds down.
func (s *Session) finish() {
	s.setState(Stopped)
	s.commands.Close()
	s.release()
	if err := transport.CloseWrite(s.conn); err != nil {
		s.log.Debug("half-close failed", "error", err)
	}
}

func (s *Session) readFrame() (*media.Frame, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.openLocked(); err != nil {
		return nil, s.positionMs, err
	}
	frame, err := s.source.NextFrame()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, s.positionMs, io.EOF
		}
		return nil, s.positionMs, s.sourceError("read", err)
	}
	s.positionMs = s.source.PositionMs()
	return frame, s.positionMs, nil
}

func (s *Session) seek(cmd command.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.openLocked(); err != nil {
		return err
	}
	if cmd.Millis < 0 || cmd.Millis > s.source.DurationMs() {
		return &command.Error{Text: cmd.String(), Err: command.ErrOutOfRange}
	}
	if err := s.source.SetPositionMs(cmd.Millis); err != nil {
		return s.sourceError("seek", err)
	}
	s.positionMs = s.source.PositionMs()
	return nil
}

func (s *Session) rewind(cmd command.Command) error {
	if cmd.Millis < 0 {
		return &command.Error{Text: cmd.String(), Err: command.ErrOutOfRange}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.openLocked(); err != nil {
		return err
	}
	target := max(0, s.positionMs-cmd.Millis)
	if err := s.source.SetPositionMs(target); err != nil {
		return s.sourceError("seek", err)
	}
	s.positionMs = s.source.PositionMs()
	return nil
}

// openLocked opens the source on first use. s.mu must be held.
func (s *Session) openLocked() error {
	if s.source != nil {
		return nil
	}
	if s.released {
		return ErrStopped
	}
	if s.opener == nil {
		return &media.SourceError{Path: s.path, Op: "open", Err: errors.New("no opener configured")}
	}

	src, err := s.opener.Open(s.path)
	if err != nil {
		return s.sourceError("open", err)
	}
	s.source = src
	s.positionMs = src.PositionMs()
	s.log.Debug("source opened", "path", s.path, "duration_ms", src.DurationMs())
	return nil
}

func (s *Session) sourceError(op string, err error) error {
	var se *media.SourceError
	if errors.As(err, &se) {
		return err
	}
	return &media.SourceError{Path: s.path, Op: op, Err: err}
}

func (s *Session) release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.released = true
	if s.source == nil {
		return
	}
	if err := s.source.Close(); err != nil {
		s.log.Debug("source close failed", "error", err)
	}
	s.source = nil
}

// setState moves to st unless the session is already Stopped. It reports
// whether the state changed.
func (s *Session) setState(st State) bool {
	for {
		cur := State(s.state.Load())
		if cur == st || cur == Stopped {
			return false
		}
		if s.state.CompareAndSwap(int32(cur), int32(st)) {
			return true
		}
	}
}

// pace waits for the gap between this frame and the next, waking early for
// a queued command or cancellation.
func (s *Session) pace(ctx context.Context, gapMs int64) {
	if gapMs <= 0 {
		return
	}
	d := min(time.Duration(gapMs)*time.Millisecond, maxFrameDelay)
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	case <-s.commands.Ready():
	}
}

// peerClosed reports whether err means the viewer closed its end of the
// connection, as opposed to a transport failure.
func peerClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET)
}
