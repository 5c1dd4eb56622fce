package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zsiec/playback/internal/codec"
	"github.com/zsiec/playback/internal/framing"
	"github.com/zsiec/playback/internal/media"
	"github.com/zsiec/playback/internal/source"
	"github.com/zsiec/playback/internal/transport"
)

// threeFrames is 120ms at 25 fps: frames at 0, 40 and 80 ms.
const threeFrames = "testsrc:?duration=120ms&fps=25&size=32x18"

// positionCodec encodes only the frame position so tests can check ordering.
type positionCodec struct{}

func (positionCodec) Encode(f *media.Frame) ([]byte, error) {
	return []byte(strconv.FormatInt(f.PositionMs, 10)), nil
}

func (positionCodec) Decode(data []byte) (*media.Frame, error) {
	ms, err := strconv.ParseInt(string(data), 10, 64)
	return &media.Frame{PositionMs: ms}, err
}

func startServer(t *testing.T, cfg Config) (*Server, context.CancelFunc, <-chan error) {
	t.Helper()
	if cfg.Addr == "" && cfg.Listener == nil {
		cfg.Addr = "127.0.0.1:0"
	}
	if cfg.Opener == nil {
		cfg.Opener = source.Opener{}
	}
	if cfg.Codec == nil {
		cfg.Codec = positionCodec{}
	}
	srv := New(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	select {
	case <-srv.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("server did not become ready")
	}
	t.Cleanup(func() {
		cancel()
		srv.Shutdown()
	})
	return srv, cancel, errCh
}

func dial(t *testing.T, srv *Server) net.Conn {
	t.Helper()
	c, err := net.DialTimeout("tcp4", srv.Addr().String(), 5*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func readPositions(c net.Conn) ([]int64, error) {
	c.SetReadDeadline(time.Now().Add(5 * time.Second))
	var out []int64
	for {
		payload, err := framing.Receive(c)
		if err != nil {
			return out, err
		}
		ms, err := strconv.ParseInt(string(payload), 10, 64)
		if err != nil {
			return out, fmt.Errorf("bad payload %q: %w", payload, err)
		}
		out = append(out, ms)
	}
}

func equalPositions(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestServerStreamsSourceThenEndOfStream(t *testing.T) {
	t.Parallel()
	srv, _, _ := startServer(t, Config{SourcePath: threeFrames})
	c := dial(t, srv)

	if _, err := c.Write([]byte("play")); err != nil {
		t.Fatal(err)
	}
	got, err := readPositions(c)
	if !errors.Is(err, framing.ErrConnectionClosed) {
		t.Fatalf("stream end: got %v, want ErrConnectionClosed", err)
	}
	if want := []int64{0, 40, 80}; !equalPositions(got, want) {
		t.Errorf("frames: got %v, want %v", got, want)
	}

	waitRegistryEmpty(t, srv)
}

func TestServerJPEGFrames(t *testing.T) {
	t.Parallel()
	jpeg := codec.NewJPEG(75, 0)
	srv, _, _ := startServer(t, Config{SourcePath: threeFrames, Codec: jpeg})
	c := dial(t, srv)

	if _, err := c.Write([]byte("PLAY \n")); err != nil {
		t.Fatal(err)
	}
	c.SetReadDeadline(time.Now().Add(5 * time.Second))
	for i := 0; i < 3; i++ {
		payload, err := framing.Receive(c)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		f, err := jpeg.Decode(payload)
		if err != nil {
			t.Fatalf("frame %d decode: %v", i, err)
		}
		if b := f.Image.Bounds(); b.Dx() != 32 || b.Dy() != 18 {
			t.Errorf("frame %d bounds: got %v", i, b)
		}
	}
}

func TestServerPauseSeekPlay(t *testing.T) {
	t.Parallel()
	srv, _, _ := startServer(t, Config{SourcePath: "testsrc:?duration=10s&fps=25&size=16x16"})
	c := dial(t, srv)

	for _, cmd := range []string{"pause\n", "seek 2000\n", "play\n"} {
		if _, err := c.Write([]byte(cmd)); err != nil {
			t.Fatal(err)
		}
	}

	c.SetReadDeadline(time.Now().Add(5 * time.Second))
	for _, want := range []int64{2000, 2040, 2080} {
		payload, err := framing.Receive(c)
		if err != nil {
			t.Fatal(err)
		}
		if got, _ := strconv.ParseInt(string(payload), 10, 64); got != want {
			t.Errorf("frame: got %d, want %d", got, want)
		}
	}
}

func TestServerBadSeekKeepsConnection(t *testing.T) {
	t.Parallel()
	srv, _, _ := startServer(t, Config{SourcePath: threeFrames})
	c := dial(t, srv)

	if _, err := c.Write([]byte("seek abc\n")); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "rejected command", func() bool {
		list := srv.Registry().List()
		return len(list) == 1 && list[0].CommandsRejected == 1
	})
	if list := srv.Registry().List(); list[0].State != "idle" {
		t.Errorf("state after bad seek: got %q, want idle", list[0].State)
	}

	if _, err := c.Write([]byte("play\n")); err != nil {
		t.Fatal(err)
	}
	got, err := readPositions(c)
	if !errors.Is(err, framing.ErrConnectionClosed) {
		t.Fatalf("stream end: got %v", err)
	}
	if want := []int64{0, 40, 80}; !equalPositions(got, want) {
		t.Errorf("frames: got %v, want %v", got, want)
	}
}

func TestServerConcurrentSessionsAreIndependent(t *testing.T) {
	t.Parallel()
	var opens atomic.Int32
	opener := media.OpenerFunc(func(path string) (media.Source, error) {
		opens.Add(1)
		return source.Open(path)
	})
	srv, _, _ := startServer(t, Config{SourcePath: threeFrames, Opener: opener})

	const viewers = 2
	conns := make([]net.Conn, viewers)
	for i := range conns {
		conns[i] = dial(t, srv)
	}
	waitFor(t, "sessions", func() bool { return srv.Registry().Len() == viewers })

	var wg sync.WaitGroup
	results := make([][]int64, viewers)
	errs := make([]error, viewers)
	for i, c := range conns {
		wg.Add(1)
		go func(i int, c net.Conn) {
			defer wg.Done()
			if _, err := c.Write([]byte("play")); err != nil {
				errs[i] = err
				return
			}
			results[i], errs[i] = readPositions(c)
		}(i, c)
	}
	wg.Wait()

	for i := range conns {
		if !errors.Is(errs[i], framing.ErrConnectionClosed) {
			t.Errorf("viewer %d end: got %v, want ErrConnectionClosed", i, errs[i])
		}
		if want := []int64{0, 40, 80}; !equalPositions(results[i], want) {
			t.Errorf("viewer %d frames: got %v, want %v", i, results[i], want)
		}
	}
	if got := opens.Load(); got != viewers {
		t.Errorf("sources opened: got %d, want %d", got, viewers)
	}
}

func TestServerStopsOnContextCancel(t *testing.T) {
	t.Parallel()
	_, cancel, errCh := startServer(t, Config{SourcePath: threeFrames})
	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Start: got %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestServerAcceptFailureIsFatal(t *testing.T) {
	t.Parallel()
	serverConn, client := net.Pipe()
	defer client.Close()
	ln := &scriptedListener{conns: []transport.Conn{serverConn}, err: errors.New("too many open files")}

	srv, _, errCh := startServer(t, Config{Listener: ln, SourcePath: threeFrames})

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("Start: got nil, want accept error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after accept failure")
	}

	// The session accepted before the failure keeps working.
	if _, err := client.Write([]byte("play")); err != nil {
		t.Fatal(err)
	}
	for _, want := range []int64{0, 40, 80} {
		payload, err := framing.Receive(client)
		if err != nil {
			t.Fatalf("frame %d: %v", want, err)
		}
		if got, _ := strconv.ParseInt(string(payload), 10, 64); got != want {
			t.Errorf("frame: got %d, want %d", got, want)
		}
	}

	done := make(chan struct{})
	go func() {
		srv.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not return after the session ended")
	}
}

func TestServerListenError(t *testing.T) {
	t.Parallel()
	srv := New(Config{Network: "carrier-pigeon", Addr: "127.0.0.1:0"})
	if err := srv.Start(context.Background()); !errors.Is(err, transport.ErrUnknownNetwork) {
		t.Errorf("got %v, want ErrUnknownNetwork", err)
	}

	select {
	case <-srv.Ready():
	default:
		t.Fatal("Ready not closed after listen failure")
	}
	if addr := srv.Addr(); addr != nil {
		t.Errorf("Addr after listen failure: got %v, want nil", addr)
	}
	if err := srv.Start(context.Background()); !errors.Is(err, ErrStarted) {
		t.Errorf("second Start: got %v, want ErrStarted", err)
	}
}

func TestServerStartTwice(t *testing.T) {
	t.Parallel()
	srv, _, _ := startServer(t, Config{SourcePath: threeFrames})
	if err := srv.Start(context.Background()); !errors.Is(err, ErrStarted) {
		t.Errorf("second Start: got %v, want ErrStarted", err)
	}
	if srv.Addr() == nil {
		t.Error("Addr cleared by second Start")
	}
}

// scriptedListener hands out conns in order, then fails.
type scriptedListener struct {
	mu    sync.Mutex
	conns []transport.Conn
	err   error
}

func (l *scriptedListener) Accept(context.Context) (transport.Conn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.conns) == 0 {
		return nil, l.err
	}
	c := l.conns[0]
	l.conns = l.conns[1:]
	return c, nil
}

func (l *scriptedListener) Addr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)}
}

func (l *scriptedListener) Close() error { return nil }

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func waitRegistryEmpty(t *testing.T, srv *Server) {
	t.Helper()
	waitFor(t, "sessions to end", func() bool { return srv.Registry().Len() == 0 })
}
