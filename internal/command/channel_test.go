package command

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestChannelFIFO(t *testing.T) {
	t.Parallel()
	c := NewChannel()

	want := []Command{{Kind: Play}, {Kind: Seek, Millis: 10}, {Kind: Pause}}
	for _, cmd := range want {
		if !c.Push(cmd) {
			t.Fatalf("Push(%v) rejected", cmd)
		}
	}
	if c.Len() != 3 {
		t.Fatalf("Len: got %d, want 3", c.Len())
	}

	for i, w := range want {
		got, ok := c.TryPop()
		if !ok {
			t.Fatalf("TryPop %d: empty", i)
		}
		if got != w {
			t.Errorf("TryPop %d: got %v, want %v", i, got, w)
		}
	}
}

func TestChannelTryPopEmpty(t *testing.T) {
	t.Parallel()
	c := NewChannel()
	if _, ok := c.TryPop(); ok {
		t.Error("TryPop on empty channel reported a command")
	}
}

func TestChannelPopBlocksUntilPush(t *testing.T) {
	t.Parallel()
	c := NewChannel()

	got := make(chan Command, 1)
	go func() {
		cmd, err := c.Pop(context.Background())
		if err != nil {
			t.Errorf("Pop: %v", err)
			return
		}
		got <- cmd
	}()

	select {
	case cmd := <-got:
		t.Fatalf("Pop returned %v before any Push", cmd)
	case <-time.After(50 * time.Millisecond):
	}

	c.Push(Command{Kind: Play})
	select {
	case cmd := <-got:
		if cmd.Kind != Play {
			t.Errorf("got %v, want play", cmd)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Pop did not wake after Push")
	}
}

func TestChannelPopContextCancel(t *testing.T) {
	t.Parallel()
	c := NewChannel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.Pop(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

func TestChannelClose(t *testing.T) {
	t.Parallel()
	c := NewChannel()
	c.Push(Command{Kind: Stop})
	c.Close()

	if c.Push(Command{Kind: Play}) {
		t.Error("Push after Close should be rejected")
	}

	cmd, err := c.Pop(context.Background())
	if err != nil {
		t.Fatalf("queued command lost on close: %v", err)
	}
	if cmd.Kind != Stop {
		t.Errorf("got %v, want stop", cmd)
	}

	if _, err := c.Pop(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("got %v, want ErrClosed", err)
	}
}

func TestChannelCloseWakesPop(t *testing.T) {
	t.Parallel()
	c := NewChannel()
	errCh := make(chan error, 1)
	go func() {
		_, err := c.Pop(context.Background())
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	c.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("got %v, want ErrClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not wake Pop")
	}
}
