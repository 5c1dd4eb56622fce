package command

import (
	"context"
	"sync"
)

// Channel is an unbounded single-producer, single-consumer command queue.
// The connection reader pushes; the playback driver pops.
//
// TryPop never blocks: it reports false immediately when the queue is empty.
// Pop blocks until a command is available, the context ends, or the channel is
// closed. There is no timed variant.
type Channel struct {
	mu     sync.Mutex
	queue  []Command
	closed bool
	ready  chan struct{} // capacity 1: "queue may be non-empty"
}

// NewChannel returns an empty, open channel.
func NewChannel() *Channel {
	return &Channel{ready: make(chan struct{}, 1)}
}

// Push appends cmd. It never blocks. Commands pushed after Close are dropped
// and Push reports false.
func (c *Channel) Push(cmd Command) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.queue = append(c.queue, cmd)
	c.mu.Unlock()

	c.signal()
	return true
}

// TryPop removes and returns the oldest command if one is queued.
func (c *Channel) TryPop() (Command, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.popLocked()
}

// Pop removes and returns the oldest command, waiting for one if necessary.
// Commands queued before Close are still delivered; once the queue is drained
// a closed channel returns ErrClosed.
func (c *Channel) Pop(ctx context.Context) (Command, error) {
	for {
		c.mu.Lock()
		cmd, ok := c.popLocked()
		closed := c.closed
		c.mu.Unlock()

		if ok {
			return cmd, nil
		}
		if closed {
			return Command{}, ErrClosed
		}

		select {
		case <-c.ready:
		case <-ctx.Done():
			return Command{}, ctx.Err()
		}
	}
}

// Ready returns a channel that receives when a command may be waiting. It
// lets a consumer that is sleeping for another reason wake early.
func (c *Channel) Ready() <-chan struct{} {
	return c.ready
}

// Len returns the number of queued commands.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Close stops the channel accepting commands and wakes a blocked Pop.
func (c *Channel) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.signal()
}

func (c *Channel) popLocked() (Command, bool) {
	if len(c.queue) == 0 {
		return Command{}, false
	}
	cmd := c.queue[0]
	c.queue[0] = Command{}
	c.queue = c.queue[1:]
	if len(c.queue) > 0 {
		c.signal()
	} else {
		c.drain()
	}
	return cmd, true
}

func (c *Channel) drain() {
	select {
	case <-c.ready:
	default:
	}
}

func (c *Channel) signal() {
	select {
	case c.ready <- struct{}{}:
	default:
	}
}
