package source

import "math"

// clock maps frame indices to millisecond offsets for fixed-rate sources.
type clock struct {
	fps   float64
	count int
	index int
}

func (c *clock) at(i int) int64 {
	return int64(math.Round(float64(i) * 1000 / c.fps))
}

func (c *clock) position() int64 { return c.at(c.index) }

func (c *clock) duration() int64 { return c.at(c.count) }

func (c *clock) done() bool { return c.index >= c.count }

// seek moves to the last frame boundary at or before ms.
func (c *clock) seek(ms int64) {
	if ms <= 0 {
		c.index = 0
		return
	}
	if ms >= c.duration() {
		c.index = c.count
		return
	}
	idx := int(math.Floor(float64(ms)*c.fps/1000 + 1e-9))
	c.index = min(idx, c.count)
}
