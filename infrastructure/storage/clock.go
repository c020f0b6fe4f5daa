package storage

import (
	"sync"
	"time"
)

// clock hands out commit timestamps in milliseconds. Two commits never share
// a stamp and stamps never go backwards, even if the wall clock does.
type clock struct {
	mu   sync.Mutex
	now  func() time.Time
	last int64
}

func newClock(now func() time.Time) *clock {
	return &clock{now: now}
}

func (c *clock) stamp() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ms := c.now().UnixMilli()
	if ms <= c.last {
		ms = c.last + 1
	}
	c.last = ms
	return ms
}

func (c *clock) current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ms := c.now().UnixMilli()
	if ms < c.last {
		return c.last
	}
	return ms
}
