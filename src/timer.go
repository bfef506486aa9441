package storyweaver

import (
	"sync"
	"time"
)

// Countdown is the cosmetic reading timer shown next to a story. It counts
// down once per second and reports ticks through a callback. Story flow
// never depends on it; when it hits zero nothing else happens.
type Countdown struct {
	mu        sync.Mutex
	remaining time.Duration
	onTick    func(remaining time.Duration)
	stop      chan struct{}
	once      sync.Once
}

func NewCountdown(d time.Duration, onTick func(remaining time.Duration)) *Countdown {
	return &Countdown{
		remaining: d,
		onTick:    onTick,
		stop:      make(chan struct{}),
	}
}

// Start launches the ticking goroutine. The goroutine exits at zero or on
// Stop, whichever comes first.
func (c *Countdown) Start() {
	go func() {
		t := time.NewTicker(time.Second)
		defer t.Stop()
		for {
			select {
			case <-c.stop:
				return
			case <-t.C:
				c.mu.Lock()
				c.remaining -= time.Second
				rem := c.remaining
				c.mu.Unlock()
				if c.onTick != nil {
					c.onTick(rem)
				}
				if rem <= 0 {
					return
				}
			}
		}
	}()
}

// Stop halts the countdown. Safe to call more than once.
func (c *Countdown) Stop() {
	c.once.Do(func() { close(c.stop) })
}

// Remaining reports the time left on the clock.
func (c *Countdown) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}
