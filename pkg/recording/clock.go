package recording

import (
	"sync"
	"time"
)

// Clock creates the tickers that drive elapsed time.
type Clock interface {
	NewTicker(d time.Duration) Ticker
}

// Ticker delivers tick events until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// SystemClock is the Clock backed by time.Ticker.
var SystemClock Clock = systemClock{}

type systemClock struct{}

func (systemClock) NewTicker(d time.Duration) Ticker {
	return systemTicker{time.NewTicker(d)}
}

type systemTicker struct {
	t *time.Ticker
}

func (t systemTicker) C() <-chan time.Time { return t.t.C }
func (t systemTicker) Stop()               { t.t.Stop() }

// ManualClock is a Clock whose tickers only fire when Tick is called.
// It makes recordings deterministic in tests and simulations.
type ManualClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*manualTicker
}

// NewManualClock creates a ManualClock starting at the zero time.
func NewManualClock() *ManualClock {
	return &ManualClock{}
}

// NewTicker implements Clock.
func (c *ManualClock) NewTicker(time.Duration) Ticker {
	t := &manualTicker{
		c:    make(chan time.Time),
		done: make(chan struct{}),
	}
	c.mu.Lock()
	c.tickers = append(c.tickers, t)
	c.mu.Unlock()
	return t
}

// Tick fires every live ticker n times. Each delivery blocks until the
// receiver takes it or the ticker is stopped.
func (c *ManualClock) Tick(n int) {
	for range n {
		c.mu.Lock()
		c.now = c.now.Add(time.Millisecond)
		now := c.now
		live := c.tickers[:0]
		for _, t := range c.tickers {
			if !t.stopped() {
				live = append(live, t)
			}
		}
		c.tickers = live
		tickers := append([]*manualTicker(nil), live...)
		c.mu.Unlock()

		for _, t := range tickers {
			select {
			case t.c <- now:
			case <-t.done:
			}
		}
	}
}

type manualTicker struct {
	c    chan time.Time
	done chan struct{}
	once sync.Once
}

func (t *manualTicker) C() <-chan time.Time { return t.c }

func (t *manualTicker) Stop() {
	t.once.Do(func() { close(t.done) })
}

func (t *manualTicker) stopped() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}
