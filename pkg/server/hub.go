package server

import (
	"sync"

	"github.com/haivivi/speakerid/pkg/buffer"
	"github.com/haivivi/speakerid/pkg/flow"
)

// Hub fans flow events out to subscribers and keeps a backlog so a
// subscriber joining late sees recent history first.
type Hub struct {
	mu      sync.Mutex
	backlog *buffer.Ring[flow.Event]
	subs    map[chan flow.Event]struct{}
}

// NewHub creates a Hub retaining the last n events.
func NewHub(n int) *Hub {
	return &Hub{
		backlog: buffer.NewRing[flow.Event](n),
		subs:    make(map[chan flow.Event]struct{}),
	}
}

// Publish records ev and delivers it to every subscriber. A subscriber
// whose queue is full misses the event.
func (h *Hub) Publish(ev flow.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.backlog.Add(ev)
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe returns the backlog and a channel of later events. cancel
// unsubscribes and closes the channel.
func (h *Hub) Subscribe() (backlog []flow.Event, events <-chan flow.Event, cancel func()) {
	ch := make(chan flow.Event, 64)
	h.mu.Lock()
	backlog = h.backlog.Snapshot()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return backlog, ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Recent returns the retained events, oldest first.
func (h *Hub) Recent() []flow.Event {
	return h.backlog.Snapshot()
}
