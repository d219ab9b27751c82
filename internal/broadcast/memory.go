package broadcast

import (
	"context"
	"log/slog"
	"sync"
)

// MemoryHub is an in-process broadcaster used in tests and single-node dev
// runs (no AMQP URL configured). Subscriptions never outlive their cancel.
type MemoryHub struct {
	mu   sync.Mutex
	subs map[string]map[int]chan StateChanged
	next int
}

func NewMemoryHub() *MemoryHub {
	return &MemoryHub{subs: make(map[string]map[int]chan StateChanged)}
}

// Subscribe registers a buffered channel on a channel name. The returned
// cancel func removes the subscription; calling it twice is safe.
func (h *MemoryHub) Subscribe(channel string) (<-chan StateChanged, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan StateChanged, 16)
	if h.subs[channel] == nil {
		h.subs[channel] = make(map[int]chan StateChanged)
	}
	id := h.next
	h.next++
	h.subs[channel][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[channel], id)
			close(ch)
		})
	}
	return ch, cancel
}

func (h *MemoryHub) Publish(ctx context.Context, change StateChanged) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, channel := range Channels(change.Order) {
		for _, ch := range h.subs[channel] {
			select {
			case ch <- change:
			default:
				slog.Warn("dropping broadcast for slow subscriber", "channel", channel, "order", change.Order.ID)
			}
		}
	}
	return nil
}
