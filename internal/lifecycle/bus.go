package lifecycle

import "sync"

// Bus is an in-process Source implementation for hosts that deliver
// lifecycle signals programmatically.
type Bus struct {
	mu   sync.Mutex
	subs []func(Signal)
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a signal handler.
func (b *Bus) Subscribe(fn func(Signal)) {
	b.mu.Lock()
	b.subs = append(b.subs, fn)
	b.mu.Unlock()
}

// Publish delivers one signal to every subscriber, in subscription order.
func (b *Bus) Publish(sig Signal) {
	b.mu.Lock()
	subs := make([]func(Signal), len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, fn := range subs {
		fn(sig)
	}
}
