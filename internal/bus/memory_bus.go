package bus

import (
	"context"
	"sync"
)

// memoryBus is an in-process Bus with the same loss semantics as the redis
// one: no subscriber at publish time means the message is dropped. Used for
// tests and single-process local runs.
type memoryBus struct {
	mu   sync.RWMutex
	subs map[string][]func(m DispatchMessage)
}

func NewMemoryBus() Bus {
	return &memoryBus{subs: map[string][]func(m DispatchMessage){}}
}

func (b *memoryBus) Publish(ctx context.Context, channel string, msg DispatchMessage) error {
	b.mu.RLock()
	handlers := make([]func(m DispatchMessage), len(b.subs[channel]))
	copy(handlers, b.subs[channel])
	b.mu.RUnlock()
	for _, h := range handlers {
		h(msg)
	}
	return nil
}

func (b *memoryBus) Subscribe(ctx context.Context, channel string, onMsg func(m DispatchMessage)) error {
	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], onMsg)
	b.mu.Unlock()
	return nil
}

func (b *memoryBus) Close() error {
	b.mu.Lock()
	b.subs = map[string][]func(m DispatchMessage){}
	b.mu.Unlock()
	return nil
}
