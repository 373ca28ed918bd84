package cdc

import (
	"context"
	"sync"
)

// Memory is an in-process transport. Publish fans events out to every
// live subscription whose filters match.
type Memory struct {
	mu   sync.Mutex
	subs map[*memorySub]struct{}
}

type memorySub struct {
	*stream
	ctx     context.Context
	filters []Filter
}

func NewMemory() *Memory {
	return &Memory{subs: make(map[*memorySub]struct{})}
}

func (m *Memory) Subscribe(ctx context.Context, gameID string, filters []Filter) (Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	sub := &memorySub{stream: newStream(cancel), ctx: ctx, filters: filters}

	m.mu.Lock()
	m.subs[sub] = struct{}{}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.subs, sub)
		m.mu.Unlock()
		sub.finish()
	}()
	return sub, nil
}

// Publish delivers ev to matching subscribers, blocking until each has
// accepted it or gone away. The lock is held so a subscription cannot be
// finished while an event is in flight to it.
func (m *Memory) Publish(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for s := range m.subs {
		if matchesAny(s.filters, ev) {
			s.emit(s.ctx, ev)
		}
	}
}

func (m *Memory) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}
