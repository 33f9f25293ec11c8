// README: In-memory fanout bus for tests and single-node runs.
package fanout

import (
	"context"
	"sync"
)

const subscriberBuffer = 32

type Memory struct {
	mu   sync.Mutex
	subs map[string]map[int]chan Event
	next int
}

func NewMemory() *Memory {
	return &Memory{subs: make(map[string]map[int]chan Event)}
}

func (m *Memory) Publish(_ context.Context, topic string, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs[topic] {
		// Events are hints; a subscriber with a full buffer loses this one
		// and reconciles by reading order state.
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

func (m *Memory) Subscribe(_ context.Context, topic string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	m.mu.Lock()
	if m.subs[topic] == nil {
		m.subs[topic] = make(map[int]chan Event)
	}
	id := m.next
	m.next++
	m.subs[topic][id] = ch
	m.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs[topic], id)
			m.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}
