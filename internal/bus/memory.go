package bus

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Hub is an in-process message exchange. Each Connect returns a separate bus
// instance, so several stations and towers can share one process.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*memorySubscription]struct{}
	closed bool
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[*memorySubscription]struct{}),
	}
}

// Connect returns a new bus instance attached to the hub
func (h *Hub) Connect() *Memory {
	return &Memory{
		hub:      h,
		instance: uuid.New(),
	}
}

// Close detaches all subscriptions
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	clear(h.subs)
}

// Memory is a Bus instance of a Hub. Delivery is synchronous on the publisher's
// goroutine and encoded the same way as on the wire.
type Memory struct {
	hub      *Hub
	instance uuid.UUID

	mu     sync.Mutex
	closed bool
	own    []*memorySubscription
}

type memorySubscription struct {
	hub     *Hub
	subject string
	bus     *Memory
	handler Handler
}

func (s *memorySubscription) Unsubscribe() error {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()

	delete(s.hub.subs[s.subject], s)
	return nil
}

func (m *Memory) Instance() uuid.UUID {
	return m.instance
}

func (m *Memory) Publish(ctx context.Context, topic Topic, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	if m.isClosed() {
		return ErrClosed
	}

	data, err := encode(stamp(msg, m.instance))
	if err != nil {
		return err
	}

	subject := Subject(topic, msg.Station)

	m.hub.mu.RLock()
	if m.hub.closed {
		m.hub.mu.RUnlock()
		return ErrClosed
	}
	targets := make([]*memorySubscription, 0, len(m.hub.subs[subject]))
	for sub := range m.hub.subs[subject] {
		targets = append(targets, sub)
	}
	m.hub.mu.RUnlock()

	for _, sub := range targets {
		if sub.bus.instance == m.instance || sub.bus.isClosed() {
			continue // own message
		}

		decoded, err := decode(data)
		if err != nil {
			return err
		}
		sub.handler(decoded)
	}

	return nil
}

func (m *Memory) Subscribe(topic Topic, station string, h Handler) (Subscription, error) {
	if m.isClosed() {
		return nil, ErrClosed
	}

	sub := memorySubscription{
		hub:     m.hub,
		subject: Subject(topic, station),
		bus:     m,
		handler: h,
	}

	m.hub.mu.Lock()
	if m.hub.closed {
		m.hub.mu.Unlock()
		return nil, ErrClosed
	}
	if m.hub.subs[sub.subject] == nil {
		m.hub.subs[sub.subject] = make(map[*memorySubscription]struct{})
	}
	m.hub.subs[sub.subject][&sub] = struct{}{}
	m.hub.mu.Unlock()

	m.mu.Lock()
	m.own = append(m.own, &sub)
	m.mu.Unlock()

	return &sub, nil
}

// Close removes the subscriptions of this instance
func (m *Memory) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	own := m.own
	m.own = nil
	m.mu.Unlock()

	for _, sub := range own {
		_ = sub.Unsubscribe()
	}
	return nil
}

func (m *Memory) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.closed
}
