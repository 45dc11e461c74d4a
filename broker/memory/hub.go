package memorybroker

import (
	"context"
	"sync"

	"github.com/lawnetwork/lawnet/core/access"
)

const defaultQueueSize = 16

// Hub is the in-process access.Broker: a per-subject registry of
// subscriber queues. Suits a single-node deployment; multi-node setups
// use the redis broker instead.
type Hub struct {
	mu        sync.Mutex
	subs      map[string]map[*subscription]struct{}
	queueSize int
	closed    bool
}

var _ access.Broker = (*Hub)(nil)

func NewHub(queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Hub{
		subs:      make(map[string]map[*subscription]struct{}),
		queueSize: queueSize,
	}
}

// Publish pushes the event onto every queue registered for its
// subject. Queues are drained in registration-independent order but
// each queue sees events in publish order, which is all the ordering
// clients rely on. A full queue drops the event; the subscriber's
// confirming read covers the loss.
func (h *Hub) Publish(_ context.Context, ev access.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[ev.Subject] {
		select {
		case sub.ch <- ev:
		default:
		}
	}
	return nil
}

func (h *Hub) Subscribe(_ context.Context, subject string) (access.Subscription, error) {
	sub := &subscription{
		hub:     h,
		subject: subject,
		ch:      make(chan access.Event, h.queueSize),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		sub.once.Do(func() { close(sub.ch) })
		return sub, nil
	}
	if h.subs[subject] == nil {
		h.subs[subject] = make(map[*subscription]struct{})
	}
	h.subs[subject][sub] = struct{}{}
	return sub, nil
}

func (h *Hub) Close() error {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[string]map[*subscription]struct{})
	h.closed = true
	h.mu.Unlock()

	for _, set := range subs {
		for sub := range set {
			sub.once.Do(func() { close(sub.ch) })
		}
	}
	return nil
}

// SubscriberCount reports how many sessions are registered for a
// subject; used by tests and the debug endpoint.
func (h *Hub) SubscriberCount(subject string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[subject])
}

type subscription struct {
	hub     *Hub
	subject string
	ch      chan access.Event
	once    sync.Once
}

var _ access.Subscription = (*subscription)(nil)

func (s *subscription) Events() <-chan access.Event { return s.ch }

func (s *subscription) Close() error {
	s.hub.mu.Lock()
	if set, ok := s.hub.subs[s.subject]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(s.hub.subs, s.subject)
		}
	}
	s.hub.mu.Unlock()

	s.once.Do(func() { close(s.ch) })
	return nil
}
