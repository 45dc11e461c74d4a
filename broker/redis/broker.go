package redisbroker

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/lawnetwork/lawnet/core/access"
)

const defaultQueueSize = 16

// Broker is the redis-backed access.Broker for multi-node deployments:
// every API node subscribes to the subject's channel so an approval
// handled on one node reaches sessions streaming from another.
type Broker struct {
	rdb       *redis.Client
	keyNS     string
	queueSize int
}

var _ access.Broker = (*Broker)(nil)

func NewBroker(rdb *redis.Client, keyPrefix string, queueSize int) *Broker {
	if keyPrefix == "" {
		keyPrefix = "lawnet:access:events:"
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Broker{rdb: rdb, keyNS: keyPrefix, queueSize: queueSize}
}

func (b *Broker) channel(subject string) string { return b.keyNS + subject }

func (b *Broker) Publish(ctx context.Context, ev access.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel(ev.Subject), data).Err()
}

func (b *Broker) Subscribe(ctx context.Context, subject string) (access.Subscription, error) {
	ps := b.rdb.Subscribe(ctx, b.channel(subject))
	// force the subscription onto the wire before returning so no
	// event published after Subscribe can be missed
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	sub := &subscription{ps: ps, ch: make(chan access.Event, b.queueSize)}
	go sub.run()
	return sub, nil
}

// Close is a no-op: the redis client is owned by the caller.
func (b *Broker) Close() error { return nil }

type subscription struct {
	ps *redis.PubSub
	ch chan access.Event
}

var _ access.Subscription = (*subscription)(nil)

func (s *subscription) run() {
	defer close(s.ch)
	for msg := range s.ps.Channel() {
		var ev access.Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			continue // malformed payloads are dropped, never fatal
		}
		select {
		case s.ch <- ev:
		default: // slow consumer; confirming reads cover the drop
		}
	}
}

func (s *subscription) Events() <-chan access.Event { return s.ch }

func (s *subscription) Close() error { return s.ps.Close() }
