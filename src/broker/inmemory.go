package broker

import (
	"context"
	"sync"
	"time"
)

const subscriberBuffer = 100

type subscription struct {
	topic string
	ch    chan Message

	// stopped is closed before the subscription takes the broker lock to
	// unsubscribe, releasing a publisher blocked on a full ch.
	stopped  chan struct{}
	stopOnce sync.Once
}

func (s *subscription) stop() {
	s.stopOnce.Do(func() { close(s.stopped) })
}

// InMemoryBroker fans every published message out to all subscribers of
// the topic. Each topic keeps its own offset counter.
type InMemoryBroker struct {
	mu      sync.RWMutex
	subs    map[*subscription]struct{}
	offsets map[string]int64
	closed  bool

	done      chan struct{}
	closeOnce sync.Once
}

// NewInMemoryBroker creates a new InMemoryBroker instance.
func NewInMemoryBroker() *InMemoryBroker {
	return &InMemoryBroker{
		subs:    make(map[*subscription]struct{}),
		offsets: make(map[string]int64),
		done:    make(chan struct{}),
	}
}

// Publish delivers the message to every current subscriber of topic. It
// blocks while a subscriber's buffer is full, until ctx is done or that
// subscriber goes away.
func (b *InMemoryBroker) Publish(ctx context.Context, topic string, key string, value []byte) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	offset := b.offsets[topic]
	b.offsets[topic]++
	b.mu.Unlock()

	msg := Message{
		Topic:     topic,
		Key:       key,
		Value:     value,
		Offset:    offset,
		Timestamp: time.Now().UnixMilli(),
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		if sub.topic != topic {
			continue
		}
		select {
		case sub.ch <- msg:
		case <-sub.stopped:
		case <-ctx.Done():
			return ctx.Err()
		case <-b.done:
			return ErrClosed
		}
	}
	return nil
}

// Subscribe registers a new subscriber. groupID is ignored.
func (b *InMemoryBroker) Subscribe(ctx context.Context, topic string, groupID string) (<-chan Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	sub := &subscription{
		topic:   topic,
		ch:      make(chan Message, subscriberBuffer),
		stopped: make(chan struct{}),
	}
	b.subs[sub] = struct{}{}

	go func() {
		select {
		case <-ctx.Done():
			b.unsubscribe(sub)
		case <-b.done:
		}
	}()

	return sub.ch, nil
}

func (b *InMemoryBroker) unsubscribe(sub *subscription) {
	sub.stop()

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub.ch)
	}
}

// Close closes every subscriber channel. It is safe to call more than once.
func (b *InMemoryBroker) Close() error {
	b.closeOnce.Do(func() { close(b.done) })

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for sub := range b.subs {
		close(sub.ch)
	}
	b.subs = make(map[*subscription]struct{})

	return nil
}
