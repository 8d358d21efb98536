package publisher

import (
	"context"
	"log/slog"
	"sync"

	"enforcement_scraper/internal/domain"
)

// AllSessions subscribes to every session's events.
const AllSessions = ""

// Broker is an in-process, at-most-once progress fan-out. Slow subscribers
// lose events instead of blocking the publisher.
type Broker struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	buffer int
	closed bool
	logger *slog.Logger
}

type Subscription struct {
	topic  string
	ch     chan domain.ProgressEvent
	broker *Broker
	once   sync.Once
}

// Events delivers published events until the subscription is closed.
func (s *Subscription) Events() <-chan domain.ProgressEvent {
	return s.ch
}

func (s *Subscription) Close() {
	s.broker.unsubscribe(s)
}

func NewBroker(buffer int, logger *slog.Logger) *Broker {
	if buffer <= 0 {
		buffer = 64
	}
	return &Broker{
		subs:   make(map[string]map[*Subscription]struct{}),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe returns a subscription for one session id, or for all sessions
// when sessionID is AllSessions.
func (b *Broker) Subscribe(sessionID string) *Subscription {
	sub := &Subscription{
		topic:  sessionID,
		ch:     make(chan domain.ProgressEvent, b.buffer),
		broker: b,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.ch)
		return sub
	}
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[*Subscription]struct{})
	}
	b.subs[sessionID][sub] = struct{}{}
	return sub
}

func (b *Broker) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if set, ok := b.subs[sub.topic]; ok {
		if _, ok := set[sub]; ok {
			delete(set, sub)
			sub.once.Do(func() { close(sub.ch) })
		}
		if len(set) == 0 {
			delete(b.subs, sub.topic)
		}
	}
}

func (b *Broker) Publish(_ context.Context, event domain.ProgressEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil
	}
	b.deliver(b.subs[event.SessionID], event)
	if event.SessionID != AllSessions {
		b.deliver(b.subs[AllSessions], event)
	}
	return nil
}

func (b *Broker) deliver(subs map[*Subscription]struct{}, event domain.ProgressEvent) {
	for sub := range subs {
		select {
		case sub.ch <- event:
		default:
			b.logger.Debug("dropping progress event for slow subscriber",
				"session_id", event.SessionID,
				"page", event.Page,
			)
		}
	}
}

// Close ends every subscription.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for topic, set := range b.subs {
		for sub := range set {
			sub.once.Do(func() { close(sub.ch) })
		}
		delete(b.subs, topic)
	}
	return nil
}
