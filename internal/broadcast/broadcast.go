// Package broadcast implements per-session fan-out of debug-session events
// to live subscribers, per spec.md §4.6. It combines two teacher shapes:
// the per-key streamRegistry (subscribe/unsubscribe/dispatch with a
// buffered, drop-on-full channel per subscriber) from
// internal/controlplane/websocket/stream.go, and the non-blocking
// publish-or-drop semantics of internal/controlplane/events/bus.go.
package broadcast

import (
	"sync"

	"go.uber.org/zap"

	"github.com/sitewatch/monitor/internal/model"
)

// EventKind classifies a broadcast message.
type EventKind string

const (
	EventNetworkEvent   EventKind = "network_event"
	EventConsoleMessage EventKind = "console_message"
	EventSessionStatus  EventKind = "status"
)

// Message is one item pushed to subscribers of a debug session.
type Message struct {
	Kind           EventKind
	NetworkEvent   *model.NetworkEvent
	ConsoleMessage *model.ConsoleMessage
	Status         *StatusUpdate
}

// StatusUpdate carries lifecycle/backpressure notices, including the
// supplemented dropped_events count from SPEC_FULL.md.
type StatusUpdate struct {
	SessionStatus model.DebugSessionStatus
	DroppedEvents int
}

// subscriber is one buffered, drop-on-full delivery channel.
type subscriber struct {
	ch   chan Message
	done chan struct{}
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.done) })
}

// Broadcaster fans out Messages to subscribers of a debug session, keyed by
// session id. Delivery is best-effort: a subscriber whose buffer is full
// simply misses that message rather than blocking the publisher.
type Broadcaster struct {
	mu      sync.RWMutex
	subs    map[int64][]*subscriber
	bufSize int
	logger  *zap.Logger
}

// New creates a Broadcaster with the given per-subscriber buffer size.
func New(bufSize int, logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bufSize < 1 {
		bufSize = 64
	}
	return &Broadcaster{
		subs:    make(map[int64][]*subscriber),
		bufSize: bufSize,
		logger:  logger,
	}
}

// Subscription is returned by Subscribe; call Unsubscribe when done
// consuming Channel().
type Subscription struct {
	sessionID int64
	sub       *subscriber
	b         *Broadcaster
}

// Channel returns the receive-only channel of Messages for this subscription.
func (s *Subscription) Channel() <-chan Message { return s.sub.ch }

// Unsubscribe stops delivery and removes this subscriber from the session.
func (s *Subscription) Unsubscribe() {
	s.sub.close()
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	subs := s.b.subs[s.sessionID]
	for i, sub := range subs {
		if sub == s.sub {
			s.b.subs[s.sessionID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(s.b.subs[s.sessionID]) == 0 {
		delete(s.b.subs, s.sessionID)
	}
}

// Subscribe registers a new subscriber for sessionID's broadcast stream.
func (b *Broadcaster) Subscribe(sessionID int64) *Subscription {
	sub := &subscriber{
		ch:   make(chan Message, b.bufSize),
		done: make(chan struct{}),
	}

	b.mu.Lock()
	b.subs[sessionID] = append(b.subs[sessionID], sub)
	b.mu.Unlock()

	return &Subscription{sessionID: sessionID, sub: sub, b: b}
}

// Publish delivers msg to every current subscriber of sessionID.
// Non-blocking: a subscriber with a full buffer drops the message.
func (b *Broadcaster) Publish(sessionID int64, msg Message) {
	b.mu.RLock()
	subs := b.subs[sessionID]
	b.mu.RUnlock()

	for _, sub := range subs {
		select {
		case <-sub.done:
		case sub.ch <- msg:
		default:
			b.logger.Debug("dropped broadcast message for slow subscriber",
				zap.Int64("session_id", sessionID))
		}
	}
}

// SubscriberCount returns the number of active subscribers for sessionID.
func (b *Broadcaster) SubscriberCount(sessionID int64) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[sessionID])
}

// CloseSession unsubscribes and closes every subscriber for sessionID, used
// when a DebugSession reaches a terminal state.
func (b *Broadcaster) CloseSession(sessionID int64) {
	b.mu.Lock()
	subs := b.subs[sessionID]
	delete(b.subs, sessionID)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}
