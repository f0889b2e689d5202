// Package notification streams tenant events to remote subscribers.
package notification

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/ourtube/internal/app/eventbus"
	"github.com/osa030/ourtube/internal/infra/metrics"
)

// ErrManagerClosed is returned by Run after the manager shut down.
var ErrManagerClosed = errors.New("notification manager closed")

const defaultBuffer = 64

// Stream represents a notification stream for a subscriber.
type Stream interface {
	Send(*Notification) error
}

// Subscription is one remote subscriber. Events are buffered and dropped when the buffer is full.
type Subscription struct {
	id      string
	tenant  string
	stream  Stream
	ch      chan *Notification
	done    chan struct{}
	once    sync.Once
	manager *Manager
}

// ID returns the subscription ID.
func (s *Subscription) ID() string {
	return s.id
}

// Handle is the bus handler of the subscription. It never blocks.
func (s *Subscription) Handle(e eventbus.Event) {
	n := FromEvent(e)
	n.SequenceNo = s.manager.NextSequenceNo()
	s.push(n)
}

func (s *Subscription) push(n *Notification) {
	select {
	case <-s.done:
	case s.ch <- n:
	default:
		zlog.Warn().Str("tenant", s.tenant).Msgf("notification: subscriber %s is slow, dropping %s", s.id, n.Type)
	}
}

// Run sends first, then buffered notifications, until ctx ends, the
// subscription closes or a send fails.
func (s *Subscription) Run(ctx context.Context, first *Notification) error {
	if first != nil {
		first.SequenceNo = s.manager.NextSequenceNo()
		if err := s.stream.Send(first); err != nil {
			return err
		}
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.done:
			s.flush()
			return ErrManagerClosed
		case n := <-s.ch:
			if err := s.stream.Send(n); err != nil {
				return err
			}
		}
	}
}

// flush sends what is still buffered, ignoring errors.
func (s *Subscription) flush() {
	for {
		select {
		case n := <-s.ch:
			if err := s.stream.Send(n); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (s *Subscription) close() {
	s.once.Do(func() { close(s.done) })
}

// Manager manages notification subscriptions.
type Manager struct {
	mu            sync.RWMutex
	subscriptions map[string]*Subscription
	sequenceNo    uint64
	sequenceNoMu  sync.Mutex
	buffer        int
}

// NewManager creates a new notification manager.
func NewManager(buffer int) *Manager {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Manager{
		subscriptions: make(map[string]*Subscription),
		buffer:        buffer,
	}
}

// Open creates a subscription for a tenant. The caller registers Handle on the bus and calls Run.
func (m *Manager) Open(tenant string, stream Stream) *Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub := &Subscription{
		id:      uuid.New().String(),
		tenant:  tenant,
		stream:  stream,
		ch:      make(chan *Notification, m.buffer),
		done:    make(chan struct{}),
		manager: m,
	}
	m.subscriptions[sub.id] = sub
	metrics.RemoteSubscribers.Inc()
	return sub
}

// NextSequenceNo returns the next sequence number and increments the counter.
func (m *Manager) NextSequenceNo() uint64 {
	m.sequenceNoMu.Lock()
	defer m.sequenceNoMu.Unlock()
	m.sequenceNo++
	return m.sequenceNo
}

// Unsubscribe removes a subscription.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sub, ok := m.subscriptions[subscriptionID]; ok {
		sub.close()
		delete(m.subscriptions, subscriptionID)
		metrics.RemoteSubscribers.Dec()
	}
}

// Broadcast queues a notification for every subscriber of a tenant.
func (m *Manager) Broadcast(tenant string, n *Notification) {
	n.Tenant = tenant
	n.SequenceNo = m.NextSequenceNo()

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, sub := range m.subscriptions {
		if sub.tenant == tenant {
			sub.push(n)
		}
	}
}

// SubscriberCount returns the number of subscribers of a tenant.
func (m *Manager) SubscriberCount(tenant string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, sub := range m.subscriptions {
		if sub.tenant == tenant {
			n++
		}
	}
	return n
}

// CloseTenant ends every subscription of a tenant.
func (m *Manager) CloseTenant(tenant string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, sub := range m.subscriptions {
		if sub.tenant == tenant {
			sub.close()
			delete(m.subscriptions, id)
			metrics.RemoteSubscribers.Dec()
		}
	}
}

// Close closes the manager and removes all subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, sub := range m.subscriptions {
		sub.close()
		metrics.RemoteSubscribers.Dec()
	}
	m.subscriptions = make(map[string]*Subscription)
}
