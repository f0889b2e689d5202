// Package eventbus provides the per-tenant synchronous publish/subscribe bus.
package eventbus

import (
	"sync"
	"time"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
)

// Handler receives events. Handlers run on the posting goroutine and must not block.
type Handler func(Event)

// subscription represents one registered handler.
type subscription struct {
	id      string
	handler Handler
	kinds   map[Kind]bool // nil means every kind
}

func (s *subscription) wants(k Kind) bool {
	return s.kinds == nil || s.kinds[k]
}

// registry holds one tenant's subscriptions in registration order.
type registry struct {
	mu   sync.RWMutex
	subs []*subscription
}

// Bus routes events to the subscribers of a tenant. Each tenant has its own
// registry and lock; tenants never contend with each other.
type Bus struct {
	tenants sync.Map // tenant -> *registry
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{}
}

func (b *Bus) registry(tenant string) (*registry, bool) {
	v, ok := b.tenants.Load(tenant)
	if !ok {
		return nil, false
	}
	return v.(*registry), true
}

// Subscribe registers a handler for a tenant and returns the subscription ID.
// With no kinds the handler receives every kind.
func (b *Bus) Subscribe(tenant string, h Handler, kinds ...Kind) string {
	v, _ := b.tenants.LoadOrStore(tenant, &registry{})
	reg := v.(*registry)

	sub := &subscription{
		id:      uuid.New().String(),
		handler: h,
	}
	if len(kinds) > 0 {
		sub.kinds = make(map[Kind]bool, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = true
		}
	}
	reg.mu.Lock()
	reg.subs = append(reg.subs, sub)
	reg.mu.Unlock()
	return sub.id
}

// Unsubscribe removes a subscription. It reports whether the ID was found.
func (b *Bus) Unsubscribe(tenant, id string) bool {
	reg, ok := b.registry(tenant)
	if !ok {
		return false
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()

	for i, sub := range reg.subs {
		if sub.id == id {
			reg.subs = append(reg.subs[:i:i], reg.subs[i+1:]...)
			return true
		}
	}
	return false
}

// Post delivers the event to every current subscriber of the tenant, in
// registration order, before returning. Events for tenants without
// subscribers are dropped.
func (b *Bus) Post(tenant string, e Event) {
	e.Tenant = tenant
	if e.At.IsZero() {
		e.At = time.Now()
	}

	reg, ok := b.registry(tenant)
	if !ok {
		return
	}
	// Copy so handlers may (un)subscribe without deadlocking.
	reg.mu.RLock()
	subs := make([]*subscription, len(reg.subs))
	copy(subs, reg.subs)
	reg.mu.RUnlock()

	for _, sub := range subs {
		if !sub.wants(e.Kind) {
			continue
		}
		b.deliver(sub, e)
	}
}

func (b *Bus) deliver(sub *subscription, e Event) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("eventbus: handler panicked: tenant=%s kind=%s subscription=%s panic=%v",
				e.Tenant, e.Kind, sub.id, r)
		}
	}()
	sub.handler(e)
}

// SubscriberCount returns the number of subscriptions for a tenant.
func (b *Bus) SubscriberCount(tenant string) int {
	reg, ok := b.registry(tenant)
	if !ok {
		return 0
	}
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.subs)
}

// Drop removes a tenant's registry and all of its subscriptions.
func (b *Bus) Drop(tenant string) {
	b.tenants.Delete(tenant)
}
