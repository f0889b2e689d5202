// Package registry tracks which members are connected to which channel of a tenant.
package registry

import (
	"sort"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/osa030/ourtube/internal/domain/listener"
)

var (
	ErrNotMember = errors.New("member is not connected")
)

// tenantMembers holds one tenant's sessions under its own lock.
type tenantMembers struct {
	mu       sync.RWMutex
	sessions map[string]*listener.Session // member ID -> session
}

// PresenceRegistry manages member sessions with thread-safe access.
// A member is connected to at most one channel per tenant.
type PresenceRegistry struct {
	tenants  sync.Map // tenant -> *tenantMembers
	channels *ChannelRegistry
}

// NewPresenceRegistry creates a registry that resolves presence against the selected channels.
func NewPresenceRegistry(channels *ChannelRegistry) *PresenceRegistry {
	return &PresenceRegistry{channels: channels}
}

func (r *PresenceRegistry) lookup(tenant string) (*tenantMembers, bool) {
	v, ok := r.tenants.Load(tenant)
	if !ok {
		return nil, false
	}
	return v.(*tenantMembers), true
}

// Join connects a member to a channel, moving them if they were in another one.
// It reports whether the member is now present in the tenant's selected channel.
func (r *PresenceRegistry) Join(tenant, channelID, memberID, displayName string) bool {
	v, _ := r.tenants.LoadOrStore(tenant, &tenantMembers{sessions: make(map[string]*listener.Session)})
	tm := v.(*tenantMembers)

	tm.mu.Lock()
	if session, ok := tm.sessions[memberID]; ok {
		session.ChannelID = channelID
		if displayName != "" {
			session.DisplayName = displayName
		}
	} else {
		tm.sessions[memberID] = listener.NewSession(memberID, displayName, tenant, channelID)
	}
	tm.mu.Unlock()

	selected, ok := r.channels.Selected(tenant)
	return ok && selected == channelID
}

// Leave disconnects a member.
func (r *PresenceRegistry) Leave(tenant, memberID string) error {
	tm, ok := r.lookup(tenant)
	if !ok {
		return ErrNotMember
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if _, ok := tm.sessions[memberID]; !ok {
		return ErrNotMember
	}
	delete(tm.sessions, memberID)
	return nil
}

// Present returns the members connected to the tenant's selected channel, sorted.
func (r *PresenceRegistry) Present(tenant string) []string {
	selected, ok := r.channels.Selected(tenant)
	if !ok {
		return nil
	}
	tm, ok := r.lookup(tenant)
	if !ok {
		return nil
	}

	tm.mu.RLock()
	defer tm.mu.RUnlock()

	var ids []string
	for id, session := range tm.sessions {
		if session.ChannelID == selected {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// IsPresent reports whether a member is in the tenant's selected channel.
func (r *PresenceRegistry) IsPresent(tenant, memberID string) bool {
	selected, ok := r.channels.Selected(tenant)
	if !ok {
		return false
	}
	tm, ok := r.lookup(tenant)
	if !ok {
		return false
	}

	tm.mu.RLock()
	defer tm.mu.RUnlock()
	session, ok := tm.sessions[memberID]
	return ok && session.ChannelID == selected
}

// Get returns a copy of a member's session.
func (r *PresenceRegistry) Get(tenant, memberID string) (listener.Session, error) {
	tm, ok := r.lookup(tenant)
	if !ok {
		return listener.Session{}, ErrNotMember
	}
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	session, ok := tm.sessions[memberID]
	if !ok {
		return listener.Session{}, ErrNotMember
	}
	return *session, nil
}

// RecordRequest counts a request by a connected member. Unknown members are ignored.
func (r *PresenceRegistry) RecordRequest(tenant, memberID string) {
	tm, ok := r.lookup(tenant)
	if !ok {
		return
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if session, ok := tm.sessions[memberID]; ok {
		session.RecordRequest()
	}
}

// Members returns copies of all member sessions of a tenant, sorted by ID.
func (r *PresenceRegistry) Members(tenant string) []listener.Session {
	tm, ok := r.lookup(tenant)
	if !ok {
		return []listener.Session{}
	}
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	result := make([]listener.Session, 0, len(tm.sessions))
	for _, session := range tm.sessions {
		result = append(result, *session)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Count returns the number of connected members of a tenant.
func (r *PresenceRegistry) Count(tenant string) int {
	tm, ok := r.lookup(tenant)
	if !ok {
		return 0
	}
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return len(tm.sessions)
}

// ClearTenant forgets every member of a tenant.
func (r *PresenceRegistry) ClearTenant(tenant string) {
	r.tenants.Delete(tenant)
}
