package registry

import (
	"sync"

	"github.com/osa030/ourtube/internal/app/eventbus"
)

// ChannelRegistry stores the channel each tenant plays into.
type ChannelRegistry struct {
	selected sync.Map // tenant -> channel ID
	bus      *eventbus.Bus
}

// NewChannelRegistry creates an empty registry posting ChannelChanged to bus.
func NewChannelRegistry(bus *eventbus.Bus) *ChannelRegistry {
	return &ChannelRegistry{bus: bus}
}

// Select sets a tenant's channel. It reports whether the selection changed.
func (r *ChannelRegistry) Select(tenant, channelID string) bool {
	prev, loaded := r.selected.Swap(tenant, channelID)
	old := ""
	if loaded {
		old = prev.(string)
	}
	if old == channelID {
		return false
	}

	r.bus.Post(tenant, eventbus.Event{
		Kind:      eventbus.KindChannelChanged,
		ChannelID: channelID,
	})
	return true
}

// Selected returns a tenant's channel.
func (r *ChannelRegistry) Selected(tenant string) (string, bool) {
	v, ok := r.selected.Load(tenant)
	if !ok {
		return "", false
	}
	id := v.(string)
	return id, id != ""
}

// Clear forgets a tenant's channel.
func (r *ChannelRegistry) Clear(tenant string) {
	r.selected.Delete(tenant)
}
