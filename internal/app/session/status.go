package session

import (
	"slices"
	"strings"
	"time"

	"github.com/osa030/ourtube/internal/app/player"
	"github.com/osa030/ourtube/internal/domain/listener"
	"github.com/osa030/ourtube/internal/domain/track"
)

// QueueEntry is a queued track with the presence of its submitter.
// Tracks of absent submitters are skipped by selection until they return.
type QueueEntry struct {
	Track   track.QueuedTrack
	Present bool
}

// Status represents the current state of a tenant.
type Status struct {
	Tenant      string
	ChannelID   string
	State       player.State
	Playing     *track.QueuedTrack
	Percent     float64
	Played      int64 // sample frames of the playing track
	Expected    int64 // announced length of the playing track in sample frames
	Volume      float64
	Queue       []QueueEntry
	Pending     map[string]int // queued tracks per submitter
	Waiting     []string       // absent submitters with queued tracks
	Members     []listener.Session
	Subscribers int
	OpenedAt    time.Time
}

// TenantInfo is the summary of an open tenant.
type TenantInfo struct {
	ID        string
	ChannelID string
	State     player.State
	Playing   string // track ID
	Queued    int
	Members   int
	OpenedAt  time.Time
}

// GetStatus returns the current status of a tenant.
func (m *Manager) GetStatus(tenantID string) (*Status, error) {
	t, err := m.tenant(tenantID)
	if err != nil {
		return nil, err
	}

	pl := t.scheduler.Snapshot()
	queue := make([]QueueEntry, 0, len(pl.Queued))
	for _, qt := range pl.Queued {
		queue = append(queue, QueueEntry{
			Track:   qt,
			Present: m.presence.IsPresent(tenantID, qt.Submitter.ID),
		})
	}
	channelID, _ := m.channels.Selected(tenantID)
	played, expected := t.player.Position()

	return &Status{
		Tenant:      tenantID,
		ChannelID:   channelID,
		State:       t.player.State(),
		Playing:     pl.Playing,
		Percent:     m.percent(tenantID, pl.Playing),
		Played:      played,
		Expected:    expected,
		Volume:      m.volumes.Get(tenantID),
		Queue:       queue,
		Pending:     t.scheduler.PendingBySubmitter(),
		Waiting:     t.scheduler.Waiting(),
		Members:     m.presence.Members(tenantID),
		Subscribers: m.notification.SubscriberCount(tenantID),
		OpenedAt:    t.openedAt,
	}, nil
}

// ListTenants returns a summary of every open tenant ordered by ID.
func (m *Manager) ListTenants() []TenantInfo {
	m.mu.RLock()
	tenants := make([]*Tenant, 0, len(m.tenants))
	for _, t := range m.tenants {
		tenants = append(tenants, t)
	}
	m.mu.RUnlock()

	infos := make([]TenantInfo, 0, len(tenants))
	for _, t := range tenants {
		channelID, _ := m.channels.Selected(t.id)
		var playing string
		if qt, ok := t.scheduler.Playing(); ok {
			playing = qt.Track.ID
		}
		infos = append(infos, TenantInfo{
			ID:        t.id,
			ChannelID: channelID,
			State:     t.player.State(),
			Playing:   playing,
			Queued:    len(t.scheduler.Snapshot().Queued),
			Members:   m.presence.Count(t.id),
			OpenedAt:  t.openedAt,
		})
	}
	slices.SortFunc(infos, func(a, b TenantInfo) int {
		return strings.Compare(a.ID, b.ID)
	})
	return infos
}
