// Package scheduler decides the fair play order of one tenant's requests.
package scheduler

import (
	"sort"
	"sync"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/ourtube/internal/app/eventbus"
	"github.com/osa030/ourtube/internal/app/player"
	"github.com/osa030/ourtube/internal/app/queue"
	"github.com/osa030/ourtube/internal/domain/playlist"
	"github.com/osa030/ourtube/internal/domain/track"
	"github.com/osa030/ourtube/internal/infra/metrics"
)

// Presence reports which submitters are currently present in a tenant.
type Presence interface {
	Present(tenant string) []string
}

// Player is the outbound transport the scheduler drives.
type Player interface {
	StartTrack(qt *track.QueuedTrack, interrupt bool) bool
	Stop()
}

// Scheduler owns the personal queues and the playing track of one tenant.
// Every mutation happens under mu; events are posted while it is held.
type Scheduler struct {
	mu sync.Mutex

	tenant   string
	queues   *queue.Store
	playing  *track.QueuedTrack
	presence Presence
	player   Player
	bus      *eventbus.Bus
}

// New creates a scheduler for a tenant.
func New(tenant string, presence Presence, p Player, bus *eventbus.Bus) *Scheduler {
	return &Scheduler{
		tenant:   tenant,
		queues:   queue.NewStore(),
		presence: presence,
		player:   p,
		bus:      bus,
	}
}

// Tenant returns the tenant ID.
func (s *Scheduler) Tenant() string {
	return s.tenant
}

// Enqueue appends a track to its submitter's queue and starts it if the tenant is idle.
func (s *Scheduler) Enqueue(qt track.QueuedTrack) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queues.Append(qt)
	metrics.TracksQueued.Inc()
	zlog.Info().Str("tenant", s.tenant).Msgf("scheduler: queued %s (%s) for %s",
		qt.Track.Name, qt.Track.ID, qt.Submitter.ID)

	s.postLocked(eventbus.KindQueued, &qt)

	if s.playing == nil {
		s.selectNextLocked(false)
	}
}

// SelectNext picks the earliest-queued head among present submitters and hands it to the player.
func (s *Scheduler) SelectNext(interrupt bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectNextLocked(interrupt)
}

// Skip interrupts the playing track with the next candidate, or stops it when there is none.
// It returns false when the tenant was idle and had nothing to start.
func (s *Scheduler) Skip() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	wasPlaying := s.playing != nil
	s.selectNextLocked(true)
	return wasPlaying || s.playing != nil
}

// Retrigger re-runs selection after a membership change.
func (s *Scheduler) Retrigger() {
	s.SelectNext(false)
}

func (s *Scheduler) selectNextLocked(interrupt bool) {
	present := s.presence.Present(s.tenant)

	r, ok := s.queues.Reserve(present)
	if !ok {
		if interrupt && s.playing != nil {
			zlog.Debug().Str("tenant", s.tenant).Msg("scheduler: no candidate, stopping current track")
			s.player.Stop()
		}
		return
	}

	candidate := r.Track
	if !s.player.StartTrack(&candidate, interrupt) {
		zlog.Debug().Str("tenant", s.tenant).Msgf("scheduler: player busy, %s stays queued", candidate.EntryID)
		return
	}
	if !s.queues.Commit(r) {
		// Cannot happen while mu is held; the head only moves here.
		zlog.Error().Str("tenant", s.tenant).Msgf("scheduler: reservation %s lost its queue head", candidate.EntryID)
	}
	s.playing = &candidate
}

// OnTrackEnd records the end of a track and continues when the reason allows it.
func (s *Scheduler) OnTrackEnd(qt *track.QueuedTrack, reason player.EndReason) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch reason {
	case player.EndFinished, player.EndLoadFailed:
		s.postLocked(eventbus.KindFinished, qt)
	default:
		s.postLocked(eventbus.KindSkipped, qt)
	}

	if s.playing != nil && s.playing.EntryID == qt.EntryID {
		s.playing = nil
	}

	if reason.MayStartNext() {
		s.selectNextLocked(false)
	}
}

// Playing returns the playing track.
func (s *Scheduler) Playing() (*track.QueuedTrack, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing, s.playing != nil
}

// Snapshot returns the playing track and all queued tracks in queue-time order.
func (s *Scheduler) Snapshot() playlist.Playlist {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Scheduler) snapshotLocked() playlist.Playlist {
	pl := playlist.Playlist{
		Tenant: s.tenant,
		Queued: s.queues.All(),
	}
	if s.playing != nil {
		playing := *s.playing
		pl.Playing = &playing
	}
	return pl
}

// SubscribeWithSnapshot registers a bus handler and returns the state it starts from.
// No event is posted between the snapshot and the registration.
func (s *Scheduler) SubscribeWithSnapshot(h eventbus.Handler, kinds ...eventbus.Kind) (playlist.Playlist, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pl := s.snapshotLocked()
	id := s.bus.Subscribe(s.tenant, h, kinds...)
	return pl, id
}

// PendingBySubmitter returns queue lengths keyed by submitter.
func (s *Scheduler) PendingBySubmitter() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := make(map[string]int)
	for _, id := range s.queues.Submitters() {
		if n := s.queues.Len(id); n > 0 {
			pending[id] = n
		}
	}
	return pending
}

// Waiting returns submitters with queued tracks who are not present, sorted.
func (s *Scheduler) Waiting() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	present := make(map[string]bool)
	for _, id := range s.presence.Present(s.tenant) {
		present[id] = true
	}
	var absent []string
	for _, id := range s.queues.Submitters() {
		if s.queues.Len(id) > 0 && !present[id] {
			absent = append(absent, id)
		}
	}
	sort.Strings(absent)
	return absent
}

func (s *Scheduler) postLocked(kind eventbus.Kind, qt *track.QueuedTrack) {
	s.bus.Post(s.tenant, eventbus.Event{
		Kind:  kind,
		Track: qt,
	})
}
