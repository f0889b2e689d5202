// Package playlist provides the Playlist domain entity.
package playlist

import (
	"time"

	"github.com/osa030/ourtube/internal/domain/track"
)

// Playlist is a point-in-time view of one tenant's playback: the playing
// track followed by every queued track in queue-time order.
type Playlist struct {
	Tenant  string              // Tenant ID
	Playing *track.QueuedTrack  // Currently playing track (nil when idle)
	Queued  []track.QueuedTrack // Pending tracks across all personal queues
}

// Entries returns the playing track (if any) followed by the queued tracks.
func (p *Playlist) Entries() []track.QueuedTrack {
	entries := make([]track.QueuedTrack, 0, len(p.Queued)+1)
	if p.Playing != nil {
		entries = append(entries, *p.Playing)
	}
	return append(entries, p.Queued...)
}

// TrackIDs returns the track IDs of all entries.
func (p *Playlist) TrackIDs() []string {
	entries := p.Entries()
	ids := make([]string, len(entries))
	for i, qt := range entries {
		ids[i] = qt.Track.ID
	}
	return ids
}

// TotalDuration returns the declared duration of all queued tracks.
func (p *Playlist) TotalDuration() time.Duration {
	var total time.Duration
	for _, qt := range p.Queued {
		total += qt.Track.Duration
	}
	return total
}

// PendingFor returns how many queued tracks belong to the given submitter.
func (p *Playlist) PendingFor(submitterID string) int {
	n := 0
	for _, qt := range p.Queued {
		if qt.Submitter.ID == submitterID {
			n++
		}
	}
	return n
}
