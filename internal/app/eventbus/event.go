package eventbus

import (
	"time"

	"github.com/osa030/ourtube/internal/domain/track"
)

// Kind represents an event kind.
type Kind int

const (
	KindQueued          Kind = iota // Track appended to a personal queue
	KindFinished                    // Track played to its end (or failed to load)
	KindSkipped                     // Track was interrupted
	KindProgressUpdated             // Completion percent of the playing track changed
	KindVolumeChanged               // Tenant volume changed
	KindChannelChanged              // Tenant's selected channel changed
)

// String returns the string representation of the event kind.
func (k Kind) String() string {
	switch k {
	case KindQueued:
		return "queued"
	case KindFinished:
		return "finished"
	case KindSkipped:
		return "skipped"
	case KindProgressUpdated:
		return "progress_updated"
	case KindVolumeChanged:
		return "volume_changed"
	case KindChannelChanged:
		return "channel_changed"
	default:
		return "unknown"
	}
}

// Event is a tenant-scoped notification.
// Only the fields relevant to Kind are set.
type Event struct {
	Kind      Kind
	Tenant    string
	Track     *track.QueuedTrack // Queued, Finished, Skipped, ProgressUpdated
	Percent   float64            // ProgressUpdated
	Volume    float64            // VolumeChanged
	ChannelID string             // ChannelChanged (empty means no channel)
	At        time.Time
}
