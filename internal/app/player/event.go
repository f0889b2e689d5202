package player

import "github.com/osa030/ourtube/internal/domain/track"

// EventType represents a player event type.
type EventType int

const (
	EventTrackStarted EventType = iota // Track attached and pumping
	EventTrackEnded                    // Track left the player; see Reason
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventTrackStarted:
		return "track_started"
	case EventTrackEnded:
		return "track_ended"
	default:
		return "unknown"
	}
}

// EndReason explains why a track stopped.
type EndReason int

const (
	EndFinished   EndReason = iota // Stream reached its end
	EndLoadFailed                  // Stream failed to start or broke
	EndStopped                     // Stopped on request
	EndReplaced                    // Another track interrupted it
	EndCleanup                     // Player closed
)

// String returns the string representation of the end reason.
func (r EndReason) String() string {
	switch r {
	case EndFinished:
		return "finished"
	case EndLoadFailed:
		return "load_failed"
	case EndStopped:
		return "stopped"
	case EndReplaced:
		return "replaced"
	case EndCleanup:
		return "cleanup"
	default:
		return "unknown"
	}
}

// MayStartNext reports whether the next track should be selected after this end.
func (r EndReason) MayStartNext() bool {
	return r == EndFinished || r == EndLoadFailed
}

// Event represents a player event.
type Event struct {
	Type   EventType
	Track  *track.QueuedTrack
	Reason EndReason // EventTrackEnded only
	Err    error     // set for EndLoadFailed
}
