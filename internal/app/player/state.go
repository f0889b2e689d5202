// Package player pumps audio frames for one tenant and reports track lifecycle events.
package player

// State represents the player state.
type State int

const (
	StateIdle    State = iota // No track attached
	StatePlaying              // Track attached and pumping
	StateClosed               // Player closed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
