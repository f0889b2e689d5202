// Package filter provides the filter chain for request validation.
package filter

import (
	"context"

	"github.com/osa030/ourtube/internal/domain/listener"
	"github.com/osa030/ourtube/internal/domain/playlist"
	"github.com/osa030/ourtube/internal/domain/track"
)

// Result codes.
const (
	CodeDurationLimitExceeded = "duration_limit_exceeded"
	CodeQueueLimitExceeded    = "queue_limit_exceeded"
	CodeDuplicateTrack        = "duplicate_track"
	CodeNotInChannel          = "not_in_channel"
)

// Request represents an enqueue request to be validated.
type Request struct {
	Tenant      string
	SubmitterID string
	Locator     string
	Member      *listener.Session // nil when the submitter is not connected
	Present     bool              // connected to the tenant's selected channel
	Queue       playlist.Playlist // playing and queued tracks at request time
}

// Result represents the result of a filter check.
type Result struct {
	Accepted bool
	Code     string // e.g., "duplicate_track", "queue_limit_exceeded"
}

// Accept returns an accepted result.
func Accept() Result {
	return Result{Accepted: true}
}

// Reject returns a rejected result with the given code.
func Reject(code string) Result {
	return Result{Accepted: false, Code: code}
}

// Filter is the interface for request filters.
type Filter interface {
	// Name returns the filter name (used in config).
	Name() string
	// Description returns a human-readable description.
	Description() string
	// ReturnCodes returns the codes this filter can return.
	ReturnCodes() []string
	// ValidateConfig validates and applies the filter configuration.
	ValidateConfig(settings map[string]any) error
	// Check performs the filter check.
	Check(ctx context.Context, req Request, t track.Track) Result
}

// registry holds registered filter factories.
var registry = make(map[string]func() Filter)

// Register registers a filter factory.
func Register(name string, factory func() Filter) {
	registry[name] = factory
}

// GetRegistered returns all registered filter factories.
func GetRegistered() map[string]func() Filter {
	return registry
}

// New creates a registered filter by name.
func New(name string) (Filter, bool) {
	factory, ok := registry[name]
	if !ok {
		return nil, false
	}
	return factory(), true
}
