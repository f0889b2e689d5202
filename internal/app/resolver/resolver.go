// Package resolver turns user supplied locators into track metadata.
package resolver

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/osa030/ourtube/internal/domain/track"
)

var (
	// ErrTrackNotFound is returned when the source knows no track for the locator.
	ErrTrackNotFound = errors.New("track not found")
	// ErrUnsupportedLocator is returned when no resolver accepts the locator.
	ErrUnsupportedLocator = errors.New("unsupported locator")
)

// Resolver looks up track metadata for a locator.
type Resolver interface {
	// Name returns the resolver name used in logs and metrics.
	Name() string
	// Supports reports whether the resolver understands the locator.
	Supports(locator string) bool
	// Resolve returns the track; its Locator is what the fetcher will be given.
	Resolve(ctx context.Context, locator string) (*track.Track, error)
}

// ResolutionError describes a failed lookup.
type ResolutionError struct {
	Locator  string
	Resolver string // empty when no resolver supported the locator
	Cause    error
}

func (e *ResolutionError) Error() string {
	if e.Resolver == "" {
		return fmt.Sprintf("resolve %q: %v", e.Locator, e.Cause)
	}
	return fmt.Sprintf("resolve %q via %s: %v", e.Locator, e.Resolver, e.Cause)
}

func (e *ResolutionError) Unwrap() error {
	return e.Cause
}
