// Package track provides the Track domain entity.
package track

import "time"

// Thumbnail is a preview image for a track.
type Thumbnail struct {
	URL    string
	Width  int
	Height int
}

// Track represents resolved track metadata.
// Contains only information retrieved from a resolver.
type Track struct {
	ID        string        // Source-specific ID (YouTube video ID, Spotify track ID)
	Name      string        // Display name
	Artists   []string      // Artist names (may be empty)
	Thumbnail Thumbnail     // Preview image
	Duration  time.Duration // Declared duration
	Locator   string        // URL handed to the fetcher
}

// DurationMs returns the declared duration in milliseconds.
func (t *Track) DurationMs() int64 {
	return t.Duration.Milliseconds()
}

// Submitter represents the person who queued the track.
type Submitter struct {
	ID   string // Submitter ID, owner of the personal queue
	Name string // Display name at enqueue time
}

// QueuedTrack represents a track sitting in, or popped from, a personal queue.
type QueuedTrack struct {
	EntryID   string    // Unique per enqueue, distinguishes repeated requests of one track
	Track     Track     // Track info
	Submitter Submitter // Submitter info
	QueueTime time.Time // Strictly increasing across enqueues, ordering key only
}

// Before reports whether q should play before other when both are queue heads.
// QueueTime decides; equal timestamps fall back to the submitter ID.
func (q *QueuedTrack) Before(other *QueuedTrack) bool {
	if !q.QueueTime.Equal(other.QueueTime) {
		return q.QueueTime.Before(other.QueueTime)
	}
	return q.Submitter.ID < other.Submitter.ID
}
