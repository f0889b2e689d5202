package notification

import (
	"time"

	"github.com/osa030/ourtube/internal/app/eventbus"
	"github.com/osa030/ourtube/internal/domain/playlist"
	"github.com/osa030/ourtube/internal/domain/track"
)

// Notification types not derived from bus event kinds.
const (
	TypeSnapshot     = "snapshot"
	TypeTenantClosed = "tenant_closed"
)

// Entry is the wire form of a queued track.
type Entry struct {
	EntryID       string    `json:"entry_id"`
	TrackID       string    `json:"track_id"`
	Name          string    `json:"name"`
	Artists       []string  `json:"artists,omitempty"`
	DurationMs    int64     `json:"duration_ms"`
	Locator       string    `json:"locator"`
	ThumbnailURL  string    `json:"thumbnail_url,omitempty"`
	SubmitterID   string    `json:"submitter_id"`
	SubmitterName string    `json:"submitter_name,omitempty"`
	QueuedAt      time.Time `json:"queued_at"`
}

// NewEntry converts a queued track.
func NewEntry(qt *track.QueuedTrack) *Entry {
	if qt == nil {
		return nil
	}
	return &Entry{
		EntryID:       qt.EntryID,
		TrackID:       qt.Track.ID,
		Name:          qt.Track.Name,
		Artists:       qt.Track.Artists,
		DurationMs:    qt.Track.DurationMs(),
		Locator:       qt.Track.Locator,
		ThumbnailURL:  qt.Track.Thumbnail.URL,
		SubmitterID:   qt.Submitter.ID,
		SubmitterName: qt.Submitter.Name,
		QueuedAt:      qt.QueueTime,
	}
}

// Snapshot is the state a subscriber starts from.
type Snapshot struct {
	Playing   *Entry  `json:"playing,omitempty"`
	Queued    []Entry `json:"queued"`
	Percent   float64 `json:"percent"`
	Volume    float64 `json:"volume"`
	ChannelID string  `json:"channel_id,omitempty"`
}

// NewSnapshot builds a snapshot from a playlist and the tenant's current settings.
func NewSnapshot(pl playlist.Playlist, percent, volume float64, channelID string) *Snapshot {
	s := &Snapshot{
		Playing:   NewEntry(pl.Playing),
		Queued:    make([]Entry, 0, len(pl.Queued)),
		Percent:   percent,
		Volume:    volume,
		ChannelID: channelID,
	}
	for i := range pl.Queued {
		s.Queued = append(s.Queued, *NewEntry(&pl.Queued[i]))
	}
	return s
}

// Notification is one message on a subscriber stream.
type Notification struct {
	SequenceNo uint64    `json:"sequence_no"`
	Tenant     string    `json:"tenant"`
	Type       string    `json:"type"`
	Entry      *Entry    `json:"entry,omitempty"`
	Percent    float64   `json:"percent,omitempty"`
	Volume     float64   `json:"volume,omitempty"`
	ChannelID  string    `json:"channel_id,omitempty"`
	Snapshot   *Snapshot `json:"snapshot,omitempty"`
	At         time.Time `json:"at"`
}

// FromEvent converts a bus event.
func FromEvent(e eventbus.Event) *Notification {
	return &Notification{
		Tenant:    e.Tenant,
		Type:      e.Kind.String(),
		Entry:     NewEntry(e.Track),
		Percent:   e.Percent,
		Volume:    e.Volume,
		ChannelID: e.ChannelID,
		At:        e.At,
	}
}
