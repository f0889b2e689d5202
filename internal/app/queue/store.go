// Package queue provides per-submitter FIFO queues for one tenant.
package queue

import (
	"sort"

	"github.com/osa030/ourtube/internal/domain/track"
)

// Reservation is a selected queue head that has not been removed yet.
// It is either committed (head popped) or dropped.
type Reservation struct {
	Track track.QueuedTrack
}

// Submitter returns the owner of the reserved queue.
func (r *Reservation) Submitter() string {
	return r.Track.Submitter.ID
}

// Store holds the personal queues of one tenant.
// Store is not safe for concurrent use; the tenant scheduler serializes access.
type Store struct {
	queues map[string][]track.QueuedTrack
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		queues: make(map[string][]track.QueuedTrack),
	}
}

// Append adds a track to the end of its submitter's queue, creating the queue on first use.
func (s *Store) Append(qt track.QueuedTrack) {
	id := qt.Submitter.ID
	s.queues[id] = append(s.queues[id], qt)
}

// Head returns the first track of a submitter's queue.
func (s *Store) Head(submitterID string) (track.QueuedTrack, bool) {
	q := s.queues[submitterID]
	if len(q) == 0 {
		return track.QueuedTrack{}, false
	}
	return q[0], true
}

// Len returns the length of a submitter's queue.
func (s *Store) Len(submitterID string) int {
	return len(s.queues[submitterID])
}

// Total returns the number of queued tracks across all submitters.
func (s *Store) Total() int {
	n := 0
	for _, q := range s.queues {
		n += len(q)
	}
	return n
}

// Reserve picks, among the given submitters, the non-empty queue whose head
// sorts first and returns that head without removing it.
// Only heads compete: later tracks of a submitter wait for their predecessor.
func (s *Store) Reserve(submitters []string) (*Reservation, bool) {
	var best *track.QueuedTrack
	for _, id := range submitters {
		q := s.queues[id]
		if len(q) == 0 {
			continue
		}
		head := q[0]
		if best == nil || head.Before(best) {
			best = &head
		}
	}
	if best == nil {
		return nil, false
	}
	return &Reservation{Track: *best}, true
}

// Commit removes the reserved track from the head of its queue.
// It returns false when the head no longer matches the reservation.
func (s *Store) Commit(r *Reservation) bool {
	id := r.Submitter()
	q := s.queues[id]
	if len(q) == 0 || q[0].EntryID != r.Track.EntryID {
		return false
	}
	q[0] = track.QueuedTrack{}
	s.queues[id] = q[1:]
	return true
}

// All returns a copy of every queued track ordered by queue time.
func (s *Store) All() []track.QueuedTrack {
	all := make([]track.QueuedTrack, 0, s.Total())
	for _, q := range s.queues {
		all = append(all, q...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Before(&all[j])
	})
	return all
}

// Submitters returns the IDs of submitters that have a queue, sorted.
func (s *Store) Submitters() []string {
	ids := make([]string, 0, len(s.queues))
	for id := range s.queues {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
