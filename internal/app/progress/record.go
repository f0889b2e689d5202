// Package progress publishes the play position of each tenant's current track.
package progress

import "sync"

// Entry is the latest progress of a tenant.
type Entry struct {
	TrackID string
	EntryID string
	Percent float64
}

// Record keeps the latest Entry per tenant. Each tenant is written only by
// its own reporter, so entries are stored without a shared lock.
type Record struct {
	entries sync.Map // tenant -> Entry
}

// NewRecord creates an empty record.
func NewRecord() *Record {
	return &Record{}
}

// Set stores the entry for a tenant.
func (r *Record) Set(tenant string, e Entry) {
	r.entries.Store(tenant, e)
}

// Get returns the entry for a tenant.
func (r *Record) Get(tenant string) (Entry, bool) {
	v, ok := r.entries.Load(tenant)
	if !ok {
		return Entry{}, false
	}
	return v.(Entry), true
}

// Clear removes a tenant's entry.
func (r *Record) Clear(tenant string) {
	r.entries.Delete(tenant)
}
