// Package audit records user actions as attempted, performed or denied.
package audit

import (
	"fmt"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/ourtube/internal/infra/metrics"
)

// State is the outcome recorded for an action.
type State string

const (
	StateAttempted State = "attempted"
	StatePerformed State = "performed"
	StateDenied    State = "denied"
)

const defaultRetain = 500

// Entry is one recorded state change.
type Entry struct {
	Time   time.Time
	Tenant string
	UserID string
	Action string
	State  State
}

// Trail logs actions and keeps the most recent entries in memory.
type Trail struct {
	mu      sync.RWMutex
	entries []Entry
	next    int
	full    bool
}

// NewTrail creates a trail retaining up to retain entries (500 when retain <= 0).
func NewTrail(retain int) *Trail {
	if retain <= 0 {
		retain = defaultRetain
	}
	return &Trail{entries: make([]Entry, retain)}
}

// Action starts recording an action. The description is formatted with args.
func (t *Trail) Action(tenant, userID, format string, args ...any) *Action {
	return &Action{
		trail:  t,
		tenant: tenant,
		userID: userID,
		action: fmt.Sprintf(format, args...),
	}
}

// Recent returns up to limit entries, newest first. limit <= 0 returns all retained entries.
func (t *Trail) Recent(limit int) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := t.next
	if t.full {
		n = len(t.entries)
	}
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]Entry, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (t.next - 1 - i + len(t.entries)) % len(t.entries)
		out = append(out, t.entries[idx])
	}
	return out
}

func (t *Trail) record(e Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries[t.next] = e
	t.next++
	if t.next == len(t.entries) {
		t.next = 0
		t.full = true
	}
}

// Action is one audited user action.
type Action struct {
	trail  *Trail
	tenant string
	userID string
	action string
}

// Attempted records that the action was requested.
func (a *Action) Attempted() *Action {
	return a.log(StateAttempted)
}

// Performed records that the action took effect.
func (a *Action) Performed() *Action {
	return a.log(StatePerformed)
}

// Denied records that the action was refused.
func (a *Action) Denied() *Action {
	return a.log(StateDenied)
}

func (a *Action) log(state State) *Action {
	zlog.Info().Str("tenant", a.tenant).Msgf("user %s: action '%s' %s", a.userID, a.action, state)
	metrics.AuditActions.WithLabelValues(string(state)).Inc()
	a.trail.record(Entry{
		Time:   time.Now(),
		Tenant: a.tenant,
		UserID: a.userID,
		Action: a.action,
		State:  state,
	})
	return a
}
