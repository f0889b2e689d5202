package progress

import (
	"context"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/ourtube/internal/app/eventbus"
	"github.com/osa030/ourtube/internal/domain/track"
)

const (
	// DefaultResolution is the number of updates per track.
	DefaultResolution = 200
	// MinPeriod bounds the update rate of very short tracks.
	MinPeriod = 10 * time.Millisecond
)

// ElapsedFunc returns the cumulative played time in milliseconds.
type ElapsedFunc func() int64

// Reporter ticks progress for one tenant's current track.
type Reporter struct {
	mu sync.Mutex

	tenant     string
	bus        *eventbus.Bus
	record     *Record
	resolution int

	cancel func()
	gen    uint64
}

// NewReporter creates a reporter. A resolution <= 0 uses DefaultResolution.
func NewReporter(tenant string, bus *eventbus.Bus, record *Record, resolution int) *Reporter {
	if resolution <= 0 {
		resolution = DefaultResolution
	}
	return &Reporter{
		tenant:     tenant,
		bus:        bus,
		record:     record,
		resolution: resolution,
	}
}

// Period returns the tick period for a track duration.
func (r *Reporter) Period(d time.Duration) time.Duration {
	period := d / time.Duration(r.resolution)
	if period < MinPeriod {
		return MinPeriod
	}
	return period
}

// Start cancels any running task and begins reporting for qt. Percent is
// measured from the elapsed value at the time of the call.
func (r *Reporter) Start(qt *track.QueuedTrack, elapsed ElapsedFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopLocked()
	r.gen++
	gen := r.gen

	entry := Entry{TrackID: qt.Track.ID, EntryID: qt.EntryID}
	r.record.Set(r.tenant, entry)
	r.postLocked(qt, 0)

	duration := qt.Track.Duration
	if duration <= 0 {
		zlog.Debug().Str("tenant", r.tenant).Msgf("progress: track %s has no duration, not reporting", qt.Track.ID)
		return
	}

	t := &task{
		reporter: r,
		gen:      gen,
		qt:       qt,
		elapsed:  elapsed,
		baseline: elapsed(),
		duration: duration,
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	go t.run(ctx, r.Period(duration))
}

// Stop cancels the running task. The record keeps its last value.
func (r *Reporter) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
	r.gen++
}

func (r *Reporter) stopLocked() {
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

func (r *Reporter) postLocked(qt *track.QueuedTrack, percent float64) {
	r.bus.Post(r.tenant, eventbus.Event{
		Kind:    eventbus.KindProgressUpdated,
		Track:   qt,
		Percent: percent,
	})
}

// task is the periodic update bound to one track.
type task struct {
	reporter *Reporter
	gen      uint64
	qt       *track.QueuedTrack
	elapsed  ElapsedFunc
	baseline int64
	duration time.Duration
	last     float64
}

func (t *task) run(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.tick()
		}
	}
}

func (t *task) tick() {
	percent := 100 * float64(t.elapsed()-t.baseline) / float64(t.duration.Milliseconds())
	if percent < t.last {
		percent = t.last
	}
	if percent > 100 {
		percent = 100
	}
	t.last = percent

	r := t.reporter
	r.mu.Lock()
	defer r.mu.Unlock()

	// Stopped or restarted since this tick began.
	if r.gen != t.gen {
		return
	}
	r.record.Set(r.tenant, Entry{TrackID: t.qt.Track.ID, EntryID: t.qt.EntryID, Percent: percent})
	r.postLocked(t.qt, percent)
}
