package player

import (
	"context"
	"io"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/ourtube/internal/domain/track"
	"github.com/osa030/ourtube/internal/infra/metrics"
)

// Source opens the decoded audio stream for a track.
type Source func(locator string, duration time.Duration) io.ReadCloser

// Lengther is implemented by streams that know their decoded length up front.
type Lengther interface {
	ExpectedFrames() int64
}

// Config holds player configuration.
type Config struct {
	FrameInterval time.Duration // Pump tick; 20ms in production
	EventBuffer   int           // Capacity of the event channel
	DefaultVolume float64       // Volume in [0, 100]
	SampleRate    int           // Rate of the decoded stream; sizes the frames
}

// activeTrack is the track currently attached to the provider.
type activeTrack struct {
	qt        *track.QueuedTrack
	stream    io.ReadCloser
	startedAt time.Time

	baseFrames int64 // provider sample frames at attach
	expected   int64 // 0 when the stream does not know its length
}

// Player pumps frames of the active track to a sink.
type Player struct {
	mu sync.Mutex

	tenant   string
	source   Source
	sink     Sink
	provider *Provider
	config   Config

	active *activeTrack
	volume float64
	closed bool

	// Events. pending is unbounded so lifecycle events are never lost;
	// deliver moves them to eventCh in order.
	eventCh chan Event
	pending []Event
	wake    chan struct{}

	// Context
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a player and starts its pump goroutine.
func New(tenant string, source Source, sink Sink, config Config) *Player {
	if config.FrameInterval <= 0 {
		config.FrameInterval = FrameDuration
	}
	if config.EventBuffer <= 0 {
		config.EventBuffer = 64
	}
	if sink == nil {
		sink = DiscardSink{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Player{
		tenant:   tenant,
		source:   source,
		sink:     sink,
		provider: NewProvider(config.SampleRate),
		config:   config,
		eventCh:  make(chan Event, config.EventBuffer),
		wake:     make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
	}
	p.setVolumeLocked(config.DefaultVolume)

	p.wg.Add(2)
	go p.pump()
	go p.deliver()
	return p
}

// Events returns the event channel. Every event is delivered, in order; the
// channel is closed by Close after the last one.
func (p *Player) Events() <-chan Event {
	return p.eventCh
}

// StartTrack attaches a new track. It returns false when a track is active and
// interrupt is not set; with interrupt the active track ends as Replaced.
func (p *Player) StartTrack(qt *track.QueuedTrack, interrupt bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return false
	}
	if p.active != nil {
		if !interrupt {
			return false
		}
		p.endLocked(EndReplaced, nil)
	}

	stream := p.source(qt.Track.Locator, qt.Track.Duration)
	a := &activeTrack{
		qt:         qt,
		stream:     stream,
		startedAt:  time.Now(),
		baseFrames: p.provider.SampleFrames(),
	}
	if l, ok := stream.(Lengther); ok {
		a.expected = l.ExpectedFrames()
	}
	p.active = a
	p.provider.Attach(stream)

	zlog.Info().Str("tenant", p.tenant).Msgf("player: track started: %s (%s) requested by %s, expected_frames=%d",
		qt.Track.Name, qt.Track.ID, qt.Submitter.ID, a.expected)
	p.sendEventLocked(Event{
		Type:  EventTrackStarted,
		Track: qt,
	})
	return true
}

// Stop ends the active track with reason Stopped.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active == nil {
		return
	}
	p.endLocked(EndStopped, nil)
}

// Current returns the active track.
func (p *Player) Current() (*track.QueuedTrack, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active == nil {
		return nil, false
	}
	return p.active.qt, true
}

// Position returns the sample frames played of the active track and the
// length its stream announced. Both are 0 when idle.
func (p *Player) Position() (played, expected int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active == nil {
		return 0, 0
	}
	return p.provider.SampleFrames() - p.active.baseFrames, p.active.expected
}

// State returns the player state.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case p.closed:
		return StateClosed
	case p.active != nil:
		return StatePlaying
	default:
		return StateIdle
	}
}

// SetVolume sets the output volume in [0, 100].
func (p *Player) SetVolume(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setVolumeLocked(v)
}

func (p *Player) setVolumeLocked(v float64) {
	p.volume = v
	p.provider.SetGain(v / 100)
}

// Volume returns the output volume.
func (p *Player) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// ElapsedMs returns the cumulative played time of this player.
func (p *Player) ElapsedMs() int64 {
	return p.provider.ElapsedMs()
}

// Close ends the active track with reason Cleanup, stops the pump and closes
// the event channel once every pending event has been handed over. Events
// beyond the channel capacity need a reader for Close to return.
func (p *Player) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	if p.active != nil {
		p.endLocked(EndCleanup, nil)
	}
	p.signalLocked()
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()

	if c, ok := p.sink.(io.Closer); ok {
		_ = c.Close()
	}
}

// endLocked detaches the active track and reports its end.
// Must be called with lock held.
func (p *Player) endLocked(reason EndReason, err error) {
	a := p.active
	p.active = nil
	_ = a.stream.Close()

	metrics.TracksEnded.WithLabelValues(reason.String()).Inc()
	zlog.Debug().Str("tenant", p.tenant).Msgf("player: track ended: track=%s reason=%s played=%v frames=%d/%d err=%v",
		a.qt.Track.ID, reason, time.Since(a.startedAt).Round(time.Millisecond),
		p.provider.SampleFrames()-a.baseFrames, a.expected, err)

	p.sendEventLocked(Event{
		Type:   EventTrackEnded,
		Track:  a.qt,
		Reason: reason,
		Err:    err,
	})
}

// finish ends a track from the pump. Ends of tracks that are no longer active are ignored.
func (p *Player) finish(a *activeTrack, reason EndReason, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active != a {
		return
	}
	if err != nil {
		zlog.Warn().Str("tenant", p.tenant).Msgf("player: track failed: %s: %v", a.qt.Track.ID, err)
	}
	p.endLocked(reason, err)
}

// sendEventLocked queues an event for delivery without blocking.
// Must be called with lock held.
func (p *Player) sendEventLocked(e Event) {
	p.pending = append(p.pending, e)
	p.signalLocked()
}

func (p *Player) signalLocked() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// deliver hands pending events to the event channel, blocking on a slow
// reader instead of dropping. It closes the channel after the player closed
// and the backlog is empty.
func (p *Player) deliver() {
	defer p.wg.Done()
	defer close(p.eventCh)

	for {
		p.mu.Lock()
		batch := p.pending
		p.pending = nil
		closed := p.closed
		p.mu.Unlock()

		if len(batch) == 0 {
			if closed {
				return
			}
			<-p.wake
			continue
		}
		if len(batch) > p.config.EventBuffer {
			zlog.Debug().Str("tenant", p.tenant).Msgf("player: %d events backlogged", len(batch))
		}
		for _, e := range batch {
			p.eventCh <- e
		}
	}
}

func (p *Player) pump() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.tick()
		}
	}
}

func (p *Player) tick() {
	p.mu.Lock()
	a := p.active
	p.mu.Unlock()
	if a == nil {
		return
	}

	if !p.provider.Provide() {
		if err := p.provider.Err(); err != nil {
			p.finish(a, EndLoadFailed, err)
		} else {
			p.finish(a, EndFinished, nil)
		}
		return
	}

	frame := p.provider.Frame()
	if frame == nil {
		return
	}
	if err := p.sink.WriteFrame(frame); err != nil {
		zlog.Warn().Str("tenant", p.tenant).Msgf("player: sink write failed: %v", err)
	}
	metrics.FramesDelivered.Inc()
}
