// Package session provides the session manager: the registry of open tenants
// and the entry point for every user and admin operation.
package session

import (
	"context"
	"io"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/ourtube/internal/app/audit"
	"github.com/osa030/ourtube/internal/app/eventbus"
	"github.com/osa030/ourtube/internal/app/filter"
	"github.com/osa030/ourtube/internal/app/notification"
	"github.com/osa030/ourtube/internal/app/pipeline"
	"github.com/osa030/ourtube/internal/app/player"
	"github.com/osa030/ourtube/internal/app/progress"
	"github.com/osa030/ourtube/internal/app/queue"
	"github.com/osa030/ourtube/internal/app/resolver"
	"github.com/osa030/ourtube/internal/app/scheduler"
	"github.com/osa030/ourtube/internal/app/session/registry"
	"github.com/osa030/ourtube/internal/app/volume"
	"github.com/osa030/ourtube/internal/domain/playlist"
	"github.com/osa030/ourtube/internal/domain/track"
	"github.com/osa030/ourtube/internal/infra/config"
	"github.com/osa030/ourtube/internal/infra/metrics"
)

var (
	ErrTenantNotFound = errors.New("tenant not found")
	ErrTenantExists   = errors.New("tenant already open")
	ErrShuttingDown   = errors.New("session manager is shutting down")
	ErrInvalidTenant  = errors.New("tenant id is required")
	ErrInvalidChannel = errors.New("channel id is required")
)

// Result codes returned alongside filter codes.
const (
	CodeSuccess        = "success"
	CodeTrackNotFound  = "track_not_found"
	CodeTenantNotFound = "tenant_not_found"
	CodeInvalidVolume  = "invalid_volume"
	CodeNothingPlaying = "nothing_playing"
)

// SinkFactory creates the frame sink of a tenant.
type SinkFactory func(tenant string) (player.Sink, error)

// Options holds the dependencies and tuning of a Manager.
type Options struct {
	Resolver           resolver.Resolver
	Source             player.Source
	Sink               SinkFactory
	Filters            *filter.Chain
	Player             player.Config
	ProgressResolution int
	DefaultVolume      float64
	AuditRetain        int
	NotificationBuffer int
}

// Tenant is one open playback session.
type Tenant struct {
	id        string
	scheduler *scheduler.Scheduler
	player    *player.Player
	reporter  *progress.Reporter
	volumeSub string
	openedAt  time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// Manager manages open tenants and the state shared between them.
type Manager struct {
	mu      sync.RWMutex
	tenants map[string]*Tenant
	closed  bool

	opts Options

	// Components
	bus          *eventbus.Bus
	channels     *registry.ChannelRegistry
	presence     *registry.PresenceRegistry
	volumes      *volume.Store
	progress     *progress.Record
	audit        *audit.Trail
	notification *notification.Manager
	clock        *queue.Clock
}

// New creates a manager from explicit options.
func New(opts Options) *Manager {
	if opts.Filters == nil {
		opts.Filters = filter.NewChain()
	}
	if opts.Sink == nil {
		opts.Sink = func(string) (player.Sink, error) { return player.DiscardSink{}, nil }
	}
	if opts.DefaultVolume <= 0 {
		opts.DefaultVolume = volume.Default
	}

	bus := eventbus.New()
	channels := registry.NewChannelRegistry(bus)
	return &Manager{
		tenants:      make(map[string]*Tenant),
		opts:         opts,
		bus:          bus,
		channels:     channels,
		presence:     registry.NewPresenceRegistry(channels),
		volumes:      volume.NewStore(bus, opts.DefaultVolume),
		progress:     progress.NewRecord(),
		audit:        audit.NewTrail(opts.AuditRetain),
		notification: notification.NewManager(opts.NotificationBuffer),
		clock:        queue.NewClock(),
	}
}

// NewManager creates a manager wired to the subprocess pipeline and the configured filters.
func NewManager(cfg *config.Config, res resolver.Resolver) (*Manager, error) {
	pipe := pipeline.New(pipeline.Config{
		Fetcher:           cfg.Pipeline.Fetcher,
		Transcoder:        cfg.Pipeline.Transcoder,
		SampleRate:        cfg.Pipeline.SampleRate,
		StallTimeout:      cfg.Pipeline.StallTimeout(),
		ChunkSize:         cfg.Pipeline.ChunkSize,
		MaxSessions:       cfg.Pipeline.MaxSessions,
		FetcherOKCodes:    cfg.Pipeline.FetcherOKCodes,
		TranscoderOKCodes: cfg.Pipeline.TranscoderOKCodes,
	})

	chain, err := setupFilters(cfg)
	if err != nil {
		return nil, err
	}

	return New(Options{
		Resolver: res,
		Source: func(locator string, duration time.Duration) io.ReadCloser {
			return pipe.Open(locator, duration)
		},
		Sink:    sinkFactory(cfg.Playback.Output),
		Filters: chain,
		Player: player.Config{
			FrameInterval: cfg.Playback.FrameInterval(),
			EventBuffer:   cfg.Playback.EventBuffer,
			SampleRate:    cfg.Pipeline.SampleRate,
		},
		ProgressResolution: cfg.Progress.Resolution,
		DefaultVolume:      cfg.Playback.DefaultVolume,
		AuditRetain:        cfg.Audit.Retain,
	}), nil
}

// setupFilters builds the filter chain from the enabled filters in name order.
func setupFilters(cfg *config.Config) (*filter.Chain, error) {
	chain := filter.NewChain()
	for _, name := range slices.Sorted(maps.Keys(cfg.Filters)) {
		if !cfg.IsFilterEnabled(name) {
			continue
		}
		f, ok := filter.New(name)
		if !ok {
			return nil, errors.Newf("unknown filter %q", name)
		}
		if err := f.ValidateConfig(cfg.GetFilterSettings(name)); err != nil {
			return nil, errors.Wrapf(err, "filter %s", name)
		}
		chain.Add(f)
		zlog.Info().Msgf("session: filter enabled: %s", name)
	}
	return chain, nil
}

func sinkFactory(out config.OutputConfig) SinkFactory {
	if out.Kind == "file" {
		return func(tenant string) (player.Sink, error) {
			return player.NewFileSink(out.Dir, tenant)
		}
	}
	return func(string) (player.Sink, error) { return player.DiscardSink{}, nil }
}

// Bus returns the event bus shared by all tenants.
func (m *Manager) Bus() *eventbus.Bus {
	return m.bus
}

// Filters returns the active filters.
func (m *Manager) Filters() []filter.Filter {
	return m.opts.Filters.Filters()
}

// Open opens a tenant and optionally selects its playback channel.
func (m *Manager) Open(tenantID, channelID string) error {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return ErrInvalidTenant
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrShuttingDown
	}
	if _, ok := m.tenants[tenantID]; ok {
		return errors.Wrapf(ErrTenantExists, "tenant %s", tenantID)
	}

	sink, err := m.opts.Sink(tenantID)
	if err != nil {
		return errors.Wrapf(err, "failed to create sink for tenant %s", tenantID)
	}

	cfg := m.opts.Player
	cfg.DefaultVolume = m.volumes.Get(tenantID)
	p := player.New(tenantID, m.opts.Source, sink, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	t := &Tenant{
		id:        tenantID,
		scheduler: scheduler.New(tenantID, m.presence, p, m.bus),
		player:    p,
		reporter:  progress.NewReporter(tenantID, m.bus, m.progress, m.opts.ProgressResolution),
		openedAt:  time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	t.volumeSub = m.bus.Subscribe(tenantID, func(e eventbus.Event) {
		p.SetVolume(e.Volume)
	}, eventbus.KindVolumeChanged)

	m.tenants[tenantID] = t
	go m.loop(ctx, t)

	if channelID != "" {
		m.channels.Select(tenantID, channelID)
	}

	metrics.OpenTenants.Inc()
	zlog.Info().Str("tenant", tenantID).Msgf("session: tenant opened: channel=%s", channelID)
	return nil
}

// Close stops playback of a tenant and drops every piece of its state.
func (m *Manager) Close(tenantID string) error {
	m.mu.Lock()
	t, ok := m.tenants[tenantID]
	if ok {
		delete(m.tenants, tenantID)
	}
	m.mu.Unlock()
	if !ok {
		return errors.Wrapf(ErrTenantNotFound, "tenant %s", tenantID)
	}

	m.closeTenant(t)
	return nil
}

func (m *Manager) closeTenant(t *Tenant) {
	m.notification.Broadcast(t.id, &notification.Notification{
		Type: notification.TypeTenantClosed,
		At:   time.Now(),
	})
	m.notification.CloseTenant(t.id)

	t.reporter.Stop()
	t.player.Close()
	<-t.done
	t.cancel()

	m.bus.Unsubscribe(t.id, t.volumeSub)
	if n := m.bus.SubscriberCount(t.id); n > 0 {
		zlog.Debug().Str("tenant", t.id).Msgf("session: dropping %d bus subscriptions", n)
	}
	m.bus.Drop(t.id)
	m.progress.Clear(t.id)
	m.volumes.Clear(t.id)
	m.channels.Clear(t.id)
	m.presence.ClearTenant(t.id)

	metrics.OpenTenants.Dec()
	zlog.Info().Str("tenant", t.id).Msg("session: tenant closed")
}

// Shutdown closes every tenant and all remote subscriptions.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	tenants := make([]*Tenant, 0, len(m.tenants))
	for _, t := range m.tenants {
		tenants = append(tenants, t)
	}
	m.tenants = make(map[string]*Tenant)
	m.mu.Unlock()

	for _, t := range tenants {
		m.closeTenant(t)
	}
	m.notification.Close()
	zlog.Info().Msgf("session: shutdown complete: closed %d tenants", len(tenants))
}

func (m *Manager) tenant(tenantID string) (*Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tenants[tenantID]
	if !ok {
		return nil, errors.Wrapf(ErrTenantNotFound, "tenant %s", tenantID)
	}
	return t, nil
}

// loop consumes player events of a tenant until its player closes.
func (m *Manager) loop(ctx context.Context, t *Tenant) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Str("tenant", t.id).Msgf("session: event loop panicked: %v", r)
			// Restart loop to keep the tenant playing
			zlog.Info().Str("tenant", t.id).Msg("session: restarting event loop")
			go m.loop(ctx, t)
			return
		}
		close(t.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-t.player.Events():
			if !ok {
				return
			}
			m.handlePlayerEvent(t, event)
		}
	}
}

func (m *Manager) handlePlayerEvent(t *Tenant, event player.Event) {
	if event.Track == nil {
		return
	}
	zlog.Debug().Str("tenant", t.id).Msgf("session: player event: type=%s entry=%s", event.Type, event.Track.EntryID)

	switch event.Type {
	case player.EventTrackStarted:
		t.reporter.Start(event.Track, t.player.ElapsedMs)

	case player.EventTrackEnded:
		t.reporter.Stop()
		if event.Err != nil {
			zlog.Warn().Str("tenant", t.id).Msgf("session: track %s ended with error: %v", event.Track.Track.ID, event.Err)
		}
		t.scheduler.OnTrackEnd(event.Track, event.Reason)
	}
}

// EnqueueResult is the outcome of an enqueue request.
type EnqueueResult struct {
	Accepted bool
	Code     string
	Entry    *track.QueuedTrack
}

// Enqueue resolves a locator, runs the filter chain and appends the track to
// the submitter's personal queue.
func (m *Manager) Enqueue(ctx context.Context, tenantID, userID, locator string) (*EnqueueResult, error) {
	locator = strings.TrimSpace(locator)

	t, err := m.tenant(tenantID)
	if err != nil {
		metrics.RequestsRejected.WithLabelValues(CodeTenantNotFound).Inc()
		return &EnqueueResult{Code: CodeTenantNotFound}, nil
	}

	action := m.audit.Action(tenantID, userID, "enqueue %s", locator).Attempted()

	trk, err := m.opts.Resolver.Resolve(ctx, locator)
	if err != nil {
		zlog.Warn().Str("tenant", tenantID).Msgf("session: track request rejected: user=%s locator=%s code=%s: %v",
			userID, locator, CodeTrackNotFound, err)
		metrics.RequestsRejected.WithLabelValues(CodeTrackNotFound).Inc()
		action.Denied()
		return &EnqueueResult{Code: CodeTrackNotFound}, nil
	}

	req := filter.Request{
		Tenant:      tenantID,
		SubmitterID: userID,
		Locator:     locator,
		Present:     m.presence.IsPresent(tenantID, userID),
		Queue:       t.scheduler.Snapshot(),
	}
	name := userID
	if member, err := m.presence.Get(tenantID, userID); err == nil {
		req.Member = &member
		if member.DisplayName != "" {
			name = member.DisplayName
		}
	}

	result := m.opts.Filters.Execute(ctx, req, *trk)
	zlog.Info().Str("tenant", tenantID).Msgf("session: track request: user=%s track=%s result=%t code=%s",
		name, trk.Name, result.Accepted, result.Code)
	if !result.Accepted {
		metrics.RequestsRejected.WithLabelValues(result.Code).Inc()
		action.Denied()
		return &EnqueueResult{Code: result.Code}, nil
	}

	qt := track.QueuedTrack{
		EntryID:   uuid.New().String(),
		Track:     *trk,
		Submitter: track.Submitter{ID: userID, Name: name},
		QueueTime: m.clock.Next(),
	}
	t.scheduler.Enqueue(qt)
	m.presence.RecordRequest(tenantID, userID)
	action.Performed()

	return &EnqueueResult{Accepted: true, Code: CodeSuccess, Entry: &qt}, nil
}

// Resolve resolves a locator without enqueueing it.
func (m *Manager) Resolve(ctx context.Context, locator string) (*track.Track, error) {
	return m.opts.Resolver.Resolve(ctx, strings.TrimSpace(locator))
}

// Skip interrupts the playing track and starts the next candidate, if any.
// It reports false, audited as denied, when nothing was playing or queued.
func (m *Manager) Skip(tenantID, userID string) (bool, error) {
	t, err := m.tenant(tenantID)
	if err != nil {
		return false, err
	}
	action := m.audit.Action(tenantID, userID, "skip").Attempted()
	if !t.scheduler.Skip() {
		zlog.Debug().Str("tenant", tenantID).Msgf("session: nothing to skip for %s", userID)
		action.Denied()
		return false, nil
	}
	action.Performed()
	return true, nil
}

// SetVolume sets the tenant volume in [0, 100]. It reports whether the volume changed.
func (m *Manager) SetVolume(tenantID, userID string, v float64) (bool, error) {
	if _, err := m.tenant(tenantID); err != nil {
		return false, err
	}
	action := m.audit.Action(tenantID, userID, "set volume %g", v).Attempted()
	changed, err := m.volumes.Set(tenantID, v)
	if err != nil {
		action.Denied()
		return false, err
	}
	action.Performed()
	return changed, nil
}

// SelectChannel moves playback of a tenant to another channel, which changes who is present.
func (m *Manager) SelectChannel(tenantID, userID, channelID string) (bool, error) {
	t, err := m.tenant(tenantID)
	if err != nil {
		return false, err
	}
	action := m.audit.Action(tenantID, userID, "select channel %s", channelID).Attempted()
	if strings.TrimSpace(channelID) == "" {
		action.Denied()
		return false, ErrInvalidChannel
	}
	changed := m.channels.Select(tenantID, channelID)
	action.Performed()
	if changed {
		t.scheduler.Retrigger()
	}
	return changed, nil
}

// Join records a member connecting to a channel. It reports whether the
// member is now present in the tenant's selected channel.
func (m *Manager) Join(tenantID, channelID, memberID, displayName string) (bool, error) {
	t, err := m.tenant(tenantID)
	if err != nil {
		return false, err
	}
	present := m.presence.Join(tenantID, channelID, memberID, displayName)
	zlog.Info().Str("tenant", tenantID).Msgf("session: member joined: member=%s channel=%s present=%t", memberID, channelID, present)
	if present {
		t.scheduler.Retrigger()
	}
	return present, nil
}

// Leave records a member disconnecting. Their queued tracks stay queued.
func (m *Manager) Leave(tenantID, memberID string) error {
	if _, err := m.tenant(tenantID); err != nil {
		return err
	}
	if err := m.presence.Leave(tenantID, memberID); err != nil {
		return err
	}
	zlog.Info().Str("tenant", tenantID).Msgf("session: member left: member=%s", memberID)
	return nil
}

// Queue returns the playing track and the queued tracks of a tenant.
func (m *Manager) Queue(tenantID string) (playlist.Playlist, error) {
	t, err := m.tenant(tenantID)
	if err != nil {
		return playlist.Playlist{}, err
	}
	return t.scheduler.Snapshot(), nil
}

// Subscribe streams notifications of a tenant to stream until ctx ends, the
// tenant closes or a send fails. The first notification is a snapshot.
func (m *Manager) Subscribe(ctx context.Context, tenantID string, stream notification.Stream) error {
	t, err := m.tenant(tenantID)
	if err != nil {
		return err
	}

	sub := m.notification.Open(tenantID, stream)
	defer m.notification.Unsubscribe(sub.ID())

	pl, busID := t.scheduler.SubscribeWithSnapshot(sub.Handle)
	defer m.bus.Unsubscribe(tenantID, busID)

	channelID, _ := m.channels.Selected(tenantID)
	first := &notification.Notification{
		Tenant:   tenantID,
		Type:     notification.TypeSnapshot,
		Snapshot: notification.NewSnapshot(pl, m.percent(tenantID, pl.Playing), m.volumes.Get(tenantID), channelID),
		At:       time.Now(),
	}

	zlog.Info().Str("tenant", tenantID).Msgf("session: subscriber %s connected", sub.ID())
	err = sub.Run(ctx, first)
	zlog.Info().Str("tenant", tenantID).Msgf("session: subscriber %s disconnected", sub.ID())
	if errors.Is(err, notification.ErrManagerClosed) {
		return nil
	}
	return err
}

// percent returns the recorded progress when it belongs to the playing entry.
func (m *Manager) percent(tenantID string, playing *track.QueuedTrack) float64 {
	if playing == nil {
		return 0
	}
	if e, ok := m.progress.Get(tenantID); ok && e.EntryID == playing.EntryID {
		return e.Percent
	}
	return 0
}

// Audit returns the most recent audit entries, newest first.
func (m *Manager) Audit(limit int) []audit.Entry {
	return m.audit.Recent(limit)
}
