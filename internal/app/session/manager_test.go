package session

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/ourtube/internal/app/audit"
	"github.com/osa030/ourtube/internal/app/filter"
	"github.com/osa030/ourtube/internal/app/notification"
	"github.com/osa030/ourtube/internal/app/player"
	"github.com/osa030/ourtube/internal/app/resolver"
	"github.com/osa030/ourtube/internal/app/volume"
	"github.com/osa030/ourtube/internal/domain/track"
	"github.com/osa030/ourtube/internal/infra/config"
)

const waitFor = 2 * time.Second

type stubResolver struct {
	tracks map[string]track.Track
}

func (r *stubResolver) Name() string         { return "stub" }
func (r *stubResolver) Supports(string) bool { return true }
func (r *stubResolver) Resolve(ctx context.Context, locator string) (*track.Track, error) {
	t, ok := r.tracks[locator]
	if !ok {
		return nil, &resolver.ResolutionError{Locator: locator, Resolver: "stub", Cause: resolver.ErrTrackNotFound}
	}
	return &t, nil
}

// blockingReader yields no audio until closed.
type blockingReader struct {
	once   sync.Once
	done   chan struct{}
	frames int64
}

func (b *blockingReader) ExpectedFrames() int64 {
	return b.frames
}

func (b *blockingReader) Read([]byte) (int, error) {
	<-b.done
	return 0, io.EOF
}

func (b *blockingReader) Close() error {
	b.once.Do(func() { close(b.done) })
	return nil
}

// source plays "short:" locators for three frames and blocks on anything else.
func source(locator string, duration time.Duration) io.ReadCloser {
	if strings.HasPrefix(locator, "short:") {
		return io.NopCloser(bytes.NewReader(make([]byte, 3*player.FrameSize)))
	}
	return &blockingReader{done: make(chan struct{}), frames: duration.Milliseconds() * 48}
}

type fakeStream struct {
	mu   sync.Mutex
	sent []*notification.Notification
}

func (s *fakeStream) Send(n *notification.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, n)
	return nil
}

func (s *fakeStream) at(i int) *notification.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent[i]
}

func (s *fakeStream) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sent))
	for _, n := range s.sent {
		out = append(out, n.Type)
	}
	return out
}

func newTestManager(t *testing.T, filters ...filter.Filter) *Manager {
	chain := filter.NewChain()
	for _, f := range filters {
		chain.Add(f)
	}
	tracks := map[string]track.Track{}
	for _, id := range []string{"a", "b", "c", "short:d"} {
		tracks[id] = track.Track{ID: id, Name: "Song " + id, Duration: time.Minute, Locator: id}
	}

	m := New(Options{
		Resolver: &stubResolver{tracks: tracks},
		Source:   source,
		Filters:  chain,
		Player: player.Config{
			FrameInterval: time.Millisecond,
			EventBuffer:   16,
		},
		ProgressResolution: 200,
		AuditRetain:        100,
		NotificationBuffer: 32,
	})
	t.Cleanup(m.Shutdown)
	return m
}

func playingID(m *Manager, tenantID string) string {
	st, err := m.GetStatus(tenantID)
	if err != nil || st.Playing == nil {
		return ""
	}
	return st.Playing.Track.ID
}

func enqueue(t *testing.T, m *Manager, tenantID, user, locator string) *EnqueueResult {
	t.Helper()
	res, err := m.Enqueue(context.Background(), tenantID, user, locator)
	require.NoError(t, err)
	return res
}

func TestManager_OpenClose(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Open("g2", ""))
	require.NoError(t, m.Open("g1", "voice"))
	assert.True(t, errors.Is(m.Open("g1", ""), ErrTenantExists))
	assert.True(t, errors.Is(m.Open("  ", ""), ErrInvalidTenant))

	infos := m.ListTenants()
	require.Len(t, infos, 2)
	assert.Equal(t, "g1", infos[0].ID)
	assert.Equal(t, "voice", infos[0].ChannelID)
	assert.Equal(t, player.StateIdle, infos[0].State)

	require.NoError(t, m.Close("g1"))
	assert.True(t, errors.Is(m.Close("g1"), ErrTenantNotFound))
	assert.Len(t, m.ListTenants(), 1)

	// reopening starts from a clean slate
	require.NoError(t, m.Open("g1", ""))
	st, err := m.GetStatus("g1")
	require.NoError(t, err)
	assert.Empty(t, st.ChannelID)
}

func TestManager_EnqueuePlaysForPresentMember(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Open("g", "voice"))
	present, err := m.Join("g", "voice", "alice", "Alice")
	require.NoError(t, err)
	require.True(t, present)

	res := enqueue(t, m, "g", "alice", " a ")
	require.True(t, res.Accepted)
	assert.Equal(t, CodeSuccess, res.Code)
	require.NotNil(t, res.Entry)
	assert.NotEmpty(t, res.Entry.EntryID)
	assert.Equal(t, "Alice", res.Entry.Submitter.Name)

	require.Eventually(t, func() bool { return playingID(m, "g") == "a" }, waitFor, time.Millisecond)

	st, err := m.GetStatus("g")
	require.NoError(t, err)
	assert.Equal(t, player.StatePlaying, st.State)
	assert.Equal(t, int64(60*48000), st.Expected)
	assert.Zero(t, st.Played)
	assert.Empty(t, st.Queue)
	require.Len(t, st.Members, 1)
	assert.Equal(t, 1, st.Members[0].TotalRequests)

	entries := m.Audit(10)
	require.Len(t, entries, 2)
	assert.Equal(t, audit.StatePerformed, entries[0].State)
	assert.Equal(t, audit.StateAttempted, entries[1].State)
}

func TestManager_TrackEndAdvances(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Open("g", "voice"))
	_, err := m.Join("g", "voice", "alice", "")
	require.NoError(t, err)

	enqueue(t, m, "g", "alice", "short:d")
	enqueue(t, m, "g", "alice", "b")

	require.Eventually(t, func() bool { return playingID(m, "g") == "b" }, waitFor, time.Millisecond)
}

func TestManager_EnqueueRejections(t *testing.T) {
	m := newTestManager(t, &filter.PresenceFilter{})
	require.NoError(t, m.Open("g", "voice"))

	res := enqueue(t, m, "missing", "alice", "a")
	assert.False(t, res.Accepted)
	assert.Equal(t, CodeTenantNotFound, res.Code)

	res = enqueue(t, m, "g", "alice", "unknown")
	assert.False(t, res.Accepted)
	assert.Equal(t, CodeTrackNotFound, res.Code)

	res = enqueue(t, m, "g", "alice", "a")
	assert.False(t, res.Accepted)
	assert.Equal(t, filter.CodeNotInChannel, res.Code)

	entries := m.Audit(0)
	require.Len(t, entries, 4)
	assert.Equal(t, audit.StateDenied, entries[0].State)
	assert.Equal(t, audit.StateDenied, entries[2].State)

	st, err := m.GetStatus("g")
	require.NoError(t, err)
	assert.Empty(t, st.Queue)
}

func TestManager_AbsentSubmitterWaits(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Open("g", "voice"))

	res := enqueue(t, m, "g", "bob", "a")
	require.True(t, res.Accepted)

	st, err := m.GetStatus("g")
	require.NoError(t, err)
	assert.Nil(t, st.Playing)
	require.Len(t, st.Queue, 1)
	assert.False(t, st.Queue[0].Present)
	assert.Equal(t, []string{"bob"}, st.Waiting)
	assert.Equal(t, map[string]int{"bob": 1}, st.Pending)

	present, err := m.Join("g", "voice", "bob", "Bob")
	require.NoError(t, err)
	assert.True(t, present)
	require.Eventually(t, func() bool { return playingID(m, "g") == "a" }, waitFor, time.Millisecond)
}

func TestManager_SelectChannelRetriggers(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Open("g", "voice-1"))

	present, err := m.Join("g", "voice-2", "carol", "")
	require.NoError(t, err)
	assert.False(t, present)
	enqueue(t, m, "g", "carol", "a")
	assert.Equal(t, "", playingID(m, "g"))

	changed, err := m.SelectChannel("g", "admin", "voice-2")
	require.NoError(t, err)
	assert.True(t, changed)
	require.Eventually(t, func() bool { return playingID(m, "g") == "a" }, waitFor, time.Millisecond)

	changed, err = m.SelectChannel("g", "admin", "voice-2")
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = m.SelectChannel("g", "admin", " ")
	assert.True(t, errors.Is(err, ErrInvalidChannel))
	_, err = m.SelectChannel("nope", "admin", "voice")
	assert.True(t, errors.Is(err, ErrTenantNotFound))
}

func TestManager_Skip(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Open("g", "voice"))
	_, err := m.Join("g", "voice", "alice", "")
	require.NoError(t, err)
	_, err = m.Join("g", "voice", "bob", "")
	require.NoError(t, err)

	enqueue(t, m, "g", "alice", "a")
	enqueue(t, m, "g", "bob", "b")
	require.Eventually(t, func() bool { return playingID(m, "g") == "a" }, waitFor, time.Millisecond)

	skipped, err := m.Skip("g", "bob")
	require.NoError(t, err)
	assert.True(t, skipped)
	require.Eventually(t, func() bool { return playingID(m, "g") == "b" }, waitFor, time.Millisecond)
	require.Len(t, m.ListTenants(), 1)
	assert.Equal(t, "b", m.ListTenants()[0].Playing)

	skipped, err = m.Skip("g", "bob")
	require.NoError(t, err)
	assert.True(t, skipped)
	require.Eventually(t, func() bool {
		st, err := m.GetStatus("g")
		return err == nil && st.State == player.StateIdle && st.Playing == nil
	}, waitFor, time.Millisecond)

	// Nothing left: the idle skip changes nothing and is audited as denied.
	skipped, err = m.Skip("g", "bob")
	require.NoError(t, err)
	assert.False(t, skipped)
	last := m.Audit(1)
	require.Len(t, last, 1)
	assert.Equal(t, "skip", last[0].Action)
	assert.Equal(t, audit.StateDenied, last[0].State)

	_, err = m.Skip("nope", "bob")
	assert.True(t, errors.Is(err, ErrTenantNotFound))
}

func TestManager_SetVolume(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Open("g", ""))

	changed, err := m.SetVolume("g", "alice", 55)
	require.NoError(t, err)
	assert.True(t, changed)

	st, err := m.GetStatus("g")
	require.NoError(t, err)
	assert.Equal(t, 55.0, st.Volume)

	tn, err := m.tenant("g")
	require.NoError(t, err)
	assert.Equal(t, 55.0, tn.player.Volume())

	_, err = m.SetVolume("g", "alice", 101)
	assert.True(t, errors.Is(err, volume.ErrInvalidVolume))
	assert.Equal(t, audit.StateDenied, m.Audit(1)[0].State)

	_, err = m.SetVolume("nope", "alice", 10)
	assert.True(t, errors.Is(err, ErrTenantNotFound))
}

func TestManager_LeaveKeepsQueue(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Open("g", "voice"))
	_, err := m.Join("g", "voice", "alice", "")
	require.NoError(t, err)
	enqueue(t, m, "g", "alice", "a")
	enqueue(t, m, "g", "alice", "b")

	require.NoError(t, m.Leave("g", "alice"))
	assert.Error(t, m.Leave("g", "alice"))

	pl, err := m.Queue("g")
	require.NoError(t, err)
	require.Len(t, pl.Queued, 1)
	assert.Equal(t, "b", pl.Queued[0].Track.ID)
}

func TestManager_Subscribe(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Open("g", "voice"))
	_, err := m.SetVolume("g", "admin", 40)
	require.NoError(t, err)

	stream := &fakeStream{}
	done := make(chan error, 1)
	go func() { done <- m.Subscribe(context.Background(), "g", stream) }()

	require.Eventually(t, func() bool { return len(stream.types()) == 1 }, waitFor, time.Millisecond)
	first := stream.at(0)
	assert.Equal(t, notification.TypeSnapshot, first.Type)
	require.NotNil(t, first.Snapshot)
	assert.Equal(t, 40.0, first.Snapshot.Volume)
	assert.Equal(t, "voice", first.Snapshot.ChannelID)

	enqueue(t, m, "g", "bob", "a")
	require.Eventually(t, func() bool {
		types := stream.types()
		return len(types) >= 2 && types[1] == "queued"
	}, waitFor, time.Millisecond)

	require.NoError(t, m.Close("g"))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("subscription did not end with the tenant")
	}
	types := stream.types()
	assert.Equal(t, notification.TypeTenantClosed, types[len(types)-1])

	assert.True(t, errors.Is(m.Subscribe(context.Background(), "g", stream), ErrTenantNotFound))
}

func TestManager_SubscribeEndsWithContext(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Open("g", ""))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Subscribe(ctx, "g", &fakeStream{}) }()

	require.Eventually(t, func() bool { return m.notification.SubscriberCount("g") == 1 }, waitFor, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 0, m.notification.SubscriberCount("g"))
}

func TestManager_Shutdown(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Open("g1", "voice"))
	require.NoError(t, m.Open("g2", "voice"))
	_, err := m.Join("g1", "voice", "alice", "")
	require.NoError(t, err)
	enqueue(t, m, "g1", "alice", "a")
	require.Eventually(t, func() bool { return playingID(m, "g1") == "a" }, waitFor, time.Millisecond)

	m.Shutdown()
	assert.Empty(t, m.ListTenants())
	assert.True(t, errors.Is(m.Open("g3", ""), ErrShuttingDown))
	m.Shutdown()
}

func TestManager_Resolve(t *testing.T) {
	m := newTestManager(t)

	trk, err := m.Resolve(context.Background(), " a ")
	require.NoError(t, err)
	assert.Equal(t, "Song a", trk.Name)

	_, err = m.Resolve(context.Background(), "missing")
	assert.True(t, errors.Is(err, resolver.ErrTrackNotFound))
}

func TestSetupFilters(t *testing.T) {
	tests := []struct {
		name      string
		filters   map[string]config.FilterConfig
		wantNames []string
		wantErr   bool
	}{
		{
			name: "enabled filters in name order",
			filters: map[string]config.FilterConfig{
				"queue_limit_filter":     {Enabled: true, Settings: map[string]any{"max_pending": 2}},
				"duplicate_track_filter": {Enabled: true},
				"presence_filter":        {Enabled: false},
			},
			wantNames: []string{"duplicate_track_filter", "queue_limit_filter"},
		},
		{
			name:    "unknown filter",
			filters: map[string]config.FilterConfig{"market_filter": {Enabled: true}},
			wantErr: true,
		},
		{
			name: "invalid settings",
			filters: map[string]config.FilterConfig{
				"duration_limit_filter": {Enabled: true, Settings: map[string]any{"min_minutes": 10, "max_minutes": 5}},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain, err := setupFilters(&config.Config{Filters: tt.filters})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			names := make([]string, 0)
			for _, f := range chain.Filters() {
				names = append(names, f.Name())
			}
			assert.Equal(t, tt.wantNames, names)
		})
	}
}

func TestSinkFactory(t *testing.T) {
	sink, err := sinkFactory(config.OutputConfig{Kind: "discard"})("g")
	require.NoError(t, err)
	assert.IsType(t, player.DiscardSink{}, sink)

	sink, err = sinkFactory(config.OutputConfig{Kind: "file", Dir: t.TempDir()})("g")
	require.NoError(t, err)
	require.NoError(t, sink.WriteFrame([]byte{1, 2}))
	closer, ok := sink.(io.Closer)
	require.True(t, ok)
	require.NoError(t, closer.Close())
}
