package connect

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/ourtube/internal/app/notification"
	"github.com/osa030/ourtube/internal/app/player"
	"github.com/osa030/ourtube/internal/app/resolver"
	"github.com/osa030/ourtube/internal/app/session"
	"github.com/osa030/ourtube/internal/app/session/registry"
	"github.com/osa030/ourtube/internal/app/volume"
	"github.com/osa030/ourtube/internal/domain/track"
	"github.com/osa030/ourtube/internal/infra/config"
)

const adminToken = "test-admin-token"

type stubResolver struct{}

func (stubResolver) Name() string         { return "stub" }
func (stubResolver) Supports(string) bool { return true }
func (stubResolver) Resolve(ctx context.Context, locator string) (*track.Track, error) {
	if locator == "missing" {
		return nil, &resolver.ResolutionError{Locator: locator, Resolver: "stub", Cause: resolver.ErrTrackNotFound}
	}
	return &track.Track{ID: locator, Name: "Song " + locator, Duration: time.Minute, Locator: locator}, nil
}

type silentReader struct {
	once sync.Once
	done chan struct{}
}

func (r *silentReader) Read([]byte) (int, error) {
	<-r.done
	return 0, io.EOF
}

func (r *silentReader) Close() error {
	r.once.Do(func() { close(r.done) })
	return nil
}

type testEnv struct {
	manager *session.Manager
	queue   *QueueClient
	admin   *AdminClient
	server  *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv("ADMIN_TOKEN", "")
	cfg, err := config.Parse([]byte(`
admin:
  token: ` + adminToken + `
resolver:
  youtube:
    api_key: test-youtube-key
`))
	require.NoError(t, err)

	m := session.New(session.Options{
		Resolver: stubResolver{},
		Source: func(string, time.Duration) io.ReadCloser {
			return &silentReader{done: make(chan struct{})}
		},
		Player: player.Config{FrameInterval: time.Millisecond, EventBuffer: 16},
	})

	mux := http.NewServeMux()
	mux.Handle(NewQueueService(m, cfg).Handler())
	mux.Handle(NewAdminService(m).Handler(connect.WithInterceptors(NewAdminAuthInterceptor(cfg.Admin.Token))))
	server := httptest.NewServer(mux)

	t.Cleanup(func() {
		m.Shutdown()
		server.Close()
	})

	return &testEnv{
		manager: m,
		queue:   NewQueueClient(server.Client(), server.URL),
		admin:   NewAdminClient(server.Client(), server.URL, adminToken),
		server:  server,
	}
}

func TestAdminService_RequiresToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, token := range []string{"", "wrong"} {
		client := NewAdminClient(env.server.Client(), env.server.URL, token)
		_, err := client.ListTenants(ctx)
		require.Error(t, err)
		assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))
	}

	resp, err := env.admin.ListTenants(ctx)
	require.NoError(t, err)
	assert.Empty(t, resp.Tenants)
}

func TestAdminService_TenantLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.admin.OpenTenant(ctx, &OpenTenantRequest{Tenant: "g", Channel: "voice"}))
	err := env.admin.OpenTenant(ctx, &OpenTenantRequest{Tenant: "g"})
	assert.Equal(t, connect.CodeAlreadyExists, connect.CodeOf(err))

	joined, err := env.admin.Join(ctx, &JoinRequest{Tenant: "g", Channel: "voice", Member: "alice", Name: "Alice"})
	require.NoError(t, err)
	assert.True(t, joined.Present)

	sel, err := env.admin.SelectChannel(ctx, &SelectChannelRequest{Tenant: "g", User: "admin", Channel: "voice"})
	require.NoError(t, err)
	assert.False(t, sel.Changed)

	status, err := env.admin.GetStatus(ctx, &GetStatusRequest{Tenant: "g"})
	require.NoError(t, err)
	assert.Equal(t, "voice", status.ChannelID)
	assert.Equal(t, "idle", status.State)
	require.Len(t, status.Members, 1)
	assert.Equal(t, "Alice", status.Members[0].Name)

	tenants, err := env.admin.ListTenants(ctx)
	require.NoError(t, err)
	require.Len(t, tenants.Tenants, 1)
	assert.Equal(t, "g", tenants.Tenants[0].ID)

	require.NoError(t, env.admin.Leave(ctx, &LeaveRequest{Tenant: "g", Member: "alice"}))
	err = env.admin.Leave(ctx, &LeaveRequest{Tenant: "g", Member: "alice"})
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))

	audit, err := env.admin.ListAudit(ctx, &ListAuditRequest{Limit: 10})
	require.NoError(t, err)
	require.NotEmpty(t, audit.Entries)
	assert.Equal(t, "performed", audit.Entries[0].State)

	require.NoError(t, env.admin.CloseTenant(ctx, &CloseTenantRequest{Tenant: "g"}))
	_, err = env.admin.GetStatus(ctx, &GetStatusRequest{Tenant: "g"})
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))
}

func TestQueueService_Enqueue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.manager.Open("g", "voice"))

	resp, err := env.queue.Enqueue(ctx, &EnqueueRequest{Tenant: "g", User: "bob", Locator: "abc"})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, session.CodeSuccess, resp.Code)
	assert.Equal(t, "Queued.", resp.Message)
	require.NotNil(t, resp.Entry)
	assert.Equal(t, "abc", resp.Entry.TrackID)
	assert.Equal(t, int64(60000), resp.Entry.DurationMs)

	resp, err = env.queue.Enqueue(ctx, &EnqueueRequest{Tenant: "g", User: "bob", Locator: "missing"})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, session.CodeTrackNotFound, resp.Code)
	assert.NotEmpty(t, resp.Message)
	assert.Nil(t, resp.Entry)

	resp, err = env.queue.Enqueue(ctx, &EnqueueRequest{Tenant: "nope", User: "bob", Locator: "abc"})
	require.NoError(t, err)
	assert.Equal(t, session.CodeTenantNotFound, resp.Code)

	queue, err := env.queue.GetQueue(ctx, &GetQueueRequest{Tenant: "g"})
	require.NoError(t, err)
	assert.Nil(t, queue.Playing)
	require.Len(t, queue.Queued, 1)
	assert.Equal(t, "bob", queue.Queued[0].SubmitterID)
}

func TestQueueService_SetVolumeAndSkip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.manager.Open("g", ""))

	resp, err := env.queue.SetVolume(ctx, &SetVolumeRequest{Tenant: "g", User: "bob", Volume: 70})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.True(t, resp.Changed)

	resp, err = env.queue.SetVolume(ctx, &SetVolumeRequest{Tenant: "g", User: "bob", Volume: -1})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, session.CodeInvalidVolume, resp.Code)

	_, err = env.queue.SetVolume(ctx, &SetVolumeRequest{Tenant: "nope", Volume: 10})
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))

	skip, err := env.queue.Skip(ctx, &SkipRequest{Tenant: "g", User: "bob"})
	require.NoError(t, err)
	assert.False(t, skip.Success, "nothing queued")
	assert.Equal(t, session.CodeNothingPlaying, skip.Code)
}

func TestQueueService_ResolveTrack(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	resp, err := env.queue.ResolveTrack(ctx, &ResolveTrackRequest{Locator: "abc"})
	require.NoError(t, err)
	assert.Equal(t, "Song abc", resp.Track.Name)
	assert.Equal(t, int64(60000), resp.Track.DurationMs)

	_, err = env.queue.ResolveTrack(ctx, &ResolveTrackRequest{Locator: "missing"})
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))
}

func TestQueueService_Subscribe(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.manager.Open("g", "voice"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stream, err := env.queue.Subscribe(ctx, &SubscribeRequest{Tenant: "g"})
	require.NoError(t, err)
	defer stream.Close()

	require.True(t, stream.Receive(), "snapshot: %v", stream.Err())
	first := stream.Msg()
	assert.Equal(t, notification.TypeSnapshot, first.Type)
	require.NotNil(t, first.Snapshot)
	assert.Equal(t, "voice", first.Snapshot.ChannelID)

	_, err = env.queue.Enqueue(ctx, &EnqueueRequest{Tenant: "g", User: "bob", Locator: "abc"})
	require.NoError(t, err)

	require.True(t, stream.Receive(), "queued: %v", stream.Err())
	next := stream.Msg()
	assert.Equal(t, "queued", next.Type)
	require.NotNil(t, next.Entry)
	assert.Equal(t, "abc", next.Entry.TrackID)
	assert.Greater(t, next.SequenceNo, first.SequenceNo)
}

func TestQueueService_SubscribeUnknownTenant(t *testing.T) {
	env := newTestEnv(t)

	stream, err := env.queue.Subscribe(context.Background(), &SubscribeRequest{Tenant: "nope"})
	require.NoError(t, err)
	defer stream.Close()

	assert.False(t, stream.Receive())
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(stream.Err()))
}

func TestToConnectError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want connect.Code
	}{
		{"tenant not found", errors.Wrap(session.ErrTenantNotFound, "tenant g"), connect.CodeNotFound},
		{"not member", registry.ErrNotMember, connect.CodeNotFound},
		{"track not found", &resolver.ResolutionError{Cause: resolver.ErrTrackNotFound}, connect.CodeNotFound},
		{"tenant exists", session.ErrTenantExists, connect.CodeAlreadyExists},
		{"invalid tenant", session.ErrInvalidTenant, connect.CodeInvalidArgument},
		{"invalid channel", session.ErrInvalidChannel, connect.CodeInvalidArgument},
		{"invalid volume", volume.ErrInvalidVolume, connect.CodeInvalidArgument},
		{"unsupported locator", &resolver.ResolutionError{Cause: resolver.ErrUnsupportedLocator}, connect.CodeInvalidArgument},
		{"shutting down", session.ErrShuttingDown, connect.CodeUnavailable},
		{"canceled", context.Canceled, connect.CodeCanceled},
		{"other", errors.New("boom"), connect.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, connect.CodeOf(toConnectError(tt.err)))
		})
	}
	assert.NoError(t, toConnectError(nil))
}
