package connect

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/ourtube/internal/app/notification"
	"github.com/osa030/ourtube/internal/app/session"
	"github.com/osa030/ourtube/internal/app/volume"
	"github.com/osa030/ourtube/internal/infra/config"
)

// QueueService implements the QueueService RPC.
type QueueService struct {
	session *session.Manager
	config  *config.Config
}

// NewQueueService creates a new QueueService.
func NewQueueService(session *session.Manager, cfg *config.Config) *QueueService {
	return &QueueService{
		session: session,
		config:  cfg,
	}
}

// Handler returns the mount path and HTTP handler of the service.
func (s *QueueService) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{WithJSON()}, opts...)
	mux := http.NewServeMux()
	mux.Handle(EnqueueProcedure, connect.NewUnaryHandler(EnqueueProcedure, s.Enqueue, opts...))
	mux.Handle(SkipProcedure, connect.NewUnaryHandler(SkipProcedure, s.Skip, opts...))
	mux.Handle(SetVolumeProcedure, connect.NewUnaryHandler(SetVolumeProcedure, s.SetVolume, opts...))
	mux.Handle(ResolveTrackProcedure, connect.NewUnaryHandler(ResolveTrackProcedure, s.ResolveTrack, opts...))
	mux.Handle(GetQueueProcedure, connect.NewUnaryHandler(GetQueueProcedure, s.GetQueue, opts...))
	mux.Handle(SubscribeProcedure, connect.NewServerStreamHandler(SubscribeProcedure, s.Subscribe, opts...))
	return "/" + QueueServiceName + "/", mux
}

// Enqueue handles track request submissions.
func (s *QueueService) Enqueue(
	ctx context.Context,
	req *connect.Request[EnqueueRequest],
) (*connect.Response[EnqueueResponse], error) {
	result, err := s.session.Enqueue(ctx, req.Msg.Tenant, req.Msg.User, req.Msg.Locator)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&EnqueueResponse{
		Success: result.Accepted,
		Code:    result.Code,
		Message: s.config.GetMessage(result.Code),
		Entry:   notification.NewEntry(result.Entry),
	}), nil
}

// Skip skips the playing track of a tenant.
func (s *QueueService) Skip(
	ctx context.Context,
	req *connect.Request[SkipRequest],
) (*connect.Response[ActionResponse], error) {
	skipped, err := s.session.Skip(req.Msg.Tenant, req.Msg.User)
	if err != nil {
		return nil, toConnectError(err)
	}
	if !skipped {
		return connect.NewResponse(&ActionResponse{
			Code:    session.CodeNothingPlaying,
			Message: "Nothing is playing",
		}), nil
	}
	return connect.NewResponse(&ActionResponse{
		Success: true,
		Message: "Track skipped",
	}), nil
}

// SetVolume sets the volume of a tenant. Out-of-range values are a
// rejected result, not an RPC error.
func (s *QueueService) SetVolume(
	ctx context.Context,
	req *connect.Request[SetVolumeRequest],
) (*connect.Response[SetVolumeResponse], error) {
	changed, err := s.session.SetVolume(req.Msg.Tenant, req.Msg.User, req.Msg.Volume)
	if errors.Is(err, volume.ErrInvalidVolume) {
		return connect.NewResponse(&SetVolumeResponse{
			Code:    session.CodeInvalidVolume,
			Message: s.config.GetMessage(session.CodeInvalidVolume),
		}), nil
	}
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&SetVolumeResponse{
		Success: true,
		Changed: changed,
		Code:    session.CodeSuccess,
		Message: s.config.GetMessage(session.CodeSuccess),
		Volume:  req.Msg.Volume,
	}), nil
}

// ResolveTrack looks up track metadata without queueing it.
func (s *QueueService) ResolveTrack(
	ctx context.Context,
	req *connect.Request[ResolveTrackRequest],
) (*connect.Response[ResolveTrackResponse], error) {
	t, err := s.session.Resolve(ctx, req.Msg.Locator)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&ResolveTrackResponse{Track: newTrack(t)}), nil
}

// GetQueue returns the playing track and the queue of a tenant.
func (s *QueueService) GetQueue(
	ctx context.Context,
	req *connect.Request[GetQueueRequest],
) (*connect.Response[GetQueueResponse], error) {
	pl, err := s.session.Queue(req.Msg.Tenant)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(newQueueResponse(pl)), nil
}

// Subscribe streams a snapshot followed by live notifications of a tenant.
func (s *QueueService) Subscribe(
	ctx context.Context,
	req *connect.Request[SubscribeRequest],
	stream *connect.ServerStream[notification.Notification],
) error {
	zlog.Debug().Str("tenant", req.Msg.Tenant).Msgf("connect: subscribe from %s", req.Peer().Addr)
	if err := s.session.Subscribe(ctx, req.Msg.Tenant, stream); err != nil {
		return toConnectError(err)
	}
	return nil
}
