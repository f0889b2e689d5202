package connect

import (
	"context"
	"strings"

	"connectrpc.com/connect"

	"github.com/osa030/ourtube/internal/app/notification"
)

// QueueClient is a client for the QueueService.
type QueueClient struct {
	enqueue      *connect.Client[EnqueueRequest, EnqueueResponse]
	skip         *connect.Client[SkipRequest, ActionResponse]
	setVolume    *connect.Client[SetVolumeRequest, SetVolumeResponse]
	resolveTrack *connect.Client[ResolveTrackRequest, ResolveTrackResponse]
	getQueue     *connect.Client[GetQueueRequest, GetQueueResponse]
	subscribe    *connect.Client[SubscribeRequest, notification.Notification]
}

// NewQueueClient creates a QueueService client for the server at baseURL.
func NewQueueClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *QueueClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{WithJSON()}, opts...)
	return &QueueClient{
		enqueue:      connect.NewClient[EnqueueRequest, EnqueueResponse](httpClient, baseURL+EnqueueProcedure, opts...),
		skip:         connect.NewClient[SkipRequest, ActionResponse](httpClient, baseURL+SkipProcedure, opts...),
		setVolume:    connect.NewClient[SetVolumeRequest, SetVolumeResponse](httpClient, baseURL+SetVolumeProcedure, opts...),
		resolveTrack: connect.NewClient[ResolveTrackRequest, ResolveTrackResponse](httpClient, baseURL+ResolveTrackProcedure, opts...),
		getQueue:     connect.NewClient[GetQueueRequest, GetQueueResponse](httpClient, baseURL+GetQueueProcedure, opts...),
		subscribe:    connect.NewClient[SubscribeRequest, notification.Notification](httpClient, baseURL+SubscribeProcedure, opts...),
	}
}

func (c *QueueClient) Enqueue(ctx context.Context, req *EnqueueRequest) (*EnqueueResponse, error) {
	return unary(ctx, c.enqueue, req)
}

func (c *QueueClient) Skip(ctx context.Context, req *SkipRequest) (*ActionResponse, error) {
	return unary(ctx, c.skip, req)
}

func (c *QueueClient) SetVolume(ctx context.Context, req *SetVolumeRequest) (*SetVolumeResponse, error) {
	return unary(ctx, c.setVolume, req)
}

func (c *QueueClient) ResolveTrack(ctx context.Context, req *ResolveTrackRequest) (*ResolveTrackResponse, error) {
	return unary(ctx, c.resolveTrack, req)
}

func (c *QueueClient) GetQueue(ctx context.Context, req *GetQueueRequest) (*GetQueueResponse, error) {
	return unary(ctx, c.getQueue, req)
}

// Subscribe opens the notification stream of a tenant. The caller closes it.
func (c *QueueClient) Subscribe(ctx context.Context, req *SubscribeRequest) (*connect.ServerStreamForClient[notification.Notification], error) {
	return c.subscribe.CallServerStream(ctx, connect.NewRequest(req))
}

// AdminClient is a client for the AdminService.
type AdminClient struct {
	openTenant    *connect.Client[OpenTenantRequest, Empty]
	closeTenant   *connect.Client[CloseTenantRequest, Empty]
	selectChannel *connect.Client[SelectChannelRequest, SelectChannelResponse]
	join          *connect.Client[JoinRequest, JoinResponse]
	leave         *connect.Client[LeaveRequest, Empty]
	getStatus     *connect.Client[GetStatusRequest, GetStatusResponse]
	listTenants   *connect.Client[ListTenantsRequest, ListTenantsResponse]
	listAudit     *connect.Client[ListAuditRequest, ListAuditResponse]
}

// NewAdminClient creates an AdminService client sending token with every request.
func NewAdminClient(httpClient connect.HTTPClient, baseURL, token string, opts ...connect.ClientOption) *AdminClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{
		WithJSON(),
		connect.WithInterceptors(NewAdminTokenInterceptor(token)),
	}, opts...)
	return &AdminClient{
		openTenant:    connect.NewClient[OpenTenantRequest, Empty](httpClient, baseURL+OpenTenantProcedure, opts...),
		closeTenant:   connect.NewClient[CloseTenantRequest, Empty](httpClient, baseURL+CloseTenantProcedure, opts...),
		selectChannel: connect.NewClient[SelectChannelRequest, SelectChannelResponse](httpClient, baseURL+SelectChannelProcedure, opts...),
		join:          connect.NewClient[JoinRequest, JoinResponse](httpClient, baseURL+JoinProcedure, opts...),
		leave:         connect.NewClient[LeaveRequest, Empty](httpClient, baseURL+LeaveProcedure, opts...),
		getStatus:     connect.NewClient[GetStatusRequest, GetStatusResponse](httpClient, baseURL+GetStatusProcedure, opts...),
		listTenants:   connect.NewClient[ListTenantsRequest, ListTenantsResponse](httpClient, baseURL+ListTenantsProcedure, opts...),
		listAudit:     connect.NewClient[ListAuditRequest, ListAuditResponse](httpClient, baseURL+ListAuditProcedure, opts...),
	}
}

func (c *AdminClient) OpenTenant(ctx context.Context, req *OpenTenantRequest) error {
	_, err := unary(ctx, c.openTenant, req)
	return err
}

func (c *AdminClient) CloseTenant(ctx context.Context, req *CloseTenantRequest) error {
	_, err := unary(ctx, c.closeTenant, req)
	return err
}

func (c *AdminClient) SelectChannel(ctx context.Context, req *SelectChannelRequest) (*SelectChannelResponse, error) {
	return unary(ctx, c.selectChannel, req)
}

func (c *AdminClient) Join(ctx context.Context, req *JoinRequest) (*JoinResponse, error) {
	return unary(ctx, c.join, req)
}

func (c *AdminClient) Leave(ctx context.Context, req *LeaveRequest) error {
	_, err := unary(ctx, c.leave, req)
	return err
}

func (c *AdminClient) GetStatus(ctx context.Context, req *GetStatusRequest) (*GetStatusResponse, error) {
	return unary(ctx, c.getStatus, req)
}

func (c *AdminClient) ListTenants(ctx context.Context) (*ListTenantsResponse, error) {
	return unary(ctx, c.listTenants, &ListTenantsRequest{})
}

func (c *AdminClient) ListAudit(ctx context.Context, req *ListAuditRequest) (*ListAuditResponse, error) {
	return unary(ctx, c.listAudit, req)
}

func unary[Req, Res any](ctx context.Context, c *connect.Client[Req, Res], req *Req) (*Res, error) {
	resp, err := c.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}
