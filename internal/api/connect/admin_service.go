package connect

import (
	"context"
	"net/http"

	"connectrpc.com/connect"

	"github.com/osa030/ourtube/internal/app/session"
)

// AdminService implements the AdminService RPC.
type AdminService struct {
	session *session.Manager
}

// NewAdminService creates a new AdminService.
func NewAdminService(session *session.Manager) *AdminService {
	return &AdminService{session: session}
}

// Handler returns the mount path and HTTP handler of the service.
func (s *AdminService) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{WithJSON()}, opts...)
	mux := http.NewServeMux()
	mux.Handle(OpenTenantProcedure, connect.NewUnaryHandler(OpenTenantProcedure, s.OpenTenant, opts...))
	mux.Handle(CloseTenantProcedure, connect.NewUnaryHandler(CloseTenantProcedure, s.CloseTenant, opts...))
	mux.Handle(SelectChannelProcedure, connect.NewUnaryHandler(SelectChannelProcedure, s.SelectChannel, opts...))
	mux.Handle(JoinProcedure, connect.NewUnaryHandler(JoinProcedure, s.Join, opts...))
	mux.Handle(LeaveProcedure, connect.NewUnaryHandler(LeaveProcedure, s.Leave, opts...))
	mux.Handle(GetStatusProcedure, connect.NewUnaryHandler(GetStatusProcedure, s.GetStatus, opts...))
	mux.Handle(ListTenantsProcedure, connect.NewUnaryHandler(ListTenantsProcedure, s.ListTenants, opts...))
	mux.Handle(ListAuditProcedure, connect.NewUnaryHandler(ListAuditProcedure, s.ListAudit, opts...))
	return "/" + AdminServiceName + "/", mux
}

// OpenTenant opens a tenant.
func (s *AdminService) OpenTenant(
	ctx context.Context,
	req *connect.Request[OpenTenantRequest],
) (*connect.Response[Empty], error) {
	if err := s.session.Open(req.Msg.Tenant, req.Msg.Channel); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&Empty{}), nil
}

// CloseTenant closes a tenant and drops its state.
func (s *AdminService) CloseTenant(
	ctx context.Context,
	req *connect.Request[CloseTenantRequest],
) (*connect.Response[Empty], error) {
	if err := s.session.Close(req.Msg.Tenant); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&Empty{}), nil
}

// SelectChannel moves playback of a tenant to a channel.
func (s *AdminService) SelectChannel(
	ctx context.Context,
	req *connect.Request[SelectChannelRequest],
) (*connect.Response[SelectChannelResponse], error) {
	changed, err := s.session.SelectChannel(req.Msg.Tenant, req.Msg.User, req.Msg.Channel)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&SelectChannelResponse{Changed: changed}), nil
}

// Join records a member connecting to a channel.
func (s *AdminService) Join(
	ctx context.Context,
	req *connect.Request[JoinRequest],
) (*connect.Response[JoinResponse], error) {
	present, err := s.session.Join(req.Msg.Tenant, req.Msg.Channel, req.Msg.Member, req.Msg.Name)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&JoinResponse{Present: present}), nil
}

// Leave records a member disconnecting.
func (s *AdminService) Leave(
	ctx context.Context,
	req *connect.Request[LeaveRequest],
) (*connect.Response[Empty], error) {
	if err := s.session.Leave(req.Msg.Tenant, req.Msg.Member); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&Empty{}), nil
}

// GetStatus returns the status of a tenant.
func (s *AdminService) GetStatus(
	ctx context.Context,
	req *connect.Request[GetStatusRequest],
) (*connect.Response[GetStatusResponse], error) {
	st, err := s.session.GetStatus(req.Msg.Tenant)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(newStatusResponse(st)), nil
}

// ListTenants lists the open tenants.
func (s *AdminService) ListTenants(
	ctx context.Context,
	req *connect.Request[ListTenantsRequest],
) (*connect.Response[ListTenantsResponse], error) {
	infos := s.session.ListTenants()
	tenants := make([]TenantInfo, len(infos))
	for i, info := range infos {
		tenants[i] = TenantInfo{
			ID:        info.ID,
			ChannelID: info.ChannelID,
			State:     info.State.String(),
			Playing:   info.Playing,
			Queued:    info.Queued,
			Members:   info.Members,
			OpenedAt:  info.OpenedAt,
		}
	}
	return connect.NewResponse(&ListTenantsResponse{Tenants: tenants}), nil
}

// ListAudit returns the most recent audit entries, newest first.
func (s *AdminService) ListAudit(
	ctx context.Context,
	req *connect.Request[ListAuditRequest],
) (*connect.Response[ListAuditResponse], error) {
	recent := s.session.Audit(req.Msg.Limit)
	entries := make([]AuditEntry, len(recent))
	for i, e := range recent {
		entries[i] = newAuditEntry(e)
	}
	return connect.NewResponse(&ListAuditResponse{Entries: entries}), nil
}
