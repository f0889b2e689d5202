package connect

import (
	"context"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"

	"github.com/osa030/ourtube/internal/app/resolver"
	"github.com/osa030/ourtube/internal/app/session"
	"github.com/osa030/ourtube/internal/app/session/registry"
	"github.com/osa030/ourtube/internal/app/volume"
)

// toConnectError maps domain errors to RPC status codes.
func toConnectError(err error) error {
	if err == nil {
		return nil
	}
	var code connect.Code
	switch {
	case errors.Is(err, session.ErrTenantNotFound),
		errors.Is(err, registry.ErrNotMember),
		errors.Is(err, resolver.ErrTrackNotFound):
		code = connect.CodeNotFound
	case errors.Is(err, session.ErrTenantExists):
		code = connect.CodeAlreadyExists
	case errors.Is(err, session.ErrInvalidTenant),
		errors.Is(err, session.ErrInvalidChannel),
		errors.Is(err, volume.ErrInvalidVolume),
		errors.Is(err, resolver.ErrUnsupportedLocator):
		code = connect.CodeInvalidArgument
	case errors.Is(err, session.ErrShuttingDown):
		code = connect.CodeUnavailable
	case errors.Is(err, context.Canceled):
		code = connect.CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		code = connect.CodeDeadlineExceeded
	default:
		code = connect.CodeInternal
	}
	return connect.NewError(code, err)
}
