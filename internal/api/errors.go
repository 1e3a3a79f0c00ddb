package api

import (
	"context"
	"errors"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/mmynk/vibecheck/internal/apperr"
	"github.com/mmynk/vibecheck/internal/identity"
)

var errInternal = errors.New("internal error")

// connectError maps a service error onto a Connect code. Internal errors are
// logged here and returned without their cause.
func connectError(err error) error {
	if err == nil {
		return nil
	}
	var ce *connect.Error
	if errors.As(err, &ce) {
		return ce
	}

	code := CodeOf(err)
	if code == connect.CodeInternal {
		slog.Error("Unexpected error", "error", err)
		return connect.NewError(code, errInternal)
	}
	cerr := connect.NewError(code, err)
	if field, ok := apperr.FieldOf(err); ok {
		cerr.Meta().Set("X-Invalid-Field", field)
	}
	return cerr
}

// CodeOf returns the Connect code for a service error.
func CodeOf(err error) connect.Code {
	switch {
	case errors.Is(err, apperr.ErrValidation),
		errors.Is(err, identity.ErrWeakPassword):
		return connect.CodeInvalidArgument
	case errors.Is(err, apperr.ErrNotFound):
		return connect.CodeNotFound
	case errors.Is(err, apperr.ErrAlreadyMember),
		errors.Is(err, apperr.ErrAlreadyParticipant),
		errors.Is(err, identity.ErrEmailExists):
		return connect.CodeAlreadyExists
	case errors.Is(err, apperr.ErrForbidden):
		return connect.CodePermissionDenied
	case errors.Is(err, apperr.ErrCodeSpaceExhausted):
		return connect.CodeResourceExhausted
	case errors.Is(err, identity.ErrUnauthenticated),
		errors.Is(err, identity.ErrInvalidCredentials),
		errors.Is(err, identity.ErrInvalidToken),
		errors.Is(err, identity.ErrMissingToken):
		return connect.CodeUnauthenticated
	case errors.Is(err, apperr.ErrTransient):
		return connect.CodeUnavailable
	case errors.Is(err, context.Canceled):
		return connect.CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return connect.CodeDeadlineExceeded
	default:
		return connect.CodeInternal
	}
}
