package signer

import (
	"context"
	"errors"

	"github.com/suffix-labs/cardano-signtx/pkg/messages"
	"github.com/suffix-labs/cardano-signtx/pkg/ui"
)

// AbortRejectedByUser is sent to the host when the user declined a screen.
const AbortRejectedByUser = "REJECTED_BY_USER"

// Device is the device end of a transport: it delivers the session header,
// carries the session and reports failures to the host.
type Device interface {
	Link
	Init(ctx context.Context) (messages.TxInit, error)
	Abort(ctx context.Context, code, message string) error
}

// Serve runs one session on dev. When signing fails the host is told why
// before the error is returned.
func Serve(ctx context.Context, cfg Config, dev Device) (*Result, error) {
	init, err := dev.Init(ctx)
	if err != nil {
		return nil, err
	}
	s, err := New(cfg, dev)
	if err != nil {
		return nil, err
	}
	res, err := s.Sign(ctx, init)
	if err != nil {
		code, message := abortReason(err)
		if abortErr := dev.Abort(ctx, code, message); abortErr != nil {
			s.log.Debugf("Session %s: abort not delivered: %v", s.id, abortErr)
		}
		return nil, err
	}
	return res, nil
}

func abortReason(err error) (code, message string) {
	var pv *ProtocolViolation
	var pr *PolicyRejection
	switch {
	case errors.As(err, &pv):
		return pv.Code, pv.Message
	case errors.As(err, &pr):
		return pr.Code, pr.Message
	case errors.Is(err, ui.ErrRejected):
		return AbortRejectedByUser, "Rejected by user"
	default:
		return ErrLink, err.Error()
	}
}
