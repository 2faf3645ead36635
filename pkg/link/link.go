// Package link carries a signing session between a host and a device.
//
// A session starts with the host sending the TxInit. From then on the
// device drives: every Call sends a response and waits for the next item,
// and the host answers each response with exactly one item. The device ends
// the session with Finish, or with Abort when signing failed.
//
// Two transports are provided: an in-memory Pipe for running both halves in
// one process, and a websocket connection where the device listens and the
// host dials.
package link

import (
	"context"
	"errors"
	"fmt"

	"github.com/suffix-labs/cardano-signtx/pkg/messages"
)

// Envelope kinds that are not items or responses.
const (
	KindTxInit messages.Kind = "tx_init"
	KindError  messages.Kind = "error"
)

var (
	// ErrClosed is returned by every call once the link is closed.
	ErrClosed = errors.New("link: closed")
	// ErrUnexpectedMessage is returned when the peer sends a message the
	// current step does not allow.
	ErrUnexpectedMessage = errors.New("link: unexpected message")
)

// Host is the host's end of a session.
type Host interface {
	// Start sends the session header.
	Start(ctx context.Context, init messages.TxInit) error
	// Recv waits for the next device response. A failed session is
	// reported as a *RemoteError.
	Recv(ctx context.Context) (messages.Response, error)
	// Send answers the last response.
	Send(ctx context.Context, item messages.Item) error
	Close() error
}

// RemoteError is a session failure reported by the device.
type RemoteError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("device error [%s]: %s", e.Code, e.Message)
}
