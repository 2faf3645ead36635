package hostclient

import (
	"context"
	"fmt"

	"github.com/decred/slog"
	"golang.org/x/sync/errgroup"

	"github.com/suffix-labs/cardano-signtx/pkg/link"
	"github.com/suffix-labs/cardano-signtx/pkg/messages"
	"github.com/suffix-labs/cardano-signtx/pkg/signer"
)

// Result is what the host learns from a finished session.
type Result struct {
	TxHash    []byte
	Witnesses []messages.WitnessResponse
	// AuxiliaryDataSupplement is set when the transaction carried
	// auxiliary data.
	AuxiliaryDataSupplement *messages.AuxiliaryDataSupplement
}

// Client drives sessions from the host side.
type Client struct {
	log slog.Logger
}

// New returns a client logging to log, which may be nil.
func New(log slog.Logger) *Client {
	if log == nil {
		log = slog.Disabled
	}
	return &Client{log: log}
}

// Run drives one session over host. Every device response is answered with
// the next queued item, or with HostAck once the queue is empty or the
// response asks for an acknowledgement.
func (c *Client) Run(ctx context.Context, host link.Host, s *Session) (*Result, error) {
	if err := host.Start(ctx, s.Init); err != nil {
		return nil, fmt.Errorf("hostclient: start session: %w", err)
	}
	c.log.Debugf("Started %s session with %d items", s.Init.SigningMode, len(s.Body)+len(s.WitnessRequests))

	queue := s.Items()
	res := &Result{}
	for {
		resp, err := host.Recv(ctx)
		if err != nil {
			return nil, err
		}

		var next messages.Item = messages.HostAck{}
		switch r := resp.(type) {
		case messages.ItemAck:
			if len(queue) > 0 {
				next, queue = queue[0], queue[1:]
			}
		case messages.WitnessResponse:
			res.Witnesses = append(res.Witnesses, r)
			if len(queue) > 0 {
				next, queue = queue[0], queue[1:]
			}
		case messages.AuxiliaryDataSupplement:
			res.AuxiliaryDataSupplement = &r
		case messages.BodyHash:
			res.TxHash = r.TxHash
			c.log.Infof("Device computed tx hash %x", r.TxHash)
		case messages.SignTxFinished:
			if len(queue) > 0 {
				return nil, fmt.Errorf("hostclient: session finished with %d items unsent", len(queue))
			}
			c.log.Infof("Session finished with %d witnesses", len(res.Witnesses))
			return res, nil
		default:
			return nil, fmt.Errorf("%w: %s", link.ErrUnexpectedMessage, resp.Kind())
		}

		if err := host.Send(ctx, next); err != nil {
			return nil, err
		}
	}
}

// RunInProcess signs s with an in-process device configured by cfg, both
// halves connected by a link.Pipe. When the device fails, its error is
// returned rather than the one the host saw.
func (c *Client) RunInProcess(ctx context.Context, cfg signer.Config, s *Session) (*Result, error) {
	dev, host := link.Pipe()
	defer host.Close()

	var (
		res    *Result
		devErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, devErr = signer.Serve(gctx, cfg, dev)
		return devErr
	})
	g.Go(func() error {
		var err error
		res, err = c.Run(gctx, host, s)
		return err
	})
	if err := g.Wait(); err != nil {
		if devErr != nil {
			return nil, devErr
		}
		return nil, err
	}
	return res, nil
}
