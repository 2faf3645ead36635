package link

import (
	"context"
	"sync"

	"github.com/suffix-labs/cardano-signtx/pkg/messages"
)

// pipe is the shared state of both ends. Channels are unbuffered so every
// send is a rendezvous with the other half.
type pipe struct {
	init  chan messages.TxInit
	items chan messages.Item
	resps chan messages.Response

	once   sync.Once
	done   chan struct{}
	mu     sync.Mutex
	remote *RemoteError
}

// DeviceEnd is the device half of a Pipe.
type DeviceEnd struct{ p *pipe }

// HostEnd is the host half of a Pipe.
type HostEnd struct{ p *pipe }

// Pipe returns the two ends of an in-memory link.
func Pipe() (*DeviceEnd, *HostEnd) {
	p := &pipe{
		init:  make(chan messages.TxInit),
		items: make(chan messages.Item),
		resps: make(chan messages.Response),
		done:  make(chan struct{}),
	}
	return &DeviceEnd{p}, &HostEnd{p}
}

func (p *pipe) close(remote *RemoteError) {
	p.once.Do(func() {
		p.mu.Lock()
		p.remote = remote
		p.mu.Unlock()
		close(p.done)
	})
}

func (p *pipe) closedErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.remote != nil {
		return p.remote
	}
	return ErrClosed
}

func send[T any](ctx context.Context, p *pipe, ch chan<- T, v T) error {
	select {
	case ch <- v:
		return nil
	case <-p.done:
		return p.closedErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func recv[T any](ctx context.Context, p *pipe, ch <-chan T) (T, error) {
	var zero T
	select {
	case v := <-ch:
		return v, nil
	case <-p.done:
		return zero, p.closedErr()
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Init waits for the session header.
func (d *DeviceEnd) Init(ctx context.Context) (messages.TxInit, error) {
	return recv(ctx, d.p, d.p.init)
}

func (d *DeviceEnd) Call(ctx context.Context, resp messages.Response) (messages.Item, error) {
	if err := send(ctx, d.p, d.p.resps, resp); err != nil {
		return nil, err
	}
	return recv(ctx, d.p, d.p.items)
}

func (d *DeviceEnd) Finish(ctx context.Context, resp messages.Response) error {
	return send(ctx, d.p, d.p.resps, resp)
}

// Abort ends the session; the host sees a *RemoteError on its next call.
func (d *DeviceEnd) Abort(_ context.Context, code, message string) error {
	d.p.close(&RemoteError{Code: code, Message: message})
	return nil
}

func (h *HostEnd) Start(ctx context.Context, init messages.TxInit) error {
	return send(ctx, h.p, h.p.init, init)
}

func (h *HostEnd) Recv(ctx context.Context) (messages.Response, error) {
	return recv(ctx, h.p, h.p.resps)
}

func (h *HostEnd) Send(ctx context.Context, item messages.Item) error {
	return send(ctx, h.p, h.p.items, item)
}

func (h *HostEnd) Close() error {
	h.p.close(nil)
	return nil
}

var _ Host = (*HostEnd)(nil)
