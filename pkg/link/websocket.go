package link

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/decred/slog"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/suffix-labs/cardano-signtx/pkg/messages"
)

// DefaultHandshakeTimeout bounds the websocket handshake in Dial.
const DefaultHandshakeTimeout = 5 * time.Second

// conn is one websocket carrying envelopes. Reads are only ever made by the
// session goroutine; writes are serialized.
type conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (c *conn) write(ctx context.Context, data []byte, err error) error {
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline, _ := ctx.Deadline()
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("link: set write deadline: %w", err)
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) {
			return ErrClosed
		}
		return fmt.Errorf("link: write: %w", err)
	}
	return nil
}

// read waits for the next envelope. Cancelling ctx expires the read deadline,
// which leaves the websocket unusable; the session is over at that point.
func (c *conn) read(ctx context.Context) (Envelope, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = c.ws.SetReadDeadline(time.Now())
	})
	defer stop()

	_, data, err := c.ws.ReadMessage()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Envelope{}, ctxErr
		}
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return Envelope{}, ErrClosed
		}
		return Envelope{}, fmt.Errorf("link: read: %w", err)
	}
	return Decode(data)
}

func (c *conn) close() error {
	c.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.ws.Close()
}

// DeviceConn is the device half of a websocket session.
type DeviceConn struct {
	c  conn
	ID string
}

// Init waits for the session header.
func (d *DeviceConn) Init(ctx context.Context) (messages.TxInit, error) {
	env, err := d.c.read(ctx)
	if err != nil {
		return messages.TxInit{}, err
	}
	return env.Init()
}

func (d *DeviceConn) Call(ctx context.Context, resp messages.Response) (messages.Item, error) {
	if err := d.Finish(ctx, resp); err != nil {
		return nil, err
	}
	env, err := d.c.read(ctx)
	if err != nil {
		return nil, err
	}
	return env.Item()
}

func (d *DeviceConn) Finish(ctx context.Context, resp messages.Response) error {
	data, err := EncodeResponse(resp)
	return d.c.write(ctx, data, err)
}

// Abort reports a failed session to the host.
func (d *DeviceConn) Abort(ctx context.Context, code, message string) error {
	data, err := EncodeError(&RemoteError{Code: code, Message: message})
	return d.c.write(ctx, data, err)
}

// Handler upgrades each request to a websocket and runs serve on it. The
// socket is closed when serve returns.
func Handler(log slog.Logger, serve func(context.Context, *DeviceConn) error) http.Handler {
	if log == nil {
		log = slog.Disabled
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Errorf("Failed to upgrade connection from %s: %v", r.RemoteAddr, err)
			return
		}
		dev := &DeviceConn{c: conn{ws: ws}, ID: uuid.NewString()}
		defer dev.c.close()

		log.Infof("Connection %s from %s", dev.ID, r.RemoteAddr)
		if err := serve(r.Context(), dev); err != nil {
			log.Warnf("Connection %s: %v", dev.ID, err)
			return
		}
		log.Debugf("Connection %s closed", dev.ID)
	})
}

// HostConn is the host half of a websocket session.
type HostConn struct {
	c conn
}

// Dial connects to a device listening at url.
func Dial(ctx context.Context, url string) (*HostConn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: DefaultHandshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("link: dial %s: %w", url, err)
	}
	return &HostConn{c: conn{ws: ws}}, nil
}

func (h *HostConn) Start(ctx context.Context, init messages.TxInit) error {
	data, err := EncodeInit(init)
	return h.c.write(ctx, data, err)
}

func (h *HostConn) Recv(ctx context.Context) (messages.Response, error) {
	env, err := h.c.read(ctx)
	if err != nil {
		return nil, err
	}
	return env.Response()
}

func (h *HostConn) Send(ctx context.Context, item messages.Item) error {
	data, err := EncodeItem(item)
	return h.c.write(ctx, data, err)
}

func (h *HostConn) Close() error {
	return h.c.close()
}

var _ Host = (*HostConn)(nil)
