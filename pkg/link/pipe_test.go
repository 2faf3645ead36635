package link_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suffix-labs/cardano-signtx/pkg/keychain"
	"github.com/suffix-labs/cardano-signtx/pkg/link"
	"github.com/suffix-labs/cardano-signtx/pkg/messages"
	"github.com/suffix-labs/cardano-signtx/pkg/paths"
	"github.com/suffix-labs/cardano-signtx/pkg/signer"
	"github.com/suffix-labs/cardano-signtx/pkg/ui"
)

var (
	_ signer.Device = (*link.DeviceEnd)(nil)
	_ signer.Device = (*link.DeviceConn)(nil)
)

func signerConfig(t *testing.T) signer.Config {
	t.Helper()
	kc, err := keychain.NewSoftware(bytes.Repeat([]byte{0x5a}, 32), nil)
	require.NoError(t, err)
	return signer.Config{Keychain: kc, UI: ui.AutoConfirm{}, SafetyChecks: ui.SafetyStrict}
}

func sessionInit() messages.TxInit {
	return messages.TxInit{
		SigningMode:          messages.ModeOrdinary,
		ProtocolMagic:        764824073,
		NetworkID:            1,
		InputsCount:          1,
		OutputsCount:         1,
		Fee:                  170000,
		WitnessRequestsCount: 1,
	}
}

// drive plays the host side of a one-input, one-output session and returns
// every response the device sent.
func drive(ctx context.Context, h link.Host) ([]messages.Response, error) {
	queue := []messages.Item{
		messages.TxInput{PrevHash: bytes.Repeat([]byte{0x3b}, 32)},
		messages.TxOutput{
			Destination: messages.PlainAddress("addr1vx2fxv2umyhttkxyxp8x0dlpdt3k6cwng5pxj3jhsydzers66hrl8"),
			Amount:      1_000_000,
		},
		messages.WitnessRequest{Path: paths.MustParse("m/1852'/1815'/0'/0/0")},
	}
	if err := h.Start(ctx, sessionInit()); err != nil {
		return nil, err
	}
	var got []messages.Response
	for {
		resp, err := h.Recv(ctx)
		if err != nil {
			return got, err
		}
		got = append(got, resp)
		if _, done := resp.(messages.SignTxFinished); done {
			return got, nil
		}
		var next messages.Item = messages.HostAck{}
		if _, ack := resp.(messages.ItemAck); ack && len(queue) > 0 {
			next, queue = queue[0], queue[1:]
		}
		if err := h.Send(ctx, next); err != nil {
			return got, err
		}
	}
}

func TestPipeSession(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dev, host := link.Pipe()
	defer host.Close()

	type served struct {
		res *signer.Result
		err error
	}
	cfg := signerConfig(t)
	done := make(chan served, 1)
	go func() {
		res, err := signer.Serve(ctx, cfg, dev)
		done <- served{res, err}
	}()

	resps, err := drive(ctx, host)
	require.NoError(t, err)
	out := <-done
	require.NoError(t, out.err)

	require.Len(t, resps, 6)
	assert.Equal(t, messages.BodyHash{TxHash: out.res.TxHash}, resps[4])
	assert.Equal(t, out.res.Witnesses[0], resps[3])
}

func TestPipeAbortReachesHost(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dev, host := link.Pipe()
	go func() {
		init, err := dev.Init(ctx)
		if err == nil && init.Fee > 0 {
			_ = dev.Abort(ctx, signer.ErrOutOfRange, "Fee out of range")
		}
	}()

	require.NoError(t, host.Start(ctx, sessionInit()))
	_, err := host.Recv(ctx)
	var remote *link.RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, signer.ErrOutOfRange, remote.Code)

	assert.ErrorIs(t, host.Send(ctx, messages.HostAck{}), remote)
}

func TestPipeClose(t *testing.T) {
	dev, host := link.Pipe()
	require.NoError(t, host.Close())
	require.NoError(t, host.Close())

	_, err := dev.Init(context.Background())
	assert.ErrorIs(t, err, link.ErrClosed)
	_, err = dev.Call(context.Background(), messages.ItemAck{})
	assert.ErrorIs(t, err, link.ErrClosed)
}

func TestPipeHonoursContext(t *testing.T) {
	_, host := link.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := host.Recv(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
