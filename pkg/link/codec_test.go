package link

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suffix-labs/cardano-signtx/pkg/addresses"
	"github.com/suffix-labs/cardano-signtx/pkg/messages"
	"github.com/suffix-labs/cardano-signtx/pkg/paths"
)

func roundTripItem(t *testing.T, it messages.Item) messages.Item {
	t.Helper()
	data, err := EncodeItem(it)
	require.NoError(t, err)
	env, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, it.Kind(), env.Kind)
	got, err := env.Item()
	require.NoError(t, err)
	return got
}

func TestItemEnvelopes(t *testing.T) {
	port := uint16(3001)
	items := []messages.Item{
		messages.TxInput{PrevHash: bytes.Repeat([]byte{1}, 32), PrevIndex: 3},
		messages.Token{AssetName: []byte("ADA"), Amount: 7},
		messages.MintToken{AssetName: []byte("X"), Amount: -5},
		messages.Certificate{Type: messages.CertStakeDelegation, Path: paths.MustParse("m/1852'/1815'/0'/2/0"), Pool: bytes.Repeat([]byte{2}, 28)},
		messages.PoolRelay{Type: messages.RelaySingleHostIP, Port: &port, IPv4Address: []byte{10, 0, 0, 1}},
		messages.WitnessRequest{Path: paths.MustParse("m/1852'/1815'/0'/0/0")},
		messages.HostAck{},
	}
	for _, it := range items {
		t.Run(string(it.Kind()), func(t *testing.T) {
			assert.Equal(t, it, roundTripItem(t, it))
		})
	}
}

func TestOutputDestinations(t *testing.T) {
	t.Run("plain address", func(t *testing.T) {
		out := messages.TxOutput{
			Destination: messages.PlainAddress("addr1vx2fxv2umyhttkxyxp8x0dlpdt3k6cwng5pxj3jhsydzers66hrl8"),
			Amount:      1_000_000,
			Format:      messages.FormatMapBabbage,
		}
		assert.Equal(t, out, roundTripItem(t, out))
	})

	t.Run("derived address", func(t *testing.T) {
		out := messages.TxOutput{
			Destination: &messages.AddressParameters{
				Type:        addresses.Base,
				Path:        paths.MustParse("m/1852'/1815'/0'/1/0"),
				StakingPath: paths.MustParse("m/1852'/1815'/0'/2/0"),
			},
			Amount: 42,
		}
		assert.Equal(t, out, roundTripItem(t, out))
	})

	t.Run("missing destination", func(t *testing.T) {
		_, err := EncodeItem(messages.TxOutput{Amount: 1})
		assert.Error(t, err)

		_, err = Envelope{Kind: messages.KindTxOutput, Payload: json.RawMessage(`{"amount":1}`)}.Item()
		assert.Error(t, err)
	})

	t.Run("both destinations", func(t *testing.T) {
		raw := json.RawMessage(`{"address":"addr1","parameters":{"Type":0},"amount":1}`)
		_, err := Envelope{Kind: messages.KindTxOutput, Payload: raw}.Item()
		assert.Error(t, err)
	})
}

func TestResponseEnvelopes(t *testing.T) {
	resps := []messages.Response{
		messages.ItemAck{},
		messages.BodyHash{TxHash: bytes.Repeat([]byte{9}, 32)},
		messages.WitnessResponse{Type: messages.WitnessShelley, PubKey: []byte{1}, Signature: []byte{2}},
		messages.SignTxFinished{},
	}
	for _, resp := range resps {
		data, err := EncodeResponse(resp)
		require.NoError(t, err)
		env, err := Decode(data)
		require.NoError(t, err)
		got, err := env.Response()
		require.NoError(t, err)
		assert.Equal(t, resp, got)
	}
}

func TestErrorEnvelope(t *testing.T) {
	data, err := EncodeError(&RemoteError{Code: "REJECTED_BY_USER", Message: "Rejected by user"})
	require.NoError(t, err)
	env, err := Decode(data)
	require.NoError(t, err)

	_, err = env.Response()
	var remote *RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, "REJECTED_BY_USER", remote.Code)
	assert.Contains(t, err.Error(), "Rejected by user")
}

func TestEnvelopeKindMismatch(t *testing.T) {
	init := messages.TxInit{SigningMode: messages.ModePlutus, Fee: 1, TagCborSets: true}
	data, err := EncodeInit(init)
	require.NoError(t, err)
	env, err := Decode(data)
	require.NoError(t, err)

	got, err := env.Init()
	require.NoError(t, err)
	assert.Equal(t, init, got)

	_, err = env.Item()
	assert.ErrorIs(t, err, ErrUnexpectedMessage)
	_, err = env.Response()
	assert.ErrorIs(t, err, ErrUnexpectedMessage)

	_, err = Envelope{Kind: messages.KindHostAck}.Init()
	assert.ErrorIs(t, err, ErrUnexpectedMessage)

	_, err = Decode([]byte("{"))
	assert.Error(t, err)
}
