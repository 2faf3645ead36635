package link

import (
	"encoding/json"
	"fmt"

	"github.com/suffix-labs/cardano-signtx/pkg/messages"
)

// Envelope is one message on the wire: the kind selects the payload type.
type Envelope struct {
	Kind    messages.Kind   `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// wireOutput spells out the output destination, which is an interface in
// messages.TxOutput.
type wireOutput struct {
	Address             string                      `json:"address,omitempty"`
	Parameters          *messages.AddressParameters `json:"parameters,omitempty"`
	Amount              uint64                      `json:"amount"`
	AssetGroupsCount    uint32                      `json:"asset_groups_count,omitempty"`
	DatumHash           []byte                      `json:"datum_hash,omitempty"`
	Format              messages.OutputFormat       `json:"format"`
	InlineDatumSize     uint32                      `json:"inline_datum_size,omitempty"`
	ReferenceScriptSize uint32                      `json:"reference_script_size,omitempty"`
}

func toWireOutput(o messages.TxOutput) (wireOutput, error) {
	w := wireOutput{
		Amount:              o.Amount,
		AssetGroupsCount:    o.AssetGroupsCount,
		DatumHash:           o.DatumHash,
		Format:              o.Format,
		InlineDatumSize:     o.InlineDatumSize,
		ReferenceScriptSize: o.ReferenceScriptSize,
	}
	switch dst := o.Destination.(type) {
	case messages.PlainAddress:
		w.Address = string(dst)
	case *messages.AddressParameters:
		w.Parameters = dst
	default:
		return w, fmt.Errorf("link: output without destination")
	}
	return w, nil
}

func (w wireOutput) output() (messages.TxOutput, error) {
	o := messages.TxOutput{
		Amount:              w.Amount,
		AssetGroupsCount:    w.AssetGroupsCount,
		DatumHash:           w.DatumHash,
		Format:              w.Format,
		InlineDatumSize:     w.InlineDatumSize,
		ReferenceScriptSize: w.ReferenceScriptSize,
	}
	switch {
	case w.Address != "" && w.Parameters != nil:
		return o, fmt.Errorf("link: output has both address and parameters")
	case w.Address != "":
		o.Destination = messages.PlainAddress(w.Address)
	case w.Parameters != nil:
		o.Destination = w.Parameters
	default:
		return o, fmt.Errorf("link: output without destination")
	}
	return o, nil
}

func decodeAs[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	err := json.Unmarshal(raw, &v)
	return v, err
}

func item[T messages.Item](raw json.RawMessage) (messages.Item, error) {
	v, err := decodeAs[T](raw)
	return v, err
}

func response[T messages.Response](raw json.RawMessage) (messages.Response, error) {
	v, err := decodeAs[T](raw)
	return v, err
}

var itemDecoders = map[messages.Kind]func(json.RawMessage) (messages.Item, error){
	messages.KindTxInput:              item[messages.TxInput],
	messages.KindAssetGroup:           item[messages.AssetGroup],
	messages.KindToken:                item[messages.Token],
	messages.KindMintToken:            item[messages.MintToken],
	messages.KindInlineDatumChunk:     item[messages.InlineDatumChunk],
	messages.KindReferenceScriptChunk: item[messages.ReferenceScriptChunk],
	messages.KindCertificate:          item[messages.Certificate],
	messages.KindPoolOwner:            item[messages.PoolOwner],
	messages.KindPoolRelay:            item[messages.PoolRelay],
	messages.KindWithdrawal:           item[messages.Withdrawal],
	messages.KindAuxiliaryData:        item[messages.AuxiliaryData],
	messages.KindMint:                 item[messages.Mint],
	messages.KindCollateralInput:      item[messages.CollateralInput],
	messages.KindRequiredSigner:       item[messages.RequiredSigner],
	messages.KindReferenceInput:       item[messages.ReferenceInput],
	messages.KindWitnessRequest:       item[messages.WitnessRequest],
	messages.KindHostAck:              item[messages.HostAck],
	messages.KindTxOutput: func(raw json.RawMessage) (messages.Item, error) {
		w, err := decodeAs[wireOutput](raw)
		if err != nil {
			return nil, err
		}
		return w.output()
	},
}

var responseDecoders = map[messages.Kind]func(json.RawMessage) (messages.Response, error){
	messages.KindItemAck:                 response[messages.ItemAck],
	messages.KindAuxiliaryDataSupplement: response[messages.AuxiliaryDataSupplement],
	messages.KindWitnessResponse:         response[messages.WitnessResponse],
	messages.KindBodyHash:                response[messages.BodyHash],
	messages.KindSignTxFinished:          response[messages.SignTxFinished],
}

func envelope(kind messages.Kind, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("link: encode %s: %w", kind, err)
	}
	return json.Marshal(Envelope{Kind: kind, Payload: raw})
}

// EncodeItem wraps item in an envelope.
func EncodeItem(it messages.Item) ([]byte, error) {
	if out, ok := it.(messages.TxOutput); ok {
		w, err := toWireOutput(out)
		if err != nil {
			return nil, err
		}
		return envelope(it.Kind(), w)
	}
	return envelope(it.Kind(), it)
}

// EncodeResponse wraps resp in an envelope.
func EncodeResponse(resp messages.Response) ([]byte, error) {
	return envelope(resp.Kind(), resp)
}

// EncodeInit wraps the session header in an envelope.
func EncodeInit(init messages.TxInit) ([]byte, error) {
	return envelope(KindTxInit, init)
}

// EncodeError wraps a session failure in an envelope.
func EncodeError(e *RemoteError) ([]byte, error) {
	return envelope(KindError, e)
}

// Decode reads an envelope.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("link: decode envelope: %w", err)
	}
	return env, nil
}

// Item decodes the payload of an item envelope.
func (e Envelope) Item() (messages.Item, error) {
	dec, ok := itemDecoders[e.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s is not an item", ErrUnexpectedMessage, e.Kind)
	}
	it, err := dec(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("link: decode %s: %w", e.Kind, err)
	}
	return it, nil
}

// Response decodes the payload of a response envelope. An error envelope
// decodes to a *RemoteError.
func (e Envelope) Response() (messages.Response, error) {
	if e.Kind == KindError {
		remote, err := decodeAs[RemoteError](e.Payload)
		if err != nil {
			return nil, fmt.Errorf("link: decode %s: %w", e.Kind, err)
		}
		return nil, &remote
	}
	dec, ok := responseDecoders[e.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a response", ErrUnexpectedMessage, e.Kind)
	}
	resp, err := dec(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("link: decode %s: %w", e.Kind, err)
	}
	return resp, nil
}

// Init decodes the payload of a tx_init envelope.
func (e Envelope) Init() (messages.TxInit, error) {
	if e.Kind != KindTxInit {
		return messages.TxInit{}, fmt.Errorf("%w: expected %s, got %s", ErrUnexpectedMessage, KindTxInit, e.Kind)
	}
	init, err := decodeAs[messages.TxInit](e.Payload)
	if err != nil {
		return init, fmt.Errorf("link: decode %s: %w", e.Kind, err)
	}
	return init, nil
}
