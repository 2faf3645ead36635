package ui

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatCoin(t *testing.T) {
	assert.Equal(t, "0 ADA", FormatCoin(0))
	assert.Equal(t, "0.17 ADA", FormatCoin(170000))
	assert.Equal(t, "2 ADA", FormatCoin(2_000_000))
	assert.Equal(t, "1.000001 ADA", FormatCoin(1_000_001))
}

func TestFormatOptional(t *testing.T) {
	v := uint64(42)
	assert.Equal(t, "None", FormatOptional(nil))
	assert.Equal(t, "42", FormatOptional(&v))
}

func TestAssetFingerprint(t *testing.T) {
	policy := make([]byte, 28)
	fp := AssetFingerprint(policy, nil)
	assert.True(t, strings.HasPrefix(fp, "asset1"))
	assert.Len(t, fp, 44)
	assert.NotEqual(t, fp, AssetFingerprint(policy, []byte("a")))
}

func TestConfirmReject(t *testing.T) {
	rec := &Recorder{RejectWhen: func(s Screen) bool { return s.Kind == KindOutput }}

	r, err := Confirm(context.Background(), rec, Screen{Kind: KindInput})
	require.NoError(t, err)
	assert.Equal(t, ReplyAck, r)

	_, err = Confirm(context.Background(), rec, Screen{Kind: KindOutput})
	assert.ErrorIs(t, err, ErrRejected)

	assert.Equal(t, []Kind{KindInput, KindOutput}, rec.Kinds())
	assert.Equal(t, 1, rec.Count(KindOutput))
}

func TestAutoConfirmDetails(t *testing.T) {
	ctx := context.Background()
	r, err := AutoConfirm{Details: true}.Show(ctx, Screen{Kind: KindTxDetails})
	require.NoError(t, err)
	assert.Equal(t, ReplyDetails, r)

	r, err = AutoConfirm{Details: true}.Show(ctx, Screen{Kind: KindOutput})
	require.NoError(t, err)
	assert.Equal(t, ReplyAck, r)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = AutoConfirm{}.Show(cancelled, Screen{Kind: KindOutput})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTerminal(t *testing.T) {
	var out bytes.Buffer
	term := &Terminal{In: strings.NewReader("d\ny\nn\n"), Out: &out}
	ctx := context.Background()

	r, err := term.Show(ctx, Screen{Kind: KindTxDetails, Fields: []Field{{Label: "Fee:", Value: "0.17 ADA"}}})
	require.NoError(t, err)
	assert.Equal(t, ReplyDetails, r)

	r, err = term.Show(ctx, Screen{Kind: KindConfirmTx, Hold: true})
	require.NoError(t, err)
	assert.Equal(t, ReplyAck, r)

	r, err = term.Show(ctx, Screen{Kind: KindWitnessPath})
	require.NoError(t, err)
	assert.Equal(t, ReplyReject, r)

	_, err = term.Show(ctx, Screen{Kind: KindWitnessPath})
	assert.Error(t, err)

	assert.Contains(t, out.String(), "Fee: 0.17 ADA")
	assert.Contains(t, out.String(), "hold to confirm")
}

func TestParseSafetyChecks(t *testing.T) {
	s, err := ParseSafetyChecks("prompt")
	require.NoError(t, err)
	assert.Equal(t, SafetyPrompt, s)
	_, err = ParseSafetyChecks("loose")
	assert.Error(t, err)
}
