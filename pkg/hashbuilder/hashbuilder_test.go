package hashbuilder

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"

	fxcbor "github.com/fxamacker/cbor/v2"
	blake2b "github.com/minio/blake2b-simd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func TestStreamedBodyMatchesReferenceEncoder(t *testing.T) {
	prevHash := mustHex(t, "3b40265111d8bb3c3c608d95b3a0bf83461ace32d79336579a1939b3aad1c0b7")
	address := mustHex(t, "61"+"80f9e2c88e6c817008f3a812ed889b4a4da8e0bd103f86e7335422aa")
	policy := bytes.Repeat([]byte{0x0d}, 28)

	var buf bytes.Buffer
	b := New(&buf)

	body, err := b.OpenDict(4, "body")
	require.NoError(t, err)

	inputs, err := body.AddList(uint64(0), 1, "inputs")
	require.NoError(t, err)
	require.NoError(t, inputs.Append([]any{prevHash, uint32(0)}))
	require.NoError(t, inputs.Close())

	outputs, err := body.AddList(uint64(1), 1, "outputs")
	require.NoError(t, err)
	output, err := outputs.AppendList(2, "output")
	require.NoError(t, err)
	require.NoError(t, output.Append(address))
	value, err := output.AppendList(2, "value")
	require.NoError(t, err)
	require.NoError(t, value.Append(uint64(2_000_000)))
	groups, err := value.AppendDict(1, "asset groups")
	require.NoError(t, err)
	tokens, err := groups.AddDict(policy, 2, "tokens")
	require.NoError(t, err)
	require.NoError(t, tokens.Add([]byte("a"), uint64(7)))
	require.NoError(t, tokens.Add([]byte("bb"), uint64(8)))
	require.NoError(t, tokens.Close())
	require.NoError(t, groups.Close())
	require.NoError(t, value.Close())
	require.NoError(t, output.Close())
	require.NoError(t, outputs.Close())

	require.NoError(t, body.Add(uint64(2), uint64(170000)))

	datum, err := body.AddEmbedded(uint64(3), 3, "datum")
	require.NoError(t, err)
	require.NoError(t, datum.Write([]byte{0x82, 0x01}))
	require.NoError(t, datum.Write([]byte{0x02}))
	require.NoError(t, datum.Close())

	require.NoError(t, body.Close())
	assert.True(t, b.Done())

	reference := map[uint64]any{
		0: []any{[]any{prevHash, uint32(0)}},
		1: []any{[]any{address, []any{uint64(2_000_000), map[string]map[string]uint64{
			string(policy): {"a": 7, "bb": 8},
		}}}},
		2: uint64(170000),
		3: fxcbor.Tag{Number: 24, Content: []byte{0x82, 0x01, 0x02}},
	}
	em, err := fxcbor.CanonicalEncOptions().EncMode()
	require.NoError(t, err)
	want, err := em.Marshal(reference)
	require.NoError(t, err)

	// Go strings encode as CBOR text, so patch the reference through raw
	// byte-string keys instead.
	want = bytes.Replace(want, append([]byte{0x78, 0x1c}, policy...), append([]byte{0x58, 0x1c}, policy...), 1)
	want = bytes.Replace(want, []byte{0x61, 'a'}, []byte{0x41, 'a'}, 1)
	want = bytes.Replace(want, []byte{0x62, 'b', 'b'}, []byte{0x42, 'b', 'b'}, 1)

	assert.Equal(t, hex.EncodeToString(want), hex.EncodeToString(buf.Bytes()))
}

func TestHashIsDeterministic(t *testing.T) {
	build := func() [32]byte {
		h := blake2b.New256()
		b := New(h)
		d, err := b.OpenDict(2, "body")
		require.NoError(t, err)
		require.NoError(t, d.Add(uint64(2), uint64(170000)))
		require.NoError(t, d.Add(uint64(3), uint64(10)))
		require.NoError(t, d.Close())
		var out [32]byte
		copy(out[:], h.Sum(nil))
		return out
	}

	first := build()
	assert.Equal(t, first, build())
	assert.Equal(t, blake2b.Sum256(mustHex(t, "a2021a00029810030a")), first)
}

func TestAppendWhileChildOpenFails(t *testing.T) {
	var buf bytes.Buffer
	b := New(&buf)
	root, err := b.OpenList(2, "root")
	require.NoError(t, err)

	child, err := root.AppendList(1, "child")
	require.NoError(t, err)

	before := buf.Len()
	err = root.Append(uint64(1))
	require.ErrorIs(t, err, ErrChildOpen)
	assert.Equal(t, before, buf.Len())

	err = root.Close()
	require.ErrorIs(t, err, ErrChildOpen)

	require.NoError(t, child.Append(uint64(1)))
	require.NoError(t, child.Close())
	require.NoError(t, root.Append(uint64(2)))
	require.NoError(t, root.Close())
}

func TestCloseWithRemainingFails(t *testing.T) {
	b := New(&bytes.Buffer{})
	l, err := b.OpenList(2, "inputs")
	require.NoError(t, err)
	require.NoError(t, l.Append(uint64(1)))

	err = l.Close()
	require.ErrorIs(t, err, ErrRemaining)

	var hbErr *Error
	require.True(t, errors.As(err, &hbErr))
	assert.Equal(t, "inputs", hbErr.Label)
	assert.Equal(t, uint64(1), l.Remaining())
}

func TestTooManyItemsFails(t *testing.T) {
	b := New(&bytes.Buffer{})
	l, err := b.OpenList(1, "inputs")
	require.NoError(t, err)
	require.NoError(t, l.Append(uint64(1)))
	require.ErrorIs(t, l.Append(uint64(2)), ErrTooManyItems)
}

func TestDictKeyOrder(t *testing.T) {
	tests := []struct {
		name string
		keys []any
		bad  int // index of the first rejected key, -1 when all succeed
	}{
		{"increasing ints", []any{uint64(0), uint64(1), uint64(24)}, -1},
		{"shorter first", []any{[]byte{0xff}, []byte{0x00, 0x00}}, -1},
		{"duplicate", []any{uint64(1), uint64(1)}, 1},
		{"decreasing", []any{uint64(2), uint64(1)}, 1},
		{"longer before shorter", []any{uint64(24), uint64(23)}, 1},
		{"bytes lexicographic", []any{[]byte{0x02}, []byte{0x01}}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			b := New(&buf)
			d, err := b.OpenDict(uint64(len(tt.keys)), "withdrawals")
			require.NoError(t, err)

			for i, k := range tt.keys {
				before := append([]byte(nil), buf.Bytes()...)
				err := d.Add(k, uint64(0))
				if i == tt.bad {
					require.ErrorIs(t, err, ErrKeyOrder)
					assert.Equal(t, before, buf.Bytes(), "rejected key must not reach the hash")
					assert.Equal(t, uint64(len(tt.keys)-i), d.Remaining())
					return
				}
				require.NoError(t, err)
			}
			require.NoError(t, d.Close())
		})
	}
}

func TestDictRejectsCollectionKeys(t *testing.T) {
	b := New(&bytes.Buffer{})
	root, err := b.OpenDict(1, "root")
	require.NoError(t, err)
	require.ErrorIs(t, root.Add(root, uint64(1)), ErrNestedKey)
}

func TestEmbeddedCountsBytes(t *testing.T) {
	var buf bytes.Buffer
	b := New(&buf)
	root, err := b.OpenList(1, "root")
	require.NoError(t, err)
	e, err := root.AppendEmbedded(4, "script")
	require.NoError(t, err)

	require.NoError(t, e.Write([]byte{1, 2, 3}))
	require.ErrorIs(t, e.Write([]byte{4, 5}), ErrTooManyItems)
	require.ErrorIs(t, e.Close(), ErrRemaining)
	require.NoError(t, e.Write([]byte{4}))
	require.NoError(t, e.Close())
	require.NoError(t, root.Close())

	assert.Equal(t, "81d8184401020304", hex.EncodeToString(buf.Bytes()))
}

func TestSetHeader(t *testing.T) {
	var buf bytes.Buffer
	b := New(&buf)
	root, err := b.OpenDict(1, "body")
	require.NoError(t, err)
	set, err := root.AddSet(uint64(0), 1, "inputs")
	require.NoError(t, err)
	require.NoError(t, set.Append(uint64(5)))
	require.NoError(t, set.Close())
	require.NoError(t, root.Close())

	assert.Equal(t, "a100d901028105", hex.EncodeToString(buf.Bytes()))
}

func TestStaleHandleAndDepth(t *testing.T) {
	b := New(&bytes.Buffer{})
	root, err := b.OpenList(MaxDepth, "root")
	require.NoError(t, err)

	child, err := root.AppendList(0, "empty")
	require.NoError(t, err)
	require.NoError(t, child.Close())
	require.ErrorIs(t, child.Append(uint64(1)), ErrClosed)
	require.ErrorIs(t, child.Close(), ErrClosed)

	_, err = b.OpenList(1, "second root")
	require.ErrorIs(t, err, ErrRootOpen)

	cur := root
	for i := 1; i < MaxDepth; i++ {
		cur, err = cur.AppendList(1, "nested")
		require.NoError(t, err)
	}
	_, err = cur.AppendList(1, "too deep")
	require.ErrorIs(t, err, ErrTooDeep)
}
