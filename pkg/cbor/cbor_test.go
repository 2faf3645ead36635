package cbor

import (
	"bytes"
	"encoding/hex"
	"testing"

	fxcbor "github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendHeadShortestForm(t *testing.T) {
	tests := []struct {
		n    uint64
		want string
	}{
		{0, "00"},
		{23, "17"},
		{24, "1818"},
		{255, "18ff"},
		{256, "190100"},
		{65535, "19ffff"},
		{65536, "1a00010000"},
		{170000, "1a00029810"},
		{4294967295, "1affffffff"},
		{4294967296, "1b0000000100000000"},
	}

	for _, tt := range tests {
		got := AppendHead(nil, MajorUnsigned, tt.n)
		assert.Equal(t, tt.want, hex.EncodeToString(got), "n=%d", tt.n)
	}
}

func TestEncodeScalars(t *testing.T) {
	tests := []struct {
		name string
		v    any
		want string
	}{
		{"null", nil, "f6"},
		{"true", true, "f5"},
		{"uint32", uint32(10), "0a"},
		{"negative", int64(-1), "20"},
		{"negative large", int64(-500), "3901f3"},
		{"bytes", []byte{0xde, 0xad}, "42dead"},
		{"text", "a", "6161"},
		{"tuple", []any{[]byte{0x01}, uint32(0)}, "82410100"},
		{"tag", Tag{Number: TagRational, Content: []any{uint64(1), uint64(2)}}, "d81e820102"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.v)
			require.NoError(t, err)
			assert.Equal(t, tt.want, hex.EncodeToString(got))
		})
	}
}

func TestEncodeMatchesReferenceEncoder(t *testing.T) {
	values := []any{
		uint64(45_000_000_000_000_000),
		int64(-123456789),
		bytes.Repeat([]byte{0xab}, 3000),
		[]any{uint64(0), nil, []byte{127, 0, 0, 1}, nil},
		Tag{Number: TagSet, Content: []any{[]byte{1}, []byte{2}}},
		map[uint64]uint64{10: 1, 1: 2, 100: 3},
	}

	em, err := fxcbor.CanonicalEncOptions().EncMode()
	require.NoError(t, err)

	for _, v := range values {
		want, err := em.Marshal(v)
		require.NoError(t, err)
		got, err := Encode(v)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

type chunkRecorder struct {
	writes []int
	buf    bytes.Buffer
}

func (c *chunkRecorder) Write(p []byte) (int, error) {
	c.writes = append(c.writes, len(p))
	return c.buf.Write(p)
}

func TestWriteStreamsLargeByteStrings(t *testing.T) {
	payload := bytes.Repeat([]byte{0x42}, 2*ChunkSize+10)
	rec := &chunkRecorder{}

	require.NoError(t, Write(rec, payload))

	for _, n := range rec.writes {
		assert.LessOrEqual(t, n, ChunkSize)
	}
	assert.Equal(t, append(BytesHeader(uint64(len(payload))), payload...), rec.buf.Bytes())
}

func TestHeaders(t *testing.T) {
	assert.Equal(t, "83", hex.EncodeToString(ArrayHeader(3)))
	assert.Equal(t, "a3", hex.EncodeToString(MapHeader(3)))
	assert.Equal(t, "d9010282", hex.EncodeToString(SetHeader(2)))
	assert.Equal(t, "d8185820", hex.EncodeToString(EmbeddedHeader(32)))
}

func TestPrecedes(t *testing.T) {
	assert.True(t, Precedes(nil, []byte{0x00}))
	assert.True(t, Precedes([]byte{0x01}, []byte{0x02}))
	assert.True(t, Precedes([]byte{0x17}, []byte{0x18, 0x18}))
	assert.False(t, Precedes([]byte{0x02}, []byte{0x02}))
	assert.False(t, Precedes([]byte{0x18, 0x18}, []byte{0x17}))
	assert.False(t, Precedes([]byte{0x03}, []byte{0x02}))
}
