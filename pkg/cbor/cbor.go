// Package cbor implements the canonical CBOR primitives used to stream a
// transaction body into a hash.
//
// Cardano transaction ids are BLAKE2b-256 digests of the canonical CBOR
// encoding of the body, so every byte written here must match what an
// off-device encoder produces for the same logical structure:
//   - integers and lengths always use the shortest head
//   - map keys are ordered by encoded length first, then bytewise
//   - collections use definite lengths only
//
// Scalars, byte strings, arrays and tags are written by this package
// directly so that large byte strings can be streamed in bounded chunks.
// Anything else (maps, structs) is delegated to fxamacker/cbor in its
// canonical mode.
package cbor

import (
	"bytes"
	"fmt"
	"io"

	fxcbor "github.com/fxamacker/cbor/v2"
)

// Major types (RFC 8949 section 3.1).
const (
	MajorUnsigned byte = 0
	MajorNegative byte = 1
	MajorBytes    byte = 2
	MajorText     byte = 3
	MajorArray    byte = 4
	MajorMap      byte = 5
	MajorTag      byte = 6
	MajorSimple   byte = 7
)

// Well-known tags.
const (
	TagEncodedCBOR = 24  // embedded CBOR data item
	TagRational    = 30  // [numerator, denominator]
	TagSet         = 258 // mathematical finite set
)

const (
	simpleFalse = 0xf4
	simpleTrue  = 0xf5
	simpleNull  = 0xf6
)

// ChunkSize bounds every single write into the underlying writer.
const ChunkSize = 1024

// Tag is re-exported so callers can build tagged leaves without importing
// fxamacker/cbor themselves.
type Tag = fxcbor.Tag

// RawMessage is an already encoded CBOR item. Write copies it verbatim.
type RawMessage = fxcbor.RawMessage

var encMode = mustEncMode()

func mustEncMode() fxcbor.EncMode {
	em, err := fxcbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cbor: canonical enc mode: %v", err))
	}
	return em
}

// AppendHead appends the shortest head for the given major type and
// argument.
func AppendHead(dst []byte, major byte, n uint64) []byte {
	m := major << 5
	switch {
	case n < 24:
		return append(dst, m|byte(n))
	case n <= 0xff:
		return append(dst, m|24, byte(n))
	case n <= 0xffff:
		return append(dst, m|25, byte(n>>8), byte(n))
	case n <= 0xffffffff:
		return append(dst, m|26, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
	default:
		return append(dst, m|27,
			byte(n>>56), byte(n>>48), byte(n>>40), byte(n>>32),
			byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
	}
}

// ArrayHeader returns the head of a definite-length array.
func ArrayHeader(n uint64) []byte { return AppendHead(nil, MajorArray, n) }

// MapHeader returns the head of a definite-length map with n pairs.
func MapHeader(n uint64) []byte { return AppendHead(nil, MajorMap, n) }

// TagHeader returns the head of a tag.
func TagHeader(tag uint64) []byte { return AppendHead(nil, MajorTag, tag) }

// BytesHeader returns the head of a byte string of length n.
func BytesHeader(n uint64) []byte { return AppendHead(nil, MajorBytes, n) }

// SetHeader returns tag 258 followed by an array head.
func SetHeader(n uint64) []byte {
	return AppendHead(TagHeader(TagSet), MajorArray, n)
}

// EmbeddedHeader returns tag 24 followed by the head of a byte string of
// size bytes. The payload itself is expected to be valid CBOR.
func EmbeddedHeader(size uint64) []byte {
	return AppendHead(TagHeader(TagEncodedCBOR), MajorBytes, size)
}

// Encode returns the canonical encoding of v.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write streams the canonical encoding of v into w. Byte strings are
// written header first and then in chunks of at most ChunkSize bytes.
func Write(w io.Writer, v any) error {
	switch x := v.(type) {
	case nil:
		return writeAll(w, []byte{simpleNull})
	case bool:
		if x {
			return writeAll(w, []byte{simpleTrue})
		}
		return writeAll(w, []byte{simpleFalse})
	case uint:
		return writeAll(w, AppendHead(nil, MajorUnsigned, uint64(x)))
	case uint8:
		return writeAll(w, AppendHead(nil, MajorUnsigned, uint64(x)))
	case uint16:
		return writeAll(w, AppendHead(nil, MajorUnsigned, uint64(x)))
	case uint32:
		return writeAll(w, AppendHead(nil, MajorUnsigned, uint64(x)))
	case uint64:
		return writeAll(w, AppendHead(nil, MajorUnsigned, x))
	case int:
		return writeInt(w, int64(x))
	case int32:
		return writeInt(w, int64(x))
	case int64:
		return writeInt(w, x)
	case []byte:
		if err := writeAll(w, AppendHead(nil, MajorBytes, uint64(len(x)))); err != nil {
			return err
		}
		return writeChunked(w, x)
	case string:
		if err := writeAll(w, AppendHead(nil, MajorText, uint64(len(x)))); err != nil {
			return err
		}
		return writeChunked(w, []byte(x))
	case []any:
		if err := writeAll(w, ArrayHeader(uint64(len(x)))); err != nil {
			return err
		}
		for _, item := range x {
			if err := Write(w, item); err != nil {
				return err
			}
		}
		return nil
	case Tag:
		if err := writeAll(w, TagHeader(x.Number)); err != nil {
			return err
		}
		return Write(w, x.Content)
	case RawMessage:
		return writeChunked(w, x)
	default:
		encoded, err := encMode.Marshal(v)
		if err != nil {
			return fmt.Errorf("cbor: encode %T: %w", v, err)
		}
		return writeChunked(w, encoded)
	}
}

func writeInt(w io.Writer, n int64) error {
	if n >= 0 {
		return writeAll(w, AppendHead(nil, MajorUnsigned, uint64(n)))
	}
	return writeAll(w, AppendHead(nil, MajorNegative, uint64(-1-n)))
}

func writeAll(w io.Writer, b []byte) error {
	_, err := w.Write(b)
	return err
}

func writeChunked(w io.Writer, b []byte) error {
	for len(b) > 0 {
		n := min(len(b), ChunkSize)
		if err := writeAll(w, b[:n]); err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

// Precedes reports whether the encoded key prev sorts strictly before next
// under canonical ordering: shorter encodings first, equal lengths compared
// bytewise.
func Precedes(prev, next []byte) bool {
	if len(prev) != len(next) {
		return len(prev) < len(next)
	}
	return bytes.Compare(prev, next) < 0
}

// Unmarshal decodes data into v using fxamacker/cbor defaults.
func Unmarshal(data []byte, v any) error {
	return fxcbor.Unmarshal(data, v)
}
