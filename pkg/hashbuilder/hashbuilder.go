// Package hashbuilder streams a nested CBOR value into a running hash
// without ever materialising it.
//
// Every collection declares its size when it is opened so the definite
// length head can be written before any of its elements. Open collections
// are tracked on a bounded stack owned by the Builder:
//
//   - only the collection on top of the stack may receive elements, so a
//     parent cannot grow while one of its children is still open
//   - a collection can only be closed when all declared elements (or
//     bytes, for embedded CBOR) have been written
//   - maps require each new key to sort strictly after the previous one
//     under canonical CBOR ordering
//
// Violations are reported as *Error values and leave the hash untouched.
package hashbuilder

import (
	"errors"
	"fmt"
	"io"

	"github.com/suffix-labs/cardano-signtx/pkg/cbor"
)

// MaxDepth is the deepest nesting a single builder supports. A transaction
// body needs at most body → outputs → output → value → asset groups →
// tokens.
const MaxDepth = 8

// Kind identifies the collection variant of a frame.
type Kind uint8

const (
	KindList Kind = iota + 1
	KindSet
	KindDict
	KindEmbedded
)

func (k Kind) String() string {
	switch k {
	case KindList:
		return "list"
	case KindSet:
		return "set"
	case KindDict:
		return "dict"
	case KindEmbedded:
		return "embedded"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

var (
	ErrChildOpen    = errors.New("collection has an unfinished child")
	ErrTooManyItems = errors.New("collection is already full")
	ErrRemaining    = errors.New("collection closed before all items were added")
	ErrKeyOrder     = errors.New("map keys are not in canonical order")
	ErrNestedKey    = errors.New("map keys cannot be collections")
	ErrTooDeep      = errors.New("maximum nesting depth exceeded")
	ErrClosed       = errors.New("collection is not open")
	ErrRootOpen     = errors.New("builder already has a root collection")
)

// Error describes a broken hash builder invariant.
type Error struct {
	Op    string // operation that failed (append, add, write, close, open)
	Kind  Kind   // collection variant
	Label string // caller supplied label of the collection
	Err   error  // one of the sentinel errors above, or a write error
}

func (e *Error) Error() string {
	if e.Label != "" {
		return fmt.Sprintf("hashbuilder: %s %s %q: %v", e.Op, e.Kind, e.Label, e.Err)
	}
	return fmt.Sprintf("hashbuilder: %s %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

type frame struct {
	kind      Kind
	gen       uint64
	size      uint64
	remaining uint64
	label     string
	prevKey   []byte
}

// Builder owns the hash writer and the stack of open collections.
type Builder struct {
	w       io.Writer
	stack   [MaxDepth]frame
	depth   int
	gen     uint64
	started bool
}

// New creates a builder writing into w, typically a hash.Hash.
func New(w io.Writer) *Builder {
	return &Builder{w: w}
}

// Depth returns the number of collections currently open.
func (b *Builder) Depth() int { return b.depth }

// Done reports whether a root collection was opened and every collection
// has since been closed.
func (b *Builder) Done() bool { return b.started && b.depth == 0 }

// OpenList opens the root collection as a list.
func (b *Builder) OpenList(size uint64, label string) (List, error) {
	h, err := b.openRoot(KindList, size, label)
	return List{h}, err
}

// OpenDict opens the root collection as a map.
func (b *Builder) OpenDict(size uint64, label string) (Dict, error) {
	h, err := b.openRoot(KindDict, size, label)
	return Dict{h}, err
}

func (b *Builder) openRoot(kind Kind, size uint64, label string) (handle, error) {
	if b.started {
		return handle{}, &Error{Op: "open", Kind: kind, Label: label, Err: ErrRootOpen}
	}
	h, err := b.push(kind, size, label)
	if err != nil {
		return handle{}, err
	}
	b.started = true
	return h, nil
}

func (b *Builder) push(kind Kind, size uint64, label string) (handle, error) {
	if b.depth == MaxDepth {
		return handle{}, &Error{Op: "open", Kind: kind, Label: label, Err: ErrTooDeep}
	}

	var header []byte
	switch kind {
	case KindList:
		header = cbor.ArrayHeader(size)
	case KindSet:
		header = cbor.SetHeader(size)
	case KindDict:
		header = cbor.MapHeader(size)
	case KindEmbedded:
		header = cbor.EmbeddedHeader(size)
	}
	if _, err := b.w.Write(header); err != nil {
		return handle{}, &Error{Op: "open", Kind: kind, Label: label, Err: err}
	}

	b.gen++
	b.stack[b.depth] = frame{
		kind:      kind,
		gen:       b.gen,
		size:      size,
		remaining: size,
		label:     label,
	}
	b.depth++
	return handle{b: b, level: b.depth - 1, gen: b.gen}, nil
}

// handle refers to one frame on the builder stack. A handle becomes stale
// once its collection is closed.
type handle struct {
	b     *Builder
	level int
	gen   uint64
}

func (h handle) frame() *frame { return &h.b.stack[h.level] }

func (h handle) live() bool {
	return h.b != nil && h.level < h.b.depth && h.b.stack[h.level].gen == h.gen
}

func (h handle) fail(op string, err error) error {
	if h.b == nil {
		return &Error{Op: op, Err: err}
	}
	f := &h.b.stack[h.level]
	return &Error{Op: op, Kind: f.kind, Label: f.label, Err: err}
}

// enter performs the checks shared by every element insertion and consumes
// one element slot.
func (h handle) enter(op string) error {
	if !h.live() {
		return h.fail(op, ErrClosed)
	}
	if h.level != h.b.depth-1 {
		return h.fail(op, ErrChildOpen)
	}
	if h.frame().remaining == 0 {
		return h.fail(op, ErrTooManyItems)
	}
	return nil
}

func (h handle) writeValue(op string, v any) error {
	if err := cbor.Write(h.b.w, v); err != nil {
		return h.fail(op, err)
	}
	return nil
}

func (h handle) close() error {
	if !h.live() {
		return h.fail("close", ErrClosed)
	}
	if h.level != h.b.depth-1 {
		return h.fail("close", ErrChildOpen)
	}
	if h.frame().remaining != 0 {
		return h.fail("close", fmt.Errorf("%w (%d of %d left)", ErrRemaining,
			h.frame().remaining, h.frame().size))
	}
	h.b.stack[h.level] = frame{}
	h.b.depth--
	return nil
}

// Remaining returns the number of elements (bytes for Embedded) still
// expected by the collection.
func (h handle) Remaining() uint64 {
	if !h.live() {
		return 0
	}
	return h.frame().remaining
}

// List is an array or tagged set under construction.
type List struct{ handle }

// Append adds a leaf value.
func (l List) Append(v any) error {
	if err := l.enter("append"); err != nil {
		return err
	}
	l.frame().remaining--
	return l.writeValue("append", v)
}

// AppendList adds a nested array of size elements and returns it open.
func (l List) AppendList(size uint64, label string) (List, error) {
	h, err := l.appendChild(KindList, size, label)
	return List{h}, err
}

// AppendSet adds a nested tag 258 set.
func (l List) AppendSet(size uint64, label string) (List, error) {
	h, err := l.appendChild(KindSet, size, label)
	return List{h}, err
}

// AppendDict adds a nested map of size pairs.
func (l List) AppendDict(size uint64, label string) (Dict, error) {
	h, err := l.appendChild(KindDict, size, label)
	return Dict{h}, err
}

// AppendEmbedded adds a nested embedded CBOR byte string of size bytes.
func (l List) AppendEmbedded(size uint64, label string) (Embedded, error) {
	h, err := l.appendChild(KindEmbedded, size, label)
	return Embedded{h}, err
}

func (l List) appendChild(kind Kind, size uint64, label string) (handle, error) {
	if err := l.enter("append"); err != nil {
		return handle{}, err
	}
	if l.b.depth == MaxDepth {
		return handle{}, &Error{Op: "open", Kind: kind, Label: label, Err: ErrTooDeep}
	}
	l.frame().remaining--
	return l.b.push(kind, size, label)
}

// Close finishes the list.
func (l List) Close() error { return l.close() }

// Dict is a map under construction.
type Dict struct{ handle }

// Add adds a key with a leaf value.
func (d Dict) Add(key, value any) error {
	if err := d.addKey(key); err != nil {
		return err
	}
	return d.writeValue("add", value)
}

// AddList adds a key whose value is a nested array.
func (d Dict) AddList(key any, size uint64, label string) (List, error) {
	h, err := d.addChild(key, KindList, size, label)
	return List{h}, err
}

// AddSet adds a key whose value is a nested tag 258 set.
func (d Dict) AddSet(key any, size uint64, label string) (List, error) {
	h, err := d.addChild(key, KindSet, size, label)
	return List{h}, err
}

// AddDict adds a key whose value is a nested map.
func (d Dict) AddDict(key any, size uint64, label string) (Dict, error) {
	h, err := d.addChild(key, KindDict, size, label)
	return Dict{h}, err
}

// AddEmbedded adds a key whose value is embedded CBOR of size bytes.
func (d Dict) AddEmbedded(key any, size uint64, label string) (Embedded, error) {
	h, err := d.addChild(key, KindEmbedded, size, label)
	return Embedded{h}, err
}

func (d Dict) addChild(key any, kind Kind, size uint64, label string) (handle, error) {
	if d.live() && d.b.depth == MaxDepth {
		return handle{}, &Error{Op: "open", Kind: kind, Label: label, Err: ErrTooDeep}
	}
	if err := d.addKey(key); err != nil {
		return handle{}, err
	}
	return d.b.push(kind, size, label)
}

// addKey validates and writes the key. Nothing is written and no slot is
// consumed when validation fails.
func (d Dict) addKey(key any) error {
	if err := d.enter("add"); err != nil {
		return err
	}
	switch key.(type) {
	case List, Dict, Embedded:
		return d.fail("add", ErrNestedKey)
	}

	encoded, err := cbor.Encode(key)
	if err != nil {
		return d.fail("add", err)
	}
	f := d.frame()
	if !cbor.Precedes(f.prevKey, encoded) {
		return d.fail("add", ErrKeyOrder)
	}
	f.prevKey = encoded
	f.remaining--

	if _, err := d.b.w.Write(encoded); err != nil {
		return d.fail("add", err)
	}
	return nil
}

// Close finishes the map.
func (d Dict) Close() error { return d.close() }

// Embedded is a tag 24 byte string whose payload arrives in chunks.
// Remaining counts bytes, and it never has children.
type Embedded struct{ handle }

// Write feeds the next chunk of the embedded payload.
func (e Embedded) Write(chunk []byte) error {
	if !e.live() {
		return e.fail("write", ErrClosed)
	}
	if e.level != e.b.depth-1 {
		return e.fail("write", ErrChildOpen)
	}
	f := e.frame()
	if uint64(len(chunk)) > f.remaining {
		return e.fail("write", ErrTooManyItems)
	}
	f.remaining -= uint64(len(chunk))
	if _, err := e.b.w.Write(chunk); err != nil {
		return e.fail("write", err)
	}
	return nil
}

// Close finishes the embedded payload.
func (e Embedded) Close() error { return e.close() }
