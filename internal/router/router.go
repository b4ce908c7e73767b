package router

import (
	"encoding/json"
	"io"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/rickgao/socket-client/internal/listener"
)

// Listener handle types, one per payload shape.
type (
	TextListener       = listener.Listener[string]
	StructuredListener = listener.Listener[any]
	BinaryListener     = listener.Listener[[]byte]
)

// Stats contains dispatch counters.
type Stats struct {
	TextDispatched       int64 // Text frames that did not decode
	StructuredDispatched int64 // Text frames that decoded as JSON
	BinaryDispatched     int64
}

// Router classifies inbound payloads and fans them out to listeners.
type Router struct {
	id uuid.UUID

	text       listener.Set[string]
	structured listener.Set[any]
	binary     listener.Set[[]byte]

	// Stats
	textCount       atomic.Int64
	structuredCount atomic.Int64
	binaryCount     atomic.Int64
}

// New creates a Router with no listeners.
func New() *Router {
	return &Router{id: uuid.New()}
}

// ID returns the router's identity.
func (r *Router) ID() uuid.UUID {
	return r.id
}

// DispatchText routes a text payload. If the payload decodes as JSON every
// structured listener receives the decoded value, with numbers as json.Number, and no text listener runs.
// Otherwise every text listener receives the payload unchanged.
//
// Listener panics are not recovered: a panicking listener stops the pass and
// the panic reaches the caller.
func (r *Router) DispatchText(payload string) {
	if v, ok := decode(payload); ok {
		r.structuredCount.Add(1)
		r.structured.Emit(v)
		return
	}
	r.textCount.Add(1)
	r.text.Emit(payload)
}

// DispatchBinary routes a binary payload to every binary listener.
func (r *Router) DispatchBinary(payload []byte) {
	r.binaryCount.Add(1)
	r.binary.Emit(payload)
}

// decode attempts to parse payload as a single JSON value. Numbers decode as
// json.Number so their digits survive re-encoding. A failed parse is a
// routing decision, not an error.
func decode(payload string) (any, bool) {
	dec := json.NewDecoder(strings.NewReader(payload))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	// Anything but whitespace after the value makes it plain text.
	if _, err := dec.Token(); err != io.EOF {
		return nil, false
	}
	return v, true
}

// AddTextListener registers l for text payloads.
func (r *Router) AddTextListener(l *TextListener) {
	r.text.Add(l)
}

// RemoveTextListener unregisters l.
func (r *Router) RemoveTextListener(l *TextListener) {
	r.text.Remove(l)
}

// AddStructuredListener registers l for decoded payloads.
func (r *Router) AddStructuredListener(l *StructuredListener) {
	r.structured.Add(l)
}

// RemoveStructuredListener unregisters l.
func (r *Router) RemoveStructuredListener(l *StructuredListener) {
	r.structured.Remove(l)
}

// AddBinaryListener registers l for binary payloads.
func (r *Router) AddBinaryListener(l *BinaryListener) {
	r.binary.Add(l)
}

// RemoveBinaryListener unregisters l.
func (r *Router) RemoveBinaryListener(l *BinaryListener) {
	r.binary.Remove(l)
}

// OnText registers fn for text payloads and returns its handle.
func (r *Router) OnText(fn func(string)) *TextListener {
	l := listener.New(fn)
	r.AddTextListener(l)
	return l
}

// OnStructured registers fn for decoded payloads and returns its handle.
func (r *Router) OnStructured(fn func(any)) *StructuredListener {
	l := listener.New(fn)
	r.AddStructuredListener(l)
	return l
}

// OnBinary registers fn for binary payloads and returns its handle.
func (r *Router) OnBinary(fn func([]byte)) *BinaryListener {
	l := listener.New(fn)
	r.AddBinaryListener(l)
	return l
}

// Stats returns dispatch counters.
func (r *Router) Stats() Stats {
	return Stats{
		TextDispatched:       r.textCount.Load(),
		StructuredDispatched: r.structuredCount.Load(),
		BinaryDispatched:     r.binaryCount.Load(),
	}
}
