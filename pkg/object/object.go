// Package object implements the heap-allocated object kinds and the
// string interner described in the language specification.
//
// The only object kind in this spec is String: an immutable byte
// sequence plus a cached FNV-1a hash computed once at allocation. The
// heap is an intrusive singly-linked list of every live object it owns;
// object.Handle is a stable, copyable, non-owning reference into it,
// valid for exactly as long as the Heap that produced it is alive.
//
// Interning is the load-bearing invariant here: InternString dedups by
// content using pkg/table's FindByContent probe, so two independently
// interned strings with equal content share one Handle — which makes
// identity-equality of Handles equivalent to content-equality.
// pkg/vm's globals table relies on exactly this to do identity-keyed
// lookups on interned names cheaply.
package object

import (
	"hash/fnv"

	"github.com/rs/zerolog"

	"github.com/kristofer/loxbc/pkg/table"
)

// Handle is a stable, copyable, non-owning reference to a heap object.
// The zero Handle never refers to a live object.
type Handle uintptr

// Kind discriminates the payload an object node carries. String is the
// only kind this specification defines; future kinds attach here.
type Kind byte

const (
	KindString Kind = iota
)

// node is one link in the heap's intrusive singly-linked object chain.
type node struct {
	kind Kind
	str  stringObject
	next *node
}

// stringObject is the payload of a String object: its bytes and a
// cached 32-bit FNV-1a hash of those bytes, computed once at
// allocation time.
type stringObject struct {
	bytes string
	hash  uint32
}

// Heap owns every heap-allocated object produced by InternString. It is
// pinned: handles (addresses into the intrusive chain) are never
// invalidated by further allocation, only by destroying the heap
// itself. interner is the table.Table the string interner uses: per
// spec.md §4.5, the value stored for each key IS the key's own handle,
// so the table doubles as a content-addressed set.
type Heap struct {
	head     *node
	interner *table.Table[Handle, Handle]
	log      zerolog.Logger
}

// Option configures a Heap at construction time.
type Option func(*Heap)

// WithLogger attaches a structured logger for heap lifecycle and
// interning events. Heaps default to a no-op logger.
func WithLogger(l zerolog.Logger) Option {
	return func(h *Heap) { h.log = l }
}

// NewHeap creates an empty object heap.
func NewHeap(opts ...Option) *Heap {
	h := &Heap{
		interner: table.New[Handle, Handle](),
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.log.Debug().Msg("object heap created")
	return h
}

// fnv1a32 computes the 32-bit FNV-1a hash of s, using the same offset
// basis and prime as the reference implementation (and as Go's
// standard hash/fnv, which this delegates to).
func fnv1a32(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}

// InternString returns the handle for a String object whose content
// equals s, allocating one if this is the first time s has been
// interned. Two calls with equal content always return the same
// Handle — this is the identity-equals-content guarantee the rest of
// the system depends on.
func (h *Heap) InternString(s string) Handle {
	candidateHash := fnv1a32(s)
	if existing, _, ok := h.interner.FindByContent(candidateHash, func(k Handle) bool {
		return h.contentOf(k) == s
	}); ok {
		h.log.Debug().Str("content", s).Msg("string intern hit")
		return existing
	}

	n := &node{
		kind: KindString,
		str:  stringObject{bytes: s, hash: candidateHash},
		next: h.head,
	}
	h.head = n
	handle := handleOf(n)
	h.interner.Set(handle, candidateHash, handle)
	h.log.Debug().Str("content", s).Uint32("hash", candidateHash).Msg("string intern miss: allocated")
	return handle
}

// handleOf derives a stable Handle from a node's address. The node is
// never moved (the heap only prepends), so the address is stable for
// the node's lifetime.
func handleOf(n *node) Handle {
	return Handle(nodeAddr(n))
}

// contentOf resolves a handle to its backing string content without
// panicking on a miss, for use inside FindByContent's predicate where
// every candidate handle is already known to be a live String on this
// heap's own interner.
func (h *Heap) contentOf(handle Handle) string {
	n := h.find(handle)
	if n == nil {
		return ""
	}
	return n.str.bytes
}

// String resolves a Handle to its string content. It panics if the
// handle does not name a live String object on this heap — that is a
// programmer-logic error ("can't happen" under correct compiler/VM
// code), not a recoverable runtime condition.
func (h *Heap) String(handle Handle) string {
	n := h.find(handle)
	if n == nil || n.kind != KindString {
		panic("object: handle does not refer to a live String")
	}
	return n.str.bytes
}

// Hash returns the cached FNV-1a hash for the String named by handle.
func (h *Heap) Hash(handle Handle) uint32 {
	n := h.find(handle)
	if n == nil || n.kind != KindString {
		panic("object: handle does not refer to a live String")
	}
	return n.str.hash
}

// find walks the intrusive chain looking for the node at the given
// address. This is O(heap size) and is only ever used to dereference a
// handle a caller already holds (String, Hash) or to resolve a
// candidate during interning (contentOf); the interning fast path
// itself is FindByContent's hash-indexed probe, not this walk.
func (h *Heap) find(handle Handle) *node {
	for n := h.head; n != nil; n = n.next {
		if handleOf(n) == handle {
			return n
		}
	}
	return nil
}

// LiveStrings reports how many distinct String objects are currently
// on the heap — equivalently, the number of distinct contents ever
// interned (the spec's testable interner invariant).
func (h *Heap) LiveStrings() int {
	return h.interner.Len()
}

// Close releases the heap. Every node on the intrusive chain is
// abandoned to the garbage collector exactly once; there is nothing
// else to release since this spec's only object kind holds no external
// resources. Close exists so heap lifetime is explicit in caller code,
// matching the "heap outlives compiler and VM" contract in the spec.
func (h *Heap) Close() {
	h.log.Debug().Int("live_strings", h.interner.Len()).Msg("object heap closed")
	h.head = nil
	h.interner = table.New[Handle, Handle]()
}
