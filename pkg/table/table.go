// Package table implements the open-addressed hash table used for
// global variable bindings and for the object heap's string interner.
//
// Keys are compared by identity (==) and hashed by a caller-supplied
// 32-bit hash — for both the globals table and the string interner,
// the key is a string's interned object.Handle and the hash is that
// string's cached FNV-1a digest, which is exactly what makes
// identity-equality of handles line up with content-equality. Table
// itself stays generic over the key type so pkg/object (which this
// table serves) never has to import it back.
//
// Buckets are one of Empty, Tombstone, or Data(key, value). Deleting a
// key leaves a Tombstone rather than an Empty bucket so that later
// probes for other keys which happened to hash past this slot don't
// stop short — see probeFor's doc comment for why this matters.
package table

const loadFactor = 0.75

// bucketState discriminates what occupies a slot.
type bucketState byte

const (
	stateEmpty bucketState = iota
	stateTombstone
	stateData
)

type bucket[K comparable, V any] struct {
	state bucketState
	key   K
	hash  uint32
	value V
}

// Table is an open-addressed hash table with linear probing, a 0.75
// load-factor bound, and power-of-two capacity growth starting at 8.
// The zero value is ready to use: capacity starts at 0 and the first
// Set allocates an 8-slot table.
type Table[K comparable, V any] struct {
	buckets   []bucket[K, V]
	liveCount int
}

// New creates an empty table. Equivalent to the zero value; provided
// for symmetry with the rest of the package constructors.
func New[K comparable, V any]() *Table[K, V] {
	return &Table[K, V]{}
}

func (t *Table[K, V]) capacity() int { return len(t.buckets) }

// probeFor scans the bucket array starting at hash%capacity, looking
// for key. It returns the index to use and whether that index is an
// exact key match.
//
// On Empty, the scan stops — but it reports the first tombstone seen
// along the way (if any) as the slot to reuse, so repeated
// insert/delete cycles don't leak capacity to stale tombstones. On a
// Data bucket holding a different key, the scan continues (linear
// probing). This mirrors the spec's probe contract: tombstones must
// never stop a probe chain short, only true Empty slots do — that is
// what keeps a present key reachable after deletes elsewhere in the
// chain.
func (t *Table[K, V]) probeFor(key K, hash uint32) (idx int, found bool) {
	capacity := t.capacity()
	start := int(hash) % capacity
	tombstone := -1
	for i := 0; i < capacity; i++ {
		slot := (start + i) % capacity
		b := &t.buckets[slot]
		switch b.state {
		case stateEmpty:
			if tombstone != -1 {
				return tombstone, false
			}
			return slot, false
		case stateTombstone:
			if tombstone == -1 {
				tombstone = slot
			}
		case stateData:
			if b.key == key {
				return slot, true
			}
		}
	}
	// Fully probed without an Empty slot: every bucket is Data or
	// Tombstone. Only reachable if the load factor invariant has been
	// violated elsewhere; fall back to the first tombstone found.
	return tombstone, false
}

// maybeGrow doubles (or allocates 8) capacity whenever the next insert
// would push live_count+1 over the load-factor bound. Tombstones are
// dropped during rehash and live_count is recomputed from Data buckets
// alone, so a delete-heavy workload reclaims tombstone slack on every
// grow (but not before — see the package doc and spec.md's "Open
// question — deletion and load factor").
func (t *Table[K, V]) maybeGrow() {
	if float64(t.liveCount+1) <= loadFactor*float64(t.capacity()) {
		return
	}
	newCap := 8
	if t.capacity() >= 8 {
		newCap = t.capacity() * 2
	}
	old := t.buckets
	t.buckets = make([]bucket[K, V], newCap)
	t.liveCount = 0
	for _, b := range old {
		if b.state != stateData {
			continue
		}
		t.insertData(b.key, b.hash, b.value)
		t.liveCount++
	}
}

// insertData writes a Data bucket during rehash, using the same probe
// sequence as probeFor but without tombstone bookkeeping (there are no
// tombstones right after a grow).
func (t *Table[K, V]) insertData(key K, hash uint32, value V) {
	capacity := t.capacity()
	start := int(hash) % capacity
	for i := 0; i < capacity; i++ {
		slot := (start + i) % capacity
		if t.buckets[slot].state != stateData {
			t.buckets[slot] = bucket[K, V]{state: stateData, key: key, hash: hash, value: value}
			return
		}
	}
}

// Set inserts or overwrites key -> value. It reports whether this was
// a new key (the probe landed on an Empty or Tombstone bucket) versus
// an overwrite of an existing one (KeyMatch).
func (t *Table[K, V]) Set(key K, hash uint32, value V) (isNew bool) {
	t.maybeGrow()
	idx, found := t.probeFor(key, hash)
	wasEmpty := t.buckets[idx].state == stateEmpty
	t.buckets[idx] = bucket[K, V]{state: stateData, key: key, hash: hash, value: value}
	if found {
		return false
	}
	if wasEmpty {
		t.liveCount++
	}
	return true
}

// Get looks up key, returning its value and whether it was present.
func (t *Table[K, V]) Get(key K, hash uint32) (value V, ok bool) {
	if t.liveCount == 0 {
		var zero V
		return zero, false
	}
	idx, found := t.probeFor(key, hash)
	if !found {
		var zero V
		return zero, false
	}
	return t.buckets[idx].value, true
}

// Delete removes key, leaving a Tombstone in its place so later probes
// for other keys that hashed into the same chain keep working. It
// reports whether key was present. Per spec, liveCount is intentionally
// NOT decremented here: tombstones still count against the load factor
// until the next grow reclaims them.
func (t *Table[K, V]) Delete(key K, hash uint32) (wasPresent bool) {
	if t.liveCount == 0 {
		return false
	}
	idx, found := t.probeFor(key, hash)
	if !found {
		return false
	}
	var zero bucket[K, V]
	zero.state = stateTombstone
	t.buckets[idx] = zero
	return true
}

// FindByContent is the auxiliary lookup the string interner uses: it
// probes the same way Get does but accepts an arbitrary equality
// predicate against the stored key instead of comparing keys by `==`
// directly — at interning time there is no handle for the candidate
// string yet, so the caller compares by content (hash first, then
// bytes) through matches.
func (t *Table[K, V]) FindByContent(hash uint32, matches func(K) bool) (key K, value V, ok bool) {
	capacity := t.capacity()
	if capacity == 0 {
		var zk K
		var zv V
		return zk, zv, false
	}
	start := int(hash) % capacity
	for i := 0; i < capacity; i++ {
		slot := (start + i) % capacity
		b := &t.buckets[slot]
		switch b.state {
		case stateEmpty:
			var zk K
			var zv V
			return zk, zv, false
		case stateData:
			if b.hash == hash && matches(b.key) {
				return b.key, b.value, true
			}
		}
	}
	var zk K
	var zv V
	return zk, zv, false
}

// Len reports live_count as defined by the spec: incremented on every
// insert into a previously-Empty bucket, recomputed from Data buckets
// on grow, and deliberately NOT decremented by Delete. It governs the
// load-factor growth trigger, not a live-entry count once deletes have
// happened.
func (t *Table[K, V]) Len() int { return t.liveCount }
