package hashmap

import "fmt"

// --------------------------------------------------------------------------
// Entry Type (intrusive hash node)
// --------------------------------------------------------------------------

// Entry is the intrusive hash node. Consumers embed it as the first field of
// their payload struct; the map links entries into bucket chains and never
// looks past this header.
type Entry struct {
	next *Entry
	Hash uint64 // precomputed 64-bit hash code of the embedding key
}

// EqualFunc reports whether the payloads embedding two entries carry the
// same key. It is only invoked for entries whose hash codes already match.
type EqualFunc func(a, b *Entry) bool

// --------------------------------------------------------------------------
// Fixed-Capacity Table (one generation)
// --------------------------------------------------------------------------

// table is a fixed-capacity chaining hash table. The bucket count is always
// a power of two so that the bucket index is a single mask operation.
// Capacity (mask+1) and the live-entry count are tracked separately.
type table struct {
	slots []*Entry
	mask  uint64
	count int // live entries reachable by walking all chains
}

// newTable allocates a zero-filled table with n buckets. A non-power-of-two
// capacity is a programming error, not a runtime condition.
func newTable(n int) table {
	if n <= 0 || n&(n-1) != 0 {
		panic(fmt.Sprintf("hashmap: table capacity must be a power of two, got %d", n))
	}
	return table{
		slots: make([]*Entry, n),
		mask:  uint64(n - 1),
	}
}

// insert pushes e as the new head of its bucket chain. O(1), no ordering
// guarantee among entries sharing a bucket.
func (t *table) insert(e *Entry) {
	pos := e.Hash & t.mask
	e.next = t.slots[pos]
	t.slots[pos] = e
	t.count++
}

// lookupRef walks the bucket chain for key and returns the address of the
// link slot pointing at the first match (the bucket head or a previous
// entry's next pointer), or nil if the key is absent. Returning the link
// slot instead of the entry makes an O(1) detach possible.
func (t *table) lookupRef(key *Entry, eq EqualFunc) **Entry {
	if t.slots == nil {
		return nil
	}

	pos := key.Hash & t.mask
	ref := &t.slots[pos]

	for *ref != nil {
		if (*ref).Hash == key.Hash && eq(*ref, key) {
			return ref
		}
		ref = &(*ref).next
	}

	return nil
}

// detach unlinks the entry pointed at by ref from its chain and returns it.
// Ownership of the entry passes back to the caller.
func (t *table) detach(ref **Entry) *Entry {
	e := *ref
	*ref = e.next
	e.next = nil
	t.count--
	return e
}
