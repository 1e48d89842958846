package store

import (
	"unsafe"

	"github.com/ValentinKolb/eKV/lib/hashmap"
)

// --------------------------------------------------------------------------
// Entry Type (payload embedding the intrusive hash node)
// --------------------------------------------------------------------------

// entry is the payload wrapped around each stored key. The hashmap.Entry
// header must stay the first field: entryOf depends on the node and the
// payload sharing an address.
type entry struct {
	node  hashmap.Entry
	key   string
	value []byte
}

// entryOf recovers the payload from its embedded hash node
func entryOf(n *hashmap.Entry) *entry {
	return (*entry)(unsafe.Pointer(n))
}

// entryEq is the equality predicate handed to the hash map. It only runs
// when hash codes already match.
func entryEq(a, b *hashmap.Entry) bool {
	return entryOf(a).key == entryOf(b).key
}

// --------------------------------------------------------------------------
// Store
// --------------------------------------------------------------------------

// Store maps string keys to byte values. All keys live in a single
// hashmap.Map, so every operation also performs one bounded migration step
// of any in-flight resize.
type Store struct {
	m    hashmap.Map
	seed uint64
}

// New creates an empty store with a per-instance hash seed
func New() *Store {
	return &Store{seed: generateSeed()}
}

// probe builds a throwaway key entry for lookups and deletes
func (s *Store) probe(key string) *hashmap.Entry {
	e := &entry{
		node: hashmap.Entry{Hash: hashString(key, s.seed)},
		key:  key,
	}
	return &e.node
}

// Set inserts or updates the value for a key.
// The value is copied, so the caller's buffer may be reused afterwards.
func (s *Store) Set(key string, value []byte) {
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	if found := s.m.Lookup(s.probe(key), entryEq); found != nil {
		entryOf(found).value = valueCopy
		return
	}

	e := &entry{
		node:  hashmap.Entry{Hash: hashString(key, s.seed)},
		key:   key,
		value: valueCopy,
	}
	s.m.Insert(&e.node)
}

// Get retrieves the value for a key.
// The boolean indicates whether the key was found. The returned value is a
// copy of the stored data and therefore safe to retain and modify.
func (s *Store) Get(key string) ([]byte, bool) {
	found := s.m.Lookup(s.probe(key), entryEq)
	if found == nil {
		return nil, false
	}

	stored := entryOf(found).value
	value := make([]byte, len(stored))
	copy(value, stored)
	return value, true
}

// Delete removes a key. It reports whether the key existed.
func (s *Store) Delete(key string) bool {
	return s.m.Delete(s.probe(key), entryEq) != nil
}

// Has checks whether a key exists without copying its value
func (s *Store) Has(key string) bool {
	return s.m.Lookup(s.probe(key), entryEq) != nil
}

// Len returns the number of stored keys
func (s *Store) Len() int {
	return s.m.Len()
}

// Range calls fn for every key-value pair until fn returns false. The store
// must not be modified during iteration; the value slice is the stored one
// and must not be mutated.
func (s *Store) Range(fn func(key string, value []byte) bool) {
	s.m.Range(func(n *hashmap.Entry) bool {
		e := entryOf(n)
		return fn(e.key, e.value)
	})
}
