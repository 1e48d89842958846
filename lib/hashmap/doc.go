// Package hashmap implements the intrusive, incrementally-resizing hash map
// that backs all keys stored by eKV.
//
// The package provides two layers:
//
//   - A fixed-capacity chaining hash table with power-of-two bucket counts.
//     Collisions are handled by pushing entries onto a singly-linked chain
//     per bucket. The table never grows on its own.
//
//   - Map, which owns two table generations ("newer" and "older") and keeps
//     the load factor bounded by migrating a fixed number of entries from
//     the older to the newer generation on every operation. This spreads the
//     cost of a full rehash across many operations so that no single Insert,
//     Lookup or Delete ever pays for rehashing the whole key space - a
//     property the single-threaded event loop in rpc/server depends on,
//     since it has no other thread to absorb a long pause.
//
// Entries are intrusive: the consumer embeds an Entry as the first field of
// its own payload struct and recovers the payload from an *Entry with an
// unsafe.Pointer conversion (see lib/store for the canonical consumer). The
// map itself never allocates and never inspects payload data; hashing and
// equality stay co-located with the consumer's key type.
//
// Map is not safe for concurrent use. eKV touches it exclusively from the
// event-loop thread, so no locking is needed or wanted here.
package hashmap
