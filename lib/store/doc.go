// Package store provides the key-value store that the eKV server serves:
// string keys mapped to opaque byte values, backed by the incrementally
// resizing hash map from lib/hashmap.
//
// The package is the canonical consumer of the intrusive hashmap.Entry: it
// embeds the node as the first field of its entry payload and recovers the
// payload with an unsafe.Pointer conversion. Hashing (seeded FNV-1a) and key
// equality live here, next to the key type, so the hash map itself stays
// payload-agnostic.
//
// A Store is not safe for concurrent use. The eKV server touches it
// exclusively from the event-loop thread; embedding users that need
// concurrent access must serialize calls themselves.
package store
