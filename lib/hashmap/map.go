package hashmap

// --------------------------------------------------------------------------
// Tuning Constants
// --------------------------------------------------------------------------

const (
	// maxLoadFactor is the ratio of live entries to buckets at which the
	// newer generation is swapped out and doubled. Eight keeps the average
	// chain length small without wasting bucket space.
	maxLoadFactor = 8

	// migrationQuota is the maximum number of entries moved from the older
	// to the newer generation per map operation. It bounds the worst-case
	// latency a single operation can add while a resize is in flight.
	migrationQuota = 128

	// initialCapacity is the bucket count of a lazily created first table.
	initialCapacity = 4
)

// --------------------------------------------------------------------------
// Incrementally-Resizing Map
// --------------------------------------------------------------------------

// Map presents a single logical key space over two table generations. All
// inserts go to the newer generation; the older generation exists only while
// a resize is in flight and is drained a bounded number of entries at a
// time. Every key lives in exactly one generation at any instant.
//
// The zero value is an empty map ready for use.
type Map struct {
	newer      table
	older      table
	migratePos uint64 // next bucket index in older to scan
}

// Insert adds e to the map. The caller must ensure the key embedded around e
// is not already present; Insert performs no duplicate check.
func (m *Map) Insert(e *Entry) {
	if m.newer.slots == nil {
		m.newer = newTable(initialCapacity)
	}

	m.newer.insert(e)

	// Start a resize once the newer generation is overloaded, but never
	// while a previous migration is still draining.
	if m.older.slots == nil {
		threshold := (m.newer.mask + 1) * maxLoadFactor
		if uint64(m.newer.count) >= threshold {
			m.rehash()
		}
	}

	m.migrate()
}

// Lookup returns the entry whose embedding payload matches key, or nil. A
// key inserted before a resize began stays visible throughout the migration
// because both generations are probed.
func (m *Map) Lookup(key *Entry, eq EqualFunc) *Entry {
	m.migrate()

	ref := m.newer.lookupRef(key, eq)
	if ref == nil {
		ref = m.older.lookupRef(key, eq)
	}

	if ref == nil {
		return nil
	}
	return *ref
}

// Delete removes and returns the entry matching key, or nil if the key is
// absent. Ownership of the returned entry passes back to the caller.
func (m *Map) Delete(key *Entry, eq EqualFunc) *Entry {
	m.migrate()

	if ref := m.newer.lookupRef(key, eq); ref != nil {
		return m.newer.detach(ref)
	}
	if ref := m.older.lookupRef(key, eq); ref != nil {
		return m.older.detach(ref)
	}

	return nil
}

// Len returns the number of live entries across both generations.
func (m *Map) Len() int {
	return m.newer.count + m.older.count
}

// Range calls fn for every entry in the map until fn returns false. The map
// must not be modified during iteration.
func (m *Map) Range(fn func(e *Entry) bool) {
	for _, t := range []*table{&m.newer, &m.older} {
		for _, head := range t.slots {
			for e := head; e != nil; e = e.next {
				if !fn(e) {
					return
				}
			}
		}
	}
}

// --------------------------------------------------------------------------
// Progressive Migration
// --------------------------------------------------------------------------

// rehash freezes the current newer generation as older and allocates a fresh
// newer generation at double the capacity.
func (m *Map) rehash() {
	m.older = m.newer
	m.newer = newTable(int(m.older.mask+1) * 2)
	m.migratePos = 0
}

// migrate moves up to migrationQuota entries from older to newer. Once the
// older generation is empty its bucket array is released and the map is
// single-generation again.
func (m *Map) migrate() {
	moved := 0

	for moved < migrationQuota && m.older.count > 0 {
		ref := &m.older.slots[m.migratePos]

		// skip drained buckets
		if *ref == nil {
			m.migratePos++
			continue
		}

		m.newer.insert(m.older.detach(ref))
		moved++
	}

	if m.older.count == 0 && m.older.slots != nil {
		m.older = table{}
	}
}
