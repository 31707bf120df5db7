package scheduler

// table owns the live entries and the deferred-removal list. All methods
// must be called with the guard held.
//
// Entries keep registration order; sequential mode relies on it.
type table struct {
	entries []entry
	pending []ID
	nextID  ID
}

func newTable(capacity int) table {
	return table{
		entries: make([]entry, 0, capacity),
		nextID:  1,
	}
}

func (t *table) len() int { return len(t.entries) }

func (t *table) indexOf(id ID) int {
	if id == NoID {
		return -1
	}
	for i := range t.entries {
		if t.entries[i].id == id {
			return i
		}
	}
	return -1
}

// allocate returns an id that no live entry holds. It starts at 1, wraps past
// the maximum back to 1 and never returns NoID. The table is far smaller than
// the id space, so the scan terminates.
func (t *table) allocate() ID {
	if t.nextID == NoID {
		t.nextID = 1
	}
	for t.indexOf(t.nextID) >= 0 {
		t.advance()
	}
	id := t.nextID
	t.advance()
	return id
}

func (t *table) advance() {
	t.nextID++
	if t.nextID == NoID {
		t.nextID = 1
	}
}

func (t *table) append(e entry) ID {
	e.id = t.allocate()
	t.entries = append(t.entries, e)
	return e.id
}

// get returns a copy of the entry with id.
func (t *table) get(id ID) (entry, bool) {
	i := t.indexOf(id)
	if i < 0 {
		return entry{}, false
	}
	return t.entries[i], true
}

// restore writes back an activation by id. Missing ids are ignored.
func (t *table) restore(id ID, a activation) bool {
	i := t.indexOf(id)
	if i < 0 {
		return false
	}
	t.entries[i].restore(a)
	return true
}

func (t *table) markPending(id ID) {
	for _, p := range t.pending {
		if p == id {
			return
		}
	}
	t.pending = append(t.pending, id)
}

func (t *table) isPending(id ID) bool {
	for _, p := range t.pending {
		if p == id {
			return true
		}
	}
	return false
}

// removed describes an erased entry for event publishing.
type removed struct {
	id   ID
	name string
}

// erase physically removes every entry whose id is in ids, keeping the order
// of the survivors. Duplicates and unknown ids are ignored.
func (t *table) erase(ids []ID) []removed {
	if len(ids) == 0 || len(t.entries) == 0 {
		return nil
	}
	var out []removed
	n := 0
	for i := range t.entries {
		e := t.entries[i]
		if containsID(ids, e.id) {
			out = append(out, removed{id: e.id, name: e.name})
			continue
		}
		t.entries[n] = e
		n++
	}
	for i := n; i < len(t.entries); i++ {
		t.entries[i] = entry{}
	}
	t.entries = t.entries[:n]
	return out
}

// drain erases every pending entry and clears the list.
func (t *table) drain() []removed {
	if len(t.pending) == 0 {
		return nil
	}
	out := t.erase(t.pending)
	t.pending = t.pending[:0]
	return out
}

func containsID(ids []ID, id ID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
