package core

// Substate lock table. Each open substate handle holds either a shared or
// an exclusive lock on its (node, partition, key) address:
//
//	Unlocked -> Shared(n) on each shared open,
//	Unlocked -> Exclusive on a mutable open,
//	close decrements or releases; anything else is a fatal Kernel error.
//
// Writes stage inside the handle and only reach the heap or track when the
// exclusive handle closes, so concurrent shared readers never observe a
// torn write.

// LockHandle names one open substate.
type LockHandle uint32

// LockFlags modify an open request.
type LockFlags uint8

const (
	// LockMutable requests an exclusive lock and write access.
	LockMutable LockFlags = 1 << iota
)

func (f LockFlags) mutable() bool { return f&LockMutable != 0 }

type lockState struct {
	shared    int
	exclusive bool
}

type openSubstate struct {
	handle    LockHandle
	node      NodeID
	partition PartitionNumber
	key       SubstateKey
	flags     LockFlags
	depth     int // frame depth that opened it
	inHeap    bool
	staged    []byte
	dirty     bool
}

// lockTable tracks every open handle and per-substate lock state.
type lockTable struct {
	next   LockHandle
	open   map[LockHandle]*openSubstate
	states map[string]*lockState
}

func newLockTable() *lockTable {
	return &lockTable{
		next:   1,
		open:   make(map[LockHandle]*openSubstate),
		states: make(map[string]*lockState),
	}
}

// acquire takes the lock and registers a handle.
func (t *lockTable) acquire(node NodeID, part PartitionNumber, key SubstateKey, flags LockFlags, depth int, inHeap bool) (LockHandle, error) {
	ck := substateCompositeKey(node, part, key)
	st := t.states[ck]
	if st == nil {
		st = &lockState{}
		t.states[ck] = st
	}
	if flags.mutable() {
		if st.exclusive || st.shared > 0 {
			return 0, errKernel("lock conflict on %s partition %d %s", node, part, key)
		}
		st.exclusive = true
	} else {
		if st.exclusive {
			return 0, errKernel("lock conflict on %s partition %d %s", node, part, key)
		}
		st.shared++
	}
	h := t.next
	t.next++
	t.open[h] = &openSubstate{
		handle: h, node: node, partition: part, key: key,
		flags: flags, depth: depth, inHeap: inHeap,
	}
	return h, nil
}

// get resolves a handle.
func (t *lockTable) get(h LockHandle) (*openSubstate, error) {
	o, ok := t.open[h]
	if !ok {
		return nil, errKernel("unknown substate handle %d", h)
	}
	return o, nil
}

// release closes a handle and downgrades the lock state.
func (t *lockTable) release(h LockHandle) (*openSubstate, error) {
	o, ok := t.open[h]
	if !ok {
		return nil, errKernel("unknown substate handle %d", h)
	}
	delete(t.open, h)
	ck := substateCompositeKey(o.node, o.partition, o.key)
	st := t.states[ck]
	if st == nil {
		return nil, errKernel("lock state missing for handle %d", h)
	}
	if o.flags.mutable() {
		st.exclusive = false
	} else if st.shared > 0 {
		st.shared--
	}
	if !st.exclusive && st.shared == 0 {
		delete(t.states, ck)
	}
	return o, nil
}

// openAtDepth returns the handles opened by the given frame depth.
func (t *lockTable) openAtDepth(depth int) []LockHandle {
	var out []LockHandle
	for h, o := range t.open {
		if o.depth == depth {
			out = append(out, h)
		}
	}
	return out
}
