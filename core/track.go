package core

// Track: the journaled overlay between the kernel and the substate store.
// Reads fault committed substates into a cache; writes stay in the journal
// until the transaction succeeds, at which point the track renders an
// ordered update batch (with old-value hashes for the receipt) that feeds
// the hash tree and the store. A failed transaction simply discards the
// track, which is what makes transactions all-or-nothing.

import "sort"

type trackEntry struct {
	node      NodeID
	partition PartitionNumber
	key       SubstateKey

	value     []byte // current (possibly journalled) value; nil = deleted
	exists    bool
	written   bool
	oldValue  []byte // committed value at first touch
	oldExists bool
}

// Track overlays a SubstateStore for one transaction.
type Track struct {
	store   SubstateStore
	entries map[string]*trackEntry
}

func NewTrack(store SubstateStore) *Track {
	return &Track{store: store, entries: make(map[string]*trackEntry)}
}

func (t *Track) entry(id NodeID, part PartitionNumber, key SubstateKey) *trackEntry {
	ck := substateCompositeKey(id, part, key)
	if e, ok := t.entries[ck]; ok {
		return e
	}
	value, exists := t.store.ReadSubstate(id, part, key)
	e := &trackEntry{
		node: id, partition: part, key: key,
		value: value, exists: exists,
		oldValue: value, oldExists: exists,
	}
	t.entries[ck] = e
	return e
}

// Read returns the transaction-visible value of a substate.
func (t *Track) Read(id NodeID, part PartitionNumber, key SubstateKey) ([]byte, bool) {
	e := t.entry(id, part, key)
	if !e.exists {
		return nil, false
	}
	return e.value, true
}

// Write journals a new value.
func (t *Track) Write(id NodeID, part PartitionNumber, key SubstateKey, value []byte) {
	e := t.entry(id, part, key)
	e.value = value
	e.exists = true
	e.written = true
}

// Delete journals a tombstone.
func (t *Track) Delete(id NodeID, part PartitionNumber, key SubstateKey) {
	e := t.entry(id, part, key)
	e.value = nil
	e.exists = false
	e.written = true
}

// NodeExists reports whether the node has a committed (or journalled)
// type-info substate, the marker of its existence in the store.
func (t *Track) NodeExists(id NodeID) bool {
	_, ok := t.Read(id, PartitionTypeInfo, FieldKey(0))
	return ok
}

// StateUpdate is one receipt-facing substate change.
type StateUpdate struct {
	NodeID    NodeID          `json:"node_id"`
	Partition PartitionNumber `json:"partition"`
	Key       []byte          `json:"key"`
	OldHash   *Hash           `json:"old_hash,omitempty"`
	NewValue  []byte          `json:"new_value,omitempty"` // nil = tombstone
}

// TakeUpdates renders the journal as a deterministic, deduplicated update
// list: substate updates for the store plus annotated updates for the
// receipt. No-op writes (value byte-equal to the committed one) are
// elided so that state roots only move when state does.
func (t *Track) TakeUpdates() ([]SubstateUpdate, []StateUpdate) {
	keys := make([]string, 0, len(t.entries))
	for k, e := range t.entries {
		if e.written {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var storeUpdates []SubstateUpdate
	var receiptUpdates []StateUpdate
	for _, k := range keys {
		e := t.entries[k]
		if e.exists == e.oldExists && bytesEqual(e.value, e.oldValue) {
			continue
		}
		su := SubstateUpdate{NodeID: e.node, Partition: e.partition, Key: e.key}
		ru := StateUpdate{NodeID: e.node, Partition: e.partition, Key: e.key.Encoded()}
		if e.exists {
			su.Value = e.value
			ru.NewValue = e.value
		}
		if e.oldExists {
			oh := HashOf(e.oldValue)
			ru.OldHash = &oh
		}
		storeUpdates = append(storeUpdates, su)
		receiptUpdates = append(receiptUpdates, ru)
	}
	return storeUpdates, receiptUpdates
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
