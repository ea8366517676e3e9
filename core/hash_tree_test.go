package core

import "testing"

func treeUpdate(node byte, part PartitionNumber, field uint8, value string) SubstateUpdate {
	return SubstateUpdate{
		NodeID:    testNodeID(node),
		Partition: part,
		Key:       FieldKey(field),
		Value:     []byte(value),
	}
}

func treeDelete(node byte, part PartitionNumber, field uint8) SubstateUpdate {
	return SubstateUpdate{NodeID: testNodeID(node), Partition: part, Key: FieldKey(field)}
}

func newTestTree() *StateHashTree {
	return NewStateHashTree(NewMemoryTreeStore())
}

func TestEmptyTreeRootIsPlaceholder(t *testing.T) {
	tree := newTestTree()
	if tree.CurrentRoot() != EmptyStateRoot() {
		t.Fatal("fresh tree root must be the placeholder")
	}
}

// Scenario: identical substate sets written in different orders produce
// identical roots.
func TestRootStableUnderReordering(t *testing.T) {
	a := newTestTree()
	b := newTestTree()

	rootA, _, err := a.PutAtNextVersion(1, []SubstateUpdate{
		treeUpdate(1, PartitionMain, 0, "v1"),
		treeUpdate(1, PartitionMain, 1, "v2"),
	})
	if err != nil {
		t.Fatalf("a: %v", err)
	}
	rootB, _, err := b.PutAtNextVersion(1, []SubstateUpdate{
		treeUpdate(1, PartitionMain, 1, "v2"),
		treeUpdate(1, PartitionMain, 0, "v1"),
	})
	if err != nil {
		t.Fatalf("b: %v", err)
	}
	if rootA != rootB {
		t.Fatalf("reordered writes changed the root: %s vs %s", rootA, rootB)
	}
}

// L4: applying updates then their inverse restores the previous root.
func TestInverseUpdatesRestoreRoot(t *testing.T) {
	tree := newTestTree()
	base, _, err := tree.PutAtNextVersion(1, []SubstateUpdate{
		treeUpdate(1, PartitionMain, 0, "keep"),
	})
	if err != nil {
		t.Fatalf("v1: %v", err)
	}
	if _, _, err := tree.PutAtNextVersion(2, []SubstateUpdate{
		treeUpdate(2, PartitionMain, 0, "temp"),
		treeUpdate(1, PartitionMain, 1, "temp2"),
	}); err != nil {
		t.Fatalf("v2: %v", err)
	}
	restored, _, err := tree.PutAtNextVersion(3, []SubstateUpdate{
		treeDelete(2, PartitionMain, 0),
		treeDelete(1, PartitionMain, 1),
	})
	if err != nil {
		t.Fatalf("v3: %v", err)
	}
	if restored != base {
		t.Fatalf("inverse updates did not restore the root: %s vs %s", restored, base)
	}
}

// Incremental and fresh construction of the same set agree (P7).
func TestIncrementalMatchesFresh(t *testing.T) {
	incremental := newTestTree()
	for i := 0; i < 8; i++ {
		if _, _, err := incremental.PutAtNextVersion(uint64(i+1), []SubstateUpdate{
			treeUpdate(byte(i), PartitionMain, uint8(i), "x"),
		}); err != nil {
			t.Fatalf("v%d: %v", i+1, err)
		}
	}

	fresh := newTestTree()
	var all []SubstateUpdate
	for i := 0; i < 8; i++ {
		all = append(all, treeUpdate(byte(i), PartitionMain, uint8(i), "x"))
	}
	freshRoot, _, err := fresh.PutAtNextVersion(1, all)
	if err != nil {
		t.Fatalf("fresh: %v", err)
	}
	if incremental.CurrentRoot() != freshRoot {
		t.Fatal("incremental root diverges from fresh root")
	}
}

func TestValueChangeChangesRoot(t *testing.T) {
	a := newTestTree()
	b := newTestTree()
	rootA, _, _ := a.PutAtNextVersion(1, []SubstateUpdate{treeUpdate(1, PartitionMain, 0, "x")})
	rootB, _, _ := b.PutAtNextVersion(1, []SubstateUpdate{treeUpdate(1, PartitionMain, 0, "y")})
	if rootA == rootB {
		t.Fatal("different values yielded the same root")
	}
	c := newTestTree()
	rootC, _, _ := c.PutAtNextVersion(1, []SubstateUpdate{treeUpdate(1, PartitionMain, 1, "x")})
	if rootA == rootC {
		t.Fatal("different keys yielded the same root")
	}
}

func TestDeleteAllReturnsPlaceholder(t *testing.T) {
	tree := newTestTree()
	if _, _, err := tree.PutAtNextVersion(1, []SubstateUpdate{
		treeUpdate(1, PartitionMain, 0, "a"),
		treeUpdate(2, PartitionMetadata, 1, "b"),
	}); err != nil {
		t.Fatalf("v1: %v", err)
	}
	root, _, err := tree.PutAtNextVersion(2, []SubstateUpdate{
		treeDelete(1, PartitionMain, 0),
		treeDelete(2, PartitionMetadata, 1),
	})
	if err != nil {
		t.Fatalf("v2: %v", err)
	}
	if root != EmptyStateRoot() {
		t.Fatalf("emptied tree root %s is not the placeholder", root)
	}
}

func TestDuplicateWritesCollapse(t *testing.T) {
	a := newTestTree()
	b := newTestTree()
	rootA, _, _ := a.PutAtNextVersion(1, []SubstateUpdate{
		treeUpdate(1, PartitionMain, 0, "first"),
		treeUpdate(1, PartitionMain, 0, "second"),
	})
	rootB, _, _ := b.PutAtNextVersion(1, []SubstateUpdate{
		treeUpdate(1, PartitionMain, 0, "second"),
	})
	if rootA != rootB {
		t.Fatal("duplicate writes must be last-wins")
	}
}

// Stale keys cover superseded nodes: pruning them must not disturb reads
// of the current version.
func TestStaleNodePruning(t *testing.T) {
	store := NewMemoryTreeStore()
	tree := NewStateHashTree(store)
	if _, _, err := tree.PutAtNextVersion(1, []SubstateUpdate{
		treeUpdate(1, PartitionMain, 0, "a"),
		treeUpdate(2, PartitionMain, 0, "b"),
	}); err != nil {
		t.Fatalf("v1: %v", err)
	}
	before := store.Len()
	_, stale, err := tree.PutAtNextVersion(2, []SubstateUpdate{
		treeUpdate(1, PartitionMain, 0, "a2"),
	})
	if err != nil {
		t.Fatalf("v2: %v", err)
	}
	if len(stale) == 0 {
		t.Fatal("expected stale nodes from the overwrite")
	}
	store.Prune(stale)
	if store.Len() >= before+len(stale) {
		t.Fatal("pruning did not reclaim stale nodes")
	}

	// The current version must still be fully writable against.
	root3, _, err := tree.PutAtNextVersion(3, []SubstateUpdate{
		treeUpdate(2, PartitionMain, 0, "b2"),
	})
	if err != nil {
		t.Fatalf("v3 after pruning: %v", err)
	}
	if root3 == (Hash{}) {
		t.Fatal("empty root after pruning")
	}
}

func TestVersionOrderEnforced(t *testing.T) {
	tree := newTestTree()
	if _, _, err := tree.PutAtNextVersion(2, nil); err == nil {
		t.Fatal("expected version order error")
	}
}
