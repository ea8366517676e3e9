package core

import "testing"

func testKernel() *Kernel {
	fees := NewFeeReserve(0)
	fees.loanRemaining = 1 << 40
	return NewKernel(NewMemorySubstateStore(), HashOf([]byte("test-tx")), fees, nil)
}

// ------------------------------------------------------------
// Lock table state machine (P6)
// ------------------------------------------------------------

func TestLockTableSharedAndExclusive(t *testing.T) {
	lt := newLockTable()
	node := testNodeID(1)

	s1, err := lt.acquire(node, PartitionMain, FieldKey(0), 0, 0, false)
	if err != nil {
		t.Fatalf("shared 1: %v", err)
	}
	if _, err := lt.acquire(node, PartitionMain, FieldKey(0), 0, 0, false); err != nil {
		t.Fatalf("shared 2: %v", err)
	}
	// Exclusive while shared held: conflict.
	if _, err := lt.acquire(node, PartitionMain, FieldKey(0), LockMutable, 0, false); err == nil {
		t.Fatal("exclusive granted alongside shared locks")
	}
	// A different substate is independent.
	if _, err := lt.acquire(node, PartitionMain, FieldKey(1), LockMutable, 0, false); err != nil {
		t.Fatalf("independent substate: %v", err)
	}

	if _, err := lt.release(s1); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := lt.release(s1); err == nil {
		t.Fatal("double release accepted")
	}
}

func TestLockTableExclusiveExcludesAll(t *testing.T) {
	lt := newLockTable()
	node := testNodeID(2)
	x, err := lt.acquire(node, PartitionMain, FieldKey(0), LockMutable, 0, false)
	if err != nil {
		t.Fatalf("exclusive: %v", err)
	}
	if _, err := lt.acquire(node, PartitionMain, FieldKey(0), 0, 0, false); err == nil {
		t.Fatal("shared granted under exclusive")
	}
	if _, err := lt.acquire(node, PartitionMain, FieldKey(0), LockMutable, 0, false); err == nil {
		t.Fatal("second exclusive granted")
	}
	if _, err := lt.release(x); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := lt.acquire(node, PartitionMain, FieldKey(0), LockMutable, 0, false); err != nil {
		t.Fatalf("exclusive after release: %v", err)
	}
}

// ------------------------------------------------------------
// Node lifecycle and visibility
// ------------------------------------------------------------

func TestCreateReadWriteSubstate(t *testing.T) {
	k := testKernel()
	id, err := k.AllocateNodeID(EntityTypeInternalBucket)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	payload := MustEncodePayload(VU64(7))
	if err := k.CreateNode(id, map[PartitionNumber][]SubstateEntry{
		PartitionMain: {{Key: FieldKey(0), Value: payload}},
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := k.CreateNode(id, nil); err == nil {
		t.Fatal("duplicate create accepted")
	}

	h, err := k.OpenSubstate(id, PartitionMain, FieldKey(0), LockMutable)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	got, err := k.ReadSubstate(h)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytesEqual(got, payload) {
		t.Fatal("read returned wrong payload")
	}
	next := MustEncodePayload(VU64(8))
	if err := k.WriteSubstate(h, next); err != nil {
		t.Fatalf("write: %v", err)
	}
	// The staged write is visible through the same handle.
	if got, _ := k.ReadSubstate(h); !bytesEqual(got, next) {
		t.Fatal("staged write invisible to its own handle")
	}
	if err := k.CloseSubstate(h); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got, _ := k.heap.Read(id, PartitionMain, FieldKey(0)); !bytesEqual(got, next) {
		t.Fatal("write did not flush on close")
	}
}

func TestWriteThroughReadOnlyHandle(t *testing.T) {
	k := testKernel()
	id, _ := k.AllocateNodeID(EntityTypeInternalBucket)
	_ = k.CreateNode(id, map[PartitionNumber][]SubstateEntry{
		PartitionMain: {{Key: FieldKey(0), Value: MustEncodePayload(VU8(1))}},
	})
	h, err := k.OpenSubstate(id, PartitionMain, FieldKey(0), 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := k.WriteSubstate(h, MustEncodePayload(VU8(2))); err == nil {
		t.Fatal("write accepted through read-only handle")
	}
	_ = k.CloseSubstate(h)
}

func TestOpenInvisibleNode(t *testing.T) {
	k := testKernel()
	var stranger NodeID
	stranger[0] = byte(EntityTypeInternalBucket)
	stranger[1] = 0x77
	if _, err := k.OpenSubstate(stranger, PartitionMain, FieldKey(0), 0); err != ErrNodeNotVisible {
		t.Fatalf("expected NodeNotVisible, got %v", err)
	}
}

func TestDropRules(t *testing.T) {
	k := testKernel()
	bucket, _ := k.AllocateNodeID(EntityTypeInternalBucket)
	_ = k.CreateNode(bucket, map[PartitionNumber][]SubstateEntry{
		PartitionMain: {{Key: FieldKey(0), Value: MustEncodePayload(VU8(0))}},
	})
	if _, err := k.DropNode(bucket); err != nil {
		t.Fatalf("drop bucket: %v", err)
	}

	kv, _ := k.AllocateNodeID(EntityTypeInternalKeyValueStore)
	_ = k.CreateNode(kv, map[PartitionNumber][]SubstateEntry{
		PartitionMain: {{Key: FieldKey(0), Value: MustEncodePayload(VU8(0))}},
	})
	if _, err := k.DropNode(kv); err == nil {
		t.Fatal("non-droppable entity dropped")
	}
}

func TestFrameCleanlinessCheck(t *testing.T) {
	k := testKernel()
	if err := k.AssertFrameClean(); err != nil {
		t.Fatalf("fresh kernel dirty: %v", err)
	}
	bucket, _ := k.AllocateNodeID(EntityTypeInternalBucket)
	_ = k.CreateNode(bucket, map[PartitionNumber][]SubstateEntry{
		PartitionMain: {{Key: FieldKey(0), Value: MustEncodePayload(VU8(0))}},
	})
	err := k.AssertFrameClean()
	if err == nil {
		t.Fatal("leaked bucket not detected")
	}
	if KindOf(err) != ErrKindResource {
		t.Fatalf("dangling bucket must be a Resource error, got %s", KindOf(err))
	}
}

func TestGlobalizePersistsOwnedChildren(t *testing.T) {
	k := testKernel()

	child, _ := k.AllocateNodeID(EntityTypeInternalKeyValueStore)
	if err := k.CreateNode(child, map[PartitionNumber][]SubstateEntry{
		PartitionTypeInfo: {{Key: FieldKey(0), Value: TypeInfoSubstate{
			Package: PackageResource, Blueprint: "KeyValueStore",
		}.encode()}},
	}); err != nil {
		t.Fatalf("create child: %v", err)
	}

	parent, _ := k.AllocateNodeID(EntityTypeGlobalComponent)
	if err := k.CreateNode(parent, map[PartitionNumber][]SubstateEntry{
		PartitionTypeInfo: {{Key: FieldKey(0), Value: TypeInfoSubstate{
			Package: PackageResource, Blueprint: "Thing", Global: true,
		}.encode()}},
		PartitionMain: {{Key: FieldKey(0), Value: MustEncodePayload(VOwn(child))}},
	}); err != nil {
		t.Fatalf("create parent: %v", err)
	}
	if err := k.Globalize(parent); err != nil {
		t.Fatalf("globalize: %v", err)
	}
	if k.heap.Contains(child) {
		t.Fatal("owned child left behind in the heap")
	}
	if _, ok := k.track.Read(child, PartitionTypeInfo, FieldKey(0)); !ok {
		t.Fatal("owned child missing from the track")
	}
	// Reading type info back returns the blueprint it was globalized under.
	info, err := k.readTypeInfo(parent)
	if err != nil {
		t.Fatalf("type info after globalize: %v", err)
	}
	if info.Blueprint != "Thing" || info.Package != PackageResource || !info.Global {
		t.Fatalf("type info round trip: %+v", info)
	}
	if err := k.AssertFrameClean(); err != nil {
		t.Fatalf("frame dirty after globalize: %v", err)
	}
}

func TestRUIDDeterministicPerTransaction(t *testing.T) {
	a := testKernel()
	b := testKernel()
	r1, _ := a.GenerateRUID()
	r2, _ := a.GenerateRUID()
	if r1 == r2 {
		t.Fatal("RUIDs within a transaction must differ")
	}
	s1, _ := b.GenerateRUID()
	if r1 != s1 {
		t.Fatal("same transaction hash must yield the same RUID sequence")
	}
}
