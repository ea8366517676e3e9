package core

import (
	"bytes"
	"testing"
)

func TestMemoryStoreVersionedReads(t *testing.T) {
	store := NewMemorySubstateStore()
	node := testNodeID(1)

	if err := store.CommitBatch(&CommitBatch{Version: 1, Updates: []SubstateUpdate{
		{NodeID: node, Partition: PartitionMain, Key: FieldKey(0), Value: []byte("v1")},
	}}); err != nil {
		t.Fatalf("commit v1: %v", err)
	}
	if err := store.CommitBatch(&CommitBatch{Version: 2, Updates: []SubstateUpdate{
		{NodeID: node, Partition: PartitionMain, Key: FieldKey(0), Value: []byte("v2")},
	}}); err != nil {
		t.Fatalf("commit v2: %v", err)
	}

	if got, ok := store.ReadSubstate(node, PartitionMain, FieldKey(0)); !ok || !bytes.Equal(got, []byte("v2")) {
		t.Fatalf("latest read: %q %v", got, ok)
	}
	if got, ok := store.ReadSubstateAt(node, PartitionMain, FieldKey(0), 1); !ok || !bytes.Equal(got, []byte("v1")) {
		t.Fatalf("historical read: %q %v", got, ok)
	}
	if _, ok := store.ReadSubstateAt(node, PartitionMain, FieldKey(0), 0); ok {
		t.Fatal("read before first version must miss")
	}
	if store.LatestVersion() != 2 {
		t.Fatalf("latest version %d", store.LatestVersion())
	}
}

func TestMemoryStoreTombstones(t *testing.T) {
	store := NewMemorySubstateStore()
	node := testNodeID(2)
	_ = store.CommitBatch(&CommitBatch{Version: 1, Updates: []SubstateUpdate{
		{NodeID: node, Partition: PartitionMain, Key: MapKey([]byte("k")), Value: []byte("x")},
	}})
	_ = store.CommitBatch(&CommitBatch{Version: 2, Updates: []SubstateUpdate{
		{NodeID: node, Partition: PartitionMain, Key: MapKey([]byte("k"))},
	}})
	if _, ok := store.ReadSubstate(node, PartitionMain, MapKey([]byte("k"))); ok {
		t.Fatal("tombstoned substate still readable")
	}
	if got, ok := store.ReadSubstateAt(node, PartitionMain, MapKey([]byte("k")), 1); !ok || !bytes.Equal(got, []byte("x")) {
		t.Fatal("tombstone hid the historical version")
	}
}

func TestMemoryStoreVersionOrder(t *testing.T) {
	store := NewMemorySubstateStore()
	if err := store.CommitBatch(&CommitBatch{Version: 5}); err == nil {
		t.Fatal("expected version order error")
	}
}

func TestSubstateKeyCodec(t *testing.T) {
	keys := []SubstateKey{FieldKey(0), FieldKey(255), MapKey(nil), MapKey([]byte("abc"))}
	for _, k := range keys {
		decoded, err := DecodeSubstateKey(k.Encoded())
		if err != nil {
			t.Fatalf("decode %s: %v", k, err)
		}
		if !bytes.Equal(decoded.Encoded(), k.Encoded()) {
			t.Fatalf("round trip changed %s", k)
		}
	}
	if _, err := DecodeSubstateKey(nil); err == nil {
		t.Fatal("expected empty key error")
	}
	if _, err := DecodeSubstateKey([]byte{0x09}); err == nil {
		t.Fatal("expected unknown tag error")
	}
}
