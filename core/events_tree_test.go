package core

import "testing"

func TestEventsCommitmentStable(t *testing.T) {
	events := []Event{
		{Emitter: "a", Name: "E1", Payload: []byte{1}},
		{Emitter: "b", Name: "E2", Payload: []byte{2}},
	}
	if EventsCommitment(events) != EventsCommitment(events) {
		t.Fatal("commitment not deterministic")
	}
	swapped := []Event{events[1], events[0]}
	if EventsCommitment(events) == EventsCommitment(swapped) {
		t.Fatal("commitment ignores event order")
	}
	if EventsCommitment(nil) != treePlaceholderHash {
		t.Fatal("empty stream must commit to the placeholder")
	}
}

func TestEventProofRoundTrip(t *testing.T) {
	leaves := [][]byte{[]byte("a"), []byte("b"), []byte("c")}
	for i := range leaves {
		proof, root, err := EventProof(leaves, uint32(i))
		if err != nil {
			t.Fatalf("proof %d: %v", i, err)
		}
		if !VerifyEventPath(root, leaves[i], proof, uint32(i)) {
			t.Fatalf("proof %d does not verify", i)
		}
		if VerifyEventPath(root, []byte("x"), proof, uint32(i)) {
			t.Fatalf("proof %d verifies a wrong leaf", i)
		}
	}
	if _, _, err := EventProof(leaves, 9); err == nil {
		t.Fatal("out of range index accepted")
	}
	if _, _, err := EventProof(nil, 0); err == nil {
		t.Fatal("empty leaves accepted")
	}
}
