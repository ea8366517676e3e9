package core

// Flat Merkle commitment over a transaction's ordered event stream. The
// receipt carries the root so clients can verify event inclusion without
// replaying the transaction.

import (
	"bytes"
	"errors"
)

// BuildEventTree returns the level-by-level nodes of a Merkle tree built
// from the provided leaves. Each leaf is hashed with the engine hash. The
// last slice contains the single root hash.
func BuildEventTree(leaves [][]byte) ([][]Hash, error) {
	if len(leaves) == 0 {
		return nil, errors.New("no leaves")
	}

	// first level: hashed leaves
	level := make([]Hash, len(leaves))
	for i, l := range leaves {
		level[i] = HashOf(l)
	}

	tree := [][]Hash{level}

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]Hash, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next[i/2] = HashOf(level[i][:], level[i+1][:])
		}
		tree = append(tree, next)
		level = next
	}

	return tree, nil
}

// EventsCommitment hashes an ordered event stream into one root. An empty
// stream commits to the placeholder hash so receipts stay comparable.
func EventsCommitment(events []Event) Hash {
	if len(events) == 0 {
		return treePlaceholderHash
	}
	leaves := make([][]byte, len(events))
	for i, ev := range events {
		leaf := append([]byte(ev.Emitter), 0x00)
		leaf = append(leaf, ev.Name...)
		leaf = append(leaf, 0x00)
		leaf = append(leaf, ev.Payload...)
		leaves[i] = leaf
	}
	tree, err := BuildEventTree(leaves)
	if err != nil {
		return treePlaceholderHash
	}
	return tree[len(tree)-1][0]
}

// EventProof returns a Merkle proof for the event at the given index
// along with the tree's root hash. The proof slice is ordered from leaf
// level upwards.
func EventProof(leaves [][]byte, index uint32) ([][]byte, Hash, error) {
	if len(leaves) == 0 {
		return nil, Hash{}, errors.New("no leaves")
	}
	if int(index) >= len(leaves) {
		return nil, Hash{}, errors.New("index out of range")
	}

	tree, err := BuildEventTree(leaves)
	if err != nil {
		return nil, Hash{}, err
	}

	proof := make([][]byte, 0, len(tree)-1)
	idx := int(index)
	for i := 0; i < len(tree)-1; i++ {
		level := tree[i]
		if idx%2 == 0 {
			sibling := idx + 1
			if sibling >= len(level) {
				sibling = idx
			}
			proof = append(proof, level[sibling].Bytes())
		} else {
			proof = append(proof, level[idx-1].Bytes())
		}
		idx /= 2
	}

	root := tree[len(tree)-1][0]
	return proof, root, nil
}

// VerifyEventPath checks whether the supplied proof reconstructs the
// provided root for the given leaf and index. Proof hashes must be
// ordered from leaf upwards.
func VerifyEventPath(root Hash, leaf []byte, proof [][]byte, index uint32) bool {
	hash := HashOf(leaf)
	for _, p := range proof {
		if index%2 == 0 {
			hash = HashOf(hash[:], p)
		} else {
			hash = HashOf(p, hash[:])
		}
		index /= 2
	}
	return bytes.Equal(hash[:], root[:])
}
