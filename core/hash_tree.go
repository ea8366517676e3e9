package core

// Two-tier sparse Merkle state tree.
//
// The upper tier is keyed by hash(node_id || partition); each upper leaf's
// value hash is the root of a lower tier keyed by hash(substate_key) whose
// leaf value hashes are hash(value_bytes). Writes happen once per version:
// every changed subtree is rebuilt against the previous version, replaced
// internal nodes are reported as stale so an external compactor can reclaim
// them, and the root of the upper tier becomes the state root. The shape of
// the tree is a pure function of the live substate set, so equal sets yield
// equal roots regardless of write order or history.

import (
	"bytes"
	"encoding/binary"
	"sort"
)

// treePlaceholderHash is the stable root of an empty (sub)tree.
var treePlaceholderHash = HashOf([]byte("EMPTY_SUBTREE_PLACEHOLDER"))

// EmptyStateRoot returns the state root of a store with no substates.
func EmptyStateRoot() Hash { return treePlaceholderHash }

// TreeNodeKey identifies one physical tree node: its tier scope (empty for
// the upper tier, node_id||partition for a lower tier), the version that
// wrote it, and its nibble path from the tier root.
type TreeNodeKey struct {
	Scope   string
	Version uint64
	Path    string // one nibble (0..15) per byte
}

func (k TreeNodeKey) storeKey() string {
	var buf bytes.Buffer
	if k.Scope == "" {
		buf.WriteByte('U')
	} else {
		buf.WriteByte('L')
		buf.WriteString(k.Scope)
	}
	var v [8]byte
	binary.BigEndian.PutUint64(v[:], k.Version)
	buf.Write(v[:])
	buf.WriteString(k.Path)
	return buf.String()
}

// TreeChild is a parent's reference to a child node.
type TreeChild struct {
	Version uint64
	Hash    Hash
	IsLeaf  bool
}

// treeNode is either an internal node or a leaf.
type treeNode interface {
	nodeHash() Hash
}

// TreeInternalNode has up to 16 children, one per nibble.
type TreeInternalNode struct {
	Children [16]*TreeChild
}

func (n *TreeInternalNode) nodeHash() Hash {
	var buf bytes.Buffer
	buf.WriteByte(0x01)
	for _, c := range n.Children {
		if c == nil {
			buf.Write(treePlaceholderHash[:])
		} else {
			buf.Write(c.Hash[:])
		}
	}
	return HashOf(buf.Bytes())
}

func (n *TreeInternalNode) childCount() int {
	count := 0
	for _, c := range n.Children {
		if c != nil {
			count++
		}
	}
	return count
}

// TreeLeafNode holds one logical entry, placed at the shallowest depth
// where its key hash is unique.
type TreeLeafNode struct {
	KeyHash    Hash
	ValueHash  Hash
	LogicalKey []byte
}

func (n *TreeLeafNode) nodeHash() Hash {
	var buf bytes.Buffer
	buf.WriteByte(0x00)
	buf.Write(n.KeyHash[:])
	buf.Write(n.ValueHash[:])
	return HashOf(buf.Bytes())
}

// TreeStore persists physical tree nodes.
type TreeStore interface {
	GetTreeNode(key TreeNodeKey) (treeNode, bool)
	PutTreeNode(key TreeNodeKey, node treeNode)
}

// MemoryTreeStore is the reference TreeStore, with pruning support for the
// stale keys reported at each version.
type MemoryTreeStore struct {
	nodes map[string]treeNode
}

func NewMemoryTreeStore() *MemoryTreeStore {
	return &MemoryTreeStore{nodes: make(map[string]treeNode)}
}

func (s *MemoryTreeStore) GetTreeNode(key TreeNodeKey) (treeNode, bool) {
	n, ok := s.nodes[key.storeKey()]
	return n, ok
}

func (s *MemoryTreeStore) PutTreeNode(key TreeNodeKey, node treeNode) {
	s.nodes[key.storeKey()] = node
}

// Prune drops superseded nodes. Safe once no reader needs versions below
// the pruning horizon.
func (s *MemoryTreeStore) Prune(stale []TreeNodeKey) {
	for _, k := range stale {
		delete(s.nodes, k.storeKey())
	}
}

// Len reports the live physical node count (test hook).
func (s *MemoryTreeStore) Len() int { return len(s.nodes) }

// -----------------------------------------------------------------------------
// StateHashTree
// -----------------------------------------------------------------------------

// StateHashTree drives both tiers against a TreeStore.
type StateHashTree struct {
	store   TreeStore
	roots   map[string]*TreeChild // scope -> current root reference
	version uint64
	root    Hash
}

// NewStateHashTree returns an empty tree at version 0.
func NewStateHashTree(store TreeStore) *StateHashTree {
	return &StateHashTree{
		store: store,
		roots: make(map[string]*TreeChild),
		root:  treePlaceholderHash,
	}
}

// CurrentRoot returns the state root of the last written version.
func (t *StateHashTree) CurrentRoot() Hash { return t.root }

// Version returns the last written version.
func (t *StateHashTree) Version() uint64 { return t.version }

type treeChange struct {
	keyHash    Hash
	logicalKey []byte
	valueHash  *Hash // nil = delete
}

// PutAtNextVersion applies one version's substate updates and returns the
// new state root together with every superseded physical node key.
func (t *StateHashTree) PutAtNextVersion(version uint64, updates []SubstateUpdate) (Hash, []TreeNodeKey, error) {
	if version != t.version+1 {
		return Hash{}, nil, errSystem("tree version %d out of order (tree at %d)", version, t.version)
	}

	// Partition the batch by (node, partition) scope; last write per
	// substate key wins.
	byScope := make(map[string]map[string]treeChange)
	for _, u := range updates {
		scope := string(u.NodeID[:]) + string([]byte{byte(u.Partition)})
		keyBytes := u.Key.Encoded()
		ch := treeChange{keyHash: HashOf(keyBytes), logicalKey: keyBytes}
		if !u.IsDelete() {
			vh := HashOf(u.Value)
			ch.valueHash = &vh
		}
		if byScope[scope] == nil {
			byScope[scope] = make(map[string]treeChange)
		}
		byScope[scope][string(ch.keyHash[:])] = ch
	}

	var stale []TreeNodeKey

	// Rebuild each changed lower tier, then the upper tier.
	scopes := make([]string, 0, len(byScope))
	for s := range byScope {
		scopes = append(scopes, s)
	}
	sort.Strings(scopes)

	var upperChanges []treeChange
	newRoots := make(map[string]*TreeChild, len(scopes))
	for _, scope := range scopes {
		changes := sortedChanges(byScope[scope])
		newRef, err := t.update(scope, t.roots[scope], "", 0, changes, version, &stale)
		if err != nil {
			return Hash{}, nil, err
		}
		newRoots[scope] = newRef
		upper := treeChange{keyHash: HashOf([]byte(scope)), logicalKey: []byte(scope)}
		if newRef != nil {
			h := newRef.Hash
			upper.valueHash = &h
		}
		upperChanges = append(upperChanges, upper)
	}
	sort.Slice(upperChanges, func(i, j int) bool {
		return bytes.Compare(upperChanges[i].keyHash[:], upperChanges[j].keyHash[:]) < 0
	})

	upperRef, err := t.update("", t.roots[""], "", 0, upperChanges, version, &stale)
	if err != nil {
		return Hash{}, nil, err
	}

	for scope, ref := range newRoots {
		if ref == nil {
			delete(t.roots, scope)
		} else {
			t.roots[scope] = ref
		}
	}
	if upperRef == nil {
		delete(t.roots, "")
		t.root = treePlaceholderHash
	} else {
		t.roots[""] = upperRef
		t.root = upperRef.Hash
	}
	t.version = version
	return t.root, stale, nil
}

func sortedChanges(m map[string]treeChange) []treeChange {
	out := make([]treeChange, 0, len(m))
	for _, c := range m {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].keyHash[:], out[j].keyHash[:]) < 0
	})
	return out
}

func nibbleAt(h Hash, depth int) byte {
	b := h[depth/2]
	if depth%2 == 0 {
		return b >> 4
	}
	return b & 0x0f
}

// update rebuilds the subtree at path against its previous version,
// returning the new child reference (nil for an empty subtree). Every
// pre-existing node it replaces or removes is appended to stale.
func (t *StateHashTree) update(scope string, existing *TreeChild, path string, depth int, changes []treeChange, version uint64, stale *[]TreeNodeKey) (*TreeChild, error) {
	if len(changes) == 0 {
		return existing, nil
	}
	if depth >= 64 {
		return nil, errSystem("tree depth exhausted: duplicate key hash")
	}

	if existing == nil {
		return t.buildFresh(scope, path, depth, liveOnly(changes), version)
	}

	existingKey := TreeNodeKey{Scope: scope, Version: existing.Version, Path: path}
	node, ok := t.store.GetTreeNode(existingKey)
	if !ok {
		return nil, errSystem("missing tree node %q v%d path %x", scope, existing.Version, path)
	}
	*stale = append(*stale, existingKey)

	switch n := node.(type) {
	case *TreeLeafNode:
		// Merge the resident entry into the change set unless superseded.
		merged := changes
		superseded := false
		for _, c := range changes {
			if c.keyHash == n.KeyHash {
				superseded = true
				break
			}
		}
		if !superseded {
			vh := n.ValueHash
			merged = append(append([]treeChange{}, changes...),
				treeChange{keyHash: n.KeyHash, logicalKey: n.LogicalKey, valueHash: &vh})
			sort.Slice(merged, func(i, j int) bool {
				return bytes.Compare(merged[i].keyHash[:], merged[j].keyHash[:]) < 0
			})
		}
		return t.buildFresh(scope, path, depth, liveOnly(merged), version)

	case *TreeInternalNode:
		grouped := make([][]treeChange, 16)
		for _, c := range changes {
			nb := nibbleAt(c.keyHash, depth)
			grouped[nb] = append(grouped[nb], c)
		}
		next := &TreeInternalNode{}
		for i := 0; i < 16; i++ {
			child := n.Children[i]
			if len(grouped[i]) == 0 {
				next.Children[i] = child
				continue
			}
			updated, err := t.update(scope, child, path+string([]byte{byte(i)}), depth+1, grouped[i], version, stale)
			if err != nil {
				return nil, err
			}
			next.Children[i] = updated
		}
		return t.placeInternal(scope, path, next, version, stale)

	default:
		return nil, errSystem("unknown tree node type")
	}
}

// buildFresh constructs a subtree holding exactly the given live entries.
func (t *StateHashTree) buildFresh(scope, path string, depth int, live []treeChange, version uint64) (*TreeChild, error) {
	switch len(live) {
	case 0:
		return nil, nil
	case 1:
		leaf := &TreeLeafNode{KeyHash: live[0].keyHash, ValueHash: *live[0].valueHash, LogicalKey: live[0].logicalKey}
		t.store.PutTreeNode(TreeNodeKey{Scope: scope, Version: version, Path: path}, leaf)
		return &TreeChild{Version: version, Hash: leaf.nodeHash(), IsLeaf: true}, nil
	}
	if depth >= 64 {
		return nil, errSystem("tree depth exhausted: duplicate key hash")
	}
	grouped := make([][]treeChange, 16)
	for _, c := range live {
		nb := nibbleAt(c.keyHash, depth)
		grouped[nb] = append(grouped[nb], c)
	}
	node := &TreeInternalNode{}
	for i := 0; i < 16; i++ {
		if len(grouped[i]) == 0 {
			continue
		}
		child, err := t.buildFresh(scope, path+string([]byte{byte(i)}), depth+1, grouped[i], version)
		if err != nil {
			return nil, err
		}
		node.Children[i] = child
	}
	key := TreeNodeKey{Scope: scope, Version: version, Path: path}
	t.store.PutTreeNode(key, node)
	return &TreeChild{Version: version, Hash: node.nodeHash()}, nil
}

// placeInternal finalises a rebuilt internal node, collapsing it to a leaf
// when exactly one leaf child remains so that incremental shapes match
// fresh-build shapes.
func (t *StateHashTree) placeInternal(scope, path string, node *TreeInternalNode, version uint64, stale *[]TreeNodeKey) (*TreeChild, error) {
	switch node.childCount() {
	case 0:
		return nil, nil
	case 1:
		for i, c := range node.Children {
			if c == nil || !c.IsLeaf {
				continue
			}
			childPath := path + string([]byte{byte(i)})
			childKey := TreeNodeKey{Scope: scope, Version: c.Version, Path: childPath}
			childNode, ok := t.store.GetTreeNode(childKey)
			if !ok {
				return nil, errSystem("missing tree leaf %q v%d path %x", scope, c.Version, childPath)
			}
			leaf, ok := childNode.(*TreeLeafNode)
			if !ok {
				return nil, errSystem("tree child marked leaf is internal")
			}
			*stale = append(*stale, childKey)
			lifted := &TreeLeafNode{KeyHash: leaf.KeyHash, ValueHash: leaf.ValueHash, LogicalKey: leaf.LogicalKey}
			t.store.PutTreeNode(TreeNodeKey{Scope: scope, Version: version, Path: path}, lifted)
			return &TreeChild{Version: version, Hash: lifted.nodeHash(), IsLeaf: true}, nil
		}
	}
	key := TreeNodeKey{Scope: scope, Version: version, Path: path}
	t.store.PutTreeNode(key, node)
	return &TreeChild{Version: version, Hash: node.nodeHash()}, nil
}

func liveOnly(changes []treeChange) []treeChange {
	out := changes[:0:0]
	for _, c := range changes {
		if c.valueHash != nil {
			out = append(out, c)
		}
	}
	return out
}
