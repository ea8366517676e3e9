package core

// Heap: the arena of transient nodes owned by the running transaction.
// Nodes live here from creation until they are globalized into the track
// or dropped; the committed store never sees them.

type heapNode struct {
	partitions map[PartitionNumber]map[string][]byte // encoded key -> payload
}

// Heap indexes transient nodes by id.
type Heap struct {
	nodes map[NodeID]*heapNode
}

func NewHeap() *Heap {
	return &Heap{nodes: make(map[NodeID]*heapNode)}
}

func (h *Heap) Contains(id NodeID) bool {
	_, ok := h.nodes[id]
	return ok
}

// Create materialises a node with the given partition contents.
func (h *Heap) Create(id NodeID, partitions map[PartitionNumber]map[string][]byte) error {
	if _, exists := h.nodes[id]; exists {
		return errKernel("node %s already exists in heap", id)
	}
	node := &heapNode{partitions: make(map[PartitionNumber]map[string][]byte, len(partitions))}
	for part, substates := range partitions {
		cp := make(map[string][]byte, len(substates))
		for k, v := range substates {
			cp[k] = v
		}
		node.partitions[part] = cp
	}
	h.nodes[id] = node
	return nil
}

// Read returns a substate payload, or false when absent.
func (h *Heap) Read(id NodeID, part PartitionNumber, key SubstateKey) ([]byte, bool) {
	node, ok := h.nodes[id]
	if !ok {
		return nil, false
	}
	v, ok := node.partitions[part][string(key.Encoded())]
	return v, ok
}

// Write sets a substate payload, creating the partition on demand.
func (h *Heap) Write(id NodeID, part PartitionNumber, key SubstateKey, value []byte) error {
	node, ok := h.nodes[id]
	if !ok {
		return errKernel("node %s not in heap", id)
	}
	if node.partitions[part] == nil {
		node.partitions[part] = make(map[string][]byte)
	}
	node.partitions[part][string(key.Encoded())] = value
	return nil
}

// Delete removes a substate payload.
func (h *Heap) Delete(id NodeID, part PartitionNumber, key SubstateKey) {
	if node, ok := h.nodes[id]; ok {
		delete(node.partitions[part], string(key.Encoded()))
	}
}

// Remove detaches the node, returning its partitions (for globalization or
// drop inspection).
func (h *Heap) Remove(id NodeID) (map[PartitionNumber]map[string][]byte, error) {
	node, ok := h.nodes[id]
	if !ok {
		return nil, errKernel("node %s not in heap", id)
	}
	delete(h.nodes, id)
	return node.partitions, nil
}

// Len reports the live transient node count.
func (h *Heap) Len() int { return len(h.nodes) }

// IDs returns all resident node ids (order unspecified; callers sort).
func (h *Heap) IDs() []NodeID {
	out := make([]NodeID, 0, len(h.nodes))
	for id := range h.nodes {
		out = append(out, id)
	}
	return out
}
