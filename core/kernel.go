package core

// The call-frame kernel. It owns the transient node graph (heap), the
// journaled view of committed state (track), the substate lock table and
// the frame stack, and mediates every substate access and every nested
// invocation. System policies - authorization, costing, limits, tracing -
// are applied here at the frame boundaries so that blueprints cannot
// bypass them.

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
)

// SubstateEntry is one (key, payload) pair used at node creation.
type SubstateEntry struct {
	Key   SubstateKey
	Value []byte
}

// Event is one receipt event.
type Event struct {
	Emitter string `json:"emitter"`
	Name    string `json:"name"`
	Payload []byte `json:"payload"`
}

// AppLog is one application log line.
type AppLog struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// nodeIDAllocator hands out transaction-unique ids derived from the
// transaction hash, so allocation is deterministic across engines.
type nodeIDAllocator struct {
	txHash Hash
	next   uint32
}

func (a *nodeIDAllocator) allocate(t EntityType) NodeID {
	seed := []byte{byte(a.next), byte(a.next >> 8), byte(a.next >> 16), byte(a.next >> 24)}
	a.next++
	return NodeIDFromHash(t, HashOf(a.txHash[:], seed))
}

// Kernel executes one transaction.
type Kernel struct {
	track  *Track
	heap   *Heap
	locks  *lockTable
	frame  *CallFrame
	fees   *FeeReserve
	limits *LimitsModule
	alloc  nodeIDAllocator

	txHash      Hash
	ruidCounter uint32

	events []Event
	logs   []AppLog

	wasm *WASMHost

	trace    bool
	traceLog []string
	logger   *logrus.Entry
}

// NewKernel opens a kernel over the given store for one transaction. The
// root frame carries the transaction-processor actor.
func NewKernel(store SubstateStore, txHash Hash, fees *FeeReserve, wasm *WASMHost) *Kernel {
	rootActor := Actor{
		Package:   PackageTransaction,
		Blueprint: BlueprintTransactionRuntime,
		Function:  "run",
	}
	return &Kernel{
		track:  NewTrack(store),
		heap:   NewHeap(),
		locks:  newLockTable(),
		frame:  newRootFrame(rootActor),
		fees:   fees,
		limits: NewLimitsModule(),
		alloc:  nodeIDAllocator{txHash: txHash},
		txHash: txHash,
		wasm:   wasm,
		logger: logrus.WithField("tx", txHash.Hex()[:16]),
	}
}

// EnableTrace turns on the execution trace module.
func (k *Kernel) EnableTrace() { k.trace = true }

// TraceLog returns the ordered trace entries.
func (k *Kernel) TraceLog() []string { return k.traceLog }

func (k *Kernel) tracef(format string, args ...interface{}) {
	if !k.trace {
		return
	}
	line := fmt.Sprintf(format, args...)
	k.traceLog = append(k.traceLog, line)
	k.logger.Debug(line)
}

// TransactionHash returns the hash driving id and RUID derivation.
func (k *Kernel) TransactionHash() Hash { return k.txHash }

// Events returns the ordered event log.
func (k *Kernel) Events() []Event { return k.events }

// Logs returns the ordered application log.
func (k *Kernel) Logs() []AppLog { return k.logs }

// CurrentActor returns the running frame's actor.
func (k *Kernel) CurrentActor() Actor { return k.frame.actor }

// -----------------------------------------------------------------------------
// Node operations
// -----------------------------------------------------------------------------

// AllocateNodeID reserves a fresh id of the given entity class.
func (k *Kernel) AllocateNodeID(t EntityType) (NodeID, error) {
	if err := k.fees.ConsumeExecution(CostAllocateNodeID, 1); err != nil {
		return NodeID{}, err
	}
	id := k.alloc.allocate(t)
	k.tracef("allocate_node_id %s -> %s", t, id)
	return id, nil
}

// CreateNode materialises a node in the heap; the current frame becomes
// its transient owner. Owned children referenced by the initial substates
// move from the frame into the node.
func (k *Kernel) CreateNode(id NodeID, partitions map[PartitionNumber][]SubstateEntry) error {
	if err := k.fees.ConsumeExecution(CostCreateNode, 1); err != nil {
		return err
	}
	if err := k.limits.NotifyNodeCreated(); err != nil {
		return err
	}
	if k.heap.Contains(id) || k.track.NodeExists(id) {
		return errKernel("node %s already exists", id)
	}
	byPart := make(map[PartitionNumber]map[string][]byte, len(partitions))
	for part, entries := range partitions {
		m := make(map[string][]byte, len(entries))
		for _, e := range entries {
			if err := k.limits.NotifySubstateWrite(e.Key, len(e.Value)); err != nil {
				return err
			}
			if err := k.absorbPayloadOwns(e.Value); err != nil {
				return err
			}
			m[string(e.Key.Encoded())] = e.Value
		}
		byPart[part] = m
	}
	if err := k.heap.Create(id, byPart); err != nil {
		return err
	}
	k.frame.addOwned(id)
	k.tracef("create_node %s", id)
	return nil
}

// absorbPayloadOwns validates and re-tags every Own in a payload being
// stored: the frame must own the child, which then becomes owned by the
// stored substate (still reachable from this frame as borrowed).
func (k *Kernel) absorbPayloadOwns(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	v, err := DecodePayload(payload)
	if err != nil {
		return err
	}
	owns, refs := CollectIndexed(v)
	for _, child := range owns {
		switch k.frame.nodes[child] {
		case visOwned:
			k.frame.nodes[child] = visBorrowed
		case visBorrowed:
			// Already stored here; rewriting the same payload is fine.
		default:
			return ErrNodeNotOwned
		}
	}
	for _, ref := range refs {
		if !k.frame.sees(ref) {
			return ErrNodeNotVisible
		}
	}
	return nil
}

// DropNode removes a transient node the current frame owns and returns
// its partitions for inspection. Only transient entity classes drop.
func (k *Kernel) DropNode(id NodeID) (map[PartitionNumber]map[string][]byte, error) {
	if err := k.fees.ConsumeExecution(CostDropNode, 1); err != nil {
		return nil, err
	}
	if !k.frame.sees(id) {
		return nil, ErrNodeNotVisible
	}
	if !k.frame.owns(id) && k.frame.nodes[id] != visBorrowed {
		return nil, ErrNodeNotOwned
	}
	if !id.EntityType().IsTransient() && id.EntityType() != EntityTypeInternalProof {
		return nil, errKernel("entity %s is not droppable", id.EntityType())
	}
	parts, err := k.heap.Remove(id)
	if err != nil {
		return nil, err
	}
	k.frame.drop(id)
	k.tracef("drop_node %s", id)
	return parts, nil
}

// Globalize persists a heap node (and, recursively, the internal nodes its
// substates own) into the track under its global id.
func (k *Kernel) Globalize(id NodeID) error {
	if err := k.fees.ConsumeExecution(CostGlobalize, 1); err != nil {
		return err
	}
	if !k.frame.owns(id) {
		if !k.frame.sees(id) {
			return ErrNodeNotVisible
		}
		return ErrNodeNotOwned
	}
	if !id.EntityType().IsGlobal() {
		return errKernel("entity %s cannot be globalized", id.EntityType())
	}
	if err := k.persistNodeTree(id); err != nil {
		return err
	}
	k.frame.drop(id)
	k.tracef("globalize %s", id)
	return nil
}

func (k *Kernel) persistNodeTree(id NodeID) error {
	if id.EntityType().IsTransient() {
		return errKernel("transient node %s cannot be persisted", id)
	}
	parts, err := k.heap.Remove(id)
	if err != nil {
		return err
	}
	// Deterministic order.
	partNums := make([]int, 0, len(parts))
	for p := range parts {
		partNums = append(partNums, int(p))
	}
	sort.Ints(partNums)
	for _, pn := range partNums {
		part := PartitionNumber(pn)
		keys := make([]string, 0, len(parts[part]))
		for ks := range parts[part] {
			keys = append(keys, ks)
		}
		sort.Strings(keys)
		for _, ks := range keys {
			payload := parts[part][ks]
			key, err := DecodeSubstateKey([]byte(ks))
			if err != nil {
				return err
			}
			k.track.Write(id, part, key, payload)
			if err := k.fees.ConsumeStorage(CostWriteSubstatePerByte, uint64(len(payload))); err != nil {
				return err
			}
			// Recurse into owned children still living in the heap.
			if len(payload) == 0 {
				continue
			}
			v, err := DecodePayload(payload)
			if err != nil {
				return err
			}
			owns, _ := CollectIndexed(v)
			for _, child := range owns {
				if k.heap.Contains(child) {
					if err := k.persistNodeTree(child); err != nil {
						return err
					}
					// The frame may keep using the node it just stored.
					k.frame.nodes[child] = visBorrowed
				}
			}
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Substate operations
// -----------------------------------------------------------------------------

// OpenSubstate acquires a handle and its lock. Mutable opens take the
// exclusive lock.
func (k *Kernel) OpenSubstate(node NodeID, part PartitionNumber, key SubstateKey, flags LockFlags) (LockHandle, error) {
	if err := k.fees.ConsumeExecution(CostOpenSubstate, 1); err != nil {
		return 0, err
	}
	if !k.frame.sees(node) {
		return 0, ErrNodeNotVisible
	}
	inHeap := k.heap.Contains(node)
	if !inHeap && !node.IsGlobal() && !k.track.NodeExists(node) {
		return 0, errKernel("node %s does not exist", node)
	}
	h, err := k.locks.acquire(node, part, key, flags, k.frame.depth, inHeap)
	if err != nil {
		return 0, err
	}
	k.tracef("open_substate %s p%d %s flags=%d -> %d", node, part, key, flags, h)
	return h, nil
}

// ReadSubstate returns the substate bytes behind a handle. Owned children
// referenced by the payload become visible (borrowed) to the frame.
func (k *Kernel) ReadSubstate(h LockHandle) ([]byte, error) {
	o, err := k.locks.get(h)
	if err != nil {
		return nil, err
	}
	var payload []byte
	var ok bool
	if o.dirty {
		payload, ok = o.staged, o.staged != nil
	} else if o.inHeap {
		payload, ok = k.heap.Read(o.node, o.partition, o.key)
	} else {
		payload, ok = k.track.Read(o.node, o.partition, o.key)
	}
	if !ok {
		return nil, ErrSubstateNotFound
	}
	if err := k.fees.ConsumeExecution(CostReadSubstatePerByte, uint64(len(payload))); err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		if v, err := DecodePayload(payload); err == nil {
			owns, _ := CollectIndexed(v)
			for _, child := range owns {
				k.frame.addBorrowed(child)
			}
		}
	}
	return payload, nil
}

// WriteSubstate stages bytes behind a mutable handle; nil marks removal.
// The write reaches the heap or track when the handle closes.
func (k *Kernel) WriteSubstate(h LockHandle, payload []byte) error {
	o, err := k.locks.get(h)
	if err != nil {
		return err
	}
	if !o.flags.mutable() {
		return errKernel("write through a read-only handle %d", h)
	}
	if payload != nil {
		if err := k.limits.NotifySubstateWrite(o.key, len(payload)); err != nil {
			return err
		}
		if err := k.fees.ConsumeExecution(CostWriteSubstatePerByte, uint64(len(payload))); err != nil {
			return err
		}
		if err := k.absorbPayloadOwns(payload); err != nil {
			return err
		}
	}
	o.staged = payload
	o.dirty = true
	return nil
}

// CloseSubstate releases the lock and flushes any staged write.
func (k *Kernel) CloseSubstate(h LockHandle) error {
	if err := k.fees.ConsumeExecution(CostCloseSubstate, 1); err != nil {
		return err
	}
	o, err := k.locks.get(h)
	if err != nil {
		return err
	}
	if o.depth != k.frame.depth {
		return errKernel("handle %d belongs to another frame", h)
	}
	if _, err := k.locks.release(h); err != nil {
		return err
	}
	if o.dirty {
		if o.staged == nil {
			if o.inHeap {
				k.heap.Delete(o.node, o.partition, o.key)
			} else {
				k.track.Delete(o.node, o.partition, o.key)
			}
		} else {
			if o.inHeap {
				if err := k.heap.Write(o.node, o.partition, o.key, o.staged); err != nil {
					return err
				}
			} else {
				k.track.Write(o.node, o.partition, o.key, o.staged)
				// Owned children entering committed state follow their
				// parent out of the heap.
				if v, err := DecodePayload(o.staged); err == nil {
					owns, _ := CollectIndexed(v)
					for _, child := range owns {
						if k.heap.Contains(child) {
							if err := k.persistNodeTree(child); err != nil {
								return err
							}
							k.frame.nodes[child] = visBorrowed
						}
					}
				}
			}
		}
	}
	k.tracef("close_substate %d dirty=%v", h, o.dirty)
	return nil
}

// Convenience wrappers used by the native blueprints. They keep the full
// open/read/close discipline so locking and metering stay uniform.

func (k *Kernel) substateRead(node NodeID, part PartitionNumber, key SubstateKey) ([]byte, error) {
	h, err := k.OpenSubstate(node, part, key, 0)
	if err != nil {
		return nil, err
	}
	payload, err := k.ReadSubstate(h)
	if cerr := k.CloseSubstate(h); err == nil {
		err = cerr
	}
	return payload, err
}

func (k *Kernel) substateWrite(node NodeID, part PartitionNumber, key SubstateKey, payload []byte) error {
	h, err := k.OpenSubstate(node, part, key, LockMutable)
	if err != nil {
		return err
	}
	if err := k.WriteSubstate(h, payload); err != nil {
		_ = k.CloseSubstate(h)
		return err
	}
	return k.CloseSubstate(h)
}

// substateWriteDelete tombstones a substate under the exclusive lock.
func (k *Kernel) substateWriteDelete(node NodeID, part PartitionNumber, key SubstateKey) error {
	h, err := k.OpenSubstate(node, part, key, LockMutable)
	if err != nil {
		return err
	}
	if err := k.WriteSubstate(h, nil); err != nil {
		_ = k.CloseSubstate(h)
		return err
	}
	return k.CloseSubstate(h)
}

// substateUpdate applies fn under the exclusive lock. fn receives nil when
// the substate does not exist yet; returning nil deletes it.
func (k *Kernel) substateUpdate(node NodeID, part PartitionNumber, key SubstateKey, fn func([]byte) ([]byte, error)) error {
	h, err := k.OpenSubstate(node, part, key, LockMutable)
	if err != nil {
		return err
	}
	current, err := k.ReadSubstate(h)
	if err == ErrSubstateNotFound {
		current = nil
	} else if err != nil {
		_ = k.CloseSubstate(h)
		return err
	}
	next, err := fn(current)
	if err != nil {
		_ = k.CloseSubstate(h)
		return err
	}
	if err := k.WriteSubstate(h, next); err != nil {
		_ = k.CloseSubstate(h)
		return err
	}
	return k.CloseSubstate(h)
}

// readTypeInfo resolves a node's blueprint binding.
func (k *Kernel) readTypeInfo(id NodeID) (TypeInfoSubstate, error) {
	var payload []byte
	var ok bool
	if k.heap.Contains(id) {
		payload, ok = k.heap.Read(id, PartitionTypeInfo, FieldKey(0))
	} else {
		payload, ok = k.track.Read(id, PartitionTypeInfo, FieldKey(0))
	}
	if !ok {
		return TypeInfoSubstate{}, errKernel("node %s has no type info", id)
	}
	return decodeTypeInfo(payload)
}

// -----------------------------------------------------------------------------
// Events, logs, runtime
// -----------------------------------------------------------------------------

// EmitEvent appends to the receipt's event log under the caller's actor.
func (k *Kernel) EmitEvent(name string, payload Value) error {
	encoded, err := EncodePayload(payload)
	if err != nil {
		return err
	}
	if err := k.limits.NotifyEvent(len(encoded)); err != nil {
		return err
	}
	if err := k.fees.ConsumeExecution(CostEmitEventPerByte, uint64(len(encoded))); err != nil {
		return err
	}
	k.events = append(k.events, Event{Emitter: k.frame.actor.String(), Name: name, Payload: encoded})
	return nil
}

// EmitLog appends an application log line.
func (k *Kernel) EmitLog(level, message string) error {
	if err := k.limits.NotifyLog(len(message)); err != nil {
		return err
	}
	if err := k.fees.ConsumeExecution(CostEmitLogPerByte, uint64(len(message))); err != nil {
		return err
	}
	k.logs = append(k.logs, AppLog{Level: level, Message: message})
	return nil
}

// GenerateRUID returns hash(tx_hash || counter): unique within the
// transaction, deterministic across engines.
func (k *Kernel) GenerateRUID() ([32]byte, error) {
	if err := k.fees.ConsumeExecution(CostGenerateRUID, 1); err != nil {
		return [32]byte{}, err
	}
	seed := []byte{byte(k.ruidCounter), byte(k.ruidCounter >> 8), byte(k.ruidCounter >> 16), byte(k.ruidCounter >> 24)}
	k.ruidCounter++
	return HashOf(k.txHash[:], seed), nil
}

// ConsumeCostUnits lets blueprints charge explicit fuel.
func (k *Kernel) ConsumeCostUnits(kind CostKind, n uint64) error {
	return k.fees.ConsumeExecution(kind, n)
}

// -----------------------------------------------------------------------------
// Invocation
// -----------------------------------------------------------------------------

// CallFunction resolves and invokes a blueprint function.
func (k *Kernel) CallFunction(pkg NodeID, blueprint, fn string, args Value) (Value, error) {
	actor := Actor{Package: pkg, Blueprint: blueprint, Function: fn}
	return k.invoke(actor, args)
}

// CallMethod resolves the receiver's blueprint and invokes a method on it.
func (k *Kernel) CallMethod(receiver NodeID, fn string, args Value) (Value, error) {
	if !k.frame.sees(receiver) {
		if receiver.EntityType().IsVirtualizable() {
			if err := k.virtualize(receiver); err != nil {
				return Value{}, err
			}
		} else {
			return Value{}, ErrNodeNotVisible
		}
	} else if receiver.IsGlobal() && !k.track.NodeExists(receiver) && !k.heap.Contains(receiver) {
		if !receiver.EntityType().IsVirtualizable() {
			return Value{}, errKernel("global node %s does not exist", receiver)
		}
		if err := k.virtualize(receiver); err != nil {
			return Value{}, err
		}
	}
	info, err := k.readTypeInfo(receiver)
	if err != nil {
		return Value{}, err
	}
	actor := Actor{
		Package:   info.Package,
		Blueprint: info.Blueprint,
		Function:  fn,
		Receiver:  receiver,
	}
	if receiver.IsGlobal() {
		actor.Global = receiver
	}
	return k.invoke(actor, args)
}

// CallDirectVaultMethod is the privileged recall path: it grants the frame
// direct access to an internal vault without ownership-based visibility.
func (k *Kernel) CallDirectVaultMethod(vault NodeID, fn string, args Value) (Value, error) {
	if !vault.EntityType().IsVault() {
		return Value{}, errKernel("direct access is restricted to vaults, got %s", vault.EntityType())
	}
	k.frame.addDirect(vault)
	info, err := k.readTypeInfo(vault)
	if err != nil {
		return Value{}, err
	}
	actor := Actor{
		Package:   info.Package,
		Blueprint: info.Blueprint,
		Function:  fn,
		Receiver:  vault,
		IsDirect:  true,
	}
	return k.invoke(actor, args)
}

func (k *Kernel) invoke(actor Actor, args Value) (Value, error) {
	if err := k.fees.ConsumeExecution(CostInvoke, 1); err != nil {
		return Value{}, err
	}
	if err := k.limits.NotifyCallDepth(k.frame.depth + 1); err != nil {
		return Value{}, err
	}

	// Authorization happens against the caller's auth-zone stack, before
	// any state of the callee is touched.
	rule, err := k.resolveMethodRule(actor)
	if err != nil {
		return Value{}, err
	}
	if err := k.checkAuth(actor, rule); err != nil {
		return Value{}, err
	}
	if err := applyMethodRoyalty(k, actor.Receiver, actor.Function); err != nil {
		return Value{}, err
	}

	child := k.frame.child(actor)
	if !actor.Receiver.IsZero() && !actor.Receiver.IsGlobal() {
		child.addBorrowed(actor.Receiver)
	}
	if actor.IsDirect {
		child.addDirect(actor.Receiver)
	}

	// Move owns, copy references.
	owns, refs := CollectIndexed(args)
	for _, id := range owns {
		if err := k.frame.moveOut(id); err != nil {
			return Value{}, err
		}
		child.addOwned(id)
	}
	for _, id := range refs {
		if !k.frame.sees(id) {
			return Value{}, ErrNodeNotVisible
		}
		if id.IsGlobal() {
			child.addGlobalRef(id)
		} else {
			child.addBorrowed(id)
		}
	}

	parent := k.frame
	k.frame = child
	k.tracef("push_frame %s depth=%d", actor, child.depth)

	if err := k.createFrameAuthZone(child, actor.IsGlobalFrame()); err != nil {
		k.frame = parent
		return Value{}, err
	}

	result, err := k.dispatch(actor, args)
	if err != nil {
		k.unwindFrame(child)
		k.frame = parent
		return Value{}, err
	}

	// Return moves are symmetric to argument moves.
	retOwns, retRefs := CollectIndexed(result)
	for _, id := range retOwns {
		if err := child.moveOut(id); err != nil {
			k.unwindFrame(child)
			k.frame = parent
			return Value{}, err
		}
	}
	for _, id := range retRefs {
		if !child.sees(id) {
			k.unwindFrame(child)
			k.frame = parent
			return Value{}, ErrNodeNotVisible
		}
	}

	if err := k.dropFrameAuthZone(child); err != nil {
		k.frame = parent
		return Value{}, err
	}

	// A frame may not pop while holding locks or leaking transients.
	if held := k.locks.openAtDepth(child.depth); len(held) > 0 {
		k.frame = parent
		return Value{}, errKernel("frame %s popped holding %d substate locks", actor, len(held))
	}
	if leaked := child.ownedNodes(); len(leaked) > 0 {
		k.frame = parent
		return Value{}, errKernel("frame %s leaked %d transient nodes (first: %s)", actor, len(leaked), leaked[0])
	}

	k.frame = parent
	k.tracef("pop_frame %s", actor)

	for _, id := range retOwns {
		k.frame.addOwned(id)
	}
	for _, id := range retRefs {
		if id.IsGlobal() {
			k.frame.addGlobalRef(id)
		} else {
			k.frame.addBorrowed(id)
		}
	}
	return result, nil
}

// unwindFrame releases a failing frame's locks. Heap leftovers stay for
// the transaction-level discard: a failed transaction never commits.
func (k *Kernel) unwindFrame(f *CallFrame) {
	for _, h := range k.locks.openAtDepth(f.depth) {
		_, _ = k.locks.release(h)
	}
}

func (k *Kernel) dispatch(actor Actor, args Value) (Value, error) {
	if fn := lookupNative(actor.Package, actor.Blueprint, actor.Function); fn != nil {
		return fn(k, actor.Receiver, args)
	}
	if k.wasm != nil {
		return k.wasm.Invoke(k, actor, args)
	}
	return Value{}, errKernel("no executor for %s::%s", actor.Blueprint, actor.Function)
}

// virtualize instantiates a virtual global node on first touch.
func (k *Kernel) virtualize(id NodeID) error {
	if fn := lookupVirtualizer(id.EntityType()); fn != nil {
		k.tracef("virtualize %s", id)
		return fn(k, id)
	}
	return errKernel("entity %s is not virtualizable", id.EntityType())
}

// -----------------------------------------------------------------------------
// Auth module
// -----------------------------------------------------------------------------

// createFrameAuthZone gives the new frame an empty zone.
func (k *Kernel) createFrameAuthZone(f *CallFrame, barrier bool) error {
	id, err := k.AllocateNodeID(EntityTypeInternalAuthZone)
	if err != nil {
		return err
	}
	zone := AuthZoneSubstate{Barrier: barrier}
	err = k.CreateNode(id, map[PartitionNumber][]SubstateEntry{
		PartitionTypeInfo: {{Key: FieldKey(0), Value: TypeInfoSubstate{
			Package: PackageResource, Blueprint: BlueprintAuthZone,
		}.encode()}},
		PartitionMain: {{Key: FieldKey(0), Value: zone.encode()}},
	})
	if err != nil {
		return err
	}
	f.authZone = id
	return nil
}

// SeedRootAuthZone installs the signer badges for the transaction and
// marks the root zone. Called once by the processor before the first
// instruction.
func (k *Kernel) SeedRootAuthZone(badges []NonFungibleGlobalID) error {
	if !k.frame.authZone.IsZero() {
		return errKernel("root auth zone already seeded")
	}
	if err := k.createFrameAuthZone(k.frame, false); err != nil {
		return err
	}
	return k.updateAuthZone(k.frame.authZone, func(z *AuthZoneSubstate) error {
		z.VirtualBadges = append(z.VirtualBadges, badges...)
		return nil
	})
}

// RootAuthZone exposes the processor's zone node id.
func (k *Kernel) RootAuthZone() NodeID { return k.frame.authZone }

func (k *Kernel) readAuthZone(id NodeID) (AuthZoneSubstate, error) {
	payload, ok := k.heap.Read(id, PartitionMain, FieldKey(0))
	if !ok {
		return AuthZoneSubstate{}, errKernel("auth zone %s missing", id)
	}
	return decodeAuthZone(payload)
}

func (k *Kernel) updateAuthZone(id NodeID, fn func(*AuthZoneSubstate) error) error {
	zone, err := k.readAuthZone(id)
	if err != nil {
		return err
	}
	if err := fn(&zone); err != nil {
		return err
	}
	return k.heap.Write(id, PartitionMain, FieldKey(0), zone.encode())
}

// dropFrameAuthZone drops the zone and every proof it still holds.
func (k *Kernel) dropFrameAuthZone(f *CallFrame) error {
	if f.authZone.IsZero() {
		return nil
	}
	zone, err := k.readAuthZone(f.authZone)
	if err != nil {
		return err
	}
	for _, proof := range zone.Proofs {
		if k.heap.Contains(proof) {
			if _, err := k.heap.Remove(proof); err != nil {
				return err
			}
			f.drop(proof)
		}
	}
	if _, err := k.heap.Remove(f.authZone); err != nil {
		return err
	}
	f.drop(f.authZone)
	f.authZone = NodeID{}
	return nil
}

// gatherEvidence flattens the zone stack visible from the current frame:
// outward from the caller, stopping once the first barrier zone has been
// included.
func (k *Kernel) gatherEvidence() (*AuthEvidence, error) {
	ev := &AuthEvidence{}
	for f := k.frame; f != nil; f = f.parent {
		if f.authZone.IsZero() {
			continue
		}
		zone, err := k.readAuthZone(f.authZone)
		if err != nil {
			return nil, err
		}
		for _, proofID := range zone.Proofs {
			payload, ok := k.heap.Read(proofID, PartitionMain, FieldKey(0))
			if !ok {
				continue
			}
			proof, err := decodeProof(payload)
			if err != nil {
				return nil, err
			}
			ev.Proofs = append(ev.Proofs, proof.snapshot())
		}
		ev.Badges = append(ev.Badges, zone.VirtualBadges...)
		if zone.Barrier {
			break
		}
	}
	return ev, nil
}

func (k *Kernel) checkAuth(actor Actor, rule AccessRule) error {
	if rule.Kind == AccessRuleAllowAll {
		return nil
	}
	if err := k.fees.ConsumeExecution(CostAuthCheck, 1); err != nil {
		return err
	}
	ev, err := k.gatherEvidence()
	if err != nil {
		return err
	}
	if !rule.Evaluate(ev) {
		return errAuth("%s::%s denied by %s (auth zone held %d proofs, %d badges)",
			actor.Blueprint, actor.Function, rule, len(ev.Proofs), len(ev.Badges))
	}
	return nil
}

// resolveMethodRule maps an invocation to its access rule: the static
// method-auth table resolved against the authority node's role partition.
func (k *Kernel) resolveMethodRule(actor Actor) (AccessRule, error) {
	// User blueprints declare function auth in their package definition.
	if _, native := nativeFunctions[actor.Package]; !native {
		if _, module := moduleAuthTable[actor.Function]; !module {
			def, err := readBlueprintDefinition(k, actor.Package, actor.Blueprint)
			if err != nil {
				return AccessRule{}, err
			}
			if rule, ok := def.FunctionAuth[actor.Function]; ok {
				return rule, nil
			}
			return AllowAll(), nil
		}
	}
	auth := lookupMethodAuth(actor.Blueprint, actor.Function)
	switch auth.kind {
	case methodAuthPublic:
		return AllowAll(), nil
	case methodAuthOwner:
		node, err := k.authorityNode(actor)
		if err != nil {
			return AccessRule{}, err
		}
		return k.readOwnerRule(node)
	case methodAuthRole:
		node, err := k.authorityNode(actor)
		if err != nil {
			return AccessRule{}, err
		}
		return k.readRoleRule(node, auth.role)
	default:
		return AllowAll(), nil
	}
}

// authorityNode finds the node whose role partition governs the call: the
// global receiver itself, or the outer object for internal containers.
func (k *Kernel) authorityNode(actor Actor) (NodeID, error) {
	if actor.Receiver.IsZero() {
		return NodeID{}, errAuth("function %s::%s has no authority node", actor.Blueprint, actor.Function)
	}
	if actor.Receiver.IsGlobal() {
		return actor.Receiver, nil
	}
	info, err := k.readTypeInfo(actor.Receiver)
	if err != nil {
		return NodeID{}, err
	}
	if info.Outer.IsZero() {
		return NodeID{}, errAuth("internal node %s has no authority ancestor", actor.Receiver)
	}
	return info.Outer, nil
}

func (k *Kernel) readOwnerRule(node NodeID) (AccessRule, error) {
	payload, ok := k.readRolePartition(node, ownerRuleKey())
	if !ok {
		return DenyAll(), nil
	}
	return decodeAccessRule(payload)
}

func (k *Kernel) readRoleRule(node NodeID, role string) (AccessRule, error) {
	payload, ok := k.readRolePartition(node, roleAssignmentKey(role))
	if !ok {
		// Unassigned roles fall back to the owner rule.
		return k.readOwnerRule(node)
	}
	return decodeAccessRule(payload)
}

func (k *Kernel) readRolePartition(node NodeID, key SubstateKey) ([]byte, bool) {
	if k.heap.Contains(node) {
		return k.heap.Read(node, PartitionRoleAssignment, key)
	}
	return k.track.Read(node, PartitionRoleAssignment, key)
}

// -----------------------------------------------------------------------------
// End-of-transaction accounting
// -----------------------------------------------------------------------------

// AssertFrameClean fails if the current (root) frame still owns transients
// or holds locks; the processor calls it after end-of-manifest cleanup.
func (k *Kernel) AssertFrameClean() error {
	if held := k.locks.openAtDepth(k.frame.depth); len(held) > 0 {
		return errKernel("transaction end with %d open substate locks", len(held))
	}
	if leaked := k.frame.ownedNodes(); len(leaked) > 0 {
		first := leaked[0]
		if first.EntityType() == EntityTypeInternalBucket {
			return errResource("dangling bucket %s at end of transaction", first)
		}
		return errKernel("transaction end with %d live transient nodes (first: %s)", len(leaked), first)
	}
	if k.heap.Len() > 0 {
		ids := k.heap.IDs()
		sort.Slice(ids, func(i, j int) bool { return string(ids[i][:]) < string(ids[j][:]) })
		return errKernel("transaction end with %d unreachable heap nodes (first: %s)", len(ids), ids[0])
	}
	return nil
}

// TakeUpdates exposes the track journal for commit.
func (k *Kernel) TakeUpdates() ([]SubstateUpdate, []StateUpdate) {
	return k.track.TakeUpdates()
}
