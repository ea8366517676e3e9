package core

// Worktop blueprint: the transaction-scoped implicit collection of
// unclaimed buckets, keyed by resource address. The processor owns exactly
// one worktop node; instructions put into it, take from it, and assert
// over it. It must be empty when the manifest ends.

import "sort"

// WorktopSubstate is the single field substate of the worktop node.
type WorktopSubstate struct {
	Buckets map[NodeID]NodeID // resource -> owned bucket
}

func (s WorktopSubstate) toValue() Value {
	entries := make([]MapEntry, 0, len(s.Buckets))
	for resource, bucket := range s.Buckets {
		entries = append(entries, MapEntry{Key: VAddress(resource), Value: VOwn(bucket)})
	}
	return VMap(ValueKindAddress, ValueKindOwn, entries...)
}

func worktopFromValue(v Value) (WorktopSubstate, error) {
	if v.Kind != ValueKindMap {
		return WorktopSubstate{}, errDecode("worktop substate must be a map")
	}
	out := WorktopSubstate{Buckets: make(map[NodeID]NodeID, len(v.Entries))}
	for _, e := range v.Entries {
		resource, err := e.Key.AsAddress()
		if err != nil {
			return WorktopSubstate{}, err
		}
		bucket, err := e.Value.AsOwn()
		if err != nil {
			return WorktopSubstate{}, err
		}
		out.Buckets[resource] = bucket
	}
	return out, nil
}

func (s WorktopSubstate) encode() []byte { return MustEncodePayload(s.toValue()) }

func init() {
	registerNative(PackageResource, BlueprintWorktop, "put", worktopPut)
	registerNative(PackageResource, BlueprintWorktop, "take", worktopTake)
	registerNative(PackageResource, BlueprintWorktop, "take_all", worktopTakeAll)
	registerNative(PackageResource, BlueprintWorktop, "take_non_fungibles", worktopTakeNonFungibles)
	registerNative(PackageResource, BlueprintWorktop, "assert_contains", worktopAssertContains)
	registerNative(PackageResource, BlueprintWorktop, "assert_contains_amount", worktopAssertContainsAmount)
	registerNative(PackageResource, BlueprintWorktop, "assert_contains_non_fungibles", worktopAssertContainsNonFungibles)
	registerNative(PackageResource, BlueprintWorktop, "drain", worktopDrain)
}

// NewWorktopNode creates the processor's worktop.
func NewWorktopNode(k *Kernel) (NodeID, error) {
	id, err := k.AllocateNodeID(EntityTypeInternalWorktop)
	if err != nil {
		return NodeID{}, err
	}
	err = k.CreateNode(id, map[PartitionNumber][]SubstateEntry{
		PartitionTypeInfo: {{Key: FieldKey(0), Value: TypeInfoSubstate{
			Package: PackageResource, Blueprint: BlueprintWorktop,
		}.encode()}},
		PartitionMain: {{Key: FieldKey(0), Value: WorktopSubstate{Buckets: map[NodeID]NodeID{}}.encode()}},
	})
	if err != nil {
		return NodeID{}, err
	}
	return id, nil
}

func readWorktop(k *Kernel, worktop NodeID) (WorktopSubstate, error) {
	payload, err := k.substateRead(worktop, PartitionMain, FieldKey(0))
	if err != nil {
		return WorktopSubstate{}, err
	}
	v, err := DecodePayload(payload)
	if err != nil {
		return WorktopSubstate{}, err
	}
	return worktopFromValue(v)
}

func writeWorktop(k *Kernel, worktop NodeID, s WorktopSubstate) error {
	return k.substateWrite(worktop, PartitionMain, FieldKey(0), s.encode())
}

// worktopPut: (bucket) -> (). Buckets of an already-present resource merge
// into the resident bucket.
func worktopPut(k *Kernel, receiver NodeID, input Value) (Value, error) {
	fields, err := input.AsTuple()
	if err != nil || len(fields) != 1 {
		return Value{}, errDecode("put expects (bucket)")
	}
	incoming, err := fields[0].AsOwn()
	if err != nil {
		return Value{}, err
	}
	resource, err := containerResource(k, incoming)
	if err != nil {
		return Value{}, err
	}
	state, err := readWorktop(k, receiver)
	if err != nil {
		return Value{}, err
	}
	if resident, ok := state.Buckets[resource]; ok {
		if err := mergeContainers(k, resident, incoming); err != nil {
			return Value{}, err
		}
		return VTuple(), nil
	}
	state.Buckets[resource] = incoming
	if err := writeWorktop(k, receiver, state); err != nil {
		return Value{}, err
	}
	return VTuple(), nil
}

// worktopResident returns the resident bucket for a resource, if any.
func worktopResident(k *Kernel, worktop, resource NodeID) (NodeID, bool, error) {
	state, err := readWorktop(k, worktop)
	if err != nil {
		return NodeID{}, false, err
	}
	bucket, ok := state.Buckets[resource]
	return bucket, ok, nil
}

// worktopTake: (resource, amount) -> bucket.
func worktopTake(k *Kernel, receiver NodeID, input Value) (Value, error) {
	fields, err := input.AsTuple()
	if err != nil || len(fields) != 2 {
		return Value{}, errDecode("take expects (resource, amount)")
	}
	resource, err := fields[0].AsAddress()
	if err != nil {
		return Value{}, err
	}
	amount, err := fields[1].AsDecimal()
	if err != nil {
		return Value{}, err
	}
	resident, ok, err := worktopResident(k, receiver, resource)
	if err != nil {
		return Value{}, err
	}
	if !ok {
		return Value{}, errResource("worktop holds no %s", resource)
	}
	return k.CallMethod(resident, "take", VTuple(VDecimal(amount)))
}

// worktopTakeAll: (resource) -> bucket. The resident bucket itself moves
// out; an empty bucket is created when the worktop holds none.
func worktopTakeAll(k *Kernel, receiver NodeID, input Value) (Value, error) {
	fields, err := input.AsTuple()
	if err != nil || len(fields) != 1 {
		return Value{}, errDecode("take_all expects (resource)")
	}
	resource, err := fields[0].AsAddress()
	if err != nil {
		return Value{}, err
	}
	state, err := readWorktop(k, receiver)
	if err != nil {
		return Value{}, err
	}
	if resident, ok := state.Buckets[resource]; ok {
		delete(state.Buckets, resource)
		if err := writeWorktop(k, receiver, state); err != nil {
			return Value{}, err
		}
		// The bucket was owned by the worktop substate; re-root it in this
		// frame so it can move out with the return value.
		k.frame.addOwned(resident)
		return VOwn(resident), nil
	}
	return k.CallMethod(resource, "create_empty_bucket", VTuple())
}

// worktopTakeNonFungibles: (resource, ids) -> bucket.
func worktopTakeNonFungibles(k *Kernel, receiver NodeID, input Value) (Value, error) {
	fields, err := input.AsTuple()
	if err != nil || len(fields) != 2 {
		return Value{}, errDecode("take_non_fungibles expects (resource, ids)")
	}
	resource, err := fields[0].AsAddress()
	if err != nil {
		return Value{}, err
	}
	resident, ok, err := worktopResident(k, receiver, resource)
	if err != nil {
		return Value{}, err
	}
	if !ok {
		return Value{}, errResource("worktop holds no %s", resource)
	}
	return k.CallMethod(resident, "take_non_fungibles", VTuple(fields[1]))
}

// worktopAssertContains: (resource) -> ().
func worktopAssertContains(k *Kernel, receiver NodeID, input Value) (Value, error) {
	fields, err := input.AsTuple()
	if err != nil || len(fields) != 1 {
		return Value{}, errDecode("assert_contains expects (resource)")
	}
	resource, err := fields[0].AsAddress()
	if err != nil {
		return Value{}, err
	}
	amount, err := worktopAmountOf(k, receiver, resource)
	if err != nil {
		return Value{}, err
	}
	if !amount.IsPositive() {
		return Value{}, errResource("worktop assertion failed: no %s present", resource)
	}
	return VTuple(), nil
}

// worktopAssertContainsAmount: (resource, amount) -> ().
func worktopAssertContainsAmount(k *Kernel, receiver NodeID, input Value) (Value, error) {
	fields, err := input.AsTuple()
	if err != nil || len(fields) != 2 {
		return Value{}, errDecode("assert_contains_amount expects (resource, amount)")
	}
	resource, err := fields[0].AsAddress()
	if err != nil {
		return Value{}, err
	}
	want, err := fields[1].AsDecimal()
	if err != nil {
		return Value{}, err
	}
	have, err := worktopAmountOf(k, receiver, resource)
	if err != nil {
		return Value{}, err
	}
	if have.LT(want) {
		return Value{}, errResource("worktop assertion failed: have %s of %s, need %s", have, resource, want)
	}
	return VTuple(), nil
}

// worktopAssertContainsNonFungibles: (resource, ids) -> ().
func worktopAssertContainsNonFungibles(k *Kernel, receiver NodeID, input Value) (Value, error) {
	fields, err := input.AsTuple()
	if err != nil || len(fields) != 2 {
		return Value{}, errDecode("assert_contains_non_fungibles expects (resource, ids)")
	}
	resource, err := fields[0].AsAddress()
	if err != nil {
		return Value{}, err
	}
	ids, err := idSetArg(VTuple(fields[1]))
	if err != nil {
		return Value{}, err
	}
	resident, ok, err := worktopResident(k, receiver, resource)
	if err != nil {
		return Value{}, err
	}
	if !ok {
		return Value{}, errResource("worktop assertion failed: no %s present", resource)
	}
	held, err := readNonFungibleBalance(k, resident)
	if err != nil {
		return Value{}, err
	}
	if !held.IDs.ContainsAll(ids) {
		return Value{}, errResource("worktop assertion failed: missing ids of %s", resource)
	}
	return VTuple(), nil
}

func worktopAmountOf(k *Kernel, worktop, resource NodeID) (Decimal, error) {
	resident, ok, err := worktopResident(k, worktop, resource)
	if err != nil {
		return Decimal{}, err
	}
	if !ok {
		return ZeroDecimal(), nil
	}
	v, err := k.CallMethod(resident, "get_amount", VTuple())
	if err != nil {
		return Decimal{}, err
	}
	return v.AsDecimal()
}

// worktopDrain: () -> array of buckets, emptying the worktop.
func worktopDrain(k *Kernel, receiver NodeID, _ Value) (Value, error) {
	state, err := readWorktop(k, receiver)
	if err != nil {
		return Value{}, err
	}
	// Deterministic order by resource id.
	resources := make([]NodeID, 0, len(state.Buckets))
	for r := range state.Buckets {
		resources = append(resources, r)
	}
	sortNodeIDs(resources)
	out := make([]Value, 0, len(resources))
	for _, r := range resources {
		bucket := state.Buckets[r]
		k.frame.addOwned(bucket)
		out = append(out, VOwn(bucket))
	}
	state.Buckets = map[NodeID]NodeID{}
	if err := writeWorktop(k, receiver, state); err != nil {
		return Value{}, err
	}
	return VArray(ValueKindOwn, out...), nil
}

func sortNodeIDs(ids []NodeID) {
	sort.Slice(ids, func(i, j int) bool { return string(ids[i][:]) < string(ids[j][:]) })
}
