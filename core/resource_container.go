package core

// Shared plumbing for the resource container blueprints: balance substate
// codecs and the node constructors for buckets, vaults and proofs. The
// per-blueprint files build their operations on top of these.

// Fungible balance payloads are a bare Decimal value; non-fungible
// balances an array of local ids.

func encodeFungibleBalance(l LiquidFungible) []byte {
	return MustEncodePayload(VDecimal(l.Amount))
}

func decodeFungibleBalance(b []byte) (LiquidFungible, error) {
	v, err := DecodePayload(b)
	if err != nil {
		return LiquidFungible{}, err
	}
	amount, err := v.AsDecimal()
	if err != nil {
		return LiquidFungible{}, err
	}
	return LiquidFungible{Amount: amount}, nil
}

func encodeNonFungibleBalance(l LiquidNonFungible) []byte {
	ids := make([]Value, 0, l.IDs.Len())
	for _, id := range l.IDs.IDs() {
		ids = append(ids, VNFID(id))
	}
	return MustEncodePayload(VArray(ValueKindNonFungibleLocalID, ids...))
}

func decodeNonFungibleBalance(b []byte) (LiquidNonFungible, error) {
	v, err := DecodePayload(b)
	if err != nil {
		return LiquidNonFungible{}, err
	}
	if v.Kind != ValueKindArray || v.ElementKind != ValueKindNonFungibleLocalID {
		return LiquidNonFungible{}, errDecode("non-fungible balance must be Array<NonFungibleLocalId>")
	}
	var out LiquidNonFungible
	for _, e := range v.Elements {
		out.IDs.Insert(e.NFIDV)
	}
	return out, nil
}

// Vault freeze flags (field 1 of a vault's main partition).
type vaultFreezeFlags uint8

const (
	freezeWithdraw vaultFreezeFlags = 1 << iota
	freezeDeposit
)

func encodeFreezeFlags(f vaultFreezeFlags) []byte {
	return MustEncodePayload(VU8(uint8(f)))
}

func decodeFreezeFlags(b []byte) (vaultFreezeFlags, error) {
	v, err := DecodePayload(b)
	if err != nil {
		return 0, err
	}
	u, err := v.AsU8()
	if err != nil {
		return 0, err
	}
	return vaultFreezeFlags(u), nil
}

// containerResource resolves the resource address of a bucket, vault or
// proof from its type info.
func containerResource(k *Kernel, id NodeID) (NodeID, error) {
	info, err := k.readTypeInfo(id)
	if err != nil {
		return NodeID{}, err
	}
	if info.Outer.IsZero() {
		return NodeID{}, errResource("node %s is not a resource container", id)
	}
	return info.Outer, nil
}

// newFungibleBucketNode creates a bucket holding the given liquid and
// roots it in the current frame.
func newFungibleBucketNode(k *Kernel, resource NodeID, l LiquidFungible) (NodeID, error) {
	id, err := k.AllocateNodeID(EntityTypeInternalBucket)
	if err != nil {
		return NodeID{}, err
	}
	err = k.CreateNode(id, map[PartitionNumber][]SubstateEntry{
		PartitionTypeInfo: {{Key: FieldKey(0), Value: TypeInfoSubstate{
			Package: PackageResource, Blueprint: BlueprintFungibleBucket, Outer: resource,
		}.encode()}},
		PartitionMain: {{Key: FieldKey(0), Value: encodeFungibleBalance(l)}},
	})
	if err != nil {
		return NodeID{}, err
	}
	return id, nil
}

func newNonFungibleBucketNode(k *Kernel, resource NodeID, l LiquidNonFungible) (NodeID, error) {
	id, err := k.AllocateNodeID(EntityTypeInternalBucket)
	if err != nil {
		return NodeID{}, err
	}
	err = k.CreateNode(id, map[PartitionNumber][]SubstateEntry{
		PartitionTypeInfo: {{Key: FieldKey(0), Value: TypeInfoSubstate{
			Package: PackageResource, Blueprint: BlueprintNonFungibleBucket, Outer: resource,
		}.encode()}},
		PartitionMain: {{Key: FieldKey(0), Value: encodeNonFungibleBalance(l)}},
	})
	if err != nil {
		return NodeID{}, err
	}
	return id, nil
}

// newVaultNode creates an empty vault of the given flavour.
func newVaultNode(k *Kernel, resource NodeID, fungible bool) (NodeID, error) {
	entity := EntityTypeInternalFungibleVault
	blueprint := BlueprintFungibleVault
	balance := encodeFungibleBalance(LiquidFungible{})
	if !fungible {
		entity = EntityTypeInternalNonFungibleVault
		blueprint = BlueprintNonFungibleVault
		balance = encodeNonFungibleBalance(LiquidNonFungible{})
	}
	id, err := k.AllocateNodeID(entity)
	if err != nil {
		return NodeID{}, err
	}
	err = k.CreateNode(id, map[PartitionNumber][]SubstateEntry{
		PartitionTypeInfo: {{Key: FieldKey(0), Value: TypeInfoSubstate{
			Package: PackageResource, Blueprint: blueprint, Outer: resource,
		}.encode()}},
		PartitionMain: {
			{Key: FieldKey(0), Value: balance},
			{Key: FieldKey(1), Value: encodeFreezeFlags(0)},
		},
	})
	if err != nil {
		return NodeID{}, err
	}
	return id, nil
}

// newProofNode materialises proof evidence as a node in the current frame.
func newProofNode(k *Kernel, p ProofSubstate) (NodeID, error) {
	id, err := k.AllocateNodeID(EntityTypeInternalProof)
	if err != nil {
		return NodeID{}, err
	}
	err = k.CreateNode(id, map[PartitionNumber][]SubstateEntry{
		PartitionTypeInfo: {{Key: FieldKey(0), Value: TypeInfoSubstate{
			Package: PackageResource, Blueprint: BlueprintProof, Outer: p.Resource,
		}.encode()}},
		PartitionMain: {{Key: FieldKey(0), Value: p.encode()}},
	})
	if err != nil {
		return NodeID{}, err
	}
	return id, nil
}

// readFungibleBalance / writeFungibleBalance operate on the balance field
// of a fungible container through the kernel's lock discipline.
func readFungibleBalance(k *Kernel, id NodeID) (LiquidFungible, error) {
	payload, err := k.substateRead(id, PartitionMain, FieldKey(0))
	if err != nil {
		return LiquidFungible{}, err
	}
	return decodeFungibleBalance(payload)
}

func updateFungibleBalance(k *Kernel, id NodeID, fn func(*LiquidFungible) error) error {
	return k.substateUpdate(id, PartitionMain, FieldKey(0), func(b []byte) ([]byte, error) {
		if b == nil {
			return nil, ErrSubstateNotFound
		}
		l, err := decodeFungibleBalance(b)
		if err != nil {
			return nil, err
		}
		if err := fn(&l); err != nil {
			return nil, err
		}
		return encodeFungibleBalance(l), nil
	})
}

func readNonFungibleBalance(k *Kernel, id NodeID) (LiquidNonFungible, error) {
	payload, err := k.substateRead(id, PartitionMain, FieldKey(0))
	if err != nil {
		return LiquidNonFungible{}, err
	}
	return decodeNonFungibleBalance(payload)
}

func updateNonFungibleBalance(k *Kernel, id NodeID, fn func(*LiquidNonFungible) error) error {
	return k.substateUpdate(id, PartitionMain, FieldKey(0), func(b []byte) ([]byte, error) {
		if b == nil {
			return nil, ErrSubstateNotFound
		}
		l, err := decodeNonFungibleBalance(b)
		if err != nil {
			return nil, err
		}
		if err := fn(&l); err != nil {
			return nil, err
		}
		return encodeNonFungibleBalance(l), nil
	})
}

// containerIsFungible resolves flavour from the blueprint name.
func containerIsFungible(k *Kernel, id NodeID) (bool, error) {
	info, err := k.readTypeInfo(id)
	if err != nil {
		return false, err
	}
	switch info.Blueprint {
	case BlueprintFungibleBucket, BlueprintFungibleVault:
		return true, nil
	case BlueprintNonFungibleBucket, BlueprintNonFungibleVault:
		return false, nil
	default:
		return false, errResource("node %s is not a resource container", id)
	}
}

// resourceDivisibility reads the divisibility declared by a fungible
// resource manager.
func resourceDivisibility(k *Kernel, resource NodeID) (uint8, error) {
	state, err := readResourceManagerState(k, resource)
	if err != nil {
		return 0, err
	}
	return state.Divisibility, nil
}
