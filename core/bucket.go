package core

// Bucket and proof blueprints. Buckets are the transient carriers every
// resource movement flows through; proofs assert evidence without moving
// anything. Both live only inside the transaction that created them.

func init() {
	registerNative(PackageResource, BlueprintFungibleBucket, "take", fungibleBucketTake)
	registerNative(PackageResource, BlueprintFungibleBucket, "put", bucketPut)
	registerNative(PackageResource, BlueprintFungibleBucket, "get_amount", containerGetAmount)
	registerNative(PackageResource, BlueprintFungibleBucket, "get_resource_address", containerGetResource)
	registerNative(PackageResource, BlueprintFungibleBucket, "create_proof_of_amount", fungibleBucketProofOfAmount)
	registerNative(PackageResource, BlueprintFungibleBucket, "create_proof_of_all", bucketProofOfAll)

	registerNative(PackageResource, BlueprintNonFungibleBucket, "take", nonFungibleBucketTake)
	registerNative(PackageResource, BlueprintNonFungibleBucket, "take_non_fungibles", nonFungibleBucketTakeIDs)
	registerNative(PackageResource, BlueprintNonFungibleBucket, "put", bucketPut)
	registerNative(PackageResource, BlueprintNonFungibleBucket, "get_amount", containerGetAmount)
	registerNative(PackageResource, BlueprintNonFungibleBucket, "get_resource_address", containerGetResource)
	registerNative(PackageResource, BlueprintNonFungibleBucket, "get_non_fungible_local_ids", bucketGetIDs)
	registerNative(PackageResource, BlueprintNonFungibleBucket, "create_proof_of_non_fungibles", nonFungibleBucketProofOfIDs)
	registerNative(PackageResource, BlueprintNonFungibleBucket, "create_proof_of_all", bucketProofOfAll)

	registerNative(PackageResource, BlueprintProof, "clone", proofClone)
	registerNative(PackageResource, BlueprintProof, "get_amount", proofGetAmount)
	registerNative(PackageResource, BlueprintProof, "get_resource_address", containerGetResource)
}

// fungibleBucketTake: (amount) -> bucket.
func fungibleBucketTake(k *Kernel, receiver NodeID, input Value) (Value, error) {
	fields, err := input.AsTuple()
	if err != nil || len(fields) != 1 {
		return Value{}, errDecode("take expects (amount)")
	}
	amount, err := fields[0].AsDecimal()
	if err != nil {
		return Value{}, err
	}
	resource, err := containerResource(k, receiver)
	if err != nil {
		return Value{}, err
	}
	divisibility, err := resourceDivisibility(k, resource)
	if err != nil {
		return Value{}, err
	}
	var taken LiquidFungible
	if err := updateFungibleBalance(k, receiver, func(l *LiquidFungible) error {
		var takeErr error
		taken, takeErr = l.Take(amount, divisibility)
		return takeErr
	}); err != nil {
		return Value{}, err
	}
	bucket, err := newFungibleBucketNode(k, resource, taken)
	if err != nil {
		return Value{}, err
	}
	return VOwn(bucket), nil
}

// bucketPut: (bucket) -> (). Works for both flavours; the incoming bucket
// is drained and dropped.
func bucketPut(k *Kernel, receiver NodeID, input Value) (Value, error) {
	fields, err := input.AsTuple()
	if err != nil || len(fields) != 1 {
		return Value{}, errDecode("put expects (bucket)")
	}
	incoming, err := fields[0].AsOwn()
	if err != nil {
		return Value{}, err
	}
	return VTuple(), mergeContainers(k, receiver, incoming)
}

// mergeContainers moves the full contents of src into dst and drops src.
// Both must hold the same resource and flavour.
func mergeContainers(k *Kernel, dst, src NodeID) error {
	dstResource, err := containerResource(k, dst)
	if err != nil {
		return err
	}
	srcResource, err := containerResource(k, src)
	if err != nil {
		return err
	}
	if dstResource != srcResource {
		return errResource("cannot put %s resource into %s container", srcResource, dstResource)
	}
	fungible, err := containerIsFungible(k, src)
	if err != nil {
		return err
	}
	if fungible {
		var moved LiquidFungible
		if err := updateFungibleBalance(k, src, func(l *LiquidFungible) error {
			moved = l.TakeAll()
			return nil
		}); err != nil {
			return err
		}
		if err := updateFungibleBalance(k, dst, func(l *LiquidFungible) error {
			return l.Put(moved)
		}); err != nil {
			return err
		}
	} else {
		var moved LiquidNonFungible
		if err := updateNonFungibleBalance(k, src, func(l *LiquidNonFungible) error {
			moved = l.TakeAll()
			return nil
		}); err != nil {
			return err
		}
		if err := updateNonFungibleBalance(k, dst, func(l *LiquidNonFungible) error {
			return l.Put(moved)
		}); err != nil {
			return err
		}
	}
	if src.EntityType() == EntityTypeInternalBucket {
		if _, err := k.DropNode(src); err != nil {
			return err
		}
	}
	return nil
}

// containerGetAmount works on buckets and vaults of both flavours.
func containerGetAmount(k *Kernel, receiver NodeID, _ Value) (Value, error) {
	fungible, err := containerIsFungible(k, receiver)
	if err != nil {
		return Value{}, err
	}
	if fungible {
		l, err := readFungibleBalance(k, receiver)
		if err != nil {
			return Value{}, err
		}
		return VDecimal(l.Amount), nil
	}
	l, err := readNonFungibleBalance(k, receiver)
	if err != nil {
		return Value{}, err
	}
	return VDecimal(l.Amount()), nil
}

func containerGetResource(k *Kernel, receiver NodeID, _ Value) (Value, error) {
	resource, err := containerResource(k, receiver)
	if err != nil {
		return Value{}, err
	}
	return VAddress(resource), nil
}

// nonFungibleBucketTake: (amount) -> bucket, ids chosen in canonical order.
func nonFungibleBucketTake(k *Kernel, receiver NodeID, input Value) (Value, error) {
	fields, err := input.AsTuple()
	if err != nil || len(fields) != 1 {
		return Value{}, errDecode("take expects (amount)")
	}
	amount, err := fields[0].AsDecimal()
	if err != nil {
		return Value{}, err
	}
	resource, err := containerResource(k, receiver)
	if err != nil {
		return Value{}, err
	}
	var taken LiquidNonFungible
	if err := updateNonFungibleBalance(k, receiver, func(l *LiquidNonFungible) error {
		var takeErr error
		taken, takeErr = l.TakeByAmount(amount)
		return takeErr
	}); err != nil {
		return Value{}, err
	}
	bucket, err := newNonFungibleBucketNode(k, resource, taken)
	if err != nil {
		return Value{}, err
	}
	return VOwn(bucket), nil
}

// nonFungibleBucketTakeIDs: (ids) -> bucket.
func nonFungibleBucketTakeIDs(k *Kernel, receiver NodeID, input Value) (Value, error) {
	ids, err := idSetArg(input)
	if err != nil {
		return Value{}, err
	}
	resource, err := containerResource(k, receiver)
	if err != nil {
		return Value{}, err
	}
	var taken LiquidNonFungible
	if err := updateNonFungibleBalance(k, receiver, func(l *LiquidNonFungible) error {
		var takeErr error
		taken, takeErr = l.TakeByIDs(ids)
		return takeErr
	}); err != nil {
		return Value{}, err
	}
	bucket, err := newNonFungibleBucketNode(k, resource, taken)
	if err != nil {
		return Value{}, err
	}
	return VOwn(bucket), nil
}

func bucketGetIDs(k *Kernel, receiver NodeID, _ Value) (Value, error) {
	l, err := readNonFungibleBalance(k, receiver)
	if err != nil {
		return Value{}, err
	}
	ids := make([]Value, 0, l.IDs.Len())
	for _, id := range l.IDs.IDs() {
		ids = append(ids, VNFID(id))
	}
	return VArray(ValueKindNonFungibleLocalID, ids...), nil
}

// fungibleBucketProofOfAmount: (amount) -> proof.
func fungibleBucketProofOfAmount(k *Kernel, receiver NodeID, input Value) (Value, error) {
	fields, err := input.AsTuple()
	if err != nil || len(fields) != 1 {
		return Value{}, errDecode("create_proof_of_amount expects (amount)")
	}
	amount, err := fields[0].AsDecimal()
	if err != nil {
		return Value{}, err
	}
	resource, err := containerResource(k, receiver)
	if err != nil {
		return Value{}, err
	}
	l, err := readFungibleBalance(k, receiver)
	if err != nil {
		return Value{}, err
	}
	if l.Amount.LT(amount) {
		return Value{}, errResource("insufficient evidence: have %s, need %s", l.Amount, amount)
	}
	proof, err := newProofNode(k, ProofSubstate{Resource: resource, Fungible: true, Amount: amount})
	if err != nil {
		return Value{}, err
	}
	return VOwn(proof), nil
}

// bucketProofOfAll proves the entire current contents.
func bucketProofOfAll(k *Kernel, receiver NodeID, _ Value) (Value, error) {
	resource, err := containerResource(k, receiver)
	if err != nil {
		return Value{}, err
	}
	fungible, err := containerIsFungible(k, receiver)
	if err != nil {
		return Value{}, err
	}
	var sub ProofSubstate
	if fungible {
		l, err := readFungibleBalance(k, receiver)
		if err != nil {
			return Value{}, err
		}
		sub = ProofSubstate{Resource: resource, Fungible: true, Amount: l.Amount}
	} else {
		l, err := readNonFungibleBalance(k, receiver)
		if err != nil {
			return Value{}, err
		}
		sub = ProofSubstate{Resource: resource, Amount: l.Amount(), IDs: l.IDs}
	}
	if sub.Amount.IsZero() {
		return Value{}, errResource("cannot prove an empty container")
	}
	proof, err := newProofNode(k, sub)
	if err != nil {
		return Value{}, err
	}
	return VOwn(proof), nil
}

// nonFungibleBucketProofOfIDs: (ids) -> proof.
func nonFungibleBucketProofOfIDs(k *Kernel, receiver NodeID, input Value) (Value, error) {
	ids, err := idSetArg(input)
	if err != nil {
		return Value{}, err
	}
	resource, err := containerResource(k, receiver)
	if err != nil {
		return Value{}, err
	}
	l, err := readNonFungibleBalance(k, receiver)
	if err != nil {
		return Value{}, err
	}
	if !l.IDs.ContainsAll(ids) {
		return Value{}, errResource("insufficient evidence: missing requested ids")
	}
	proof, err := newProofNode(k, ProofSubstate{Resource: resource, Amount: NewDecimal(int64(ids.Len())), IDs: ids})
	if err != nil {
		return Value{}, err
	}
	return VOwn(proof), nil
}

// proofClone duplicates evidence (proofs do not move resources, so
// cloning is sound).
func proofClone(k *Kernel, receiver NodeID, _ Value) (Value, error) {
	payload, err := k.substateRead(receiver, PartitionMain, FieldKey(0))
	if err != nil {
		return Value{}, err
	}
	sub, err := decodeProof(payload)
	if err != nil {
		return Value{}, err
	}
	proof, err := newProofNode(k, sub)
	if err != nil {
		return Value{}, err
	}
	return VOwn(proof), nil
}

func proofGetAmount(k *Kernel, receiver NodeID, _ Value) (Value, error) {
	payload, err := k.substateRead(receiver, PartitionMain, FieldKey(0))
	if err != nil {
		return Value{}, err
	}
	sub, err := decodeProof(payload)
	if err != nil {
		return Value{}, err
	}
	return VDecimal(sub.Amount), nil
}

// idSetArg decodes the common single-argument id set shape.
func idSetArg(input Value) (NonFungibleIDSet, error) {
	fields, err := input.AsTuple()
	if err != nil || len(fields) != 1 {
		return NonFungibleIDSet{}, errDecode("expected (ids)")
	}
	if fields[0].Kind != ValueKindArray || fields[0].ElementKind != ValueKindNonFungibleLocalID {
		return NonFungibleIDSet{}, errDecode("ids must be Array<NonFungibleLocalId>")
	}
	var ids NonFungibleIDSet
	for _, e := range fields[0].Elements {
		ids.Insert(e.NFIDV)
	}
	return ids, nil
}
