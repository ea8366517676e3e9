package core

// Vault blueprints: the persistent resource containers. Vaults enforce the
// same balance algebra as buckets plus the persistence-only concerns:
// freeze flags, fee locking (MRD vaults only) and the role-gated direct
// recall path.

func init() {
	registerNative(PackageResource, BlueprintFungibleVault, "take", fungibleVaultTake)
	registerNative(PackageResource, BlueprintFungibleVault, "take_advanced", fungibleVaultTakeAdvanced)
	registerNative(PackageResource, BlueprintFungibleVault, "put", vaultPut)
	registerNative(PackageResource, BlueprintFungibleVault, "get_amount", containerGetAmount)
	registerNative(PackageResource, BlueprintFungibleVault, "get_resource_address", containerGetResource)
	registerNative(PackageResource, BlueprintFungibleVault, "create_proof_of_amount", fungibleVaultProofOfAmount)
	registerNative(PackageResource, BlueprintFungibleVault, "lock_fee", fungibleVaultLockFee)
	registerNative(PackageResource, BlueprintFungibleVault, "recall", vaultRecall)
	registerNative(PackageResource, BlueprintFungibleVault, "freeze", vaultFreeze)
	registerNative(PackageResource, BlueprintFungibleVault, "unfreeze", vaultUnfreeze)

	registerMethodAuth(BlueprintFungibleVault, "recall", roleAuth(RoleRecall))
	registerMethodAuth(BlueprintFungibleVault, "freeze", roleAuth(RoleFreeze))
	registerMethodAuth(BlueprintFungibleVault, "unfreeze", roleAuth(RoleFreeze))

	registerNative(PackageResource, BlueprintNonFungibleVault, "take", nonFungibleVaultTake)
	registerNative(PackageResource, BlueprintNonFungibleVault, "take_non_fungibles", nonFungibleVaultTakeIDs)
	registerNative(PackageResource, BlueprintNonFungibleVault, "put", vaultPut)
	registerNative(PackageResource, BlueprintNonFungibleVault, "get_amount", containerGetAmount)
	registerNative(PackageResource, BlueprintNonFungibleVault, "get_resource_address", containerGetResource)
	registerNative(PackageResource, BlueprintNonFungibleVault, "get_non_fungible_local_ids", bucketGetIDs)
	registerNative(PackageResource, BlueprintNonFungibleVault, "create_proof_of_non_fungibles", nonFungibleVaultProofOfIDs)
	registerNative(PackageResource, BlueprintNonFungibleVault, "recall", vaultRecall)
	registerNative(PackageResource, BlueprintNonFungibleVault, "freeze", vaultFreeze)
	registerNative(PackageResource, BlueprintNonFungibleVault, "unfreeze", vaultUnfreeze)

	registerMethodAuth(BlueprintNonFungibleVault, "recall", roleAuth(RoleRecall))
	registerMethodAuth(BlueprintNonFungibleVault, "freeze", roleAuth(RoleFreeze))
	registerMethodAuth(BlueprintNonFungibleVault, "unfreeze", roleAuth(RoleFreeze))
}

// vaultWithdrawAllowed combines the vault's own freeze flags with the
// resource-wide freeze.
func vaultWithdrawAllowed(k *Kernel, vault, resource NodeID) error {
	flagsPayload, err := k.substateRead(vault, PartitionMain, FieldKey(1))
	if err != nil {
		return err
	}
	flags, err := decodeFreezeFlags(flagsPayload)
	if err != nil {
		return err
	}
	if flags&freezeWithdraw != 0 {
		return errResource("vault %s is withdraw-frozen", vault)
	}
	state, err := readResourceManagerState(k, resource)
	if err != nil {
		return err
	}
	if state.Frozen {
		return errResource("resource %s is frozen", resource)
	}
	return nil
}

func vaultDepositAllowed(k *Kernel, vault NodeID) error {
	flagsPayload, err := k.substateRead(vault, PartitionMain, FieldKey(1))
	if err != nil {
		return err
	}
	flags, err := decodeFreezeFlags(flagsPayload)
	if err != nil {
		return err
	}
	if flags&freezeDeposit != 0 {
		return errResource("vault %s is deposit-frozen", vault)
	}
	return nil
}

func fungibleVaultTakeInternal(k *Kernel, receiver NodeID, amount Decimal, mode RoundingMode, rounded bool) (Value, error) {
	resource, err := containerResource(k, receiver)
	if err != nil {
		return Value{}, err
	}
	if err := vaultWithdrawAllowed(k, receiver, resource); err != nil {
		return Value{}, err
	}
	divisibility, err := resourceDivisibility(k, resource)
	if err != nil {
		return Value{}, err
	}
	if rounded {
		if amount, err = amount.RoundTo(int(divisibility), mode); err != nil {
			return Value{}, err
		}
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
	if err := k.EmitEvent("WithdrawResourceEvent", VTuple(VAddress(resource), VDecimal(taken.Amount))); err != nil {
		return Value{}, err
	}
	return VOwn(bucket), nil
}

// fungibleVaultTake: (amount) -> bucket. Fails on divisibility breaks.
func fungibleVaultTake(k *Kernel, receiver NodeID, input Value) (Value, error) {
	fields, err := input.AsTuple()
	if err != nil || len(fields) != 1 {
		return Value{}, errDecode("take expects (amount)")
	}
	amount, err := fields[0].AsDecimal()
	if err != nil {
		return Value{}, err
	}
	return fungibleVaultTakeInternal(k, receiver, amount, RoundToZero, false)
}

// fungibleVaultTakeAdvanced: (amount, rounding_mode) -> bucket.
func fungibleVaultTakeAdvanced(k *Kernel, receiver NodeID, input Value) (Value, error) {
	fields, err := input.AsTuple()
	if err != nil || len(fields) != 2 {
		return Value{}, errDecode("take_advanced expects (amount, rounding_mode)")
	}
	amount, err := fields[0].AsDecimal()
	if err != nil {
		return Value{}, err
	}
	mode, err := fields[1].AsU8()
	if err != nil {
		return Value{}, err
	}
	return fungibleVaultTakeInternal(k, receiver, amount, RoundingMode(mode), true)
}

// vaultPut: (bucket) -> (). Both flavours.
func vaultPut(k *Kernel, receiver NodeID, input Value) (Value, error) {
	if err := vaultDepositAllowed(k, receiver); err != nil {
		return Value{}, err
	}
	fields, err := input.AsTuple()
	if err != nil || len(fields) != 1 {
		return Value{}, errDecode("put expects (bucket)")
	}
	incoming, err := fields[0].AsOwn()
	if err != nil {
		return Value{}, err
	}
	resource, err := containerResource(k, receiver)
	if err != nil {
		return Value{}, err
	}
	if err := mergeContainers(k, receiver, incoming); err != nil {
		return Value{}, err
	}
	if err := k.EmitEvent("DepositResourceEvent", VAddress(resource)); err != nil {
		return Value{}, err
	}
	return VTuple(), nil
}

func nonFungibleVaultTake(k *Kernel, receiver NodeID, input Value) (Value, error) {
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
	if err := vaultWithdrawAllowed(k, receiver, resource); err != nil {
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
	if err := k.EmitEvent("WithdrawResourceEvent", VTuple(VAddress(resource), VDecimal(taken.Amount()))); err != nil {
		return Value{}, err
	}
	return VOwn(bucket), nil
}

func nonFungibleVaultTakeIDs(k *Kernel, receiver NodeID, input Value) (Value, error) {
	ids, err := idSetArg(input)
	if err != nil {
		return Value{}, err
	}
	resource, err := containerResource(k, receiver)
	if err != nil {
		return Value{}, err
	}
	if err := vaultWithdrawAllowed(k, receiver, resource); err != nil {
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
	if err := k.EmitEvent("WithdrawResourceEvent", VTuple(VAddress(resource), VDecimal(taken.Amount()))); err != nil {
		return Value{}, err
	}
	return VOwn(bucket), nil
}

// fungibleVaultProofOfAmount: (amount) -> proof. Proof validity is scoped
// to the creating frame's lifetime through the auth-zone drop rules.
func fungibleVaultProofOfAmount(k *Kernel, receiver NodeID, input Value) (Value, error) {
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

func nonFungibleVaultProofOfIDs(k *Kernel, receiver NodeID, input Value) (Value, error) {
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

// fungibleVaultLockFee: (amount, contingent) -> (). Only vaults of the
// native MRD resource may fund the fee reserve.
func fungibleVaultLockFee(k *Kernel, receiver NodeID, input Value) (Value, error) {
	fields, err := input.AsTuple()
	if err != nil || len(fields) != 2 {
		return Value{}, errDecode("lock_fee expects (amount, contingent)")
	}
	amount, err := fields[0].AsDecimal()
	if err != nil {
		return Value{}, err
	}
	contingent, err := fields[1].AsBool()
	if err != nil {
		return Value{}, err
	}
	resource, err := containerResource(k, receiver)
	if err != nil {
		return Value{}, err
	}
	if resource != ResourceMRD {
		return Value{}, errResource("lock_fee requires an MRD vault, got %s", resource)
	}
	if err := updateFungibleBalance(k, receiver, func(l *LiquidFungible) error {
		_, takeErr := l.Take(amount, DecimalScale)
		return takeErr
	}); err != nil {
		return Value{}, err
	}
	if err := k.fees.LockFee(receiver, amount, contingent); err != nil {
		return Value{}, err
	}
	if err := k.EmitEvent("LockFeeEvent", VTuple(VAddress(resource), VDecimal(amount))); err != nil {
		return Value{}, err
	}
	return VTuple(), nil
}

// vaultRecall: (amount | ids) -> bucket. Reachable only through the
// privileged direct-access path; the role check already ran.
func vaultRecall(k *Kernel, receiver NodeID, input Value) (Value, error) {
	if !k.CurrentActor().IsDirect {
		return Value{}, errKernel("recall requires direct vault access")
	}
	fungible, err := containerIsFungible(k, receiver)
	if err != nil {
		return Value{}, err
	}
	resource, err := containerResource(k, receiver)
	if err != nil {
		return Value{}, err
	}
	if fungible {
		fields, err := input.AsTuple()
		if err != nil || len(fields) != 1 {
			return Value{}, errDecode("recall expects (amount)")
		}
		amount, err := fields[0].AsDecimal()
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
		if err := k.EmitEvent("RecallResourceEvent", VTuple(VAddress(resource), VDecimal(taken.Amount))); err != nil {
			return Value{}, err
		}
		return VOwn(bucket), nil
	}
	ids, err := idSetArg(input)
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
	if err := k.EmitEvent("RecallResourceEvent", VTuple(VAddress(resource), VDecimal(taken.Amount()))); err != nil {
		return Value{}, err
	}
	return VOwn(bucket), nil
}

// vaultFreeze: (flags) -> (). Direct access, freeze role.
func vaultFreeze(k *Kernel, receiver NodeID, input Value) (Value, error) {
	return vaultSetFreeze(k, receiver, input, true)
}

func vaultUnfreeze(k *Kernel, receiver NodeID, input Value) (Value, error) {
	return vaultSetFreeze(k, receiver, input, false)
}

func vaultSetFreeze(k *Kernel, receiver NodeID, input Value, set bool) (Value, error) {
	fields, err := input.AsTuple()
	if err != nil || len(fields) != 1 {
		return Value{}, errDecode("freeze expects (flags)")
	}
	mask, err := fields[0].AsU8()
	if err != nil {
		return Value{}, err
	}
	err = k.substateUpdate(receiver, PartitionMain, FieldKey(1), func(b []byte) ([]byte, error) {
		if b == nil {
			return nil, ErrSubstateNotFound
		}
		flags, err := decodeFreezeFlags(b)
		if err != nil {
			return nil, err
		}
		if set {
			flags |= vaultFreezeFlags(mask)
		} else {
			flags &^= vaultFreezeFlags(mask)
		}
		return encodeFreezeFlags(flags), nil
	})
	if err != nil {
		return Value{}, err
	}
	return VTuple(), nil
}
