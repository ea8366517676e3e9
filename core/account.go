package core

// Account blueprint: the standard asset-holding component. An account owns
// one vault per resource in an open key-value partition; its owner rule
// gates withdrawals, fee locking and proof creation while deposits stay
// public. Virtual accounts are derived from a public-key hash and
// instantiated on first touch with the matching signature badge as owner.

func init() {
	registerNative(PackageAccount, BlueprintAccount, "create", accountCreate)
	registerNative(PackageAccount, BlueprintAccount, "deposit", accountDeposit)
	registerNative(PackageAccount, BlueprintAccount, "deposit_batch", accountDepositBatch)
	registerNative(PackageAccount, BlueprintAccount, "withdraw", accountWithdraw)
	registerNative(PackageAccount, BlueprintAccount, "withdraw_non_fungibles", accountWithdrawNonFungibles)
	registerNative(PackageAccount, BlueprintAccount, "lock_fee", accountLockFee)
	registerNative(PackageAccount, BlueprintAccount, "lock_fee_and_withdraw", accountLockFeeAndWithdraw)
	registerNative(PackageAccount, BlueprintAccount, "create_proof_of_amount", accountProofOfAmount)
	registerNative(PackageAccount, BlueprintAccount, "balance", accountBalance)

	registerMethodAuth(BlueprintAccount, "withdraw", ownerAuth())
	registerMethodAuth(BlueprintAccount, "withdraw_non_fungibles", ownerAuth())
	registerMethodAuth(BlueprintAccount, "lock_fee", ownerAuth())
	registerMethodAuth(BlueprintAccount, "lock_fee_and_withdraw", ownerAuth())
	registerMethodAuth(BlueprintAccount, "create_proof_of_amount", ownerAuth())

	registerVirtualizer(EntityTypeGlobalVirtualAccount, virtualizeAccount)
}

// newAccountNode assembles an account at the given (pre-allocated or
// virtual) address and globalizes it.
func newAccountNode(k *Kernel, id NodeID, owner AccessRule) error {
	err := k.CreateNode(id, map[PartitionNumber][]SubstateEntry{
		PartitionTypeInfo: {{Key: FieldKey(0), Value: TypeInfoSubstate{
			Package: PackageAccount, Blueprint: BlueprintAccount, Global: true,
		}.encode()}},
		PartitionRoleAssignment: {
			{Key: ownerRuleKey(), Value: encodeAccessRule(owner)},
		},
	})
	if err != nil {
		return err
	}
	return k.Globalize(id)
}

// virtualizeAccount instantiates a virtual account on first touch; the
// owner is the signature badge whose hash the address body carries.
func virtualizeAccount(k *Kernel, id NodeID) error {
	return newAccountNode(k, id, RequireNonFungible(VirtualAccountBadgeID(id)))
}

// accountCreate: (owner_rule) -> address.
func accountCreate(k *Kernel, _ NodeID, input Value) (Value, error) {
	fields, err := input.AsTuple()
	if err != nil || len(fields) != 1 {
		return Value{}, errDecode("create expects (owner_rule)")
	}
	owner, err := accessRuleFromValue(fields[0])
	if err != nil {
		return Value{}, err
	}
	id, err := k.AllocateNodeID(EntityTypeGlobalAccount)
	if err != nil {
		return Value{}, err
	}
	if err := newAccountNode(k, id, owner); err != nil {
		return Value{}, err
	}
	if err := k.EmitEvent("AccountCreatedEvent", VAddress(id)); err != nil {
		return Value{}, err
	}
	return VAddress(id), nil
}

// accountVaultKey addresses the per-resource vault entry.
func accountVaultKey(resource NodeID) SubstateKey { return MapKey(resource[:]) }

// accountVault resolves (and on demand creates) the account's vault for a
// resource.
func accountVault(k *Kernel, account, resource NodeID, createMissing bool) (NodeID, error) {
	payload, err := k.substateRead(account, PartitionMainMap, accountVaultKey(resource))
	if err == nil {
		v, err := DecodePayload(payload)
		if err != nil {
			return NodeID{}, err
		}
		return v.AsOwn()
	}
	if err != ErrSubstateNotFound {
		return NodeID{}, err
	}
	if !createMissing {
		return NodeID{}, errResource("account holds no vault for %s", resource)
	}
	created, err := k.CallMethod(resource, "create_empty_vault", VTuple())
	if err != nil {
		return NodeID{}, err
	}
	vault, err := created.AsOwn()
	if err != nil {
		return NodeID{}, err
	}
	if err := k.substateWrite(account, PartitionMainMap, accountVaultKey(resource), MustEncodePayload(VOwn(vault))); err != nil {
		return NodeID{}, err
	}
	return vault, nil
}

// accountDeposit: (bucket) -> ().
func accountDeposit(k *Kernel, receiver NodeID, input Value) (Value, error) {
	fields, err := input.AsTuple()
	if err != nil || len(fields) != 1 {
		return Value{}, errDecode("deposit expects (bucket)")
	}
	return VTuple(), accountDepositBucket(k, receiver, fields[0])
}

func accountDepositBucket(k *Kernel, account NodeID, bucketVal Value) error {
	bucket, err := bucketVal.AsOwn()
	if err != nil {
		return err
	}
	resource, err := containerResource(k, bucket)
	if err != nil {
		return err
	}
	vault, err := accountVault(k, account, resource, true)
	if err != nil {
		return err
	}
	_, err = k.CallMethod(vault, "put", VTuple(VOwn(bucket)))
	return err
}

// accountDepositBatch: (array of buckets) -> ().
func accountDepositBatch(k *Kernel, receiver NodeID, input Value) (Value, error) {
	fields, err := input.AsTuple()
	if err != nil || len(fields) != 1 || fields[0].Kind != ValueKindArray {
		return Value{}, errDecode("deposit_batch expects (buckets)")
	}
	for _, b := range fields[0].Elements {
		if err := accountDepositBucket(k, receiver, b); err != nil {
			return Value{}, err
		}
	}
	return VTuple(), nil
}

// accountWithdraw: (resource, amount) -> bucket.
func accountWithdraw(k *Kernel, receiver NodeID, input Value) (Value, error) {
	fields, err := input.AsTuple()
	if err != nil || len(fields) != 2 {
		return Value{}, errDecode("withdraw expects (resource, amount)")
	}
	resource, err := fields[0].AsAddress()
	if err != nil {
		return Value{}, err
	}
	vault, err := accountVault(k, receiver, resource, false)
	if err != nil {
		return Value{}, err
	}
	return k.CallMethod(vault, "take", VTuple(fields[1]))
}

// accountWithdrawNonFungibles: (resource, ids) -> bucket.
func accountWithdrawNonFungibles(k *Kernel, receiver NodeID, input Value) (Value, error) {
	fields, err := input.AsTuple()
	if err != nil || len(fields) != 2 {
		return Value{}, errDecode("withdraw_non_fungibles expects (resource, ids)")
	}
	resource, err := fields[0].AsAddress()
	if err != nil {
		return Value{}, err
	}
	vault, err := accountVault(k, receiver, resource, false)
	if err != nil {
		return Value{}, err
	}
	return k.CallMethod(vault, "take_non_fungibles", VTuple(fields[1]))
}

// accountLockFee: (amount) -> ().
func accountLockFee(k *Kernel, receiver NodeID, input Value) (Value, error) {
	fields, err := input.AsTuple()
	if err != nil || len(fields) != 1 {
		return Value{}, errDecode("lock_fee expects (amount)")
	}
	vault, err := accountVault(k, receiver, ResourceMRD, false)
	if err != nil {
		return Value{}, err
	}
	_, err = k.CallMethod(vault, "lock_fee", VTuple(fields[0], VBool(false)))
	return VTuple(), err
}

// accountLockFeeAndWithdraw: (fee_amount, resource, amount) -> bucket.
func accountLockFeeAndWithdraw(k *Kernel, receiver NodeID, input Value) (Value, error) {
	fields, err := input.AsTuple()
	if err != nil || len(fields) != 3 {
		return Value{}, errDecode("lock_fee_and_withdraw expects (fee, resource, amount)")
	}
	if _, err := accountLockFee(k, receiver, VTuple(fields[0])); err != nil {
		return Value{}, err
	}
	return accountWithdraw(k, receiver, VTuple(fields[1], fields[2]))
}

// accountProofOfAmount: (resource, amount) -> proof.
func accountProofOfAmount(k *Kernel, receiver NodeID, input Value) (Value, error) {
	fields, err := input.AsTuple()
	if err != nil || len(fields) != 2 {
		return Value{}, errDecode("create_proof_of_amount expects (resource, amount)")
	}
	resource, err := fields[0].AsAddress()
	if err != nil {
		return Value{}, err
	}
	vault, err := accountVault(k, receiver, resource, false)
	if err != nil {
		return Value{}, err
	}
	return k.CallMethod(vault, "create_proof_of_amount", VTuple(fields[1]))
}

// accountBalance: (resource) -> amount; zero when no vault exists.
func accountBalance(k *Kernel, receiver NodeID, input Value) (Value, error) {
	fields, err := input.AsTuple()
	if err != nil || len(fields) != 1 {
		return Value{}, errDecode("balance expects (resource)")
	}
	resource, err := fields[0].AsAddress()
	if err != nil {
		return Value{}, err
	}
	vault, err := accountVault(k, receiver, resource, false)
	if err != nil {
		return VDecimal(ZeroDecimal()), nil
	}
	return k.CallMethod(vault, "get_amount", VTuple())
}
