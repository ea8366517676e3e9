package core

// Resource manager blueprints: the global authorities over a resource.
// The fungible flavour tracks divisibility and a supply ledger; the
// non-fungible flavour additionally owns per-id data substates. Every
// mutation of supply flows through mint/burn here, which is what makes
// resource conservation checkable: sum(vaults) == minted - burned.

import "sort"

// ResourceManagerSubstate is field 0 of a resource manager's main
// partition.
type ResourceManagerSubstate struct {
	Divisibility uint8 // fungible only
	IDKind       NFIDKind
	Fungible     bool
	TotalMinted  Decimal
	TotalBurned  Decimal
	Frozen       bool // resource-wide withdraw/deposit freeze
}

// TotalSupply is minted minus burned.
func (s ResourceManagerSubstate) TotalSupply() Decimal {
	out, _ := s.TotalMinted.Sub(s.TotalBurned)
	return out
}

func (s ResourceManagerSubstate) toValue() Value {
	return VTuple(
		VU8(s.Divisibility),
		VU8(uint8(s.IDKind)),
		VBool(s.Fungible),
		VDecimal(s.TotalMinted),
		VDecimal(s.TotalBurned),
		VBool(s.Frozen),
	)
}

func resourceManagerFromValue(v Value) (ResourceManagerSubstate, error) {
	fields, err := v.AsTuple()
	if err != nil {
		return ResourceManagerSubstate{}, err
	}
	if len(fields) != 6 {
		return ResourceManagerSubstate{}, errDecode("resource manager expects 6 fields")
	}
	var out ResourceManagerSubstate
	d, err := fields[0].AsU8()
	if err != nil {
		return ResourceManagerSubstate{}, err
	}
	out.Divisibility = d
	ik, err := fields[1].AsU8()
	if err != nil {
		return ResourceManagerSubstate{}, err
	}
	out.IDKind = NFIDKind(ik)
	if out.Fungible, err = fields[2].AsBool(); err != nil {
		return ResourceManagerSubstate{}, err
	}
	if out.TotalMinted, err = fields[3].AsDecimal(); err != nil {
		return ResourceManagerSubstate{}, err
	}
	if out.TotalBurned, err = fields[4].AsDecimal(); err != nil {
		return ResourceManagerSubstate{}, err
	}
	if out.Frozen, err = fields[5].AsBool(); err != nil {
		return ResourceManagerSubstate{}, err
	}
	return out, nil
}

func readResourceManagerState(k *Kernel, resource NodeID) (ResourceManagerSubstate, error) {
	payload, err := k.substateRead(resource, PartitionMain, FieldKey(0))
	if err != nil {
		return ResourceManagerSubstate{}, err
	}
	v, err := DecodePayload(payload)
	if err != nil {
		return ResourceManagerSubstate{}, err
	}
	return resourceManagerFromValue(v)
}

func updateResourceManagerState(k *Kernel, resource NodeID, fn func(*ResourceManagerSubstate) error) error {
	return k.substateUpdate(resource, PartitionMain, FieldKey(0), func(b []byte) ([]byte, error) {
		if b == nil {
			return nil, ErrSubstateNotFound
		}
		v, err := DecodePayload(b)
		if err != nil {
			return nil, err
		}
		state, err := resourceManagerFromValue(v)
		if err != nil {
			return nil, err
		}
		if err := fn(&state); err != nil {
			return nil, err
		}
		return MustEncodePayload(state.toValue()), nil
	})
}

// ResourceRoles bundles the role rules set at creation.
type ResourceRoles struct {
	Owner                 AccessRule
	Mint                  AccessRule
	Burn                  AccessRule
	Withdraw              AccessRule
	Deposit               AccessRule
	Recall                AccessRule
	Freeze                AccessRule
	UpdateNonFungibleData AccessRule
}

// DefaultResourceRoles denies the privileged roles and leaves movement
// open, the usual shape for a plain token.
func DefaultResourceRoles(owner AccessRule) ResourceRoles {
	return ResourceRoles{
		Owner:                 owner,
		Mint:                  DenyAll(),
		Burn:                  DenyAll(),
		Withdraw:              AllowAll(),
		Deposit:               AllowAll(),
		Recall:                DenyAll(),
		Freeze:                DenyAll(),
		UpdateNonFungibleData: DenyAll(),
	}
}

func (r ResourceRoles) toValue() Value {
	return VTuple(
		r.Owner.toValue(), r.Mint.toValue(), r.Burn.toValue(), r.Withdraw.toValue(),
		r.Deposit.toValue(), r.Recall.toValue(), r.Freeze.toValue(), r.UpdateNonFungibleData.toValue(),
	)
}

func resourceRolesFromValue(v Value) (ResourceRoles, error) {
	fields, err := v.AsTuple()
	if err != nil {
		return ResourceRoles{}, err
	}
	if len(fields) != 8 {
		return ResourceRoles{}, errDecode("resource roles expect 8 rules")
	}
	var out ResourceRoles
	dst := []*AccessRule{&out.Owner, &out.Mint, &out.Burn, &out.Withdraw, &out.Deposit, &out.Recall, &out.Freeze, &out.UpdateNonFungibleData}
	for i, f := range fields {
		if *dst[i], err = accessRuleFromValue(f); err != nil {
			return ResourceRoles{}, err
		}
	}
	return out, nil
}

// rolePartitionEntries renders a role partition for node creation.
func (r ResourceRoles) rolePartitionEntries() []SubstateEntry {
	return []SubstateEntry{
		{Key: ownerRuleKey(), Value: encodeAccessRule(r.Owner)},
		{Key: roleAssignmentKey(RoleMint), Value: encodeAccessRule(r.Mint)},
		{Key: roleAssignmentKey(RoleBurn), Value: encodeAccessRule(r.Burn)},
		{Key: roleAssignmentKey(RoleWithdraw), Value: encodeAccessRule(r.Withdraw)},
		{Key: roleAssignmentKey(RoleDeposit), Value: encodeAccessRule(r.Deposit)},
		{Key: roleAssignmentKey(RoleRecall), Value: encodeAccessRule(r.Recall)},
		{Key: roleAssignmentKey(RoleFreeze), Value: encodeAccessRule(r.Freeze)},
		{Key: roleAssignmentKey(RoleUpdateNonFungibleData), Value: encodeAccessRule(r.UpdateNonFungibleData)},
	}
}

func metadataPartitionEntries(metadata map[string]string) []SubstateEntry {
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	entries := make([]SubstateEntry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, SubstateEntry{
			Key:   MapKey([]byte(k)),
			Value: MustEncodePayload(VString(metadata[k])),
		})
	}
	return entries
}

// createResourceManagerNode assembles and globalizes a resource manager,
// optionally at a preallocated address (genesis uses well-known ones).
func createResourceManagerNode(k *Kernel, preallocated NodeID, fungible bool, divisibility uint8, idKind NFIDKind, metadata map[string]string, roles ResourceRoles) (NodeID, error) {
	id := preallocated
	if id.IsZero() {
		entity := EntityTypeGlobalFungibleResource
		if !fungible {
			entity = EntityTypeGlobalNonFungibleResource
		}
		var err error
		if id, err = k.AllocateNodeID(entity); err != nil {
			return NodeID{}, err
		}
	}
	blueprint := BlueprintFungibleResourceManager
	if !fungible {
		blueprint = BlueprintNonFungibleResourceManager
	}
	state := ResourceManagerSubstate{
		Divisibility: divisibility,
		IDKind:       idKind,
		Fungible:     fungible,
	}
	err := k.CreateNode(id, map[PartitionNumber][]SubstateEntry{
		PartitionTypeInfo: {{Key: FieldKey(0), Value: TypeInfoSubstate{
			Package: PackageResource, Blueprint: blueprint, Global: true,
		}.encode()}},
		PartitionMetadata:       metadataPartitionEntries(metadata),
		PartitionRoleAssignment: roles.rolePartitionEntries(),
		PartitionMain:           {{Key: FieldKey(0), Value: MustEncodePayload(state.toValue())}},
	})
	if err != nil {
		return NodeID{}, err
	}
	if err := k.Globalize(id); err != nil {
		return NodeID{}, err
	}
	return id, nil
}

// -----------------------------------------------------------------------------
// Fungible resource manager natives
// -----------------------------------------------------------------------------

func init() {
	registerNative(PackageResource, BlueprintFungibleResourceManager, "create", fungibleResourceCreate)
	registerNative(PackageResource, BlueprintFungibleResourceManager, "mint", fungibleResourceMint)
	registerNative(PackageResource, BlueprintFungibleResourceManager, "burn", resourceBurn)
	registerNative(PackageResource, BlueprintFungibleResourceManager, "create_empty_bucket", resourceCreateEmptyBucket)
	registerNative(PackageResource, BlueprintFungibleResourceManager, "create_empty_vault", resourceCreateEmptyVault)
	registerNative(PackageResource, BlueprintFungibleResourceManager, "get_total_supply", resourceGetTotalSupply)
	registerNative(PackageResource, BlueprintFungibleResourceManager, "get_divisibility", resourceGetDivisibility)
	registerNative(PackageResource, BlueprintFungibleResourceManager, "freeze", resourceFreeze)
	registerNative(PackageResource, BlueprintFungibleResourceManager, "unfreeze", resourceUnfreeze)

	registerMethodAuth(BlueprintFungibleResourceManager, "mint", roleAuth(RoleMint))
	registerMethodAuth(BlueprintFungibleResourceManager, "burn", roleAuth(RoleBurn))
	registerMethodAuth(BlueprintFungibleResourceManager, "freeze", roleAuth(RoleFreeze))
	registerMethodAuth(BlueprintFungibleResourceManager, "unfreeze", roleAuth(RoleFreeze))

	registerNative(PackageResource, BlueprintNonFungibleResourceManager, "create", nonFungibleResourceCreate)
	registerNative(PackageResource, BlueprintNonFungibleResourceManager, "mint", nonFungibleResourceMint)
	registerNative(PackageResource, BlueprintNonFungibleResourceManager, "burn", resourceBurn)
	registerNative(PackageResource, BlueprintNonFungibleResourceManager, "create_empty_bucket", resourceCreateEmptyBucket)
	registerNative(PackageResource, BlueprintNonFungibleResourceManager, "create_empty_vault", resourceCreateEmptyVault)
	registerNative(PackageResource, BlueprintNonFungibleResourceManager, "get_total_supply", resourceGetTotalSupply)
	registerNative(PackageResource, BlueprintNonFungibleResourceManager, "update_non_fungible_data", nonFungibleResourceUpdateData)
	registerNative(PackageResource, BlueprintNonFungibleResourceManager, "get_non_fungible", nonFungibleResourceGetData)
	registerNative(PackageResource, BlueprintNonFungibleResourceManager, "non_fungible_exists", nonFungibleResourceExists)
	registerNative(PackageResource, BlueprintNonFungibleResourceManager, "freeze", resourceFreeze)
	registerNative(PackageResource, BlueprintNonFungibleResourceManager, "unfreeze", resourceUnfreeze)

	registerMethodAuth(BlueprintNonFungibleResourceManager, "mint", roleAuth(RoleMint))
	registerMethodAuth(BlueprintNonFungibleResourceManager, "burn", roleAuth(RoleBurn))
	registerMethodAuth(BlueprintNonFungibleResourceManager, "update_non_fungible_data", roleAuth(RoleUpdateNonFungibleData))
	registerMethodAuth(BlueprintNonFungibleResourceManager, "freeze", roleAuth(RoleFreeze))
	registerMethodAuth(BlueprintNonFungibleResourceManager, "unfreeze", roleAuth(RoleFreeze))
}

// fungibleResourceCreate: (divisibility, metadata, roles, initial_supply?)
// -> (address, bucket?).
func fungibleResourceCreate(k *Kernel, _ NodeID, input Value) (Value, error) {
	fields, err := input.AsTuple()
	if err != nil || len(fields) != 4 {
		return Value{}, errDecode("create expects (divisibility, metadata, roles, initial_supply)")
	}
	divisibility, err := fields[0].AsU8()
	if err != nil {
		return Value{}, err
	}
	if divisibility > DecimalScale {
		return Value{}, errResource("divisibility %d out of range", divisibility)
	}
	metadata, err := stringMapFromValue(fields[1])
	if err != nil {
		return Value{}, err
	}
	roles, err := resourceRolesFromValue(fields[2])
	if err != nil {
		return Value{}, err
	}
	resource, err := createResourceManagerNode(k, NodeID{}, true, divisibility, 0, metadata, roles)
	if err != nil {
		return Value{}, err
	}

	disc, supplyFields, err := fields[3].AsEnum()
	if err != nil {
		return Value{}, err
	}
	if disc == 0 {
		return VTuple(VAddress(resource), VEnum(0)), nil
	}
	if len(supplyFields) != 1 {
		return Value{}, errDecode("initial supply variant expects one amount")
	}
	amount, err := supplyFields[0].AsDecimal()
	if err != nil {
		return Value{}, err
	}
	bucket, err := mintFungible(k, resource, amount)
	if err != nil {
		return Value{}, err
	}
	return VTuple(VAddress(resource), VEnum(1, VOwn(bucket))), nil
}

func mintFungible(k *Kernel, resource NodeID, amount Decimal) (NodeID, error) {
	state, err := readResourceManagerState(k, resource)
	if err != nil {
		return NodeID{}, err
	}
	if err := checkFungibleAmount(amount, state.Divisibility); err != nil {
		return NodeID{}, err
	}
	if err := updateResourceManagerState(k, resource, func(s *ResourceManagerSubstate) error {
		minted, err := s.TotalMinted.Add(amount)
		if err != nil {
			return err
		}
		s.TotalMinted = minted
		return nil
	}); err != nil {
		return NodeID{}, err
	}
	bucket, err := newFungibleBucketNode(k, resource, LiquidFungible{Amount: amount})
	if err != nil {
		return NodeID{}, err
	}
	if err := k.EmitEvent("MintFungibleResourceEvent", VTuple(VAddress(resource), VDecimal(amount))); err != nil {
		return NodeID{}, err
	}
	return bucket, nil
}

// fungibleResourceMint: (amount) -> bucket.
func fungibleResourceMint(k *Kernel, receiver NodeID, input Value) (Value, error) {
	fields, err := input.AsTuple()
	if err != nil || len(fields) != 1 {
		return Value{}, errDecode("mint expects (amount)")
	}
	amount, err := fields[0].AsDecimal()
	if err != nil {
		return Value{}, err
	}
	if !amount.IsPositive() {
		return Value{}, errResource("mint amount %s must be positive", amount)
	}
	bucket, err := mintFungible(k, receiver, amount)
	if err != nil {
		return Value{}, err
	}
	return VOwn(bucket), nil
}

// resourceBurn: (bucket) -> (). Shared by both flavours.
func resourceBurn(k *Kernel, receiver NodeID, input Value) (Value, error) {
	fields, err := input.AsTuple()
	if err != nil || len(fields) != 1 {
		return Value{}, errDecode("burn expects (bucket)")
	}
	bucket, err := fields[0].AsOwn()
	if err != nil {
		return Value{}, err
	}
	resource, err := containerResource(k, bucket)
	if err != nil {
		return Value{}, err
	}
	if resource != receiver {
		return Value{}, errResource("bucket of %s cannot burn at %s", resource, receiver)
	}
	fungible, err := containerIsFungible(k, bucket)
	if err != nil {
		return Value{}, err
	}

	var amount Decimal
	var ids NonFungibleIDSet
	if fungible {
		l, err := readFungibleBalance(k, bucket)
		if err != nil {
			return Value{}, err
		}
		amount = l.Amount
	} else {
		l, err := readNonFungibleBalance(k, bucket)
		if err != nil {
			return Value{}, err
		}
		amount = l.Amount()
		ids = l.IDs
	}

	if _, err := k.DropNode(bucket); err != nil {
		return Value{}, err
	}
	// Non-fungible burn also retires the per-id data substates.
	for _, id := range ids.IDs() {
		if err := k.substateWriteDelete(receiver, PartitionMainMap, MapKey(id.EncodeBytes())); err != nil {
			return Value{}, err
		}
	}
	if err := updateResourceManagerState(k, receiver, func(s *ResourceManagerSubstate) error {
		burned, err := s.TotalBurned.Add(amount)
		if err != nil {
			return err
		}
		s.TotalBurned = burned
		return nil
	}); err != nil {
		return Value{}, err
	}
	if err := k.EmitEvent("BurnResourceEvent", VTuple(VAddress(receiver), VDecimal(amount))); err != nil {
		return Value{}, err
	}
	return VTuple(), nil
}

func resourceCreateEmptyBucket(k *Kernel, receiver NodeID, _ Value) (Value, error) {
	state, err := readResourceManagerState(k, receiver)
	if err != nil {
		return Value{}, err
	}
	var bucket NodeID
	if state.Fungible {
		bucket, err = newFungibleBucketNode(k, receiver, LiquidFungible{})
	} else {
		bucket, err = newNonFungibleBucketNode(k, receiver, LiquidNonFungible{})
	}
	if err != nil {
		return Value{}, err
	}
	return VOwn(bucket), nil
}

func resourceCreateEmptyVault(k *Kernel, receiver NodeID, _ Value) (Value, error) {
	state, err := readResourceManagerState(k, receiver)
	if err != nil {
		return Value{}, err
	}
	vault, err := newVaultNode(k, receiver, state.Fungible)
	if err != nil {
		return Value{}, err
	}
	return VOwn(vault), nil
}

func resourceGetTotalSupply(k *Kernel, receiver NodeID, _ Value) (Value, error) {
	state, err := readResourceManagerState(k, receiver)
	if err != nil {
		return Value{}, err
	}
	return VDecimal(state.TotalSupply()), nil
}

func resourceGetDivisibility(k *Kernel, receiver NodeID, _ Value) (Value, error) {
	state, err := readResourceManagerState(k, receiver)
	if err != nil {
		return Value{}, err
	}
	return VU8(state.Divisibility), nil
}

func resourceFreeze(k *Kernel, receiver NodeID, _ Value) (Value, error) {
	err := updateResourceManagerState(k, receiver, func(s *ResourceManagerSubstate) error {
		s.Frozen = true
		return nil
	})
	if err != nil {
		return Value{}, err
	}
	if err := k.EmitEvent("FreezeResourceEvent", VAddress(receiver)); err != nil {
		return Value{}, err
	}
	return VTuple(), nil
}

func resourceUnfreeze(k *Kernel, receiver NodeID, _ Value) (Value, error) {
	err := updateResourceManagerState(k, receiver, func(s *ResourceManagerSubstate) error {
		s.Frozen = false
		return nil
	})
	if err != nil {
		return Value{}, err
	}
	if err := k.EmitEvent("UnfreezeResourceEvent", VAddress(receiver)); err != nil {
		return Value{}, err
	}
	return VTuple(), nil
}

// -----------------------------------------------------------------------------
// Non-fungible resource manager natives
// -----------------------------------------------------------------------------

// nonFungibleResourceCreate: (id_kind, metadata, roles, initial_entries)
// -> (address, bucket?).
func nonFungibleResourceCreate(k *Kernel, _ NodeID, input Value) (Value, error) {
	fields, err := input.AsTuple()
	if err != nil || len(fields) != 4 {
		return Value{}, errDecode("create expects (id_kind, metadata, roles, initial_entries)")
	}
	idKind, err := fields[0].AsU8()
	if err != nil {
		return Value{}, err
	}
	metadata, err := stringMapFromValue(fields[1])
	if err != nil {
		return Value{}, err
	}
	roles, err := resourceRolesFromValue(fields[2])
	if err != nil {
		return Value{}, err
	}
	resource, err := createResourceManagerNode(k, NodeID{}, false, 0, NFIDKind(idKind), metadata, roles)
	if err != nil {
		return Value{}, err
	}
	if fields[3].Kind != ValueKindMap {
		return Value{}, errDecode("initial entries must be a map")
	}
	if len(fields[3].Entries) == 0 {
		return VTuple(VAddress(resource), VEnum(0)), nil
	}
	bucket, err := mintNonFungibles(k, resource, fields[3].Entries)
	if err != nil {
		return Value{}, err
	}
	return VTuple(VAddress(resource), VEnum(1, VOwn(bucket))), nil
}

func mintNonFungibles(k *Kernel, resource NodeID, entries []MapEntry) (NodeID, error) {
	var minted LiquidNonFungible
	for _, e := range entries {
		id, err := e.Key.AsNFID()
		if err != nil {
			return NodeID{}, err
		}
		dataKey := MapKey(id.EncodeBytes())
		if existing, err := k.substateRead(resource, PartitionMainMap, dataKey); err == nil && existing != nil {
			return NodeID{}, errResource("non-fungible %s already minted", id)
		}
		payload, err := EncodePayload(e.Value)
		if err != nil {
			return NodeID{}, err
		}
		if err := k.substateWrite(resource, PartitionMainMap, dataKey, payload); err != nil {
			return NodeID{}, err
		}
		minted.IDs.Insert(id)
	}
	if err := updateResourceManagerState(k, resource, func(s *ResourceManagerSubstate) error {
		total, err := s.TotalMinted.Add(minted.Amount())
		if err != nil {
			return err
		}
		s.TotalMinted = total
		return nil
	}); err != nil {
		return NodeID{}, err
	}
	bucket, err := newNonFungibleBucketNode(k, resource, minted)
	if err != nil {
		return NodeID{}, err
	}
	if err := k.EmitEvent("MintNonFungibleResourceEvent", VTuple(VAddress(resource), VDecimal(minted.Amount()))); err != nil {
		return NodeID{}, err
	}
	return bucket, nil
}

// nonFungibleResourceMint: (entries map<id, data>) -> bucket.
func nonFungibleResourceMint(k *Kernel, receiver NodeID, input Value) (Value, error) {
	fields, err := input.AsTuple()
	if err != nil || len(fields) != 1 || fields[0].Kind != ValueKindMap {
		return Value{}, errDecode("mint expects (entries)")
	}
	if len(fields[0].Entries) == 0 {
		return Value{}, errResource("mint of zero non-fungibles")
	}
	bucket, err := mintNonFungibles(k, receiver, fields[0].Entries)
	if err != nil {
		return Value{}, err
	}
	return VOwn(bucket), nil
}

// nonFungibleResourceUpdateData: (id, data) -> ().
func nonFungibleResourceUpdateData(k *Kernel, receiver NodeID, input Value) (Value, error) {
	fields, err := input.AsTuple()
	if err != nil || len(fields) != 2 {
		return Value{}, errDecode("update_non_fungible_data expects (id, data)")
	}
	id, err := fields[0].AsNFID()
	if err != nil {
		return Value{}, err
	}
	dataKey := MapKey(id.EncodeBytes())
	if _, err := k.substateRead(receiver, PartitionMainMap, dataKey); err != nil {
		return Value{}, errResource("non-fungible %s does not exist", id)
	}
	payload, err := EncodePayload(fields[1])
	if err != nil {
		return Value{}, err
	}
	if err := k.substateWrite(receiver, PartitionMainMap, dataKey, payload); err != nil {
		return Value{}, err
	}
	return VTuple(), nil
}

func nonFungibleResourceGetData(k *Kernel, receiver NodeID, input Value) (Value, error) {
	fields, err := input.AsTuple()
	if err != nil || len(fields) != 1 {
		return Value{}, errDecode("get_non_fungible expects (id)")
	}
	id, err := fields[0].AsNFID()
	if err != nil {
		return Value{}, err
	}
	payload, err := k.substateRead(receiver, PartitionMainMap, MapKey(id.EncodeBytes()))
	if err != nil {
		return Value{}, errResource("non-fungible %s does not exist", id)
	}
	return DecodePayload(payload)
}

func nonFungibleResourceExists(k *Kernel, receiver NodeID, input Value) (Value, error) {
	fields, err := input.AsTuple()
	if err != nil || len(fields) != 1 {
		return Value{}, errDecode("non_fungible_exists expects (id)")
	}
	id, err := fields[0].AsNFID()
	if err != nil {
		return Value{}, err
	}
	_, err = k.substateRead(receiver, PartitionMainMap, MapKey(id.EncodeBytes()))
	return VBool(err == nil), nil
}

// stringMapFromValue decodes a Map<String, String>.
func stringMapFromValue(v Value) (map[string]string, error) {
	if v.Kind != ValueKindMap {
		return nil, errDecode("expected Map, got %s", v.Kind)
	}
	out := make(map[string]string, len(v.Entries))
	for _, e := range v.Entries {
		key, err := e.Key.AsString()
		if err != nil {
			return nil, err
		}
		val, err := e.Value.AsString()
		if err != nil {
			return nil, err
		}
		out[key] = val
	}
	return out, nil
}
