package core

// Attached modules: metadata, role assignment and component royalties.
// They live in reserved partitions of every globalized node and are
// reachable as methods on any global receiver regardless of its blueprint,
// which is why they register through the module table rather than a
// package's function table.

func init() {
	registerModuleMethod("metadata_set", ownerAuth(), metadataSet)
	registerModuleMethod("metadata_get", methodAuth{kind: methodAuthPublic}, metadataGet)
	registerModuleMethod("metadata_remove", ownerAuth(), metadataRemove)

	registerModuleMethod("role_assignment_set_rule", ownerAuth(), roleAssignmentSetRule)
	registerModuleMethod("role_assignment_set_owner", ownerAuth(), roleAssignmentSetOwner)
	registerModuleMethod("role_assignment_get_rule", methodAuth{kind: methodAuthPublic}, roleAssignmentGetRule)

	registerModuleMethod("royalty_set_config", ownerAuth(), royaltySetConfig)
	registerModuleMethod("royalty_claim", roleAuth(RoleClaimRoyalty), royaltyClaim)
}

// MetadataValue payloads are stored as bare values; strings are the
// common case but any value kind is accepted.

// metadataSet: (key, value) -> ().
func metadataSet(k *Kernel, receiver NodeID, input Value) (Value, error) {
	fields, err := input.AsTuple()
	if err != nil || len(fields) != 2 {
		return Value{}, errDecode("metadata_set expects (key, value)")
	}
	key, err := fields[0].AsString()
	if err != nil {
		return Value{}, err
	}
	payload, err := EncodePayload(fields[1])
	if err != nil {
		return Value{}, err
	}
	if err := k.substateWrite(receiver, PartitionMetadata, MapKey([]byte(key)), payload); err != nil {
		return Value{}, err
	}
	if err := k.EmitEvent("SetMetadataEvent", VTuple(VAddress(receiver), VString(key))); err != nil {
		return Value{}, err
	}
	return VTuple(), nil
}

// metadataGet: (key) -> value (enum None/Some).
func metadataGet(k *Kernel, receiver NodeID, input Value) (Value, error) {
	fields, err := input.AsTuple()
	if err != nil || len(fields) != 1 {
		return Value{}, errDecode("metadata_get expects (key)")
	}
	key, err := fields[0].AsString()
	if err != nil {
		return Value{}, err
	}
	payload, err := k.substateRead(receiver, PartitionMetadata, MapKey([]byte(key)))
	if err == ErrSubstateNotFound {
		return VEnum(0), nil
	}
	if err != nil {
		return Value{}, err
	}
	v, err := DecodePayload(payload)
	if err != nil {
		return Value{}, err
	}
	return VEnum(1, v), nil
}

// metadataRemove: (key) -> ().
func metadataRemove(k *Kernel, receiver NodeID, input Value) (Value, error) {
	fields, err := input.AsTuple()
	if err != nil || len(fields) != 1 {
		return Value{}, errDecode("metadata_remove expects (key)")
	}
	key, err := fields[0].AsString()
	if err != nil {
		return Value{}, err
	}
	if err := k.substateWriteDelete(receiver, PartitionMetadata, MapKey([]byte(key))); err != nil {
		return Value{}, err
	}
	return VTuple(), nil
}

// roleAssignmentSetRule: (role, rule) -> ().
func roleAssignmentSetRule(k *Kernel, receiver NodeID, input Value) (Value, error) {
	fields, err := input.AsTuple()
	if err != nil || len(fields) != 2 {
		return Value{}, errDecode("role_assignment_set_rule expects (role, rule)")
	}
	role, err := fields[0].AsString()
	if err != nil {
		return Value{}, err
	}
	rule, err := accessRuleFromValue(fields[1])
	if err != nil {
		return Value{}, err
	}
	if err := k.substateWrite(receiver, PartitionRoleAssignment, roleAssignmentKey(role), encodeAccessRule(rule)); err != nil {
		return Value{}, err
	}
	if err := k.EmitEvent("SetRoleEvent", VTuple(VAddress(receiver), VString(role))); err != nil {
		return Value{}, err
	}
	return VTuple(), nil
}

// roleAssignmentSetOwner: (rule) -> ().
func roleAssignmentSetOwner(k *Kernel, receiver NodeID, input Value) (Value, error) {
	fields, err := input.AsTuple()
	if err != nil || len(fields) != 1 {
		return Value{}, errDecode("role_assignment_set_owner expects (rule)")
	}
	rule, err := accessRuleFromValue(fields[0])
	if err != nil {
		return Value{}, err
	}
	if err := k.substateWrite(receiver, PartitionRoleAssignment, ownerRuleKey(), encodeAccessRule(rule)); err != nil {
		return Value{}, err
	}
	return VTuple(), nil
}

// roleAssignmentGetRule: (role) -> rule enum.
func roleAssignmentGetRule(k *Kernel, receiver NodeID, input Value) (Value, error) {
	fields, err := input.AsTuple()
	if err != nil || len(fields) != 1 {
		return Value{}, errDecode("role_assignment_get_rule expects (role)")
	}
	role, err := fields[0].AsString()
	if err != nil {
		return Value{}, err
	}
	payload, err := k.substateRead(receiver, PartitionRoleAssignment, roleAssignmentKey(role))
	if err == ErrSubstateNotFound {
		return VEnum(0), nil
	}
	if err != nil {
		return Value{}, err
	}
	v, err := DecodePayload(payload)
	if err != nil {
		return Value{}, err
	}
	return VEnum(1, v), nil
}

// ComponentRoyaltySubstate is stored in the royalty partition of a
// component: per-method charges plus the accumulating vault.
type ComponentRoyaltySubstate struct {
	Charges map[string]Decimal
	Vault   NodeID
}

func (s ComponentRoyaltySubstate) toValue() Value {
	entries := make([]MapEntry, 0, len(s.Charges))
	for fn, amount := range s.Charges {
		entries = append(entries, MapEntry{Key: VString(fn), Value: VDecimal(amount)})
	}
	return VTuple(VMap(ValueKindString, ValueKindDecimal, entries...), VOwn(s.Vault))
}

func componentRoyaltyFromValue(v Value) (ComponentRoyaltySubstate, error) {
	fields, err := v.AsTuple()
	if err != nil || len(fields) != 2 {
		return ComponentRoyaltySubstate{}, errDecode("royalty substate expects 2 fields")
	}
	out := ComponentRoyaltySubstate{Charges: map[string]Decimal{}}
	for _, e := range fields[0].Entries {
		fn, err := e.Key.AsString()
		if err != nil {
			return ComponentRoyaltySubstate{}, err
		}
		amount, err := e.Value.AsDecimal()
		if err != nil {
			return ComponentRoyaltySubstate{}, err
		}
		out.Charges[fn] = amount
	}
	if out.Vault, err = fields[1].AsOwn(); err != nil {
		return ComponentRoyaltySubstate{}, err
	}
	return out, nil
}

// royaltySetConfig: (charges map) -> (). Creates the royalty vault on
// first configuration.
func royaltySetConfig(k *Kernel, receiver NodeID, input Value) (Value, error) {
	fields, err := input.AsTuple()
	if err != nil || len(fields) != 1 || fields[0].Kind != ValueKindMap {
		return Value{}, errDecode("royalty_set_config expects (charges)")
	}
	charges := map[string]Decimal{}
	for _, e := range fields[0].Entries {
		fn, err := e.Key.AsString()
		if err != nil {
			return Value{}, err
		}
		amount, err := e.Value.AsDecimal()
		if err != nil {
			return Value{}, err
		}
		charges[fn] = amount
	}
	existing, err := k.substateRead(receiver, PartitionRoyalty, FieldKey(0))
	if err != nil && err != ErrSubstateNotFound {
		return Value{}, err
	}
	var sub ComponentRoyaltySubstate
	if existing != nil {
		v, err := DecodePayload(existing)
		if err != nil {
			return Value{}, err
		}
		if sub, err = componentRoyaltyFromValue(v); err != nil {
			return Value{}, err
		}
		sub.Charges = charges
	} else {
		vaultVal, err := k.CallMethod(ResourceMRD, "create_empty_vault", VTuple())
		if err != nil {
			return Value{}, err
		}
		vault, err := vaultVal.AsOwn()
		if err != nil {
			return Value{}, err
		}
		sub = ComponentRoyaltySubstate{Charges: charges, Vault: vault}
	}
	if err := k.substateWrite(receiver, PartitionRoyalty, FieldKey(0), MustEncodePayload(sub.toValue())); err != nil {
		return Value{}, err
	}
	return VTuple(), nil
}

// royaltyClaim: () -> bucket of accumulated royalties.
func royaltyClaim(k *Kernel, receiver NodeID, _ Value) (Value, error) {
	payload, err := k.substateRead(receiver, PartitionRoyalty, FieldKey(0))
	if err != nil {
		return Value{}, err
	}
	v, err := DecodePayload(payload)
	if err != nil {
		return Value{}, err
	}
	sub, err := componentRoyaltyFromValue(v)
	if err != nil {
		return Value{}, err
	}
	amountVal, err := k.CallMethod(sub.Vault, "get_amount", VTuple())
	if err != nil {
		return Value{}, err
	}
	return k.CallMethod(sub.Vault, "take", VTuple(amountVal))
}

// applyMethodRoyalty charges the configured royalty for an invocation, if
// any, crediting the component's royalty vault through the fee reserve.
func applyMethodRoyalty(k *Kernel, receiver NodeID, fn string) error {
	if receiver.IsZero() || !receiver.IsGlobal() {
		return nil
	}
	payload, ok := k.track.Read(receiver, PartitionRoyalty, FieldKey(0))
	if !ok {
		return nil
	}
	v, decodeErr := DecodePayload(payload)
	if decodeErr != nil {
		return decodeErr
	}
	sub, decodeErr := componentRoyaltyFromValue(v)
	if decodeErr != nil {
		return decodeErr
	}
	charge, ok := sub.Charges[fn]
	if !ok || charge.IsZero() {
		return nil
	}
	return k.fees.AddRoyalty(sub.Vault, charge)
}
