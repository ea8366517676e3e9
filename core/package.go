package core

// Package blueprint: publication of user WASM code. A package stores the
// validated code blob, the schema, per-blueprint definitions (function
// auth and royalties) and a royalty vault created at publish time. The
// publisher receives an owner badge gating royalty claims and upgrades of
// the role assignments.

import "sort"

// PackageCodeSubstate is field 0 of a package's main partition.
type PackageCodeSubstate struct {
	CodeHash Hash
	Code     []byte
	// FuelCosts carries the statically computed per-function instruction
	// cost from validation time, charged at invocation entry.
	FuelCosts map[string]uint64
}

func (s PackageCodeSubstate) toValue() Value {
	fns := make([]string, 0, len(s.FuelCosts))
	for fn := range s.FuelCosts {
		fns = append(fns, fn)
	}
	sort.Strings(fns)
	entries := make([]MapEntry, 0, len(fns))
	for _, fn := range fns {
		entries = append(entries, MapEntry{Key: VString(fn), Value: VU64(s.FuelCosts[fn])})
	}
	return VTuple(
		VBytes(s.CodeHash[:]),
		VBytes(s.Code),
		VMap(ValueKindString, ValueKindU64, entries...),
	)
}

func packageCodeFromValue(v Value) (PackageCodeSubstate, error) {
	fields, err := v.AsTuple()
	if err != nil || len(fields) != 3 {
		return PackageCodeSubstate{}, errDecode("package code expects 3 fields")
	}
	var out PackageCodeSubstate
	hashBytes, err := fields[0].AsBytes()
	if err != nil || len(hashBytes) != 32 {
		return PackageCodeSubstate{}, errDecode("package code hash malformed")
	}
	copy(out.CodeHash[:], hashBytes)
	if out.Code, err = fields[1].AsBytes(); err != nil {
		return PackageCodeSubstate{}, err
	}
	if fields[2].Kind != ValueKindMap {
		return PackageCodeSubstate{}, errDecode("fuel costs must be a map")
	}
	out.FuelCosts = make(map[string]uint64, len(fields[2].Entries))
	for _, e := range fields[2].Entries {
		fn, err := e.Key.AsString()
		if err != nil {
			return PackageCodeSubstate{}, err
		}
		cost, err := e.Value.AsU64()
		if err != nil {
			return PackageCodeSubstate{}, err
		}
		out.FuelCosts[fn] = cost
	}
	return out, nil
}

// BlueprintDefinition is the per-blueprint entry in a package's definition
// partition.
type BlueprintDefinition struct {
	Name         string
	FunctionAuth map[string]AccessRule // absent function -> public
	Royalties    map[string]Decimal    // per-method royalty charge
}

func (d BlueprintDefinition) toValue() Value {
	authFns := make([]string, 0, len(d.FunctionAuth))
	for fn := range d.FunctionAuth {
		authFns = append(authFns, fn)
	}
	sort.Strings(authFns)
	authEntries := make([]MapEntry, 0, len(authFns))
	for _, fn := range authFns {
		authEntries = append(authEntries, MapEntry{Key: VString(fn), Value: d.FunctionAuth[fn].toValue()})
	}
	royFns := make([]string, 0, len(d.Royalties))
	for fn := range d.Royalties {
		royFns = append(royFns, fn)
	}
	sort.Strings(royFns)
	royEntries := make([]MapEntry, 0, len(royFns))
	for _, fn := range royFns {
		royEntries = append(royEntries, MapEntry{Key: VString(fn), Value: VDecimal(d.Royalties[fn])})
	}
	return VTuple(
		VString(d.Name),
		VMap(ValueKindString, ValueKindEnum, authEntries...),
		VMap(ValueKindString, ValueKindDecimal, royEntries...),
	)
}

func blueprintDefinitionFromValue(v Value) (BlueprintDefinition, error) {
	fields, err := v.AsTuple()
	if err != nil || len(fields) != 3 {
		return BlueprintDefinition{}, errDecode("blueprint definition expects 3 fields")
	}
	var out BlueprintDefinition
	if out.Name, err = fields[0].AsString(); err != nil {
		return BlueprintDefinition{}, err
	}
	out.FunctionAuth = map[string]AccessRule{}
	for _, e := range fields[1].Entries {
		fn, err := e.Key.AsString()
		if err != nil {
			return BlueprintDefinition{}, err
		}
		rule, err := accessRuleFromValue(e.Value)
		if err != nil {
			return BlueprintDefinition{}, err
		}
		out.FunctionAuth[fn] = rule
	}
	out.Royalties = map[string]Decimal{}
	for _, e := range fields[2].Entries {
		fn, err := e.Key.AsString()
		if err != nil {
			return BlueprintDefinition{}, err
		}
		amount, err := e.Value.AsDecimal()
		if err != nil {
			return BlueprintDefinition{}, err
		}
		out.Royalties[fn] = amount
	}
	return out, nil
}

func init() {
	registerNative(PackagePackage, BlueprintPackage, "publish_wasm", packagePublishWASM)
	registerNative(PackagePackage, BlueprintPackage, "claim_royalty", packageClaimRoyalty)
	registerNative(PackagePackage, BlueprintPackage, "get_code_hash", packageGetCodeHash)

	registerMethodAuth(BlueprintPackage, "claim_royalty", ownerAuth())
}

// packagePublishWASM: (code, blueprint_definitions, metadata) ->
// (package_address, owner_badge_bucket). The module is validated before
// admission and its static fuel costs recorded with the code.
func packagePublishWASM(k *Kernel, _ NodeID, input Value) (Value, error) {
	fields, err := input.AsTuple()
	if err != nil || len(fields) != 3 {
		return Value{}, errDecode("publish_wasm expects (code, blueprints, metadata)")
	}
	code, err := fields[0].AsBytes()
	if err != nil {
		return Value{}, err
	}
	if fields[1].Kind != ValueKindArray {
		return Value{}, errDecode("blueprints must be an array")
	}
	metadata, err := stringMapFromValue(fields[2])
	if err != nil {
		return Value{}, err
	}

	fuelCosts, err := ValidateWASMModule(code)
	if err != nil {
		return Value{}, err
	}

	pkg, err := k.AllocateNodeID(EntityTypeGlobalPackage)
	if err != nil {
		return Value{}, err
	}

	// Owner badge, bound to the package address.
	badgeID, err := BytesLocalID(pkg[1:])
	if err != nil {
		return Value{}, err
	}
	badgeBucket, err := mintNonFungibles(k, ResourcePackageOwnerBadge, []MapEntry{
		{Key: VNFID(badgeID), Value: VTuple(VAddress(pkg))},
	})
	if err != nil {
		return Value{}, err
	}
	badgeBucketVal := VOwn(badgeBucket)
	ownerRule := RequireNonFungible(NonFungibleGlobalID{Resource: ResourcePackageOwnerBadge, LocalID: badgeID})

	// Royalty vault for accumulated method royalties.
	royaltyVaultVal, err := k.CallMethod(ResourceMRD, "create_empty_vault", VTuple())
	if err != nil {
		return Value{}, err
	}
	royaltyVault, err := royaltyVaultVal.AsOwn()
	if err != nil {
		return Value{}, err
	}

	codeSub := PackageCodeSubstate{CodeHash: HashOf(code), Code: code, FuelCosts: fuelCosts}
	mainMap := make([]SubstateEntry, 0, len(fields[1].Elements))
	for _, bpVal := range fields[1].Elements {
		def, err := blueprintDefinitionFromValue(bpVal)
		if err != nil {
			return Value{}, err
		}
		mainMap = append(mainMap, SubstateEntry{
			Key:   MapKey([]byte(def.Name)),
			Value: MustEncodePayload(def.toValue()),
		})
	}

	err = k.CreateNode(pkg, map[PartitionNumber][]SubstateEntry{
		PartitionTypeInfo: {{Key: FieldKey(0), Value: TypeInfoSubstate{
			Package: PackagePackage, Blueprint: BlueprintPackage, Global: true,
		}.encode()}},
		PartitionMetadata: metadataPartitionEntries(metadata),
		PartitionRoleAssignment: {
			{Key: ownerRuleKey(), Value: encodeAccessRule(ownerRule)},
			{Key: roleAssignmentKey(RoleClaimRoyalty), Value: encodeAccessRule(ownerRule)},
		},
		PartitionMain: {
			{Key: FieldKey(0), Value: MustEncodePayload(codeSub.toValue())},
			{Key: FieldKey(1), Value: MustEncodePayload(VOwn(royaltyVault))},
		},
		PartitionMainMap: mainMap,
	})
	if err != nil {
		return Value{}, err
	}
	if err := k.Globalize(pkg); err != nil {
		return Value{}, err
	}
	if err := k.EmitEvent("PackagePublishedEvent", VTuple(VAddress(pkg), VBytes(codeSub.CodeHash[:]))); err != nil {
		return Value{}, err
	}
	return VTuple(VAddress(pkg), badgeBucketVal), nil
}

// packageClaimRoyalty: () -> bucket with the accumulated royalties.
func packageClaimRoyalty(k *Kernel, receiver NodeID, _ Value) (Value, error) {
	payload, err := k.substateRead(receiver, PartitionMain, FieldKey(1))
	if err != nil {
		return Value{}, err
	}
	v, err := DecodePayload(payload)
	if err != nil {
		return Value{}, err
	}
	vault, err := v.AsOwn()
	if err != nil {
		return Value{}, err
	}
	amountVal, err := k.CallMethod(vault, "get_amount", VTuple())
	if err != nil {
		return Value{}, err
	}
	return k.CallMethod(vault, "take", VTuple(amountVal))
}

func packageGetCodeHash(k *Kernel, receiver NodeID, _ Value) (Value, error) {
	payload, err := k.substateRead(receiver, PartitionMain, FieldKey(0))
	if err != nil {
		return Value{}, err
	}
	v, err := DecodePayload(payload)
	if err != nil {
		return Value{}, err
	}
	sub, err := packageCodeFromValue(v)
	if err != nil {
		return Value{}, err
	}
	return VBytes(sub.CodeHash[:]), nil
}

// readPackageCode loads a package's code substate for the WASM host.
func readPackageCode(k *Kernel, pkg NodeID) (PackageCodeSubstate, error) {
	payload, err := k.substateRead(pkg, PartitionMain, FieldKey(0))
	if err != nil {
		return PackageCodeSubstate{}, errKernel("package %s has no code", pkg)
	}
	v, err := DecodePayload(payload)
	if err != nil {
		return PackageCodeSubstate{}, err
	}
	return packageCodeFromValue(v)
}

// readBlueprintDefinition loads one blueprint's definition.
func readBlueprintDefinition(k *Kernel, pkg NodeID, blueprint string) (BlueprintDefinition, error) {
	payload, err := k.substateRead(pkg, PartitionMainMap, MapKey([]byte(blueprint)))
	if err != nil {
		return BlueprintDefinition{}, errKernel("package %s has no blueprint %q", pkg, blueprint)
	}
	v, err := DecodePayload(payload)
	if err != nil {
		return BlueprintDefinition{}, err
	}
	return blueprintDefinitionFromValue(v)
}
