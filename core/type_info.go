package core

// Type info: the substate every node carries in partition 0, binding it to
// the blueprint that governs it. Well-known native package and resource
// addresses are derived deterministically so that every engine instance
// agrees on them without a registry.

// Native blueprint names.
const (
	BlueprintFungibleResourceManager    = "FungibleResourceManager"
	BlueprintNonFungibleResourceManager = "NonFungibleResourceManager"
	BlueprintFungibleVault              = "FungibleVault"
	BlueprintNonFungibleVault           = "NonFungibleVault"
	BlueprintFungibleBucket             = "FungibleBucket"
	BlueprintNonFungibleBucket          = "NonFungibleBucket"
	BlueprintProof                      = "Proof"
	BlueprintWorktop                    = "Worktop"
	BlueprintAuthZone                   = "AuthZone"
	BlueprintAccount                    = "Account"
	BlueprintPackage                    = "Package"
	BlueprintConsensusManager           = "ConsensusManager"
	BlueprintClock                      = "Clock"
	BlueprintTransactionRuntime         = "TransactionRuntime"
)

// wellKnownAddress derives a stable address for a built-in entity.
func wellKnownAddress(t EntityType, name string) NodeID {
	return NodeIDFromHash(t, HashOf([]byte("meridian/native/"+name)))
}

// Well-known native addresses.
var (
	PackageResource    = wellKnownAddress(EntityTypeGlobalPackage, "package/resource")
	PackagePackage     = wellKnownAddress(EntityTypeGlobalPackage, "package/package")
	PackageAccount     = wellKnownAddress(EntityTypeGlobalPackage, "package/account")
	PackageConsensus   = wellKnownAddress(EntityTypeGlobalPackage, "package/consensus")
	PackageClock       = wellKnownAddress(EntityTypeGlobalPackage, "package/clock")
	PackageTransaction = wellKnownAddress(EntityTypeGlobalPackage, "package/transaction")

	// ResourceMRD is the native fee and staking resource.
	ResourceMRD = wellKnownAddress(EntityTypeGlobalFungibleResource, "resource/mrd")
	// ResourceSignatureBadge backs the virtualized signer proofs seeded
	// into the transaction auth zone.
	ResourceSignatureBadge = wellKnownAddress(EntityTypeGlobalNonFungibleResource, "resource/signature_badge")
	// ResourcePackageOwnerBadge is minted at package publication.
	ResourcePackageOwnerBadge = wellKnownAddress(EntityTypeGlobalNonFungibleResource, "resource/package_owner_badge")

	// ConsensusManagerAddress and ClockAddress are the singleton system
	// components.
	ConsensusManagerAddress = wellKnownAddress(EntityTypeGlobalConsensusManager, "component/consensus_manager")
	ClockAddress            = wellKnownAddress(EntityTypeGlobalClock, "component/clock")
)

// SignatureBadgeID derives the virtual badge presented for a signer key.
// The payload matches the body of the key's virtual account id, so the
// badge of a signer is exactly the owner badge of their account.
func SignatureBadgeID(publicKey []byte) NonFungibleGlobalID {
	h := HashOf(publicKey)
	id, _ := BytesLocalID(h[:NodeIDLength-1])
	return NonFungibleGlobalID{Resource: ResourceSignatureBadge, LocalID: id}
}

// VirtualAccountBadgeID derives the owner badge of a virtual account from
// the account address itself (whose body already is the key hash).
func VirtualAccountBadgeID(account NodeID) NonFungibleGlobalID {
	id, _ := BytesLocalID(account[1:])
	return NonFungibleGlobalID{Resource: ResourceSignatureBadge, LocalID: id}
}

// TypeInfoSubstate binds a node to its governing blueprint. Outer carries
// the resource address for resource containers (vaults, buckets, proofs).
type TypeInfoSubstate struct {
	Package   NodeID
	Blueprint string
	Global    bool
	Outer     NodeID
}

func (s TypeInfoSubstate) toValue() Value {
	return VTuple(
		VAddress(s.Package),
		VString(s.Blueprint),
		VBool(s.Global),
		VAddress(s.Outer),
	)
}

func typeInfoFromValue(v Value) (TypeInfoSubstate, error) {
	fields, err := v.AsTuple()
	if err != nil {
		return TypeInfoSubstate{}, err
	}
	if len(fields) != 4 {
		return TypeInfoSubstate{}, errDecode("type info expects 4 fields, got %d", len(fields))
	}
	pkg, err := fields[0].AsAddress()
	if err != nil {
		return TypeInfoSubstate{}, err
	}
	bp, err := fields[1].AsString()
	if err != nil {
		return TypeInfoSubstate{}, err
	}
	global, err := fields[2].AsBool()
	if err != nil {
		return TypeInfoSubstate{}, err
	}
	outer, err := fields[3].AsAddress()
	if err != nil {
		return TypeInfoSubstate{}, err
	}
	return TypeInfoSubstate{Package: pkg, Blueprint: bp, Global: global, Outer: outer}, nil
}

func (s TypeInfoSubstate) encode() []byte { return MustEncodePayload(s.toValue()) }

func decodeTypeInfo(b []byte) (TypeInfoSubstate, error) {
	v, err := DecodePayload(b)
	if err != nil {
		return TypeInfoSubstate{}, err
	}
	return typeInfoFromValue(v)
}

// Role names used by the native blueprints.
const (
	RoleMint                  = "mint"
	RoleBurn                  = "burn"
	RoleWithdraw              = "withdraw"
	RoleDeposit               = "deposit"
	RoleRecall                = "recall"
	RoleFreeze                = "freeze"
	RoleUpdateMetadata        = "update_metadata"
	RoleUpdateNonFungibleData = "update_non_fungible_data"
	RoleValidator             = "validator"
	RoleClaimRoyalty          = "claim_royalty"
	RoleSetEpoch              = "set_epoch"
	RoleSetTime               = "set_time"
)

// roleAssignmentKey addresses one role rule in the role partition.
func roleAssignmentKey(role string) SubstateKey { return MapKey([]byte(role)) }

// ownerRuleKey addresses the owner rule field.
func ownerRuleKey() SubstateKey { return FieldKey(0) }

// encodeAccessRule / decodeAccessRule are the role partition payload codec.
func encodeAccessRule(r AccessRule) []byte { return MustEncodePayload(r.toValue()) }

func decodeAccessRule(b []byte) (AccessRule, error) {
	v, err := DecodePayload(b)
	if err != nil {
		return AccessRule{}, err
	}
	return accessRuleFromValue(v)
}
