package core

// Manifest instructions: the ordered program a transaction executes. The
// text parser and decompiler live outside the engine; these structs are
// the engine-facing form, with a canonical value encoding used for intent
// hashing.

// InstructionKind discriminates manifest instructions.
type InstructionKind uint8

const (
	InsTakeAllFromWorktop InstructionKind = iota
	InsTakeFromWorktop
	InsTakeNonFungiblesFromWorktop
	InsReturnToWorktop
	InsAssertWorktopContainsAny
	InsAssertWorktopContains
	InsAssertWorktopContainsNonFungibles
	InsPopFromAuthZone
	InsPushToAuthZone
	InsDropAuthZoneProofs
	InsCreateProofFromAuthZoneOfAmount
	InsCreateProofFromAuthZoneOfNonFungibles
	InsCreateProofFromAuthZoneOfAll
	InsCreateProofFromBucketOfAmount
	InsCreateProofFromBucketOfNonFungibles
	InsCreateProofFromBucketOfAll
	InsCloneProof
	InsDropProof
	InsDropAllProofs
	InsBurnResource
	InsCallFunction
	InsCallMethod
	InsCallDirectVaultMethod
	InsAllocateGlobalAddress
)

// ManifestExpression marks an argument reified at interpretation time.
type ManifestExpression uint8

const (
	ExprNone ManifestExpression = iota
	ExprEntireWorktop
	ExprEntireAuthZone
)

// ManifestArg is one argument of a call instruction: a literal value or a
// manifest-local binding resolved from the object cache.
type ManifestArg struct {
	Literal      *Value
	Bucket       *uint32
	Proof        *uint32
	NamedAddress *uint32
	Blob         *Hash
	Expression   ManifestExpression
}

func ArgLiteral(v Value) ManifestArg                 { return ManifestArg{Literal: &v} }
func ArgBucket(n uint32) ManifestArg                 { return ManifestArg{Bucket: &n} }
func ArgProof(n uint32) ManifestArg                  { return ManifestArg{Proof: &n} }
func ArgAddress(n uint32) ManifestArg                { return ManifestArg{NamedAddress: &n} }
func ArgBlob(h Hash) ManifestArg                     { return ManifestArg{Blob: &h} }
func ArgExpression(e ManifestExpression) ManifestArg { return ManifestArg{Expression: e} }

// Instruction is one manifest step. Operand fields are populated per
// Kind; the builder helpers below keep call sites readable.
type Instruction struct {
	Kind InstructionKind

	Resource NodeID
	Amount   Decimal
	IDs      NonFungibleIDSet

	BucketRef uint32
	ProofRef  uint32

	Package    NodeID
	Blueprint  string
	Function   string
	Address    NodeID
	Vault      NodeID
	EntityKind EntityType
	Args       []ManifestArg
}

// Builders.

func TakeAllFromWorktop(resource NodeID) Instruction {
	return Instruction{Kind: InsTakeAllFromWorktop, Resource: resource}
}

func TakeFromWorktop(resource NodeID, amount Decimal) Instruction {
	return Instruction{Kind: InsTakeFromWorktop, Resource: resource, Amount: amount}
}

func TakeNonFungiblesFromWorktop(resource NodeID, ids NonFungibleIDSet) Instruction {
	return Instruction{Kind: InsTakeNonFungiblesFromWorktop, Resource: resource, IDs: ids}
}

func ReturnToWorktop(bucket uint32) Instruction {
	return Instruction{Kind: InsReturnToWorktop, BucketRef: bucket}
}

func AssertWorktopContainsAny(resource NodeID) Instruction {
	return Instruction{Kind: InsAssertWorktopContainsAny, Resource: resource}
}

func AssertWorktopContains(resource NodeID, amount Decimal) Instruction {
	return Instruction{Kind: InsAssertWorktopContains, Resource: resource, Amount: amount}
}

func AssertWorktopContainsNonFungibles(resource NodeID, ids NonFungibleIDSet) Instruction {
	return Instruction{Kind: InsAssertWorktopContainsNonFungibles, Resource: resource, IDs: ids}
}

func PopFromAuthZone() Instruction { return Instruction{Kind: InsPopFromAuthZone} }

func PushToAuthZone(proof uint32) Instruction {
	return Instruction{Kind: InsPushToAuthZone, ProofRef: proof}
}

func DropAuthZoneProofs() Instruction { return Instruction{Kind: InsDropAuthZoneProofs} }

func CreateProofFromAuthZoneOfAmount(resource NodeID, amount Decimal) Instruction {
	return Instruction{Kind: InsCreateProofFromAuthZoneOfAmount, Resource: resource, Amount: amount}
}

func CreateProofFromAuthZoneOfNonFungibles(resource NodeID, ids NonFungibleIDSet) Instruction {
	return Instruction{Kind: InsCreateProofFromAuthZoneOfNonFungibles, Resource: resource, IDs: ids}
}

func CreateProofFromAuthZoneOfAll(resource NodeID) Instruction {
	return Instruction{Kind: InsCreateProofFromAuthZoneOfAll, Resource: resource}
}

func CreateProofFromBucketOfAmount(bucket uint32, amount Decimal) Instruction {
	return Instruction{Kind: InsCreateProofFromBucketOfAmount, BucketRef: bucket, Amount: amount}
}

func CreateProofFromBucketOfNonFungibles(bucket uint32, ids NonFungibleIDSet) Instruction {
	return Instruction{Kind: InsCreateProofFromBucketOfNonFungibles, BucketRef: bucket, IDs: ids}
}

func CreateProofFromBucketOfAll(bucket uint32) Instruction {
	return Instruction{Kind: InsCreateProofFromBucketOfAll, BucketRef: bucket}
}

func CloneProof(proof uint32) Instruction {
	return Instruction{Kind: InsCloneProof, ProofRef: proof}
}

func DropProof(proof uint32) Instruction {
	return Instruction{Kind: InsDropProof, ProofRef: proof}
}

func DropAllProofs() Instruction { return Instruction{Kind: InsDropAllProofs} }

func BurnResource(bucket uint32) Instruction {
	return Instruction{Kind: InsBurnResource, BucketRef: bucket}
}

func CallFunction(pkg NodeID, blueprint, fn string, args ...ManifestArg) Instruction {
	return Instruction{Kind: InsCallFunction, Package: pkg, Blueprint: blueprint, Function: fn, Args: args}
}

func CallMethod(address NodeID, fn string, args ...ManifestArg) Instruction {
	return Instruction{Kind: InsCallMethod, Address: address, Function: fn, Args: args}
}

func CallDirectVaultMethod(vault NodeID, fn string, args ...ManifestArg) Instruction {
	return Instruction{Kind: InsCallDirectVaultMethod, Vault: vault, Function: fn, Args: args}
}

func AllocateGlobalAddress(kind EntityType) Instruction {
	return Instruction{Kind: InsAllocateGlobalAddress, EntityKind: kind}
}

// toValue renders the canonical form used for intent hashing. It is not a
// wire format: manifests enter the engine as structs.
func (ins Instruction) toValue() Value {
	ids := make([]Value, 0, ins.IDs.Len())
	for _, id := range ins.IDs.IDs() {
		ids = append(ids, VNFID(id))
	}
	args := make([]Value, len(ins.Args))
	for i, a := range ins.Args {
		args[i] = a.toValue()
	}
	return VEnum(uint8(ins.Kind),
		VAddress(ins.Resource),
		VDecimal(ins.Amount),
		VArray(ValueKindNonFungibleLocalID, ids...),
		VU32(ins.BucketRef),
		VU32(ins.ProofRef),
		VAddress(ins.Package),
		VString(ins.Blueprint),
		VString(ins.Function),
		VAddress(ins.Address),
		VAddress(ins.Vault),
		VU8(uint8(ins.EntityKind)),
		VArray(ValueKindEnum, args...),
	)
}

func (a ManifestArg) toValue() Value {
	switch {
	case a.Literal != nil:
		return VEnum(0, *a.Literal)
	case a.Bucket != nil:
		return VEnum(1, VU32(*a.Bucket))
	case a.Proof != nil:
		return VEnum(2, VU32(*a.Proof))
	case a.NamedAddress != nil:
		return VEnum(3, VU32(*a.NamedAddress))
	case a.Blob != nil:
		return VEnum(5, VBytes(a.Blob[:]))
	default:
		return VEnum(4, VU8(uint8(a.Expression)))
	}
}

// HashInstructions computes the manifest part of the intent hash.
func HashInstructions(instructions []Instruction) (Hash, error) {
	elems := make([]Value, len(instructions))
	for i, ins := range instructions {
		elems[i] = ins.toValue()
	}
	payload, err := EncodePayload(VArray(ValueKindEnum, elems...))
	if err != nil {
		return Hash{}, err
	}
	return HashOf(payload), nil
}
