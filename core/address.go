package core

// Node identity and the textual address form.
//
// Every entity in the engine is a node identified by a 30-byte id whose
// first byte encodes the entity class. Global entities additionally carry a
// bech32m textual form with a class-specific human readable part plus the
// network name.

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"golang.org/x/crypto/blake2b"
)

// Hash is the engine-wide 32-byte blake2b-256 digest.
type Hash [32]byte

func (h Hash) Hex() string { return hex.EncodeToString(h[:]) }

// MarshalJSON renders the hex form.
func (h Hash) MarshalJSON() ([]byte, error) { return []byte(`"` + h.Hex() + `"`), nil }

// UnmarshalJSON parses the hex form.
func (h *Hash) UnmarshalJSON(b []byte) error {
	if len(b) != 66 || b[0] != '"' || b[len(b)-1] != '"' {
		return errDecode("hash json must be a 64-char hex string")
	}
	raw, err := hex.DecodeString(string(b[1 : len(b)-1]))
	if err != nil {
		return errDecode("hash json: %v", err)
	}
	copy(h[:], raw)
	return nil
}
func (h Hash) IsZero() bool      { return h == Hash{} }
func (h Hash) Bytes() []byte     { return h[:] }
func (h Hash) String() string    { return h.Hex() }
func (h Hash) Equal(o Hash) bool { return h == o }

// HashOf computes blake2b-256 over the concatenation of the given slices.
func HashOf(parts ...[]byte) Hash {
	d, _ := blake2b.New256(nil)
	for _, p := range parts {
		d.Write(p)
	}
	var out Hash
	copy(out[:], d.Sum(nil))
	return out
}

// NodeIDLength is the byte length of every node id: one entity-type byte
// followed by a 29-byte body.
const NodeIDLength = 30

// EntityType is the class encoded in the first byte of a NodeID.
type EntityType uint8

const (
	EntityTypeGlobalPackage             EntityType = 0x01
	EntityTypeGlobalFungibleResource    EntityType = 0x02
	EntityTypeGlobalNonFungibleResource EntityType = 0x03
	EntityTypeGlobalComponent           EntityType = 0x04
	EntityTypeGlobalAccount             EntityType = 0x05
	EntityTypeGlobalVirtualAccount      EntityType = 0x06
	EntityTypeGlobalConsensusManager    EntityType = 0x07
	EntityTypeGlobalClock               EntityType = 0x08
	EntityTypeGlobalAccessController    EntityType = 0x09

	EntityTypeInternalFungibleVault    EntityType = 0x81
	EntityTypeInternalNonFungibleVault EntityType = 0x82
	EntityTypeInternalKeyValueStore    EntityType = 0x83
	EntityTypeInternalGeneric          EntityType = 0x84

	EntityTypeInternalBucket    EntityType = 0xf1
	EntityTypeInternalProof     EntityType = 0xf2
	EntityTypeInternalWorktop   EntityType = 0xf3
	EntityTypeInternalAuthZone  EntityType = 0xf4
	EntityTypeInternalTxRuntime EntityType = 0xf5
)

// IsGlobal reports whether ids of this class are globally addressable.
func (t EntityType) IsGlobal() bool { return t&0x80 == 0 }

// IsTransient reports whether nodes of this class may never be committed.
func (t EntityType) IsTransient() bool { return t&0xf0 == 0xf0 }

// IsVirtualizable reports whether ids of this class may be derived from a
// public-key hash and instantiated on first touch.
func (t EntityType) IsVirtualizable() bool { return t == EntityTypeGlobalVirtualAccount }

// IsResourceManager reports whether the class is one of the two resource
// manager flavours.
func (t EntityType) IsResourceManager() bool {
	return t == EntityTypeGlobalFungibleResource || t == EntityTypeGlobalNonFungibleResource
}

// IsVault reports whether the class is one of the two vault flavours.
func (t EntityType) IsVault() bool {
	return t == EntityTypeInternalFungibleVault || t == EntityTypeInternalNonFungibleVault
}

func (t EntityType) String() string {
	switch t {
	case EntityTypeGlobalPackage:
		return "package"
	case EntityTypeGlobalFungibleResource, EntityTypeGlobalNonFungibleResource:
		return "resource"
	case EntityTypeGlobalComponent:
		return "component"
	case EntityTypeGlobalAccount, EntityTypeGlobalVirtualAccount:
		return "account"
	case EntityTypeGlobalConsensusManager:
		return "consensus"
	case EntityTypeGlobalClock:
		return "clock"
	case EntityTypeGlobalAccessController:
		return "accesscontroller"
	case EntityTypeInternalFungibleVault, EntityTypeInternalNonFungibleVault:
		return "internal_vault"
	case EntityTypeInternalKeyValueStore:
		return "internal_keyvaluestore"
	case EntityTypeInternalGeneric:
		return "internal_component"
	case EntityTypeInternalBucket:
		return "bucket"
	case EntityTypeInternalProof:
		return "proof"
	case EntityTypeInternalWorktop:
		return "worktop"
	case EntityTypeInternalAuthZone:
		return "authzone"
	case EntityTypeInternalTxRuntime:
		return "txruntime"
	default:
		return fmt.Sprintf("entity(0x%02x)", uint8(t))
	}
}

// NodeID identifies a node. The zero value is "no node".
type NodeID [NodeIDLength]byte

// NewNodeID assembles an id from an entity class and a 29-byte body. Longer
// bodies are truncated, shorter ones zero-padded on the right.
func NewNodeID(t EntityType, body []byte) NodeID {
	var id NodeID
	id[0] = byte(t)
	copy(id[1:], body)
	return id
}

// NodeIDFromHash derives an id of the given class from a digest.
func NodeIDFromHash(t EntityType, h Hash) NodeID {
	return NewNodeID(t, h[:NodeIDLength-1])
}

// VirtualAccountID derives the deterministic virtual-account id for a
// signer public key.
func VirtualAccountID(publicKey []byte) NodeID {
	return NodeIDFromHash(EntityTypeGlobalVirtualAccount, HashOf(publicKey))
}

func (n NodeID) EntityType() EntityType { return EntityType(n[0]) }
func (n NodeID) IsZero() bool           { return n == NodeID{} }
func (n NodeID) Bytes() []byte          { return n[:] }
func (n NodeID) IsGlobal() bool         { return !n.IsZero() && n.EntityType().IsGlobal() }

func (n NodeID) String() string { return hex.EncodeToString(n[:]) }

// MarshalJSON renders the raw hex form (textual addresses are a network
// concern layered above).
func (n NodeID) MarshalJSON() ([]byte, error) { return []byte(`"` + n.String() + `"`), nil }

// UnmarshalJSON parses the raw hex form.
func (n *NodeID) UnmarshalJSON(b []byte) error {
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return errDecode("node id json must be a string")
	}
	parsed, err := ParseNodeIDHex(string(b[1 : len(b)-1]))
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}

// ParseNodeIDHex decodes the raw hex form produced by String.
func ParseNodeIDHex(s string) (NodeID, error) {
	var id NodeID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, errDecode("node id hex: %v", err)
	}
	if len(b) != NodeIDLength {
		return id, errDecode("node id must be %d bytes, got %d", NodeIDLength, len(b))
	}
	copy(id[:], b)
	return id, nil
}

// -----------------------------------------------------------------------------
// Bech32m textual form
// -----------------------------------------------------------------------------

// AddressHRP returns the human readable part for an entity class on the
// given network, e.g. "account_sim" or "resource_main".
func AddressHRP(t EntityType, network string) string {
	return t.String() + "_" + network
}

// EncodeAddress renders the bech32m textual form of a global node id.
func EncodeAddress(id NodeID, network string) (string, error) {
	if !id.IsGlobal() {
		return "", errKernel("address encoding requires a global node, got %s", id.EntityType())
	}
	conv, err := bech32.ConvertBits(id[:], 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("address bits: %w", err)
	}
	return bech32.EncodeM(AddressHRP(id.EntityType(), network), conv)
}

// MustEncodeAddress is EncodeAddress for callers holding a known-good id.
func MustEncodeAddress(id NodeID, network string) string {
	s, err := EncodeAddress(id, network)
	if err != nil {
		panic(err)
	}
	return s
}

// DecodeAddress parses a bech32m address back into a node id, verifying
// that the HRP starts with the encoded entity class. The network part of
// the HRP is not checked.
func DecodeAddress(addr string) (NodeID, error) {
	var id NodeID
	hrp, data, err := bech32.DecodeNoLimit(addr)
	if err != nil {
		return id, errDecode("address: %v", err)
	}
	raw, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return id, errDecode("address bits: %v", err)
	}
	if len(raw) != NodeIDLength {
		return id, errDecode("address body must be %d bytes, got %d", NodeIDLength, len(raw))
	}
	copy(id[:], raw)
	if !id.IsGlobal() {
		return id, errDecode("address encodes a non-global entity 0x%02x", id[0])
	}
	wantPrefix := id.EntityType().String() + "_"
	if !bytes.HasPrefix([]byte(hrp), []byte(wantPrefix)) {
		return id, errDecode("address prefix %q does not match entity class %s", hrp, id.EntityType())
	}
	return id, nil
}
