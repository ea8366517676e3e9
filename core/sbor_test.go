package core

import (
	"bytes"
	"math/big"
	"reflect"
	"testing"
)

func testNodeID(b byte) NodeID {
	var body [29]byte
	body[0] = b
	return NewNodeID(EntityTypeGlobalComponent, body[:])
}

// ------------------------------------------------------------
// Round trips for every value kind
// ------------------------------------------------------------

func TestValueRoundTrips(t *testing.T) {
	strID, _ := StringLocalID("hero")
	bytesID, _ := BytesLocalID([]byte{0xde, 0xad})
	values := []Value{
		VBool(true),
		VBool(false),
		VI8(-5),
		VI16(-300),
		VI32(1 << 20),
		VI64(-(1 << 40)),
		VU8(250),
		VU16(65000),
		VU32(1 << 30),
		VU64(1 << 60),
		VI128(big.NewInt(-1)),
		VI128(new(big.Int).Lsh(big.NewInt(1), 126)),
		VU128(new(big.Int).Lsh(big.NewInt(1), 127)),
		VString("hello, мир"),
		VString(""),
		VTuple(),
		VTuple(VU8(1), VString("x"), VBool(true)),
		VEnum(3, VU64(9)),
		VEnum(0),
		VArray(ValueKindU8),
		VBytes([]byte{1, 2, 3}),
		VArray(ValueKindString, VString("a"), VString("b")),
		VMap(ValueKindString, ValueKindU64,
			MapEntry{Key: VString("b"), Value: VU64(2)},
			MapEntry{Key: VString("a"), Value: VU64(1)}),
		VAddress(testNodeID(1)),
		VOwn(testNodeID(2)),
		VReference(testNodeID(3)),
		VDecimal(MustDecimal("-42.000000000000000001")),
		VPreciseDecimal(MustPreciseDecimal("3.14")),
		VNFID(IntegerLocalID(77)),
		VNFID(strID),
		VNFID(bytesID),
		VNFID(RUIDLocalID([32]byte{9, 9, 9})),
		VTuple(VTuple(VTuple(VU8(1)))),
	}
	for i, v := range values {
		encoded, err := EncodePayload(v)
		if err != nil {
			t.Fatalf("case %d encode: %v", i, err)
		}
		decoded, err := DecodePayload(encoded)
		if err != nil {
			t.Fatalf("case %d decode: %v", i, err)
		}
		reencoded, err := EncodePayload(decoded)
		if err != nil {
			t.Fatalf("case %d re-encode: %v", i, err)
		}
		if !bytes.Equal(encoded, reencoded) {
			t.Fatalf("case %d: encode(decode(x)) differs from encode(x)", i)
		}
	}
}

// ------------------------------------------------------------
// Canonical form enforcement
// ------------------------------------------------------------

func TestMapCanonicalOrder(t *testing.T) {
	// Entries given out of order encode sorted.
	v := VMap(ValueKindString, ValueKindU8,
		MapEntry{Key: VString("z"), Value: VU8(1)},
		MapEntry{Key: VString("a"), Value: VU8(2)})
	encoded, err := EncodePayload(v)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodePayload(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Entries[0].Key.StrV != "a" || decoded.Entries[1].Key.StrV != "z" {
		t.Fatalf("entries not canonical: %v", decoded.Entries)
	}

	// Swapping the encoded entries must fail the decode.
	v2 := VMap(ValueKindU8, ValueKindU8,
		MapEntry{Key: VU8(2), Value: VU8(0)},
		MapEntry{Key: VU8(1), Value: VU8(0)})
	good, _ := EncodePayload(v2)
	bad := append([]byte{}, good...)
	// payload: prefix, kind, keykind, valkind, len, k1, v1, k2, v2
	bad[5], bad[7] = bad[7], bad[5]
	if _, err := DecodePayload(bad); err == nil {
		t.Fatal("expected canonical order violation")
	}
}

func TestDuplicateMapKeyRejected(t *testing.T) {
	v := VMap(ValueKindU8, ValueKindU8,
		MapEntry{Key: VU8(1), Value: VU8(0)},
		MapEntry{Key: VU8(1), Value: VU8(9)})
	if _, err := EncodePayload(v); err == nil {
		t.Fatal("expected duplicate key error")
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	cases := [][]byte{
		nil,
		{},
		{0x00},                   // wrong prefix
		{payloadPrefix},          // no value
		{payloadPrefix, 0xee},    // unknown kind
		{payloadPrefix, 0x01, 2}, // bad bool byte
		{payloadPrefix, byte(ValueKindString), 0x02, 'a'}, // short string
		{payloadPrefix, byte(ValueKindDecimal), 1, 2},     // short decimal
	}
	for i, b := range cases {
		if _, err := DecodePayload(b); err == nil {
			t.Fatalf("case %d: expected decode error", i)
		}
	}
	// Trailing garbage.
	good, _ := EncodePayload(VU8(1))
	if _, err := DecodePayload(append(good, 0x00)); err == nil {
		t.Fatal("expected trailing byte error")
	}
}

func TestArrayElementKindEnforced(t *testing.T) {
	v := Value{Kind: ValueKindArray, ElementKind: ValueKindU8, Elements: []Value{VU16(1)}}
	if _, err := EncodePayload(v); err == nil {
		t.Fatal("expected element kind mismatch error")
	}
}

func TestLengthCapEnforced(t *testing.T) {
	// A declared length over the cap must fail before any allocation.
	payload := []byte{payloadPrefix, byte(ValueKindArray), byte(ValueKindU8), 0xff, 0xff, 0xff, 0x7f}
	if _, err := DecodePayload(payload); err == nil {
		t.Fatal("expected length cap error")
	}
}

func TestCollectIndexed(t *testing.T) {
	own1, own2 := testNodeID(10), testNodeID(11)
	ref := testNodeID(12)
	v := VTuple(
		VOwn(own1),
		VArray(ValueKindOwn, VOwn(own2)),
		VReference(ref),
		VMap(ValueKindString, ValueKindAddress,
			MapEntry{Key: VString("k"), Value: VAddress(ref)}),
	)
	owns, refs := CollectIndexed(v)
	if !reflect.DeepEqual(owns, []NodeID{own1, own2}) {
		t.Fatalf("owns = %v", owns)
	}
	if len(refs) != 2 || refs[0] != ref || refs[1] != ref {
		t.Fatalf("refs = %v", refs)
	}
}

// ------------------------------------------------------------
// Schema validation
// ------------------------------------------------------------

func TestSchemaValidate(t *testing.T) {
	schema := &Schema{Types: []TypeDef{
		{
			Name:       "Position",
			Kind:       ValueKindTuple,
			FieldNames: []string{"x", "y"},
			Fields:     []TypeRef{WellKnownRef(ValueKindU32), WellKnownRef(ValueKindU32)},
		},
		{
			Name: "Shape",
			Kind: ValueKindEnum,
			Variants: map[uint8]VariantDef{
				0: {Name: "Point", Fields: []TypeRef{LocalRef(0)}},
				1: {Name: "Empty"},
			},
		},
	}}
	if err := ValidateSchema(schema); err != nil {
		t.Fatalf("schema: %v", err)
	}

	good := VEnum(0, VTuple(VU32(1), VU32(2)))
	if err := schema.Validate(good, LocalRef(1)); err != nil {
		t.Fatalf("valid value rejected: %v", err)
	}
	badVariant := VEnum(7)
	if err := schema.Validate(badVariant, LocalRef(1)); err == nil {
		t.Fatal("expected unknown variant error")
	}
	badField := VEnum(0, VTuple(VU32(1), VString("no")))
	if err := schema.Validate(badField, LocalRef(1)); err == nil {
		t.Fatal("expected field kind error")
	}
}

func TestValidateSchemaRejectsDangling(t *testing.T) {
	schema := &Schema{Types: []TypeDef{{
		Name:   "Broken",
		Kind:   ValueKindTuple,
		Fields: []TypeRef{LocalRef(9)},
	}}}
	if err := ValidateSchema(schema); err == nil {
		t.Fatal("expected dangling ref error")
	}
}

// ------------------------------------------------------------
// Fuzz: decoder must never panic, and accepted inputs re-encode stably
// ------------------------------------------------------------

func FuzzDecodePayload(f *testing.F) {
	seed, _ := EncodePayload(VTuple(VU8(1), VString("x"), VDecimal(OneDecimal())))
	f.Add(seed)
	f.Add([]byte{payloadPrefix, byte(ValueKindMap)})
	f.Fuzz(func(t *testing.T, data []byte) {
		v, err := DecodePayload(data)
		if err != nil {
			return
		}
		re, err := EncodePayload(v)
		if err != nil {
			t.Fatalf("accepted payload failed to re-encode: %v", err)
		}
		if !bytes.Equal(re, data) {
			t.Fatalf("non-canonical payload accepted")
		}
	})
}
