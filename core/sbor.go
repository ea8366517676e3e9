package core

// Canonical on-ledger value codec.
//
// Every value the engine persists or passes across an invocation boundary
// is encoded in this self-describing binary form: a one-byte value kind,
// then a kind-specific body. Composite bodies carry LEB128 lengths capped
// at decode time; map entries are written in ascending encoded-key order
// and the decoder rejects any other order, so a byte string has exactly one
// valid value and a value exactly one byte string.

import (
	"bytes"
	"fmt"
	"math/big"
	"sort"
	"unicode/utf8"
)

// ValueKind tags the wire form of a value.
type ValueKind uint8

const (
	ValueKindBool   ValueKind = 0x01
	ValueKindI8     ValueKind = 0x02
	ValueKindI16    ValueKind = 0x03
	ValueKindI32    ValueKind = 0x04
	ValueKindI64    ValueKind = 0x05
	ValueKindI128   ValueKind = 0x06
	ValueKindU8     ValueKind = 0x07
	ValueKindU16    ValueKind = 0x08
	ValueKindU32    ValueKind = 0x09
	ValueKindU64    ValueKind = 0x0a
	ValueKindU128   ValueKind = 0x0b
	ValueKindString ValueKind = 0x0c

	ValueKindArray ValueKind = 0x20
	ValueKindTuple ValueKind = 0x21
	ValueKindEnum  ValueKind = 0x22
	ValueKindMap   ValueKind = 0x23

	// Custom kinds, one-byte extension space.
	ValueKindAddress            ValueKind = 0x80
	ValueKindOwn                ValueKind = 0x90
	ValueKindReference          ValueKind = 0x91
	ValueKindDecimal            ValueKind = 0xa0
	ValueKindPreciseDecimal     ValueKind = 0xa1
	ValueKindNonFungibleLocalID ValueKind = 0xb0
)

func (k ValueKind) String() string {
	switch k {
	case ValueKindBool:
		return "Bool"
	case ValueKindI8, ValueKindI16, ValueKindI32, ValueKindI64, ValueKindI128:
		return fmt.Sprintf("I%d", intBits(k))
	case ValueKindU8, ValueKindU16, ValueKindU32, ValueKindU64, ValueKindU128:
		return fmt.Sprintf("U%d", intBits(k))
	case ValueKindString:
		return "String"
	case ValueKindArray:
		return "Array"
	case ValueKindTuple:
		return "Tuple"
	case ValueKindEnum:
		return "Enum"
	case ValueKindMap:
		return "Map"
	case ValueKindAddress:
		return "Address"
	case ValueKindOwn:
		return "Own"
	case ValueKindReference:
		return "Reference"
	case ValueKindDecimal:
		return "Decimal"
	case ValueKindPreciseDecimal:
		return "PreciseDecimal"
	case ValueKindNonFungibleLocalID:
		return "NonFungibleLocalId"
	default:
		return fmt.Sprintf("ValueKind(0x%02x)", uint8(k))
	}
}

func intBits(k ValueKind) int {
	switch k {
	case ValueKindI8, ValueKindU8:
		return 8
	case ValueKindI16, ValueKindU16:
		return 16
	case ValueKindI32, ValueKindU32:
		return 32
	case ValueKindI64, ValueKindU64:
		return 64
	case ValueKindI128, ValueKindU128:
		return 128
	}
	return 0
}

// Codec limits. Payload size is additionally capped by the caller.
const (
	payloadPrefix   byte = 0x4d // 'M'
	maxCompositeLen      = 65536
	maxStringLen         = 1 << 20
	maxEncodeDepth       = 64
)

// MapEntry is one key/value pair of a Map value.
type MapEntry struct {
	Key   Value
	Value Value
}

// Value is the in-memory form of a codec value: a tagged union whose
// populated fields depend on Kind.
type Value struct {
	Kind ValueKind

	BoolV bool
	IntV  int64    // I8..I64
	UintV uint64   // U8..U64
	BigV  *big.Int // I128 / U128
	StrV  string

	Fields        []Value // Tuple and Enum
	Discriminator uint8   // Enum

	ElementKind ValueKind // Array
	Elements    []Value

	KeyKind   ValueKind // Map
	ValueKind ValueKind
	Entries   []MapEntry

	AddressV NodeID // Address / Own / Reference
	DecV     Decimal
	PDecV    PreciseDecimal
	NFIDV    NonFungibleLocalID
}

// Constructors. The V prefix keeps the namespace clear of the domain types.

func VBool(b bool) Value     { return Value{Kind: ValueKindBool, BoolV: b} }
func VI8(v int8) Value       { return Value{Kind: ValueKindI8, IntV: int64(v)} }
func VI16(v int16) Value     { return Value{Kind: ValueKindI16, IntV: int64(v)} }
func VI32(v int32) Value     { return Value{Kind: ValueKindI32, IntV: int64(v)} }
func VI64(v int64) Value     { return Value{Kind: ValueKindI64, IntV: v} }
func VU8(v uint8) Value      { return Value{Kind: ValueKindU8, UintV: uint64(v)} }
func VU16(v uint16) Value    { return Value{Kind: ValueKindU16, UintV: uint64(v)} }
func VU32(v uint32) Value    { return Value{Kind: ValueKindU32, UintV: uint64(v)} }
func VU64(v uint64) Value    { return Value{Kind: ValueKindU64, UintV: v} }
func VString(s string) Value { return Value{Kind: ValueKindString, StrV: s} }

func VI128(v *big.Int) Value { return Value{Kind: ValueKindI128, BigV: new(big.Int).Set(v)} }
func VU128(v *big.Int) Value { return Value{Kind: ValueKindU128, BigV: new(big.Int).Set(v)} }

func VTuple(fields ...Value) Value { return Value{Kind: ValueKindTuple, Fields: fields} }

func VEnum(discriminator uint8, fields ...Value) Value {
	return Value{Kind: ValueKindEnum, Discriminator: discriminator, Fields: fields}
}

func VArray(elementKind ValueKind, elements ...Value) Value {
	return Value{Kind: ValueKindArray, ElementKind: elementKind, Elements: elements}
}

func VMap(keyKind, valueKind ValueKind, entries ...MapEntry) Value {
	return Value{Kind: ValueKindMap, KeyKind: keyKind, ValueKind: valueKind, Entries: entries}
}

// VBytes is the conventional byte-blob form: Array<U8>.
func VBytes(b []byte) Value {
	elems := make([]Value, len(b))
	for i, x := range b {
		elems[i] = VU8(x)
	}
	return VArray(ValueKindU8, elems...)
}

func VAddress(id NodeID) Value   { return Value{Kind: ValueKindAddress, AddressV: id} }
func VOwn(id NodeID) Value       { return Value{Kind: ValueKindOwn, AddressV: id} }
func VReference(id NodeID) Value { return Value{Kind: ValueKindReference, AddressV: id} }
func VDecimal(d Decimal) Value   { return Value{Kind: ValueKindDecimal, DecV: d} }
func VPreciseDecimal(d PreciseDecimal) Value {
	return Value{Kind: ValueKindPreciseDecimal, PDecV: d}
}
func VNFID(id NonFungibleLocalID) Value {
	return Value{Kind: ValueKindNonFungibleLocalID, NFIDV: id}
}

// Accessors with kind checks.

func (v Value) AsBool() (bool, error) {
	if v.Kind != ValueKindBool {
		return false, errDecode("expected Bool, got %s", v.Kind)
	}
	return v.BoolV, nil
}

func (v Value) AsU8() (uint8, error) {
	if v.Kind != ValueKindU8 {
		return 0, errDecode("expected U8, got %s", v.Kind)
	}
	return uint8(v.UintV), nil
}

func (v Value) AsU16() (uint16, error) {
	if v.Kind != ValueKindU16 {
		return 0, errDecode("expected U16, got %s", v.Kind)
	}
	return uint16(v.UintV), nil
}

func (v Value) AsU32() (uint32, error) {
	if v.Kind != ValueKindU32 {
		return 0, errDecode("expected U32, got %s", v.Kind)
	}
	return uint32(v.UintV), nil
}

func (v Value) AsU64() (uint64, error) {
	if v.Kind != ValueKindU64 {
		return 0, errDecode("expected U64, got %s", v.Kind)
	}
	return v.UintV, nil
}

func (v Value) AsI64() (int64, error) {
	if v.Kind != ValueKindI64 {
		return 0, errDecode("expected I64, got %s", v.Kind)
	}
	return v.IntV, nil
}

func (v Value) AsString() (string, error) {
	if v.Kind != ValueKindString {
		return "", errDecode("expected String, got %s", v.Kind)
	}
	return v.StrV, nil
}

func (v Value) AsTuple() ([]Value, error) {
	if v.Kind != ValueKindTuple {
		return nil, errDecode("expected Tuple, got %s", v.Kind)
	}
	return v.Fields, nil
}

func (v Value) AsEnum() (uint8, []Value, error) {
	if v.Kind != ValueKindEnum {
		return 0, nil, errDecode("expected Enum, got %s", v.Kind)
	}
	return v.Discriminator, v.Fields, nil
}

func (v Value) AsAddress() (NodeID, error) {
	if v.Kind != ValueKindAddress {
		return NodeID{}, errDecode("expected Address, got %s", v.Kind)
	}
	return v.AddressV, nil
}

func (v Value) AsOwn() (NodeID, error) {
	if v.Kind != ValueKindOwn {
		return NodeID{}, errDecode("expected Own, got %s", v.Kind)
	}
	return v.AddressV, nil
}

func (v Value) AsReference() (NodeID, error) {
	if v.Kind != ValueKindReference {
		return NodeID{}, errDecode("expected Reference, got %s", v.Kind)
	}
	return v.AddressV, nil
}

func (v Value) AsDecimal() (Decimal, error) {
	if v.Kind != ValueKindDecimal {
		return Decimal{}, errDecode("expected Decimal, got %s", v.Kind)
	}
	return v.DecV, nil
}

func (v Value) AsNFID() (NonFungibleLocalID, error) {
	if v.Kind != ValueKindNonFungibleLocalID {
		return NonFungibleLocalID{}, errDecode("expected NonFungibleLocalId, got %s", v.Kind)
	}
	return v.NFIDV, nil
}

// AsBytes unpacks the Array<U8> convention.
func (v Value) AsBytes() ([]byte, error) {
	if v.Kind != ValueKindArray || v.ElementKind != ValueKindU8 {
		return nil, errDecode("expected Array<U8>, got %s", v.Kind)
	}
	out := make([]byte, len(v.Elements))
	for i, e := range v.Elements {
		out[i] = uint8(e.UintV)
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Encoding
// -----------------------------------------------------------------------------

func writeVarLen(buf *bytes.Buffer, n int) {
	v := uint64(n)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		buf.WriteByte(b)
		if v == 0 {
			return
		}
	}
}

func writeUintLE(buf *bytes.Buffer, v uint64, width int) {
	for i := 0; i < width; i++ {
		buf.WriteByte(byte(v >> (8 * i)))
	}
}

// EncodeValue renders the bare wire form (kind byte + body).
func EncodeValue(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeValue(&buf, v, 0); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodePayload renders the versioned payload form used for substate
// values, invocation arguments and events.
func EncodePayload(v Value) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(payloadPrefix)
	if err := encodeValue(&buf, v, 0); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MustEncodePayload is EncodePayload for values built from typed state,
// whose encoding cannot fail except by programmer error.
func MustEncodePayload(v Value) []byte {
	b, err := EncodePayload(v)
	if err != nil {
		panic(err)
	}
	return b
}

func encodeValue(buf *bytes.Buffer, v Value, depth int) error {
	if depth > maxEncodeDepth {
		return errDecode("value nesting exceeds %d", maxEncodeDepth)
	}
	buf.WriteByte(byte(v.Kind))
	return encodeBody(buf, v, depth)
}

func encodeBody(buf *bytes.Buffer, v Value, depth int) error {
	switch v.Kind {
	case ValueKindBool:
		if v.BoolV {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case ValueKindI8, ValueKindI16, ValueKindI32, ValueKindI64:
		writeUintLE(buf, uint64(v.IntV), intBits(v.Kind)/8)
	case ValueKindU8, ValueKindU16, ValueKindU32, ValueKindU64:
		writeUintLE(buf, v.UintV, intBits(v.Kind)/8)
	case ValueKindI128, ValueKindU128:
		bi := v.BigV
		if bi == nil {
			bi = bigIntZero
		}
		buf.Write(twosComplementLE(bi, 16))
	case ValueKindString:
		if len(v.StrV) > maxStringLen {
			return errDecode("string length %d over cap", len(v.StrV))
		}
		if !utf8.ValidString(v.StrV) {
			return errDecode("string is not valid UTF-8")
		}
		writeVarLen(buf, len(v.StrV))
		buf.WriteString(v.StrV)
	case ValueKindTuple:
		if len(v.Fields) > maxCompositeLen {
			return errDecode("tuple length %d over cap", len(v.Fields))
		}
		writeVarLen(buf, len(v.Fields))
		for _, f := range v.Fields {
			if err := encodeValue(buf, f, depth+1); err != nil {
				return err
			}
		}
	case ValueKindEnum:
		buf.WriteByte(v.Discriminator)
		if len(v.Fields) > maxCompositeLen {
			return errDecode("enum field count %d over cap", len(v.Fields))
		}
		writeVarLen(buf, len(v.Fields))
		for _, f := range v.Fields {
			if err := encodeValue(buf, f, depth+1); err != nil {
				return err
			}
		}
	case ValueKindArray:
		if len(v.Elements) > maxCompositeLen {
			return errDecode("array length %d over cap", len(v.Elements))
		}
		buf.WriteByte(byte(v.ElementKind))
		writeVarLen(buf, len(v.Elements))
		for _, e := range v.Elements {
			if e.Kind != v.ElementKind {
				return errDecode("array element kind %s differs from declared %s", e.Kind, v.ElementKind)
			}
			if err := encodeBody(buf, e, depth+1); err != nil {
				return err
			}
		}
	case ValueKindMap:
		if len(v.Entries) > maxCompositeLen {
			return errDecode("map length %d over cap", len(v.Entries))
		}
		buf.WriteByte(byte(v.KeyKind))
		buf.WriteByte(byte(v.ValueKind))
		writeVarLen(buf, len(v.Entries))
		// Canonical form: entries in ascending encoded-key order.
		type encEntry struct {
			key []byte
			val Value
		}
		encoded := make([]encEntry, len(v.Entries))
		for i, e := range v.Entries {
			if e.Key.Kind != v.KeyKind {
				return errDecode("map key kind %s differs from declared %s", e.Key.Kind, v.KeyKind)
			}
			if e.Value.Kind != v.ValueKind {
				return errDecode("map value kind %s differs from declared %s", e.Value.Kind, v.ValueKind)
			}
			var kb bytes.Buffer
			if err := encodeBody(&kb, e.Key, depth+1); err != nil {
				return err
			}
			encoded[i] = encEntry{key: kb.Bytes(), val: e.Value}
		}
		sort.SliceStable(encoded, func(i, j int) bool {
			return bytes.Compare(encoded[i].key, encoded[j].key) < 0
		})
		for i := 1; i < len(encoded); i++ {
			if bytes.Equal(encoded[i-1].key, encoded[i].key) {
				return errDecode("duplicate map key")
			}
		}
		for _, e := range encoded {
			buf.Write(e.key)
			if err := encodeBody(buf, e.val, depth+1); err != nil {
				return err
			}
		}
	case ValueKindAddress, ValueKindOwn, ValueKindReference:
		buf.Write(v.AddressV[:])
	case ValueKindDecimal:
		buf.Write(v.DecV.EncodeBytes())
	case ValueKindPreciseDecimal:
		buf.Write(v.PDecV.EncodeBytes())
	case ValueKindNonFungibleLocalID:
		buf.Write(v.NFIDV.EncodeBytes())
	default:
		return errDecode("cannot encode unknown value kind 0x%02x", uint8(v.Kind))
	}
	return nil
}

// -----------------------------------------------------------------------------
// Decoding
// -----------------------------------------------------------------------------

type decoder struct {
	b   []byte
	pos int
}

func (d *decoder) readByte() (byte, error) {
	if d.pos >= len(d.b) {
		return 0, errDecode("unexpected end of payload at offset %d", d.pos)
	}
	c := d.b[d.pos]
	d.pos++
	return c, nil
}

func (d *decoder) readBytes(n int) ([]byte, error) {
	if n < 0 || d.pos+n > len(d.b) {
		return nil, errDecode("unexpected end of payload at offset %d", d.pos)
	}
	out := d.b[d.pos : d.pos+n]
	d.pos += n
	return out, nil
}

func (d *decoder) readVarLen(cap int) (int, error) {
	var v uint64
	var shift uint
	for {
		c, err := d.readByte()
		if err != nil {
			return 0, err
		}
		v |= uint64(c&0x7f) << shift
		if c&0x80 == 0 {
			// A zero final group after a continuation would give one
			// length two encodings; only the minimal form is canonical.
			if c == 0 && shift > 0 {
				return 0, errDecode("non-minimal length varint")
			}
			break
		}
		shift += 7
		if shift > 28 {
			return 0, errDecode("length varint too long")
		}
	}
	if v > uint64(cap) {
		return 0, errDecode("declared length %d over cap %d", v, cap)
	}
	return int(v), nil
}

// DecodeValue parses the bare wire form, requiring full consumption.
func DecodeValue(b []byte) (Value, error) {
	d := &decoder{b: b}
	v, err := d.decodeValue(0)
	if err != nil {
		return Value{}, err
	}
	if d.pos != len(b) {
		return Value{}, errDecode("%d trailing bytes after value", len(b)-d.pos)
	}
	return v, nil
}

// DecodePayload parses the versioned payload form.
func DecodePayload(b []byte) (Value, error) {
	if len(b) == 0 || b[0] != payloadPrefix {
		return Value{}, errDecode("missing payload prefix")
	}
	return DecodeValue(b[1:])
}

func (d *decoder) decodeValue(depth int) (Value, error) {
	if depth > maxEncodeDepth {
		return Value{}, errDecode("value nesting exceeds %d", maxEncodeDepth)
	}
	kb, err := d.readByte()
	if err != nil {
		return Value{}, err
	}
	return d.decodeBody(ValueKind(kb), depth)
}

func (d *decoder) decodeBody(kind ValueKind, depth int) (Value, error) {
	switch kind {
	case ValueKindBool:
		c, err := d.readByte()
		if err != nil {
			return Value{}, err
		}
		if c > 1 {
			return Value{}, errDecode("bool byte 0x%02x", c)
		}
		return VBool(c == 1), nil
	case ValueKindI8, ValueKindI16, ValueKindI32, ValueKindI64:
		w := intBits(kind) / 8
		raw, err := d.readBytes(w)
		if err != nil {
			return Value{}, err
		}
		var u uint64
		for i := w - 1; i >= 0; i-- {
			u = u<<8 | uint64(raw[i])
		}
		// Sign-extend.
		shift := uint(64 - intBits(kind))
		return Value{Kind: kind, IntV: int64(u<<shift) >> shift}, nil
	case ValueKindU8, ValueKindU16, ValueKindU32, ValueKindU64:
		w := intBits(kind) / 8
		raw, err := d.readBytes(w)
		if err != nil {
			return Value{}, err
		}
		var u uint64
		for i := w - 1; i >= 0; i-- {
			u = u<<8 | uint64(raw[i])
		}
		return Value{Kind: kind, UintV: u}, nil
	case ValueKindI128, ValueKindU128:
		raw, err := d.readBytes(16)
		if err != nil {
			return Value{}, err
		}
		v := twosComplementFromLE(raw)
		if kind == ValueKindU128 && v.Sign() < 0 {
			v.Add(v, new(big.Int).Lsh(bigIntOne, 128))
		}
		return Value{Kind: kind, BigV: v}, nil
	case ValueKindString:
		n, err := d.readVarLen(maxStringLen)
		if err != nil {
			return Value{}, err
		}
		raw, err := d.readBytes(n)
		if err != nil {
			return Value{}, err
		}
		if !utf8.Valid(raw) {
			return Value{}, errDecode("string is not valid UTF-8")
		}
		return VString(string(raw)), nil
	case ValueKindTuple:
		n, err := d.readVarLen(maxCompositeLen)
		if err != nil {
			return Value{}, err
		}
		fields := make([]Value, n)
		for i := range fields {
			if fields[i], err = d.decodeValue(depth + 1); err != nil {
				return Value{}, err
			}
		}
		return VTuple(fields...), nil
	case ValueKindEnum:
		disc, err := d.readByte()
		if err != nil {
			return Value{}, err
		}
		n, err := d.readVarLen(maxCompositeLen)
		if err != nil {
			return Value{}, err
		}
		fields := make([]Value, n)
		for i := range fields {
			if fields[i], err = d.decodeValue(depth + 1); err != nil {
				return Value{}, err
			}
		}
		return VEnum(disc, fields...), nil
	case ValueKindArray:
		ekb, err := d.readByte()
		if err != nil {
			return Value{}, err
		}
		ek := ValueKind(ekb)
		n, err := d.readVarLen(maxCompositeLen)
		if err != nil {
			return Value{}, err
		}
		elems := make([]Value, n)
		for i := range elems {
			if elems[i], err = d.decodeBody(ek, depth+1); err != nil {
				return Value{}, err
			}
		}
		return VArray(ek, elems...), nil
	case ValueKindMap:
		kkb, err := d.readByte()
		if err != nil {
			return Value{}, err
		}
		vkb, err := d.readByte()
		if err != nil {
			return Value{}, err
		}
		kk, vk := ValueKind(kkb), ValueKind(vkb)
		n, err := d.readVarLen(maxCompositeLen)
		if err != nil {
			return Value{}, err
		}
		entries := make([]MapEntry, n)
		var prevKey []byte
		for i := range entries {
			keyStart := d.pos
			k, err := d.decodeBody(kk, depth+1)
			if err != nil {
				return Value{}, err
			}
			keyBytes := d.b[keyStart:d.pos]
			if prevKey != nil && bytes.Compare(prevKey, keyBytes) >= 0 {
				return Value{}, errDecode("map keys not in canonical order")
			}
			prevKey = keyBytes
			v, err := d.decodeBody(vk, depth+1)
			if err != nil {
				return Value{}, err
			}
			entries[i] = MapEntry{Key: k, Value: v}
		}
		return VMap(kk, vk, entries...), nil
	case ValueKindAddress, ValueKindOwn, ValueKindReference:
		raw, err := d.readBytes(NodeIDLength)
		if err != nil {
			return Value{}, err
		}
		var id NodeID
		copy(id[:], raw)
		return Value{Kind: kind, AddressV: id}, nil
	case ValueKindDecimal:
		raw, err := d.readBytes(24)
		if err != nil {
			return Value{}, err
		}
		dec, err := DecodeDecimal(raw)
		if err != nil {
			return Value{}, err
		}
		return VDecimal(dec), nil
	case ValueKindPreciseDecimal:
		raw, err := d.readBytes(32)
		if err != nil {
			return Value{}, err
		}
		pd, err := DecodePreciseDecimal(raw)
		if err != nil {
			return Value{}, err
		}
		return VPreciseDecimal(pd), nil
	case ValueKindNonFungibleLocalID:
		// Variant byte determines payload width.
		start := d.pos
		vb, err := d.readByte()
		if err != nil {
			return Value{}, err
		}
		switch NFIDKind(vb) {
		case NFIDInteger:
			if _, err := d.readBytes(8); err != nil {
				return Value{}, err
			}
		case NFIDString, NFIDBytes:
			lb, err := d.readByte()
			if err != nil {
				return Value{}, err
			}
			if _, err := d.readBytes(int(lb)); err != nil {
				return Value{}, err
			}
		case NFIDRUID:
			if _, err := d.readBytes(32); err != nil {
				return Value{}, err
			}
		default:
			return Value{}, errDecode("unknown local id kind 0x%02x", vb)
		}
		id, err := DecodeNonFungibleLocalID(d.b[start:d.pos])
		if err != nil {
			return Value{}, err
		}
		return VNFID(id), nil
	default:
		return Value{}, errDecode("unknown value kind 0x%02x", uint8(kind))
	}
}

// -----------------------------------------------------------------------------
// Traversal
// -----------------------------------------------------------------------------

// WalkValue visits v and every nested value in encoding order.
func WalkValue(v Value, visit func(Value) error) error {
	if err := visit(v); err != nil {
		return err
	}
	for _, f := range v.Fields {
		if err := WalkValue(f, visit); err != nil {
			return err
		}
	}
	for _, e := range v.Elements {
		if err := WalkValue(e, visit); err != nil {
			return err
		}
	}
	for _, e := range v.Entries {
		if err := WalkValue(e.Key, visit); err != nil {
			return err
		}
		if err := WalkValue(e.Value, visit); err != nil {
			return err
		}
	}
	return nil
}

// CollectIndexed extracts the node ids referenced by a payload: owned
// nodes (Own) and referenced nodes (Reference plus Address). The kernel
// uses this to build call-frame visibility sets.
func CollectIndexed(v Value) (owns []NodeID, refs []NodeID) {
	_ = WalkValue(v, func(x Value) error {
		switch x.Kind {
		case ValueKindOwn:
			owns = append(owns, x.AddressV)
		case ValueKindReference, ValueKindAddress:
			if !x.AddressV.IsZero() {
				refs = append(refs, x.AddressV)
			}
		}
		return nil
	})
	return owns, refs
}
