package core

// Resource algebra primitives: non-fungible local ids and the liquid
// containers backing vaults, buckets and the worktop. Containers know
// nothing about nodes or frames; the blueprints enforce resource-address
// matching and roles, the containers enforce balance arithmetic.

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"
)

// -----------------------------------------------------------------------------
// Non-fungible local ids
// -----------------------------------------------------------------------------

// NFIDKind discriminates the local-id flavours.
type NFIDKind uint8

const (
	NFIDInteger NFIDKind = 0
	NFIDString  NFIDKind = 1
	NFIDBytes   NFIDKind = 2
	NFIDRUID    NFIDKind = 3
)

// Bounds on variable-length local id payloads.
const maxNFIDPayload = 64

// NonFungibleLocalID identifies one non-fungible within its resource.
type NonFungibleLocalID struct {
	Kind  NFIDKind
	Int   uint64
	Str   string
	Bytes []byte
	RUID  [32]byte
}

func IntegerLocalID(v uint64) NonFungibleLocalID {
	return NonFungibleLocalID{Kind: NFIDInteger, Int: v}
}

func StringLocalID(s string) (NonFungibleLocalID, error) {
	if s == "" || len(s) > maxNFIDPayload {
		return NonFungibleLocalID{}, errDecode("string local id length %d out of range", len(s))
	}
	for _, r := range s {
		if !(r == '_' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')) {
			return NonFungibleLocalID{}, errDecode("string local id contains %q", r)
		}
	}
	return NonFungibleLocalID{Kind: NFIDString, Str: s}, nil
}

func BytesLocalID(b []byte) (NonFungibleLocalID, error) {
	if len(b) == 0 || len(b) > maxNFIDPayload {
		return NonFungibleLocalID{}, errDecode("bytes local id length %d out of range", len(b))
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return NonFungibleLocalID{Kind: NFIDBytes, Bytes: cp}, nil
}

func RUIDLocalID(r [32]byte) NonFungibleLocalID {
	return NonFungibleLocalID{Kind: NFIDRUID, RUID: r}
}

// EncodeBytes renders the wire form: one kind byte plus the payload.
func (id NonFungibleLocalID) EncodeBytes() []byte {
	switch id.Kind {
	case NFIDInteger:
		out := make([]byte, 9)
		out[0] = byte(NFIDInteger)
		binary.BigEndian.PutUint64(out[1:], id.Int)
		return out
	case NFIDString:
		out := []byte{byte(NFIDString), byte(len(id.Str))}
		return append(out, id.Str...)
	case NFIDBytes:
		out := []byte{byte(NFIDBytes), byte(len(id.Bytes))}
		return append(out, id.Bytes...)
	case NFIDRUID:
		out := []byte{byte(NFIDRUID)}
		return append(out, id.RUID[:]...)
	default:
		return []byte{0xff}
	}
}

// DecodeNonFungibleLocalID parses the wire form produced by EncodeBytes.
func DecodeNonFungibleLocalID(b []byte) (NonFungibleLocalID, error) {
	if len(b) == 0 {
		return NonFungibleLocalID{}, errDecode("empty local id")
	}
	switch NFIDKind(b[0]) {
	case NFIDInteger:
		if len(b) != 9 {
			return NonFungibleLocalID{}, errDecode("integer local id must be 9 bytes")
		}
		return IntegerLocalID(binary.BigEndian.Uint64(b[1:])), nil
	case NFIDString:
		if len(b) < 2 || len(b) != 2+int(b[1]) {
			return NonFungibleLocalID{}, errDecode("string local id length mismatch")
		}
		return StringLocalID(string(b[2:]))
	case NFIDBytes:
		if len(b) < 2 || len(b) != 2+int(b[1]) {
			return NonFungibleLocalID{}, errDecode("bytes local id length mismatch")
		}
		return BytesLocalID(b[2:])
	case NFIDRUID:
		if len(b) != 33 {
			return NonFungibleLocalID{}, errDecode("ruid local id must be 33 bytes")
		}
		var r [32]byte
		copy(r[:], b[1:])
		return RUIDLocalID(r), nil
	default:
		return NonFungibleLocalID{}, errDecode("unknown local id kind 0x%02x", b[0])
	}
}

// Key returns a canonical comparable form usable as a map key.
func (id NonFungibleLocalID) Key() string { return string(id.EncodeBytes()) }

// String renders the canonical text form: #1#, <name>, [dead..beef], {ruid}.
func (id NonFungibleLocalID) String() string {
	switch id.Kind {
	case NFIDInteger:
		return "#" + strconv.FormatUint(id.Int, 10) + "#"
	case NFIDString:
		return "<" + id.Str + ">"
	case NFIDBytes:
		return "[" + hex.EncodeToString(id.Bytes) + "]"
	case NFIDRUID:
		return "{" + hex.EncodeToString(id.RUID[:]) + "}"
	default:
		return "?"
	}
}

// ParseNonFungibleLocalID parses the canonical text form.
func ParseNonFungibleLocalID(s string) (NonFungibleLocalID, error) {
	if len(s) < 3 {
		return NonFungibleLocalID{}, errDecode("local id literal too short")
	}
	body := s[1 : len(s)-1]
	switch {
	case s[0] == '#' && s[len(s)-1] == '#':
		v, err := strconv.ParseUint(body, 10, 64)
		if err != nil {
			return NonFungibleLocalID{}, errDecode("integer local id: %v", err)
		}
		return IntegerLocalID(v), nil
	case s[0] == '<' && s[len(s)-1] == '>':
		return StringLocalID(body)
	case s[0] == '[' && s[len(s)-1] == ']':
		b, err := hex.DecodeString(body)
		if err != nil {
			return NonFungibleLocalID{}, errDecode("bytes local id: %v", err)
		}
		return BytesLocalID(b)
	case s[0] == '{' && s[len(s)-1] == '}':
		b, err := hex.DecodeString(body)
		if err != nil || len(b) != 32 {
			return NonFungibleLocalID{}, errDecode("ruid local id literal")
		}
		var r [32]byte
		copy(r[:], b)
		return RUIDLocalID(r), nil
	default:
		return NonFungibleLocalID{}, errDecode("unrecognised local id literal %q", s)
	}
}

// NonFungibleGlobalID pairs a resource address with a local id; access
// rules and badges are expressed in terms of it.
type NonFungibleGlobalID struct {
	Resource NodeID
	LocalID  NonFungibleLocalID
}

func (g NonFungibleGlobalID) Key() string {
	return string(g.Resource[:]) + g.LocalID.Key()
}

func (g NonFungibleGlobalID) String() string {
	return g.Resource.String() + ":" + g.LocalID.String()
}

// -----------------------------------------------------------------------------
// Id sets
// -----------------------------------------------------------------------------

// NonFungibleIDSet is a deterministic (sorted, deduplicated) set of local
// ids. The zero value is the empty set.
type NonFungibleIDSet struct {
	ids []NonFungibleLocalID
}

// NewIDSet builds a set from the given ids, deduplicating.
func NewIDSet(ids ...NonFungibleLocalID) NonFungibleIDSet {
	var s NonFungibleIDSet
	for _, id := range ids {
		s.Insert(id)
	}
	return s
}

func (s *NonFungibleIDSet) search(id NonFungibleLocalID) (int, bool) {
	k := id.Key()
	i := sort.Search(len(s.ids), func(i int) bool { return s.ids[i].Key() >= k })
	return i, i < len(s.ids) && s.ids[i].Key() == k
}

// Insert adds id, reporting whether it was absent.
func (s *NonFungibleIDSet) Insert(id NonFungibleLocalID) bool {
	i, found := s.search(id)
	if found {
		return false
	}
	s.ids = append(s.ids, NonFungibleLocalID{})
	copy(s.ids[i+1:], s.ids[i:])
	s.ids[i] = id
	return true
}

// Remove deletes id, reporting whether it was present.
func (s *NonFungibleIDSet) Remove(id NonFungibleLocalID) bool {
	i, found := s.search(id)
	if !found {
		return false
	}
	s.ids = append(s.ids[:i], s.ids[i+1:]...)
	return true
}

func (s NonFungibleIDSet) Contains(id NonFungibleLocalID) bool {
	_, found := s.search(id)
	return found
}

func (s NonFungibleIDSet) Len() int { return len(s.ids) }

// IDs returns the ids in canonical order. The slice is a copy.
func (s NonFungibleIDSet) IDs() []NonFungibleLocalID {
	out := make([]NonFungibleLocalID, len(s.ids))
	copy(out, s.ids)
	return out
}

// ContainsAll reports whether every id of other is in s.
func (s NonFungibleIDSet) ContainsAll(other NonFungibleIDSet) bool {
	for _, id := range other.ids {
		if !s.Contains(id) {
			return false
		}
	}
	return true
}

func (s NonFungibleIDSet) String() string {
	parts := make([]string, len(s.ids))
	for i, id := range s.ids {
		parts[i] = id.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// -----------------------------------------------------------------------------
// Liquid containers
// -----------------------------------------------------------------------------

// LiquidFungible is the balance held by a fungible vault, bucket or
// worktop slot.
type LiquidFungible struct {
	Amount Decimal
}

// checkFungibleAmount validates a take/put amount against the resource's
// divisibility: non-negative and no fractional digits beyond it.
func checkFungibleAmount(amount Decimal, divisibility uint8) error {
	if amount.IsNegative() {
		return errResource("amount %s is negative", amount)
	}
	if divisibility > DecimalScale {
		return errResource("divisibility %d out of range", divisibility)
	}
	step := tenPow(DecimalScale - int(divisibility))
	if new(big.Int).Mod(amount.Subunits(), step).Sign() != 0 {
		return errResource("amount %s breaks divisibility %d", amount, divisibility)
	}
	return nil
}

// Take removes amount, failing on insufficient balance.
func (l *LiquidFungible) Take(amount Decimal, divisibility uint8) (LiquidFungible, error) {
	if err := checkFungibleAmount(amount, divisibility); err != nil {
		return LiquidFungible{}, err
	}
	if l.Amount.LT(amount) {
		return LiquidFungible{}, errResource("insufficient balance: have %s, need %s", l.Amount, amount)
	}
	rest, err := l.Amount.Sub(amount)
	if err != nil {
		return LiquidFungible{}, err
	}
	l.Amount = rest
	return LiquidFungible{Amount: amount}, nil
}

// TakeAll drains the container.
func (l *LiquidFungible) TakeAll() LiquidFungible {
	out := LiquidFungible{Amount: l.Amount}
	l.Amount = ZeroDecimal()
	return out
}

// Put merges other in. The caller has already checked resource identity.
func (l *LiquidFungible) Put(other LiquidFungible) error {
	sum, err := l.Amount.Add(other.Amount)
	if err != nil {
		return err
	}
	l.Amount = sum
	return nil
}

// LiquidNonFungible is the id set held by a non-fungible vault, bucket or
// worktop slot. Its amount is always exactly the id cardinality.
type LiquidNonFungible struct {
	IDs NonFungibleIDSet
}

func (l *LiquidNonFungible) Amount() Decimal { return NewDecimal(int64(l.IDs.Len())) }

// TakeByAmount removes n ids in canonical order. The amount must be a
// non-negative whole number within the held cardinality.
func (l *LiquidNonFungible) TakeByAmount(amount Decimal) (LiquidNonFungible, error) {
	if amount.IsNegative() {
		return LiquidNonFungible{}, errResource("amount %s is negative", amount)
	}
	whole, err := amount.RoundTo(0, RoundToZero)
	if err != nil {
		return LiquidNonFungible{}, err
	}
	if !whole.Equal(amount) {
		return LiquidNonFungible{}, errResource("non-fungible take of fractional amount %s", amount)
	}
	n := amount.Subunits()
	n.Quo(n, decimalOne)
	if !n.IsInt64() || n.Int64() > int64(l.IDs.Len()) {
		return LiquidNonFungible{}, errResource("insufficient non-fungibles: have %d, need %s", l.IDs.Len(), amount)
	}
	take := NewIDSet(l.IDs.IDs()[:n.Int64()]...)
	return l.TakeByIDs(take)
}

// TakeByIDs removes exactly the requested ids.
func (l *LiquidNonFungible) TakeByIDs(ids NonFungibleIDSet) (LiquidNonFungible, error) {
	for _, id := range ids.IDs() {
		if !l.IDs.Contains(id) {
			return LiquidNonFungible{}, errResource("non-fungible %s not present", id)
		}
	}
	for _, id := range ids.IDs() {
		l.IDs.Remove(id)
	}
	return LiquidNonFungible{IDs: ids}, nil
}

// TakeAll drains the container.
func (l *LiquidNonFungible) TakeAll() LiquidNonFungible {
	out := LiquidNonFungible{IDs: l.IDs}
	l.IDs = NonFungibleIDSet{}
	return out
}

// Put merges other in, rejecting duplicate ids.
func (l *LiquidNonFungible) Put(other LiquidNonFungible) error {
	for _, id := range other.IDs.IDs() {
		if !l.IDs.Insert(id) {
			return errResource("non-fungible %s already present", id)
		}
	}
	return nil
}

// ResourceSpecifier names either an amount or a concrete id set of a
// resource, the common argument shape of worktop assertions and proofs.
type ResourceSpecifier struct {
	Resource NodeID
	Amount   *Decimal          // fungible form
	IDs      *NonFungibleIDSet // non-fungible form
}

func AmountSpecifier(resource NodeID, amount Decimal) ResourceSpecifier {
	return ResourceSpecifier{Resource: resource, Amount: &amount}
}

func IDsSpecifier(resource NodeID, ids NonFungibleIDSet) ResourceSpecifier {
	return ResourceSpecifier{Resource: resource, IDs: &ids}
}

func (r ResourceSpecifier) String() string {
	if r.Amount != nil {
		return fmt.Sprintf("%s of %s", r.Amount, r.Resource)
	}
	if r.IDs != nil {
		return fmt.Sprintf("%s of %s", r.IDs, r.Resource)
	}
	return "nothing of " + r.Resource.String()
}
