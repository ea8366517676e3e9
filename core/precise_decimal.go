package core

// PreciseDecimal widens Decimal to 256 bits and 36 decimal places. It is
// the intermediate type for multi-step arithmetic where 192 bits would lose
// range, and is a first-class on-ledger value kind of its own.

import "math/big"

// PreciseDecimalScale is the number of implicit decimal places.
const PreciseDecimalScale = 36

var (
	preciseOne = tenPow(PreciseDecimalScale)
	preciseMax = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 255), big.NewInt(1))
	preciseMin = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 255))
	// Widening factor between the two scales.
	decimalToPrecise = tenPow(PreciseDecimalScale - DecimalScale)
)

// PreciseDecimal is an immutable signed fixed-point number:
// value = subunits / 1e36, subunits within the 256-bit two's-complement
// range. The zero value is 0.
type PreciseDecimal struct {
	subunits *big.Int
}

func ZeroPreciseDecimal() PreciseDecimal { return PreciseDecimal{} }

func OnePreciseDecimal() PreciseDecimal {
	return PreciseDecimal{subunits: new(big.Int).Set(preciseOne)}
}

// NewPreciseDecimal converts a whole-unit integer.
func NewPreciseDecimal(units int64) PreciseDecimal {
	return PreciseDecimal{subunits: new(big.Int).Mul(big.NewInt(units), preciseOne)}
}

// PreciseDecimalFromSubunits wraps a raw subunit count, range-checked.
func PreciseDecimalFromSubunits(subunits *big.Int) (PreciseDecimal, error) {
	if subunits.Cmp(preciseMax) > 0 || subunits.Cmp(preciseMin) < 0 {
		return PreciseDecimal{}, errDecode("precise decimal out of range")
	}
	return PreciseDecimal{subunits: new(big.Int).Set(subunits)}, nil
}

func (d PreciseDecimal) big() *big.Int {
	if d.subunits == nil {
		return bigIntZero
	}
	return d.subunits
}

func (d PreciseDecimal) Subunits() *big.Int { return new(big.Int).Set(d.big()) }
func (d PreciseDecimal) IsZero() bool       { return d.big().Sign() == 0 }
func (d PreciseDecimal) IsNegative() bool   { return d.big().Sign() < 0 }

func (d PreciseDecimal) Cmp(o PreciseDecimal) int    { return d.big().Cmp(o.big()) }
func (d PreciseDecimal) Equal(o PreciseDecimal) bool { return d.Cmp(o) == 0 }

func checkedPrecise(v *big.Int) (PreciseDecimal, error) {
	if v.Cmp(preciseMax) > 0 || v.Cmp(preciseMin) < 0 {
		return PreciseDecimal{}, errDecode("precise decimal overflow")
	}
	return PreciseDecimal{subunits: v}, nil
}

// Add returns d + o, failing on 256-bit overflow.
func (d PreciseDecimal) Add(o PreciseDecimal) (PreciseDecimal, error) {
	return checkedPrecise(new(big.Int).Add(d.big(), o.big()))
}

// Sub returns d - o, failing on 256-bit overflow.
func (d PreciseDecimal) Sub(o PreciseDecimal) (PreciseDecimal, error) {
	return checkedPrecise(new(big.Int).Sub(d.big(), o.big()))
}

// Mul returns d * o truncated toward zero, failing on overflow.
func (d PreciseDecimal) Mul(o PreciseDecimal) (PreciseDecimal, error) {
	prod := new(big.Int).Mul(d.big(), o.big())
	return checkedPrecise(prod.Quo(prod, preciseOne))
}

// Div returns d / o truncated toward zero; division by zero is an error.
func (d PreciseDecimal) Div(o PreciseDecimal) (PreciseDecimal, error) {
	if o.IsZero() {
		return PreciseDecimal{}, errDecode("precise decimal division by zero")
	}
	num := new(big.Int).Mul(d.big(), preciseOne)
	return checkedPrecise(num.Quo(num, o.big()))
}

// Neg returns -d.
func (d PreciseDecimal) Neg() (PreciseDecimal, error) {
	return checkedPrecise(new(big.Int).Neg(d.big()))
}

// PowI raises d to an integer power by square-and-multiply.
func (d PreciseDecimal) PowI(exp int64) (PreciseDecimal, error) {
	if exp < 0 {
		inv, err := OnePreciseDecimal().Div(d)
		if err != nil {
			return PreciseDecimal{}, err
		}
		return inv.PowI(-exp)
	}
	result := OnePreciseDecimal()
	base := d
	var err error
	for exp > 0 {
		if exp&1 == 1 {
			if result, err = result.Mul(base); err != nil {
				return PreciseDecimal{}, err
			}
		}
		exp >>= 1
		if exp > 0 {
			if base, err = base.Mul(base); err != nil {
				return PreciseDecimal{}, err
			}
		}
	}
	return result, nil
}

// String renders the canonical text form.
func (d PreciseDecimal) String() string {
	return formatFixed(d.big(), PreciseDecimalScale)
}

// ParsePreciseDecimal parses the canonical text form.
func ParsePreciseDecimal(s string) (PreciseDecimal, error) {
	v, err := parseFixed(s, PreciseDecimalScale)
	if err != nil {
		return PreciseDecimal{}, err
	}
	return checkedPrecise(v)
}

// MustPreciseDecimal is ParsePreciseDecimal for literals.
func MustPreciseDecimal(s string) PreciseDecimal {
	d, err := ParsePreciseDecimal(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Widen lifts a Decimal into PreciseDecimal losslessly.
func (d Decimal) Widen() PreciseDecimal {
	return PreciseDecimal{subunits: new(big.Int).Mul(d.big(), decimalToPrecise)}
}

// CheckedDowncast narrows to Decimal, truncating the extra fractional
// digits toward zero and failing if the value exceeds the 192-bit range.
func (d PreciseDecimal) CheckedDowncast() (Decimal, error) {
	v := new(big.Int).Quo(d.big(), decimalToPrecise)
	return checkedDecimal(v)
}

// EncodeBytes renders the 32-byte wire form.
func (d PreciseDecimal) EncodeBytes() []byte { return twosComplementLE(d.big(), 32) }

// DecodePreciseDecimal parses the 32-byte wire form.
func DecodePreciseDecimal(b []byte) (PreciseDecimal, error) {
	if len(b) != 32 {
		return PreciseDecimal{}, errDecode("precise decimal wire form must be 32 bytes, got %d", len(b))
	}
	return PreciseDecimalFromSubunits(twosComplementFromLE(b))
}
