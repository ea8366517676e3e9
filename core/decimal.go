package core

// Deterministic fixed-point arithmetic.
//
// Decimal is the ledger-facing number: a signed 192-bit integer carrying 18
// implicit decimal places. PreciseDecimal (precise_decimal.go) widens to 256
// bits and 36 places for intermediate math. Every operation is checked -
// overflow, divide-by-zero and domain errors surface as Decode/Resource
// errors rather than wrapping or saturating silently. No float ever touches
// these paths.

import (
	"fmt"
	"math/big"
	"strings"
)

// RoundingMode selects the behaviour of RoundTo and take-advanced.
type RoundingMode uint8

const (
	RoundToZero RoundingMode = iota
	RoundAwayFromZero
	RoundToNearestMidpointAwayFromZero
	RoundToNearestMidpointToEven
	RoundTowardsNegativeInfinity
	RoundTowardsPositiveInfinity
)

// DecimalScale is the number of implicit decimal places of Decimal.
const DecimalScale = 18

var (
	decimalOne = tenPow(DecimalScale)
	decimalMax = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 191), big.NewInt(1))
	decimalMin = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 191))
	bigIntZero = big.NewInt(0)
	bigIntOne  = big.NewInt(1)
	bigIntTwo  = big.NewInt(2)
	bigIntTen  = big.NewInt(10)
)

func tenPow(n int) *big.Int {
	return new(big.Int).Exp(bigIntTen, big.NewInt(int64(n)), nil)
}

// Decimal is an immutable signed fixed-point number: value = subunits / 1e18,
// with subunits in the closed 192-bit two's-complement range. The zero value
// is 0.
type Decimal struct {
	subunits *big.Int
}

// ZeroDecimal returns 0.
func ZeroDecimal() Decimal { return Decimal{} }

// OneDecimal returns 1.
func OneDecimal() Decimal { return Decimal{subunits: new(big.Int).Set(decimalOne)} }

// NewDecimal converts a whole-unit integer.
func NewDecimal(units int64) Decimal {
	return Decimal{subunits: new(big.Int).Mul(big.NewInt(units), decimalOne)}
}

// DecimalFromSubunits wraps a raw subunit count. The caller's big.Int is
// copied. An out-of-range value is clamped to an error by the next checked
// operation; range is verified here too.
func DecimalFromSubunits(subunits *big.Int) (Decimal, error) {
	if subunits.Cmp(decimalMax) > 0 || subunits.Cmp(decimalMin) < 0 {
		return Decimal{}, errDecode("decimal out of range")
	}
	return Decimal{subunits: new(big.Int).Set(subunits)}, nil
}

func (d Decimal) big() *big.Int {
	if d.subunits == nil {
		return bigIntZero
	}
	return d.subunits
}

// Subunits returns a copy of the raw subunit count.
func (d Decimal) Subunits() *big.Int { return new(big.Int).Set(d.big()) }

func (d Decimal) IsZero() bool     { return d.big().Sign() == 0 }
func (d Decimal) IsNegative() bool { return d.big().Sign() < 0 }
func (d Decimal) IsPositive() bool { return d.big().Sign() > 0 }

// Cmp returns -1, 0 or +1 comparing d against o.
func (d Decimal) Cmp(o Decimal) int { return d.big().Cmp(o.big()) }

func (d Decimal) Equal(o Decimal) bool { return d.Cmp(o) == 0 }
func (d Decimal) LT(o Decimal) bool    { return d.Cmp(o) < 0 }
func (d Decimal) LTE(o Decimal) bool   { return d.Cmp(o) <= 0 }
func (d Decimal) GT(o Decimal) bool    { return d.Cmp(o) > 0 }
func (d Decimal) GTE(o Decimal) bool   { return d.Cmp(o) >= 0 }

func checkedDecimal(v *big.Int) (Decimal, error) {
	if v.Cmp(decimalMax) > 0 || v.Cmp(decimalMin) < 0 {
		return Decimal{}, errDecode("decimal overflow")
	}
	return Decimal{subunits: v}, nil
}

// Add returns d + o, failing on 192-bit overflow.
func (d Decimal) Add(o Decimal) (Decimal, error) {
	return checkedDecimal(new(big.Int).Add(d.big(), o.big()))
}

// Sub returns d - o, failing on 192-bit overflow.
func (d Decimal) Sub(o Decimal) (Decimal, error) {
	return checkedDecimal(new(big.Int).Sub(d.big(), o.big()))
}

// Mul returns d * o truncated toward zero, failing on overflow.
func (d Decimal) Mul(o Decimal) (Decimal, error) {
	prod := new(big.Int).Mul(d.big(), o.big())
	return checkedDecimal(prod.Quo(prod, decimalOne))
}

// Div returns d / o truncated toward zero; division by zero is an error.
func (d Decimal) Div(o Decimal) (Decimal, error) {
	if o.IsZero() {
		return Decimal{}, errDecode("decimal division by zero")
	}
	num := new(big.Int).Mul(d.big(), decimalOne)
	return checkedDecimal(num.Quo(num, o.big()))
}

// Neg returns -d. Negating the minimum value overflows.
func (d Decimal) Neg() (Decimal, error) {
	return checkedDecimal(new(big.Int).Neg(d.big()))
}

// Abs returns |d|.
func (d Decimal) Abs() (Decimal, error) {
	if d.IsNegative() {
		return d.Neg()
	}
	return d, nil
}

// PowI raises d to an integer power by square-and-multiply. 0^0 = 1;
// 0^negative is a domain error.
func (d Decimal) PowI(exp int64) (Decimal, error) {
	if exp < 0 {
		inv, err := OneDecimal().Div(d)
		if err != nil {
			return Decimal{}, err
		}
		return inv.PowI(-exp)
	}
	result := OneDecimal()
	base := d
	var err error
	for exp > 0 {
		if exp&1 == 1 {
			if result, err = result.Mul(base); err != nil {
				return Decimal{}, err
			}
		}
		exp >>= 1
		if exp > 0 {
			if base, err = base.Mul(base); err != nil {
				return Decimal{}, err
			}
		}
	}
	return result, nil
}

// NthRoot returns the integer-rounded (toward zero) n-th root. n must be
// positive; an even root of a negative number is a domain error.
func (d Decimal) NthRoot(n uint32) (Decimal, error) {
	if n == 0 {
		return Decimal{}, errDecode("zeroth root undefined")
	}
	if n == 1 {
		return d, nil
	}
	neg := d.IsNegative()
	if neg && n%2 == 0 {
		return Decimal{}, errDecode("even root of a negative decimal")
	}
	// root(v * 10^(18*(n-1))) keeps the fixed-point scale exact.
	mag := new(big.Int).Abs(d.big())
	mag.Mul(mag, tenPow(DecimalScale*(int(n)-1)))
	r := integerNthRoot(mag, uint64(n))
	if neg {
		r.Neg(r)
	}
	return checkedDecimal(r)
}

// integerNthRoot computes floor(v^(1/n)) for v >= 0 via Newton iteration.
func integerNthRoot(v *big.Int, n uint64) *big.Int {
	if v.Sign() == 0 {
		return new(big.Int)
	}
	if n == 2 {
		return new(big.Int).Sqrt(v)
	}
	nn := new(big.Int).SetUint64(n)
	nMinus1 := new(big.Int).SetUint64(n - 1)
	// Initial guess: 2^(ceil(bits/n)).
	bits := uint(v.BitLen())
	guess := new(big.Int).Lsh(bigIntOne, (bits+uint(n)-1)/uint(n))
	for {
		// next = ((n-1)*guess + v/guess^(n-1)) / n
		pow := new(big.Int).Exp(guess, nMinus1, nil)
		next := new(big.Int).Quo(v, pow)
		next.Add(next, new(big.Int).Mul(nMinus1, guess))
		next.Quo(next, nn)
		if next.Cmp(guess) >= 0 {
			break
		}
		guess = next
	}
	// Newton can land one too high; correct downward.
	for new(big.Int).Exp(guess, nn, nil).Cmp(v) > 0 {
		guess.Sub(guess, bigIntOne)
	}
	return guess
}

// Floor rounds toward negative infinity to a whole unit.
func (d Decimal) Floor() (Decimal, error) {
	return d.RoundTo(0, RoundTowardsNegativeInfinity)
}

// Ceil rounds toward positive infinity to a whole unit.
func (d Decimal) Ceil() (Decimal, error) {
	return d.RoundTo(0, RoundTowardsPositiveInfinity)
}

// RoundTo rounds to the given number of decimal places (0..18) using mode.
func (d Decimal) RoundTo(places int, mode RoundingMode) (Decimal, error) {
	if places < 0 || places > DecimalScale {
		return Decimal{}, errDecode("rounding places %d out of range", places)
	}
	step := tenPow(DecimalScale - places)
	v := d.big()
	q, r := new(big.Int).QuoRem(v, step, new(big.Int))
	if r.Sign() == 0 {
		return checkedDecimal(new(big.Int).Mul(q, step))
	}
	absR2 := new(big.Int).Abs(r)
	absR2.Mul(absR2, bigIntTwo)
	cmpHalf := absR2.Cmp(step)
	roundAway := false
	switch mode {
	case RoundToZero:
	case RoundAwayFromZero:
		roundAway = true
	case RoundTowardsNegativeInfinity:
		roundAway = v.Sign() < 0
	case RoundTowardsPositiveInfinity:
		roundAway = v.Sign() > 0
	case RoundToNearestMidpointAwayFromZero:
		roundAway = cmpHalf >= 0
	case RoundToNearestMidpointToEven:
		if cmpHalf > 0 {
			roundAway = true
		} else if cmpHalf == 0 {
			roundAway = q.Bit(0) == 1
		}
	default:
		return Decimal{}, errDecode("unknown rounding mode %d", mode)
	}
	if roundAway {
		if v.Sign() >= 0 {
			q.Add(q, bigIntOne)
		} else {
			q.Sub(q, bigIntOne)
		}
	}
	return checkedDecimal(q.Mul(q, step))
}

// String renders the canonical text form: no exponent, no trailing
// fractional zeroes, "0" for zero.
func (d Decimal) String() string {
	return formatFixed(d.big(), DecimalScale)
}

// MarshalJSON renders the canonical text form.
func (d Decimal) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON parses the canonical text form.
func (d *Decimal) UnmarshalJSON(b []byte) error {
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return errDecode("decimal json must be a string")
	}
	parsed, err := ParseDecimal(string(b[1 : len(b)-1]))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDecimal parses the canonical text form. More than 18 fractional
// digits is an error, as is any exponent or grouping character.
func ParseDecimal(s string) (Decimal, error) {
	v, err := parseFixed(s, DecimalScale)
	if err != nil {
		return Decimal{}, err
	}
	return checkedDecimal(v)
}

// MustDecimal is ParseDecimal for literals in tests and genesis wiring.
func MustDecimal(s string) Decimal {
	d, err := ParseDecimal(s)
	if err != nil {
		panic(err)
	}
	return d
}

func formatFixed(v *big.Int, scale int) string {
	if v.Sign() == 0 {
		return "0"
	}
	neg := v.Sign() < 0
	abs := new(big.Int).Abs(v)
	q, r := new(big.Int).QuoRem(abs, tenPow(scale), new(big.Int))
	var sb strings.Builder
	if neg {
		sb.WriteByte('-')
	}
	sb.WriteString(q.String())
	if r.Sign() != 0 {
		frac := fmt.Sprintf("%0*s", scale, r.String())
		frac = strings.TrimRight(frac, "0")
		sb.WriteByte('.')
		sb.WriteString(frac)
	}
	return sb.String()
}

func parseFixed(s string, scale int) (*big.Int, error) {
	if s == "" {
		return nil, errDecode("empty decimal literal")
	}
	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	intPart := s
	fracPart := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, fracPart = s[:i], s[i+1:]
	}
	if intPart == "" && fracPart == "" {
		return nil, errDecode("malformed decimal literal")
	}
	if len(fracPart) > scale {
		return nil, errDecode("decimal literal has more than %d fractional digits", scale)
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart + fracPart {
		if r < '0' || r > '9' {
			return nil, errDecode("invalid character %q in decimal literal", r)
		}
	}
	v, ok := new(big.Int).SetString(intPart, 10)
	if !ok {
		return nil, errDecode("malformed decimal literal")
	}
	v.Mul(v, tenPow(scale))
	if fracPart != "" {
		f, ok := new(big.Int).SetString(fracPart, 10)
		if !ok {
			return nil, errDecode("malformed decimal literal")
		}
		f.Mul(f, tenPow(scale-len(fracPart)))
		v.Add(v, f)
	}
	if neg {
		v.Neg(v)
	}
	return v, nil
}

// twosComplementLE encodes v into a fixed-width little-endian
// two's-complement byte slice.
func twosComplementLE(v *big.Int, width int) []byte {
	out := make([]byte, width)
	tmp := new(big.Int).Set(v)
	if tmp.Sign() < 0 {
		tmp.Add(tmp, new(big.Int).Lsh(bigIntOne, uint(width*8)))
	}
	raw := tmp.Bytes() // big-endian
	for i := 0; i < len(raw) && i < width; i++ {
		out[i] = raw[len(raw)-1-i]
	}
	return out
}

// twosComplementFromLE decodes a fixed-width little-endian two's-complement
// byte slice.
func twosComplementFromLE(b []byte) *big.Int {
	be := make([]byte, len(b))
	for i, x := range b {
		be[len(b)-1-i] = x
	}
	v := new(big.Int).SetBytes(be)
	if len(b) > 0 && b[len(b)-1]&0x80 != 0 {
		v.Sub(v, new(big.Int).Lsh(bigIntOne, uint(len(b)*8)))
	}
	return v
}

// EncodeBytes renders the 24-byte wire form.
func (d Decimal) EncodeBytes() []byte { return twosComplementLE(d.big(), 24) }

// DecodeDecimal parses the 24-byte wire form.
func DecodeDecimal(b []byte) (Decimal, error) {
	if len(b) != 24 {
		return Decimal{}, errDecode("decimal wire form must be 24 bytes, got %d", len(b))
	}
	return DecimalFromSubunits(twosComplementFromLE(b))
}
