package core

import (
	"math/big"
	"testing"
)

// ------------------------------------------------------------
// Parse / format round trips
// ------------------------------------------------------------

func TestDecimalStringRoundTrip(t *testing.T) {
	cases := []string{
		"0", "1", "-1", "0.5", "-0.5", "123.456", "-123.456",
		"0.000000000000000001", "-0.000000000000000001",
		"1000000000", "3.14159", "42",
	}
	for _, s := range cases {
		d, err := ParseDecimal(s)
		if err != nil {
			t.Fatalf("parse %q: %v", s, err)
		}
		if got := d.String(); got != s {
			t.Fatalf("round trip %q -> %q", s, got)
		}
		back, err := DecodeDecimal(d.EncodeBytes())
		if err != nil {
			t.Fatalf("wire round trip %q: %v", s, err)
		}
		if !back.Equal(d) {
			t.Fatalf("wire round trip %q changed value", s)
		}
	}
}

func TestDecimalParseRejects(t *testing.T) {
	bad := []string{"", ".", "-", "1.0000000000000000001", "1e5", "1,5", "abc", "--1"}
	for _, s := range bad {
		if _, err := ParseDecimal(s); err == nil {
			t.Fatalf("expected parse error for %q", s)
		}
	}
}

// ------------------------------------------------------------
// Checked arithmetic
// ------------------------------------------------------------

func TestDecimalArithmetic(t *testing.T) {
	a := MustDecimal("10.5")
	b := MustDecimal("2.5")

	if sum, _ := a.Add(b); !sum.Equal(MustDecimal("13")) {
		t.Fatalf("add: %s", sum)
	}
	if diff, _ := a.Sub(b); !diff.Equal(MustDecimal("8")) {
		t.Fatalf("sub: %s", diff)
	}
	if prod, _ := a.Mul(b); !prod.Equal(MustDecimal("26.25")) {
		t.Fatalf("mul: %s", prod)
	}
	if quot, _ := a.Div(b); !quot.Equal(MustDecimal("4.2")) {
		t.Fatalf("div: %s", quot)
	}
	if _, err := a.Div(ZeroDecimal()); err == nil {
		t.Fatal("expected division by zero error")
	}
}

func TestDecimalOverflow(t *testing.T) {
	max, err := DecimalFromSubunits(new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 191), big.NewInt(1)))
	if err != nil {
		t.Fatalf("max: %v", err)
	}
	if _, err := max.Add(OneDecimal()); err == nil {
		t.Fatal("expected overflow on max+1")
	}
	if _, err := max.Mul(NewDecimal(2)); err == nil {
		t.Fatal("expected overflow on max*2")
	}
	min, err := DecimalFromSubunits(new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 191)))
	if err != nil {
		t.Fatalf("min: %v", err)
	}
	if _, err := min.Neg(); err == nil {
		t.Fatal("expected overflow negating the minimum")
	}
}

func TestDecimalPowI(t *testing.T) {
	if p, _ := NewDecimal(2).PowI(10); !p.Equal(NewDecimal(1024)) {
		t.Fatalf("2^10 = %s", p)
	}
	if p, _ := NewDecimal(2).PowI(-1); !p.Equal(MustDecimal("0.5")) {
		t.Fatalf("2^-1 = %s", p)
	}
	if p, _ := MustDecimal("1.5").PowI(2); !p.Equal(MustDecimal("2.25")) {
		t.Fatalf("1.5^2 = %s", p)
	}
	if p, _ := NewDecimal(7).PowI(0); !p.Equal(OneDecimal()) {
		t.Fatalf("7^0 = %s", p)
	}
}

func TestDecimalNthRoot(t *testing.T) {
	if r, _ := NewDecimal(9).NthRoot(2); !r.Equal(NewDecimal(3)) {
		t.Fatalf("sqrt 9 = %s", r)
	}
	if r, _ := NewDecimal(27).NthRoot(3); !r.Equal(NewDecimal(3)) {
		t.Fatalf("cbrt 27 = %s", r)
	}
	neg, _ := NewDecimal(8).Neg()
	if r, _ := neg.NthRoot(3); !r.Equal(MustDecimal("-2")) {
		t.Fatalf("cbrt -8 = %s", r)
	}
	if _, err := neg.NthRoot(2); err == nil {
		t.Fatal("expected error for even root of negative")
	}
	// sqrt(2) to 18 places, truncated.
	r, _ := NewDecimal(2).NthRoot(2)
	if r.String() != "1.414213562373095048" {
		t.Fatalf("sqrt 2 = %s", r)
	}
}

func TestDecimalRounding(t *testing.T) {
	d := MustDecimal("3.456")
	cases := []struct {
		places int
		mode   RoundingMode
		want   string
	}{
		{2, RoundToZero, "3.45"},
		{2, RoundAwayFromZero, "3.46"},
		{2, RoundToNearestMidpointAwayFromZero, "3.46"},
		{0, RoundTowardsNegativeInfinity, "3"},
		{0, RoundTowardsPositiveInfinity, "4"},
	}
	for _, tc := range cases {
		got, err := d.RoundTo(tc.places, tc.mode)
		if err != nil {
			t.Fatalf("round %d/%d: %v", tc.places, tc.mode, err)
		}
		if got.String() != tc.want {
			t.Fatalf("round(%s, %d, %d) = %s, want %s", d, tc.places, tc.mode, got, tc.want)
		}
	}
	neg := MustDecimal("-3.456")
	if got, _ := neg.Floor(); got.String() != "-4" {
		t.Fatalf("floor(-3.456) = %s", got)
	}
	if got, _ := neg.Ceil(); got.String() != "-3" {
		t.Fatalf("ceil(-3.456) = %s", got)
	}
	half := MustDecimal("2.5")
	if got, _ := half.RoundTo(0, RoundToNearestMidpointToEven); got.String() != "2" {
		t.Fatalf("bankers 2.5 = %s", got)
	}
	if got, _ := MustDecimal("3.5").RoundTo(0, RoundToNearestMidpointToEven); got.String() != "4" {
		t.Fatalf("bankers 3.5 = %s", got)
	}
}

// ------------------------------------------------------------
// PreciseDecimal
// ------------------------------------------------------------

func TestPreciseDecimalWidenDowncast(t *testing.T) {
	d := MustDecimal("123.456789")
	wide := d.Widen()
	back, err := wide.CheckedDowncast()
	if err != nil {
		t.Fatalf("downcast: %v", err)
	}
	if !back.Equal(d) {
		t.Fatalf("widen/downcast changed %s -> %s", d, back)
	}

	big36 := MustPreciseDecimal("0.000000000000000000000000000000000001")
	trunc, err := big36.CheckedDowncast()
	if err != nil {
		t.Fatalf("downcast tiny: %v", err)
	}
	if !trunc.IsZero() {
		t.Fatalf("expected truncation to zero, got %s", trunc)
	}
}

func TestPreciseDecimalArithmetic(t *testing.T) {
	a := MustPreciseDecimal("2")
	b := MustPreciseDecimal("3")
	if p, _ := a.Mul(b); !p.Equal(MustPreciseDecimal("6")) {
		t.Fatalf("mul: %s", p)
	}
	if q, _ := a.Div(b); q.String() != "0.666666666666666666666666666666666666" {
		t.Fatalf("div: %s", q)
	}
	if _, err := a.Div(ZeroPreciseDecimal()); err == nil {
		t.Fatal("expected division by zero error")
	}
	if p, _ := a.PowI(128); p.String() != "340282366920938463463374607431768211456" {
		t.Fatalf("2^128 = %s", p)
	}
}
