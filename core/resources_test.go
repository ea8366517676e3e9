package core

import "testing"

func TestNonFungibleLocalIDTextRoundTrip(t *testing.T) {
	strID, _ := StringLocalID("alpha_7")
	bytesID, _ := BytesLocalID([]byte{0xab, 0xcd})
	ids := []NonFungibleLocalID{
		IntegerLocalID(0),
		IntegerLocalID(18446744073709551615),
		strID,
		bytesID,
		RUIDLocalID([32]byte{1, 2, 3}),
	}
	for _, id := range ids {
		parsed, err := ParseNonFungibleLocalID(id.String())
		if err != nil {
			t.Fatalf("parse %s: %v", id, err)
		}
		if parsed.Key() != id.Key() {
			t.Fatalf("text round trip changed %s", id)
		}
		decoded, err := DecodeNonFungibleLocalID(id.EncodeBytes())
		if err != nil {
			t.Fatalf("wire round trip %s: %v", id, err)
		}
		if decoded.Key() != id.Key() {
			t.Fatalf("wire round trip changed %s", id)
		}
	}
}

func TestStringLocalIDCharset(t *testing.T) {
	if _, err := StringLocalID("has space"); err == nil {
		t.Fatal("expected charset error")
	}
	if _, err := StringLocalID(""); err == nil {
		t.Fatal("expected empty id error")
	}
}

func TestIDSetDeterministicOrder(t *testing.T) {
	set := NewIDSet(IntegerLocalID(3), IntegerLocalID(1), IntegerLocalID(2))
	ids := set.IDs()
	if ids[0].Int != 1 || ids[1].Int != 2 || ids[2].Int != 3 {
		t.Fatalf("ids not sorted: %v", set)
	}
	if !set.Insert(IntegerLocalID(4)) {
		t.Fatal("insert of fresh id reported duplicate")
	}
	if set.Insert(IntegerLocalID(4)) {
		t.Fatal("duplicate insert reported fresh")
	}
	if !set.Remove(IntegerLocalID(4)) {
		t.Fatal("remove of present id failed")
	}
	if set.Remove(IntegerLocalID(4)) {
		t.Fatal("remove of absent id succeeded")
	}
}

// ------------------------------------------------------------
// Liquid container algebra
// ------------------------------------------------------------

func TestFungibleTakePut(t *testing.T) {
	l := LiquidFungible{Amount: NewDecimal(100)}
	taken, err := l.Take(NewDecimal(30), 18)
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	if !l.Amount.Equal(NewDecimal(70)) || !taken.Amount.Equal(NewDecimal(30)) {
		t.Fatalf("split wrong: %s / %s", l.Amount, taken.Amount)
	}
	// L2: put(take(x)) restores the balance.
	if err := l.Put(taken); err != nil {
		t.Fatalf("put: %v", err)
	}
	if !l.Amount.Equal(NewDecimal(100)) {
		t.Fatalf("put(take(x)) != identity: %s", l.Amount)
	}

	if _, err := l.Take(NewDecimal(200), 18); err == nil {
		t.Fatal("expected insufficient balance")
	}
	if _, err := l.Take(MustDecimal("-1"), 18); err == nil {
		t.Fatal("expected negative amount error")
	}
}

func TestFungibleDivisibility(t *testing.T) {
	l := LiquidFungible{Amount: NewDecimal(10)}
	if _, err := l.Take(MustDecimal("0.5"), 0); err == nil {
		t.Fatal("divisibility 0 must reject fractions")
	}
	if _, err := l.Take(MustDecimal("0.05"), 1); err == nil {
		t.Fatal("divisibility 1 must reject hundredths")
	}
	if _, err := l.Take(MustDecimal("0.5"), 1); err != nil {
		t.Fatalf("divisibility 1 rejects tenths: %v", err)
	}
}

func TestNonFungibleTakeByIDs(t *testing.T) {
	l := LiquidNonFungible{IDs: NewIDSet(IntegerLocalID(1), IntegerLocalID(2), IntegerLocalID(3))}
	taken, err := l.TakeByIDs(NewIDSet(IntegerLocalID(2)))
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	if l.IDs.Len() != 2 || taken.IDs.Len() != 1 {
		t.Fatal("cardinality wrong after take")
	}
	if !l.Amount().Equal(NewDecimal(2)) {
		t.Fatalf("amount %s != cardinality", l.Amount())
	}
	if _, err := l.TakeByIDs(NewIDSet(IntegerLocalID(9))); err == nil {
		t.Fatal("expected missing id error")
	}
	if err := l.Put(taken); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := l.Put(LiquidNonFungible{IDs: NewIDSet(IntegerLocalID(1))}); err == nil {
		t.Fatal("expected duplicate id error")
	}
}

func TestNonFungibleTakeByAmount(t *testing.T) {
	l := LiquidNonFungible{IDs: NewIDSet(IntegerLocalID(5), IntegerLocalID(1), IntegerLocalID(3))}
	taken, err := l.TakeByAmount(NewDecimal(2))
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	// Canonical order picks the two smallest.
	ids := taken.IDs.IDs()
	if ids[0].Int != 1 || ids[1].Int != 3 {
		t.Fatalf("non-canonical selection: %v", taken.IDs)
	}
	if _, err := l.TakeByAmount(MustDecimal("0.5")); err == nil {
		t.Fatal("expected fractional amount error")
	}
	if _, err := l.TakeByAmount(NewDecimal(9)); err == nil {
		t.Fatal("expected insufficient error")
	}
}
