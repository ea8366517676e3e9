package core

import "testing"

func clockKernel(t *testing.T, e *Engine) *Kernel {
	t.Helper()
	fees := NewFeeReserve(0)
	fees.loanRemaining = 1 << 40
	return NewKernel(e.Store(), HashOf([]byte("clock-test")), fees, nil)
}

func TestClockSetAndCompare(t *testing.T) {
	e := newTestEngine(t, devGenesis())

	// 2023-11-14 22:13:20.123 UTC, in ms; stored value rounds down to the minute.
	const raw = int64(1_700_000_000_123)
	rounded := (raw / millisPerMinute) * millisPerMinute

	mustCommit(t, runTx(t, e, 1, nil,
		CallMethod(ClockAddress, "set_current_time", ArgLiteral(VI64(raw))),
	))

	k := clockKernel(t, e)
	got, err := clockGetTime(k, ClockAddress, VTuple(VU8(uint8(PrecisionMinute))))
	if err != nil {
		t.Fatalf("get_current_time: %v", err)
	}
	if ms, _ := got.AsI64(); ms != rounded {
		t.Fatalf("stored time %d, want %d", ms, rounded)
	}

	cases := []struct {
		instant  int64
		operator TimeComparisonOperator
		want     bool
	}{
		{rounded + millisPerMinute, CompareBefore, true},
		{rounded, CompareBefore, false},
		{rounded, CompareAtOrBefore, true},
		{rounded - millisPerMinute, CompareAfter, true},
		{rounded, CompareAtOrAfter, true},
		{rounded + millisPerMinute, CompareAtOrAfter, false},
	}
	for i, tc := range cases {
		got, err := clockCompareTime(k, ClockAddress, VTuple(
			VI64(tc.instant), VU8(uint8(PrecisionSecond)), VU8(uint8(tc.operator))))
		if err != nil {
			t.Fatalf("case %d: %v", i, err)
		}
		if b, _ := got.AsBool(); b != tc.want {
			t.Fatalf("case %d: got %v, want %v", i, b, tc.want)
		}
	}

	// Minute precision rounds the probe before comparing.
	got2, err := clockCompareTime(k, ClockAddress, VTuple(
		VI64(rounded+30_000), VU8(uint8(PrecisionMinute)), VU8(uint8(CompareAtOrBefore))))
	if err != nil {
		t.Fatalf("minute compare: %v", err)
	}
	if b, _ := got2.AsBool(); !b {
		t.Fatal("minute precision must round the probe down")
	}
}

func TestClockNeverMovesBackwards(t *testing.T) {
	e := newTestEngine(t, devGenesis())
	mustCommit(t, runTx(t, e, 1, nil,
		CallMethod(ClockAddress, "set_current_time", ArgLiteral(VI64(int64(120*millisPerMinute)))),
	))
	r := runTx(t, e, 2, nil,
		CallMethod(ClockAddress, "set_current_time", ArgLiteral(VI64(int64(60*millisPerMinute)))),
	)
	if r.Result != ResultCommitFailure || r.ErrorKind != ErrKindApplication {
		t.Fatalf("expected application failure, got %s / %s", r.Result, r.ErrorKind)
	}
}
