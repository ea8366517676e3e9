package core

import "testing"

func testResource(b byte) NodeID {
	var body [29]byte
	body[0] = b
	return NewNodeID(EntityTypeGlobalFungibleResource, body[:])
}

func TestAccessRuleEvaluation(t *testing.T) {
	resA := testResource(1)
	resB := testResource(2)
	badge := NonFungibleGlobalID{Resource: testResource(3), LocalID: IntegerLocalID(7)}

	ev := &AuthEvidence{
		Proofs: []ProofSnapshot{{Resource: resA, Amount: NewDecimal(5)}},
		Badges: []NonFungibleGlobalID{badge},
	}

	cases := []struct {
		rule AccessRule
		want bool
	}{
		{AllowAll(), true},
		{DenyAll(), false},
		{RequireResource(resA), true},
		{RequireResource(resB), false},
		{RequireNonFungible(badge), true},
		{RequireNonFungible(NonFungibleGlobalID{Resource: badge.Resource, LocalID: IntegerLocalID(8)}), false},
		{RequireAmount(NewDecimal(5), resA), true},
		{RequireAmount(NewDecimal(6), resA), false},
		{RequireAnyOf(RequireResource(resB), RequireResource(resA)), true},
		{RequireAllOf(RequireResource(resA), RequireNonFungible(badge)), true},
		{RequireAllOf(RequireResource(resA), RequireResource(resB)), false},
		{RequireCountOf(2, RequireResource(resA), RequireResource(resB), RequireNonFungible(badge)), true},
		{RequireCountOf(3, RequireResource(resA), RequireResource(resB), RequireNonFungible(badge)), false},
	}
	for i, tc := range cases {
		if got := tc.rule.Evaluate(ev); got != tc.want {
			t.Fatalf("case %d (%s): got %v, want %v", i, tc.rule, got, tc.want)
		}
	}
}

func TestProofEvidenceCoversBadgeRequire(t *testing.T) {
	resource := testResource(4)
	want := NonFungibleGlobalID{Resource: resource, LocalID: IntegerLocalID(1)}
	ev := &AuthEvidence{Proofs: []ProofSnapshot{{
		Resource: resource,
		Amount:   NewDecimal(1),
		IDs:      NewIDSet(IntegerLocalID(1)),
	}}}
	if !RequireNonFungible(want).Evaluate(ev) {
		t.Fatal("proof holding the id must satisfy the badge requirement")
	}
}

func TestAccessRuleCodecRoundTrip(t *testing.T) {
	badge := NonFungibleGlobalID{Resource: testResource(5), LocalID: IntegerLocalID(9)}
	rules := []AccessRule{
		AllowAll(),
		DenyAll(),
		RequireResource(testResource(1)),
		RequireNonFungible(badge),
		RequireAmount(MustDecimal("2.5"), testResource(2)),
		RequireAnyOf(RequireResource(testResource(1)), RequireAmount(OneDecimal(), testResource(2))),
		RequireAllOf(RequireNonFungible(badge), RequireResource(testResource(1))),
		RequireCountOf(2, RequireResource(testResource(1)), RequireResource(testResource(2)), RequireNonFungible(badge)),
	}
	for i, rule := range rules {
		decoded, err := decodeAccessRule(encodeAccessRule(rule))
		if err != nil {
			t.Fatalf("case %d decode: %v", i, err)
		}
		if decoded.String() != rule.String() {
			t.Fatalf("case %d round trip: %s -> %s", i, rule, decoded)
		}
	}
}
