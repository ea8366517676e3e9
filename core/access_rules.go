package core

// Access rules: the sum-of-products authority language attached to methods
// and roles. A rule is AllowAll, DenyAll, or a tree of proof requirements
// evaluated against the auth-zone stack at invocation time.

import (
	"fmt"
	"strings"
)

// AccessRuleKind discriminates the top level of a rule.
type AccessRuleKind uint8

const (
	AccessRuleAllowAll AccessRuleKind = iota
	AccessRuleDenyAll
	AccessRuleProtected
)

// ProofRuleKind discriminates requirement-tree nodes.
type ProofRuleKind uint8

const (
	ProofRuleRequire ProofRuleKind = iota
	ProofRuleAmountOf
	ProofRuleAllOf
	ProofRuleAnyOf
	ProofRuleCountOf
)

// ProofRuleNode is one node of a requirement tree.
type ProofRuleNode struct {
	Kind ProofRuleKind

	// Require: either a whole resource or one specific non-fungible.
	Resource    NodeID
	NonFungible *NonFungibleGlobalID

	// AmountOf.
	Amount Decimal

	// CountOf.
	Count uint8

	// AllOf / AnyOf / CountOf children.
	Children []ProofRuleNode
}

// AccessRule is the authority requirement evaluated before dispatch.
type AccessRule struct {
	Kind AccessRuleKind
	Rule ProofRuleNode // meaningful only for Protected
}

func AllowAll() AccessRule { return AccessRule{Kind: AccessRuleAllowAll} }
func DenyAll() AccessRule  { return AccessRule{Kind: AccessRuleDenyAll} }

// RequireResource builds "present any amount of this resource".
func RequireResource(resource NodeID) AccessRule {
	return AccessRule{Kind: AccessRuleProtected, Rule: ProofRuleNode{Kind: ProofRuleRequire, Resource: resource}}
}

// RequireNonFungible builds "present this specific badge".
func RequireNonFungible(badge NonFungibleGlobalID) AccessRule {
	b := badge
	return AccessRule{Kind: AccessRuleProtected, Rule: ProofRuleNode{Kind: ProofRuleRequire, Resource: badge.Resource, NonFungible: &b}}
}

// RequireAmount builds "present at least amount of resource".
func RequireAmount(amount Decimal, resource NodeID) AccessRule {
	return AccessRule{Kind: AccessRuleProtected, Rule: ProofRuleNode{Kind: ProofRuleAmountOf, Amount: amount, Resource: resource}}
}

// RequireAnyOf composes alternatives of existing protected rules.
func RequireAnyOf(rules ...AccessRule) AccessRule {
	children := make([]ProofRuleNode, 0, len(rules))
	for _, r := range rules {
		if r.Kind == AccessRuleProtected {
			children = append(children, r.Rule)
		}
	}
	return AccessRule{Kind: AccessRuleProtected, Rule: ProofRuleNode{Kind: ProofRuleAnyOf, Children: children}}
}

// RequireAllOf composes conjunctions of existing protected rules.
func RequireAllOf(rules ...AccessRule) AccessRule {
	children := make([]ProofRuleNode, 0, len(rules))
	for _, r := range rules {
		if r.Kind == AccessRuleProtected {
			children = append(children, r.Rule)
		}
	}
	return AccessRule{Kind: AccessRuleProtected, Rule: ProofRuleNode{Kind: ProofRuleAllOf, Children: children}}
}

// RequireCountOf requires n of the child requirements to hold.
func RequireCountOf(n uint8, rules ...AccessRule) AccessRule {
	children := make([]ProofRuleNode, 0, len(rules))
	for _, r := range rules {
		if r.Kind == AccessRuleProtected {
			children = append(children, r.Rule)
		}
	}
	return AccessRule{Kind: AccessRuleProtected, Rule: ProofRuleNode{Kind: ProofRuleCountOf, Count: n, Children: children}}
}

func (r AccessRule) String() string {
	switch r.Kind {
	case AccessRuleAllowAll:
		return "AllowAll"
	case AccessRuleDenyAll:
		return "DenyAll"
	default:
		return "Protected(" + r.Rule.String() + ")"
	}
}

func (n ProofRuleNode) String() string {
	switch n.Kind {
	case ProofRuleRequire:
		if n.NonFungible != nil {
			return "Require(" + n.NonFungible.String() + ")"
		}
		return "Require(" + n.Resource.String() + ")"
	case ProofRuleAmountOf:
		return fmt.Sprintf("AmountOf(%s, %s)", n.Amount, n.Resource)
	case ProofRuleAllOf, ProofRuleAnyOf, ProofRuleCountOf:
		parts := make([]string, len(n.Children))
		for i, c := range n.Children {
			parts[i] = c.String()
		}
		name := map[ProofRuleKind]string{ProofRuleAllOf: "AllOf", ProofRuleAnyOf: "AnyOf", ProofRuleCountOf: "CountOf"}[n.Kind]
		if n.Kind == ProofRuleCountOf {
			return fmt.Sprintf("%s(%d, [%s])", name, n.Count, strings.Join(parts, ", "))
		}
		return name + "([" + strings.Join(parts, ", ") + "])"
	default:
		return "?"
	}
}

// -----------------------------------------------------------------------------
// Codec
// -----------------------------------------------------------------------------

// Rules are persisted in role-assignment partitions as enum values.

func (r AccessRule) toValue() Value {
	switch r.Kind {
	case AccessRuleAllowAll:
		return VEnum(0)
	case AccessRuleDenyAll:
		return VEnum(1)
	default:
		return VEnum(2, r.Rule.toValue())
	}
}

func (n ProofRuleNode) toValue() Value {
	switch n.Kind {
	case ProofRuleRequire:
		if n.NonFungible != nil {
			return VEnum(0, VAddress(n.NonFungible.Resource), VNFID(n.NonFungible.LocalID))
		}
		return VEnum(1, VAddress(n.Resource))
	case ProofRuleAmountOf:
		return VEnum(2, VDecimal(n.Amount), VAddress(n.Resource))
	default:
		children := make([]Value, len(n.Children))
		for i, c := range n.Children {
			children[i] = c.toValue()
		}
		arr := VArray(ValueKindEnum, children...)
		switch n.Kind {
		case ProofRuleAllOf:
			return VEnum(3, arr)
		case ProofRuleAnyOf:
			return VEnum(4, arr)
		default:
			return VEnum(5, VU8(n.Count), arr)
		}
	}
}

func accessRuleFromValue(v Value) (AccessRule, error) {
	disc, fields, err := v.AsEnum()
	if err != nil {
		return AccessRule{}, err
	}
	switch disc {
	case 0:
		return AllowAll(), nil
	case 1:
		return DenyAll(), nil
	case 2:
		if len(fields) != 1 {
			return AccessRule{}, errDecode("protected rule expects one field")
		}
		node, err := proofRuleFromValue(fields[0])
		if err != nil {
			return AccessRule{}, err
		}
		return AccessRule{Kind: AccessRuleProtected, Rule: node}, nil
	default:
		return AccessRule{}, errDecode("unknown access rule discriminator %d", disc)
	}
}

func proofRuleFromValue(v Value) (ProofRuleNode, error) {
	disc, fields, err := v.AsEnum()
	if err != nil {
		return ProofRuleNode{}, err
	}
	childList := func(i int) ([]ProofRuleNode, error) {
		if i >= len(fields) || fields[i].Kind != ValueKindArray {
			return nil, errDecode("rule children must be an array")
		}
		out := make([]ProofRuleNode, len(fields[i].Elements))
		for j, e := range fields[i].Elements {
			c, err := proofRuleFromValue(e)
			if err != nil {
				return nil, err
			}
			out[j] = c
		}
		return out, nil
	}
	switch disc {
	case 0:
		if len(fields) != 2 {
			return ProofRuleNode{}, errDecode("badge require expects two fields")
		}
		res, err := fields[0].AsAddress()
		if err != nil {
			return ProofRuleNode{}, err
		}
		id, err := fields[1].AsNFID()
		if err != nil {
			return ProofRuleNode{}, err
		}
		g := NonFungibleGlobalID{Resource: res, LocalID: id}
		return ProofRuleNode{Kind: ProofRuleRequire, Resource: res, NonFungible: &g}, nil
	case 1:
		if len(fields) != 1 {
			return ProofRuleNode{}, errDecode("resource require expects one field")
		}
		res, err := fields[0].AsAddress()
		if err != nil {
			return ProofRuleNode{}, err
		}
		return ProofRuleNode{Kind: ProofRuleRequire, Resource: res}, nil
	case 2:
		if len(fields) != 2 {
			return ProofRuleNode{}, errDecode("amount rule expects two fields")
		}
		amount, err := fields[0].AsDecimal()
		if err != nil {
			return ProofRuleNode{}, err
		}
		res, err := fields[1].AsAddress()
		if err != nil {
			return ProofRuleNode{}, err
		}
		return ProofRuleNode{Kind: ProofRuleAmountOf, Amount: amount, Resource: res}, nil
	case 3:
		children, err := childList(0)
		if err != nil {
			return ProofRuleNode{}, err
		}
		return ProofRuleNode{Kind: ProofRuleAllOf, Children: children}, nil
	case 4:
		children, err := childList(0)
		if err != nil {
			return ProofRuleNode{}, err
		}
		return ProofRuleNode{Kind: ProofRuleAnyOf, Children: children}, nil
	case 5:
		if len(fields) != 2 {
			return ProofRuleNode{}, errDecode("count rule expects two fields")
		}
		n, err := fields[0].AsU8()
		if err != nil {
			return ProofRuleNode{}, err
		}
		children, err := childList(1)
		if err != nil {
			return ProofRuleNode{}, err
		}
		return ProofRuleNode{Kind: ProofRuleCountOf, Count: n, Children: children}, nil
	default:
		return ProofRuleNode{}, errDecode("unknown proof rule discriminator %d", disc)
	}
}

// -----------------------------------------------------------------------------
// Evaluation
// -----------------------------------------------------------------------------

// AuthEvidence is the flattened view of the visible auth-zone stack:
// concrete proof snapshots plus virtualized signature badges.
type AuthEvidence struct {
	Proofs []ProofSnapshot
	Badges []NonFungibleGlobalID
}

// ProofSnapshot is the evidence a proof asserts, detached from its node.
type ProofSnapshot struct {
	Resource NodeID
	Amount   Decimal
	IDs      NonFungibleIDSet // empty for fungible proofs
}

// Evaluate decides an access rule against evidence. Evaluation is
// short-circuit and recursive; DenyAll never passes.
func (r AccessRule) Evaluate(ev *AuthEvidence) bool {
	switch r.Kind {
	case AccessRuleAllowAll:
		return true
	case AccessRuleDenyAll:
		return false
	default:
		return r.Rule.evaluate(ev)
	}
}

func (n ProofRuleNode) evaluate(ev *AuthEvidence) bool {
	switch n.Kind {
	case ProofRuleRequire:
		if n.NonFungible != nil {
			return ev.hasBadge(*n.NonFungible)
		}
		return ev.hasAnyOf(n.Resource)
	case ProofRuleAmountOf:
		return ev.totalAmount(n.Resource).GTE(n.Amount)
	case ProofRuleAllOf:
		for _, c := range n.Children {
			if !c.evaluate(ev) {
				return false
			}
		}
		return true
	case ProofRuleAnyOf:
		for _, c := range n.Children {
			if c.evaluate(ev) {
				return true
			}
		}
		return false
	case ProofRuleCountOf:
		matched := uint8(0)
		for _, c := range n.Children {
			if c.evaluate(ev) {
				matched++
				if matched >= n.Count {
					return true
				}
			}
		}
		return n.Count == 0
	default:
		return false
	}
}

func (ev *AuthEvidence) hasBadge(want NonFungibleGlobalID) bool {
	for _, b := range ev.Badges {
		if b.Resource == want.Resource && b.LocalID.Key() == want.LocalID.Key() {
			return true
		}
	}
	for _, p := range ev.Proofs {
		if p.Resource == want.Resource && p.IDs.Contains(want.LocalID) {
			return true
		}
	}
	return false
}

func (ev *AuthEvidence) hasAnyOf(resource NodeID) bool {
	for _, b := range ev.Badges {
		if b.Resource == resource {
			return true
		}
	}
	for _, p := range ev.Proofs {
		if p.Resource == resource && p.Amount.IsPositive() {
			return true
		}
	}
	return false
}

func (ev *AuthEvidence) totalAmount(resource NodeID) Decimal {
	total := ZeroDecimal()
	for _, p := range ev.Proofs {
		if p.Resource == resource {
			if sum, err := total.Add(p.Amount); err == nil {
				total = sum
			}
		}
	}
	for _, b := range ev.Badges {
		if b.Resource == resource {
			if sum, err := total.Add(OneDecimal()); err == nil {
				total = sum
			}
		}
	}
	return total
}
