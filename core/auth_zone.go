package core

// Auth zones: per-frame transient nodes holding the proofs and virtualized
// signer badges a frame may present. The zone stack mirrors the frame
// stack; a zone belonging to a global actor's frame is an authority
// barrier, so evidence gathering walks outward from the current zone and
// stops once it has included the first barrier zone.

// AuthZoneSubstate is the single field substate of an auth-zone node.
type AuthZoneSubstate struct {
	Proofs        []NodeID // owned proof nodes, presentation order
	VirtualBadges []NonFungibleGlobalID
	Barrier       bool
}

func (s AuthZoneSubstate) toValue() Value {
	proofs := make([]Value, len(s.Proofs))
	for i, p := range s.Proofs {
		proofs[i] = VOwn(p)
	}
	badges := make([]Value, len(s.VirtualBadges))
	for i, b := range s.VirtualBadges {
		badges[i] = VTuple(VAddress(b.Resource), VNFID(b.LocalID))
	}
	return VTuple(
		VArray(ValueKindOwn, proofs...),
		VArray(ValueKindTuple, badges...),
		VBool(s.Barrier),
	)
}

func authZoneFromValue(v Value) (AuthZoneSubstate, error) {
	fields, err := v.AsTuple()
	if err != nil {
		return AuthZoneSubstate{}, err
	}
	if len(fields) != 3 {
		return AuthZoneSubstate{}, errDecode("auth zone expects 3 fields")
	}
	var out AuthZoneSubstate
	for _, p := range fields[0].Elements {
		id, err := p.AsOwn()
		if err != nil {
			return AuthZoneSubstate{}, err
		}
		out.Proofs = append(out.Proofs, id)
	}
	for _, b := range fields[1].Elements {
		parts, err := b.AsTuple()
		if err != nil || len(parts) != 2 {
			return AuthZoneSubstate{}, errDecode("virtual badge tuple malformed")
		}
		res, err := parts[0].AsAddress()
		if err != nil {
			return AuthZoneSubstate{}, err
		}
		id, err := parts[1].AsNFID()
		if err != nil {
			return AuthZoneSubstate{}, err
		}
		out.VirtualBadges = append(out.VirtualBadges, NonFungibleGlobalID{Resource: res, LocalID: id})
	}
	if out.Barrier, err = fields[2].AsBool(); err != nil {
		return AuthZoneSubstate{}, err
	}
	return out, nil
}

func (s AuthZoneSubstate) encode() []byte { return MustEncodePayload(s.toValue()) }

func decodeAuthZone(b []byte) (AuthZoneSubstate, error) {
	v, err := DecodePayload(b)
	if err != nil {
		return AuthZoneSubstate{}, err
	}
	return authZoneFromValue(v)
}

// ProofSubstate is the single field substate of a proof node: the asserted
// evidence, detached from the source containers that backed it.
type ProofSubstate struct {
	Resource NodeID
	Fungible bool
	Amount   Decimal
	IDs      NonFungibleIDSet
}

func (s ProofSubstate) toValue() Value {
	ids := make([]Value, 0, s.IDs.Len())
	for _, id := range s.IDs.IDs() {
		ids = append(ids, VNFID(id))
	}
	return VTuple(
		VAddress(s.Resource),
		VBool(s.Fungible),
		VDecimal(s.Amount),
		VArray(ValueKindNonFungibleLocalID, ids...),
	)
}

func proofFromValue(v Value) (ProofSubstate, error) {
	fields, err := v.AsTuple()
	if err != nil {
		return ProofSubstate{}, err
	}
	if len(fields) != 4 {
		return ProofSubstate{}, errDecode("proof expects 4 fields")
	}
	var out ProofSubstate
	if out.Resource, err = fields[0].AsAddress(); err != nil {
		return ProofSubstate{}, err
	}
	if out.Fungible, err = fields[1].AsBool(); err != nil {
		return ProofSubstate{}, err
	}
	if out.Amount, err = fields[2].AsDecimal(); err != nil {
		return ProofSubstate{}, err
	}
	for _, e := range fields[3].Elements {
		id, err := e.AsNFID()
		if err != nil {
			return ProofSubstate{}, err
		}
		out.IDs.Insert(id)
	}
	return out, nil
}

func (s ProofSubstate) encode() []byte { return MustEncodePayload(s.toValue()) }

func decodeProof(b []byte) (ProofSubstate, error) {
	v, err := DecodePayload(b)
	if err != nil {
		return ProofSubstate{}, err
	}
	return proofFromValue(v)
}

// snapshot renders the receipt-independent evidence view.
func (s ProofSubstate) snapshot() ProofSnapshot {
	return ProofSnapshot{Resource: s.Resource, Amount: s.Amount, IDs: s.IDs}
}
