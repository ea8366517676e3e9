package core

// Auth-zone blueprint methods: the processor (and blueprints, through the
// kernel API) push, pop and compose proofs on the zone of the running
// frame. Proof composition draws evidence from the zone's own proofs and
// virtual badges; it never moves resources.

func init() {
	registerNative(PackageResource, BlueprintAuthZone, "push", authZonePush)
	registerNative(PackageResource, BlueprintAuthZone, "pop", authZonePop)
	registerNative(PackageResource, BlueprintAuthZone, "create_proof_of_amount", authZoneProofOfAmount)
	registerNative(PackageResource, BlueprintAuthZone, "create_proof_of_non_fungibles", authZoneProofOfNonFungibles)
	registerNative(PackageResource, BlueprintAuthZone, "create_proof_of_all", authZoneProofOfAll)
	registerNative(PackageResource, BlueprintAuthZone, "drop_proofs", authZoneDropProofs)
}

// authZonePush: (proof) -> ().
func authZonePush(k *Kernel, receiver NodeID, input Value) (Value, error) {
	fields, err := input.AsTuple()
	if err != nil || len(fields) != 1 {
		return Value{}, errDecode("push expects (proof)")
	}
	proof, err := fields[0].AsOwn()
	if err != nil {
		return Value{}, err
	}
	if proof.EntityType() != EntityTypeInternalProof {
		return Value{}, errKernel("auth zone accepts proofs only, got %s", proof.EntityType())
	}
	err = k.updateAuthZone(receiver, func(z *AuthZoneSubstate) error {
		z.Proofs = append(z.Proofs, proof)
		return nil
	})
	if err != nil {
		return Value{}, err
	}
	// Ownership transfers from the frame to the zone substate.
	k.frame.demote(proof)
	return VTuple(), nil
}

// authZonePop: () -> proof.
func authZonePop(k *Kernel, receiver NodeID, _ Value) (Value, error) {
	var popped NodeID
	err := k.updateAuthZone(receiver, func(z *AuthZoneSubstate) error {
		if len(z.Proofs) == 0 {
			return errResource("auth zone is empty")
		}
		popped = z.Proofs[len(z.Proofs)-1]
		z.Proofs = z.Proofs[:len(z.Proofs)-1]
		return nil
	})
	if err != nil {
		return Value{}, err
	}
	k.frame.addOwned(popped)
	return VOwn(popped), nil
}

// zoneEvidence flattens one zone's own proofs and badges.
func zoneEvidence(k *Kernel, zone NodeID) (*AuthEvidence, error) {
	state, err := k.readAuthZone(zone)
	if err != nil {
		return nil, err
	}
	ev := &AuthEvidence{Badges: state.VirtualBadges}
	for _, proofID := range state.Proofs {
		payload, ok := k.heap.Read(proofID, PartitionMain, FieldKey(0))
		if !ok {
			continue
		}
		sub, err := decodeProof(payload)
		if err != nil {
			return nil, err
		}
		ev.Proofs = append(ev.Proofs, sub.snapshot())
	}
	return ev, nil
}

// authZoneProofOfAmount: (resource, amount) -> proof.
func authZoneProofOfAmount(k *Kernel, receiver NodeID, input Value) (Value, error) {
	fields, err := input.AsTuple()
	if err != nil || len(fields) != 2 {
		return Value{}, errDecode("create_proof_of_amount expects (resource, amount)")
	}
	resource, err := fields[0].AsAddress()
	if err != nil {
		return Value{}, err
	}
	amount, err := fields[1].AsDecimal()
	if err != nil {
		return Value{}, err
	}
	ev, err := zoneEvidence(k, receiver)
	if err != nil {
		return Value{}, err
	}
	if ev.totalAmount(resource).LT(amount) {
		return Value{}, errResource("auth zone holds %s of %s, need %s", ev.totalAmount(resource), resource, amount)
	}
	proof, err := newProofNode(k, ProofSubstate{Resource: resource, Fungible: true, Amount: amount})
	if err != nil {
		return Value{}, err
	}
	return VOwn(proof), nil
}

// authZoneProofOfNonFungibles: (resource, ids) -> proof.
func authZoneProofOfNonFungibles(k *Kernel, receiver NodeID, input Value) (Value, error) {
	fields, err := input.AsTuple()
	if err != nil || len(fields) != 2 {
		return Value{}, errDecode("create_proof_of_non_fungibles expects (resource, ids)")
	}
	resource, err := fields[0].AsAddress()
	if err != nil {
		return Value{}, err
	}
	ids, err := idSetArg(VTuple(fields[1]))
	if err != nil {
		return Value{}, err
	}
	ev, err := zoneEvidence(k, receiver)
	if err != nil {
		return Value{}, err
	}
	for _, id := range ids.IDs() {
		if !ev.hasBadge(NonFungibleGlobalID{Resource: resource, LocalID: id}) {
			return Value{}, errResource("auth zone lacks %s of %s", id, resource)
		}
	}
	proof, err := newProofNode(k, ProofSubstate{Resource: resource, Amount: NewDecimal(int64(ids.Len())), IDs: ids})
	if err != nil {
		return Value{}, err
	}
	return VOwn(proof), nil
}

// authZoneProofOfAll: (resource) -> proof of everything present.
func authZoneProofOfAll(k *Kernel, receiver NodeID, input Value) (Value, error) {
	fields, err := input.AsTuple()
	if err != nil || len(fields) != 1 {
		return Value{}, errDecode("create_proof_of_all expects (resource)")
	}
	resource, err := fields[0].AsAddress()
	if err != nil {
		return Value{}, err
	}
	ev, err := zoneEvidence(k, receiver)
	if err != nil {
		return Value{}, err
	}
	total := ev.totalAmount(resource)
	if !total.IsPositive() {
		return Value{}, errResource("auth zone holds no %s", resource)
	}
	var ids NonFungibleIDSet
	for _, p := range ev.Proofs {
		if p.Resource == resource {
			for _, id := range p.IDs.IDs() {
				ids.Insert(id)
			}
		}
	}
	for _, b := range ev.Badges {
		if b.Resource == resource {
			ids.Insert(b.LocalID)
		}
	}
	sub := ProofSubstate{Resource: resource, Amount: total, IDs: ids, Fungible: ids.Len() == 0}
	if !sub.Fungible {
		sub.Amount = NewDecimal(int64(ids.Len()))
	}
	proof, err := newProofNode(k, sub)
	if err != nil {
		return Value{}, err
	}
	return VOwn(proof), nil
}

// authZoneDropProofs: () -> (). Drops every proof the zone holds.
func authZoneDropProofs(k *Kernel, receiver NodeID, _ Value) (Value, error) {
	var proofs []NodeID
	err := k.updateAuthZone(receiver, func(z *AuthZoneSubstate) error {
		proofs = z.Proofs
		z.Proofs = nil
		return nil
	})
	if err != nil {
		return Value{}, err
	}
	for _, proof := range proofs {
		k.frame.addOwned(proof)
		if _, err := k.DropNode(proof); err != nil {
			return Value{}, err
		}
	}
	return VTuple(), nil
}
