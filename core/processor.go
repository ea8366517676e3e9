package core

// Transaction processor: interprets manifest instructions against the
// kernel. It owns the transaction's single worktop, the root auth zone
// seeded with the signers' virtualized badges, the object cache binding
// manifest-local bucket/proof/address names, and the blob registry. At
// end-of-manifest the worktop must be empty, every cached proof dropped
// and every transient node gone, or the transaction fails.

import "fmt"

// Processor runs one manifest.
type Processor struct {
	k         *Kernel
	worktop   NodeID
	txRuntime NodeID

	buckets   []NodeID // index -> node id; zero value = consumed
	proofs    []NodeID
	addresses []NodeID

	blobs map[Hash][]byte
}

// NewProcessor prepares the per-transaction state: root auth zone,
// worktop and transaction runtime node.
func NewProcessor(k *Kernel, signerBadges []NonFungibleGlobalID, blobs map[Hash][]byte) (*Processor, error) {
	if err := k.SeedRootAuthZone(signerBadges); err != nil {
		return nil, err
	}
	worktop, err := NewWorktopNode(k)
	if err != nil {
		return nil, err
	}
	txRuntime, err := NewTransactionRuntimeNode(k)
	if err != nil {
		return nil, err
	}
	return &Processor{k: k, worktop: worktop, txRuntime: txRuntime, blobs: blobs}, nil
}

// TransactionRuntime exposes the runtime node for blueprint access.
func (p *Processor) TransactionRuntime() NodeID { return p.txRuntime }

// Blob resolves an ancillary blob by hash.
func (p *Processor) Blob(hash Hash) ([]byte, error) {
	b, ok := p.blobs[hash]
	if !ok {
		return nil, errDecode("blob %s not attached", hash)
	}
	return b, nil
}

// Run executes the manifest and performs the end-of-manifest checks.
func (p *Processor) Run(instructions []Instruction) error {
	for i, ins := range instructions {
		if err := p.execute(ins); err != nil {
			return fmt.Errorf("instruction %d: %w", i, err)
		}
	}
	return p.finish()
}

func (p *Processor) bindBucket(id NodeID) { p.buckets = append(p.buckets, id) }
func (p *Processor) bindProof(id NodeID)  { p.proofs = append(p.proofs, id) }

func (p *Processor) bucket(ref uint32) (NodeID, error) {
	if int(ref) >= len(p.buckets) || p.buckets[ref].IsZero() {
		return NodeID{}, errKernel("bucket %d is not bound", ref)
	}
	return p.buckets[ref], nil
}

// takeBucket consumes a bucket binding.
func (p *Processor) takeBucket(ref uint32) (NodeID, error) {
	id, err := p.bucket(ref)
	if err != nil {
		return NodeID{}, err
	}
	p.buckets[ref] = NodeID{}
	return id, nil
}

func (p *Processor) proof(ref uint32) (NodeID, error) {
	if int(ref) >= len(p.proofs) || p.proofs[ref].IsZero() {
		return NodeID{}, errKernel("proof %d is not bound", ref)
	}
	return p.proofs[ref], nil
}

func (p *Processor) takeProof(ref uint32) (NodeID, error) {
	id, err := p.proof(ref)
	if err != nil {
		return NodeID{}, err
	}
	p.proofs[ref] = NodeID{}
	return id, nil
}

func (p *Processor) execute(ins Instruction) error {
	k := p.k
	switch ins.Kind {
	case InsTakeAllFromWorktop:
		ret, err := k.CallMethod(p.worktop, "take_all", VTuple(VAddress(ins.Resource)))
		if err != nil {
			return err
		}
		bucket, err := ret.AsOwn()
		if err != nil {
			return err
		}
		p.bindBucket(bucket)
		return nil

	case InsTakeFromWorktop:
		ret, err := k.CallMethod(p.worktop, "take", VTuple(VAddress(ins.Resource), VDecimal(ins.Amount)))
		if err != nil {
			return err
		}
		bucket, err := ret.AsOwn()
		if err != nil {
			return err
		}
		p.bindBucket(bucket)
		return nil

	case InsTakeNonFungiblesFromWorktop:
		ret, err := k.CallMethod(p.worktop, "take_non_fungibles", VTuple(VAddress(ins.Resource), idSetValue(ins.IDs)))
		if err != nil {
			return err
		}
		bucket, err := ret.AsOwn()
		if err != nil {
			return err
		}
		p.bindBucket(bucket)
		return nil

	case InsReturnToWorktop:
		bucket, err := p.takeBucket(ins.BucketRef)
		if err != nil {
			return err
		}
		_, err = k.CallMethod(p.worktop, "put", VTuple(VOwn(bucket)))
		return err

	case InsAssertWorktopContainsAny:
		_, err := k.CallMethod(p.worktop, "assert_contains", VTuple(VAddress(ins.Resource)))
		return err

	case InsAssertWorktopContains:
		_, err := k.CallMethod(p.worktop, "assert_contains_amount", VTuple(VAddress(ins.Resource), VDecimal(ins.Amount)))
		return err

	case InsAssertWorktopContainsNonFungibles:
		_, err := k.CallMethod(p.worktop, "assert_contains_non_fungibles", VTuple(VAddress(ins.Resource), idSetValue(ins.IDs)))
		return err

	case InsPopFromAuthZone:
		ret, err := k.CallMethod(k.RootAuthZone(), "pop", VTuple())
		if err != nil {
			return err
		}
		proof, err := ret.AsOwn()
		if err != nil {
			return err
		}
		p.bindProof(proof)
		return nil

	case InsPushToAuthZone:
		proof, err := p.takeProof(ins.ProofRef)
		if err != nil {
			return err
		}
		_, err = k.CallMethod(k.RootAuthZone(), "push", VTuple(VOwn(proof)))
		return err

	case InsDropAuthZoneProofs:
		_, err := k.CallMethod(k.RootAuthZone(), "drop_proofs", VTuple())
		return err

	case InsCreateProofFromAuthZoneOfAmount:
		return p.bindProofFromCall(k.RootAuthZone(), "create_proof_of_amount",
			VTuple(VAddress(ins.Resource), VDecimal(ins.Amount)))

	case InsCreateProofFromAuthZoneOfNonFungibles:
		return p.bindProofFromCall(k.RootAuthZone(), "create_proof_of_non_fungibles",
			VTuple(VAddress(ins.Resource), idSetValue(ins.IDs)))

	case InsCreateProofFromAuthZoneOfAll:
		return p.bindProofFromCall(k.RootAuthZone(), "create_proof_of_all",
			VTuple(VAddress(ins.Resource)))

	case InsCreateProofFromBucketOfAmount:
		bucket, err := p.bucket(ins.BucketRef)
		if err != nil {
			return err
		}
		return p.bindProofFromCall(bucket, "create_proof_of_amount", VTuple(VDecimal(ins.Amount)))

	case InsCreateProofFromBucketOfNonFungibles:
		bucket, err := p.bucket(ins.BucketRef)
		if err != nil {
			return err
		}
		return p.bindProofFromCall(bucket, "create_proof_of_non_fungibles", VTuple(idSetValue(ins.IDs)))

	case InsCreateProofFromBucketOfAll:
		bucket, err := p.bucket(ins.BucketRef)
		if err != nil {
			return err
		}
		return p.bindProofFromCall(bucket, "create_proof_of_all", VTuple())

	case InsCloneProof:
		proof, err := p.proof(ins.ProofRef)
		if err != nil {
			return err
		}
		return p.bindProofFromCall(proof, "clone", VTuple())

	case InsDropProof:
		proof, err := p.takeProof(ins.ProofRef)
		if err != nil {
			return err
		}
		_, err = k.DropNode(proof)
		return err

	case InsDropAllProofs:
		for i, proof := range p.proofs {
			if proof.IsZero() {
				continue
			}
			p.proofs[i] = NodeID{}
			if _, err := k.DropNode(proof); err != nil {
				return err
			}
		}
		_, err := k.CallMethod(k.RootAuthZone(), "drop_proofs", VTuple())
		return err

	case InsBurnResource:
		bucket, err := p.takeBucket(ins.BucketRef)
		if err != nil {
			return err
		}
		resource, err := containerResource(k, bucket)
		if err != nil {
			return err
		}
		_, err = k.CallMethod(resource, "burn", VTuple(VOwn(bucket)))
		return err

	case InsCallFunction:
		args, err := p.reifyArgs(ins.Args)
		if err != nil {
			return err
		}
		ret, err := k.CallFunction(ins.Package, ins.Blueprint, ins.Function, args)
		if err != nil {
			return err
		}
		return p.settleReturn(ret)

	case InsCallMethod:
		args, err := p.reifyArgs(ins.Args)
		if err != nil {
			return err
		}
		ret, err := k.CallMethod(ins.Address, ins.Function, args)
		if err != nil {
			return err
		}
		return p.settleReturn(ret)

	case InsCallDirectVaultMethod:
		args, err := p.reifyArgs(ins.Args)
		if err != nil {
			return err
		}
		ret, err := k.CallDirectVaultMethod(ins.Vault, ins.Function, args)
		if err != nil {
			return err
		}
		return p.settleReturn(ret)

	case InsAllocateGlobalAddress:
		id, err := k.AllocateNodeID(ins.EntityKind)
		if err != nil {
			return err
		}
		if !id.IsGlobal() {
			return errKernel("allocated address must be global, got %s", ins.EntityKind)
		}
		p.addresses = append(p.addresses, id)
		return nil

	default:
		return errDecode("unknown instruction kind %d", ins.Kind)
	}
}

func (p *Processor) bindProofFromCall(receiver NodeID, fn string, args Value) error {
	ret, err := p.k.CallMethod(receiver, fn, args)
	if err != nil {
		return err
	}
	proof, err := ret.AsOwn()
	if err != nil {
		return err
	}
	p.bindProof(proof)
	return nil
}

// reifyArgs materialises manifest arguments into the invocation tuple.
func (p *Processor) reifyArgs(args []ManifestArg) (Value, error) {
	fields := make([]Value, 0, len(args))
	for _, a := range args {
		switch {
		case a.Literal != nil:
			fields = append(fields, *a.Literal)
		case a.Bucket != nil:
			bucket, err := p.takeBucket(*a.Bucket)
			if err != nil {
				return Value{}, err
			}
			fields = append(fields, VOwn(bucket))
		case a.Proof != nil:
			proof, err := p.takeProof(*a.Proof)
			if err != nil {
				return Value{}, err
			}
			fields = append(fields, VOwn(proof))
		case a.NamedAddress != nil:
			if int(*a.NamedAddress) >= len(p.addresses) {
				return Value{}, errKernel("address %d is not bound", *a.NamedAddress)
			}
			fields = append(fields, VAddress(p.addresses[*a.NamedAddress]))
		case a.Blob != nil:
			blob, err := p.Blob(*a.Blob)
			if err != nil {
				return Value{}, err
			}
			fields = append(fields, VBytes(blob))
		case a.Expression == ExprEntireWorktop:
			ret, err := p.k.CallMethod(p.worktop, "drain", VTuple())
			if err != nil {
				return Value{}, err
			}
			fields = append(fields, ret)
		case a.Expression == ExprEntireAuthZone:
			var proofs []Value
			for {
				ret, err := p.k.CallMethod(p.k.RootAuthZone(), "pop", VTuple())
				if err != nil {
					break
				}
				proofs = append(proofs, ret)
			}
			fields = append(fields, VArray(ValueKindOwn, proofs...))
		default:
			return Value{}, errDecode("empty manifest argument")
		}
	}
	return VTuple(fields...), nil
}

// settleReturn routes returned transients: buckets to the worktop, proofs
// to the auth zone.
func (p *Processor) settleReturn(ret Value) error {
	owns, _ := CollectIndexed(ret)
	for _, id := range owns {
		switch id.EntityType() {
		case EntityTypeInternalBucket:
			if _, err := p.k.CallMethod(p.worktop, "put", VTuple(VOwn(id))); err != nil {
				return err
			}
		case EntityTypeInternalProof:
			if _, err := p.k.CallMethod(p.k.RootAuthZone(), "push", VTuple(VOwn(id))); err != nil {
				return err
			}
		}
	}
	return nil
}

// finish enforces the end-of-manifest invariants and releases the
// processor's own transients.
func (p *Processor) finish() error {
	k := p.k

	// Worktop must be empty.
	state, err := readWorktop(k, p.worktop)
	if err != nil {
		return err
	}
	for resource, bucket := range state.Buckets {
		amountVal, err := k.CallMethod(bucket, "get_amount", VTuple())
		if err != nil {
			return err
		}
		amount, err := amountVal.AsDecimal()
		if err != nil {
			return err
		}
		if amount.IsPositive() {
			return errResource("worktop still holds %s of %s at end of manifest", amount, resource)
		}
		k.frame.addOwned(bucket)
		if _, err := k.DropNode(bucket); err != nil {
			return err
		}
	}
	state.Buckets = map[NodeID]NodeID{}
	if err := writeWorktop(k, p.worktop, state); err != nil {
		return err
	}

	// Caller-pushed proofs must be gone; remaining zone proofs drop here.
	if _, err := k.CallMethod(k.RootAuthZone(), "drop_proofs", VTuple()); err != nil {
		return err
	}
	for i, proof := range p.proofs {
		if proof.IsZero() {
			continue
		}
		p.proofs[i] = NodeID{}
		if _, err := k.DropNode(proof); err != nil {
			return err
		}
	}

	if _, err := k.DropNode(p.worktop); err != nil {
		return err
	}
	if _, err := k.DropNode(p.txRuntime); err != nil {
		return err
	}
	if err := k.dropFrameAuthZone(k.frame); err != nil {
		return err
	}

	// Anything left is a leak: dangling buckets surface as Resource
	// errors, the rest as Kernel errors.
	return k.AssertFrameClean()
}

func idSetValue(ids NonFungibleIDSet) Value {
	elems := make([]Value, 0, ids.Len())
	for _, id := range ids.IDs() {
		elems = append(elems, VNFID(id))
	}
	return VArray(ValueKindNonFungibleLocalID, elems...)
}
