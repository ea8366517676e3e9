package core

// Transaction runtime blueprint: the per-transaction node exposing the
// transaction hash, deterministic RUID generation and application logging
// to blueprints.

func init() {
	registerNative(PackageTransaction, BlueprintTransactionRuntime, "get_transaction_hash", txRuntimeGetHash)
	registerNative(PackageTransaction, BlueprintTransactionRuntime, "generate_ruid", txRuntimeGenerateRUID)
	registerNative(PackageTransaction, BlueprintTransactionRuntime, "emit_log", txRuntimeEmitLog)
}

// NewTransactionRuntimeNode creates the per-transaction node owned by the
// processor's root frame.
func NewTransactionRuntimeNode(k *Kernel) (NodeID, error) {
	id, err := k.AllocateNodeID(EntityTypeInternalTxRuntime)
	if err != nil {
		return NodeID{}, err
	}
	txHash := k.TransactionHash()
	err = k.CreateNode(id, map[PartitionNumber][]SubstateEntry{
		PartitionTypeInfo: {{Key: FieldKey(0), Value: TypeInfoSubstate{
			Package: PackageTransaction, Blueprint: BlueprintTransactionRuntime,
		}.encode()}},
		PartitionMain: {{Key: FieldKey(0), Value: MustEncodePayload(VBytes(txHash[:]))}},
	})
	if err != nil {
		return NodeID{}, err
	}
	return id, nil
}

func txRuntimeGetHash(k *Kernel, receiver NodeID, _ Value) (Value, error) {
	payload, err := k.substateRead(receiver, PartitionMain, FieldKey(0))
	if err != nil {
		return Value{}, err
	}
	return DecodePayload(payload)
}

func txRuntimeGenerateRUID(k *Kernel, _ NodeID, _ Value) (Value, error) {
	ruid, err := k.GenerateRUID()
	if err != nil {
		return Value{}, err
	}
	return VBytes(ruid[:]), nil
}

// txRuntimeEmitLog: (level, message) -> ().
func txRuntimeEmitLog(k *Kernel, _ NodeID, input Value) (Value, error) {
	fields, err := input.AsTuple()
	if err != nil || len(fields) != 2 {
		return Value{}, errDecode("emit_log expects (level, message)")
	}
	level, err := fields[0].AsString()
	if err != nil {
		return Value{}, err
	}
	message, err := fields[1].AsString()
	if err != nil {
		return Value{}, err
	}
	if err := k.EmitLog(level, message); err != nil {
		return Value{}, err
	}
	return VTuple(), nil
}
