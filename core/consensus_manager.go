package core

// Consensus manager blueprint: the singleton holding (epoch, round) and
// the validator set. next_round advances within an epoch under validator
// authority; hitting the configured rounds-per-epoch threshold rotates the
// pending validator set in, bumps the epoch and emits an EpochChange
// event, which the executor surfaces in the receipt.

import (
	"fmt"
	"sort"
)

// ConsensusManagerSubstate is field 0 of the consensus manager.
type ConsensusManagerSubstate struct {
	Epoch          uint64
	Round          uint64
	RoundsPerEpoch uint64
}

func (s ConsensusManagerSubstate) toValue() Value {
	return VTuple(VU64(s.Epoch), VU64(s.Round), VU64(s.RoundsPerEpoch))
}

func consensusManagerFromValue(v Value) (ConsensusManagerSubstate, error) {
	fields, err := v.AsTuple()
	if err != nil || len(fields) != 3 {
		return ConsensusManagerSubstate{}, errDecode("consensus manager expects 3 fields")
	}
	var out ConsensusManagerSubstate
	if out.Epoch, err = fields[0].AsU64(); err != nil {
		return ConsensusManagerSubstate{}, err
	}
	if out.Round, err = fields[1].AsU64(); err != nil {
		return ConsensusManagerSubstate{}, err
	}
	if out.RoundsPerEpoch, err = fields[2].AsU64(); err != nil {
		return ConsensusManagerSubstate{}, err
	}
	return out, nil
}

// ValidatorInfo is one validator entry.
type ValidatorInfo struct {
	Key   []byte
	Stake Decimal
}

// ValidatorSetSubstate is field 1: the current set plus the pending set
// rotated in at the next epoch change.
type ValidatorSetSubstate struct {
	Current []ValidatorInfo
	Pending []ValidatorInfo
}

func validatorsToValue(vs []ValidatorInfo) Value {
	sorted := append([]ValidatorInfo{}, vs...)
	sort.Slice(sorted, func(i, j int) bool { return string(sorted[i].Key) < string(sorted[j].Key) })
	elems := make([]Value, len(sorted))
	for i, v := range sorted {
		elems[i] = VTuple(VBytes(v.Key), VDecimal(v.Stake))
	}
	return VArray(ValueKindTuple, elems...)
}

func validatorsFromValue(v Value) ([]ValidatorInfo, error) {
	if v.Kind != ValueKindArray {
		return nil, errDecode("validator set must be an array")
	}
	out := make([]ValidatorInfo, 0, len(v.Elements))
	for _, e := range v.Elements {
		fields, err := e.AsTuple()
		if err != nil || len(fields) != 2 {
			return nil, errDecode("validator entry malformed")
		}
		key, err := fields[0].AsBytes()
		if err != nil {
			return nil, err
		}
		stake, err := fields[1].AsDecimal()
		if err != nil {
			return nil, err
		}
		out = append(out, ValidatorInfo{Key: key, Stake: stake})
	}
	return out, nil
}

func (s ValidatorSetSubstate) toValue() Value {
	return VTuple(validatorsToValue(s.Current), validatorsToValue(s.Pending))
}

func validatorSetFromValue(v Value) (ValidatorSetSubstate, error) {
	fields, err := v.AsTuple()
	if err != nil || len(fields) != 2 {
		return ValidatorSetSubstate{}, errDecode("validator set expects 2 fields")
	}
	var out ValidatorSetSubstate
	if out.Current, err = validatorsFromValue(fields[0]); err != nil {
		return ValidatorSetSubstate{}, err
	}
	if out.Pending, err = validatorsFromValue(fields[1]); err != nil {
		return ValidatorSetSubstate{}, err
	}
	return out, nil
}

func init() {
	registerNative(PackageConsensus, BlueprintConsensusManager, "get_current_epoch", consensusGetEpoch)
	registerNative(PackageConsensus, BlueprintConsensusManager, "next_round", consensusNextRound)
	registerNative(PackageConsensus, BlueprintConsensusManager, "set_epoch", consensusSetEpoch)
	registerNative(PackageConsensus, BlueprintConsensusManager, "set_validator_set", consensusSetValidators)
	registerNative(PackageConsensus, BlueprintConsensusManager, "get_validator_set", consensusGetValidators)

	registerMethodAuth(BlueprintConsensusManager, "next_round", roleAuth(RoleValidator))
	registerMethodAuth(BlueprintConsensusManager, "set_epoch", roleAuth(RoleSetEpoch))
	registerMethodAuth(BlueprintConsensusManager, "set_validator_set", roleAuth(RoleSetEpoch))
}

// NewConsensusManagerNode assembles the singleton at its well-known
// address; genesis only.
func NewConsensusManagerNode(k *Kernel, epoch, roundsPerEpoch uint64, validators []ValidatorInfo, validatorRule, systemRule AccessRule) error {
	state := ConsensusManagerSubstate{Epoch: epoch, RoundsPerEpoch: roundsPerEpoch}
	set := ValidatorSetSubstate{Current: validators, Pending: validators}
	err := k.CreateNode(ConsensusManagerAddress, map[PartitionNumber][]SubstateEntry{
		PartitionTypeInfo: {{Key: FieldKey(0), Value: TypeInfoSubstate{
			Package: PackageConsensus, Blueprint: BlueprintConsensusManager, Global: true,
		}.encode()}},
		PartitionRoleAssignment: {
			{Key: ownerRuleKey(), Value: encodeAccessRule(systemRule)},
			{Key: roleAssignmentKey(RoleValidator), Value: encodeAccessRule(validatorRule)},
			{Key: roleAssignmentKey(RoleSetEpoch), Value: encodeAccessRule(systemRule)},
		},
		PartitionMain: {
			{Key: FieldKey(0), Value: MustEncodePayload(state.toValue())},
			{Key: FieldKey(1), Value: MustEncodePayload(set.toValue())},
		},
	})
	if err != nil {
		return err
	}
	return k.Globalize(ConsensusManagerAddress)
}

func readConsensusState(k *Kernel) (ConsensusManagerSubstate, error) {
	payload, err := k.substateRead(ConsensusManagerAddress, PartitionMain, FieldKey(0))
	if err != nil {
		return ConsensusManagerSubstate{}, err
	}
	v, err := DecodePayload(payload)
	if err != nil {
		return ConsensusManagerSubstate{}, err
	}
	return consensusManagerFromValue(v)
}

func consensusGetEpoch(k *Kernel, _ NodeID, _ Value) (Value, error) {
	state, err := readConsensusState(k)
	if err != nil {
		return Value{}, err
	}
	return VU64(state.Epoch), nil
}

// consensusNextRound: (round) -> (). Rounds advance strictly; reaching
// rounds-per-epoch rolls the epoch.
func consensusNextRound(k *Kernel, receiver NodeID, input Value) (Value, error) {
	fields, err := input.AsTuple()
	if err != nil || len(fields) != 1 {
		return Value{}, errDecode("next_round expects (round)")
	}
	round, err := fields[0].AsU64()
	if err != nil {
		return Value{}, err
	}

	state, err := readConsensusState(k)
	if err != nil {
		return Value{}, err
	}
	if round <= state.Round {
		return Value{}, errApplication(fmt.Sprintf("round %d must advance past current %d", round, state.Round))
	}

	if round >= state.RoundsPerEpoch {
		// Epoch change: rotate the pending set in.
		var rotated []ValidatorInfo
		err = k.substateUpdate(receiver, PartitionMain, FieldKey(1), func(b []byte) ([]byte, error) {
			if b == nil {
				return nil, ErrSubstateNotFound
			}
			v, err := DecodePayload(b)
			if err != nil {
				return nil, err
			}
			set, err := validatorSetFromValue(v)
			if err != nil {
				return nil, err
			}
			set.Current = set.Pending
			rotated = set.Current
			return MustEncodePayload(set.toValue()), nil
		})
		if err != nil {
			return Value{}, err
		}
		newEpoch := state.Epoch + 1
		err = k.substateWrite(receiver, PartitionMain, FieldKey(0), MustEncodePayload(ConsensusManagerSubstate{
			Epoch:          newEpoch,
			Round:          0,
			RoundsPerEpoch: state.RoundsPerEpoch,
		}.toValue()))
		if err != nil {
			return Value{}, err
		}
		if err := k.EmitEvent("EpochChangeEvent", VTuple(VU64(newEpoch), validatorsToValue(rotated))); err != nil {
			return Value{}, err
		}
		return VTuple(), nil
	}

	state.Round = round
	if err := k.substateWrite(receiver, PartitionMain, FieldKey(0), MustEncodePayload(state.toValue())); err != nil {
		return Value{}, err
	}
	if err := k.EmitEvent("RoundChangeEvent", VTuple(VU64(state.Epoch), VU64(round))); err != nil {
		return Value{}, err
	}
	return VTuple(), nil
}

// consensusSetEpoch: (epoch) -> (). Dev and testing path.
func consensusSetEpoch(k *Kernel, receiver NodeID, input Value) (Value, error) {
	fields, err := input.AsTuple()
	if err != nil || len(fields) != 1 {
		return Value{}, errDecode("set_epoch expects (epoch)")
	}
	epoch, err := fields[0].AsU64()
	if err != nil {
		return Value{}, err
	}
	state, err := readConsensusState(k)
	if err != nil {
		return Value{}, err
	}
	state.Epoch = epoch
	state.Round = 0
	if err := k.substateWrite(receiver, PartitionMain, FieldKey(0), MustEncodePayload(state.toValue())); err != nil {
		return Value{}, err
	}
	return VTuple(), nil
}

// consensusSetValidators: (pending_set) -> (). Takes effect at the next
// epoch change.
func consensusSetValidators(k *Kernel, receiver NodeID, input Value) (Value, error) {
	fields, err := input.AsTuple()
	if err != nil || len(fields) != 1 {
		return Value{}, errDecode("set_validator_set expects (validators)")
	}
	pending, err := validatorsFromValue(fields[0])
	if err != nil {
		return Value{}, err
	}
	err = k.substateUpdate(receiver, PartitionMain, FieldKey(1), func(b []byte) ([]byte, error) {
		if b == nil {
			return nil, ErrSubstateNotFound
		}
		v, err := DecodePayload(b)
		if err != nil {
			return nil, err
		}
		set, err := validatorSetFromValue(v)
		if err != nil {
			return nil, err
		}
		set.Pending = pending
		return MustEncodePayload(set.toValue()), nil
	})
	if err != nil {
		return Value{}, err
	}
	return VTuple(), nil
}

func consensusGetValidators(k *Kernel, receiver NodeID, _ Value) (Value, error) {
	payload, err := k.substateRead(receiver, PartitionMain, FieldKey(1))
	if err != nil {
		return Value{}, err
	}
	v, err := DecodePayload(payload)
	if err != nil {
		return Value{}, err
	}
	set, err := validatorSetFromValue(v)
	if err != nil {
		return Value{}, err
	}
	return validatorsToValue(set.Current), nil
}
