package core

// Clock blueprint: the singleton monotone minute clock. Time enters the
// engine only through set_current_time under validator authority, so
// reading and comparing it stays deterministic.

// TimePrecision selects minute or second granularity for comparisons.
type TimePrecision uint8

const (
	PrecisionMinute TimePrecision = 0
	PrecisionSecond TimePrecision = 1
)

// TimeComparisonOperator is the comparison requested from the clock.
type TimeComparisonOperator uint8

const (
	CompareBefore TimeComparisonOperator = iota
	CompareAtOrBefore
	CompareAfter
	CompareAtOrAfter
)

const millisPerMinute = 60_000

// ClockSubstate is field 0: the current time in ms, rounded down to the
// minute.
type ClockSubstate struct {
	CurrentTimeRoundedToMinutesMs int64
}

func (s ClockSubstate) toValue() Value { return VI64(s.CurrentTimeRoundedToMinutesMs) }

func clockFromValue(v Value) (ClockSubstate, error) {
	ms, err := v.AsI64()
	if err != nil {
		return ClockSubstate{}, err
	}
	return ClockSubstate{CurrentTimeRoundedToMinutesMs: ms}, nil
}

func init() {
	registerNative(PackageClock, BlueprintClock, "set_current_time", clockSetTime)
	registerNative(PackageClock, BlueprintClock, "get_current_time", clockGetTime)
	registerNative(PackageClock, BlueprintClock, "compare_current_time", clockCompareTime)

	registerMethodAuth(BlueprintClock, "set_current_time", roleAuth(RoleSetTime))
}

// NewClockNode assembles the singleton at its well-known address; genesis
// only.
func NewClockNode(k *Kernel, setTimeRule, systemRule AccessRule) error {
	err := k.CreateNode(ClockAddress, map[PartitionNumber][]SubstateEntry{
		PartitionTypeInfo: {{Key: FieldKey(0), Value: TypeInfoSubstate{
			Package: PackageClock, Blueprint: BlueprintClock, Global: true,
		}.encode()}},
		PartitionRoleAssignment: {
			{Key: ownerRuleKey(), Value: encodeAccessRule(systemRule)},
			{Key: roleAssignmentKey(RoleSetTime), Value: encodeAccessRule(setTimeRule)},
		},
		PartitionMain: {{Key: FieldKey(0), Value: MustEncodePayload(ClockSubstate{}.toValue())}},
	})
	if err != nil {
		return err
	}
	return k.Globalize(ClockAddress)
}

func readClock(k *Kernel) (ClockSubstate, error) {
	payload, err := k.substateRead(ClockAddress, PartitionMain, FieldKey(0))
	if err != nil {
		return ClockSubstate{}, err
	}
	v, err := DecodePayload(payload)
	if err != nil {
		return ClockSubstate{}, err
	}
	return clockFromValue(v)
}

// clockSetTime: (ms) -> (). The stored value rounds down to the minute
// and never moves backwards.
func clockSetTime(k *Kernel, receiver NodeID, input Value) (Value, error) {
	fields, err := input.AsTuple()
	if err != nil || len(fields) != 1 {
		return Value{}, errDecode("set_current_time expects (ms)")
	}
	ms, err := fields[0].AsI64()
	if err != nil {
		return Value{}, err
	}
	rounded := (ms / millisPerMinute) * millisPerMinute
	state, err := readClock(k)
	if err != nil {
		return Value{}, err
	}
	if rounded < state.CurrentTimeRoundedToMinutesMs {
		return Value{}, errApplication("clock cannot move backwards")
	}
	next := ClockSubstate{CurrentTimeRoundedToMinutesMs: rounded}
	if err := k.substateWrite(receiver, PartitionMain, FieldKey(0), MustEncodePayload(next.toValue())); err != nil {
		return Value{}, err
	}
	return VTuple(), nil
}

// clockGetTime: (precision) -> ms.
func clockGetTime(k *Kernel, _ NodeID, input Value) (Value, error) {
	fields, err := input.AsTuple()
	if err != nil || len(fields) != 1 {
		return Value{}, errDecode("get_current_time expects (precision)")
	}
	if _, err := fields[0].AsU8(); err != nil {
		return Value{}, err
	}
	state, err := readClock(k)
	if err != nil {
		return Value{}, err
	}
	return VI64(state.CurrentTimeRoundedToMinutesMs), nil
}

// clockCompareTime: (instant_ms, precision, operator) -> bool.
func clockCompareTime(k *Kernel, _ NodeID, input Value) (Value, error) {
	fields, err := input.AsTuple()
	if err != nil || len(fields) != 3 {
		return Value{}, errDecode("compare_current_time expects (instant, precision, operator)")
	}
	instant, err := fields[0].AsI64()
	if err != nil {
		return Value{}, err
	}
	precision, err := fields[1].AsU8()
	if err != nil {
		return Value{}, err
	}
	operator, err := fields[2].AsU8()
	if err != nil {
		return Value{}, err
	}
	state, err := readClock(k)
	if err != nil {
		return Value{}, err
	}
	current := state.CurrentTimeRoundedToMinutesMs
	if TimePrecision(precision) == PrecisionMinute {
		instant = (instant / millisPerMinute) * millisPerMinute
	}
	var result bool
	switch TimeComparisonOperator(operator) {
	case CompareBefore:
		result = current < instant
	case CompareAtOrBefore:
		result = current <= instant
	case CompareAfter:
		result = current > instant
	case CompareAtOrAfter:
		result = current >= instant
	default:
		return Value{}, errDecode("unknown time comparison operator %d", operator)
	}
	return VBool(result), nil
}
