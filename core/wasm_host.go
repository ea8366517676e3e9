package core

// WASM host: sandboxed execution of user blueprints on wasmer. Each
// invocation compiles the published module in a fresh store with a fresh
// linear memory, binds the kernel API as "env" imports and calls the
// exported blueprint function with a pointer+length input buffer. Guest
// traps, decode failures and out-of-fuel conditions surface as Panic or
// Abort errors; nothing a guest does can touch state except through the
// host functions, which run the same metering and lock discipline as
// native code.

import (
	"errors"
	"fmt"

	"github.com/wasmerio/wasmer-go/wasmer"
)

// WASMHost executes user blueprint functions.
type WASMHost struct {
	engine *wasmer.Engine
}

// NewWASMHost builds a host with a shared compilation engine. Instances
// and memories are still per-invocation.
func NewWASMHost() *WASMHost {
	return &WASMHost{engine: wasmer.NewEngine()}
}

// hostCtx carries the per-invocation state the import closures need.
type hostCtx struct {
	kernel *Kernel
	mem    *wasmer.Memory
	alloc  wasmer.NativeFunction
	// Deferred host error: wasmer flattens returned Go errors into trap
	// strings, so the typed engine error is kept here and wins afterwards.
	hostErr error
}

func (h *hostCtx) read(ptr, length int32) ([]byte, error) {
	data := h.mem.Data()
	if ptr < 0 || length < 0 || int(ptr)+int(length) > len(data) {
		return nil, errPanic("guest buffer [%d..%d) out of bounds", ptr, ptr+length)
	}
	out := make([]byte, length)
	copy(out, data[ptr:ptr+length])
	return out, nil
}

func (h *hostCtx) write(ptr int32, payload []byte) error {
	data := h.mem.Data()
	if ptr < 0 || int(ptr)+len(payload) > len(data) {
		return errPanic("guest buffer [%d..%d) out of bounds", ptr, int(ptr)+len(payload))
	}
	copy(data[ptr:], payload)
	return nil
}

// writeToGuest allocates guest memory through the module's exported
// allocator and copies payload in, returning the packed ptr<<32|len.
func (h *hostCtx) writeToGuest(payload []byte) (int64, error) {
	if h.alloc == nil {
		return 0, errPanic("module exports no m_alloc")
	}
	raw, err := h.alloc(int32(len(payload)))
	if err != nil {
		return 0, errPanic("m_alloc trapped: %v", err)
	}
	ptr, ok := raw.(int32)
	if !ok {
		return 0, errPanic("m_alloc returned %T", raw)
	}
	if err := h.write(ptr, payload); err != nil {
		return 0, err
	}
	return int64(ptr)<<32 | int64(uint32(len(payload))), nil
}

// fail records a typed host error and returns the guest-facing failure
// sentinel.
func (h *hostCtx) fail(err error) []wasmer.Value {
	if h.hostErr == nil {
		h.hostErr = err
	}
	return []wasmer.Value{wasmer.NewI64(-1)}
}

// Invoke runs one blueprint function export.
func (w *WASMHost) Invoke(k *Kernel, actor Actor, args Value) (Value, error) {
	code, err := readPackageCode(k, actor.Package)
	if err != nil {
		return Value{}, err
	}
	// Function auth already ran in the kernel against the caller's zone
	// stack, before this frame was pushed.

	// Static fuel: instantiation by code size, entry by recorded body cost.
	if err := k.fees.ConsumeExecution(CostWASMInstantiatePerByte, uint64(len(code.Code))); err != nil {
		return Value{}, err
	}
	if err := k.fees.ConsumeExecution(CostWASMFuel, wasmExportCost(code, actor.Function)); err != nil {
		return Value{}, err
	}

	store := wasmer.NewStore(w.engine)
	module, err := wasmer.NewModule(store, code.Code)
	if err != nil {
		return Value{}, errPanic("wasm compile: %v", err)
	}

	hctx := &hostCtx{kernel: k}
	imports := w.registerHost(store, hctx)

	instance, err := wasmer.NewInstance(module, imports)
	if err != nil {
		return Value{}, errPanic("wasm instantiate: %v", err)
	}

	mem, err := instance.Exports.GetMemory("memory")
	if err != nil {
		return Value{}, errPanic("wasm memory export missing")
	}
	hctx.mem = mem
	if alloc, err := instance.Exports.GetFunction("m_alloc"); err == nil {
		hctx.alloc = alloc
	}

	export, err := instance.Exports.GetFunction(actor.Function)
	if err != nil {
		return Value{}, errKernel("blueprint %s exports no function %q", actor.Blueprint, actor.Function)
	}

	input, err := EncodePayload(args)
	if err != nil {
		return Value{}, err
	}
	if len(input) > MaxInvokePayloadSize {
		return Value{}, errSystem("invoke payload %d over cap", len(input))
	}
	packedIn, err := hctx.writeToGuest(input)
	if err != nil {
		return Value{}, err
	}

	raw, err := export(int32(packedIn>>32), int32(uint32(packedIn)))
	if hctx.hostErr != nil {
		// A kernel error crossed the boundary; it is authoritative over
		// the resulting trap.
		return Value{}, hctx.hostErr
	}
	if err != nil {
		var trap *wasmer.TrapError
		if errors.As(err, &trap) {
			return Value{}, errPanic("wasm trap in %s::%s: %s", actor.Blueprint, actor.Function, trap.Message())
		}
		return Value{}, errPanic("wasm execution: %v", err)
	}

	packedOut, ok := raw.(int64)
	if !ok {
		return Value{}, errPanic("export returned %T, want i64", raw)
	}
	outPtr := int32(packedOut >> 32)
	outLen := int32(uint32(packedOut))
	payload, err := hctx.read(outPtr, outLen)
	if err != nil {
		return Value{}, err
	}
	result, err := DecodePayload(payload)
	if err != nil {
		return Value{}, fmt.Errorf("decode guest return: %w", err)
	}
	return result, nil
}

// registerHost binds the kernel API into the "env" namespace. Buffer
// convention: (ptr,len) pairs into guest memory; results written back
// through m_alloc and returned packed, -1 signalling a host error.
func (w *WASMHost) registerHost(store *wasmer.Store, h *hostCtx) *wasmer.ImportObject {
	imports := wasmer.NewImportObject()

	i32 := wasmer.ValueKind(wasmer.I32)
	i64 := wasmer.ValueKind(wasmer.I64)

	fnType := func(params, results []wasmer.ValueKind) *wasmer.FunctionType {
		return wasmer.NewFunctionType(wasmer.NewValueTypes(params...), wasmer.NewValueTypes(results...))
	}

	consumeCostUnits := wasmer.NewFunction(store, fnType([]wasmer.ValueKind{i64}, []wasmer.ValueKind{i64}),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			n := uint64(args[0].I64())
			if err := h.kernel.ConsumeCostUnits(CostWASMFuel, n); err != nil {
				return h.fail(err), nil
			}
			return []wasmer.Value{wasmer.NewI64(0)}, nil
		})

	openSubstate := wasmer.NewFunction(store, fnType([]wasmer.ValueKind{i32, i32, i32, i32, i32}, []wasmer.ValueKind{i64}),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			nodePtr, part, keyPtr, keyLen, flags := args[0].I32(), args[1].I32(), args[2].I32(), args[3].I32(), args[4].I32()
			nodeRaw, err := h.read(nodePtr, NodeIDLength)
			if err != nil {
				return h.fail(err), nil
			}
			var node NodeID
			copy(node[:], nodeRaw)
			keyRaw, err := h.read(keyPtr, keyLen)
			if err != nil {
				return h.fail(err), nil
			}
			key, err := DecodeSubstateKey(keyRaw)
			if err != nil {
				return h.fail(err), nil
			}
			handle, err := h.kernel.OpenSubstate(node, PartitionNumber(part), key, LockFlags(flags))
			if err != nil {
				return h.fail(err), nil
			}
			return []wasmer.Value{wasmer.NewI64(int64(handle))}, nil
		})

	readSubstate := wasmer.NewFunction(store, fnType([]wasmer.ValueKind{i32}, []wasmer.ValueKind{i64}),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			payload, err := h.kernel.ReadSubstate(LockHandle(args[0].I32()))
			if err != nil {
				return h.fail(err), nil
			}
			packed, err := h.writeToGuest(payload)
			if err != nil {
				return h.fail(err), nil
			}
			return []wasmer.Value{wasmer.NewI64(packed)}, nil
		})

	writeSubstate := wasmer.NewFunction(store, fnType([]wasmer.ValueKind{i32, i32, i32}, []wasmer.ValueKind{i64}),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			payload, err := h.read(args[1].I32(), args[2].I32())
			if err != nil {
				return h.fail(err), nil
			}
			if err := h.kernel.WriteSubstate(LockHandle(args[0].I32()), payload); err != nil {
				return h.fail(err), nil
			}
			return []wasmer.Value{wasmer.NewI64(0)}, nil
		})

	closeSubstate := wasmer.NewFunction(store, fnType([]wasmer.ValueKind{i32}, []wasmer.ValueKind{i64}),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			if err := h.kernel.CloseSubstate(LockHandle(args[0].I32())); err != nil {
				return h.fail(err), nil
			}
			return []wasmer.Value{wasmer.NewI64(0)}, nil
		})

	callMethod := wasmer.NewFunction(store, fnType([]wasmer.ValueKind{i32, i32, i32, i32, i32}, []wasmer.ValueKind{i64}),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			nodeRaw, err := h.read(args[0].I32(), NodeIDLength)
			if err != nil {
				return h.fail(err), nil
			}
			var receiver NodeID
			copy(receiver[:], nodeRaw)
			fnName, err := h.read(args[1].I32(), args[2].I32())
			if err != nil {
				return h.fail(err), nil
			}
			argBytes, err := h.read(args[3].I32(), args[4].I32())
			if err != nil {
				return h.fail(err), nil
			}
			argVal, err := DecodePayload(argBytes)
			if err != nil {
				return h.fail(err), nil
			}
			result, err := h.kernel.CallMethod(receiver, string(fnName), argVal)
			if err != nil {
				return h.fail(err), nil
			}
			encoded, err := EncodePayload(result)
			if err != nil {
				return h.fail(err), nil
			}
			packed, err := h.writeToGuest(encoded)
			if err != nil {
				return h.fail(err), nil
			}
			return []wasmer.Value{wasmer.NewI64(packed)}, nil
		})

	callFunction := wasmer.NewFunction(store, fnType([]wasmer.ValueKind{i32, i32, i32, i32, i32, i32, i32}, []wasmer.ValueKind{i64}),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			pkgRaw, err := h.read(args[0].I32(), NodeIDLength)
			if err != nil {
				return h.fail(err), nil
			}
			var pkg NodeID
			copy(pkg[:], pkgRaw)
			blueprint, err := h.read(args[1].I32(), args[2].I32())
			if err != nil {
				return h.fail(err), nil
			}
			fnName, err := h.read(args[3].I32(), args[4].I32())
			if err != nil {
				return h.fail(err), nil
			}
			argBytes, err := h.read(args[5].I32(), args[6].I32())
			if err != nil {
				return h.fail(err), nil
			}
			argVal, err := DecodePayload(argBytes)
			if err != nil {
				return h.fail(err), nil
			}
			result, err := h.kernel.CallFunction(pkg, string(blueprint), string(fnName), argVal)
			if err != nil {
				return h.fail(err), nil
			}
			encoded, err := EncodePayload(result)
			if err != nil {
				return h.fail(err), nil
			}
			packed, err := h.writeToGuest(encoded)
			if err != nil {
				return h.fail(err), nil
			}
			return []wasmer.Value{wasmer.NewI64(packed)}, nil
		})

	allocateNodeID := wasmer.NewFunction(store, fnType([]wasmer.ValueKind{i32, i32}, []wasmer.ValueKind{i64}),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			id, err := h.kernel.AllocateNodeID(EntityType(args[0].I32()))
			if err != nil {
				return h.fail(err), nil
			}
			if err := h.write(args[1].I32(), id[:]); err != nil {
				return h.fail(err), nil
			}
			return []wasmer.Value{wasmer.NewI64(0)}, nil
		})

	dropNode := wasmer.NewFunction(store, fnType([]wasmer.ValueKind{i32}, []wasmer.ValueKind{i64}),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			nodeRaw, err := h.read(args[0].I32(), NodeIDLength)
			if err != nil {
				return h.fail(err), nil
			}
			var node NodeID
			copy(node[:], nodeRaw)
			if _, err := h.kernel.DropNode(node); err != nil {
				return h.fail(err), nil
			}
			return []wasmer.Value{wasmer.NewI64(0)}, nil
		})

	globalize := wasmer.NewFunction(store, fnType([]wasmer.ValueKind{i32}, []wasmer.ValueKind{i64}),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			nodeRaw, err := h.read(args[0].I32(), NodeIDLength)
			if err != nil {
				return h.fail(err), nil
			}
			var node NodeID
			copy(node[:], nodeRaw)
			if err := h.kernel.Globalize(node); err != nil {
				return h.fail(err), nil
			}
			return []wasmer.Value{wasmer.NewI64(0)}, nil
		})

	emitEvent := wasmer.NewFunction(store, fnType([]wasmer.ValueKind{i32, i32, i32, i32}, []wasmer.ValueKind{i64}),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			name, err := h.read(args[0].I32(), args[1].I32())
			if err != nil {
				return h.fail(err), nil
			}
			payloadBytes, err := h.read(args[2].I32(), args[3].I32())
			if err != nil {
				return h.fail(err), nil
			}
			payload, err := DecodePayload(payloadBytes)
			if err != nil {
				return h.fail(err), nil
			}
			if err := h.kernel.EmitEvent(string(name), payload); err != nil {
				return h.fail(err), nil
			}
			return []wasmer.Value{wasmer.NewI64(0)}, nil
		})

	emitLog := wasmer.NewFunction(store, fnType([]wasmer.ValueKind{i32, i32, i32, i32}, []wasmer.ValueKind{i64}),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			level, err := h.read(args[0].I32(), args[1].I32())
			if err != nil {
				return h.fail(err), nil
			}
			message, err := h.read(args[2].I32(), args[3].I32())
			if err != nil {
				return h.fail(err), nil
			}
			if err := h.kernel.EmitLog(string(level), string(message)); err != nil {
				return h.fail(err), nil
			}
			return []wasmer.Value{wasmer.NewI64(0)}, nil
		})

	generateRUID := wasmer.NewFunction(store, fnType([]wasmer.ValueKind{i32}, []wasmer.ValueKind{i64}),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			ruid, err := h.kernel.GenerateRUID()
			if err != nil {
				return h.fail(err), nil
			}
			if err := h.write(args[0].I32(), ruid[:]); err != nil {
				return h.fail(err), nil
			}
			return []wasmer.Value{wasmer.NewI64(0)}, nil
		})

	getActor := wasmer.NewFunction(store, fnType(nil, []wasmer.ValueKind{i64}),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			actor := h.kernel.CurrentActor()
			payload := MustEncodePayload(VTuple(
				VAddress(actor.Package),
				VString(actor.Blueprint),
				VString(actor.Function),
				VAddress(actor.Receiver),
			))
			packed, err := h.writeToGuest(payload)
			if err != nil {
				return h.fail(err), nil
			}
			return []wasmer.Value{wasmer.NewI64(packed)}, nil
		})

	getTransactionHash := wasmer.NewFunction(store, fnType([]wasmer.ValueKind{i32}, []wasmer.ValueKind{i64}),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			hash := h.kernel.TransactionHash()
			if err := h.write(args[0].I32(), hash[:]); err != nil {
				return h.fail(err), nil
			}
			return []wasmer.Value{wasmer.NewI64(0)}, nil
		})

	imports.Register(wasmHostModule, map[string]wasmer.IntoExtern{
		"consume_cost_units":   consumeCostUnits,
		"open_substate":        openSubstate,
		"read_substate":        readSubstate,
		"write_substate":       writeSubstate,
		"close_substate":       closeSubstate,
		"call_method":          callMethod,
		"call_function":        callFunction,
		"allocate_node_id":     allocateNodeID,
		"drop_node":            dropNode,
		"globalize":            globalize,
		"emit_event":           emitEvent,
		"emit_log":             emitLog,
		"generate_ruid":        generateRUID,
		"get_actor":            getActor,
		"get_transaction_hash": getTransactionHash,
	})

	return imports
}
