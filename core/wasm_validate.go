package core

// WASM module admission. Before a package is published its code is walked
// section by section: non-deterministic constructs (floats, SIMD, threads,
// multiple or oversized memories, start functions, foreign imports) are
// rejected, and every function body is priced by instruction count. The
// recorded prices are charged at invocation entry, which together with
// per-host-call metering bounds guest execution.

import "bytes"

// WASM admission limits.
const (
	MaxWASMModuleSize  = 4 << 20
	MaxWASMMemoryPages = 64 // 4 MiB of linear memory
	wasmHostModule     = "env"
)

var wasmMagic = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

// Host functions a module may import.
var wasmKnownImports = map[string]bool{
	"consume_cost_units":   true,
	"open_substate":        true,
	"read_substate":        true,
	"write_substate":       true,
	"close_substate":       true,
	"call_method":          true,
	"call_function":        true,
	"allocate_node_id":     true,
	"drop_node":            true,
	"globalize":            true,
	"emit_event":           true,
	"emit_log":             true,
	"generate_ruid":        true,
	"get_actor":            true,
	"get_transaction_hash": true,
}

type wasmReader struct {
	b   []byte
	pos int
}

func (r *wasmReader) done() bool { return r.pos >= len(r.b) }

func (r *wasmReader) byte() (byte, error) {
	if r.pos >= len(r.b) {
		return 0, errDecode("wasm: unexpected end at %d", r.pos)
	}
	c := r.b[r.pos]
	r.pos++
	return c, nil
}

func (r *wasmReader) bytes(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.b) {
		return nil, errDecode("wasm: unexpected end at %d", r.pos)
	}
	out := r.b[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

func (r *wasmReader) uleb() (uint64, error) {
	var v uint64
	var shift uint
	for {
		c, err := r.byte()
		if err != nil {
			return 0, err
		}
		v |= uint64(c&0x7f) << shift
		if c&0x80 == 0 {
			return v, nil
		}
		shift += 7
		if shift >= 64 {
			return 0, errDecode("wasm: uleb overflow")
		}
	}
}

func (r *wasmReader) sleb() error {
	for {
		c, err := r.byte()
		if err != nil {
			return err
		}
		if c&0x80 == 0 {
			return nil
		}
	}
}

func (r *wasmReader) name() (string, error) {
	n, err := r.uleb()
	if err != nil {
		return "", err
	}
	raw, err := r.bytes(int(n))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// ValidateWASMModule checks a module for deterministic admission and
// returns the static fuel cost of each exported function.
func ValidateWASMModule(code []byte) (map[string]uint64, error) {
	if len(code) > MaxWASMModuleSize {
		return nil, errSystem("wasm module %d bytes over cap %d", len(code), MaxWASMModuleSize)
	}
	if len(code) < len(wasmMagic) || !bytes.Equal(code[:len(wasmMagic)], wasmMagic) {
		return nil, errDecode("wasm: bad magic or version")
	}
	r := &wasmReader{b: code, pos: len(wasmMagic)}

	var importedFns int
	var bodyCosts []uint64 // per locally defined function
	exports := map[string]uint32{}
	memoryCount := 0

	for !r.done() {
		sectionID, err := r.byte()
		if err != nil {
			return nil, err
		}
		size, err := r.uleb()
		if err != nil {
			return nil, err
		}
		body, err := r.bytes(int(size))
		if err != nil {
			return nil, err
		}
		s := &wasmReader{b: body}
		switch sectionID {
		case 1: // types
			if err := validateTypeSection(s); err != nil {
				return nil, err
			}
		case 2: // imports
			n, err := validateImportSection(s)
			if err != nil {
				return nil, err
			}
			importedFns = n
		case 5: // memory
			count, err := s.uleb()
			if err != nil {
				return nil, err
			}
			memoryCount += int(count)
			if memoryCount > 1 {
				return nil, errSystem("wasm: multiple memories")
			}
			for i := uint64(0); i < count; i++ {
				flags, err := s.byte()
				if err != nil {
					return nil, err
				}
				minPages, err := s.uleb()
				if err != nil {
					return nil, err
				}
				maxPages := minPages
				if flags&0x01 != 0 {
					if maxPages, err = s.uleb(); err != nil {
						return nil, err
					}
				}
				if minPages > MaxWASMMemoryPages || maxPages > MaxWASMMemoryPages {
					return nil, errSystem("wasm: memory %d pages over cap %d", maxPages, MaxWASMMemoryPages)
				}
			}
		case 7: // exports
			count, err := s.uleb()
			if err != nil {
				return nil, err
			}
			for i := uint64(0); i < count; i++ {
				name, err := s.name()
				if err != nil {
					return nil, err
				}
				kind, err := s.byte()
				if err != nil {
					return nil, err
				}
				index, err := s.uleb()
				if err != nil {
					return nil, err
				}
				if kind == 0x00 { // function export
					exports[name] = uint32(index)
				}
			}
		case 8: // start
			return nil, errSystem("wasm: start sections are not admitted")
		case 10: // code
			count, err := s.uleb()
			if err != nil {
				return nil, err
			}
			for i := uint64(0); i < count; i++ {
				bodySize, err := s.uleb()
				if err != nil {
					return nil, err
				}
				fnBody, err := s.bytes(int(bodySize))
				if err != nil {
					return nil, err
				}
				cost, err := priceFunctionBody(fnBody)
				if err != nil {
					return nil, err
				}
				bodyCosts = append(bodyCosts, cost)
			}
		}
	}

	costs := make(map[string]uint64, len(exports))
	for name, index := range exports {
		local := int(index) - importedFns
		if local < 0 || local >= len(bodyCosts) {
			continue
		}
		costs[name] = bodyCosts[local]
	}
	return costs, nil
}

func validateTypeSection(s *wasmReader) error {
	count, err := s.uleb()
	if err != nil {
		return err
	}
	for i := uint64(0); i < count; i++ {
		form, err := s.byte()
		if err != nil {
			return err
		}
		if form != 0x60 {
			return errDecode("wasm: unknown type form 0x%02x", form)
		}
		for pass := 0; pass < 2; pass++ {
			n, err := s.uleb()
			if err != nil {
				return err
			}
			for j := uint64(0); j < n; j++ {
				vt, err := s.byte()
				if err != nil {
					return err
				}
				if vt == 0x7d || vt == 0x7c { // f32 / f64
					return errSystem("wasm: float value types are not admitted")
				}
			}
		}
	}
	return nil
}

func validateImportSection(s *wasmReader) (int, error) {
	count, err := s.uleb()
	if err != nil {
		return 0, err
	}
	importedFns := 0
	for i := uint64(0); i < count; i++ {
		module, err := s.name()
		if err != nil {
			return 0, err
		}
		field, err := s.name()
		if err != nil {
			return 0, err
		}
		kind, err := s.byte()
		if err != nil {
			return 0, err
		}
		if module != wasmHostModule {
			return 0, errSystem("wasm: import from %q is not admitted", module)
		}
		if kind != 0x00 {
			return 0, errSystem("wasm: only function imports are admitted")
		}
		if !wasmKnownImports[field] {
			return 0, errSystem("wasm: unknown host import %q", field)
		}
		if _, err := s.uleb(); err != nil { // type index
			return 0, err
		}
		importedFns++
	}
	return importedFns, nil
}

// priceFunctionBody walks a function body instruction by instruction,
// rejecting non-deterministic opcodes and returning the instruction count.
func priceFunctionBody(body []byte) (uint64, error) {
	s := &wasmReader{b: body}
	// Local declarations.
	declCount, err := s.uleb()
	if err != nil {
		return 0, err
	}
	for i := uint64(0); i < declCount; i++ {
		if _, err := s.uleb(); err != nil {
			return 0, err
		}
		vt, err := s.byte()
		if err != nil {
			return 0, err
		}
		if vt == 0x7d || vt == 0x7c {
			return 0, errSystem("wasm: float locals are not admitted")
		}
	}
	var count uint64
	for !s.done() {
		op, err := s.byte()
		if err != nil {
			return 0, err
		}
		count++
		switch {
		case op == 0x00 || op == 0x01 || op == 0x0f || op == 0x05 || op == 0x0b ||
			op == 0x1a || op == 0x1b || (op >= 0x45 && op <= 0x5a) ||
			(op >= 0x67 && op <= 0x8a) || (op >= 0xa7 && op <= 0xb1 && !isFloatConv(op)) ||
			op == 0xc0 || op == 0xc1 || op == 0xc2 || op == 0xc3 || op == 0xc4:
			// No immediates.
		case op == 0x02 || op == 0x03 || op == 0x04: // block, loop, if
			if _, err := s.byte(); err != nil { // block type
				return 0, err
			}
		case op == 0x0c || op == 0x0d || op == 0x10: // br, br_if, call
			if _, err := s.uleb(); err != nil {
				return 0, err
			}
		case op == 0x0e: // br_table
			n, err := s.uleb()
			if err != nil {
				return 0, err
			}
			for i := uint64(0); i <= n; i++ {
				if _, err := s.uleb(); err != nil {
					return 0, err
				}
			}
		case op == 0x11: // call_indirect
			if _, err := s.uleb(); err != nil {
				return 0, err
			}
			if _, err := s.byte(); err != nil {
				return 0, err
			}
		case op >= 0x20 && op <= 0x24: // local/global get/set/tee
			if _, err := s.uleb(); err != nil {
				return 0, err
			}
		case op >= 0x28 && op <= 0x3e: // loads/stores (int only below 0x39..)
			if op >= 0x2a && op <= 0x2b || op >= 0x38 && op <= 0x39 {
				return 0, errSystem("wasm: float memory access is not admitted")
			}
			if _, err := s.uleb(); err != nil { // align
				return 0, err
			}
			if _, err := s.uleb(); err != nil { // offset
				return 0, err
			}
		case op == 0x3f || op == 0x40: // memory.size / memory.grow
			if _, err := s.byte(); err != nil {
				return 0, err
			}
		case op == 0x41 || op == 0x42: // i32.const / i64.const
			if err := s.sleb(); err != nil {
				return 0, err
			}
		case op == 0x43 || op == 0x44: // f32.const / f64.const
			return 0, errSystem("wasm: float constants are not admitted")
		case (op >= 0x5b && op <= 0x66) || (op >= 0x8b && op <= 0xa6):
			return 0, errSystem("wasm: float arithmetic is not admitted")
		case op >= 0xb2 && op <= 0xbf:
			return 0, errSystem("wasm: float conversions are not admitted")
		case op == 0xfc: // saturating truncations and bulk memory
			sub, err := s.uleb()
			if err != nil {
				return 0, err
			}
			if sub <= 7 {
				return 0, errSystem("wasm: float truncations are not admitted")
			}
			// memory.copy / memory.fill / memory.init immediates.
			if _, err := s.uleb(); err != nil {
				return 0, err
			}
			if sub == 10 { // memory.copy has two immediates
				if _, err := s.uleb(); err != nil {
					return 0, err
				}
			}
		case op == 0xfd || op == 0xfe:
			return 0, errSystem("wasm: SIMD and atomics are not admitted")
		default:
			return 0, errDecode("wasm: unknown opcode 0x%02x", op)
		}
	}
	return count, nil
}

func isFloatConv(op byte) bool {
	// i32/i64 truncations from floats within 0xa7..0xb1.
	return op >= 0xa8 && op <= 0xb1 && op != 0xa7 && op != 0xac && op != 0xad
}

// wasmExportCost is the invocation-entry charge for fn: the recorded
// static body cost, or the module-size fallback for unpriced exports.
func wasmExportCost(code PackageCodeSubstate, fn string) uint64 {
	if cost, ok := code.FuelCosts[fn]; ok {
		return cost
	}
	return uint64(len(code.Code))
}
