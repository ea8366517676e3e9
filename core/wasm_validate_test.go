package core

import "testing"

func wasmModule(sections ...[]byte) []byte {
	out := append([]byte{}, wasmMagic...)
	for _, s := range sections {
		out = append(out, s...)
	}
	return out
}

func wasmSection(id byte, body ...byte) []byte {
	out := []byte{id, byte(len(body))}
	return append(out, body...)
}

func TestValidateEmptyModule(t *testing.T) {
	costs, err := ValidateWASMModule(wasmModule())
	if err != nil {
		t.Fatalf("empty module rejected: %v", err)
	}
	if len(costs) != 0 {
		t.Fatalf("unexpected costs: %v", costs)
	}
}

func TestValidateRejectsBadMagic(t *testing.T) {
	if _, err := ValidateWASMModule([]byte{1, 2, 3}); err == nil {
		t.Fatal("bad magic accepted")
	}
}

func TestValidateRejectsFloatTypes(t *testing.T) {
	// One type: (f64) -> ().
	mod := wasmModule(wasmSection(1, 0x01, 0x60, 0x01, 0x7c, 0x00))
	if _, err := ValidateWASMModule(mod); err == nil {
		t.Fatal("float parameter type accepted")
	}
}

func TestValidateRejectsFloatOpcodes(t *testing.T) {
	// One function whose body starts with f32.const.
	mod := wasmModule(
		wasmSection(1, 0x01, 0x60, 0x00, 0x00),
		wasmSection(3, 0x01, 0x00),
		wasmSection(10, 0x01, 0x07, 0x00, 0x43, 0x00, 0x00, 0x00, 0x00, 0x0b),
	)
	if _, err := ValidateWASMModule(mod); err == nil {
		t.Fatal("f32.const accepted")
	}
}

func TestValidateRejectsStartSection(t *testing.T) {
	mod := wasmModule(wasmSection(8, 0x00))
	if _, err := ValidateWASMModule(mod); err == nil {
		t.Fatal("start section accepted")
	}
}

func TestValidateRejectsOversizedMemory(t *testing.T) {
	// min 200 pages, no max.
	mod := wasmModule(wasmSection(5, 0x01, 0x00, 0xc8, 0x01))
	if _, err := ValidateWASMModule(mod); err == nil {
		t.Fatal("oversized memory accepted")
	}
}

func TestValidateRejectsForeignImports(t *testing.T) {
	// import "env"."bogus" (func type 0)
	mod := wasmModule(
		wasmSection(1, 0x01, 0x60, 0x00, 0x00),
		wasmSection(2, 0x01,
			0x03, 'e', 'n', 'v',
			0x05, 'b', 'o', 'g', 'u', 's',
			0x00, 0x00),
	)
	if _, err := ValidateWASMModule(mod); err == nil {
		t.Fatal("unknown host import accepted")
	}
	// import from a module other than env
	mod2 := wasmModule(
		wasmSection(1, 0x01, 0x60, 0x00, 0x00),
		wasmSection(2, 0x01,
			0x03, 'f', 'o', 'o',
			0x08, 'e', 'm', 'i', 't', '_', 'l', 'o', 'g',
			0x00, 0x00),
	)
	if _, err := ValidateWASMModule(mod2); err == nil {
		t.Fatal("foreign module import accepted")
	}
}

func TestValidatePricesExports(t *testing.T) {
	// (func $foo: i32.const 5; drop; end) exported as "foo".
	mod := wasmModule(
		wasmSection(1, 0x01, 0x60, 0x00, 0x00),
		wasmSection(3, 0x01, 0x00),
		wasmSection(7, 0x01, 0x03, 'f', 'o', 'o', 0x00, 0x00),
		wasmSection(10, 0x01, 0x05, 0x00, 0x41, 0x05, 0x1a, 0x0b),
	)
	costs, err := ValidateWASMModule(mod)
	if err != nil {
		t.Fatalf("valid module rejected: %v", err)
	}
	if costs["foo"] != 3 {
		t.Fatalf("foo priced at %d, want 3 instructions", costs["foo"])
	}
}

func TestValidateRejectsSIMD(t *testing.T) {
	mod := wasmModule(
		wasmSection(1, 0x01, 0x60, 0x00, 0x00),
		wasmSection(3, 0x01, 0x00),
		wasmSection(10, 0x01, 0x03, 0x00, 0xfd, 0x0b),
	)
	if _, err := ValidateWASMModule(mod); err == nil {
		t.Fatal("SIMD prefix accepted")
	}
}
