package core

// Schema layer for the canonical codec. A Schema is a closed list of named
// type definitions; packages store one per blueprint so that the kernel can
// check substate writes and invocation payloads against declared shapes.

import "fmt"

// TypeRef points at a type: either a well-known primitive kind, the Any
// wildcard, or a local definition by index.
type TypeRef struct {
	WellKnown ValueKind // 0 when LocalIndex is used
	Any       bool
	Local     bool
	Index     uint16
}

func WellKnownRef(kind ValueKind) TypeRef { return TypeRef{WellKnown: kind} }
func AnyRef() TypeRef                     { return TypeRef{Any: true} }
func LocalRef(index uint16) TypeRef       { return TypeRef{Local: true, Index: index} }

// VariantDef describes one enum variant.
type VariantDef struct {
	Name   string
	Fields []TypeRef
}

// TypeDef is one named type in a schema.
type TypeDef struct {
	Name string
	Kind ValueKind

	// Tuple shape.
	FieldNames []string
	Fields     []TypeRef

	// Enum shape, keyed by discriminator.
	Variants map[uint8]VariantDef

	// Array shape.
	Element TypeRef

	// Map shape.
	Key   TypeRef
	Value TypeRef
}

// Schema is a closed set of type definitions.
type Schema struct {
	Types []TypeDef
}

// ResolveLocal returns the definition at index.
func (s *Schema) ResolveLocal(index uint16) (*TypeDef, error) {
	if int(index) >= len(s.Types) {
		return nil, errSystem("schema type index %d out of range", index)
	}
	return &s.Types[index], nil
}

// TypeByName finds a definition by its name.
func (s *Schema) TypeByName(name string) (uint16, *TypeDef, bool) {
	for i := range s.Types {
		if s.Types[i].Name == name {
			return uint16(i), &s.Types[i], true
		}
	}
	return 0, nil, false
}

// Validate checks a decoded value against ref within this schema.
func (s *Schema) Validate(v Value, ref TypeRef) error {
	return s.validate(v, ref, 0)
}

func (s *Schema) validate(v Value, ref TypeRef, depth int) error {
	if depth > maxEncodeDepth {
		return errDecode("schema validation depth exceeds %d", maxEncodeDepth)
	}
	if ref.Any {
		return nil
	}
	if !ref.Local {
		if v.Kind != ref.WellKnown {
			return errDecode("expected %s, got %s", ref.WellKnown, v.Kind)
		}
		return nil
	}
	def, err := s.ResolveLocal(ref.Index)
	if err != nil {
		return err
	}
	if v.Kind != def.Kind {
		return errDecode("type %s expects %s, got %s", def.Name, def.Kind, v.Kind)
	}
	switch def.Kind {
	case ValueKindTuple:
		if len(v.Fields) != len(def.Fields) {
			return errDecode("type %s expects %d fields, got %d", def.Name, len(def.Fields), len(v.Fields))
		}
		for i, f := range v.Fields {
			if err := s.validate(f, def.Fields[i], depth+1); err != nil {
				return fmt.Errorf("%s.%s: %w", def.Name, fieldName(def, i), err)
			}
		}
	case ValueKindEnum:
		variant, ok := def.Variants[v.Discriminator]
		if !ok {
			return errDecode("type %s has no variant %d", def.Name, v.Discriminator)
		}
		if len(v.Fields) != len(variant.Fields) {
			return errDecode("variant %s::%s expects %d fields, got %d",
				def.Name, variant.Name, len(variant.Fields), len(v.Fields))
		}
		for i, f := range v.Fields {
			if err := s.validate(f, variant.Fields[i], depth+1); err != nil {
				return fmt.Errorf("%s::%s[%d]: %w", def.Name, variant.Name, i, err)
			}
		}
	case ValueKindArray:
		for i, e := range v.Elements {
			if err := s.validate(e, def.Element, depth+1); err != nil {
				return fmt.Errorf("%s[%d]: %w", def.Name, i, err)
			}
		}
	case ValueKindMap:
		for i, e := range v.Entries {
			if err := s.validate(e.Key, def.Key, depth+1); err != nil {
				return fmt.Errorf("%s key[%d]: %w", def.Name, i, err)
			}
			if err := s.validate(e.Value, def.Value, depth+1); err != nil {
				return fmt.Errorf("%s value[%d]: %w", def.Name, i, err)
			}
		}
	}
	return nil
}

func fieldName(def *TypeDef, i int) string {
	if i < len(def.FieldNames) {
		return def.FieldNames[i]
	}
	return fmt.Sprintf("field%d", i)
}

// ValidateSchema rejects malformed schemas before they are stored in a
// package: dangling local refs, variant name collisions, empty names.
func ValidateSchema(s *Schema) error {
	seen := map[string]bool{}
	for i, def := range s.Types {
		if def.Name == "" {
			return errSystem("schema type %d has an empty name", i)
		}
		if seen[def.Name] {
			return errSystem("schema type name %q duplicated", def.Name)
		}
		seen[def.Name] = true
		refs := append([]TypeRef{}, def.Fields...)
		refs = append(refs, def.Element, def.Key, def.Value)
		for _, variant := range def.Variants {
			refs = append(refs, variant.Fields...)
		}
		for _, r := range refs {
			if r.Local && int(r.Index) >= len(s.Types) {
				return errSystem("schema type %q references undefined index %d", def.Name, r.Index)
			}
		}
		if def.Kind == ValueKindTuple && len(def.FieldNames) != 0 && len(def.FieldNames) != len(def.Fields) {
			return errSystem("schema type %q names %d of %d fields", def.Name, len(def.FieldNames), len(def.Fields))
		}
	}
	return nil
}
