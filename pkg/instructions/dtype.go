package instructions

import (
	"fmt"
	"strings"
)

// Kind enumerates the element kinds an instruction can carry.
type Kind uint8

const (
	KindBool Kind = iota
	KindFloat64
	KindStruct
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindFloat64:
		return "float64"
	case KindStruct:
		return "struct"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Field is one named sub-stream of a structured element type.
type Field struct {
	Name string
	Type DType
}

// DType describes the element type of an instruction: a scalar kind or a
// structured record with one named field per merged channel.
type DType struct {
	kind   Kind
	fields []Field // only for KindStruct; never empty there
}

// Bool is the element type of digital instructions.
var Bool = DType{kind: KindBool}

// Float64 is the element type of analog instructions.
var Float64 = DType{kind: KindFloat64}

// StructType builds a structured element type from the given fields. Field
// names must be unique and non-empty.
func StructType(fields ...Field) (DType, error) {
	if len(fields) == 0 {
		return DType{}, fmt.Errorf("struct dtype requires at least one field")
	}
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if f.Name == "" {
			return DType{}, fmt.Errorf("struct dtype field name must not be empty")
		}
		if _, ok := seen[f.Name]; ok {
			return DType{}, fmt.Errorf("duplicate field name %q in struct dtype", f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	return DType{kind: KindStruct, fields: append([]Field(nil), fields...)}, nil
}

func (d DType) Kind() Kind { return d.kind }

// Fields returns the named fields of a structured dtype, or nil for scalars.
func (d DType) Fields() []Field { return d.fields }

// FieldType returns the element type of the named field.
func (d DType) FieldType(name string) (DType, bool) {
	for _, f := range d.fields {
		if f.Name == name {
			return f.Type, true
		}
	}
	return DType{}, false
}

func (d DType) Equal(o DType) bool {
	if d.kind != o.kind {
		return false
	}
	if d.kind != KindStruct {
		return true
	}
	if len(d.fields) != len(o.fields) {
		return false
	}
	for i, f := range d.fields {
		if f.Name != o.fields[i].Name || !f.Type.Equal(o.fields[i].Type) {
			return false
		}
	}
	return true
}

func (d DType) String() string {
	if d.kind != KindStruct {
		return d.kind.String()
	}
	var b strings.Builder
	b.WriteString("struct{")
	for i, f := range d.fields {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %s", f.Name, f.Type)
	}
	b.WriteString("}")
	return b.String()
}

// mergeDTypes concatenates the field lists of two structured dtypes.
func mergeDTypes(a, b DType) (DType, error) {
	if a.kind != KindStruct || b.kind != KindStruct {
		return DType{}, fmt.Errorf("can only merge structured dtypes, got %s and %s", a, b)
	}
	return StructType(append(append([]Field(nil), a.fields...), b.fields...)...)
}
