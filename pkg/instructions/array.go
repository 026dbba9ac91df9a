package instructions

import (
	"fmt"
	"math"
	"slices"
)

// Array is a dense, typed sample buffer. Structured arrays are stored as one
// sub-array per field, all of equal length (struct of arrays).
//
// Arrays are treated as immutable once handed to an instruction; slicing
// shares the underlying storage.
type Array struct {
	dtype  DType
	bools  []bool
	floats []float64
	subs   []Array // parallel per-field buffers for KindStruct
}

// BoolArray wraps a boolean sample buffer.
func BoolArray(values []bool) Array {
	return Array{dtype: Bool, bools: values}
}

// Float64Array wraps a float sample buffer. All values must be finite.
func Float64Array(values []float64) (Array, error) {
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Array{}, fmt.Errorf("sample %d is not finite: %v", i, v)
		}
	}
	return Array{dtype: Float64, floats: values}, nil
}

// StructArray combines per-field buffers into a structured array. The field
// buffers must all have the same length and match the dtype's field types.
func StructArray(dtype DType, fields []Array) (Array, error) {
	if dtype.Kind() != KindStruct {
		return Array{}, fmt.Errorf("dtype %s is not structured", dtype)
	}
	if len(fields) != len(dtype.fields) {
		return Array{}, fmt.Errorf("got %d field buffers for %d fields", len(fields), len(dtype.fields))
	}
	for i, f := range fields {
		if !f.dtype.Equal(dtype.fields[i].Type) {
			return Array{}, fmt.Errorf("field %q has dtype %s, want %s",
				dtype.fields[i].Name, f.dtype, dtype.fields[i].Type)
		}
		if f.Len() != fields[0].Len() {
			return Array{}, fmt.Errorf("field buffers have unequal lengths %d and %d",
				fields[0].Len(), f.Len())
		}
	}
	return Array{dtype: dtype, subs: fields}, nil
}

func (a Array) DType() DType { return a.dtype }

func (a Array) Len() int {
	switch a.dtype.kind {
	case KindBool:
		return len(a.bools)
	case KindFloat64:
		return len(a.floats)
	case KindStruct:
		if len(a.subs) == 0 {
			return 0
		}
		return a.subs[0].Len()
	}
	return 0
}

// At returns the sample at index i. For structured arrays the sample is a
// []any with one entry per field, in field order.
func (a Array) At(i int) any {
	switch a.dtype.kind {
	case KindBool:
		return a.bools[i]
	case KindFloat64:
		return a.floats[i]
	case KindStruct:
		record := make([]any, len(a.subs))
		for k, sub := range a.subs {
			record[k] = sub.At(i)
		}
		return record
	}
	panic("instructions: invalid array dtype")
}

// Slice returns the sub-array [start:stop), sharing storage.
func (a Array) Slice(start, stop int) Array {
	switch a.dtype.kind {
	case KindBool:
		return Array{dtype: a.dtype, bools: a.bools[start:stop]}
	case KindFloat64:
		return Array{dtype: a.dtype, floats: a.floats[start:stop]}
	case KindStruct:
		subs := make([]Array, len(a.subs))
		for i, sub := range a.subs {
			subs[i] = sub.Slice(start, stop)
		}
		return Array{dtype: a.dtype, subs: subs}
	}
	panic("instructions: invalid array dtype")
}

// Equal reports element-wise value equality. Arrays of different dtypes are
// never equal.
func (a Array) Equal(b Array) bool {
	if !a.dtype.Equal(b.dtype) {
		return false
	}
	switch a.dtype.kind {
	case KindBool:
		return slices.Equal(a.bools, b.bools)
	case KindFloat64:
		return slices.Equal(a.floats, b.floats)
	case KindStruct:
		for i := range a.subs {
			if !a.subs[i].Equal(b.subs[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// Field projects the named field of a structured array.
func (a Array) Field(name string) (Array, error) {
	if a.dtype.kind != KindStruct {
		return Array{}, fmt.Errorf("dtype %s has no fields", a.dtype)
	}
	for i, f := range a.dtype.fields {
		if f.Name == name {
			return a.subs[i], nil
		}
	}
	return Array{}, fmt.Errorf("no field %q in dtype %s", name, a.dtype)
}

// AsType converts the array element-wise to the target dtype. Bool and
// float64 convert to each other; structured dtypes only convert to
// themselves.
func (a Array) AsType(target DType) (Array, error) {
	if a.dtype.Equal(target) {
		return a, nil
	}
	switch {
	case a.dtype.kind == KindBool && target.kind == KindFloat64:
		floats := make([]float64, len(a.bools))
		for i, v := range a.bools {
			if v {
				floats[i] = 1
			}
		}
		return Array{dtype: Float64, floats: floats}, nil
	case a.dtype.kind == KindFloat64 && target.kind == KindBool:
		bools := make([]bool, len(a.floats))
		for i, v := range a.floats {
			bools[i] = v != 0
		}
		return Array{dtype: Bool, bools: bools}, nil
	}
	return Array{}, fmt.Errorf("cannot convert dtype %s to %s", a.dtype, target)
}

// makeArray allocates a zeroed array of the given dtype and length.
func makeArray(dtype DType, length int) Array {
	switch dtype.kind {
	case KindBool:
		return Array{dtype: dtype, bools: make([]bool, length)}
	case KindFloat64:
		return Array{dtype: dtype, floats: make([]float64, length)}
	case KindStruct:
		subs := make([]Array, len(dtype.fields))
		for i, f := range dtype.fields {
			subs[i] = makeArray(f.Type, length)
		}
		return Array{dtype: dtype, subs: subs}
	}
	panic("instructions: invalid array dtype")
}

// copyInto copies a into dst starting at offset. dst must have the same dtype
// and enough capacity past the offset.
func (a Array) copyInto(dst Array, offset int) {
	switch a.dtype.kind {
	case KindBool:
		copy(dst.bools[offset:], a.bools)
	case KindFloat64:
		copy(dst.floats[offset:], a.floats)
	case KindStruct:
		for i, sub := range a.subs {
			sub.copyInto(dst.subs[i], offset)
		}
	}
}
