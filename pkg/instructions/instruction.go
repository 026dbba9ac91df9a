package instructions

import (
	"fmt"
	"sort"
	"strings"
)

// Instruction is a compact description of a finite sample sequence to be
// played by a sequencer at its fixed time step. The set of implementations is
// closed: Empty, Pattern, Concatenated and Repeated. Instructions are
// immutable once built.
type Instruction interface {
	// Len returns the total number of samples.
	Len() int
	// DType returns the element type.
	DType() DType
	// Depth returns the nesting level. Depth <= Len for non-empty
	// instructions.
	Depth() int

	isInstruction()
}

// Empty is a zero-length placeholder. It only appears transiently while an
// instruction is being assembled and is never a child of another instruction.
type Empty struct {
	dtype DType
}

// NewEmpty returns the empty instruction of the given element type.
func NewEmpty(dtype DType) *Empty { return &Empty{dtype: dtype} }

func (e *Empty) Len() int       { return 0 }
func (e *Empty) DType() DType   { return e.dtype }
func (e *Empty) Depth() int     { return 0 }
func (e *Empty) String() string { return "Empty" }
func (e *Empty) isInstruction() {}

// Pattern is an explicit sample sequence. Every canonical pattern holds at
// least one sample.
type Pattern struct {
	samples Array
}

// NewPattern wraps a sample buffer into a pattern. The buffer must not be
// modified afterwards.
func NewPattern(samples Array) (*Pattern, error) {
	if samples.Len() == 0 {
		return nil, fmt.Errorf("pattern must hold at least one sample")
	}
	return &Pattern{samples: samples}, nil
}

// BoolPattern builds a digital pattern from explicit samples.
func BoolPattern(values ...bool) *Pattern {
	if len(values) == 0 {
		panic("instructions: BoolPattern requires at least one sample")
	}
	return &Pattern{samples: BoolArray(values)}
}

// Float64Pattern builds an analog pattern from explicit samples. All samples
// must be finite.
func Float64Pattern(values ...float64) (*Pattern, error) {
	arr, err := Float64Array(values)
	if err != nil {
		return nil, err
	}
	return NewPattern(arr)
}

func (p *Pattern) Len() int     { return p.samples.Len() }
func (p *Pattern) DType() DType { return p.samples.DType() }
func (p *Pattern) Depth() int   { return 0 }

// Samples returns the underlying buffer. It must not be modified.
func (p *Pattern) Samples() Array { return p.samples }

func (p *Pattern) String() string {
	var b strings.Builder
	b.WriteString("Pattern(")
	for i := 0; i < p.samples.Len(); i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%v", p.samples.At(i))
	}
	b.WriteString(")")
	return b.String()
}

func (p *Pattern) isInstruction() {}

// Concatenated plays its children one after the other. It always has at
// least two children, none of which is itself Concatenated, and it stores the
// cumulative sample offsets of its children for binary-search indexing.
type Concatenated struct {
	children []Instruction
	// bounds[i] is the first sample index of children[i]; bounds[len(children)]
	// is the total length. Computed once at construction.
	bounds []int
	dtype  DType
}

// newConcatenated assumes the children are already canonical: each one a
// Pattern or Repeated of the same dtype, len(children) >= 2.
func newConcatenated(children []Instruction) *Concatenated {
	bounds := make([]int, len(children)+1)
	for i, child := range children {
		bounds[i+1] = bounds[i] + child.Len()
	}
	return &Concatenated{
		children: children,
		bounds:   bounds,
		dtype:    children[0].DType(),
	}
}

func (c *Concatenated) Len() int     { return c.bounds[len(c.bounds)-1] }
func (c *Concatenated) DType() DType { return c.dtype }

func (c *Concatenated) Depth() int {
	max := 0
	for _, child := range c.children {
		if d := child.Depth(); d > max {
			max = d
		}
	}
	return max + 1
}

// Children returns the concatenated instructions. The slice must not be
// modified.
func (c *Concatenated) Children() []Instruction { return c.children }

// Bounds returns the cumulative sample offsets of the children, starting at 0
// and ending at Len(). The slice must not be modified.
func (c *Concatenated) Bounds() []int { return c.bounds }

// childAt returns the index of the child containing sample index i.
func (c *Concatenated) childAt(i int) int {
	return sort.SearchInts(c.bounds, i+1) - 1
}

func (c *Concatenated) String() string {
	parts := make([]string, len(c.children))
	for i, child := range c.children {
		parts[i] = fmt.Sprint(child)
	}
	return strings.Join(parts, " + ")
}

func (c *Concatenated) isInstruction() {}

// Repeated plays its body a fixed number of times. The repetition count is
// at least 2 and the body is never itself Repeated.
type Repeated struct {
	reps int
	body Instruction
}

// newRepeated assumes reps >= 2 and a canonical, non-Repeated body.
func newRepeated(reps int, body Instruction) *Repeated {
	return &Repeated{reps: reps, body: body}
}

func (r *Repeated) Len() int     { return r.reps * r.body.Len() }
func (r *Repeated) DType() DType { return r.body.DType() }
func (r *Repeated) Depth() int   { return r.body.Depth() + 1 }

// Repetitions returns how many times the body is played.
func (r *Repeated) Repetitions() int { return r.reps }

// Body returns the repeated instruction.
func (r *Repeated) Body() Instruction { return r.body }

func (r *Repeated) String() string {
	if _, ok := r.body.(*Concatenated); ok {
		return fmt.Sprintf("%d * (%v)", r.reps, r.body)
	}
	return fmt.Sprintf("%d * %v", r.reps, r.body)
}

func (r *Repeated) isInstruction() {}

// Equal reports structural equality: value equality on patterns, and
// recursively equal shape elsewhere. Structurally unequal instructions may
// still flatten to the same samples.
func Equal(a, b Instruction) bool {
	switch a := a.(type) {
	case *Empty:
		bb, ok := b.(*Empty)
		return ok && a.dtype.Equal(bb.dtype)
	case *Pattern:
		bb, ok := b.(*Pattern)
		return ok && a.samples.Equal(bb.samples)
	case *Concatenated:
		bb, ok := b.(*Concatenated)
		if !ok || len(a.children) != len(bb.children) {
			return false
		}
		for i := range a.children {
			if !Equal(a.children[i], bb.children[i]) {
				return false
			}
		}
		return true
	case *Repeated:
		bb, ok := b.(*Repeated)
		return ok && a.reps == bb.reps && Equal(a.body, bb.body)
	}
	panic(fmt.Sprintf("instructions: unknown instruction type %T", a))
}

// At returns the sample at index i. Negative indices count from the end.
func At(in Instruction, i int) (any, error) {
	idx, err := normalizeIndex(i, in.Len())
	if err != nil {
		return nil, err
	}
	return at(in, idx), nil
}

// at assumes 0 <= i < in.Len().
func at(in Instruction, i int) any {
	switch in := in.(type) {
	case *Pattern:
		return in.samples.At(i)
	case *Concatenated:
		child := in.childAt(i)
		return at(in.children[child], i-in.bounds[child])
	case *Repeated:
		return at(in.body, i%in.body.Len())
	}
	panic(fmt.Sprintf("instructions: unknown instruction type %T", in))
}

// Flatten materializes the full dense sample buffer. This is the only
// operation where the information dropped by compaction becomes observable.
func Flatten(in Instruction) Array {
	out := makeArray(in.DType(), in.Len())
	flattenInto(in, out, 0)
	return out
}

// ToPattern flattens the instruction into a single explicit pattern.
func ToPattern(in Instruction) (*Pattern, error) {
	return NewPattern(Flatten(in))
}

func flattenInto(in Instruction, dst Array, offset int) {
	switch in := in.(type) {
	case *Empty:
	case *Pattern:
		in.samples.copyInto(dst, offset)
	case *Concatenated:
		for i, child := range in.children {
			flattenInto(child, dst, offset+in.bounds[i])
		}
	case *Repeated:
		bodyLen := in.body.Len()
		flattenInto(in.body, dst, offset)
		// Copy the first rendering to the remaining repetitions.
		first := dst.Slice(offset, offset+bodyLen)
		for rep := 1; rep < in.reps; rep++ {
			first.copyInto(dst, offset+rep*bodyLen)
		}
	default:
		panic(fmt.Sprintf("instructions: unknown instruction type %T", in))
	}
}

// AsType converts the instruction element-wise to the target dtype,
// preserving its structure.
func AsType(in Instruction, target DType) (Instruction, error) {
	switch in := in.(type) {
	case *Empty:
		return NewEmpty(target), nil
	case *Pattern:
		converted, err := in.samples.AsType(target)
		if err != nil {
			return nil, err
		}
		return &Pattern{samples: converted}, nil
	case *Concatenated:
		children := make([]Instruction, len(in.children))
		for i, child := range in.children {
			converted, err := AsType(child, target)
			if err != nil {
				return nil, err
			}
			children[i] = converted
		}
		return newConcatenated(children), nil
	case *Repeated:
		body, err := AsType(in.body, target)
		if err != nil {
			return nil, err
		}
		return newRepeated(in.reps, body), nil
	}
	panic(fmt.Sprintf("instructions: unknown instruction type %T", in))
}

// FieldOf projects the named field of a structured instruction into an
// instruction of the field's element type and the same shape.
func FieldOf(in Instruction, name string) (Instruction, error) {
	switch in := in.(type) {
	case *Empty:
		fieldType, ok := in.dtype.FieldType(name)
		if !ok {
			return nil, fmt.Errorf("no field %q in dtype %s", name, in.dtype)
		}
		return NewEmpty(fieldType), nil
	case *Pattern:
		sub, err := in.samples.Field(name)
		if err != nil {
			return nil, err
		}
		return &Pattern{samples: sub}, nil
	case *Concatenated:
		children := make([]Instruction, len(in.children))
		for i, child := range in.children {
			sub, err := FieldOf(child, name)
			if err != nil {
				return nil, err
			}
			children[i] = sub
		}
		return newConcatenated(children), nil
	case *Repeated:
		body, err := FieldOf(in.body, name)
		if err != nil {
			return nil, err
		}
		return newRepeated(in.reps, body), nil
	}
	panic(fmt.Sprintf("instructions: unknown instruction type %T", in))
}

func normalizeIndex(i, length int) (int, error) {
	idx := i
	if idx < 0 {
		idx += length
	}
	if idx < 0 || idx >= length {
		return 0, fmt.Errorf("index %d out of range for length %d", i, length)
	}
	return idx, nil
}

func normalizeSliceIndex(i, length int) (int, error) {
	idx := i
	if idx < 0 {
		idx += length
	}
	if idx < 0 || idx > length {
		return 0, fmt.Errorf("slice index %d out of range for length %d", i, length)
	}
	return idx, nil
}
