package instructions

import "fmt"

// Concat joins two instructions end to end. It is the smart constructor
// behind the `+` of the notation: when the trailing value of a equals the
// leading value of b, the pair collapses into (or extends) a Repeated block
// instead of sitting side by side. The result never contains a Concatenated
// whose direct child is itself Concatenated.
func Concat(a, b Instruction) (Instruction, error) {
	if !a.DType().Equal(b.DType()) {
		return nil, fmt.Errorf("cannot concatenate dtype %s with %s", a.DType(), b.DType())
	}
	if _, ok := a.(*Empty); ok {
		return b, nil
	}
	if _, ok := b.(*Empty); ok {
		return a, nil
	}

	left := directChildren(a)
	right := directChildren(b)
	parts := make([]Instruction, 0, len(left)+len(right))
	if joined, ok := coalesce(left[len(left)-1], right[0]); ok {
		parts = append(parts, left[:len(left)-1]...)
		parts = append(parts, joined)
		parts = append(parts, right[1:]...)
	} else {
		parts = append(parts, left...)
		parts = append(parts, right...)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return newConcatenated(parts), nil
}

// coalesce combines two adjacent instructions into one Repeated block if one
// is (a repetition of) the other.
func coalesce(l, r Instruction) (Instruction, bool) {
	lr, lRep := l.(*Repeated)
	rr, rRep := r.(*Repeated)
	switch {
	case lRep && rRep:
		if Equal(lr.body, rr.body) {
			return newRepeated(lr.reps+rr.reps, lr.body), true
		}
	case lRep:
		if Equal(lr.body, r) {
			return newRepeated(lr.reps+1, lr.body), true
		}
	case rRep:
		if Equal(l, rr.body) {
			return newRepeated(rr.reps+1, rr.body), true
		}
	default:
		if Equal(l, r) {
			return newRepeated(2, l), true
		}
	}
	return nil, false
}

// directChildren views an instruction as a flat child list: the children of a
// Concatenated, or the instruction itself.
func directChildren(in Instruction) []Instruction {
	if c, ok := in.(*Concatenated); ok {
		return c.children
	}
	return []Instruction{in}
}

// Join concatenates instructions without trying to collapse equal neighbours
// into repetitions. Empty instructions are dropped; nested concatenations are
// spliced in place. All instructions must share one dtype and at least one
// must be given.
//
// Merge internals rely on Join keeping repetition blocks as they are: the
// repeated-vs-repeated case tiles both bodies out as explicit concatenations,
// and re-collapsing them would send it into a loop.
func Join(ins ...Instruction) (Instruction, error) {
	if len(ins) == 0 {
		return nil, fmt.Errorf("need at least one instruction to join")
	}
	dtype := ins[0].DType()
	var parts []Instruction
	for _, in := range ins {
		if !in.DType().Equal(dtype) {
			return nil, fmt.Errorf("cannot join dtype %s with %s", dtype, in.DType())
		}
		switch in := in.(type) {
		case *Empty:
		case *Concatenated:
			parts = append(parts, in.children...)
		default:
			parts = append(parts, in)
		}
	}
	switch len(parts) {
	case 0:
		return NewEmpty(dtype), nil
	case 1:
		return parts[0], nil
	}
	return newConcatenated(parts), nil
}

// Repeat plays the instruction n times: 0 gives Empty, 1 gives the
// instruction itself, and n >= 2 wraps it in a Repeated block, extending the
// count if it already is one.
func Repeat(n int, in Instruction) (Instruction, error) {
	if n < 0 {
		return nil, fmt.Errorf("repetition count must not be negative, got %d", n)
	}
	switch n {
	case 0:
		return NewEmpty(in.DType()), nil
	case 1:
		return in, nil
	}
	switch in := in.(type) {
	case *Empty:
		return in, nil
	case *Repeated:
		return newRepeated(n*in.reps, in.body), nil
	}
	return newRepeated(n, in), nil
}

// tile lays the instruction out n times as an explicit concatenation,
// deliberately not compacting into a Repeated block.
func tile(in Instruction, n int) (Instruction, error) {
	copies := make([]Instruction, n)
	for i := range copies {
		copies[i] = in
	}
	return Join(copies...)
}

// Slice returns the minimal-shape sub-instruction covering samples
// [start, stop). Negative indices count from the end. Only unit stride
// exists; there is no way to ask for anything else.
func Slice(in Instruction, start, stop int) (Instruction, error) {
	lo, err := normalizeSliceIndex(start, in.Len())
	if err != nil {
		return nil, err
	}
	hi, err := normalizeSliceIndex(stop, in.Len())
	if err != nil {
		return nil, err
	}
	if lo > hi {
		return nil, fmt.Errorf("slice start %d is past stop %d", start, stop)
	}
	return slice(in, lo, hi)
}

// slice assumes 0 <= lo <= hi <= in.Len().
func slice(in Instruction, lo, hi int) (Instruction, error) {
	if lo == hi {
		return NewEmpty(in.DType()), nil
	}
	switch in := in.(type) {
	case *Pattern:
		return &Pattern{samples: in.samples.Slice(lo, hi)}, nil
	case *Concatenated:
		return sliceConcatenated(in, lo, hi)
	case *Repeated:
		return sliceRepeated(in, lo, hi)
	}
	panic(fmt.Sprintf("instructions: unknown instruction type %T", in))
}

func sliceConcatenated(c *Concatenated, lo, hi int) (Instruction, error) {
	first := c.childAt(lo)
	last := c.childAt(hi - 1)
	parts := make([]Instruction, 0, last-first+1)
	for i := first; i <= last; i++ {
		childLo := max(lo, c.bounds[i]) - c.bounds[i]
		childHi := min(hi, c.bounds[i+1]) - c.bounds[i]
		part, err := slice(c.children[i], childLo, childHi)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}
	return Join(parts...)
}

func sliceRepeated(r *Repeated, lo, hi int) (Instruction, error) {
	bodyLen := r.body.Len()
	// First and last repetition boundaries fully inside [lo, hi).
	firstWhole := ceilDiv(lo, bodyLen)
	lastWhole := hi / bodyLen
	if firstWhole > lastWhole {
		// The slice sits inside a single repetition of the body.
		offset := firstWhole * bodyLen
		return slice(r.body, lo-(offset-bodyLen), hi-(offset-bodyLen))
	}
	prevBoundary := (lo / bodyLen) * bodyLen
	prefix, err := slice(r.body, lo-prevBoundary, firstWhole*bodyLen-prevBoundary)
	if err != nil {
		return nil, err
	}
	middle, err := Repeat(lastWhole-firstWhole, r.body)
	if err != nil {
		return nil, err
	}
	suffix, err := slice(r.body, 0, hi-lastWhole*bodyLen)
	if err != nil {
		return nil, err
	}
	out, err := Concat(prefix, middle)
	if err != nil {
		return nil, err
	}
	return Concat(out, suffix)
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// Map applies an element-wise function to an analog instruction, preserving
// its structure. The function must return finite values.
func Map(in Instruction, f func(float64) float64) (Instruction, error) {
	if in.DType().Kind() != KindFloat64 {
		return nil, fmt.Errorf("can only map over float64 instructions, got dtype %s", in.DType())
	}
	switch in := in.(type) {
	case *Empty:
		return in, nil
	case *Pattern:
		mapped := make([]float64, in.samples.Len())
		for i, v := range in.samples.floats {
			mapped[i] = f(v)
		}
		arr, err := Float64Array(mapped)
		if err != nil {
			return nil, err
		}
		return &Pattern{samples: arr}, nil
	case *Concatenated:
		children := make([]Instruction, len(in.children))
		for i, child := range in.children {
			mapped, err := Map(child, f)
			if err != nil {
				return nil, err
			}
			children[i] = mapped
		}
		return newConcatenated(children), nil
	case *Repeated:
		body, err := Map(in.body, f)
		if err != nil {
			return nil, err
		}
		return newRepeated(in.reps, body), nil
	}
	panic(fmt.Sprintf("instructions: unknown instruction type %T", in))
}
