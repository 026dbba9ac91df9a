package instructions

import "fmt"

// NamedInstruction pairs a channel name with its compiled instruction.
type NamedInstruction struct {
	Name        string
	Instruction Instruction
}

// WithName tags a scalar instruction as the single field of a structured
// one, keeping its shape.
func WithName(in Instruction, name string) (Instruction, error) {
	if in.DType().Kind() == KindStruct {
		return nil, fmt.Errorf("instruction already has a structured dtype %s", in.DType())
	}
	dtype, err := StructType(Field{Name: name, Type: in.DType()})
	if err != nil {
		return nil, err
	}
	return wrapNamed(in, dtype)
}

func wrapNamed(in Instruction, dtype DType) (Instruction, error) {
	switch in := in.(type) {
	case *Empty:
		return NewEmpty(dtype), nil
	case *Pattern:
		samples, err := StructArray(dtype, []Array{in.samples})
		if err != nil {
			return nil, err
		}
		return &Pattern{samples: samples}, nil
	case *Concatenated:
		children := make([]Instruction, len(in.children))
		for i, child := range in.children {
			wrapped, err := wrapNamed(child, dtype)
			if err != nil {
				return nil, err
			}
			children[i] = wrapped
		}
		return newConcatenated(children), nil
	case *Repeated:
		body, err := wrapNamed(in.body, dtype)
		if err != nil {
			return nil, err
		}
		return newRepeated(in.reps, body), nil
	}
	panic(fmt.Sprintf("instructions: unknown instruction type %T", in))
}

// Merge combines one scalar instruction per channel into a single structured
// instruction with one field per channel. All channels must have the same
// total length, and channel names must be unique.
//
// For every channel c, FieldOf(merged, c) flattens to the same samples as the
// channel itself. Merge is commutative up to field order and associative
// under any grouping.
func Merge(channels ...NamedInstruction) (Instruction, error) {
	if len(channels) == 0 {
		return nil, fmt.Errorf("need at least one channel to merge")
	}
	seen := make(map[string]struct{}, len(channels))
	named := make([]Instruction, len(channels))
	for i, ch := range channels {
		if _, ok := seen[ch.Name]; ok {
			return nil, fmt.Errorf("duplicate channel name %q", ch.Name)
		}
		seen[ch.Name] = struct{}{}
		if ch.Instruction.Len() != channels[0].Instruction.Len() {
			return nil, fmt.Errorf("channel %q has length %d, want %d",
				ch.Name, ch.Instruction.Len(), channels[0].Instruction.Len())
		}
		wrapped, err := WithName(ch.Instruction, ch.Name)
		if err != nil {
			return nil, fmt.Errorf("channel %q: %w", ch.Name, err)
		}
		named[i] = wrapped
	}
	return reduce(named)
}

// Stack merges structured instructions of equal length into one whose dtype
// is the union of the input fields.
func Stack(ins ...Instruction) (Instruction, error) {
	if len(ins) == 0 {
		return nil, fmt.Errorf("need at least one instruction to stack")
	}
	for _, in := range ins {
		if in.DType().Kind() != KindStruct {
			return nil, fmt.Errorf("can only stack structured instructions, got dtype %s", in.DType())
		}
		if in.Len() != ins[0].Len() {
			return nil, fmt.Errorf("instructions have unequal lengths %d and %d", ins[0].Len(), in.Len())
		}
	}
	return reduce(ins)
}

// reduce merges pairwise as a balanced binary tree rather than a linear
// accumulator, which avoids a quadratic blow-up when the channel shapes are
// dissimilar.
func reduce(ins []Instruction) (Instruction, error) {
	switch len(ins) {
	case 1:
		return ins[0], nil
	case 2:
		return merge2(ins[0], ins[1])
	}
	half := len(ins) / 2
	left, err := reduce(ins[:half])
	if err != nil {
		return nil, err
	}
	right, err := reduce(ins[half:])
	if err != nil {
		return nil, err
	}
	return merge2(left, right)
}

func merge2(a, b Instruction) (Instruction, error) {
	if a.Len() != b.Len() {
		return nil, fmt.Errorf("cannot merge instructions of lengths %d and %d", a.Len(), b.Len())
	}
	ac, aCon := a.(*Concatenated)
	bc, bCon := b.(*Concatenated)
	ar, aRep := a.(*Repeated)
	br, bRep := b.(*Repeated)
	switch {
	case aRep && bRep:
		return mergeRepeated(ar, br)
	case aCon && bCon:
		return mergeAtBounds(unionBounds(ac.bounds, bc.bounds), a, b)
	case aCon:
		return mergeAtBounds(ac.bounds, a, b)
	case bCon:
		return mergeAtBounds(bc.bounds, a, b)
	}
	// Leaf against leaf or repeated: densify both sides and zip the fields.
	return mergePatterns(Flatten(a), Flatten(b))
}

// mergeAtBounds slices both sides into the given common refinement and
// merges each aligned pair.
func mergeAtBounds(bounds []int, a, b Instruction) (Instruction, error) {
	parts := make([]Instruction, 0, len(bounds)-1)
	for i := 0; i+1 < len(bounds); i++ {
		start, stop := bounds[i], bounds[i+1]
		if start == stop {
			continue
		}
		aPart, err := slice(a, start, stop)
		if err != nil {
			return nil, err
		}
		bPart, err := slice(b, start, stop)
		if err != nil {
			return nil, err
		}
		merged, err := merge2(aPart, bPart)
		if err != nil {
			return nil, err
		}
		parts = append(parts, merged)
	}
	return Join(parts...)
}

// mergeRepeated aligns two repetition blocks on the least common multiple of
// their body lengths, merges the one aligned block, and re-wraps it.
func mergeRepeated(a, b *Repeated) (Instruction, error) {
	blockLen := lcm(a.body.Len(), b.body.Len())
	var blockA, blockB Instruction
	var err error
	if blockLen == a.Len() {
		// The common block spans the whole instruction; lay both sides out
		// as explicit concatenations so the recursion makes progress.
		if blockA, err = tile(a.body, a.reps); err != nil {
			return nil, err
		}
		if blockB, err = tile(b.body, b.reps); err != nil {
			return nil, err
		}
	} else {
		if blockA, err = Repeat(blockLen/a.body.Len(), a.body); err != nil {
			return nil, err
		}
		if blockB, err = Repeat(blockLen/b.body.Len(), b.body); err != nil {
			return nil, err
		}
	}
	block, err := merge2(blockA, blockB)
	if err != nil {
		return nil, err
	}
	return Repeat(a.Len()/block.Len(), block)
}

// mergePatterns zips two equally long structured buffers into one whose
// fields are the union of both.
func mergePatterns(a, b Array) (Instruction, error) {
	dtype, err := mergeDTypes(a.DType(), b.DType())
	if err != nil {
		return nil, err
	}
	samples, err := StructArray(dtype, append(append([]Array(nil), a.subs...), b.subs...))
	if err != nil {
		return nil, err
	}
	return NewPattern(samples)
}

// unionBounds merges two sorted offset tables, dropping duplicates.
func unionBounds(a, b []int) []int {
	out := make([]int, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		var next int
		switch {
		case i == len(a):
			next = b[j]
			j++
		case j == len(b):
			next = a[i]
			i++
		case a[i] < b[j]:
			next = a[i]
			i++
		case b[j] < a[i]:
			next = b[j]
			j++
		default:
			next = a[i]
			i++
			j++
		}
		if len(out) == 0 || out[len(out)-1] != next {
			out = append(out, next)
		}
	}
	return out
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm(a, b int) int {
	return a / gcd(a, b) * b
}
