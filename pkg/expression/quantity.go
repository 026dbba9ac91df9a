package expression

import (
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/light-scattering-iogs/caqtus-sub001/pkg/units"
)

// quantityValue adapts units.Quantity to a Starlark value so unit symbols
// can take part in arithmetic inside expressions.
type quantityValue struct {
	q units.Quantity
}

var _ starlark.HasBinary = quantityValue{}

func (v quantityValue) String() string        { return v.q.String() }
func (v quantityValue) Type() string          { return "quantity" }
func (v quantityValue) Freeze()               {}
func (v quantityValue) Truth() starlark.Bool  { return v.q.Magnitude != 0 }
func (v quantityValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: quantity") }

// Binary implements +, -, * and / for quantities. Compound dimensions are
// not modeled; multiplying two dimensioned quantities is an error.
func (v quantityValue) Binary(op syntax.Token, y starlark.Value, side starlark.Side) (starlark.Value, error) {
	other, isQuantity := asQuantity(y)
	switch op {
	case syntax.STAR:
		if isQuantity {
			return mulQuantities(v.q, other)
		}
		if f, ok := starlark.AsFloat(y); ok {
			return quantityValue{q: units.Quantity{Magnitude: v.q.Magnitude * f, Unit: v.q.Unit}}, nil
		}
	case syntax.SLASH:
		if isQuantity {
			// A ratio of like quantities is a bare number.
			ratio, err := other.In(v.q.Unit)
			if err != nil {
				return nil, err
			}
			if side == starlark.Left {
				return starlark.Float(v.q.Magnitude / ratio), nil
			}
			return starlark.Float(ratio / v.q.Magnitude), nil
		}
		if f, ok := starlark.AsFloat(y); ok {
			if side == starlark.Left {
				return quantityValue{q: units.Quantity{Magnitude: v.q.Magnitude / f, Unit: v.q.Unit}}, nil
			}
			return nil, fmt.Errorf("cannot divide %v by quantity %s", y, v.q)
		}
	case syntax.PLUS, syntax.MINUS:
		if !isQuantity {
			return nil, fmt.Errorf("cannot apply %s to quantity %s and %s", op, v.q, y.Type())
		}
		converted, err := other.In(v.q.Unit)
		if err != nil {
			return nil, err
		}
		a, b := v.q.Magnitude, converted
		if side == starlark.Right {
			a, b = b, a
		}
		if op == syntax.MINUS {
			return quantityValue{q: units.Quantity{Magnitude: a - b, Unit: v.q.Unit}}, nil
		}
		return quantityValue{q: units.Quantity{Magnitude: a + b, Unit: v.q.Unit}}, nil
	}
	return nil, nil // defer to starlark's default error
}

func asQuantity(v starlark.Value) (units.Quantity, bool) {
	q, ok := v.(quantityValue)
	if !ok {
		return units.Quantity{}, false
	}
	return q.q, true
}

func mulQuantities(a, b units.Quantity) (starlark.Value, error) {
	switch {
	case a.Unit.Dimension == units.Dimensionless:
		return quantityValue{q: units.Quantity{
			Magnitude: a.Magnitude * a.Unit.Scale * b.Magnitude,
			Unit:      b.Unit,
		}}, nil
	case b.Unit.Dimension == units.Dimensionless:
		return quantityValue{q: units.Quantity{
			Magnitude: a.Magnitude * b.Magnitude * b.Unit.Scale,
			Unit:      a.Unit,
		}}, nil
	}
	return nil, fmt.Errorf("cannot multiply %s by %s: compound units are not supported", a, b)
}
