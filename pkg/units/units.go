// Package units provides the small set of physical units the shot compiler
// needs: time, voltage, frequency and dimensionless quantities. Conversion is
// only allowed within one dimension; a mismatch is always an error, never a
// silent cast.
package units

import "fmt"

// Dimension identifies what kind of physical quantity a unit measures.
type Dimension uint8

const (
	Dimensionless Dimension = iota
	Time
	Voltage
	Frequency
	Current
)

func (d Dimension) String() string {
	switch d {
	case Dimensionless:
		return "dimensionless"
	case Time:
		return "time"
	case Voltage:
		return "voltage"
	case Frequency:
		return "frequency"
	case Current:
		return "current"
	}
	return fmt.Sprintf("Dimension(%d)", uint8(d))
}

// Unit is a named scale within one dimension. Scale converts a magnitude in
// this unit to the dimension's base unit (s, V, Hz, A).
type Unit struct {
	Symbol    string
	Dimension Dimension
	Scale     float64
}

var table = []Unit{
	{"ns", Time, 1e-9},
	{"us", Time, 1e-6},
	{"ms", Time, 1e-3},
	{"s", Time, 1},
	{"uV", Voltage, 1e-6},
	{"mV", Voltage, 1e-3},
	{"V", Voltage, 1},
	{"Hz", Frequency, 1},
	{"kHz", Frequency, 1e3},
	{"MHz", Frequency, 1e6},
	{"GHz", Frequency, 1e9},
	{"uA", Current, 1e-6},
	{"mA", Current, 1e-3},
	{"A", Current, 1},
	{"percent", Dimensionless, 1e-2},
}

// Lookup resolves a unit symbol.
func Lookup(symbol string) (Unit, bool) {
	for _, u := range table {
		if u.Symbol == symbol {
			return u, true
		}
	}
	return Unit{}, false
}

// Parse resolves a unit symbol, failing on unknown symbols.
func Parse(symbol string) (Unit, error) {
	u, ok := Lookup(symbol)
	if !ok {
		return Unit{}, fmt.Errorf("unknown unit %q", symbol)
	}
	return u, nil
}

// All returns the symbols of every known unit.
func All() []Unit {
	return append([]Unit(nil), table...)
}

// Quantity is a magnitude with a unit.
type Quantity struct {
	Magnitude float64
	Unit      Unit
}

func (q Quantity) String() string {
	if q.Unit.Symbol == "" {
		return fmt.Sprintf("%g", q.Magnitude)
	}
	return fmt.Sprintf("%g %s", q.Magnitude, q.Unit.Symbol)
}

// In converts the quantity's magnitude to the target unit.
func (q Quantity) In(target Unit) (float64, error) {
	if q.Unit.Dimension != target.Dimension {
		return 0, &MismatchError{Want: target, Got: q.Unit}
	}
	return q.Magnitude * q.Unit.Scale / target.Scale, nil
}

// MismatchError reports a quantity used where another dimension was
// required.
type MismatchError struct {
	Want Unit
	Got  Unit
}

func (e *MismatchError) Error() string {
	want := e.Want.Symbol
	if want == "" {
		want = e.Want.Dimension.String()
	}
	got := e.Got.Symbol
	if got == "" {
		got = e.Got.Dimension.String()
	}
	return fmt.Sprintf("unit mismatch: want %s, got %s", want, got)
}

// ConversionFactor returns the multiplier turning magnitudes in from-units
// into magnitudes in to-units.
func ConversionFactor(from, to Unit) (float64, error) {
	if from.Dimension != to.Dimension {
		return 0, &MismatchError{Want: to, Got: from}
	}
	return from.Scale / to.Scale, nil
}

// MagnitudeIn extracts the magnitude of an evaluated value in the required
// unit. A nil unit means the value must be a bare bool or number; a non-nil
// unit means the value must be a quantity of the matching dimension (or a
// bare number if the unit is dimensionless).
func MagnitudeIn(value any, unit *Unit) (any, error) {
	switch v := value.(type) {
	case bool:
		if unit != nil {
			return nil, fmt.Errorf("boolean value cannot be expressed in %s", unit.Symbol)
		}
		return v, nil
	case float64:
		if unit == nil || unit.Dimension == Dimensionless {
			if unit != nil {
				return v / unit.Scale, nil
			}
			return v, nil
		}
		return nil, fmt.Errorf("bare number cannot be expressed in %s", unit.Symbol)
	case int:
		return MagnitudeIn(float64(v), unit)
	case Quantity:
		if unit == nil {
			if v.Unit.Dimension == Dimensionless {
				return v.Magnitude * v.Unit.Scale, nil
			}
			return nil, fmt.Errorf("quantity %s used where a bare value is required", v)
		}
		return v.In(*unit)
	}
	return nil, fmt.Errorf("cannot take the magnitude of %T value %v", value, value)
}
