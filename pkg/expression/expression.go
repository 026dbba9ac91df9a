// Package expression evaluates the small value expressions that appear in
// shot descriptions: step durations ("10 ms"), channel constants
// ("2 * ramp_voltage"), lane cells and defaults. Expressions are Starlark
// expressions evaluated against the shot's resolved parameters, with unit
// symbols predeclared as quantity values.
package expression

import (
	"fmt"
	"regexp"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/light-scattering-iogs/caqtus-sub001/pkg/units"
)

// Expression is an unevaluated source expression. The zero value is an empty
// expression and is not valid to evaluate.
type Expression struct {
	src string
}

// New wraps an expression source string.
func New(src string) Expression { return Expression{src: src} }

func (e Expression) String() string { return e.src }

// IsZero reports whether the expression has no source.
func (e Expression) IsZero() bool { return e.src == "" }

// implicitProduct matches a number or closing parenthesis directly followed
// by an identifier, as in "10 ns" or "(a + b) V".
var implicitProduct = regexp.MustCompile(`([0-9.)])\s+([A-Za-z_][A-Za-z0-9_]*)`)

// reserved words that may legitimately follow a number.
var starlarkKeywords = map[string]bool{
	"and": true, "or": true, "not": true, "in": true,
	"if": true, "else": true, "for": true,
}

// desugar inserts the multiplication implied by juxtaposition, so that
// "10 ns" reads as "10 * ns".
func desugar(src string) string {
	return implicitProduct.ReplaceAllStringFunc(src, func(m string) string {
		sub := implicitProduct.FindStringSubmatch(m)
		if starlarkKeywords[sub[2]] {
			return m
		}
		return sub[1] + " * " + sub[2]
	})
}

// Evaluate runs the expression against the given variables and returns a
// bool, float64 or units.Quantity.
func (e Expression) Evaluate(variables map[string]any) (any, error) {
	if e.IsZero() {
		return nil, fmt.Errorf("cannot evaluate an empty expression")
	}
	env := make(starlark.StringDict, len(variables)+16)
	for _, u := range units.All() {
		env[u.Symbol] = quantityValue{q: units.Quantity{Magnitude: 1, Unit: u}}
	}
	for name, value := range variables {
		converted, err := toStarlark(value)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", name, err)
		}
		env[name] = converted
	}
	thread := &starlark.Thread{Name: "expression"}
	value, err := starlark.EvalOptions(&syntax.FileOptions{}, thread, "<expression>", desugar(e.src), env)
	if err != nil {
		return nil, fmt.Errorf("evaluating %q: %w", e.src, err)
	}
	return fromStarlark(value)
}

// EvaluateMagnitude evaluates the expression and extracts its magnitude in
// the required unit (nil for a bare bool or number).
func (e Expression) EvaluateMagnitude(variables map[string]any, unit *units.Unit) (any, error) {
	value, err := e.Evaluate(variables)
	if err != nil {
		return nil, err
	}
	return units.MagnitudeIn(value, unit)
}

// EvaluateBool evaluates the expression and requires a boolean result.
func (e Expression) EvaluateBool(variables map[string]any) (bool, error) {
	value, err := e.Evaluate(variables)
	if err != nil {
		return false, err
	}
	b, ok := value.(bool)
	if !ok {
		return false, fmt.Errorf("expression %q evaluated to %v, want a boolean", e.src, value)
	}
	return b, nil
}

// EvaluateSeconds evaluates the expression and requires a time quantity,
// returned in seconds.
func (e Expression) EvaluateSeconds(variables map[string]any) (float64, error) {
	value, err := e.Evaluate(variables)
	if err != nil {
		return 0, err
	}
	q, ok := value.(units.Quantity)
	if !ok || q.Unit.Dimension != units.Time {
		return 0, fmt.Errorf("expression %q evaluated to %v, want a duration", e.src, value)
	}
	second, _ := units.Lookup("s")
	return q.In(second)
}

func toStarlark(value any) (starlark.Value, error) {
	switch v := value.(type) {
	case bool:
		return starlark.Bool(v), nil
	case int:
		return starlark.MakeInt(v), nil
	case int64:
		return starlark.MakeInt64(v), nil
	case float64:
		return starlark.Float(v), nil
	case string:
		return starlark.String(v), nil
	case units.Quantity:
		return quantityValue{q: v}, nil
	}
	return nil, fmt.Errorf("unsupported variable type %T", value)
}

func fromStarlark(value starlark.Value) (any, error) {
	switch v := value.(type) {
	case starlark.Bool:
		return bool(v), nil
	case starlark.Int:
		f, ok := starlark.AsFloat(v)
		if !ok {
			return nil, fmt.Errorf("integer result %v does not fit a float64", v)
		}
		return f, nil
	case starlark.Float:
		return float64(v), nil
	case quantityValue:
		return v.q, nil
	}
	return nil, fmt.Errorf("expression evaluated to unsupported type %s", value.Type())
}
