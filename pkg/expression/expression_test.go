package expression

import (
	"testing"

	"github.com/light-scattering-iogs/caqtus-sub001/pkg/units"
)

func TestDesugar(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"10 ns", "10 * ns"},
		{"2.5 V + 100 mV", "2.5 * V + 100 * mV"},
		{"(a + b) V", "(a + b) * V"},
		{"2 * x", "2 * x"},
		{"1 if flag else 2", "1 if flag else 2"},
		{"x and y", "x and y"},
	}
	for _, tt := range tests {
		if got := desugar(tt.in); got != tt.want {
			t.Fatalf("desugar(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEvaluateNumbers(t *testing.T) {
	got, err := New("2 * ramp + 1").Evaluate(map[string]any{"ramp": 3.5})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if got != 8.0 {
		t.Fatalf("got %v, want 8", got)
	}
}

func TestEvaluateBool(t *testing.T) {
	got, err := New("enabled and not blocked").EvaluateBool(map[string]any{
		"enabled": true,
		"blocked": false,
	})
	if err != nil {
		t.Fatalf("EvaluateBool: %v", err)
	}
	if !got {
		t.Fatal("got false, want true")
	}
	if _, err := New("1 + 1").EvaluateBool(nil); err == nil {
		t.Fatal("expected an error for a non-boolean result")
	}
}

func TestEvaluateQuantity(t *testing.T) {
	value, err := New("10 ns + 0.5 us").Evaluate(nil)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	q, ok := value.(units.Quantity)
	if !ok {
		t.Fatalf("got %T, want a quantity", value)
	}
	ns, _ := units.Lookup("ns")
	mag, err := q.In(ns)
	if err != nil {
		t.Fatalf("In(ns): %v", err)
	}
	if mag != 510 {
		t.Fatalf("got %v ns, want 510", mag)
	}
}

func TestEvaluateQuantityWithVariables(t *testing.T) {
	ms, _ := units.Lookup("ms")
	seconds, err := New("2 * hold_time").EvaluateSeconds(map[string]any{
		"hold_time": units.Quantity{Magnitude: 5, Unit: ms},
	})
	if err != nil {
		t.Fatalf("EvaluateSeconds: %v", err)
	}
	if seconds != 0.01 {
		t.Fatalf("got %v s, want 0.01", seconds)
	}
}

func TestEvaluateSecondsRejectsBareNumbers(t *testing.T) {
	if _, err := New("42").EvaluateSeconds(nil); err == nil {
		t.Fatal("expected an error for a unitless duration")
	}
}

func TestEvaluateMagnitude(t *testing.T) {
	volt, _ := units.Lookup("V")
	got, err := New("1.5 V + 500 mV").EvaluateMagnitude(nil, &volt)
	if err != nil {
		t.Fatalf("EvaluateMagnitude: %v", err)
	}
	if got != 2.0 {
		t.Fatalf("got %v, want 2", got)
	}
	if _, err := New("1.5 V").EvaluateMagnitude(nil, nil); err == nil {
		t.Fatal("expected an error for a quantity used without a unit")
	}
}

func TestQuantityRatio(t *testing.T) {
	got, err := New("1 us / (10 ns)").Evaluate(nil)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if got != 100.0 {
		t.Fatalf("got %v, want 100", got)
	}
}

func TestEmptyExpression(t *testing.T) {
	if _, err := (Expression{}).Evaluate(nil); err == nil {
		t.Fatal("expected an error for the zero expression")
	}
}
