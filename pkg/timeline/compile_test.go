package timeline

import (
	"reflect"
	"strings"
	"testing"

	"github.com/light-scattering-iogs/caqtus-sub001/pkg/expression"
	"github.com/light-scattering-iogs/caqtus-sub001/pkg/instructions"
	"github.com/light-scattering-iogs/caqtus-sub001/pkg/timing"
	"github.com/light-scattering-iogs/caqtus-sub001/pkg/units"
)

func bools(t *testing.T, in instructions.Instruction) []bool {
	t.Helper()
	arr := instructions.Flatten(in)
	out := make([]bool, arr.Len())
	for i := range out {
		out[i] = arr.At(i).(bool)
	}
	return out
}

func floats(t *testing.T, in instructions.Instruction) []float64 {
	t.Helper()
	arr := instructions.Flatten(in)
	out := make([]float64, arr.Len())
	for i := range out {
		out[i] = arr.At(i).(float64)
	}
	return out
}

func TestCompileDigital(t *testing.T) {
	lane := DigitalLane{Cells: []DigitalCell{
		{Steps: 1, Value: expression.New("True")},
		{Steps: 2, Value: expression.New("shutter_open")},
		{Steps: 1, Value: expression.New("False")},
	}}
	bounds := timing.StepBounds([]float64{
		20 * timing.Nanosecond,
		30 * timing.Nanosecond,
		10 * timing.Nanosecond,
		20 * timing.Nanosecond,
	})
	out, err := CompileDigital(lane, bounds, map[string]any{"shutter_open": true}, 10*timing.Nanosecond)
	if err != nil {
		t.Fatalf("CompileDigital: %v", err)
	}
	want := []bool{true, true, true, true, true, true, false, false}
	if got := bools(t, out); !reflect.DeepEqual(got, want) {
		t.Fatalf("compiled to %v, want %v", got, want)
	}
}

func TestCompileDigitalStepMismatch(t *testing.T) {
	lane := DigitalLane{Cells: []DigitalCell{{Steps: 1, Value: expression.New("True")}}}
	bounds := timing.StepBounds([]float64{1e-6, 1e-6})
	if _, err := CompileDigital(lane, bounds, nil, 10*timing.Nanosecond); err == nil {
		t.Fatal("expected an error when the lane does not cover every step")
	}
}

func TestCompileAnalogConstants(t *testing.T) {
	volt, _ := units.Lookup("V")
	lane := AnalogLane{Cells: []AnalogCell{
		{Steps: 1, Value: expression.New("500 mV")},
		{Steps: 1, Value: expression.New("bias")},
	}}
	bounds := timing.StepBounds([]float64{20 * timing.Nanosecond, 30 * timing.Nanosecond})
	out, err := CompileAnalog(lane, bounds, map[string]any{
		"bias": units.Quantity{Magnitude: 2, Unit: volt},
	}, 10*timing.Nanosecond, &volt)
	if err != nil {
		t.Fatalf("CompileAnalog: %v", err)
	}
	want := []float64{0.5, 0.5, 2, 2, 2}
	if got := floats(t, out); !reflect.DeepEqual(got, want) {
		t.Fatalf("compiled to %v, want %v", got, want)
	}
}

func TestCompileAnalogRamp(t *testing.T) {
	lane := AnalogLane{Cells: []AnalogCell{
		{Steps: 1, Value: expression.New("0")},
		{Steps: 1, Ramp: true},
		{Steps: 1, Value: expression.New("4")},
	}}
	bounds := timing.StepBounds([]float64{
		20 * timing.Nanosecond,
		40 * timing.Nanosecond,
		20 * timing.Nanosecond,
	})
	out, err := CompileAnalog(lane, bounds, nil, 10*timing.Nanosecond, nil)
	if err != nil {
		t.Fatalf("CompileAnalog: %v", err)
	}
	// Ramp covers [20 ns, 60 ns): ticks at 20, 30, 40, 50 ns rise linearly
	// from 0 toward 4 (reached at 60 ns).
	want := []float64{0, 0, 0, 1, 2, 3, 4, 4}
	if got := floats(t, out); !reflect.DeepEqual(got, want) {
		t.Fatalf("compiled to %v, want %v", got, want)
	}
}

func TestCompileAnalogRampAtEdge(t *testing.T) {
	lane := AnalogLane{Cells: []AnalogCell{
		{Steps: 1, Ramp: true},
		{Steps: 1, Value: expression.New("1")},
	}}
	bounds := timing.StepBounds([]float64{1e-6, 1e-6})
	if _, err := CompileAnalog(lane, bounds, nil, 10*timing.Nanosecond, nil); err == nil {
		t.Fatal("expected an error for a ramp with no left neighbour")
	}
}

func TestCompileCameraTrigger(t *testing.T) {
	lane := CameraLane{Cells: []CameraCell{
		{Steps: 1},
		{Steps: 2, Picture: "mot"},
		{Steps: 1},
	}}
	bounds := timing.StepBounds([]float64{
		20 * timing.Nanosecond,
		10 * timing.Nanosecond,
		20 * timing.Nanosecond,
		10 * timing.Nanosecond,
	})
	out, err := CompileCameraTrigger(lane, bounds, 10*timing.Nanosecond)
	if err != nil {
		t.Fatalf("CompileCameraTrigger: %v", err)
	}
	want := []bool{false, false, true, true, true, false}
	if got := bools(t, out); !reflect.DeepEqual(got, want) {
		t.Fatalf("compiled to %v, want %v", got, want)
	}
}

func TestCompileCameraTriggerZeroExposure(t *testing.T) {
	lane := CameraLane{Cells: []CameraCell{
		{Steps: 1, Picture: "too_fast"},
		{Steps: 1},
	}}
	bounds := timing.StepBounds([]float64{1 * timing.Nanosecond, 1e-6})
	_, err := CompileCameraTrigger(lane, bounds, 10*timing.Nanosecond)
	if err == nil {
		t.Fatal("expected an error for a zero-length exposure")
	}
	if !strings.Contains(err.Error(), "too_fast") {
		t.Fatalf("error %q does not name the offending picture", err)
	}
}
