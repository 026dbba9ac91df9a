package main

import (
	"math"
	"testing"

	"github.com/light-scattering-iogs/caqtus-sub001/pkg/config"
	"github.com/light-scattering-iogs/caqtus-sub001/pkg/instructions"
	"github.com/light-scattering-iogs/caqtus-sub001/pkg/shot"
)

func TestDemoShot(t *testing.T) {
	// 1. Load the shot description
	desc, err := config.LoadShot("testdata/demo_shot.cue")
	if err != nil {
		t.Fatalf("Failed to load shot: %v", err)
	}

	// 2. Compile
	ctx, err := shot.NewContext(desc, nil)
	if err != nil {
		t.Fatalf("NewContext failed: %v", err)
	}
	results, err := shot.NewCompiler().Compile(ctx)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	// 3. Master sequencer: 800 ns at 10 ns per tick
	master, ok := results["master"].(shot.SequencerParameters)
	if !ok {
		t.Fatalf("results[master] = %T", results["master"])
	}
	if master.Instruction.Len() != 80 {
		t.Fatalf("master length = %d, want 80", master.Instruction.Len())
	}

	shutter := boolChannel(t, master.Instruction, "ch 0")
	for i, v := range shutter {
		want := i >= 20 && i < 60
		if v != want {
			t.Errorf("shutter[%d] = %v, want %v", i, v, want)
		}
	}

	// coil ramps from 0 V to 0.5 V over the expose step
	coil := floatChannel(t, master.Instruction, "ch 1")
	checks := map[int]float64{0: 0, 20: 0, 40: 0.25, 59: 0.4875, 60: 0.5, 79: 0.5}
	for i, want := range checks {
		if math.Abs(coil[i]-want) > 1e-12 {
			t.Errorf("coil[%d] = %v, want %v", i, coil[i], want)
		}
	}

	// the slave's output never changes, so its clock pulses exactly once
	clock := boolChannel(t, master.Instruction, "ch 2")
	for i, v := range clock {
		if v != (i == 0) {
			t.Errorf("clock[%d] = %v, want %v", i, v, i == 0)
		}
	}

	// camera trigger is high while the probe picture exposes
	trigger := boolChannel(t, master.Instruction, "ch 3")
	for i, v := range trigger {
		want := i >= 20 && i < 60
		if v != want {
			t.Errorf("camera trigger[%d] = %v, want %v", i, v, want)
		}
	}

	// 4. Slave sequencer: 800 ns at 20 ns per tick, constant 100 mV
	slave, ok := results["slave"].(shot.SequencerParameters)
	if !ok {
		t.Fatalf("results[slave] = %T", results["slave"])
	}
	if slave.Instruction.Len() != 40 {
		t.Fatalf("slave length = %d, want 40", slave.Instruction.Len())
	}
	for i, v := range floatChannel(t, slave.Instruction, "ch 0") {
		if math.Abs(v-100) > 1e-12 {
			t.Errorf("slave[%d] = %v, want 100 mV", i, v)
		}
	}

	// 5. Camera: one 400 ns exposure
	cam, ok := results["cam"].(shot.CameraParameters)
	if !ok {
		t.Fatalf("results[cam] = %T", results["cam"])
	}
	if len(cam.Exposures) != 1 || cam.Exposures[0].Picture != "probe" {
		t.Fatalf("exposures = %v, want one probe picture", cam.Exposures)
	}
	if math.Abs(cam.Exposures[0].Duration-400e-9) > 1e-15 {
		t.Errorf("exposure duration = %g, want 400 ns", cam.Exposures[0].Duration)
	}
}

func boolChannel(t *testing.T, in instructions.Instruction, field string) []bool {
	t.Helper()
	scalar, err := instructions.FieldOf(in, field)
	if err != nil {
		t.Fatalf("FieldOf(%q): %v", field, err)
	}
	flat := instructions.Flatten(scalar)
	values := make([]bool, flat.Len())
	for i := range values {
		values[i] = flat.At(i).(bool)
	}
	return values
}

func floatChannel(t *testing.T, in instructions.Instruction, field string) []float64 {
	t.Helper()
	scalar, err := instructions.FieldOf(in, field)
	if err != nil {
		t.Fatalf("FieldOf(%q): %v", field, err)
	}
	flat := instructions.Flatten(scalar)
	values := make([]float64, flat.Len())
	for i := range values {
		values[i] = flat.At(i).(float64)
	}
	return values
}
