// Package timeline models time lanes: declarative, per-step descriptions of
// one logical signal across a shot, and the compilers that turn them into
// sequencer instructions quantized to a device's time step.
package timeline

import (
	"fmt"

	"github.com/light-scattering-iogs/caqtus-sub001/pkg/expression"
)

// Lane is a declarative description of one signal across the shot's steps.
// The set of lane types is closed: DigitalLane, AnalogLane and CameraLane.
type Lane interface {
	// Steps returns the number of shot steps the lane covers.
	Steps() int

	isLane()
}

// DigitalCell holds one boolean value over a run of consecutive steps.
type DigitalCell struct {
	Steps int
	Value expression.Expression // must evaluate to a boolean
}

// DigitalLane is a boolean signal, cell by cell.
type DigitalLane struct {
	Cells []DigitalCell
}

func (l DigitalLane) Steps() int {
	total := 0
	for _, c := range l.Cells {
		total += c.Steps
	}
	return total
}

func (l DigitalLane) isLane() {}

// AnalogCell holds either a constant expression over a run of steps, or a
// linear ramp from the previous cell's value to the next cell's value.
type AnalogCell struct {
	Steps int
	Value expression.Expression // unused when Ramp is set
	Ramp  bool
}

// AnalogLane is a floating-point signal, cell by cell.
type AnalogLane struct {
	Cells []AnalogCell
}

func (l AnalogLane) Steps() int {
	total := 0
	for _, c := range l.Cells {
		total += c.Steps
	}
	return total
}

func (l AnalogLane) isLane() {}

// CameraCell either takes a named picture over a run of steps or leaves the
// camera idle.
type CameraCell struct {
	Steps   int
	Picture string // empty when the camera is idle
}

// CameraLane describes when a camera exposes during the shot.
type CameraLane struct {
	Cells []CameraCell
}

func (l CameraLane) Steps() int {
	total := 0
	for _, c := range l.Cells {
		total += c.Steps
	}
	return total
}

func (l CameraLane) isLane() {}

// checkSteps verifies that the lane cells tile the shot's steps exactly.
func checkSteps(laneSteps, shotSteps int) error {
	if laneSteps != shotSteps {
		return fmt.Errorf("lane covers %d steps, shot has %d", laneSteps, shotSteps)
	}
	return nil
}
