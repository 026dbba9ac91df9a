package timeline

import (
	"fmt"

	"github.com/light-scattering-iogs/caqtus-sub001/pkg/instructions"
	"github.com/light-scattering-iogs/caqtus-sub001/pkg/timing"
	"github.com/light-scattering-iogs/caqtus-sub001/pkg/units"
)

// CompileDigital evaluates a digital lane into a boolean instruction with
// one sample per tick of the given time step (in seconds). Each cell
// contributes a constant run spanning its step range.
func CompileDigital(
	lane DigitalLane,
	stepBounds []float64,
	variables map[string]any,
	timeStep float64,
) (instructions.Instruction, error) {
	if err := checkSteps(lane.Steps(), len(stepBounds)-1); err != nil {
		return nil, err
	}
	parts := make([]instructions.Instruction, 0, len(lane.Cells))
	step := 0
	for i, cell := range lane.Cells {
		length := timing.NumberTicks(stepBounds[step], stepBounds[step+cell.Steps], timeStep)
		step += cell.Steps
		value, err := cell.Value.EvaluateBool(variables)
		if err != nil {
			return nil, fmt.Errorf("cell %d: %w", i, err)
		}
		run, err := instructions.Repeat(length, instructions.BoolPattern(value))
		if err != nil {
			return nil, fmt.Errorf("cell %d: %w", i, err)
		}
		parts = append(parts, run)
	}
	return instructions.Join(parts...)
}

// CompileAnalog evaluates an analog lane into a float instruction in the
// target unit (nil for a bare number lane). Constant cells hold their value
// over the whole cell; ramp cells interpolate linearly from the previous
// cell's value to the next cell's value across the ramp's time range.
func CompileAnalog(
	lane AnalogLane,
	stepBounds []float64,
	variables map[string]any,
	timeStep float64,
	unit *units.Unit,
) (instructions.Instruction, error) {
	if err := checkSteps(lane.Steps(), len(stepBounds)-1); err != nil {
		return nil, err
	}

	// Resolve every constant cell first so ramps can reach for their
	// neighbours' values.
	values := make([]float64, len(lane.Cells))
	for i, cell := range lane.Cells {
		if cell.Ramp {
			continue
		}
		v, err := cell.Value.EvaluateMagnitude(variables, unit)
		if err != nil {
			return nil, fmt.Errorf("cell %d: %w", i, err)
		}
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("cell %d: expression %q evaluated to %v, want a number",
				i, cell.Value, v)
		}
		values[i] = f
	}

	parts := make([]instructions.Instruction, 0, len(lane.Cells))
	step := 0
	for i, cell := range lane.Cells {
		cellStart := stepBounds[step]
		cellStop := stepBounds[step+cell.Steps]
		length := timing.NumberTicks(cellStart, cellStop, timeStep)
		step += cell.Steps
		if length == 0 {
			continue
		}
		if !cell.Ramp {
			pattern, err := instructions.Float64Pattern(values[i])
			if err != nil {
				return nil, fmt.Errorf("cell %d: %w", i, err)
			}
			run, err := instructions.Repeat(length, pattern)
			if err != nil {
				return nil, fmt.Errorf("cell %d: %w", i, err)
			}
			parts = append(parts, run)
			continue
		}
		if i == 0 || i == len(lane.Cells)-1 {
			return nil, fmt.Errorf("cell %d: a ramp needs a value on both sides", i)
		}
		if lane.Cells[i-1].Ramp || lane.Cells[i+1].Ramp {
			return nil, fmt.Errorf("cell %d: adjacent ramps are not supported", i)
		}
		ramp, err := rampSamples(values[i-1], values[i+1], cellStart, cellStop, timeStep)
		if err != nil {
			return nil, fmt.Errorf("cell %d: %w", i, err)
		}
		parts = append(parts, ramp)
	}
	return instructions.Join(parts...)
}

// rampSamples materializes a linear ramp from v0 at start to v1 at stop,
// sampled at the ticks inside [start, stop).
func rampSamples(v0, v1, start, stop, timeStep float64) (instructions.Instruction, error) {
	first := timing.StartTick(start, timeStep)
	last := timing.StopTick(stop, timeStep)
	samples := make([]float64, last-first)
	for k := range samples {
		t := float64(first+k) * timeStep
		samples[k] = v0 + (v1-v0)*(t-start)/(stop-start)
	}
	return instructions.Float64Pattern(samples...)
}

// CompileCameraTrigger derives a camera's trigger line from its exposure
// lane: high while a picture is being taken, low elsewhere. An exposure too
// short to cover a single tick is an error naming the picture.
func CompileCameraTrigger(
	lane CameraLane,
	stepBounds []float64,
	timeStep float64,
) (instructions.Instruction, error) {
	if err := checkSteps(lane.Steps(), len(stepBounds)-1); err != nil {
		return nil, err
	}
	parts := make([]instructions.Instruction, 0, len(lane.Cells))
	step := 0
	for _, cell := range lane.Cells {
		start := stepBounds[step]
		stop := stepBounds[step+cell.Steps]
		length := timing.NumberTicks(start, stop, timeStep)
		step += cell.Steps
		if cell.Picture != "" && length == 0 {
			return nil, fmt.Errorf(
				"no trigger can be generated for picture %q: its exposure (%g ns) is too short for the time step (%g ns)",
				cell.Picture, (stop-start)/timing.Nanosecond, timeStep/timing.Nanosecond)
		}
		run, err := instructions.Repeat(length, instructions.BoolPattern(cell.Picture != ""))
		if err != nil {
			return nil, err
		}
		parts = append(parts, run)
	}
	return instructions.Join(parts...)
}
