package shot

import (
	"fmt"

	"github.com/light-scattering-iogs/caqtus-sub001/pkg/device"
	"github.com/light-scattering-iogs/caqtus-sub001/pkg/instructions"
	"github.com/light-scattering-iogs/caqtus-sub001/pkg/timeline"
	"github.com/light-scattering-iogs/caqtus-sub001/pkg/timing"
)

// evaluateDeviceTrigger builds the waveform a master channel must play to
// drive the named target device. The result covers exactly the shot's ticks
// at the master's time step.
func (cp *Compiler) evaluateDeviceTrigger(
	ctx *Context,
	target string,
	masterTimeStep float64,
) (instructions.Instruction, error) {
	config, ok := ctx.DeviceConfig(target)
	if !ok {
		return nil, fmt.Errorf("unknown device %q", target)
	}
	masterTicks := timing.NumberTicks(0, ctx.ShotDuration(), masterTimeStep)
	switch config := config.(type) {
	case *device.Sequencer:
		switch config.Trigger.(type) {
		case device.ExternalClockOnChange:
			return cp.slaveClock(ctx, target, config, masterTimeStep, masterTicks)
		case device.ExternalTriggerStart:
			// the target free-runs after the edge, but it still needs its
			// own instruction compiled
			if _, err := cp.shotParameters(ctx, target); err != nil {
				return nil, err
			}
			return startPulse(masterTicks)
		case device.SoftwareTrigger:
			return nil, fmt.Errorf("sequencer %q is software triggered and cannot be driven by a channel", target)
		}
		return nil, fmt.Errorf("sequencer %q has unsupported trigger %T", target, config.Trigger)
	case *device.Camera:
		return cp.cameraTrigger(ctx, target, masterTimeStep, masterTicks)
	case *device.Generic:
		return startPulse(masterTicks)
	}
	return nil, fmt.Errorf("device %q of type %T cannot be triggered", target, config)
}

// slaveClock derives the clock a master plays to advance a slave sequencer
// sample by sample. The clock pulses once per slave sample and stays low
// while the slave's output does not change, so the slave only needs memory
// for the samples that differ from their predecessor.
func (cp *Compiler) slaveClock(
	ctx *Context,
	target string,
	slave *device.Sequencer,
	masterTimeStep float64,
	masterTicks int,
) (instructions.Instruction, error) {
	high, low, err := highLowClicks(slave.TimeStep, masterTimeStep)
	if err != nil {
		return nil, fmt.Errorf("clock for sequencer %q: %w", target, err)
	}
	params, err := cp.shotParameters(ctx, target)
	if err != nil {
		return nil, err
	}
	seqParams, ok := params.(SequencerParameters)
	if !ok {
		return nil, fmt.Errorf("device %q did not compile to sequencer parameters", target)
	}
	clock, err := adaptiveClock(seqParams.Instruction, high, low)
	if err != nil {
		return nil, fmt.Errorf("clock for sequencer %q: %w", target, err)
	}
	// The slave's tick count is rounded up independently, so the derived
	// clock can overshoot the master's ticks by less than one slave sample.
	if clock.Len() > masterTicks {
		return instructions.Slice(clock, 0, masterTicks)
	}
	return padLow(clock, 0, masterTicks-clock.Len())
}

// highLowClicks splits the master ticks covering one slave sample into the
// high and low halves of a clock pulse. The slave's time step must be an
// integer multiple, at least double, of the master's; an odd multiple puts
// the extra tick in the high half.
func highLowClicks(slaveTimeStepNs int, masterTimeStep float64) (high, low int, err error) {
	masterNs := int(masterTimeStep/timing.Nanosecond + 0.5)
	if masterNs <= 0 {
		return 0, 0, fmt.Errorf("master time step %g s is too small", masterTimeStep)
	}
	if slaveTimeStepNs < 2*masterNs {
		return 0, 0, fmt.Errorf("slave time step %d ns must be at least twice the master's %d ns",
			slaveTimeStepNs, masterNs)
	}
	if slaveTimeStepNs%masterNs != 0 {
		return 0, 0, fmt.Errorf("slave time step %d ns must be a multiple of the master's %d ns",
			slaveTimeStepNs, masterNs)
	}
	div := slaveTimeStepNs / masterNs
	if div%2 == 0 {
		return div / 2, div / 2, nil
	}
	return div/2 + 1, div / 2, nil
}

// adaptiveClock mirrors the structure of a slave instruction: one pulse per
// explicit sample, a single pulse followed by a low hold for a repeated
// single-sample body, and the concatenation of its children's clocks for a
// concatenation.
func adaptiveClock(slave instructions.Instruction, high, low int) (instructions.Instruction, error) {
	period := high + low
	switch slave := slave.(type) {
	case *instructions.Empty:
		return instructions.NewEmpty(instructions.Bool), nil
	case *instructions.Pattern:
		pulse, err := clockPulse(high, low)
		if err != nil {
			return nil, err
		}
		return instructions.Repeat(slave.Len(), pulse)
	case *instructions.Concatenated:
		clocks := make([]instructions.Instruction, len(slave.Children()))
		for i, child := range slave.Children() {
			clock, err := adaptiveClock(child, high, low)
			if err != nil {
				return nil, err
			}
			clocks[i] = clock
		}
		return instructions.Join(clocks...)
	case *instructions.Repeated:
		if slave.Body().Len() != 1 {
			return nil, fmt.Errorf(
				"cannot derive a clock for a repeated block of %d samples, only single-sample bodies are supported",
				slave.Body().Len())
		}
		pulse, err := clockPulse(high, low)
		if err != nil {
			return nil, err
		}
		hold, err := instructions.Repeat((slave.Repetitions()-1)*period, instructions.BoolPattern(false))
		if err != nil {
			return nil, err
		}
		return instructions.Join(pulse, hold)
	}
	return nil, fmt.Errorf("unsupported instruction type %T", slave)
}

func clockPulse(high, low int) (instructions.Instruction, error) {
	up, err := instructions.Repeat(high, instructions.BoolPattern(true))
	if err != nil {
		return nil, err
	}
	down, err := instructions.Repeat(low, instructions.BoolPattern(false))
	if err != nil {
		return nil, err
	}
	return instructions.Join(up, down)
}

// startPulse is the trigger of a device that free-runs after a single edge:
// high for the first half of the shot, low for the second.
func startPulse(ticks int) (instructions.Instruction, error) {
	high := ticks / 2
	low := ticks - high
	if high == 0 || low == 0 {
		return nil, fmt.Errorf("shot of %d ticks is too short to generate a start trigger", ticks)
	}
	up, err := instructions.Repeat(high, instructions.BoolPattern(true))
	if err != nil {
		return nil, err
	}
	down, err := instructions.Repeat(low, instructions.BoolPattern(false))
	if err != nil {
		return nil, err
	}
	return instructions.Join(up, down)
}

// cameraTrigger is high while the camera's lane exposes a picture. A camera
// without a lane is simply never triggered.
func (cp *Compiler) cameraTrigger(
	ctx *Context,
	target string,
	masterTimeStep float64,
	masterTicks int,
) (instructions.Instruction, error) {
	lane, ok := ctx.GetLane(target)
	if !ok {
		return instructions.Repeat(masterTicks, instructions.BoolPattern(false))
	}
	camLane, ok := lane.(timeline.CameraLane)
	if !ok {
		return nil, fmt.Errorf("lane %q must be a camera lane to trigger camera %q", target, target)
	}
	return timeline.CompileCameraTrigger(camLane, ctx.StepBounds(), masterTimeStep)
}
