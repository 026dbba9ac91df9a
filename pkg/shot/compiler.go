package shot

import (
	"fmt"
	"math"
	"sort"

	"github.com/light-scattering-iogs/caqtus-sub001/pkg/device"
	"github.com/light-scattering-iogs/caqtus-sub001/pkg/expression"
	"github.com/light-scattering-iogs/caqtus-sub001/pkg/instructions"
	"github.com/light-scattering-iogs/caqtus-sub001/pkg/timeline"
	"github.com/light-scattering-iogs/caqtus-sub001/pkg/timing"
	"github.com/light-scattering-iogs/caqtus-sub001/pkg/units"
)

// CompileError annotates a failure with the device, channel and output node
// it occurred in.
type CompileError struct {
	Device string
	// Channel is the index of the failing channel, or -1 when the failure
	// is not tied to one channel.
	Channel int
	Node    string
	Err     error
}

func (e *CompileError) Error() string {
	if e.Channel < 0 {
		return fmt.Sprintf("device %q: %v", e.Device, e.Err)
	}
	return fmt.Sprintf("device %q, channel %d (%s): %v", e.Device, e.Channel, e.Node, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// Compiler turns a shot context into per-device parameters. Compilation
// starts from the unique software-triggered root sequencer and follows the
// device trigger channels outward.
type Compiler struct{}

// NewCompiler returns a ready compiler.
func NewCompiler() *Compiler { return &Compiler{} }

// Compile computes the shot parameters of every device in the context. It
// fails if a sequencer is not reachable from the root through trigger
// channels, or if a lane is consumed by no device.
func (cp *Compiler) Compile(ctx *Context) (map[string]DeviceParameters, error) {
	root, err := device.FindRootSequencer(ctx.devices)
	if err != nil {
		return nil, err
	}
	if _, err := cp.shotParameters(ctx, root); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(ctx.devices))
	for name := range ctx.devices {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, compiled := ctx.memo[name]; compiled {
			continue
		}
		if _, ok := ctx.devices[name].(*device.Sequencer); ok {
			return nil, fmt.Errorf("sequencer %q is not triggered by any channel of another sequencer", name)
		}
		if _, err := cp.shotParameters(ctx, name); err != nil {
			return nil, err
		}
	}

	if unused := ctx.UnusedLanes(); len(unused) > 0 {
		return nil, fmt.Errorf("lanes %v are not played by any device", unused)
	}

	results := make(map[string]DeviceParameters, len(names))
	for _, name := range names {
		results[name] = ctx.memo[name].params
	}
	return results, nil
}

// shotParameters memoizes per-device compilation so a device referenced by
// several trigger channels is compiled once. The placeholder entry turns a
// trigger cycle into an error instead of an infinite recursion.
func (cp *Compiler) shotParameters(ctx *Context, name string) (DeviceParameters, error) {
	if entry, ok := ctx.memo[name]; ok {
		return entry.params, entry.err
	}
	ctx.memo[name] = memoEntry{err: fmt.Errorf("circular trigger dependency involving device %q", name)}
	params, err := cp.compileDevice(ctx, name)
	ctx.memo[name] = memoEntry{params: params, err: err}
	return params, err
}

func (cp *Compiler) compileDevice(ctx *Context, name string) (DeviceParameters, error) {
	config, ok := ctx.DeviceConfig(name)
	if !ok {
		return nil, fmt.Errorf("unknown device %q", name)
	}
	ctx.logger.Debug("compiling device", "device", name)
	switch config := config.(type) {
	case *device.Sequencer:
		return cp.compileSequencer(ctx, name, config)
	case *device.Camera:
		return cp.compileCamera(ctx, name)
	case *device.Generic:
		return GenericParameters{}, nil
	}
	return nil, fmt.Errorf("device %q has unsupported configuration %T", name, config)
}

func (cp *Compiler) compileSequencer(ctx *Context, name string, seq *device.Sequencer) (DeviceParameters, error) {
	if seq.TimeStep <= 0 {
		return nil, &CompileError{Device: name, Channel: -1,
			Err: fmt.Errorf("time step must be positive, got %d ns", seq.TimeStep)}
	}
	if len(seq.Channels) == 0 {
		return nil, &CompileError{Device: name, Channel: -1,
			Err: fmt.Errorf("sequencer has no channels")}
	}
	timeStep := float64(seq.TimeStep) * timing.Nanosecond

	// All channels share the worst-case advance and delay budgets so their
	// compiled lengths stay equal.
	maxAdvance, maxDelay := 0, 0
	for i, ch := range seq.Channels {
		advance, delay, err := cp.maxAdvanceDelay(ctx, ch.Output(), timeStep)
		if err != nil {
			return nil, &CompileError{Device: name, Channel: i, Node: device.OutputKind(ch.Output()), Err: err}
		}
		maxAdvance = max(maxAdvance, advance)
		maxDelay = max(maxDelay, delay)
	}

	named := make([]instructions.NamedInstruction, len(seq.Channels))
	for i, ch := range seq.Channels {
		out := ch.Output()
		var unit *units.Unit
		var target instructions.DType
		switch ch := ch.(type) {
		case device.DigitalChannel:
			target = instructions.Bool
		case device.AnalogChannel:
			u, err := units.Parse(ch.OutputUnit)
			if err != nil {
				return nil, &CompileError{Device: name, Channel: i, Node: device.OutputKind(out), Err: err}
			}
			unit = &u
			target = instructions.Float64
		default:
			return nil, &CompileError{Device: name, Channel: i, Node: device.OutputKind(out),
				Err: fmt.Errorf("unsupported channel type %T", ch)}
		}
		instr, err := cp.evaluateOutput(ctx, out, timeStep, unit, maxAdvance, maxDelay)
		if err != nil {
			return nil, &CompileError{Device: name, Channel: i, Node: device.OutputKind(out), Err: err}
		}
		instr, err = instructions.AsType(instr, target)
		if err != nil {
			return nil, &CompileError{Device: name, Channel: i, Node: device.OutputKind(out), Err: err}
		}
		named[i] = instructions.NamedInstruction{Name: fmt.Sprintf("ch %d", i), Instruction: instr}
	}

	merged, err := instructions.Merge(named...)
	if err != nil {
		return nil, &CompileError{Device: name, Channel: -1, Err: err}
	}
	ctx.logger.Debug("compiled sequencer",
		"device", name, "samples", merged.Len(), "depth", merged.Depth())
	return SequencerParameters{TimeStep: seq.TimeStep, Instruction: merged}, nil
}

// compileCamera collects the pictures the camera lane carrying the device's
// name declares. A camera without a lane simply takes no picture.
func (cp *Compiler) compileCamera(ctx *Context, name string) (DeviceParameters, error) {
	lane, ok := ctx.GetLane(name)
	if !ok {
		return CameraParameters{}, nil
	}
	camLane, ok := lane.(timeline.CameraLane)
	if !ok {
		return nil, fmt.Errorf("lane %q must be a camera lane to drive camera %q", name, name)
	}
	bounds := ctx.StepBounds()
	var exposures []Exposure
	step := 0
	for _, cell := range camLane.Cells {
		if cell.Picture != "" {
			duration := bounds[step+cell.Steps] - bounds[step]
			exposures = append(exposures, Exposure{Picture: cell.Picture, Duration: duration})
		}
		step += cell.Steps
	}
	return CameraParameters{Exposures: exposures}, nil
}

// maxAdvanceDelay computes the worst-case number of ticks an output tree
// shifts its signal earlier (advance) and later (delay).
func (cp *Compiler) maxAdvanceDelay(ctx *Context, out device.ChannelOutput, timeStep float64) (int, int, error) {
	switch out := out.(type) {
	case device.Constant, device.LaneValues, device.DeviceTrigger:
		return 0, 0, nil
	case device.CalibratedAnalogMapping:
		return cp.maxAdvanceDelay(ctx, out.Input, timeStep)
	case device.Advance:
		ticks, err := cp.shiftTicks(ctx, out.Duration, timeStep)
		if err != nil {
			return 0, 0, err
		}
		advance, delay, err := cp.maxAdvanceDelay(ctx, out.Input, timeStep)
		if err != nil {
			return 0, 0, err
		}
		return advance + ticks, max(delay-ticks, 0), nil
	case device.Delay:
		ticks, err := cp.shiftTicks(ctx, out.Duration, timeStep)
		if err != nil {
			return 0, 0, err
		}
		advance, delay, err := cp.maxAdvanceDelay(ctx, out.Input, timeStep)
		if err != nil {
			return 0, 0, err
		}
		return max(advance-ticks, 0), delay + ticks, nil
	}
	return 0, 0, fmt.Errorf("unsupported output node %T", out)
}

func (cp *Compiler) shiftTicks(ctx *Context, duration expression.Expression, timeStep float64) (int, error) {
	seconds, err := duration.EvaluateSeconds(ctx.variables)
	if err != nil {
		return 0, err
	}
	if seconds < 0 {
		return 0, fmt.Errorf("shift duration is negative: %g s", seconds)
	}
	return int(math.Round(seconds / timeStep)), nil
}

// evaluateOutput compiles one output node into an instruction of exactly
// prepend + shot ticks + append samples.
func (cp *Compiler) evaluateOutput(
	ctx *Context,
	out device.ChannelOutput,
	timeStep float64,
	unit *units.Unit,
	prepend, append int,
) (instructions.Instruction, error) {
	switch out := out.(type) {
	case device.Constant:
		return cp.evaluateConstant(ctx, out.Value, timeStep, unit, prepend, append)
	case device.LaneValues:
		return cp.evaluateLaneValues(ctx, out, timeStep, unit, prepend, append)
	case device.DeviceTrigger:
		return cp.evaluateTriggerOutput(ctx, out, timeStep, unit, prepend, append)
	case device.CalibratedAnalogMapping:
		return cp.evaluateMapping(ctx, out, timeStep, unit, prepend, append)
	case device.Advance:
		ticks, err := cp.shiftTicks(ctx, out.Duration, timeStep)
		if err != nil {
			return nil, err
		}
		if ticks > prepend {
			return nil, fmt.Errorf("advance of %d ticks exceeds the available budget of %d", ticks, prepend)
		}
		return cp.evaluateOutput(ctx, out.Input, timeStep, unit, prepend-ticks, append+ticks)
	case device.Delay:
		ticks, err := cp.shiftTicks(ctx, out.Duration, timeStep)
		if err != nil {
			return nil, err
		}
		if ticks > append {
			return nil, fmt.Errorf("delay of %d ticks exceeds the available budget of %d", ticks, append)
		}
		return cp.evaluateOutput(ctx, out.Input, timeStep, unit, prepend+ticks, append-ticks)
	}
	return nil, fmt.Errorf("unsupported output node %T", out)
}

func (cp *Compiler) evaluateConstant(
	ctx *Context,
	value expression.Expression,
	timeStep float64,
	unit *units.Unit,
	prepend, append int,
) (instructions.Instruction, error) {
	magnitude, err := value.EvaluateMagnitude(ctx.variables, unit)
	if err != nil {
		return nil, err
	}
	sample, err := scalarPattern(magnitude)
	if err != nil {
		return nil, err
	}
	total := prepend + timing.NumberTicks(0, ctx.ShotDuration(), timeStep) + append
	return instructions.Repeat(total, sample)
}

func (cp *Compiler) evaluateLaneValues(
	ctx *Context,
	out device.LaneValues,
	timeStep float64,
	unit *units.Unit,
	prepend, append int,
) (instructions.Instruction, error) {
	lane, ok := ctx.GetLane(out.Lane)
	if !ok {
		if out.Default == nil {
			return nil, fmt.Errorf("shot defines no lane %q and the channel has no default", out.Lane)
		}
		return cp.evaluateConstant(ctx, *out.Default, timeStep, unit, prepend, append)
	}
	var instr instructions.Instruction
	var err error
	switch lane := lane.(type) {
	case timeline.DigitalLane:
		if unit != nil {
			return nil, fmt.Errorf("digital lane %q cannot be expressed in unit %q", out.Lane, unit.Symbol)
		}
		instr, err = timeline.CompileDigital(lane, ctx.StepBounds(), ctx.variables, timeStep)
	case timeline.AnalogLane:
		instr, err = timeline.CompileAnalog(lane, ctx.StepBounds(), ctx.variables, timeStep, unit)
	default:
		return nil, fmt.Errorf("lane %q of type %T cannot be played on a sequencer channel", out.Lane, lane)
	}
	if err != nil {
		return nil, fmt.Errorf("lane %q: %w", out.Lane, err)
	}
	return padReplicate(instr, prepend, append)
}

func (cp *Compiler) evaluateTriggerOutput(
	ctx *Context,
	out device.DeviceTrigger,
	timeStep float64,
	unit *units.Unit,
	prepend, append int,
) (instructions.Instruction, error) {
	if unit != nil {
		return nil, fmt.Errorf("trigger for device %q is digital and cannot be expressed in unit %q",
			out.Device, unit.Symbol)
	}
	if _, ok := ctx.DeviceConfig(out.Device); !ok {
		if out.Default == nil {
			return nil, fmt.Errorf("shot defines no device %q and the channel has no default", out.Device)
		}
		return cp.evaluateConstant(ctx, *out.Default, timeStep, nil, prepend, append)
	}
	trigger, err := cp.evaluateDeviceTrigger(ctx, out.Device, timeStep)
	if err != nil {
		return nil, err
	}
	// the trigger line idles low outside the shot
	return padLow(trigger, prepend, append)
}

func (cp *Compiler) evaluateMapping(
	ctx *Context,
	out device.CalibratedAnalogMapping,
	timeStep float64,
	unit *units.Unit,
	prepend, append int,
) (instructions.Instruction, error) {
	if unit == nil {
		return nil, fmt.Errorf("calibrated mapping requires an analog target")
	}
	inputUnit, err := units.Parse(out.InputUnit)
	if err != nil {
		return nil, fmt.Errorf("input unit: %w", err)
	}
	outputUnit, err := units.Parse(out.OutputUnit)
	if err != nil {
		return nil, fmt.Errorf("output unit: %w", err)
	}
	points, err := out.SortedPoints()
	if err != nil {
		return nil, err
	}
	input, err := cp.evaluateOutput(ctx, out.Input, timeStep, &inputUnit, prepend, append)
	if err != nil {
		return nil, err
	}
	factor, err := units.ConversionFactor(outputUnit, *unit)
	if err != nil {
		return nil, err
	}
	return instructions.Map(input, func(x float64) float64 {
		return device.Interpolate(points, x) * factor
	})
}

// scalarPattern builds a one-sample pattern from an evaluated value.
func scalarPattern(value any) (*instructions.Pattern, error) {
	switch value := value.(type) {
	case bool:
		return instructions.BoolPattern(value), nil
	case float64:
		return instructions.Float64Pattern(value)
	}
	return nil, fmt.Errorf("value %v of type %T cannot be played as a sample", value, value)
}

// padReplicate extends an instruction with its first value before and its
// last value after.
func padReplicate(in instructions.Instruction, prepend, append int) (instructions.Instruction, error) {
	if prepend == 0 && append == 0 {
		return in, nil
	}
	if in.Len() == 0 {
		return nil, fmt.Errorf("cannot pad an empty instruction")
	}
	first, err := instructions.At(in, 0)
	if err != nil {
		return nil, err
	}
	last, err := instructions.At(in, -1)
	if err != nil {
		return nil, err
	}
	firstPattern, err := scalarPattern(first)
	if err != nil {
		return nil, err
	}
	lastPattern, err := scalarPattern(last)
	if err != nil {
		return nil, err
	}
	head, err := instructions.Repeat(prepend, firstPattern)
	if err != nil {
		return nil, err
	}
	tail, err := instructions.Repeat(append, lastPattern)
	if err != nil {
		return nil, err
	}
	// Concat folds the seams, so a pad matching the lane's edge run extends
	// it instead of sitting next to it.
	padded, err := instructions.Concat(head, in)
	if err != nil {
		return nil, err
	}
	return instructions.Concat(padded, tail)
}

// padLow extends a boolean instruction with low samples on both sides.
func padLow(in instructions.Instruction, prepend, append int) (instructions.Instruction, error) {
	if prepend == 0 && append == 0 {
		return in, nil
	}
	head, err := instructions.Repeat(prepend, instructions.BoolPattern(false))
	if err != nil {
		return nil, err
	}
	tail, err := instructions.Repeat(append, instructions.BoolPattern(false))
	if err != nil {
		return nil, err
	}
	padded, err := instructions.Concat(head, in)
	if err != nil {
		return nil, err
	}
	return instructions.Concat(padded, tail)
}
