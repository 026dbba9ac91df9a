package device

import (
	"fmt"
	"sort"

	"github.com/light-scattering-iogs/caqtus-sub001/pkg/expression"
)

// ChannelOutput describes what a channel plays as a tree of sources and
// transformations. The set of implementations is closed: Constant,
// LaneValues, DeviceTrigger, CalibratedAnalogMapping, Advance and Delay.
type ChannelOutput interface {
	isChannelOutput()
}

// Constant holds the channel at a single value for the whole shot.
type Constant struct {
	Value expression.Expression
}

func (Constant) isChannelOutput() {}

// LaneValues plays the lane with the given name. If the shot does not define
// the lane, Default is played instead when set.
type LaneValues struct {
	Lane    string
	Default *expression.Expression
}

func (LaneValues) isChannelOutput() {}

// DeviceTrigger plays the trigger waveform of the named target device. When
// Default is set it is played if the target is absent from the shot.
type DeviceTrigger struct {
	Device  string
	Default *expression.Expression
}

func (DeviceTrigger) isChannelOutput() {}

// CalibrationPoint is one measured input/output pair of an analog mapping.
type CalibrationPoint struct {
	Input  float64
	Output float64
}

// CalibratedAnalogMapping transforms its input through a piecewise-linear
// function defined by measured calibration points. Inputs outside the
// measured range clamp to the nearest point.
type CalibratedAnalogMapping struct {
	Input      ChannelOutput
	InputUnit  string
	OutputUnit string
	Points     []CalibrationPoint
}

func (CalibratedAnalogMapping) isChannelOutput() {}

// SortedPoints returns the calibration points ordered by input value.
func (m CalibratedAnalogMapping) SortedPoints() ([]CalibrationPoint, error) {
	if len(m.Points) < 2 {
		return nil, fmt.Errorf("calibrated mapping requires at least 2 points, got %d", len(m.Points))
	}
	points := make([]CalibrationPoint, len(m.Points))
	copy(points, m.Points)
	sort.Slice(points, func(i, j int) bool { return points[i].Input < points[j].Input })
	return points, nil
}

// Interpolate evaluates the clamped piecewise-linear function at x. points
// must be sorted by input.
func Interpolate(points []CalibrationPoint, x float64) float64 {
	if x <= points[0].Input {
		return points[0].Output
	}
	last := points[len(points)-1]
	if x >= last.Input {
		return last.Output
	}
	i := sort.Search(len(points), func(i int) bool { return points[i].Input >= x })
	lo, hi := points[i-1], points[i]
	if hi.Input == lo.Input {
		return lo.Output
	}
	t := (x - lo.Input) / (hi.Input - lo.Input)
	return lo.Output + t*(hi.Output-lo.Output)
}

// Advance shifts its input earlier in time by Duration, discarding the
// samples pushed before the start of the shot and replicating the input's
// last value to fill the end.
type Advance struct {
	Input    ChannelOutput
	Duration expression.Expression
}

func (Advance) isChannelOutput() {}

// Delay shifts its input later in time by Duration, replicating the input's
// first value at the start and discarding the samples pushed past the end.
type Delay struct {
	Input    ChannelOutput
	Duration expression.Expression
}

func (Delay) isChannelOutput() {}

// OutputKind names the node type for error messages.
func OutputKind(out ChannelOutput) string {
	switch out.(type) {
	case Constant:
		return "constant"
	case LaneValues:
		return "lane values"
	case DeviceTrigger:
		return "device trigger"
	case CalibratedAnalogMapping:
		return "calibrated analog mapping"
	case Advance:
		return "advance"
	case Delay:
		return "delay"
	default:
		return fmt.Sprintf("%T", out)
	}
}
