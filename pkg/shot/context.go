// Package shot compiles a declarative shot description into the concrete
// parameters each device needs to play its part: sequencer instructions,
// camera exposures and trigger waveforms.
package shot

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/light-scattering-iogs/caqtus-sub001/pkg/device"
	"github.com/light-scattering-iogs/caqtus-sub001/pkg/expression"
	"github.com/light-scattering-iogs/caqtus-sub001/pkg/instructions"
	"github.com/light-scattering-iogs/caqtus-sub001/pkg/timeline"
	"github.com/light-scattering-iogs/caqtus-sub001/pkg/timing"
)

// Description is the declarative input of one shot: named steps with their
// durations, the lanes playing across those steps, the participating devices
// and the free variables the expressions may reference.
type Description struct {
	StepNames     []string
	StepDurations []expression.Expression
	Variables     map[string]any
	Lanes         map[string]timeline.Lane
	Devices       map[string]device.Configuration
}

// Context carries everything needed while compiling one shot. It memoizes
// per-device results so that a device referenced by several trigger channels
// is compiled once, and it records which lanes were consumed.
type Context struct {
	stepNames  []string
	stepBounds []float64
	variables  map[string]any
	lanes      map[string]timeline.Lane
	devices    map[string]device.Configuration
	logger     *slog.Logger

	memo      map[string]memoEntry
	usedLanes map[string]bool
}

type memoEntry struct {
	params DeviceParameters
	err    error
}

// NewContext evaluates the step durations and prepares a compilation
// context. Step durations must evaluate to non-negative time quantities.
func NewContext(desc Description, logger *slog.Logger) (*Context, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(desc.StepNames) != len(desc.StepDurations) {
		return nil, fmt.Errorf("%d step names but %d durations",
			len(desc.StepNames), len(desc.StepDurations))
	}
	if len(desc.StepNames) == 0 {
		return nil, fmt.Errorf("shot has no steps")
	}
	durations := make([]float64, len(desc.StepDurations))
	for i, expr := range desc.StepDurations {
		seconds, err := expr.EvaluateSeconds(desc.Variables)
		if err != nil {
			return nil, fmt.Errorf("duration of step %q: %w", desc.StepNames[i], err)
		}
		if seconds < 0 {
			return nil, fmt.Errorf("duration of step %q is negative: %g s", desc.StepNames[i], seconds)
		}
		durations[i] = seconds
	}
	for name, lane := range desc.Lanes {
		if lane.Steps() != len(desc.StepNames) {
			return nil, fmt.Errorf("lane %q covers %d steps, shot has %d",
				name, lane.Steps(), len(desc.StepNames))
		}
	}
	return &Context{
		stepNames:  desc.StepNames,
		stepBounds: timing.StepBounds(durations),
		variables:  desc.Variables,
		lanes:      desc.Lanes,
		devices:    desc.Devices,
		logger:     logger,
		memo:       make(map[string]memoEntry),
		usedLanes:  make(map[string]bool),
	}, nil
}

// StepNames returns the shot's step names in order.
func (c *Context) StepNames() []string { return c.stepNames }

// StepBounds returns the cumulative step boundaries in seconds, starting at
// 0 and ending at the shot duration. It has one more entry than there are
// steps.
func (c *Context) StepBounds() []float64 { return c.stepBounds }

// ShotDuration returns the total duration of the shot in seconds. It is the
// last step boundary, so splitting a step in two never changes it.
func (c *Context) ShotDuration() float64 { return c.stepBounds[len(c.stepBounds)-1] }

// Variables returns the values the shot's expressions may reference.
func (c *Context) Variables() map[string]any { return c.variables }

// GetLane returns the named lane and marks it as consumed.
func (c *Context) GetLane(name string) (timeline.Lane, bool) {
	lane, ok := c.lanes[name]
	if ok {
		c.usedLanes[name] = true
	}
	return lane, ok
}

// DeviceConfig returns the configuration of the named device.
func (c *Context) DeviceConfig(name string) (device.Configuration, bool) {
	config, ok := c.devices[name]
	return config, ok
}

// UnusedLanes returns the names of the lanes no device consumed, sorted.
func (c *Context) UnusedLanes() []string {
	var unused []string
	for name := range c.lanes {
		if !c.usedLanes[name] {
			unused = append(unused, name)
		}
	}
	sort.Strings(unused)
	return unused
}

// DeviceParameters is what a device receives to play one shot. The set of
// implementations is closed: SequencerParameters, CameraParameters and
// GenericParameters.
type DeviceParameters interface {
	isDeviceParameters()
}

// SequencerParameters holds the compiled instruction of one sequencer. The
// instruction's dtype has one field per channel, named "ch 0", "ch 1", ...
type SequencerParameters struct {
	TimeStep    int
	Instruction instructions.Instruction
}

func (SequencerParameters) isDeviceParameters() {}

// Exposure is one picture a camera takes during the shot.
type Exposure struct {
	Picture  string
	Duration float64
}

// CameraParameters lists the exposures of one camera, in shot order.
type CameraParameters struct {
	Exposures []Exposure
}

func (CameraParameters) isDeviceParameters() {}

// GenericParameters is the empty parameter set of a device that only needs
// its start trigger.
type GenericParameters struct{}

func (GenericParameters) isDeviceParameters() {}
