// Package config loads shot descriptions from CUE files.
package config

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/light-scattering-iogs/caqtus-sub001/pkg/device"
	"github.com/light-scattering-iogs/caqtus-sub001/pkg/expression"
	"github.com/light-scattering-iogs/caqtus-sub001/pkg/shot"
	"github.com/light-scattering-iogs/caqtus-sub001/pkg/timeline"
)

type rawShot struct {
	Steps     []rawStep            `json:"steps"`
	Variables map[string]string    `json:"variables,omitempty"`
	Lanes     map[string]rawLane   `json:"lanes,omitempty"`
	Devices   map[string]rawDevice `json:"devices"`
}

type rawStep struct {
	Name     string `json:"name"`
	Duration string `json:"duration"`
}

type rawLane struct {
	Type  string    `json:"type"`
	Cells []rawCell `json:"cells"`
}

type rawCell struct {
	Steps   int    `json:"steps"`
	Value   string `json:"value,omitempty"`
	Ramp    bool   `json:"ramp,omitempty"`
	Picture string `json:"picture,omitempty"`
}

type rawDevice struct {
	Type     string       `json:"type"`
	TimeStep int          `json:"time_step,omitempty"`
	Trigger  string       `json:"trigger,omitempty"`
	Channels []rawChannel `json:"channels,omitempty"`
}

type rawChannel struct {
	Kind        string    `json:"kind"`
	Description string    `json:"description,omitempty"`
	Unit        string    `json:"unit,omitempty"`
	Output      rawOutput `json:"output"`
}

type rawOutput struct {
	Type       string       `json:"type"`
	Value      string       `json:"value,omitempty"`
	Lane       string       `json:"lane,omitempty"`
	Device     string       `json:"device,omitempty"`
	Default    *string      `json:"default,omitempty"`
	Input      *rawOutput   `json:"input,omitempty"`
	InputUnit  string       `json:"input_unit,omitempty"`
	OutputUnit string       `json:"output_unit,omitempty"`
	Points     [][2]float64 `json:"points,omitempty"`
	Duration   string       `json:"duration,omitempty"`
}

// LoadShot reads a shot description from a CUE file.
func LoadShot(filePath string) (shot.Description, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return shot.Description{}, err
	}
	return ParseShot(content, filePath)
}

// ParseShot decodes a shot description from CUE source. filename is used in
// error messages only.
func ParseShot(content []byte, filename string) (shot.Description, error) {
	ctx := cuecontext.New()
	value := ctx.CompileBytes(content, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return shot.Description{}, fmt.Errorf("compile %s: %w", filename, err)
	}
	var raw rawShot
	if err := value.Decode(&raw); err != nil {
		return shot.Description{}, fmt.Errorf("decode %s: %w", filename, err)
	}
	return convertShot(raw)
}

func convertShot(raw rawShot) (shot.Description, error) {
	desc := shot.Description{
		StepNames:     make([]string, len(raw.Steps)),
		StepDurations: make([]expression.Expression, len(raw.Steps)),
	}
	for i, step := range raw.Steps {
		if step.Name == "" {
			return shot.Description{}, fmt.Errorf("step %d has no name", i)
		}
		desc.StepNames[i] = step.Name
		desc.StepDurations[i] = expression.New(step.Duration)
	}

	if len(raw.Variables) > 0 {
		desc.Variables = make(map[string]any, len(raw.Variables))
		for name, src := range raw.Variables {
			value, err := expression.New(src).Evaluate(nil)
			if err != nil {
				return shot.Description{}, fmt.Errorf("variable %q: %w", name, err)
			}
			desc.Variables[name] = value
		}
	}

	if len(raw.Lanes) > 0 {
		desc.Lanes = make(map[string]timeline.Lane, len(raw.Lanes))
		for name, lane := range raw.Lanes {
			converted, err := convertLane(lane)
			if err != nil {
				return shot.Description{}, fmt.Errorf("lane %q: %w", name, err)
			}
			desc.Lanes[name] = converted
		}
	}

	desc.Devices = make(map[string]device.Configuration, len(raw.Devices))
	for name, dev := range raw.Devices {
		converted, err := convertDevice(dev)
		if err != nil {
			return shot.Description{}, fmt.Errorf("device %q: %w", name, err)
		}
		desc.Devices[name] = converted
	}
	return desc, nil
}

func convertLane(raw rawLane) (timeline.Lane, error) {
	switch raw.Type {
	case "digital":
		cells := make([]timeline.DigitalCell, len(raw.Cells))
		for i, cell := range raw.Cells {
			cells[i] = timeline.DigitalCell{Steps: cell.Steps, Value: expression.New(cell.Value)}
		}
		return timeline.DigitalLane{Cells: cells}, nil
	case "analog":
		cells := make([]timeline.AnalogCell, len(raw.Cells))
		for i, cell := range raw.Cells {
			cells[i] = timeline.AnalogCell{
				Steps: cell.Steps,
				Value: expression.New(cell.Value),
				Ramp:  cell.Ramp,
			}
		}
		return timeline.AnalogLane{Cells: cells}, nil
	case "camera":
		cells := make([]timeline.CameraCell, len(raw.Cells))
		for i, cell := range raw.Cells {
			cells[i] = timeline.CameraCell{Steps: cell.Steps, Picture: cell.Picture}
		}
		return timeline.CameraLane{Cells: cells}, nil
	}
	return nil, fmt.Errorf("unknown lane type %q", raw.Type)
}

func convertDevice(raw rawDevice) (device.Configuration, error) {
	switch raw.Type {
	case "sequencer":
		trigger, err := convertTrigger(raw.Trigger)
		if err != nil {
			return nil, err
		}
		channels := make([]device.Channel, len(raw.Channels))
		for i, ch := range raw.Channels {
			converted, err := convertChannel(ch)
			if err != nil {
				return nil, fmt.Errorf("channel %d: %w", i, err)
			}
			channels[i] = converted
		}
		return &device.Sequencer{
			TimeStep: raw.TimeStep,
			Trigger:  trigger,
			Channels: channels,
		}, nil
	case "camera":
		return &device.Camera{}, nil
	case "generic":
		return &device.Generic{}, nil
	}
	return nil, fmt.Errorf("unknown device type %q", raw.Type)
}

func convertTrigger(name string) (device.Trigger, error) {
	switch name {
	case "software":
		return device.SoftwareTrigger{}, nil
	case "clock":
		return device.ExternalClockOnChange{}, nil
	case "start":
		return device.ExternalTriggerStart{}, nil
	}
	return nil, fmt.Errorf("unknown trigger %q", name)
}

func convertChannel(raw rawChannel) (device.Channel, error) {
	output, err := convertOutput(raw.Output)
	if err != nil {
		return nil, err
	}
	switch raw.Kind {
	case "digital":
		if raw.Unit != "" {
			return nil, fmt.Errorf("digital channel cannot have a unit")
		}
		return device.DigitalChannel{Description: raw.Description, Out: output}, nil
	case "analog":
		if raw.Unit == "" {
			return nil, fmt.Errorf("analog channel needs a unit")
		}
		return device.AnalogChannel{Description: raw.Description, OutputUnit: raw.Unit, Out: output}, nil
	}
	return nil, fmt.Errorf("unknown channel kind %q", raw.Kind)
}

func convertOutput(raw rawOutput) (device.ChannelOutput, error) {
	switch raw.Type {
	case "constant":
		return device.Constant{Value: expression.New(raw.Value)}, nil
	case "lane":
		return device.LaneValues{Lane: raw.Lane, Default: optionalExpression(raw.Default)}, nil
	case "trigger":
		return device.DeviceTrigger{Device: raw.Device, Default: optionalExpression(raw.Default)}, nil
	case "mapping":
		if raw.Input == nil {
			return nil, fmt.Errorf("mapping needs an input")
		}
		input, err := convertOutput(*raw.Input)
		if err != nil {
			return nil, err
		}
		points := make([]device.CalibrationPoint, len(raw.Points))
		for i, p := range raw.Points {
			points[i] = device.CalibrationPoint{Input: p[0], Output: p[1]}
		}
		return device.CalibratedAnalogMapping{
			Input:      input,
			InputUnit:  raw.InputUnit,
			OutputUnit: raw.OutputUnit,
			Points:     points,
		}, nil
	case "advance", "delay":
		if raw.Input == nil {
			return nil, fmt.Errorf("%s needs an input", raw.Type)
		}
		input, err := convertOutput(*raw.Input)
		if err != nil {
			return nil, err
		}
		if raw.Type == "advance" {
			return device.Advance{Input: input, Duration: expression.New(raw.Duration)}, nil
		}
		return device.Delay{Input: input, Duration: expression.New(raw.Duration)}, nil
	}
	return nil, fmt.Errorf("unknown output type %q", raw.Type)
}

func optionalExpression(src *string) *expression.Expression {
	if src == nil {
		return nil
	}
	e := expression.New(*src)
	return &e
}
