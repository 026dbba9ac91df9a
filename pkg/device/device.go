// Package device holds the static configuration of the devices taking part
// in a shot: sequencers with their channels and trigger sources, cameras,
// and generic triggered instruments.
package device

import (
	"fmt"
	"sort"
)

// Configuration is the static description of one device. The set of
// implementations is closed: Sequencer, Camera and Generic.
type Configuration interface {
	isConfiguration()
}

// Trigger says when and how fast a sequencer advances. The set of
// implementations is closed.
type Trigger interface {
	isTrigger()
}

// SoftwareTrigger starts the sequencer from software; the sequencer then
// free-runs on its internal clock. Exactly one sequencer per shot, the root,
// is software triggered.
type SoftwareTrigger struct{}

func (SoftwareTrigger) isTrigger() {}

// ExternalClockOnChange advances the sequencer by one sample on each edge of
// an external clock line, with the master holding the clock still while the
// slave's output does not change.
type ExternalClockOnChange struct{}

func (ExternalClockOnChange) isTrigger() {}

// ExternalTriggerStart starts the sequencer on a single external edge, after
// which it free-runs.
type ExternalTriggerStart struct{}

func (ExternalTriggerStart) isTrigger() {}

// Sequencer configures a device able to play an arbitrary timed pattern.
type Sequencer struct {
	// TimeStep is the fixed sample period in nanoseconds.
	TimeStep int
	Trigger  Trigger
	Channels []Channel
}

func (*Sequencer) isConfiguration() {}

// Camera configures a camera device. Its exposures are declared in the
// camera lane carrying the device's name.
type Camera struct{}

func (*Camera) isConfiguration() {}

// Generic configures a device that only needs a start trigger and has no
// channels of its own.
type Generic struct{}

func (*Generic) isConfiguration() {}

// Channel configures one output line of a sequencer. The set of
// implementations is closed: DigitalChannel and AnalogChannel.
type Channel interface {
	// Output returns the declarative description of what the channel plays.
	Output() ChannelOutput
	isChannel()
}

// DigitalChannel is a boolean output line.
type DigitalChannel struct {
	Description string
	Out         ChannelOutput
}

func (c DigitalChannel) Output() ChannelOutput { return c.Out }
func (DigitalChannel) isChannel()              {}

// AnalogChannel is a floating-point output line expressed in a fixed unit.
type AnalogChannel struct {
	Description string
	// OutputUnit is the unit symbol the channel's samples are expressed in.
	OutputUnit string
	Out        ChannelOutput
}

func (c AnalogChannel) Output() ChannelOutput { return c.Out }
func (AnalogChannel) isChannel()              {}

// FindRootSequencer returns the name of the unique software-triggered
// sequencer, the trigger source of every other sequencer.
func FindRootSequencer(configs map[string]Configuration) (string, error) {
	var roots []string
	for name, config := range configs {
		seq, ok := config.(*Sequencer)
		if !ok {
			continue
		}
		if _, ok := seq.Trigger.(SoftwareTrigger); ok {
			roots = append(roots, name)
		}
	}
	sort.Strings(roots)
	switch len(roots) {
	case 0:
		return "", fmt.Errorf("no software-triggered root sequencer found")
	case 1:
		return roots[0], nil
	}
	return "", fmt.Errorf("more than one root sequencer found: %v", roots)
}
