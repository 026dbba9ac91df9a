// Package timing holds the tick and step-boundary arithmetic shared by the
// lane compilers and the trigger generators.
//
// A tick is one sample period at a device's fixed time step. Times are in
// seconds; device time steps are integer nanoseconds.
package timing

import "math"

// Nanosecond is one nanosecond in seconds.
const Nanosecond = 1e-9

// StartTick returns the first tick whose start lies at or after the given
// time.
func StartTick(time, timeStep float64) int {
	return int(math.Ceil(time / timeStep))
}

// StopTick returns the tick just past the last tick starting before the
// given time. Start and stop boundaries are quantized the same way so that
// adjacent steps tile the shot without gaps or overlaps.
func StopTick(time, timeStep float64) int {
	return int(math.Ceil(time / timeStep))
}

// NumberTicks returns how many ticks fit between two times at the given time
// step.
func NumberTicks(startTime, stopTime, timeStep float64) int {
	return StopTick(stopTime, timeStep) - StartTick(startTime, timeStep)
}

// StepBounds turns per-step durations into cumulative boundaries, starting
// at 0. The returned slice has one more entry than there are steps; its last
// entry is the shot duration.
//
// The shot duration must always be read from this table rather than from
// summing the durations directly: the two differ by floating point
// association.
func StepBounds(durations []float64) []float64 {
	bounds := make([]float64, len(durations)+1)
	for i, d := range durations {
		bounds[i+1] = bounds[i] + d
	}
	return bounds
}
