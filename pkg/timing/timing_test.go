package timing

import "testing"

func TestNumberTicks(t *testing.T) {
	tests := []struct {
		name     string
		start    float64
		stop     float64
		timeStep float64
		want     int
	}{
		{"whole shot", 0, 1e-6, 10 * Nanosecond, 100},
		{"zero length", 5e-7, 5e-7, 10 * Nanosecond, 0},
		{"unaligned start rounds up", 5 * Nanosecond, 100 * Nanosecond, 10 * Nanosecond, 9},
		{"unaligned stop rounds up", 0, 95 * Nanosecond, 10 * Nanosecond, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NumberTicks(tt.start, tt.stop, tt.timeStep); got != tt.want {
				t.Fatalf("NumberTicks(%v, %v, %v) = %d, want %d",
					tt.start, tt.stop, tt.timeStep, got, tt.want)
			}
		})
	}
}

func TestAdjacentStepsTile(t *testing.T) {
	// Splitting an interval at an arbitrary point must not create or lose
	// ticks.
	step := 7 * Nanosecond
	start, mid, stop := 0.0, 33*Nanosecond, 100*Nanosecond
	total := NumberTicks(start, stop, step)
	split := NumberTicks(start, mid, step) + NumberTicks(mid, stop, step)
	if total != split {
		t.Fatalf("splitting changed the tick count: %d != %d", total, split)
	}
}

func TestStepBounds(t *testing.T) {
	bounds := StepBounds([]float64{1e-3, 2e-3, 0.5e-3})
	if len(bounds) != 4 {
		t.Fatalf("got %d bounds, want 4", len(bounds))
	}
	if bounds[0] != 0 {
		t.Fatalf("bounds[0] = %v, want 0", bounds[0])
	}
	if bounds[3] != (1e-3+2e-3)+0.5e-3 {
		t.Fatalf("bounds[3] = %v, want the left-associated sum", bounds[3])
	}
}
