package shot

import (
	"math"
	"testing"

	"github.com/light-scattering-iogs/caqtus-sub001/pkg/expression"
	"github.com/light-scattering-iogs/caqtus-sub001/pkg/timeline"
	"github.com/light-scattering-iogs/caqtus-sub001/pkg/units"
)

func TestNewContextBounds(t *testing.T) {
	us, ok := units.Lookup("us")
	if !ok {
		t.Fatal("unit us not found")
	}
	ctx := mustContext(t, Description{
		StepNames:     []string{"a", "b", "c"},
		StepDurations: []expression.Expression{expression.New("1 us"), expression.New("t"), expression.New("500 ns")},
		Variables:     map[string]any{"t": units.Quantity{Magnitude: 2, Unit: us}},
	})
	want := []float64{0, 1e-6, 3e-6, 3.5e-6}
	bounds := ctx.StepBounds()
	if len(bounds) != len(want) {
		t.Fatalf("bounds = %v, want %v", bounds, want)
	}
	for i := range want {
		if math.Abs(bounds[i]-want[i]) > 1e-15 {
			t.Errorf("bounds[%d] = %g, want %g", i, bounds[i], want[i])
		}
	}
	if math.Abs(ctx.ShotDuration()-3.5e-6) > 1e-15 {
		t.Errorf("ShotDuration = %g, want 3.5 us", ctx.ShotDuration())
	}
}

func TestNewContextRejectsNegativeDuration(t *testing.T) {
	_, err := NewContext(Description{
		StepNames:     []string{"a"},
		StepDurations: []expression.Expression{expression.New("-1 us")},
	}, nil)
	if err == nil {
		t.Fatal("expected error for a negative step duration")
	}
}

func TestNewContextRejectsShortLane(t *testing.T) {
	_, err := NewContext(Description{
		StepNames:     []string{"a", "b"},
		StepDurations: []expression.Expression{expression.New("1 us"), expression.New("1 us")},
		Lanes: map[string]timeline.Lane{
			"x": timeline.DigitalLane{Cells: []timeline.DigitalCell{
				{Steps: 1, Value: expression.New("True")},
			}},
		},
	}, nil)
	if err == nil {
		t.Fatal("expected error for a lane not covering all steps")
	}
}

func TestUnusedLanesTracking(t *testing.T) {
	ctx := mustContext(t, Description{
		StepNames:     []string{"a"},
		StepDurations: []expression.Expression{expression.New("1 us")},
		Lanes: map[string]timeline.Lane{
			"used": timeline.DigitalLane{Cells: []timeline.DigitalCell{
				{Steps: 1, Value: expression.New("True")},
			}},
			"idle": timeline.DigitalLane{Cells: []timeline.DigitalCell{
				{Steps: 1, Value: expression.New("False")},
			}},
		},
	})
	if _, ok := ctx.GetLane("used"); !ok {
		t.Fatal("GetLane(used) not found")
	}
	unused := ctx.UnusedLanes()
	if len(unused) != 1 || unused[0] != "idle" {
		t.Errorf("UnusedLanes = %v, want [idle]", unused)
	}
}
