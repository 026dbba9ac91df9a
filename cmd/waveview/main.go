// Command waveview renders the compiled channels of a sequencer as scope
// traces. Arrow keys scroll through the shot, + and - change the zoom.
package main

import (
	"flag"
	"fmt"
	"image/color"
	"log"
	"os"
	"sort"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/text"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"golang.org/x/image/font/basicfont"

	"github.com/light-scattering-iogs/caqtus-sub001/pkg/config"
	"github.com/light-scattering-iogs/caqtus-sub001/pkg/instructions"
	"github.com/light-scattering-iogs/caqtus-sub001/pkg/shot"
)

const (
	screenWidth = 1024
	traceHeight = 120
	traceMargin = 12
	// cap on how much of the shot is flattened for display
	maxSamples = 1 << 20
)

// Trace is one channel's samples, ready to draw.
type Trace struct {
	Name    string
	Values  []float64
	Min     float64
	Max     float64
	Digital bool
}

type Game struct {
	device   string
	timeStep int
	traces   []Trace
	offset   int // first visible sample
	window   int // visible samples
}

func (g *Game) Update() error {
	step := g.window / 16
	if step < 1 {
		step = 1
	}
	if ebiten.IsKeyPressed(ebiten.KeyArrowRight) {
		g.offset += step
	}
	if ebiten.IsKeyPressed(ebiten.KeyArrowLeft) {
		g.offset -= step
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyEqual) || inpututil.IsKeyJustPressed(ebiten.KeyKPAdd) {
		g.window /= 2
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyMinus) || inpututil.IsKeyJustPressed(ebiten.KeyKPSubtract) {
		g.window *= 2
	}
	total := len(g.traces[0].Values)
	if g.window < 16 {
		g.window = 16
	}
	if g.window > total {
		g.window = total
	}
	if g.offset > total-g.window {
		g.offset = total - g.window
	}
	if g.offset < 0 {
		g.offset = 0
	}
	return nil
}

var (
	traceColor = color.RGBA{0x3c, 0xc8, 0x64, 0xff}
	axisColor  = color.RGBA{0x40, 0x40, 0x40, 0xff}
	labelColor = color.RGBA{0xc8, 0xc8, 0xc8, 0xff}
)

func (g *Game) Draw(screen *ebiten.Image) {
	for i, trace := range g.traces {
		top := i * traceHeight
		baseline := float32(top + traceHeight - traceMargin)
		vector.StrokeLine(screen, 0, baseline, screenWidth, baseline, 1, axisColor, false)
		g.drawTrace(screen, trace, top)
		label := fmt.Sprintf("%s [%g, %g]", trace.Name, trace.Min, trace.Max)
		text.Draw(screen, label, basicfont.Face7x13, 4, top+traceMargin, labelColor)
	}
	status := fmt.Sprintf("%s: %d ns step, samples %d-%d of %d",
		g.device, g.timeStep, g.offset, g.offset+g.window, len(g.traces[0].Values))
	text.Draw(screen, status, basicfont.Face7x13, 4, len(g.traces)*traceHeight+traceMargin, labelColor)
}

func (g *Game) drawTrace(screen *ebiten.Image, trace Trace, top int) {
	span := trace.Max - trace.Min
	if span == 0 {
		span = 1
	}
	height := float64(traceHeight - 2*traceMargin)
	toY := func(v float64) float32 {
		return float32(float64(top+traceHeight-traceMargin) - (v-trace.Min)/span*height)
	}
	samplesPerPixel := float64(g.window) / screenWidth
	prevY := toY(trace.Values[g.offset])
	for px := 1; px < screenWidth; px++ {
		idx := g.offset + int(float64(px)*samplesPerPixel)
		if idx >= len(trace.Values) {
			break
		}
		y := toY(trace.Values[idx])
		vector.StrokeLine(screen, float32(px-1), prevY, float32(px), y, 1, traceColor, false)
		prevY = y
	}
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return screenWidth, len(g.traces)*traceHeight + 2*traceMargin
}

// buildTraces flattens the head of a compiled sequencer instruction into one
// drawable trace per channel.
func buildTraces(params shot.SequencerParameters) ([]Trace, error) {
	in := params.Instruction
	if in.Len() > maxSamples {
		var err error
		in, err = instructions.Slice(in, 0, maxSamples)
		if err != nil {
			return nil, err
		}
	}
	fields := in.DType().Fields()
	traces := make([]Trace, len(fields))
	for i, field := range fields {
		channel, err := instructions.FieldOf(in, field.Name)
		if err != nil {
			return nil, err
		}
		flat := instructions.Flatten(channel)
		trace := Trace{
			Name:    field.Name,
			Values:  make([]float64, flat.Len()),
			Digital: field.Type.Equal(instructions.Bool),
		}
		for j := range trace.Values {
			switch v := flat.At(j).(type) {
			case bool:
				if v {
					trace.Values[j] = 1
				}
			case float64:
				trace.Values[j] = v
			default:
				return nil, fmt.Errorf("channel %q has unsupported sample %T", field.Name, v)
			}
		}
		trace.Min, trace.Max = trace.Values[0], trace.Values[0]
		for _, v := range trace.Values {
			trace.Min = min(trace.Min, v)
			trace.Max = max(trace.Max, v)
		}
		if trace.Digital {
			trace.Min, trace.Max = 0, 1
		}
		traces[i] = trace
	}
	return traces, nil
}

func main() {
	shotPath := flag.String("shot", "", "shot description file (.cue)")
	deviceName := flag.String("device", "", "sequencer to display (default: first by name)")
	flag.Parse()

	if *shotPath == "" {
		fmt.Fprintln(os.Stderr, "usage: waveview -shot <file.cue> [-device <name>]")
		os.Exit(2)
	}

	desc, err := config.LoadShot(*shotPath)
	if err != nil {
		log.Fatalf("Failed to load shot: %v", err)
	}
	ctx, err := shot.NewContext(desc, nil)
	if err != nil {
		log.Fatalf("Invalid shot: %v", err)
	}
	results, err := shot.NewCompiler().Compile(ctx)
	if err != nil {
		log.Fatalf("Compilation failed: %v", err)
	}

	name, params, err := pickSequencer(results, *deviceName)
	if err != nil {
		log.Fatal(err)
	}
	traces, err := buildTraces(params)
	if err != nil {
		log.Fatalf("Failed to build traces: %v", err)
	}

	game := &Game{
		device:   name,
		timeStep: params.TimeStep,
		traces:   traces,
		window:   len(traces[0].Values),
	}
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowSize(screenWidth, len(traces)*traceHeight+2*traceMargin)
	ebiten.SetWindowTitle("waveview - " + name)
	if err := ebiten.RunGame(game); err != nil {
		log.Fatal(err)
	}
}

func pickSequencer(results map[string]shot.DeviceParameters, name string) (string, shot.SequencerParameters, error) {
	if name != "" {
		params, ok := results[name].(shot.SequencerParameters)
		if !ok {
			return "", shot.SequencerParameters{}, fmt.Errorf("device %q is not a compiled sequencer", name)
		}
		return name, params, nil
	}
	names := make([]string, 0, len(results))
	for candidate := range results {
		names = append(names, candidate)
	}
	sort.Strings(names)
	for _, candidate := range names {
		if params, ok := results[candidate].(shot.SequencerParameters); ok {
			return candidate, params, nil
		}
	}
	return "", shot.SequencerParameters{}, fmt.Errorf("shot contains no sequencer")
}
