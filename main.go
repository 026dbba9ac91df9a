package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"

	slogmulti "github.com/samber/slog-multi"

	"github.com/light-scattering-iogs/caqtus-sub001/pkg/config"
	"github.com/light-scattering-iogs/caqtus-sub001/pkg/instructions"
	"github.com/light-scattering-iogs/caqtus-sub001/pkg/shot"
	"github.com/light-scattering-iogs/caqtus-sub001/pkg/timing"
)

func main() {
	shotPath := flag.String("shot", "", "shot description file (.cue)")
	dumpDevice := flag.String("device", "", "dump the compiled samples of this device")
	dumpSamples := flag.Int("dump", 16, "number of samples to dump with -device")
	logJSON := flag.String("log-json", "", "also write structured logs to this JSON file")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	if *shotPath == "" {
		fmt.Fprintln(os.Stderr, "nothing to do: provide -shot <file.cue> to compile a shot")
		flag.Usage()
		os.Exit(2)
	}

	logger, closeLogs, err := setupLogger(*logJSON, *verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer closeLogs()

	desc, err := config.LoadShot(*shotPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load shot %q: %v\n", *shotPath, err)
		os.Exit(1)
	}

	ctx, err := shot.NewContext(desc, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid shot %q: %v\n", *shotPath, err)
		os.Exit(1)
	}

	results, err := shot.NewCompiler().Compile(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "compilation failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("compiled shot %s: %d steps, %g s, %d devices\n",
		*shotPath, len(ctx.StepNames()), ctx.ShotDuration(), len(results))
	printSummary(results)

	if *dumpDevice != "" {
		if err := dump(results, *dumpDevice, *dumpSamples); err != nil {
			fmt.Fprintf(os.Stderr, "dump failed: %v\n", err)
			os.Exit(1)
		}
	}
}

func setupLogger(jsonPath string, verbose bool) (*slog.Logger, func(), error) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handlers := []slog.Handler{
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
	}
	closeLogs := func() {}
	if jsonPath != "" {
		file, err := os.Create(jsonPath)
		if err != nil {
			return nil, nil, err
		}
		handlers = append(handlers, slog.NewJSONHandler(file, &slog.HandlerOptions{Level: slog.LevelDebug}))
		closeLogs = func() { file.Close() }
	}
	return slog.New(slogmulti.Fanout(handlers...)), closeLogs, nil
}

func printSummary(results map[string]shot.DeviceParameters) {
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		switch params := results[name].(type) {
		case shot.SequencerParameters:
			fmt.Printf("  %s: sequencer, %d ns step, %d samples, depth %d, %d channels\n",
				name, params.TimeStep, params.Instruction.Len(), params.Instruction.Depth(),
				len(params.Instruction.DType().Fields()))
		case shot.CameraParameters:
			fmt.Printf("  %s: camera, %d exposures\n", name, len(params.Exposures))
			for _, exp := range params.Exposures {
				fmt.Printf("    %s: %g s\n", exp.Picture, exp.Duration)
			}
		case shot.GenericParameters:
			fmt.Printf("  %s: generic, start trigger only\n", name)
		default:
			fmt.Printf("  %s: %T\n", name, params)
		}
	}
}

func dump(results map[string]shot.DeviceParameters, name string, samples int) error {
	params, ok := results[name]
	if !ok {
		return fmt.Errorf("unknown device %q", name)
	}
	seq, ok := params.(shot.SequencerParameters)
	if !ok {
		return fmt.Errorf("device %q has no sample dump", name)
	}
	if samples > seq.Instruction.Len() {
		samples = seq.Instruction.Len()
	}
	head, err := instructions.Slice(seq.Instruction, 0, samples)
	if err != nil {
		return err
	}
	timeStep := float64(seq.TimeStep) * timing.Nanosecond
	for _, field := range seq.Instruction.DType().Fields() {
		channel, err := instructions.FieldOf(head, field.Name)
		if err != nil {
			return err
		}
		flat := instructions.Flatten(channel)
		fmt.Printf("%s %s:", name, field.Name)
		for i := 0; i < flat.Len(); i++ {
			fmt.Printf(" %v", flat.At(i))
		}
		fmt.Println()
	}
	fmt.Printf("%d samples of %d, %g s per sample\n", samples, seq.Instruction.Len(), timeStep)
	return nil
}
