// Package main is the entry point for the autosampler CLI
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/james-see/autosampler/pkg/capture"
	"github.com/james-see/autosampler/pkg/config"
	"github.com/james-see/autosampler/pkg/dsp"
	"github.com/james-see/autosampler/pkg/export"
	"github.com/james-see/autosampler/pkg/midictl"
	"github.com/james-see/autosampler/pkg/sampler"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	scriptPath   string
	scriptFolder string
	verbose      bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "autosampler",
	Short: "Automated multisample capture from hardware synthesizers",
	Long: `autosampler drives a MIDI-controlled instrument through a
pitch/velocity/round-robin matrix, records each cell's audio response,
post-processes the captures (silence trimming, loop detection with
crossfade) and exports the samples with QPAT, Waldorf MAP or SFZ
mapping files.

Examples:
  autosampler run --script prophet.yaml
  autosampler batch --script-folder ./scripts
  autosampler wavetable --script sweep.yaml
  autosampler calibrate --script prophet.yaml
  autosampler probe audio
  autosampler probe midi`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Sample one program's full matrix",
	RunE:  runScript,
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run every script in a folder sequentially, unattended",
	RunE:  runBatch,
}

var wavetableCmd = &cobra.Command{
	Use:   "wavetable",
	Short: "Capture wavetable frames by sweeping a MIDI parameter",
	RunE:  runWavetable,
}

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Measure the noise floor and print the silence threshold",
	RunE:  runCalibrate,
}

var probeCmd = &cobra.Command{
	Use:       "probe {audio|midi}",
	Short:     "List available capture devices or MIDI output ports",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"audio", "midi"},
	RunE:      runProbe,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	runCmd.Flags().StringVarP(&scriptPath, "script", "s", "", "Script file (required)")
	_ = runCmd.MarkFlagRequired("script")

	batchCmd.Flags().StringVarP(&scriptFolder, "script-folder", "f", "", "Folder of script files (required)")
	_ = batchCmd.MarkFlagRequired("script-folder")

	wavetableCmd.Flags().StringVarP(&scriptPath, "script", "s", "", "Script file (required)")
	_ = wavetableCmd.MarkFlagRequired("script")

	calibrateCmd.Flags().StringVarP(&scriptPath, "script", "s", "", "Script file (required)")
	_ = calibrateCmd.MarkFlagRequired("script")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(wavetableCmd)
	rootCmd.AddCommand(calibrateCmd)
	rootCmd.AddCommand(probeCmd)
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// pipeline bundles the opened devices for one batch run.
type pipeline struct {
	ctrl   *midictl.Controller
	engine *capture.Engine
	orch   *sampler.Orchestrator
	log    *slog.Logger
}

// openPipeline acquires the MIDI port and audio device for cfg. Any failure
// here is fatal: no cell runs without both endpoints. cleanup releases both
// and must run on every exit path.
func openPipeline(cfg *config.Script) (*pipeline, func(), error) {
	log := newLogger()

	ctrl, err := midictl.Open(cfg.MIDI.OutputPortName)
	if err != nil {
		return nil, nil, err
	}
	engine := capture.NewEngine(capture.Config{
		SampleRate:   cfg.Audio.SampleRate,
		BitDepth:     cfg.Audio.BitDepth,
		ChannelRange: cfg.Audio.Channels,
		DeviceName:   cfg.Audio.DeviceName,
	})
	if err := engine.Setup(); err != nil {
		ctrl.Close()
		return nil, nil, err
	}

	p := &pipeline{
		ctrl:   ctrl,
		engine: engine,
		orch:   sampler.New(ctrl, engine, log),
		log:    log,
	}
	cleanup := func() {
		p.engine.Teardown()
		p.ctrl.Close()
	}
	return p, cleanup, nil
}

// noiseFloor calibrates against the live device in auto mode, or wraps the
// configured threshold in manual mode.
func (p *pipeline) noiseFloor(cfg *config.Script) (dsp.NoiseFloor, error) {
	if !cfg.Postprocessing.TrimSilence || cfg.Postprocessing.SilenceDetection == "manual" {
		return dsp.Manual(cfg.Postprocessing.SilenceThreshold), nil
	}
	p.log.Info("calibrating noise floor, keep the instrument silent",
		"windows", dsp.DefaultMeasurementCount, "window_seconds", dsp.DefaultMeasurementSeconds)
	floor, err := dsp.Calibrate(p.engine, dsp.DefaultMeasurementCount, dsp.DefaultMeasurementSeconds, dsp.DefaultMarginDB)
	if err != nil {
		return dsp.NoiseFloor{}, err
	}
	p.log.Info("noise floor calibrated", "measured_db", floor.MeasuredDB, "threshold_db", floor.Threshold())
	return floor, nil
}

// signalContext cancels on SIGINT/SIGTERM; the orchestrator honors it
// between cells.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func printSummary(s *sampler.Summary) {
	fmt.Printf("Cells: %d  captured: %d  skipped: %d\n", s.Cells, s.Captured, s.Skipped)
	fmt.Printf("Loops detected: %d  loop failures: %d\n", s.LoopsDetected, s.LoopFailures)
	fmt.Printf("Exports: %d ok, %d failed\n", s.ExportsOK, s.ExportsFailed)
}

func runScript(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(scriptPath)
	if err != nil {
		return err
	}
	p, cleanup, err := openPipeline(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	floor, err := p.noiseFloor(cfg)
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	summary, err := p.orch.RunScript(ctx, cfg, floor, export.FromConfig(cfg))
	if summary != nil {
		printSummary(summary)
	}
	return err
}

func runBatch(cmd *cobra.Command, args []string) error {
	scripts, err := config.LoadDir(scriptFolder)
	if err != nil {
		return err
	}
	// All scripts in a batch share the devices of the first; the audio and
	// MIDI endpoints stay open for the whole run.
	p, cleanup, err := openPipeline(scripts[0])
	if err != nil {
		return err
	}
	defer cleanup()

	floor, err := p.noiseFloor(scripts[0])
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	fmt.Printf("Batch: %d scripts\n", len(scripts))
	summary, err := p.orch.RunBatch(ctx, scripts, floor, export.FromConfig)
	if summary != nil {
		printSummary(summary)
	}
	return err
}

func runWavetable(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(scriptPath)
	if err != nil {
		return err
	}
	if !cfg.Wavetable.Enabled {
		return fmt.Errorf("wavetable.enabled is false in %s", scriptPath)
	}
	p, cleanup, err := openPipeline(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signalContext()
	defer stop()

	summary, err := p.orch.RunWavetable(ctx, cfg)
	if summary != nil {
		printSummary(summary)
	}
	return err
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(scriptPath)
	if err != nil {
		return err
	}
	p, cleanup, err := openPipeline(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	floor, err := dsp.Calibrate(p.engine, dsp.DefaultMeasurementCount, dsp.DefaultMeasurementSeconds, dsp.DefaultMarginDB)
	if err != nil {
		return err
	}
	fmt.Printf("Measured noise floor: %.2f dB\n", floor.MeasuredDB)
	fmt.Printf("Silence threshold:    %.2f dB (margin %.1f dB)\n", floor.Threshold(), floor.MarginDB)
	return nil
}

func runProbe(cmd *cobra.Command, args []string) error {
	switch args[0] {
	case "audio":
		devices, err := capture.ListDevices()
		if err != nil {
			return err
		}
		fmt.Println("Capture devices:")
		for _, d := range devices {
			fmt.Printf("  %s\n", d)
		}
	case "midi":
		ports, err := midictl.ListPorts()
		if err != nil {
			return err
		}
		fmt.Println("MIDI output ports:")
		for _, p := range ports {
			fmt.Printf("  %s\n", p)
		}
	}
	return nil
}
