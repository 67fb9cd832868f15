package sampler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/james-see/autosampler/pkg/capture"
	"github.com/james-see/autosampler/pkg/config"
	"github.com/james-see/autosampler/pkg/dsp"
	"github.com/james-see/autosampler/pkg/wavfile"
)

// State is the orchestrator's position in one cell's capture cycle.
type State int

const (
	StateIdle State = iota
	StateTrigger
	StateHold
	StateRelease
	StatePause
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateTrigger:
		return "TRIGGER"
	case StateHold:
		return "HOLD"
	case StateRelease:
		return "RELEASE"
	case StatePause:
		return "PAUSE"
	case StateDone:
		return "DONE"
	}
	return "UNKNOWN"
}

// NoteSender is the MIDI surface the orchestrator drives. midictl.Controller
// satisfies it.
type NoteSender interface {
	NoteOn(note, velocity, channel uint8) error
	NoteOff(note, channel uint8) error
	ProgramChange(program int, channel uint8) error
	SendNRPN(parameter, value uint16, channel uint8) error
}

// Recorder is the capture surface. capture.Engine satisfies it.
type Recorder interface {
	Record(seconds float64) (*capture.Buffer, error)
	RecordWhile(stepSeconds float64, steps int, tick func(step int) error) (*capture.Buffer, error)
}

// Exporter writes one mapping format from a finished manifest. Exporters
// are independent: a failure in one never blocks the others.
type Exporter interface {
	Name() string
	Export(m *Manifest) error
}

// WriteFunc persists one processed buffer. The default is
// wavfile.WriteSample; tests substitute their own.
type WriteFunc func(path string, buf *capture.Buffer, id wavfile.Identity, loop *dsp.LoopPoint) error

// Summary tallies a run for the batch-end report.
type Summary struct {
	Cells         int
	Captured      int
	Skipped       int
	LoopsDetected int
	LoopFailures  int
	ExportsOK     int
	ExportsFailed int
}

// add accumulates another script's summary for batch totals.
func (s *Summary) add(other *Summary) {
	s.Cells += other.Cells
	s.Captured += other.Captured
	s.Skipped += other.Skipped
	s.LoopsDetected += other.LoopsDetected
	s.LoopFailures += other.LoopFailures
	s.ExportsOK += other.ExportsOK
	s.ExportsFailed += other.ExportsFailed
}

// Orchestrator owns the per-cell state machine. All device access happens
// on the calling goroutine, strictly one cell at a time.
type Orchestrator struct {
	midi NoteSender
	rec  Recorder
	log  *slog.Logger

	// sleep and write are injection points for tests.
	sleep func(time.Duration)
	write WriteFunc
}

// New returns an orchestrator over the given controller and engine.
func New(midi NoteSender, rec Recorder, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		midi:  midi,
		rec:   rec,
		log:   log,
		sleep: time.Sleep,
		write: wavfile.WriteSample,
	}
}

// RunScript samples one program's full matrix, writes every sample and runs
// the exporters over the manifest. Per-cell failures are logged and tallied
// as skips; the run continues. The context is checked between cells only,
// so a capture in progress always completes.
func (o *Orchestrator) RunScript(ctx context.Context, cfg *config.Script, floor dsp.NoiseFloor, exporters []Exporter) (*Summary, error) {
	name := cfg.Output.MultisampleName
	dir, err := wavfile.EnsureDir(cfg.Output.Folder, name)
	if err != nil {
		return nil, err
	}

	if cfg.MIDI.ProgramChange > 0 {
		if err := o.midi.ProgramChange(cfg.MIDI.ProgramChange, midiChannel(cfg)); err != nil {
			return nil, fmt.Errorf("program change for %s: %w", name, err)
		}
	}

	cells := Matrix(cfg.Sampling, midiChannel(cfg))
	manifest := NewManifest(name, cfg.Audio.SampleRate, cfg.Audio.BitDepth)
	summary := &Summary{Cells: len(cells)}
	o.log.Info("starting multisample run", "multisample", name, "cells", len(cells))

	for _, cell := range cells {
		if err := ctx.Err(); err != nil {
			return summary, fmt.Errorf("run aborted: %w", err)
		}
		velocity := uint8(cfg.Sampling.VelocityLayers[cell.VelocityLayer])

		buf, err := o.captureCell(cfg, cell, velocity)
		if err != nil {
			o.log.Warn("cell skipped", "cell", cell.String(), "err", err)
			summary.Skipped++
			continue
		}

		buf, loop := o.postprocess(cfg, cell, buf, floor, summary)

		id := wavfile.Identity{
			Note:       cell.Note,
			Velocity:   velocity,
			RoundRobin: uint8(cell.RoundRobin),
			Channel:    cell.Channel,
		}
		filename := wavfile.Filename(name, id)
		path := filepath.Join(dir, filename)
		if err := o.write(path, buf, id, loop); err != nil {
			o.log.Warn("sample write failed, cell skipped", "cell", cell.String(), "err", err)
			summary.Skipped++
			continue
		}

		manifest.Add(Entry{Cell: cell, Velocity: velocity, Path: path, Filename: filename, Loop: loop})
		summary.Captured++
		o.log.Info("cell captured", "cell", cell.String(), "frames", buf.Frames(), "looped", loop != nil)
	}

	o.export(manifest, exporters, summary)
	o.log.Info("multisample run finished",
		"multisample", name,
		"captured", summary.Captured,
		"skipped", summary.Skipped,
		"exports_ok", summary.ExportsOK,
		"exports_failed", summary.ExportsFailed)
	return summary, nil
}

// RunBatch chains multiple scripts sequentially: each gets its program
// change, a fresh manifest and its own exporters. The noise floor is shared
// across the batch.
func (o *Orchestrator) RunBatch(ctx context.Context, scripts []*config.Script, floor dsp.NoiseFloor, exporters func(*config.Script) []Exporter) (*Summary, error) {
	total := &Summary{}
	for _, cfg := range scripts {
		s, err := o.RunScript(ctx, cfg, floor, exporters(cfg))
		if s != nil {
			total.add(s)
		}
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// captureCell runs one cell through the TRIGGER → HOLD → RELEASE → PAUSE
// cycle and returns the concatenated hold+release capture. On failure the
// note is released best-effort so a stuck voice cannot ring into the next
// cell.
func (o *Orchestrator) captureCell(cfg *config.Script, cell Cell, velocity uint8) (*capture.Buffer, error) {
	var hold, release *capture.Buffer

	state := StateTrigger
	for state != StateDone {
		switch state {
		case StateTrigger:
			if err := o.midi.NoteOn(cell.Note, velocity, cell.Channel); err != nil {
				return nil, fmt.Errorf("%w: %v", capture.ErrCaptureFailure, err)
			}
			state = StateHold

		case StateHold:
			buf, err := o.rec.Record(cfg.Sampling.HoldTime)
			if err != nil {
				o.releaseNote(cell)
				return nil, err
			}
			hold = buf
			state = StateRelease

		case StateRelease:
			if err := o.midi.NoteOff(cell.Note, cell.Channel); err != nil {
				return nil, fmt.Errorf("%w: %v", capture.ErrCaptureFailure, err)
			}
			if cfg.Sampling.ReleaseTime > 0 {
				buf, err := o.rec.Record(cfg.Sampling.ReleaseTime)
				if err != nil {
					return nil, err
				}
				release = buf
			}
			state = StatePause

		case StatePause:
			if cfg.Sampling.PauseTime > 0 {
				o.sleep(time.Duration(cfg.Sampling.PauseTime * float64(time.Second)))
			}
			state = StateDone
		}
	}

	if release == nil {
		return hold, nil
	}
	return capture.Concat(hold, release)
}

// postprocess trims and loop-processes one capture per the script options.
// Both stages degrade gracefully: a silent buffer stays untrimmed, a failed
// loop search leaves the sample unlooped.
func (o *Orchestrator) postprocess(cfg *config.Script, cell Cell, buf *capture.Buffer, floor dsp.NoiseFloor, summary *Summary) (*capture.Buffer, *dsp.LoopPoint) {
	pp := cfg.Postprocessing

	if pp.TrimSilence {
		minFrames := pp.MinSampleMs * cfg.Audio.SampleRate / 1000
		trimmed, err := dsp.TrimSilence(buf, floor.Threshold(), minFrames)
		if errors.Is(err, dsp.ErrBufferSilent) {
			o.log.Warn("capture reads as silent, keeping untrimmed", "cell", cell.String())
		}
		buf = trimmed
	}

	if !pp.AutoLoop {
		return buf, nil
	}
	lp, err := dsp.DetectLoop(buf, dsp.LoopOptions{
		CrossfadePercent: pp.LoopCrossfadePercent,
		Curve:            dsp.Curve(pp.LoopCrossfadeCurve),
	})
	if err != nil {
		o.log.Warn("loop detection failed, exporting unlooped", "cell", cell.String(), "err", err)
		summary.LoopFailures++
		return buf, nil
	}
	summary.LoopsDetected++
	return dsp.ApplyCrossfade(buf, lp, dsp.Curve(pp.LoopCrossfadeCurve)), &lp
}

// export runs every exporter over the finished manifest, isolating
// failures per format.
func (o *Orchestrator) export(manifest *Manifest, exporters []Exporter, summary *Summary) {
	for _, exp := range exporters {
		if err := exp.Export(manifest); err != nil {
			o.log.Error("export failed", "format", exp.Name(), "multisample", manifest.Name, "err", err)
			summary.ExportsFailed++
			continue
		}
		summary.ExportsOK++
	}
}

// releaseNote sends a best-effort note-off while recovering from a failure.
func (o *Orchestrator) releaseNote(cell Cell) {
	if err := o.midi.NoteOff(cell.Note, cell.Channel); err != nil {
		o.log.Warn("note off failed during recovery", "cell", cell.String(), "err", err)
	}
}

// midiChannel maps the 1-based configured channel to the wire value.
func midiChannel(cfg *config.Script) uint8 {
	return uint8(cfg.MIDI.Channel - 1)
}
