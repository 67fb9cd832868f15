package sampler

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/james-see/autosampler/pkg/capture"
	"github.com/james-see/autosampler/pkg/config"
	"github.com/james-see/autosampler/pkg/wavfile"
)

// RunWavetable captures wavetable frames instead of discrete notes: one
// sustained note is recorded as a single long buffer while the configured
// NRPN steps through number_of_waves values at a fixed cadence. The sliced
// frames are written both concatenated as one wavetable file and as
// individual per-wave files. The control
// steps fire between device reads of the same recording, so slice i of the
// buffer begins at i*step_time*samplerate and belongs to control value i.
// Stepping and recording ride the same clock; drift between them would
// misattribute frames.
func (o *Orchestrator) RunWavetable(ctx context.Context, cfg *config.Script) (*Summary, error) {
	wt := cfg.Wavetable
	name := cfg.Output.MultisampleName
	stepFrames := int(wt.StepTime * float64(cfg.Audio.SampleRate))
	if wt.SamplesPerWaveform > stepFrames {
		return nil, fmt.Errorf("samples_per_waveform %d exceeds %d frames per control step", wt.SamplesPerWaveform, stepFrames)
	}
	dir, err := wavfile.EnsureDir(cfg.Output.Folder, name)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.MIDI.ProgramChange > 0 {
		if err := o.midi.ProgramChange(cfg.MIDI.ProgramChange, midiChannel(cfg)); err != nil {
			return nil, fmt.Errorf("program change for %s: %w", name, err)
		}
	}

	o.log.Info("starting wavetable run", "multisample", name, "waves", wt.NumberOfWaves, "step_time", wt.StepTime)

	note := uint8(wt.Note)
	if err := o.midi.NoteOn(note, 127, midiChannel(cfg)); err != nil {
		return nil, fmt.Errorf("%w: %v", capture.ErrCaptureFailure, err)
	}
	buf, err := o.rec.RecordWhile(wt.StepTime, wt.NumberOfWaves, func(step int) error {
		value := wt.ParameterStart + step*wt.ParameterStep
		return o.midi.SendNRPN(uint16(wt.ParameterNumber), uint16(value), midiChannel(cfg))
	})
	o.releaseNote(Cell{Note: note, Channel: midiChannel(cfg)})
	if err != nil {
		return nil, err
	}

	frames := sliceWavetable(buf, stepFrames, wt.NumberOfWaves, wt.SamplesPerWaveform)
	table, err := capture.Concat(frames...)
	if err != nil {
		return nil, err
	}

	id := wavfile.Identity{Note: note, Velocity: 127}
	path := filepath.Join(dir, fmt.Sprintf("%s_wavetable.wav", name))
	if err := o.write(path, table, id, nil); err != nil {
		return nil, fmt.Errorf("failed to write wavetable: %w", err)
	}
	for i, frame := range frames {
		framePath := filepath.Join(dir, fmt.Sprintf("%s_wave_%03d.wav", name, i))
		frameID := wavfile.Identity{Note: note, Velocity: 127, RoundRobin: uint8(i)}
		if err := o.write(framePath, frame, frameID, nil); err != nil {
			return nil, fmt.Errorf("failed to write wave %d: %w", i, err)
		}
	}

	o.log.Info("wavetable run finished", "multisample", name, "waves", len(frames), "frames", table.Frames())
	return &Summary{Cells: wt.NumberOfWaves, Captured: len(frames)}, nil
}

// sliceWavetable cuts one frame of waveFrames samples from the start of
// each control-step region of the capture.
func sliceWavetable(buf *capture.Buffer, stepFrames, waves, waveFrames int) []*capture.Buffer {
	frames := make([]*capture.Buffer, 0, waves)
	for i := 0; i < waves; i++ {
		start := i * stepFrames
		end := start + waveFrames
		if end > buf.Frames() {
			break
		}
		frames = append(frames, buf.Slice(start, end))
	}
	return frames
}
