// Package config loads and validates sampling script files.
//
// A script is a YAML document describing one program capture: the output
// multisample name, the audio and MIDI device settings, the sampling matrix
// parameters and the post-processing/export options. Defaults are applied
// centrally in ApplyDefaults so every consumer sees a fully populated script.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"
)

// Script is the root configuration for one program capture run.
type Script struct {
	Output         Output         `yaml:"output"`
	Audio          Audio          `yaml:"audio"`
	MIDI           MIDI           `yaml:"midi_interface"`
	Sampling       Sampling       `yaml:"sampling"`
	Wavetable      Wavetable      `yaml:"wavetable"`
	Postprocessing Postprocessing `yaml:"postprocessing"`
	Export         Export         `yaml:"export"`
}

// Output names the multisample and the folder samples are written to.
type Output struct {
	MultisampleName string `yaml:"multisample_name"`
	Folder          string `yaml:"folder"`
}

// Audio describes the capture device configuration.
type Audio struct {
	SampleRate int    `yaml:"samplerate"`
	BitDepth   int    `yaml:"bitdepth"`
	MonoStereo string `yaml:"mono_stereo"` // "mono" or "stereo"
	Channels   string `yaml:"channels"`    // logical range, 1-based inclusive, e.g. "3-4"
	DeviceName string `yaml:"device_name"` // substring match, empty = default input
}

// MIDI describes the output port and program selection.
type MIDI struct {
	OutputPortName string `yaml:"output_port_name"`
	ProgramChange  int    `yaml:"program_change"` // 1-based, 0 = don't send
	Channel        int    `yaml:"channel"`        // 1-16
}

// Sampling holds the matrix and timing parameters.
type Sampling struct {
	NoteRangeStart    int     `yaml:"note_range_start"`
	NoteRangeEnd      int     `yaml:"note_range_end"`
	NoteRangeInterval int     `yaml:"note_range_interval"`
	VelocityLayers    []int   `yaml:"velocity_layers"` // velocity value per layer
	RoundRobinLayers  int     `yaml:"roundrobin_layers"`
	HoldTime          float64 `yaml:"hold_time"`    // seconds
	ReleaseTime       float64 `yaml:"release_time"` // seconds
	PauseTime         float64 `yaml:"pause_time"`   // seconds
}

// Wavetable holds the parameter-sweep capture parameters.
type Wavetable struct {
	Enabled            bool    `yaml:"enabled"`
	Note               int     `yaml:"note"`
	ParameterNumber    int     `yaml:"parameter_number"` // NRPN, 0-16383
	ParameterStart     int     `yaml:"parameter_start"`
	ParameterStep      int     `yaml:"parameter_step"`
	NumberOfWaves      int     `yaml:"number_of_waves"`
	SamplesPerWaveform int     `yaml:"samples_per_waveform"`
	StepTime           float64 `yaml:"step_time"` // seconds per control step
}

// Postprocessing holds trim and loop-detection options.
type Postprocessing struct {
	AutoLoop             bool    `yaml:"auto_loop"`
	LoopCrossfadePercent float64 `yaml:"loop_crossfade_percent"`
	LoopCrossfadeCurve   string  `yaml:"loop_crossfade_curve"` // "equal_power" or "linear"
	TrimSilence          bool    `yaml:"trim_silence"`
	SilenceDetection     string  `yaml:"silence_detection"` // "auto" or "manual"
	SilenceThreshold     float64 `yaml:"silence_threshold"` // dB, manual mode only
	MinSampleMs          int     `yaml:"min_sample_ms"`
}

// Export selects the mapping formats written after a run.
type Export struct {
	Formats    []string      `yaml:"formats"` // qpat | waldorf_map | sfz
	QPAT       QPATExport    `yaml:"qpat"`
	WaldorfMap WaldorfExport `yaml:"waldorf_map"`
}

// QPATExport holds QPAT-specific export options.
type QPATExport struct {
	Location      int    `yaml:"location"`
	OptimizeAudio bool   `yaml:"optimize_audio"`
	SamplesFolder string `yaml:"samples_folder"`
}

// WaldorfExport holds Waldorf MAP-specific export options.
type WaldorfExport struct {
	Location      int    `yaml:"location"`
	SamplesFolder string `yaml:"samples_folder"`
}

// Load reads, defaults and validates a single script file.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse script %s: %w", path, err)
	}
	s.ApplyDefaults()
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid script %s: %w", path, err)
	}
	return &s, nil
}

// LoadDir loads every .yaml/.yml script in dir, sorted by filename so batch
// order is deterministic.
func LoadDir(dir string) ([]*Script, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read script folder: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scripts found in %s", dir)
	}
	scripts := make([]*Script, 0, len(paths))
	for _, p := range paths {
		s, err := Load(p)
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, s)
	}
	return scripts, nil
}

// ApplyDefaults fills every unset field with its documented default.
func (s *Script) ApplyDefaults() {
	if s.Output.Folder == "" {
		s.Output.Folder = "output"
	}
	if s.Audio.SampleRate == 0 {
		s.Audio.SampleRate = 44100
	}
	if s.Audio.BitDepth == 0 {
		s.Audio.BitDepth = 16
	}
	if s.Audio.MonoStereo == "" {
		s.Audio.MonoStereo = "stereo"
	}
	if s.Audio.Channels == "" {
		if s.Audio.MonoStereo == "mono" {
			s.Audio.Channels = "1"
		} else {
			s.Audio.Channels = "1-2"
		}
	}
	if s.MIDI.Channel == 0 {
		s.MIDI.Channel = 1
	}
	if s.Sampling.NoteRangeStart == 0 {
		s.Sampling.NoteRangeStart = 36
	}
	if s.Sampling.NoteRangeEnd == 0 {
		s.Sampling.NoteRangeEnd = 96
	}
	if s.Sampling.NoteRangeInterval == 0 {
		s.Sampling.NoteRangeInterval = 1
	}
	if len(s.Sampling.VelocityLayers) == 0 {
		s.Sampling.VelocityLayers = []int{127}
	}
	if s.Sampling.RoundRobinLayers == 0 {
		s.Sampling.RoundRobinLayers = 1
	}
	if s.Sampling.HoldTime == 0 {
		s.Sampling.HoldTime = 1.0
	}
	if s.Sampling.ReleaseTime == 0 {
		s.Sampling.ReleaseTime = 1.0
	}
	if s.Sampling.PauseTime == 0 {
		s.Sampling.PauseTime = 0.5
	}
	if s.Wavetable.Note == 0 {
		s.Wavetable.Note = 60
	}
	if s.Wavetable.ParameterStep == 0 {
		s.Wavetable.ParameterStep = 1
	}
	if s.Wavetable.NumberOfWaves == 0 {
		s.Wavetable.NumberOfWaves = 64
	}
	if s.Wavetable.SamplesPerWaveform == 0 {
		s.Wavetable.SamplesPerWaveform = 2048
	}
	if s.Wavetable.StepTime == 0 {
		s.Wavetable.StepTime = 0.25
	}
	if s.Postprocessing.LoopCrossfadePercent == 0 {
		s.Postprocessing.LoopCrossfadePercent = 10
	}
	if s.Postprocessing.LoopCrossfadeCurve == "" {
		s.Postprocessing.LoopCrossfadeCurve = "equal_power"
	}
	if s.Postprocessing.SilenceDetection == "" {
		s.Postprocessing.SilenceDetection = "auto"
	}
	if s.Postprocessing.MinSampleMs == 0 {
		s.Postprocessing.MinSampleMs = 50
	}
	if s.Export.QPAT.SamplesFolder == "" {
		s.Export.QPAT.SamplesFolder = s.Output.MultisampleName
	}
	if s.Export.WaldorfMap.SamplesFolder == "" {
		s.Export.WaldorfMap.SamplesFolder = s.Output.MultisampleName
	}
}

// Validate checks field ranges after defaults have been applied.
func (s *Script) Validate() error {
	if s.Output.MultisampleName == "" {
		return fmt.Errorf("output.multisample_name is required")
	}
	switch s.Audio.BitDepth {
	case 16, 24, 32:
	default:
		return fmt.Errorf("audio.bitdepth must be 16, 24 or 32, got %d", s.Audio.BitDepth)
	}
	if s.Audio.SampleRate < 8000 || s.Audio.SampleRate > 192000 {
		return fmt.Errorf("audio.samplerate %d out of range", s.Audio.SampleRate)
	}
	switch s.Audio.MonoStereo {
	case "mono", "stereo":
	default:
		return fmt.Errorf("audio.mono_stereo must be mono or stereo, got %q", s.Audio.MonoStereo)
	}
	if s.MIDI.OutputPortName == "" {
		return fmt.Errorf("midi_interface.output_port_name is required")
	}
	if s.MIDI.Channel < 1 || s.MIDI.Channel > 16 {
		return fmt.Errorf("midi_interface.channel must be 1-16, got %d", s.MIDI.Channel)
	}
	if s.MIDI.ProgramChange < 0 || s.MIDI.ProgramChange > 128 {
		return fmt.Errorf("midi_interface.program_change must be 0-128, got %d", s.MIDI.ProgramChange)
	}
	sm := s.Sampling
	if sm.NoteRangeStart < 0 || sm.NoteRangeStart > 127 {
		return fmt.Errorf("sampling.note_range_start %d out of MIDI range", sm.NoteRangeStart)
	}
	if sm.NoteRangeEnd < 0 || sm.NoteRangeEnd > 127 {
		return fmt.Errorf("sampling.note_range_end %d out of MIDI range", sm.NoteRangeEnd)
	}
	if sm.NoteRangeEnd < sm.NoteRangeStart {
		return fmt.Errorf("sampling.note_range_end %d before note_range_start %d", sm.NoteRangeEnd, sm.NoteRangeStart)
	}
	if sm.NoteRangeInterval < 1 {
		return fmt.Errorf("sampling.note_range_interval must be >= 1, got %d", sm.NoteRangeInterval)
	}
	for i, v := range sm.VelocityLayers {
		if v < 1 || v > 127 {
			return fmt.Errorf("sampling.velocity_layers[%d] = %d out of range 1-127", i, v)
		}
	}
	if sm.RoundRobinLayers < 1 {
		return fmt.Errorf("sampling.roundrobin_layers must be >= 1, got %d", sm.RoundRobinLayers)
	}
	if sm.HoldTime <= 0 || sm.ReleaseTime < 0 || sm.PauseTime < 0 {
		return fmt.Errorf("sampling hold/release/pause times must be non-negative (hold > 0)")
	}
	switch s.Postprocessing.SilenceDetection {
	case "auto", "manual":
	default:
		return fmt.Errorf("postprocessing.silence_detection must be auto or manual, got %q", s.Postprocessing.SilenceDetection)
	}
	switch s.Postprocessing.LoopCrossfadeCurve {
	case "equal_power", "linear":
	default:
		return fmt.Errorf("postprocessing.loop_crossfade_curve must be equal_power or linear, got %q", s.Postprocessing.LoopCrossfadeCurve)
	}
	if p := s.Postprocessing.LoopCrossfadePercent; p < 0 || p > 50 {
		return fmt.Errorf("postprocessing.loop_crossfade_percent %g out of range 0-50", p)
	}
	for _, f := range s.Export.Formats {
		switch f {
		case "qpat", "waldorf_map", "sfz":
		default:
			return fmt.Errorf("export.formats: unknown format %q", f)
		}
	}
	if s.Wavetable.Enabled {
		w := s.Wavetable
		if w.Note < 0 || w.Note > 127 {
			return fmt.Errorf("wavetable.note %d out of MIDI range", w.Note)
		}
		if w.ParameterNumber < 0 || w.ParameterNumber > 16383 {
			return fmt.Errorf("wavetable.parameter_number %d out of NRPN range", w.ParameterNumber)
		}
		if w.NumberOfWaves < 1 {
			return fmt.Errorf("wavetable.number_of_waves must be >= 1, got %d", w.NumberOfWaves)
		}
		if w.StepTime <= 0 {
			return fmt.Errorf("wavetable.step_time must be > 0, got %g", w.StepTime)
		}
	}
	return nil
}

// ChannelCount returns the capture channel count implied by mono_stereo.
func (a Audio) ChannelCount() int {
	if a.MonoStereo == "mono" {
		return 1
	}
	return 2
}
