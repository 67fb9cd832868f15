package config

import (
	"os"
	"path/filepath"
	"testing"
)

const minimalScript = `
output:
  multisample_name: Prophet_Program_5
midi_interface:
  output_port_name: "MIDISPORT"
  program_change: 5
`

func writeScript(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	s, err := Load(writeScript(t, "minimal.yaml", minimalScript))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if s.Audio.SampleRate != 44100 {
		t.Errorf("SampleRate = %d, want 44100", s.Audio.SampleRate)
	}
	if s.Audio.BitDepth != 16 {
		t.Errorf("BitDepth = %d, want 16", s.Audio.BitDepth)
	}
	if s.Audio.Channels != "1-2" {
		t.Errorf("Channels = %q, want \"1-2\"", s.Audio.Channels)
	}
	if s.Sampling.NoteRangeStart != 36 || s.Sampling.NoteRangeEnd != 96 {
		t.Errorf("note range = %d-%d, want 36-96", s.Sampling.NoteRangeStart, s.Sampling.NoteRangeEnd)
	}
	if len(s.Sampling.VelocityLayers) != 1 || s.Sampling.VelocityLayers[0] != 127 {
		t.Errorf("VelocityLayers = %v, want [127]", s.Sampling.VelocityLayers)
	}
	if s.Sampling.RoundRobinLayers != 1 {
		t.Errorf("RoundRobinLayers = %d, want 1", s.Sampling.RoundRobinLayers)
	}
	if s.Postprocessing.SilenceDetection != "auto" {
		t.Errorf("SilenceDetection = %q, want \"auto\"", s.Postprocessing.SilenceDetection)
	}
	if s.Postprocessing.LoopCrossfadeCurve != "equal_power" {
		t.Errorf("LoopCrossfadeCurve = %q, want \"equal_power\"", s.Postprocessing.LoopCrossfadeCurve)
	}
	if s.MIDI.ProgramChange != 5 {
		t.Errorf("ProgramChange = %d, want 5", s.MIDI.ProgramChange)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Script)
	}{
		{"missing name", func(s *Script) { s.Output.MultisampleName = "" }},
		{"bad bit depth", func(s *Script) { s.Audio.BitDepth = 20 }},
		{"bad mono_stereo", func(s *Script) { s.Audio.MonoStereo = "quad" }},
		{"missing port", func(s *Script) { s.MIDI.OutputPortName = "" }},
		{"channel out of range", func(s *Script) { s.MIDI.Channel = 17 }},
		{"note range inverted", func(s *Script) { s.Sampling.NoteRangeStart = 90; s.Sampling.NoteRangeEnd = 40 }},
		{"zero interval", func(s *Script) { s.Sampling.NoteRangeInterval = -1 }},
		{"velocity out of range", func(s *Script) { s.Sampling.VelocityLayers = []int{128} }},
		{"unknown export format", func(s *Script) { s.Export.Formats = []string{"exs24"} }},
		{"bad silence detection", func(s *Script) { s.Postprocessing.SilenceDetection = "sometimes" }},
		{"bad crossfade curve", func(s *Script) { s.Postprocessing.LoopCrossfadeCurve = "cosine" }},
		{"wavetable step time", func(s *Script) { s.Wavetable.Enabled = true; s.Wavetable.StepTime = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Load(writeScript(t, "base.yaml", minimalScript))
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			tt.mutate(s)
			if err := s.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestLoadDirSorted(t *testing.T) {
	dir := t.TempDir()
	scripts := map[string]string{
		"02_strings.yaml": "output:\n  multisample_name: Strings\nmidi_interface:\n  output_port_name: port\n",
		"01_brass.yaml":   "output:\n  multisample_name: Brass\nmidi_interface:\n  output_port_name: port\n",
		"notes.txt":       "not a script",
	}
	for name, body := range scripts {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
	}

	loaded, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("LoadDir() returned %d scripts, want 2", len(loaded))
	}
	if loaded[0].Output.MultisampleName != "Brass" || loaded[1].Output.MultisampleName != "Strings" {
		t.Errorf("scripts out of order: %s, %s", loaded[0].Output.MultisampleName, loaded[1].Output.MultisampleName)
	}
}

func TestLoadDirEmpty(t *testing.T) {
	if _, err := LoadDir(t.TempDir()); err == nil {
		t.Error("LoadDir() on empty dir = nil, want error")
	}
}

func TestChannelCount(t *testing.T) {
	if got := (Audio{MonoStereo: "mono"}).ChannelCount(); got != 1 {
		t.Errorf("mono ChannelCount() = %d, want 1", got)
	}
	if got := (Audio{MonoStereo: "stereo"}).ChannelCount(); got != 2 {
		t.Errorf("stereo ChannelCount() = %d, want 2", got)
	}
}
