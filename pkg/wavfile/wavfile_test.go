package wavfile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/james-see/autosampler/pkg/capture"
	"github.com/james-see/autosampler/pkg/dsp"
)

func testBuffer(frames, channels, depth int) *capture.Buffer {
	data := make([]int, frames*channels)
	for i := range data {
		data[i] = (i%200 - 100) * 50
	}
	return capture.NewBuffer(data, 44100, channels, depth)
}

func TestFilenameDeterministic(t *testing.T) {
	id := Identity{Note: 60, Velocity: 100, RoundRobin: 1}
	got := Filename("Prophet_Program_5", id)
	want := "Prophet_Program_5_n060_v100_rr1.wav"
	if got != want {
		t.Errorf("Filename() = %q, want %q", got, want)
	}
	// Distinct cells never collide.
	other := Filename("Prophet_Program_5", Identity{Note: 60, Velocity: 100, RoundRobin: 2})
	if other == got {
		t.Error("filenames collide across round-robin layers")
	}
}

func TestIdentityRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.wav")
	id := Identity{Note: 60, Velocity: 100, RoundRobin: 1, Channel: 0}

	if err := WriteSample(path, testBuffer(4410, 2, 16), id, nil); err != nil {
		t.Fatalf("WriteSample() error = %v", err)
	}

	got, err := ReadIdentity(path)
	if err != nil {
		t.Fatalf("ReadIdentity() error = %v", err)
	}
	if got != id {
		t.Errorf("ReadIdentity() = %+v, want %+v", got, id)
	}
}

func TestLoopRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "looped.wav")
	loop := &dsp.LoopPoint{Start: 1000, End: 4000, CrossfadeLen: 300}

	if err := WriteSample(path, testBuffer(4410, 1, 16), Identity{Note: 48, Velocity: 127}, loop); err != nil {
		t.Fatalf("WriteSample() error = %v", err)
	}

	got, err := ReadLoop(path)
	if err != nil {
		t.Fatalf("ReadLoop() error = %v", err)
	}
	if got.Start != loop.Start || got.End != loop.End {
		t.Errorf("ReadLoop() = %+v, want start %d end %d", got, loop.Start, loop.End)
	}
}

func TestReadLoopAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unlooped.wav")
	if err := WriteSample(path, testBuffer(441, 1, 16), Identity{Note: 36, Velocity: 90}, nil); err != nil {
		t.Fatalf("WriteSample() error = %v", err)
	}
	if _, err := ReadLoop(path); !errors.Is(err, ErrNoLoop) {
		t.Errorf("ReadLoop() error = %v, want ErrNoLoop", err)
	}
}

func TestReadSampleFormats(t *testing.T) {
	tests := []struct {
		name     string
		channels int
		depth    int
	}{
		{"mono 16", 1, 16},
		{"stereo 16", 2, 16},
		{"stereo 24", 2, 24},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "fmt.wav")
			src := testBuffer(2205, tt.channels, tt.depth)
			if err := WriteSample(path, src, Identity{Note: 60, Velocity: 1}, nil); err != nil {
				t.Fatalf("WriteSample() error = %v", err)
			}

			back, err := ReadSample(path)
			if err != nil {
				t.Fatalf("ReadSample() error = %v", err)
			}
			if back.SampleRate() != 44100 || back.Channels() != tt.channels || back.BitDepth != tt.depth {
				t.Fatalf("read format = %d Hz %d ch %d bit, want 44100/%d/%d",
					back.SampleRate(), back.Channels(), back.BitDepth, tt.channels, tt.depth)
			}
			if back.Frames() != src.Frames() {
				t.Fatalf("read %d frames, want %d", back.Frames(), src.Frames())
			}
			for i := range src.PCM.Data {
				if back.PCM.Data[i] != src.PCM.Data[i] {
					t.Fatalf("sample %d = %d, want %d", i, back.PCM.Data[i], src.PCM.Data[i])
				}
			}
		})
	}
}

func TestWriteSampleAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "missing", "sample.wav")

	err := WriteSample(path, testBuffer(441, 1, 16), Identity{Note: 60, Velocity: 1}, nil)
	if err == nil {
		t.Fatal("WriteSample() into missing dir = nil, want error")
	}

	entries, readErr := os.ReadDir(dir)
	if readErr != nil {
		t.Fatal(readErr)
	}
	if len(entries) != 0 {
		t.Errorf("failed write left %d stray files behind", len(entries))
	}
}

func TestEnsureDir(t *testing.T) {
	root := t.TempDir()
	dir, err := EnsureDir(root, "Strings")
	if err != nil {
		t.Fatalf("EnsureDir() error = %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Errorf("EnsureDir() did not create %s", dir)
	}
}
