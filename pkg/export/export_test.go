package export

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/james-see/autosampler/pkg/capture"
	"github.com/james-see/autosampler/pkg/config"
	"github.com/james-see/autosampler/pkg/dsp"
	"github.com/james-see/autosampler/pkg/sampler"
	"github.com/james-see/autosampler/pkg/wavfile"
)

func TestSamplePathSingleSamplesSegment(t *testing.T) {
	tests := []struct {
		name          string
		samplesFolder string
	}{
		{"bare name", "Prophet_Program_5"},
		{"trailing samples", "Prophet_Program_5/samples"},
		{"nested with samples", "output/Prophet_Program_5/samples"},
		{"trailing slash", "Prophet_Program_5/samples/"},
	}

	want := "2:samples/Prophet_Program_5/kick.wav"
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SamplePath(2, tt.samplesFolder, "kick.wav")
			if got != want {
				t.Errorf("SamplePath(2, %q, kick.wav) = %q, want %q", tt.samplesFolder, got, want)
			}
			if strings.Contains(got, "samples/samples") {
				t.Errorf("doubled samples segment in %q", got)
			}
		})
	}
}

func TestVelocityRanges(t *testing.T) {
	tests := []struct {
		layers int
		want   []velRange
	}{
		{1, []velRange{{1, 127}}},
		{2, []velRange{{1, 63}, {64, 127}}},
		{3, []velRange{{1, 42}, {43, 84}, {85, 127}}},
	}

	for _, tt := range tests {
		got := velocityRanges(tt.layers)
		for i, w := range tt.want {
			if got[i] != w {
				t.Errorf("velocityRanges(%d)[%d] = %+v, want %+v", tt.layers, i, got[i], w)
			}
		}
		// Spans are contiguous and cover 1..127.
		if got[0].lo != 1 || got[len(got)-1].hi != 127 {
			t.Errorf("velocityRanges(%d) does not cover 1..127: %+v", tt.layers, got)
		}
		for i := 1; i < len(got); i++ {
			if got[i].lo != got[i-1].hi+1 {
				t.Errorf("velocityRanges(%d) gap between %+v and %+v", tt.layers, got[i-1], got[i])
			}
		}
	}
}

func TestKeySpans(t *testing.T) {
	spans := keySpans([]uint8{36, 41, 46})
	want := map[uint8]keySpan{
		36: {0, 40},
		41: {41, 45},
		46: {46, 127},
	}
	for note, w := range want {
		if spans[note] != w {
			t.Errorf("keySpans[%d] = %+v, want %+v", note, spans[note], w)
		}
	}
}

// testManifest builds a two-note, two-round-robin manifest; the first entry
// carries a loop.
func testManifest(name string) *sampler.Manifest {
	m := sampler.NewManifest(name, 44100, 16)
	loop := &dsp.LoopPoint{Start: 1000, End: 4000, CrossfadeLen: 300}
	cells := []struct {
		note uint8
		rr   int
		loop *dsp.LoopPoint
	}{
		{36, 0, loop},
		{36, 1, nil},
		{41, 0, nil},
		{41, 1, nil},
	}
	for _, c := range cells {
		id := wavfile.Identity{Note: c.note, Velocity: 127, RoundRobin: uint8(c.rr)}
		fn := wavfile.Filename(name, id)
		m.Add(sampler.Entry{
			Cell:     sampler.Cell{Note: c.note, RoundRobin: c.rr},
			Velocity: 127,
			Filename: fn,
			Path:     filepath.Join("unused", fn),
			Loop:     c.loop,
		})
	}
	return m
}

func TestQPATExport(t *testing.T) {
	dir := t.TempDir()
	m := testManifest("Prophet_Program_5")
	q := &QPAT{Location: 2, SamplesFolder: "Prophet_Program_5", OutDir: dir}

	if err := q.Export(m); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "Prophet_Program_5.qpat"))
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(data[0:4], []byte("QPAT")) {
		t.Fatalf("magic = % X, want QPAT", data[0:4])
	}
	if v := binary.LittleEndian.Uint16(data[4:6]); v != qpatVersion {
		t.Errorf("version = %d, want %d", v, qpatVersion)
	}
	if name := string(bytes.TrimRight(data[8:40], "\x00")); name != "Prophet_Program_5" {
		t.Errorf("name = %q, want Prophet_Program_5", name)
	}
	if rate := binary.LittleEndian.Uint32(data[40:44]); rate != 44100 {
		t.Errorf("sample rate = %d, want 44100", rate)
	}
	if zones := binary.LittleEndian.Uint16(data[44:46]); zones != 4 {
		t.Errorf("zone count = %d, want 4", zones)
	}

	// First zone: note 36 spans the bottom of the keyboard, looped.
	zone := data[qpatHeaderSize:]
	if zone[0] != 0 || zone[1] != 40 || zone[2] != 36 {
		t.Errorf("zone keys = lo %d hi %d root %d, want 0/40/36", zone[0], zone[1], zone[2])
	}
	if zone[6] != qpatZoneFlagLoop {
		t.Errorf("zone flags = %d, want loop flag set", zone[6])
	}
	if start := binary.LittleEndian.Uint32(zone[8:12]); start != 1000 {
		t.Errorf("loop start = %d, want 1000", start)
	}
	pathLen := binary.LittleEndian.Uint16(zone[16:18])
	ref := string(zone[18 : 18+int(pathLen)])
	want := "2:samples/Prophet_Program_5/Prophet_Program_5_n036_v127_rr0.wav"
	if ref != want {
		t.Errorf("zone path = %q, want %q", ref, want)
	}
	if strings.Count(ref, "samples/") != 1 {
		t.Errorf("zone path %q must contain exactly one samples/ segment", ref)
	}
}

func TestQPATOptimizeAudio(t *testing.T) {
	dir := t.TempDir()
	name := "Deep_Pad"

	// Write one real 24-bit sample the exporter can re-encode.
	id := wavfile.Identity{Note: 60, Velocity: 127}
	fn := wavfile.Filename(name, id)
	path := filepath.Join(dir, fn)
	data := make([]int, 4410)
	for i := range data {
		data[i] = (i - 2205) * 1000 // needs more than 16 bits
	}
	src := capture.NewBuffer(data, 44100, 1, 24)
	if err := wavfile.WriteSample(path, src, id, nil); err != nil {
		t.Fatal(err)
	}

	m := sampler.NewManifest(name, 44100, 24)
	m.Add(sampler.Entry{Cell: sampler.Cell{Note: 60}, Velocity: 127, Filename: fn, Path: path})

	q := &QPAT{Location: 1, SamplesFolder: name, OptimizeAudio: true, OutDir: dir}
	if err := q.Export(m); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	back, err := wavfile.ReadSample(path)
	if err != nil {
		t.Fatalf("ReadSample() after optimize error = %v", err)
	}
	if back.BitDepth != 16 {
		t.Errorf("optimized bit depth = %d, want 16", back.BitDepth)
	}
	gotID, err := wavfile.ReadIdentity(path)
	if err != nil || gotID != id {
		t.Errorf("identity after optimize = %+v (err %v), want %+v", gotID, err, id)
	}
}

func TestWaldorfMapExport(t *testing.T) {
	dir := t.TempDir()
	m := testManifest("Strings")
	w := &WaldorfMap{Location: 3, SamplesFolder: "Strings", OutDir: dir}

	if err := w.Export(m); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "Strings.map"))
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(data[0:4], []byte("WMAP")) {
		t.Fatalf("magic = % X, want WMAP", data[0:4])
	}
	if zones := binary.LittleEndian.Uint16(data[6:8]); zones != 4 {
		t.Errorf("zone count = %d, want 4", zones)
	}

	zone := data[4+2+2+wmapNameSize:]
	if zone[0] != 36 {
		t.Errorf("first zone root = %d, want 36", zone[0])
	}
	if zone[6] != 1 {
		t.Errorf("first zone looped = %d, want 1", zone[6])
	}
	pathLen := binary.LittleEndian.Uint16(zone[8:10])
	ref := string(zone[10 : 10+int(pathLen)])
	if !strings.HasPrefix(ref, "3:samples/Strings/") {
		t.Errorf("zone path = %q, want 3:samples/Strings/ prefix", ref)
	}
}

func TestSFZExport(t *testing.T) {
	dir := t.TempDir()
	m := testManifest("Keys")
	s := &SFZ{OutDir: dir}

	if err := s.Export(m); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "Keys.sfz"))
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)

	for _, want := range []string{
		"default_path=samples/Keys/",
		"<group> lokey=0 hikey=40 pitch_keycenter=36 lovel=1 hivel=127 seq_length=2",
		"<region> seq_position=1 sample=Keys_n036_v127_rr0.wav loop_mode=loop_continuous loop_start=1000 loop_end=3999",
		"<region> seq_position=2 sample=Keys_n036_v127_rr1.wav",
		"pitch_keycenter=41",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("sfz output missing %q\n---\n%s", want, text)
		}
	}
	if strings.Contains(text, "samples/samples") {
		t.Error("sfz output contains a doubled samples segment")
	}
}

func TestExportersRejectEmptyManifest(t *testing.T) {
	dir := t.TempDir()
	m := sampler.NewManifest("Empty", 44100, 16)
	exporters := []sampler.Exporter{
		&QPAT{OutDir: dir},
		&WaldorfMap{OutDir: dir},
		&SFZ{OutDir: dir},
	}
	for _, e := range exporters {
		if err := e.Export(m); !errors.Is(err, ErrEmptyManifest) {
			t.Errorf("%s.Export(empty) error = %v, want ErrEmptyManifest", e.Name(), err)
		}
	}
}

func testConfig() *config.Script {
	s := &config.Script{}
	s.Output.MultisampleName = "Keys"
	s.Output.Folder = "out"
	s.MIDI.OutputPortName = "port"
	s.ApplyDefaults()
	return s
}

func TestFromConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Export.Formats = []string{"qpat", "sfz"}

	exporters := FromConfig(cfg)
	if len(exporters) != 2 {
		t.Fatalf("FromConfig() returned %d exporters, want 2", len(exporters))
	}
	if exporters[0].Name() != "qpat" || exporters[1].Name() != "sfz" {
		t.Errorf("exporters = %s, %s; want qpat, sfz", exporters[0].Name(), exporters[1].Name())
	}
}

func TestWriteAtomicLeavesNoPartialFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "missing", "out.qpat")
	if err := writeAtomic(target, []byte("data")); !errors.Is(err, ErrExportWrite) {
		t.Fatalf("writeAtomic() error = %v, want ErrExportWrite", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("failed export left %d stray files", len(entries))
	}
}
