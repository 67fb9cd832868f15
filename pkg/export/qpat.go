package export

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"path/filepath"

	"github.com/james-see/autosampler/pkg/sampler"
	"github.com/james-see/autosampler/pkg/wavfile"
)

// QPAT patch file layout.
const (
	qpatVersion = 1

	// Header: magic(4) version(2) flags(2) name(32) samplerate(4)
	// zonecount(2) reserved(2).
	qpatHeaderSize = 4 + 2 + 2 + qpatNameSize + 4 + 2 + 2
	qpatNameSize   = 32

	// Zone: lokey hikey rootkey lovel hivel rr flags pad (8 bytes),
	// loop start(4) loop end(4), path length(2) + path bytes.
	qpatZoneFixedSize = 8 + 4 + 4 + 2

	qpatFlagOptimized = 0x0001 // header: samples re-encoded to 16 bit
	qpatZoneFlagLoop  = 0x01   // zone: loop points valid
)

var qpatMagic = [4]byte{'Q', 'P', 'A', 'T'}

// QPAT exports a Waldorf Quantum patch referencing every sample of the
// manifest by its location-coded path.
type QPAT struct {
	Location      int
	SamplesFolder string
	OptimizeAudio bool
	OutDir        string
}

// Name identifies the format in logs and summaries.
func (q *QPAT) Name() string { return "qpat" }

// Export writes <multisample>.qpat next to the sample files. With
// OptimizeAudio set, samples deeper than 16 bit are re-encoded to 16 bit
// first (the target hardware streams 16-bit PCM), preserving their identity
// and loop chunks.
func (q *QPAT) Export(m *sampler.Manifest) error {
	if m.Len() == 0 {
		return ErrEmptyManifest
	}
	if q.OptimizeAudio && m.BitDepth > 16 {
		if err := optimizeSamples(m); err != nil {
			return err
		}
	}
	data, err := q.encode(m)
	if err != nil {
		return err
	}
	return writeAtomic(filepath.Join(q.OutDir, m.Name+".qpat"), data)
}

func (q *QPAT) encode(m *sampler.Manifest) ([]byte, error) {
	velRanges := velocityRanges(layerCount(m))
	spans := keySpans(m.Notes())

	buf := &bytes.Buffer{}
	buf.Write(qpatMagic[:])
	binary.Write(buf, binary.LittleEndian, uint16(qpatVersion))
	flags := uint16(0)
	if q.OptimizeAudio {
		flags |= qpatFlagOptimized
	}
	binary.Write(buf, binary.LittleEndian, flags)
	buf.Write(paddedName(m.Name, qpatNameSize))
	binary.Write(buf, binary.LittleEndian, uint32(m.SampleRate))
	binary.Write(buf, binary.LittleEndian, uint16(m.Len()))
	binary.Write(buf, binary.LittleEndian, uint16(0))

	for _, e := range m.Entries {
		span := spans[e.Cell.Note]
		vr := velRanges[e.Cell.VelocityLayer]

		zone := []byte{
			span.lo, span.hi, e.Cell.Note,
			vr.lo, vr.hi,
			uint8(e.Cell.RoundRobin),
			0, 0,
		}
		var loopStart, loopEnd uint32
		if e.Loop != nil {
			zone[6] = qpatZoneFlagLoop
			loopStart = uint32(e.Loop.Start)
			loopEnd = uint32(e.Loop.End)
		}
		buf.Write(zone)
		binary.Write(buf, binary.LittleEndian, loopStart)
		binary.Write(buf, binary.LittleEndian, loopEnd)

		ref := SamplePath(q.Location, q.SamplesFolder, e.Filename)
		if len(ref) > 0xFFFF {
			return nil, fmt.Errorf("%w: sample path too long", ErrExportWrite)
		}
		binary.Write(buf, binary.LittleEndian, uint16(len(ref)))
		buf.WriteString(ref)
	}
	return buf.Bytes(), nil
}

// optimizeSamples rewrites every manifest sample at 16 bit, carrying the
// identity and loop chunks over.
func optimizeSamples(m *sampler.Manifest) error {
	for _, e := range m.Entries {
		buf, err := wavfile.ReadSample(e.Path)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrExportWrite, err)
		}
		if buf.BitDepth <= 16 {
			continue
		}
		id, err := wavfile.ReadIdentity(e.Path)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrExportWrite, err)
		}
		shift := uint(buf.BitDepth - 16)
		for i, s := range buf.PCM.Data {
			buf.PCM.Data[i] = s >> shift
		}
		buf.BitDepth = 16
		buf.PCM.SourceBitDepth = 16
		if err := wavfile.WriteSample(e.Path, buf, id, e.Loop); err != nil {
			return fmt.Errorf("%w: %v", ErrExportWrite, err)
		}
	}
	return nil
}

// layerCount returns the number of velocity layers present in the manifest.
func layerCount(m *sampler.Manifest) int {
	max := 0
	for _, e := range m.Entries {
		if e.Cell.VelocityLayer > max {
			max = e.Cell.VelocityLayer
		}
	}
	return max + 1
}

// paddedName returns name zero-padded (and truncated) to size bytes.
func paddedName(name string, size int) []byte {
	out := make([]byte, size)
	copy(out, name)
	return out
}
