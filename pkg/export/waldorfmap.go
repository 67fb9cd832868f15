package export

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"path/filepath"

	"github.com/james-see/autosampler/pkg/sampler"
)

// Waldorf MAP file layout: magic(4) version(2) zonecount(2) name(32), then
// per zone rootkey lokey hikey lovel hivel rr looped pad (8 bytes) followed
// by a length-prefixed sample path.
const (
	wmapVersion  = 1
	wmapNameSize = 32
)

var wmapMagic = [4]byte{'W', 'M', 'A', 'P'}

// WaldorfMap exports the target device's zone map, associating each
// sample's note, velocity and round-robin position with its storage path.
type WaldorfMap struct {
	Location      int
	SamplesFolder string
	OutDir        string
}

// Name identifies the format in logs and summaries.
func (w *WaldorfMap) Name() string { return "waldorf_map" }

// Export writes <multisample>.map next to the sample files.
func (w *WaldorfMap) Export(m *sampler.Manifest) error {
	if m.Len() == 0 {
		return ErrEmptyManifest
	}
	velRanges := velocityRanges(layerCount(m))
	spans := keySpans(m.Notes())

	buf := &bytes.Buffer{}
	buf.Write(wmapMagic[:])
	binary.Write(buf, binary.LittleEndian, uint16(wmapVersion))
	binary.Write(buf, binary.LittleEndian, uint16(m.Len()))
	buf.Write(paddedName(m.Name, wmapNameSize))

	for _, e := range m.Entries {
		span := spans[e.Cell.Note]
		vr := velRanges[e.Cell.VelocityLayer]
		looped := uint8(0)
		if e.Loop != nil {
			looped = 1
		}
		buf.Write([]byte{
			e.Cell.Note, span.lo, span.hi,
			vr.lo, vr.hi,
			uint8(e.Cell.RoundRobin),
			looped, 0,
		})
		ref := SamplePath(w.Location, w.SamplesFolder, e.Filename)
		if len(ref) > 0xFFFF {
			return fmt.Errorf("%w: sample path too long", ErrExportWrite)
		}
		binary.Write(buf, binary.LittleEndian, uint16(len(ref)))
		buf.WriteString(ref)
	}
	return writeAtomic(filepath.Join(w.OutDir, m.Name+".map"), buf.Bytes())
}
