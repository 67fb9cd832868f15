package export

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/james-see/autosampler/pkg/sampler"
)

// SFZ exports a text instrument map: one group per sampled note and
// velocity layer, with the round-robin variants as seq_position regions so
// players cycle them per the capture order.
type SFZ struct {
	OutDir string
}

// Name identifies the format in logs and summaries.
func (s *SFZ) Name() string { return "sfz" }

// Export writes <multisample>.sfz next to the sample files.
func (s *SFZ) Export(m *sampler.Manifest) error {
	if m.Len() == 0 {
		return ErrEmptyManifest
	}
	velRanges := velocityRanges(layerCount(m))
	spans := keySpans(m.Notes())

	// Group entries by note and velocity layer, preserving matrix order so
	// seq_position matches the round-robin capture order.
	type groupKey struct {
		note  uint8
		layer int
	}
	groups := make(map[groupKey][]sampler.Entry)
	var order []groupKey
	for _, e := range m.Entries {
		k := groupKey{e.Cell.Note, e.Cell.VelocityLayer}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], e)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "// %s.sfz\n// generated by autosampler\n\n", m.Name)
	fmt.Fprintf(&b, "<control>\ndefault_path=samples/%s/\n\n", m.Name)

	for _, k := range order {
		entries := groups[k]
		span := spans[k.note]
		vr := velRanges[k.layer]

		fmt.Fprintf(&b, "<group> lokey=%d hikey=%d pitch_keycenter=%d lovel=%d hivel=%d seq_length=%d\n",
			span.lo, span.hi, k.note, vr.lo, vr.hi, len(entries))
		for i, e := range entries {
			fmt.Fprintf(&b, "<region> seq_position=%d sample=%s", i+1, e.Filename)
			if e.Loop != nil {
				fmt.Fprintf(&b, " loop_mode=loop_continuous loop_start=%d loop_end=%d", e.Loop.Start, e.Loop.End-1)
			}
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}
	return writeAtomic(filepath.Join(s.OutDir, m.Name+".sfz"), []byte(b.String()))
}
