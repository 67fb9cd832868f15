// Package sampler walks the sampling matrix: it drives the MIDI controller
// and capture engine through one cell at a time, hands each capture to the
// post-processing stages, writes the sample file and finally invokes the
// exporters over the collected manifest.
package sampler

import (
	"fmt"

	"github.com/james-see/autosampler/pkg/config"
)

// Cell identifies exactly one capture in the matrix. Immutable once the
// matrix is enumerated.
type Cell struct {
	Note          uint8
	VelocityLayer int   // index into the configured velocity layers
	RoundRobin    int   // 0-based round-robin index
	Channel       uint8 // MIDI channel, 0-based
}

// String names the cell for logs and failure tallies.
func (c Cell) String() string {
	return fmt.Sprintf("note %d vel-layer %d rr %d", c.Note, c.VelocityLayer, c.RoundRobin)
}

// Matrix enumerates the sampling cells for the configured ranges, ordered
// ascending note, then velocity layer, then round-robin index. Downstream
// round-robin playback assumes files are discoverable in this cyclical
// order per note, so the order is part of the contract.
func Matrix(s config.Sampling, channel uint8) []Cell {
	var cells []Cell
	for note := s.NoteRangeStart; note <= s.NoteRangeEnd; note += s.NoteRangeInterval {
		for layer := range s.VelocityLayers {
			for rr := 0; rr < s.RoundRobinLayers; rr++ {
				cells = append(cells, Cell{
					Note:          uint8(note),
					VelocityLayer: layer,
					RoundRobin:    rr,
					Channel:       channel,
				})
			}
		}
	}
	return cells
}
