package sampler

import (
	"github.com/james-see/autosampler/pkg/dsp"
)

// Entry records one written sample file and its identity.
type Entry struct {
	Cell     Cell
	Velocity uint8  // velocity value the cell was triggered with
	Path     string // path of the written file on disk
	Filename string // base name, what exporters reference
	Loop     *dsp.LoopPoint
}

// Manifest is the record of every sample written for one multisample. It
// is built incrementally while the orchestrator runs and handed read-only
// to the exporters; a fresh manifest is started for every script.
type Manifest struct {
	Name       string
	SampleRate int
	BitDepth   int
	Entries    []Entry
}

// NewManifest starts an empty manifest for the named multisample.
func NewManifest(name string, sampleRate, bitDepth int) *Manifest {
	return &Manifest{Name: name, SampleRate: sampleRate, BitDepth: bitDepth}
}

// Add appends one written sample. Entries keep matrix order.
func (m *Manifest) Add(e Entry) {
	m.Entries = append(m.Entries, e)
}

// Len returns the number of written samples.
func (m *Manifest) Len() int { return len(m.Entries) }

// Notes returns the distinct sampled notes in ascending order. Entries are
// added in matrix order, so a linear scan suffices.
func (m *Manifest) Notes() []uint8 {
	var notes []uint8
	for _, e := range m.Entries {
		if len(notes) == 0 || notes[len(notes)-1] != e.Cell.Note {
			notes = append(notes, e.Cell.Note)
		}
	}
	return notes
}
