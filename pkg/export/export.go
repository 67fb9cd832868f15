// Package export writes hardware and format-specific mapping files from a
// finished sample manifest. Each exporter is independent: it consumes the
// manifest read-only and reports its own success or failure.
package export

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/james-see/autosampler/pkg/config"
	"github.com/james-see/autosampler/pkg/sampler"
)

// SamplePath builds the fixed-form sample reference
// "<location>:samples/<multisample>/<filename>" used by QPAT and MAP files.
// samplesFolder may be a bare multisample name or a path that already ends
// in a samples segment; exactly one "samples/" ever appears in the result.
func SamplePath(location int, samplesFolder, filename string) string {
	return fmt.Sprintf("%d:samples/%s/%s", location, multisampleDir(samplesFolder), filename)
}

// multisampleDir extracts the multisample directory name from a samples
// folder argument, stripping any trailing samples segment so composing with
// the format's own "samples/" prefix never doubles it.
func multisampleDir(folder string) string {
	p := strings.TrimSuffix(filepath.ToSlash(folder), "/")
	p = strings.TrimSuffix(p, "/samples")
	return path.Base(p)
}

// FromConfig builds the exporters selected by the script. Unknown formats
// are rejected by config validation before this runs.
func FromConfig(cfg *config.Script) []sampler.Exporter {
	outDir := filepath.Join(cfg.Output.Folder, cfg.Output.MultisampleName)
	var exporters []sampler.Exporter
	for _, f := range cfg.Export.Formats {
		switch f {
		case "qpat":
			exporters = append(exporters, &QPAT{
				Location:      cfg.Export.QPAT.Location,
				SamplesFolder: cfg.Export.QPAT.SamplesFolder,
				OptimizeAudio: cfg.Export.QPAT.OptimizeAudio,
				OutDir:        outDir,
			})
		case "waldorf_map":
			exporters = append(exporters, &WaldorfMap{
				Location:      cfg.Export.WaldorfMap.Location,
				SamplesFolder: cfg.Export.WaldorfMap.SamplesFolder,
				OutDir:        outDir,
			})
		case "sfz":
			exporters = append(exporters, &SFZ{OutDir: outDir})
		}
	}
	return exporters
}

// writeAtomic writes data to a temporary file and renames it into place, so
// a failed export is either absent or complete, never truncated.
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("%w: %v", ErrExportWrite, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: %v", ErrExportWrite, err)
	}
	return nil
}

// velRange is an inclusive MIDI velocity span for one layer.
type velRange struct {
	lo, hi uint8
}

// velocityRanges splits 1..127 into contiguous spans, one per layer,
// ordered soft to loud.
func velocityRanges(layers int) []velRange {
	ranges := make([]velRange, layers)
	for i := 0; i < layers; i++ {
		lo := i*127/layers + 1
		hi := (i + 1) * 127 / layers
		ranges[i] = velRange{uint8(lo), uint8(hi)}
	}
	ranges[layers-1].hi = 127
	return ranges
}

// keySpan is the inclusive key range a sampled note covers.
type keySpan struct {
	lo, hi uint8
}

// keySpans assigns each sampled note the keys up to (not including) the
// next sampled note; the first span reaches down to key 0 and the last up
// to 127, so the whole keyboard is covered.
func keySpans(notes []uint8) map[uint8]keySpan {
	spans := make(map[uint8]keySpan, len(notes))
	for i, n := range notes {
		lo := n
		if i == 0 {
			lo = 0
		}
		hi := uint8(127)
		if i < len(notes)-1 {
			hi = notes[i+1] - 1
		}
		spans[n] = keySpan{lo, hi}
	}
	return spans
}
