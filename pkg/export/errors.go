package export

import "errors"

var (
	// ErrExportWrite means a mapping file could not be written. The failure
	// is scoped to one exporter; other formats proceed.
	ErrExportWrite = errors.New("export write failure")
	// ErrEmptyManifest means there are no samples to map.
	ErrEmptyManifest = errors.New("manifest has no samples")
)
