package midictl

import "errors"

var (
	// ErrPortNotFound means no MIDI output port matched the configured name.
	ErrPortNotFound = errors.New("midi port not found")
)
