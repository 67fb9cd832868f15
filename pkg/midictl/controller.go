// Package midictl drives the sampled instrument over a single MIDI output
// port: note on/off, program change and NRPN parameter writes. All sends are
// synchronous and serialized; the controller owns the port for the lifetime
// of a batch run.
package midictl

import (
	"fmt"
	"strings"
	"sync"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// NRPN control change numbers per the MIDI 1.0 spec.
const (
	ccNRPNParamMSB = 99
	ccNRPNParamLSB = 98
	ccDataEntryMSB = 6
	ccDataEntryLSB = 38
)

// SendFunc transmits one MIDI message. The call returns once the transport
// has accepted the message.
type SendFunc func(midi.Message) error

// Controller sends trigger and parameter messages to the instrument.
// Sends are serialized with a mutex so the capture path can run on another
// goroutine without interleaving messages on the wire.
type Controller struct {
	mu   sync.Mutex
	send SendFunc

	drv *rtmididrv.Driver
	out drivers.Out
}

// New wraps an existing send function. Used by tests and by transports other
// than rtmidi.
func New(send SendFunc) *Controller {
	return &Controller{send: send}
}

// Open finds the first output port whose name contains portName and returns
// a controller bound to it. Returns ErrPortNotFound when no port matches.
func Open(portName string) (*Controller, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("rtmididrv: %w", err)
	}
	outs, err := drv.Outs()
	if err != nil {
		drv.Close()
		return nil, fmt.Errorf("listing MIDI outputs: %w", err)
	}
	for _, out := range outs {
		if !strings.Contains(strings.ToLower(out.String()), strings.ToLower(portName)) {
			continue
		}
		if err := out.Open(); err != nil {
			drv.Close()
			return nil, fmt.Errorf("opening MIDI port %q: %w", out.String(), err)
		}
		send, err := midi.SendTo(out)
		if err != nil {
			out.Close()
			drv.Close()
			return nil, fmt.Errorf("binding MIDI port %q: %w", out.String(), err)
		}
		return &Controller{send: send, drv: drv, out: out}, nil
	}
	drv.Close()
	return nil, fmt.Errorf("%w: no output port matches %q", ErrPortNotFound, portName)
}

// ListPorts returns the names of all available MIDI output ports.
func ListPorts() ([]string, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("rtmididrv: %w", err)
	}
	defer drv.Close()
	outs, err := drv.Outs()
	if err != nil {
		return nil, fmt.Errorf("listing MIDI outputs: %w", err)
	}
	names := make([]string, 0, len(outs))
	for _, out := range outs {
		names = append(names, out.String())
	}
	return names, nil
}

// Close releases the port and driver. Safe to call on a test controller.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.out != nil {
		c.out.Close()
		c.out = nil
	}
	if c.drv != nil {
		c.drv.Close()
		c.drv = nil
	}
}

// NoteOn sends a note-on for note at velocity on the given channel (0-15).
func (c *Controller) NoteOn(note, velocity, channel uint8) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.send(midi.NoteOn(channel, note, velocity)); err != nil {
		return fmt.Errorf("note on %d: %w", note, err)
	}
	return nil
}

// NoteOff sends a note-off for note on the given channel (0-15).
func (c *Controller) NoteOff(note, channel uint8) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.send(midi.NoteOff(channel, note)); err != nil {
		return fmt.Errorf("note off %d: %w", note, err)
	}
	return nil
}

// ProgramChange selects program on the given channel. program is the 1-based
// user-facing number; the wire value is program-1. Use ProgramChangeRaw for
// instruments that expect the untranslated value.
func (c *Controller) ProgramChange(program int, channel uint8) error {
	if program < 1 || program > 128 {
		return fmt.Errorf("program %d out of range 1-128", program)
	}
	return c.ProgramChangeRaw(uint8(program-1), channel)
}

// ProgramChangeRaw transmits program as-is, without 1-based translation.
func (c *Controller) ProgramChangeRaw(program, channel uint8) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.send(midi.ProgramChange(channel, program)); err != nil {
		return fmt.Errorf("program change %d: %w", program, err)
	}
	return nil
}

// SendNRPN writes a 14-bit value to a 14-bit non-registered parameter as the
// fixed four-message CC sequence: param MSB, param LSB, data MSB, data LSB.
func (c *Controller) SendNRPN(parameter, value uint16, channel uint8) error {
	if parameter > 0x3FFF {
		return fmt.Errorf("NRPN parameter %d out of 14-bit range", parameter)
	}
	if value > 0x3FFF {
		return fmt.Errorf("NRPN value %d out of 14-bit range", value)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	seq := []midi.Message{
		midi.ControlChange(channel, ccNRPNParamMSB, uint8(parameter>>7)),
		midi.ControlChange(channel, ccNRPNParamLSB, uint8(parameter&0x7F)),
		midi.ControlChange(channel, ccDataEntryMSB, uint8(value>>7)),
		midi.ControlChange(channel, ccDataEntryLSB, uint8(value&0x7F)),
	}
	for _, msg := range seq {
		if err := c.send(msg); err != nil {
			return fmt.Errorf("NRPN %d: %w", parameter, err)
		}
	}
	return nil
}
