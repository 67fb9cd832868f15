// Package capture records timed audio from a portaudio input device into
// in-memory PCM buffers. One Engine owns one device handle for the duration
// of a batch run; Record blocks for the requested duration and is the only
// operation that touches the stream.
package capture

import (
	"fmt"

	"github.com/go-audio/audio"
)

// Buffer is one contiguous capture: interleaved integer PCM plus its format.
// A buffer is owned by the pipeline stage currently processing it; trim and
// crossfade transforms allocate new buffers rather than mutating in place.
type Buffer struct {
	PCM      *audio.IntBuffer
	BitDepth int
}

// NewBuffer wraps interleaved PCM data in a Buffer.
func NewBuffer(data []int, sampleRate, channels, bitDepth int) *Buffer {
	return &Buffer{
		PCM: &audio.IntBuffer{
			Format:         &audio.Format{SampleRate: sampleRate, NumChannels: channels},
			Data:           data,
			SourceBitDepth: bitDepth,
		},
		BitDepth: bitDepth,
	}
}

// Frames returns the frame count (samples per channel).
func (b *Buffer) Frames() int {
	if b == nil || b.PCM == nil || b.PCM.Format.NumChannels == 0 {
		return 0
	}
	return len(b.PCM.Data) / b.PCM.Format.NumChannels
}

// SampleRate returns the capture sample rate in Hz.
func (b *Buffer) SampleRate() int { return b.PCM.Format.SampleRate }

// Channels returns the interleaved channel count.
func (b *Buffer) Channels() int { return b.PCM.Format.NumChannels }

// Slice returns a new buffer covering frames [start, end). The underlying
// data is copied so the result is independently owned.
func (b *Buffer) Slice(start, end int) *Buffer {
	ch := b.Channels()
	data := make([]int, (end-start)*ch)
	copy(data, b.PCM.Data[start*ch:end*ch])
	return NewBuffer(data, b.SampleRate(), ch, b.BitDepth)
}

// Concat joins captures taken back to back into one buffer. All parts must
// share format; the hold and release phases of a cell are joined this way.
func Concat(parts ...*Buffer) (*Buffer, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("no buffers to concatenate")
	}
	first := parts[0]
	total := 0
	for _, p := range parts {
		if p.SampleRate() != first.SampleRate() || p.Channels() != first.Channels() || p.BitDepth != first.BitDepth {
			return nil, fmt.Errorf("buffer format mismatch: %d/%dch/%dbit vs %d/%dch/%dbit",
				p.SampleRate(), p.Channels(), p.BitDepth,
				first.SampleRate(), first.Channels(), first.BitDepth)
		}
		total += len(p.PCM.Data)
	}
	data := make([]int, 0, total)
	for _, p := range parts {
		data = append(data, p.PCM.Data...)
	}
	return NewBuffer(data, first.SampleRate(), first.Channels(), first.BitDepth), nil
}
