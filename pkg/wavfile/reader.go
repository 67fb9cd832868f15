package wavfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/riff"
	"github.com/go-audio/wav"

	"github.com/james-see/autosampler/pkg/capture"
	"github.com/james-see/autosampler/pkg/dsp"
)

var smplChunkID = [4]byte{'s', 'm', 'p', 'l'}

// ErrNoIdentity means the file carries no identity chunk.
var ErrNoIdentity = errors.New("no identity chunk in file")

// ErrNoLoop means the file carries no smpl loop chunk.
var ErrNoLoop = errors.New("no loop chunk in file")

// ReadIdentity recovers the 4-byte identity block from a sample file.
func ReadIdentity(path string) (Identity, error) {
	var id Identity
	err := walkChunks(path, func(ch *riff.Chunk) (bool, error) {
		if ch.ID != IdentityChunkID {
			return false, nil
		}
		buf := make([]byte, 4)
		if _, err := io.ReadFull(ch, buf); err != nil {
			return false, fmt.Errorf("failed to read identity chunk: %w", err)
		}
		id = Identity{Note: buf[0], Velocity: buf[1], RoundRobin: buf[2], Channel: buf[3]}
		return true, nil
	})
	if err != nil {
		return Identity{}, err
	}
	if id == (Identity{}) {
		// A real all-zero identity (note 0, velocity 0) never occurs: cells
		// are triggered with velocity >= 1.
		return Identity{}, fmt.Errorf("%w: %s", ErrNoIdentity, path)
	}
	return id, nil
}

// ReadLoop recovers the first sample loop from a file's smpl chunk.
func ReadLoop(path string) (dsp.LoopPoint, error) {
	var lp dsp.LoopPoint
	found := false
	err := walkChunks(path, func(ch *riff.Chunk) (bool, error) {
		if ch.ID != smplChunkID {
			return false, nil
		}
		buf := make([]byte, smplChunkBytes)
		if _, err := io.ReadFull(ch, buf); err != nil {
			return false, fmt.Errorf("failed to read smpl chunk: %w", err)
		}
		loops := binary.LittleEndian.Uint32(buf[28:32])
		if loops == 0 {
			return true, nil
		}
		start := binary.LittleEndian.Uint32(buf[44:48])
		end := binary.LittleEndian.Uint32(buf[48:52])
		lp = dsp.LoopPoint{Start: int(start), End: int(end) + 1}
		found = true
		return true, nil
	})
	if err != nil {
		return dsp.LoopPoint{}, err
	}
	if !found {
		return dsp.LoopPoint{}, fmt.Errorf("%w: %s", ErrNoLoop, path)
	}
	return lp, nil
}

// walkChunks runs fn over every RIFF chunk in the file until fn reports it
// is done or the chunks run out.
func walkChunks(path string, fn func(*riff.Chunk) (bool, error)) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	parser := riff.New(f)
	if err := parser.ParseHeaders(); err != nil {
		return fmt.Errorf("not a RIFF file %s: %w", path, err)
	}
	for {
		ch, err := parser.NextChunk()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to walk chunks in %s: %w", path, err)
		}
		done, err := fn(ch)
		if err != nil {
			return err
		}
		ch.Drain()
		if done {
			return nil
		}
	}
}

// ReadSample decodes a sample file's PCM back into a capture buffer.
func ReadSample(path string) (*capture.Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	pcm, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	depth := int(d.BitDepth)
	return &capture.Buffer{PCM: pcm, BitDepth: depth}, nil
}
