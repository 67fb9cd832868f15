// Package wavfile writes captured buffers as PCM WAV files carrying the
// sampling identity in a custom RIFF chunk and loop points in a standard
// smpl chunk, and reads both back without relying on filename parsing.
package wavfile

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/james-see/autosampler/pkg/capture"
	"github.com/james-see/autosampler/pkg/dsp"
)

// IdentityChunkID is the custom RIFF chunk holding the 4-byte sampling
// identity block.
var IdentityChunkID = [4]byte{'n', 'o', 't', 'e'}

// Identity is the persisted per-sample identity: which matrix cell the
// file was captured for.
type Identity struct {
	Note       uint8
	Velocity   uint8
	RoundRobin uint8
	Channel    uint8
}

// Bytes returns the fixed 4-byte chunk payload.
func (id Identity) Bytes() [4]byte {
	return [4]byte{id.Note, id.Velocity, id.RoundRobin, id.Channel}
}

// Filename returns the deterministic, collision-free file name for a cell.
func Filename(multisample string, id Identity) string {
	return fmt.Sprintf("%s_n%03d_v%03d_rr%d.wav", multisample, id.Note, id.Velocity, id.RoundRobin)
}

// WriteSample writes buf to path as PCM WAV with the identity chunk and,
// when loop is non-nil, a smpl loop chunk. The file is written to a
// temporary name and renamed into place, so a failed write leaves no
// truncated file behind.
func WriteSample(path string, buf *capture.Buffer, id Identity, loop *dsp.LoopPoint) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}
	if err := encode(f, buf, id, loop); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename %s: %w", tmp, err)
	}
	return nil
}

func encode(f *os.File, buf *capture.Buffer, id Identity, loop *dsp.LoopPoint) error {
	channels := buf.Channels()
	rate := buf.SampleRate()
	depth := buf.BitDepth
	bytesPerSample := depth / 8

	dataSize := len(buf.PCM.Data) * bytesPerSample
	noteSize := 4
	smplSize := 0
	if loop != nil {
		smplSize = 8 + smplChunkBytes
	}
	riffSize := 4 + (8 + fmtChunkBytes) + (8 + dataSize) + (8 + noteSize) + smplSize

	header := make([]byte, 12+8+fmtChunkBytes+8)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(riffSize))
	copy(header[8:12], "WAVE")

	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], fmtChunkBytes)
	binary.LittleEndian.PutUint16(header[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(rate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(rate*channels*bytesPerSample))
	binary.LittleEndian.PutUint16(header[32:34], uint16(channels*bytesPerSample))
	binary.LittleEndian.PutUint16(header[34:36], uint16(depth))

	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(dataSize))

	if _, err := f.Write(header); err != nil {
		return err
	}
	if err := writePCM(f, buf.PCM.Data, depth); err != nil {
		return err
	}
	if err := writeIdentityChunk(f, id); err != nil {
		return err
	}
	if loop != nil {
		if err := writeSmplChunk(f, rate, id.Note, loop); err != nil {
			return err
		}
	}
	return nil
}

const (
	fmtChunkBytes = 16
	// smpl chunk body: 9 fixed uint32 fields plus one loop descriptor of 6.
	smplChunkBytes = 9*4 + 6*4
)

// writePCM writes interleaved samples little-endian at the given depth.
func writePCM(f *os.File, data []int, depth int) error {
	bytesPerSample := depth / 8
	out := make([]byte, len(data)*bytesPerSample)
	for i, s := range data {
		off := i * bytesPerSample
		switch depth {
		case 16:
			binary.LittleEndian.PutUint16(out[off:], uint16(int16(s)))
		case 24:
			v := uint32(s)
			out[off] = byte(v)
			out[off+1] = byte(v >> 8)
			out[off+2] = byte(v >> 16)
		case 32:
			binary.LittleEndian.PutUint32(out[off:], uint32(int32(s)))
		default:
			return fmt.Errorf("unsupported bit depth %d", depth)
		}
	}
	_, err := f.Write(out)
	return err
}

func writeIdentityChunk(f *os.File, id Identity) error {
	chunk := make([]byte, 12)
	copy(chunk[0:4], IdentityChunkID[:])
	binary.LittleEndian.PutUint32(chunk[4:8], 4)
	payload := id.Bytes()
	copy(chunk[8:12], payload[:])
	_, err := f.Write(chunk)
	return err
}

// writeSmplChunk writes a standard sampler chunk with one forward loop so
// hardware and software samplers pick up the loop without the mapping file.
func writeSmplChunk(f *os.File, rate int, unityNote uint8, loop *dsp.LoopPoint) error {
	chunk := make([]byte, 8+smplChunkBytes)
	copy(chunk[0:4], "smpl")
	binary.LittleEndian.PutUint32(chunk[4:8], smplChunkBytes)

	b := chunk[8:]
	binary.LittleEndian.PutUint32(b[0:4], 0)                          // manufacturer
	binary.LittleEndian.PutUint32(b[4:8], 0)                          // product
	binary.LittleEndian.PutUint32(b[8:12], uint32(1e9/float64(rate))) // sample period, ns
	binary.LittleEndian.PutUint32(b[12:16], uint32(unityNote))
	binary.LittleEndian.PutUint32(b[16:20], 0) // pitch fraction
	binary.LittleEndian.PutUint32(b[20:24], 0) // SMPTE format
	binary.LittleEndian.PutUint32(b[24:28], 0) // SMPTE offset
	binary.LittleEndian.PutUint32(b[28:32], 1) // one sample loop
	binary.LittleEndian.PutUint32(b[32:36], 0) // sampler data

	l := b[36:]
	binary.LittleEndian.PutUint32(l[0:4], 0)  // cue point id
	binary.LittleEndian.PutUint32(l[4:8], 0)  // forward loop
	binary.LittleEndian.PutUint32(l[8:12], uint32(loop.Start))
	binary.LittleEndian.PutUint32(l[12:16], uint32(loop.End-1)) // inclusive end frame
	binary.LittleEndian.PutUint32(l[16:20], 0)                  // fraction
	binary.LittleEndian.PutUint32(l[20:24], 0)                  // infinite

	_, err := f.Write(chunk)
	return err
}

// EnsureDir creates the samples directory for a multisample.
func EnsureDir(root, multisample string) (string, error) {
	dir := filepath.Join(root, multisample)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create sample dir: %w", err)
	}
	return dir, nil
}
