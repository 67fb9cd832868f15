package dsp

import (
	"github.com/james-see/autosampler/pkg/capture"
)

// trimWindowFrames is the RMS envelope window for boundary detection,
// about 6 ms at 44.1 kHz. Trim boundaries land on window edges, which is
// what makes trimming idempotent.
const trimWindowFrames = 256

// TrimSilence removes leading and trailing regions whose short-window RMS
// envelope stays at or below thresholdDB. The result is a new buffer of at
// least minFrames frames. When every window is below the threshold the
// original buffer is returned together with ErrBufferSilent so the caller
// can log the anomaly and keep the capture.
func TrimSilence(buf *capture.Buffer, thresholdDB float64, minFrames int) (*capture.Buffer, error) {
	frames := buf.Frames()
	if frames == 0 {
		return buf, ErrBufferSilent
	}

	first, last := -1, -1
	for start := 0; start < frames; start += trimWindowFrames {
		end := start + trimWindowFrames
		if end > frames {
			end = frames
		}
		db := windowDB(buf, start, end)
		if db > thresholdDB {
			if first < 0 {
				first = start
			}
			last = end
		}
	}
	if first < 0 {
		return buf, ErrBufferSilent
	}

	// Hold the trim floor by growing the end boundary into the tail.
	if last-first < minFrames {
		last = first + minFrames
		if last > frames {
			last = frames
		}
		if first > frames-minFrames {
			first = frames - minFrames
			if first < 0 {
				first = 0
			}
		}
	}
	return buf.Slice(first, last), nil
}

// windowDB returns the dB level of frames [start, end) across all channels.
func windowDB(buf *capture.Buffer, start, end int) float64 {
	ch := buf.Channels()
	return DB(RMS(buf.PCM.Data[start*ch:end*ch], buf.BitDepth))
}
