package dsp

import (
	"fmt"
	"math"

	"github.com/james-see/autosampler/pkg/capture"
)

// Search geometry, as fractions of the trimmed buffer. The start candidate
// region excludes the attack transient, the end candidate sits before the
// release tail.
const (
	searchStartLo = 0.40
	searchStartHi = 0.70
	searchEnd     = 0.90

	// compareFrames is the seam comparison window length.
	compareFrames = 2048
	// searchStride is the candidate spacing. Fixed stride keeps detection
	// deterministic for identical input.
	searchStride = 64
)

// DefaultQualityFloor is the maximum acceptable normalized seam difference.
// Sustained tones score well below this; captures with no steady state
// exceed it and are exported unlooped.
const DefaultQualityFloor = 0.25

// Curve selects the crossfade blend shape.
type Curve string

const (
	// CurveEqualPower blends with sin/cos gains, constant perceived level.
	CurveEqualPower Curve = "equal_power"
	// CurveLinear blends with complementary linear gains.
	CurveLinear Curve = "linear"
)

// LoopPoint describes a seamless loop region within a sample.
type LoopPoint struct {
	Start        int // first frame of the loop
	End          int // frame after the last loop frame
	CrossfadeLen int // frames blended at the seam
}

// LoopOptions tunes detection and crossfade.
type LoopOptions struct {
	CrossfadePercent float64 // of loop length, blended at the seam
	Curve            Curve
	QualityFloor     float64 // 0 uses DefaultQualityFloor
}

// DetectLoop finds the loop start in the steady-state region whose seam
// best matches the fixed end candidate. The search is a deterministic
// stride scan; identical input and options always select the same loop.
// Returns ErrLoopDetectionFailed when the best score misses the quality
// floor.
func DetectLoop(buf *capture.Buffer, opts LoopOptions) (LoopPoint, error) {
	frames := buf.Frames()
	end := int(float64(frames) * searchEnd)
	lo := int(float64(frames) * searchStartLo)
	hi := int(float64(frames) * searchStartHi)
	if end-hi < compareFrames || lo < compareFrames {
		return LoopPoint{}, fmt.Errorf("%w: buffer too short (%d frames)", ErrLoopDetectionFailed, frames)
	}

	floor := opts.QualityFloor
	if floor == 0 {
		floor = DefaultQualityFloor
	}

	bestStart := -1
	bestScore := math.Inf(1)
	for start := lo; start <= hi; start += searchStride {
		score := seamScore(buf, start, end)
		if score < bestScore {
			bestScore = score
			bestStart = start
		}
	}
	if bestStart < 0 || bestScore > floor {
		return LoopPoint{}, fmt.Errorf("%w: best score %.3f above floor %.3f", ErrLoopDetectionFailed, bestScore, floor)
	}

	loopLen := end - bestStart
	fade := int(float64(loopLen) * opts.CrossfadePercent / 100)
	if fade > bestStart {
		fade = bestStart // fade source must exist before the loop start
	}
	return LoopPoint{Start: bestStart, End: end, CrossfadeLen: fade}, nil
}

// seamScore measures the discontinuity between the windows immediately
// preceding the candidate start and end: the mean absolute difference,
// normalized by the mean absolute level so the score is amplitude
// independent. Lower is better.
func seamScore(buf *capture.Buffer, start, end int) float64 {
	ch := buf.Channels()
	data := buf.PCM.Data
	var diff, level float64
	for i := 0; i < compareFrames*ch; i++ {
		a := float64(data[(start-compareFrames)*ch+i])
		b := float64(data[(end-compareFrames)*ch+i])
		diff += math.Abs(a - b)
		level += (math.Abs(a) + math.Abs(b)) / 2
	}
	if level == 0 {
		return math.Inf(1)
	}
	return diff / level
}

// ApplyCrossfade returns a copy of buf with the region before the loop end
// blended toward the region before the loop start, so playback wrapping
// from End to Start crosses the seam without a click.
func ApplyCrossfade(buf *capture.Buffer, lp LoopPoint, curve Curve) *capture.Buffer {
	out := buf.Slice(0, buf.Frames())
	if lp.CrossfadeLen <= 0 {
		return out
	}
	ch := out.Channels()
	data := out.PCM.Data
	n := lp.CrossfadeLen
	for i := 0; i < n; i++ {
		t := float64(i+1) / float64(n)
		gainIn, gainOut := fadeGains(t, curve)
		dst := (lp.End - n + i) * ch
		src := (lp.Start - n + i) * ch
		for c := 0; c < ch; c++ {
			blended := float64(data[dst+c])*gainOut + float64(buf.PCM.Data[src+c])*gainIn
			data[dst+c] = clampToDepth(blended, out.BitDepth)
		}
	}
	return out
}

// fadeGains returns the incoming and outgoing gains at progress t in (0,1].
func fadeGains(t float64, curve Curve) (gainIn, gainOut float64) {
	if curve == CurveLinear {
		return t, 1 - t
	}
	return math.Sin(t * math.Pi / 2), math.Cos(t * math.Pi / 2)
}

// clampToDepth clips v to the signed range of the given bit depth.
func clampToDepth(v float64, bitDepth int) int {
	max := float64(int64(1)<<uint(bitDepth-1)) - 1
	min := -float64(int64(1) << uint(bitDepth-1))
	if v > max {
		v = max
	} else if v < min {
		v = min
	}
	return int(math.Round(v))
}
