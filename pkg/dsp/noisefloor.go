// Package dsp implements the post-processing stages of the sampling
// pipeline: noise-floor calibration, silence trimming and loop detection
// with crossfade. All functions are deterministic; transforms return new
// buffers and never mutate their input.
package dsp

import (
	"fmt"
	"math"

	"github.com/james-see/autosampler/pkg/capture"
)

const (
	// epsilon keeps the dB conversion away from log10(0).
	epsilon = 1e-10
	// DefaultMarginDB is added to the measured floor in auto mode so
	// measurement variance does not misclassify quiet passages as silence.
	DefaultMarginDB = 0.1
	// DefaultMeasurementCount is the number of calibration windows.
	DefaultMeasurementCount = 5
	// DefaultMeasurementSeconds is the length of one calibration window.
	DefaultMeasurementSeconds = 2.0

	// unreachableFloorDB marks a degenerate calibration: a real room floor
	// never measures this low, only a dead or muted input does.
	unreachableFloorDB = -150.0
)

// Mode selects how the silence threshold is obtained.
type Mode string

const (
	// ModeAuto derives the threshold from live calibration.
	ModeAuto Mode = "auto"
	// ModeManual uses a fixed configured threshold and skips calibration.
	ModeManual Mode = "manual"
)

// NoiseFloor is the calibration result reused for every cell of a batch.
type NoiseFloor struct {
	MeasuredDB float64
	MarginDB   float64
	Mode       Mode
}

// Threshold returns the effective silence threshold in dB.
func (n NoiseFloor) Threshold() float64 {
	if n.Mode == ModeManual {
		return n.MeasuredDB
	}
	return n.MeasuredDB + n.MarginDB
}

// Manual returns a NoiseFloor with a fixed configured threshold.
func Manual(thresholdDB float64) NoiseFloor {
	return NoiseFloor{MeasuredDB: thresholdDB, Mode: ModeManual}
}

// Recorder records a timed window from the live device. capture.Engine
// satisfies it.
type Recorder interface {
	Record(seconds float64) (*capture.Buffer, error)
}

// Calibrate records count silence windows of windowSeconds each while the
// instrument emits no sound and returns the mean level plus margin as the
// floor estimate. The instrument must be idle for the whole measurement.
func Calibrate(rec Recorder, count int, windowSeconds, marginDB float64) (NoiseFloor, error) {
	if count <= 0 {
		count = DefaultMeasurementCount
	}
	if windowSeconds <= 0 {
		windowSeconds = DefaultMeasurementSeconds
	}
	sum := 0.0
	for i := 0; i < count; i++ {
		buf, err := rec.Record(windowSeconds)
		if err != nil {
			return NoiseFloor{}, fmt.Errorf("calibration window %d: %w", i+1, err)
		}
		sum += BufferDB(buf)
	}
	measured := sum / float64(count)
	if measured <= unreachableFloorDB {
		return NoiseFloor{}, fmt.Errorf("%w: measured %.1f dB", ErrSilenceThresholdUnreachable, measured)
	}
	return NoiseFloor{MeasuredDB: measured, MarginDB: marginDB, Mode: ModeAuto}, nil
}

// BufferDB returns the RMS level of the whole buffer in dB full scale.
func BufferDB(buf *capture.Buffer) float64 {
	return DB(RMS(buf.PCM.Data, buf.BitDepth))
}

// DB converts a normalized RMS value to decibels.
func DB(rms float64) float64 {
	return 20 * math.Log10(rms+epsilon)
}

// RMS computes the root mean square of interleaved integer samples,
// normalized to [-1, 1] by the bit depth.
func RMS(data []int, bitDepth int) float64 {
	if len(data) == 0 {
		return 0
	}
	fullScale := float64(int64(1) << uint(bitDepth-1))
	sum := 0.0
	for _, s := range data {
		v := float64(s) / fullScale
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(data)))
}
