package dsp

import "errors"

var (
	// ErrSilenceThresholdUnreachable means calibration measured a degenerate
	// floor (e.g. an all-zero signal) and no usable threshold exists.
	ErrSilenceThresholdUnreachable = errors.New("silence threshold unreachable")
	// ErrBufferSilent means no window of the buffer exceeded the silence
	// threshold; the buffer is returned untrimmed.
	ErrBufferSilent = errors.New("buffer entirely below silence threshold")
	// ErrLoopDetectionFailed means no candidate loop scored below the
	// quality floor; the sample should be exported unlooped.
	ErrLoopDetectionFailed = errors.New("no acceptable loop candidate")
)
