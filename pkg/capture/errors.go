package capture

import "errors"

var (
	// ErrDeviceUnavailable means no input device matched the configuration
	// or the device could not be opened.
	ErrDeviceUnavailable = errors.New("audio device unavailable")
	// ErrUnsupportedSampleRate means the device rejected the requested rate.
	ErrUnsupportedSampleRate = errors.New("unsupported sample rate")
	// ErrUnsupportedBitDepth means the requested bit depth is not 16, 24 or 32.
	ErrUnsupportedBitDepth = errors.New("unsupported bit depth")
	// ErrChannelOutOfRange means the configured channel range maps outside
	// the device's available input channels.
	ErrChannelOutOfRange = errors.New("channel range outside device channels")
	// ErrCaptureFailure means a recording did not complete.
	ErrCaptureFailure = errors.New("capture failure")
)
