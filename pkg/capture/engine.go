package capture

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gordonklaus/portaudio"
)

// DefaultFramesPerBuffer is the portaudio period size. At 44.1 kHz this
// bounds the trigger-to-capture latency to about 12 ms.
const DefaultFramesPerBuffer = 512

// Config describes the capture device to open.
type Config struct {
	SampleRate      int
	BitDepth        int    // 16, 24 or 32
	ChannelRange    string // logical 1-based inclusive range, e.g. "3-4"
	DeviceName      string // substring match, empty selects the default input
	FramesPerBuffer int    // 0 uses DefaultFramesPerBuffer
}

// Engine owns one open input device. Setup must succeed before Record is
// called; Teardown must run exactly once when the batch ends.
type Engine struct {
	cfg    Config
	stream *portaudio.Stream
	in     []int32

	device      *portaudio.DeviceInfo
	chanOffset  int // first device channel to keep, 0-based
	chanCount   int // channels kept per frame
	devChannels int // channels opened on the device
	initialized bool
}

// ParseChannelRange maps a 1-based inclusive logical range like "3-4" (or a
// single channel like "1") to a 0-based device channel offset and count.
func ParseChannelRange(s string) (offset, count int, err error) {
	parse := func(field string) (int, error) {
		n, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil || n < 1 {
			return 0, fmt.Errorf("invalid channel %q", field)
		}
		return n, nil
	}
	lo, hi := s, s
	if i := strings.IndexByte(s, '-'); i >= 0 {
		lo, hi = s[:i], s[i+1:]
	}
	start, err := parse(lo)
	if err != nil {
		return 0, 0, err
	}
	end, err := parse(hi)
	if err != nil {
		return 0, 0, err
	}
	if end < start {
		return 0, 0, fmt.Errorf("channel range %q ends before it starts", s)
	}
	return start - 1, end - start + 1, nil
}

// NewEngine returns an unopened engine for cfg.
func NewEngine(cfg Config) *Engine {
	if cfg.FramesPerBuffer == 0 {
		cfg.FramesPerBuffer = DefaultFramesPerBuffer
	}
	return &Engine{cfg: cfg}
}

// Setup opens the configured device. On any failure no partial state is
// retained and Teardown is not required.
func (e *Engine) Setup() error {
	switch e.cfg.BitDepth {
	case 16, 24, 32:
	default:
		return fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, e.cfg.BitDepth)
	}
	offset, count, err := ParseChannelRange(e.cfg.ChannelRange)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrChannelOutOfRange, err)
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	cleanup := func() { portaudio.Terminate() }

	dev, err := findInputDevice(e.cfg.DeviceName)
	if err != nil {
		cleanup()
		return err
	}
	devChannels := offset + count
	if devChannels > dev.MaxInputChannels {
		cleanup()
		return fmt.Errorf("%w: need channels %d-%d, device %q has %d inputs",
			ErrChannelOutOfRange, offset+1, offset+count, dev.Name, dev.MaxInputChannels)
	}

	in := make([]int32, e.cfg.FramesPerBuffer*devChannels)
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: devChannels,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(e.cfg.SampleRate),
		FramesPerBuffer: e.cfg.FramesPerBuffer,
	}
	if err := portaudio.IsFormatSupported(params, in); err != nil {
		cleanup()
		return fmt.Errorf("%w: %d Hz on %q: %v", ErrUnsupportedSampleRate, e.cfg.SampleRate, dev.Name, err)
	}
	stream, err := portaudio.OpenStream(params, in)
	if err != nil {
		cleanup()
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	e.stream = stream
	e.in = in
	e.device = dev
	e.chanOffset = offset
	e.chanCount = count
	e.devChannels = devChannels
	e.initialized = true
	return nil
}

// Teardown releases the device. Safe to call once after a successful Setup,
// on every exit path of the batch run.
func (e *Engine) Teardown() {
	if !e.initialized {
		return
	}
	e.stream.Close()
	portaudio.Terminate()
	e.initialized = false
}

// Record captures exactly seconds*sampleRate frames across the configured
// channel slice and blocks until done. The read loop runs on a background
// goroutine; Record joins it before returning, so the caller sees a plain
// synchronous call and exclusively owns the returned buffer.
func (e *Engine) Record(seconds float64) (*Buffer, error) {
	if !e.initialized {
		return nil, fmt.Errorf("%w: engine not set up", ErrCaptureFailure)
	}
	type result struct {
		buf *Buffer
		err error
	}
	done := make(chan result, 1)
	go func() {
		buf, err := e.recordLoop(seconds, nil)
		done <- result{buf, err}
	}()
	r := <-done
	return r.buf, r.err
}

// RecordWhile captures like Record while invoking tick(i) as the recording
// crosses each of steps boundaries spaced stepSeconds apart; tick(0) fires
// as capture begins. The callback runs between device reads on the capture
// goroutine, so a tick that sends MIDI keeps control-step timing aligned
// with the buffer position to within one period.
func (e *Engine) RecordWhile(stepSeconds float64, steps int, tick func(step int) error) (*Buffer, error) {
	if !e.initialized {
		return nil, fmt.Errorf("%w: engine not set up", ErrCaptureFailure)
	}
	stepFrames := int(stepSeconds * float64(e.cfg.SampleRate))
	next := 0
	cadence := func(framesDone int) error {
		for next < steps && framesDone >= next*stepFrames {
			if err := tick(next); err != nil {
				return err
			}
			next++
		}
		return nil
	}
	return e.recordLoop(stepSeconds*float64(steps), cadence)
}

// recordLoop runs the blocking read loop. cadence, when non-nil, is called
// with the frame count collected so far before every device read.
func (e *Engine) recordLoop(seconds float64, cadence func(framesDone int) error) (*Buffer, error) {
	want := int(seconds * float64(e.cfg.SampleRate))
	data := make([]int, 0, want*e.chanCount)
	shift := uint(32 - e.cfg.BitDepth)

	if err := e.stream.Start(); err != nil {
		return nil, fmt.Errorf("%w: start: %v", ErrCaptureFailure, err)
	}
	defer e.stream.Stop()

	frames := 0
	for frames < want {
		if cadence != nil {
			if err := cadence(frames); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrCaptureFailure, err)
			}
		}
		if err := e.stream.Read(); err != nil {
			return nil, fmt.Errorf("%w: read: %v", ErrCaptureFailure, err)
		}
		take := e.cfg.FramesPerBuffer
		if frames+take > want {
			take = want - frames
		}
		for f := 0; f < take; f++ {
			base := f * e.devChannels
			for c := 0; c < e.chanCount; c++ {
				data = append(data, int(e.in[base+e.chanOffset+c]>>shift))
			}
		}
		frames += take
	}
	return NewBuffer(data, e.cfg.SampleRate, e.chanCount, e.cfg.BitDepth), nil
}

// findInputDevice returns the first input device whose name contains name,
// or the default input device when name is empty.
func findInputDevice(name string) (*portaudio.DeviceInfo, error) {
	if name == "" {
		dev, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("%w: no default input: %v", ErrDeviceUnavailable, err)
		}
		return dev, nil
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	for _, dev := range devices {
		if dev.MaxInputChannels > 0 && strings.Contains(strings.ToLower(dev.Name), strings.ToLower(name)) {
			return dev, nil
		}
	}
	return nil, fmt.Errorf("%w: no input device matches %q", ErrDeviceUnavailable, name)
}

// ListDevices returns the names and input channel counts of all devices
// with capture capability. It manages its own portaudio lifetime and can be
// called before Setup.
func ListDevices() ([]string, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	defer portaudio.Terminate()
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	var names []string
	for _, dev := range devices {
		if dev.MaxInputChannels > 0 {
			names = append(names, fmt.Sprintf("%s (%d in)", dev.Name, dev.MaxInputChannels))
		}
	}
	return names, nil
}
