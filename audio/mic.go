package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"voicenotes/encoder"
)

var (
	ErrNotOpened      = errors.New("microphone not opened")
	ErrCaptureRunning = errors.New("capture already running")
	ErrNotCapturing   = errors.New("capture not running")
)

// Microphone turns a capture Context into the start/stop capability the
// recorder drives: each capture session is streamed through an encoder and
// handed back as one Clip.
type Microphone struct {
	ctx    Context
	device *DeviceInfo
	format string

	mu      sync.Mutex
	capture CaptureDevice
	stream  *encoder.Stream
	onLevel func(level float64)
	last    encoder.Stats
}

func NewMicrophone(ctx Context, device *DeviceInfo, format string) *Microphone {
	return &Microphone{ctx: ctx, device: device, format: format}
}

// OnLevel registers fn to receive the RMS level of every captured buffer.
// It runs on the audio thread.
func (m *Microphone) OnLevel(fn func(level float64)) {
	m.mu.Lock()
	m.onLevel = fn
	m.mu.Unlock()
}

// RequestAccess opens the capture device. A missing or refused source
// surfaces here rather than on StartCapture.
func (m *Microphone) RequestAccess(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.capture != nil {
		return nil
	}
	capture, err := m.ctx.NewCapture(m.device, CaptureConfig{
		SampleRate: encoder.SampleRate,
		Channels:   encoder.Channels,
	})
	if err != nil {
		return fmt.Errorf("opening %s: %w", deviceLabel(m.device), err)
	}
	m.capture = capture
	return nil
}

func (m *Microphone) StartCapture() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.capture == nil {
		return ErrNotOpened
	}
	if m.stream != nil {
		return ErrCaptureRunning
	}
	stream, err := encoder.NewStream(m.format)
	if err != nil {
		return err
	}
	onLevel := m.onLevel
	m.capture.SetCallback(func(data []byte, _ uint32) {
		if len(data) == 0 {
			return
		}
		stream.Feed(data)
		if onLevel != nil {
			onLevel(Level(data))
		}
	})
	if err := m.capture.Start(); err != nil {
		m.capture.ClearCallback()
		stream.Close()
		return fmt.Errorf("starting capture on %s: %w", m.capture.DeviceName(), err)
	}
	m.stream = stream
	return nil
}

func (m *Microphone) StopCapture() (Clip, error) {
	m.mu.Lock()
	stream, capture := m.stream, m.capture
	m.stream = nil
	m.mu.Unlock()
	if stream == nil {
		return Clip{}, ErrNotCapturing
	}

	capture.Stop()
	capture.ClearCallback()
	data, stats, err := stream.Close()
	if err != nil {
		return Clip{}, fmt.Errorf("encoding clip: %w", err)
	}

	m.mu.Lock()
	m.last = stats
	m.mu.Unlock()
	return Clip{Data: data, Format: stats.Format, Duration: stats.Duration()}, nil
}

// LastStats describes the most recently finished clip.
func (m *Microphone) LastStats() encoder.Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

func (m *Microphone) DeviceName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.capture != nil {
		return m.capture.DeviceName()
	}
	return deviceLabel(m.device)
}

// Close stops any running capture and releases the device. A later
// RequestAccess reopens it.
func (m *Microphone) Close() {
	m.mu.Lock()
	capture, stream := m.capture, m.stream
	m.capture, m.stream = nil, nil
	m.mu.Unlock()
	if capture == nil {
		return
	}
	capture.ClearCallback()
	capture.Close()
	if stream != nil {
		stream.Close()
	}
}
