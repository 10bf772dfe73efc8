//go:build linux

package audio

import (
	"fmt"
	"sync"

	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"
)

const (
	// PulseAudio sources report quietly; both the stream volume and a
	// software gain lift them before encoding.
	pulseSourceVolume = 3
	pulseSoftwareGain = 8
	pulseLatencySec   = 0.05
)

type pulseContext struct {
	client *pulse.Client
}

func NewContext() (Context, error) {
	c, err := pulse.NewClient()
	if err != nil {
		return nil, fmt.Errorf("connect to pulseaudio: %w", err)
	}
	return &pulseContext{client: c}, nil
}

func (p *pulseContext) Devices() ([]DeviceInfo, error) {
	sources, err := p.client.ListSources()
	if err != nil {
		return nil, fmt.Errorf("list pulseaudio sources: %w", err)
	}
	devices := make([]DeviceInfo, 0, len(sources))
	for _, src := range sources {
		devices = append(devices, DeviceInfo{ID: src.ID(), Name: src.Name()})
	}
	return devices, nil
}

func (p *pulseContext) NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error) {
	return &pulseCapture{client: p.client, device: device, rate: int(config.SampleRate)}, nil
}

func (p *pulseContext) Close() { p.client.Close() }

// pulseCapture records mono 16-bit PCM from one source. The record stream is
// created on Start and torn down on Stop, so a capture can be reused.
type pulseCapture struct {
	callbackSlot

	client *pulse.Client
	device *DeviceInfo
	rate   int

	mu     sync.Mutex
	stream *pulse.RecordStream
}

func (c *pulseCapture) options() []pulse.RecordOption {
	opts := []pulse.RecordOption{
		pulse.RecordMono,
		pulse.RecordSampleRate(c.rate),
		pulse.RecordLatency(pulseLatencySec),
		pulse.RecordRawOption(func(r *proto.CreateRecordStream) {
			r.ChannelVolumes = proto.ChannelVolumes{uint32(proto.VolumeNorm) * pulseSourceVolume}
		}),
	}
	if c.device == nil {
		return opts
	}
	if src, err := c.client.SourceByID(c.device.ID); err == nil && src != nil {
		opts = append(opts, pulse.RecordSource(src))
	}
	return opts
}

func (c *pulseCapture) write(buf []int16) (int, error) {
	if len(buf) > 0 {
		c.deliver(gainPCM(buf, pulseSoftwareGain), uint32(len(buf)))
	}
	return len(buf), nil
}

func (c *pulseCapture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream != nil {
		return nil
	}
	stream, err := c.client.NewRecord(pulse.Int16Writer(c.write), c.options()...)
	if err != nil {
		return fmt.Errorf("record from %s: %w", c.DeviceName(), err)
	}
	stream.Start()
	c.stream = stream
	return nil
}

func (c *pulseCapture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil {
		return
	}
	c.stream.Stop()
	c.stream.Close()
	c.stream = nil
}

func (c *pulseCapture) Close() { c.Stop() }

func (c *pulseCapture) DeviceName() string { return deviceLabel(c.device) }
