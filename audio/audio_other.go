//go:build !linux

package audio

import (
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

type malgoContext struct {
	ctx *malgo.AllocatedContext
}

func NewContext() (Context, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init miniaudio: %w", err)
	}
	return &malgoContext{ctx: ctx}, nil
}

// Device IDs are the raw miniaudio ID bytes, hex encoded so they survive
// config files and flags.
func (m *malgoContext) Devices() ([]DeviceInfo, error) {
	infos, err := m.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("list capture devices: %w", err)
	}
	devices := make([]DeviceInfo, 0, len(infos))
	for _, d := range infos {
		devices = append(devices, DeviceInfo{ID: hex.EncodeToString(d.ID.Pointer()[:]), Name: d.Name()})
	}
	return devices, nil
}

func decodeDeviceID(id string) (*malgo.DeviceID, error) {
	raw, err := hex.DecodeString(id)
	if err != nil {
		return nil, fmt.Errorf("invalid device ID %q: %w", id, err)
	}
	var devID malgo.DeviceID
	copy(devID[:], raw)
	return &devID, nil
}

func (m *malgoContext) NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error) {
	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = config.Channels
	cfg.SampleRate = config.SampleRate
	if device != nil {
		id, err := decodeDeviceID(device.ID)
		if err != nil {
			return nil, err
		}
		cfg.Capture.DeviceID = id.Pointer()
	}

	c := &malgoCapture{name: deviceLabel(device)}
	dev, err := malgo.InitDevice(m.ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(_, data []byte, frames uint32) { c.deliver(data, frames) },
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", c.name, err)
	}
	c.device = dev
	return c, nil
}

func (m *malgoContext) Close() {
	m.ctx.Uninit()
	m.ctx.Free()
}

type malgoCapture struct {
	callbackSlot

	name   string
	device *malgo.Device

	mu      sync.Mutex
	running bool
}

func (c *malgoCapture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}
	if err := c.device.Start(); err != nil {
		return fmt.Errorf("start %s: %w", c.name, err)
	}
	c.running = true
	return nil
}

func (c *malgoCapture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		c.device.Stop()
		c.running = false
	}
}

func (c *malgoCapture) DeviceName() string { return c.name }

func (c *malgoCapture) Close() {
	c.Stop()
	c.device.Uninit()
}
