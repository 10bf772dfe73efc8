package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"voicenotes/encoder"
)

func tone(samples int, amp int16) []byte {
	pcm := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := amp
		if i%2 == 1 {
			v = -amp
		}
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	return pcm
}

func TestIsBluetooth(t *testing.T) {
	for _, tt := range []struct {
		name string
		want bool
	}{
		{"AirPods Pro", true},
		{"Jabra Evolve2", true},
		{"Headset (BT)", true},
		{"Headset [bt]", true},
		{"BT Speaker", true},
		{"Mic bt", true},
		{"Subtle Mic", false},
		{"HDMI Output (btx)", false},
		{"Built-in Audio Analog Stereo", false},
		{"USB Microphone", false},
	} {
		if got := IsBluetooth(tt.name); got != tt.want {
			t.Errorf("IsBluetooth(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestLevel(t *testing.T) {
	if got := Level(nil); got != 0 {
		t.Errorf("Level(nil) = %v", got)
	}
	if got := Level(tone(100, 0)); got != 0 {
		t.Errorf("silence level = %v", got)
	}
	got := Level(tone(100, 16384))
	if got < 0.49 || got > 0.51 {
		t.Errorf("half-scale level = %v, want ~0.5", got)
	}
}

func TestClipFilename(t *testing.T) {
	c := Clip{Data: []byte{1}, Format: "flac"}
	if c.Filename() != "recording.flac" {
		t.Errorf("Filename = %q", c.Filename())
	}
	if c.Empty() || !(Clip{}).Empty() {
		t.Error("Empty mismatch")
	}
}

func TestFindDevice(t *testing.T) {
	ctx := &listContext{devices: []DeviceInfo{
		{ID: "1", Name: "Built-in Microphone"},
		{ID: "2", Name: "USB Mic"},
	}}
	dev, err := FindDevice(ctx, "usb")
	if err != nil || dev.ID != "2" {
		t.Fatalf("FindDevice(usb) = %v, %v", dev, err)
	}
	dev, err = FindDevice(ctx, "Built-in Microphone")
	if err != nil || dev.ID != "1" {
		t.Fatalf("exact match = %v, %v", dev, err)
	}
	if dev, err := FindDevice(ctx, ""); dev != nil || err != nil {
		t.Errorf("empty name = %v, %v, want default", dev, err)
	}
	if _, err := FindDevice(ctx, "webcam"); err == nil {
		t.Error("expected error for unknown device")
	}
}

func TestRenderDeviceList(t *testing.T) {
	var buf bytes.Buffer
	renderDeviceList(&buf, []DeviceInfo{{Name: "A"}, {Name: "AirPods"}}, 1)
	out := buf.String()
	if !strings.Contains(out, "▶ AirPods") {
		t.Errorf("cursor not on second device: %q", out)
	}
	if !strings.Contains(out, "bluetooth") {
		t.Error("expected bluetooth tag")
	}
}

func TestNewFakeContextRejectsNonWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.wav")
	os.WriteFile(path, []byte("not a wav"), 0o644)
	if _, err := NewFakeContext(path, false); err == nil {
		t.Error("expected error")
	}
}

func TestMicrophoneCapturesClip(t *testing.T) {
	pcm := tone(encoder.SampleRate/2, 1000)
	mic := NewMicrophone(NewFakeContextPCM(pcm, false), nil, encoder.FormatWAV)
	var levels atomic.Int32
	mic.OnLevel(func(float64) { levels.Add(1) })

	if err := mic.StartCapture(); !errors.Is(err, ErrNotOpened) {
		t.Fatalf("StartCapture before access = %v, want ErrNotOpened", err)
	}
	if err := mic.RequestAccess(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := mic.StartCapture(); err != nil {
		t.Fatal(err)
	}
	if err := mic.StartCapture(); !errors.Is(err, ErrCaptureRunning) {
		t.Errorf("second StartCapture = %v", err)
	}
	clip, err := mic.StopCapture()
	if err != nil {
		t.Fatal(err)
	}
	if clip.Format != encoder.FormatWAV || clip.Duration != 500*time.Millisecond {
		t.Errorf("clip = %s %v", clip.Format, clip.Duration)
	}
	if len(clip.Data) != WAVHeaderSize+len(pcm) {
		t.Errorf("clip is %d bytes, want %d", len(clip.Data), WAVHeaderSize+len(pcm))
	}
	if levels.Load() == 0 {
		t.Error("level callback never fired")
	}
	if mic.LastStats().Frames != encoder.SampleRate/2 {
		t.Errorf("LastStats.Frames = %d", mic.LastStats().Frames)
	}
	if _, err := mic.StopCapture(); !errors.Is(err, ErrNotCapturing) {
		t.Errorf("second StopCapture = %v", err)
	}

	// the device stays open; a second session starts clean
	if err := mic.StartCapture(); err != nil {
		t.Fatal(err)
	}
	clip2, err := mic.StopCapture()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(clip.Data, clip2.Data) {
		t.Error("replayed clip differs")
	}
	mic.Close()
}

func TestMicrophoneAccessError(t *testing.T) {
	ctx := NewFakeContextPCM(nil, false)
	ctx.CaptureErr = errors.New("device busy")
	mic := NewMicrophone(ctx, &DeviceInfo{Name: "USB Mic"}, encoder.FormatFLAC)
	err := mic.RequestAccess(context.Background())
	if err == nil || !strings.Contains(err.Error(), "USB Mic") {
		t.Fatalf("RequestAccess = %v", err)
	}
}

func TestMicrophoneRealtimeFake(t *testing.T) {
	pcm := tone(4096, 500)
	ctx := NewFakeContextPCM(pcm, true)
	capture, err := ctx.NewCapture(nil, CaptureConfig{})
	if err != nil {
		t.Fatal(err)
	}
	fc := capture.(*FakeCapture)
	var got atomic.Int64
	fc.SetCallback(func(data []byte, _ uint32) { got.Add(int64(len(data))) })
	fc.Start()
	select {
	case <-fc.AudioDone():
	case <-time.After(2 * time.Second):
		t.Fatal("audio never finished")
	}
	fc.Stop()
	if got.Load() < int64(len(pcm)) {
		t.Errorf("delivered %d bytes, want at least %d", got.Load(), len(pcm))
	}
}

type listContext struct {
	devices []DeviceInfo
}

func (l *listContext) Devices() ([]DeviceInfo, error) { return l.devices, nil }
func (l *listContext) NewCapture(*DeviceInfo, CaptureConfig) (CaptureDevice, error) {
	return nil, errors.New("not supported")
}
func (l *listContext) Close() {}

func TestGainPCMClips(t *testing.T) {
	out := gainPCM([]int16{100, -100, 10000, -10000}, 8)
	want := []int16{800, -800, 32767, -32768}
	for i, w := range want {
		if got := int16(binary.LittleEndian.Uint16(out[i*2:])); got != w {
			t.Errorf("sample %d = %d, want %d", i, got, w)
		}
	}
}

func TestDeviceLabel(t *testing.T) {
	if got := deviceLabel(nil); got != DefaultDeviceName {
		t.Errorf("deviceLabel(nil) = %q", got)
	}
	if got := deviceLabel(&DeviceInfo{ID: "x", Name: "USB Mic"}); got != "USB Mic" {
		t.Errorf("deviceLabel = %q", got)
	}
}

func TestCallbackSlot(t *testing.T) {
	var s callbackSlot
	if s.deliver([]byte{0, 0}, 1) {
		t.Error("deliver without a callback should report false")
	}
	var frames uint32
	s.SetCallback(func(_ []byte, n uint32) { frames += n })
	if !s.deliver([]byte{0, 0, 0, 0}, 2) || frames != 2 {
		t.Errorf("frames = %d", frames)
	}
	s.ClearCallback()
	if s.deliver([]byte{0, 0}, 1) {
		t.Error("deliver after ClearCallback should report false")
	}
}
