package audio

import (
	"encoding/binary"
	"math"
	"slices"
	"strings"
	"sync/atomic"
	"time"
	"unicode"
)

const WAVHeaderSize = 44

var btKeywords = []string{
	"airpods", "beats", "bose", "wh-1000", "wf-1000",
	"sony wh-", "sony wf-",
	"jabra", "galaxy buds", "pixel buds", "powerbeats",
	"jbl ", "sennheiser momentum", "plantronics",
	"bluetooth",
}

// IsBluetooth guesses from the device name. Besides known product names it
// matches a standalone "BT" word, as in "Headset (BT)" or "BT Speaker".
func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range btKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return slices.Contains(words, "bt")
}

type DataCallback func(data []byte, frameCount uint32)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
	DeviceName() string
}

// DefaultDeviceName labels captures opened without an explicit device.
const DefaultDeviceName = "system default"

func deviceLabel(d *DeviceInfo) string {
	if d == nil {
		return DefaultDeviceName
	}
	return d.Name
}

// callbackSlot holds the data callback a backend hands captured buffers to.
// Backends deliver from their audio thread while the recorder swaps it.
type callbackSlot struct {
	cb atomic.Pointer[DataCallback]
}

func (s *callbackSlot) SetCallback(cb DataCallback) { s.cb.Store(&cb) }

func (s *callbackSlot) ClearCallback() { s.cb.Store(nil) }

// deliver passes data on and reports whether anyone was listening.
func (s *callbackSlot) deliver(data []byte, frames uint32) bool {
	cb := s.cb.Load()
	if cb == nil {
		return false
	}
	(*cb)(data, frames)
	return true
}

// gainPCM scales samples by gain, clipping to the int16 range, and returns
// them as little-endian bytes.
func gainPCM(samples []int16, gain int32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := max(min(int32(s)*gain, math.MaxInt16), math.MinInt16)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

// Clip is one finished recording, already encoded for upload.
type Clip struct {
	Data     []byte
	Format   string
	Duration time.Duration
}

// Filename is the name the clip is uploaded under.
func (c Clip) Filename() string {
	return "recording." + c.Format
}

func (c Clip) Empty() bool { return len(c.Data) == 0 }

// Level returns the RMS of little-endian 16-bit PCM, normalized to 0..1.
func Level(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sumSquares float64
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int16(binary.LittleEndian.Uint16(pcm[i:]))
		normalized := float64(sample) / 32768.0
		sumSquares += normalized * normalized
	}
	return math.Sqrt(sumSquares / float64(n))
}
