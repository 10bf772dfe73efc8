//go:build !linux

package beep

import (
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"voicenotes/log"
)

var (
	malgoCtx  *malgo.AllocatedContext
	device    *malgo.Device
	cues      map[cue][]byte
	soundOnce sync.Once

	// read from the device callback
	playing atomic.Pointer[[]byte]
	playPos atomic.Uint32
	playMu  sync.Mutex
)

func initDevice() error {
	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.Playback.Format = malgo.FormatS16
	config.Playback.Channels = 1
	config.SampleRate = sampleRate

	var err error
	device, err = malgo.InitDevice(malgoCtx.Context, config, malgo.DeviceCallbacks{Data: dataCallback})
	return err
}

func initSound() {
	var err error
	malgoCtx, err = malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		log.Warnf("beep: audio context: %v", err)
		return
	}

	cues = map[cue][]byte{
		cueStart: toBytes(samplesFor(cueStart, 0.03)),
		cueEnd:   toBytes(samplesFor(cueEnd, 0.05)),
		cueError: toBytes(samplesFor(cueError, 0)),
	}

	if err := initDevice(); err != nil {
		log.Warnf("beep: playback device: %v", err)
		malgoCtx.Uninit()
		malgoCtx = nil
	}
}

func toBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		buf[i*2] = byte(s)
		buf[i*2+1] = byte(s >> 8)
	}
	return buf
}

func dataCallback(out, _ []byte, frameCount uint32) {
	clear(out)
	samples := playing.Load()
	if samples == nil {
		return
	}
	pos := playPos.Load()
	remaining := uint32(len(*samples)) - pos
	if remaining == 0 {
		playing.Store(nil)
		return
	}
	n := min(frameCount*2, remaining)
	copy(out[:n], (*samples)[pos:pos+n])
	playPos.Store(pos + n)
}

func Init() {
	soundOnce.Do(initSound)
}

func play(c cue) {
	soundOnce.Do(initSound)
	if malgoCtx == nil {
		return
	}
	samples := cues[c]

	playMu.Lock()
	defer playMu.Unlock()
	if device == nil {
		return
	}
	device.Stop()
	playPos.Store(0)
	playing.Store(&samples)

	if err := device.Start(); err != nil {
		// the device can go stale across sleep/wake
		device.Uninit()
		if err := initDevice(); err != nil {
			playing.Store(nil)
			return
		}
		if err := device.Start(); err != nil {
			playing.Store(nil)
		}
	}
}
