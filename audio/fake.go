package audio

import (
	"errors"
	"os"
	"sync"
	"time"

	"voicenotes/encoder"
)

const (
	fakeFrameSize     = 1024
	fakeBytesPerFrame = 2 // 16-bit mono
)

// FakeContext replays PCM from memory or a WAV file instead of opening a
// real device. Used by tests and the headless -test mode.
type FakeContext struct {
	pcm      []byte
	realtime bool

	// CaptureErr, when set, is returned by NewCapture; it stands in for a
	// device the user has not granted access to.
	CaptureErr error
}

func NewFakeContext(wavPath string, realtime bool) (*FakeContext, error) {
	data, err := os.ReadFile(wavPath)
	if err != nil {
		return nil, err
	}
	if len(data) < WAVHeaderSize || string(data[:4]) != "RIFF" {
		return nil, errors.New("not a WAV file: " + wavPath)
	}
	return &FakeContext{pcm: data[WAVHeaderSize:], realtime: realtime}, nil
}

// NewFakeContextPCM replays raw little-endian 16-bit mono PCM.
func NewFakeContextPCM(pcm []byte, realtime bool) *FakeContext {
	return &FakeContext{pcm: pcm, realtime: realtime}
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake", Name: "fake"}}, nil
}

func (f *FakeContext) Close() {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	if f.CaptureErr != nil {
		return nil, f.CaptureErr
	}
	return &FakeCapture{pcm: f.pcm, realtime: f.realtime, audioDone: make(chan struct{})}, nil
}

// FakeCapture feeds its PCM once per Start, then silence until Stop. In
// non-realtime mode the whole buffer is delivered before Start returns.
type FakeCapture struct {
	pcm       []byte
	realtime  bool
	audioDone chan struct{}

	callbackSlot

	mu       sync.Mutex
	stopCh   chan struct{}
	feedDone chan struct{}
}

// AudioDone closes once the source PCM has been fully delivered.
func (f *FakeCapture) AudioDone() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.audioDone
}

func (f *FakeCapture) DeviceName() string { return "fake" }

func (f *FakeCapture) callback() DataCallback {
	if cb := f.cb.Load(); cb != nil {
		return *cb
	}
	return nil
}

func (f *FakeCapture) feedChunk(cb DataCallback, pos int) int {
	end := min(pos+fakeFrameSize*fakeBytesPerFrame, len(f.pcm))
	chunk := make([]byte, end-pos)
	copy(chunk, f.pcm[pos:end])
	cb(chunk, uint32(len(chunk)/fakeBytesPerFrame))
	return end
}

func (f *FakeCapture) Start() error {
	f.mu.Lock()
	f.stopCh = make(chan struct{})
	f.feedDone = make(chan struct{})
	audioDone := f.audioDone
	f.mu.Unlock()

	interval := time.Duration(fakeFrameSize) * time.Second / time.Duration(encoder.SampleRate)
	pos := 0
	if !f.realtime {
		if cb := f.callback(); cb != nil {
			for pos < len(f.pcm) {
				pos = f.feedChunk(cb, pos)
			}
		}
		close(audioDone)
		// keep the device "live" without growing the clip
		interval = time.Hour
	}

	go func() {
		defer close(f.feedDone)
		silence := make([]byte, fakeFrameSize*fakeBytesPerFrame)
		finished := !f.realtime
		for {
			select {
			case <-f.stopCh:
				return
			case <-time.After(interval):
			}
			cb := f.callback()
			if cb == nil {
				continue
			}
			if pos < len(f.pcm) {
				pos = f.feedChunk(cb, pos)
				continue
			}
			if !finished {
				finished = true
				close(audioDone)
			}
			cb(silence, fakeFrameSize)
		}
	}()
	return nil
}

func (f *FakeCapture) Stop() {
	f.mu.Lock()
	stopCh, feedDone := f.stopCh, f.feedDone
	f.mu.Unlock()
	if stopCh == nil {
		return
	}
	select {
	case <-stopCh:
		return
	default:
		close(stopCh)
	}
	<-feedDone

	f.mu.Lock()
	select {
	case <-f.audioDone:
		f.audioDone = make(chan struct{}) // reset for replay
	default:
	}
	f.mu.Unlock()
}

func (f *FakeCapture) Close() { f.Stop() }
