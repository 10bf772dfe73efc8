package encoder

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096
)

const (
	FormatFLAC = "flac"
	FormatWAV  = "wav"
)

type Encoder interface {
	EncodeBlock(block []int16) error
	Close() error
	Bytes() []byte
	Format() string
	TotalFrames() uint64
	AddEncodeTime(d time.Duration)
	EncodeTime() time.Duration
}

var errClosed = errors.New("encoder closed")

// tally is the bookkeeping shared by the encoders: frames written, time spent
// encoding, and whether Close ran. mu also guards the embedding encoder's
// output.
type tally struct {
	mu         sync.Mutex
	frames     uint64
	encodeTime time.Duration
	closed     bool
}

func (t *tally) TotalFrames() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frames
}

func (t *tally) AddEncodeTime(d time.Duration) {
	t.mu.Lock()
	t.encodeTime += d
	t.mu.Unlock()
}

func (t *tally) EncodeTime() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.encodeTime
}

// New returns an encoder for one of the upload formats.
func New(format string) (Encoder, error) {
	switch format {
	case FormatFLAC:
		return NewFlac()
	case FormatWAV:
		return NewWav()
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

func ValidFormat(format string) bool {
	return format == FormatFLAC || format == FormatWAV
}

// Duration converts a mono frame count at SampleRate to wall time.
func Duration(frames uint64) time.Duration {
	return time.Duration(frames) * time.Second / SampleRate
}
