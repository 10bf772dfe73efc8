package encoder

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"
)

// Stats describes a finished encode.
type Stats struct {
	Format       string
	Frames       uint64
	RawBytes     uint64
	EncodedBytes uint64
	EncodeTime   time.Duration
}

func (s Stats) Duration() time.Duration {
	return Duration(s.Frames)
}

// CompressionPct is how much smaller the encoded bytes are than raw PCM.
func (s Stats) CompressionPct() float64 {
	if s.RawBytes == 0 {
		return 0
	}
	return (1.0 - float64(s.EncodedBytes)/float64(s.RawBytes)) * 100
}

// Stream accepts little-endian 16-bit PCM from a capture callback and encodes
// it on its own goroutine in BlockSize chunks, so the audio thread never waits
// on the encoder.
type Stream struct {
	enc        Encoder
	blockChan  chan []int16
	encodeDone chan struct{}
	sampleBuf  []int16
	bufMu      sync.Mutex
	closed     bool
	encodeErr  error
}

func NewStream(format string) (*Stream, error) {
	enc, err := New(format)
	if err != nil {
		return nil, err
	}
	s := &Stream{
		enc:        enc,
		blockChan:  make(chan []int16, 64),
		encodeDone: make(chan struct{}),
	}

	go func() {
		defer close(s.encodeDone)
		for block := range s.blockChan {
			start := time.Now()
			if err := s.enc.EncodeBlock(block); err != nil && s.encodeErr == nil {
				s.encodeErr = err
			}
			s.enc.AddEncodeTime(time.Since(start))
		}
	}()

	return s, nil
}

// Feed is safe to call from the capture callback. Data fed after Close is
// dropped.
func (s *Stream) Feed(pcm []byte) {
	s.bufMu.Lock()
	defer s.bufMu.Unlock()
	if s.closed {
		return
	}
	for i := 0; i+1 < len(pcm); i += 2 {
		s.sampleBuf = append(s.sampleBuf, int16(binary.LittleEndian.Uint16(pcm[i:])))
	}
	for len(s.sampleBuf) >= BlockSize {
		block := make([]int16, BlockSize)
		copy(block, s.sampleBuf[:BlockSize])
		s.sampleBuf = s.sampleBuf[BlockSize:]
		s.blockChan <- block
	}
}

// Close flushes the partial block, waits for the encoder and returns the
// finished file.
func (s *Stream) Close() ([]byte, Stats, error) {
	s.bufMu.Lock()
	if s.closed {
		s.bufMu.Unlock()
		return nil, Stats{}, fmt.Errorf("stream already closed")
	}
	s.closed = true
	if len(s.sampleBuf) > 0 {
		partial := make([]int16, len(s.sampleBuf))
		copy(partial, s.sampleBuf)
		s.sampleBuf = nil
		s.blockChan <- partial
	}
	close(s.blockChan)
	s.bufMu.Unlock()

	<-s.encodeDone

	if s.encodeErr != nil {
		return nil, Stats{}, s.encodeErr
	}
	if err := s.enc.Close(); err != nil {
		return nil, Stats{}, fmt.Errorf("finishing %s: %w", s.enc.Format(), err)
	}

	data := s.enc.Bytes()
	frames := s.enc.TotalFrames()
	return data, Stats{
		Format:       s.enc.Format(),
		Frames:       frames,
		RawBytes:     frames * 2,
		EncodedBytes: uint64(len(data)),
		EncodeTime:   s.enc.EncodeTime(),
	}, nil
}
