package encoder

import (
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavFormatPCM = 1

type WavEncoder struct {
	tally
	out    memFile
	enc    *wav.Encoder
	format *goaudio.Format
	wrote  bool
}

func NewWav() (*WavEncoder, error) {
	e := &WavEncoder{
		format: &goaudio.Format{NumChannels: Channels, SampleRate: SampleRate},
	}
	e.enc = wav.NewEncoder(&e.out, SampleRate, BitsPerSample, Channels, wavFormatPCM)
	return e, nil
}

func (e *WavEncoder) Format() string { return FormatWAV }

func (e *WavEncoder) EncodeBlock(block []int16) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errClosed
	}
	if err := e.write(block); err != nil {
		return err
	}
	e.frames += uint64(len(block))
	return nil
}

func (e *WavEncoder) write(block []int16) error {
	data := make([]int, len(block))
	for i, s := range block {
		data[i] = int(s)
	}
	buf := &goaudio.IntBuffer{Format: e.format, Data: data, SourceBitDepth: BitsPerSample}
	if err := e.enc.Write(buf); err != nil {
		return fmt.Errorf("writing wav samples: %w", err)
	}
	e.wrote = true
	return nil
}

// Close patches the RIFF sizes. An encoder that never saw a block still
// emits a valid, empty file.
func (e *WavEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if !e.wrote {
		if err := e.write(nil); err != nil {
			return err
		}
	}
	return e.enc.Close()
}

func (e *WavEncoder) Bytes() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.out.buf
}

// memFile is an in-memory io.WriteSeeker; the wav encoder seeks back to
// fill in chunk sizes on Close.
type memFile struct {
	buf []byte
	pos int
}

func (m *memFile) Write(p []byte) (int, error) {
	end := m.pos + len(p)
	if end > len(m.buf) {
		if end > cap(m.buf) {
			grown := make([]byte, end, 2*end)
			copy(grown, m.buf)
			m.buf = grown
		} else {
			m.buf = m.buf[:end]
		}
	}
	copy(m.buf[m.pos:], p)
	m.pos = end
	return len(p), nil
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(m.pos) + offset
	case io.SeekEnd:
		abs = int64(len(m.buf)) + offset
	default:
		return 0, errors.New("memfile: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("memfile: negative position")
	}
	m.pos = int(abs)
	return abs, nil
}
