package transcriber

import (
	"context"
	"strings"
	"sync"

	"voicenotes/apperr"
	"voicenotes/audio"
	"voicenotes/traced"
)

// Fake answers every call with a fixed text or error, and records the clips
// it was handed.
type Fake struct {
	mu    sync.Mutex
	text  string
	err   error
	clips []audio.Clip
	warms int
}

func NewFake(text string, err error) *Fake {
	return &Fake{text: text, err: err}
}

// Set changes what later calls return.
func (f *Fake) Set(text string, err error) {
	f.mu.Lock()
	f.text, f.err = text, err
	f.mu.Unlock()
}

func (f *Fake) Transcribe(_ context.Context, clip audio.Clip, token string) (*Result, error) {
	if strings.TrimSpace(token) == "" {
		return nil, apperr.New(apperr.MissingCredential, op)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clips = append(f.clips, clip)
	if f.err != nil {
		return nil, f.err
	}
	if strings.TrimSpace(f.text) == "" {
		return nil, apperr.New(apperr.EmptyResult, op)
	}
	return &Result{Text: f.text, Model: "fake", Metrics: &traced.Metrics{}}, nil
}

func (f *Fake) Warm() {
	f.mu.Lock()
	f.warms++
	f.mu.Unlock()
}

// Clips returns every clip passed to Transcribe, in call order.
func (f *Fake) Clips() []audio.Clip {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]audio.Clip(nil), f.clips...)
}

func (f *Fake) Warms() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.warms
}
