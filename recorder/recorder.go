// Package recorder owns the microphone for one recording at a time and walks
// it through permission, capture and stop.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"voicenotes/apperr"
	"voicenotes/audio"
)

// ErrClipPending is returned by Start while a stopped clip has not been
// consumed or discarded.
var ErrClipPending = errors.New("a recorded clip is still pending")

// Mic is the platform capability the recorder drives.
type Mic interface {
	RequestAccess(ctx context.Context) error
	StartCapture() error
	StopCapture() (audio.Clip, error)
}

// Events receives state changes and elapsed-time ticks. Calls are made
// without the recorder's lock held, so a sink may call back into it.
type Events interface {
	RecorderState(s State)
	RecorderTick(elapsed time.Duration)
}

type nopEvents struct{}

func (nopEvents) RecorderState(State)         {}
func (nopEvents) RecorderTick(time.Duration) {}

type Option func(*Recorder)

func WithEvents(e Events) Option {
	return func(r *Recorder) { r.events = e }
}

// WithTickInterval sets how often Elapsed advances by one second.
func WithTickInterval(d time.Duration) Option {
	return func(r *Recorder) { r.tick = d }
}

type Recorder struct {
	mic    Mic
	events Events
	tick   time.Duration

	mu       sync.Mutex
	state    State
	granted  bool
	session  uint64
	stopTick chan struct{}
}

func New(mic Mic, opts ...Option) *Recorder {
	r := &Recorder{
		mic:    mic,
		events: nopEvents{},
		tick:   time.Second,
		state:  Idle{},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Clip returns the pending clip while Stopped.
func (r *Recorder) Clip() (audio.Clip, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.state.(Stopped)
	return s.Clip, ok
}

// Start asks for microphone access the first time and begins capturing. It
// is a no-op while a recording or permission request is already under way.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	switch s := r.state.(type) {
	case Recording, RequestingPermission:
		r.mu.Unlock()
		return nil
	case Stopped:
		r.mu.Unlock()
		return ErrClipPending
	case Denied:
		r.mu.Unlock()
		return s.Err
	}
	r.session++
	id := r.session
	granted := r.granted
	if !granted {
		r.state = RequestingPermission{}
	}
	r.mu.Unlock()

	if !granted {
		r.events.RecorderState(RequestingPermission{})
		err := r.mic.RequestAccess(ctx)

		r.mu.Lock()
		if err == nil {
			r.granted = true
		}
		if id != r.session {
			// Reset while the prompt was up
			r.mu.Unlock()
			return nil
		}
		if err != nil {
			var next State
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				next = Idle{}
			} else {
				err = permissionError(err)
				next = Denied{Err: err}
			}
			r.state = next
			r.mu.Unlock()
			r.events.RecorderState(next)
			return err
		}
		r.mu.Unlock()
	}

	r.mu.Lock()
	if id != r.session {
		r.mu.Unlock()
		return nil
	}
	if err := r.mic.StartCapture(); err != nil {
		r.state = Idle{}
		r.mu.Unlock()
		r.events.RecorderState(Idle{})
		return fmt.Errorf("start capture: %w", err)
	}
	rec := Recording{Started: time.Now()}
	r.state = rec
	r.stopTick = make(chan struct{})
	go r.runTicker(id, r.stopTick)
	r.mu.Unlock()

	r.events.RecorderState(rec)
	return nil
}

func permissionError(err error) error {
	if apperr.KindOf(err) == apperr.PermissionDenied {
		return err
	}
	return apperr.Wrap(apperr.PermissionDenied, "record", err)
}

func (r *Recorder) runTicker(id uint64, stop <-chan struct{}) {
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		r.mu.Lock()
		rec, ok := r.state.(Recording)
		if !ok || id != r.session {
			r.mu.Unlock()
			return
		}
		rec.Elapsed += time.Second
		r.state = rec
		r.mu.Unlock()
		r.events.RecorderTick(rec.Elapsed)
	}
}

func (r *Recorder) haltTicker() {
	if r.stopTick != nil {
		close(r.stopTick)
		r.stopTick = nil
	}
}

// Stop finalizes the capture into a single clip. Outside Recording it does
// nothing and returns nil, nil.
func (r *Recorder) Stop() (*audio.Clip, error) {
	r.mu.Lock()
	if _, ok := r.state.(Recording); !ok {
		r.mu.Unlock()
		return nil, nil
	}
	r.haltTicker()
	clip, err := r.mic.StopCapture()
	var next State = Stopped{Clip: clip}
	if err != nil {
		next = Idle{}
	}
	r.state = next
	r.mu.Unlock()

	r.events.RecorderState(next)
	if err != nil {
		return nil, fmt.Errorf("stop capture: %w", err)
	}
	return &clip, nil
}

// Reset drops any buffer, stopping an active capture, and returns to Idle.
// It also clears a denial so the next Start asks again.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.session++
	r.haltTicker()
	prev := r.state
	r.state = Idle{}
	if _, ok := prev.(Recording); ok {
		r.mic.StopCapture()
	}
	r.mu.Unlock()

	if _, ok := prev.(Idle); !ok {
		r.events.RecorderState(Idle{})
	}
}
